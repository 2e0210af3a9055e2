package tracker

import (
	"time"

	"mantrip/internal/attendance/models"
)

// Grid is the people by years projection of the record set.
type Grid struct {
	Years []int
	Rows  []Row
}

type Row struct {
	Name  string
	Cells []Cell
}

// Cell is one checkbox. Recorded is false when no record exists for the key;
// Saving is true while the record is a temporary placeholder.
type Cell struct {
	Year     int
	Checked  bool
	Recorded bool
	Saving   bool
}

// TrackedYears returns [models.FirstTrackedYear, now.Year()] ascending.
func TrackedYears(now time.Time) []int {
	last := now.Year()
	if last < models.FirstTrackedYear {
		return nil
	}
	years := make([]int, 0, last-models.FirstTrackedYear+1)
	for y := models.FirstTrackedYear; y <= last; y++ {
		years = append(years, y)
	}
	return years
}

// BuildGrid projects records onto one row per name and one column per year.
// Records for names outside the roster are ignored.
func BuildGrid(names []string, records []*models.Record, years []int) Grid {
	byKey := make(map[models.Key]*models.Record, len(records))
	for _, r := range records {
		if r != nil {
			byKey[r.Key()] = r
		}
	}

	grid := Grid{
		Years: append([]int(nil), years...),
		Rows:  make([]Row, 0, len(names)),
	}
	for _, name := range names {
		row := Row{Name: name, Cells: make([]Cell, 0, len(years))}
		for _, year := range years {
			cell := Cell{Year: year}
			if r, ok := byKey[models.Key{PersonName: name, Year: year}]; ok {
				cell.Checked = r.Attended
				cell.Recorded = true
				cell.Saving = r.IsTemporary()
			}
			row.Cells = append(row.Cells, cell)
		}
		grid.Rows = append(grid.Rows, row)
	}
	return grid
}
