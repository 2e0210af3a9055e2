package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mantrip/internal/attendance/models"
	"mantrip/pkg/testutil"
)

func TestTrackedYears(t *testing.T) {
	years := TrackedYears(time.Date(2012, time.January, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, []int{2009, 2010, 2011, 2012}, years)

	assert.Equal(t, []int{2009}, TrackedYears(time.Date(2009, time.December, 31, 0, 0, 0, 0, time.UTC)))
	assert.Empty(t, TrackedYears(time.Date(2008, time.June, 1, 0, 0, 0, 0, time.UTC)))
}

func TestBuildGrid(t *testing.T) {
	years := []int{2009, 2010, 2011}

	testutil.Given(t, "a roster with a person who has no records", func(t *testing.T) {
		names := []string{"Jon", "Pat"}
		records := []*models.Record{
			{ID: "1", PersonName: "Jon", Year: 2010, Attended: true},
			{ID: "2", PersonName: "Jon", Year: 2011, Attended: false},
		}

		testutil.When(t, "the grid is built", func(t *testing.T) {
			grid := BuildGrid(names, records, years)

			testutil.Then(t, "every name gets a full row", func(t *testing.T) {
				require.Len(t, grid.Rows, 2)
				assert.Equal(t, years, grid.Years)
				for _, row := range grid.Rows {
					assert.Len(t, row.Cells, len(years))
				}
			})

			testutil.Then(t, "cells follow the records", func(t *testing.T) {
				jon := grid.Rows[0]
				assert.Equal(t, "Jon", jon.Name)
				assert.Equal(t, Cell{Year: 2009}, jon.Cells[0])
				assert.Equal(t, Cell{Year: 2010, Checked: true, Recorded: true}, jon.Cells[1])
				assert.Equal(t, Cell{Year: 2011, Recorded: true}, jon.Cells[2])

				for _, c := range grid.Rows[1].Cells {
					assert.False(t, c.Checked)
					assert.False(t, c.Recorded)
				}
			})
		})
	})

	testutil.Given(t, "records for someone not on the roster", func(t *testing.T) {
		records := []*models.Record{{ID: "1", PersonName: "Roger", Year: 2010, Attended: true}}

		testutil.Then(t, "they are left out of the grid", func(t *testing.T) {
			grid := BuildGrid([]string{"Jon"}, records, years)
			require.Len(t, grid.Rows, 1)
			assert.Equal(t, "Jon", grid.Rows[0].Name)
			assert.False(t, grid.Rows[0].Cells[1].Checked)
		})
	})

	testutil.Given(t, "a temporary record", func(t *testing.T) {
		records := []*models.Record{{ID: models.TempIDPrefix + "x", PersonName: "Jon", Year: 2009, Attended: true}}

		testutil.Then(t, "its cell is checked and marked saving", func(t *testing.T) {
			grid := BuildGrid([]string{"Jon"}, records, years)
			assert.Equal(t, Cell{Year: 2009, Checked: true, Recorded: true, Saving: true}, grid.Rows[0].Cells[0])
		})
	})

	t.Run("does not alias inputs", func(t *testing.T) {
		in := []int{2009, 2010}
		grid := BuildGrid(nil, nil, in)
		in[0] = 1999
		assert.Equal(t, []int{2009, 2010}, grid.Years)
		assert.Empty(t, grid.Rows)
	})
}
