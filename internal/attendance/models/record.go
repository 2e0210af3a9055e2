package models

import (
	"strings"
	"time"
)

// FirstTrackedYear is the first year the trip ran.
const FirstTrackedYear = 2009

// Record is one person's attendance for one year.
//
// Invariants:
//   - (PersonName, Year) is unique across the store
//   - Year is within [FirstTrackedYear, current year]
//   - ID is immutable after creation
type Record struct {
	ID         string    `json:"_id"`
	PersonName string    `json:"personName"`
	Year       int       `json:"year"`
	Attended   bool      `json:"attended"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Key identifies a record by meaning rather than by id.
type Key struct {
	PersonName string
	Year       int
}

func (r *Record) Key() Key {
	return Key{PersonName: r.PersonName, Year: r.Year}
}

// TempIDPrefix marks ids generated locally for records the store has not
// acknowledged yet.
const TempIDPrefix = "tmp-"

// IsTemporary reports whether the record is a provisional placeholder.
func (r *Record) IsTemporary() bool {
	return strings.HasPrefix(r.ID, TempIDPrefix)
}

// Clone returns a detached copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
