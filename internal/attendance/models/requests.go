package models

import (
	"fmt"
	"strings"
)

const maxPersonNameLength = 64

// CreateRequest carries the fields for a new attendance record.
type CreateRequest struct {
	Year       int    `json:"year"`
	PersonName string `json:"personName"`
	Attended   bool   `json:"attended"`
}

func (r *CreateRequest) Normalize() {
	if r == nil {
		return
	}
	r.PersonName = strings.TrimSpace(r.PersonName)
}

// Validate checks field presence and the tracked year range ending at lastYear.
func (r *CreateRequest) Validate(lastYear int) error {
	if r == nil {
		return fmt.Errorf("request is required")
	}
	if r.PersonName == "" {
		return fmt.Errorf("personName is required")
	}
	if len(r.PersonName) > maxPersonNameLength {
		return fmt.Errorf("personName must be %d characters or less", maxPersonNameLength)
	}
	if r.Year < FirstTrackedYear || r.Year > lastYear {
		return fmt.Errorf("year must be between %d and %d", FirstTrackedYear, lastYear)
	}
	return nil
}

// UpdateRequest carries the mutable fields of a record. Attended is a pointer
// so an empty body is rejected instead of silently clearing the flag.
type UpdateRequest struct {
	Attended *bool `json:"attended"`
}

func (r *UpdateRequest) Validate() error {
	if r == nil || r.Attended == nil {
		return fmt.Errorf("attended is required")
	}
	return nil
}
