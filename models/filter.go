package models

import (
	"fmt"
	"time"
)

// Range is an inclusive numeric constraint. Either bound may be nil.
type Range struct {
	Min *int `yaml:"min"`
	Max *int `yaml:"max"`
}

// Location restricts results to a radius (km) around a postal code.
type Location struct {
	Zip    string
	Radius *int
}

// FilterSpec is the validated, immutable description of one named search.
type FilterSpec struct {
	Name         string
	Make         string
	Models       []string
	Countries    []string
	Price        *Range
	Year         *Range
	Kilometers   *Range
	Seats        *Range
	Doors        *Range
	Power        *Range
	BodyType     string
	FuelType     string
	Transmission string
	Color        string
	Equipment    []string
	Location     Location
}

// Search pairs a filter with the polling interval of the config it came from.
type Search struct {
	Filter   FilterSpec
	Interval time.Duration
}

// FieldError reports an invalid field of a FilterSpec.
type FieldError struct {
	Field   string
	Problem string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Problem
}

// Validate checks the spec's invariants. It is called when configuration is
// loaded and again before every cycle.
func (f FilterSpec) Validate() error {
	if f.Name == "" {
		return &FieldError{Field: "name", Problem: "must not be empty"}
	}

	ranges := []struct {
		field string
		r     *Range
	}{
		{"price_range", f.Price},
		{"year_range", f.Year},
		{"kilometers_range", f.Kilometers},
		{"seats", f.Seats},
		{"doors", f.Doors},
		{"power_range", f.Power},
	}
	for _, rg := range ranges {
		if err := rg.r.validate(rg.field); err != nil {
			return err
		}
	}

	if f.Location.Radius != nil {
		if f.Location.Zip == "" {
			return &FieldError{Field: "zipr", Problem: "radius requires zip"}
		}
		if *f.Location.Radius <= 0 {
			return &FieldError{Field: "zipr", Problem: fmt.Sprintf("radius must be positive, got %d", *f.Location.Radius)}
		}
	}
	return nil
}

func (r *Range) validate(field string) error {
	if r == nil {
		return nil
	}
	if r.Min != nil && *r.Min < 0 {
		return &FieldError{Field: field + ".min", Problem: fmt.Sprintf("must not be negative, got %d", *r.Min)}
	}
	if r.Max != nil && *r.Max < 0 {
		return &FieldError{Field: field + ".max", Problem: fmt.Sprintf("must not be negative, got %d", *r.Max)}
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return &FieldError{Field: field, Problem: fmt.Sprintf("min %d is greater than max %d", *r.Min, *r.Max)}
	}
	return nil
}

// ModelQueries returns the model names the marketplace must be queried for.
// A search without models is a single make-wide query.
func (f FilterSpec) ModelQueries() []string {
	if len(f.Models) == 0 {
		return []string{""}
	}
	return f.Models
}

// IntPtr is a helper for building ranges in code and tests.
func IntPtr(v int) *int { return &v }
