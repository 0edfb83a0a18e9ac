package models

import (
	"sort"
	"time"
)

// RawListing is one search-result record as scraped from a results page,
// before any normalization. Exact is false for records the marketplace shows
// in its "you might also like" section.
type RawListing struct {
	ID         string
	Title      string
	URL        string
	Make       string
	Model      string
	Price      int
	Year       int
	Kilometers int
	Location   string
	Exact      bool
}

// ResultPage is one page returned by a fetcher. Total is the result count the
// marketplace announced in the page header, or -1 when it could not be read.
type ResultPage struct {
	Records []RawListing
	Total   int
	HasMore bool
}

// Listing is the canonical, normalized vehicle record tracked per search.
type Listing struct {
	ID         string    `json:"id" db:"id"`
	Search     string    `json:"search" db:"search"`
	Title      string    `json:"title" db:"title"`
	Make       string    `json:"make" db:"make"`
	Model      string    `json:"model" db:"model"`
	Price      int       `json:"price" db:"price"`
	Year       int       `json:"year" db:"year"`
	Kilometers int       `json:"kilometers" db:"kilometers"`
	Location   string    `json:"location" db:"location"`
	URL        string    `json:"url" db:"url"`
	FirstSeen  time.Time `json:"first_seen" db:"first_seen"`
	LastSeen   time.Time `json:"last_seen" db:"last_seen"`
}

// Snapshot is the persisted set of listings believed live for one search,
// keyed by listing ID.
type Snapshot map[string]Listing

// IDs returns the snapshot's identifiers in ascending order.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Listings returns the snapshot's listings ordered by ID.
func (s Snapshot) Listings() []Listing {
	out := make([]Listing, 0, len(s))
	for _, id := range s.IDs() {
		out = append(out, s[id])
	}
	return out
}

// ReconcileResult is the delta produced by one successful cycle of a search.
type ReconcileResult struct {
	CycleID   string
	Search    string
	Added     []Listing
	Removed   []Listing
	Unchanged int
	At        time.Time
}

// Empty reports whether the cycle produced nothing to notify about.
func (r *ReconcileResult) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0
}

// StatusReport summarizes the persisted state for the inspection utility.
type StatusReport struct {
	TotalListings int
	BySearch      map[string]int
	ByMakeModel   map[string]int
	Newest        []Listing
	Oldest        []Listing
}
