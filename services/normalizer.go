package services

import (
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"autosearch/models"
	"autosearch/utils"
)

var asteriskRegexp = regexp.MustCompile(`\*+`)

// Normalizer turns raw result records into canonical Listings. Records from
// the recommendations section never get through.
type Normalizer struct {
	logger *utils.Logger
}

// NewNormalizer creates a Normalizer with the given logger.
func NewNormalizer(logger *utils.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize maps the exact-match records of one cycle to Listings owned by
// search. It returns the listings in input order with duplicate identifiers
// collapsed to their first occurrence, and the number of exact-match records
// dropped because no identifier could be extracted.
func (n *Normalizer) Normalize(search string, raw []models.RawListing, now time.Time) ([]models.Listing, int) {
	seen := make(map[string]struct{})
	result := make([]models.Listing, 0, len(raw))
	anomalies := 0
	recommended := 0

	for _, r := range raw {
		if !r.Exact {
			recommended++
			continue
		}

		id := strings.TrimSpace(r.ID)
		if id == "" {
			id = idFromURL(r.URL)
		}
		if id == "" {
			anomalies++
			n.logger.Warn("[normalizer] %s: dropping record without identifier: %q", search, r.Title)
			continue
		}

		if _, dup := seen[id]; dup {
			n.logger.Debug("[normalizer] %s: duplicate id skipped: %s", search, id)
			continue
		}
		seen[id] = struct{}{}

		result = append(result, models.Listing{
			ID:         id,
			Search:     search,
			Title:      CanonicalTitle(r.Title, r.Make, r.Model),
			Make:       r.Make,
			Model:      r.Model,
			Price:      r.Price,
			Year:       r.Year,
			Kilometers: r.Kilometers,
			Location:   normaliseText(r.Location),
			URL:        strings.TrimSpace(r.URL),
			FirstSeen:  now,
			LastSeen:   now,
		})
	}

	n.logger.Debug("[normalizer] %s: %d records → %d listings (recommended %d, anomalies %d)",
		search, len(raw), len(result), recommended, anomalies)
	return result, anomalies
}

// CanonicalTitle collapses whitespace, strips asterisk decorations and a
// leading make/model prefix. An empty result falls back to "Make Model".
func CanonicalTitle(title, mk, model string) string {
	t := normaliseText(asteriskRegexp.ReplaceAllString(title, ""))

	if mk != "" {
		var prefixes []string
		if model != "" {
			prefixes = append(prefixes, `(?i)^`+regexp.QuoteMeta(mk)+`\s*`+regexp.QuoteMeta(model)+`\s*`)
		}
		prefixes = append(prefixes, `(?i)^`+regexp.QuoteMeta(mk)+`\s*`)

		for _, p := range prefixes {
			if stripped := regexp.MustCompile(p).ReplaceAllString(t, ""); stripped != t {
				t = stripped
				break
			}
		}
	}

	t = strings.TrimSpace(t)
	if t == "" {
		return strings.TrimSpace(mk + " " + model)
	}
	return t
}

// idFromURL returns the last path segment of a listing URL.
func idFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Path == "" {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	return segments[len(segments)-1]
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
