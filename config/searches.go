package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"autosearch/models"
)

const defaultCheckInterval = 15

// defaultCountries applies when general.countries is absent. An explicit
// list without known codes searches every country instead.
var defaultCountries = []string{"DE"}

// ValidationError pinpoints the search and field a config file got wrong.
type ValidationError struct {
	File   string
	Search string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Search == "" {
		return fmt.Sprintf("config: %s: %v", e.File, e.Err)
	}
	return fmt.Sprintf("config: %s: search %q: %v", e.File, e.Search, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

type fileYAML struct {
	General  generalYAML  `yaml:"general"`
	Searches []searchYAML `yaml:"searches"`
}

type generalYAML struct {
	CheckIntervalMinutes *int     `yaml:"check_interval_minutes"`
	Countries            []string `yaml:"countries"`
}

type searchYAML struct {
	Name            string        `yaml:"name"`
	Make            string        `yaml:"make"`
	Models          []string      `yaml:"models"`
	PriceRange      *models.Range `yaml:"price_range"`
	YearRange       *models.Range `yaml:"year_range"`
	KilometersRange *models.Range `yaml:"kilometers_range"`
	MaxKilometers   *int          `yaml:"max_kilometers"`
	Seats           *models.Range `yaml:"seats"`
	Doors           *models.Range `yaml:"doors"`
	PowerRange      *models.Range `yaml:"power_range"`
	BodyType        string        `yaml:"body_type"`
	FuelType        string        `yaml:"fuel_type"`
	Transmission    string        `yaml:"transmission"`
	Color           string        `yaml:"color"`
	Equipment       []string      `yaml:"equipment"`
	Zip             string        `yaml:"zip"`
	Zipr            *int          `yaml:"zipr"`
}

// LoadSearches reads every *.yaml file in dir, skipping templates whose name
// starts with "default_", and returns the validated searches. Any invalid
// search fails the whole load.
func LoadSearches(dir string) ([]models.Search, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("config: glob %q: %w", dir, err)
	}
	sort.Strings(paths)

	var searches []models.Search
	seen := make(map[string]string)
	files := 0

	for _, path := range paths {
		base := filepath.Base(path)
		if strings.HasPrefix(base, "default_") {
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		loaded, err := ParseSearches(f, base)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
		for _, s := range loaded {
			if prev, dup := seen[s.Filter.Name]; dup {
				return nil, &ValidationError{File: base, Search: s.Filter.Name,
					Err: fmt.Errorf("name: already defined in %s", prev)}
			}
			seen[s.Filter.Name] = base
		}
		searches = append(searches, loaded...)
		files++
	}

	if files == 0 {
		return nil, fmt.Errorf("config: no configuration files found in %q (copy default_config.yaml to get started)", dir)
	}
	return searches, nil
}

// ParseSearches decodes one config file. Unknown keys are rejected.
func ParseSearches(r io.Reader, file string) ([]models.Search, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", file, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var doc fileYAML
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ValidationError{File: file, Err: err}
	}

	interval := defaultCheckInterval
	if doc.General.CheckIntervalMinutes != nil {
		interval = *doc.General.CheckIntervalMinutes
		if interval <= 0 {
			return nil, &ValidationError{File: file,
				Err: &models.FieldError{Field: "general.check_interval_minutes", Problem: "must be positive"}}
		}
	}

	countries := doc.General.Countries
	if countries == nil {
		countries = defaultCountries
	}

	out := make([]models.Search, 0, len(doc.Searches))
	for i, s := range doc.Searches {
		spec := s.toFilter(countries)
		name := spec.Name
		if name == "" {
			name = fmt.Sprintf("#%d", i+1)
		}
		if err := spec.Validate(); err != nil {
			return nil, &ValidationError{File: file, Search: name, Err: err}
		}
		if s.MaxKilometers != nil && s.KilometersRange != nil && s.KilometersRange.Max != nil {
			return nil, &ValidationError{File: file, Search: name,
				Err: &models.FieldError{Field: "max_kilometers", Problem: "conflicts with kilometers_range.max"}}
		}
		out = append(out, models.Search{
			Filter:   spec,
			Interval: time.Duration(interval) * time.Minute,
		})
	}
	return out, nil
}

func (s searchYAML) toFilter(countries []string) models.FilterSpec {
	spec := models.FilterSpec{
		Name:         strings.TrimSpace(s.Name),
		Make:         strings.TrimSpace(s.Make),
		Models:       dedupe(s.Models),
		Countries:    dedupe(countries),
		Price:        s.PriceRange,
		Year:         s.YearRange,
		Kilometers:   s.KilometersRange,
		Seats:        s.Seats,
		Doors:        s.Doors,
		Power:        s.PowerRange,
		BodyType:     strings.TrimSpace(s.BodyType),
		FuelType:     strings.TrimSpace(s.FuelType),
		Transmission: strings.TrimSpace(s.Transmission),
		Color:        strings.TrimSpace(s.Color),
		Equipment:    dedupe(s.Equipment),
		Location:     models.Location{Zip: strings.TrimSpace(s.Zip), Radius: s.Zipr},
	}

	if s.MaxKilometers != nil {
		km := models.Range{Max: s.MaxKilometers}
		if s.KilometersRange != nil {
			km.Min = s.KilometersRange.Min
		}
		spec.Kilometers = &km
	}

	// Unnamed searches fall back to "Make model, model".
	if spec.Name == "" && spec.Make != "" {
		spec.Name = strings.TrimSpace(spec.Make + " " + strings.Join(spec.Models, ", "))
	}
	return spec
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
