package autoscout

import (
	"net/url"
	"strconv"
	"strings"

	"autosearch/models"
)

// countryCodes maps ISO country codes to the marketplace's "cy" values.
var countryCodes = map[string]string{
	"AT": "A",
	"DE": "D",
	"BE": "B",
	"ES": "E",
	"FR": "F",
	"IT": "I",
	"LU": "L",
	"NL": "NL",
}

// allCountries is used when no known country is configured.
var allCountries = []string{"D", "A", "B", "E", "F", "I", "L", "NL"}

// modelFamilies are model names the marketplace only lists as a family.
var modelFamilies = map[string]bool{"t3": true, "t4": true, "t5": true, "t6": true}

// BuildSearchURL returns the results URL of one page for one model of f.
func BuildSearchURL(baseURL string, f models.FilterSpec, model string, page int) string {
	path := "/lst"
	if mk := slug(f.Make); mk != "" {
		path += "/" + mk
		if m := slug(model); m != "" {
			if modelFamilies[m] {
				m += "-(alle)"
			}
			path += "/" + m
		}
	}

	q := url.Values{}
	q.Set("atype", "C")
	q.Set("cy", strings.Join(countries(f.Countries), ","))
	q.Set("damaged_listing", "exclude")
	q.Set("desc", "0")
	q.Set("ocs_listing", "include")
	q.Set("powertype", "kw")
	q.Set("sort", "standard")
	q.Set("source", "homepage_search-mask")
	q.Set("ustate", "N,U")

	setRange(q, f.Year, "fregfrom", "fregto")
	setRange(q, f.Kilometers, "kmfrom", "kmto")
	setRange(q, f.Price, "pricefrom", "priceto")
	setRange(q, f.Power, "powerfrom", "powerto")
	setRange(q, f.Seats, "seatsfrom", "seatsto")
	setRange(q, f.Doors, "doorfrom", "doorto")

	setIf(q, "body", f.BodyType)
	setIf(q, "fuel", f.FuelType)
	setIf(q, "gear", f.Transmission)
	setIf(q, "color", f.Color)
	for _, eq := range f.Equipment {
		q.Add("eq", eq)
	}
	if f.Location.Zip != "" {
		q.Set("zip", f.Location.Zip)
		if f.Location.Radius != nil {
			q.Set("zipr", strconv.Itoa(*f.Location.Radius))
		}
	}
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}

	return strings.TrimRight(baseURL, "/") + path + "?" + q.Encode()
}

func countries(in []string) []string {
	var out []string
	for _, c := range in {
		if code, ok := countryCodes[strings.ToUpper(c)]; ok {
			out = append(out, code)
		}
	}
	if len(out) == 0 {
		return allCountries
	}
	return out
}

func setRange(q url.Values, r *models.Range, from, to string) {
	if r == nil {
		return
	}
	if r.Min != nil && *r.Min > 0 {
		q.Set(from, strconv.Itoa(*r.Min))
	}
	if r.Max != nil && *r.Max > 0 {
		q.Set(to, strconv.Itoa(*r.Max))
	}
}

func setIf(q url.Values, key, val string) {
	if val != "" {
		q.Set(key, val)
	}
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
}
