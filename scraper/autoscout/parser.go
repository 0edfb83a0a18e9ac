package autoscout

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"autosearch/models"
)

var (
	// headerRegexp captures the results header embedded in the page state,
	// e.g. "listHeaderTitle":"5.808 Angebote für Volkswagen".
	headerRegexp = regexp.MustCompile(`"listHeaderTitle":"([^"]*)"`)
	countRegexp  = regexp.MustCompile(`\d[\d.]*`)
	// registrationRegexp matches "MM-YYYY" and "MM/YYYY" registrations.
	registrationRegexp = regexp.MustCompile(`\d{2}[-/](\d{4})`)
	yearRegexp         = regexp.MustCompile(`\d{4}`)
)

const (
	listingSelector         = "article"
	fallbackListingSelector = `[data-testid="listing-item"], [class*="ListItem_article"]`
	mainSelector            = `div[class*="ListPage_main"]`
	recommendationSelector  = `[class*="Recommendations_recommendations"], [class*="recommendation"], [class*="Recommendation"]`
)

// ParsePage extracts the result records from one results page. Records from
// the recommendations section are returned with Exact set to false. A page
// whose header announces zero results is a valid empty page; a page without a
// recognisable header or listing markup is a permanent FetchError.
func ParsePage(body []byte, baseURL, mk, model string) (*models.ResultPage, error) {
	total := headerTotal(body)
	if total == 0 {
		return &models.ResultPage{Total: 0}, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, permanentf("", 0, err, "parse html")
	}

	articles := doc.Find(listingSelector)
	if articles.Length() == 0 {
		articles = doc.Find(fallbackListingSelector)
	}
	if articles.Length() == 0 {
		if total > 0 {
			return nil, permanentf("", 0, nil, "header announces %d results but no listing markup was found", total)
		}
		return nil, permanentf("", 0, nil, "no results header and no listing markup found")
	}

	mainFound := doc.Find(mainSelector).Find(listingSelector).Length() > 0

	page := &models.ResultPage{Total: total}
	exact := 0
	articles.Each(func(_ int, s *goquery.Selection) {
		rec := extractRecord(s, baseURL)
		rec.Make = mk
		rec.Model = model

		rec.Exact = s.Closest(recommendationSelector).Length() == 0
		if rec.Exact && mainFound {
			rec.Exact = s.Closest(mainSelector).Length() > 0
		}
		// Extra articles beyond the announced total are promoted placements.
		if rec.Exact && total > 0 && exact >= total {
			rec.Exact = false
		}
		if rec.Exact {
			exact++
		}
		page.Records = append(page.Records, rec)
	})

	if exact == 0 && total > 0 {
		return nil, permanentf("", 0, nil, "header announces %d results but every listing on the page is a recommendation", total)
	}
	return page, nil
}

// headerTotal returns the announced result count, or -1 if there is none.
func headerTotal(body []byte) int {
	m := headerRegexp.FindSubmatch(body)
	if m == nil {
		return -1
	}
	num := countRegexp.Find(m[1])
	if num == nil {
		return -1
	}
	n, err := strconv.Atoi(strings.ReplaceAll(string(num), ".", ""))
	if err != nil {
		return -1
	}
	return n
}

func extractRecord(s *goquery.Selection, baseURL string) models.RawListing {
	rec := models.RawListing{}

	if id, ok := s.Attr("id"); ok {
		rec.ID = strings.TrimSpace(id)
	}
	if rec.ID == "" {
		rec.ID = strings.TrimSpace(s.AttrOr("data-guid", ""))
	}

	if href, ok := s.Find("a").First().Attr("href"); ok {
		rec.URL = absoluteURL(baseURL, strings.TrimSpace(href))
	}
	rec.Title = strings.TrimSpace(s.Find("h2").First().Text())

	rec.Price = atoiAttr(s, "data-price")
	rec.Kilometers = atoiAttr(s, "data-mileage")
	rec.Year = registrationYear(s.AttrOr("data-first-registration", ""))

	city := strings.TrimSpace(s.AttrOr("data-listing-city", ""))
	zip := strings.TrimSpace(s.AttrOr("data-listing-zip-code", ""))
	rec.Location = strings.TrimSpace(fmt.Sprintf("%s %s", city, zip))
	if rec.Location == "" {
		rec.Location = strings.TrimSpace(s.Find(".location").First().Text())
	}
	return rec
}

func atoiAttr(s *goquery.Selection, name string) int {
	v := strings.TrimSpace(s.AttrOr(name, ""))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func registrationYear(raw string) int {
	if m := registrationRegexp.FindStringSubmatch(raw); m != nil {
		y, _ := strconv.Atoi(m[1])
		return y
	}
	if m := yearRegexp.FindString(raw); m != "" {
		y, _ := strconv.Atoi(m)
		return y
	}
	return 0
}

func absoluteURL(baseURL, href string) string {
	if strings.HasPrefix(href, "/") {
		return strings.TrimRight(baseURL, "/") + href
	}
	return href
}
