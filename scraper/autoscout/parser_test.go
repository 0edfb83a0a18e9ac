package autoscout

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

const testBase = "https://www.autoscout24.de"

func article(id, extra string) string {
	return fmt.Sprintf(`<article id=%q data-price="15990" data-mileage="120000" data-first-registration="05-2019"`+
		` data-listing-city="Berlin" data-listing-zip-code="10115" %s>`+
		`<a href="/angebote/vw-t5-%s"><h2>VW T5 Multivan  ** TOP **</h2></a></article>`, id, extra, id)
}

func page(header string, body string) []byte {
	var b strings.Builder
	b.WriteString("<html><head>")
	if header != "" {
		fmt.Fprintf(&b, `<script id="__NEXT_DATA__">{"props":{"listHeaderTitle":%q}}</script>`, header)
	}
	b.WriteString("</head><body>")
	b.WriteString(body)
	b.WriteString("</body></html>")
	return []byte(b.String())
}

func TestParsePageSeparatesRecommendations(t *testing.T) {
	body := page("2 Angebote für Volkswagen T5",
		`<div class="ListPage_main__abc">`+article("a1", "")+article("a2", "")+`</div>`+
			`<section class="Recommendations_recommendations__x">`+article("r1", "")+`</section>`)

	result, err := ParsePage(body, testBase, "Volkswagen", "T5")
	if err != nil {
		t.Fatalf("ParsePage: %v", err)
	}
	if result.Total != 2 {
		t.Errorf("Total = %d; want 2", result.Total)
	}
	if len(result.Records) != 3 {
		t.Fatalf("got %d records; want 3", len(result.Records))
	}

	exact := map[string]bool{}
	for _, r := range result.Records {
		exact[r.ID] = r.Exact
	}
	want := map[string]bool{"a1": true, "a2": true, "r1": false}
	for id, w := range want {
		if exact[id] != w {
			t.Errorf("record %s Exact = %v; want %v", id, exact[id], w)
		}
	}
}

func TestParsePageOutsideMainIsNotExact(t *testing.T) {
	body := page("1 Angebot",
		`<div class="ListPage_main__abc">`+article("a1", "")+`</div>`+
			`<aside>`+article("x1", "")+`</aside>`)

	result, err := ParsePage(body, testBase, "Volkswagen", "T5")
	if err != nil {
		t.Fatalf("ParsePage: %v", err)
	}
	for _, r := range result.Records {
		if r.ID == "x1" && r.Exact {
			t.Error("article outside the main section should not be exact")
		}
	}
}

func TestParsePageZeroResultsIsEmpty(t *testing.T) {
	// The marketplace still renders recommendations below a zero-result header.
	body := page("0 Angebote für Volkswagen T5",
		`<section class="Recommendations_recommendations__x">`+article("r1", "")+`</section>`)

	result, err := ParsePage(body, testBase, "Volkswagen", "T5")
	if err != nil {
		t.Fatalf("ParsePage: %v", err)
	}
	if len(result.Records) != 0 || result.Total != 0 {
		t.Errorf("got %d records, total %d; want empty page", len(result.Records), result.Total)
	}
}

func TestParsePageMarkupDriftIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"no header no listings", page("", `<div class="something-new"></div>`)},
		{"header without listings", page("12 Angebote", `<div class="grid"></div>`)},
		{"only recommendations", page("3 Angebote",
			`<section class="Recommendations_recommendations__x">`+article("r1", "")+`</section>`)},
	}

	for _, tt := range tests {
		_, err := ParsePage(tt.body, testBase, "Volkswagen", "T5")
		var fe *FetchError
		if !errors.As(err, &fe) {
			t.Errorf("%s: err = %v; want *FetchError", tt.name, err)
			continue
		}
		if fe.Kind != Permanent {
			t.Errorf("%s: kind = %s; want permanent", tt.name, fe.Kind)
		}
	}
}

func TestParsePageTruncatesBeyondHeaderCount(t *testing.T) {
	body := page("1 Angebot",
		`<div class="ListPage_main__abc">`+article("a1", "")+article("a2", "")+`</div>`)

	result, err := ParsePage(body, testBase, "Volkswagen", "T5")
	if err != nil {
		t.Fatalf("ParsePage: %v", err)
	}
	if !result.Records[0].Exact {
		t.Error("first article should be exact")
	}
	if result.Records[1].Exact {
		t.Error("article beyond the header count should not be exact")
	}
}

func TestParsePageThousandsSeparator(t *testing.T) {
	body := page("5.808 Angebote für Volkswagen", `<div class="ListPage_main__abc">`+article("a1", "")+`</div>`)

	result, err := ParsePage(body, testBase, "Volkswagen", "")
	if err != nil {
		t.Fatalf("ParsePage: %v", err)
	}
	if result.Total != 5808 {
		t.Errorf("Total = %d; want 5808", result.Total)
	}
}

func TestParsePageExtractsAttributes(t *testing.T) {
	body := page("1 Angebot", `<div class="ListPage_main__abc">`+article("abc-123", "")+`</div>`)

	result, err := ParsePage(body, testBase, "Volkswagen", "T5")
	if err != nil {
		t.Fatalf("ParsePage: %v", err)
	}
	r := result.Records[0]

	if r.ID != "abc-123" {
		t.Errorf("ID = %q; want abc-123", r.ID)
	}
	if r.URL != testBase+"/angebote/vw-t5-abc-123" {
		t.Errorf("URL = %q", r.URL)
	}
	if r.Price != 15990 {
		t.Errorf("Price = %d; want 15990", r.Price)
	}
	if r.Kilometers != 120000 {
		t.Errorf("Kilometers = %d; want 120000", r.Kilometers)
	}
	if r.Year != 2019 {
		t.Errorf("Year = %d; want 2019", r.Year)
	}
	if r.Location != "Berlin 10115" {
		t.Errorf("Location = %q; want %q", r.Location, "Berlin 10115")
	}
	if r.Make != "Volkswagen" || r.Model != "T5" {
		t.Errorf("Make/Model = %q/%q", r.Make, r.Model)
	}
}

func TestParsePageGUIDFallback(t *testing.T) {
	body := page("1 Angebot", `<div class="ListPage_main__abc">`+
		`<article data-guid="guid-9"><a href="https://other.example/x"><h2>Golf</h2></a></article></div>`)

	result, err := ParsePage(body, testBase, "Volkswagen", "Golf")
	if err != nil {
		t.Fatalf("ParsePage: %v", err)
	}
	r := result.Records[0]
	if r.ID != "guid-9" {
		t.Errorf("ID = %q; want guid-9", r.ID)
	}
	if r.URL != "https://other.example/x" {
		t.Errorf("URL = %q; absolute links must be kept", r.URL)
	}
	if r.Price != 0 || r.Year != 0 {
		t.Errorf("missing attributes should be zero, got price %d year %d", r.Price, r.Year)
	}
}

func TestRegistrationYear(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"05-2019", 2019},
		{"11/2008", 2008},
		{"2021", 2021},
		{"new", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := registrationYear(tt.raw); got != tt.want {
			t.Errorf("registrationYear(%q) = %d; want %d", tt.raw, got, tt.want)
		}
	}
}
