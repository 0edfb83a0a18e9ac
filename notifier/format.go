package notifier

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"autosearch/models"
)

// maxRemovedLines caps the removed-listings summary well below Telegram's
// 4096 character message limit.
const maxRemovedLines = 30

var (
	anchorRegexp = regexp.MustCompile(`<a href="([^"]*)">([^<]*)</a>`)
	tagRegexp    = regexp.MustCompile(`<[^>]+>`)
)

// FormatListing renders a new listing as a Telegram HTML message.
func FormatListing(l models.Listing) string {
	heading := strings.TrimSpace(l.Make + " " + l.Model)
	title := strings.TrimSpace(l.Title)
	if title == "" {
		title = heading
	}

	year := "Year not available"
	if l.Year > 0 {
		year = strconv.Itoa(l.Year)
	}
	km := "Mileage not available"
	if l.Kilometers > 0 {
		km = thousands(l.Kilometers) + " km"
	}
	price := "Price not available"
	if l.Price > 0 {
		price = "€" + thousands(l.Price)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n%s\n\n%s\n%s\n%s", esc(heading), esc(title), year, km, price)
	if loc := strings.TrimSpace(l.Location); showLocation(loc) {
		fmt.Fprintf(&b, "\nLocation: %s", esc(loc))
	}
	if l.URL != "" {
		fmt.Fprintf(&b, "\n\n<a href=\"%s\">View Details</a>", esc(l.URL))
	}
	return b.String()
}

// FormatRemoved renders one summary message for the listings that
// disappeared from a search in a cycle.
func FormatRemoved(search string, removed []models.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>No longer listed</b> (%s)\n", esc(search))
	for i, l := range removed {
		if i == maxRemovedLines {
			fmt.Fprintf(&b, "\n… and %d more", len(removed)-maxRemovedLines)
			break
		}
		name := strings.TrimSpace(l.Make + " " + l.Model)
		line := name
		if l.Title != "" && l.Title != name {
			line += " - " + l.Title
		}
		if l.Price > 0 {
			line += " (€" + thousands(l.Price) + ")"
		}
		if l.URL != "" {
			fmt.Fprintf(&b, "\n• <a href=\"%s\">%s</a>", esc(l.URL), esc(line))
		} else {
			fmt.Fprintf(&b, "\n• %s", esc(line))
		}
	}
	return b.String()
}

// FormatError renders an operational failure of a search.
func FormatError(search, summary string, at time.Time) string {
	return fmt.Sprintf("<b>Error Alert</b>\n\nAn error occurred during the search process:\n\nSearch: %s\n%s\n\n%s",
		esc(search), esc(summary), at.Format("2006-01-02 15:04"))
}

// PlainText converts a formatted message for transports without HTML
// support. Links become their text followed by the target.
func PlainText(msg string) string {
	msg = anchorRegexp.ReplaceAllStringFunc(msg, func(a string) string {
		m := anchorRegexp.FindStringSubmatch(a)
		if m[2] == "View Details" {
			return m[1]
		}
		return m[2] + " " + m[1]
	})
	return html.UnescapeString(tagRegexp.ReplaceAllString(msg, ""))
}

// showLocation hides locations that are only a postal code.
func showLocation(loc string) bool {
	if loc == "" || len(loc) <= 5 {
		return false
	}
	_, err := strconv.Atoi(loc)
	return err != nil
}

func thousands(n int) string {
	if n < 0 {
		return "-" + thousands(-n)
	}
	s := strconv.Itoa(n)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func esc(s string) string { return html.EscapeString(s) }
