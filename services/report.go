package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"autosearch/models"
	"autosearch/utils"
)

const (
	reportNewest = 5
	reportOldest = 3
)

// ReportService summarizes the persisted snapshots for the check mode.
type ReportService struct {
	logger *utils.Logger
}

func NewReportService(logger *utils.Logger) *ReportService {
	return &ReportService{logger: logger}
}

func (s *ReportService) Generate(listings []models.Listing) *models.StatusReport {
	report := &models.StatusReport{
		BySearch:    make(map[string]int),
		ByMakeModel: make(map[string]int),
	}
	if len(listings) == 0 {
		return report
	}

	report.TotalListings = len(listings)
	for _, l := range listings {
		report.BySearch[l.Search]++
		report.ByMakeModel[strings.TrimSpace(l.Make+" "+l.Model)]++
	}

	sorted := make([]models.Listing, len(listings))
	copy(sorted, listings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FirstSeen.After(sorted[j].FirstSeen)
	})
	report.Newest = sorted[:min(reportNewest, len(sorted))]

	oldest := make([]models.Listing, 0, reportOldest)
	for i := len(sorted) - 1; i >= 0 && len(oldest) < reportOldest; i-- {
		oldest = append(oldest, sorted[i])
	}
	report.Oldest = oldest

	s.logger.Debug("[report] %d listings across %d search(es)", report.TotalListings, len(report.BySearch))
	return report
}

func (s *ReportService) Print(w io.Writer, r *models.StatusReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  AUTOSEARCH DATABASE STATUS\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "  Total listings : \033[1m%d\033[0m\n\n", r.TotalListings)
	if r.TotalListings == 0 {
		fmt.Fprintf(w, "  No listings stored\n")
		fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
		return
	}

	printCounts(w, "Listings by Search", thin, r.BySearch)
	printCounts(w, "Listings by Make/Model", thin, r.ByMakeModel)

	fmt.Fprintf(w, "\033[1;33m  Newest Listings\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	for i, l := range r.Newest {
		printListing(w, i+1, l)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Oldest Listings\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	for i, l := range r.Oldest {
		printListing(w, i+1, l)
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func printCounts(w io.Writer, title, thin string, counts map[string]int) {
	type keyCount struct {
		key   string
		count int
	}
	var kcs []keyCount
	for k, c := range counts {
		kcs = append(kcs, keyCount{k, c})
	}
	sort.Slice(kcs, func(i, j int) bool {
		if kcs[i].count != kcs[j].count {
			return kcs[i].count > kcs[j].count
		}
		return kcs[i].key < kcs[j].key
	})

	fmt.Fprintf(w, "\033[1;33m  %s\033[0m\n", title)
	fmt.Fprintf(w, "  %s\n", thin)
	for _, kc := range kcs {
		fmt.Fprintf(w, "  %-40s %d\n", truncate(kc.key, 38), kc.count)
	}
	fmt.Fprintln(w)
}

func printListing(w io.Writer, n int, l models.Listing) {
	fmt.Fprintf(w, "  \033[1m%d.\033[0m %s %s - %s\n", n, l.Make, l.Model, truncate(l.Title, 40))
	fmt.Fprintf(w, "     %s | first seen %s\n", l.URL, l.FirstSeen.Format("2006-01-02 15:04"))
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
