package autoscout

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"autosearch/models"
	"autosearch/utils"
)

// PageSize is the number of listings the marketplace shows per results page.
const PageSize = 20

const maxBodyBytes = 16 << 20

// PageSource downloads the rendered HTML of a results page.
type PageSource interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Client fetches and parses AutoScout24 result pages for a FilterSpec.
type Client struct {
	baseURL  string
	source   PageSource
	throttle *utils.Throttle
	logger   *utils.Logger
}

// NewClient creates a Client. The throttle is shared by all searches so that
// requests to the marketplace stay spaced regardless of how many run at once.
func NewClient(baseURL string, source PageSource, throttle *utils.Throttle, logger *utils.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		source:   source,
		throttle: throttle,
		logger:   logger,
	}
}

// Fetch returns one page of results for one model of f. Any failure is a
// *FetchError; an empty successful page has no records and HasMore false.
func (c *Client) Fetch(ctx context.Context, f models.FilterSpec, model string, page int) (*models.ResultPage, error) {
	u := BuildSearchURL(c.baseURL, f, model, page)
	c.logger.Debug("[autoscout] GET %s", u)

	if c.throttle != nil {
		if err := c.throttle.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := c.source.Get(ctx, u)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var fe *FetchError
		if errors.As(err, &fe) {
			if fe.URL == "" {
				fe.URL = u
			}
			return nil, fe
		}
		return nil, transientf(u, 0, err, "request failed")
	}

	result, err := ParsePage(body, c.baseURL, f.Make, model)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			fe.URL = u
		}
		return nil, err
	}

	exact := 0
	for _, r := range result.Records {
		if r.Exact {
			exact++
		}
	}
	if result.Total >= 0 {
		result.HasMore = exact > 0 && result.Total > page*PageSize
	} else {
		result.HasMore = exact >= PageSize
	}

	c.logger.Debug("[autoscout] %s page %d: %d records (%d exact), total %d",
		f.Name, page, len(result.Records), exact, result.Total)
	return result, nil
}

// HTTPSource downloads pages with a plain HTTP client.
type HTTPSource struct {
	client    *http.Client
	userAgent string
}

// NewHTTPSource creates an HTTPSource with the given per-request timeout.
func NewHTTPSource(timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		client: &http.Client{Timeout: timeout},
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}

// Get performs the request and classifies failures: network errors, 429 and
// 5xx are transient, every other non-200 status is permanent.
func (s *HTTPSource) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, permanentf(url, 0, err, "build request")
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.8")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, transientf(url, 0, err, "request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, transientf(url, resp.StatusCode, nil, "rate limited")
	case resp.StatusCode >= 500:
		return nil, transientf(url, resp.StatusCode, nil, "upstream error")
	default:
		return nil, permanentf(url, resp.StatusCode, nil, "unexpected status")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, transientf(url, resp.StatusCode, err, "read body")
	}
	if len(body) == 0 {
		return nil, transientf(url, resp.StatusCode, nil, "empty body")
	}
	return body, nil
}

var _ PageSource = (*HTTPSource)(nil)
