package autoscout

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"

	"autosearch/utils"
)

// BrowserSource renders result pages in headless Chrome. Use it when the
// marketplace only serves the listing markup to JavaScript-capable clients.
type BrowserSource struct {
	logger  *utils.Logger
	timeout time.Duration

	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	browserCtx  context.Context
	cancelTab   context.CancelFunc
}

// NewBrowserSource starts one browser process shared by every fetch. Each
// Get opens its own tab. Close must be called to stop the browser.
func NewBrowserSource(chromeBin string, timeout time.Duration, logger *utils.Logger) (*BrowserSource, error) {
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	logger.Info("[browser] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)

	// Suppress chromedp log noise
	browserCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	// Start the browser now so a missing binary fails at startup.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("browser: start: %w", err)
	}

	return &BrowserSource{
		logger:      logger,
		timeout:     timeout,
		allocCtx:    allocCtx,
		cancelAlloc: cancelAlloc,
		browserCtx:  browserCtx,
		cancelTab:   cancelTab,
	}, nil
}

// Get navigates a fresh tab to url and returns the rendered document. Every
// browser failure is transient; markup problems surface later in ParsePage.
func (b *BrowserSource) Get(ctx context.Context, url string) ([]byte, error) {
	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	defer cancel()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTimeout()

	// Propagate cancellation of the caller's context to the tab.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, transientf(url, 0, err, "browser render")
	}
	if html == "" {
		return nil, transientf(url, 0, nil, "browser returned an empty document")
	}
	return []byte(html), nil
}

// Close shuts the browser down.
func (b *BrowserSource) Close() {
	b.cancelTab()
	b.cancelAlloc()
}

var _ PageSource = (*BrowserSource)(nil)

func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
