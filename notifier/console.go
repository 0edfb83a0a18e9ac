package notifier

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"autosearch/models"
)

// Console writes notifications as plain text, for local runs without a bot.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Notify(_ context.Context, result *models.ReconcileResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range result.Added {
		if err := c.print("NEW", PlainText(FormatListing(l))); err != nil {
			return err
		}
	}
	if len(result.Removed) > 0 {
		return c.print("REMOVED", PlainText(FormatRemoved(result.Search, result.Removed)))
	}
	return nil
}

func (c *Console) NotifyError(_ context.Context, search, summary string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.print("ERROR", PlainText(FormatError(search, summary, time.Now())))
}

func (c *Console) print(label, msg string) error {
	sep := strings.Repeat("─", 40)
	_, err := fmt.Fprintf(c.w, "%s %s\n%s\n%s\n", sep, label, msg, sep)
	return err
}
