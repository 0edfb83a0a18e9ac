package notifier

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"autosearch/models"
	"autosearch/utils"
)

func sampleListing() models.Listing {
	return models.Listing{
		ID: "a1", Search: "vans", Title: "Multivan <Highline>", Make: "VW", Model: "T5",
		Price: 15990, Year: 2012, Kilometers: 180000, Location: "Berlin 10115",
		URL: "https://www.autoscout24.de/angebote/a1?x=1&y=2",
	}
}

func TestFormatListing(t *testing.T) {
	msg := FormatListing(sampleListing())

	for _, want := range []string{
		"<b>VW T5</b>",
		"Multivan &lt;Highline&gt;",
		"2012",
		"180,000 km",
		"€15,990",
		"Location: Berlin 10115",
		`<a href="https://www.autoscout24.de/angebote/a1?x=1&amp;y=2">View Details</a>`,
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatListingFallbacks(t *testing.T) {
	msg := FormatListing(models.Listing{ID: "x", Make: "VW", Model: "T5", Location: "10115"})

	for _, want := range []string{"Year not available", "Mileage not available", "Price not available"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
	if strings.Contains(msg, "Location") {
		t.Error("bare postal code should not be shown as location")
	}
	if !strings.Contains(msg, "<b>VW T5</b>\nVW T5") {
		t.Errorf("empty title should fall back to make and model:\n%s", msg)
	}
}

func TestFormatRemovedCapsLines(t *testing.T) {
	var removed []models.Listing
	for i := 0; i < maxRemovedLines+5; i++ {
		removed = append(removed, models.Listing{ID: "id", Make: "VW", Model: "T5"})
	}
	msg := FormatRemoved("vans", removed)
	if got := strings.Count(msg, "•"); got != maxRemovedLines {
		t.Errorf("got %d lines; want %d", got, maxRemovedLines)
	}
	if !strings.Contains(msg, "and 5 more") {
		t.Errorf("missing overflow note:\n%s", msg)
	}
}

func TestFormatError(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	msg := FormatError("vans", "status 503 & retry", at)
	if !strings.HasPrefix(msg, "<b>Error Alert</b>") {
		t.Errorf("unexpected layout:\n%s", msg)
	}
	if !strings.Contains(msg, "status 503 &amp; retry") || !strings.HasSuffix(msg, "2024-05-01 09:30") {
		t.Errorf("unexpected content:\n%s", msg)
	}
}

func TestPlainText(t *testing.T) {
	got := PlainText(`<b>VW &amp; Co</b> <a href="https://x.test/?a=1&amp;b=2">View Details</a> <a href="https://y.test">Golf</a>`)
	want := "VW & Co https://x.test/?a=1&b=2 Golf https://y.test"
	if got != want {
		t.Errorf("PlainText = %q; want %q", got, want)
	}
}

func TestThousands(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0"}, {999, "999"}, {1000, "1,000"}, {15990, "15,990"}, {1234567, "1,234,567"},
	}
	for _, tt := range tests {
		if got := thousands(tt.in); got != tt.want {
			t.Errorf("thousands(%d) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

type sentMessage struct {
	ChatID    string
	Text      string
	ParseMode string
}

type botServer struct {
	mu       sync.Mutex
	requests []sentMessage
	// rejectHTML makes every HTML message fail like a Telegram parse error.
	rejectHTML bool
}

const getMeResponse = `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Auto","username":"autosearch_bot"}}`

func (b *botServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/botTOKEN/getMe":
			w.Write([]byte(getMeResponse))
			return
		case "/botTOKEN/sendMessage":
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		req := sentMessage{
			ChatID:    r.PostForm.Get("chat_id"),
			Text:      r.PostForm.Get("text"),
			ParseMode: r.PostForm.Get("parse_mode"),
		}
		b.mu.Lock()
		b.requests = append(b.requests, req)
		b.mu.Unlock()

		if b.rejectHTML && req.ParseMode == "HTML" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities"}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"}}}`))
	}
}

func newTestTelegram(t *testing.T, b *botServer, chats ...string) *Telegram {
	t.Helper()
	srv := httptest.NewServer(b.handler(t))
	t.Cleanup(srv.Close)
	tg, err := NewTelegram(srv.URL, "TOKEN", chats, time.Second, utils.NewLoggerTo(io.Discard, false))
	if err != nil {
		t.Fatalf("NewTelegram: %v", err)
	}
	return tg
}

func TestTelegramNotifyFansOut(t *testing.T) {
	b := &botServer{}
	tg := newTestTelegram(t, b, "1", "@channel")

	result := &models.ReconcileResult{
		Search:  "vans",
		Added:   []models.Listing{sampleListing(), {ID: "a2", Make: "VW", Model: "T5"}},
		Removed: []models.Listing{{ID: "old", Make: "VW", Model: "T5"}},
	}
	if err := tg.Notify(context.Background(), result); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	// 2 added + 1 removed summary, to 2 chats each.
	if len(b.requests) != 6 {
		t.Fatalf("got %d requests; want 6", len(b.requests))
	}
	chats := map[string]int{}
	for _, r := range b.requests {
		chats[r.ChatID]++
		if r.ParseMode != "HTML" {
			t.Errorf("parse mode = %q; want HTML", r.ParseMode)
		}
	}
	if chats["1"] != 3 || chats["@channel"] != 3 {
		t.Errorf("per-chat counts = %v", chats)
	}
	if !strings.Contains(b.requests[0].Text, "Multivan &lt;Highline&gt;") {
		t.Errorf("first message = %q", b.requests[0].Text)
	}
}

func TestTelegramFallsBackToPlainText(t *testing.T) {
	b := &botServer{rejectHTML: true}
	tg := newTestTelegram(t, b, "1")

	if err := tg.NotifyError(context.Background(), "vans", "boom"); err != nil {
		t.Fatalf("NotifyError: %v", err)
	}
	if len(b.requests) != 2 {
		t.Fatalf("got %d requests; want HTML attempt + plain retry", len(b.requests))
	}
	plain := b.requests[1]
	if plain.ParseMode != "" || strings.Contains(plain.Text, "<b>") {
		t.Errorf("fallback should be plain text, got %+v", plain)
	}
}

func TestTelegramReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/botTOKEN/getMe" {
			w.Write([]byte(getMeResponse))
			return
		}
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	}))
	defer srv.Close()

	tg, err := NewTelegram(srv.URL, "TOKEN", []string{"1"}, time.Second, utils.NewLoggerTo(io.Discard, false))
	if err != nil {
		t.Fatalf("NewTelegram: %v", err)
	}
	err = tg.NotifyError(context.Background(), "vans", "boom")
	if err == nil || !strings.Contains(err.Error(), "bot was blocked") {
		t.Errorf("err = %v; want the API description", err)
	}
}

func TestTelegramStopsOnCancelledContext(t *testing.T) {
	b := &botServer{}
	tg := newTestTelegram(t, b, "1", "2")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tg.NotifyError(ctx, "vans", "boom"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v; want context.Canceled", err)
	}
	if len(b.requests) != 0 {
		t.Errorf("got %d requests after cancellation", len(b.requests))
	}
}

func TestNewTelegramErrorOmitsToken(t *testing.T) {
	logger := utils.NewLoggerTo(io.Discard, false)
	_, err := NewTelegram("http://127.0.0.1:1", "SECRET", []string{"1"}, time.Second, logger)
	if err == nil {
		t.Fatal("expected connection error")
	}
	if strings.Contains(err.Error(), "SECRET") {
		t.Errorf("error leaks the bot token: %v", err)
	}
}

func TestNewTelegramRequiresCredentials(t *testing.T) {
	logger := utils.NewLoggerTo(io.Discard, false)
	if _, err := NewTelegram("http://x", "", []string{"1"}, time.Second, logger); err == nil {
		t.Error("expected error for missing token")
	}
	if _, err := NewTelegram("http://x", "t", nil, time.Second, logger); err == nil {
		t.Error("expected error for missing chat ids")
	}
	if _, err := NewTelegram("http://x", "t", []string{"my-chat"}, time.Second, logger); err == nil {
		t.Error("expected error for a chat that is neither numeric nor @channel")
	}
}

func TestConsoleAndMulti(t *testing.T) {
	var a, b bytes.Buffer
	m := Multi{NewConsole(&a), NewConsole(&b)}

	result := &models.ReconcileResult{Search: "vans", Added: []models.Listing{sampleListing()}}
	if err := m.Notify(context.Background(), result); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	for _, buf := range []*bytes.Buffer{&a, &b} {
		out := buf.String()
		if !strings.Contains(out, "NEW") || !strings.Contains(out, "Multivan <Highline>") {
			t.Errorf("unexpected console output:\n%s", out)
		}
	}
}
