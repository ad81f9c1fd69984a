package notify_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zsprackett/chargewatch/internal/events"
	"github.com/zsprackett/chargewatch/internal/notify"
	"github.com/zsprackett/chargewatch/internal/refresh"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func started(actor string) refresh.Toast {
	msg, _ := refresh.Message(events.DomainEvent{Kind: events.KindSessionStarted, ActorLabel: actor})
	return refresh.Toast{
		Message: msg,
		Kind:    events.KindSessionStarted,
		At:      time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNtfyNotification(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	n := notify.New(notify.Config{NtfyURL: srv.URL + "/chargers"}, discardLogger())
	n.Toast(started("Ada"))

	if received == nil {
		t.Fatal("no POST received")
	}
	if received["title"] != "chargewatch" {
		t.Errorf("unexpected title: %v", received["title"])
	}
	if received["message"] != "🔌 Ada started charging - Refreshing view..." {
		t.Errorf("unexpected message: %v", received["message"])
	}
	tags, _ := received["tags"].([]any)
	if len(tags) != 1 || tags[0] != "electric_plug" {
		t.Errorf("unexpected tags: %v", received["tags"])
	}
}

func TestWebhookPayload(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type: %q", r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&received)
	}))
	defer srv.Close()

	n := notify.New(notify.Config{Webhook: srv.URL}, discardLogger())
	n.Toast(started("Ada"))

	if received["kind"] != "session_started" {
		t.Errorf("kind: got %q", received["kind"])
	}
	if received["timestamp"] != "2026-01-01T12:00:00Z" {
		t.Errorf("timestamp: got %q", received["timestamp"])
	}
}

func TestNotify_WebhookErrorLogged(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	// Nothing listens on port 1.
	n := notify.New(notify.Config{Webhook: "http://127.0.0.1:1"}, logger)
	n.Toast(started("Ada"))

	if !strings.Contains(buf.String(), "webhook") {
		t.Errorf("expected warn log mentioning webhook, got: %q", buf.String())
	}
}

func TestNotify_ServerErrorLogged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	n := notify.New(notify.Config{NtfyURL: srv.URL}, logger)
	n.Toast(started("Ada"))

	if !strings.Contains(buf.String(), "502") {
		t.Errorf("expected status in log, got: %q", buf.String())
	}
}

func TestNotify_Disabled(t *testing.T) {
	n := notify.New(notify.Config{}, discardLogger())
	if n.Enabled() {
		t.Error("empty config should be disabled")
	}
	// Must not panic or block.
	n.Toast(started("Ada"))
}

func TestNotify_BackgroundWorkerDrainsOnStop(t *testing.T) {
	var mu sync.Mutex
	var messages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p map[string]string
		json.NewDecoder(r.Body).Decode(&p)
		mu.Lock()
		messages = append(messages, p["message"])
		mu.Unlock()
	}))
	defer srv.Close()

	n := notify.New(notify.Config{Webhook: srv.URL}, discardLogger())
	n.Start()
	n.Toast(started("Ada"))
	n.Toast(refresh.Toast{Message: refresh.ConnectedMessage})
	n.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(messages) != 2 || messages[1] != refresh.ConnectedMessage {
		t.Errorf("unexpected deliveries: %q", messages)
	}
}
