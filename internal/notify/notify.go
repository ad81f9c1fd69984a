package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/zsprackett/chargewatch/internal/events"
	"github.com/zsprackett/chargewatch/internal/refresh"
)

const (
	appName   = "chargewatch"
	queueSize = 32
)

// Config holds notification settings.
type Config struct {
	Desktop bool   `json:"desktop"`
	Webhook string `json:"webhook"`
	NtfyURL string `json:"ntfy"`
}

// Notifier forwards toasts to the desktop and optional webhook and ntfy
// endpoints. Until Start is called it delivers inline.
type Notifier struct {
	cfg    Config
	logger *slog.Logger
	client *http.Client

	mu      sync.Mutex
	queue   chan refresh.Toast
	wg      sync.WaitGroup
	started bool
}

func New(cfg Config, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Enabled reports whether any sink is configured.
func (n *Notifier) Enabled() bool {
	return n.cfg.Desktop || n.cfg.Webhook != "" || n.cfg.NtfyURL != ""
}

// Start moves delivery to a background worker so slow endpoints do not
// hold up the caller.
func (n *Notifier) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return
	}
	n.started = true
	n.queue = make(chan refresh.Toast, queueSize)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for t := range n.queue {
			n.deliver(t)
		}
	}()
}

// Stop drains queued toasts and stops the worker.
func (n *Notifier) Stop() {
	n.mu.Lock()
	if !n.started {
		n.mu.Unlock()
		return
	}
	n.started = false
	close(n.queue)
	n.mu.Unlock()
	n.wg.Wait()
}

// Toast implements refresh.ToastSink.
func (n *Notifier) Toast(t refresh.Toast) {
	if !n.Enabled() {
		return
	}
	n.mu.Lock()
	if n.started {
		select {
		case n.queue <- t:
		default:
			n.logger.Warn("notification queue full, dropping toast", "message", t.Message)
		}
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()
	n.deliver(t)
}

func (n *Notifier) deliver(t refresh.Toast) {
	if n.cfg.Desktop {
		if err := beeep.Notify(appName, t.Message, ""); err != nil {
			n.logger.Warn("desktop notification failed", "err", err)
		}
	}
	if n.cfg.Webhook != "" {
		n.sendWebhook(t)
	}
	if n.cfg.NtfyURL != "" {
		n.sendNtfy(t)
	}
}

type webhookPayload struct {
	Message   string `json:"message"`
	Kind      string `json:"kind,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (n *Notifier) sendWebhook(t refresh.Toast) {
	at := t.At
	if at.IsZero() {
		at = time.Now()
	}
	payload := webhookPayload{
		Message:   t.Message,
		Kind:      string(t.Kind),
		Timestamp: at.UTC().Format(time.RFC3339),
	}
	if err := n.post(n.cfg.Webhook, payload); err != nil {
		n.logger.Warn("webhook notification failed", "err", err)
	}
}

type ntfyPayload struct {
	Topic    string   `json:"topic,omitempty"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Priority int      `json:"priority"`
	Tags     []string `json:"tags"`
}

func (n *Notifier) sendNtfy(t refresh.Toast) {
	payload := ntfyPayload{
		Title:    appName,
		Message:  t.Message,
		Priority: 3,
		Tags:     tags(t.Kind),
	}
	if err := n.post(n.cfg.NtfyURL, payload); err != nil {
		n.logger.Warn("ntfy notification failed", "err", err)
	}
}

func tags(k events.Kind) []string {
	switch k {
	case events.KindSessionStarted:
		return []string{"electric_plug"}
	case events.KindSessionStopped:
		return []string{"octagonal_sign"}
	case "":
		return []string{"satellite"}
	default:
		return []string{"zap"}
	}
}

func (n *Notifier) post(url string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	resp, err := n.client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s: %s", url, resp.Status)
	}
	return nil
}
