// Package refresh turns live-update signals into toasts, a notification
// badge and a debounced invalidation of the active view.
package refresh

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zsprackett/chargewatch/internal/clock"
	"github.com/zsprackett/chargewatch/internal/events"
	"github.com/zsprackett/chargewatch/internal/metrics"
	"github.com/zsprackett/chargewatch/internal/realtime"
)

// DefaultDelay is how long the dispatcher waits after the last event before
// invalidating the view.
const DefaultDelay = 3 * time.Second

const ConnectedMessage = "Connected to real-time updates"

// Toast is a short user-facing notice.
type Toast struct {
	Message string
	// Kind is empty for connectivity toasts.
	Kind events.Kind
	At   time.Time
}

type ToastSink interface {
	Toast(Toast)
}

// Sinks delivers each toast to every sink in order.
type Sinks []ToastSink

func (s Sinks) Toast(t Toast) {
	for _, sink := range s {
		if sink != nil {
			sink.Toast(t)
		}
	}
}

// Invalidator reloads whatever view is active.
type Invalidator interface {
	Invalidate()
}

// InvalidatorFunc adapts a function to Invalidator.
type InvalidatorFunc func()

func (f InvalidatorFunc) Invalidate() { f() }

// History persists domain events for the notification list.
type History interface {
	RecordEvent(ev events.DomainEvent) error
	MarkAllRead() error
}

type Config struct {
	Delay   time.Duration
	Sink    ToastSink
	View    Invalidator
	History History
}

// Dispatcher implements realtime.Subscriber. It keeps at most one pending
// invalidation; a later event replaces it.
type Dispatcher struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	count   int
	pending clock.Timer
	seq     uint64
	stopped bool
}

func New(cfg Config, clk clock.Clock, logger *slog.Logger) *Dispatcher {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	metrics.UnreadNotifications.Set(0)
	return &Dispatcher{
		cfg:    cfg,
		clock:  clk,
		logger: logger.With("component", "refresh"),
	}
}

func (d *Dispatcher) HandleSignal(sig realtime.Signal) {
	switch sig.Kind {
	case realtime.SignalEvent:
		if sig.Event != nil {
			d.handleEvent(*sig.Event)
		}
	case realtime.SignalWelcome:
		d.toast(Toast{Message: ConnectedMessage, At: d.clock.Now()})
	}
}

func (d *Dispatcher) handleEvent(ev events.DomainEvent) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.count++
	count := d.count
	d.scheduleLocked()
	d.mu.Unlock()

	metrics.UnreadNotifications.Set(float64(count))
	d.logger.Info("session event", "kind", string(ev.Kind), "station", ev.SubjectID, "unread", count)

	if d.cfg.History != nil {
		if err := d.cfg.History.RecordEvent(ev); err != nil {
			d.logger.Warn("record notification", "err", err)
		}
	}
	if msg, ok := Message(ev); ok {
		d.toast(Toast{Message: msg, Kind: ev.Kind, At: ev.Timestamp})
	}
}

// Message returns the toast text for ev, or false for kinds that refresh
// silently.
func Message(ev events.DomainEvent) (string, bool) {
	actor := ev.ActorLabel
	if actor == "" {
		actor = "A user"
	}
	switch ev.Kind {
	case events.KindSessionStarted:
		return fmt.Sprintf("🔌 %s started charging - Refreshing view...", actor), true
	case events.KindSessionStopped:
		return fmt.Sprintf("🛑 %s stopped charging - Refreshing view...", actor), true
	default:
		return "", false
	}
}

func (d *Dispatcher) scheduleLocked() {
	if d.pending != nil {
		d.pending.Stop()
	}
	d.seq++
	seq := d.seq
	d.pending = d.clock.AfterFunc(d.cfg.Delay, func() { d.fire(seq) })
}

func (d *Dispatcher) fire(seq uint64) {
	d.mu.Lock()
	if seq != d.seq || d.pending == nil || d.stopped {
		d.mu.Unlock()
		return
	}
	d.pending = nil
	d.mu.Unlock()

	metrics.ViewInvalidations.Inc()
	d.logger.Debug("invalidating view")
	if d.cfg.View != nil {
		d.cfg.View.Invalidate()
	}
}

func (d *Dispatcher) toast(t Toast) {
	if d.cfg.Sink != nil {
		d.cfg.Sink.Toast(t)
	}
}

// Acknowledge clears the notification badge.
func (d *Dispatcher) Acknowledge() {
	d.mu.Lock()
	d.count = 0
	d.mu.Unlock()
	metrics.UnreadNotifications.Set(0)

	if d.cfg.History != nil {
		if err := d.cfg.History.MarkAllRead(); err != nil {
			d.logger.Warn("mark notifications read", "err", err)
		}
	}
}

// Count returns the number of unacknowledged events.
func (d *Dispatcher) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// Pending reports whether an invalidation is scheduled.
func (d *Dispatcher) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Stop cancels the pending invalidation and ignores further events.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
}
