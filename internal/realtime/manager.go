package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zsprackett/chargewatch/internal/clock"
	"github.com/zsprackett/chargewatch/internal/events"
	"github.com/zsprackett/chargewatch/internal/metrics"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultReconnectDelay    = 5 * time.Second
)

type Config struct {
	URL               string
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
}

// Manager owns at most one live Conn and at most one pending reconnect.
// Every transition happens under mu; callbacks from timers and reader
// goroutines carry the generation they were started for and are dropped
// once the generation moves on.
type Manager struct {
	cfg    Config
	tokens TokenProvider
	dialer Dialer
	clock  clock.Clock
	logger *slog.Logger

	mu           sync.Mutex
	state        State
	gen          uint64
	conn         Conn
	heartbeat    clock.Timer
	reconnect    clock.Timer
	reconnectSeq uint64
	welcomed     bool
	lastOpenedAt time.Time
	lastError    error
	lastAck      time.Time
	stopped      bool

	// emitMu is taken before mu is released so signals reach subscribers
	// in transition order.
	emitMu  sync.Mutex
	subMu   sync.Mutex
	subs    []subscription
	nextSub int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, tokens TokenProvider, dialer Dialer, clk clock.Clock, logger *slog.Logger) *Manager {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:    cfg,
		tokens: tokens,
		dialer: dialer,
		clock:  clk,
		logger: logger.With("component", "realtime"),
		ctx:    ctx,
		cancel: cancel,
	}
	metrics.SetConnectionState(StateIdle.String(), stateNames)
	return m
}

type subscription struct {
	id int
	s  Subscriber
}

// Subscribe registers s and returns a function that removes it. Signals
// reach subscribers in registration order.
func (m *Manager) Subscribe(s Subscriber) func() {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs = append(m.subs, subscription{id: id, s: s})
	m.subMu.Unlock()
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		for i, sub := range m.subs {
			if sub.id == id {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// Start opens the connection. It is Connect under its lifecycle name.
func (m *Manager) Start() error {
	return m.Connect()
}

// Stop disconnects, cancels any in-flight handshake and waits for every
// goroutine the manager started. The manager cannot be restarted.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()

	m.Disconnect()
	m.cancel()
	m.wg.Wait()
}

// Connect requests a connection. It is a no-op while connecting or open.
// In any other state it tears down what is left of the previous connection,
// including a pending reconnect, and dials at once.
func (m *Manager) Connect() error {
	if done, err := m.connectSkipped(); done {
		return err
	}

	// The provider may hit storage, so it is asked without mu held.
	token, ok := m.token()
	if !ok {
		m.logger.Warn("no credentials available, not connecting")
		return ErrNoCredentials
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	if m.state == StateConnecting || m.state == StateOpen {
		m.mu.Unlock()
		return nil
	}
	stale := m.teardownLocked()
	m.beginDialLocked(token)
	m.mu.Unlock()

	if stale != nil {
		closeQuietly(stale, "Reconnecting", m.logger)
	}
	return nil
}

// connectSkipped reports whether Connect has nothing to do.
func (m *Manager) connectSkipped() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return true, ErrStopped
	}
	if m.state == StateConnecting || m.state == StateOpen {
		m.logger.Debug("connect skipped", "state", m.state.String())
		return true, nil
	}
	return false, nil
}

// Resume reconnects if the manager is not connected or connecting. It is
// meant for a host regaining visibility.
func (m *Manager) Resume() error {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()
	switch state {
	case StateIdle, StateReconnecting:
		m.logger.Info("resuming live updates", "state", state.String())
		return m.Connect()
	default:
		return nil
	}
}

// Disconnect closes the connection with a normal closure and cancels every
// timer. No reconnection follows.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	prev := m.state
	conn := m.teardownLocked()
	gen := m.gen
	if conn != nil {
		m.setStateLocked(StateClosing)
	} else {
		m.setStateLocked(StateIdle)
	}
	m.mu.Unlock()

	if prev != StateIdle {
		m.logger.Info("disconnecting", "state", prev.String())
	}
	if conn != nil {
		closeQuietly(conn, "Manual disconnect", m.logger)
		m.mu.Lock()
		if m.gen == gen && m.state == StateClosing {
			m.setStateLocked(StateIdle)
		}
		m.mu.Unlock()
	}

	if prev == StateOpen || prev == StateConnecting {
		m.emit(Signal{Kind: SignalDisconnected})
	}
}

// Status returns a snapshot of the connection.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:            m.state,
		LastOpenedAt:     m.lastOpenedAt,
		LastError:        m.lastError,
		LastHeartbeatAck: m.lastAck,
		HeartbeatActive:  m.heartbeat != nil,
		ReconnectPending: m.reconnect != nil,
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// token must be called without mu held.
func (m *Manager) token() (string, bool) {
	if m.tokens == nil {
		return "", false
	}
	token, ok := m.tokens.Token()
	return token, ok && token != ""
}

// teardownLocked cancels both timers, retires the current generation and
// detaches the connection, which the caller closes after releasing mu.
func (m *Manager) teardownLocked() Conn {
	m.stopHeartbeatLocked()
	m.cancelReconnectLocked()
	m.gen++
	conn := m.conn
	m.conn = nil
	return conn
}

func (m *Manager) beginDialLocked(token string) {
	m.gen++
	gen := m.gen
	m.setStateLocked(StateConnecting)
	m.wg.Add(1)
	go m.dial(gen, token)
}

func (m *Manager) dial(gen uint64, token string) {
	defer m.wg.Done()

	m.logger.Info("connecting", "url", m.cfg.URL)
	conn, err := m.dialer.Dial(m.ctx, m.cfg.URL, token)
	metrics.ObserveDial(err == nil)

	m.mu.Lock()
	if gen != m.gen || m.state != StateConnecting {
		m.mu.Unlock()
		if conn != nil {
			closeQuietly(conn, "Superseded", m.logger)
		}
		return
	}
	if err != nil {
		m.lastError = fmt.Errorf("%w: %v", ErrHandshake, err)
		m.logger.Warn("handshake failed", "err", err)
		m.scheduleReconnectLocked()
		m.setStateLocked(StateReconnecting)
		sig := Signal{Kind: SignalDisconnected, Err: m.lastError}
		m.emitUnlock(sig)
		return
	}

	m.conn = conn
	m.lastOpenedAt = m.clock.Now()
	m.lastError = nil
	m.welcomed = false
	m.setStateLocked(StateOpen)
	m.armHeartbeatLocked(gen)
	m.wg.Add(1)
	m.logger.Info("connected")
	m.emitUnlock(Signal{Kind: SignalConnected})

	go m.read(gen, conn)
}

func (m *Manager) read(gen uint64, conn Conn) {
	defer m.wg.Done()
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			m.handleClosed(gen, conn, err)
			return
		}
		m.handleFrame(gen, raw)
	}
}

func (m *Manager) handleFrame(gen uint64, raw []byte) {
	frame, err := events.Classify(raw, m.clock.Now())
	if err != nil {
		metrics.ObserveFrame("malformed")
		m.logger.Warn("dropping malformed frame", "err", err, "bytes", len(raw))
		return
	}
	metrics.ObserveFrame(frame.Class.String())

	m.mu.Lock()
	if gen != m.gen || m.state != StateOpen {
		m.mu.Unlock()
		return
	}

	switch frame.Class {
	case events.ClassHousekeeping:
		switch {
		case frame.HeartbeatAck:
			m.lastAck = m.clock.Now()
			m.mu.Unlock()
			m.logger.Debug("heartbeat acknowledged")
		case frame.Welcome && !m.welcomed:
			m.welcomed = true
			m.logger.Info("subscription confirmed", "type", frame.Type)
			m.emitUnlock(Signal{Kind: SignalWelcome})
		default:
			m.mu.Unlock()
			m.logger.Debug("housekeeping frame", "type", frame.Type)
		}
	case events.ClassDomain:
		m.logger.Info("domain event",
			"type", frame.Type,
			"station", frame.Event.SubjectID,
			"actor", frame.Event.ActorLabel,
		)
		m.emitUnlock(Signal{Kind: SignalEvent, Event: frame.Event})
	default:
		m.mu.Unlock()
		m.logger.Debug("ignoring frame", "type", frame.Type)
	}
}

func (m *Manager) handleClosed(gen uint64, conn Conn, err error) {
	m.mu.Lock()
	if gen != m.gen {
		// Torn down on purpose; whoever retired the generation closes conn.
		m.mu.Unlock()
		return
	}
	m.stopHeartbeatLocked()
	m.conn = nil
	m.gen++

	code := closeCode(err)
	var sig Signal
	if code == CloseNormalClosure {
		m.logger.Info("connection closed normally", "err", err)
		m.setStateLocked(StateIdle)
		sig = Signal{Kind: SignalDisconnected}
	} else {
		m.lastError = err
		m.logger.Warn("connection lost", "code", code, "err", err)
		m.scheduleReconnectLocked()
		m.setStateLocked(StateReconnecting)
		sig = Signal{Kind: SignalDisconnected, Err: err}
	}
	m.emitUnlock(sig)

	closeQuietly(conn, "", m.logger)
}

func (m *Manager) armHeartbeatLocked(gen uint64) {
	m.heartbeat = m.clock.AfterFunc(m.cfg.HeartbeatInterval, func() {
		m.heartbeatTick(gen)
	})
}

func (m *Manager) heartbeatTick(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateOpen || m.heartbeat == nil {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.armHeartbeatLocked(gen)
	now := m.clock.Now()
	m.mu.Unlock()

	frame, err := events.HeartbeatFrame(now)
	if err == nil {
		err = conn.WriteMessage(frame)
	}
	metrics.ObserveHeartbeat(err)
	if err != nil {
		m.logger.Warn("heartbeat send failed", "err", err)
		return
	}
	m.logger.Debug("heartbeat sent")
}

func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeat != nil {
		m.heartbeat.Stop()
		m.heartbeat = nil
	}
}

// scheduleReconnectLocked arms the reconnect timer unless one is pending.
func (m *Manager) scheduleReconnectLocked() {
	if m.stopped || m.reconnect != nil {
		return
	}
	m.reconnectSeq++
	seq := m.reconnectSeq
	m.logger.Info("reconnect scheduled", "delay", m.cfg.ReconnectDelay.String())
	metrics.ReconnectsScheduled.Inc()
	m.reconnect = m.clock.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.reconnectFired(seq)
	})
}

func (m *Manager) cancelReconnectLocked() {
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
}

func (m *Manager) reconnectFired(seq uint64) {
	m.mu.Lock()
	live := seq == m.reconnectSeq && m.reconnect != nil
	m.mu.Unlock()
	if !live {
		return
	}
	token, ok := m.token()

	m.mu.Lock()
	defer m.mu.Unlock()
	// Connect or Disconnect may have consumed the timer meanwhile.
	if seq != m.reconnectSeq || m.reconnect == nil {
		return
	}
	m.reconnect = nil
	if m.stopped || m.state != StateReconnecting {
		return
	}
	if !ok {
		m.logger.Warn("no credentials available, giving up reconnect")
		m.setStateLocked(StateIdle)
		return
	}
	m.beginDialLocked(token)
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.logger.Debug("state change", "from", m.state.String(), "to", s.String())
	m.state = s
	metrics.SetConnectionState(s.String(), stateNames)
}

// emitUnlock releases mu and delivers sig, keeping delivery in transition
// order.
func (m *Manager) emitUnlock(sig Signal) {
	m.emitMu.Lock()
	m.mu.Unlock()
	defer m.emitMu.Unlock()
	m.deliver(sig)
}

func (m *Manager) emit(sig Signal) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	m.deliver(sig)
}

func (m *Manager) deliver(sig Signal) {
	m.subMu.Lock()
	subs := make([]Subscriber, len(m.subs))
	for i, sub := range m.subs {
		subs[i] = sub.s
	}
	m.subMu.Unlock()
	for _, s := range subs {
		s.HandleSignal(sig)
	}
}

func closeQuietly(conn Conn, reason string, logger *slog.Logger) {
	if reason == "" {
		reason = "Closed"
	}
	if err := conn.Close(CloseNormalClosure, reason); err != nil && !errors.Is(err, context.Canceled) {
		logger.Debug("close transport", "err", err)
	}
}
