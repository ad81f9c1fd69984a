// Package realtime maintains the single live connection to the platform's
// charging-updates stream.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zsprackett/chargewatch/internal/events"
)

// Close codes with meaning to the manager.
const (
	// CloseNormalClosure means the closure was intentional; no reconnect follows.
	CloseNormalClosure = 1000
	// CloseAbnormalClosure is reported when the transport dropped without a
	// close frame.
	CloseAbnormalClosure = 1006
)

var (
	// ErrNoCredentials is returned by Connect when no bearer token is available.
	ErrNoCredentials = errors.New("realtime: no credentials")
	// ErrHandshake wraps a failed dial.
	ErrHandshake = errors.New("realtime: handshake failed")
	// ErrStopped is returned by Connect after Stop.
	ErrStopped = errors.New("realtime: manager stopped")
)

// CloseError reports a closure of the transport with a close code.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("connection closed: code %d", e.Code)
	}
	return fmt.Sprintf("connection closed: code %d (%s)", e.Code, e.Reason)
}

// closeCode returns the close code carried by err, or CloseAbnormalClosure
// when err is a bare transport error.
func closeCode(err error) int {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CloseAbnormalClosure
}

// Conn is one established transport session carrying text frames.
type Conn interface {
	// ReadMessage blocks until the next frame arrives. A closure is reported
	// as a *CloseError; any other error is a transport failure.
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	// Close sends a close frame with code and reason and releases the transport.
	Close(code int, reason string) error
}

// Dialer establishes a Conn authenticated with token.
type Dialer interface {
	Dial(ctx context.Context, url, token string) (Conn, error)
}

// TokenProvider returns the current bearer token, or false when the user is
// not signed in.
type TokenProvider interface {
	Token() (string, bool)
}

// State is the lifecycle state of the connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateReconnecting
)

var stateNames = []string{"idle", "connecting", "open", "closing", "reconnecting"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Status is a snapshot of the connection.
type Status struct {
	State            State
	LastOpenedAt     time.Time
	LastError        error
	LastHeartbeatAck time.Time
	HeartbeatActive  bool
	ReconnectPending bool
}

// SignalKind enumerates what subscribers are told.
type SignalKind int

const (
	SignalConnected SignalKind = iota
	SignalDisconnected
	SignalEvent
	// SignalWelcome is sent once per connection when the server confirms
	// the subscription.
	SignalWelcome
)

func (k SignalKind) String() string {
	switch k {
	case SignalConnected:
		return "connected"
	case SignalDisconnected:
		return "disconnected"
	case SignalEvent:
		return "event"
	case SignalWelcome:
		return "welcome"
	default:
		return "unknown"
	}
}

// Signal is delivered to every Subscriber.
type Signal struct {
	Kind  SignalKind
	Event *events.DomainEvent
	Err   error
}

// Subscriber receives signals from the Manager. HandleSignal is called
// without the manager's lock held but must not call back into the Manager
// synchronously.
type Subscriber interface {
	HandleSignal(Signal)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(Signal)

func (f SubscriberFunc) HandleSignal(s Signal) { f(s) }
