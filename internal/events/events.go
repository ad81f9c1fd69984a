// Package events decodes frames from the charging-updates stream and
// classifies them into housekeeping messages and domain events.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frame types exchanged on the stream.
const (
	TypeWelcome               = "welcome"
	TypeConnectionEstablished = "connection_established"
	TypeHeartbeat             = "heartbeat"
	TypeHeartbeatAck          = "heartbeat_ack"
	TypeEcho                  = "echo"
	TypeSessionStarted        = "session_started"
	TypeSessionStopped        = "session_stopped"
	TypeSessionUpdated        = "session_updated"
)

// sessionMarker identifies domain frames by substring of their type.
const sessionMarker = "session_"

// ErrMalformedFrame is returned when a frame is not a JSON object with a
// string type field.
var ErrMalformedFrame = errors.New("malformed frame")

// Kind is the closed set of domain event kinds.
type Kind string

const (
	KindSessionStarted Kind = "session_started"
	KindSessionStopped Kind = "session_stopped"
	KindSessionUpdated Kind = "session_updated"
	// KindSessionOther covers session_* types the client has no special
	// handling for.
	KindSessionOther Kind = "session_other"
)

// DomainEvent is a server-side state change. It is never mutated after
// Classify returns it.
type DomainEvent struct {
	Kind       Kind
	Type       string
	SubjectID  string
	SessionID  string
	ActorLabel string
	Timestamp  time.Time
}

// Identifier is a station or session id that the server may encode either
// as a JSON number or a JSON string.
type Identifier string

func (id *Identifier) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = Identifier(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = Identifier(n.String())
	return nil
}

func (id Identifier) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	// Only canonical integers go out bare; "007" or "+5" stay strings.
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Message is one decoded frame variant.
type Message interface {
	FrameType() string
}

type Welcome struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

type HeartbeatAck struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp,omitempty"`
}

type Echo struct {
	Type string `json:"type"`
}

// Session is the payload of every session_* frame.
type Session struct {
	Type      string     `json:"type"`
	UserName  string     `json:"user_name,omitempty"`
	UserID    Identifier `json:"user_id,omitempty"`
	StationID Identifier `json:"station_id,omitempty"`
	SessionID Identifier `json:"session_id,omitempty"`
	Timestamp string     `json:"timestamp,omitempty"`
}

// Unknown is any frame type the client does not understand.
type Unknown struct {
	Type string
}

func (m Welcome) FrameType() string      { return m.Type }
func (m HeartbeatAck) FrameType() string { return m.Type }
func (m Echo) FrameType() string         { return m.Type }
func (m Session) FrameType() string      { return m.Type }
func (m Unknown) FrameType() string      { return m.Type }

type envelope struct {
	Type *string `json:"type"`
}

// Decode reads the type discriminator and decodes raw into the matching
// variant. Unrecognized types decode to Unknown.
func Decode(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == nil {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	t := *env.Type
	var (
		msg Message
		err error
	)
	switch {
	case t == TypeWelcome || t == TypeConnectionEstablished:
		var m Welcome
		err = json.Unmarshal(raw, &m)
		msg = m
	case t == TypeHeartbeatAck:
		var m HeartbeatAck
		err = json.Unmarshal(raw, &m)
		msg = m
	case t == TypeEcho:
		msg = Echo{Type: t}
	case strings.Contains(t, sessionMarker):
		var m Session
		err = json.Unmarshal(raw, &m)
		msg = m
	default:
		msg = Unknown{Type: t}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, t, err)
	}
	return msg, nil
}

// Class tells the caller what to do with a frame.
type Class int

const (
	// ClassIgnored frames are dropped without any effect.
	ClassIgnored Class = iota
	// ClassHousekeeping frames carry connection bookkeeping.
	ClassHousekeeping
	// ClassDomain frames carry a DomainEvent.
	ClassDomain
)

func (c Class) String() string {
	switch c {
	case ClassHousekeeping:
		return "housekeeping"
	case ClassDomain:
		return "domain"
	default:
		return "ignored"
	}
}

// Classified is the result of Classify.
type Classified struct {
	Class Class
	Type  string
	// Welcome is set for welcome and connection_established frames.
	Welcome bool
	// HeartbeatAck is set for heartbeat_ack frames.
	HeartbeatAck bool
	Event        *DomainEvent
}

// Classify decodes raw and sorts it. now stamps domain events whose payload
// carries no usable timestamp.
func Classify(raw []byte, now time.Time) (Classified, error) {
	msg, err := Decode(raw)
	if err != nil {
		return Classified{}, err
	}

	switch m := msg.(type) {
	case Welcome:
		return Classified{Class: ClassHousekeeping, Type: m.Type, Welcome: true}, nil
	case HeartbeatAck:
		return Classified{Class: ClassHousekeeping, Type: m.Type, HeartbeatAck: true}, nil
	case Echo:
		return Classified{Class: ClassHousekeeping, Type: m.Type}, nil
	case Session:
		ev := &DomainEvent{
			Kind:       kindOf(m.Type),
			Type:       m.Type,
			SubjectID:  string(m.StationID),
			SessionID:  string(m.SessionID),
			ActorLabel: m.UserName,
			Timestamp:  ParseTimestamp(m.Timestamp, now),
		}
		return Classified{Class: ClassDomain, Type: m.Type, Event: ev}, nil
	default:
		return Classified{Class: ClassIgnored, Type: msg.FrameType()}, nil
	}
}

func kindOf(t string) Kind {
	switch t {
	case TypeSessionStarted:
		return KindSessionStarted
	case TypeSessionStopped:
		return KindSessionStopped
	case TypeSessionUpdated:
		return KindSessionUpdated
	default:
		return KindSessionOther
	}
}

// Server timestamps come either as RFC3339 or as a naive ISO-8601 UTC value.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// ParseTimestamp parses a server timestamp, returning fallback when s is
// empty or unparseable.
func ParseTimestamp(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return fallback
}

// Heartbeat is the outbound keepalive frame.
type Heartbeat struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// HeartbeatFrame encodes a heartbeat stamped with now.
func HeartbeatFrame(now time.Time) ([]byte, error) {
	return json.Marshal(Heartbeat{
		Type:      TypeHeartbeat,
		Timestamp: now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}
