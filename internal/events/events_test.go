package events_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/zsprackett/chargewatch/internal/events"
)

var now = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func TestClassify_SessionStarted(t *testing.T) {
	got, err := events.Classify([]byte(`{"type":"session_started","user_name":"Ada","station_id":7,"session_id":"101"}`), now)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got.Class != events.ClassDomain {
		t.Fatalf("class: got %v want domain", got.Class)
	}
	want := &events.DomainEvent{
		Kind:       events.KindSessionStarted,
		Type:       "session_started",
		SubjectID:  "7",
		SessionID:  "101",
		ActorLabel: "Ada",
		Timestamp:  now,
	}
	if diff := cmp.Diff(want, got.Event); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestClassify_SessionKinds(t *testing.T) {
	cases := map[string]events.Kind{
		`{"type":"session_stopped","user_name":"Bo","station_id":"S-2"}`: events.KindSessionStopped,
		`{"type":"session_updated","station_id":3}`:                      events.KindSessionUpdated,
		`{"type":"charging_session_paused"}`:                             events.KindSessionOther,
	}
	for raw, kind := range cases {
		got, err := events.Classify([]byte(raw), now)
		if err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		if got.Event == nil || got.Event.Kind != kind {
			t.Errorf("%s: got %+v want kind %s", raw, got.Event, kind)
		}
	}
}

func TestClassify_Housekeeping(t *testing.T) {
	for _, raw := range []string{
		`{"type":"welcome","message":"hi"}`,
		`{"type":"connection_established"}`,
		`{"type":"heartbeat_ack","timestamp":"2026-03-01T09:30:00Z"}`,
		`{"type":"echo","data":{"x":1}}`,
	} {
		got, err := events.Classify([]byte(raw), now)
		if err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		if got.Class != events.ClassHousekeeping {
			t.Errorf("%s: class %v want housekeeping", raw, got.Class)
		}
		if got.Event != nil {
			t.Errorf("%s: unexpected domain event", raw)
		}
	}

	ack, _ := events.Classify([]byte(`{"type":"heartbeat_ack"}`), now)
	if !ack.HeartbeatAck || ack.Welcome {
		t.Errorf("heartbeat_ack flags: %+v", ack)
	}
	welcome, _ := events.Classify([]byte(`{"type":"connection_established"}`), now)
	if !welcome.Welcome {
		t.Error("connection_established should be flagged as welcome")
	}
}

func TestClassify_UnknownTypeIgnored(t *testing.T) {
	got, err := events.Classify([]byte(`{"type":"station_created","id":4}`), now)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got.Class != events.ClassIgnored {
		t.Errorf("class: got %v want ignored", got.Class)
	}
}

func TestClassify_Malformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"user_name":"Ada"}`,
		`[1,2,3]`,
		`{"type":"session_started","station_id":true}`,
	} {
		_, err := events.Classify([]byte(raw), now)
		if !errors.Is(err, events.ErrMalformedFrame) {
			t.Errorf("%s: expected ErrMalformedFrame, got %v", raw, err)
		}
	}
}

func TestClassify_PayloadTimestamp(t *testing.T) {
	got, err := events.Classify([]byte(`{"type":"session_stopped","timestamp":"2026-02-28T18:00:01.250000"}`), now)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, 2, 28, 18, 0, 1, 250000000, time.UTC)
	if !got.Event.Timestamp.Equal(want) {
		t.Errorf("timestamp: got %v want %v", got.Event.Timestamp, want)
	}
}

func TestIdentifier_RoundTrip(t *testing.T) {
	out, err := json.Marshal(events.Session{Type: "session_started", StationID: "7", SessionID: "abc"})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"session_started","station_id":7,"session_id":"abc"}`
	if string(out) != want {
		t.Errorf("got %s want %s", out, want)
	}
}

func TestIdentifier_NonCanonicalIntegersStayStrings(t *testing.T) {
	cases := map[events.Identifier]string{
		"7":   `7`,
		"-3":  `-3`,
		"007": `"007"`,
		"+5":  `"+5"`,
		"":    `null`,
	}
	for id, want := range cases {
		out, err := json.Marshal(id)
		if err != nil {
			t.Errorf("%q: %v", id, err)
			continue
		}
		if string(out) != want {
			t.Errorf("%q: got %s want %s", id, out, want)
		}
		var back events.Identifier
		if err := json.Unmarshal(out, &back); err != nil {
			t.Errorf("%q: unmarshal: %v", id, err)
		}
		if back != id {
			t.Errorf("%q: round trip gave %q", id, back)
		}
	}
}

func TestHeartbeatFrame(t *testing.T) {
	raw, err := events.HeartbeatFrame(now)
	if err != nil {
		t.Fatal(err)
	}
	var hb map[string]string
	if err := json.Unmarshal(raw, &hb); err != nil {
		t.Fatal(err)
	}
	if hb["type"] != "heartbeat" {
		t.Errorf("type: got %q", hb["type"])
	}
	if hb["timestamp"] != "2026-03-01T09:30:00.000Z" {
		t.Errorf("timestamp: got %q", hb["timestamp"])
	}
}
