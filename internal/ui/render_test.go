package ui

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/zsprackett/chargewatch/internal/api"
	"github.com/zsprackett/chargewatch/internal/db"
	"github.com/zsprackett/chargewatch/internal/realtime"
)

func TestBadge(t *testing.T) {
	cases := map[int]string{
		0:   "",
		-1:  "",
		3:   IconBell + " 3",
		250: IconBell + " 99+",
	}
	for n, want := range cases {
		if got := Badge(n); got != want {
			t.Errorf("Badge(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestHeaderText(t *testing.T) {
	got := headerText("Ada Lovelace", true, realtime.StateOpen, 2)
	for _, want := range []string{"Ada Lovelace", "operator", "Live", IconBell + " 2"} {
		if !strings.Contains(got, want) {
			t.Errorf("header %q missing %q", got, want)
		}
	}

	got = headerText("", false, realtime.StateReconnecting, 0)
	if strings.Contains(got, IconBell) {
		t.Errorf("no badge expected with zero unread: %q", got)
	}
	if !strings.Contains(got, "customer") || !strings.Contains(got, "Reconnecting") {
		t.Errorf("unexpected header: %q", got)
	}
}

func TestStatisticsText_Commas(t *testing.T) {
	got := statisticsText(api.Statistics{TotalStations: 2, TotalChargePoints: 5, TotalUsers: 1234, ActiveSessions: 1})
	if !strings.Contains(got, "1,234") {
		t.Errorf("expected grouped user count, got %q", got)
	}
}

func TestSessionCells(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := api.Session{
		ChargePointID:     "3",
		StartTime:         now.Add(-5 * time.Minute).Format(time.RFC3339),
		EnergyConsumedKWh: 12.5,
		CurrentPowerKW:    7.2,
	}
	cells := sessionCells(s, now)
	want := []string{"CP 3", "12.5 kWh", "7.2 kW", "started 5 minutes ago"}
	for i := range want {
		if cells[i] != want[i] {
			t.Errorf("cell %d: got %q want %q", i, cells[i], want[i])
		}
	}
}

func TestSessionCells_UnparseableStart(t *testing.T) {
	cells := sessionCells(api.Session{ChargePointID: "1", StartTime: "soon"}, time.Now())
	if cells[3] != "unknown start" {
		t.Errorf("got %q", cells[3])
	}
}

func TestNotificationLine(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := db.Notification{
		Kind:      "session_started",
		Type:      "session_started",
		StationID: "7",
		Actor:     "Grace",
		Ts:        now.Add(-2 * time.Hour),
	}
	got := notificationLine(n, now)
	for _, want := range []string{IconStarted, "Grace started", "at station 7", "2 hours ago", "[::b]"} {
		if !strings.Contains(got, want) {
			t.Errorf("line %q missing %q", got, want)
		}
	}

	n.Read = true
	n.Actor = ""
	got = notificationLine(n, now)
	if strings.Contains(got, "[::b]") {
		t.Errorf("read notifications should not be bold: %q", got)
	}
	if !strings.Contains(got, "A user started") {
		t.Errorf("expected fallback actor: %q", got)
	}
}

func TestUserMessage(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"transport", fmt.Errorf("POST /charging/start: %w", errors.New("dial tcp 127.0.0.1:8000: connection refused")), "Could not start charging"},
		{"rejected with detail", &api.StatusError{Code: 409, Body: `{"detail":"Charge point is busy"}`, Detail: "Charge point is busy"}, "Could not start charging: Charge point is busy"},
		{"rejected without detail", &api.StatusError{Code: 400, Body: "bad"}, "Could not start charging"},
		{"server error", &api.StatusError{Code: 500, Body: "trace", Detail: "Traceback (most recent call last)"}, "Could not start charging"},
	}
	for _, c := range cases {
		if got := userMessage(c.err, "Could not start charging"); got != c.want {
			t.Errorf("%s: got %q want %q", c.name, got, c.want)
		}
	}
}
