package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/zsprackett/chargewatch/internal/api"
	"github.com/zsprackett/chargewatch/internal/db"
	"github.com/zsprackett/chargewatch/internal/realtime"
)

// Badge renders the unread count for the header. Zero renders nothing.
func Badge(unread int) string {
	switch {
	case unread <= 0:
		return ""
	case unread > 99:
		return IconBell + " 99+"
	default:
		return fmt.Sprintf("%s %d", IconBell, unread)
	}
}

func headerText(name string, admin bool, state realtime.State, unread int) string {
	label, tag, _ := ConnectionIndicator(state)
	role := "customer"
	if admin {
		role = "operator"
	}
	if name == "" {
		name = "signed in"
	}
	text := fmt.Sprintf("[blue]CHARGEWATCH[-]   %s [gray](%s)[-]   [%s]%s[-]", name, role, tag, label)
	if b := Badge(unread); b != "" {
		text += "   [yellow]" + b + "[-]"
	}
	return text
}

func statisticsText(st api.Statistics) string {
	return fmt.Sprintf("Stations [white]%s[-]   Charge points [white]%s[-]   Users [white]%s[-]   Active sessions [green]%s[-]",
		humanize.Comma(int64(st.TotalStations)),
		humanize.Comma(int64(st.TotalChargePoints)),
		humanize.Comma(int64(st.TotalUsers)),
		humanize.Comma(int64(st.ActiveSessions)))
}

func stationCells(s api.StationStatus) []string {
	return []string{
		s.StationName,
		fmt.Sprintf("%d available", s.Available),
		fmt.Sprintf("%d charging", s.Charging),
		fmt.Sprintf("%d unavailable", s.Unavailable),
	}
}

func sessionCells(s api.Session, now time.Time) []string {
	started := "unknown start"
	if t := s.Started(); !t.IsZero() {
		started = "started " + humanize.RelTime(t, now, "ago", "from now")
	}
	return []string{
		"CP " + string(s.ChargePointID),
		humanize.FtoaWithDigits(s.EnergyConsumedKWh, 2) + " kWh",
		humanize.FtoaWithDigits(s.CurrentPowerKW, 1) + " kW",
		started,
	}
}

func notificationLine(n db.Notification, now time.Time) string {
	icon, _ := EventIcon(n.Kind)
	actor := n.Actor
	if actor == "" {
		actor = "A user"
	}
	verb := strings.ReplaceAll(strings.TrimPrefix(n.Type, "session_"), "_", " ")
	line := fmt.Sprintf("%s %s %s", icon, actor, verb)
	if n.StationID != "" {
		line += " at station " + n.StationID
	}
	line += " [gray]" + humanize.RelTime(n.Ts, now, "ago", "from now") + "[-]"
	if !n.Read {
		line = "[::b]" + line + "[::-]"
	}
	return line
}

// userMessage is what the dashboard shows for a failed request: fallback,
// plus the server's detail for a rejected request. Transport errors and
// response bodies are only logged.
func userMessage(err error, fallback string) string {
	var se *api.StatusError
	if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 && se.Detail != "" {
		return fallback + ": " + se.Detail
	}
	return fallback
}
