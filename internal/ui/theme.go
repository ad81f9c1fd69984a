package ui

import (
	"github.com/gdamore/tcell/v2"

	"github.com/zsprackett/chargewatch/internal/events"
	"github.com/zsprackett/chargewatch/internal/realtime"
)

// Theme colors for the TUI.
var (
	ColorBackground      = tcell.NewHexColor(0x1e1e2e)
	ColorBackgroundPanel = tcell.NewHexColor(0x181825)
	ColorBackgroundElem  = tcell.NewHexColor(0x313244)
	ColorPrimary         = tcell.NewHexColor(0x89b4fa) // blue
	ColorAccent          = tcell.NewHexColor(0xcba6f7) // mauve
	ColorText            = tcell.NewHexColor(0xcdd6f4)
	ColorTextMuted       = tcell.NewHexColor(0x6c7086)
	ColorSuccess         = tcell.NewHexColor(0xa6e3a1) // green
	ColorWarning         = tcell.NewHexColor(0xf9e2af) // yellow
	ColorError           = tcell.NewHexColor(0xf38ba8) // red
	ColorBorder          = tcell.NewHexColor(0x45475a)
	ColorSelected        = tcell.NewHexColor(0x89b4fa)
	ColorSelectedText    = tcell.NewHexColor(0x1e1e2e)
)

const (
	IconLive       = "●"
	IconConnecting = "◐"
	IconOffline    = "○"
	IconStarted    = "🔌"
	IconStopped    = "🛑"
	IconUpdated    = "⚡"
	IconBell       = "🔔"
)

// ConnectionIndicator returns the label, tview color tag and cell color
// for a connection state.
func ConnectionIndicator(s realtime.State) (label, tag string, color tcell.Color) {
	switch s {
	case realtime.StateOpen:
		return IconLive + " Live", "green", ColorSuccess
	case realtime.StateConnecting:
		return IconConnecting + " Connecting", "yellow", ColorWarning
	case realtime.StateReconnecting:
		return IconConnecting + " Reconnecting", "yellow", ColorWarning
	default:
		return IconOffline + " Offline", "gray", ColorTextMuted
	}
}

// EventIcon returns the list icon and color for a notification kind.
func EventIcon(kind string) (string, tcell.Color) {
	switch events.Kind(kind) {
	case events.KindSessionStarted:
		return IconStarted, ColorSuccess
	case events.KindSessionStopped:
		return IconStopped, ColorError
	default:
		return IconUpdated, ColorAccent
	}
}

// ChargePointColor colors a charge point status cell.
func ChargePointColor(status string) tcell.Color {
	switch status {
	case "available":
		return ColorSuccess
	case "charging":
		return ColorPrimary
	default:
		return ColorTextMuted
	}
}
