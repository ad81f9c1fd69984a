package ui

import (
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/zsprackett/chargewatch/internal/api"
	"github.com/zsprackett/chargewatch/internal/db"
	"github.com/zsprackett/chargewatch/internal/realtime"
)

// viewData is everything one reload fetches.
type viewData struct {
	dashboard     *api.Dashboard
	sessions      []api.Session
	notifications []db.Notification
	fetchedAt     time.Time
}

// Dashboard is the main screen: an operator station table or a customer
// session table on the left, recent notifications on the right.
type Dashboard struct {
	*tview.Flex
	table  *tview.Table
	notes  *tview.TextView
	stats  *tview.TextView
	header *tview.TextView
	toast  *tview.TextView
	footer *tview.TextView

	admin    bool
	name     string
	state    realtime.State
	unread   int
	sessions []api.Session

	onAck    func()
	onReload func()
	onStart  func()
	onStop   func(api.Session)
	onQuit   func()
}

func NewDashboard(name string, admin bool) *Dashboard {
	d := &Dashboard{name: name, admin: admin}

	d.header = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	d.header.SetBackgroundColor(ColorBackgroundPanel)

	d.stats = tview.NewTextView().SetDynamicColors(true)
	d.stats.SetBackgroundColor(ColorBackground)
	d.stats.SetTextColor(ColorTextMuted)

	d.table = tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0).
		SetSelectedStyle(tcell.StyleDefault.
			Background(ColorSelected).
			Foreground(ColorSelectedText))
	d.table.SetBackgroundColor(ColorBackground)

	d.notes = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(true)
	d.notes.SetBackgroundColor(ColorBackground)
	d.notes.SetBorder(true).SetTitle(" Notifications ").SetTitleAlign(tview.AlignLeft)
	d.notes.SetBorderColor(ColorBorder)

	d.toast = tview.NewTextView().SetDynamicColors(false)
	d.toast.SetBackgroundColor(ColorBackgroundElem)
	d.toast.SetTextColor(ColorText)

	d.footer = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	d.footer.SetBackgroundColor(ColorBackgroundPanel)
	keys := "[green]↑↓[-] navigate  [green]n[-] mark read  [green]r[-] reload  "
	if !admin {
		keys += "[green]c[-] start  [green]s[-] stop  "
	}
	d.footer.SetText(keys + "[green]?[-] help  [green]q[-] quit")

	left := tview.NewFlex().SetDirection(tview.FlexRow)
	if admin {
		left.AddItem(d.stats, 1, 0, false)
	}
	left.AddItem(d.table, 0, 1, true)

	content := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(left, 0, 60, true).
		AddItem(tview.NewBox().SetBackgroundColor(ColorBorder), 1, 0, false).
		AddItem(d.notes, 0, 40, false)

	d.Flex = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.header, 1, 0, false).
		AddItem(content, 0, 1, true).
		AddItem(d.toast, 1, 0, false).
		AddItem(d.footer, 1, 0, false)

	d.setupInput()
	d.updateHeader()
	return d
}

func (d *Dashboard) SetCallbacks(onAck, onReload, onStart func(), onStop func(api.Session), onQuit func()) {
	d.onAck = onAck
	d.onReload = onReload
	d.onStart = onStart
	d.onStop = onStop
	d.onQuit = onQuit
}

// Update renders freshly fetched view data.
func (d *Dashboard) Update(v viewData) {
	d.table.Clear()
	if d.admin {
		d.renderStations(v.dashboard)
	} else {
		d.renderSessions(v.sessions, v.fetchedAt)
	}
	d.renderNotifications(v.notifications, v.fetchedAt)
}

func (d *Dashboard) renderStations(dash *api.Dashboard) {
	d.setHeaderRow("Station", "Available", "Charging", "Unavailable")
	if dash == nil {
		d.stats.SetText("")
		return
	}
	d.stats.SetText(statisticsText(dash.Statistics))
	for i, st := range dash.StationStatus {
		cells := stationCells(st)
		colors := []tcell.Color{ColorText, ChargePointColor("available"), ChargePointColor("charging"), ChargePointColor("unavailable")}
		for col, text := range cells {
			d.table.SetCell(i+1, col, tview.NewTableCell(text).
				SetTextColor(colors[col]).
				SetExpansion(1))
		}
	}
}

func (d *Dashboard) renderSessions(sessions []api.Session, now time.Time) {
	d.sessions = sessions
	d.setHeaderRow("Charge point", "Energy", "Power", "Duration")
	if len(sessions) == 0 {
		d.table.SetCell(1, 0, tview.NewTableCell("No active sessions. Press c to start charging.").
			SetTextColor(ColorTextMuted).
			SetSelectable(false))
		return
	}
	for i, s := range sessions {
		for col, text := range sessionCells(s, now) {
			d.table.SetCell(i+1, col, tview.NewTableCell(text).
				SetTextColor(ColorText).
				SetExpansion(1))
		}
	}
	if row, _ := d.table.GetSelection(); row < 1 || row > len(sessions) {
		d.table.Select(1, 0)
	}
}

func (d *Dashboard) renderNotifications(list []db.Notification, now time.Time) {
	if len(list) == 0 {
		d.notes.SetText("[gray]No notifications yet[-]")
		return
	}
	lines := make([]string, len(list))
	for i, n := range list {
		lines[i] = notificationLine(n, now)
	}
	d.notes.SetText(strings.Join(lines, "\n"))
	d.notes.ScrollToBeginning()
}

func (d *Dashboard) setHeaderRow(titles ...string) {
	for col, title := range titles {
		d.table.SetCell(0, col, tview.NewTableCell(title).
			SetTextColor(ColorPrimary).
			SetBackgroundColor(ColorBackgroundElem).
			SetSelectable(false).
			SetExpansion(1))
	}
}

// SetConnection updates the header's connectivity indicator and badge.
func (d *Dashboard) SetConnection(state realtime.State, unread int) {
	d.state = state
	d.unread = unread
	d.updateHeader()
}

func (d *Dashboard) updateHeader() {
	d.header.SetText(headerText(d.name, d.admin, d.state, d.unread))
}

// ShowToast replaces the status line.
func (d *Dashboard) ShowToast(msg string) {
	d.toast.SetText(" " + msg)
}

func (d *Dashboard) ClearToast() {
	d.toast.SetText("")
}

func (d *Dashboard) selectedSession() (api.Session, bool) {
	row, _ := d.table.GetSelection()
	i := row - 1
	if d.admin || i < 0 || i >= len(d.sessions) {
		return api.Session{}, false
	}
	return d.sessions[i], true
}

func (d *Dashboard) setupInput() {
	d.table.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Rune() {
		case 'j':
			return tcell.NewEventKey(tcell.KeyDown, 0, tcell.ModNone)
		case 'k':
			return tcell.NewEventKey(tcell.KeyUp, 0, tcell.ModNone)
		case 'n':
			if d.onAck != nil {
				d.onAck()
			}
			return nil
		case 'r':
			if d.onReload != nil {
				d.onReload()
			}
			return nil
		case 'c':
			if !d.admin && d.onStart != nil {
				d.onStart()
			}
			return nil
		case 's':
			if s, ok := d.selectedSession(); ok && d.onStop != nil {
				d.onStop(s)
			}
			return nil
		case 'q':
			if d.onQuit != nil {
				d.onQuit()
			}
			return nil
		}
		return event
	})
}
