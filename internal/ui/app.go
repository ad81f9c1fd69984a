package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/zsprackett/chargewatch/internal/api"
	"github.com/zsprackett/chargewatch/internal/db"
	"github.com/zsprackett/chargewatch/internal/events"
	"github.com/zsprackett/chargewatch/internal/realtime"
	"github.com/zsprackett/chargewatch/internal/refresh"
	"github.com/zsprackett/chargewatch/internal/ui/dialogs"
)

const (
	notificationLimit = 20
	toastLifetime     = 6 * time.Second
	requestTimeout    = 10 * time.Second
)

// ExpiredMessage is shown when the API rejects the saved token.
const ExpiredMessage = "Session expired. Run chargewatch login."

const ClearedMessage = "Notifications cleared"

// App is the dashboard. It implements refresh.ToastSink, refresh.Invalidator
// and realtime.Subscriber; each marshals onto the tview event loop.
type App struct {
	tapp   *tview.Application
	pages  *tview.Pages
	dash   *Dashboard
	client *api.Client
	store  *db.DB
	cred   *db.Credential
	logger *slog.Logger

	mgr  *realtime.Manager
	disp *refresh.Dispatcher

	stopped  atomic.Bool
	reloadMu sync.Mutex
	toastSeq atomic.Uint64
}

func NewApp(client *api.Client, store *db.DB, cred *db.Credential, logger *slog.Logger) *App {
	a := &App{
		client: client,
		store:  store,
		cred:   cred,
		logger: logger.With("component", "ui"),
	}

	a.tapp = tview.NewApplication()
	a.pages = tview.NewPages()
	a.dash = NewDashboard(cred.FullName, cred.IsAdmin)

	a.pages.AddPage("home", a.dash, true, true)
	a.tapp.SetRoot(a.pages, true).EnableMouse(false)
	a.tapp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Rune() == '?' {
			if name, _ := a.pages.GetFrontPage(); name == "home" {
				a.showHelp()
				return nil
			}
		}
		return event
	})

	a.dash.SetCallbacks(
		a.onAcknowledge,
		a.onReload,
		a.onStart,
		a.onStop,
		func() { a.tapp.Stop() },
	)
	return a
}

// SetLive attaches the realtime manager and dispatcher. Either may be nil.
func (a *App) SetLive(mgr *realtime.Manager, disp *refresh.Dispatcher) {
	a.mgr = mgr
	a.disp = disp
}

// Run blocks until the user quits. Signals arriving afterwards are dropped.
func (a *App) Run() error {
	defer a.stopped.Store(true)
	go a.reload()
	return a.tapp.Run()
}

// Toast implements refresh.ToastSink.
func (a *App) Toast(t refresh.Toast) {
	seq := a.toastSeq.Add(1)
	a.queue(func() {
		a.dash.ShowToast(t.Message)
		a.dash.SetConnection(a.connState(), a.unread())
	})
	time.AfterFunc(toastLifetime, func() {
		if a.toastSeq.Load() == seq {
			a.queue(a.dash.ClearToast)
		}
	})
}

// Invalidate implements refresh.Invalidator.
func (a *App) Invalidate() {
	go a.reload()
}

// HandleSignal implements realtime.Subscriber. The manager is only queried
// from the event loop, never from the delivering goroutine.
func (a *App) HandleSignal(sig realtime.Signal) {
	switch sig.Kind {
	case realtime.SignalConnected, realtime.SignalDisconnected, realtime.SignalEvent:
		a.queue(func() {
			a.dash.SetConnection(a.connState(), a.unread())
		})
	}
}

func (a *App) queue(fn func()) {
	if a.stopped.Load() {
		return
	}
	a.tapp.QueueUpdateDraw(fn)
}

func (a *App) connState() realtime.State {
	if a.mgr == nil {
		return realtime.StateIdle
	}
	return a.mgr.State()
}

func (a *App) unread() int {
	if a.disp == nil {
		return 0
	}
	return a.disp.Count()
}

// reload fetches all view data. Overlapping calls are serialized.
func (a *App) reload() {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	v := viewData{fetchedAt: time.Now()}
	var err error
	if a.cred.IsAdmin {
		v.dashboard, err = a.client.Dashboard(ctx)
	} else {
		v.sessions, err = a.client.ActiveSessions(ctx)
	}
	if errors.Is(err, api.ErrUnauthorized) {
		a.expire()
		return
	}
	if err != nil {
		a.logger.Warn("reload failed", "err", err)
		msg := userMessage(err, "Refresh failed")
		a.queue(func() { a.dash.ShowToast(msg) })
		return
	}

	list, nerr := a.store.RecentNotifications(notificationLimit)
	if nerr != nil {
		a.logger.Warn("load notifications", "err", nerr)
	}
	v.notifications = list

	a.queue(func() {
		a.dash.Update(v)
		a.dash.SetConnection(a.connState(), a.unread())
	})
}

// expire drops the saved credential and the live connection.
func (a *App) expire() {
	a.logger.Info("token rejected, signing out")
	if err := a.store.DeleteCredential(); err != nil {
		a.logger.Warn("delete credential", "err", err)
	}
	if a.mgr != nil {
		a.mgr.Disconnect()
	}
	a.queue(func() { a.showError(ExpiredMessage) })
}

func (a *App) onAcknowledge() {
	if a.disp != nil {
		a.disp.Acknowledge()
	}
	a.dash.SetConnection(a.connState(), 0)
	a.dash.ShowToast(ClearedMessage)
	go a.reload()
}

func (a *App) onReload() {
	a.dash.ShowToast("Refreshing...")
	go a.reload()
	if a.mgr != nil {
		go func() {
			if err := a.mgr.Resume(); err != nil {
				a.logger.Debug("resume", "err", err)
			}
		}()
	}
}

func (a *App) onStart() {
	form := dialogs.StartDialog(
		func(id string) {
			a.closeDialog("start")
			go a.runAction(fmt.Sprintf("Charging started at CP %s", id), "Could not start charging", func(ctx context.Context) error {
				_, err := a.client.StartCharging(ctx, events.Identifier(id))
				return err
			})
		},
		func() { a.closeDialog("start") },
	)
	a.showDialog("start", form, 40, 7)
}

func (a *App) onStop(s api.Session) {
	modal := dialogs.ConfirmDialog(
		fmt.Sprintf("Stop charging at CP %s?", s.ChargePointID), "Stop",
		func() {
			a.closeDialog("confirm-stop")
			go a.runAction(fmt.Sprintf("Charging stopped at CP %s", s.ChargePointID), "Could not stop charging", func(ctx context.Context) error {
				_, err := a.client.StopCharging(ctx, s.ID)
				return err
			})
		},
		func() { a.closeDialog("confirm-stop") },
	)
	a.pages.AddPage("confirm-stop", modal, true, true)
}

// runAction performs a charging request off the event loop. The resulting
// session event refreshes the view; a direct reload covers an offline stream.
func (a *App) runAction(done, failed string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	err := fn(ctx)
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		a.expire()
		return
	case err != nil:
		a.logger.Warn("charging request failed", "err", err)
		msg := userMessage(err, failed)
		a.queue(func() { a.showError(msg) })
		return
	}
	a.queue(func() { a.dash.ShowToast(done) })
	if a.connState() != realtime.StateOpen {
		a.reload()
	}
}

func (a *App) showDialog(name string, widget tview.Primitive, width, height int) {
	modal := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexColumn).
			AddItem(nil, 0, 1, false).
			AddItem(widget, width, 0, true).
			AddItem(nil, 0, 1, false), height, 0, true).
		AddItem(nil, 0, 1, false)
	a.pages.AddPage(name, modal, true, true)
	a.tapp.SetFocus(widget)
}

func (a *App) closeDialog(name string) {
	a.pages.RemovePage(name)
	a.tapp.SetFocus(a.dash.table)
}

func (a *App) showHelp() {
	help := dialogs.HelpDialog(func() {
		a.closeDialog("help")
	})
	a.showDialog("help", help, 60, 26)
}

func (a *App) showError(msg string) {
	modal := tview.NewModal().
		SetText(msg).
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(_ int, _ string) {
			a.closeDialog("error")
		})
	a.pages.AddPage("error", modal, true, true)
}
