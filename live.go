package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zsprackett/chargewatch/internal/auth"
	"github.com/zsprackett/chargewatch/internal/clock"
	"github.com/zsprackett/chargewatch/internal/config"
	"github.com/zsprackett/chargewatch/internal/db"
	"github.com/zsprackett/chargewatch/internal/metrics"
	"github.com/zsprackett/chargewatch/internal/notify"
	"github.com/zsprackett/chargewatch/internal/realtime"
	"github.com/zsprackett/chargewatch/internal/refresh"
)

// live is the realtime manager and everything subscribed to it.
type live struct {
	manager    *realtime.Manager
	dispatcher *refresh.Dispatcher
	notifier   *notify.Notifier
	logger     *slog.Logger

	connect *time.Timer
	resume  chan os.Signal
	done    chan struct{}
}

// startLive wires the connection manager to a dispatcher that toasts to sink
// and the configured notifiers, and invalidates view. The first connect is
// delayed by realtime.connectDelay; SIGCONT resumes the connection.
func startLive(cfg config.Config, store *db.DB, tokens auth.Provider, logger *slog.Logger, sink refresh.ToastSink, view refresh.Invalidator) *live {
	notifier := notify.New(notify.Config{
		Desktop: cfg.Notifications.Desktop,
		Webhook: cfg.Notifications.Webhook,
		NtfyURL: cfg.Notifications.NtfyURL,
	}, logger)
	notifier.Start()

	clk := clock.Real()
	mgr := realtime.New(realtime.Config{
		URL:               cfg.Realtime.URL,
		HeartbeatInterval: cfg.Realtime.Heartbeat(),
		ReconnectDelay:    cfg.Realtime.Reconnect(),
	}, tokens, realtime.WSDialer{}, clk, logger)

	disp := refresh.New(refresh.Config{
		Delay:   cfg.Realtime.Refresh(),
		Sink:    refresh.Sinks{sink, notifier},
		View:    view,
		History: store,
	}, clk, logger)
	mgr.Subscribe(disp)

	l := &live{
		manager:    mgr,
		dispatcher: disp,
		notifier:   notifier,
		logger:     logger,
		resume:     make(chan os.Signal, 1),
		done:       make(chan struct{}),
	}
	l.connect = time.AfterFunc(cfg.Realtime.Connect(), func() {
		if err := mgr.Connect(); err != nil && !errors.Is(err, realtime.ErrStopped) {
			logger.Warn("connect", "err", err)
		}
	})

	signal.Notify(l.resume, syscall.SIGCONT)
	go l.watchResume()
	return l
}

func (l *live) watchResume() {
	for {
		select {
		case <-l.resume:
			l.logger.Debug("resumed, checking connection")
			if err := l.manager.Resume(); err != nil && !errors.Is(err, realtime.ErrStopped) {
				l.logger.Warn("resume", "err", err)
			}
		case <-l.done:
			return
		}
	}
}

// stop tears down in dependency order: no new refreshes, no connection,
// then the notifier drains.
func (l *live) stop() {
	l.connect.Stop()
	signal.Stop(l.resume)
	close(l.done)
	l.dispatcher.Stop()
	l.manager.Stop()
	l.notifier.Stop()
}

// serveMetrics exposes /metrics on addr. An empty addr disables it.
func serveMetrics(addr string, logger *slog.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "err", err)
		}
	}()
	return srv
}
