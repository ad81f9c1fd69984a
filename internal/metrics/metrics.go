// Package metrics exposes Prometheus instrumentation for the live-update
// pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionState is 1 for the manager's current state and 0 otherwise.
	ConnectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chargewatch_realtime_connection_state",
		Help: "Current realtime connection state (1 = active state)",
	}, []string{"state"})

	// DialTotal counts handshake attempts by result.
	DialTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chargewatch_realtime_dial_total",
		Help: "Total realtime handshake attempts by result",
	}, []string{"result"})

	// ReconnectsScheduled counts armed reconnect timers.
	ReconnectsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chargewatch_realtime_reconnects_scheduled_total",
		Help: "Total reconnect attempts scheduled after an unexpected closure",
	})

	// HeartbeatsSent counts heartbeat frames by result.
	HeartbeatsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chargewatch_realtime_heartbeats_total",
		Help: "Total heartbeat frames sent by result",
	}, []string{"result"})

	// FramesReceived counts inbound frames by classification.
	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chargewatch_realtime_frames_total",
		Help: "Total inbound frames by classification",
	}, []string{"class"})

	// ViewInvalidations counts fired view invalidations.
	ViewInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chargewatch_refresh_invalidations_total",
		Help: "Total view invalidations fired by the refresh dispatcher",
	})

	// UnreadNotifications mirrors the notification badge.
	UnreadNotifications = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chargewatch_refresh_unread_notifications",
		Help: "Current notification badge count",
	})
)

// SetConnectionState marks state as active and clears all others.
func SetConnectionState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		ConnectionState.WithLabelValues(s).Set(v)
	}
}

// ObserveDial records a handshake outcome.
func ObserveDial(ok bool) {
	if ok {
		DialTotal.WithLabelValues("success").Inc()
		return
	}
	DialTotal.WithLabelValues("failure").Inc()
}

// ObserveHeartbeat records a heartbeat send outcome.
func ObserveHeartbeat(err error) {
	if err != nil {
		HeartbeatsSent.WithLabelValues("error").Inc()
		return
	}
	HeartbeatsSent.WithLabelValues("ok").Inc()
}

// ObserveFrame records an inbound frame by class name.
func ObserveFrame(class string) {
	FramesReceived.WithLabelValues(class).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
