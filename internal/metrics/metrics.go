package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notification_hub_active_connections",
		Help: "Active websocket connections on this instance.",
	})
	EventsPushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_hub_events_pushed_total",
		Help: "Frames queued to local connections, by event target and addressing scope.",
	}, []string{"target", "scope"})
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_hub_frames_dropped_total",
		Help: "Frames dropped because a connection's send buffer was full.",
	})
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_operations_total",
		Help: "Notification store operations, by operation and outcome.",
	}, []string{"op", "outcome"})
	RelayMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_relay_messages_total",
		Help: "Deliveries exchanged with other hub instances, by direction.",
	}, []string{"direction"})
	EventPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_event_publish_failures_total",
		Help: "Lifecycle records that could not be written to the event stream.",
	})
)

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
