package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_messages_sent_total",
		Help: "Messages successfully appended to a conversation.",
	})
	SendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_send_failures_total",
		Help: "Send commands that failed, by the step that failed.",
	}, []string{"step"})
	ReadMarks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_read_marks_total",
		Help: "Messages flipped from unread to read.",
	})
	TypingDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_typing_writes_dropped_total",
		Help: "Best-effort typing writes that failed and were dropped.",
	})
	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatsync_active_subscriptions",
		Help: "Live list and thread subscriptions currently attached.",
	})
)

// Handler returns the http.Handler for Prometheus scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
