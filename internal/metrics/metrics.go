// Package metrics exposes poll and delivery counters in Prometheus format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"hwbot/internal/eventbus"
	"hwbot/internal/notifier"
	"hwbot/internal/poller"
)

// Collectors owns a private registry so tests and multiple instances never
// collide on the default one.
type Collectors struct {
	Registry *prometheus.Registry

	polls         *prometheus.CounterVec
	notifications *prometheus.CounterVec
	cursor        prometheus.Gauge
	lastSuccess   prometheus.Gauge
	pollDuration  prometheus.Histogram
}

func NewCollectors() *Collectors {
	c := &Collectors{
		Registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hwbot_polls_total",
			Help: "Poll cycles by outcome.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hwbot_notifications_total",
			Help: "Chat messages by kind and delivery result.",
		}, []string{"kind", "result"}),
		cursor: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hwbot_cursor_timestamp",
			Help: "Current from_date cursor (unix seconds).",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hwbot_last_success_timestamp",
			Help: "Time of the last cycle that finished without error (unix seconds).",
		}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hwbot_poll_duration_seconds",
			Help:    "Duration of one poll cycle.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	c.Registry.MustRegister(
		c.polls,
		c.notifications,
		c.cursor,
		c.lastSuccess,
		c.pollDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Observe updates collectors from a bus event. Unknown events are ignored.
func (c *Collectors) Observe(e eventbus.Event) {
	if c == nil {
		return
	}
	switch e.Type {
	case eventbus.TypePollSucceeded, eventbus.TypePollFailed:
		res, ok := e.Data.(poller.Result)
		if !ok {
			return
		}
		c.polls.WithLabelValues(string(res.Outcome)).Inc()
		c.pollDuration.Observe(res.Duration.Seconds())
		c.cursor.Set(float64(res.Cursor))
		if res.Err == nil {
			c.lastSuccess.Set(float64(e.Time.Unix()))
		}
	case eventbus.TypeNotifySent, eventbus.TypeNotifyFailed, eventbus.TypeNotifyDeduped:
		ev, ok := e.Data.(notifier.NotificationEvent)
		if !ok {
			return
		}
		c.notifications.WithLabelValues(string(ev.Kind), notifyResult(e.Type)).Inc()
	}
}

func notifyResult(typ string) string {
	switch typ {
	case eventbus.TypeNotifySent:
		return "sent"
	case eventbus.TypeNotifyDeduped:
		return "deduped"
	default:
		return "failed"
	}
}
