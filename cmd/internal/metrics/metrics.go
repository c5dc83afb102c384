package metrics

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Failure reasons for StreamDeliveryFailures.
const (
	ReasonWrite     = "write"
	ReasonHeartbeat = "heartbeat"
	ReasonTimeout   = "timeout"
	ReasonConnect   = "connect"
)

var (
	// Event stream metrics
	StreamConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sse_connections_active",
		Help: "The current number of open event stream connections.",
	})
	StreamConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sse_connections_total",
		Help: "The total number of event stream connections registered.",
	})
	StreamUsersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sse_users_active",
		Help: "The number of users with at least one open event stream.",
	})
	StreamEventsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sse_events_sent_total",
		Help: "The total number of events written to event stream connections.",
	}, []string{"event_type"})
	StreamDeliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sse_delivery_failures_total",
		Help: "The total number of event stream connections dropped, by reason.",
	}, []string{"reason"})

	// Waitlist metrics
	WaitlistSignups = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waitlist_signups_total",
		Help: "The total number of waitlist signups.",
	})
	ReferralsCredited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waitlist_referrals_credited_total",
		Help: "The total number of referrals credited.",
	})
	ReferralRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waitlist_referral_rejections_total",
		Help: "The total number of referral credits rejected, by reason.",
	}, []string{"reason"})
)

// Handler exposes the default registry for scraping.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
