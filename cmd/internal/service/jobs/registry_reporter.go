package jobs

import (
	"context"
	"time"

	"waitlist/cmd/internal/metrics"

	"github.com/labstack/gommon/log"
)

const DefaultReportInterval = 5 * time.Minute

type StreamRegistry interface {
	TotalConnections() int
	ActiveUserCount() int
}

// RegistryReporter periodically logs how many event streams are open and
// resyncs the active users gauge with the registry.
type RegistryReporter struct {
	registry StreamRegistry
	interval time.Duration
}

func NewRegistryReporter(registry StreamRegistry, interval time.Duration) *RegistryReporter {
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	return &RegistryReporter{registry: registry, interval: interval}
}

func (r *RegistryReporter) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Infof("Registry reporter started, reporting every %s", r.interval)

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping registry reporter...")
			return
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *RegistryReporter) report() {
	conns := r.registry.TotalConnections()
	users := r.registry.ActiveUserCount()

	metrics.StreamUsersActive.Set(float64(users))
	log.Infof("Reporter: %d open event streams across %d users", conns, users)
}
