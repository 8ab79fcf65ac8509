package archive

import (
	"github.com/sony/gobreaker/v2"

	"github.com/tphakala/rtp-recorder/internal/logger"
	"github.com/tphakala/rtp-recorder/internal/observability/metrics"
)

// newBreaker opens after FailureThreshold consecutive failed uploads and
// admits a single trial upload once BreakerTimeout has passed.
func newBreaker(target string, cfg Config, log logger.Logger, m *metrics.ArchiveMetrics) *gobreaker.CircuitBreaker[struct{}] {
	threshold := cfg.FailureThreshold
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "archive-" + target,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.SetBreakerState(target, int(to))
			fields := []logger.Field{
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			}
			if to == gobreaker.StateOpen {
				log.Warn("archive circuit opened", fields...)
				return
			}
			log.Info("archive circuit state changed", fields...)
		},
	})
}
