// Package metrics exposes the swap engine's Prometheus collectors. A nil
// *Recorder is valid and records nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Recorder struct {
	transitions *prometheus.CounterVec
	retries     *prometheus.CounterVec
	expired     prometheus.Counter
	duration    prometheus.Histogram
	publishErrs prometheus.Counter
}

// NewRecorder registers the collectors on reg, or on the default registerer
// when reg is nil. Collectors that are already registered are reused.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swap_transitions_total",
		Help: "Swap transactions entering each status",
	}, []string{"status"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swap_claim_retries_total",
		Help: "Units of work replayed after losing a race",
	}, []string{"operation"})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slot_reservations_expired_total",
		Help: "Expired slot reservations released by the sweeper",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "swap_duration_seconds",
		Help:    "Time from initiation to completion of a swap",
		Buckets: []float64{30, 60, 120, 300, 600, 900, 1800},
	})
	publishErrs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swap_event_publish_failures_total",
		Help: "Swap events that could not be published",
	})

	var err error
	if transitions, err = register(reg, transitions); err != nil {
		return nil, err
	}
	if retries, err = register(reg, retries); err != nil {
		return nil, err
	}
	if expired, err = register(reg, expired); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	if publishErrs, err = register(reg, publishErrs); err != nil {
		return nil, err
	}

	return &Recorder{
		transitions: transitions,
		retries:     retries,
		expired:     expired,
		duration:    duration,
		publishErrs: publishErrs,
	}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (r *Recorder) SwapTransition(status string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(status).Inc()
}

func (r *Recorder) ClaimRetries(operation string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.retries.WithLabelValues(operation).Add(float64(n))
}

func (r *Recorder) ReservationsExpired(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.expired.Add(float64(n))
}

func (r *Recorder) SwapDuration(d time.Duration) {
	if r == nil {
		return
	}
	r.duration.Observe(d.Seconds())
}

func (r *Recorder) PublishFailed() {
	if r == nil {
		return
	}
	r.publishErrs.Inc()
}
