package forge

import (
	"context"
	"errors"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsPublisher counts controller events into Prometheus collectors.
type MetricsPublisher struct {
	events *prometheus.CounterVec
	earned prometheus.Counter
}

// NewMetricsPublisher registers its collectors with reg. Collectors already
// registered by an earlier publisher are reused.
func NewMetricsPublisher(reg prometheus.Registerer) (*MetricsPublisher, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "visforge",
		Name:      "events_total",
		Help:      "Progression events by name.",
	}, []string{"event"})
	earned := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "visforge",
		Name:      "primary_earned_total",
		Help:      "Primary currency earned by conjuring and auto progression.",
	})

	var err error
	if events, err = registerOrReuse(reg, events); err != nil {
		return nil, err
	}
	if earned, err = registerOrReuse(reg, earned); err != nil {
		return nil, err
	}
	return &MetricsPublisher{events: events, earned: earned}, nil
}

func (m *MetricsPublisher) Send(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, events []*PublisherEvent) {
	for _, event := range events {
		m.events.WithLabelValues(event.Name).Inc()
		switch event.Name {
		case EventConjured, EventAutoEarned:
			m.earned.Add(float64(event.Amount()))
		}
	}
}

func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, collector C) (C, error) {
	if reg == nil {
		return collector, nil
	}
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return collector, err
	}
	return collector, nil
}

// NakamaMetricsPublisher forwards event counts to the Nakama server metrics.
type NakamaMetricsPublisher struct{}

func (NakamaMetricsPublisher) Send(ctx context.Context, logger runtime.Logger, nk runtime.NakamaModule, userID string, events []*PublisherEvent) {
	if nk == nil {
		return
	}
	for _, event := range events {
		nk.MetricsCounterAdd("visforge_events", map[string]string{"event": event.Name}, 1)
		switch event.Name {
		case EventConjured, EventAutoEarned:
			nk.MetricsCounterAdd("visforge_primary_earned", nil, int64(event.Amount()))
		}
	}
}
