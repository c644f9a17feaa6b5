package forge

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherCounters(t *testing.T, registry *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)

	counters := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			name := family.GetName()
			for _, label := range metric.GetLabel() {
				name += ":" + label.GetValue()
			}
			counters[name] = metric.GetCounter().GetValue()
		}
	}
	return counters
}

func testEvents() []*PublisherEvent {
	return []*PublisherEvent{
		{Name: EventConjured, Value: "2"},
		{Name: EventConjured, Value: "0"},
		{Name: EventAutoEarned, Value: "3"},
		{Name: EventNodeUnlocked, SourceId: "A"},
		{Name: EventMaterialDropped, Value: "1"},
	}
}

func TestMetricsPublisher_CountsEvents(t *testing.T) {
	registry := prometheus.NewRegistry()
	publisher, err := NewMetricsPublisher(registry)
	require.NoError(t, err)

	publisher.Send(context.Background(), &mockLogger{}, nil, testUserID, testEvents())

	// A second publisher on the same registry shares the collectors
	again, err := NewMetricsPublisher(registry)
	require.NoError(t, err)
	again.Send(context.Background(), &mockLogger{}, nil, testUserID, testEvents()[:1])

	counters := gatherCounters(t, registry)
	assert.Equal(t, 3.0, counters["visforge_events_total:"+EventConjured])
	assert.Equal(t, 1.0, counters["visforge_events_total:"+EventAutoEarned])
	assert.Equal(t, 1.0, counters["visforge_events_total:"+EventNodeUnlocked])
	assert.Equal(t, 1.0, counters["visforge_events_total:"+EventMaterialDropped])
	// Material drops are not primary currency
	assert.Equal(t, 7.0, counters["visforge_primary_earned_total"])
}

func TestMetricsPublisher_WithoutRegistry(t *testing.T) {
	publisher, err := NewMetricsPublisher(nil)
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		publisher.Send(context.Background(), &mockLogger{}, nil, testUserID, testEvents())
	})
}

func TestNakamaMetricsPublisher(t *testing.T) {
	nk := newTestNakamaModule(RealClock{})
	NakamaMetricsPublisher{}.Send(context.Background(), &mockLogger{}, nk, testUserID, testEvents())

	assert.Equal(t, int64(2), nk.counter("visforge_events:"+EventConjured))
	assert.Equal(t, int64(1), nk.counter("visforge_events:"+EventMaterialDropped))
	assert.Equal(t, int64(5), nk.counter("visforge_primary_earned"))

	assert.NotPanics(t, func() {
		NakamaMetricsPublisher{}.Send(context.Background(), &mockLogger{}, nil, testUserID, testEvents())
	})
}
