package metrics

import "github.com/prometheus/client_golang/prometheus"

type Observer interface {
	Observe(val float64, labels ...string)

	// for now we will tightly couple to the prometheus collector type
	// the go otel metrics sdk also has a prometheus adapter that implements this interface.
	prometheus.Collector
}

type Metrics struct {
	EventsCount        Observer
	CommandCount       Observer
	FilterWarnCount    Observer
	FilterKickCount    Observer
	RemindersDelivered Observer
	ProviderLatency    Observer
	ReconnectCount     Observer
}

func (m Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.EventsCount,
		m.CommandCount,
		m.FilterWarnCount,
		m.FilterKickCount,
		m.RemindersDelivered,
		m.ProviderLatency,
		m.ReconnectCount,
	}
}
