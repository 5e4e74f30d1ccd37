package metrics

import "github.com/prometheus/client_golang/prometheus"

// prometheusRegisterer is the subset of *prometheus.Registry this package
// needs, so callers can pass either prometheus.DefaultRegisterer or a
// private registry in tests without pulling promhttp into every caller.
type prometheusRegisterer interface {
	Register(prometheus.Collector) error
}

// promMetrics mirrors the in-process Collector as Prometheus series: a
// request counter, TTFT and queue-time histograms labeled by device and
// backend, and a batch-size histogram. Each Collector owns its own set,
// registered by an explicit Register call; registering is optional.
type promMetrics struct {
	requestsTotal  prometheus.Counter
	ttftHistogram  *prometheus.HistogramVec
	queueHistogram *prometheus.HistogramVec
	batchSize      prometheus.Histogram
}

func newPromMetrics() *promMetrics {
	return &promMetrics{
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relayserve_requests_total",
			Help: "Total number of chat requests processed.",
		}),
		ttftHistogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relayserve_ttft_ms",
			Help:    "Time to first token in milliseconds, by device label.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"device", "backend"}),
		queueHistogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relayserve_queue_ms",
			Help:    "Time spent waiting in the batching queue, in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"device", "backend"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relayserve_batch_size",
			Help:    "Distribution of micro-batch sizes.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		}),
	}
}

func (p *promMetrics) register(reg prometheusRegisterer) error {
	for _, c := range []prometheus.Collector{p.requestsTotal, p.ttftHistogram, p.queueHistogram, p.batchSize} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (p *promMetrics) observe(sample RequestMetrics) {
	p.requestsTotal.Inc()
	p.ttftHistogram.WithLabelValues(sample.Device, sample.Backend).Observe(sample.TTFTMs)
	p.queueHistogram.WithLabelValues(sample.Device, sample.Backend).Observe(sample.QueueMs)
	p.batchSize.Observe(float64(sample.BatchSize))
}
