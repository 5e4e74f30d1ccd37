// Package metrics collects per-request samples in a bounded ring and
// aggregates them on demand.
package metrics

import "sync"

// RequestMetrics is an immutable per-request sample.
type RequestMetrics struct {
	TTFTMs    float64
	QueueMs   float64
	Tokens    int
	BatchSize int
	Device    string
	Backend   string
}

// DeviceReport aggregates the samples for a single device label.
type DeviceReport struct {
	Count      int     `json:"count"`
	AvgTTFTMs  float64 `json:"avg_ttft_ms"`
	AvgQueueMs float64 `json:"avg_queue_ms"`
}

// Report is the on-demand aggregate over all retained samples.
type Report struct {
	Count      int                     `json:"count"`
	AvgTTFTMs  float64                 `json:"avg_ttft_ms"`
	AvgQueueMs float64                 `json:"avg_queue_ms"`
	ByDevice   map[string]DeviceReport `json:"by_device"`
}

// Collector retains up to MaxItems most-recent RequestMetrics samples.
// Writes come from the engine's worker goroutine and from its streaming
// path; Report/Snapshot may be called from any transport goroutine, so
// both paths take the mutex to prevent torn reads under concurrent
// record + report.
type Collector struct {
	mu       sync.Mutex
	items    []RequestMetrics
	maxItems int
	prom     *promMetrics
}

// NewCollector returns a Collector retaining at most maxItems samples.
// maxItems is clamped to at least 1.
func NewCollector(maxItems int) *Collector {
	if maxItems < 1 {
		maxItems = 1
	}
	return &Collector{maxItems: maxItems, prom: newPromMetrics()}
}

// Record appends sample, discarding the oldest entries beyond maxItems.
func (c *Collector) Record(sample RequestMetrics) {
	c.mu.Lock()
	c.items = append(c.items, sample)
	if len(c.items) > c.maxItems {
		c.items = c.items[len(c.items)-c.maxItems:]
	}
	c.mu.Unlock()

	c.prom.observe(sample)
}

// Snapshot returns a copy of the retained samples in arrival order.
func (c *Collector) Snapshot() []RequestMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RequestMetrics, len(c.items))
	copy(out, c.items)
	return out
}

// Report aggregates the retained samples, overall and per device.
func (c *Collector) Report() Report {
	items := c.Snapshot()
	if len(items) == 0 {
		return Report{ByDevice: map[string]DeviceReport{}}
	}

	var totalTTFT, totalQueue float64
	byDevice := map[string]DeviceReport{}
	for _, item := range items {
		totalTTFT += item.TTFTMs
		totalQueue += item.QueueMs

		bucket := byDevice[item.Device]
		bucket.Count++
		bucket.AvgTTFTMs += item.TTFTMs
		bucket.AvgQueueMs += item.QueueMs
		byDevice[item.Device] = bucket
	}
	for label, bucket := range byDevice {
		n := float64(bucket.Count)
		bucket.AvgTTFTMs /= n
		bucket.AvgQueueMs /= n
		byDevice[label] = bucket
	}

	count := len(items)
	return Report{
		Count:      count,
		AvgTTFTMs:  totalTTFT / float64(count),
		AvgQueueMs: totalQueue / float64(count),
		ByDevice:   byDevice,
	}
}

// RegisterPrometheus registers the collector's Prometheus collectors with
// reg. Call once at startup; safe to skip entirely (the collector works
// fine without a Prometheus registry).
func (c *Collector) RegisterPrometheus(reg prometheusRegisterer) error {
	return c.prom.register(reg)
}
