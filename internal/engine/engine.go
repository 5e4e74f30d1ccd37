// Package engine implements the request-processing engine: the batching
// queue and worker loop that coalesce concurrent inbound requests into
// micro-batches, and the orchestration of scheduling, sharding, KV
// bookkeeping, dispatch, and metrics for each item.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/relayserve/relayserve/internal/config"
	"github.com/relayserve/relayserve/internal/device"
	"github.com/relayserve/relayserve/internal/dispatcher"
	"github.com/relayserve/relayserve/internal/kv"
	"github.com/relayserve/relayserve/internal/metrics"
	"github.com/relayserve/relayserve/internal/queue"
	"github.com/relayserve/relayserve/internal/runner"
	"github.com/relayserve/relayserve/internal/scheduler"
	"github.com/relayserve/relayserve/internal/shard"
)

// Meta is the per-response metadata handed back to the transport.
type Meta struct {
	Device    string  `json:"device"`
	Backend   string  `json:"backend"`
	QueueMs   float64 `json:"queue_ms"`
	TTFTMs    float64 `json:"ttft_ms"`
	BatchSize int     `json:"batch_size"`
}

// Result is the resolved reply for one chat request.
type Result struct {
	Reply string `json:"reply"`
	Meta  Meta   `json:"meta"`
}

// KVReport mirrors kv.Stats in the metrics-report JSON shape.
type KVReport struct {
	CachedTokens  int `json:"cached_tokens"`
	ResidentBytes int `json:"resident_bytes"`
	Handoffs      int `json:"handoffs"`
	Offloads      int `json:"offloads"`
}

// ShardReport mirrors shard.Plan in the metrics-report JSON shape.
type ShardReport struct {
	Placements  []string           `json:"placements"`
	LayerRanges []shard.LayerRange `json:"layer_ranges"`
}

// MetricsReport is the full payload returned by Engine.MetricsReport.
type MetricsReport struct {
	Stats      metrics.Report `json:"stats"`
	QueueDepth int            `json:"queue_depth"`
	KV         KVReport       `json:"kv"`
	ShardPlan  ShardReport    `json:"shard_plan"`
}

// requestItem is the engine-internal queue entry.
type requestItem struct {
	prompt      string
	requestID   string
	enqueueTime time.Time
	resultCh    chan Result
}

// Engine is the central orchestrator: it exclusively owns the queue,
// worker goroutine, KV cache, metrics collector, and shard planner, and
// holds read-only handles to the device registry and dispatcher.
type Engine struct {
	settings   config.Settings
	registry   *device.Registry
	scheduler  *scheduler.Scheduler
	dispatcher *dispatcher.Dispatcher
	runner     *runner.Runner
	planner    *shard.Planner
	kvManager  *kv.Manager
	collector  *metrics.Collector

	queue      *queue.Queue[*requestItem]
	batchSize  int
	batchWait  time.Duration
}

// New constructs an Engine from settings and a pre-probed device list,
// starts its worker goroutine, and returns it. Returns an error if the
// device/layer configuration is infeasible, since that error is fatal
// and should surface at construction rather than mid-request.
func New(settings config.Settings, devices []device.Device) (*Engine, error) {
	registry := device.NewRegistry()
	registry.AddAll(devices)

	planner := shard.NewPlanner()
	if _, err := planner.Plan(registry.List(), settings.TotalLayers); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	batchSize := settings.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	batchWaitMs := settings.BatchWaitMs
	if batchWaitMs < 0 {
		batchWaitMs = 0
	}

	e := &Engine{
		settings:   settings,
		registry:   registry,
		scheduler:  scheduler.New(registry),
		dispatcher: dispatcher.New(settings.Backends, settings.ModelID),
		runner:     runner.New(),
		planner:    planner,
		kvManager:  kv.NewManager(),
		collector:  metrics.NewCollector(settings.MetricsMaxItems),
		queue:      queue.New[*requestItem](),
		batchSize:  batchSize,
		batchWait:  time.Duration(batchWaitMs) * time.Millisecond,
	}

	go e.runLoop()
	return e, nil
}

// HandleChat enqueues prompt and blocks until the worker resolves it.
// requestID, when non-empty, is honoured as the caller-supplied request
// id (e.g. from an inbound X-Request-ID header); otherwise one is minted
// per item during processing.
func (e *Engine) HandleChat(ctx context.Context, prompt, requestID string) Result {
	item := &requestItem{
		prompt:      prompt,
		requestID:   requestID,
		enqueueTime: time.Now(),
		resultCh:    make(chan Result, 1),
	}
	e.queue.Push(item)

	select {
	case result := <-item.resultCh:
		return result
	case <-ctx.Done():
		// The caller stopped waiting; the worker still resolves resultCh
		// into its buffered slot so the worker never blocks on a vanished
		// reader. There is no cancellation token threaded into the batch
		// itself — giving up here only stops *this* call from waiting.
		return Result{Reply: "request cancelled", Meta: Meta{Device: "none", Backend: "none"}}
	}
}

// HandleChatStream is the streaming counterpart to HandleChat: it performs
// the same device-pick/shard-plan/KV-seed bookkeeping, then delivers the
// reply as a sequence of chunks instead of waiting on a resolved future.
// It bypasses the batching queue entirely, since a streaming caller holds
// one open connection rather than one slot in a micro-batch; the chunk
// source is the dispatcher's upstream SSE stream when a backend is
// configured, or a single synthetic chunk from the echo runner otherwise.
// The returned channel is closed once the reply is fully delivered.
func (e *Engine) HandleChatStream(ctx context.Context, prompt, requestID string) <-chan dispatcher.Chunk {
	start := time.Now()
	out := make(chan dispatcher.Chunk)

	if requestID == "" {
		requestID = newRequestID()
	}

	decision, ok := e.scheduler.PickDevice(prompt)
	if !ok {
		go func() {
			defer close(out)
			out <- syntheticChunk(requestID, e.settings.ModelID, "No devices available.")
		}()
		return out
	}

	plan, err := e.planner.Plan(e.registry.List(), e.settings.TotalLayers)
	if err != nil {
		go func() {
			defer close(out)
			out <- syntheticChunk(requestID, e.settings.ModelID, fmt.Sprintf("shard planning error: %v", err))
		}()
		return out
	}

	e.seedKVPrefix(requestID, prompt, plan)
	e.handoffKV(requestID, plan)
	deviceLabel := decision.Device.Label()

	go func() {
		defer close(out)
		defer e.kvManager.Drop(requestID)

		if !e.dispatcher.HasBackends() {
			reply := e.runner.Run(decision.Device, prompt)
			out <- syntheticChunk(requestID, e.settings.ModelID, reply)
			e.recordStream(start, deviceLabel, decision.Device.Backend, wordCount(reply))
			return
		}

		upstream, errs := e.dispatcher.ChatStream(ctx, prompt, requestID, e.settings.ModelID)
		tokens := 0
		for chunk := range upstream {
			tokens++
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if streamErr := <-errs; streamErr != nil {
			logrus.Warnf("engine: stream dispatch failed: %v", streamErr)
			out <- syntheticChunk(requestID, e.settings.ModelID, fmt.Sprintf("upstream stream error: %v", streamErr))
		}
		e.recordStream(start, deviceLabel, "llama.cpp", tokens)
	}()

	return out
}

func (e *Engine) recordStream(start time.Time, device, backend string, tokens int) {
	elapsedMs := float64(time.Since(start)) / float64(time.Millisecond)
	e.collector.Record(metrics.RequestMetrics{
		TTFTMs:    elapsedMs,
		Tokens:    tokens,
		BatchSize: 1,
		Device:    device,
		Backend:   backend,
	})
}

func syntheticChunk(requestID, modelID, content string) dispatcher.Chunk {
	return dispatcher.Chunk{
		"id":     requestID,
		"object": "chat.completion.chunk",
		"model":  modelID,
		"choices": []any{
			map[string]any{
				"index": 0,
				"delta": map[string]any{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
	}
}

// MetricsReport assembles the operational snapshot the transport exposes
// at /metrics and /debug/shard.
func (e *Engine) MetricsReport() MetricsReport {
	stats := e.kvManager.Stats()
	plan, err := e.planner.Plan(e.registry.List(), e.settings.TotalLayers)
	if err != nil {
		plan = shard.Plan{}
	}
	return MetricsReport{
		Stats:      e.collector.Report(),
		QueueDepth: e.queue.Len(),
		KV: KVReport{
			CachedTokens:  stats.CachedTokens,
			ResidentBytes: stats.ResidentBytes,
			Handoffs:      stats.Handoffs,
			Offloads:      stats.Offloads,
		},
		ShardPlan: ShardReport{
			Placements:  plan.Placements,
			LayerRanges: plan.LayerRanges,
		},
	}
}

// Collector exposes the metrics collector so the transport can register
// it with a Prometheus registry.
func (e *Engine) Collector() *metrics.Collector {
	return e.collector
}

func (e *Engine) runLoop() {
	for {
		first := e.queue.Pop()
		batch := []*requestItem{first}
		deadline := time.Now().Add(e.batchWait)
		for len(batch) < e.batchSize {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			next, ok := e.queue.PopWait(remaining)
			if !ok {
				break
			}
			batch = append(batch, next)
		}
		e.processBatch(batch)
	}
}

func (e *Engine) processBatch(batch []*requestItem) {
	batchSize := len(batch)
	for _, item := range batch {
		e.processItemSafely(item, batchSize)
	}
}

// processItemSafely processes one item, recovering from any panic so a
// single bad item cannot corrupt the engine or starve its batch siblings.
func (e *Engine) processItemSafely(item *requestItem, batchSize int) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("engine: recovered panic processing request: %v", r)
			select {
			case item.resultCh <- Result{
				Reply: fmt.Sprintf("internal error: %v", r),
				Meta:  Meta{Device: "none", Backend: "none", BatchSize: batchSize},
			}:
			default:
			}
		}
	}()
	e.processItem(item, batchSize)
}

func (e *Engine) processItem(item *requestItem, batchSize int) {
	start := time.Now()

	decision, ok := e.scheduler.PickDevice(item.prompt)
	if !ok {
		e.resolve(item, start, Result{
			Reply: "No devices available.",
			Meta:  Meta{Device: "none", Backend: "none", BatchSize: batchSize},
		})
		return
	}

	requestID := item.requestID
	if requestID == "" {
		requestID = newRequestID()
	}

	plan, err := e.planner.Plan(e.registry.List(), e.settings.TotalLayers)
	if err != nil {
		e.resolve(item, start, Result{
			Reply: fmt.Sprintf("shard planning error: %v", err),
			Meta:  Meta{Device: "none", Backend: "none", BatchSize: batchSize},
		})
		return
	}

	e.seedKVPrefix(requestID, item.prompt, plan)
	e.handoffKV(requestID, plan)

	var reply, backend string
	if upstream, ok := e.dispatcher.Chat(context.Background(), item.prompt); ok && upstream != "" {
		reply = upstream
		backend = "llama.cpp"
	} else {
		reply = e.runner.Run(decision.Device, item.prompt)
		backend = decision.Device.Backend
	}
	deviceLabel := decision.Device.Label()
	e.kvManager.Drop(requestID)

	elapsedMs := float64(time.Since(start)) / float64(time.Millisecond)
	queueMs := float64(start.Sub(item.enqueueTime)) / float64(time.Millisecond)

	e.collector.Record(metrics.RequestMetrics{
		TTFTMs:    elapsedMs,
		QueueMs:   queueMs,
		Tokens:    wordCount(reply),
		BatchSize: batchSize,
		Device:    deviceLabel,
		Backend:   backend,
	})

	e.resolveDirect(item, Result{
		Reply: reply,
		Meta: Meta{
			Device:    deviceLabel,
			Backend:   backend,
			QueueMs:   queueMs,
			TTFTMs:    elapsedMs,
			BatchSize: batchSize,
		},
	})
}

func (e *Engine) seedKVPrefix(requestID, prompt string, plan shard.Plan) {
	if len(plan.LayerRanges) == 0 {
		return
	}
	tokens := wordCount(prompt)
	if tokens < 1 {
		tokens = 1
	}
	e.kvManager.SeedPrefix(requestID, tokens)
}

func (e *Engine) handoffKV(requestID string, plan shard.Plan) {
	for i := 1; i < len(plan.Placements); i++ {
		e.kvManager.Handoff(requestID, plan.Placements[i-1], plan.Placements[i])
	}
}

// resolve records the "no devices" / error short-circuit path's metrics
// sample before resolving the sink, keeping metrics and result delivery
// in the same order the normal dispatch path uses.
func (e *Engine) resolve(item *requestItem, start time.Time, result Result) {
	elapsedMs := float64(time.Since(start)) / float64(time.Millisecond)
	queueMs := float64(start.Sub(item.enqueueTime)) / float64(time.Millisecond)
	result.Meta.TTFTMs = elapsedMs
	result.Meta.QueueMs = queueMs
	e.collector.Record(metrics.RequestMetrics{
		TTFTMs:    elapsedMs,
		QueueMs:   queueMs,
		Tokens:    wordCount(result.Reply),
		BatchSize: result.Meta.BatchSize,
		Device:    result.Meta.Device,
		Backend:   result.Meta.Backend,
	})
	e.resolveDirect(item, result)
}

func (e *Engine) resolveDirect(item *requestItem, result Result) {
	item.resultCh <- result
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func newRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
