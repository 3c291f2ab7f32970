// Package stats tracks pipeline statistics as Prometheus collectors.
//
// A nil *Collector is valid and records nothing, so components can be built
// without metrics in tests.
package stats

import (
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

// Collector collects and tracks pipeline statistics.
type Collector struct {
	startTime time.Time

	commands     *prometheus.CounterVec
	toolCalls    *prometheus.CounterVec
	toolLatency  *prometheus.HistogramVec
	modelCalls   *prometheus.CounterVec
	modelLatency prometheus.Histogram
	modelTokens  prometheus.Counter
	fallbacks    *prometheus.CounterVec
	chunks       prometheus.Counter
	streams      prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewCollector registers the pipeline collectors on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		startTime: time.Now(),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opsconsole_commands_total",
			Help: "Direct commands handled, by action and outcome",
		}, []string{"action", "outcome"}),
		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opsconsole_tool_calls_total",
			Help: "Tool executions, by tool, channel and success",
		}, []string{"tool", "channel", "success"}),
		toolLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opsconsole_tool_duration_seconds",
			Help:    "Tool execution latency",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"tool"}),
		modelCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opsconsole_model_requests_total",
			Help: "Reasoning-service calls, by outcome",
		}, []string{"outcome"}),
		modelLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "opsconsole_model_latency_seconds",
			Help:    "Reasoning-service call latency",
			Buckets: prometheus.DefBuckets,
		}),
		modelTokens: f.NewCounter(prometheus.CounterOpts{
			Name: "opsconsole_model_tokens_total",
			Help: "Tokens reported by the reasoning service",
		}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opsconsole_fallbacks_total",
			Help: "Chat answers produced by the fallback responder, by reason",
		}, []string{"reason"}),
		chunks: f.NewCounter(prometheus.CounterOpts{
			Name: "opsconsole_stream_chunks_total",
			Help: "Chunks emitted on chat streams",
		}),
		streams: f.NewGauge(prometheus.GaugeOpts{
			Name: "opsconsole_active_streams",
			Help: "Chat streams currently open",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opsconsole_http_requests_total",
			Help: "HTTP requests, by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "opsconsole_http_request_duration_seconds",
			Help: "HTTP request duration",
		}, []string{"method", "route"}),
	}
}

// RecordCommand counts a direct command.
func (c *Collector) RecordCommand(action protocol.Action, outcome string) {
	if c == nil {
		return
	}
	c.commands.WithLabelValues(string(action), outcome).Inc()
}

// RecordTool counts one tool execution.
func (c *Collector) RecordTool(name string, channel protocol.Channel, success bool, d time.Duration) {
	if c == nil {
		return
	}
	c.toolCalls.WithLabelValues(name, string(channel), strconv.FormatBool(success)).Inc()
	c.toolLatency.WithLabelValues(name).Observe(d.Seconds())
}

// RecordModelCall counts a reasoning-service call.
func (c *Collector) RecordModelCall(outcome string, tokens int, d time.Duration) {
	if c == nil {
		return
	}
	c.modelCalls.WithLabelValues(outcome).Inc()
	c.modelLatency.Observe(d.Seconds())
	if tokens > 0 {
		c.modelTokens.Add(float64(tokens))
	}
}

// RecordFallback counts a fallback answer.
func (c *Collector) RecordFallback(reason string) {
	if c == nil {
		return
	}
	c.fallbacks.WithLabelValues(reason).Inc()
}

// RecordChunks counts emitted stream chunks.
func (c *Collector) RecordChunks(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.chunks.Add(float64(n))
}

// StreamOpened and StreamClosed track open chat streams.
func (c *Collector) StreamOpened() {
	if c != nil {
		c.streams.Inc()
	}
}

func (c *Collector) StreamClosed() {
	if c != nil {
		c.streams.Dec()
	}
}

// RecordHTTP observes one HTTP request.
func (c *Collector) RecordHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Stats is the process snapshot reported by the health endpoint.
type Stats struct {
	Uptime      string  `json:"uptime"`
	Goroutines  int     `json:"goroutines"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	HeapSysMB   float64 `json:"heap_sys_mb"`
	NumGC       uint32  `json:"num_gc"`
}

// Snapshot returns current process statistics.
func (c *Collector) Snapshot() *Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	s := &Stats{
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: bytesToMB(m.HeapAlloc),
		HeapSysMB:   bytesToMB(m.HeapSys),
		NumGC:       m.NumGC,
	}
	if c != nil {
		s.Uptime = time.Since(c.startTime).Round(time.Second).String()
	}
	return s
}

func bytesToMB(b uint64) float64 {
	return float64(b) / 1024 / 1024
}
