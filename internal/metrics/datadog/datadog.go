// Package datadog implements a Datadog backend for the internal/metrics package.
//
// NOTE ABOUT FLUSHING:
// Model training can run for minutes, so submitting only once at process
// exit would reduce a run to a single spike on dashboards. Therefore we:
//   - buffer metrics in-memory (fast, lock-protected)
//   - periodically Flush() on a ticker (default: once per minute)
//   - Flush() one final time on Close()
//
// Concurrency model:
//   - pipeline goroutines can call IncCounter/ObserveHistogram at any time
//   - Flush snapshots+resets buffers under a mutex, then submits out-of-lock
//   - the flush loop calls Flush() periodically; Close() stops the loop
//
// If the process is killed with SIGKILL/OOM, Close() won't run (no backend
// can fix that).
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"synthgen/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric.
	// If empty, defaults to "synthgen".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod", "service:synthgen"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// The following fields are unexported test seams. Production code
	// never sets them; unit tests use them to avoid real network
	// submission and nondeterministic clocks/tickers.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal interface needed to submit metrics.
// The Datadog SDK exposes a concrete *datadogV2.MetricsApi; depending
// on this interface instead enables deterministic tests with a fake.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	runCounts  map[string]float64   // model\x00status -> count
	rowCounts  map[string]float64   // model -> rows
	trainDur   map[string][]float64 // model\x00status -> seconds
	scoreGauge map[string][]float64 // model -> quality scores
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the background flush loop and performs one final Flush().
// Close is "call once": a second call panics on the closed channel.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// NewBackend constructs a Datadog backend using the official client.
//
// Edge cases:
//   - If opts.FlushEvery <= 0, defaults to 60s.
//   - If opts.JobName is empty, defaults to "synthgen".
//   - Environment tag selection uses ENV then DD_ENV, otherwise env:unknown.
//
// Client construction itself is not expected to fail; network errors
// surface from Flush().
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "synthgen"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	envTag := resolveEnvTag()
	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, envTag, "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		cfg := dd.NewConfiguration()
		client := dd.NewAPIClient(cfg)
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),

		baseTags: baseTags,

		now:       nowFn,
		newTicker: newTicker,

		runCounts:  make(map[string]float64),
		rowCounts:  make(map[string]float64),
		trainDur:   make(map[string][]float64),
		scoreGauge: make(map[string][]float64),
	}

	go b.loop()
	return b, nil
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.RunsTotal:
		b.runCounts[modelStatusKey(labels["model"], labels["status"])] += delta

	case metrics.RowsGenerated:
		model := labels["model"]
		if model == "" {
			return
		}
		b.rowCounts[model] += delta

	default:
		// Ignore unknown metrics by design.
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.TrainDurationSeconds:
		k := modelStatusKey(labels["model"], labels["status"])
		b.trainDur[k] = append(b.trainDur[k], value)

	case metrics.QualityScore:
		model := labels["model"]
		if model == "" {
			return
		}
		b.scoreGauge[model] = append(b.scoreGauge[model], value)

	default:
		// Ignore unknown histograms by design.
	}
}

// snapshot is the buffered metric state used to build one flush
// payload. Flush() must reset buffers under a lock but submit
// out-of-lock; snapshot separates collect+reset from build+submit.
type snapshot struct {
	runCounts  map[string]float64
	rowCounts  map[string]float64
	trainDur   map[string][]float64
	scoreGauge map[string][]float64
}

// snapshotAndReset grabs current buffered metrics and resets internal
// buffers. Takes the lock internally and returns detached maps.
func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		runCounts:  b.runCounts,
		rowCounts:  b.rowCounts,
		trainDur:   b.trainDur,
		scoreGauge: b.scoreGauge,
	}

	b.runCounts = make(map[string]float64)
	b.rowCounts = make(map[string]float64)
	b.trainDur = make(map[string][]float64)
	b.scoreGauge = make(map[string][]float64)

	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.runCounts) == 0 &&
		len(s.rowCounts) == 0 &&
		len(s.trainDur) == 0 &&
		len(s.scoreGauge) == 0
}

// Flush submits buffered metrics to Datadog and resets local buffers.
//
// Edge cases:
//   - Safe to call concurrently with IncCounter/ObserveHistogram.
//   - Buffers are reset even if submission fails, to keep the pipeline
//     fast and avoid blocking future writes.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	nowUnix := b.now().Unix()

	series := b.buildSeries(snap, nowUnix)
	payload := datadogV2.MetricPayload{Series: series}

	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries constructs Datadog series for a snapshot at a fixed
// timestamp. It is pure (no locks, no network, no clocks), which is
// what makes the naming/tagging contract unit-testable.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.runCounts)+len(s.rowCounts)+16)

	for k, v := range s.runCounts {
		if v == 0 {
			continue
		}
		model, status := splitModelStatusKey(k)
		tags := withTags(b.baseTags, "model:"+model, "status:"+status)
		series = append(series, countSeries("synth.runs.total", v, tags, nowUnix))
	}

	for model, v := range s.rowCounts {
		if v == 0 {
			continue
		}
		tags := withTags(b.baseTags, "model:"+model)
		series = append(series, countSeries("synth.rows.total", v, tags, nowUnix))
	}

	for k, samples := range s.trainDur {
		if len(samples) == 0 {
			continue
		}
		cp := append([]float64(nil), samples...)
		sort.Float64s(cp)
		model, status := splitModelStatusKey(k)
		tags := withTags(b.baseTags, "model:"+model, "status:"+status)
		series = append(series,
			gaugeSeries("synth.train.duration_seconds.p50", percentileNearestRank(cp, 0.50), tags, nowUnix),
			gaugeSeries("synth.train.duration_seconds.p95", percentileNearestRank(cp, 0.95), tags, nowUnix),
			gaugeSeries("synth.train.duration_seconds.max", cp[len(cp)-1], tags, nowUnix),
			gaugeSeries("synth.train.duration_seconds.samples", float64(len(cp)), tags, nowUnix),
		)
	}

	for model, samples := range s.scoreGauge {
		if len(samples) == 0 {
			continue
		}
		tags := withTags(b.baseTags, "model:"+model)
		// The last observed score is the authoritative one for a run.
		series = append(series, gaugeSeries("synth.quality.score", samples[len(samples)-1], tags, nowUnix))
	}

	return series
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func modelStatusKey(model, status string) string {
	if status == "" {
		status = "unknown"
	}
	return model + "\x00" + status
}

func splitModelStatusKey(k string) (model, status string) {
	parts := strings.SplitN(k, "\x00", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return k, "unknown"
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:synthgen".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
