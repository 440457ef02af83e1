package datadog

import (
	"context"
	"net/http"
	"os"
	"reflect"
	"runtime"
	"sort"
	"sync"
	"testing"
	"time"

	"synthgen/internal/metrics"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// fakeSubmitter captures payloads submitted by Backend.Flush().
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {

	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() (datadogV2.MetricPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return datadogV2.MetricPayload{}, false
	}
	return f.payloads[len(f.payloads)-1], true
}

// TestResolveEnvTag verifies environment-tag precedence and defaults.
//
// Edge cases:
//   - ENV wins over DD_ENV.
//   - Whitespace-only env vars are ignored.
//   - If neither is set, "env:unknown" is returned.
func TestResolveEnvTag(t *testing.T) {
	oldENV := os.Getenv("ENV")
	oldDDENV := os.Getenv("DD_ENV")
	t.Cleanup(func() {
		_ = os.Setenv("ENV", oldENV)
		_ = os.Setenv("DD_ENV", oldDDENV)
	})

	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{name: "ENV_wins", env: "prod", dd: "stage", want: "env:prod"},
		{name: "DD_ENV_used_when_ENV_empty", env: "", dd: "stage", want: "env:stage"},
		{name: "whitespace_ignored", env: "   ", dd: "\n\t", want: "env:unknown"},
		{name: "default_unknown", env: "", dd: "", want: "env:unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_ = os.Setenv("ENV", tc.env)
			_ = os.Setenv("DD_ENV", tc.dd)
			if got := resolveEnvTag(); got != tc.want {
				t.Fatalf("resolveEnvTag()=%q, want %q", got, tc.want)
			}
		})
	}
}

// TestModelStatusKeyRoundTrip verifies key encoding/decoding.
func TestModelStatusKeyRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		model  string
		status string
		want   string
	}{
		{name: "normal", model: "ctgan", status: "ok", want: "ok"},
		{name: "empty_model", model: "", status: "ok", want: "ok"},
		{name: "empty_status_defaults_unknown", model: "tvae", status: "", want: "unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			k := modelStatusKey(tc.model, tc.status)
			model, status := splitModelStatusKey(k)
			if model != tc.model || status != tc.want {
				t.Fatalf("roundtrip got=(%q,%q), want=(%q,%q)", model, status, tc.model, tc.want)
			}
		})
	}

	t.Run("split_without_separator_defaults_unknown_status", func(t *testing.T) {
		model, status := splitModelStatusKey("no-sep")
		if model != "no-sep" || status != "unknown" {
			t.Fatalf("splitModelStatusKey()=(%q,%q), want=(%q,%q)", model, status, "no-sep", "unknown")
		}
	})
}

// TestWithTags verifies tag concatenation and immutability.
func TestWithTags(t *testing.T) {
	base := []string{"env:test", "job:synthgen"}
	extras := []string{"model:ctgan", "status:ok"}
	got := withTags(base, extras...)
	want := []string{"env:test", "job:synthgen", "model:ctgan", "status:ok"}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("withTags()=%v, want %v", got, want)
	}
	if !reflect.DeepEqual(base, []string{"env:test", "job:synthgen"}) {
		t.Fatalf("withTags mutated base: %v", base)
	}
	got[0] = "env:mutated"
	if base[0] == "env:mutated" {
		t.Fatalf("withTags output aliases base slice; base should not change when output is modified")
	}
}

// TestPercentileNearestRank verifies percentile behavior.
func TestPercentileNearestRank(t *testing.T) {
	tests := []struct {
		name string
		s    []float64
		p    float64
		want float64
	}{
		{name: "empty", s: nil, p: 0.50, want: 0},
		{name: "single", s: []float64{7}, p: 0.95, want: 7},
		{name: "p_le_0", s: []float64{1, 2, 3}, p: -1, want: 1},
		{name: "p_ge_1", s: []float64{1, 2, 3}, p: 2, want: 3},
		{name: "median", s: []float64{1, 2, 3, 4, 5}, p: 0.50, want: 3},
		{name: "p90_small_n", s: []float64{1, 2, 3, 4, 5}, p: 0.90, want: 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := percentileNearestRank(tc.s, tc.p); got != tc.want {
				t.Fatalf("percentileNearestRank(%v,%v)=%v, want %v", tc.s, tc.p, got, tc.want)
			}
		})
	}
}

// TestGaugeSeries verifies gaugeSeries timestamps and values.
func TestGaugeSeries(t *testing.T) {
	now := int64(1234567)
	s := gaugeSeries("synth.test.gauge", 3.14, []string{"env:test"}, now)

	if s.Metric != "synth.test.gauge" {
		t.Fatalf("Metric=%q, want %q", s.Metric, "synth.test.gauge")
	}
	if s.Type == nil || *s.Type != datadogV2.METRICINTAKETYPE_GAUGE {
		t.Fatalf("Type=%v, want GAUGE", s.Type)
	}
	if len(s.Points) != 1 {
		t.Fatalf("Points.len=%d, want 1", len(s.Points))
	}
	if s.Points[0].Timestamp == nil || *s.Points[0].Timestamp != now {
		t.Fatalf("Timestamp=%v, want %d", s.Points[0].Timestamp, now)
	}
	if s.Points[0].Value == nil || *s.Points[0].Value != 3.14 {
		t.Fatalf("Value=%v, want 3.14", s.Points[0].Value)
	}
}

// TestNewBackend_Defaults verifies defaults and initialization behavior without real HTTP.
//
// Coverage target:
//   - NewBackend
func TestNewBackend_Defaults(t *testing.T) {
	fs := &fakeSubmitter{}
	opts := Options{
		JobName:    "", // should default
		FlushEvery: 0,  // should default
		Tags:       []string{"service:synthgen"},
		submitter:  fs,
		now:        func() time.Time { return time.Unix(123, 0) },
		newTicker:  func(d time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) }, // effectively disables loop in this test
	}

	b, err := NewBackend(context.Background(), opts)
	if err != nil {
		t.Fatalf("NewBackend() err=%v, want nil", err)
	}
	defer func() { _ = b.Close() }()

	// baseTags should include env tag + job tag + provided tags.
	// env tag depends on env vars; we just require the job and service tags exist.
	if !contains(b.baseTags, "job:synthgen") {
		t.Fatalf("baseTags missing job:synthgen: %v", b.baseTags)
	}
	if !contains(b.baseTags, "service:synthgen") {
		t.Fatalf("baseTags missing service:synthgen: %v", b.baseTags)
	}
	if b.flushEvery != 60*time.Second {
		t.Fatalf("flushEvery=%s, want 60s", b.flushEvery)
	}
}

// TestFlush_SubmitsAndResets verifies Flush submits buffered metrics and resets buffers.
//
// Coverage target:
//   - Flush
func TestFlush_SubmitsAndResets(t *testing.T) {
	fs := &fakeSubmitter{}
	opts := Options{
		JobName:    "job1",
		FlushEvery: 24 * time.Hour, // minimize loop behavior
		submitter:  fs,
		now:        func() time.Time { return time.Unix(1000, 0) },
		newTicker:  func(d time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) },
	}

	b, err := NewBackend(context.Background(), opts)
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { _ = b.Close() }()

	b.IncCounter(metrics.RunsTotal, 1, metrics.Labels{"model": "ctgan", "status": "ok"})
	b.IncCounter(metrics.RowsGenerated, 2000, metrics.Labels{"model": "ctgan"})
	b.ObserveHistogram(metrics.TrainDurationSeconds, 12.5, metrics.Labels{"model": "ctgan", "status": "ok"})
	b.ObserveHistogram(metrics.QualityScore, 0.91, metrics.Labels{"model": "ctgan"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v, want nil", err)
	}
	if fs.count() != 1 {
		t.Fatalf("submit calls=%d, want 1", fs.count())
	}

	// Buffers should be reset after flush.
	if len(b.runCounts) != 0 || len(b.rowCounts) != 0 || len(b.trainDur) != 0 || len(b.scoreGauge) != 0 {
		t.Fatalf("buffers not reset after Flush")
	}

	// Validate payload contains expected metrics.
	payload, ok := fs.last()
	if !ok {
		t.Fatalf("missing payload")
	}

	var metricNames []string
	for _, s := range payload.Series {
		metricNames = append(metricNames, s.Metric)
	}
	sort.Strings(metricNames)

	wantContains := []string{
		"synth.runs.total",
		"synth.rows.total",
		"synth.train.duration_seconds.p50",
		"synth.train.duration_seconds.samples",
		"synth.quality.score",
	}
	for _, w := range wantContains {
		if !contains(metricNames, w) {
			t.Fatalf("payload missing metric %q; got=%v", w, metricNames)
		}
	}
}

// TestFlush_NoDataDoesNotSubmit verifies Flush returns nil and does not submit when empty.
//
// Coverage target:
//   - Flush empty-path
func TestFlush_NoDataDoesNotSubmit(t *testing.T) {
	fs := &fakeSubmitter{}
	opts := Options{
		JobName:    "job1",
		FlushEvery: 24 * time.Hour,
		submitter:  fs,
		now:        func() time.Time { return time.Unix(1000, 0) },
		newTicker:  func(d time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) },
	}

	b, err := NewBackend(context.Background(), opts)
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { _ = b.Close() }()

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v, want nil", err)
	}
	if fs.count() != 0 {
		t.Fatalf("unexpected submission count=%d, want 0", fs.count())
	}
}

// TestLoopAndClose verifies the background loop flushes periodically and Close performs a final flush.
//
// Coverage target:
//   - loop
//   - Close
func TestLoopAndClose(t *testing.T) {
	fs := &fakeSubmitter{}

	// Use a fast ticker to trigger at least one background flush.
	opts := Options{
		JobName:    "job1",
		FlushEvery: 5 * time.Millisecond,
		submitter:  fs,
		now:        func() time.Time { return time.Unix(2000, 0) },
		// Use real ticker for this test (default), so loop is exercised.
	}

	b, err := NewBackend(context.Background(), opts)
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}

	// Put some data in the buffers; loop should flush it.
	b.IncCounter(metrics.RunsTotal, 1, metrics.Labels{"model": "par", "status": "ok"})

	// Wait briefly for at least one tick.
	deadline := time.Now().Add(250 * time.Millisecond)
	for time.Now().Before(deadline) {
		if fs.count() >= 1 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if fs.count() < 1 {
		_ = b.Close()
		t.Fatalf("expected at least one background Flush submission; got %d", fs.count())
	}

	// Add more data; Close should perform a final flush.
	b.IncCounter(metrics.RunsTotal, 1, metrics.Labels{"model": "par", "status": "ok"})
	if err := b.Close(); err != nil {
		t.Fatalf("Close() err=%v, want nil", err)
	}

	// Close performs a final flush, so we expect at least 2 submissions total:
	// one from the periodic loop, one from Close()'s final Flush().
	if fs.count() < 2 {
		t.Fatalf("expected at least 2 submissions after Close; got %d", fs.count())
	}
}

// TestBackend_ConcurrentAccess verifies thread-safety of buffering.
// This also covers IncCounter/ObserveHistogram under race-like conditions.
func TestBackend_ConcurrentAccess(t *testing.T) {
	fs := &fakeSubmitter{}
	opts := Options{
		JobName:    "job1",
		FlushEvery: 24 * time.Hour,
		submitter:  fs,
		now:        func() time.Time { return time.Unix(3000, 0) },
		newTicker:  func(d time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) },
	}
	b, err := NewBackend(context.Background(), opts)
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { _ = b.Close() }()

	workers := runtime.GOMAXPROCS(0) * 4
	iters := 2000

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iters; j++ {
				b.IncCounter(metrics.RunsTotal, 1, metrics.Labels{"model": "ctgan", "status": "ok"})
				b.IncCounter(metrics.RowsGenerated, 1, metrics.Labels{"model": "ctgan"})
				b.ObserveHistogram(metrics.TrainDurationSeconds, 0.01, metrics.Labels{"model": "ctgan", "status": "ok"})
				b.ObserveHistogram(metrics.QualityScore, 0.5, metrics.Labels{"model": "ctgan"})
			}
		}()
	}
	wg.Wait()

	// Force a flush and validate no panic and one submission.
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v, want nil", err)
	}
	if fs.count() != 1 {
		t.Fatalf("submit calls=%d, want 1", fs.count())
	}
}

// TestIncCounterAndObserveHistogram_EdgeCases verifies ignored paths and defaults.
func TestIncCounterAndObserveHistogram_EdgeCases(t *testing.T) {
	fs := &fakeSubmitter{}
	opts := Options{
		JobName:    "job1",
		FlushEvery: 24 * time.Hour,
		submitter:  fs,
		now:        func() time.Time { return time.Unix(4000, 0) },
		newTicker:  func(d time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) },
	}
	b, err := NewBackend(context.Background(), opts)
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { _ = b.Close() }()

	// Non-positive counter should be ignored.
	b.IncCounter(metrics.RunsTotal, 0, nil)
	// Missing model should be ignored for row counts.
	b.IncCounter(metrics.RowsGenerated, 1, metrics.Labels{})
	// Unknown metric should be ignored.
	b.IncCounter("unknown_total", 1, metrics.Labels{"x": "y"})
	// Negative histogram should be ignored.
	b.ObserveHistogram(metrics.TrainDurationSeconds, -1, metrics.Labels{"model": "tvae", "status": "ok"})
	// Missing status should default "unknown".
	b.IncCounter(metrics.RunsTotal, 1, metrics.Labels{"model": "tvae"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v, want nil", err)
	}

	payload, ok := fs.last()
	if !ok {
		t.Fatalf("missing payload")
	}

	var sawRuns bool
	for _, s := range payload.Series {
		if s.Metric == "synth.runs.total" && contains(s.Tags, "status:unknown") && contains(s.Tags, "model:tvae") {
			sawRuns = true
		}
		if s.Metric == "synth.rows.total" {
			t.Fatalf("rows.total should have been ignored without a model label")
		}
	}
	if !sawRuns {
		t.Fatalf("expected synth.runs.total for status:unknown")
	}
}

func contains[T comparable](xs []T, v T) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func TestParseTagsCSV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "empty_returns_nil",
			in:   "",
			want: nil,
		},
		{
			name: "trims_and_skips_empty_segments",
			in:   " env:prod , ,service:synthgen,  ,team:data ",
			want: []string{"env:prod", "service:synthgen", "team:data"},
		},
		{
			name: "single_tag",
			in:   "service:synthgen",
			want: []string{"service:synthgen"},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ParseTagsCSV(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ParseTagsCSV(%q)=%v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
