package influx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"wan_mon/internal/config"
	"wan_mon/internal/metrics"
	"wan_mon/internal/probe"
)

type flakyWriter struct {
	mu       sync.Mutex
	failures int
	calls    int
	stored   []*write.Point
}

func (f *flakyWriter) WritePoint(_ context.Context, points ...*write.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	f.stored = append(f.stored, points...)
	return nil
}

func testConfig() config.InfluxConfig {
	return config.InfluxConfig{
		URL:          "http://localhost:8086",
		Token:        "token",
		Org:          "org",
		Bucket:       "bucket",
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
		Timeout:      time.Second,
	}
}

func newTestSink(w pointWriter) *Sink {
	s := New(config.InfluxConfig{MaxRetries: 3, RetryBackoff: time.Millisecond, Timeout: time.Second},
		metrics.New(prometheus.NewRegistry()), zap.NewNop())
	s.writer = w
	return s
}

func latencyPoint() probe.DataPoint {
	return probe.DataPoint{
		Measurement: "ping_latency",
		Tags:        map[string]string{"interface": "eth0", "host": "A"},
		Fields:      map[string]float64{"latency_ms": 12},
		Timestamp:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestWriteRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	w := &flakyWriter{failures: 2}
	s := newTestSink(w)

	if err := s.Write(context.Background(), []probe.DataPoint{latencyPoint()}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if w.calls != 3 {
		t.Fatalf("calls=%d", w.calls)
	}
	if len(w.stored) != 1 || w.stored[0].Name() != "ping_latency" {
		t.Fatalf("stored=%v", w.stored)
	}
}

func TestWriteGivesUp(t *testing.T) {
	t.Parallel()

	w := &flakyWriter{failures: 10}
	s := newTestSink(w)

	err := s.Write(context.Background(), []probe.DataPoint{latencyPoint()})
	var sinkErr *SinkError
	if !errors.As(err, &sinkErr) {
		t.Fatalf("err=%v", err)
	}
	if sinkErr.Attempts != 3 || sinkErr.Points != 1 {
		t.Fatalf("sink error=%+v", sinkErr)
	}
	if w.calls != 3 || len(w.stored) != 0 {
		t.Fatalf("calls=%d stored=%d", w.calls, len(w.stored))
	}
}

func TestWriteStopsOnCancel(t *testing.T) {
	t.Parallel()

	w := &flakyWriter{failures: 10}
	s := newTestSink(w)
	s.backoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := s.Write(ctx, []probe.DataPoint{latencyPoint()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}

func TestWriteDropsInvalidPoints(t *testing.T) {
	t.Parallel()

	w := &flakyWriter{}
	s := newTestSink(w)

	bad := latencyPoint()
	bad.Tags = map[string]string{"interface": "eth0"}
	if err := s.Write(context.Background(), []probe.DataPoint{bad, latencyPoint()}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(w.stored) != 1 {
		t.Fatalf("stored=%d", len(w.stored))
	}
}

func TestDryRun(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Token = ""
	s := New(cfg, metrics.New(prometheus.NewRegistry()), zap.NewNop())
	if !s.DryRun() {
		t.Fatal("expected dry run without token")
	}
	if err := s.Write(context.Background(), []probe.DataPoint{latencyPoint()}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	s.Close()
}

func TestClientAgainstServer(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		body string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			b, _ := io.ReadAll(r.Body)
			mu.Lock()
			body = string(b)
			mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.URL = srv.URL
	s := New(cfg, metrics.New(prometheus.NewRegistry()), zap.NewNop())
	defer s.Close()

	if err := s.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if err := s.Write(context.Background(), []probe.DataPoint{latencyPoint()}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !strings.HasPrefix(body, "ping_latency,") || !strings.Contains(body, "latency_ms=12") {
		t.Fatalf("body=%q", body)
	}
}
