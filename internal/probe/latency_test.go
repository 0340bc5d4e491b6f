package probe

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestLatency(targets []string, fn PingFunc) *Latency {
	return &Latency{
		resolver: StaticResolver{"eth0": mustAddr("192.168.1.10")},
		targets:  targets,
		count:    4,
		ping:     fn,
		logger:   zap.NewNop(),
		now:      func() time.Time { return fixedNow },
	}
}

func TestLatencyPartialFailure(t *testing.T) {
	t.Parallel()

	l := newTestLatency([]string{"A", "B"}, func(_ context.Context, host string, source netip.Addr, count int) (time.Duration, error) {
		if source.String() != "192.168.1.10" || count != 4 {
			return 0, errors.New("unexpected call")
		}
		if host == "A" {
			return 12 * time.Millisecond, nil
		}
		return 0, timeoutError("ping B", errors.New("no replies"))
	})
	logger, logs := observedLogger()
	l.logger = logger

	points, err := l.Probe(context.Background(), Target{Interface: "eth0"})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("points=%d", len(points))
	}
	p := points[0]
	if p.Measurement != "ping_latency" || p.Tags["interface"] != "eth0" || p.Tags["host"] != "A" {
		t.Fatalf("point=%+v", p)
	}
	assertField(t, p, "latency_ms", 12)
	if !p.Timestamp.Equal(fixedNow) {
		t.Fatalf("ts=%v", p.Timestamp)
	}

	failed := logs.FilterMessage("Ping failed").All()
	if len(failed) != 1 {
		t.Fatalf("failure logs=%d", len(failed))
	}
	fields := failed[0].ContextMap()
	if fields["host"] != "B" || fields["error_kind"] != string(FailureTimeout) {
		t.Fatalf("log fields=%v", fields)
	}
}

func TestLatencyAllFail(t *testing.T) {
	t.Parallel()

	l := newTestLatency([]string{"A", "B"}, func(context.Context, string, netip.Addr, int) (time.Duration, error) {
		return 0, timeoutError("ping", errors.New("no replies"))
	})

	points, err := l.Probe(context.Background(), Target{Interface: "eth0"})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(points) != 0 {
		t.Fatalf("points=%d", len(points))
	}
	if FailureOf(err) != FailureTimeout {
		t.Fatalf("failure=%q", FailureOf(err))
	}
}

func TestLatencyResolutionFailure(t *testing.T) {
	t.Parallel()

	called := false
	l := newTestLatency([]string{"A"}, func(context.Context, string, netip.Addr, int) (time.Duration, error) {
		called = true
		return time.Millisecond, nil
	})

	_, err := l.Probe(context.Background(), Target{Interface: "wlan0"})
	if FailureOf(err) != FailureResolution {
		t.Fatalf("err=%v", err)
	}
	if called {
		t.Fatal("ping must not run without a source address")
	}
}
