package probe

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func mustAddr(s string) netip.Addr {
	return netip.MustParseAddr(s)
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

type fakeRunner struct {
	out  []byte
	err  error
	name string
	args []string
}

func (f *fakeRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	f.name = name
	f.args = args
	return f.out, f.err
}

func assertField(t *testing.T, p DataPoint, name string, want float64) {
	t.Helper()
	got, ok := p.Fields[name]
	if !ok {
		t.Fatalf("field %s missing in %v", name, p.Fields)
	}
	if got != want {
		t.Fatalf("%s=%v want %v", name, got, want)
	}
}
