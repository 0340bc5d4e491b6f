package probe

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/go-ping/ping"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"wan_mon/pkg/measurement"
)

// PingFunc отправляет count эхо-запросов к host с адреса source и возвращает среднее RTT
type PingFunc func(ctx context.Context, host string, source netip.Addr, count int) (time.Duration, error)

// Latency измеряет задержку до каждой цели через заданный интерфейс
type Latency struct {
	resolver Resolver
	targets  []string
	count    int
	ping     PingFunc
	logger   *zap.Logger
	now      func() time.Time
}

// NewLatency создает пробу задержки на базе go-ping
func NewLatency(resolver Resolver, targets []string, count int, timeout time.Duration, privileged bool, logger *zap.Logger) *Latency {
	return &Latency{
		resolver: resolver,
		targets:  targets,
		count:    count,
		ping:     ICMPPing(timeout, privileged),
		logger:   logger,
		now:      time.Now,
	}
}

// Kind реализует Prober
func (l *Latency) Kind() Kind { return KindLatency }

// Probe пингует все цели параллельно; недоступная цель не отменяет остальные
func (l *Latency) Probe(ctx context.Context, target Target) ([]DataPoint, error) {
	source, err := l.resolver.Resolve(ctx, target.Interface)
	if err != nil {
		return nil, err
	}

	type result struct {
		rtt time.Duration
		err error
	}
	results := make([]result, len(l.targets))

	var wg sync.WaitGroup
	for i, host := range l.targets {
		wg.Add(1)
		go func(i int, host string) {
			defer wg.Done()
			rtt, err := l.ping(ctx, host, source, l.count)
			results[i] = result{rtt: rtt, err: err}
		}(i, host)
	}
	wg.Wait()

	var (
		points []DataPoint
		errs   error
	)
	observed := l.now()
	for i, host := range l.targets {
		res := results[i]
		if res.err != nil {
			l.logger.Warn("Ping failed",
				zap.String("interface", target.Interface),
				zap.String("host", host),
				zap.String("error_kind", string(FailureOf(res.err))),
				zap.Error(res.err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", host, res.err))
			continue
		}

		latencyMs := float64(res.rtt) / float64(time.Millisecond)
		points = append(points, DataPoint{
			Measurement: measurement.PingLatency,
			Tags:        map[string]string{"interface": target.Interface, "host": host},
			Fields:      map[string]float64{"latency_ms": latencyMs},
			Timestamp:   observed,
		})
		l.logger.Info("Ping completed",
			zap.String("interface", target.Interface),
			zap.String("host", host),
			zap.Float64("latency_ms", latencyMs))
	}

	if len(points) == 0 && errs != nil {
		return nil, errs
	}
	return points, nil
}

// ICMPPing реализует PingFunc через go-ping
func ICMPPing(timeout time.Duration, privileged bool) PingFunc {
	return func(ctx context.Context, host string, source netip.Addr, count int) (time.Duration, error) {
		op := "ping " + host
		pinger, err := ping.NewPinger(host)
		if err != nil {
			return 0, toolError(op, err)
		}
		pinger.Count = count
		pinger.Timeout = timeout
		pinger.Source = source.String()
		pinger.SetPrivileged(privileged)

		done := make(chan error, 1)
		go func() { done <- pinger.Run() }()

		select {
		case err = <-done:
		case <-ctx.Done():
			pinger.Stop()
			<-done
			return 0, toolError(op, ctx.Err())
		}
		if err != nil {
			return 0, toolError(op, err)
		}

		stats := pinger.Statistics()
		if stats.PacketsRecv == 0 {
			return 0, timeoutError(op, fmt.Errorf("no replies within %s (%d sent)", timeout, stats.PacketsSent))
		}
		return stats.AvgRtt, nil
	}
}
