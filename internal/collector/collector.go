package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Collector собирает загрузку хоста и счетчики отслеживаемых интерфейсов
type Collector struct {
	interfaces []string
	logger     *zap.Logger

	cpuPercent func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)
	loadAvg    func(ctx context.Context) (*load.AvgStat, error)
	vmem       func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	ioCounters func(ctx context.Context, pernic bool) ([]net.IOCountersStat, error)
	now        func() time.Time
}

// New создает сборщик для заданных интерфейсов
func New(interfaces []string, logger *zap.Logger) *Collector {
	return &Collector{
		interfaces: interfaces,
		logger:     logger,
		cpuPercent: cpu.PercentWithContext,
		loadAvg:    load.AvgWithContext,
		vmem:       mem.VirtualMemoryWithContext,
		ioCounters: net.IOCountersWithContext,
		now:        time.Now,
	}
}

// Collect собирает метрики параллельно; ошибка возвращается, только если не удалось ничего
func (c *Collector) Collect(ctx context.Context) (*HostSnapshot, error) {
	snap := &HostSnapshot{Timestamp: c.now()}

	type result struct {
		name string
		err  error
	}
	results := make(chan result, 3)

	var (
		cpuMetrics *CPUMetrics
		memMetrics *MemoryMetrics
		ifaces     map[string]InterfaceCounters
	)
	go func() {
		var err error
		cpuMetrics, err = c.collectCPU(ctx)
		results <- result{name: "CPU", err: err}
	}()
	go func() {
		var err error
		memMetrics, err = c.collectMemory(ctx)
		results <- result{name: "Memory", err: err}
	}()
	go func() {
		var err error
		ifaces, err = c.collectInterfaces(ctx)
		results <- result{name: "Network", err: err}
	}()

	var errs error
	failed := 0
	for i := 0; i < 3; i++ {
		select {
		case res := <-results:
			if res.err != nil {
				failed++
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", res.name, res.err))
				c.logger.Warn("Failed to collect host metrics",
					zap.String("component", res.name),
					zap.Error(res.err))
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failed == 3 {
		return nil, fmt.Errorf("failed to collect host metrics: %w", errs)
	}

	snap.CPU = cpuMetrics
	snap.Memory = memMetrics
	snap.Interfaces = ifaces
	return snap, nil
}

// collectCPU загрузка CPU с прошлого вызова и load average
func (c *Collector) collectCPU(ctx context.Context) (*CPUMetrics, error) {
	percentages, err := c.cpuPercent(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get CPU percentage: %w", err)
	}

	metrics := &CPUMetrics{}
	if len(percentages) > 0 {
		metrics.UsagePercent = percentages[0]
	}

	loadAvg, err := c.loadAvg(ctx)
	if err != nil {
		// load average есть не на всех платформах
		c.logger.Debug("Failed to get load average", zap.Error(err))
	} else if loadAvg != nil {
		metrics.Load = &LoadAverage{
			Load1:  loadAvg.Load1,
			Load5:  loadAvg.Load5,
			Load15: loadAvg.Load15,
		}
	}
	return metrics, nil
}

func (c *Collector) collectMemory(ctx context.Context) (*MemoryMetrics, error) {
	vmStat, err := c.vmem(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get memory statistics: %w", err)
	}
	return &MemoryMetrics{
		UsedBytes:      vmStat.Used,
		AvailableBytes: vmStat.Available,
		UsagePercent:   vmStat.UsedPercent,
	}, nil
}

// collectInterfaces счетчики только для отслеживаемых интерфейсов
func (c *Collector) collectInterfaces(ctx context.Context) (map[string]InterfaceCounters, error) {
	stats, err := c.ioCounters(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get network statistics: %w", err)
	}

	wanted := make(map[string]bool, len(c.interfaces))
	for _, name := range c.interfaces {
		wanted[name] = true
	}

	out := make(map[string]InterfaceCounters, len(c.interfaces))
	for _, stat := range stats {
		if !wanted[stat.Name] {
			continue
		}
		out[stat.Name] = InterfaceCounters{
			BytesSent:   stat.BytesSent,
			BytesRecv:   stat.BytesRecv,
			PacketsSent: stat.PacketsSent,
			PacketsRecv: stat.PacketsRecv,
			ErrorsIn:    stat.Errin,
			ErrorsOut:   stat.Errout,
			DropsIn:     stat.Dropin,
			DropsOut:    stat.Dropout,
		}
	}
	return out, nil
}
