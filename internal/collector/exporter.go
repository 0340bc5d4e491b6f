package collector

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Exporter отдает снимки Collector как метрики Prometheus при каждом опросе
type Exporter struct {
	collector *Collector
	timeout   time.Duration
	logger    *zap.Logger

	cpuUsage     *prometheus.Desc
	load         *prometheus.Desc
	memUsed      *prometheus.Desc
	memAvailable *prometheus.Desc
	ifaceBytes   *prometheus.Desc
	ifacePackets *prometheus.Desc
	ifaceErrors  *prometheus.Desc
	ifaceDrops   *prometheus.Desc
}

// NewExporter создает экспортер с ограничением времени сбора timeout
func NewExporter(c *Collector, timeout time.Duration, logger *zap.Logger) *Exporter {
	return &Exporter{
		collector: c,
		timeout:   timeout,
		logger:    logger,

		cpuUsage: prometheus.NewDesc("wan_mon_host_cpu_usage_percent",
			"Host CPU usage since the previous scrape", nil, nil),
		load: prometheus.NewDesc("wan_mon_host_load_average",
			"Host load average", []string{"period"}, nil),
		memUsed: prometheus.NewDesc("wan_mon_host_memory_used_bytes",
			"Host memory in use", nil, nil),
		memAvailable: prometheus.NewDesc("wan_mon_host_memory_available_bytes",
			"Host memory available", nil, nil),
		ifaceBytes: prometheus.NewDesc("wan_mon_interface_bytes_total",
			"Bytes transferred by a monitored interface", []string{"interface", "direction"}, nil),
		ifacePackets: prometheus.NewDesc("wan_mon_interface_packets_total",
			"Packets transferred by a monitored interface", []string{"interface", "direction"}, nil),
		ifaceErrors: prometheus.NewDesc("wan_mon_interface_errors_total",
			"Errors on a monitored interface", []string{"interface", "direction"}, nil),
		ifaceDrops: prometheus.NewDesc("wan_mon_interface_drops_total",
			"Dropped packets on a monitored interface", []string{"interface", "direction"}, nil),
	}
}

// Describe реализует prometheus.Collector
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.cpuUsage
	ch <- e.load
	ch <- e.memUsed
	ch <- e.memAvailable
	ch <- e.ifaceBytes
	ch <- e.ifacePackets
	ch <- e.ifaceErrors
	ch <- e.ifaceDrops
}

// Collect реализует prometheus.Collector
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	snap, err := e.collector.Collect(ctx)
	if err != nil {
		e.logger.Warn("Host metrics unavailable", zap.Error(err))
		return
	}

	gauge := func(desc *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v, labels...)
	}
	counter := func(desc *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), labels...)
	}

	// несобранные компоненты не публикуются
	if snap.CPU != nil {
		gauge(e.cpuUsage, snap.CPU.UsagePercent)
		if l := snap.CPU.Load; l != nil {
			gauge(e.load, l.Load1, "1m")
			gauge(e.load, l.Load5, "5m")
			gauge(e.load, l.Load15, "15m")
		}
	}
	if snap.Memory != nil {
		gauge(e.memUsed, float64(snap.Memory.UsedBytes))
		gauge(e.memAvailable, float64(snap.Memory.AvailableBytes))
	}

	for name, c := range snap.Interfaces {
		counter(e.ifaceBytes, c.BytesSent, name, "tx")
		counter(e.ifaceBytes, c.BytesRecv, name, "rx")
		counter(e.ifacePackets, c.PacketsSent, name, "tx")
		counter(e.ifacePackets, c.PacketsRecv, name, "rx")
		counter(e.ifaceErrors, c.ErrorsOut, name, "tx")
		counter(e.ifaceErrors, c.ErrorsIn, name, "rx")
		counter(e.ifaceDrops, c.DropsOut, name, "tx")
		counter(e.ifaceDrops, c.DropsIn, name, "rx")
	}
}
