package scheduler

import (
	"time"

	"wan_mon/internal/config"
	"wan_mon/internal/probe"
)

// Identity ключ задачи: вид измерения, интерфейс и, для HTTP нагрузки, URL.
// Запуски одной идентичности никогда не пересекаются.
type Identity struct {
	Kind      probe.Kind
	Interface string
	URL       string
}

func (id Identity) String() string {
	s := string(id.Kind) + "/" + id.Interface
	if id.URL != "" {
		s += "/" + id.URL
	}
	return s
}

// Target цель пробы для этой задачи
func (id Identity) Target() probe.Target {
	return probe.Target{Interface: id.Interface, URL: id.URL}
}

// Spec описание задачи: интервал и сдвиг первого запуска от старта
type Spec struct {
	ID       Identity
	Interval time.Duration
	Offset   time.Duration
}

// Plan строит набор задач: включенные виды × интерфейсы [× URL].
// HTTP задачи равномерно разнесены внутри своего интервала.
func Plan(cfg *config.RunConfig) []Spec {
	var specs []Spec

	perInterface := func(enabled bool, kind probe.Kind, interval time.Duration) {
		if !enabled {
			return
		}
		for _, iface := range cfg.Interfaces {
			specs = append(specs, Spec{
				ID:       Identity{Kind: kind, Interface: iface},
				Interval: interval,
			})
		}
	}
	perInterface(cfg.Ping.Enabled, probe.KindLatency, cfg.Ping.Interval)
	perInterface(cfg.Speedtest.Enabled, probe.KindThroughput, cfg.Speedtest.Interval)
	perInterface(cfg.Download.Enabled, probe.KindBulkDownload, cfg.Download.Interval)

	if cfg.HTTP.Enabled {
		urls := len(cfg.HTTP.URLs)
		slots := urls * len(cfg.Interfaces)
		for i, iface := range cfg.Interfaces {
			for u, url := range cfg.HTTP.URLs {
				specs = append(specs, Spec{
					ID:       Identity{Kind: probe.KindHTTPLoad, Interface: iface, URL: url},
					Interval: cfg.HTTP.Interval,
					Offset:   staggerOffset(cfg.HTTP.Interval, slots, i*urls+u),
				})
			}
		}
	}
	return specs
}

// staggerOffset сдвиг idx-й из slots задач внутри окна window
func staggerOffset(window time.Duration, slots, idx int) time.Duration {
	if slots <= 1 {
		return 0
	}
	return window / time.Duration(slots) * time.Duration(idx)
}
