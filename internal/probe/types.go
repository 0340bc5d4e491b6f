package probe

import (
	"context"
	"time"
)

// Kind вид измерения
type Kind string

const (
	KindLatency      Kind = "latency"
	KindThroughput   Kind = "throughput"
	KindBulkDownload Kind = "bulk-download"
	KindHTTPLoad     Kind = "http-load"
)

// Kinds возвращает все виды измерений в фиксированном порядке
func Kinds() []Kind {
	return []Kind{KindLatency, KindThroughput, KindBulkDownload, KindHTTPLoad}
}

// Target то, что измеряется за один запуск: интерфейс и, для HTTP нагрузки, URL
type Target struct {
	Interface string
	URL       string
}

// DataPoint одно измерение для хранилища метрик
type DataPoint struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]float64
	Timestamp   time.Time
}

// Prober выполняет одно измерение, привязанное к интерфейсу.
// Реализации не хранят состояние между запусками.
type Prober interface {
	Kind() Kind
	Probe(ctx context.Context, target Target) ([]DataPoint, error)
}
