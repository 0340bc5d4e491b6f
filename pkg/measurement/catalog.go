package measurement

import (
	"fmt"
	"sort"
)

// Имена измерений, записываемых в хранилище метрик
const (
	PingLatency  = "ping_latency"
	Speedtest    = "speedtest"
	DownloadTest = "download_test"
	HTTPLoadTest = "http_load_test"
)

// Unit единица измерения поля
type Unit string

const (
	Milliseconds Unit = "ms"
	Mbps         Unit = "Mbit/s"
	Bytes        Unit = "bytes"
	Seconds      Unit = "s"
	Ratio        Unit = "ratio"
	Count        Unit = "count"
)

// Field описывает числовое поле измерения
type Field struct {
	Name     string
	Unit     Unit
	Optional bool
}

// Measurement описывает измерение: набор тегов и полей
type Measurement struct {
	Name        string
	Tags        []string
	Fields      []Field
	Description string
}

// Catalog возвращает список всех измерений, которые пишет монитор
func Catalog() []Measurement {
	return []Measurement{
		{
			Name:        PingLatency,
			Tags:        []string{"interface", "host"},
			Fields:      []Field{{Name: "latency_ms", Unit: Milliseconds}},
			Description: "Average ICMP round-trip time per target",
		},
		{
			Name: Speedtest,
			Tags: []string{"interface"},
			Fields: []Field{
				{Name: "download_mbps", Unit: Mbps},
				{Name: "upload_mbps", Unit: Mbps},
				{Name: "ping_ms", Unit: Milliseconds, Optional: true},
			},
			Description: "Speed-test download/upload rates",
		},
		{
			Name: DownloadTest,
			Tags: []string{"interface", "file"},
			Fields: []Field{
				{Name: "bandwidth_mbps", Unit: Mbps},
				{Name: "file_size_bytes", Unit: Bytes},
				{Name: "duration_seconds", Unit: Seconds},
			},
			Description: "Bulk download of a fixed-size file",
		},
		{
			Name: HTTPLoadTest,
			Tags: []string{"interface", "target", "method"},
			Fields: []Field{
				{Name: "requests", Unit: Count},
				{Name: "fail_ratio", Unit: Ratio},
				{Name: "avg_ms", Unit: Milliseconds},
				{Name: "p95_ms", Unit: Milliseconds},
			},
			Description: "Bounded-duration HTTP load test summary",
		},
	}
}

var byName = func() map[string]Measurement {
	m := make(map[string]Measurement)
	for _, item := range Catalog() {
		m[item.Name] = item
	}
	return m
}()

// Lookup ищет измерение по имени
func Lookup(name string) (Measurement, bool) {
	m, ok := byName[name]
	return m, ok
}

// Validate проверяет точку данных на соответствие каталогу
func Validate(name string, tags map[string]string, fields map[string]float64) error {
	m, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("unknown measurement %q", name)
	}
	if len(fields) == 0 {
		return fmt.Errorf("measurement %s: no fields", name)
	}

	for key := range tags {
		if _, clash := fields[key]; clash {
			return fmt.Errorf("measurement %s: key %q used as both tag and field", name, key)
		}
	}

	for _, tag := range m.Tags {
		if tags[tag] == "" {
			return fmt.Errorf("measurement %s: missing tag %q", name, tag)
		}
	}

	known := make(map[string]bool, len(m.Fields))
	for _, f := range m.Fields {
		known[f.Name] = true
		if _, present := fields[f.Name]; !present && !f.Optional {
			return fmt.Errorf("measurement %s: missing field %q", name, f.Name)
		}
	}

	var unknown []string
	for key := range fields {
		if !known[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("measurement %s: unknown fields %v", name, unknown)
	}

	return nil
}
