package collector

import "time"

// HostSnapshot состояние хоста и счетчики отслеживаемых интерфейсов.
// Компоненты, которые не удалось собрать, остаются nil.
type HostSnapshot struct {
	Timestamp  time.Time                    `json:"timestamp"`
	CPU        *CPUMetrics                  `json:"cpu,omitempty"`
	Memory     *MemoryMetrics               `json:"memory,omitempty"`
	Interfaces map[string]InterfaceCounters `json:"interfaces,omitempty"`
}

// CPUMetrics содержит метрики процессора
type CPUMetrics struct {
	UsagePercent float64      `json:"usage_percent"`
	Load         *LoadAverage `json:"load,omitempty"`
}

// LoadAverage есть не на всех платформах
type LoadAverage struct {
	Load1  float64 `json:"load_1"`
	Load5  float64 `json:"load_5"`
	Load15 float64 `json:"load_15"`
}

// MemoryMetrics содержит метрики памяти
type MemoryMetrics struct {
	UsedBytes      uint64  `json:"used_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	UsagePercent   float64 `json:"usage_percent"`
}

// InterfaceCounters счетчики трафика одного интерфейса
type InterfaceCounters struct {
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_recv"`
	PacketsSent uint64 `json:"packets_sent"`
	PacketsRecv uint64 `json:"packets_recv"`
	ErrorsIn    uint64 `json:"errors_in"`
	ErrorsOut   uint64 `json:"errors_out"`
	DropsIn     uint64 `json:"drops_in"`
	DropsOut    uint64 `json:"drops_out"`
}
