package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wan_mon/internal/execx"
	"wan_mon/pkg/measurement"
)

// Throughput запускает speed-test утилиту с привязкой к адресу интерфейса
type Throughput struct {
	resolver Resolver
	runner   execx.Runner
	binary   string
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewThroughput создает пробу пропускной способности
func NewThroughput(resolver Resolver, runner execx.Runner, binary string, timeout time.Duration, logger *zap.Logger) *Throughput {
	return &Throughput{
		resolver: resolver,
		runner:   runner,
		binary:   binary,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// Kind реализует Prober
func (p *Throughput) Kind() Kind { return KindThroughput }

// Probe выполняет один speed-test; любая ошибка проваливает весь запуск
func (p *Throughput) Probe(ctx context.Context, target Target) ([]DataPoint, error) {
	source, err := p.resolver.Resolve(ctx, target.Interface)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{"--json", "--secure", "--source", source.String()}
	p.logger.Debug("Running speedtest",
		zap.String("interface", target.Interface),
		zap.String("binary", p.binary),
		zap.Strings("args", args))

	out, err := p.runner.Output(ctx, p.binary, args...)
	if err != nil {
		return nil, toolError("speedtest", err)
	}

	res, err := parseSpeedtest(out)
	if err != nil {
		return nil, parseError("speedtest", err)
	}

	fields := map[string]float64{
		"download_mbps": res.downloadMbps,
		"upload_mbps":   res.uploadMbps,
	}
	if res.hasPing {
		fields["ping_ms"] = res.pingMs
	}

	p.logger.Info("Speedtest completed",
		zap.String("interface", target.Interface),
		zap.Float64("download_mbps", res.downloadMbps),
		zap.Float64("upload_mbps", res.uploadMbps))

	return []DataPoint{{
		Measurement: measurement.Speedtest,
		Tags:        map[string]string{"interface": target.Interface},
		Fields:      fields,
		Timestamp:   p.now(),
	}}, nil
}

type speedtestResult struct {
	downloadMbps float64
	uploadMbps   float64
	pingMs       float64
	hasPing      bool
}

// parseSpeedtest понимает два формата:
// speedtest-cli ("download": бит/с) и Ookla ("download": {"bandwidth": байт/с}).
func parseSpeedtest(out []byte) (speedtestResult, error) {
	var raw struct {
		Download json.RawMessage `json:"download"`
		Upload   json.RawMessage `json:"upload"`
		Ping     json.RawMessage `json:"ping"`
	}
	dec := json.NewDecoder(bytes.NewReader(out))
	if err := dec.Decode(&raw); err != nil {
		return speedtestResult{}, fmt.Errorf("decode output: %w", err)
	}

	var res speedtestResult
	var err error
	if res.downloadMbps, err = rateMbps(raw.Download); err != nil {
		return speedtestResult{}, fmt.Errorf("download: %w", err)
	}
	if res.uploadMbps, err = rateMbps(raw.Upload); err != nil {
		return speedtestResult{}, fmt.Errorf("upload: %w", err)
	}
	res.pingMs, res.hasPing = pingMs(raw.Ping)
	return res, nil
}

func rateMbps(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("missing")
	}

	var bitsPerSecond float64
	if err := json.Unmarshal(raw, &bitsPerSecond); err == nil {
		return bitsPerSecond / 1_000_000, nil
	}

	var ookla struct {
		Bandwidth *float64 `json:"bandwidth"`
	}
	if err := json.Unmarshal(raw, &ookla); err != nil {
		return 0, fmt.Errorf("unexpected shape %s", raw)
	}
	if ookla.Bandwidth == nil {
		return 0, fmt.Errorf("missing bandwidth")
	}
	return *ookla.Bandwidth * 8 / 1_000_000, nil
}

func pingMs(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return ms, true
	}
	var ookla struct {
		Latency *float64 `json:"latency"`
	}
	if err := json.Unmarshal(raw, &ookla); err == nil && ookla.Latency != nil {
		return *ookla.Latency, true
	}
	return 0, false
}
