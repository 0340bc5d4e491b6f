package influx

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"wan_mon/internal/config"
	"wan_mon/internal/metrics"
	"wan_mon/internal/probe"
	"wan_mon/pkg/measurement"
)

// pointWriter часть api.WriteAPIBlocking, нужная sink
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// SinkError точки не записаны после всех попыток и отброшены
type SinkError struct {
	Attempts int
	Points   int
	Err      error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("dropped %d points after %d attempts: %v", e.Points, e.Attempts, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// Sink пишет точки в InfluxDB v2. Безопасен для одновременного использования.
type Sink struct {
	client  influxdb2.Client
	writer  pointWriter
	metrics *metrics.Metrics
	logger  *zap.Logger

	maxRetries int
	backoff    time.Duration
	timeout    time.Duration

	dryOnce sync.Once
}

// New создает sink. Без токена sink работает вхолостую: точки логируются и отбрасываются.
func New(cfg config.InfluxConfig, m *metrics.Metrics, logger *zap.Logger) *Sink {
	s := &Sink{
		metrics:    m,
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		timeout:    cfg.Timeout,
	}
	if cfg.Token == "" {
		return s
	}

	opts := influxdb2.DefaultOptions().
		SetHTTPRequestTimeout(uint(cfg.Timeout / time.Second))
	s.client = influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	s.writer = s.client.WriteAPIBlocking(cfg.Org, cfg.Bucket)
	return s
}

// DryRun sink без подключения к хранилищу
func (s *Sink) DryRun() bool {
	return s.writer == nil
}

// Write проверяет точки и записывает их одним пакетом с повторными попытками.
// Некорректные точки отбрасываются, остальные пишутся.
func (s *Sink) Write(ctx context.Context, points []probe.DataPoint) error {
	valid := make([]probe.DataPoint, 0, len(points))
	for _, p := range points {
		if err := measurement.Validate(p.Measurement, p.Tags, p.Fields); err != nil {
			s.metrics.SinkPoints(metrics.SinkInvalid, 1)
			s.logger.Error("Dropping invalid point",
				zap.String("measurement", p.Measurement),
				zap.Error(err))
			continue
		}
		valid = append(valid, p)
	}
	if len(valid) == 0 {
		return nil
	}

	if s.DryRun() {
		s.dryOnce.Do(func() {
			s.logger.Warn("Influx token is not set, measurements are logged and dropped")
		})
		for _, p := range valid {
			s.logger.Info("Measurement",
				zap.String("measurement", p.Measurement),
				zap.Any("tags", p.Tags),
				zap.Any("fields", p.Fields))
		}
		s.metrics.SinkPoints(metrics.SinkDropped, len(valid))
		return nil
	}

	batch := make([]*write.Point, 0, len(valid))
	for _, p := range valid {
		batch = append(batch, toPoint(p))
	}
	if err := s.writeWithRetry(ctx, batch); err != nil {
		s.metrics.SinkPoints(metrics.SinkDropped, len(batch))
		s.logger.Warn("Dropping points", zap.Error(err))
		return err
	}
	s.metrics.SinkPoints(metrics.SinkWritten, len(batch))
	return nil
}

// writeWithRetry пишет пакет с экспоненциальной задержкой между попытками
func (s *Sink) writeWithRetry(ctx context.Context, batch []*write.Point) error {
	var lastErr error
	backoff := s.backoff

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			s.metrics.SinkRetry()
			s.logger.Warn("Retrying point write",
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", s.maxRetries),
				zap.Duration("backoff", backoff))

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return &SinkError{Attempts: attempt, Points: len(batch), Err: ctx.Err()}
			}

			backoff *= 2
		}

		err := s.writeOnce(ctx, batch)
		if err == nil {
			if attempt > 0 {
				s.logger.Info("Points written after retry",
					zap.Int("attempts", attempt+1))
			}
			return nil
		}

		lastErr = err
		s.logger.Warn("Failed to write points",
			zap.Error(err),
			zap.Int("attempt", attempt+1))
	}

	return &SinkError{Attempts: s.maxRetries, Points: len(batch), Err: lastErr}
}

func (s *Sink) writeOnce(ctx context.Context, batch []*write.Point) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.writer.WritePoint(ctx, batch...)
}

// Check проверяет доступность InfluxDB
func (s *Sink) Check(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ok, err := s.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping influx: %w", err)
	}
	if !ok {
		return fmt.Errorf("influx is not ready")
	}
	return nil
}

// Close закрывает соединения клиента
func (s *Sink) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

func toPoint(p probe.DataPoint) *write.Point {
	point := influxdb2.NewPointWithMeasurement(p.Measurement).SetTime(p.Timestamp)
	for k, v := range p.Tags {
		point.AddTag(k, v)
	}
	for k, v := range p.Fields {
		point.AddField(k, v)
	}
	return point
}
