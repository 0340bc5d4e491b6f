package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"wan_mon/internal/config"
	"wan_mon/pkg/measurement"
)

// BulkDownload скачивает файлы фиксированного размера через заданный интерфейс
type BulkDownload struct {
	resolver Resolver
	files    []config.DownloadFile
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewBulkDownload создает пробу скачивания файлов
func NewBulkDownload(resolver Resolver, files []config.DownloadFile, timeout time.Duration, logger *zap.Logger) *BulkDownload {
	return &BulkDownload{
		resolver: resolver,
		files:    files,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// Kind реализует Prober
func (d *BulkDownload) Kind() Kind { return KindBulkDownload }

// Probe скачивает файлы по очереди. Ошибка одного файла не отменяет остальные.
func (d *BulkDownload) Probe(ctx context.Context, target Target) ([]DataPoint, error) {
	source, err := d.resolver.Resolve(ctx, target.Interface)
	if err != nil {
		return nil, err
	}
	client := boundClient(source, d.timeout, 1)
	defer client.CloseIdleConnections()

	var (
		points []DataPoint
		errs   error
	)
	for _, file := range d.files {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, toolError("download "+file.Name, ctx.Err()))
			break
		}

		size, elapsed, err := d.fetch(ctx, client, file)
		if err != nil {
			d.logger.Warn("Download failed",
				zap.String("interface", target.Interface),
				zap.String("file", file.Name),
				zap.String("error_kind", string(FailureOf(err))),
				zap.Error(err))
			errs = multierr.Append(errs, err)
			continue
		}

		secs := elapsed.Seconds()
		bandwidth := float64(size) * 8 / 1_000_000 / secs
		points = append(points, DataPoint{
			Measurement: measurement.DownloadTest,
			Tags:        map[string]string{"interface": target.Interface, "file": file.Name},
			Fields: map[string]float64{
				"bandwidth_mbps":   bandwidth,
				"file_size_bytes":  float64(size),
				"duration_seconds": secs,
			},
			Timestamp: d.now(),
		})
		d.logger.Info("Download completed",
			zap.String("interface", target.Interface),
			zap.String("file", file.Name),
			zap.Int64("bytes", size),
			zap.Float64("bandwidth_mbps", bandwidth))
	}

	if len(points) == 0 && errs != nil {
		return nil, errs
	}
	return points, nil
}

func (d *BulkDownload) fetch(ctx context.Context, client *http.Client, file config.DownloadFile) (int64, time.Duration, error) {
	op := "download " + file.Name
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.URL, nil)
	if err != nil {
		return 0, 0, toolError(op, err)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, toolError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, 0, toolError(op, fmt.Errorf("unexpected status %s", resp.Status))
	}

	n, err := io.Copy(io.Discard, resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		return 0, 0, toolError(op, fmt.Errorf("read body after %d bytes: %w", n, err))
	}
	if file.ExpectedBytes > 0 && n != file.ExpectedBytes {
		return 0, 0, parseError(op, fmt.Errorf("got %d bytes, expected %d", n, file.ExpectedBytes))
	}
	if n == 0 {
		return 0, 0, parseError(op, fmt.Errorf("empty body"))
	}
	if elapsed <= 0 {
		elapsed = time.Nanosecond
	}
	return n, elapsed, nil
}
