package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/beorn7/perks/quantile"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"wan_mon/pkg/measurement"
)

// defaultRetryDelay пауза пользователя после ошибки соединения
const defaultRetryDelay = 250 * time.Millisecond

// HTTPLoad генерирует нагрузку на один URL в течение фиксированного времени.
// Пользователи запускаются с темпом spawnRate в секунду, каждый шлет GET запросы подряд.
type HTTPLoad struct {
	resolver       Resolver
	users          int
	spawnRate      int
	duration       time.Duration
	requestTimeout time.Duration
	retryDelay     time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

// NewHTTPLoad создает пробу нагрузочного HTTP теста
func NewHTTPLoad(resolver Resolver, users, spawnRate int, duration, requestTimeout time.Duration, logger *zap.Logger) *HTTPLoad {
	return &HTTPLoad{
		resolver:       resolver,
		users:          users,
		spawnRate:      spawnRate,
		duration:       duration,
		requestTimeout: requestTimeout,
		retryDelay:     defaultRetryDelay,
		logger:         logger,
		now:            time.Now,
	}
}

// Kind реализует Prober
func (h *HTTPLoad) Kind() Kind { return KindHTTPLoad }

// loadStats итоги прогона. Задержки ответов идут в потоковую оценку квантиля,
// память не растет с числом запросов.
type loadStats struct {
	mu       sync.Mutex
	requests int
	failures int
	sumMs    float64
	latency  *quantile.Stream
}

func newLoadStats() *loadStats {
	return &loadStats{latency: quantile.NewTargeted(map[float64]float64{0.95: 0.005})}
}

// response учитывает запрос, на который пришел ответ
func (s *loadStats) response(latency time.Duration, ok bool) {
	ms := float64(latency) / float64(time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	if !ok {
		s.failures++
	}
	s.sumMs += ms
	s.latency.Insert(ms)
}

// transportFailure учитывает запрос без ответа: отказ соединения, обрыв, таймаут
func (s *loadStats) transportFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	s.failures++
}

// summary задержки считаются только по полученным ответам
func (s *loadStats) summary() (requests int, failRatio, avgMs, p95Ms float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requests == 0 {
		return 0, 0, 0, 0
	}
	failRatio = float64(s.failures) / float64(s.requests)
	if n := s.latency.Count(); n > 0 {
		avgMs = s.sumMs / float64(n)
		p95Ms = s.latency.Query(0.95)
	}
	return s.requests, failRatio, avgMs, p95Ms
}

// Probe выполняет один прогон нагрузки и возвращает сводную точку
func (h *HTTPLoad) Probe(ctx context.Context, target Target) ([]DataPoint, error) {
	op := "http load " + target.URL
	source, err := h.resolver.Resolve(ctx, target.Interface)
	if err != nil {
		return nil, err
	}

	client := boundClient(source, h.requestTimeout, h.users)
	defer client.CloseIdleConnections()

	runCtx, cancel := context.WithTimeout(ctx, h.duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(h.spawnRate), 1)
	stats := newLoadStats()

	var wg sync.WaitGroup
	spawned := 0
	for i := 0; i < h.users; i++ {
		if err := limiter.Wait(runCtx); err != nil {
			break
		}
		spawned++
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.user(runCtx, client, target.URL, stats)
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, toolError(op, err)
	}

	requests, failRatio, avg, p95 := stats.summary()
	if requests == 0 {
		return nil, toolError(op, fmt.Errorf("no requests completed within %s", h.duration))
	}

	h.logger.Info("HTTP load test completed",
		zap.String("interface", target.Interface),
		zap.String("target", target.URL),
		zap.Int("users", spawned),
		zap.Int("requests", requests),
		zap.Float64("fail_ratio", failRatio),
		zap.Float64("p95_ms", p95))

	return []DataPoint{{
		Measurement: measurement.HTTPLoadTest,
		Tags: map[string]string{
			"interface": target.Interface,
			"target":    target.URL,
			"method":    http.MethodGet,
		},
		Fields: map[string]float64{
			"requests":   float64(requests),
			"fail_ratio": failRatio,
			"avg_ms":     avg,
			"p95_ms":     p95,
		},
		Timestamp: h.now(),
	}}, nil
}

// user шлет запросы до окончания прогона; запросы, прерванные концом прогона, не учитываются.
// После ошибки соединения пользователь ждет retryDelay.
func (h *HTTPLoad) user(ctx context.Context, client *http.Client, url string, stats *loadStats) {
	for ctx.Err() == nil {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			stats.transportFailure()
			return
		}

		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			stats.transportFailure()
			if !h.pause(ctx) {
				return
			}
			continue
		}
		_, err = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		elapsed := time.Since(start)
		if err != nil && ctx.Err() != nil {
			return
		}
		stats.response(elapsed, err == nil && resp.StatusCode < http.StatusBadRequest)
	}
}

// pause ждет retryDelay; false, если прогон закончился раньше
func (h *HTTPLoad) pause(ctx context.Context) bool {
	timer := time.NewTimer(h.retryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
