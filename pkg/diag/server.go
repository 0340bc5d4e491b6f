package diag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// StatusFunc возвращает состояние задач для /status
type StatusFunc func() interface{}

// Server HTTP сервер диагностики: метрики, состояние задач и pprof
type Server struct {
	addr     string
	gatherer prometheus.Gatherer
	status   StatusFunc
	logger   *zap.Logger
	started  time.Time

	httpServer *http.Server
	listener   net.Listener
}

// New создает сервер диагностики
func New(addr string, gatherer prometheus.Gatherer, status StatusFunc, logger *zap.Logger) *Server {
	return &Server{
		addr:     addr,
		gatherer: gatherer,
		status:   status,
		logger:   logger,
		started:  time.Now(),
	}
}

// Handler возвращает маршруты сервера
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/status", s.handleStatus)

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `
WAN Monitor diagnostics

Available endpoints:
- /metrics       - Prometheus metrics
- /status        - task schedule and last outcomes (JSON)
- /debug/pprof/  - pprof index
`)
	})
	return mux
}

type memoryStats struct {
	AllocMB      uint64 `json:"alloc_mb"`
	TotalAllocMB uint64 `json:"total_alloc_mb"`
	SysMB        uint64 `json:"sys_mb"`
	NumGC        uint32 `json:"num_gc"`
	Goroutines   int    `json:"goroutines"`
}

type statusResponse struct {
	Uptime string      `json:"uptime"`
	Memory memoryStats `json:"memory"`
	Tasks  interface{} `json:"tasks"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	resp := statusResponse{
		Uptime: time.Since(s.started).Round(time.Second).String(),
		Memory: memoryStats{
			AllocMB:      m.Alloc / 1024 / 1024,
			TotalAllocMB: m.TotalAlloc / 1024 / 1024,
			SysMB:        m.Sys / 1024 / 1024,
			NumGC:        m.NumGC,
			Goroutines:   runtime.NumGoroutine(),
		},
	}
	if s.status != nil {
		resp.Tasks = s.status()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("Failed to encode status", zap.Error(err))
	}
}

// Start открывает порт и обслуживает запросы в фоне
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info("Starting diagnostics server", zap.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Diagnostics server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr адрес, на котором слушает сервер
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop останавливает сервер
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var err error
	if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
		err = multierr.Append(err, fmt.Errorf("failed to shutdown HTTP server: %w", shutdownErr))
		err = multierr.Append(err, s.httpServer.Close())
	}
	if err != nil {
		return err
	}

	s.logger.Info("Diagnostics server stopped")
	return nil
}
