package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"wan_mon/internal/metrics"
	"wan_mon/internal/probe"
)

// Sink принимает точки, полученные задачей
type Sink interface {
	Write(ctx context.Context, points []probe.DataPoint) error
}

// Scheduler отвечает за планирование и запуск задач.
// Набор задач изменяется только из цикла Run.
type Scheduler struct {
	probers map[probe.Kind]probe.Prober
	sink    Sink
	metrics *metrics.Metrics
	logger  *zap.Logger

	tick  time.Duration
	grace time.Duration
	now   func() time.Time

	mu    sync.RWMutex
	tasks []*task

	done chan completion
	wg   sync.WaitGroup
}

// New создает планировщик для набора задач specs
func New(specs []Spec, probers map[probe.Kind]probe.Prober, sink Sink, m *metrics.Metrics, logger *zap.Logger, tick, grace time.Duration) (*Scheduler, error) {
	if tick <= 0 {
		return nil, fmt.Errorf("tick must be positive, got %s", tick)
	}

	tasks := make([]*task, 0, len(specs))
	seen := make(map[Identity]bool, len(specs))
	for _, spec := range specs {
		if _, ok := probers[spec.ID.Kind]; !ok {
			return nil, fmt.Errorf("no prober for %s", spec.ID)
		}
		if spec.Interval <= 0 {
			return nil, fmt.Errorf("%s: interval must be positive, got %s", spec.ID, spec.Interval)
		}
		if seen[spec.ID] {
			return nil, fmt.Errorf("duplicate task %s", spec.ID)
		}
		seen[spec.ID] = true
		tasks = append(tasks, &task{spec: spec, state: StateIdle})
	}

	return &Scheduler{
		probers: probers,
		sink:    sink,
		metrics: m,
		logger:  logger,
		tick:    tick,
		grace:   grace,
		now:     time.Now,
		tasks:   tasks,
		done:    make(chan completion, len(tasks)),
	}, nil
}

// Run выполняет цикл планировщика до отмены ctx.
// После отмены новые задачи не запускаются, работающим дается grace на завершение.
func (s *Scheduler) Run(ctx context.Context) error {
	start := s.now()
	s.mu.Lock()
	for _, t := range s.tasks {
		t.nextDue = start.Add(t.spec.Offset)
	}
	s.mu.Unlock()

	s.logger.Info("Starting scheduler",
		zap.Int("tasks", len(s.tasks)),
		zap.Duration("tick", s.tick),
		zap.Duration("grace", s.grace))
	if len(s.tasks) == 0 {
		s.logger.Warn("No tasks planned, every measurement kind is disabled")
	}

	// Задачи не должны прерываться сразу по сигналу, только по истечении grace
	runCtx, cancelRun := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRun()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.dispatchDue(runCtx, s.now())
	for {
		select {
		case <-ctx.Done():
			s.shutdown(cancelRun)
			return nil
		case c := <-s.done:
			s.complete(c)
		case <-ticker.C:
			s.dispatchDue(runCtx, s.now())
		}
	}
}

// dispatchDue запускает все задачи, срок которых наступил.
// Задача в состоянии Running не запускается повторно, пропуск учитывается.
func (s *Scheduler) dispatchDue(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	dispatched := 0
	for idx, t := range s.tasks {
		if !t.due(now) {
			continue
		}
		if t.state == StateRunning {
			t.deferred++
			s.metrics.TaskDeferred(string(t.spec.ID.Kind))
			s.logger.Debug("Task still running, deferring",
				zap.String("task", t.spec.ID.String()),
				zap.Time("due", t.nextDue))
			continue
		}

		t.dispatched(now)
		s.metrics.TaskStarted()
		dispatched++
		s.logger.Debug("Dispatching task",
			zap.String("task", t.spec.ID.String()),
			zap.Time("next_due", t.nextDue))

		s.wg.Add(1)
		go s.execute(ctx, idx, t.spec, now)
	}
	return dispatched
}

// execute выполняет одну задачу. Паника пробы превращается в ошибку.
func (s *Scheduler) execute(ctx context.Context, idx int, spec Spec, started time.Time) {
	defer s.wg.Done()

	points, err := s.probe(ctx, spec)
	if ctx.Err() != nil {
		// задача прервана при остановке, неполные результаты не пишутся
		if err == nil {
			err = fmt.Errorf("cancelled during shutdown: %w", ctx.Err())
		}
		points = nil
	}

	if len(points) > 0 {
		if werr := s.sink.Write(ctx, points); werr != nil {
			s.logger.Warn("Failed to persist task results",
				zap.String("task", spec.ID.String()),
				zap.Int("points", len(points)),
				zap.Error(werr))
		}
	}

	s.done <- completion{
		idx:      idx,
		started:  started,
		finished: s.now(),
		points:   len(points),
		err:      err,
	}
}

func (s *Scheduler) probe(ctx context.Context, spec Spec) (points []probe.DataPoint, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Probe panicked",
				zap.String("task", spec.ID.String()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			points = nil
			err = &probe.ExecutionError{
				Failure: probe.FailurePanic,
				Op:      spec.ID.String(),
				Err:     fmt.Errorf("panic: %v", r),
			}
		}
	}()
	return s.probers[spec.ID.Kind].Probe(ctx, spec.ID.Target())
}

// complete возвращает задачу в Idle и фиксирует результат
func (s *Scheduler) complete(c completion) {
	s.mu.Lock()
	t := s.tasks[c.idx]
	t.finished(c)
	nextDue := t.nextDue
	s.mu.Unlock()

	kind := string(t.spec.ID.Kind)
	took := c.finished.Sub(c.started)
	if c.err != nil {
		s.metrics.TaskFinished(kind, metrics.OutcomeFailure, took)
		s.logger.Warn("Task failed",
			zap.String("task", t.spec.ID.String()),
			zap.String("kind", kind),
			zap.String("error_kind", string(probe.FailureOf(c.err))),
			zap.Error(c.err),
			zap.Duration("took", took),
			zap.Time("next_due", nextDue))
		return
	}

	s.metrics.TaskFinished(kind, metrics.OutcomeSuccess, took)
	s.logger.Info("Task completed",
		zap.String("task", t.spec.ID.String()),
		zap.Int("points", c.points),
		zap.Duration("took", took),
		zap.Time("next_due", nextDue))
}

func (s *Scheduler) running() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.tasks {
		if t.state == StateRunning {
			n++
		}
	}
	return n
}

// shutdown ждет работающие задачи не дольше grace, затем отменяет их
func (s *Scheduler) shutdown(cancelRun context.CancelFunc) {
	s.logger.Info("Stopping scheduler",
		zap.Int("running", s.running()),
		zap.Duration("grace", s.grace))

	timer := time.NewTimer(s.grace)
	defer timer.Stop()

	for s.running() > 0 {
		select {
		case c := <-s.done:
			s.complete(c)
		case <-timer.C:
			s.logger.Warn("Grace period expired, cancelling running tasks",
				zap.Int("running", s.running()))
			cancelRun()
			s.wg.Wait()
			s.drain()
			return
		}
	}
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) drain() {
	for {
		select {
		case c := <-s.done:
			s.complete(c)
		default:
			return
		}
	}
}

// Snapshot возвращает состояние всех задач
func (s *Scheduler) Snapshot() []TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.status())
	}
	return out
}
