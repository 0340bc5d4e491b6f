package scheduler

import (
	"time"

	"wan_mon/internal/probe"
)

// State состояние задачи
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

type task struct {
	spec    Spec
	state   State
	nextDue time.Time

	lastStart   time.Time
	lastFinish  time.Time
	lastErr     error
	lastSuccess bool
	runs        int
	failures    int
	deferred    int
}

// due срок запуска наступил
func (t *task) due(now time.Time) bool {
	return !now.Before(t.nextDue)
}

// dispatched переводит задачу в Running и сдвигает срок по сетке расписания
func (t *task) dispatched(now time.Time) {
	t.state = StateRunning
	t.lastStart = now
	t.nextDue = nextAfterDispatch(t.nextDue, now, t.spec.Interval)
}

// finished возвращает задачу в Idle; пропущенные за время работы циклы не догоняются
func (t *task) finished(c completion) {
	t.state = StateIdle
	t.lastFinish = c.finished
	t.lastErr = c.err
	t.lastSuccess = c.err == nil
	t.runs++
	if c.err != nil {
		t.failures++
	}
	t.nextDue = realign(t.nextDue, c.finished, t.spec.Interval)
}

// nextAfterDispatch возвращает max(prev+interval, now)
func nextAfterDispatch(prev, now time.Time, interval time.Duration) time.Time {
	next := prev.Add(interval)
	if next.Before(now) {
		return now
	}
	return next
}

// realign переносит просроченный срок на первый слот своей сетки не раньше finished
func realign(due, finished time.Time, interval time.Duration) time.Time {
	if !due.Before(finished) {
		return due
	}
	missed := finished.Sub(due) / interval
	due = due.Add(missed * interval)
	if due.Before(finished) {
		due = due.Add(interval)
	}
	return due
}

type completion struct {
	idx      int
	started  time.Time
	finished time.Time
	points   int
	err      error
}

// TaskStatus снимок состояния задачи для диагностики
type TaskStatus struct {
	ID          string     `json:"id"`
	Kind        probe.Kind `json:"kind"`
	Interface   string     `json:"interface"`
	URL         string     `json:"url,omitempty"`
	State       State      `json:"state"`
	Interval    string     `json:"interval"`
	NextDue     time.Time  `json:"next_due"`
	LastStart   time.Time  `json:"last_start"`
	LastFinish  time.Time  `json:"last_finish"`
	LastSuccess bool       `json:"last_success"`
	LastError   string     `json:"last_error,omitempty"`
	Runs        int        `json:"runs"`
	Failures    int        `json:"failures"`
	Deferred    int        `json:"deferred"`
}

func (t *task) status() TaskStatus {
	st := TaskStatus{
		ID:          t.spec.ID.String(),
		Kind:        t.spec.ID.Kind,
		Interface:   t.spec.ID.Interface,
		URL:         t.spec.ID.URL,
		State:       t.state,
		Interval:    t.spec.Interval.String(),
		NextDue:     t.nextDue,
		LastStart:   t.lastStart,
		LastFinish:  t.lastFinish,
		LastSuccess: t.lastSuccess,
		Runs:        t.runs,
		Failures:    t.failures,
		Deferred:    t.deferred,
	}
	if t.lastErr != nil {
		st.LastError = t.lastErr.Error()
	}
	return st
}
