package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
)

// Failure класс ошибки выполнения пробы
type Failure string

const (
	FailureResolution     Failure = "resolution"
	FailureToolInvocation Failure = "tool_invocation"
	FailureParse          Failure = "parse"
	FailureTimeout        Failure = "timeout"
	FailurePanic          Failure = "panic"
	FailureUnknown        Failure = "unknown"
)

// ExecutionError ошибка пробы за один цикл; процесс она не останавливает
type ExecutionError struct {
	Failure Failure
	Op      string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Failure, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func resolutionError(iface string, err error) error {
	return &ExecutionError{Failure: FailureResolution, Op: "resolve " + iface, Err: err}
}

func parseError(op string, err error) error {
	return &ExecutionError{Failure: FailureParse, Op: op, Err: err}
}

func timeoutError(op string, err error) error {
	return &ExecutionError{Failure: FailureTimeout, Op: op, Err: err}
}

// toolError классифицирует ошибку запуска утилиты или сетевого вызова
func toolError(op string, err error) error {
	if isTimeout(err) {
		return timeoutError(op, err)
	}
	return &ExecutionError{Failure: FailureToolInvocation, Op: op, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// FailureOf возвращает класс ошибки для логов и метрик
func FailureOf(err error) Failure {
	if err == nil {
		return ""
	}
	var e *ExecutionError
	if errors.As(err, &e) {
		return e.Failure
	}
	switch {
	case isTimeout(err):
		return FailureTimeout
	case errors.Is(err, exec.ErrNotFound):
		return FailureToolInvocation
	}
	return FailureUnknown
}
