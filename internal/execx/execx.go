package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultWaitDelay время ожидания завершения процесса после отмены контекста
const DefaultWaitDelay = 5 * time.Second

// Runner абстрагирует запуск внешних утилит, чтобы пробы можно было тестировать без них
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Error описывает неудачный запуск утилиты
type Error struct {
	Name     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Name, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// OSRunner запускает утилиты через os/exec.
// Процесс убивается при отмене контекста, после WaitDelay закрываются его каналы вывода.
type OSRunner struct {
	WaitDelay time.Duration
}

// NewOSRunner создает OSRunner с задержкой по умолчанию
func NewOSRunner() *OSRunner {
	return &OSRunner{WaitDelay: DefaultWaitDelay}
}

// Output запускает утилиту и возвращает её stdout
func (r *OSRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	e := &Error{Name: name, ExitCode: -1, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	if ctxErr := ctx.Err(); ctxErr != nil {
		e.Err = ctxErr
		return nil, e
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		e.ExitCode = exitErr.ExitCode()
	}
	return nil, e
}
