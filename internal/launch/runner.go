// Package launch starts the game process.
package launch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Command is a fully assembled java invocation.
type Command struct {
	Java string
	Args []string
	Dir  string
	// Env is appended to the launcher's own environment.
	Env []string
}

// Runner spawns commands, prefixing every output line with the version and
// process id.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// NewRunner returns a Runner writing to the launcher's stdout and stderr.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Stdout: os.Stdout, Stderr: os.Stderr, Logger: logger}
}

// Run starts the command in its directory and waits for it to exit. The
// process is killed when ctx is canceled.
func (r *Runner) Run(ctx context.Context, name string, c Command) error {
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return fmt.Errorf("creating game directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.Java, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	stdout := &prefixWriter{cmd: cmd, name: name, out: r.Stdout}
	stderr := &prefixWriter{cmd: cmd, name: name, out: r.Stderr}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	r.Logger.Info("starting game", "version", name, "java", c.Java, "dir", c.Dir)
	startTime := time.Now()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", c.Java, err)
	}
	err := cmd.Wait()
	stdout.Flush()
	stderr.Flush()

	r.Logger.Info("game exited", "version", name, "uptime", time.Since(startTime).Round(time.Second), "error", err)
	if err != nil {
		return fmt.Errorf("game %s exited: %w", name, err)
	}
	return nil
}

type prefixWriter struct {
	mu   sync.Mutex
	cmd  *exec.Cmd
	name string
	out  io.Writer
	line []byte
}

func (w *prefixWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, b := range p {
		w.line = append(w.line, b)
		if b == '\n' {
			w.emit()
		}
	}
	return len(p), nil
}

// Flush writes a trailing line that had no newline.
func (w *prefixWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.line) > 0 {
		w.line = append(w.line, '\n')
		w.emit()
	}
}

func (w *prefixWriter) emit() {
	pid := -1
	if w.cmd != nil && w.cmd.Process != nil {
		pid = w.cmd.Process.Pid
	}
	fmt.Fprintf(w.out, "[%s:%d] %s", w.name, pid, string(w.line))
	w.line = w.line[:0]
}
