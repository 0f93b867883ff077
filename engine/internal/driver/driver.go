// Package driver executes probe documents through the engine executable.
//
// One Run is one subprocess: the document goes to a temp file, the engine is
// invoked headless against its file:// URL with a bounded timeout, and
// everything the process writes is captured. The temp file is owned by the
// invocation that created it and is removed on every exit path.
package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"time"
)

// ErrEngineNotFound reports that the configured engine executable does not
// exist or is not executable. It is raised before any spawn attempt, so it
// can never be confused with a timeout.
var ErrEngineNotFound = errors.New("driver: engine executable not found")

// SpawnError reports an OS-level failure to start the engine process.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("driver: spawn %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// TimeoutError reports that the engine exceeded its wall-clock budget. The
// process has already been killed and reaped when this is returned.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("driver: engine timed out after %s", e.Timeout)
}

// CheckExecutable verifies that path names an existing executable file.
func CheckExecutable(path string) error {
	if path == "" {
		return ErrEngineNotFound
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fmt.Errorf("%w: %s", ErrEngineNotFound, path)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%w: %s is not executable", ErrEngineNotFound, path)
	}
	return nil
}

// Run renders doc through the engine at execPath and returns the raw
// captured output (stdout and stderr interleaved). The output may be empty,
// partial, or contain engine diagnostics around the payload lines; parsing
// is the extractor's problem.
//
// A context deadline shorter than timeout wins; either way the subprocess is
// killed on expiry, never leaked.
func Run(ctx context.Context, execPath, doc string, timeout time.Duration) (string, error) {
	if err := CheckExecutable(execPath); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp("", "styleq-*.html")
	if err != nil {
		return "", fmt.Errorf("driver: create temp document: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(doc); err != nil {
		tmp.Close()
		return "", fmt.Errorf("driver: write temp document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("driver: close temp document: %w", err)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, execPath, "--headless", "file://"+tmpPath)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	// Engines fork renderer children that inherit the output pipe. Without
	// a wait delay, Wait would block on the pipe until every orphan exits.
	cmd.WaitDelay = 2 * time.Second

	if err := cmd.Start(); err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return "", fmt.Errorf("%w: %s", ErrEngineNotFound, execPath)
		}
		return "", &SpawnError{Path: execPath, Err: err}
	}

	waitErr := cmd.Wait()
	if runCtx.Err() == context.DeadlineExceeded {
		return "", &TimeoutError{Timeout: timeout}
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("driver: %w", ctx.Err())
	}
	if waitErr != nil {
		// Engines routinely exit non-zero after window.close(); the
		// payload may still be in the captured text, so hand it to the
		// extractor instead of failing here.
		return out.String(), nil
	}
	return out.String(), nil
}
