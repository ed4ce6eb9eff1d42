// Package testrunner executes the application's unit-test suite. The suite
// is opaque to the pipeline: any non-clean exit is a failed run.
package testrunner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

// defaultCommand discovers and runs the packaged application's test suite in
// the source directory.
var defaultCommand = []string{"python3", "-m", "unittest", "discover", "-v"}

// Runner shells out to the test command in a source directory.
type Runner struct {
	log *zap.Logger

	// Command overrides the test command; used by tests.
	Command []string
}

// New returns a Runner using the default test command.
func New(log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{log: log}
}

// RunAll runs the test suite rooted at sourcePath. It returns false when the
// suite ran and reported failures, and an error when the suite could not be
// run at all.
func (r *Runner) RunAll(ctx context.Context, sourcePath string) (bool, error) {
	argv := r.Command
	if len(argv) == 0 {
		argv = defaultCommand
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = sourcePath
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			r.log.Error("unit tests reported failures",
				zap.String("sourcePath", sourcePath),
				zap.ByteString("output", out))
			return false, nil
		}
		return false, fmt.Errorf("run unit tests in %s: %w", sourcePath, err)
	}
	r.log.Debug("unit tests passed", zap.String("sourcePath", sourcePath))
	return true, nil
}
