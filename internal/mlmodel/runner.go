package mlmodel

import (
	"log/slog"
	"os/exec"

	"github.com/aquaguard/aquaguard-go/internal/errors"
)

// JobRunner launches a long-running background job. Implementations must
// return once the process has started; the job reports its outcome through
// the progress and result files, not through the runner.
type JobRunner interface {
	Start(name string, args ...string) error
}

// processRunner launches real detached OS processes.
type processRunner struct {
	logger *slog.Logger
}

func (r *processRunner) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	// No pipes attached: the trainer owns its own logging and must survive
	// having no parent to write to.
	if err := cmd.Start(); err != nil {
		return errors.New(err).
			Component("mlmodel").
			Category(errors.CategoryCommandExecution).
			Context("command", name).
			Build()
	}

	pid := cmd.Process.Pid
	r.logger.Info("trainer process started", "pid", pid)

	// Reap the child when it exits so it never lingers as a zombie.
	go func() {
		if err := cmd.Wait(); err != nil {
			r.logger.Warn("trainer process exited with error", "pid", pid, "error", err)
		}
	}()
	return nil
}
