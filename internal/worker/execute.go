package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/posefactory/renderq/internal/common"
	"github.com/posefactory/renderq/internal/models"
)

// Permanent failure classes the publish step turns into a _FAILED
// sentinel. Everything else is treated as transient.
var (
	errMissingInput = fmt.Errorf("%w: missing input", common.ErrExecution)
	errToolFailed   = fmt.Errorf("%w: tool failed", common.ErrExecution)
	errToolTimeout  = fmt.Errorf("%w: tool timed out", common.ErrTimeout)
)

// execute invokes the render tool as a subprocess with CWD at the
// workspace root, capturing stdout and stderr to logs/<id>.log. The
// tool is a black box; parameters travel by argv only:
//
//	<tool> --script <path> -- --output <dir> [--characters a,b] [--param K=V]...
//
// DEBUG_MODE disables the execution timeout.
func (a *Agent) execute(ctx context.Context, m *models.Manifest, outputDir string) error {
	if !a.config.Debug {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Worker.ToolTimeoutDuration())
		defer cancel()
	}

	logFile, err := os.Create(a.workspace.LogPath(m.JobID))
	if err != nil {
		return fmt.Errorf("%w: failed to create log file: %v", common.ErrInternal, err)
	}
	defer logFile.Close()

	args := a.toolArgs(m, outputDir)
	cmd := exec.CommandContext(ctx, a.config.Worker.Tool, args...)
	cmd.Dir = a.workspace.Root()
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = os.Environ()

	// Run the tool in its own process group so a timeout kills its
	// whole tree, not just the direct child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	a.logger.Info().
		Str("job_id", m.JobID).
		Str("tool", a.config.Worker.Tool).
		Str("args", strings.Join(args, " ")).
		Msg("Executing tool")

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if runErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			fmt.Fprintf(logFile, "\n[worker] killed after %s: execution timeout\n", elapsed.Round(time.Second))
			return fmt.Errorf("%w after %s", errToolTimeout, elapsed.Round(time.Second))
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			fmt.Fprintf(logFile, "\n[worker] tool exited with code %d\n", exitErr.ExitCode())
			return fmt.Errorf("%w: exit code %d", errToolFailed, exitErr.ExitCode())
		}
		return fmt.Errorf("%w: %v", errToolFailed, runErr)
	}

	a.logger.Info().
		Str("job_id", m.JobID).
		Dur("elapsed", elapsed).
		Msg("Tool completed")
	return nil
}

// toolArgs builds the argv for one job. Override keys are sorted so
// the invocation is deterministic for a given manifest.
func (a *Agent) toolArgs(m *models.Manifest, outputDir string) []string {
	args := []string{
		"--script", a.workspace.ScriptPath(m.Params.Script),
		"--",
		"--output", outputDir,
	}
	if len(m.Params.Characters) > 0 {
		args = append(args, "--characters", strings.Join(m.Params.Characters, ","))
	}

	overrideKeys := make([]string, 0, len(m.Params.Overrides))
	for k := range m.Params.Overrides {
		overrideKeys = append(overrideKeys, k)
	}
	sort.Strings(overrideKeys)
	for _, k := range overrideKeys {
		args = append(args, "--param", fmt.Sprintf("%s=%v", k, m.Params.Overrides[k]))
	}
	return args
}
