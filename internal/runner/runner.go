// Package runner executes external tool invocations for pipeline stages.
// Each stage is broken into units of work (one species file, one locus, or
// one whole-run invocation); the runner executes units sequentially or on a
// bounded worker pool, collects an explicit per-unit result, and fails the
// stage loudly on the first non-zero exit or missing output file. The legacy
// behavior of looping past broken units and letting the damage surface at the
// next stage is deliberately not reproduced.
package runner

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"time"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/phyloflow/phyloflow/internal/errors"
	"github.com/phyloflow/phyloflow/internal/logging"
)

// stderrTailBytes is how much captured tool output is attached to a failure.
const stderrTailBytes = 2048

// Invocation is one unit of external work within a stage.
type Invocation struct {
	// Unit names the unit of work (species or locus) for errors and logs.
	// Empty for whole-run invocations like the final tree inference.
	Unit string
	Tool Tool
	Args []string
	// Dir is the working directory for the subprocess (empty = inherit).
	Dir string
	// StdoutFile redirects the tool's stdout into a file. Tools like mafft
	// write their result to stdout.
	StdoutFile string
	// Outputs are the paths the tool must have produced. They are verified
	// after a clean exit; absence is a hard failure for the run.
	Outputs []string
}

// Runner executes stage invocations.
type Runner struct {
	log         *logging.Logger
	unitTimeout time.Duration // 0 = no timeout
}

// New creates a Runner. A non-zero unitTimeout kills any single unit that
// runs longer; zero preserves the wait-forever behavior.
func New(log *logging.Logger, unitTimeout time.Duration) *Runner {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Runner{log: log, unitTimeout: unitTimeout}
}

// RunUnits executes all invocations of a stage. With workers <= 1 the units
// run strictly sequentially; otherwise they run on a worker pool bounded by
// workers. Either way the stage fails if any unit fails, the first error
// cancels the remaining units, and onDone is called once per completed unit
// (from multiple goroutines in parallel mode; callers pass something
// concurrency-safe, like a progress bar increment).
func (r *Runner) RunUnits(ctx context.Context, stage string, invs []Invocation, workers int, onDone func()) error {
	if workers <= 1 {
		for _, inv := range invs {
			if err := r.runUnit(ctx, stage, inv); err != nil {
				return err
			}
			if onDone != nil {
				onDone()
			}
		}
		return nil
	}

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(workers)
	for _, inv := range invs {
		inv := inv
		grp.Go(func() error {
			if err := grpCtx.Err(); err != nil {
				return pkgerrors.Wrapf(err, "unit %s skipped", inv.Unit)
			}
			if err := r.runUnit(grpCtx, stage, inv); err != nil {
				return err
			}
			if onDone != nil {
				onDone()
			}
			return nil
		})
	}
	return grp.Wait()
}

// runUnit executes a single invocation and verifies its declared outputs.
func (r *Runner) runUnit(ctx context.Context, stage string, inv Invocation) error {
	log := r.log.WithStage(stage).WithUnit(inv.Unit)

	unitCtx := ctx
	var cancel context.CancelFunc
	if r.unitTimeout > 0 {
		unitCtx, cancel = context.WithTimeout(ctx, r.unitTimeout)
		defer cancel()
	}

	bin, err := inv.Tool.resolve()
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(unitCtx, bin, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = inv.Tool.environ()

	var captured bytes.Buffer
	cmd.Stderr = &captured

	var stdout *os.File
	if inv.StdoutFile != "" {
		stdout, err = os.Create(inv.StdoutFile)
		if err != nil {
			return pkgerrors.Wrapf(err, "unit %s: creating stdout file", inv.Unit)
		}
		defer stdout.Close()
		cmd.Stdout = stdout
	} else {
		// Tool chatter is only interesting when the unit fails.
		cmd.Stdout = &captured
	}

	log.Debug("invoking tool", "tool", inv.Tool.Name, "args", inv.Args)
	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if stdout != nil {
		if err := stdout.Close(); err != nil && runErr == nil {
			runErr = err
		}
	}

	if runErr != nil {
		cause := errors.ErrStageFailed
		if unitCtx.Err() == context.DeadlineExceeded {
			cause = errors.ErrUnitTimeout
		}
		log.Error("tool failed", "tool", inv.Tool.Name, "elapsed", elapsed.String(), "err", runErr)
		return errors.NewStageError(stage, inv.Unit, cause).WithStderr(tail(captured.Bytes()))
	}

	// A clean exit with missing outputs is still a failure. Validating the
	// manifest here keeps layout drift from silently propagating downstream.
	for _, out := range inv.Outputs {
		if _, err := os.Stat(out); err != nil {
			log.Error("expected output missing", "tool", inv.Tool.Name, "path", out)
			return errors.NewStageError(stage, inv.Unit, errors.ErrMissingOutput).
				WithStderr("missing: " + out)
		}
	}

	log.Debug("unit complete", "tool", inv.Tool.Name, "elapsed", elapsed.String())
	return nil
}

// tail returns the last stderrTailBytes of captured output.
func tail(b []byte) string {
	if len(b) > stderrTailBytes {
		b = b[len(b)-stderrTailBytes:]
	}
	return string(b)
}
