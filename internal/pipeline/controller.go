package pipeline

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/phyloflow/phyloflow/internal/config"
	"github.com/phyloflow/phyloflow/internal/errors"
	"github.com/phyloflow/phyloflow/internal/layout"
	"github.com/phyloflow/phyloflow/internal/logging"
	"github.com/phyloflow/phyloflow/internal/runner"
)

// State is the controller's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateFailed
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Controller executes the selected stages of one run in dependency order,
// stopping at the first stage error. Completed stages' artifacts always
// remain on disk; there are no retries and no rollback.
type Controller struct {
	run   *Run
	cfg   *config.Config
	log   *logging.Logger
	lay   *layout.Layout
	tools runner.ToolSet
	exec  *runner.Runner
	out   io.Writer

	mu      sync.Mutex
	state   State
	current Stage
}

// NewController wires a controller for one validated-or-validatable run.
// out receives user-facing output (progress, QC table, summaries); pass nil
// to discard it.
func NewController(run *Run, cfg *config.Config, log *logging.Logger, out io.Writer) *Controller {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logging.NopLogger()
	}
	if out == nil {
		out = io.Discard
	}
	return &Controller{
		run:   run,
		cfg:   cfg,
		log:   log,
		lay:   layout.New(run.OutputDir, run.Mode),
		tools: runner.NewToolSet(cfg),
		exec:  runner.New(log, run.UnitTimeout),
		out:   out,
		state: StateIdle,
	}
}

// State returns the lifecycle state and, while running or failed, the stage
// it refers to.
func (c *Controller) State() (State, Stage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.current
}

func (c *Controller) setState(state State, stage Stage) {
	c.mu.Lock()
	c.state = state
	c.current = stage
	c.mu.Unlock()
}

// Layout exposes the run's directory layout, mainly for tests and the CLI's
// post-run reporting.
func (c *Controller) Layout() *layout.Layout {
	return c.lay
}

// Run executes the run's stage selection. All parameter validation and the
// tool availability check happen before the first subprocess spawns.
func (c *Controller) Run(ctx context.Context) error {
	if err := Validate(c.run); err != nil {
		return err
	}
	if err := layout.EnsureDir(c.run.OutputDir); err != nil {
		return err
	}
	if err := runner.Check(c.requiredTools()...); err != nil {
		return err
	}

	c.log.Info("run starting",
		"output", c.run.OutputDir,
		"mode", c.run.Mode,
		"stages", len(c.run.Stages),
		"cpus", c.cpus())

	for _, stage := range c.run.Stages {
		c.setState(StateRunning, stage)
		log := c.log.WithStage(stage.String())
		log.Info("stage starting", "id", stage.ID())
		fmt.Fprintf(c.out, "[%d/%d] %s\n", stage.ID(), stageCount, stage.Description())

		start := time.Now()
		if err := c.runStage(ctx, stage); err != nil {
			c.setState(StateFailed, stage)
			log.Error("stage failed", "elapsed", time.Since(start).String(), "err", err)
			return errors.Wrapf(err, "stage %s (%d)", stage, stage.ID())
		}
		log.Info("stage complete", "elapsed", time.Since(start).String())
	}

	c.setState(StateCompleted, 0)
	c.log.Info("run complete", "output", c.run.OutputDir)
	return nil
}

// requiredTools returns the distinct external tools the stage selection
// needs, so a missing binary surfaces before any work starts.
func (c *Controller) requiredTools() []runner.Tool {
	seen := make(map[string]bool)
	var tools []runner.Tool
	add := func(t runner.Tool) {
		if !seen[t.Name] {
			seen[t.Name] = true
			tools = append(tools, t)
		}
	}
	for _, stage := range c.run.Stages {
		switch stage {
		case StageBusco:
			add(c.tools.Busco)
		case StageAlign:
			add(c.tools.Mafft)
		case StageTrim:
			add(c.tools.Trimal)
		case StageModel, StageTree:
			add(c.tools.Iqtree)
		}
	}
	return tools
}

// cpus resolves the run's parallelism budget.
func (c *Controller) cpus() int {
	if c.run.CPUs > 0 {
		return c.run.CPUs
	}
	return runtime.NumCPU()
}

// concurrency decides worker count and per-tool thread count for a stage
// whose units are independent. With parallel execution enabled, units get one
// thread each and the worker pool absorbs the budget; sequentially, the
// single unit at a time gets the whole budget.
func (c *Controller) concurrency() (workers, threads int) {
	if c.cfg.Execution.Parallel {
		return c.cpus(), 1
	}
	return 1, c.cpus()
}
