package runner

import (
	"os"
	"os/exec"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"

	"github.com/phyloflow/phyloflow/internal/config"
	"github.com/phyloflow/phyloflow/internal/errors"
)

// Tool describes how to invoke one external tool: a binary (name on PATH or
// absolute path) and any extra environment entries its installation needs.
// Tool environments are explicit configuration so the runner never depends on
// a pre-activated shell.
type Tool struct {
	Name string // human-readable tool name for errors ("busco", "mafft", ...)
	Path string
	Env  []string // additional KEY=VALUE entries
}

// ToolSet holds the resolved invocation configuration for all wrapped tools.
type ToolSet struct {
	Busco  Tool
	Mafft  Tool
	Trimal Tool
	Iqtree Tool
}

// NewToolSet builds a ToolSet from configuration.
func NewToolSet(cfg *config.Config) ToolSet {
	return ToolSet{
		Busco:  Tool{Name: "busco", Path: cfg.Tools.Busco.Path, Env: cfg.Tools.Busco.Env},
		Mafft:  Tool{Name: "mafft", Path: cfg.Tools.Mafft.Path, Env: cfg.Tools.Mafft.Env},
		Trimal: Tool{Name: "trimal", Path: cfg.Tools.Trimal.Path, Env: cfg.Tools.Trimal.Env},
		Iqtree: Tool{Name: "iqtree", Path: cfg.Tools.Iqtree.Path, Env: cfg.Tools.Iqtree.Env},
	}
}

// Check verifies that each tool's binary can be resolved. It runs before any
// stage so a missing installation is reported up front, not mid-pipeline.
func Check(tools ...Tool) error {
	for _, tool := range tools {
		if filepath.IsAbs(tool.Path) {
			if _, err := os.Stat(tool.Path); err != nil {
				return errors.Wrapf(errors.ErrMissingTool, "%s (%s)", tool.Name, tool.Path)
			}
			continue
		}
		if _, err := exec.LookPath(tool.Path); err != nil {
			return errors.Wrapf(errors.ErrMissingTool, "%s (%s)", tool.Name, tool.Path)
		}
	}
	return nil
}

// environ returns the process environment extended with the tool's entries.
func (t Tool) environ() []string {
	if len(t.Env) == 0 {
		return nil // inherit as-is
	}
	return append(os.Environ(), t.Env...)
}

// resolve returns the binary path, erroring early for configured absolute
// paths that do not exist.
func (t Tool) resolve() (string, error) {
	if filepath.IsAbs(t.Path) {
		if _, err := os.Stat(t.Path); err != nil {
			return "", pkgerrors.Wrapf(errors.ErrMissingTool, "%s (%s)", t.Name, t.Path)
		}
	}
	return t.Path, nil
}
