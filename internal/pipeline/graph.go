package pipeline

import (
	"io"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"

	"github.com/phyloflow/phyloflow/internal/errors"
)

func stageHash(s Stage) int { return int(s) }

// DependencyGraph builds the stage dependency graph. The chain is linear
// today, but the graph keeps ordering and DOT export honest if a stage ever
// grows a second predecessor.
func DependencyGraph() (graph.Graph[int, Stage], error) {
	g := graph.New(stageHash, graph.Directed(), graph.Acyclic())
	for _, s := range AllStages() {
		if err := g.AddVertex(s, graph.VertexAttribute("label", s.String())); err != nil {
			return nil, errors.Wrapf(err, "failed to add stage %s", s)
		}
	}
	for _, s := range AllStages() {
		if pred := s.Predecessor(); pred != 0 {
			if err := g.AddEdge(stageHash(pred), stageHash(s)); err != nil {
				return nil, errors.Wrapf(err, "failed to link %s to %s", pred, s)
			}
		}
	}
	return g, nil
}

// TopologicalOrder returns every stage in dependency order.
func TopologicalOrder() ([]Stage, error) {
	g, err := DependencyGraph()
	if err != nil {
		return nil, err
	}
	ids, err := graph.TopologicalSort(g)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sort stage graph")
	}
	stages := make([]Stage, len(ids))
	for i, id := range ids {
		stages[i] = Stage(id)
	}
	return stages, nil
}

// WriteDOT renders the stage dependency graph in DOT format.
func WriteDOT(w io.Writer) error {
	g, err := DependencyGraph()
	if err != nil {
		return err
	}
	if err := draw.DOT(g, w); err != nil {
		return errors.Wrap(err, "failed to render stage graph")
	}
	return nil
}
