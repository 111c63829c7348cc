// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package passes

import (
	"github.com/gomlx/enginetest/fx"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// ErrShapeInference reports that the backend could not infer a shape for a
// node during propagation. Callers distinguish it from fx.ErrUnsupportedOp
// with errors.Is.
var ErrShapeInference = errors.New("shape inference failed")

// PropagateShapes annotates every node of g with the shape it would produce
// for the given concrete inputs. The graph is replayed build-only onto a
// throwaway computation graph, no execution happens.
//
// On error the graph may be left partially annotated: nodes replayed before
// the failure keep their shapes.
func PropagateShapes(backend backends.Backend, g *fx.Graph, inputs []*tensors.Tensor) error {
	if len(inputs) != len(g.Inputs()) {
		return errors.Errorf("passes: graph takes %d inputs, got %d tensors for shape propagation",
			len(g.Inputs()), len(inputs))
	}
	tmp := graph.NewGraph(backend, "shape_propagation")
	defer tmp.Finalize()
	b := fx.NewGraphBuilder(tmp)
	mapping := make(map[*fx.Node]fx.Value, len(g.Nodes()))
	for ii, n := range g.Inputs() {
		v := b.Wrap(graph.Parameter(tmp, n.Target(), inputs[ii].Shape()))
		mapping[n] = v
		n.SetShape(inputs[ii].Shape())
	}
	for _, n := range g.Nodes() {
		switch n.Kind() {
		case fx.KindPlaceholder, fx.KindOutput:
			continue
		}
		ins, err := mappedInputs(mapping, n)
		if err != nil {
			return err
		}
		var values []fx.Value
		err = exceptions.TryCatch[error](func() {
			var emitErr error
			values, emitErr = fx.Emit(b, g.Owner(), n, ins)
			if emitErr != nil {
				panic(emitErr)
			}
		})
		if err != nil {
			if errors.Is(err, fx.ErrUnsupportedOp) {
				return err
			}
			return errors.Wrapf(ErrShapeInference, "node %s: %v", n, err)
		}
		if len(values) != 1 {
			return errors.Wrapf(ErrShapeInference, "node %s produced %d values, expected 1", n, len(values))
		}
		mapping[n] = values[0]
		n.SetShape(fx.GraphNode(values[0]).Shape())
	}
	return nil
}
