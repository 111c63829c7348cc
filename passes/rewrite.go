// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package passes

import (
	"github.com/gomlx/enginetest/fx"
	"github.com/pkg/errors"
)

// rewriteHook inspects a source node during replay. It returns the replacement
// values and handled=true to override the node, or handled=false to let the
// default replay emit it unchanged.
type rewriteHook func(b fx.Builder, n *fx.Node, inputs []fx.Value) ([]fx.Value, bool, error)

// rewrite replays src node by node into a fresh graph, letting hook rewrite
// individual nodes. Placeholders are cloned as-is and the output node seals
// the new graph.
func rewrite(src *fx.Graph, hook rewriteHook) (*fx.Graph, error) {
	rw := fx.NewRewrite(src)
	b := rw.Builder()
	mapping := make(map[*fx.Node]fx.Value, len(src.Nodes()))
	for ii, n := range src.Inputs() {
		mapping[n] = rw.Inputs()[ii]
	}
	for _, n := range src.Nodes() {
		switch n.Kind() {
		case fx.KindPlaceholder:
			continue
		case fx.KindOutput:
			outputs, err := mappedInputs(mapping, n)
			if err != nil {
				return nil, err
			}
			return rw.Finish(outputs)
		}
		inputs, err := mappedInputs(mapping, n)
		if err != nil {
			return nil, err
		}
		values, handled, err := hook(b, n, inputs)
		if err != nil {
			return nil, err
		}
		if !handled {
			values, err = fx.Emit(b, src.Owner(), n, inputs)
			if err != nil {
				return nil, err
			}
		}
		if len(values) != 1 {
			return nil, errors.Errorf("passes: node %s produced %d values during rewrite, expected 1", n, len(values))
		}
		mapping[n] = values[0]
	}
	return nil, errors.New("passes: graph has no output node")
}

func mappedInputs(mapping map[*fx.Node]fx.Value, n *fx.Node) ([]fx.Value, error) {
	inputs := make([]fx.Value, len(n.NodeInputs()))
	for ii, in := range n.NodeInputs() {
		v, found := mapping[in]
		if !found {
			return nil, errors.Errorf("passes: node %s depends on %s which was not replayed", n, in)
		}
		inputs[ii] = v
	}
	return inputs, nil
}
