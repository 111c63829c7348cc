// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package passes

import (
	"fmt"
	"strings"

	"github.com/gomlx/enginetest/fx"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ApplyLowering runs the fixed lowering pipeline on a traced graph:
// decomposition of composite ops, no-op elimination, common subexpression
// elimination and dead code elimination. The representative inputs drive a
// best-effort shape propagation so shape-dependent simplifications (identity
// reshapes, identity dtype conversions) can fire; failure to propagate only
// disables those simplifications.
func ApplyLowering(backend backends.Backend, g *fx.Graph, exampleInputs []*tensors.Tensor) (*fx.Graph, error) {
	g, err := Decompose(g)
	if err != nil {
		return nil, err
	}
	if err := PropagateShapes(backend, g, exampleInputs); err != nil {
		klog.V(1).Infof("lowering: shape propagation skipped: %v", err)
	}
	return simplify(g)
}

// simplify replays g dropping dead nodes, forwarding no-ops and deduplicating
// structurally identical nodes.
func simplify(src *fx.Graph) (*fx.Graph, error) {
	alive := liveNodes(src)
	rw := fx.NewRewrite(src)
	b := rw.Builder()
	mapping := make(map[*fx.Node]fx.Value, len(alive))
	seen := make(map[string]fx.Value, len(alive))
	for ii, n := range src.Inputs() {
		mapping[n] = rw.Inputs()[ii]
	}
	for _, n := range src.Nodes() {
		if !alive[n] {
			continue
		}
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
		if forwarded, ok := forwardNoOp(n, inputs); ok {
			mapping[n] = forwarded
			continue
		}
		key := nodeKey(n, inputs)
		if prev, found := seen[key]; found && key != "" {
			mapping[n] = prev
			continue
		}
		values, err := fx.Emit(b, src.Owner(), n, inputs)
		if err != nil {
			return nil, err
		}
		if len(values) != 1 {
			return nil, errors.Errorf("passes: node %s produced %d values during lowering, expected 1", n, len(values))
		}
		mapping[n] = values[0]
		if key != "" {
			seen[key] = values[0]
		}
	}
	return nil, errors.New("passes: graph has no output node")
}

// liveNodes marks nodes reachable from the output node.
func liveNodes(g *fx.Graph) map[*fx.Node]bool {
	alive := make(map[*fx.Node]bool, len(g.Nodes()))
	var mark func(n *fx.Node)
	mark = func(n *fx.Node) {
		if alive[n] {
			return
		}
		alive[n] = true
		for _, in := range n.NodeInputs() {
			mark(in)
		}
	}
	for _, n := range g.Nodes() {
		if n.Kind() == fx.KindOutput {
			mark(n)
		}
	}
	// Placeholders stay even when unused, they define the calling convention.
	for _, n := range g.Inputs() {
		alive[n] = true
	}
	return alive
}

// forwardNoOp returns the input value for nodes that provably do nothing:
// identity reshapes and dtype conversions (when shapes were propagated), and
// scalar arithmetic with a neutral constant.
func forwardNoOp(n *fx.Node, inputs []fx.Value) (fx.Value, bool) {
	if n.Kind() != fx.KindCallFunction && n.Kind() != fx.KindCallMethod {
		return nil, false
	}
	inShape := func() (dims []int, ok bool) {
		s := n.NodeInputs()[0].Shape()
		if !s.Ok() {
			return nil, false
		}
		return s.Dimensions, true
	}
	switch n.Target() {
	case "reshape":
		if dims, ok := inShape(); ok && equalDims(dims, n.Dims()) {
			return inputs[0], true
		}
	case "convert_dtype":
		if s := n.NodeInputs()[0].Shape(); s.Ok() && s.DType == n.AttrDType() {
			return inputs[0], true
		}
	case "add_scalar":
		if n.Scalar() == 0 {
			return inputs[0], true
		}
	case "mul_scalar", "div_scalar":
		if n.Scalar() == 1 {
			return inputs[0], true
		}
	}
	return nil, false
}

func equalDims(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for ii := range a {
		if a[ii] != b[ii] {
			return false
		}
	}
	return true
}

// nodeKey builds a structural signature for common subexpression elimination.
// An empty key means the node is not safe to deduplicate.
func nodeKey(n *fx.Node, inputs []fx.Value) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s|%s", n.Kind(), n.Target())
	for _, in := range inputs {
		node, ok := in.(*fx.Node)
		if !ok {
			return ""
		}
		fmt.Fprintf(&sb, "|#%d", node.ID())
	}
	switch n.Kind() {
	case fx.KindConstant:
		// Constants alias by tensor identity, not by content.
		fmt.Fprintf(&sb, "|%p", n.Tensor())
	case fx.KindCallModule:
		// Module calls may close over mutable state, keep them distinct.
		return ""
	}
	fmt.Fprintf(&sb, "|dims=%v|axes=%v|axis=%d|scalar=%v|dtype=%s",
		n.Dims(), n.Axes(), n.Axis(), n.Scalar(), n.AttrDType())
	return sb.String()
}
