// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fx

import (
	"fmt"

	"github.com/gomlx/exceptions"
)

// SymbolicTrace records m's Forward into a Graph, keeping Leaf sub-modules as
// opaque call_module nodes. One InputSpec per Forward input is required; the
// placeholders take the specs' dtypes and (optimal) shapes.
func SymbolicTrace(m Module, specs ...*InputSpec) (*Graph, error) {
	return trace(m, specs, false)
}

// ExportTrace records m's Forward into a Graph with every sub-module inlined,
// so only call_function and call_method nodes remain. Composite function ops
// (gelu, softmax) are still recorded as single nodes; expand them with
// passes.Decompose.
func ExportTrace(m Module, specs ...*InputSpec) (*Graph, error) {
	return trace(m, specs, true)
}

func trace(m Module, specs []*InputSpec, inline bool) (g *Graph, err error) {
	if m == nil {
		return nil, exceptions.TryCatch[error](func() { exceptions.Panicf("fx: trace of a nil module") })
	}
	err = exceptions.TryCatch[error](func() {
		g = &Graph{owner: m}
		r := &recorder{g: g, inline: inline}
		inputs := make([]Value, len(specs))
		for ii, spec := range specs {
			if spec == nil {
				exceptions.Panicf("fx: trace: InputSpec #%d is nil", ii)
			}
			inputs[ii] = r.placeholder(fmt.Sprintf("input_%d", ii), spec.DType, spec.Shape())
		}
		outputs := m.Forward(r, inputs...)
		if len(outputs) == 0 {
			exceptions.Panicf("fx: trace: module %T returned no outputs", m)
		}
		outNodes := r.nodes(outputs)
		r.newNode(KindOutput, "output", outNodes...)
		g.outputs = outNodes

		// The graph is now immutable IR; detach the recorder so later method
		// calls on its nodes fail loudly.
		for _, n := range g.nodes {
			n.rec = nil
		}
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}
