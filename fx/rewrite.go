// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fx

import (
	"github.com/gomlx/exceptions"
)

// Rewrite builds a new Graph derived from an existing one. It is the
// foundation of the rewriting passes: the source graph's placeholders are
// cloned up front, and the pass replays (or replaces) the remaining nodes
// through the Builder.
type Rewrite struct {
	src    *Graph
	g      *Graph
	r      *recorder
	inputs []Value
}

// NewRewrite starts a rewrite of src: the new graph shares src's owner module
// and gets a clone of each placeholder, in order.
func NewRewrite(src *Graph) *Rewrite {
	g := &Graph{owner: src.owner}
	r := &recorder{g: g}
	rw := &Rewrite{src: src, g: g, r: r}
	rw.inputs = make([]Value, len(src.inputs))
	for ii, in := range src.inputs {
		rw.inputs[ii] = r.placeholder(in.target, in.dtype, in.shape)
	}
	return rw
}

// Builder returns the recorder of the graph being built.
func (rw *Rewrite) Builder() Builder { return rw.r }

// Inputs returns the cloned placeholders, parallel to the source graph's.
func (rw *Rewrite) Inputs() []Value { return rw.inputs }

// Finish seals the new graph with the given outputs and returns it.
func (rw *Rewrite) Finish(outputs []Value) (g *Graph, err error) {
	err = exceptions.TryCatch[error](func() {
		if len(outputs) == 0 {
			exceptions.Panicf("fx: Rewrite.Finish given no outputs")
		}
		outNodes := rw.r.nodes(outputs)
		rw.r.newNode(KindOutput, "output", outNodes...)
		rw.g.outputs = outNodes
		for _, n := range rw.g.nodes {
			n.rec = nil
		}
		g = rw.g
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}
