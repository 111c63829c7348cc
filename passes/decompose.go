// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package passes implements the graph-rewriting stages between tracing and
// engine compilation: decomposition of composite ops, the fixed lowering
// pipeline, and best-effort shape propagation.
package passes

import (
	"math"

	"github.com/gomlx/enginetest/fx"
)

// decompositions expand composite call_function targets into primitive ops.
// Only ops the engine has no converter for need an entry here.
var decompositions = map[string]func(b fx.Builder, n *fx.Node, inputs []fx.Value) fx.Value{
	"gelu": decomposeGelu,
}

// Decompose rewrites g expanding composite function ops into primitives, so
// the engine only sees ops it has converters for. Ops without a registered
// decomposition are replayed unchanged.
func Decompose(g *fx.Graph) (*fx.Graph, error) {
	return rewrite(g, func(b fx.Builder, n *fx.Node, inputs []fx.Value) ([]fx.Value, bool, error) {
		if n.Kind() != fx.KindCallFunction {
			return nil, false, nil
		}
		expand, found := decompositions[n.Target()]
		if !found {
			return nil, false, nil
		}
		return []fx.Value{expand(b, n, inputs)}, true, nil
	})
}

// decomposeGelu emits the exact erf-based form: x * 0.5*(1 + erf(x/sqrt(2))).
func decomposeGelu(b fx.Builder, _ *fx.Node, inputs []fx.Value) fx.Value {
	x := inputs[0]
	cdf := b.MulScalar(b.AddScalar(b.Erf(b.DivScalar(x, math.Sqrt2)), 1), 0.5)
	return b.Mul(x, cdf)
}
