// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fx

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gopjrt/dtypes"
)

// GraphBuilder is the Builder implementation backed by the framework's
// high-level graph ops. Running a model's Forward through it is the "direct
// execution" path: it never sees the traced IR nor the engine lowering, which
// is what makes it usable as the numerical reference.
type GraphBuilder struct {
	g *graph.Graph
}

var _ Builder = (*GraphBuilder)(nil)

// NewGraphBuilder returns a Builder that emits operations on g.
func NewGraphBuilder(g *graph.Graph) *GraphBuilder {
	return &GraphBuilder{g: g}
}

// graphValue adapts *graph.Node to the Value interface.
type graphValue struct {
	node *graph.Node
}

// Wrap makes a graph node usable as a Forward input.
func (b *GraphBuilder) Wrap(n *graph.Node) Value { return graphValue{node: n} }

// GraphNode returns the gomlx node behind a Value created by a GraphBuilder.
func GraphNode(v Value) *graph.Node {
	gv, ok := v.(graphValue)
	if !ok {
		exceptions.Panicf("fx: value %v was not created by a GraphBuilder", v)
	}
	return gv.node
}

func (b *GraphBuilder) node(v Value) *graph.Node { return GraphNode(v) }

func (b *GraphBuilder) Constant(t *tensors.Tensor) Value {
	return graphValue{node: graph.ConstTensor(b.g, t)}
}

func (b *GraphBuilder) Add(lhs, rhs Value) Value {
	return graphValue{node: graph.Add(b.node(lhs), b.node(rhs))}
}

func (b *GraphBuilder) Sub(lhs, rhs Value) Value {
	return graphValue{node: graph.Sub(b.node(lhs), b.node(rhs))}
}

func (b *GraphBuilder) Mul(lhs, rhs Value) Value {
	return graphValue{node: graph.Mul(b.node(lhs), b.node(rhs))}
}

func (b *GraphBuilder) Div(lhs, rhs Value) Value {
	return graphValue{node: graph.Div(b.node(lhs), b.node(rhs))}
}

func (b *GraphBuilder) Max(lhs, rhs Value) Value {
	return graphValue{node: graph.Max(b.node(lhs), b.node(rhs))}
}

func (b *GraphBuilder) AddScalar(x Value, c float64) Value {
	return graphValue{node: graph.AddScalar(b.node(x), c)}
}

func (b *GraphBuilder) MulScalar(x Value, c float64) Value {
	return graphValue{node: graph.MulScalar(b.node(x), c)}
}

func (b *GraphBuilder) DivScalar(x Value, c float64) Value {
	return graphValue{node: graph.DivScalar(b.node(x), c)}
}

func (b *GraphBuilder) MatMul(lhs, rhs Value) Value {
	return graphValue{node: graph.MatMul(b.node(lhs), b.node(rhs))}
}

func (b *GraphBuilder) Relu(x Value) Value {
	return graphValue{node: activations.Relu(b.node(x))}
}

func (b *GraphBuilder) Gelu(x Value) Value {
	return graphValue{node: activations.Gelu(b.node(x))}
}

func (b *GraphBuilder) Exp(x Value) Value {
	return graphValue{node: graph.Exp(b.node(x))}
}

func (b *GraphBuilder) Tanh(x Value) Value {
	return graphValue{node: graph.Tanh(b.node(x))}
}

func (b *GraphBuilder) Sigmoid(x Value) Value {
	return graphValue{node: graph.Sigmoid(b.node(x))}
}

func (b *GraphBuilder) Erf(x Value) Value {
	return graphValue{node: graph.Erf(b.node(x))}
}

func (b *GraphBuilder) Softmax(x Value, axis int) Value {
	node := b.node(x)
	if axis < 0 {
		axis += node.Rank()
	}
	return graphValue{node: graph.Softmax(node, axis)}
}

func (b *GraphBuilder) ConvertDType(x Value, dtype dtypes.DType) Value {
	return graphValue{node: graph.ConvertDType(b.node(x), dtype)}
}

func (b *GraphBuilder) ReduceSum(x Value, axes ...int) Value {
	if len(axes) == 0 {
		return graphValue{node: graph.ReduceAllSum(b.node(x))}
	}
	return graphValue{node: graph.ReduceSum(b.node(x), axes...)}
}

func (b *GraphBuilder) ReduceMax(x Value, axes ...int) Value {
	if len(axes) == 0 {
		return graphValue{node: graph.ReduceAllMax(b.node(x))}
	}
	return graphValue{node: graph.ReduceMax(b.node(x), axes...)}
}

func (b *GraphBuilder) Call(_ string, m Module, inputs ...Value) []Value {
	// Direct execution has no notion of module boundaries: always inline.
	return m.Forward(b, inputs...)
}

func (v graphValue) Reshape(dimensions ...int) Value {
	return graphValue{node: graph.Reshape(v.node, dimensions...)}
}

func (v graphValue) Transpose(axisA, axisB int) Value {
	return graphValue{node: graph.Transpose(v.node, axisA, axisB)}
}
