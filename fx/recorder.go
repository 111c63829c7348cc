// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fx

import (
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
)

// recorder is the Builder implementation that captures a model's Forward into
// a Graph. It is the only Builder that creates *Node values.
type recorder struct {
	g *Graph

	// inline makes Call always recurse into sub-modules (export tracing),
	// ignoring the Leaf marker.
	inline bool

	// scope accumulates the attribute path of the module being recorded.
	scope []string
}

var _ Builder = (*recorder)(nil)

func (r *recorder) newNode(kind OpKind, target string, inputs ...*Node) *Node {
	n := &Node{
		graph:  r.g,
		id:     r.g.nextID,
		kind:   kind,
		target: target,
		inputs: inputs,
		dtype:  dtypes.InvalidDType,
		rec:    r,
	}
	r.g.nextID++
	r.g.nodes = append(r.g.nodes, n)
	return n
}

// node checks that v was created by this recorder's graph.
func (r *recorder) node(v Value) *Node {
	n, ok := v.(*Node)
	if !ok || n.graph != r.g {
		exceptions.Panicf("fx: value %v was not created by this tracer", v)
	}
	return n
}

func (r *recorder) nodes(vs []Value) []*Node {
	ns := make([]*Node, len(vs))
	for ii, v := range vs {
		ns[ii] = r.node(v)
	}
	return ns
}

func (r *recorder) placeholder(name string, dtype dtypes.DType, shape shapes.Shape) *Node {
	n := r.newNode(KindPlaceholder, name)
	n.dtype = dtype
	n.shape = shape
	r.g.inputs = append(r.g.inputs, n)
	return n
}

func (r *recorder) Constant(t *tensors.Tensor) Value {
	if t == nil {
		exceptions.Panicf("fx: Constant given a nil tensor")
	}
	n := r.newNode(KindConstant, "constant")
	n.tensor = t
	n.dtype = t.DType()
	return n
}

func (r *recorder) binary(target string, lhs, rhs Value) Value {
	return r.newNode(KindCallFunction, target, r.node(lhs), r.node(rhs))
}

func (r *recorder) unary(target string, x Value) Value {
	return r.newNode(KindCallFunction, target, r.node(x))
}

func (r *recorder) Add(lhs, rhs Value) Value { return r.binary("add", lhs, rhs) }
func (r *recorder) Sub(lhs, rhs Value) Value { return r.binary("sub", lhs, rhs) }
func (r *recorder) Mul(lhs, rhs Value) Value { return r.binary("mul", lhs, rhs) }
func (r *recorder) Div(lhs, rhs Value) Value { return r.binary("div", lhs, rhs) }
func (r *recorder) Max(lhs, rhs Value) Value { return r.binary("max", lhs, rhs) }

func (r *recorder) scalarOp(target string, x Value, c float64) Value {
	n := r.newNode(KindCallFunction, target, r.node(x))
	n.scalar = c
	return n
}

func (r *recorder) AddScalar(x Value, c float64) Value { return r.scalarOp("add_scalar", x, c) }
func (r *recorder) MulScalar(x Value, c float64) Value { return r.scalarOp("mul_scalar", x, c) }
func (r *recorder) DivScalar(x Value, c float64) Value { return r.scalarOp("div_scalar", x, c) }

func (r *recorder) MatMul(lhs, rhs Value) Value { return r.binary("matmul", lhs, rhs) }

func (r *recorder) Relu(x Value) Value    { return r.unary("relu", x) }
func (r *recorder) Gelu(x Value) Value    { return r.unary("gelu", x) }
func (r *recorder) Exp(x Value) Value     { return r.unary("exp", x) }
func (r *recorder) Tanh(x Value) Value    { return r.unary("tanh", x) }
func (r *recorder) Sigmoid(x Value) Value { return r.unary("sigmoid", x) }
func (r *recorder) Erf(x Value) Value     { return r.unary("erf", x) }

func (r *recorder) Softmax(x Value, axis int) Value {
	n := r.newNode(KindCallFunction, "softmax", r.node(x))
	n.axis = axis
	return n
}

func (r *recorder) ConvertDType(x Value, dtype dtypes.DType) Value {
	n := r.newNode(KindCallFunction, "convert_dtype", r.node(x))
	n.dtype = dtype
	return n
}

func (r *recorder) ReduceSum(x Value, axes ...int) Value {
	n := r.newNode(KindCallFunction, "reduce_sum", r.node(x))
	n.axes = axes
	return n
}

func (r *recorder) ReduceMax(x Value, axes ...int) Value {
	n := r.newNode(KindCallFunction, "reduce_max", r.node(x))
	n.axes = axes
	return n
}

func (r *recorder) Call(name string, m Module, inputs ...Value) []Value {
	if m == nil {
		exceptions.Panicf("fx: Call(%q) given a nil module", name)
	}
	if _, isLeaf := m.(Leaf); isLeaf && !r.inline {
		// Leaf modules are kept opaque by the symbolic tracer: a single
		// call_module node, single output.
		target := name
		if len(r.scope) > 0 {
			target = strings.Join(r.scope, ".") + "." + name
		}
		n := r.newNode(KindCallModule, target, r.nodes(inputs)...)
		return []Value{n}
	}
	r.scope = append(r.scope, name)
	outputs := m.Forward(r, inputs...)
	r.scope = r.scope[:len(r.scope)-1]
	return outputs
}

// Value interface for *Node: method ops recorded as call_method nodes. They
// are valid only while the graph is being recorded.

func (n *Node) methodRecorder() *recorder {
	if n.rec == nil {
		exceptions.Panicf("fx: method call on node %s of an already finished graph", n)
	}
	return n.rec
}

// Reshape records a call_method "reshape" node. Implements Value.
func (n *Node) Reshape(dimensions ...int) Value {
	r := n.methodRecorder()
	out := r.newNode(KindCallMethod, "reshape", n)
	out.dims = dimensions
	return out
}

// Transpose records a call_method "transpose" node. Implements Value.
func (n *Node) Transpose(axisA, axisB int) Value {
	r := n.methodRecorder()
	out := r.newNode(KindCallMethod, "transpose", n)
	out.dims = []int{axisA, axisB}
	return out
}
