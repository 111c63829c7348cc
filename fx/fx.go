// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fx defines a light-weight traced-graph representation of a model's
// computation, the tracers that produce it, and the Builder interface that
// models are written against.
//
// A model is any fx.Module: a struct (usually) holding parameter tensors and
// sub-modules, with a Forward method written in terms of fx.Builder operations.
// The same Forward is consumed in three different ways, depending on the
// Builder implementation handed to it:
//
//   - The recorder (see SymbolicTrace and ExportTrace) captures the calls into
//     a Graph of Nodes, tagged as call_module, call_function or call_method,
//     the same vocabulary used by the op-presence assertions in package
//     enginetest.
//   - The gomlx graph builder (see NewGraphBuilder) executes the model through
//     the framework's standard path, giving the numerical reference.
//   - The backend lowering builder (package engine) compiles the traced Graph
//     directly onto a backends.Builder, producing the engine under test.
//
// Errors during tracing or lowering are thrown as exceptions (see
// github.com/gomlx/exceptions), following the gomlx convention; the package
// boundary functions convert them back to errors.
package fx

import (
	"fmt"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// ErrUnsupportedOp is wrapped by errors reported when a node target has no
// lowering for the requested builder -- e.g., an op the engine has no
// converter for. Use errors.Is to test for it.
var ErrUnsupportedOp = errors.New("unsupported operation")

// Graph is the traced representation of a model's computation: a node list in
// topological order, plus the owning (root) module against which call_module
// targets are resolved.
type Graph struct {
	owner   Module
	nodes   []*Node
	inputs  []*Node
	outputs []*Node
	nextID  int
}

// Owner returns the root module this graph was traced from. Targets of
// call_module nodes are dotted attribute paths into it, see FetchAttr.
func (g *Graph) Owner() Module { return g.owner }

// Nodes returns all nodes in topological order, including placeholders and
// the output node.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Inputs returns the placeholder nodes, in the order inputs are fed.
func (g *Graph) Inputs() []*Node { return g.inputs }

// Outputs returns the nodes whose values the traced model returns.
func (g *Graph) Outputs() []*Node { return g.outputs }

// String returns a multi-line listing of the graph, one node per line.
func (g *Graph) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "Graph(%d nodes, %d inputs, %d outputs):\n",
		len(g.nodes), len(g.inputs), len(g.outputs))
	for _, n := range g.nodes {
		_, _ = fmt.Fprintf(&sb, "\t%s\n", n)
	}
	return sb.String()
}

// Node is one operation of a traced Graph.
//
// Its Kind establishes how Target is interpreted: for KindCallModule it is a
// dotted attribute path into the graph's owner module; for KindCallFunction
// and KindCallMethod it is the operation name ("matmul", "reshape", ...); for
// KindPlaceholder it is the input name.
type Node struct {
	graph  *Graph
	id     int
	kind   OpKind
	target string
	inputs []*Node

	// Op attributes; which ones are meaningful depends on the target.
	dims   []int
	axes   []int
	axis   int
	scalar float64
	dtype  dtypes.DType
	tensor *tensors.Tensor

	shape shapes.Shape // Annotated by shape propagation; zero value if unknown.

	rec *recorder // Set only while the graph is being recorded.
}

// ID returns the node's unique id within its graph.
func (n *Node) ID() int { return n.id }

// Kind returns the node's operation kind.
func (n *Node) Kind() OpKind { return n.kind }

// Target returns the node's target identifier. See Node for its
// interpretation per kind.
func (n *Node) Target() string { return n.target }

// NodeInputs returns the nodes feeding this node.
func (n *Node) NodeInputs() []*Node { return n.inputs }

// Dims returns the dimensions attribute (reshape) or the axes pair
// (transpose).
func (n *Node) Dims() []int { return n.dims }

// Axes returns the reduction axes attribute. Empty means all axes.
func (n *Node) Axes() []int { return n.axes }

// Axis returns the single-axis attribute (softmax).
func (n *Node) Axis() int { return n.axis }

// Scalar returns the scalar attribute of the *_scalar ops.
func (n *Node) Scalar() float64 { return n.scalar }

// AttrDType returns the dtype attribute: the conversion target for
// convert_dtype, or the declared dtype of a placeholder.
func (n *Node) AttrDType() dtypes.DType { return n.dtype }

// Tensor returns the payload of a constant node, nil otherwise.
func (n *Node) Tensor() *tensors.Tensor { return n.tensor }

// Shape returns the shape annotated by shape propagation. Check with
// Shape().Ok() -- it is the zero value if propagation didn't run or failed.
func (n *Node) Shape() shapes.Shape { return n.shape }

// SetShape annotates the node with its inferred shape (and dtype). Used by
// shape propagation in package passes.
func (n *Node) SetShape(shape shapes.Shape) { n.shape = shape }

// String formats the node as "#id kind[target](#in0, #in1)".
func (n *Node) String() string {
	if n == nil {
		return "#invalid"
	}
	ins := make([]string, len(n.inputs))
	for ii, in := range n.inputs {
		ins[ii] = fmt.Sprintf("#%d", in.id)
	}
	s := fmt.Sprintf("#%d %s[%s](%s)", n.id, n.kind, n.target, strings.Join(ins, ", "))
	if n.shape.Ok() {
		s += fmt.Sprintf(" -> %s", n.shape)
	}
	return s
}
