// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fx

import (
	"github.com/pkg/errors"
)

// Emit replays one traced node onto b, with the node's inputs already mapped
// to b-values. It is the single dispatch point shared by the rewriting passes
// (replaying into a new recorder), shape propagation (replaying onto a gomlx
// graph) and the engine lowering (replaying onto a backend builder).
//
// Placeholder and output nodes are structural and handled by the callers.
// A target with no mapping returns an error wrapping ErrUnsupportedOp; errors
// thrown by the builder itself propagate as panics.
func Emit(b Builder, owner Module, n *Node, inputs []Value) ([]Value, error) {
	one := func(v Value) ([]Value, error) { return []Value{v}, nil }
	switch n.Kind() {
	case KindConstant:
		return one(b.Constant(n.Tensor()))

	case KindCallModule:
		attr, err := FetchAttr(owner, n.Target())
		if err != nil {
			return nil, err
		}
		m, ok := attr.(Module)
		if !ok {
			return nil, errors.Wrapf(ErrUnsupportedOp, "call_module target %q resolved to %T, not a Module",
				n.Target(), attr)
		}
		return b.Call(n.Target(), m, inputs...), nil

	case KindCallFunction:
		switch n.Target() {
		case "add":
			return one(b.Add(inputs[0], inputs[1]))
		case "sub":
			return one(b.Sub(inputs[0], inputs[1]))
		case "mul":
			return one(b.Mul(inputs[0], inputs[1]))
		case "div":
			return one(b.Div(inputs[0], inputs[1]))
		case "max":
			return one(b.Max(inputs[0], inputs[1]))
		case "add_scalar":
			return one(b.AddScalar(inputs[0], n.Scalar()))
		case "mul_scalar":
			return one(b.MulScalar(inputs[0], n.Scalar()))
		case "div_scalar":
			return one(b.DivScalar(inputs[0], n.Scalar()))
		case "matmul":
			return one(b.MatMul(inputs[0], inputs[1]))
		case "relu":
			return one(b.Relu(inputs[0]))
		case "gelu":
			return one(b.Gelu(inputs[0]))
		case "exp":
			return one(b.Exp(inputs[0]))
		case "tanh":
			return one(b.Tanh(inputs[0]))
		case "sigmoid":
			return one(b.Sigmoid(inputs[0]))
		case "erf":
			return one(b.Erf(inputs[0]))
		case "softmax":
			return one(b.Softmax(inputs[0], n.Axis()))
		case "convert_dtype":
			return one(b.ConvertDType(inputs[0], n.AttrDType()))
		case "reduce_sum":
			return one(b.ReduceSum(inputs[0], n.Axes()...))
		case "reduce_max":
			return one(b.ReduceMax(inputs[0], n.Axes()...))
		default:
			return nil, errors.Wrapf(ErrUnsupportedOp, "call_function target %q", n.Target())
		}

	case KindCallMethod:
		switch n.Target() {
		case "reshape":
			return one(inputs[0].Reshape(n.Dims()...))
		case "transpose":
			return one(inputs[0].Transpose(n.Dims()[0], n.Dims()[1]))
		default:
			return nil, errors.Wrapf(ErrUnsupportedOp, "call_method target %q", n.Target())
		}

	default:
		return nil, errors.Wrapf(ErrUnsupportedOp, "node %s cannot be emitted", n)
	}
}
