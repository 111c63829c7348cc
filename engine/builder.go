// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package engine

import (
	"github.com/gomlx/enginetest/fx"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// backendBuilder lowers fx ops directly onto a backends.Builder. Backend
// errors are thrown as exceptions and caught at the Compile boundary.
//
// It deliberately has no converter for composite ops like gelu: those must be
// decomposed before reaching the engine.
type backendBuilder struct {
	b        backends.Builder
	settings Settings
}

// backendValue wraps a backend Op as an fx.Value.
type backendValue struct {
	bb *backendBuilder
	op backends.Op
}

func (v backendValue) Reshape(dimensions ...int) fx.Value {
	return v.bb.wrap(v.bb.b.Reshape(v.op, dimensions...))
}

func (v backendValue) Transpose(axisA, axisB int) fx.Value {
	rank := v.bb.shapeOf(v.op).Rank()
	permutation := make([]int, rank)
	for ii := range permutation {
		permutation[ii] = ii
	}
	permutation[axisA], permutation[axisB] = permutation[axisB], permutation[axisA]
	return v.bb.wrap(v.bb.b.Transpose(v.op, permutation...))
}

func newBackendBuilder(b backends.Builder, settings Settings) *backendBuilder {
	return &backendBuilder{b: b, settings: settings}
}

// wrap converts a (Op, error) pair into a value, throwing on error.
func (bb *backendBuilder) wrap(op backends.Op, err error) fx.Value {
	if err != nil {
		panic(errors.WithStack(err))
	}
	return backendValue{bb: bb, op: op}
}

func (bb *backendBuilder) op(v fx.Value) backends.Op {
	bv, ok := v.(backendValue)
	if !ok || bv.bb != bb {
		exceptions.Panicf("engine: value %v does not belong to this builder", v)
	}
	return bv.op
}

func (bb *backendBuilder) shapeOf(op backends.Op) shapes.Shape {
	s, err := bb.b.OpShape(op)
	if err != nil {
		panic(errors.WithStack(err))
	}
	return s
}

// parameter creates an input parameter and applies the settings' dtype casts,
// so the executable takes the caller's dtype but computes in the engine's.
func (bb *backendBuilder) parameter(name string, shape shapes.Shape) fx.Value {
	v := bb.wrap(bb.b.Parameter(name, shape, nil))
	return bb.castIn(v)
}

// castIn applies TruncateFloat64 and reduced precision on a freshly created
// parameter or constant.
func (bb *backendBuilder) castIn(v fx.Value) fx.Value {
	dtype := bb.shapeOf(bb.op(v)).DType
	if bb.settings.TruncateFloat64 && dtype == dtypes.Float64 {
		v = bb.ConvertDType(v, dtypes.Float32)
		dtype = dtypes.Float32
	}
	if bb.settings.reducedPrecision() && dtype == dtypes.Float32 {
		v = bb.ConvertDType(v, dtypes.Float16)
	}
	return v
}

func (bb *backendBuilder) Constant(t *tensors.Tensor) fx.Value {
	var v fx.Value
	err := t.ConstFlatData(func(flat any) {
		v = bb.wrap(bb.b.Constant(flat, t.Shape().Dimensions...))
	})
	if err != nil {
		panic(errors.WithStack(err))
	}
	return bb.castIn(v)
}

// scalar creates a scalar constant of the given dtype.
func (bb *backendBuilder) scalar(dtype dtypes.DType, value float64) fx.Value {
	var flat any
	switch dtype {
	case dtypes.Float32:
		flat = []float32{float32(value)}
	case dtypes.Float64:
		flat = []float64{value}
	case dtypes.Float16:
		flat = []float16.Float16{float16.Fromfloat32(float32(value))}
	case dtypes.Int32:
		flat = []int32{int32(value)}
	case dtypes.Int64:
		flat = []int64{int64(value)}
	default:
		exceptions.Panicf("engine: unsupported dtype %s for scalar constant", dtype)
	}
	return bb.wrap(bb.b.Constant(flat))
}

// broadcastPair makes lhs and rhs shape-compatible for a binary op: scalars
// are expanded to the other side's shape, and same-rank operands have their
// size-1 axes expanded.
func (bb *backendBuilder) broadcastPair(lhs, rhs backends.Op) (backends.Op, backends.Op) {
	ls, rs := bb.shapeOf(lhs), bb.shapeOf(rhs)
	if ls.Equal(rs) {
		return lhs, rhs
	}
	if ls.Rank() == 0 {
		return bb.op(bb.wrap(bb.b.BroadcastInDim(lhs, shapes.Make(ls.DType, rs.Dimensions...), nil))), rhs
	}
	if rs.Rank() == 0 {
		return lhs, bb.op(bb.wrap(bb.b.BroadcastInDim(rhs, shapes.Make(rs.DType, ls.Dimensions...), nil)))
	}
	if ls.Rank() != rs.Rank() {
		exceptions.Panicf("engine: cannot broadcast shapes %s and %s", ls, rs)
	}
	dims := make([]int, ls.Rank())
	axes := make([]int, ls.Rank())
	for ii := range dims {
		ld, rd := ls.Dimensions[ii], rs.Dimensions[ii]
		if ld != rd && ld != 1 && rd != 1 {
			exceptions.Panicf("engine: cannot broadcast shapes %s and %s on axis %d", ls, rs, ii)
		}
		dims[ii] = max(ld, rd)
		axes[ii] = ii
	}
	if !equalInts(ls.Dimensions, dims) {
		lhs = bb.op(bb.wrap(bb.b.BroadcastInDim(lhs, shapes.Make(ls.DType, dims...), axes)))
	}
	if !equalInts(rs.Dimensions, dims) {
		rhs = bb.op(bb.wrap(bb.b.BroadcastInDim(rhs, shapes.Make(rs.DType, dims...), axes)))
	}
	return lhs, rhs
}

func equalInts(a, b []int) bool {
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

func (bb *backendBuilder) binary(fn func(lhs, rhs backends.Op) (backends.Op, error), lhs, rhs fx.Value) fx.Value {
	l, r := bb.broadcastPair(bb.op(lhs), bb.op(rhs))
	return bb.wrap(fn(l, r))
}

func (bb *backendBuilder) Add(lhs, rhs fx.Value) fx.Value { return bb.binary(bb.b.Add, lhs, rhs) }
func (bb *backendBuilder) Sub(lhs, rhs fx.Value) fx.Value { return bb.binary(bb.b.Sub, lhs, rhs) }
func (bb *backendBuilder) Mul(lhs, rhs fx.Value) fx.Value { return bb.binary(bb.b.Mul, lhs, rhs) }
func (bb *backendBuilder) Div(lhs, rhs fx.Value) fx.Value { return bb.binary(bb.b.Div, lhs, rhs) }
func (bb *backendBuilder) Max(lhs, rhs fx.Value) fx.Value { return bb.binary(bb.b.Max, lhs, rhs) }

func (bb *backendBuilder) scalarOp(fn func(lhs, rhs backends.Op) (backends.Op, error), x fx.Value, c float64) fx.Value {
	dtype := bb.shapeOf(bb.op(x)).DType
	return bb.binary(fn, x, bb.scalar(dtype, c))
}

func (bb *backendBuilder) AddScalar(x fx.Value, c float64) fx.Value {
	return bb.scalarOp(bb.b.Add, x, c)
}
func (bb *backendBuilder) MulScalar(x fx.Value, c float64) fx.Value {
	return bb.scalarOp(bb.b.Mul, x, c)
}
func (bb *backendBuilder) DivScalar(x fx.Value, c float64) fx.Value {
	return bb.scalarOp(bb.b.Div, x, c)
}

func (bb *backendBuilder) MatMul(lhs, rhs fx.Value) fx.Value {
	return bb.wrap(bb.b.Dot(bb.op(lhs), bb.op(rhs)))
}

func (bb *backendBuilder) Relu(x fx.Value) fx.Value {
	dtype := bb.shapeOf(bb.op(x)).DType
	return bb.binary(bb.b.Max, x, bb.scalar(dtype, 0))
}

// Gelu has no direct converter: it must be decomposed into primitives first.
func (bb *backendBuilder) Gelu(x fx.Value) fx.Value {
	panic(errors.Wrap(fx.ErrUnsupportedOp, "gelu (requires decomposition)"))
}

func (bb *backendBuilder) Exp(x fx.Value) fx.Value  { return bb.wrap(bb.b.Exp(bb.op(x))) }
func (bb *backendBuilder) Tanh(x fx.Value) fx.Value { return bb.wrap(bb.b.Tanh(bb.op(x))) }
func (bb *backendBuilder) Sigmoid(x fx.Value) fx.Value {
	return bb.wrap(bb.b.Logistic(bb.op(x)))
}
func (bb *backendBuilder) Erf(x fx.Value) fx.Value { return bb.wrap(bb.b.Erf(bb.op(x))) }

// Softmax lowers to the numerically stable exp(x-max)/sum form, with
// keep-dims reshapes so the reductions broadcast back.
func (bb *backendBuilder) Softmax(x fx.Value, axis int) fx.Value {
	shape := bb.shapeOf(bb.op(x))
	if axis < 0 {
		axis += shape.Rank()
	}
	keepDims := make([]int, shape.Rank())
	copy(keepDims, shape.Dimensions)
	keepDims[axis] = 1
	maxed := bb.ReduceMax(x, axis).Reshape(keepDims...)
	exps := bb.Exp(bb.Sub(x, maxed))
	sum := bb.ReduceSum(exps, axis).Reshape(keepDims...)
	return bb.Div(exps, sum)
}

func (bb *backendBuilder) ConvertDType(x fx.Value, dtype dtypes.DType) fx.Value {
	return bb.wrap(bb.b.ConvertDType(bb.op(x), dtype))
}

func (bb *backendBuilder) allAxes(x fx.Value) []int {
	rank := bb.shapeOf(bb.op(x)).Rank()
	axes := make([]int, rank)
	for ii := range axes {
		axes[ii] = ii
	}
	return axes
}

func (bb *backendBuilder) ReduceSum(x fx.Value, axes ...int) fx.Value {
	if len(axes) == 0 {
		axes = bb.allAxes(x)
	}
	return bb.wrap(bb.b.ReduceSum(bb.op(x), axes...))
}

func (bb *backendBuilder) ReduceMax(x fx.Value, axes ...int) fx.Value {
	if len(axes) == 0 {
		axes = bb.allAxes(x)
	}
	return bb.wrap(bb.b.ReduceMax(bb.op(x), axes...))
}

// Call is rejected: graphs must be export-traced (modules inlined) before
// engine compilation.
func (bb *backendBuilder) Call(name string, _ fx.Module, _ ...fx.Value) []fx.Value {
	panic(errors.Wrapf(fx.ErrUnsupportedOp, "module call %q (engine requires an inlined graph)", name))
}
