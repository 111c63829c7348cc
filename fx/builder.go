// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fx

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
)

// Value is the opaque handle to an intermediate result while a model's
// Forward runs. What it holds depends on the Builder in use: a traced Node,
// a gomlx graph node, or a backend op.
//
// The methods on Value are the operations the tracer records as call_method
// nodes.
type Value interface {
	// Reshape returns the value reshaped to the given dimensions. The total
	// size must not change.
	Reshape(dimensions ...int) Value

	// Transpose returns the value with axisA and axisB swapped.
	Transpose(axisA, axisB int) Value
}

// Builder is the operation set models are written against. Implementations
// panic (throw) on invalid use, following the gomlx convention; boundary
// functions such as SymbolicTrace convert the panics back to errors.
//
// Operations recorded as call_function nodes carry the lower-case target
// names given in the comments.
type Builder interface {
	// Constant embeds the tensor in the computation. Used for module
	// parameters.
	Constant(t *tensors.Tensor) Value

	// Add ("add"), Sub ("sub"), Mul ("mul"), Div ("div") and Max ("max") are
	// element-wise with standard broadcasting.
	Add(lhs, rhs Value) Value
	Sub(lhs, rhs Value) Value
	Mul(lhs, rhs Value) Value
	Div(lhs, rhs Value) Value
	Max(lhs, rhs Value) Value

	// AddScalar ("add_scalar"), MulScalar ("mul_scalar") and DivScalar
	// ("div_scalar") combine x element-wise with a scalar constant converted
	// to x's dtype.
	AddScalar(x Value, c float64) Value
	MulScalar(x Value, c float64) Value
	DivScalar(x Value, c float64) Value

	// MatMul ("matmul") is the matrix product of the two last axes, with
	// leading batch axes.
	MatMul(lhs, rhs Value) Value

	// Unary element-wise ops: Relu ("relu"), Gelu ("gelu", the exact
	// erf-based form), Exp ("exp"), Tanh ("tanh"), Sigmoid ("sigmoid") and
	// Erf ("erf").
	Relu(x Value) Value
	Gelu(x Value) Value
	Exp(x Value) Value
	Tanh(x Value) Value
	Sigmoid(x Value) Value
	Erf(x Value) Value

	// Softmax ("softmax") normalizes the given axis. Negative axis counts
	// from the end.
	Softmax(x Value, axis int) Value

	// ConvertDType ("convert_dtype") casts x to the given dtype.
	ConvertDType(x Value, dtype dtypes.DType) Value

	// ReduceSum ("reduce_sum") and ReduceMax ("reduce_max") reduce over the
	// given axes; no axes means reduce over all of them, yielding a scalar.
	ReduceSum(x Value, axes ...int) Value
	ReduceMax(x Value, axes ...int) Value

	// Call invokes the sub-module m. The name is the attribute path of m
	// relative to the caller ("Layers.0", "Output", ...); nested calls
	// accumulate into the dotted path call_module targets use.
	Call(name string, m Module, inputs ...Value) []Value
}

// Module is a unit of computation: typically a struct holding parameter
// tensors and sub-module fields, which Forward combines using the Builder's
// operations. Sub-modules must be invoked through Builder.Call so tracers
// can account for them.
type Module interface {
	Forward(b Builder, inputs ...Value) []Value
}

// ModuleFunc adapts a plain function to the Module interface.
type ModuleFunc func(b Builder, inputs ...Value) []Value

// Forward implements Module.
func (f ModuleFunc) Forward(b Builder, inputs ...Value) []Value { return f(b, inputs...) }

// Leaf marks modules the symbolic tracer records as a single call_module
// node instead of recursing into their Forward. The export tracer ignores
// the marker and always inlines.
type Leaf interface {
	Module

	// LeafModule is a marker; implementations are empty.
	LeafModule()
}

// TrainingModeSetter is implemented by modules that behave differently in
// training; the harness switches models to evaluation mode before tracing.
type TrainingModeSetter interface {
	SetTraining(training bool)
}
