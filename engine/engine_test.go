// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package engine_test

import (
	"math"
	"testing"

	"github.com/gomlx/enginetest/engine"
	"github.com/gomlx/enginetest/enginetest"
	"github.com/gomlx/enginetest/fx"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func traceFn(t *testing.T, fn func(b fx.Builder, inputs ...fx.Value) []fx.Value,
	specs ...*fx.InputSpec) *fx.Graph {
	t.Helper()
	g, err := fx.ExportTrace(fx.ModuleFunc(fn), specs...)
	require.NoError(t, err)
	return g
}

func TestCompileAndRun(t *testing.T) {
	backend := enginetest.BuildTestBackend()
	specs := []*fx.InputSpec{
		fx.Spec(dtypes.Float32, 2, 2),
		fx.Spec(dtypes.Float32, 2, 2),
	}
	g := traceFn(t, func(b fx.Builder, inputs ...fx.Value) []fx.Value {
		return []fx.Value{b.Add(b.Mul(inputs[0], inputs[1]), inputs[0])}
	}, specs...)

	program, err := engine.Compile(backend, g, specs, engine.DefaultSettings())
	require.NoError(t, err)
	defer program.Finalize()
	require.Len(t, program.InputShapes(), 2)
	require.Len(t, program.OutputShapes(), 1)
	assert.True(t, shapes.Make(dtypes.Float32, 2, 2).Equal(program.OutputShapes()[0]))

	x := tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 2, 2)
	y := tensors.FromFlatDataAndDimensions([]float32{5, 6, 7, 8}, 2, 2)
	outputs, err := program.Run([]*tensors.Tensor{x, y})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	got := outputs[0].Value().([][]float32)
	assert.Equal(t, [][]float32{{6, 14}, {24, 36}}, got)
}

func TestRunRelu(t *testing.T) {
	backend := enginetest.BuildTestBackend()
	specs := []*fx.InputSpec{fx.Spec(dtypes.Float32, 4)}
	g := traceFn(t, func(b fx.Builder, inputs ...fx.Value) []fx.Value {
		return []fx.Value{b.Relu(inputs[0])}
	}, specs...)

	program, err := engine.Compile(backend, g, specs, engine.DefaultSettings())
	require.NoError(t, err)
	defer program.Finalize()

	x := tensors.FromFlatDataAndDimensions([]float32{-2, -0.5, 0, 3}, 4)
	outputs, err := program.Run([]*tensors.Tensor{x})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 3}, outputs[0].Value().([]float32))
}

func TestRunSoftmax(t *testing.T) {
	backend := enginetest.BuildTestBackend()
	specs := []*fx.InputSpec{fx.Spec(dtypes.Float32, 1, 3)}
	g := traceFn(t, func(b fx.Builder, inputs ...fx.Value) []fx.Value {
		return []fx.Value{b.Softmax(inputs[0], -1)}
	}, specs...)

	program, err := engine.Compile(backend, g, specs, engine.DefaultSettings())
	require.NoError(t, err)
	defer program.Finalize()

	x := tensors.FromFlatDataAndDimensions([]float32{1, 2, 3}, 1, 3)
	outputs, err := program.Run([]*tensors.Tensor{x})
	require.NoError(t, err)
	got := outputs[0].Value().([][]float32)[0]
	var sum float32
	for _, v := range got {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
	assert.True(t, got[0] < got[1] && got[1] < got[2])
	want := make([]float32, 3)
	var denom float64
	for ii := range want {
		denom += math.Exp(float64(ii + 1))
	}
	for ii := range want {
		want[ii] = float32(math.Exp(float64(ii+1)) / denom)
	}
	for ii := range want {
		assert.InDelta(t, want[ii], got[ii], 1e-5)
	}
}

func TestCompileUnsupportedOp(t *testing.T) {
	backend := enginetest.BuildTestBackend()
	specs := []*fx.InputSpec{fx.Spec(dtypes.Float32, 2, 2)}
	g := traceFn(t, func(b fx.Builder, inputs ...fx.Value) []fx.Value {
		return []fx.Value{b.Gelu(inputs[0])}
	}, specs...)

	_, err := engine.Compile(backend, g, specs, engine.DefaultSettings())
	require.ErrorIs(t, err, fx.ErrUnsupportedOp)
}

func TestTruncateFloat64(t *testing.T) {
	backend := enginetest.BuildTestBackend()
	specs := []*fx.InputSpec{fx.Spec(dtypes.Float64, 3)}
	g := traceFn(t, func(b fx.Builder, inputs ...fx.Value) []fx.Value {
		return []fx.Value{b.MulScalar(inputs[0], 2)}
	}, specs...)

	program, err := engine.Compile(backend, g, specs, engine.Settings{TruncateFloat64: true})
	require.NoError(t, err)
	defer program.Finalize()

	// The executable still takes float64 inputs, but computes (and returns)
	// float32.
	assert.Equal(t, dtypes.Float64, program.InputShapes()[0].DType)
	assert.Equal(t, dtypes.Float32, program.OutputShapes()[0].DType)

	x := tensors.FromFlatDataAndDimensions([]float64{1, 2, 3}, 3)
	outputs, err := program.Run([]*tensors.Tensor{x})
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float32, outputs[0].DType())
	assert.Equal(t, []float32{2, 4, 6}, outputs[0].Value().([]float32))
}

func TestReducedPrecision(t *testing.T) {
	backend := enginetest.BuildTestBackend()
	specs := []*fx.InputSpec{fx.Spec(dtypes.Float32, 2)}
	g := traceFn(t, func(b fx.Builder, inputs ...fx.Value) []fx.Value {
		return []fx.Value{b.AddScalar(inputs[0], 1)}
	}, specs...)

	settings := engine.Settings{Precisions: []dtypes.DType{dtypes.Float16}}
	program, err := engine.Compile(backend, g, specs, settings)
	require.NoError(t, err)
	defer program.Finalize()
	assert.Equal(t, dtypes.Float16, program.OutputShapes()[0].DType)
}

func TestRunShapeMismatch(t *testing.T) {
	backend := enginetest.BuildTestBackend()
	specs := []*fx.InputSpec{fx.Spec(dtypes.Float32, 2, 2)}
	g := traceFn(t, func(b fx.Builder, inputs ...fx.Value) []fx.Value {
		return []fx.Value{b.Relu(inputs[0])}
	}, specs...)
	program, err := engine.Compile(backend, g, specs, engine.DefaultSettings())
	require.NoError(t, err)
	defer program.Finalize()

	wrong := tensors.FromFlatDataAndDimensions(make([]float32, 6), 2, 3)
	_, err = program.Run([]*tensors.Tensor{wrong})
	require.ErrorContains(t, err, "shape")
}

func TestInferOutputDTypes(t *testing.T) {
	backend := enginetest.BuildTestBackend()
	specs := []*fx.InputSpec{
		fx.Spec(dtypes.Float64, 2),
		fx.Spec(dtypes.Float32, 2),
	}
	g := traceFn(t, func(b fx.Builder, inputs ...fx.Value) []fx.Value {
		return []fx.Value{
			b.Exp(inputs[0]),
			b.ConvertDType(inputs[1], dtypes.Int32),
		}
	}, specs...)

	got, err := engine.InferOutputDTypes(backend, g, specs, false)
	require.NoError(t, err)
	assert.Equal(t, []dtypes.DType{dtypes.Float64, dtypes.Int32}, got)

	got, err = engine.InferOutputDTypes(backend, g, specs, true)
	require.NoError(t, err)
	assert.Equal(t, []dtypes.DType{dtypes.Float32, dtypes.Int32}, got)
}
