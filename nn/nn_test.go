// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn_test

import (
	"math/rand"
	"testing"

	"github.com/gomlx/enginetest/enginetest"
	"github.com/gomlx/enginetest/fx"
	"github.com/gomlx/enginetest/nn"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLinear(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	layer := nn.NewLinear(rng, dtypes.Float32, 3, 5)
	assert.True(t, shapes.Make(dtypes.Float32, 3, 5).Equal(layer.Weight.Shape()))
	assert.True(t, shapes.Make(dtypes.Float32, 5).Equal(layer.Bias.Shape()))

	f64 := nn.NewLinear(rng, dtypes.Float64, 2, 2)
	assert.Equal(t, dtypes.Float64, f64.Weight.DType())
}

func TestLinearForward(t *testing.T) {
	h := enginetest.NewHarness(t)
	layer := &nn.Linear{
		Weight: tensors.FromFlatDataAndDimensions([]float32{1, 0, 0, 1, 1, 1}, 3, 2),
		Bias:   tensors.FromFlatDataAndDimensions([]float32{0.5, -0.5}, 2),
	}
	input := tensors.FromFlatDataAndDimensions([]float32{1, 2, 3}, 1, 3)
	outputs := h.Reference(layer, []*tensors.Tensor{input})
	require.Len(t, outputs, 1)
	assert.Equal(t, [][]float32{{4.5, 4.5}}, outputs[0].Value().([][]float32))
}

func TestLinearWithoutBias(t *testing.T) {
	h := enginetest.NewHarness(t)
	layer := &nn.Linear{
		Weight: tensors.FromFlatDataAndDimensions([]float32{2, 0, 0, 2}, 2, 2),
	}
	input := tensors.FromFlatDataAndDimensions([]float32{1, 1}, 1, 2)
	outputs := h.Reference(layer, []*tensors.Tensor{input})
	assert.Equal(t, [][]float32{{2, 2}}, outputs[0].Value().([][]float32))
}

func TestSequentialAttributePaths(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	model := &nn.Sequential{Layers: []fx.Module{
		nn.NewLinear(rng, dtypes.Float32, 4, 4),
		nn.ReLU{},
		nn.NewLinear(rng, dtypes.Float32, 4, 2),
	}}
	// The traced call_module targets are attribute paths into the model.
	g, err := fx.SymbolicTrace(model, fx.Spec(dtypes.Float32, 2, 4))
	require.NoError(t, err)
	for _, n := range g.Nodes() {
		if n.Kind() != fx.KindCallModule {
			continue
		}
		resolved, err := fx.FetchAttr(model, n.Target())
		require.NoError(t, err)
		require.IsType(t, &nn.Linear{}, resolved)
	}
	// Parameters reachable the same way, one level deeper.
	weight, err := fx.FetchAttr(model, "Layers.0.Weight")
	require.NoError(t, err)
	assert.Same(t, model.Layers[0].(*nn.Linear).Weight, weight)
}

func TestParameterTensors(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	model := &nn.Sequential{Layers: []fx.Module{
		nn.NewLinear(rng, dtypes.Float32, 4, 8),
		nn.ReLU{},
		nn.NewLinear(rng, dtypes.Float32, 8, 2),
	}}
	params := nn.ParameterTensors(model)
	require.Len(t, params, 4)
	total := 0
	for _, p := range params {
		total += p.Shape().Size()
	}
	assert.Equal(t, 4*8+8+8*2+2, total)
}
