// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fx_test

import (
	"math/rand"
	"testing"

	"github.com/gomlx/enginetest/fx"
	"github.com/gomlx/enginetest/nn"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMLP(t *testing.T) *nn.Sequential {
	t.Helper()
	rng := rand.New(rand.NewSource(3))
	return &nn.Sequential{Layers: []fx.Module{
		nn.NewLinear(rng, dtypes.Float32, 4, 8),
		nn.ReLU{},
		nn.NewLinear(rng, dtypes.Float32, 8, 2),
	}}
}

func targets(g *fx.Graph, kind fx.OpKind) []string {
	var result []string
	for _, n := range g.Nodes() {
		if n.Kind() == kind {
			result = append(result, n.Target())
		}
	}
	return result
}

func TestSymbolicTrace(t *testing.T) {
	model := newMLP(t)
	g, err := fx.SymbolicTrace(model, fx.Spec(dtypes.Float32, 2, 4))
	require.NoError(t, err)

	require.Len(t, g.Inputs(), 1)
	assert.Equal(t, fx.KindPlaceholder, g.Inputs()[0].Kind())
	assert.Equal(t, "input_0", g.Inputs()[0].Target())
	require.Len(t, g.Outputs(), 1)

	// Linear layers are leaves: opaque call_module nodes with their dotted
	// attribute paths as targets.
	assert.Equal(t, []string{"Layers.0", "Layers.2"}, targets(g, fx.KindCallModule))

	// ReLU is not a leaf, it traces into its primitive op.
	assert.Equal(t, []string{"relu"}, targets(g, fx.KindCallFunction))

	// call_module targets must resolve against the owner.
	for _, target := range targets(g, fx.KindCallModule) {
		submodule, err := fx.FetchAttr(g.Owner(), target)
		require.NoError(t, err)
		assert.IsType(t, &nn.Linear{}, submodule)
	}

	// The last node is the output node.
	nodes := g.Nodes()
	assert.Equal(t, fx.KindOutput, nodes[len(nodes)-1].Kind())
}

func TestExportTrace(t *testing.T) {
	model := newMLP(t)
	g, err := fx.ExportTrace(model, fx.Spec(dtypes.Float32, 2, 4))
	require.NoError(t, err)

	// Everything inlined: no call_module nodes left...
	assert.Empty(t, targets(g, fx.KindCallModule))
	// ...the linear layers became matmul+add over constants.
	assert.Equal(t, []string{"matmul", "add", "relu", "matmul", "add"},
		targets(g, fx.KindCallFunction))
	assert.Len(t, targets(g, fx.KindConstant), 4) // 2x (weight, bias)
}

func TestTraceMethodOps(t *testing.T) {
	model := fx.ModuleFunc(func(b fx.Builder, inputs ...fx.Value) []fx.Value {
		return []fx.Value{inputs[0].Reshape(6).Transpose(0, 0)}
	})
	g, err := fx.SymbolicTrace(model, fx.Spec(dtypes.Float32, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, []string{"reshape", "transpose"}, targets(g, fx.KindCallMethod))
}

func TestTraceErrors(t *testing.T) {
	empty := fx.ModuleFunc(func(fx.Builder, ...fx.Value) []fx.Value { return nil })
	_, err := fx.SymbolicTrace(empty, fx.Spec(dtypes.Float32, 2))
	require.ErrorContains(t, err, "no outputs")

	// Values cannot cross from one trace into another.
	var leaked fx.Value
	capture := fx.ModuleFunc(func(b fx.Builder, inputs ...fx.Value) []fx.Value {
		leaked = inputs[0]
		return []fx.Value{b.Relu(inputs[0])}
	})
	_, err = fx.SymbolicTrace(capture, fx.Spec(dtypes.Float32, 2))
	require.NoError(t, err)
	smuggle := fx.ModuleFunc(func(b fx.Builder, inputs ...fx.Value) []fx.Value {
		return []fx.Value{b.Relu(leaked)}
	})
	_, err = fx.SymbolicTrace(smuggle, fx.Spec(dtypes.Float32, 2))
	require.Error(t, err)
}
