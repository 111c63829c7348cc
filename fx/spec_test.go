// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fx_test

import (
	"math/rand"
	"testing"

	"github.com/gomlx/enginetest/fx"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputSpecStatic(t *testing.T) {
	spec := fx.Spec(dtypes.Float32, 2, 3)
	assert.False(t, spec.IsDynamic())
	want := shapes.Make(dtypes.Float32, 2, 3)
	assert.True(t, want.Equal(spec.Shape()))
	assert.True(t, want.Equal(spec.CompileShape()))
	// Static specs ignore the selector.
	assert.True(t, want.Equal(spec.ShapeFor(fx.MinShape)))
	assert.True(t, want.Equal(spec.ShapeFor(fx.MaxShape)))
}

func TestInputSpecDynamic(t *testing.T) {
	spec := fx.Spec(dtypes.Float32, 4, 3).WithRange([]int{1, 3}, []int{8, 3})
	assert.True(t, spec.IsDynamic())
	assert.True(t, shapes.Make(dtypes.Float32, 1, 3).Equal(spec.ShapeFor(fx.MinShape)))
	assert.True(t, shapes.Make(dtypes.Float32, 4, 3).Equal(spec.ShapeFor(fx.OptShape)))
	assert.True(t, shapes.Make(dtypes.Float32, 8, 3).Equal(spec.ShapeFor(fx.MaxShape)))
	// Engines are compiled at the maximum supported shape.
	assert.True(t, shapes.Make(dtypes.Float32, 8, 3).Equal(spec.CompileShape()))
}

func TestInputSpecExampleTensor(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	spec := fx.Spec(dtypes.Float64, 2, 5)
	example := spec.ExampleTensor(rng, fx.MaxShape)
	assert.True(t, spec.Shape().Equal(example.Shape()))

	// An explicit tensor wins when its shape matches the selection.
	explicit := tensors.FromFlatDataAndDimensions(make([]float64, 10), 2, 5)
	spec = spec.WithTensor(explicit)
	assert.Same(t, explicit, spec.ExampleTensor(rng, fx.MaxShape))

	// SpecFromTensor round-trips shape, dtype and the tensor itself.
	fromTensor := fx.SpecFromTensor(explicit)
	assert.Equal(t, dtypes.Float64, fromTensor.DType)
	assert.Same(t, explicit, fromTensor.ExampleTensor(rng, fx.OptShape))
}

func TestShapeSelectorStrings(t *testing.T) {
	assert.Equal(t, "min_shape", fx.MinShape.String())
	assert.Equal(t, "max_shape", fx.MaxShape.String())
	_, err := fx.ShapeSelectorString("opt_shape")
	require.NoError(t, err)
}
