// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fx

import (
	"math/rand"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/x448/float16"
)

// ShapeSelector picks which shape of an InputSpec's supported range to use.
type ShapeSelector int

const (
	MinShape ShapeSelector = iota
	OptShape
	MaxShape
)

//go:generate go tool enumer -type=ShapeSelector -transform=snake -output=gen_shapeselector_enumer.go spec.go

// InputSpec describes one model input: dtype and dimensions, optionally a
// supported range of dimensions (dynamic shape), and optionally an explicit
// tensor to use instead of a generated example.
//
// It drives both example-tensor generation and engine compilation.
type InputSpec struct {
	DType dtypes.DType

	// Dims is the optimal (and default) shape.
	Dims []int

	// MinDims and MaxDims bound the supported range for dynamic shapes. Both
	// nil for static inputs.
	MinDims, MaxDims []int

	// Tensor, if set, is used verbatim instead of generating an example.
	Tensor *tensors.Tensor
}

// Spec returns a static InputSpec with the given dtype and dimensions.
func Spec(dtype dtypes.DType, dims ...int) *InputSpec {
	return &InputSpec{DType: dtype, Dims: dims}
}

// SpecFromTensor returns an InputSpec matching t's shape and dtype, with t as
// the explicit tensor.
func SpecFromTensor(t *tensors.Tensor) *InputSpec {
	shape := t.Shape()
	return &InputSpec{DType: shape.DType, Dims: slices.Clone(shape.Dimensions), Tensor: t}
}

// WithRange sets the supported dynamic range, keeping the spec's Dims as the
// optimal shape. It returns the spec for chaining.
func (s *InputSpec) WithRange(minDims, maxDims []int) *InputSpec {
	if len(minDims) != len(s.Dims) || len(maxDims) != len(s.Dims) {
		exceptions.Panicf("fx: InputSpec.WithRange: rank mismatch, spec has %d axes, range given %d/%d",
			len(s.Dims), len(minDims), len(maxDims))
	}
	s.MinDims = minDims
	s.MaxDims = maxDims
	return s
}

// WithTensor sets the explicit tensor and returns the spec for chaining.
func (s *InputSpec) WithTensor(t *tensors.Tensor) *InputSpec {
	s.Tensor = t
	return s
}

// IsDynamic reports whether the spec declares a shape range.
func (s *InputSpec) IsDynamic() bool { return s.MinDims != nil || s.MaxDims != nil }

// Shape returns the optimal (default) shape.
func (s *InputSpec) Shape() shapes.Shape { return s.ShapeFor(OptShape) }

// ShapeFor returns the shape selected from the spec's range. For static specs
// every selector returns the same shape.
func (s *InputSpec) ShapeFor(sel ShapeSelector) shapes.Shape {
	dims := s.Dims
	switch sel {
	case MinShape:
		if s.MinDims != nil {
			dims = s.MinDims
		}
	case MaxShape:
		if s.MaxDims != nil {
			dims = s.MaxDims
		}
	case OptShape:
		// Dims.
	default:
		exceptions.Panicf("fx: invalid ShapeSelector %d", sel)
	}
	return shapes.Make(s.DType, dims...)
}

// CompileShape returns the shape the engine is built for: the maximal shape
// of the supported range for dynamic specs, the plain shape otherwise.
func (s *InputSpec) CompileShape() shapes.Shape {
	if s.IsDynamic() {
		return s.ShapeFor(MaxShape)
	}
	return s.Shape()
}

// ExampleTensor generates a tensor of the selected shape filled with
// rng-generated values. If the spec carries an explicit Tensor and the
// selector matches its shape, the explicit tensor is returned instead.
func (s *InputSpec) ExampleTensor(rng *rand.Rand, sel ShapeSelector) *tensors.Tensor {
	shape := s.ShapeFor(sel)
	if s.Tensor != nil && s.Tensor.Shape().Equal(shape) {
		return s.Tensor
	}
	size := shape.Size()
	switch s.DType {
	case dtypes.Float32:
		flat := make([]float32, size)
		for ii := range flat {
			flat[ii] = rng.Float32()*2 - 1
		}
		return tensors.FromFlatDataAndDimensions(flat, shape.Dimensions...)
	case dtypes.Float64:
		flat := make([]float64, size)
		for ii := range flat {
			flat[ii] = rng.Float64()*2 - 1
		}
		return tensors.FromFlatDataAndDimensions(flat, shape.Dimensions...)
	case dtypes.Float16:
		flat := make([]float16.Float16, size)
		for ii := range flat {
			flat[ii] = float16.Fromfloat32(rng.Float32()*2 - 1)
		}
		return tensors.FromFlatDataAndDimensions(flat, shape.Dimensions...)
	case dtypes.Int32:
		flat := make([]int32, size)
		for ii := range flat {
			flat[ii] = rng.Int31n(10)
		}
		return tensors.FromFlatDataAndDimensions(flat, shape.Dimensions...)
	case dtypes.Int64:
		flat := make([]int64, size)
		for ii := range flat {
			flat[ii] = rng.Int63n(10)
		}
		return tensors.FromFlatDataAndDimensions(flat, shape.Dimensions...)
	default:
		exceptions.Panicf("fx: InputSpec.ExampleTensor does not support dtype %s", s.DType)
	}
	return nil
}
