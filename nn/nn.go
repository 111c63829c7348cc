// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package nn provides the standard modules used by the parity harness and its
// tests: a Linear layer (a Leaf, kept opaque by the symbolic tracer),
// element-wise activations, and a Sequential container whose dotted attribute
// paths ("Layers.0.Weight", ...) exercise fx.FetchAttr.
package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/gomlx/enginetest/fx"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
)

// Linear is a fully-connected layer: y = x·Weight + Bias.
//
// Weight is shaped [inFeatures, outFeatures], Bias [outFeatures] (nil for no
// bias). It is a Leaf: the symbolic tracer records calls to it as a single
// call_module node.
type Linear struct {
	Weight *tensors.Tensor
	Bias   *tensors.Tensor
}

var (
	_ fx.Leaf = (*Linear)(nil)
)

// NewLinear creates a Linear layer with Glorot-uniform initialized weights
// and zero bias.
func NewLinear(rng *rand.Rand, dtype dtypes.DType, inFeatures, outFeatures int) *Linear {
	limit := math.Sqrt(6.0 / float64(inFeatures+outFeatures))
	weights := make([]float64, inFeatures*outFeatures)
	for ii := range weights {
		weights[ii] = (rng.Float64()*2 - 1) * limit
	}
	var weight, bias *tensors.Tensor
	switch dtype {
	case dtypes.Float32:
		flat := make([]float32, len(weights))
		for ii, w := range weights {
			flat[ii] = float32(w)
		}
		weight = tensors.FromFlatDataAndDimensions(flat, inFeatures, outFeatures)
		bias = tensors.FromFlatDataAndDimensions(make([]float32, outFeatures), outFeatures)
	case dtypes.Float64:
		weight = tensors.FromFlatDataAndDimensions(weights, inFeatures, outFeatures)
		bias = tensors.FromFlatDataAndDimensions(make([]float64, outFeatures), outFeatures)
	default:
		exceptions.Panicf("nn: NewLinear does not support dtype %s", dtype)
	}
	return &Linear{Weight: weight, Bias: bias}
}

// Forward implements fx.Module.
func (l *Linear) Forward(b fx.Builder, inputs ...fx.Value) []fx.Value {
	x := inputs[0]
	y := b.MatMul(x, b.Constant(l.Weight))
	if l.Bias != nil {
		y = b.Add(y, b.Constant(l.Bias))
	}
	return []fx.Value{y}
}

// LeafModule implements fx.Leaf.
func (l *Linear) LeafModule() {}

// ReLU applies the rectified linear unit element-wise.
type ReLU struct{}

// Forward implements fx.Module.
func (ReLU) Forward(b fx.Builder, inputs ...fx.Value) []fx.Value {
	return []fx.Value{b.Relu(inputs[0])}
}

// GELU applies the exact (erf-based) Gaussian error linear unit. The engine
// has no converter for the composite "gelu" op, so compiling it requires the
// decomposition pass.
type GELU struct{}

// Forward implements fx.Module.
func (GELU) Forward(b fx.Builder, inputs ...fx.Value) []fx.Value {
	return []fx.Value{b.Gelu(inputs[0])}
}

// Softmax normalizes the given axis (negative counts from the end).
type Softmax struct {
	Axis int
}

// Forward implements fx.Module.
func (s Softmax) Forward(b fx.Builder, inputs ...fx.Value) []fx.Value {
	return []fx.Value{b.Softmax(inputs[0], s.Axis)}
}

// Sequential chains modules, feeding each module's outputs as the next one's
// inputs.
type Sequential struct {
	Layers []fx.Module
}

// Forward implements fx.Module.
func (s *Sequential) Forward(b fx.Builder, inputs ...fx.Value) []fx.Value {
	outputs := inputs
	for ii, m := range s.Layers {
		outputs = b.Call(fmt.Sprintf("Layers.%d", ii), m, outputs...)
	}
	return outputs
}

// SetTraining implements fx.TrainingModeSetter, forwarding to any layer that
// cares about the mode.
func (s *Sequential) SetTraining(training bool) {
	for _, m := range s.Layers {
		if setter, ok := m.(fx.TrainingModeSetter); ok {
			setter.SetTraining(training)
		}
	}
}

// ParameterTensors returns the parameter tensors of the known module types,
// in deterministic order. Used for model size reporting.
func ParameterTensors(m fx.Module) []*tensors.Tensor {
	switch mod := m.(type) {
	case *Linear:
		params := []*tensors.Tensor{mod.Weight}
		if mod.Bias != nil {
			params = append(params, mod.Bias)
		}
		return params
	case *Sequential:
		var params []*tensors.Tensor
		for _, layer := range mod.Layers {
			params = append(params, ParameterTensors(layer)...)
		}
		return params
	default:
		return nil
	}
}
