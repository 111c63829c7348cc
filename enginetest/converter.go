// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package enginetest

import (
	"testing"

	"github.com/gomlx/enginetest/engine"
	"github.com/gomlx/enginetest/fx"
	"github.com/gomlx/enginetest/passes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/support/xslices"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

// ConverterHarness is the harness used by op-converter tests: on top of
// Harness it owns tracing the model and running the lowering stages, so a
// test only provides a model and input specs.
type ConverterHarness struct {
	Harness
}

// NewConverterHarness creates a converter harness on the shared test backend.
func NewConverterHarness(t *testing.T) *ConverterHarness {
	return &ConverterHarness{Harness: *NewHarness(t)}
}

// GenerateOptions control how GenerateGraph traces and lowers a model.
type GenerateOptions struct {
	// UseExportTrace inlines all submodules during tracing, the form the
	// engine consumes. When false, leaf submodules stay as call_module nodes.
	UseExportTrace bool

	// EnablePasses runs the lowering pipeline (decompositions, no-op
	// elimination, CSE, DCE) on the traced graph.
	EnablePasses bool

	// PropagateShapes annotates the graph nodes with inferred shapes. Shape
	// inference failures on unsupported ops are logged, not fatal.
	PropagateShapes bool
}

// GenerateGraph traces the model at the specs' compile shapes and applies the
// requested lowering stages.
//
// Shape propagation failures caused by unsupported ops or by shape inference
// itself only produce a warning: the graph is still usable, partially
// annotated. Any other failure is a test error.
func (h *ConverterHarness) GenerateGraph(m fx.Module, specs []*fx.InputSpec, opts GenerateOptions) *fx.Graph {
	SetEvalMode(m)
	trace := fx.SymbolicTrace
	if opts.UseExportTrace {
		trace = fx.ExportTrace
	}
	g, err := trace(m, specs...)
	require.NoError(h.T, err)

	exampleInputs := h.exampleInputs(specs, fx.MaxShape)
	if opts.EnablePasses {
		g, err = passes.ApplyLowering(h.Backend, g, exampleInputs)
		require.NoError(h.T, err)
	}
	if opts.PropagateShapes {
		err = passes.PropagateShapes(h.Backend, g, exampleInputs)
		if err != nil {
			if errors.Is(err, fx.ErrUnsupportedOp) || errors.Is(err, passes.ErrShapeInference) {
				klog.Warningf("shape propagation failed, graph left partially annotated: %v", err)
			} else {
				require.NoError(h.T, err)
			}
		}
	}
	return g
}

// ConverterTestOptions parametrize a converter parity run.
type ConverterTestOptions struct {
	GenerateOptions

	// Rtol and Atol are the comparison tolerances. Both zero means the
	// defaults; use ExactMatch for zero tolerance.
	Rtol, Atol float64

	// ExactMatch requires bit-equal results (tolerances forced to zero).
	ExactMatch bool

	// Precisions the engine may compute in. Empty means float32.
	Precisions []dtypes.DType

	// CheckOutputDTypes infers the expected engine output dtypes and asserts
	// them on the results.
	CheckOutputDTypes bool

	// OutputDTypes, if set, are asserted on the engine results in place of
	// the inferred ones.
	OutputDTypes []dtypes.DType

	// RefInputs, if set, feed the reference execution instead of the engine
	// inputs.
	RefInputs []*tensors.Tensor
}

// RunTest traces the model, compiles it, and checks parity on the given
// inputs. Engines are always compiled with float64 truncation and debug
// logging on, converter coverage cares about the float32 path.
func (h *ConverterHarness) RunTest(m fx.Module, inputs []*tensors.Tensor, opts ConverterTestOptions) {
	specs := xslices.Map(inputs, func(t *tensors.Tensor) *fx.InputSpec { return fx.SpecFromTensor(t) })
	g := h.GenerateGraph(m, specs, opts.GenerateOptions)
	h.runGraph(m, g, specs, inputs, opts)
}

// RunTestWithDynamicShape traces and compiles the model at the specs' maximum
// shapes and checks parity there. Inputs are the specs' example tensors when
// set, otherwise random tensors at the maximum shape.
func (h *ConverterHarness) RunTestWithDynamicShape(m fx.Module, specs []*fx.InputSpec, opts ConverterTestOptions) {
	g := h.GenerateGraph(m, specs, opts.GenerateOptions)
	inputs := h.exampleInputs(specs, fx.MaxShape)
	h.runGraph(m, g, specs, inputs, opts)
}

func (h *ConverterHarness) runGraph(m fx.Module, g *fx.Graph, specs []*fx.InputSpec,
	inputs []*tensors.Tensor, opts ConverterTestOptions) {
	rtol, atol := resolveTolerances(opts)
	settings := engine.Settings{
		Precisions:      opts.Precisions,
		TruncateFloat64: true,
		Debug:           true,
	}
	outputDTypes := opts.OutputDTypes
	if outputDTypes == nil && opts.CheckOutputDTypes {
		var err error
		outputDTypes, err = engine.InferOutputDTypes(h.Backend, g, specs, settings.TruncateFloat64)
		require.NoError(h.T, err)
	}

	program, err := engine.Compile(h.Backend, g, specs, settings)
	require.NoError(h.T, err)
	h.T.Cleanup(program.Finalize)

	got, err := program.Run(inputs)
	require.NoError(h.T, err)
	refInputs := opts.RefInputs
	if refInputs == nil {
		refInputs = inputs
	}
	ref := h.Reference(m, refInputs)
	require.NoError(h.T, CompareOutputs(got, ref, rtol, atol, outputDTypes))
}

// resolveTolerances picks the comparison tolerances: ExactMatch overrides any
// explicit tolerances with zero, and both unset means the defaults.
func resolveTolerances(opts ConverterTestOptions) (rtol, atol float64) {
	if opts.ExactMatch {
		return 0, 0
	}
	if opts.Rtol == 0 && opts.Atol == 0 {
		return DefaultRtol, DefaultAtol
	}
	return opts.Rtol, opts.Atol
}

// exampleInputs materializes one tensor per spec at the selected shape, using
// the spec's explicit tensor when provided.
func (h *ConverterHarness) exampleInputs(specs []*fx.InputSpec, sel fx.ShapeSelector) []*tensors.Tensor {
	return xslices.Map(specs, func(s *fx.InputSpec) *tensors.Tensor {
		return s.ExampleTensor(h.Rng, sel)
	})
}
