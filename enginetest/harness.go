// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package enginetest

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/gomlx/enginetest/engine"
	"github.com/gomlx/enginetest/fx"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/support/xslices"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

// Harness runs a traced graph through the engine and through the framework's
// direct execution path, and checks both agree.
//
// Tests that exercise individual op converters usually want the higher-level
// ConverterHarness instead, which also handles tracing and lowering.
type Harness struct {
	T       *testing.T
	Backend backends.Backend
	Rng     *rand.Rand
}

// NewHarness creates a harness on the shared test backend, with a fixed seed
// so example inputs are reproducible.
func NewHarness(t *testing.T) *Harness {
	return &Harness{
		T:       t,
		Backend: BuildTestBackend(),
		Rng:     rand.New(rand.NewSource(3)),
	}
}

// RunTestOptions parametrize the comparison of a parity run.
type RunTestOptions struct {
	// Rtol and Atol are the tolerances of the element-wise comparison. Both
	// zero means exact equality.
	Rtol, Atol float64

	// OutputDTypes, if set, are asserted against the engine outputs' dtypes.
	OutputDTypes []dtypes.DType

	// RefInputs, if set, feed the reference execution instead of the engine
	// inputs. Used when the engine takes transformed inputs.
	RefInputs []*tensors.Tensor

	// Settings used to compile the engine.
	Settings engine.Settings
}

// DefaultRunTestOptions returns options with the default tolerances.
func DefaultRunTestOptions() RunTestOptions {
	return RunTestOptions{Rtol: DefaultRtol, Atol: DefaultAtol}
}

// RunTest compiles g to an engine, runs both the engine and the model's
// direct execution on the same inputs, and requires the outputs to match
// within the options' tolerances.
func (h *Harness) RunTest(m fx.Module, g *fx.Graph, inputs []*tensors.Tensor, opts RunTestOptions) {
	got, ref := h.runBoth(m, g, inputs, opts.RefInputs, opts.Settings)
	require.NoError(h.T, CompareOutputs(got, ref, opts.Rtol, opts.Atol, opts.OutputDTypes))
}

// RunTestCustomCompareResults is RunTest with user-provided per-output
// comparators instead of the tolerance comparison. There must be exactly one
// comparator per model output. Any requiredOps are first asserted to be
// present in the graph, see AssertHasOp.
func (h *Harness) RunTestCustomCompareResults(m fx.Module, g *fx.Graph, inputs []*tensors.Tensor,
	settings engine.Settings, comparators []Comparator, requiredOps ...any) {
	h.AssertHasOp(g, requiredOps...)
	got, ref := h.runBoth(m, g, inputs, nil, settings)
	require.NoError(h.T, CompareWithComparators(got, ref, comparators))
}

// RunTestWithError requires engine compilation of g to fail with an error
// matching wantErr (per errors.Is).
func (h *Harness) RunTestWithError(g *fx.Graph, specs []*fx.InputSpec, settings engine.Settings, wantErr error) {
	program, err := engine.Compile(h.Backend, g, specs, settings)
	if err == nil {
		program.Finalize()
	}
	require.ErrorIs(h.T, err, wantErr)
}

// runBoth executes inputs through a freshly compiled engine and through the
// model's direct execution path, returning (engine, reference) outputs. A nil
// refInputs runs the reference on the engine's inputs.
func (h *Harness) runBoth(m fx.Module, g *fx.Graph, inputs, refInputs []*tensors.Tensor,
	settings engine.Settings) (got, ref []*tensors.Tensor) {
	specs := xslices.Map(inputs, func(t *tensors.Tensor) *fx.InputSpec { return fx.SpecFromTensor(t) })

	start := time.Now()
	program, err := engine.Compile(h.Backend, g, specs, settings)
	require.NoError(h.T, err)
	h.T.Cleanup(program.Finalize)
	klog.V(1).Infof("engine compile time: %s", time.Since(start))

	got, engineTime, err := program.RunTimed(inputs)
	require.NoError(h.T, err)

	if refInputs == nil {
		refInputs = inputs
	}
	start = time.Now()
	ref = h.Reference(m, refInputs)
	klog.V(1).Infof("engine run time: %s, reference run time: %s", engineTime, time.Since(start))
	return got, ref
}

// Reference executes the model through the framework's standard graph
// execution, independent of tracing and of the engine lowering.
func (h *Harness) Reference(m fx.Module, inputs []*tensors.Tensor) []*tensors.Tensor {
	SetEvalMode(m)
	exec := graph.MustNewExecAny(h.Backend, func(nodes []*graph.Node) []*graph.Node {
		b := fx.NewGraphBuilder(nodes[0].Graph())
		values := xslices.Map(nodes, b.Wrap)
		return xslices.Map(m.Forward(b, values...), fx.GraphNode)
	})
	defer exec.Finalize()
	args := xslices.Map(inputs, func(t *tensors.Tensor) any { return t })
	outputs, err := exec.Exec(args...)
	require.NoError(h.T, err)
	return outputs
}

// SetEvalMode switches the model out of training mode, when it supports the
// distinction. Parity tests always run in eval mode: training-only behavior
// like dropout would make runs incomparable.
func SetEvalMode(m fx.Module) {
	if setter, ok := m.(fx.TrainingModeSetter); ok {
		setter.SetTraining(false)
	}
}

// AssertHasOp requires that the graph contains every given op. An op is
// identified by a target string (matched against call_function and
// call_method nodes) or by an fx.Module value, whose concrete type is matched
// against the resolved submodules of call_module nodes.
func (h *Harness) AssertHasOp(g *fx.Graph, ops ...any) {
	for _, op := range ops {
		found, err := hasOp(g, op)
		require.NoError(h.T, err)
		require.Truef(h.T, found, "graph does not contain op %v:\n%s", opName(op), g)
	}
}

// AssertUnexpectedOp requires that the graph contains none of the given ops.
// See AssertHasOp for how ops are identified.
func (h *Harness) AssertUnexpectedOp(g *fx.Graph, ops ...any) {
	for _, op := range ops {
		found, err := hasOp(g, op)
		require.NoError(h.T, err)
		require.Falsef(h.T, found, "graph contains op %v which should have been removed:\n%s", opName(op), g)
	}
}

func hasOp(g *fx.Graph, op any) (bool, error) {
	target, isTarget := op.(string)
	var moduleType reflect.Type
	if !isTarget {
		moduleType = reflect.TypeOf(op)
	}
	for _, n := range g.Nodes() {
		switch n.Kind() {
		case fx.KindCallFunction, fx.KindCallMethod:
			if isTarget && n.Target() == target {
				return true, nil
			}
		case fx.KindCallModule:
			if isTarget {
				continue
			}
			submodule, err := fx.FetchAttr(g.Owner(), n.Target())
			if err != nil {
				return false, err
			}
			if reflect.TypeOf(submodule) == moduleType {
				return true, nil
			}
		}
	}
	return false, nil
}

func opName(op any) string {
	if target, ok := op.(string); ok {
		return target
	}
	return reflect.TypeOf(op).String()
}
