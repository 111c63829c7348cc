// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package engine

import (
	"time"

	"github.com/gomlx/enginetest/fx"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Program is a compiled engine: a backend executable plus the input/output
// bookkeeping needed to feed it tensors.
type Program struct {
	backend      backends.Backend
	exec         backends.Executable
	inputNames   []string
	inputShapes  []shapes.Shape
	outputShapes []shapes.Shape
	settings     Settings
}

// Compile lowers a traced graph onto the backend and compiles it to an
// executable. Dynamic input specs are compiled at their maximum shape.
//
// Composite ops the engine has no converter for (and module calls) make
// Compile fail with an error wrapping fx.ErrUnsupportedOp.
func Compile(backend backends.Backend, g *fx.Graph, specs []*fx.InputSpec, settings Settings) (*Program, error) {
	if len(specs) != len(g.Inputs()) {
		return nil, errors.Errorf("engine: graph takes %d inputs, got %d input specs",
			len(g.Inputs()), len(specs))
	}
	p := &Program{backend: backend, settings: settings}
	err := exceptions.TryCatch[error](func() {
		builder := backend.Builder("engine")
		bb := newBackendBuilder(builder, settings)
		mapping := make(map[*fx.Node]fx.Value, len(g.Nodes()))
		for ii, n := range g.Inputs() {
			shape := specs[ii].CompileShape()
			p.inputNames = append(p.inputNames, n.Target())
			p.inputShapes = append(p.inputShapes, shape)
			mapping[n] = bb.parameter(n.Target(), shape)
		}
		var outputOps []backends.Op
		for _, n := range g.Nodes() {
			switch n.Kind() {
			case fx.KindPlaceholder:
				continue
			case fx.KindOutput:
				for _, out := range n.NodeInputs() {
					outputOps = append(outputOps, bb.op(mapping[out]))
				}
				continue
			}
			inputs := make([]fx.Value, len(n.NodeInputs()))
			for jj, in := range n.NodeInputs() {
				v, found := mapping[in]
				if !found {
					exceptions.Panicf("engine: node %s depends on %s which was not lowered", n, in)
				}
				inputs[jj] = v
			}
			values, err := fx.Emit(bb, g.Owner(), n, inputs)
			if err != nil {
				panic(err)
			}
			if len(values) != 1 {
				exceptions.Panicf("engine: node %s lowered to %d values, expected 1", n, len(values))
			}
			mapping[n] = values[0]
			if settings.Debug {
				klog.V(1).Infof("engine: lowered %s", n)
			}
		}
		if len(outputOps) == 0 {
			exceptions.Panicf("engine: graph has no outputs")
		}
		for _, op := range outputOps {
			p.outputShapes = append(p.outputShapes, bb.shapeOf(op))
		}
		exec, err := builder.Compile(outputOps, nil)
		if err != nil {
			panic(errors.WithStack(err))
		}
		p.exec = exec
	})
	if err != nil {
		return nil, errors.WithMessage(err, "engine: compilation failed")
	}
	if settings.Debug {
		klog.Infof("engine: compiled %d inputs -> %d outputs on %q",
			len(p.inputNames), len(p.outputShapes), backend.Name())
	}
	return p, nil
}

// InputShapes returns the shapes the executable expects, in feed order.
// Dynamic inputs appear at their compiled (maximum) shape.
func (p *Program) InputShapes() []shapes.Shape { return p.inputShapes }

// OutputShapes returns the shapes the executable produces.
func (p *Program) OutputShapes() []shapes.Shape { return p.outputShapes }

// Run executes the engine on the given inputs and returns local tensors.
func (p *Program) Run(inputs []*tensors.Tensor) ([]*tensors.Tensor, error) {
	outputs, _, err := p.RunTimed(inputs)
	return outputs, err
}

// RunTimed is Run plus the wall time of the backend execution itself,
// excluding host transfers.
func (p *Program) RunTimed(inputs []*tensors.Tensor) ([]*tensors.Tensor, time.Duration, error) {
	if p.exec == nil {
		return nil, 0, errors.New("engine: program was finalized")
	}
	if len(inputs) != len(p.inputShapes) {
		return nil, 0, errors.Errorf("engine: program takes %d inputs, got %d", len(p.inputShapes), len(inputs))
	}
	buffers := make([]backends.Buffer, len(inputs))
	for ii, t := range inputs {
		if !t.Shape().Equal(p.inputShapes[ii]) {
			return nil, 0, errors.Errorf("engine: input #%d (%s) has shape %s, executable compiled for %s",
				ii, p.inputNames[ii], t.Shape(), p.inputShapes[ii])
		}
		buffer, err := t.Buffer(p.backend, 0)
		if err != nil {
			return nil, 0, errors.WithMessagef(err, "engine: transferring input #%d (%s)", ii, p.inputNames[ii])
		}
		buffers[ii] = buffer
	}
	donate := make([]bool, len(buffers))
	start := time.Now()
	outBuffers, err := p.exec.Execute(buffers, donate, 0)
	elapsed := time.Since(start)
	if err != nil {
		return nil, 0, errors.WithMessage(err, "engine: execution failed")
	}
	outputs := make([]*tensors.Tensor, len(outBuffers))
	for ii, buffer := range outBuffers {
		outputs[ii], err = tensors.FromBuffer(p.backend, buffer)
		if err != nil {
			return nil, 0, errors.WithMessagef(err, "engine: transferring output #%d", ii)
		}
	}
	return outputs, elapsed, nil
}

// Finalize frees the backend executable. The program cannot run afterwards.
func (p *Program) Finalize() {
	if p.exec != nil {
		p.exec.Finalize()
		p.exec = nil
	}
}

// InferOutputDTypes returns the dtypes the engine will produce for the graph,
// by replaying it build-only through the framework's graph path at the
// compile shapes. With truncateFloat64 set, float64 outputs become float32,
// matching what a TruncateFloat64 engine produces.
func InferOutputDTypes(backend backends.Backend, g *fx.Graph, specs []*fx.InputSpec, truncateFloat64 bool) ([]dtypes.DType, error) {
	if len(specs) != len(g.Inputs()) {
		return nil, errors.Errorf("engine: graph takes %d inputs, got %d input specs",
			len(g.Inputs()), len(specs))
	}
	var result []dtypes.DType
	err := exceptions.TryCatch[error](func() {
		tmp := graph.NewGraph(backend, "infer_output_dtypes")
		defer tmp.Finalize()
		b := fx.NewGraphBuilder(tmp)
		mapping := make(map[*fx.Node]fx.Value, len(g.Nodes()))
		for ii, n := range g.Inputs() {
			mapping[n] = b.Wrap(graph.Parameter(tmp, n.Target(), specs[ii].CompileShape()))
		}
		for _, n := range g.Nodes() {
			switch n.Kind() {
			case fx.KindPlaceholder:
				continue
			case fx.KindOutput:
				for _, out := range n.NodeInputs() {
					dtype := fx.GraphNode(mapping[out]).DType()
					if truncateFloat64 && dtype == dtypes.Float64 {
						dtype = dtypes.Float32
					}
					result = append(result, dtype)
				}
				continue
			}
			inputs := make([]fx.Value, len(n.NodeInputs()))
			for jj, in := range n.NodeInputs() {
				inputs[jj] = mapping[in]
			}
			values, err := fx.Emit(b, g.Owner(), n, inputs)
			if err != nil {
				panic(err)
			}
			mapping[n] = values[0]
		}
	})
	if err != nil {
		return nil, errors.WithMessage(err, "engine: output dtype inference failed")
	}
	return result, nil
}
