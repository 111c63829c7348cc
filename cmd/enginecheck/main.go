// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// enginecheck compiles a demo model through the engine lowering and checks it
// against the framework's direct execution, reporting timings and the largest
// deviation. Useful to sanity-check a backend outside of the test suite.
//
// Example:
//
//	enginecheck -model mlp -batch 32 -dim 128 -runs 100
//	GOMLX_BACKEND=xla:cpu enginecheck -model softmax_mlp -fp16
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/enginetest/engine"
	"github.com/gomlx/enginetest/fx"
	"github.com/gomlx/enginetest/nn"
	"github.com/gomlx/enginetest/passes"
	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/simplego"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/support/xslices"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

var (
	flagBackend = flag.String("backend", "go", "Backend configuration, in the \"<name>:<config>\" format. "+
		"Overridden by the GOMLX_BACKEND environment variable.")
	flagModel = flag.String("model", "mlp", "Demo model to check: mlp, gelu_mlp or softmax_mlp.")
	flagBatch = flag.Int("batch", 32, "Batch size of the input.")
	flagDim   = flag.Int("dim", 128, "Feature dimension of the input and hidden layers.")
	flagRuns  = flag.Int("runs", 10, "Number of engine executions to time.")
	flagSeed  = flag.Int64("seed", 42, "Seed for the model parameters and inputs.")
	flagFp16  = flag.Bool("fp16", false, "Compile the engine at float16 precision.")
	flagNoPasses = flag.Bool("no_passes", false, "Skip the lowering pipeline (decompositions, CSE, DCE). "+
		"Models with composite ops will fail to compile.")
)

func main() {
	flag.Parse()

	config := *flagBackend
	if env := os.Getenv(backends.ConfigEnvVar); env != "" {
		config = env
	}
	backend := must.M1(backends.NewWithConfig(config))
	defer backend.Finalize()

	rng := rand.New(rand.NewSource(*flagSeed))
	model := buildModel(rng)
	spec := fx.Spec(dtypes.Float32, *flagBatch, *flagDim)
	input := spec.ExampleTensor(rng, fx.MaxShape)

	g := must.M1(fx.ExportTrace(model, spec))
	if !*flagNoPasses {
		g = must.M1(passes.ApplyLowering(backend, g, []*tensors.Tensor{input}))
	}

	settings := engine.Settings{Debug: klog.V(1).Enabled()}
	if *flagFp16 {
		settings.Precisions = []dtypes.DType{dtypes.Float16}
	}
	start := time.Now()
	program := must.M1(engine.Compile(backend, g, []*fx.InputSpec{spec}, settings))
	defer program.Finalize()
	compileTime := time.Since(start)

	bar := progressbar.Default(int64(*flagRuns), "engine runs")
	var engineTotal time.Duration
	var got []*tensors.Tensor
	for run := 0; run < *flagRuns; run++ {
		var elapsed time.Duration
		var err error
		got, elapsed, err = program.RunTimed([]*tensors.Tensor{input})
		must.M(err)
		engineTotal += elapsed
		must.M(bar.Add(1))
	}
	must.M(bar.Finish())

	start = time.Now()
	ref := runReference(backend, model, input)
	refTime := time.Since(start)

	report(backend, model, g, compileTime, engineTotal / time.Duration(*flagRuns), refTime, maxAbsError(got, ref))
}

func buildModel(rng *rand.Rand) fx.Module {
	dim := *flagDim
	switch *flagModel {
	case "mlp":
		return &nn.Sequential{Layers: []fx.Module{
			nn.NewLinear(rng, dtypes.Float32, dim, dim),
			nn.ReLU{},
			nn.NewLinear(rng, dtypes.Float32, dim, dim),
		}}
	case "gelu_mlp":
		return &nn.Sequential{Layers: []fx.Module{
			nn.NewLinear(rng, dtypes.Float32, dim, dim),
			nn.GELU{},
			nn.NewLinear(rng, dtypes.Float32, dim, dim),
		}}
	case "softmax_mlp":
		return &nn.Sequential{Layers: []fx.Module{
			nn.NewLinear(rng, dtypes.Float32, dim, dim),
			nn.ReLU{},
			nn.NewLinear(rng, dtypes.Float32, dim, dim),
			nn.Softmax{Axis: -1},
		}}
	}
	klog.Errorf("Unknown model %q. See 'enginecheck -help'.", *flagModel)
	os.Exit(1)
	return nil
}

func runReference(backend backends.Backend, model fx.Module, input *tensors.Tensor) []*tensors.Tensor {
	exec := graph.MustNewExecAny(backend, func(nodes []*graph.Node) []*graph.Node {
		b := fx.NewGraphBuilder(nodes[0].Graph())
		return xslices.Map(model.Forward(b, b.Wrap(nodes[0])), fx.GraphNode)
	})
	defer exec.Finalize()
	return must.M1(exec.Exec(input))
}

func maxAbsError(got, ref []*tensors.Tensor) float64 {
	var worst float64
	for ii := range got {
		gotFlat := flatFloats(got[ii])
		refFlat := flatFloats(ref[ii])
		for jj := range gotFlat {
			worst = math.Max(worst, math.Abs(gotFlat[jj]-refFlat[jj]))
		}
	}
	return worst
}

func flatFloats(t *tensors.Tensor) []float64 {
	result := make([]float64, t.Shape().Size())
	must.M(t.ConstFlatData(func(flat any) {
		switch values := flat.(type) {
		case []float32:
			for ii, v := range values {
				result[ii] = float64(v)
			}
		case []float64:
			copy(result, values)
		default:
			klog.Fatalf("enginecheck only handles float32/float64 outputs, got %s", t.DType())
		}
	}))
	return result
}

var headerStyle = lipgloss.NewStyle().Reverse(true).Padding(0, 1).Align(lipgloss.Center)

func report(backend backends.Backend, model fx.Module, g *fx.Graph,
	compileTime, engineTime, refTime time.Duration, worst float64) {
	numParams := 0
	for _, t := range nn.ParameterTensors(model) {
		numParams += t.Shape().Size()
	}
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("Metric", "Value").
		Row("Model", *flagModel).
		Row("Backend", backend.Description()).
		Row("Parameters", humanize.Comma(int64(numParams))).
		Row("Graph nodes", humanize.Comma(int64(len(g.Nodes())))).
		Row("Compile time", compileTime.String()).
		Row("Engine run (avg)", engineTime.String()).
		Row("Reference run", refTime.String()).
		Row("Max abs error", fmt.Sprintf("%.3g", worst))
	fmt.Println(table.Render())
}
