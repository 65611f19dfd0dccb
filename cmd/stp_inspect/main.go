// stp_inspect builds one of the standard equivariant descriptors, compiles it
// and prints the descriptor, the execution plan and its cost estimates.
// Optionally it runs the plan on random inputs through the reference backend.
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/LiamZhang100/cuEquivariance/backends/naive"
	"github.com/LiamZhang100/cuEquivariance/descriptors"
	"github.com/LiamZhang100/cuEquivariance/dtypes"
	"github.com/LiamZhang100/cuEquivariance/irreps"
	"github.com/LiamZhang100/cuEquivariance/planner"
	"github.com/LiamZhang100/cuEquivariance/stp"
)

var (
	flagOp    = flag.String("op", "linear", "Descriptor to build: linear, elementwise, full or fully_connected")
	flagIn1   = flag.String("in1", "16x0(1)", "Irreps of the first input, e.g. \"16x0(1)+8x1(3)\"")
	flagIn2   = flag.String("in2", "", "Irreps of the second input (elementwise, full, fully_connected)")
	flagOut   = flag.String("out", "", "Irreps of the output (linear, fully_connected)")
	flagDType = flag.String("dtype", "Float64", "Element dtype used for the plan's cost model")
	flagCache = flag.String("cache", "", "Directory for the on-disk plan cache; empty disables it")
	flagExec  = flag.Bool("exec", false, "Execute the plan on random inputs with the reference backend")
	flagSeed  = flag.Uint64("seed", 42, "Seed for the random inputs of -exec")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `stp_inspect builds a segmented tensor product descriptor, compiles it and
prints the resulting execution plan.

$ stp_inspect -op=linear -in1="16x0(1)+8x1(3)" -out="4x0(1)+2x1(3)"
$ stp_inspect -op=elementwise -in1="8x0(1)" -in2="8x0(1)" -exec

Usage:
`)
		flag.PrintDefaults()
	}
	klog.InitFlags(flag.CommandLine)
	flag.Parse()

	d := must.M1(buildDescriptor())
	fmt.Printf("Descriptor: %s\n", d)
	fmt.Printf("  subscripts:  %s\n", d.Subscripts())
	fmt.Printf("  sizes:       %v\n", d.OperandSizes())
	fmt.Printf("  flops/item:  %d\n", d.Flops(1))
	fmt.Printf("  memory/item: %d\n", d.Memory(1))
	fmt.Printf("  hash:        %s\n", d.StructuralHash())

	dtype, found := dtypes.MapOfNames[*flagDType]
	if !found {
		klog.Exitf("unknown dtype %q", *flagDType)
	}
	var cache planner.Cache
	if *flagCache != "" {
		cache = must.M1(planner.NewDiskCache(*flagCache))
	}
	plan := must.M1(planner.NewCompiler(cache).Compile(d, planner.Constraints{DType: dtype}))
	fmt.Printf("\n%s\n", plan)
	for i, g := range plan.Groups() {
		fmt.Printf("  group #%d: %s, %d paths, %d bytes/invocation, shapes %v\n",
			i, g.Strategy, len(g.Paths), g.ByteSize, g.OperandShapes)
	}

	if *flagExec {
		execute(d, plan)
	}
}

// buildDescriptor constructs the descriptor selected by the flags.
func buildDescriptor() (*stp.SegmentedTensorProduct, error) {
	in1 := must.M1(irreps.Parse(*flagIn1))
	in2 := must.M1(irreps.Parse(*flagIn2))
	out := must.M1(irreps.Parse(*flagOut))
	couplings := descriptors.ScalarCouplings{}
	switch *flagOp {
	case "linear":
		return descriptors.Linear(in1, out)
	case "elementwise":
		return descriptors.ElementwiseTensorProduct(in1, in2, couplings, nil)
	case "full":
		return descriptors.FullTensorProduct(in1, in2, couplings, nil)
	case "fully_connected":
		return descriptors.FullyConnectedTensorProduct(in1, in2, out, couplings)
	}
	return nil, errors.Errorf("unknown -op %q, want linear, elementwise, full or fully_connected", *flagOp)
}

// execute runs the plan on normally-distributed random inputs and prints the
// output buffer.
func execute(d *stp.SegmentedTensorProduct, plan *planner.Plan) {
	rng := rand.New(rand.NewPCG(*flagSeed, 0))
	sizes := plan.OperandSizes()
	inputs := make([][]float64, d.NumInputs())
	for i := range inputs {
		inputs[i] = make([]float64, sizes[i])
		for j := range inputs[i] {
			inputs[i][j] = rng.NormFloat64()
		}
	}
	output := must.M1(naive.New().Execute(plan, inputs))
	fmt.Printf("\nOutput (%d elements): %v\n", len(output), output)
}
