package compile

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hdlflow/compilecontext"
)

const fibonacciSource = `
func fibonacci_filter(limit gen.Int) {
	a := 1
	b := 1
	for a < limit {
		if a % 2 != 0 {
			gen.Yield(a)
		}
		next := a + b
		a = b
		b = next
	}
}
`

func testContext(entry string, sources map[string]string) *compilecontext.Context {
	return &compilecontext.Context{
		EntryProcedure: entry,
		Namespace:      sources,
	}
}

func TestPipeline_Fibonacci(t *testing.T) {
	ctx := testContext("fibonacci_filter", map[string]string{"fibonacci_filter": fibonacciSource})
	res, err := Pipeline(ctx, Options{ModuleName: "fibonacci_filter", Inputs: [][]int32{{100}}})
	require.NoError(t, err)

	assert.Equal(t, "fibonacci_filter", res.SourceName)
	assert.NotZero(t, len(res.Module.States))
	assert.Equal(t, 1, res.Module.OutputArity)
	assert.Contains(t, res.Verilog, "module fibonacci_filter (")
	assert.Contains(t, res.Verilog, "endmodule")
	assert.Contains(t, res.Testbench, "fibonacci_filter_tb")
	assert.Contains(t, res.Testbench, "$finish;")
}

func TestPipeline_DeterministicAcrossRuns(t *testing.T) {
	ctx := testContext("fibonacci_filter", map[string]string{"fibonacci_filter": fibonacciSource})

	first, err := Pipeline(ctx, Options{ModuleName: "fibonacci_filter"})
	require.NoError(t, err)
	second, err := Pipeline(ctx, Options{ModuleName: "fibonacci_filter"})
	require.NoError(t, err)

	assert.Equal(t, first.Verilog, second.Verilog, "recompiling the same namespace must yield byte-identical HDL")
	assert.Equal(t, len(first.Module.Registers), len(second.Module.Registers))
}

func TestPipeline_SystemVerilogFlag(t *testing.T) {
	ctx := testContext("fibonacci_filter", map[string]string{"fibonacci_filter": fibonacciSource})
	ctx.IsSystemVerilog = true

	res, err := Pipeline(ctx, Options{ModuleName: "fibonacci_filter"})
	require.NoError(t, err)
	assert.True(t, strings.Contains(res.Verilog, "always_ff"))
	assert.True(t, strings.Contains(res.Verilog, "logic"))
}

func TestPipeline_InvalidContext(t *testing.T) {
	ctx := &compilecontext.Context{}
	_, err := Pipeline(ctx, Options{})
	assert.Error(t, err)
}

func TestPipeline_UnsupportedConstructIsReported(t *testing.T) {
	src := `
func bad_generator(limit gen.Int) {
	for _, v := range []int{1, 2, 3} {
		gen.Yield(v)
	}
}
`
	ctx := testContext("bad_generator", map[string]string{"bad_generator": src})
	_, err := Pipeline(ctx, Options{})
	require.Error(t, err)
}

func TestPipelineAll_CompilesIndependentNamespaces(t *testing.T) {
	const doubler = `
func doubler(n gen.Int) {
	i := 0
	for i < n {
		gen.Yield(i * 2)
		i = i + 1
	}
}
`
	jobs := []Job{
		{Context: testContext("fibonacci_filter", map[string]string{"fibonacci_filter": fibonacciSource}), Options: Options{ModuleName: "fibonacci_filter"}},
		{Context: testContext("doubler", map[string]string{"doubler": doubler}), Options: Options{ModuleName: "doubler"}},
	}

	results, errs := PipelineAll(context.Background(), jobs)
	require.Len(t, results, 2)
	for i, err := range errs {
		require.NoErrorf(t, err, "job %d", i)
	}
	assert.Equal(t, "fibonacci_filter", results[0].SourceName)
	assert.Equal(t, "doubler", results[1].SourceName)
}
