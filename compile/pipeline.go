// Package compile orchestrates the full generator-to-HDL pipeline:
// frontend capture, CFG construction, optimization, state-machine
// lowering, and HDL emission. Mirrors a staged Pipeline function
// structure, generalized from a lexer/parser/CFG/regalloc/codegen
// chain to this repository's frontend/cfgbuild/optimizer/statemachine/
// hdl chain, with log/slog stage banners in place of a plain
// `if opts.Verbose { fmt.Println }` idiom.
package compile

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"

	"hdlflow/cfgbuild"
	"hdlflow/compilecontext"
	"hdlflow/frontend"
	"hdlflow/hdl"
	"hdlflow/statemachine"
)

// Result is one namespace's compiled artifacts.
type Result struct {
	SourceName string
	Module     *statemachine.Module
	Verilog    string
	Testbench  string
}

// Options configures a single Pipeline run, scoped to this
// repository's stages.
type Options struct {
	ModuleName string
	Inputs     [][]int32 // parameter tuples the generated testbench will drive
	Logger     *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Pipeline compiles one namespace end to end: frontend capture, CFG
// construction, state-machine lowering (which runs the optimizer
// internally per ctx.OptimizationLevel), then HDL + testbench
// emission. Each stage boundary is logged.
func Pipeline(ctx *compilecontext.Context, opts Options) (*Result, error) {
	log := opts.logger()

	if err := ctx.Validate(); err != nil {
		return nil, fmt.Errorf("compile: invalid context: %w", err)
	}

	log.Info("stage: frontend capture", "entry", ctx.EntryProcedure, "procedures", len(ctx.Namespace))
	source := assembleSource(ctx.Namespace)
	captured, err := frontend.Load(ctx.EntryProcedure+".go", source)
	if err != nil {
		return nil, fmt.Errorf("compile: frontend: %w", err)
	}

	log.Info("stage: CFG construction", "entry", ctx.EntryProcedure)
	ns, err := cfgbuild.Build(captured, ctx.EntryProcedure)
	if err != nil {
		return nil, fmt.Errorf("compile: cfgbuild: %w", err)
	}

	log.Info("stage: state-machine lowering", "optimization_level", ctx.OptimizationLevel)
	module, err := statemachine.Build(ns, ctx.OptimizationLevel)
	if err != nil {
		return nil, fmt.Errorf("compile: statemachine: %w", err)
	}
	log.Info("state-machine lowered", "states", len(module.States), "registers", len(module.Registers))

	hdlOpts := hdl.Options{
		ModuleName:      opts.ModuleName,
		IsSystemVerilog: ctx.IsSystemVerilog,
		RandomReady:     ctx.RandomReady,
	}

	log.Info("stage: HDL emission", "module", hdlOpts.ModuleName, "system_verilog", ctx.IsSystemVerilog)
	verilog := hdl.GenerateModule(module, hdlOpts)
	testbench := hdl.GenerateTestbench(module, hdlOpts, opts.Inputs)

	return &Result{
		SourceName: ctx.EntryProcedure,
		Module:     module,
		Verilog:    verilog,
		Testbench:  testbench,
	}, nil
}

// assembleSource joins every procedure's captured source snippet into
// a single Go source file, since frontend.Load parses one file's worth
// of top-level function declarations at a time. Order is sorted by
// name for determinism, matching the determinism invariant every other
// stage of this pipeline upholds.
func assembleSource(namespace map[string]string) string {
	names := make([]string, 0, len(namespace))
	for name := range namespace {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("package gensrc\n\n")
	for _, name := range names {
		b.WriteString(namespace[name])
		b.WriteString("\n\n")
	}
	return b.String()
}

// Job names one namespace to compile, for PipelineAll's fan-out.
type Job struct {
	Context *compilecontext.Context
	Options Options
}

// PipelineAll compiles several independent namespaces concurrently,
// bounded by a worker pool sized to runtime.GOMAXPROCS(0). Each job's
// Pipeline call is side-effect-free, so
// results only need collecting, not further synchronization; results
// are returned in the same order as jobs regardless of completion
// order.
func PipelineAll(parentCtx context.Context, jobs []Job) ([]*Result, []error) {
	results := make([]*Result, len(jobs))
	errs := make([]error, len(jobs))

	workers := runtime.GOMAXPROCS(0)
	if workers > len(jobs) {
		workers = len(jobs)
	}
	if workers < 1 {
		workers = 1
	}

	indices := make(chan int, len(jobs))
	for i := range jobs {
		indices <- i
	}
	close(indices)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				select {
				case <-parentCtx.Done():
					errs[i] = parentCtx.Err()
					continue
				default:
				}
				res, err := Pipeline(jobs[i].Context, jobs[i].Options)
				results[i] = res
				errs[i] = err
			}
		}()
	}
	wg.Wait()

	return results, errs
}
