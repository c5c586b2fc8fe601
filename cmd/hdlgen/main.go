// Command hdlgen is the compiler's CLI driver: it loads a YAML
// manifest (compilecontext.LoadYAML), runs the pipeline, and writes
// the generated module and testbench to disk. This is a thin
// external-collaborator surface, kept separate from the core pipeline
// — it imports hdlflow/compile, never the reverse.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"hdlflow/compile"
	"hdlflow/compilecontext"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var outDir string
	var moduleName string
	var inputsFlag []string

	cmd := &cobra.Command{
		Use:   "hdlgen <manifest.yaml> [manifest.yaml...]",
		Short: "Compile one or more generator namespaces into synthesizable Verilog and a testbench",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := parseInputs(inputsFlag)
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

			jobs := make([]compile.Job, len(args))
			names := make([]string, len(args))
			for i, path := range args {
				ctx, err := compilecontext.LoadYAML(path)
				if err != nil {
					return err
				}
				name := moduleName
				if name == "" || len(args) > 1 {
					name = ctx.EntryProcedure
				}
				names[i] = name
				jobs[i] = compile.Job{
					Context: ctx,
					Options: compile.Options{
						ModuleName: name,
						Inputs:     inputs,
						Logger:     logger,
					},
				}
			}

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("hdlgen: %w", err)
			}

			// One goroutine per input file, bounded by a worker pool,
			// since each manifest's compilation is independent of the
			// others.
			results, errs := compile.PipelineAll(context.Background(), jobs)
			var failed []error
			for i, res := range results {
				if errs[i] != nil {
					failed = append(failed, fmt.Errorf("hdlgen: %s: %w", args[i], errs[i]))
					continue
				}
				modulePath := filepath.Join(outDir, names[i]+".v")
				tbPath := filepath.Join(outDir, names[i]+"_tb.v")
				if err := os.WriteFile(modulePath, []byte(res.Verilog), 0o644); err != nil {
					failed = append(failed, fmt.Errorf("hdlgen: writing module: %w", err))
					continue
				}
				if err := os.WriteFile(tbPath, []byte(res.Testbench), 0o644); err != nil {
					failed = append(failed, fmt.Errorf("hdlgen: writing testbench: %w", err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", modulePath, tbPath)
			}
			if len(failed) > 0 {
				return errors.Join(failed...)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory for the generated module and testbench")
	cmd.Flags().StringVar(&moduleName, "module-name", "", "override the emitted module's name (defaults to the entry procedure's name; ignored when compiling multiple manifests)")
	cmd.Flags().StringSliceVar(&inputsFlag, "input", nil, "one comma-separated parameter tuple to drive the testbench with, repeatable")

	return cmd
}

// parseInputs turns repeated --input "a,b,c" flags into the testbench
// parameter tuples compile.Options.Inputs expects.
func parseInputs(raw []string) ([][]int32, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	tuples := make([][]int32, 0, len(raw))
	for _, r := range raw {
		fields := strings.Split(r, ",")
		tuple := make([]int32, 0, len(fields))
		for _, f := range fields {
			v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("hdlgen: invalid --input value %q: %w", r, err)
			}
			tuple = append(tuple, int32(v))
		}
		tuples = append(tuples, tuple)
	}
	return tuples, nil
}
