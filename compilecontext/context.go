// Package compilecontext holds the compile-time configuration threaded
// through every pipeline stage: which procedure is the entry point, the
// source text for each procedure in the namespace, the optimizer's work
// budget K, and the two HDL emission flags (random_ready, is_system_verilog).
//
// Grounded on python2verilog/api/context.py's context_to_verilog(context,
// config) and the CodegenConfig/TestbenchConfig split it implies: one
// config governs module emission, the other the testbench's backpressure
// mode. LoadYAML exercises this module's yaml.v3 dependency.
package compilecontext

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Context is the fully-resolved configuration for one compilation: a
// single namespace's source procedures plus the optimizer and emission
// settings that govern it.
type Context struct {
	EntryProcedure    string
	Namespace         map[string]string // procedure name -> Go source snippet
	OptimizationLevel int
	RandomReady       bool
	IsSystemVerilog   bool
}

// manifest is the on-disk YAML shape LoadYAML reads: entry, sources,
// optimization_level, random_ready, is_system_verilog.
type manifest struct {
	Entry             string            `yaml:"entry"`
	Sources           map[string]string `yaml:"sources"`
	OptimizationLevel int               `yaml:"optimization_level"`
	RandomReady       bool              `yaml:"random_ready"`
	IsSystemVerilog   bool              `yaml:"is_system_verilog"`
}

// LoadYAML reads a manifest file and validates it into a Context.
func LoadYAML(path string) (*Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}

	ctx := &Context{
		EntryProcedure:    m.Entry,
		Namespace:         m.Sources,
		OptimizationLevel: m.OptimizationLevel,
		RandomReady:       m.RandomReady,
		IsSystemVerilog:   m.IsSystemVerilog,
	}
	if err := ctx.Validate(); err != nil {
		return nil, err
	}
	return ctx, nil
}

// Validate checks the minimal shape every Context must satisfy before
// it reaches the pipeline: a named entry procedure whose source is
// actually present in the namespace.
func (c *Context) Validate() error {
	if c.EntryProcedure == "" {
		return fmt.Errorf("manifest is missing an entry procedure name")
	}
	if len(c.Namespace) == 0 {
		return fmt.Errorf("manifest declares no source procedures")
	}
	if _, ok := c.Namespace[c.EntryProcedure]; !ok {
		return fmt.Errorf("entry procedure %q has no matching source", c.EntryProcedure)
	}
	return nil
}
