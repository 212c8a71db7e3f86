// Package pipeline implements the ordered mid-level and back-end pass
// list: a set of single-method Module-to-Module transforms run serially,
// single-threaded, against one in-memory module — no shared mutable
// state leaks across module boundaries.
package pipeline

import (
	"fmt"

	"sysyc/internal/diag"
	"sysyc/internal/ir"
)

// Pass is one named transform. Run mutates m in place; a pass that finds a
// malformed precondition calls diag.Assert rather than returning an
// error — passes are not expected to fail gracefully, only the driver
// recovers the resulting Fault.
type Pass struct {
	Name string
	Run  func(m *ir.Module)
}

// PerFunction builds a Pass that runs fn over every function in the module,
// the common shape for everything except whole-program passes like
// EarlyInline (needs the call graph) and Parallelize (spawns new functions).
func PerFunction(name string, fn func(f *ir.Function)) Pass {
	return Pass{Name: name, Run: func(m *ir.Module) {
		for _, f := range m.Functions {
			fn(f)
		}
	}}
}

// Pipeline is an ordered, named list of passes plus the Config that chose
// them: the full default ordered list, or a subset/reorder from YAML.
type Pipeline struct {
	Config Config
	passes []Pass
}

// New builds the pipeline for cfg: the default ordering filtered to the
// passes cfg enables, or cfg.Order verbatim when given.
func New(cfg Config) (*Pipeline, error) {
	order := cfg.Order
	if len(order) == 0 {
		order = DefaultOrder
	}
	byName := allPasses()
	p := &Pipeline{Config: cfg}
	for _, name := range order {
		if !cfg.enabled(name) {
			continue
		}
		pass, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("pipeline: unknown pass %q", name)
		}
		p.passes = append(p.passes, pass)
	}
	return p, nil
}

// Run executes every enabled pass in order against m. When cfg.Trace is
// set, the module is printed after each pass — this is what backs the
// CLI's `-trace` flag.
func (p *Pipeline) Run(m *ir.Module) {
	for _, pass := range p.passes {
		pass.Run(m)
		if p.Config.Trace != nil {
			p.Config.Trace(pass.Name, ir.Print(m))
		}
		verifyAfter(pass.Name, m)
	}
}

// verifyAfter runs the cheap use-def/terminator invariants after every
// pass; a violation is a pass bug producing malformed IR, reported as a
// fatal assertion rather than silently propagated into the next pass.
func verifyAfter(passName string, m *ir.Module) {
	requireTerminators := passName != "" && afterFlatten(passName)
	errs := ir.Verify(m, requireTerminators)
	diag.Assert(len(errs) == 0, diag.MalformedIR, "pass %q left %d invariant violation(s): %v", passName, len(errs), errs)
}

// afterFlatten reports whether passName runs at or after FlattenCFG in the
// default order, i.e. whether every block is expected to end in a
// terminator yet (struct control-flow ops like KIf are not terminators).
func afterFlatten(passName string) bool {
	seenFlatten := false
	for _, name := range DefaultOrder {
		if name == "FlattenCFG" {
			seenFlatten = true
		}
		if name == passName {
			return seenFlatten
		}
	}
	return false
}
