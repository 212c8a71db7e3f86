package arm64

import "sysyc/internal/ir"

// Pipeline runs the full per-function AArch64 back-end: Lower,
// StrengthReduce, InstCombine to a fixed point, DCE, register allocation,
// the post-allocation Peephole+Tidyup, and LateLegalize, in that order.
func Pipeline(f *ir.Function) {
	Lower(f)
	StrengthReduce(f)
	InstCombine(f)
	DCE(f)
	RegAlloc(f)
	Peephole(f)
	LateLegalize(f)
}

// Compile lowers every function of m through Pipeline and renders the
// resulting assembly text.
func Compile(m *ir.Module) string {
	for _, f := range m.Functions {
		Pipeline(f)
	}
	return Dump(m)
}
