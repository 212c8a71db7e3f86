package rv64

import "sysyc/internal/ir"

// Pipeline runs the full per-function RV64GC back-end, mirroring
// arm64.Pipeline's ordering.
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
