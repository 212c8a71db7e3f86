package regalloc

import "sysyc/internal/ir"

// Allocate runs the shared allocator over one function's already-lowered
// machine dialect: clobber placeholders (step 1) -> interference
// construction (steps 3-4) -> greedy priority coloring with spilling
// (steps 5-7) -> phi destruction into parallel moves (step 9) -> spill
// materialization (step 10), in that order. Step 2 (GetArgOp relocation)
// is the caller's own Lower pass's responsibility, per this package's doc
// comment; step 8 (WriteReg/ReadReg lowering) falls out for free here,
// since those ops are pre-colored to their pinned register rather than
// rewritten — a value already computed straight into its pinned register
// needs no separate move, and DestructPhis/MaterializeSpills already
// handle every other register-to-register copy the allocation implies.
func Allocate(f *ir.Function, cfg Config) *Result {
	placeholders := InsertClobberPlaceholders(f, cfg)
	gpr, fp, slot := BuildInterference(f, cfg)
	result := Color(f, cfg, gpr, fp, slot)
	DestructPhis(f, cfg, result.Colored, result.Spilled)
	MaterializeSpills(f, cfg, result.Spilled)
	RemovePlaceholders(placeholders)
	return result
}
