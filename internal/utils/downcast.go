// Package utils holds small helpers with no natural home in
// ir/pattern/pipeline/backend: a dynamic down-cast helper, a presburger
// basic-set emptiness tester, and a bitvector SMT-style expression
// matcher for superoptimization experiments. None of the retrieval
// pack's third-party dependencies cover these — they are small,
// self-contained algorithms over this repo's own types (recorded in
// DESIGN.md).
package utils

import (
	"fmt"

	"sysyc/internal/diag"
	"sysyc/internal/ir"
)

// MustDialect narrows op to the dialect whose membership test is given by
// belongs, replacing the source's RTTI `dynamic_cast<T*>`: Go's Kind is
// already a closed enum rather than a class hierarchy, so there is no
// type to cast to, only a range check to assert before a dialect-specific
// helper (an AArch64-only or RV64-only rewrite, say) touches attrs that
// only its own dialect defines. Fails fast with a category-tagged fatal
// assertion instead of silently mis-reading another dialect's encoding.
func MustDialect(op *ir.Op, belongs func(ir.Kind) bool, dialect string) *ir.Op {
	diag.Assert(belongs(op.Kind), diag.UnsupportedConstruct,
		"%s: op %%%d (%s) does not belong to the %s dialect", dialect, op.ID, op.Kind, dialect)
	return op
}

// MustAArch64 narrows op to the AArch64 machine dialect.
func MustAArch64(op *ir.Op) *ir.Op { return MustDialect(op, ir.Kind.IsAArch64, "arm64") }

// MustRV64 narrows op to the RV64GC machine dialect.
func MustRV64(op *ir.Op) *ir.Op { return MustDialect(op, ir.Kind.IsRV64, "rv64") }

// As narrows v to a T, asserting rather than returning ok=false on
// mismatch — used at boundaries (e.g. a Rule.Build callback handed an
// `any` payload) where a mismatch is a program bug, not recoverable
// input, so a fatal assertion is the right response rather than Go's
// usual comma-ok idiom.
func As[T any](v any) T {
	t, ok := v.(T)
	diag.Assert(ok, diag.UnsupportedConstruct, "downcast failed: %v is not a %T", v, t)
	return t
}

// TryAs is the non-fatal counterpart to As, for call sites that have a
// legitimate fallback instead of treating a mismatch as a bug.
func TryAs[T any](v any) (T, bool) {
	t, ok := v.(T)
	return t, ok
}

func init() {
	// Guard against kind.go's dialect sentinels ever being reordered such
	// that the ranges MustAArch64/MustRV64 rely on stop meaning what their
	// names say.
	if ir.Kind(0).IsAArch64() && ir.Kind(0).IsRV64() {
		panic(fmt.Sprintf("utils: ir.Kind dialect ranges overlap at zero value"))
	}
}
