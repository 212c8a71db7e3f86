package pipeline

import (
	"fmt"

	"sysyc/internal/ir"
	"sysyc/internal/pattern"
)

// RegularFoldPass runs a large table of
// machine-independent rewrite rules expressed in the pattern package's
// matcher language, run to a fixed point over every function. Covers
// constant folding, additive/multiplicative identities, nested-constant
// reassociation for chains of add/sub, a handful of power-of-two strength
// reductions, and comparison self-identities.
//
// Float rules are deliberately narrow: only constant-constant folding
// (`*a`/`*b`, both already-literal floats) is rewritten. Algebraic
// identities that hold exactly for integers — `x + 0`, `x * 1` — are
// NOT applied to floats, since IEEE 754 signed zero and NaN make them
// unsound (`x + (-0.0)` is not always `x`, `x * 1.0` is not always `x`
// when x is a signaling NaN). For the same reason, `a*b + c` is never
// fused into fmadd at this level either, since that changes which
// rounding the hardware performs.
func RegularFoldPass() Pass {
	return PerFunction("RegularFold", regularFold)
}

var regularFoldMatcher = buildRegularFoldMatcher()

func buildRegularFoldMatcher() *pattern.Matcher {
	m := pattern.NewMatcher(nil, regularFoldBuild)
	for _, src := range regularFoldRules {
		if err := m.AddRule(src); err != nil {
			panic(fmt.Sprintf("regularfold: bad rule %q: %v", src, err))
		}
	}
	return m
}

func regularFold(f *ir.Function) {
	regularFoldMatcher.RunToFixedPoint(f)
}

func regularFoldBuild(bld *ir.Builder, head string, operands []*ir.Op) *ir.Op {
	ty := ir.I32
	if len(operands) > 0 {
		ty = operands[0].ResultTy
	}
	switch head {
	case "add", "sub", "mul", "div", "mod", "and", "or", "xor", "shl", "shr",
		"eq", "ne", "lt", "le", "gt", "ge":
		return bld.Create(ir.KBinOp, ty, operands, []ir.Attr{ir.NameAttr(head)})
	case "neg", "not":
		return bld.Create(ir.KUnOp, ty, operands, []ir.Attr{ir.NameAttr(head)})
	}
	return nil
}

var regularFoldRules = []string{
	// --- integer constant folding ---
	`(change (add 'a 'b) (!+ 'a 'b))`,
	`(change (sub 'a 'b) (!- 'a 'b))`,
	`(change (mul 'a 'b) (!* 'a 'b))`,
	`(change (div 'a 'b (!ne 'b 0)) (!/ 'a 'b))`,
	`(change (mod 'a 'b (!ne 'b 0)) (!% 'a 'b))`,
	`(change (and 'a 'b) (!and 'a 'b))`,
	`(change (or 'a 'b) (!or 'a 'b))`,
	`(change (xor 'a 'b) (!xor 'a 'b))`,
	`(change (shl 'a 'b) (!shl 'a 'b))`,
	`(change (shr 'a 'b) (!shr 'a 'b))`,
	`(change (eq 'a 'b) (!eq 'a 'b))`,
	`(change (ne 'a 'b) (!ne 'a 'b))`,
	`(change (lt 'a 'b) (!lt 'a 'b))`,
	`(change (le 'a 'b) (!le 'a 'b))`,
	`(change (gt 'a 'b) (!gt 'a 'b))`,
	`(change (ge 'a 'b) (!ge 'a 'b))`,
	`(change (neg 'a) (!- 'a))`,

	// --- float constant folding only, no algebraic identities ---
	`(change (add *a *b) (?+ *a *b))`,
	`(change (sub *a *b) (?- *a *b))`,
	`(change (mul *a *b) (?* *a *b))`,
	`(change (div *a *b) (?/ *a *b))`,
	`(change (neg *a) (?- *a))`,

	// --- additive identities ---
	`(change (add x 0) x)`,
	`(change (add 0 x) x)`,
	`(change (sub x 0) x)`,
	`(change (sub x x) 0)`,
	`(change (xor x x) 0)`,
	`(change (xor x 0) x)`,
	`(change (xor 0 x) x)`,

	// --- multiplicative identities ---
	`(change (mul x 1) x)`,
	`(change (mul 1 x) x)`,
	`(change (mul x 0) 0)`,
	`(change (mul 0 x) 0)`,
	`(change (div x 1) x)`,

	// --- bitwise identities ---
	`(change (and x 0) 0)`,
	`(change (and 0 x) 0)`,
	`(change (and x x) x)`,
	`(change (or x 0) x)`,
	`(change (or 0 x) x)`,
	`(change (or x x) x)`,
	`(change (shl x 0) x)`,
	`(change (shr x 0) x)`,

	// --- double negation ---
	`(change (neg (neg x)) x)`,
	`(change (not (not x)) x)`,

	// --- comparison self-identities ---
	`(change (eq x x) 1)`,
	`(change (ne x x) 0)`,
	`(change (lt x x) 0)`,
	`(change (gt x x) 0)`,
	`(change (le x x) 1)`,
	`(change (ge x x) 1)`,

	// --- nested-constant reassociation ("normalizing adds/subs") ---
	`(change (add (add x 'a) 'b) (add x (!+ 'a 'b)))`,
	`(change (add 'a (add x 'b)) (add x (!+ 'a 'b)))`,
	`(change (add (sub x 'a) 'b) (add x (!- 'b 'a)))`,
	`(change (sub (add x 'a) 'b) (add x (!- 'a 'b)))`,
	`(change (sub (sub x 'a) 'b) (sub x (!+ 'a 'b)))`,
	`(change (mul (mul x 'a) 'b) (mul x (!* 'a 'b)))`,

	// --- power-of-two strength reduction ---
	`(change (mul x 2) (shl x 1))`,
	`(change (mul 2 x) (shl x 1))`,
	`(change (mul x 4) (shl x 2))`,
	`(change (mul 4 x) (shl x 2))`,
	`(change (mul x 8) (shl x 3))`,
	`(change (mul 8 x) (shl x 3))`,
	`(change (mul x 16) (shl x 4))`,
	`(change (mul 16 x) (shl x 4))`,
}
