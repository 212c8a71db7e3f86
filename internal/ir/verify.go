package ir

import "fmt"

// VerifyError reports a single structural-invariant violation found by
// Verify. These are programmer errors (fatal assertions), not recoverable
// ones; Verify itself just collects them so callers (tests, diag.Assert)
// can decide how to report.
type VerifyError struct {
	Func    string
	Block   string
	Message string
}

func (e VerifyError) Error() string {
	return fmt.Sprintf("%s/%s: %s", e.Func, e.Block, e.Message)
}

// Verify checks the structural invariants every well-formed module holds:
//   - every operand's producer lists the consumer in its use-set
//   - (when requireTerminators) every block ends in a terminator
//   - every phi's FROM multiset equals its block's predecessor set
func Verify(m *Module, requireTerminators bool) []VerifyError {
	var errs []VerifyError
	for _, f := range m.Functions {
		for _, b := range f.Blocks() {
			for _, o := range b.Ops {
				for _, v := range o.Operands {
					if v == nil {
						continue
					}
					if !v.uses[o] {
						errs = append(errs, VerifyError{f.Name, blockLabel(b), fmt.Sprintf("operand %%%d of %%%d missing reciprocal use edge", v.ID, o.ID)})
					}
				}
				if o.Kind == KPhi {
					errs = append(errs, verifyPhi(f, b, o)...)
				}
			}
			if requireTerminators {
				if b.Terminator() == nil {
					errs = append(errs, VerifyError{f.Name, blockLabel(b), "block has no terminator"})
				}
			}
		}
	}
	return errs
}

func verifyPhi(f *Function, b *BasicBlock, phi *Op) []VerifyError {
	var errs []VerifyError
	froms := phi.Froms()
	if len(froms) != len(phi.Operands) {
		errs = append(errs, VerifyError{f.Name, blockLabel(b), "phi operand/from-attr count mismatch"})
		return errs
	}
	gotPreds := map[*BasicBlock]int{}
	for _, p := range froms {
		gotPreds[p]++
	}
	wantPreds := map[*BasicBlock]int{}
	for _, p := range b.Preds {
		wantPreds[p]++
	}
	for p, n := range wantPreds {
		if gotPreds[p] != n {
			errs = append(errs, VerifyError{f.Name, blockLabel(b), fmt.Sprintf("phi from-set does not match predecessor %s", blockLabel(p))})
		}
	}
	for p := range gotPreds {
		if wantPreds[p] == 0 {
			errs = append(errs, VerifyError{f.Name, blockLabel(b), fmt.Sprintf("phi names non-predecessor %s", blockLabel(p))})
		}
	}
	return errs
}
