package ir

// ComputeLiveness runs the standard iterative backward data-flow:
//
//	live_out(B) = U_{S in succ(B)} (live_in(S) - phi_defs(S)) U phi_uses_from(B, S)
//	live_in(B)  = phi_defs(B) U upward_exposed(B) U (live_out(B) - defined_in(B))
//
// Phi uses are attributed to the edge (B,S), not to B itself, since a phi
// operand is only live along the predecessor edge it's read from.
func (f *Function) ComputeLiveness() {
	blocks := f.Blocks()
	for _, b := range blocks {
		b.LiveIn = map[*Op]bool{}
		b.LiveOut = map[*Op]bool{}
	}

	changed := true
	for changed {
		changed = false
		for i := len(blocks) - 1; i >= 0; i-- {
			b := blocks[i]
			newOut := map[*Op]bool{}
			for _, s := range b.Succs {
				phiDefs := phiDefsOf(s)
				for v := range s.LiveIn {
					if !phiDefs[v] {
						newOut[v] = true
					}
				}
				for v := range phiUsesFrom(b, s) {
					newOut[v] = true
				}
			}

			defined := map[*Op]bool{}
			upward := map[*Op]bool{}
			for _, o := range b.Ops {
				if o.Kind == KPhi {
					defined[o] = true
					continue
				}
				for _, v := range o.Operands {
					if v != nil && !defined[v] {
						upward[v] = true
					}
				}
				if o.HasResult {
					defined[o] = true
				}
			}

			newIn := map[*Op]bool{}
			for v := range phiDefsOf(b) {
				newIn[v] = true
			}
			for v := range upward {
				newIn[v] = true
			}
			for v := range newOut {
				if !defined[v] {
					newIn[v] = true
				}
			}

			if !sameSet(newIn, b.LiveIn) || !sameSet(newOut, b.LiveOut) {
				b.LiveIn = newIn
				b.LiveOut = newOut
				changed = true
			}
		}
	}
}

func phiDefsOf(b *BasicBlock) map[*Op]bool {
	out := map[*Op]bool{}
	for _, o := range b.Ops {
		if o.Kind != KPhi {
			break
		}
		out[o] = true
	}
	return out
}

// phiUsesFrom returns the operands of every phi in s whose FROM attribute
// names b — the values b must keep live across the (b,s) edge.
func phiUsesFrom(b, s *BasicBlock) map[*Op]bool {
	out := map[*Op]bool{}
	for _, o := range s.Ops {
		if o.Kind != KPhi {
			break
		}
		froms := o.Froms()
		for i, from := range froms {
			if from == b && i < len(o.Operands) && o.Operands[i] != nil {
				out[o.Operands[i]] = true
			}
		}
	}
	return out
}

func sameSet(a, b map[*Op]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
