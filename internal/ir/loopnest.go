package ir

// ComputeLoopNest finds natural loops via back edges — an edge u->v is a
// back edge when v dominates u — and assigns every block its nesting
// depth and innermost enclosing loop header. Requires ComputeDominance to
// have already been run. Consumed by GCM (loop-depth-aware late
// scheduling), LICM, LoopRotate, SCEV and Vectorize, all of which need to
// know which blocks sit inside which loop.
//
// Loops that share a header (common with irreducible or multi-latch
// loops) have their natural-loop bodies unioned per back edge rather than
// merged into one pass, so LoopDepth still counts each contributing back
// edge's body as a separate enclosing loop.
func (f *Function) ComputeLoopNest() {
	blocks := f.Blocks()
	for _, b := range blocks {
		b.LoopDepth = 0
		b.LoopHeader = nil
	}

	loops := f.Loops()

	for _, b := range blocks {
		var innermost *Loop
		depth := 0
		for i := range loops {
			l := &loops[i]
			if !l.Body[b] {
				continue
			}
			depth++
			if innermost == nil || len(l.Body) < len(innermost.Body) {
				innermost = l
			}
		}
		b.LoopDepth = depth
		if innermost != nil {
			b.LoopHeader = innermost.Header
		}
	}
}

// Loop is one natural loop: Header is its single entry block (the back
// edge's target) and Body is every block the loop contains, including
// Header itself. Loops sharing a header from distinct back edges (common
// with multi-latch loops) appear as distinct entries with unioned, not
// merged, bodies — each back edge contributes its own Loop.
type Loop struct {
	Header *BasicBlock
	Body   map[*BasicBlock]bool
}

// Loops finds every natural loop in f by back-edge detection: an edge
// u->v is a back edge when v dominates u (or v == u, a single-block
// self-loop). Requires ComputeDominance to have already run.
func (f *Function) Loops() []Loop {
	var loops []Loop
	for _, u := range f.Blocks() {
		for _, v := range u.Succs {
			if v == u || Dominates(v, u) {
				loops = append(loops, Loop{Header: v, Body: naturalLoopBody(u, v)})
			}
		}
	}
	return loops
}

// naturalLoopBody computes the natural loop of the back edge latch->header:
// header plus every block that can reach latch walking predecessors
// without passing back through header.
func naturalLoopBody(latch, header *BasicBlock) map[*BasicBlock]bool {
	body := map[*BasicBlock]bool{header: true, latch: true}
	worklist := []*BasicBlock{latch}
	if latch == header {
		worklist = nil // a self-loop's body is the header alone
	}
	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, p := range b.Preds {
			if !body[p] {
				body[p] = true
				worklist = append(worklist, p)
			}
		}
	}
	return body
}
