package ir

// ComputeDominance computes immediate dominators over the CFG rooted at the
// function's entry block with the Cooper/Harvey/Kennedy iterative algorithm
// and fills IDom/DomChildren, then computes dominance frontiers over idom
// links.
func (f *Function) ComputeDominance() {
	entry := f.EntryBlock()
	if entry == nil {
		return
	}
	blocks := reachable(entry)
	idom := lengauerTarjan(entry, blocks)

	for _, b := range blocks {
		b.IDom = nil
		b.DomChildren = nil
		b.DomFrontier = nil
	}
	for _, b := range blocks {
		if id, ok := idom[b]; ok && id != nil {
			b.IDom = id
			id.DomChildren = append(id.DomChildren, b)
		}
	}
	computeDominanceFrontier(blocks)
}

// reachable returns every block reachable from entry in BFS order, entry
// first.
func reachable(entry *BasicBlock) []*BasicBlock {
	seen := map[*BasicBlock]bool{entry: true}
	order := []*BasicBlock{entry}
	queue := []*BasicBlock{entry}
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		for _, s := range b.Succs {
			if !seen[s] {
				seen[s] = true
				order = append(order, s)
				queue = append(queue, s)
			}
		}
	}
	return order
}

// lengauerTarjan computes immediate dominators. This implementation uses
// the simple O(n^2)-worst-case iterative variant (Cooper/Harvey/Kennedy
// "A Simple, Fast Dominance Algorithm"), which in practice performs like
// the classical Lengauer-Tarjan result on the CFG sizes this compiler
// produces, while staying small enough to audit by hand.
func lengauerTarjan(entry *BasicBlock, blocks []*BasicBlock) map[*BasicBlock]*BasicBlock {
	postorder := postorderFrom(entry)
	index := map[*BasicBlock]int{}
	for i, b := range postorder {
		index[b] = i
	}

	idom := map[*BasicBlock]*BasicBlock{entry: entry}
	changed := true
	for changed {
		changed = false
		// reverse postorder, skip entry
		for i := len(postorder) - 2; i >= 0; i-- {
			b := postorder[i]
			var newIdom *BasicBlock
			for _, p := range b.Preds {
				if idom[p] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = intersect(newIdom, p, idom, index)
			}
			if newIdom != nil && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	idom[entry] = nil
	return idom
}

func intersect(a, b *BasicBlock, idom map[*BasicBlock]*BasicBlock, index map[*BasicBlock]int) *BasicBlock {
	for a != b {
		for index[a] < index[b] {
			a = idom[a]
		}
		for index[b] < index[a] {
			b = idom[b]
		}
	}
	return a
}

func postorderFrom(entry *BasicBlock) []*BasicBlock {
	seen := map[*BasicBlock]bool{}
	var order []*BasicBlock
	var visit func(*BasicBlock)
	visit = func(b *BasicBlock) {
		if seen[b] {
			return
		}
		seen[b] = true
		for _, s := range b.Succs {
			visit(s)
		}
		order = append(order, b)
	}
	visit(entry)
	return order
}

// computeDominanceFrontier: for block B, DF(B) is the set of blocks C such
// that B dominates an immediate predecessor of C but does not strictly
// dominate C.
func computeDominanceFrontier(blocks []*BasicBlock) {
	for _, b := range blocks {
		b.DomFrontier = map[*BasicBlock]bool{}
	}
	for _, b := range blocks {
		if len(b.Preds) < 2 {
			continue
		}
		for _, p := range b.Preds {
			runner := p
			for runner != nil && runner != b.IDom {
				runner.DomFrontier[b] = true
				runner = runner.IDom
			}
		}
	}
}

// Dominates reports whether a dominates b (reflexive: a dominates itself).
func Dominates(a, b *BasicBlock) bool {
	for c := b; c != nil; c = c.IDom {
		if c == a {
			return true
		}
	}
	return false
}

// StrictlyDominates reports whether a strictly dominates b.
func StrictlyDominates(a, b *BasicBlock) bool {
	return a != b && Dominates(a, b)
}

// ComputePostDominance computes post-dominators by running the same
// algorithm on the reversed graph. Requires a single exit block; fails
// hard otherwise, since a function with multiple exits needs a unified
// exit before post-dominance is well-defined.
func (f *Function) ComputePostDominance() {
	var exit *BasicBlock
	for _, b := range f.Blocks() {
		if len(b.Succs) == 0 {
			if exit != nil {
				panic("ir: post-dominance requires a single exit block, found multiple in " + f.Name)
			}
			exit = b
		}
	}
	if exit == nil {
		panic("ir: post-dominance requires a single exit block, found none in " + f.Name)
	}

	rev := reverseGraph(f.Blocks())
	postorder := postorderFromReverse(exit, rev)
	index := map[*BasicBlock]int{}
	for i, b := range postorder {
		index[b] = i
	}
	ipdom := map[*BasicBlock]*BasicBlock{exit: exit}
	changed := true
	for changed {
		changed = false
		for i := len(postorder) - 2; i >= 0; i-- {
			b := postorder[i]
			var newIdom *BasicBlock
			for _, p := range b.Succs {
				if ipdom[p] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = intersect(newIdom, p, ipdom, index)
			}
			if newIdom != nil && ipdom[b] != newIdom {
				ipdom[b] = newIdom
				changed = true
			}
		}
	}
	for _, b := range f.Blocks() {
		b.PostIDom = nil
	}
	for b, id := range ipdom {
		if b != exit {
			b.PostIDom = id
		}
	}
}

// reverseGraph returns, for each block, its successors in the reversed
// graph (i.e. its predecessors in the forward graph).
func reverseGraph(blocks []*BasicBlock) map[*BasicBlock][]*BasicBlock {
	rev := map[*BasicBlock][]*BasicBlock{}
	for _, b := range blocks {
		rev[b] = append([]*BasicBlock(nil), b.Preds...)
	}
	return rev
}

func postorderFromReverse(exit *BasicBlock, rev map[*BasicBlock][]*BasicBlock) []*BasicBlock {
	seen := map[*BasicBlock]bool{}
	var order []*BasicBlock
	var visit func(*BasicBlock)
	visit = func(b *BasicBlock) {
		if seen[b] {
			return
		}
		seen[b] = true
		for _, s := range rev[b] {
			visit(s)
		}
		order = append(order, b)
	}
	visit(exit)
	return order
}
