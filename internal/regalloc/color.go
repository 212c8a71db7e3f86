package regalloc

import (
	"sort"

	"sysyc/internal/ir"
)

// priority ranks a node for coloring order: WriteRegOp/ReadRegOp are
// already pinned and excluded from the coloring worklist entirely;
// everything else is Normal except small rematerializable constants,
// which get the lowest priority so the coloring pass prefers to spill
// them over a value that is expensive to recompute.
type priority int

const (
	priorityNormal priority = iota
	priorityRematerializable
)

func nodePriority(o *ir.Op, cfg Config) priority {
	if cfg.Rematerializable != nil && cfg.Rematerializable(o) {
		return priorityRematerializable
	}
	return priorityNormal
}

// colorState tracks the running allocation across both register classes
// plus their shared spill-slot space, reused across Color and Spill.
type colorState struct {
	cfg      Config
	gpr, fp  *Graph
	slot     *Graph
	colored  map[*ir.Op]string
	spilled  map[*ir.Op]int64
	nextSlot int64
}

// Color runs steps 5-7 of the allocator: pre-colors WriteRegOp/ReadRegOp, then
// colors every remaining register-requiring node in descending
// (priority, degree) order, preferring a phi's already-chosen color for
// its operands (coalescing) and a WriteRegOp consumer's register when a
// value feeds one directly. Nodes that exhaust their class's register
// pool are spilled to the lowest stack offset, a multiple of
// cfg.StackAlign, that does not conflict with another spilled value
// (including across classes, tracked by slotGraph).
func Color(f *ir.Function, cfg Config, gpr, fp, slot *Graph) *Result {
	st := &colorState{cfg: cfg, gpr: gpr, fp: fp, slot: slot,
		colored: map[*ir.Op]string{}, spilled: map[*ir.Op]int64{}}

	var nodes []*ir.Op
	seen := map[*ir.Op]bool{}
	for _, b := range f.Blocks() {
		for _, o := range b.Ops {
			if !cfg.NeedsReg(o) || seen[o] {
				continue
			}
			seen[o] = true
			if cfg.IsWriteReg(o) || cfg.IsReadReg(o) {
				st.colored[o] = cfg.PinnedReg(o)
				continue
			}
			nodes = append(nodes, o)
		}
	}

	graphOf := func(o *ir.Op) *Graph {
		if cfg.ClassOf(o) == GPR {
			return gpr
		}
		return fp
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		pi, pj := nodePriority(nodes[i], cfg), nodePriority(nodes[j], cfg)
		if pi != pj {
			return pi < pj // Normal colors before Rematerializable
		}
		gi, gj := graphOf(nodes[i]), graphOf(nodes[j])
		return gi.Degree(nodes[i]) > gj.Degree(nodes[j])
	})

	for _, o := range nodes {
		g := graphOf(o)
		pool := cfg.GPR
		if cfg.ClassOf(o) == FP {
			pool = cfg.FP
		}
		reg, ok := st.pickColor(o, g, pool)
		if ok {
			st.colored[o] = reg
			continue
		}
		st.spill(o)
	}

	return &Result{Colored: st.colored, Spilled: st.spilled}
}

// pickColor excludes every register already used by a colored
// interfering neighbor, then prefers (in order): the register of a
// WriteRegOp this node feeds directly, the color already chosen for a
// phi this node is an operand of (or that this node itself is, biasing
// its operands), and otherwise the first free register in the pool's
// declared order (temp-first, per cfg.GPR/cfg.FP's own ordering).
func (st *colorState) pickColor(o *ir.Op, g *Graph, pool []string) (string, bool) {
	excluded := map[string]bool{}
	for n := range g.Edges[o] {
		if reg, ok := st.colored[n]; ok {
			excluded[reg] = true
		}
	}

	if pref, ok := st.preferredColor(o); ok && !excluded[pref] {
		return pref, true
	}
	for _, reg := range pool {
		if !excluded[reg] {
			return reg, true
		}
	}
	return "", false
}

// preferredColor implements the coalescing bias from step 5/6: a value
// feeding a WriteRegOp prefers that register; a phi operand prefers the
// color already assigned to its phi (or a sibling operand already
// colored), so the common case needs no extra move at phi-destruction
// time.
func (st *colorState) preferredColor(o *ir.Op) (string, bool) {
	for _, u := range o.Uses() {
		if st.cfg.IsWriteReg(u) {
			return st.cfg.PinnedReg(u), true
		}
		if u.Kind == ir.KPhi {
			if reg, ok := st.colored[u]; ok {
				return reg, true
			}
		}
	}
	if o.Kind == ir.KPhi {
		for _, v := range o.Operands {
			if v == nil {
				continue
			}
			if reg, ok := st.colored[v]; ok {
				return reg, true
			}
		}
	}
	return "", false
}

// spill assigns o the lowest stack offset, a multiple of cfg.StackAlign,
// that does not conflict with any already-spilled value o interferes
// with in the (cross-class) slot graph.
func (st *colorState) spill(o *ir.Op) {
	used := map[int64]bool{}
	for n := range st.slot.Edges[o] {
		if off, ok := st.spilled[n]; ok {
			used[off] = true
		}
	}
	off := int64(0)
	for used[off] {
		off += st.cfg.StackAlign
	}
	st.spilled[o] = off
	if st.nextSlot <= off {
		st.nextSlot = off + st.cfg.StackAlign
	}
}
