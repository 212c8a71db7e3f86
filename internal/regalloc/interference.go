package regalloc

import (
	"sort"

	"sysyc/internal/ir"
)

// BuildInterference implements steps 3-4 of the allocator: computes liveness, then
// for each block builds per-value live intervals (defined_index ..
// last_use_index, or the block boundary for values live-in/live-out) and
// sweeps a sorted start/end event list, adding an edge between every pair
// of values simultaneously live. GPR and FP values are tracked in
// separate graphs (they never compete for a register) but every pair
// also lands in slotGraph (they do compete for a stack slot once either
// is spilled).
func BuildInterference(f *ir.Function, cfg Config) (gprGraph, fpGraph, slotGraph *Graph) {
	f.ComputeLiveness()
	gprGraph, fpGraph, slotGraph = NewGraph(), NewGraph(), NewGraph()
	for _, b := range f.Blocks() {
		buildBlockInterference(b, cfg, gprGraph, fpGraph, slotGraph)
	}
	return
}

type interval struct {
	op         *ir.Op
	start, end int
}

type event struct {
	idx     int
	isStart bool
	op      *ir.Op
}

func buildBlockInterference(b *ir.BasicBlock, cfg Config, gprGraph, fpGraph, slotGraph *Graph) {
	n := len(b.Ops)
	lastUse := map[*ir.Op]int{}
	for i, o := range b.Ops {
		for _, v := range o.Operands {
			if v != nil && cfg.NeedsReg(v) {
				lastUse[v] = i
			}
		}
	}

	var intervals []interval
	seen := map[*ir.Op]bool{}
	for v := range b.LiveIn {
		if !cfg.NeedsReg(v) || seen[v] {
			continue
		}
		seen[v] = true
		end := n
		if lu, ok := lastUse[v]; ok {
			end = lu
		}
		if b.LiveOut[v] {
			end = n
		}
		intervals = append(intervals, interval{v, -1, end})
	}
	for i, o := range b.Ops {
		if !o.HasResult || !cfg.NeedsReg(o) || seen[o] {
			continue
		}
		seen[o] = true
		end := i
		if lu, ok := lastUse[o]; ok {
			end = lu
		}
		if b.LiveOut[o] {
			end = n
		}
		intervals = append(intervals, interval{o, i, end})
	}

	var events []event
	for _, iv := range intervals {
		events = append(events, event{iv.start, true, iv.op})
		events = append(events, event{iv.end, false, iv.op})
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].idx != events[j].idx {
			return events[i].idx < events[j].idx
		}
		// An interval ending exactly where another starts must not be
		// treated as overlapping, so process ends before starts.
		return !events[i].isStart && events[j].isStart
	})

	live := map[*ir.Op]bool{}
	for _, e := range events {
		if e.isStart {
			for o := range live {
				addInterferenceEdge(cfg, gprGraph, fpGraph, slotGraph, e.op, o)
			}
			live[e.op] = true
		} else {
			delete(live, e.op)
		}
	}
}

func addInterferenceEdge(cfg Config, gprGraph, fpGraph, slotGraph *Graph, a, b *ir.Op) {
	slotGraph.AddEdge(a, b)
	if cfg.ClassOf(a) != cfg.ClassOf(b) {
		return
	}
	if cfg.ClassOf(a) == GPR {
		gprGraph.AddEdge(a, b)
	} else {
		fpGraph.AddEdge(a, b)
	}
}
