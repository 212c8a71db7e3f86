package pipeline

// allPasses returns every pass this repo knows how to construct, keyed by
// the name used in DefaultOrder/Config.Order. Passes not yet implemented
// are intentionally absent; New rejects an order naming one.
func allPasses() map[string]Pass {
	out := map[string]Pass{}
	for _, p := range []Pass{
		ParallelizePass(),
		EarlyConstFoldPass(),
		MoveAllocaPass(),
		EarlyInlinePass(),
		TCOPass(),
		RemergePass(),
		TidyMemoryPass(),
		LocalizePass(),
		RaiseToForPass(),
		FlattenCFGPass(),
		Mem2RegPass(),
		RegularFoldPass(),
		GVNPass(),
		GCMPass(),
		LICMPass(),
		LoopRotatePass(),
		ConstLoopUnrollPass(),
		SCEVPass(),
		VectorizePass(),
		LoopDCEPass(),
		DCEPass(),
	} {
		out[p.Name] = p
	}
	return out
}
