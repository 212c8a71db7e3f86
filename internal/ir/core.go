package ir

// Module is the top-level container: it holds the function and global
// definitions in declaration order.
type Module struct {
	Name      string
	Functions []*Function
	Globals   []*Global
}

func NewModule(name string) *Module {
	return &Module{Name: name}
}

func (m *Module) AddFunction(f *Function) { m.Functions = append(m.Functions, f) }
func (m *Module) AddGlobal(g *Global)      { m.Globals = append(m.Globals, g) }

func (m *Module) FindFunction(name string) *Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Global models a GlobalOp: a name, a type, dimensions (for arrays) and an
// optional initializer payload.
type Global struct {
	Name      string
	Ty        Type
	Dims      []int // nil for scalars
	IntInit   []int64
	FloatInit []float64
	Zero      bool // true when the initializer is all-zero (goes in .bss)
}

// Function is an Op carrying a name, argument count, optional purity / call
// graph attributes, and one Region.
type Function struct {
	Name        string
	NumArgs     int
	ParamTypes  []Type
	ReturnType  Type
	Region      *Region
	Pure        bool
	AtMostOnce  bool
	CallerSet   []string
	nextValueID int
	nextBlockID int
}

func NewFunction(name string, params []Type, ret Type) *Function {
	f := &Function{Name: name, ParamTypes: params, NumArgs: len(params), ReturnType: ret}
	f.Region = NewRegion(nil)
	f.Region.owner = nil
	f.Region.fn = f
	return f
}

func (f *Function) nextValue() int { f.nextValueID++; return f.nextValueID }
func (f *Function) nextBlock() int { id := f.nextBlockID; f.nextBlockID++; return id }

// EntryBlock returns the first block of the function's region, or nil.
func (f *Function) EntryBlock() *BasicBlock {
	if len(f.Region.Blocks) == 0 {
		return nil
	}
	return f.Region.Blocks[0]
}

// Blocks returns the blocks of the function's top region only; nested
// regions belong to structured ops and are walked separately by passes
// that care about them.
func (f *Function) Blocks() []*BasicBlock { return f.Region.Blocks }

// Region is an ordered list of BasicBlocks owned by an Op (or by a
// Function, for the top-level region).
type Region struct {
	owner  *Op // nil when this is a Function's top-level region
	fn     *Function
	Blocks []*BasicBlock
}

func NewRegion(owner *Op) *Region {
	return &Region{owner: owner}
}

func (r *Region) Func() *Function {
	if r.fn != nil {
		return r.fn
	}
	if r.owner != nil {
		return r.owner.Func()
	}
	return nil
}

func (r *Region) Append(b *BasicBlock) {
	b.region = r
	if fn := r.Func(); fn != nil {
		b.ID = fn.nextBlock()
	}
	r.Blocks = append(r.Blocks, b)
}

// InsertBefore inserts b immediately before mark in r.
func (r *Region) InsertBefore(mark, b *BasicBlock) {
	b.region = r
	if fn := r.Func(); fn != nil && b.ID == 0 {
		b.ID = fn.nextBlock()
	}
	idx := r.indexOf(mark)
	r.Blocks = append(r.Blocks[:idx], append([]*BasicBlock{b}, r.Blocks[idx:]...)...)
}

// InsertAfter inserts b immediately after mark in r.
func (r *Region) InsertAfter(mark, b *BasicBlock) {
	b.region = r
	if fn := r.Func(); fn != nil && b.ID == 0 {
		b.ID = fn.nextBlock()
	}
	idx := r.indexOf(mark)
	r.Blocks = append(r.Blocks[:idx+1], append([]*BasicBlock{b}, r.Blocks[idx+1:]...)...)
}

func (r *Region) indexOf(b *BasicBlock) int {
	for i, x := range r.Blocks {
		if x == b {
			return i
		}
	}
	panic("ir: block not found in region")
}

// Remove detaches b from the region's block list.
func (r *Region) Remove(b *BasicBlock) {
	idx := r.indexOf(b)
	r.Blocks = append(r.Blocks[:idx], r.Blocks[idx+1:]...)
}

// BasicBlock owns an ordered list of Ops; carries predecessor/successor
// sets and lazily-recomputed analysis results.
type BasicBlock struct {
	ID           int
	Label        string
	Ops          []*Op
	region       *Region
	Preds        []*BasicBlock
	Succs        []*BasicBlock

	// Dominance (stale until Function.ComputeDominance is called).
	IDom      *BasicBlock
	DomChildren []*BasicBlock
	DomFrontier map[*BasicBlock]bool
	PostIDom  *BasicBlock

	// Liveness (stale until Function.ComputeLiveness is called).
	LiveIn  map[*Op]bool
	LiveOut map[*Op]bool

	// Natural-loop nesting (stale until Function.ComputeLoopNest is called).
	LoopDepth  int
	LoopHeader *BasicBlock // innermost loop header containing this block, nil outside any loop
}

func NewBlock(label string) *BasicBlock {
	return &BasicBlock{Label: label}
}

func (b *BasicBlock) Region() *Region { return b.region }

func (b *BasicBlock) Func() *Function {
	if b.region == nil {
		return nil
	}
	return b.region.Func()
}

// Terminator returns the block's terminating Op, or nil if the block does
// not yet end in one (only legal before FlattenCFG / for the high-level
// dialect).
func (b *BasicBlock) Terminator() *Op {
	if len(b.Ops) == 0 {
		return nil
	}
	last := b.Ops[len(b.Ops)-1]
	if last.Kind.IsTerminator() {
		return last
	}
	return nil
}

func (b *BasicBlock) AddSucc(s *BasicBlock) {
	for _, x := range b.Succs {
		if x == s {
			return
		}
	}
	b.Succs = append(b.Succs, s)
	s.Preds = append(s.Preds, b)
}

func (b *BasicBlock) RemoveSucc(s *BasicBlock) {
	b.Succs = removeBlock(b.Succs, s)
	s.Preds = removeBlock(s.Preds, b)
}

func removeBlock(list []*BasicBlock, x *BasicBlock) []*BasicBlock {
	out := list[:0]
	for _, b := range list {
		if b != x {
			out = append(out, b)
		}
	}
	return out
}

// splitOpsAfter moves every Op after (and not including) mark into a new
// tail block, wiring successors appropriately. Used by critical-edge
// splitting and block-splitting transforms.
func (b *BasicBlock) SplitOpsAfter(mark *Op, newLabel string) *BasicBlock {
	idx := -1
	for i, o := range b.Ops {
		if o == mark {
			idx = i
			break
		}
	}
	if idx < 0 {
		panic("ir: split mark not found in block")
	}
	tail := NewBlock(newLabel)
	tail.Ops = append(tail.Ops, b.Ops[idx+1:]...)
	for _, o := range tail.Ops {
		o.Block = tail
	}
	b.Ops = b.Ops[:idx+1]
	tail.Succs = b.Succs
	for _, s := range tail.Succs {
		s.Preds = removeBlock(s.Preds, b)
		s.Preds = append(s.Preds, tail)
	}
	b.Succs = nil
	b.AddSucc(tail)
	if b.region != nil {
		b.region.InsertAfter(b, tail)
	}
	return tail
}

// InlineToEnd appends every Op of b into dest.
func (b *BasicBlock) InlineToEnd(dest *BasicBlock) {
	for _, o := range b.Ops {
		o.Block = dest
		dest.Ops = append(dest.Ops, o)
	}
	b.Ops = nil
}
