package ir

// Builder constructs and rewrites IR at a (block, index) cursor. It is
// deliberately small: most structural work
// (inserting whole blocks, splicing regions) lives on Region/BasicBlock
// directly, since those don't need a live insertion point.
type Builder struct {
	fn      *Function
	block   *BasicBlock
	index   int // insertion index within block.Ops; len(Ops) means "at end"
	pending []*Op
}

// NewBuilder creates a builder with no cursor set; SetInsertionPoint must
// be called before Create.
func NewBuilder(fn *Function) *Builder {
	return &Builder{fn: fn}
}

// SetInsertionPoint moves the cursor to the end of b.
func (bld *Builder) SetInsertionPoint(b *BasicBlock) {
	bld.block = b
	bld.index = len(b.Ops)
}

// SetInsertionPointBefore moves the cursor to just before mark in its block.
func (bld *Builder) SetInsertionPointBefore(mark *Op) {
	bld.block = mark.Block
	for i, o := range bld.block.Ops {
		if o == mark {
			bld.index = i
			return
		}
	}
	panic("ir: builder cursor mark not found")
}

// cursorScope saves/restores the builder's cursor across a nested
// construction, substituting for the source's RAII scope guard.
type cursorScope struct {
	bld   *Builder
	block *BasicBlock
	index int
}

// EnterScope returns a scope; call Exit (typically via defer) to restore
// the prior cursor. Used when building a nested Region's blocks without
// losing the caller's place.
func (bld *Builder) EnterScope() *cursorScope {
	return &cursorScope{bld: bld, block: bld.block, index: bld.index}
}

func (s *cursorScope) Exit() {
	s.bld.block = s.block
	s.bld.index = s.index
}

func (bld *Builder) nextValueID() int {
	if bld.fn != nil {
		return bld.fn.nextValue()
	}
	return 0
}

// Create inserts a new Op at the cursor, updating use-sets and cloning the
// provided attrs (the builder owns the attr refs it's handed).
func (bld *Builder) Create(kind Kind, resultTy Type, operands []*Op, attrs []Attr) *Op {
	o := &Op{
		ID:        bld.nextValueID(),
		Kind:      kind,
		ResultTy:  resultTy,
		HasResult: resultTy != Unit,
		Attrs:     cloneAttrs(attrs),
	}
	o.setOperands(operands)
	bld.insertAt(o)
	return o
}

// CreateRegion allocates a region owned by o and appends it to o.Regions.
func (bld *Builder) CreateRegion(o *Op) *Region {
	r := NewRegion(o)
	o.Regions = append(o.Regions, r)
	return r
}

func (bld *Builder) insertAt(o *Op) {
	b := bld.block
	o.Block = b
	b.Ops = append(b.Ops, nil)
	copy(b.Ops[bld.index+1:], b.Ops[bld.index:])
	b.Ops[bld.index] = o
	bld.index++
}

// InsertBefore moves op (already constructed but detached) to just before
// mark, preserving use-def.
func InsertBefore(mark, op *Op) {
	b := mark.Block
	idx := indexOfOp(b, mark)
	op.Block = b
	b.Ops = append(b.Ops[:idx], append([]*Op{op}, b.Ops[idx:]...)...)
}

// InsertAfter moves op to just after mark.
func InsertAfter(mark, op *Op) {
	b := mark.Block
	idx := indexOfOp(b, mark)
	op.Block = b
	b.Ops = append(b.Ops[:idx+1], append([]*Op{op}, b.Ops[idx+1:]...)...)
}

func indexOfOp(b *BasicBlock, o *Op) int {
	for i, x := range b.Ops {
		if x == o {
			return i
		}
	}
	panic("ir: op not found in its recorded block")
}

// Replace inserts a new op at old's position with the given operands/attrs,
// rewires every use of old to it, and erases old.
func (bld *Builder) Replace(old *Op, kind Kind, resultTy Type, operands []*Op, attrs []Attr) *Op {
	b := old.Block
	idx := indexOfOp(b, old)
	n := &Op{ID: bld.nextValueID(), Kind: kind, ResultTy: resultTy, HasResult: resultTy != Unit, Attrs: attrs, Block: b}
	n.setOperands(operands)
	b.Ops[idx] = n
	old.Block = nil
	old.ReplaceAllUsesWith(n)
	old.setOperands(nil)
	return n
}

// Erase detaches op from its block; panics if op still has uses, since
// erasing a used Op is a programmer error, not a recoverable one.
// Deallocation itself needs nothing further in Go (the GC reclaims op
// once unreferenced); Erase exists to enforce the use-before-erase
// invariant and to detach op from block bookkeeping.
func Erase(op *Op) {
	if op.HasUses() {
		panic("ir: erase of op with remaining uses: " + op.Kind.String())
	}
	if op.Block != nil {
		b := op.Block
		idx := indexOfOp(b, op)
		b.Ops = append(b.Ops[:idx], b.Ops[idx+1:]...)
	}
	op.setOperands(nil)
	for _, a := range op.Attrs {
		a.Release()
	}
	op.Attrs = nil
	op.Block = nil
	op.erased = true
}

// Copy performs a shallow operand copy and deep attribute clone of op,
// producing a new, not-yet-inserted Op of the same kind.
func Copy(fn *Function, op *Op) *Op {
	n := &Op{
		ID:        fn.nextValue(),
		Kind:      op.Kind,
		ResultTy:  op.ResultTy,
		HasResult: op.HasResult,
		Attrs:     cloneAttrs(op.Attrs),
		Operands:  append([]*Op(nil), op.Operands...),
	}
	for _, v := range n.Operands {
		if v != nil {
			v.addUse(n)
		}
	}
	return n
}
