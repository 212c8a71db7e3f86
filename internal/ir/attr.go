package ir

// AttrKind tags the payload carried by an Attr: a closed set of
// heterogeneous metadata kinds, represented as a single sum type rather
// than an RTTI class hierarchy.
type AttrKind int

const (
	AttrInt AttrKind = iota
	AttrFloat
	AttrSize
	AttrNameAttr
	AttrTarget // branch target block
	AttrElse   // if-false / branch-else target block
	AttrFrom   // phi incoming-edge predecessor block
	AttrIntArray
	AttrFloatArray
	AttrDims
	AttrCallerSet
	AttrAliasSummary
	AttrRange
	AttrStep // SCEV per-iteration increase
	AttrReg
	AttrSpilledReg
	AttrStackOffset
	AttrPure
	AttrAtMostOnce
	AttrFPMark
	AttrParallelizable
	AttrSubscript // affine-vector access descriptor
	AttrBasePtr
	AttrNoStore
	AttrRematerializable
)

// payload is the data carried by one shared attribute instance.
type payload struct {
	kind AttrKind

	i    int64
	f    float64
	s    string
	strs []string
	ints []int64
	flts []float64
	dims []int
	blk  *BasicBlock
	op   *Op // AttrBasePtr
	sub  []int64     // affine subscript coefficients
	lo   int64       // AttrRange low
	hi   int64       // AttrRange high
}

// Attr is a reference-counted handle to a shared payload. Copying an Attr
// (via Create, Copy or cloneAttrs) increments refs; Release decrements
// and, at zero, the payload is eligible for collection (Go's GC does the
// actual reclamation; refs exists so passes can assert sharing discipline).
type Attr struct {
	kind AttrKind
	p    *payload
}

// refs is tracked alongside payload via a parallel counter map keyed by
// pointer identity, since payload itself must stay a plain data struct.
var attrRefs = map[*payload]int{}

func (p *payload) retain() { attrRefs[p]++ }
func (p *payload) release() int {
	attrRefs[p]--
	n := attrRefs[p]
	if n <= 0 {
		delete(attrRefs, p)
	}
	return n
}

// Kind returns the attribute's kind tag.
func (a Attr) Kind() AttrKind { return a.kind }

// Clone produces a new Attr sharing the same payload, bumping the refcount.
func (a Attr) Clone() Attr {
	a.p.retain()
	return a
}

// Release decrements the shared refcount. Returns the remaining count.
func (a Attr) Release() int {
	if a.p == nil {
		return 0
	}
	return a.p.release()
}

func IntAttr(v int64) Attr   { p := &payload{kind: AttrInt, i: v}; p.retain(); return Attr{AttrInt, p} }
func FloatAttr(v float64) Attr {
	p := &payload{kind: AttrFloat, f: v}
	p.retain()
	return Attr{AttrFloat, p}
}
func SizeAttr(n int64) Attr { p := &payload{kind: AttrSize, i: n}; p.retain(); return Attr{AttrSize, p} }
func NameAttr(n string) Attr {
	p := &payload{kind: AttrNameAttr, s: n}
	p.retain()
	return Attr{AttrNameAttr, p}
}
func TargetAttr(b *BasicBlock) Attr {
	p := &payload{kind: AttrTarget, blk: b}
	p.retain()
	return Attr{AttrTarget, p}
}
func ElseAttr(b *BasicBlock) Attr {
	p := &payload{kind: AttrElse, blk: b}
	p.retain()
	return Attr{AttrElse, p}
}
func FromAttr(b *BasicBlock) Attr {
	p := &payload{kind: AttrFrom, blk: b}
	p.retain()
	return Attr{AttrFrom, p}
}
func IntArrayAttr(v []int64) Attr {
	p := &payload{kind: AttrIntArray, ints: v}
	p.retain()
	return Attr{AttrIntArray, p}
}
func FloatArrayAttr(v []float64) Attr {
	p := &payload{kind: AttrFloatArray, flts: v}
	p.retain()
	return Attr{AttrFloatArray, p}
}
func DimsAttr(d []int) Attr { p := &payload{kind: AttrDims, dims: d}; p.retain(); return Attr{AttrDims, p} }
func CallerSetAttr(names []string) Attr {
	p := &payload{kind: AttrCallerSet, strs: names}
	p.retain()
	return Attr{AttrCallerSet, p}
}
func RangeAttr(lo, hi int64) Attr {
	p := &payload{kind: AttrRange, lo: lo, hi: hi}
	p.retain()
	return Attr{AttrRange, p}
}
func StepAttr(coeffs []int64) Attr {
	p := &payload{kind: AttrStep, ints: coeffs}
	p.retain()
	return Attr{AttrStep, p}
}
func RegAttr(name string) Attr { p := &payload{kind: AttrReg, s: name}; p.retain(); return Attr{AttrReg, p} }
func SpilledRegAttr(offset int64) Attr {
	p := &payload{kind: AttrSpilledReg, i: offset}
	p.retain()
	return Attr{AttrSpilledReg, p}
}
func StackOffsetAttr(off int64) Attr {
	p := &payload{kind: AttrStackOffset, i: off}
	p.retain()
	return Attr{AttrStackOffset, p}
}
func PureAttr() Attr      { p := &payload{kind: AttrPure}; p.retain(); return Attr{AttrPure, p} }
func AtMostOnceAttr() Attr { p := &payload{kind: AttrAtMostOnce}; p.retain(); return Attr{AttrAtMostOnce, p} }
func FPMarkAttr() Attr    { p := &payload{kind: AttrFPMark}; p.retain(); return Attr{AttrFPMark, p} }
func ParallelizableAttr() Attr {
	p := &payload{kind: AttrParallelizable}
	p.retain()
	return Attr{AttrParallelizable, p}
}
func SubscriptAttr(coeffs []int64) Attr {
	p := &payload{kind: AttrSubscript, sub: coeffs}
	p.retain()
	return Attr{AttrSubscript, p}
}
func BasePtrAttr(base *Op) Attr {
	p := &payload{kind: AttrBasePtr, op: base}
	p.retain()
	return Attr{AttrBasePtr, p}
}
func NoStoreAttr() Attr          { p := &payload{kind: AttrNoStore}; p.retain(); return Attr{AttrNoStore, p} }
func RematerializableAttr() Attr { p := &payload{kind: AttrRematerializable}; p.retain(); return Attr{AttrRematerializable, p} }

func (a Attr) Int() int64           { return a.p.i }
func (a Attr) Float() float64       { return a.p.f }
func (a Attr) Str() string          { return a.p.s }
func (a Attr) Strs() []string       { return a.p.strs }
func (a Attr) Ints() []int64        { return a.p.ints }
func (a Attr) Floats() []float64    { return a.p.flts }
func (a Attr) Dims() []int          { return a.p.dims }
func (a Attr) Block() *BasicBlock   { return a.p.blk }
func (a Attr) Op() *Op              { return a.p.op }
func (a Attr) Subscript() []int64   { return a.p.sub }
func (a Attr) RangeLo() int64       { return a.p.lo }
func (a Attr) RangeHi() int64       { return a.p.hi }

// findAttr returns the first attribute of the given kind on o, if any.
func findAttr(attrs []Attr, k AttrKind) (Attr, bool) {
	for _, a := range attrs {
		if a.kind == k {
			return a, true
		}
	}
	return Attr{}, false
}
