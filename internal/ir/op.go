package ir

// Op is the only producer of values. Its "Value" is itself: identity
// for use-def purposes is the Op pointer — there is no standalone value
// object.
type Op struct {
	ID       int
	Kind     Kind
	ResultTy Type
	HasResult bool

	Operands []*Op // ordered SSA operand references
	Attrs    []Attr
	Regions  []*Region

	Block *BasicBlock

	uses map[*Op]bool // reverse edge: consumers of this Op's result

	erased bool
}

// Func returns the function this Op's block belongs to, or nil (e.g. for a
// Global or a not-yet-inserted Op).
func (o *Op) Func() *Function {
	if o.Block == nil {
		return nil
	}
	return o.Block.Func()
}

// Uses returns the set of Ops consuming this Op's result.
func (o *Op) Uses() []*Op {
	out := make([]*Op, 0, len(o.uses))
	for u := range o.uses {
		out = append(out, u)
	}
	return out
}

func (o *Op) HasUses() bool { return len(o.uses) > 0 }

// addUse records that user consumes o's result.
func (o *Op) addUse(user *Op) {
	if o.uses == nil {
		o.uses = make(map[*Op]bool)
	}
	o.uses[user] = true
}

func (o *Op) removeUse(user *Op) {
	delete(o.uses, user)
}

// setOperands replaces o's operand list, updating use-sets of both the old
// and new operands.
func (o *Op) setOperands(operands []*Op) {
	for _, old := range o.Operands {
		if old != nil {
			old.removeUse(o)
		}
	}
	o.Operands = operands
	for _, v := range o.Operands {
		if v != nil {
			v.addUse(o)
		}
	}
}

// ReplaceOperand swaps operand at index i, fixing up use-sets.
func (o *Op) ReplaceOperand(i int, v *Op) {
	old := o.Operands[i]
	if old != nil {
		old.removeUse(o)
	}
	o.Operands[i] = v
	if v != nil {
		v.addUse(o)
	}
}

// ReplaceAllUsesWith rewires every use of o to v and empties o's use-set.
func (o *Op) ReplaceAllUsesWith(v *Op) {
	for user := range o.uses {
		for i, operand := range user.Operands {
			if operand == o {
				user.Operands[i] = v
				if v != nil {
					v.addUse(user)
				}
			}
		}
	}
	o.uses = make(map[*Op]bool)
}

// Attr returns the first attribute of kind k, if present.
func (o *Op) Attr(k AttrKind) (Attr, bool) { return findAttr(o.Attrs, k) }

// MustAttr returns the first attribute of kind k, panicking if absent —
// used where a missing required attribute is a fatal assertion rather
// than a recoverable error.
func (o *Op) MustAttr(k AttrKind) Attr {
	a, ok := o.Attr(k)
	if !ok {
		panic("ir: missing required attribute on " + o.Kind.String())
	}
	return a
}

// Froms returns every AttrFrom attribute on a phi, in operand order.
func (o *Op) Froms() []*BasicBlock {
	var out []*BasicBlock
	for _, a := range o.Attrs {
		if a.kind == AttrFrom {
			out = append(out, a.Block())
		}
	}
	return out
}

func (o *Op) removeAttr(k AttrKind) {
	out := o.Attrs[:0]
	for _, a := range o.Attrs {
		if a.kind == k {
			a.Release()
			continue
		}
		out = append(out, a)
	}
	o.Attrs = out
}

// cloneAttrs deep-clones (ref-bumps) an attribute list for Op.Copy.
func cloneAttrs(attrs []Attr) []Attr {
	out := make([]Attr, len(attrs))
	for i, a := range attrs {
		out[i] = a.Clone()
	}
	return out
}
