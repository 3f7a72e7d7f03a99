package lower

import (
	"github.com/cppnc/cppnc/internal/ast"
	"github.com/cppnc/cppnc/internal/cerr"
	"github.com/cppnc/cppnc/internal/ir"
	"github.com/cppnc/cppnc/internal/mangle"
	"github.com/cppnc/cppnc/internal/types"
)

// pushLoop registers a loop's break/continue targets; popLoop must run on
// every exit path (spec.md §9's scoped-acquisition note).
func (l *Lowerer) pushLoop(breakTo, continueTo ir.LabelID) {
	l.breakTargets = append(l.breakTargets, breakTo)
	l.continueTargets = append(l.continueTargets, continueTo)
}

func (l *Lowerer) popLoop() {
	l.breakTargets = l.breakTargets[:len(l.breakTargets)-1]
	l.continueTargets = l.continueTargets[:len(l.continueTargets)-1]
}

// lowerWhile emits spec.md §4.5's loop shape:
// LoopBegin, Label(start), cond, CondBranch(end), body, Branch(start),
// Label(end), LoopEnd. `continue` re-tests the condition.
func (l *Lowerer) lowerWhile(n *ast.Node) error {
	start := l.b.NewLabel()
	end := l.b.NewLabel()

	l.b.Emit(ir.Instruction{Op: ir.OpLoopBegin, Label: start, Label2: end, Imm: int64(start), Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpLabel, Label: start, Span: n.Span})

	cond, err := l.lowerExpr(n.A)
	if err != nil {
		return err
	}

	l.b.Emit(ir.Instruction{Op: ir.OpConditionalBranch, A: cond, Label: end, Span: n.Span})

	l.pushLoop(end, start)
	err = l.lowerStatement(n.B)
	l.popLoop()

	if err != nil {
		return err
	}

	l.b.Emit(ir.Instruction{Op: ir.OpBranch, Label: start, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpLabel, Label: end, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpLoopEnd, Span: n.Span})

	return nil
}

// lowerFor emits the classic three-clause for; `continue` branches to the
// dedicated increment label (spec.md §4.5).
func (l *Lowerer) lowerFor(n *ast.Node) error {
	l.b.Emit(ir.Instruction{Op: ir.OpScopeBegin, Span: n.Span})
	l.pushScope()

	defer func() {
		l.popScope()
		l.b.Emit(ir.Instruction{Op: ir.OpScopeEnd, Span: n.Span})
	}()

	if n.A != ast.NoHandle {
		if err := l.lowerStatement(n.A); err != nil {
			return err
		}
	}

	start := l.b.NewLabel()
	incr := l.b.NewLabel()
	end := l.b.NewLabel()

	l.b.Emit(ir.Instruction{Op: ir.OpLoopBegin, Label: start, Label2: end, Imm: int64(incr), Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpLabel, Label: start, Span: n.Span})

	if n.B != ast.NoHandle {
		cond, err := l.lowerExpr(n.B)
		if err != nil {
			return err
		}

		l.b.Emit(ir.Instruction{Op: ir.OpConditionalBranch, A: cond, Label: end, Span: n.Span})
	}

	l.pushLoop(end, incr)
	err := l.lowerStatement(n.D)
	l.popLoop()

	if err != nil {
		return err
	}

	l.b.Emit(ir.Instruction{Op: ir.OpLabel, Label: incr, Span: n.Span})

	if n.C != ast.NoHandle {
		if _, err := l.lowerExpr(n.C); err != nil {
			return err
		}
	}

	l.b.Emit(ir.Instruction{Op: ir.OpBranch, Label: start, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpLabel, Label: end, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpLoopEnd, Span: n.Span})

	return nil
}

// lowerDoWhile emits the body before the condition; the trailing
// conditional branch jumps back to the start while the condition holds.
func (l *Lowerer) lowerDoWhile(n *ast.Node) error {
	start := l.b.NewLabel()
	condLabel := l.b.NewLabel()
	end := l.b.NewLabel()

	l.b.Emit(ir.Instruction{Op: ir.OpLoopBegin, Label: start, Label2: end, Imm: int64(condLabel), Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpLabel, Label: start, Span: n.Span})

	l.pushLoop(end, condLabel)
	err := l.lowerStatement(n.B)
	l.popLoop()

	if err != nil {
		return err
	}

	l.b.Emit(ir.Instruction{Op: ir.OpLabel, Label: condLabel, Span: n.Span})

	cond, err := l.lowerExpr(n.A)
	if err != nil {
		return err
	}

	l.b.Emit(ir.Instruction{Op: ir.OpConditionalBranch, A: cond, Label: start, Imm: 1, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpLabel, Label: end, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpLoopEnd, Span: n.Span})

	return nil
}

// lowerRangedFor desugars `for (T x : arr) body` over a sized array into
// the pointer-based traditional form spec.md §4.5 prescribes:
// begin = &arr[0], end = &arr[N], loop while begin != end, x = *begin
// (or x bound to begin for reference bindings), ++begin.
func (l *Lowerer) lowerRangedFor(n *ast.Node) error {
	rangeNode := l.Arena.Get(n.B)
	if rangeNode.Kind != ast.KindIdentifier {
		return cerr.New(cerr.KindCodegen, n.Span, "ranged for over a computed range is not lowered")
	}

	loc, ok := l.lookupLocal(rangeNode.Name)
	if !ok || !loc.typ.IsArray() {
		return cerr.New(cerr.KindCodegen, n.Span, "ranged for requires a local array range")
	}

	elemTy := loc.typ
	elemTy.ArrayDims = nil
	elemSize := l.Types.SizeOf(elemTy)
	count := loc.typ.ArrayDims[0]

	l.b.Emit(ir.Instruction{Op: ir.OpScopeBegin, Span: n.Span})
	l.pushScope()

	defer func() {
		l.popScope()
		l.b.Emit(ir.Instruction{Op: ir.OpScopeEnd, Span: n.Span})
	}()

	ptrTy := elemTy
	ptrTy.Pointers = append([]types.PointerLevel{}, types.PointerLevel{})

	intTy := types.TypeSpecifierNode{Base: types.Int}

	beginName := l.hiddenName("range_begin")
	endName := l.hiddenName("range_end")

	beginVar := l.b.NewTemp()
	l.b.Emit(ir.Instruction{Op: ir.OpVariableDecl, Result: beginVar, Name: beginName, Imm: types.PointerWidth, Span: n.Span})
	l.bindLocal(beginName, beginVar, ptrTy)

	addr0 := l.b.NewTemp()
	l.b.Emit(ir.Instruction{Op: ir.OpArrayElementAddress, Name: rangeNode.Name, A: ir.ImmInt(intTy, 32, 0), Imm: int64(elemSize), Result: addr0, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpStoreVar, A: ir.TempValue(ptrTy, 64, addr0), Name: beginName, Span: n.Span})

	endVar := l.b.NewTemp()
	l.b.Emit(ir.Instruction{Op: ir.OpVariableDecl, Result: endVar, Name: endName, Imm: types.PointerWidth, Span: n.Span})
	l.bindLocal(endName, endVar, ptrTy)

	addrEnd := l.b.NewTemp()
	l.b.Emit(ir.Instruction{Op: ir.OpArrayElementAddress, Name: rangeNode.Name, A: ir.ImmInt(intTy, 32, uint64(count)), Imm: int64(elemSize), Result: addrEnd, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpStoreVar, A: ir.TempValue(ptrTy, 64, addrEnd), Name: endName, Span: n.Span})

	start := l.b.NewLabel()
	incr := l.b.NewLabel()
	end := l.b.NewLabel()

	l.b.Emit(ir.Instruction{Op: ir.OpLoopBegin, Label: start, Label2: end, Imm: int64(incr), Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpLabel, Label: start, Span: n.Span})

	// begin != end
	bt := l.b.NewTemp()
	l.b.Emit(ir.Instruction{Op: ir.OpLoadVar, Result: bt, Name: beginName, Span: n.Span})

	et := l.b.NewTemp()
	l.b.Emit(ir.Instruction{Op: ir.OpLoadVar, Result: et, Name: endName, Span: n.Span})

	ct := l.b.NewTemp()
	l.b.Emit(ir.Instruction{Op: ir.OpCmpNeI, A: ir.TempValue(ptrTy, 64, bt), B: ir.TempValue(ptrTy, 64, et), Result: ct, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpConditionalBranch, A: ir.TempValue(types.TypeSpecifierNode{Base: types.Bool}, 8, ct), Label: end, Span: n.Span})

	// Loop variable: value bindings copy *begin; reference bindings alias
	// the element through the begin pointer.
	loopVar := l.b.NewTemp()
	l.b.Emit(ir.Instruction{Op: ir.OpVariableDecl, Result: loopVar, Name: n.Name, Imm: int64(types.PointerWidth), Span: n.Span})

	cur := l.b.NewTemp()
	l.b.Emit(ir.Instruction{Op: ir.OpLoadVar, Result: cur, Name: beginName, Span: n.Span})

	if n.Type.IsReference() {
		l.b.Emit(ir.Instruction{Op: ir.OpStoreVar, A: ir.TempValue(ptrTy, 64, cur), Name: n.Name, Span: n.Span})
		l.bindRef(n.Name, loopVar, elemTy)
	} else {
		dv := l.b.NewTemp()
		l.b.Emit(ir.Instruction{Op: ir.OpDeref, A: ir.TempValue(ptrTy, 64, cur), Imm: int64(elemSize), Result: dv, Span: n.Span})
		l.b.Emit(ir.Instruction{Op: ir.OpStoreVar, A: ir.TempValue(elemTy, elemSize*8, dv), Name: n.Name, Span: n.Span})
		l.bindLocal(n.Name, loopVar, elemTy)
	}

	l.pushLoop(end, incr)
	err := l.lowerStatement(n.D)
	l.popLoop()

	if err != nil {
		return err
	}

	// ++begin
	l.b.Emit(ir.Instruction{Op: ir.OpLabel, Label: incr, Span: n.Span})

	pt := l.b.NewTemp()
	l.b.Emit(ir.Instruction{Op: ir.OpLoadVar, Result: pt, Name: beginName, Span: n.Span})

	nt := l.b.NewTemp()
	l.b.Emit(ir.Instruction{Op: ir.OpAddI, A: ir.TempValue(ptrTy, 64, pt), B: ir.ImmInt(intTy, 64, uint64(elemSize)), Result: nt, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpStoreVar, A: ir.TempValue(ptrTy, 64, nt), Name: beginName, Span: n.Span})

	l.b.Emit(ir.Instruction{Op: ir.OpBranch, Label: start, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpLabel, Label: end, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpLoopEnd, Span: n.Span})

	return nil
}

// lowerSwitch emits spec.md §4.5's linear comparison chain: one Equal +
// ConditionalBranch per case, a branch to default (or end) after the
// chain, then the case/default blocks in source order with fall-through
// preserved. The whole construct brackets in LoopBegin/LoopEnd so
// `break` resolves to the switch end.
func (l *Lowerer) lowerSwitch(n *ast.Node) error {
	cond, err := l.lowerExpr(n.A)
	if err != nil {
		return err
	}

	end := l.b.NewLabel()

	l.b.Emit(ir.Instruction{Op: ir.OpLoopBegin, Label: end, Label2: end, Imm: int64(end), Span: n.Span})

	// First pass: allocate a label per case/default marker.
	caseLabels := map[int]ir.LabelID{}
	defaultLabel := ir.LabelID(0)
	hasDefault := false

	for i, item := range n.List {
		it := l.Arena.Get(item)

		switch it.Kind {
		case ast.KindCaseLabel:
			caseLabels[i] = l.b.NewLabel()
		case ast.KindDefaultLabel:
			defaultLabel = l.b.NewLabel()
			hasDefault = true
		}
	}

	// Comparison chain.
	for i, item := range n.List {
		it := l.Arena.Get(item)
		if it.Kind != ast.KindCaseLabel {
			continue
		}

		caseVal, err := l.lowerExpr(it.A)
		if err != nil {
			return err
		}

		t := l.b.NewTemp()
		l.b.Emit(ir.Instruction{Op: ir.OpCmpEqI, A: cond, B: caseVal, Result: t, Span: it.Span})
		l.b.Emit(ir.Instruction{
			Op: ir.OpConditionalBranch, A: ir.TempValue(types.TypeSpecifierNode{Base: types.Bool}, 8, t),
			Label: caseLabels[i], Imm: 1, Span: it.Span,
		})
	}

	if hasDefault {
		l.b.Emit(ir.Instruction{Op: ir.OpBranch, Label: defaultLabel, Span: n.Span})
	} else {
		l.b.Emit(ir.Instruction{Op: ir.OpBranch, Label: end, Span: n.Span})
	}

	// Body emission, fall-through preserved (no implicit break).
	l.pushLoop(end, 0)

	// continue inside a switch belongs to the enclosing loop, so drop the
	// switch's own (meaningless) continue target immediately.
	l.continueTargets = l.continueTargets[:len(l.continueTargets)-1]

	defer func() {
		l.breakTargets = l.breakTargets[:len(l.breakTargets)-1]
	}()

	for i, item := range n.List {
		it := l.Arena.Get(item)

		switch it.Kind {
		case ast.KindCaseLabel:
			l.b.Emit(ir.Instruction{Op: ir.OpLabel, Label: caseLabels[i], Span: it.Span})
		case ast.KindDefaultLabel:
			l.b.Emit(ir.Instruction{Op: ir.OpLabel, Label: defaultLabel, Span: it.Span})
		default:
			if err := l.lowerStatement(item); err != nil {
				return err
			}
		}
	}

	l.b.Emit(ir.Instruction{Op: ir.OpLabel, Label: end, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpLoopEnd, Span: n.Span})

	return nil
}

// typeinfoSymbol names the Itanium type_info object for a class type,
// referenced by throw sites and the LSDA type table (spec.md §4.8).
func (l *Lowerer) typeinfoSymbol(idx types.Index) string {
	return mangle.TypeInfoSymbol(l.Strings.View(l.Types.Get(idx).Name))
}

// lowerTry emits spec.md §4.5's try/catch shape: TryBegin(handlers),
// body, TryEnd, Branch(end), Label(handlers), then per catch clause a
// CatchBegin bracketing the caught-variable binding and handler body,
// CatchEnd, Branch(end).
func (l *Lowerer) lowerTry(n *ast.Node) error {
	if l.NoExceptions {
		return cerr.New(cerr.KindCodegen, n.Span, "try/catch used with exceptions disabled")
	}

	handlers := l.b.NewLabel()
	end := l.b.NewLabel()

	l.b.Emit(ir.Instruction{Op: ir.OpTryBegin, Label: handlers, Span: n.Span})

	if err := l.lowerStatement(n.A); err != nil {
		return err
	}

	l.b.Emit(ir.Instruction{Op: ir.OpTryEnd, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpBranch, Label: end, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpLabel, Label: handlers, Span: n.Span})

	for _, ch := range n.List {
		c := l.Arena.Get(ch)

		instr := ir.Instruction{Op: ir.OpCatchBegin, Span: c.Span}

		exc := l.b.NewTemp()
		instr.Result = exc

		if c.Bool {
			instr.Imm = 1 // catch-all
		} else {
			instr.TypeIndex = c.Type.Index
			if c.Type.Index != types.Invalid {
				instr.Name = l.Strings.Intern(l.typeinfoSymbol(c.Type.Index))
			}
		}

		l.b.Emit(instr)

		l.b.Emit(ir.Instruction{Op: ir.OpScopeBegin, Span: c.Span})
		l.pushScope()

		if c.Name != 0 {
			// The caught object is bound by pointer: the adjusted exception
			// pointer from the runtime lands in the variable's slot, and
			// member/scalar access dereferences it.
			v := l.b.NewTemp()
			l.b.Emit(ir.Instruction{Op: ir.OpVariableDecl, Result: v, Name: c.Name, TypeIndex: c.Type.Index, Imm: types.PointerWidth, Span: c.Span})
			l.b.Emit(ir.Instruction{Op: ir.OpStoreVar, A: ir.TempValue(c.Type, 64, exc), Name: c.Name, Span: c.Span})
			l.bindRef(c.Name, v, c.Type)
		}

		err := l.lowerStatement(c.B)

		l.popScope()

		if err != nil {
			return err
		}

		l.b.Emit(ir.Instruction{Op: ir.OpScopeEnd, Span: c.Span})
		l.b.Emit(ir.Instruction{Op: ir.OpCatchEnd, Span: c.Span})
		l.b.Emit(ir.Instruction{Op: ir.OpBranch, Label: end, Span: c.Span})
	}

	l.b.Emit(ir.Instruction{Op: ir.OpLabel, Label: end, Span: n.Span})

	return nil
}

// lowerThrow evaluates the thrown value and emits Throw with its type
// index, size, and type_info symbol; `throw;` re-raises the in-flight
// exception (spec.md §4.5). With -fno-exceptions a throw lowers to a
// call to abort.
func (l *Lowerer) lowerThrow(n *ast.Node) error {
	if l.NoExceptions {
		t := l.b.NewTemp()
		l.b.Emit(ir.Instruction{Op: ir.OpCall, Name: l.Strings.Intern("abort"), Result: t, Span: n.Span})

		return nil
	}

	if n.A == ast.NoHandle {
		l.b.Emit(ir.Instruction{Op: ir.OpRethrow, Span: n.Span})
		return nil
	}

	v, err := l.lowerExpr(n.A)
	if err != nil {
		return err
	}

	instr := ir.Instruction{Op: ir.OpThrow, A: v, TypeIndex: v.Type.Index, Span: n.Span}

	size := l.Types.SizeOf(v.Type)
	if size <= 0 {
		size = types.PointerWidth
	}

	instr.Imm = int64(size)

	if v.Type.Index != types.Invalid {
		instr.Name = l.Strings.Intern(l.typeinfoSymbol(v.Type.Index))
	} else {
		instr.Name = l.Strings.Intern(mangle.TypeInfoSymbolFundamental(v.Type.Base))
	}

	l.b.Emit(instr)

	return nil
}

// lowerStructuredBinding decomposes `auto [a, b, ...] = init` using the
// array or aggregate strategy (spec.md §4.5; the tuple-like protocol
// needs user template specializations outside this subset). The
// initializer must name a local array or aggregate variable.
func (l *Lowerer) lowerStructuredBinding(n *ast.Node) error {
	src := l.Arena.Get(n.A)
	if src.Kind != ast.KindIdentifier {
		return cerr.New(cerr.KindCodegen, n.Span, "structured binding requires a named source in this subset")
	}

	loc, ok := l.lookupLocal(src.Name)
	if !ok {
		return cerr.New(cerr.KindCodegen, n.Span, "%q is not a local or parameter", l.Strings.View(src.Name))
	}

	byRef := n.Type.IsReference()

	switch {
	case loc.typ.IsArray():
		if loc.typ.ArrayDims[0] != len(n.List) {
			return cerr.New(cerr.KindCodegen, n.Span, "structured binding count %d does not match array length %d", len(n.List), loc.typ.ArrayDims[0])
		}

		elemTy := loc.typ
		elemTy.ArrayDims = nil
		elemSize := l.Types.SizeOf(elemTy)
		intTy := types.TypeSpecifierNode{Base: types.Int}

		for i, nameNode := range n.List {
			name := l.Arena.Get(nameNode).Name
			v := l.b.NewTemp()
			l.b.Emit(ir.Instruction{Op: ir.OpVariableDecl, Result: v, Name: name, Imm: types.PointerWidth, Span: n.Span})
			l.b.Emit(ir.Instruction{Op: ir.OpStructuredBindingBind, Name: name, Offset: i, Span: n.Span})

			if byRef {
				at := l.b.NewTemp()
				l.b.Emit(ir.Instruction{Op: ir.OpArrayElementAddress, Name: src.Name, A: ir.ImmInt(intTy, 32, uint64(i)), Imm: int64(elemSize), Result: at, Span: n.Span})
				l.b.Emit(ir.Instruction{Op: ir.OpStoreVar, A: ir.TempValue(elemTy, 64, at), Name: name, Span: n.Span})
				l.bindRef(name, v, elemTy)
			} else {
				at := l.b.NewTemp()
				l.b.Emit(ir.Instruction{Op: ir.OpArrayAccess, Name: src.Name, A: ir.ImmInt(intTy, 32, uint64(i)), Imm: int64(elemSize), Result: at, Span: n.Span})
				l.b.Emit(ir.Instruction{Op: ir.OpStoreVar, A: ir.TempValue(elemTy, elemSize*8, at), Name: name, Span: n.Span})
				l.bindLocal(name, v, elemTy)
			}
		}

		return nil
	case loc.typ.Index != types.Invalid && l.Types.Get(loc.typ.Index).Struct != nil:
		info := l.Types.Get(loc.typ.Index).Struct
		if len(info.Members) != len(n.List) {
			return cerr.New(cerr.KindCodegen, n.Span, "structured binding count %d does not match member count %d", len(n.List), len(info.Members))
		}

		for i, nameNode := range n.List {
			name := l.Arena.Get(nameNode).Name
			m := info.Members[i]

			v := l.b.NewTemp()
			l.b.Emit(ir.Instruction{Op: ir.OpVariableDecl, Result: v, Name: name, Imm: types.PointerWidth, Span: n.Span})
			l.b.Emit(ir.Instruction{Op: ir.OpStructuredBindingBind, Name: name, Offset: i, Span: n.Span})

			if byRef {
				at := l.b.NewTemp()
				l.b.Emit(ir.Instruction{Op: ir.OpMemberAddress, Name: src.Name, Offset: m.Offset, Result: at, Span: n.Span})
				l.b.Emit(ir.Instruction{Op: ir.OpStoreVar, A: ir.TempValue(m.Type, 64, at), Name: name, Span: n.Span})
				l.bindRef(name, v, m.Type)
			} else {
				mv := l.b.NewTemp()
				l.b.Emit(ir.Instruction{
					Op: ir.OpMemberLoad, Name: src.Name, Offset: m.Offset, Result: mv,
					A: ir.TypedValue{Type: m.Type, SizeBits: m.Size * 8}, Span: n.Span,
				})
				l.b.Emit(ir.Instruction{Op: ir.OpStoreVar, A: ir.TempValue(m.Type, m.Size*8, mv), Name: name, Span: n.Span})
				l.bindLocal(name, v, m.Type)
			}
		}

		return nil
	default:
		return cerr.New(cerr.KindCodegen, n.Span, "structured binding source is neither an array nor an aggregate")
	}
}
