// Package codegen turns one internal/ir function into x86-64 machine
// code plus the symbol/relocation records internal/objectfile needs to
// link it (spec.md §4.6): a straightforward non-optimizing translation,
// one RBP-relative stack slot per temporary/variable (aggregates get
// slots of their full size), System V integer argument registers on
// entry, PC-relative call relocations for every callee, and Itanium-ABI
// __cxa_* call sequences for throw/catch with the try-region records the
// LSDA encoder consumes.
//
// Instruction bytes are hand-encoded via encoding/binary rather than an
// assembler dependency: codegen builds up a flat []byte buffer the same
// way internal/objectfile builds section payloads, recording fixups to
// patch once every label's offset is known.
package codegen

import (
	"encoding/binary"

	"github.com/cppnc/cppnc/internal/cerr"
	"github.com/cppnc/cppnc/internal/codeview"
	"github.com/cppnc/cppnc/internal/dwarfcfi"
	"github.com/cppnc/cppnc/internal/intern"
	"github.com/cppnc/cppnc/internal/ir"
	"github.com/cppnc/cppnc/internal/mangle"
	"github.com/cppnc/cppnc/internal/objectfile"
	"github.com/cppnc/cppnc/internal/position"
	"github.com/cppnc/cppnc/internal/types"
)

// Target selects the personality routine and mangling convention
// codegen pairs a function with; the instruction encoding itself (the
// x86-64 System V integer calling convention) is shared across both
// (spec.md §4.6's scenarios never exercise Windows x64's register/stack
// convention differences).
type Target int

const (
	TargetELF Target = iota
	TargetCOFF
)

// argRegs is the System V AMD64 integer argument register order; codegen
// spills each into its parameter's stack slot on entry.
var argRegs = [...]byte{7 /*rdi*/, 6 /*rsi*/, 2 /*rdx*/, 1 /*rcx*/, 8 /*r8*/, 9 /*r9*/}

// Result is one compiled function: its machine code, the relocations it
// needs against other symbols, and the CodeView/DWARF debug metadata
// describing it.
type Result struct {
	Name              string
	MangledName       string
	Code              []byte
	Relocations       []objectfile.Relocation
	FrameSize         int
	CV                codeview.Function
	CVSignature       []uint32 // CodeView primitive type index per parameter
	CVReturn          uint32
	TryRegions        []dwarfcfi.TryRegion
	PersonalitySymbol string
}

// cvPrimitive maps a base type to its CodeView primitive type index for
// the .debug$T LF_ARGLIST/LF_PROCEDURE records (spec.md §4.6 item 8).
var cvPrimitive = map[types.Kind]uint32{
	types.Void: 0x0003, types.Bool: 0x0030,
	types.Char: 0x0070, types.SignedChar: 0x0010, types.UnsignedChar: 0x0020,
	types.Short: 0x0011, types.UnsignedShort: 0x0021,
	types.Int: 0x0074, types.UnsignedInt: 0x0075,
	types.Long: 0x0013, types.UnsignedLong: 0x0023,
	types.LongLong: 0x0076, types.UnsignedLongLong: 0x0077,
	types.Float: 0x0040, types.Double: 0x0041, types.LongDouble: 0x0042,
}

func cvTypeIndex(t types.TypeSpecifierNode) uint32 {
	if ix, ok := cvPrimitive[t.Base]; ok {
		if t.IsPointer() || t.IsReference() {
			return ix | 0x0600 // 64-bit near pointer mode
		}

		return ix
	}

	return 0x0074
}

func personalityFor(t Target) string {
	if t == TargetCOFF {
		return dwarfcfi.PersonalityCOFF
	}

	return dwarfcfi.PersonalityELF
}

type fixup struct {
	pos   int // offset of the 4-byte rel32 field
	label ir.LabelID
}

// symFixup is a 4-byte PC-relative reference to an external symbol
// (call target, global variable, type_info thunk).
type symFixup struct {
	pos    int
	symbol string
}

// tryState tracks one TryBegin..TryEnd extent while its handlers are
// still being emitted.
type tryState struct {
	start int
	end   int
}

// fn holds per-function compilation state.
type fn struct {
	strs *intern.Interner

	code []byte

	tempSlot map[ir.TempVar]int
	varSlot  map[intern.Handle]int
	nextSlot int

	labelOffset map[ir.LabelID]int
	fixups      []fixup
	symRefs     []symFixup

	openTries []tryState
	regions   []dwarfcfi.TryRegion
}

// Compile lowers one internal/ir function to machine code for target,
// mangling its name with scheme from its full signature (spec.md §4.6,
// §8's mangling-bijection invariant needs the parameter types in the
// name).
func Compile(strs *intern.Interner, f *ir.Function, scheme mangle.Scheme, target Target) (*Result, error) {
	c := &fn{
		strs:        strs,
		tempSlot:    map[ir.TempVar]int{},
		varSlot:     map[intern.Handle]int{},
		labelOffset: map[ir.LabelID]int{},
	}

	c.prologue()

	for i := range f.Params {
		slot := c.allocTemp(ir.TempVar(i))
		if i < len(argRegs) {
			c.emitStoreRegToSlot(argRegs[i], slot, 8)
		}
	}

	for _, instr := range f.Instrs {
		if err := c.lower(instr); err != nil {
			return nil, err
		}
	}

	// Fall off the end with an implicit `return;` for void functions, so a
	// body with no trailing return still ends in a valid epilogue.
	c.epilogue()

	for _, fx := range c.fixups {
		labelPos, ok := c.labelOffset[fx.label]
		if !ok {
			return nil, cerr.New(cerr.KindCodegen, position.Span{}, "branch to unplaced label %d", fx.label)
		}

		rel := int32(labelPos - (fx.pos + 4))
		binary.LittleEndian.PutUint32(c.code[fx.pos:], uint32(rel))
	}

	frameSize := alignUp(c.nextSlot, 16)
	binary.LittleEndian.PutUint32(c.code[7:], uint32(frameSize))

	mf := mangle.Function{Name: strs.View(f.Name), Return: f.Return}
	for _, p := range f.Params {
		mf.Params = append(mf.Params, p.Type)
	}

	// main keeps its C linkage spelling under both schemes.
	mangled := mf.Name
	if mf.Name != "main" {
		mangled = mangle.Mangle(scheme, mf)
	}

	var relocs []objectfile.Relocation

	for _, sr := range c.symRefs {
		relocs = append(relocs, objectfile.Relocation{
			Offset: sr.pos,
			Symbol: sr.symbol,
			Type:   objectfile.RelPC32,
			Addend: -4,
		})
	}

	cvFn := codeview.Function{MangledName: mangled, Size: uint32(len(c.code))}
	for name, slot := range c.varSlot {
		cvFn.Locals = append(cvFn.Locals, codeview.Local{Name: strs.View(name), FrameOffset: int32(-slot)})
	}

	sig := make([]uint32, len(f.Params))
	for i, p := range f.Params {
		sig[i] = cvTypeIndex(p.Type)
	}

	return &Result{
		Name:              strs.View(f.Name),
		MangledName:       mangled,
		Code:              c.code,
		Relocations:       relocs,
		FrameSize:         frameSize,
		CV:                cvFn,
		CVSignature:       sig,
		CVReturn:          cvTypeIndex(f.Return),
		TryRegions:        c.regions,
		PersonalitySymbol: personalityFor(target),
	}, nil
}

func alignUp(v, to int) int { return (v + to - 1) &^ (to - 1) }

func (c *fn) emit(b ...byte) { c.code = append(c.code, b...) }

func (c *fn) emitU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	c.emit(b[:]...)
}

func (c *fn) emitU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	c.emit(b[:]...)
}

// prologue emits `push rbp; mov rbp, rsp`. The frame-size `sub rsp, imm32`
// is patched in once every slot has been allocated, since codegen learns
// the slot count while walking the body; a placeholder reservation is
// emitted here and overwritten in place (both encodings are the fixed
// 7-byte `48 81 EC imm32` form, so the patch never changes the layout).
func (c *fn) prologue() {
	c.emit(0x55)             // push rbp
	c.emit(0x48, 0x89, 0xE5) // mov rbp, rsp
	c.emit(0x48, 0x81, 0xEC) // sub rsp, imm32
	c.emitU32(0)             // placeholder, patched once the frame size is known
}

func (c *fn) epilogue() {
	c.emit(0xC9) // leave
	c.emit(0xC3) // ret
}

// allocTemp reserves an 8-byte slot for a temporary.
func (c *fn) allocTemp(t ir.TempVar) int {
	return c.allocSized(t, 8)
}

// allocSized reserves a slot of at least size bytes (rounded to 8) for
// t; aggregates and arrays get their full extent (spec.md §4.6's
// stack-layout pre-pass, folded into the single walk here).
func (c *fn) allocSized(t ir.TempVar, size int) int {
	if s, ok := c.tempSlot[t]; ok {
		return s
	}

	c.nextSlot += alignUp(size, 8)
	c.tempSlot[t] = c.nextSlot

	return c.nextSlot
}

func (c *fn) allocVar(name intern.Handle, slot int) {
	c.varSlot[name] = slot
}

func (c *fn) varSlotOf(name intern.Handle) (int, bool) {
	s, ok := c.varSlot[name]
	return s, ok
}

// --- register <-> memory moves ---

// rexW builds a REX prefix with W always set (64-bit operand), R set
// when reg is an extended register (r8-r15) used in the ModRM reg field,
// and B set when it's used in the rm/opcode field instead.
func rexW(regExt, rmExt bool) byte {
	b := byte(0x48)

	if regExt {
		b |= 0x04
	}

	if rmExt {
		b |= 0x01
	}

	return b
}

// modrmDisp32 builds a mod=10 (disp32) ModRM byte.
func modrmDisp32(reg, rm byte) byte { return 0x80 | (reg&7)<<3 | (rm & 7) }

const (
	regRAX byte = 0
	regRCX byte = 1
	regRDX byte = 2
	regRBP byte = 5
	regRSI byte = 6
	regRDI byte = 7
)

// emitStoreRegToSlot stores reg's low `size` bytes at [rbp-slot].
func (c *fn) emitStoreRegToSlot(reg byte, slot, size int) {
	c.emitStoreRegToMem(reg, regRBP, -slot, size)
}

// emitLoadSlotToReg loads the full 8-byte slot at [rbp-slot] into reg.
func (c *fn) emitLoadSlotToReg(slot int, reg byte) {
	c.emitLoadMemToReg(regRBP, -slot, reg, 8)
}

// emitStoreRegToMem stores reg's low `size` bytes at [base+disp].
// size is 1, 2, 4, or 8.
func (c *fn) emitStoreRegToMem(reg, base byte, disp, size int) {
	switch size {
	case 1:
		c.emit(0x88, modrmDisp32(reg, base))
	case 2:
		c.emit(0x66, 0x89, modrmDisp32(reg, base))
	case 4:
		c.emit(0x89, modrmDisp32(reg, base))
	default:
		c.emit(rexW(reg >= 8, base >= 8), 0x89, modrmDisp32(reg, base))
	}

	c.emitU32(uint32(int32(disp)))
}

// emitLoadMemToReg loads `size` bytes at [base+disp] into reg,
// zero-extending narrow loads.
func (c *fn) emitLoadMemToReg(base byte, disp int, reg byte, size int) {
	switch size {
	case 1:
		c.emit(0x48, 0x0F, 0xB6, modrmDisp32(reg, base)) // movzx reg, byte
	case 2:
		c.emit(0x48, 0x0F, 0xB7, modrmDisp32(reg, base)) // movzx reg, word
	case 4:
		c.emit(0x8B, modrmDisp32(reg, base)) // mov reg32 (zero-extends)
	default:
		c.emit(rexW(reg >= 8, base >= 8), 0x8B, modrmDisp32(reg, base))
	}

	c.emitU32(uint32(int32(disp)))
}

// emitLea computes base+disp into reg.
func (c *fn) emitLea(base byte, disp int, reg byte) {
	c.emit(rexW(reg >= 8, base >= 8), 0x8D, modrmDisp32(reg, base))
	c.emitU32(uint32(int32(disp)))
}

func (c *fn) loadValueToReg(v ir.TypedValue, reg byte) error {
	switch v.Value.Kind {
	case ir.ValueImmInt:
		// movabs reg, imm64 (REX.W B8+(reg&7) with REX.B when reg is r8-r15, imm64)
		c.emit(rexW(false, reg >= 8), 0xB8+(reg&7))
		c.emitU64(v.Value.Int)
	case ir.ValueTemp:
		slot := c.allocTemp(v.Value.Temp)
		c.emitLoadSlotToReg(slot, reg)
	case ir.ValueNone:
		// void-typed operand (e.g. a bare `return;`): nothing to load.
	default:
		return cerr.New(cerr.KindCodegen, position.Span{}, "value kind %d not supported by codegen yet", v.Value.Kind)
	}

	return nil
}

// callSymbol emits `call rel32` against a named external.
func (c *fn) callSymbol(name string) {
	c.emit(0xE8)
	c.symRefs = append(c.symRefs, symFixup{pos: len(c.code), symbol: name})
	c.emitU32(0)
}

// sizeOrDefault returns instr.Imm as a byte count, defaulting to 8.
func sizeOrDefault(imm int64) int {
	switch imm {
	case 1, 2, 4, 8:
		return int(imm)
	default:
		return 8
	}
}

// lower encodes one IR instruction.
func (c *fn) lower(instr ir.Instruction) error {
	switch instr.Op {
	case ir.OpScopeBegin, ir.OpScopeEnd, ir.OpLoopBegin, ir.OpLoopEnd, ir.OpStructuredBindingBind:
		// Structural markers; the stack layout is flat per function.
		return nil
	case ir.OpLabel:
		c.labelOffset[instr.Label] = len(c.code)
		return nil
	case ir.OpBranch, ir.OpBreak, ir.OpContinue:
		c.emit(0xE9) // jmp rel32
		c.fixups = append(c.fixups, fixup{pos: len(c.code), label: instr.Label})
		c.emitU32(0)

		return nil
	case ir.OpConditionalBranch:
		if err := c.loadValueToReg(instr.A, regRAX); err != nil {
			return err
		}

		c.emit(0x48, 0x85, 0xC0) // test rax, rax

		if instr.Imm == 1 {
			c.emit(0x0F, 0x85) // jnz rel32 (branch when condition holds)
		} else {
			c.emit(0x0F, 0x84) // jz rel32 (branch when condition is false)
		}

		c.fixups = append(c.fixups, fixup{pos: len(c.code), label: instr.Label})
		c.emitU32(0)

		return nil
	case ir.OpVariableDecl:
		size := 8
		if instr.Imm > 0 {
			size = int(instr.Imm)
		}

		slot := c.allocSized(instr.Result, size)
		c.allocVar(instr.Name, slot)

		return nil
	case ir.OpStoreVar:
		if err := c.loadValueToReg(instr.A, regRAX); err != nil {
			return err
		}

		slot, ok := c.varSlotOf(instr.Name)
		if !ok {
			return cerr.New(cerr.KindCodegen, instr.Span, "store to undeclared variable %q", c.strs.View(instr.Name))
		}

		c.emitStoreRegToSlot(regRAX, slot, 8)

		return nil
	case ir.OpLoadVar:
		if instr.Imm == 1 {
			// Global: RIP-relative load through the variable's symbol.
			c.emit(0x48, 0x8B, 0x05) // mov rax, [rip+rel32]
			c.symRefs = append(c.symRefs, symFixup{pos: len(c.code), symbol: c.strs.View(instr.Name)})
			c.emitU32(0)
			c.emitStoreRegToSlot(regRAX, c.allocTemp(instr.Result), 8)

			return nil
		}

		slot, ok := c.varSlotOf(instr.Name)
		if !ok {
			return cerr.New(cerr.KindCodegen, instr.Span, "load of undeclared variable %q", c.strs.View(instr.Name))
		}

		c.emitLoadSlotToReg(slot, regRAX)
		c.emitStoreRegToSlot(regRAX, c.allocTemp(instr.Result), 8)

		return nil
	case ir.OpMove, ir.OpStaticCast, ir.OpReinterpretCast:
		return c.lowerMoveOrCast(instr)
	case ir.OpAddrOf:
		slot, ok := c.varSlotOf(instr.Name)
		if !ok {
			return cerr.New(cerr.KindCodegen, instr.Span, "address of undeclared variable %q", c.strs.View(instr.Name))
		}

		c.emitLea(regRBP, -slot, regRAX)
		c.emitStoreRegToSlot(regRAX, c.allocTemp(instr.Result), 8)

		return nil
	case ir.OpDeref:
		if err := c.loadValueToReg(instr.A, regRAX); err != nil {
			return err
		}

		c.emitLoadMemToReg(regRAX, 0, regRAX, sizeOrDefault(instr.Imm))
		c.emitStoreRegToSlot(regRAX, c.allocTemp(instr.Result), 8)

		return nil
	case ir.OpMemberLoad:
		return c.lowerMemberLoad(instr)
	case ir.OpMemberAddress:
		slot, ok := c.varSlotOf(instr.Name)
		if !ok {
			return cerr.New(cerr.KindCodegen, instr.Span, "member address of undeclared variable %q", c.strs.View(instr.Name))
		}

		c.emitLea(regRBP, instr.Offset-slot, regRAX)
		c.emitStoreRegToSlot(regRAX, c.allocTemp(instr.Result), 8)

		return nil
	case ir.OpMemberStore:
		return c.lowerMemberStore(instr)
	case ir.OpArrayAccess, ir.OpArrayElementAddress:
		return c.lowerArrayAccess(instr)
	case ir.OpArrayStore:
		return c.lowerArrayStore(instr)
	case ir.OpReturn:
		if instr.A.Value.Kind != ir.ValueNone {
			if err := c.loadValueToReg(instr.A, regRAX); err != nil {
				return err
			}
		}

		c.epilogue()

		return nil
	case ir.OpCall:
		return c.lowerCall(instr)
	case ir.OpTryBegin, ir.OpTryEnd, ir.OpCatchBegin, ir.OpCatchEnd, ir.OpThrow, ir.OpRethrow:
		return c.lowerEH(instr)
	case ir.OpNeg, ir.OpBitNot, ir.OpLogNot:
		return c.lowerUnary(instr)
	default:
		return c.lowerBinaryArith(instr)
	}
}

// lowerMoveOrCast copies a value into the result slot. Narrowing casts
// zero-extend through the sub-register so the slot never carries stale
// high bits.
func (c *fn) lowerMoveOrCast(instr ir.Instruction) error {
	if err := c.loadValueToReg(instr.A, regRAX); err != nil {
		return err
	}

	if instr.Op != ir.OpMove {
		switch instr.Imm {
		case 1:
			c.emit(0x48, 0x0F, 0xB6, 0xC0) // movzx rax, al
		case 2:
			c.emit(0x48, 0x0F, 0xB7, 0xC0) // movzx rax, ax
		case 4:
			c.emit(0x89, 0xC0) // mov eax, eax (zero-extends)
		}
	}

	c.emitStoreRegToSlot(regRAX, c.allocTemp(instr.Result), 8)

	return nil
}

func (c *fn) lowerMemberLoad(instr ir.Instruction) error {
	slot, ok := c.varSlotOf(instr.Name)
	if !ok {
		return cerr.New(cerr.KindCodegen, instr.Span, "member load from undeclared variable %q", c.strs.View(instr.Name))
	}

	size := 8
	if instr.A.SizeBits > 0 {
		size = instr.A.SizeBits / 8
	}

	if instr.Imm == 1 {
		// Base slot holds a pointer (reference binding / -> access).
		c.emitLoadSlotToReg(slot, regRCX)
		c.emitLoadMemToReg(regRCX, instr.Offset, regRAX, size)
	} else {
		c.emitLoadMemToReg(regRBP, instr.Offset-slot, regRAX, size)
	}

	c.emitStoreRegToSlot(regRAX, c.allocTemp(instr.Result), 8)

	return nil
}

func (c *fn) lowerMemberStore(instr ir.Instruction) error {
	size := 8
	if instr.A.SizeBits > 0 {
		size = instr.A.SizeBits / 8
	}

	if instr.Imm == 2 {
		// Store through a computed pointer operand (`*p = v`).
		if err := c.loadValueToReg(instr.B, regRCX); err != nil {
			return err
		}

		if err := c.loadValueToReg(instr.A, regRAX); err != nil {
			return err
		}

		c.emitStoreRegToMem(regRAX, regRCX, instr.Offset, size)

		return nil
	}

	slot, ok := c.varSlotOf(instr.Name)
	if !ok {
		return cerr.New(cerr.KindCodegen, instr.Span, "member store to undeclared variable %q", c.strs.View(instr.Name))
	}

	if err := c.loadValueToReg(instr.A, regRAX); err != nil {
		return err
	}

	if instr.Imm == 1 {
		c.emitLoadSlotToReg(slot, regRCX)
		c.emitStoreRegToMem(regRAX, regRCX, instr.Offset, size)
	} else {
		c.emitStoreRegToMem(regRAX, regRBP, instr.Offset-slot, size)
	}

	return nil
}

// elementAddressToRAX computes &name[index] into rax.
func (c *fn) elementAddressToRAX(instr ir.Instruction) error {
	slot, ok := c.varSlotOf(instr.Name)
	if !ok {
		return cerr.New(cerr.KindCodegen, instr.Span, "array access to undeclared variable %q", c.strs.View(instr.Name))
	}

	if err := c.loadValueToReg(instr.A, regRAX); err != nil {
		return err
	}

	elemSize := sizeOrDefault(instr.Imm)

	// imul rax, rax, imm32
	c.emit(0x48, 0x69, 0xC0)
	c.emitU32(uint32(elemSize))

	c.emitLea(regRBP, -slot, regRCX)
	c.emit(0x48, 0x01, 0xC8) // add rax, rcx

	return nil
}

func (c *fn) lowerArrayAccess(instr ir.Instruction) error {
	if err := c.elementAddressToRAX(instr); err != nil {
		return err
	}

	if instr.Op == ir.OpArrayAccess {
		c.emitLoadMemToReg(regRAX, 0, regRAX, sizeOrDefault(instr.Imm))
	}

	c.emitStoreRegToSlot(regRAX, c.allocTemp(instr.Result), 8)

	return nil
}

func (c *fn) lowerArrayStore(instr ir.Instruction) error {
	if err := c.elementAddressToRAX(instr); err != nil {
		return err
	}

	c.emit(0x48, 0x89, 0xC1) // mov rcx, rax (element address)

	if err := c.loadValueToReg(instr.B, regRAX); err != nil {
		return err
	}

	c.emitStoreRegToMem(regRAX, regRCX, 0, sizeOrDefault(instr.Imm))

	return nil
}

func (c *fn) lowerUnary(instr ir.Instruction) error {
	if err := c.loadValueToReg(instr.A, regRAX); err != nil {
		return err
	}

	switch instr.Op {
	case ir.OpNeg:
		c.emit(0x48, 0xF7, 0xD8) // neg rax
	case ir.OpBitNot:
		c.emit(0x48, 0xF7, 0xD0) // not rax
	case ir.OpLogNot:
		c.emit(0x48, 0x85, 0xC0)       // test rax, rax
		c.emit(0x0F, 0x94, 0xC0)       // sete al
		c.emit(0x48, 0x0F, 0xB6, 0xC0) // movzx rax, al
	}

	c.emitStoreRegToSlot(regRAX, c.allocTemp(instr.Result), 8)

	return nil
}

// setccByOp maps a comparison opcode to its SETcc condition code byte.
var setccByOp = map[ir.Opcode]byte{
	ir.OpCmpEqI: 0x94, ir.OpCmpNeI: 0x95,
	ir.OpCmpLtI: 0x9C, ir.OpCmpLeI: 0x9E, ir.OpCmpGtI: 0x9F, ir.OpCmpGeI: 0x9D,
	ir.OpCmpLtU: 0x92, ir.OpCmpLeU: 0x96, ir.OpCmpGtU: 0x97, ir.OpCmpGeU: 0x93,
}

func (c *fn) lowerBinaryArith(instr ir.Instruction) error {
	if err := c.loadValueToReg(instr.A, regRAX); err != nil {
		return err
	}

	if err := c.loadValueToReg(instr.B, regRCX); err != nil {
		return err
	}

	switch instr.Op {
	case ir.OpAddI, ir.OpAddU:
		c.emit(0x48, 0x01, 0xC8) // add rax, rcx
	case ir.OpSubI, ir.OpSubU:
		c.emit(0x48, 0x29, 0xC8) // sub rax, rcx
	case ir.OpMulI, ir.OpMulU:
		c.emit(0x48, 0x0F, 0xAF, 0xC1) // imul rax, rcx
	case ir.OpDivI, ir.OpModI:
		c.emit(0x48, 0x99)       // cqo
		c.emit(0x48, 0xF7, 0xF9) // idiv rcx

		if instr.Op == ir.OpModI {
			c.emit(0x48, 0x89, 0xD0) // mov rax, rdx
		}
	case ir.OpDivU, ir.OpModU:
		c.emit(0x48, 0x31, 0xD2) // xor rdx, rdx
		c.emit(0x48, 0xF7, 0xF1) // div rcx

		if instr.Op == ir.OpModU {
			c.emit(0x48, 0x89, 0xD0) // mov rax, rdx
		}
	case ir.OpBitAnd:
		c.emit(0x48, 0x21, 0xC8) // and rax, rcx
	case ir.OpBitOr:
		c.emit(0x48, 0x09, 0xC8) // or rax, rcx
	case ir.OpBitXor:
		c.emit(0x48, 0x31, 0xC8) // xor rax, rcx
	case ir.OpShl:
		c.emit(0x48, 0xD3, 0xE0) // shl rax, cl
	case ir.OpShrArith:
		c.emit(0x48, 0xD3, 0xF8) // sar rax, cl
	case ir.OpShrLogical:
		c.emit(0x48, 0xD3, 0xE8) // shr rax, cl
	default:
		if setcc, ok := setccByOp[instr.Op]; ok {
			c.emit(0x48, 0x39, 0xC8)       // cmp rax, rcx
			c.emit(0x0F, setcc, 0xC0)      // setcc al
			c.emit(0x48, 0x0F, 0xB6, 0xC0) // movzx rax, al

			break
		}

		return cerr.New(cerr.KindCodegen, instr.Span, "opcode %s not supported by codegen yet", instr.Op)
	}

	c.emitStoreRegToSlot(regRAX, c.allocTemp(instr.Result), 8)

	return nil
}

func (c *fn) lowerCall(instr ir.Instruction) error {
	if len(instr.Args) > len(argRegs) {
		return cerr.New(cerr.KindCodegen, instr.Span, "more than %d arguments not supported by codegen yet", len(argRegs))
	}

	// Evaluate arguments into their slots first, then load the registers,
	// so a later argument's computation can't clobber an earlier one's
	// register.
	for i, a := range instr.Args {
		if err := c.loadValueToReg(a, regRAX); err != nil {
			return err
		}

		c.emitStoreRegToSlot(regRAX, c.allocTemp(ir.TempVar(0x8000_0000+uint32(i))), 8)
	}

	for i := range instr.Args {
		slot := c.tempSlot[ir.TempVar(0x8000_0000+uint32(i))]
		c.emitLoadSlotToReg(slot, argRegs[i])
	}

	c.callSymbol(c.strs.View(instr.Name))
	c.emitStoreRegToSlot(regRAX, c.allocTemp(instr.Result), 8)

	return nil
}
