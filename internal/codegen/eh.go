package codegen

import (
	"github.com/cppnc/cppnc/internal/cerr"
	"github.com/cppnc/cppnc/internal/dwarfcfi"
	"github.com/cppnc/cppnc/internal/ir"
)

// Itanium C++ ABI runtime entry points referenced by throw/catch
// sequences (spec.md §4.6 item 5; the COFF target links the same
// sequence against the vcruntime-provided aliases).
const (
	symAllocateException = "__cxa_allocate_exception"
	symThrow             = "__cxa_throw"
	symRethrow           = "__cxa_rethrow"
	symBeginCatch        = "__cxa_begin_catch"
	symEndCatch          = "__cxa_end_catch"
)

// lowerEH encodes the exception-related opcodes. Try extents and catch
// landing pads are recorded as dwarfcfi.TryRegion records for the LSDA
// builder; the personality routine dispatches to the landing pads using
// that table (spec.md §4.8).
func (c *fn) lowerEH(instr ir.Instruction) error {
	switch instr.Op {
	case ir.OpTryBegin:
		c.openTries = append(c.openTries, tryState{start: len(c.code)})
		return nil
	case ir.OpTryEnd:
		if len(c.openTries) == 0 {
			return cerr.New(cerr.KindCodegen, instr.Span, "TryEnd without TryBegin")
		}

		t := c.openTries[len(c.openTries)-1]
		c.openTries = c.openTries[:len(c.openTries)-1]
		t.end = len(c.code)

		c.regions = append(c.regions, dwarfcfi.TryRegion{
			StartPC: uint64(t.start),
			Length:  uint64(t.end - t.start),
		})

		return nil
	case ir.OpCatchBegin:
		if len(c.regions) == 0 {
			return cerr.New(cerr.KindCodegen, instr.Span, "CatchBegin without a closed try region")
		}

		// This is a landing pad: the unwinder resumes here with the
		// exception object pointer in rax (the personality routine's
		// convention for the switch-value registers).
		region := &c.regions[len(c.regions)-1]

		handler := dwarfcfi.CatchHandler{
			LandingPadPC: uint64(len(c.code)),
			IsCatchAll:   instr.Imm == 1,
		}

		if !handler.IsCatchAll && instr.Name != 0 {
			handler.TypeSymbol = c.strs.View(instr.Name)
		}

		region.Handlers = append(region.Handlers, handler)

		c.emit(0x48, 0x89, 0xC7) // mov rdi, rax (exception object)
		c.callSymbol(symBeginCatch)
		// rax now holds the adjusted exception object pointer; the
		// following StoreVar (emitted by the lowering) moves it into the
		// caught variable's slot via instr.Result.
		c.emitStoreRegToSlot(regRAX, c.allocTemp(instr.Result), 8)

		return nil
	case ir.OpCatchEnd:
		c.callSymbol(symEndCatch)
		return nil
	case ir.OpRethrow:
		c.callSymbol(symRethrow)
		return nil
	case ir.OpThrow:
		return c.lowerThrow(instr)
	default:
		return cerr.New(cerr.KindCodegen, instr.Span, "opcode %s not supported by codegen yet", instr.Op)
	}
}

// lowerThrow emits the Itanium throw sequence: allocate the exception
// object, copy the thrown value into it, and call __cxa_throw with the
// type_info pointer (spec.md §4.5's Throw row).
func (c *fn) lowerThrow(instr ir.Instruction) error {
	size := sizeOrThrow(instr.Imm)

	// mov edi, size; call __cxa_allocate_exception
	c.emit(0xBF)
	c.emitU32(uint32(size))
	c.callSymbol(symAllocateException)

	// Copy the thrown value into the allocated buffer at [rax].
	switch instr.A.Value.Kind {
	case ir.ValueImmInt:
		if err := c.loadValueToReg(instr.A, regRCX); err != nil {
			return err
		}

		c.emitStoreRegToMem(regRCX, regRAX, 0, min8(size))
	case ir.ValueTemp:
		// The temp's slot holds either a scalar value or the aggregate's
		// bytes; copy 8 bytes at a time.
		slot := c.allocTemp(instr.A.Value.Temp)

		for off := 0; off < size; off += 8 {
			chunk := min8(size - off)
			c.emitLoadMemToReg(regRBP, off-slot, regRCX, chunk)
			c.emitStoreRegToMem(regRCX, regRAX, off, chunk)
		}
	default:
		return cerr.New(cerr.KindCodegen, instr.Span, "throw operand kind %d not supported", instr.A.Value.Kind)
	}

	// mov rdi, rax; lea rsi, [rip+_ZTIx]; xor edx, edx; call __cxa_throw
	c.emit(0x48, 0x89, 0xC7) // mov rdi, rax

	c.emit(0x48, 0x8D, 0x35) // lea rsi, [rip+rel32]
	c.symRefs = append(c.symRefs, symFixup{pos: len(c.code), symbol: c.strs.View(instr.Name)})
	c.emitU32(0)

	c.emit(0x31, 0xD2) // xor edx, edx (no destructor)
	c.callSymbol(symThrow)

	return nil
}

func sizeOrThrow(imm int64) int {
	if imm > 0 {
		return int(imm)
	}

	return 8
}

func min8(size int) int {
	if size < 8 {
		return size
	}

	return 8
}
