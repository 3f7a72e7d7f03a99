package ir

import (
	"testing"

	"github.com/cppnc/cppnc/internal/types"
)

func TestBuilderAllocatesSequentialTempsAndLabels(t *testing.T) {
	b := NewBuilder(0, nil, types.TypeSpecifierNode{Base: types.Int})

	t0 := b.NewTemp()
	t1 := b.NewTemp()

	if t0 != 0 || t1 != 1 {
		t.Fatalf("expected sequential temps 0,1, got %d,%d", t0, t1)
	}

	l0 := b.NewLabel()
	l1 := b.NewLabel()

	if l0 != 0 || l1 != 1 {
		t.Fatalf("expected sequential labels 0,1, got %d,%d", l0, l1)
	}
}

func TestBuilderEmitAppendsInPlacementOrder(t *testing.T) {
	b := NewBuilder(0, nil, types.TypeSpecifierNode{Base: types.Void})

	idx0 := b.Emit(Instruction{Op: OpScopeBegin})
	idx1 := b.Emit(Instruction{Op: OpScopeEnd})

	if idx0 != 0 || idx1 != 1 {
		t.Fatalf("expected instruction indices 0,1, got %d,%d", idx0, idx1)
	}

	fn := b.Finish()
	if len(fn.Instrs) != 2 {
		t.Fatalf("expected 2 instructions, got %d", len(fn.Instrs))
	}
}

func TestImmIntAndTempValueKinds(t *testing.T) {
	imm := ImmInt(types.TypeSpecifierNode{Base: types.Int}, 32, 42)
	if imm.Value.Kind != ValueImmInt || imm.Value.Int != 42 {
		t.Fatalf("ImmInt produced wrong value: %+v", imm.Value)
	}

	tv := TempValue(types.TypeSpecifierNode{Base: types.Int}, 32, TempVar(3))
	if tv.Value.Kind != ValueTemp || tv.Value.Temp != 3 {
		t.Fatalf("TempValue produced wrong value: %+v", tv.Value)
	}
}

func TestOpcodeStringKnownAndUnknown(t *testing.T) {
	if OpAddI.String() != "AddI" {
		t.Fatalf("got %q", OpAddI.String())
	}

	if got := Opcode(-1).String(); got != "Opcode(?)" {
		t.Fatalf("expected fallback string for invalid opcode, got %q", got)
	}
}
