package codeview

import (
	"encoding/binary"
	"testing"
)

func TestBuildDebugSStartsWithSignatureAndIsSectionAligned(t *testing.T) {
	fns := []Function{
		{MangledName: "_Z4mainv", Offset: 0, Size: 16, TypeIndex: 0x1002, Locals: []Local{
			{Name: "n", FrameOffset: -8, IsParam: true},
		}},
	}

	out := BuildDebugS("t.cpp", "t.obj", fns)

	if len(out) < 4 {
		t.Fatal("expected at least the CV signature")
	}

	sig := binary.LittleEndian.Uint32(out[0:4])
	if sig != 4 {
		t.Fatalf("expected CV_SIGNATURE_C13 (4), got %d", sig)
	}

	if len(out)%4 != 0 {
		t.Fatalf("expected 4-byte aligned output, got length %d", len(out))
	}
}

func TestBuildDebugTAssignsIncreasingTypeIndices(t *testing.T) {
	b := NewBuilder()

	sigs := [][]uint32{{0x74 /* int */}, {}}
	rets := []uint32{0x74, 0x03}

	_, indices := b.BuildDebugT(sigs, rets)

	if len(indices) != 2 {
		t.Fatalf("expected 2 type indices, got %d", len(indices))
	}

	if indices[0] == indices[1] {
		t.Fatalf("expected distinct type indices, got %d and %d", indices[0], indices[1])
	}

	if indices[0] < 0x1000 || indices[1] < 0x1000 {
		t.Fatalf("expected indices >= 0x1000, got %d, %d", indices[0], indices[1])
	}
}
