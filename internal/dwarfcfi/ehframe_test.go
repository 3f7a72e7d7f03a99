package dwarfcfi

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildEHFrameLayout(t *testing.T) {
	frame := BuildEHFrame(PersonalityELF, []FrameFunc{
		{Symbol: "_Z4mainv", Length: 64, LSDASymbol: "GCC_except_table0"},
		{Symbol: "_Z6helperv", Length: 32},
	})

	require.NotEmpty(t, frame.Bytes)

	// The CIE id field (right after the length prefix) must be zero.
	cieLen := binary.LittleEndian.Uint32(frame.Bytes[0:4])
	require.Zero(t, binary.LittleEndian.Uint32(frame.Bytes[4:8]))

	// CIE records pad to 8-byte boundaries including the length prefix.
	require.Zero(t, (cieLen+4)%8)

	// Augmentation string "zPLR" sits right after the version byte.
	require.Equal(t, "zPLR", string(frame.Bytes[9:13]))

	// One personality reloc, one pc-begin reloc per FDE, one LSDA reloc
	// for the function that has handlers.
	require.Len(t, frame.Relocations, 4)

	syms := map[string]int{}
	for _, r := range frame.Relocations {
		syms[r.Symbol]++
	}

	require.Equal(t, 1, syms[PersonalityELF])
	require.Equal(t, 1, syms["_Z4mainv"])
	require.Equal(t, 1, syms["_Z6helperv"])
	require.Equal(t, 1, syms["GCC_except_table0"])

	// The first FDE's CIE pointer must point back to the CIE start.
	fdeStart := 4 + cieLen
	ciePointer := binary.LittleEndian.Uint32(frame.Bytes[fdeStart+4 : fdeStart+8])
	require.Equal(t, fdeStart+4, ciePointer)
}

func TestBuildEHFrameRelocOffsetsInRange(t *testing.T) {
	frame := BuildEHFrame(PersonalityELF, []FrameFunc{{Symbol: "f", Length: 16}})

	for _, r := range frame.Relocations {
		require.GreaterOrEqual(t, r.Offset, 0)
		require.LessOrEqual(t, r.Offset+4, len(frame.Bytes))
	}
}
