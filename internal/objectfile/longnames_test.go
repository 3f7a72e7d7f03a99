package objectfile

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCOFFLongSymbolNameGoesThroughStringTable(t *testing.T) {
	long := "_Z26quite_long_mangled_symbolv"
	require.Greater(t, len(long), 8)

	o := &Object{
		Sections: []Section{{Name: ".text", Data: []byte{0xc3}, Executable: true}},
		Symbols:  []Symbol{{Name: long, Section: ".text", Binding: External, Defined: true}},
	}

	b, err := BuildCOFF(o)
	require.NoError(t, err)

	// The long name must appear in the trailing string table, and the
	// symbol record's name field must use the zero-prefix + offset form.
	require.True(t, bytes.Contains(b, append([]byte(long), 0)))

	symtabPtr := binary.LittleEndian.Uint32(b[8:12])
	symCount := binary.LittleEndian.Uint32(b[12:16])
	require.Equal(t, uint32(1), symCount)

	nameField := b[symtabPtr : symtabPtr+8]
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(nameField[0:4]))

	offset := binary.LittleEndian.Uint32(nameField[4:8])
	strtabStart := symtabPtr + symCount*coffSymbolSize

	got := b[strtabStart+offset:]
	end := bytes.IndexByte(got, 0)
	require.GreaterOrEqual(t, end, 0)
	assert.Equal(t, long, string(got[:end]))
}

func TestBuildELFEmitsNobitsBSSAndUnflaggedNoteStack(t *testing.T) {
	o := &Object{
		Sections: []Section{
			{Name: ".text", Data: []byte{0xc3}, Executable: true},
			{Name: ".bss", Data: make([]byte, 16), Writable: true},
			{Name: ".note.GNU-stack"},
		},
	}

	b, err := BuildELF(o)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(b, []byte(".note.GNU-stack")))
	assert.True(t, bytes.Contains(b, []byte(".bss")))
}
