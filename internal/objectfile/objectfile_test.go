package objectfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleObject() *Object {
	text := []byte{0xb8, 0x00, 0x00, 0x00, 0x00, 0xc3} // mov eax, 0; ret

	return &Object{
		Sections: []Section{
			{Name: ".text", Data: text, Executable: true},
		},
		Symbols: []Symbol{
			{Name: "main", Section: ".text", Offset: 0, Binding: External, Defined: true},
		},
	}
}

func TestBuildCOFFHasMagicAndSections(t *testing.T) {
	o := sampleObject()

	b, err := BuildCOFF(o)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(b), coffFileHeaderSize)

	machine := uint16(b[0]) | uint16(b[1])<<8
	assert.Equal(t, uint16(machineAMD64), machine)

	sectionCount := uint16(b[2]) | uint16(b[3])<<8
	assert.Equal(t, uint16(1), sectionCount)
}

func TestBuildCOFFRejectsEmptyObject(t *testing.T) {
	_, err := BuildCOFF(&Object{})
	assert.Error(t, err)
}

func TestBuildELFHasMagic(t *testing.T) {
	o := sampleObject()

	b, err := BuildELF(o)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(b), 4)
	assert.Equal(t, []byte{0x7f, 'E', 'L', 'F'}, b[0:4])
	assert.Equal(t, byte(2), b[4]) // ELFCLASS64
}

func TestBuildELFRejectsEmptyObject(t *testing.T) {
	_, err := BuildELF(&Object{})
	assert.Error(t, err)
}

func TestObjectSectionLookup(t *testing.T) {
	o := sampleObject()

	sec := o.Section(".text")
	require.NotNil(t, sec)
	assert.True(t, sec.Executable)

	assert.Nil(t, o.Section(".bss"))
}

func TestAddSymbolReplacesExisting(t *testing.T) {
	o := &Object{Symbols: []Symbol{{Name: "f", Defined: false}}}
	o.AddSymbol(Symbol{Name: "f", Section: ".text", Offset: 4, Defined: true})

	require.Len(t, o.Symbols, 1)
	assert.True(t, o.Symbols[0].Defined)
	assert.Equal(t, uint32(4), o.Symbols[0].Offset)
}
