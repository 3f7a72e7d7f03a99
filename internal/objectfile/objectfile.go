// Package objectfile writes the COFF and ELF relocatable object files
// spec.md §4.7/§6.2/§3.9 requires, with real `.text`, a symbol table and
// relocations, not just inert debug payloads.
//
// Both writers share the same shape: file header, section header table,
// payload region, string table, with the symbol-table and relocation
// records spec.md §8's "emitted file passes the host linker's basic
// checks" scenario needs: a `.text` section carrying actual machine
// code, external/local symbols at defined offsets, and PC-relative /
// absolute relocations the linker resolves against them.
package objectfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sort"
)

// SymbolBinding distinguishes symbols a linker may merge across
// translation units (External) from ones private to this object
// (Local).
type SymbolBinding int

const (
	Local SymbolBinding = iota
	External
	Weak
)

// RelocType is a target-independent relocation kind; Build translates it
// to the COFF or ELF relocation-type code for the chosen format.
type RelocType int

const (
	// RelAbs64 patches an 8-byte absolute address.
	RelAbs64 RelocType = iota
	// RelPC32 patches a 4-byte PC-relative displacement (call/jmp, RIP-relative lea).
	RelPC32
	// RelAbs32 patches a 4-byte absolute address (COFF IMAGE_REL_AMD64_ADDR32).
	RelAbs32
)

// Section is one named region of section-relative bytes.
type Section struct {
	Name            string
	Data            []byte
	Executable      bool
	Writable        bool
	Relocations     []Relocation
}

// Symbol is one defined or undefined symbol. Section == "" marks an
// undefined (externally resolved) symbol; otherwise Offset is relative
// to that section's start.
type Symbol struct {
	Name    string
	Section string
	Offset  uint32
	Binding SymbolBinding
	Defined bool
}

// Relocation patches Offset bytes into its owning section's Data,
// referencing Symbol (by name, resolved against Object.Symbols at
// Build time) with addend Addend.
type Relocation struct {
	Offset int
	Symbol string
	Type   RelocType
	Addend int64
}

// Object is a target-independent object file: named sections (each
// optionally carrying code/data and relocations) plus a symbol table.
// Build renders it to COFF or ELF bytes.
type Object struct {
	Sections []Section
	Symbols  []Symbol
}

// Section looks up a section by name, returning nil if absent.
func (o *Object) Section(name string) *Section {
	for i := range o.Sections {
		if o.Sections[i].Name == name {
			return &o.Sections[i]
		}
	}

	return nil
}

// AddSymbol appends sym, replacing any prior entry of the same name
// (a forward-declared external becoming defined, matching how
// internal/codegen resolves call targets as it emits functions in order).
func (o *Object) AddSymbol(sym Symbol) {
	for i := range o.Symbols {
		if o.Symbols[i].Name == sym.Name {
			o.Symbols[i] = sym
			return
		}
	}

	o.Symbols = append(o.Symbols, sym)
}

func align(v, to uint64) uint64 { return (v + to - 1) &^ (to - 1) }

// --- COFF ---

const (
	coffFileHeaderSize    = 20
	coffSectionHeaderSize = 40
	coffSymbolSize        = 18
	coffRelocSize         = 10
	machineAMD64          = 0x8664

	imageSCNCntCode             = 0x00000020
	imageSCNCntInitializedData  = 0x00000040
	imageSCNMemExecute          = 0x20000000
	imageSCNMemRead             = 0x40000000
	imageSCNMemWrite            = 0x80000000
	imageSCNAlign16Bytes        = 0x00500000

	imageRelAMD64Addr64 = 0x0001
	imageRelAMD64Addr32 = 0x0002
	imageRelAMD64Rel32  = 0x0004

	imageSymClassExternal = 2
	imageSymClassStatic   = 3
	imageSymTypeFunction  = 0x20
)

// BuildCOFF renders o as an x86-64 COFF object (spec.md §4.7/§6.2): file
// header, section header table, raw section payloads, then IMAGE_SYMBOL
// and IMAGE_RELOCATION records and the trailing string table.
func BuildCOFF(o *Object) ([]byte, error) {
	if len(o.Sections) == 0 {
		return nil, errors.New("objectfile: no sections")
	}

	names := make([]string, len(o.Sections))
	for i, s := range o.Sections {
		names[i] = s.Name
	}

	strtab := &bytes.Buffer{}
	nameOff := map[string]uint32{}

	for _, n := range names {
		if len(n) > 8 {
			nameOff[n] = uint32(strtab.Len()) + 4
			strtab.WriteString(n)
			strtab.WriteByte(0)
		}
	}

	// Long symbol names share the same string table, referenced through
	// the zero-prefix + offset encoding in the symbol record.
	for _, s := range o.Symbols {
		if len(s.Name) > 8 {
			if _, ok := nameOff[s.Name]; !ok {
				nameOff[s.Name] = uint32(strtab.Len()) + 4
				strtab.WriteString(s.Name)
				strtab.WriteByte(0)
			}
		}
	}

	symIndex := map[string]int{}
	for i, s := range o.Symbols {
		symIndex[s.Name] = i
	}

	sectionIndex := map[string]int{}
	for i, s := range o.Sections {
		sectionIndex[s.Name] = i + 1 // COFF section numbers are 1-based
	}

	headerSize := uint64(coffFileHeaderSize + coffSectionHeaderSize*len(o.Sections))
	cur := headerSize

	ptr := make([]uint64, len(o.Sections))
	relocPtr := make([]uint64, len(o.Sections))
	relocCount := make([]uint16, len(o.Sections))

	for i, s := range o.Sections {
		cur = align(cur, 16)
		ptr[i] = cur
		cur += uint64(len(s.Data))
	}

	for i, s := range o.Sections {
		relocCount[i] = uint16(len(s.Relocations))

		if len(s.Relocations) == 0 {
			continue
		}

		relocPtr[i] = cur
		cur += uint64(len(s.Relocations)) * coffRelocSize
	}

	symtabPtr := cur
	cur += uint64(len(o.Symbols)) * coffSymbolSize
	strtabPtr := cur

	buf := &bytes.Buffer{}
	buf.Grow(int(cur) + 4 + strtab.Len())

	binary.Write(buf, binary.LittleEndian, uint16(machineAMD64))
	binary.Write(buf, binary.LittleEndian, uint16(len(o.Sections)))
	binary.Write(buf, binary.LittleEndian, uint32(0)) // TimeDateStamp
	binary.Write(buf, binary.LittleEndian, uint32(symtabPtr))
	binary.Write(buf, binary.LittleEndian, uint32(len(o.Symbols)))
	binary.Write(buf, binary.LittleEndian, uint16(0)) // SizeOfOptionalHeader
	binary.Write(buf, binary.LittleEndian, uint16(0))

	for i, s := range o.Sections {
		nameField := make([]byte, 8)
		if len(s.Name) <= 8 {
			copy(nameField, s.Name)
		} else {
			ref := "/" + itoa(nameOff[s.Name])
			copy(nameField, ref)
		}

		buf.Write(nameField)
		binary.Write(buf, binary.LittleEndian, uint32(len(s.Data)))
		binary.Write(buf, binary.LittleEndian, uint32(0)) // VirtualAddress
		binary.Write(buf, binary.LittleEndian, uint32(len(s.Data)))
		binary.Write(buf, binary.LittleEndian, uint32(ptr[i]))
		binary.Write(buf, binary.LittleEndian, uint32(relocPtr[i]))
		binary.Write(buf, binary.LittleEndian, uint32(0)) // PointerToLinenumbers
		binary.Write(buf, binary.LittleEndian, relocCount[i])
		binary.Write(buf, binary.LittleEndian, uint16(0))
		binary.Write(buf, binary.LittleEndian, uint32(sectionCharacteristics(s)))
	}

	padTo := func(pos uint64) {
		for uint64(buf.Len()) < pos {
			buf.WriteByte(0)
		}
	}

	for i, s := range o.Sections {
		padTo(ptr[i])
		buf.Write(s.Data)
	}

	for i, s := range o.Sections {
		if len(s.Relocations) == 0 {
			continue
		}

		padTo(relocPtr[i])

		for _, r := range s.Relocations {
			symI, ok := symIndex[r.Symbol]
			if !ok {
				return nil, errors.New("objectfile: undefined symbol " + r.Symbol)
			}

			binary.Write(buf, binary.LittleEndian, uint32(r.Offset))
			binary.Write(buf, binary.LittleEndian, uint32(symI))
			binary.Write(buf, binary.LittleEndian, coffRelocType(r.Type))
		}
	}

	padTo(symtabPtr)

	for _, s := range o.Symbols {
		nameField := make([]byte, 8)

		if len(s.Name) <= 8 {
			copy(nameField, s.Name)
		} else {
			binary.LittleEndian.PutUint32(nameField[4:], nameOff[s.Name])
		}

		buf.Write(nameField)

		var value uint32

		var sectionNum int16

		if s.Defined {
			value = s.Offset
			sectionNum = int16(sectionIndex[s.Section])
		}

		binary.Write(buf, binary.LittleEndian, value)
		binary.Write(buf, binary.LittleEndian, sectionNum)

		var typ uint16
		if s.Section != "" {
			if sec := o.Section(s.Section); sec != nil && sec.Executable {
				typ = imageSymTypeFunction
			}
		}

		binary.Write(buf, binary.LittleEndian, typ)

		class := byte(imageSymClassStatic)
		if s.Binding != Local {
			class = imageSymClassExternal
		}

		buf.WriteByte(class)
		buf.WriteByte(0) // NumberOfAuxSymbols
	}

	padTo(strtabPtr)
	binary.Write(buf, binary.LittleEndian, uint32(4+strtab.Len()))
	buf.Write(strtab.Bytes())

	return buf.Bytes(), nil
}

func coffRelocType(t RelocType) uint16 {
	switch t {
	case RelAbs64:
		return imageRelAMD64Addr64
	case RelAbs32:
		return imageRelAMD64Addr32
	default:
		return imageRelAMD64Rel32
	}
}

func sectionCharacteristics(s Section) uint32 {
	c := uint32(imageSCNAlign16Bytes)

	if s.Executable {
		c |= imageSCNCntCode | imageSCNMemExecute | imageSCNMemRead
	} else {
		c |= imageSCNCntInitializedData | imageSCNMemRead
	}

	if s.Writable {
		c |= imageSCNMemWrite
	}

	return c
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}

	var digits [10]byte

	i := len(digits)

	for v > 0 {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
	}

	return string(digits[i:])
}

// --- ELF ---

const (
	elfHeaderSize    = 64
	elfSectionHdrSize = 64
	elfSymSize       = 24
	elfRelaSize      = 24

	etRel       = 1
	emX86_64    = 62
	shtProgbits = 1
	shtStrtab   = 3
	shtSymtab   = 2
	shtRela     = 4
	shtNobits   = 8

	shfWrite     = 0x1
	shfAlloc     = 0x2
	shfExecinstr = 0x4

	stbLocal  = 0
	stbGlobal = 1
	stbWeak   = 2

	sttObject = 1
	sttFunc   = 2

	rX8664_64   = 1
	rX8664_PC32 = 2
	rX8664_32   = 10
)

// BuildELF renders o as an x86-64 ET_REL ELF object (spec.md §4.7/§6.2):
// ELF header, section payloads, then the section header table, with a
// `.symtab`/`.strtab` pair and a `.rela<section>` per relocated section.
func BuildELF(o *Object) ([]byte, error) {
	if len(o.Sections) == 0 {
		return nil, errors.New("objectfile: no sections")
	}

	shstr := &bytes.Buffer{}
	shstr.WriteByte(0)

	nameOffOf := func(n string) uint32 {
		off := uint32(shstr.Len())
		shstr.WriteString(n)
		shstr.WriteByte(0)

		return off
	}

	type outSection struct {
		name    string
		nameOff uint32
		shtype  uint32
		flags   uint64
		link    uint32
		info    uint32
		entsize uint64
		data    []byte
	}

	symtab, strtab, localCount := buildELFSymtab(o)

	var out []outSection

	relaFor := map[string]int{} // section name -> index into out of its .rela section, once created

	for _, s := range o.Sections {
		var flags uint64 = shfAlloc
		if s.Executable {
			flags |= shfExecinstr
		}

		if s.Writable {
			flags |= shfWrite
		}

		shtype := uint32(shtProgbits)

		switch s.Name {
		case ".note.GNU-stack":
			// Empty marker section with no flags: non-executable stack
			// (spec.md §6.2).
			flags = 0
		case ".bss":
			// Uninitialized data occupies no file bytes.
			shtype = shtNobits
		}

		out = append(out, outSection{
			name:    s.Name,
			nameOff: nameOffOf(s.Name),
			shtype:  shtype,
			flags:   flags,
			data:    s.Data,
		})
	}

	symtabIdx := len(out)
	out = append(out, outSection{
		name:    ".symtab",
		nameOff: nameOffOf(".symtab"),
		shtype:  shtSymtab,
		data:    symtab,
		entsize: elfSymSize,
	})

	strtabIdx := len(out)
	out = append(out, outSection{
		name:    ".strtab",
		nameOff: nameOffOf(".strtab"),
		shtype:  shtStrtab,
		data:    strtab,
	})

	for secI, s := range o.Sections {
		if len(s.Relocations) == 0 {
			continue
		}

		rela := buildELFRela(o, s)
		name := ".rela" + s.Name
		relaFor[s.Name] = len(out)
		out = append(out, outSection{
			name:    name,
			nameOff: nameOffOf(name),
			shtype:  shtRela,
			link:    uint32(symtabIdx + 1), // +1 for the null section
			info:    uint32(secI + 1),
			data:    rela,
			entsize: elfRelaSize,
		})
	}

	shstrtabIdx := len(out)
	out = append(out, outSection{
		name:    ".shstrtab",
		nameOff: nameOffOf(".shstrtab"),
		shtype:  shtStrtab,
		data:    shstr.Bytes(),
	})

	cur := uint64(elfHeaderSize)

	offs := make([]uint64, len(out))
	for i, s := range out {
		cur = align(cur, 8)
		offs[i] = cur
		cur += uint64(len(s.data))
	}

	shoff := cur

	file := &bytes.Buffer{}
	file.Grow(int(cur) + elfSectionHdrSize*(len(out)+1))

	ehdr := make([]byte, elfHeaderSize)
	copy(ehdr[0:4], []byte{0x7f, 'E', 'L', 'F'})
	ehdr[4] = 2
	ehdr[5] = 1
	ehdr[6] = 1
	binary.LittleEndian.PutUint16(ehdr[16:], etRel)
	binary.LittleEndian.PutUint16(ehdr[18:], emX86_64)
	binary.LittleEndian.PutUint32(ehdr[20:], 1)
	binary.LittleEndian.PutUint64(ehdr[40:], shoff)
	binary.LittleEndian.PutUint16(ehdr[52:], elfHeaderSize)
	binary.LittleEndian.PutUint16(ehdr[58:], elfSectionHdrSize)
	binary.LittleEndian.PutUint16(ehdr[60:], uint16(len(out)+1))
	binary.LittleEndian.PutUint16(ehdr[62:], uint16(shstrtabIdx+1))
	file.Write(ehdr)

	padTo := func(pos uint64) {
		for uint64(file.Len()) < pos {
			file.WriteByte(0)
		}
	}

	for i, s := range out {
		padTo(offs[i])
		file.Write(s.data)
	}

	writeShdr := func(nameOff, shtype uint32, flags, addr, off, size uint64, link, info uint32, align, entsize uint64) {
		sh := make([]byte, elfSectionHdrSize)
		binary.LittleEndian.PutUint32(sh[0:], nameOff)
		binary.LittleEndian.PutUint32(sh[4:], shtype)
		binary.LittleEndian.PutUint64(sh[8:], flags)
		binary.LittleEndian.PutUint64(sh[16:], addr)
		binary.LittleEndian.PutUint64(sh[24:], off)
		binary.LittleEndian.PutUint64(sh[32:], size)
		binary.LittleEndian.PutUint32(sh[40:], link)
		binary.LittleEndian.PutUint32(sh[44:], info)
		binary.LittleEndian.PutUint64(sh[48:], align)
		binary.LittleEndian.PutUint64(sh[56:], entsize)
		file.Write(sh)
	}

	file.Write(make([]byte, elfSectionHdrSize)) // null section

	for i, s := range out {
		link := s.link
		if i == symtabIdx {
			link = uint32(strtabIdx + 1)
		}

		info := s.info
		if i == symtabIdx {
			info = localCount
		}

		writeShdr(s.nameOff, s.shtype, s.flags, 0, offs[i], uint64(len(s.data)), link, info, 8, s.entsize)
	}

	_ = relaFor

	return file.Bytes(), nil
}

func buildELFSymtab(o *Object) (symtab, strtab []byte, localCount uint32) {
	var syms bytes.Buffer

	var str bytes.Buffer

	str.WriteByte(0)

	sectionIndex := map[string]uint32{}
	for i, s := range o.Sections {
		sectionIndex[s.Name] = uint32(i + 1)
	}

	// Null symbol (index 0).
	syms.Write(make([]byte, elfSymSize))

	sorted := append([]Symbol(nil), o.Symbols...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Binding == Local && sorted[j].Binding != Local
	})

	for _, s := range sorted {
		nameOff := uint32(str.Len())
		str.WriteString(s.Name)
		str.WriteByte(0)

		bind := byte(stbGlobal)

		switch s.Binding {
		case Local:
			bind = stbLocal
			localCount++
		case Weak:
			bind = stbWeak
		}

		var stt byte

		if s.Defined {
			if sec := o.Section(s.Section); sec != nil && sec.Executable {
				stt = sttFunc
			} else {
				stt = sttObject
			}
		}

		info := (bind << 4) | stt

		var shndx uint16

		var value uint64

		if s.Defined {
			shndx = uint16(sectionIndex[s.Section])
			value = uint64(s.Offset)
		}

		var sym [elfSymSize]byte
		binary.LittleEndian.PutUint32(sym[0:], nameOff)
		sym[4] = info
		sym[5] = 0
		binary.LittleEndian.PutUint16(sym[6:], shndx)
		binary.LittleEndian.PutUint64(sym[8:], value)
		binary.LittleEndian.PutUint64(sym[16:], 0) // size, unknown at this layer

		syms.Write(sym[:])
	}

	return syms.Bytes(), str.Bytes(), localCount + 1 // +1 for the null symbol
}

func buildELFRela(o *Object, s Section) []byte {
	symOrdinal := map[string]uint32{}

	sorted := append([]Symbol(nil), o.Symbols...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Binding == Local && sorted[j].Binding != Local
	})

	for i, sym := range sorted {
		symOrdinal[sym.Name] = uint32(i + 1) // +1 for the null symbol
	}

	var out bytes.Buffer

	for _, r := range s.Relocations {
		var rela [elfRelaSize]byte
		binary.LittleEndian.PutUint64(rela[0:], uint64(r.Offset))

		symI := symOrdinal[r.Symbol]
		info := (uint64(symI) << 32) | uint64(elfRelocType(r.Type))
		binary.LittleEndian.PutUint64(rela[8:], info)
		binary.LittleEndian.PutUint64(rela[16:], uint64(r.Addend))

		out.Write(rela[:])
	}

	return out.Bytes()
}

func elfRelocType(t RelocType) uint32 {
	switch t {
	case RelAbs64:
		return rX8664_64
	case RelAbs32:
		return rX8664_32
	default:
		return rX8664_PC32
	}
}
