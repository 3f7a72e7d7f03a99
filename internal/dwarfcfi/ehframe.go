package dwarfcfi

import (
	"bytes"
	"encoding/binary"
)

// FrameFunc describes one function's unwind record for BuildEHFrame: its
// symbol (the FDE's pc-begin relocation target), its code length, and,
// when it has try regions, the symbol of its .gcc_except_table blob.
type FrameFunc struct {
	Symbol     string
	Length     uint64
	LSDASymbol string // empty when the function has no handlers
}

// FrameReloc is a relocation the .eh_frame section needs; the caller
// translates it to the object format's record (R_X86_64_PC32 on ELF).
type FrameReloc struct {
	Offset int
	Symbol string
	Addend int64
}

// EHFrame is the built .eh_frame payload plus its relocations.
type EHFrame struct {
	Bytes       []byte
	Relocations []FrameReloc
}

// DWARF CFA opcodes used by the prologue description below.
const (
	dwCFAAdvanceLoc    = 0x40
	dwCFAOffset        = 0x80
	dwCFADefCFAOffset  = 0x0e
	dwCFADefCFARegister = 0x0d
	dwCFANop           = 0x00
)

// x86-64 DWARF register numbers.
const (
	dwRegRBP = 6
	dwRegRSP = 7
	dwRegRA  = 16
)

// BuildEHFrame emits one CIE (augmentation "zPLR": personality, LSDA
// encoding, FDE pointer encoding) followed by one FDE per function,
// each describing the fixed `push rbp; mov rbp, rsp; sub rsp, N`
// prologue every function this compiler emits uses (spec.md §4.6 item 4;
// the CFI says: CFA is rsp+8 at entry, rsp+16 after the push, then
// rbp-based for the rest of the body).
func BuildEHFrame(personality string, funcs []FrameFunc) EHFrame {
	var out bytes.Buffer

	var relocs []FrameReloc

	// --- CIE ---
	var cie bytes.Buffer

	cie.Write([]byte{0, 0, 0, 0})     // CIE id 0 marks a CIE
	cie.WriteByte(1)                  // version
	cie.WriteString("zPLR")           // augmentation
	cie.WriteByte(0)                  // augmentation terminator
	AppendULEB128(&cie, 1)            // code alignment factor
	AppendSLEB128(&cie, -8)           // data alignment factor
	AppendULEB128(&cie, dwRegRA)      // return-address register

	// Augmentation data: P (personality encoding + 4-byte pcrel slot),
	// L (LSDA pointer encoding), R (FDE pointer encoding).
	var aug bytes.Buffer

	aug.WriteByte(DW_EH_PE_pcrel | DW_EH_PE_sdata4) // personality encoding
	personalityFieldOffsetInAug := aug.Len()
	aug.Write([]byte{0, 0, 0, 0}) // personality pointer, relocated
	aug.WriteByte(DW_EH_PE_pcrel | DW_EH_PE_sdata4) // LSDA encoding
	aug.WriteByte(DW_EH_PE_pcrel | DW_EH_PE_sdata4) // FDE pointer encoding

	AppendULEB128(&cie, uint64(aug.Len()))
	augStartInCIE := cie.Len()
	cie.Write(aug.Bytes())

	// Initial CFI: CFA = rsp+8, return address at CFA-8.
	cie.WriteByte(dwCFADefCFAOffset)
	AppendULEB128(&cie, 8)
	cie.WriteByte(dwCFAOffset | dwRegRA)
	AppendULEB128(&cie, 1)

	padTo8(&cie)

	// Length-prefixed CIE record; the personality relocation offset is
	// relative to the final section layout (4-byte length prefix).
	relocs = append(relocs, FrameReloc{
		Offset: 4 + augStartInCIE + personalityFieldOffsetInAug,
		Symbol: personality,
		Addend: -4,
	})

	writeLengthPrefixed(&out, cie.Bytes())

	// --- FDEs ---
	for _, f := range funcs {
		fdeStart := out.Len()

		var fde bytes.Buffer

		// CIE pointer: distance from this field back to the CIE start.
		ciePointer := uint32(fdeStart + 4)
		var cp [4]byte
		binary.LittleEndian.PutUint32(cp[:], ciePointer)
		fde.Write(cp[:])

		// pc-begin: 4-byte pcrel, relocated against the function symbol.
		relocs = append(relocs, FrameReloc{
			Offset: fdeStart + 4 + fde.Len(),
			Symbol: f.Symbol,
			Addend: -4,
		})
		fde.Write([]byte{0, 0, 0, 0})

		var rng [4]byte
		binary.LittleEndian.PutUint32(rng[:], uint32(f.Length))
		fde.Write(rng[:])

		// Augmentation data: the LSDA pointer (4-byte pcrel), or an
		// explicit zero-length blob when the function has no handlers.
		if f.LSDASymbol != "" {
			AppendULEB128(&fde, 4)
			relocs = append(relocs, FrameReloc{
				Offset: fdeStart + 4 + fde.Len(),
				Symbol: f.LSDASymbol,
				Addend: -4,
			})
			fde.Write([]byte{0, 0, 0, 0})
		} else {
			AppendULEB128(&fde, 0)
		}

		// CFI for the shared prologue: after `push rbp` (1 byte) the CFA
		// moves to rsp+16 and rbp is saved at CFA-16; after `mov rbp, rsp`
		// (3 more bytes) the CFA register becomes rbp.
		fde.WriteByte(dwCFAAdvanceLoc | 1)
		fde.WriteByte(dwCFADefCFAOffset)
		AppendULEB128(&fde, 16)
		fde.WriteByte(dwCFAOffset | dwRegRBP)
		AppendULEB128(&fde, 2)
		fde.WriteByte(dwCFAAdvanceLoc | 3)
		fde.WriteByte(dwCFADefCFARegister)
		AppendULEB128(&fde, dwRegRBP)

		padTo8(&fde)
		writeLengthPrefixed(&out, fde.Bytes())
	}

	return EHFrame{Bytes: out.Bytes(), Relocations: relocs}
}

func padTo8(b *bytes.Buffer) {
	// +4 accounts for the length prefix the record gains on write.
	for (b.Len()+4)%8 != 0 {
		b.WriteByte(dwCFANop)
	}
}

func writeLengthPrefixed(out *bytes.Buffer, body []byte) {
	var l [4]byte
	binary.LittleEndian.PutUint32(l[:], uint32(len(body)))
	out.Write(l[:])
	out.Write(body)
}
