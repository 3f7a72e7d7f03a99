// Package dwarfcfi encodes the GCC-style exception-handling tables spec.md
// §4.8 requires on ELF targets: ULEB128/SLEB128 primitives, DW_EH_PE_*
// pointer encodings, and the LSDA (Language-Specific Data Area) that
// internal/objectfile embeds in `.gcc_except_table` and references from a
// function's `.eh_frame` FDE augmentation.
//
// The ULEB128/SLEB128 primitives are shared by the LSDA builder here and
// the .eh_frame CIE/FDE builder in ehframe.go; both emit into plain
// bytes.Buffers and leave relocation bookkeeping to the caller.
package dwarfcfi

import "bytes"

// DW_EH_PE_* pointer-encoding bytes used in the LSDA header and call-site
// table (spec.md §4.8).
const (
	DW_EH_PE_absptr  = 0x00
	DW_EH_PE_uleb128 = 0x01
	DW_EH_PE_udata4  = 0x03
	DW_EH_PE_sdata4  = 0x0b
	DW_EH_PE_pcrel   = 0x10
	DW_EH_PE_indirect = 0x80
	DW_EH_PE_omit    = 0xff
)

// AppendULEB128 appends v to b in unsigned LEB128 form.
func AppendULEB128(b *bytes.Buffer, v uint64) {
	for {
		c := byte(v & 0x7f)
		v >>= 7

		if v != 0 {
			c |= 0x80
		}

		b.WriteByte(c)

		if v == 0 {
			break
		}
	}
}

// AppendSLEB128 appends v to b in signed LEB128 form.
func AppendSLEB128(b *bytes.Buffer, v int64) {
	for {
		c := byte(v & 0x7f)
		sign := c&0x40 != 0
		v >>= 7
		done := (v == 0 && !sign) || (v == -1 && sign)

		if !done {
			c |= 0x80
		}

		b.WriteByte(c)

		if done {
			break
		}
	}
}

// DecodeULEB128 reads an unsigned LEB128 value starting at offset off,
// returning the value and the number of bytes consumed.
func DecodeULEB128(b []byte, off int) (uint64, int) {
	var result uint64

	var shift uint

	n := 0

	for {
		c := b[off+n]
		result |= uint64(c&0x7f) << shift
		n++

		if c&0x80 == 0 {
			break
		}

		shift += 7
	}

	return result, n
}

// DecodeSLEB128 reads a signed LEB128 value starting at offset off,
// returning the value and the number of bytes consumed.
func DecodeSLEB128(b []byte, off int) (int64, int) {
	var result int64

	var shift uint

	n := 0

	var c byte

	for {
		c = b[off+n]
		result |= int64(c&0x7f) << shift
		shift += 7
		n++

		if c&0x80 == 0 {
			break
		}
	}

	if shift < 64 && c&0x40 != 0 {
		result |= -1 << shift
	}

	return result, n
}

// CatchHandler is one ordered catch clause of a try region: the
// type_info symbol it matches (empty for a catch-all `...`) and the
// landing-pad offset within the function that handles it.
type CatchHandler struct {
	TypeSymbol   string
	LandingPadPC uint64
	IsCatchAll   bool
}

// TryRegion is one try block's extent plus its ordered catch handlers,
// the input LSDAGenerator needs (spec.md §4.8, grounded on
// original_source's `LSDAGenerator.h`/`DwarfCFI.h` call-site model).
type TryRegion struct {
	StartPC  uint64
	Length   uint64
	Handlers []CatchHandler
}

// LSDA is the built Language-Specific Data Area for one function: Bytes
// holds the header, call-site table and action table; TypeSymbols lists
// the type_info symbols the action table's positive filter values refer
// to, which the caller appends after Bytes as the (reversed) type table.
type LSDA struct {
	Bytes       []byte
	TypeSymbols []string // type_info symbols referenced, in type-table order (reversed on emit)
}

// Build encodes the LSDA for one function given its ordered try regions
// and the function's total code length (spec.md §4.8): a call-site
// table entry per try region (start, length, landing pad, action index),
// an action-table entry chain per handler list (SLEB128 filter: positive
// 1-based type-table index for a typed catch, 0 for catch-all/cleanup),
// and TypeSymbols in order of first reference; the caller emits them as
// a reversed table of 4-byte PC-relative indirect pointers so the entry
// at offset `-4*k` from the table's end is the k-th distinct type_info
// symbol.
func Build(regions []TryRegion, codeLength uint64) LSDA {
	var callSites, actions bytes.Buffer

	var typeSyms []string

	typeIndex := map[string]int{}

	internType := func(sym string) int {
		if i, ok := typeIndex[sym]; ok {
			return i
		}

		typeSyms = append(typeSyms, sym)
		i := len(typeSyms)
		typeIndex[sym] = i

		return i
	}

	actionOffsetFor := func(handlers []CatchHandler) int {
		if len(handlers) == 0 {
			return 0
		}

		start := actions.Len() + 1 // action-table records are 1-based from the LSDA header's perspective

		for i, h := range handlers {
			filter := int64(0)
			if !h.IsCatchAll {
				filter = int64(internType(h.TypeSymbol))
			}

			AppendSLEB128(&actions, filter)

			if i == len(handlers)-1 {
				AppendSLEB128(&actions, 0) // no next action
			} else {
				AppendSLEB128(&actions, 1) // next action record follows immediately
			}
		}

		return start
	}

	lastEnd := uint64(0)

	for _, r := range regions {
		if r.StartPC > lastEnd {
			// Gap: a call-site entry with no landing pad (no exception can
			// be thrown there that this function catches).
			AppendULEB128(&callSites, lastEnd)
			AppendULEB128(&callSites, r.StartPC-lastEnd)
			AppendULEB128(&callSites, 0)
			AppendULEB128(&callSites, 0)
		}

		action := actionOffsetFor(r.Handlers)
		landingPad := uint64(0)

		if len(r.Handlers) > 0 {
			landingPad = r.Handlers[0].LandingPadPC
		}

		AppendULEB128(&callSites, r.StartPC)
		AppendULEB128(&callSites, r.Length)
		AppendULEB128(&callSites, landingPad)
		AppendULEB128(&callSites, uint64(action))

		lastEnd = r.StartPC + r.Length
	}

	if lastEnd < codeLength {
		AppendULEB128(&callSites, lastEnd)
		AppendULEB128(&callSites, codeLength-lastEnd)
		AppendULEB128(&callSites, 0)
		AppendULEB128(&callSites, 0)
	}

	var out bytes.Buffer

	// LSDA header: @LPStart encoding (omitted: landing pads are relative to
	// the function start), @TType encoding, then the TType base offset
	// (ULEB128, counted from right after this field) pointing past the
	// call-site and action tables to where the type table's *end* sits,
	// since the type table is walked backwards from there. The type table
	// itself, one 4-byte entry per TypeSymbols element, is appended by the
	// caller directly after Bytes.
	out.WriteByte(DW_EH_PE_omit) // @LPStart encoding: omitted, use function start

	out.WriteByte(DW_EH_PE_indirect | DW_EH_PE_pcrel | DW_EH_PE_sdata4) // @TType encoding

	var csLenBuf bytes.Buffer
	AppendULEB128(&csLenBuf, uint64(callSites.Len()))

	ttypeBaseOff := 1 + csLenBuf.Len() + callSites.Len() + actions.Len() + 4*len(typeSyms)
	AppendULEB128(&out, uint64(ttypeBaseOff))

	out.WriteByte(DW_EH_PE_uleb128) // call-site table encoding
	out.Write(csLenBuf.Bytes())

	out.Write(callSites.Bytes())
	out.Write(actions.Bytes())

	return LSDA{Bytes: out.Bytes(), TypeSymbols: typeSyms}
}

// CIEAugmentation is the augmentation string the CIE written by
// BuildEHFrame carries: `z` (augmentation data length present), `P`
// (personality routine pointer), `L` (LSDA pointer encoding) and `R`
// (FDE pointer encoding).
const CIEAugmentation = "zPLR"

// PersonalityELF and PersonalityCOFF are the personality-routine symbols
// referenced by a function's unwind info on each target (spec.md §4.6
// item 7/§4.8).
const (
	PersonalityELF  = "__gxx_personality_v0"
	PersonalityCOFF = "__CxxFrameHandler3"
)
