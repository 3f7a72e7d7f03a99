// Package codeview builds the Microsoft CodeView debug subsections
// (spec.md §4.6 item 8) that internal/objectfile embeds in a COFF object's
// `.debug$S` (symbols and file checksums) and `.debug$T` (types)
// sections: enough of the format for a linker/debugger to resolve a
// mangled function name to its offset/size/parameters/locals. No
// line-number (DEBUG_S_LINES) subsection is emitted.
//
// Like the DWARF writer in internal/dwarfcfi, everything here is
// length-prefixed records written into a growing buffer via
// encoding/binary; the difference is CodeView's flat subsection-kind
// model in place of DWARF's DIE/abbrev structure.
package codeview

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
)

// Subsection kind codes (CV_SIGNATURE / DEBUG_S_SUBSECTION_TYPE values).
const (
	DEBUG_S_SYMBOLS       = 0xf1
	DEBUG_S_LINES         = 0xf2
	DEBUG_S_STRINGTABLE   = 0xf3
	DEBUG_S_FILECHKSMS    = 0xf4
)

// Symbol record kinds within a DEBUG_S_SYMBOLS subsection.
const (
	S_OBJNAME     = 0x1101
	S_COMPILE3    = 0x113c
	S_GPROC32_ID  = 0x1147
	S_FRAMEPROC   = 0x1012
	S_REGREL32    = 0x1111
	S_LOCAL       = 0x113e
	S_PROC_ID_END = 0x114f
)

// Leaf (type record) kinds within `.debug$T`.
const (
	LF_ARGLIST   = 0x1201
	LF_PROCEDURE = 0x1008
	LF_FUNC_ID   = 0x1601
	LF_STRING_ID = 0x1605
	LF_BUILDINFO = 0x1603
)

const cvSignature = uint32(4) // CV_SIGNATURE_C13

// Function is one emitted function's CodeView-relevant metadata.
type Function struct {
	MangledName string
	Offset      uint32 // offset within .text
	Size        uint32
	TypeIndex   uint32 // .debug$T LF_PROCEDURE index describing its signature
	Locals      []Local
}

// Local is one parameter or local variable, register-relative to RBP
// (spec.md §4.6's S_REGREL32/S_LOCAL records).
type Local struct {
	Name       string
	FrameOffset int32
	IsParam    bool
}

const regRBP = 334 // CV_AMD64_RBP

// Builder accumulates the `.debug$S` symbols subsection and per-file
// checksums for one object file.
type Builder struct {
	buf        bytes.Buffer
	files      []string
	nextTypeIx uint32
}

// NewBuilder starts a CodeView symbols builder whose `.debug$T` type
// indices start at 0x1000, the first non-primitive index of the format.
func NewBuilder() *Builder {
	return &Builder{nextTypeIx: 0x1000}
}

func align4(b *bytes.Buffer) {
	for b.Len()%4 != 0 {
		b.WriteByte(0)
	}
}

func writeSubsection(out *bytes.Buffer, kind uint32, body []byte) {
	binary.Write(out, binary.LittleEndian, kind)
	binary.Write(out, binary.LittleEndian, uint32(len(body)))
	out.Write(body)
	align4(out)
}

func writeRecord(out *bytes.Buffer, kind uint16, body []byte) {
	var rec bytes.Buffer
	binary.Write(&rec, binary.LittleEndian, kind)
	rec.Write(body)

	binary.Write(out, binary.LittleEndian, uint16(rec.Len()))
	out.Write(rec.Bytes())
}

func cString(s string) []byte { return append([]byte(s), 0) }

// BuildDebugS emits the complete `.debug$S` section for the translation
// unit: the CV signature, an S_OBJNAME/S_COMPILE3 header, one
// S_GPROC32_ID..S_PROC_ID_END symbol record run per function (with
// S_FRAMEPROC and one S_REGREL32 for each parameter/local), and a
// file-checksum subsection (SHA-256, per spec.md §4.6) for sourceFile.
func BuildDebugS(sourceFile, objName string, fns []Function) []byte {
	var out bytes.Buffer

	binary.Write(&out, binary.LittleEndian, cvSignature)

	var symbols bytes.Buffer

	writeRecord(&symbols, S_OBJNAME, append(leU32(0), cString(objName)...))
	writeRecord(&symbols, S_COMPILE3, compile3Body())

	for _, fn := range fns {
		body := append(leU32(0), leU32(0)...) // pParent, pEnd (fixed up by linker)
		body = append(body, leU32(0)...)       // pNext
		body = append(body, leU32(fn.Size)...)
		body = append(body, leU32(0)...) // debug start
		body = append(body, leU32(fn.Size)...)
		body = append(body, leU32(fn.TypeIndex)...)
		body = append(body, leU32(fn.Offset)...)
		body = append(body, leU16(0)...) // segment, relocated by the linker
		body = append(body, byte(0))     // flags
		body = append(body, cString(fn.MangledName)...)

		writeRecord(&symbols, S_GPROC32_ID, body)
		writeRecord(&symbols, S_FRAMEPROC, frameProcBody())

		for _, loc := range fn.Locals {
			regrel := append(leU32(uint32(loc.FrameOffset)), leU32(0)...)
			regrel = append(regrel, leU16(uint16(regRBP))...)
			regrel = append(regrel, cString(loc.Name)...)
			writeRecord(&symbols, S_REGREL32, regrel)
		}

		writeRecord(&symbols, S_PROC_ID_END, nil)
	}

	writeSubsection(&out, DEBUG_S_SYMBOLS, symbols.Bytes())

	checksums, fileNameOffsets := buildFileChecksums([]string{sourceFile})
	writeSubsection(&out, DEBUG_S_FILECHKSMS, checksums)
	_ = fileNameOffsets

	return out.Bytes()
}

func leU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)

	return b
}

func leU16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)

	return b
}

func compile3Body() []byte {
	body := append(leU32(0), leU16(0xd0)...) // flags/language=0 (C++), machine=0xd0 (x64)
	body = append(body, leU16(0)...)          // frontend major
	body = append(body, leU16(0)...)
	body = append(body, leU16(0)...)
	body = append(body, leU16(0)...)
	body = append(body, leU16(0)...) // backend major
	body = append(body, leU16(0)...)
	body = append(body, leU16(0)...)
	body = append(body, leU16(0)...)
	body = append(body, cString("cppnc")...)

	return body
}

func frameProcBody() []byte {
	body := leU32(0) // frame length, fixed up by linker
	body = append(body, leU32(0)...) // pad length
	body = append(body, leU32(0)...) // pad offset
	body = append(body, leU32(0)...) // callee save regs length
	body = append(body, leU32(0)...) // exception handler offset
	body = append(body, leU16(0)...) // exception handler section
	body = append(body, leU32(0)...) // flags

	return body
}

// buildFileChecksums emits a DEBUG_S_FILECHKSMS subsection body with one
// SHA-256 checksum entry per file, returning the body and each file's
// byte offset within it (used by S_LINES subsections, not emitted by
// this reduced builder).
func buildFileChecksums(files []string) ([]byte, map[string]uint32) {
	var out bytes.Buffer

	offsets := map[string]uint32{}

	for _, f := range files {
		offsets[f] = uint32(out.Len())

		sum := sha256.Sum256([]byte(f))

		out.Write(leU32(0)) // string-table offset of filename, fixed up by linker
		out.WriteByte(byte(len(sum)))
		out.WriteByte(0x03) // CHKSUM_TYPE_SHA_256
		out.Write(sum[:])
		align4(&out)
	}

	return out.Bytes(), offsets
}

// BuildDebugT emits a minimal `.debug$T` type stream: one LF_ARGLIST +
// LF_PROCEDURE per function signature, returning the byte
// stream and each function's assigned LF_PROCEDURE type index in
// declaration order.
func (b *Builder) BuildDebugT(signatures [][]uint32, returnTypeIndex []uint32) ([]byte, []uint32) {
	var out bytes.Buffer

	binary.Write(&out, binary.LittleEndian, cvSignature)

	indices := make([]uint32, len(signatures))

	for i, params := range signatures {
		argListIx := b.nextTypeIx
		b.nextTypeIx++

		var argBody bytes.Buffer
		binary.Write(&argBody, binary.LittleEndian, uint32(len(params)))

		for _, p := range params {
			binary.Write(&argBody, binary.LittleEndian, p)
		}

		writeRecord(&out, LF_ARGLIST, argBody.Bytes())

		procIx := b.nextTypeIx
		b.nextTypeIx++

		var procBody bytes.Buffer
		binary.Write(&procBody, binary.LittleEndian, returnTypeIndex[i])
		procBody.WriteByte(0) // calling convention: near C
		procBody.WriteByte(0) // function attributes
		binary.Write(&procBody, binary.LittleEndian, uint16(len(params)))
		binary.Write(&procBody, binary.LittleEndian, argListIx)

		writeRecord(&out, LF_PROCEDURE, procBody.Bytes())

		indices[i] = procIx
	}

	return out.Bytes(), indices
}
