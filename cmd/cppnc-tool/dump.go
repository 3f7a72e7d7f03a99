package main

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(dumpCmd)
}

var dumpCmd = &cobra.Command{
	Use:   "dump <object-file>",
	Short: "Print the section summary of a COFF or ELF object file (plus symbol count for COFF)",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func runDump(_ *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	switch {
	case len(data) >= 4 && data[0] == 0x7f && data[1] == 'E' && data[2] == 'L' && data[3] == 'F':
		return dumpELF(data)
	case len(data) >= coffFileHeaderSize && binary.LittleEndian.Uint16(data[0:2]) == machineAMD64:
		return dumpCOFF(data)
	default:
		return fmt.Errorf("cppnc-tool: not a recognized COFF or ELF object (unexpected header)")
	}
}

// coffFileHeaderSize/machineAMD64 mirror internal/objectfile's unexported
// layout constants (COFF object files, unlike PE executables, have no DOS
// header: the IMAGE_FILE_HEADER starts at byte 0 with a two-byte Machine
// field), duplicated here rather than exported from objectfile since
// dump is a read path that package deliberately doesn't implement.
const (
	coffFileHeaderSize = 20
	machineAMD64       = 0x8664
)

func dumpCOFF(data []byte) error {
	numSections := binary.LittleEndian.Uint16(data[2:4])
	symtabPtr := binary.LittleEndian.Uint32(data[8:12])
	numSymbols := binary.LittleEndian.Uint32(data[12:16])

	fmt.Printf("format:  COFF (machine 0x%04x)\n", machineAMD64)
	fmt.Printf("sections: %d\n", numSections)
	fmt.Printf("symbols:  %d (symbol table at offset %d)\n", numSymbols, symtabPtr)

	nameAt := uint32(coffFileHeaderSize)
	for i := uint16(0); i < numSections; i++ {
		name := cstringField(data[nameAt : nameAt+8])
		sizeOfRawData := binary.LittleEndian.Uint32(data[nameAt+16 : nameAt+20])
		fmt.Printf("  [%d] %-8s %d bytes\n", i, name, sizeOfRawData)
		nameAt += 40
	}

	return nil
}

func cstringField(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}

	return string(b)
}

// ELF64 header field offsets are the fixed standard layout (not
// internal/objectfile-specific): e_shoff at 0x28, e_shentsize at 0x3a,
// e_shnum at 0x3c, e_shstrndx at 0x3e.
func dumpELF(data []byte) error {
	if len(data) < 64 {
		return fmt.Errorf("cppnc-tool: ELF header truncated")
	}

	eType := binary.LittleEndian.Uint16(data[16:18])
	eMachine := binary.LittleEndian.Uint16(data[18:20])
	shoff := binary.LittleEndian.Uint64(data[0x28:0x30])
	shentsize := binary.LittleEndian.Uint16(data[0x3a:0x3c])
	shnum := binary.LittleEndian.Uint16(data[0x3c:0x3e])
	shstrndx := binary.LittleEndian.Uint16(data[0x3e:0x40])

	fmt.Printf("format:  ELF64 (type %d, machine %d)\n", eType, eMachine)
	fmt.Printf("sections: %d (section header table at offset %d, shstrndx %d)\n", shnum, shoff, shstrndx)

	if shstrndx >= shnum {
		return nil
	}

	strtabHdr := data[shoff+uint64(shstrndx)*uint64(shentsize):]
	strtabOff := binary.LittleEndian.Uint64(strtabHdr[0x18:0x20])

	for i := uint16(0); i < shnum; i++ {
		hdr := data[shoff+uint64(i)*uint64(shentsize):]
		nameOff := binary.LittleEndian.Uint32(hdr[0:4])
		size := binary.LittleEndian.Uint64(hdr[0x20:0x28])

		name := cstringAt(data, strtabOff+uint64(nameOff))
		fmt.Printf("  [%d] %-12s %d bytes\n", i, name, size)
	}

	return nil
}

func cstringAt(data []byte, off uint64) string {
	if off >= uint64(len(data)) {
		return ""
	}

	end := off
	for end < uint64(len(data)) && data[end] != 0 {
		end++
	}

	return string(data[off:end])
}
