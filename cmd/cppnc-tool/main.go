// Command cppnc-tool is a companion inspection CLI for the object-file
// writer and preprocessor line map: `dump` sniffs a COFF/ELF object's
// header and lists its sections (for COFF, also the symbol-table offset
// and symbol count), and `linemap` runs the
// preprocessor over a source file and prints its line map. Unlike
// cmd/cppnc (a thin, single-purpose flag-based driver), this tool has
// several independent subcommands, so it is built on cobra the way the
// teacher's own package-manager CLI is (_examples/CWBudde-go-dws's
// cmd/dwscript/cmd), rather than stdlib flag.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:     "cppnc-tool",
	Short:   "Inspect cppnc object files and preprocessor line maps",
	Version: version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
