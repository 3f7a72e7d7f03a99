package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cppnc/cppnc/internal/includeresolve"
	"github.com/cppnc/cppnc/internal/preprocessor"
)

var (
	linemapIncludeDirs []string
	linemapIdentity    string
)

func init() {
	linemapCmd.Flags().StringArrayVarP(&linemapIncludeDirs, "include", "I", nil, "add include directory (repeatable)")
	linemapCmd.Flags().StringVar(&linemapIdentity, "identity", "msvc", "seed macro identity: msvc|gcc")
	rootCmd.AddCommand(linemapCmd)
}

var linemapCmd = &cobra.Command{
	Use:   "linemap <source-file>",
	Short: "Preprocess a source file and print its preprocessed-line to source-line map",
	Args:  cobra.ExactArgs(1),
	RunE:  runLinemap,
}

func runLinemap(_ *cobra.Command, args []string) error {
	dirs, err := includeresolve.ExpandDirs(linemapIncludeDirs)
	if err != nil {
		return err
	}

	identity := preprocessor.IdentityMSVC
	if linemapIdentity == "gcc" || linemapIdentity == "clang" {
		identity = preprocessor.IdentityGCCClang
	}

	pp := preprocessor.New(dirs, identity)

	if _, err := pp.Run(args[0]); err != nil {
		return err
	}

	lm := pp.LineMap()

	fmt.Printf("%-6s %-30s %-6s %s\n", "line", "file", "src", "parent")

	for i := 1; i <= lm.Len(); i++ {
		entry, ok := lm.Lookup(i)
		if !ok {
			continue
		}

		fmt.Printf("%-6d %-30s %-6d %d\n", i, lm.FilePath(entry.SourceFileIndex), entry.SourceLine, entry.ParentLine)
	}

	return nil
}
