package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [script]",
	Short: "Check an interview script for consistency",
	Long: `Parses the script and reports duplicate nodes, unknown transition
targets, unreachable specialty entries and missing emergency exits.`,
	Run: func(cmd *cobra.Command, args []string) {
		scr, err := scriptFromFlags(cmd, args)
		if err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Script %q is valid: %d nodes, %d specialties ✅\n",
			scr.Name(), len(scr.Nodes()), len(scr.Specialties()))
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
