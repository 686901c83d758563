package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/surreyclinic/intake/internal/presentation/graph"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [script]",
	Short: "Export the interview flow visualization",
	Long:  `Outputs a Mermaid diagram (graph TD) of the interview script, including conditional branches and emergency escalation edges.`,
	Run: func(cmd *cobra.Command, args []string) {
		scr, err := scriptFromFlags(cmd, args)
		if err != nil {
			fmt.Printf("Error loading script: %v\n", err)
			os.Exit(1)
		}

		output := graph.GenerateMermaid(scr.Nodes(), nil)

		outPath, _ := cmd.Flags().GetString("output")
		if outPath == "" {
			fmt.Print(output)
			return
		}
		if err := os.WriteFile(outPath, []byte(output), 0o644); err != nil {
			fmt.Printf("Error writing %s: %v\n", outPath, err)
			os.Exit(1)
		}
		fmt.Printf("Graph written to %s\n", outPath)
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("output", "o", "", "Write the diagram to a file instead of stdout")
}
