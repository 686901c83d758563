package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/surreyclinic/intake/pkg/script"
)

var rootCmd = &cobra.Command{
	Use:   "intake",
	Short: "Intake runs automated pre-appointment medical interviews",
	Long: `Intake walks callers through a scripted medical interview, collects a
structured intake record and escalates to clinic staff when an emergency
indicator surfaces. It serves HTTP and websocket transports, speaks MCP for
staff tooling, and can simulate interviews in the terminal.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(func() {
		// .env is optional, used for local development secrets.
		_ = godotenv.Load()
	})

	rootCmd.PersistentFlags().String("config", "", "Path to the YAML config file")
	rootCmd.PersistentFlags().String("script", "", "Path to an interview script (default: embedded script)")
}

// scriptFromFlags resolves the interview script: --script flag, then a bare
// path argument, then the embedded default.
func scriptFromFlags(cmd *cobra.Command, args []string) (*script.Script, error) {
	path, _ := cmd.Flags().GetString("script")
	if path == "" && len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return script.Default(), nil
	}
	return script.Load(path)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
