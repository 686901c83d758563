package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/surreyclinic/intake"
	"github.com/surreyclinic/intake/internal/logging"
	mcpadapter "github.com/surreyclinic/intake/pkg/adapters/mcp"
	"github.com/surreyclinic/intake/pkg/adapters/openai"
	"github.com/surreyclinic/intake/pkg/config"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the intake engine as an MCP server, so AI agents and staff
tooling can drive interviews as tools (start_intake, submit_utterance,
get_record, end_intake).

Supported Transports:
- stdio (default): Standard Input/Output. Ideal for local process integration.
- sse: Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Run: func(cmd *cobra.Command, args []string) {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}

		scr, err := scriptFromFlags(cmd, args)
		if err != nil {
			fmt.Printf("Error loading script: %v\n", err)
			os.Exit(1)
		}

		// Logs go to stderr so they never corrupt JSON-RPC on stdout.
		logger := logging.New(parseLevel(cfg.LogLevel))

		opts := []intake.Option{
			intake.WithScript(scr),
			intake.WithLogger(logger),
			intake.WithExtractTimeout(cfg.ExtractTimeout),
		}
		if cfg.OpenAI.APIKey != "" {
			opts = append(opts, intake.WithExtractor(openai.New(cfg.OpenAI.APIKey)))
		}
		assistant := intake.New(opts...)

		srv := mcpadapter.NewServer(assistant.Orchestrator(), assistant.Script())

		switch transport {
		case "stdio":
			logger.Info("starting intake MCP server (stdio)")
			if err := srv.ServeStdio(); err != nil {
				logger.Error("MCP server execution failed", "err", err)
				os.Exit(1)
			}
		case "sse":
			logger.Info("starting intake MCP server (SSE)", "port", port)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := srv.ServeSSE(ctx, port); err != nil {
				if err != http.ErrServerClosed {
					logger.Error("MCP server execution failed", "err", err)
					os.Exit(1)
				}
			}
			logger.Info("MCP server stopped gracefully")
		default:
			fmt.Printf("Unknown transport: %s. Supported: stdio, sse\n", transport)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8081, "Port to listen on (only for SSE)")
}
