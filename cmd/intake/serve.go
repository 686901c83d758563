package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/surreyclinic/intake"
	"github.com/surreyclinic/intake/internal/adapters/alert"
	"github.com/surreyclinic/intake/internal/adapters/httpapi"
	"github.com/surreyclinic/intake/internal/adapters/ws"
	"github.com/surreyclinic/intake/internal/logging"
	"github.com/surreyclinic/intake/pkg/adapters/openai"
	redisadapter "github.com/surreyclinic/intake/pkg/adapters/redis"
	"github.com/surreyclinic/intake/pkg/config"
	"github.com/surreyclinic/intake/pkg/observability"
	"github.com/surreyclinic/intake/pkg/ports"
	"github.com/surreyclinic/intake/pkg/script"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the intake server",
	Long: `Starts the intake engine in server mode, exposing the JSON API, the
websocket transport bridge at /ws, an SSE event stream and Prometheus metrics.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}

		var logger *slog.Logger
		if cfg.LogJSON {
			logger = logging.NewJSON(parseLevel(cfg.LogLevel))
		} else {
			logger = logging.New(parseLevel(cfg.LogLevel))
		}

		scr, err := loadServeScript(cmd, cfg)
		if err != nil {
			fmt.Printf("Error loading script: %v\n", err)
			os.Exit(1)
		}

		metrics := observability.NewMetrics("")
		broadcaster := observability.NewBroadcaster(16)

		opts := []intake.Option{
			intake.WithScript(scr),
			intake.WithLogger(logger),
			intake.WithExtractTimeout(cfg.ExtractTimeout),
			intake.WithLifecycleHooks(metrics.Hooks()),
		}
		if cfg.Flow.ConfidenceThreshold > 0 {
			opts = append(opts, intake.WithConfidenceThreshold(cfg.Flow.ConfidenceThreshold))
		}
		if cfg.Flow.MaxRepeats > 0 {
			opts = append(opts, intake.WithMaxRepeats(cfg.Flow.MaxRepeats))
		}
		if len(cfg.Flow.EmergencyKeywords) > 0 {
			opts = append(opts, intake.WithEmergencyKeywords(cfg.Flow.EmergencyKeywords))
		}

		sinks := []ports.EventSink{broadcaster}
		if cfg.Alert.WebhookURL != "" {
			alertOpts := []alert.Option{alert.WithLogger(logger)}
			if cfg.Alert.Timeout > 0 {
				alertOpts = append(alertOpts, alert.WithTimeout(cfg.Alert.Timeout))
			}
			sinks = append(sinks, alert.NewWebhook(cfg.Alert.WebhookURL, alertOpts...))
			logger.Info("staff alert webhook enabled", "url", cfg.Alert.WebhookURL)
		}
		opts = append(opts, intake.WithEventSinks(sinks...))

		var closeStore func() error
		if cfg.Redis.Address != "" {
			client := backend.NewClient(&backend.Options{
				Addr:     cfg.Redis.Address,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			storeOpts := []redisadapter.Option{redisadapter.WithTTL(cfg.SessionTTL)}
			if cfg.Redis.Prefix != "" {
				storeOpts = append(storeOpts, redisadapter.WithPrefix(cfg.Redis.Prefix))
			}
			store := redisadapter.NewFromClient(client, storeOpts...)
			closeStore = store.Close
			opts = append(opts,
				intake.WithStore(store),
				intake.WithLocker(redisadapter.NewLocker(client, cfg.Redis.Prefix)),
			)
			logger.Info("using redis session store", "address", cfg.Redis.Address)
		} else {
			logger.Info("using in-memory session store")
		}

		if cfg.OpenAI.APIKey != "" {
			var exOpts []openai.Option
			if cfg.OpenAI.BaseURL != "" {
				exOpts = append(exOpts, openai.WithBaseURL(cfg.OpenAI.BaseURL))
			}
			if cfg.OpenAI.Model != "" {
				exOpts = append(exOpts, openai.WithModel(cfg.OpenAI.Model))
			}
			opts = append(opts, intake.WithExtractor(openai.New(cfg.OpenAI.APIKey, exOpts...)))
		} else {
			logger.Warn("no OpenAI API key configured, falling back to the offline keyword extractor")
		}

		assistant := intake.New(opts...)

		api := httpapi.NewServer(assistant.Orchestrator(),
			httpapi.WithBroadcaster(broadcaster),
			httpapi.WithMetrics(metrics),
			httpapi.WithLogger(logger),
		)

		mux := http.NewServeMux()
		mux.Handle("/ws", ws.NewHandler(assistant.Orchestrator(), logger))
		mux.Handle("/", api.Handler())

		srv := &http.Server{
			Addr:    cfg.BindAddress,
			Handler: mux,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			logger.Info("intake server listening", "address", srv.Addr, "script", scr.Name())
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			logger.Error("server error", "err", err)
			os.Exit(1)

		case sig := <-shutdown:
			logger.Info("starting shutdown", "signal", sig.String())

			// Give outstanding turns a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("graceful shutdown did not complete", "err", err)
				if err := srv.Close(); err != nil {
					logger.Error("error closing server", "err", err)
				}
			}
			broadcaster.Close()
			if closeStore != nil {
				if err := closeStore(); err != nil {
					logger.Error("error closing session store", "err", err)
				}
			}
			logger.Info("intake server stopped")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// loadServeScript resolves the script for serve: --script flag over the
// config file's script_path over the embedded default.
func loadServeScript(cmd *cobra.Command, cfg *config.Config) (*script.Script, error) {
	path, _ := cmd.Flags().GetString("script")
	if path == "" {
		path = cfg.ScriptPath
	}
	if path == "" {
		return script.Default(), nil
	}
	return script.Load(path)
}
