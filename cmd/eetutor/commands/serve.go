package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/voltlab/eetutor-go/internal/logging"
	"github.com/voltlab/eetutor-go/internal/server"
	"github.com/voltlab/eetutor-go/internal/store"
	"github.com/voltlab/eetutor-go/internal/tracing"
)

// NewServeCmd constructs the `eetutor serve` command, which starts the HTTP
// server that answers solve requests.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the EE Tutor HTTP server",
		Long: `Start the EE Tutor HTTP server on localhost.

The server exposes POST /api/solve (multipart: question, pdf, images),
liveness and readiness probes, solve history, and Prometheus metrics.

Examples:
  eetutor serve
  eetutor serve --port 9090
  VLM_ENDPOINT=http://gpu-a:8000 eetutor serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting",
				slog.String("vlm_endpoint", os.Getenv("VLM_ENDPOINT")),
				slog.String("codegen_endpoint", os.Getenv("CODEGEN_ENDPOINT")),
			)

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			st, err := buildStack(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			// Open solve history store. EETUTOR_HISTORY_DB overrides the
			// default path (~/.eetutor/history.db). Set to "disabled" to disable.
			var historyStore store.HistoryStore
			dbPath := os.Getenv("EETUTOR_HISTORY_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = store.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					hs, hsErr := store.Open(dbPath)
					if hsErr != nil {
						log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
					} else {
						historyStore = hs
						defer func() { _ = hs.Close() }()
						log.Info("history: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via EETUTOR_HISTORY_DB=disabled")
			}

			srv, err := server.New(st.pipeline, &server.Config{
				Host:     host,
				Port:     port,
				Logger:   log,
				Pingers:  st.pingers,
				History:  historyStore,
				Registry: st.registry,
				APIKey:   os.Getenv("EETUTOR_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
