package commands

import (
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/importcost/internal/config"
	"github.com/Sumatoshi-tech/importcost/internal/lsp"
	"github.com/Sumatoshi-tech/importcost/internal/observability"
)

// ServeCommand holds the flags for the serve command.
type ServeCommand struct {
	configPath  string
	metricsAddr string
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &ServeCommand{}

	cobraCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the editor server (LSP, stdio mode)",
		Long: `Serve starts a language server that sizes the imports of every open
document as it changes and publishes the results as hint diagnostics and
hovers for editor overlays.`,
		RunE: cmd.Run,
	}

	cobraCmd.Flags().StringVarP(&cmd.configPath, "config", "c", "", "Config file path")
	cobraCmd.Flags().StringVar(&cmd.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	return cobraCmd
}

// Run executes the serve command. It blocks until the client disconnects.
func (c *ServeCommand) Run(cobraCmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		return err
	}

	if cobraCmd.Flags().Changed("metrics-addr") {
		cfg.Serve.MetricsAddr = c.metricsAddr
	}

	metrics := observability.NewMetrics()

	service, err := buildService(cfg, metrics)
	if err != nil {
		return err
	}
	defer service.Cleanup()

	if cfg.Serve.MetricsAddr != "" {
		go serveMetrics(cfg.Serve.MetricsAddr, metrics)
	}

	return lsp.NewServer(service, requestConfig(cfg), slog.Default()).Run()
}

func serveMetrics(addr string, metrics *observability.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Default().Warn("metrics endpoint failed", "addr", addr, "error", err)
	}
}
