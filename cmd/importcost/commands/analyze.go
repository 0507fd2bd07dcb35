package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/importcost/internal/config"
	"github.com/Sumatoshi-tech/importcost/internal/cost"
	"github.com/Sumatoshi-tech/importcost/pkg/importmodel"
)

// AnalyzeCommand holds the flags for the analyze command.
type AnalyzeCommand struct {
	configPath  string
	jsonOutput  bool
	reportPath  string
	concurrent  bool
	maxCallTime int
}

// NewAnalyzeCommand creates and configures the analyze command.
func NewAnalyzeCommand() *cobra.Command {
	cmd := &AnalyzeCommand{}

	cobraCmd := &cobra.Command{
		Use:   "analyze <file>...",
		Short: "Size the imports of one or more source files",
		Long: `Analyze extracts the external imports of each file, bundles a synthetic
entry per import in production mode, and reports the minified and gzipped
byte cost of every import line.`,
		Args: cobra.MinimumNArgs(1),
		RunE: cmd.Run,
	}

	cobraCmd.Flags().StringVarP(&cmd.configPath, "config", "c", "", "Config file path")
	cobraCmd.Flags().BoolVar(&cmd.jsonOutput, "json", false, "Emit JSON instead of a table")
	cobraCmd.Flags().StringVar(&cmd.reportPath, "report", "", "Write an HTML size chart to the given path")
	cobraCmd.Flags().BoolVar(&cmd.concurrent, "concurrent", config.DefaultConcurrent, "Size imports in parallel")
	cobraCmd.Flags().IntVar(&cmd.maxCallTime, "max-call-time", config.DefaultMaxCallTimeMS, "Per-import sizing deadline in ms (0 = unbounded)")

	return cobraCmd
}

// Run executes the analyze command.
func (c *AnalyzeCommand) Run(cobraCmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		return err
	}

	if cobraCmd.Flags().Changed("concurrent") {
		cfg.Concurrent = c.concurrent
	}

	if cobraCmd.Flags().Changed("max-call-time") {
		cfg.MaxCallTimeMS = c.maxCallTime
	}

	service, err := buildService(cfg, nil)
	if err != nil {
		return err
	}
	defer service.Cleanup()

	results := make(map[string][]importmodel.Entry, len(args))

	for _, arg := range args {
		fileName, entries, err := analyzeFile(cobraCmd.Context(), service, cfg, arg)
		if err != nil {
			return err
		}

		results[fileName] = entries
	}

	if c.reportPath != "" {
		if err := writeReport(c.reportPath, results); err != nil {
			return err
		}
	}

	if c.jsonOutput {
		return renderJSON(os.Stdout, results)
	}

	for _, arg := range args {
		fileName, absErr := filepath.Abs(arg)
		if absErr != nil {
			fileName = arg
		}

		renderTable(os.Stdout, fileName, results[fileName])
	}

	return nil
}

// analyzeFile runs the pipeline on one file and drains its event stream.
func analyzeFile(ctx context.Context, service *cost.Service, cfg *config.Config, path string) (string, []importmodel.Entry, error) {
	fileName, err := filepath.Abs(path)
	if err != nil {
		return "", nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	source, err := os.ReadFile(fileName)
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", path, err)
	}

	language := importmodel.DetectLanguage(fileName)

	emitter := service.ImportCost(ctx, fileName, string(source), language, requestConfig(cfg))

	var entries []importmodel.Entry

	logger := slog.Default()

	for event := range emitter.Events() {
		switch event.Kind {
		case cost.EventStart:
			logger.Debug("sizing started", "file", path, "imports", len(event.Entries))
		case cost.EventCalculated:
			logger.Debug("import sized", "name", event.Entry.Name, "size", event.Entry.Size, "gzip", event.Entry.Gzip)
		case cost.EventDone:
			entries = event.Entries
		case cost.EventError:
			return "", nil, fmt.Errorf("analyze %s: %w", path, event.Err)
		}
	}

	return fileName, entries, nil
}
