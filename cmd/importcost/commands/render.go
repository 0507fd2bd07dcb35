package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/importcost/pkg/importmodel"
)

// entryStatus renders the outcome column of one entry.
func entryStatus(entry importmodel.Entry) string {
	if entry.Error != nil {
		return color.New(color.FgRed).Sprint(errorType(entry.Error))
	}

	if entry.Size == 0 {
		return color.New(color.FgYellow).Sprint("no output")
	}

	return color.New(color.FgGreen).Sprint("ok")
}

// errorType returns the taxonomy tag of a pipeline error, falling back to
// the raw message.
func errorType(err error) string {
	var (
		parseErr    *importmodel.ParseError
		debounceErr *importmodel.DebounceError
		timeoutErr  *importmodel.TimeoutError
		bundleErr   *importmodel.BundleError
	)

	switch {
	case errors.As(err, &parseErr):
		return parseErr.Type()
	case errors.As(err, &debounceErr):
		return debounceErr.Type()
	case errors.As(err, &timeoutErr):
		return timeoutErr.Type()
	case errors.As(err, &bundleErr):
		return bundleErr.Type()
	default:
		return err.Error()
	}
}

// renderTable prints one file's entries, heaviest first.
func renderTable(w io.Writer, fileName string, entries []importmodel.Entry) {
	fmt.Fprintf(w, "\n%s\n", fileName)

	if len(entries) == 0 {
		fmt.Fprintln(w, "  no external imports")

		return
	}

	sorted := append([]importmodel.Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Size > sorted[j].Size })

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Import", "Line", "Size", "Gzipped", "Status"})

	for _, entry := range sorted {
		tbl.AppendRow(table.Row{
			entry.Name,
			entry.Line,
			humanize.Bytes(uint64(entry.Size)),
			humanize.Bytes(uint64(entry.Gzip)),
			entryStatus(entry),
		})
	}

	tbl.Render()
}

// jsonEntry is the machine-readable form of one entry.
type jsonEntry struct {
	Name   string `json:"name"`
	Line   int    `json:"line"`
	Size   int    `json:"size"`
	Gzip   int    `json:"gzip"`
	Error  string `json:"error,omitempty"`
	String string `json:"string"`
}

// renderJSON emits all results as a single JSON object keyed by file name.
func renderJSON(w io.Writer, results map[string][]importmodel.Entry) error {
	out := make(map[string][]jsonEntry, len(results))

	for fileName, entries := range results {
		converted := make([]jsonEntry, 0, len(entries))

		for _, entry := range entries {
			je := jsonEntry{
				Name:   entry.Name,
				Line:   entry.Line,
				Size:   entry.Size,
				Gzip:   entry.Gzip,
				String: entry.String,
			}

			if entry.Error != nil {
				je.Error = errorType(entry.Error)
			}

			converted = append(converted, je)
		}

		out[fileName] = converted
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("encode json output: %w", err)
	}

	return nil
}

// writeReport renders the HTML size chart for all analyzed files.
func writeReport(path string, results map[string][]importmodel.Entry) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer file.Close()

	if err := renderReport(file, results); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	fmt.Fprintf(os.Stderr, "report written to %s\n", filepath.Clean(path))

	return nil
}
