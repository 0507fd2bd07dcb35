// Package lsp provides the stdio language server that feeds editor overlays
// with per-import bundle sizes.
package lsp

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"github.com/Sumatoshi-tech/importcost/internal/cost"
	"github.com/Sumatoshi-tech/importcost/pkg/importmodel"
	"github.com/Sumatoshi-tech/importcost/pkg/version"
)

// serverName identifies the server in the initialize handshake.
const serverName = "importcost"

// entryStore is a thread-safe store of sized entries keyed by document URI.
type entryStore struct {
	mu      sync.RWMutex
	entries map[string][]importmodel.Entry
}

func newEntryStore() *entryStore {
	return &entryStore{entries: make(map[string][]importmodel.Entry)}
}

func (es *entryStore) Set(uri string, entries []importmodel.Entry) {
	es.mu.Lock()
	defer es.mu.Unlock()

	es.entries[uri] = entries
}

func (es *entryStore) Get(uri string) ([]importmodel.Entry, bool) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	entries, ok := es.entries[uri]

	return entries, ok
}

func (es *entryStore) Delete(uri string) {
	es.mu.Lock()
	defer es.mu.Unlock()

	delete(es.entries, uri)
}

// Server implements the importcost LSP server. Every document change runs
// the sizing pipeline; the per-file debounce registry inside the service
// supersedes stale runs as the user types.
type Server struct {
	service *cost.Service
	cfg     cost.Config
	store   *entryStore
	logger  *slog.Logger
	handler protocol.Handler
}

// NewServer creates an importcost LSP server around a shared service.
func NewServer(service *cost.Service, cfg cost.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	srv := &Server{
		service: service,
		cfg:     cfg,
		store:   newEntryStore(),
		logger:  logger,
	}

	srv.handler = protocol.Handler{
		Initialize:            srv.initialize,
		Initialized:           srv.initialized,
		Shutdown:              srv.shutdown,
		SetTrace:              srv.setTrace,
		TextDocumentDidOpen:   srv.didOpen,
		TextDocumentDidChange: srv.didChange,
		TextDocumentDidClose:  srv.didClose,
		TextDocumentHover:     srv.hover,
	}

	return srv
}

// Run starts the LSP server on stdio. It blocks until the client disconnects.
func (srv *Server) Run() error {
	lspServer := server.NewServer(&srv.handler, serverName, false)

	if err := lspServer.RunStdio(); err != nil {
		return fmt.Errorf("lsp server: %w", err)
	}

	return nil
}

func (srv *Server) initialize(_ *glsp.Context, _ *protocol.InitializeParams) (any, error) {
	capabilities := srv.handler.CreateServerCapabilities()

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    serverName,
			Version: &version.Version,
		},
	}, nil
}

func (srv *Server) initialized(_ *glsp.Context, _ *protocol.InitializedParams) error {
	return nil
}

func (srv *Server) shutdown(_ *glsp.Context) error {
	protocol.SetTraceValue(protocol.TraceValueOff)
	srv.service.Cleanup()

	return nil
}

func (srv *Server) setTrace(_ *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)

	return nil
}

func (srv *Server) didOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	go srv.analyze(ctx, params.TextDocument.URI, params.TextDocument.Text)

	return nil
}

func (srv *Server) didChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	if len(params.ContentChanges) > 0 {
		if change, changeOK := params.ContentChanges[0].(map[string]any); changeOK {
			if text, textOK := change["text"].(string); textOK {
				go srv.analyze(ctx, uri, text)
			}
		}
	}

	return nil
}

func (srv *Server) didClose(_ *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	srv.store.Delete(params.TextDocument.URI)

	return nil
}

// analyze runs the sizing pipeline for one document revision and publishes
// the sizes as hint diagnostics. A revision superseded by a newer keystroke
// ends with a DebounceError and publishes nothing.
func (srv *Server) analyze(ctx *glsp.Context, uri, text string) {
	fileName := uriPath(uri)
	language := importmodel.DetectLanguage(fileName)

	emitter := srv.service.ImportCost(context.Background(), fileName, text, language, srv.cfg)

	for event := range emitter.Events() {
		switch event.Kind {
		case cost.EventDone:
			srv.store.Set(uri, event.Entries)
			srv.publishSizes(ctx, uri, event.Entries)
		case cost.EventError:
			srv.logger.Debug("analysis ended without result", "uri", uri, "error", event.Err)
		}
	}
}

// publishSizes surfaces one hint diagnostic per sized import line.
func (srv *Server) publishSizes(ctx *glsp.Context, uri string, entries []importmodel.Entry) {
	severity := protocol.DiagnosticSeverityHint
	source := serverName

	diagnostics := make([]protocol.Diagnostic, 0, len(entries))

	for _, entry := range entries {
		line := protocol.UInteger(entry.Line - 1)

		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range: protocol.Range{
				Start: protocol.Position{Line: line, Character: 0},
				End:   protocol.Position{Line: line, Character: 0},
			},
			Severity: &severity,
			Source:   &source,
			Message:  entryLabel(entry),
		})
	}

	ctx.Notify("textDocument/publishDiagnostics", &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

func (srv *Server) hover(_ *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	entries, ok := srv.store.Get(params.TextDocument.URI)
	if !ok {
		return nil, nil // LSP protocol expects nil hover when no document found.
	}

	line := int(params.Position.Line) + 1

	for _, entry := range entries {
		if entry.Line != line {
			continue
		}

		return &protocol.Hover{
			Contents: protocol.MarkupContent{
				Kind:  protocol.MarkupKindMarkdown,
				Value: fmt.Sprintf("**%s** — %s", entry.Name, entryLabel(entry)),
			},
		}, nil
	}

	return nil, nil
}

// entryLabel renders the overlay text for one entry.
func entryLabel(entry importmodel.Entry) string {
	if entry.Error != nil {
		return entry.Error.Error()
	}

	if entry.Size == 0 {
		return "no measurable output"
	}

	return fmt.Sprintf("%s (%s gzipped)",
		humanize.Bytes(uint64(entry.Size)), humanize.Bytes(uint64(entry.Gzip)))
}

// uriPath converts a file:// URI to a filesystem path, tolerating plain
// paths from nonconforming clients.
func uriPath(uri string) string {
	if !strings.HasPrefix(uri, "file://") {
		return uri
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return strings.TrimPrefix(uri, "file://")
	}

	return parsed.Path
}
