// Package bundle measures the production-bundle cost of a single import.
package bundle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/klauspost/compress/gzip"

	"github.com/Sumatoshi-tech/importcost/pkg/importmodel"
)

// entryFileName is the synthetic entry written into each ephemeral work dir.
const entryFileName = "entry.js"

// workRootName is the directory under the OS temp dir holding per-call
// work dirs.
const workRootName = "importcost-work"

// bundlerModule is the module path probed for the bundler version.
const bundlerModule = "github.com/evanw/esbuild"

// Config holds parameters for creating a Sizer.
type Config struct {
	// WorkRoot is the parent directory for ephemeral per-call work dirs.
	// Empty selects a directory under the OS temp dir.
	WorkRoot string

	Logger *slog.Logger
}

// Sizer bundles a synthetic entry per import in production mode and measures
// the minified output, raw and gzipped. Safe for concurrent use; every call
// gets a uniquely named work dir.
type Sizer struct {
	workRoot string
	logger   *slog.Logger
}

// New creates a Sizer rooted at cfg.WorkRoot.
func New(cfg Config) (*Sizer, error) {
	root := cfg.WorkRoot
	if root == "" {
		root = filepath.Join(os.TempDir(), workRootName)
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create work root: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Sizer{workRoot: root, logger: logger}, nil
}

// Cleanup removes the work root and everything under it.
func (s *Sizer) Cleanup() error {
	if err := os.RemoveAll(s.workRoot); err != nil {
		return fmt.Errorf("remove work root: %w", err)
	}

	return nil
}

// Size bundles the declaration's canonical statement and measures it.
// The context deadline bounds the build: on expiry the build is canceled and
// a TimeoutError returned. Bundler failures return a BundleError. The work
// dir is removed on every exit path.
func (s *Sizer) Size(ctx context.Context, decl importmodel.Declaration, pkg importmodel.Package) (importmodel.SizeResult, error) {
	var limit time.Duration
	if deadline, ok := ctx.Deadline(); ok {
		limit = time.Until(deadline).Round(time.Millisecond)
	}

	workDir, err := os.MkdirTemp(s.workRoot, "entry-*")
	if err != nil {
		return importmodel.SizeResult{}, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	entry := filepath.Join(workDir, entryFileName)

	if err := os.WriteFile(entry, []byte(decl.String), 0o644); err != nil {
		return importmodel.SizeResult{}, fmt.Errorf("write entry file: %w", err)
	}

	external := make([]string, 0, len(pkg.PeerDependencies)+len(pkg.MainExternals))
	external = append(external, pkg.PeerDependencies...)
	external = append(external, pkg.MainExternals...)

	// The entry lives in an ephemeral dir outside the project, so the
	// installed tree is reached NODE_PATH-style. A scoped package sits one
	// level below its node_modules dir.
	nodeModules := filepath.Dir(pkg.Directory)
	if strings.HasPrefix(pkg.Name, "@") {
		nodeModules = filepath.Dir(nodeModules)
	}

	opts := api.BuildOptions{
		EntryPoints:   []string{entry},
		AbsWorkingDir: workDir,
		Outfile:       filepath.Join(workDir, "out.js"),
		Bundle:        true,
		Write:         false,

		// Production mode: dead-code branches behind NODE_ENV checks are
		// eliminated, matching what a deployed application ships.
		Define:            map[string]string{"process.env.NODE_ENV": `"production"`},
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,

		// PlatformNode keeps node built-ins external so they do not inflate
		// the measurement.
		Platform: api.PlatformNode,
		Format:   api.FormatESModule,
		External: external,

		NodePaths: []string{nodeModules},

		LogLevel: api.LogLevelSilent,
	}

	buildCtx, ctxErr := api.Context(opts)
	if ctxErr != nil {
		return importmodel.SizeResult{}, &importmodel.BundleError{Name: decl.Name, Detail: ctxErr.Error()}
	}
	defer buildCtx.Dispose()

	results := make(chan api.BuildResult, 1)

	go func() {
		results <- buildCtx.Rebuild()
	}()

	select {
	case <-ctx.Done():
		buildCtx.Cancel()
		<-results

		if errors.Is(context.Cause(ctx), context.DeadlineExceeded) {
			return importmodel.SizeResult{}, &importmodel.TimeoutError{Name: decl.Name, Limit: limit}
		}

		return importmodel.SizeResult{}, context.Cause(ctx)
	case result := <-results:
		return s.measure(decl, result)
	}
}

func (s *Sizer) measure(decl importmodel.Declaration, result api.BuildResult) (importmodel.SizeResult, error) {
	if len(result.Errors) > 0 {
		return importmodel.SizeResult{}, &importmodel.BundleError{
			Name:   decl.Name,
			Detail: result.Errors[0].Text,
		}
	}

	var out []byte

	if len(result.OutputFiles) > 0 {
		out = result.OutputFiles[0].Contents
	}

	if len(out) == 0 {
		// No measurable output; reported as-is, never retried.
		return importmodel.SizeResult{}, nil
	}

	gz, err := gzipLength(out)
	if err != nil {
		return importmodel.SizeResult{}, fmt.Errorf("gzip measurement: %w", err)
	}

	return importmodel.SizeResult{Size: len(out), Gzip: gz}, nil
}

// gzipLength returns the compressed byte length of the bundle.
func gzipLength(data []byte) (int, error) {
	var buf bytes.Buffer

	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return 0, err
	}

	if _, err := w.Write(data); err != nil {
		return 0, err
	}

	if err := w.Close(); err != nil {
		return 0, err
	}

	return buf.Len(), nil
}

// BundlerVersion reports the esbuild module version linked into this binary.
func BundlerVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return importmodel.UnknownVersion
	}

	for _, dep := range info.Deps {
		if dep.Path == bundlerModule {
			return dep.Version
		}
	}

	return importmodel.UnknownVersion
}
