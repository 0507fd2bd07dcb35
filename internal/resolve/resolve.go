// Package resolve locates installed packages for import specifiers.
package resolve

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/importcost/pkg/importmodel"
)

const (
	nodeModulesDir = "node_modules"
	manifestName   = "package.json"
)

// manifest is the subset of package.json the resolver consumes.
type manifest struct {
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	PeerDependencies map[string]string `json:"peerDependencies"`
	Externals        map[string]string `json:"externals"`
}

// Resolver maps import declarations to installed packages by walking the
// on-disk node_modules layout. It is stateless and safe for concurrent use.
type Resolver struct {
	logger *slog.Logger
}

// New creates a Resolver.
func New(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{logger: logger}
}

// Resolve locates the installed package for a declaration. It walks upward
// from the importing file's directory checking node_modules at each level.
// Returns nil when the package is not installed; the caller drops the
// declaration from all subsequent stages.
func (r *Resolver) Resolve(decl importmodel.Declaration) *importmodel.Package {
	pkgName := PackageName(decl.Name)
	if pkgName == "" {
		return nil
	}

	dir := filepath.Dir(decl.FileName)

	for {
		candidate := filepath.Join(dir, nodeModulesDir, pkgName)

		if pkg := r.readPackage(pkgName, candidate); pkg != nil {
			return pkg
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}

		dir = parent
	}
}

func (r *Resolver) readPackage(pkgName, dir string) *importmodel.Package {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return nil
	}

	var m manifest

	if err := json.Unmarshal(data, &m); err != nil {
		r.logger.Debug("malformed manifest", "package", pkgName, "dir", dir, "error", err)

		return nil
	}

	version := m.Version
	if version == "" {
		version = importmodel.UnknownVersion
	}

	return &importmodel.Package{
		Name:             pkgName,
		Directory:        dir,
		Version:          version,
		PeerDependencies: sortedKeys(m.PeerDependencies),
		MainExternals:    sortedKeys(m.Externals),
	}
}

// PackageName extracts the top-level package name from a specifier:
// "chai" from "chai/abc", "@scope/pkg" from "@scope/pkg/sub".
func PackageName(specifier string) string {
	parts := strings.Split(specifier, "/")

	if strings.HasPrefix(specifier, "@") {
		if len(parts) < 2 || parts[1] == "" {
			return ""
		}

		return parts[0] + "/" + parts[1]
	}

	return parts[0]
}

func sortedKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	// Deterministic order keeps bundler invocations and cache keys stable.
	slices.Sort(keys)

	return keys
}
