package bundle_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/importcost/internal/bundle"
	"github.com/Sumatoshi-tech/importcost/pkg/importmodel"
)

// installPackage writes an installed package with the given entry source.
func installPackage(t *testing.T, projectDir, name, indexJS string) importmodel.Package {
	t.Helper()

	pkgDir := filepath.Join(projectDir, "node_modules", name)
	require.NoError(t, os.MkdirAll(pkgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "package.json"),
		[]byte(`{"name":"`+name+`","version":"1.0.0","main":"index.js"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "index.js"), []byte(indexJS), 0o644))

	return importmodel.Package{
		Name:      name,
		Directory: pkgDir,
		Version:   "1.0.0",
	}
}

func newSizer(t *testing.T) *bundle.Sizer {
	t.Helper()

	sizer, err := bundle.New(bundle.Config{WorkRoot: t.TempDir()})
	require.NoError(t, err)

	return sizer
}

func wholeModuleDecl(name string) importmodel.Declaration {
	return importmodel.Declaration{
		Name:   name,
		Line:   1,
		String: `import * as entire from "` + name + `"; console.log(entire);`,
	}
}

func TestSizer_MeasuresBundle(t *testing.T) {
	t.Parallel()

	project := t.TempDir()
	payload := `module.exports = { text: "` + strings.Repeat("abcdefgh", 512) + `" };`
	pkg := installPackage(t, project, "payload-lib", payload)

	res, err := newSizer(t).Size(context.Background(), wholeModuleDecl("payload-lib"), pkg)
	require.NoError(t, err)

	assert.Greater(t, res.Size, 4000)
	assert.Positive(t, res.Gzip)
	assert.LessOrEqual(t, res.Gzip, res.Size)

	// Highly repetitive payload compresses hard.
	assert.Less(t, res.Gzip, res.Size/2)
}

func TestSizer_ProductionDeadCodeEliminated(t *testing.T) {
	t.Parallel()

	project := t.TempDir()
	source := `
if (process.env.NODE_ENV === "production") {
  module.exports = { mode: "prod" };
} else {
  module.exports = { mode: "dev", blob: "` + strings.Repeat("devonly!", 4096) + `" };
}
`
	pkg := installPackage(t, project, "env-lib", source)

	res, err := newSizer(t).Size(context.Background(), wholeModuleDecl("env-lib"), pkg)
	require.NoError(t, err)

	// The development branch is eliminated, so the 32 KB blob never ships.
	assert.Less(t, res.Size, 2000)
	assert.Positive(t, res.Size)
}

func TestSizer_ExternalsNotCounted(t *testing.T) {
	t.Parallel()

	project := t.TempDir()
	installPackage(t, project, "heavy-peer", `module.exports = "`+strings.Repeat("peerdata", 4096)+`";`)

	pkg := installPackage(t, project, "host-lib", `
const peer = require("heavy-peer");
module.exports = function () { return peer; };
`)
	pkg.PeerDependencies = []string{"heavy-peer"}

	res, err := newSizer(t).Size(context.Background(), wholeModuleDecl("host-lib"), pkg)
	require.NoError(t, err)

	// Only glue code remains once the peer is external.
	assert.Positive(t, res.Size)
	assert.Less(t, res.Size, 2000)
}

func TestSizer_NodeBuiltinsExternal(t *testing.T) {
	t.Parallel()

	project := t.TempDir()
	pkg := installPackage(t, project, "fs-lib", `
const fs = require("fs");
module.exports = function (p) { return fs.existsSync(p); };
`)

	res, err := newSizer(t).Size(context.Background(), wholeModuleDecl("fs-lib"), pkg)
	require.NoError(t, err)
	assert.Positive(t, res.Size)
}

func TestSizer_BundleFailure(t *testing.T) {
	t.Parallel()

	project := t.TempDir()
	pkg := installPackage(t, project, "broken-lib", `this is not javascript {{{`)

	_, err := newSizer(t).Size(context.Background(), wholeModuleDecl("broken-lib"), pkg)
	require.Error(t, err)

	var bundleErr *importmodel.BundleError

	require.ErrorAs(t, err, &bundleErr)
	assert.Equal(t, "broken-lib", bundleErr.Name)
}

func TestSizer_Timeout(t *testing.T) {
	t.Parallel()

	project := t.TempDir()
	pkg := installPackage(t, project, "slow-lib", `module.exports = 1;`)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()

	// Let the deadline expire before the build starts.
	time.Sleep(time.Millisecond)

	_, err := newSizer(t).Size(ctx, wholeModuleDecl("slow-lib"), pkg)
	require.Error(t, err)

	var timeout *importmodel.TimeoutError

	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "slow-lib", timeout.Name)
}

func TestSizer_WorkDirRemoved(t *testing.T) {
	t.Parallel()

	workRoot := t.TempDir()
	sizer, err := bundle.New(bundle.Config{WorkRoot: workRoot})
	require.NoError(t, err)

	project := t.TempDir()
	pkg := installPackage(t, project, "tiny-lib", `module.exports = 1;`)

	_, err = sizer.Size(context.Background(), wholeModuleDecl("tiny-lib"), pkg)
	require.NoError(t, err)

	entries, err := os.ReadDir(workRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSizer_CleanupRemovesWorkRoot(t *testing.T) {
	t.Parallel()

	workRoot := filepath.Join(t.TempDir(), "work")
	sizer, err := bundle.New(bundle.Config{WorkRoot: workRoot})
	require.NoError(t, err)

	require.NoError(t, sizer.Cleanup())

	_, statErr := os.Stat(workRoot)
	assert.True(t, os.IsNotExist(statErr))
}
