package importmodel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/importcost/pkg/importmodel"
)

func TestDetectLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		fileName string
		want     importmodel.Language
	}{
		{"/p/app.js", importmodel.JavaScript},
		{"/p/App.JSX", importmodel.JavaScript},
		{"/p/mod.mjs", importmodel.JavaScript},
		{"/p/mod.cjs", importmodel.JavaScript},
		{"/p/app.ts", importmodel.TypeScript},
		{"/p/App.tsx", importmodel.TypeScript},
		{"/p/App.vue", importmodel.Vue},
		{"/p/App.svelte", importmodel.Svelte},
		{"/p/readme.md", importmodel.Language("")},
		{"/p/Makefile", importmodel.Language("")},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, importmodel.DetectLanguage(tt.fileName), tt.fileName)
	}
}

func TestLanguageKnown(t *testing.T) {
	t.Parallel()

	assert.True(t, importmodel.JavaScript.Known())
	assert.True(t, importmodel.Svelte.Known())
	assert.False(t, importmodel.Language("perl").Known())
	assert.False(t, importmodel.Language("").Known())
}

func TestErrorTypes(t *testing.T) {
	t.Parallel()

	parseErr := &importmodel.ParseError{FileName: "/p/app.js"}
	assert.Equal(t, importmodel.TypeParseError, parseErr.Type())
	assert.Contains(t, parseErr.Error(), "/p/app.js")

	debounceErr := &importmodel.DebounceError{FileName: "/p/app.js"}
	assert.Equal(t, importmodel.TypeDebounceError, debounceErr.Type())

	timeoutErr := &importmodel.TimeoutError{Name: "chai"}
	assert.Equal(t, importmodel.TypeTimeoutError, timeoutErr.Type())
	assert.Contains(t, timeoutErr.Error(), "chai")

	bundleErr := &importmodel.BundleError{Name: "jest", Detail: "resolve failed"}
	assert.Equal(t, importmodel.TypeBundleError, bundleErr.Type())
	assert.Contains(t, bundleErr.Error(), "jest")
}
