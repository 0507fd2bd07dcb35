package extract_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/importcost/internal/extract"
	"github.com/Sumatoshi-tech/importcost/pkg/importmodel"
)

const testFileJS = "/project/src/app.js"

func extractJS(t *testing.T, source string) []importmodel.Declaration {
	t.Helper()

	decls, err := extract.New().Extract(testFileJS, source, importmodel.JavaScript)
	require.NoError(t, err)

	return decls
}

func TestExtract_StaticImportForms(t *testing.T) {
	t.Parallel()

	source := `
import { expect } from 'chai';
import React from 'react';
import * as path from 'pathological';
import 'sideeffect';
`

	decls := extractJS(t, source)
	require.Len(t, decls, 4)

	assert.Equal(t, "chai", decls[0].Name)
	assert.Equal(t, 2, decls[0].Line)
	assert.Equal(t, `import { expect } from "chai"; console.log(expect);`, decls[0].String)

	// Default, namespace, and bare imports all bind the whole module.
	for _, decl := range decls[1:] {
		assert.Contains(t, decl.String, "import * as entire from")
	}

	assert.Equal(t, "react", decls[1].Name)
	assert.Equal(t, 3, decls[1].Line)
	assert.Equal(t, "pathological", decls[2].Name)
	assert.Equal(t, "sideeffect", decls[3].Name)
}

func TestExtract_RequireAndDynamicImport(t *testing.T) {
	t.Parallel()

	source := "const chai = require('chai');\n" +
		"const tpl = require(`lodash`);\n" +
		"const lazy = import('dayjs');\n"

	decls := extractJS(t, source)
	require.Len(t, decls, 3)

	assert.Equal(t, "chai", decls[0].Name)
	assert.Equal(t, "lodash", decls[1].Name)
	assert.Equal(t, "dayjs", decls[2].Name)

	for _, decl := range decls {
		assert.Contains(t, decl.String, "import * as entire from")
	}
}

func TestExtract_RequireMatchesDefaultImport(t *testing.T) {
	t.Parallel()

	viaRequire := extractJS(t, "const chai = require('chai');\n")
	viaImport := extractJS(t, "import chai from 'chai';\n")
	viaDynamic := extractJS(t, "const p = import('chai');\n")

	require.Len(t, viaRequire, 1)
	require.Len(t, viaImport, 1)
	require.Len(t, viaDynamic, 1)

	// A production bundler cannot distinguish these forms.
	assert.Equal(t, viaRequire[0].String, viaImport[0].String)
	assert.Equal(t, viaRequire[0].String, viaDynamic[0].String)
}

func TestExtract_BindingOrderIsCanonicalized(t *testing.T) {
	t.Parallel()

	first := extractJS(t, "import { zebra, apple } from 'pkg';\n")
	second := extractJS(t, "import { apple, zebra } from 'pkg';\n")

	require.Len(t, first, 1)
	require.Len(t, second, 1)

	assert.Equal(t, first[0].String, second[0].String)
	assert.Equal(t, `import { apple, zebra } from "pkg"; console.log(apple, zebra);`, first[0].String)
}

func TestExtract_AliasBindsExportedName(t *testing.T) {
	t.Parallel()

	decls := extractJS(t, "import { expect as must } from 'chai';\n")
	require.Len(t, decls, 1)

	assert.Equal(t, `import { expect } from "chai"; console.log(expect);`, decls[0].String)
}

func TestExtract_InterpolatedSpecifierSkipped(t *testing.T) {
	t.Parallel()

	source := "const name = 'chai';\n" +
		"const a = require(`prefix-${name}`);\n" +
		"const b = require(name);\n" +
		"import real from 'real-pkg';\n"

	decls := extractJS(t, source)
	require.Len(t, decls, 1)
	assert.Equal(t, "real-pkg", decls[0].Name)
}

func TestExtract_PathSpecifiersFiltered(t *testing.T) {
	t.Parallel()

	source := `
import local from './local';
import parent from '../parent';
import abs from '/abs/path';
import kept from 'kept';
`

	decls := extractJS(t, source)
	require.Len(t, decls, 1)
	assert.Equal(t, "kept", decls[0].Name)
}

func TestExtract_ScopedAndSuffixSpecifiers(t *testing.T) {
	t.Parallel()

	source := `
import a from '@scope/pkg';
import b from '@scope/pkg/sub';
import c from 'chai/abc';
`

	decls := extractJS(t, source)
	require.Len(t, decls, 3)

	assert.Equal(t, "@scope/pkg", decls[0].Name)
	assert.Equal(t, "@scope/pkg/sub", decls[1].Name)
	assert.Equal(t, "chai/abc", decls[2].Name)
}

func TestExtract_TypeScript(t *testing.T) {
	t.Parallel()

	source := `
import type { Options } from 'config-lib';
import { useState } from 'react';

const x: number = 1;
export default x;
`

	decls, err := extract.New().Extract("/project/src/app.ts", source, importmodel.TypeScript)
	require.NoError(t, err)

	// Type-only imports contribute no bundle bytes.
	require.Len(t, decls, 1)
	assert.Equal(t, "react", decls[0].Name)
	assert.Equal(t, 3, decls[0].Line)
}

func TestExtract_TSXUsesTSXGrammar(t *testing.T) {
	t.Parallel()

	source := `
import React from 'react';

export const App = () => <div className="app">hello</div>;
`

	decls, err := extract.New().Extract("/project/src/app.tsx", source, importmodel.TypeScript)
	require.NoError(t, err)
	require.Len(t, decls, 1)
	assert.Equal(t, "react", decls[0].Name)
}

func TestExtract_SyntaxErrorIsFatal(t *testing.T) {
	t.Parallel()

	_, err := extract.New().Extract(testFileJS, "import { from 'nowhere;\n", importmodel.JavaScript)
	require.Error(t, err)

	var parseErr *importmodel.ParseError

	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, testFileJS, parseErr.FileName)
}

func TestExtract_UnknownLanguageIsEmpty(t *testing.T) {
	t.Parallel()

	decls, err := extract.New().Extract(testFileJS, "import x from 'y';", importmodel.Language("cobol"))
	require.NoError(t, err)
	assert.Empty(t, decls)
}

func TestExtract_Vue(t *testing.T) {
	t.Parallel()

	source := `<template>
  <div>{{ greeting }}</div>
</template>

<script lang="ts">
import { ref } from 'vue-reactivity';

export default { setup() { return { greeting: ref('hi') }; } };
</script>
`

	decls, err := extract.New().Extract("/project/src/App.vue", source, importmodel.Vue)
	require.NoError(t, err)
	require.Len(t, decls, 1)

	assert.Equal(t, "vue-reactivity", decls[0].Name)

	// Line numbers refer to the original component file, not the block.
	assert.Equal(t, 6, decls[0].Line)
}

func TestExtract_SvelteModuleAndInstanceScripts(t *testing.T) {
	t.Parallel()

	source := `<script context="module">
import shared from 'shared-lib';
</script>

<script>
import local from 'widget-lib';
</script>

<h1>hello</h1>
`

	decls, err := extract.New().Extract("/project/src/App.svelte", source, importmodel.Svelte)
	require.NoError(t, err)
	require.Len(t, decls, 2)

	assert.Equal(t, "shared-lib", decls[0].Name)
	assert.Equal(t, 2, decls[0].Line)
	assert.Equal(t, "widget-lib", decls[1].Name)
	assert.Equal(t, 6, decls[1].Line)
}

func TestExtract_ComponentWithoutScriptIsEmpty(t *testing.T) {
	t.Parallel()

	decls, err := extract.New().Extract("/project/src/App.vue", "<template><div/></template>", importmodel.Vue)
	require.NoError(t, err)
	assert.Empty(t, decls)
}

func TestExtract_MixedDefaultAndNamedBindsWholeModule(t *testing.T) {
	t.Parallel()

	decls := extractJS(t, "import React, { useState } from 'react';\n")
	require.Len(t, decls, 1)

	assert.Contains(t, decls[0].String, "import * as entire from")
}

func TestExtract_NestedRequire(t *testing.T) {
	t.Parallel()

	source := `
function load() {
  if (process.env.FEATURE) {
    return require('feature-pkg');
  }
  return null;
}
`

	decls := extractJS(t, source)
	require.Len(t, decls, 1)

	assert.Equal(t, "feature-pkg", decls[0].Name)
	assert.Equal(t, 4, decls[0].Line)
}
