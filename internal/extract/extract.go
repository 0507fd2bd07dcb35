// Package extract turns source buffers into normalized import declarations.
package extract

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/alexaandru/go-sitter-forest/javascript"
	"github.com/alexaandru/go-sitter-forest/tsx"
	"github.com/alexaandru/go-sitter-forest/typescript"
	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/Sumatoshi-tech/importcost/pkg/importmodel"
)

// grammar selects one of the compiled tree-sitter grammars.
type grammar int

const (
	grammarJavaScript grammar = iota
	grammarTypeScript
	grammarTSX
)

// languageCache holds lazily initialized tree-sitter languages.
// Grammar initialization is deferred until first use.
var languageCache sync.Map

var grammarFuncs = map[grammar]func() *sitter.Language{
	grammarJavaScript: func() *sitter.Language { return sitter.NewLanguage(javascript.GetLanguage()) },
	grammarTypeScript: func() *sitter.Language { return sitter.NewLanguage(typescript.GetLanguage()) },
	grammarTSX:        func() *sitter.Language { return sitter.NewLanguage(tsx.GetLanguage()) },
}

func language(g grammar) *sitter.Language {
	if cached, ok := languageCache.Load(g); ok {
		if lang, castOK := cached.(*sitter.Language); castOK {
			return lang
		}
	}

	lang := grammarFuncs[g]()
	languageCache.Store(g, lang)

	return lang
}

// grammarFor picks the grammar for a dialect. TSX files need the dedicated
// tsx grammar; plain JSX is handled by the javascript grammar itself.
func grammarFor(lang importmodel.Language, fileName string) grammar {
	if lang == importmodel.TypeScript {
		if strings.EqualFold(filepath.Ext(fileName), ".tsx") {
			return grammarTSX
		}

		return grammarTypeScript
	}

	return grammarJavaScript
}

// Extractor parses source buffers and emits normalized import declarations.
// It is stateless apart from pooled tree-sitter parsers and safe for
// concurrent use.
type Extractor struct {
	pools map[grammar]*sync.Pool
}

// New creates an Extractor with per-grammar parser pools.
func New() *Extractor {
	pools := make(map[grammar]*sync.Pool, len(grammarFuncs))

	for g := range grammarFuncs {
		g := g
		pools[g] = &sync.Pool{
			New: func() any {
				p := sitter.NewParser()
				p.SetLanguage(language(g))

				return p
			},
		}
	}

	return &Extractor{pools: pools}
}

// Extract parses source in the given dialect and returns its external import
// declarations. Component dialects (vue, svelte) have their script blocks
// isolated first. Unknown dialects yield an empty result. Unparseable source
// returns a ParseError.
func (e *Extractor) Extract(fileName, source string, lang importmodel.Language) ([]importmodel.Declaration, error) {
	switch lang {
	case importmodel.JavaScript, importmodel.TypeScript:
		return e.extractScript(fileName, source, lang, 0)
	case importmodel.Vue, importmodel.Svelte:
		return e.extractComponent(fileName, source)
	default:
		return nil, nil
	}
}

func (e *Extractor) extractComponent(fileName, source string) ([]importmodel.Declaration, error) {
	var decls []importmodel.Declaration

	for _, block := range scriptBlocks(source) {
		blockDecls, err := e.extractScript(fileName, block.source, block.lang, block.lineOffset)
		if err != nil {
			return nil, err
		}

		decls = append(decls, blockDecls...)
	}

	return decls, nil
}

func (e *Extractor) extractScript(fileName, source string, lang importmodel.Language, lineOffset int) ([]importmodel.Declaration, error) {
	g := grammarFor(lang, fileName)

	parser, ok := e.pools[g].Get().(*sitter.Parser)
	if !ok {
		return nil, &importmodel.ParseError{FileName: fileName, Detail: "parser pool corrupted"}
	}
	defer e.pools[g].Put(parser)

	src := []byte(source)

	tree, err := parser.ParseString(context.Background(), nil, src)
	if err != nil {
		return nil, &importmodel.ParseError{FileName: fileName, Detail: err.Error()}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.IsNull() || root.HasError() {
		return nil, &importmodel.ParseError{FileName: fileName, Detail: "syntax error"}
	}

	var raws []rawImport

	collect(root, src, &raws)

	decls := make([]importmodel.Declaration, 0, len(raws))

	for _, raw := range raws {
		if raw.name == "" || isPathSpecifier(raw.name) {
			continue
		}

		decls = append(decls, importmodel.Declaration{
			Name:     raw.name,
			Line:     raw.line + lineOffset,
			String:   canonicalString(raw.name, raw.bindings, raw.whole),
			FileName: fileName,
		})
	}

	return decls, nil
}

// isPathSpecifier reports whether a specifier names a relative or absolute
// path rather than an installed package.
func isPathSpecifier(name string) bool {
	return strings.HasPrefix(name, "./") ||
		strings.HasPrefix(name, "../") ||
		strings.HasPrefix(name, "/")
}

// rawImport is an import site found in the syntax tree, before normalization.
type rawImport struct {
	name     string
	line     int
	bindings []string
	whole    bool
}

// collect walks the syntax tree gathering static imports, require calls, and
// dynamic imports. require and import() may appear in any expression
// position, so the whole tree is visited.
func collect(n sitter.Node, src []byte, out *[]rawImport) {
	switch n.Type() {
	case "import_statement":
		if raw, ok := importStatement(n, src); ok {
			*out = append(*out, raw)
		}
	case "call_expression":
		if raw, ok := callImport(n, src); ok {
			*out = append(*out, raw)
		}
	}

	for i := range n.NamedChildCount() {
		collect(n.NamedChild(i), src, out)
	}
}

// importStatement normalizes a static import declaration. Type-only imports
// contribute no bundle bytes and are skipped.
func importStatement(n sitter.Node, src []byte) (rawImport, bool) {
	if isTypeOnly(n) {
		return rawImport{}, false
	}

	source := n.ChildByFieldName("source")
	if source.IsNull() {
		return rawImport{}, false
	}

	name, ok := stringLiteral(source, src)
	if !ok {
		return rawImport{}, false
	}

	raw := rawImport{
		name: name,
		line: int(n.StartPoint().Row) + 1,
	}

	clause := namedChildOfType(n, "import_clause")
	if clause.IsNull() {
		// Bare side-effect import pulls in the whole module.
		raw.whole = true

		return raw, true
	}

	for i := range clause.NamedChildCount() {
		child := clause.NamedChild(i)

		switch child.Type() {
		case "identifier", "namespace_import":
			raw.whole = true
		case "named_imports":
			raw.bindings = append(raw.bindings, specifierNames(child, src)...)
		}
	}

	if len(raw.bindings) == 0 {
		raw.whole = true
	}

	return raw, true
}

// callImport normalizes require("x") and dynamic import("x") call sites.
// Non-literal or interpolated specifiers are skipped.
func callImport(n sitter.Node, src []byte) (rawImport, bool) {
	fn := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")

	if fn.IsNull() || args.IsNull() || args.NamedChildCount() == 0 {
		return rawImport{}, false
	}

	switch fn.Type() {
	case "import":
	case "identifier":
		if nodeText(fn, src) != "require" {
			return rawImport{}, false
		}
	default:
		return rawImport{}, false
	}

	name, ok := stringLiteral(args.NamedChild(0), src)
	if !ok {
		return rawImport{}, false
	}

	return rawImport{
		name:  name,
		line:  int(n.StartPoint().Row) + 1,
		whole: true,
	}, true
}

// isTypeOnly reports whether an import statement is a TypeScript type-only
// import ("import type ... from"). The "type" keyword appears as an anonymous
// token before the import clause.
func isTypeOnly(n sitter.Node) bool {
	for i := range n.ChildCount() {
		child := n.Child(i)

		if child.IsNamed() {
			return false
		}

		if child.Type() == "type" {
			return true
		}
	}

	return false
}

// specifierNames returns the imported export names of a named_imports node.
// Aliases are ignored: "a as b" binds export "a".
func specifierNames(n sitter.Node, src []byte) []string {
	var names []string

	for i := range n.NamedChildCount() {
		spec := n.NamedChild(i)
		if spec.Type() != "import_specifier" {
			continue
		}

		name := spec.ChildByFieldName("name")
		if name.IsNull() {
			continue
		}

		names = append(names, nodeText(name, src))
	}

	return names
}

// stringLiteral extracts the literal value of a string or of a template
// string with no substitutions. Returns false for anything interpolated or
// non-literal.
func stringLiteral(n sitter.Node, src []byte) (string, bool) {
	switch n.Type() {
	case "string":
		return fragmentText(n, src), true
	case "template_string":
		if !namedChildOfType(n, "template_substitution").IsNull() {
			return "", false
		}

		return fragmentText(n, src), true
	default:
		return "", false
	}
}

// fragmentText concatenates the string_fragment children of a string-like
// node. A node with no fragments is an empty literal.
func fragmentText(n sitter.Node, src []byte) string {
	var sb strings.Builder

	for i := range n.NamedChildCount() {
		child := n.NamedChild(i)
		if child.Type() == "string_fragment" {
			sb.WriteString(nodeText(child, src))
		}
	}

	return sb.String()
}

func namedChildOfType(n sitter.Node, typ string) sitter.Node {
	for i := range n.NamedChildCount() {
		child := n.NamedChild(i)
		if child.Type() == typ {
			return child
		}
	}

	return sitter.Node{}
}

func nodeText(n sitter.Node, src []byte) string {
	start := n.StartByte()
	end := n.EndByte()

	if end > uint(len(src)) || start > end {
		return ""
	}

	return string(src[start:end])
}
