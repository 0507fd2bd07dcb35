package extract

import (
	"regexp"
	"strings"

	"github.com/Sumatoshi-tech/importcost/pkg/importmodel"
)

// scriptBlock is one isolated <script> element of a component file.
type scriptBlock struct {
	source     string
	lang       importmodel.Language
	lineOffset int
}

var (
	scriptOpenRe = regexp.MustCompile(`(?is)<script(\s[^>]*)?>`)
	scriptLangRe = regexp.MustCompile(`(?i)\blang\s*=\s*["']?([a-z]+)["']?`)
)

const scriptCloseTag = "</script"

// scriptBlocks isolates every <script> element of a vue or svelte file.
// Vue SFCs routinely carry two (setup and options) and svelte components a
// module script next to the instance script, so all blocks are returned.
// The lang attribute selects the grammar; the default is JavaScript.
func scriptBlocks(source string) []scriptBlock {
	var blocks []scriptBlock

	rest := source
	consumed := 0

	for {
		loc := scriptOpenRe.FindStringSubmatchIndex(rest)
		if loc == nil {
			break
		}

		contentStart := loc[1]

		end := strings.Index(strings.ToLower(rest[contentStart:]), scriptCloseTag)
		if end < 0 {
			break
		}

		attrs := ""
		if loc[2] >= 0 {
			attrs = rest[loc[2]:loc[3]]
		}

		content := rest[contentStart : contentStart+end]

		blocks = append(blocks, scriptBlock{
			source:     content,
			lang:       scriptLang(attrs),
			lineOffset: strings.Count(source[:consumed+contentStart], "\n"),
		})

		advance := contentStart + end + len(scriptCloseTag)
		rest = rest[advance:]
		consumed += advance
	}

	return blocks
}

func scriptLang(attrs string) importmodel.Language {
	m := scriptLangRe.FindStringSubmatch(attrs)
	if m == nil {
		return importmodel.JavaScript
	}

	switch strings.ToLower(m[1]) {
	case "ts", "typescript", "tsx":
		return importmodel.TypeScript
	default:
		return importmodel.JavaScript
	}
}
