package extract

import (
	"fmt"
	"slices"
	"strings"
)

// wholeModuleBinding is the identifier used when an import binds the whole
// module (default, namespace, bare, require, and dynamic forms). A production
// bundler cannot distinguish these, so they share one canonical rendering.
const wholeModuleBinding = "entire"

// canonicalString re-renders an import as a deterministic statement whose
// text is invariant under binding reorderings. The trailing console.log keeps
// the bindings referenced so the bundler cannot tree-shake the import away.
func canonicalString(name string, bindings []string, whole bool) string {
	if whole || len(bindings) == 0 {
		return fmt.Sprintf("import * as %s from %q; console.log(%s);",
			wholeModuleBinding, name, wholeModuleBinding)
	}

	sorted := slices.Clone(bindings)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	list := strings.Join(sorted, ", ")

	return fmt.Sprintf("import { %s } from %q; console.log(%s);", list, name, list)
}
