package query

import (
	"strings"

	"github.com/alecthomas/participle/v2"
)

// AttrArgs is the parsed shape of an attribute body: a comma-separated list
// of bare names or name(nested-args) calls, covering every form this
// language's fixed attribute set actually uses (`#[test]`, `#[bench]`,
// `#[derive(Debug, Clone)]`) — see DESIGN.md's Open Question decision on
// why this is deferred to the indexer rather than parsed by
// internal/syntax itself.
type AttrArgs struct {
	Items []*AttrArg `parser:"( @@ ( \",\" @@ )* )?"`
}

type AttrArg struct {
	Name string    `parser:"@Ident"`
	Args *AttrArgs `parser:"( \"(\" @@ \")\" )?"`
}

var attrParser = participle.MustBuild[AttrArgs]()

// ParseAttrArgs parses the raw token span internal/syntax captured for one
// `#[...]` attribute body (parser.go's parseAttribute keeps it as a flat
// bracketed token run; this is the deferred structuring pass spec §4.2
// leaves to a later stage).
func ParseAttrArgs(raw string) (*AttrArgs, error) {
	raw = strings.TrimPrefix(raw, "#")
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "[")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "]")
	return attrParser.ParseString("", raw)
}

// Name is the attribute's own name: the first Ident in a `#[name(...)]` or
// `#[name]` body.
func (a *AttrArgs) Name() string {
	if len(a.Items) == 0 {
		return ""
	}
	return a.Items[0].Name
}

// IsBuiltin reports whether name is one of the indexer's recognized
// builtin macros (spec §4.3: `template`, `format`, `file`, `line`).
func IsBuiltin(name string) bool {
	switch name {
	case "template", "format", "file", "line":
		return true
	default:
		return false
	}
}
