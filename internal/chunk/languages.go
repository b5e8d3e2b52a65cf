package chunk

import (
	"context"
	"sort"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// grammar pairs a tree-sitter language with the node types that start a
// declaration worth keeping intact.
type grammar struct {
	lang  *sitter.Language
	decls map[string]bool
}

func declSet(types ...string) map[string]bool {
	m := make(map[string]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

var (
	grammarsOnce sync.Once
	grammars     map[string]grammar
)

func loadGrammars() map[string]grammar {
	grammarsOnce.Do(func() {
		jsDecls := declSet(
			"function_declaration", "generator_function_declaration", "class_declaration",
			"method_definition", "export_statement",
		)
		tsDecls := declSet(
			"function_declaration", "class_declaration", "abstract_class_declaration",
			"method_definition", "interface_declaration", "type_alias_declaration",
			"enum_declaration", "export_statement",
		)
		grammars = map[string]grammar{
			"go": {golang.GetLanguage(), declSet(
				"function_declaration", "method_declaration", "type_declaration",
			)},
			"csharp": {csharp.GetLanguage(), declSet(
				"class_declaration", "interface_declaration", "struct_declaration",
				"enum_declaration", "record_declaration", "method_declaration",
				"constructor_declaration",
			)},
			"typescript": {typescript.GetLanguage(), tsDecls},
			"tsx":        {tsx.GetLanguage(), tsDecls},
			"javascript": {javascript.GetLanguage(), jsDecls},
			"python": {python.GetLanguage(), declSet(
				"function_definition", "class_definition", "decorated_definition",
			)},
		}
	})
	return grammars
}

// Supported reports whether structural boundaries are available for lang.
func Supported(lang string) bool {
	_, ok := loadGrammars()[lang]
	return ok
}

var parserPool = sync.Pool{
	New: func() any { return sitter.NewParser() },
}

// Boundaries returns the sorted, de-duplicated 1-based line numbers on
// which a declaration starts. Unsupported languages and parse failures
// return nil so callers fall back to plain line windows.
func Boundaries(ctx context.Context, source []byte, lang string) []int {
	g, ok := loadGrammars()[lang]
	if !ok || len(source) == 0 {
		return nil
	}

	parser := parserPool.Get().(*sitter.Parser)
	defer parserPool.Put(parser)
	parser.SetLanguage(g.lang)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil || tree == nil {
		return nil
	}

	seen := make(map[int]bool)
	var walk func(n *sitter.Node, depth int)
	walk = func(n *sitter.Node, depth int) {
		if n == nil || depth > maxDeclDepth {
			return
		}
		if g.decls[n.Type()] {
			seen[int(n.StartPoint().Row)+1] = true
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i), depth+1)
		}
	}
	walk(tree.RootNode(), 0)

	lines := make([]int, 0, len(seen))
	for l := range seen {
		lines = append(lines, l)
	}
	sort.Ints(lines)
	return lines
}

// maxDeclDepth limits the walk to namespace/class/member nesting; deeper
// nodes (local functions, lambdas) never become boundaries.
const maxDeclDepth = 6
