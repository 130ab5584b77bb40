//go:build cgo

package jsfront

import (
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"shaker/internal/graph"
)

// edit replaces the source range [start, end) relative to the part base.
type edit struct {
	start, end uint32
	text       string
}

// walker collects the facts of one part and the placeholder rewrites.
type walker struct {
	s       *scanner
	base    uint32
	self    []string
	edits   []edit
	uses    map[string]bool
	imports map[int]*graph.BindingSet
	shadow  []map[string]bool
}

func (w *walker) read(edge int, names ...string) {
	set, ok := w.imports[edge]
	if !ok {
		set = &graph.BindingSet{}
		w.imports[edge] = set
	}
	set.Add(names...)
}

func (w *walker) replace(n *sitter.Node, text string) {
	w.edits = append(w.edits, edit{start: n.StartByte() - w.base, end: n.EndByte() - w.base, text: text})
}

func (w *walker) rewrite(code string) string {
	sort.Slice(w.edits, func(i, j int) bool { return w.edits[i].start < w.edits[j].start })
	var b strings.Builder
	pos := uint32(0)
	for _, e := range w.edits {
		b.WriteString(code[pos:e.start])
		b.WriteString(e.text)
		pos = e.end
	}
	b.WriteString(code[pos:])
	return b.String()
}

func (w *walker) shadowed(name string) bool {
	for i := len(w.shadow) - 1; i >= 0; i-- {
		if w.shadow[i][name] {
			return true
		}
	}
	return false
}

func (w *walker) visit(n *sitter.Node) {
	switch n.Type() {
	case "call_expression":
		if w.call(n) {
			return
		}
	case "identifier":
		if !w.declarationName(n) {
			w.reference(n, false)
		}
		return
	case "shorthand_property_identifier":
		w.reference(n, true)
		return
	case "function_declaration", "generator_function_declaration", "function", "function_expression",
		"generator_function", "arrow_function", "method_definition", "catch_clause":
		w.shadow = append(w.shadow, w.scopeNames(n))
		defer func() { w.shadow = w.shadow[:len(w.shadow)-1] }()
	case "statement_block", "for_statement", "for_in_statement":
		w.shadow = append(w.shadow, w.blockNames(n))
		defer func() { w.shadow = w.shadow[:len(w.shadow)-1] }()
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.visit(n.NamedChild(i))
	}
}

// scopeNames lists the parameters of a function or catch clause and the
// declarations directly inside its body.
func (w *walker) scopeNames(n *sitter.Node) map[string]bool {
	names := make(map[string]bool)
	var list []string
	for _, field := range []string{"parameters", "parameter"} {
		if p := n.ChildByFieldName(field); p != nil {
			list = w.s.patternNames(p, list)
		}
	}
	if body := n.ChildByFieldName("body"); body != nil && body.Type() == "statement_block" {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			list = append(list, w.s.declaredNames(body.NamedChild(i))...)
		}
	}
	for _, name := range list {
		names[name] = true
	}
	return names
}

// blockNames lists the bindings a block or loop head introduces.
func (w *walker) blockNames(n *sitter.Node) map[string]bool {
	var list []string
	switch n.Type() {
	case "statement_block":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			list = append(list, w.s.declaredNames(n.NamedChild(i))...)
		}
	case "for_statement":
		if init := n.ChildByFieldName("initializer"); init != nil {
			list = append(list, w.s.declaredNames(init)...)
		}
	case "for_in_statement":
		if loopDeclares(n) {
			list = w.s.patternNames(n.ChildByFieldName("left"), list)
		}
	}
	names := make(map[string]bool, len(list))
	for _, name := range list {
		names[name] = true
	}
	return names
}

// loopDeclares reports whether a for-in or for-of head declares its left side.
func loopDeclares(n *sitter.Node) bool {
	if n.ChildByFieldName("kind") != nil {
		return true
	}
	left := n.ChildByFieldName("left")
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if left != nil && c.StartByte() >= left.StartByte() {
			break
		}
		switch c.Type() {
		case "var", "let", "const":
			return true
		}
	}
	return false
}

// declarationName reports whether n is the name being declared by its parent.
func (w *walker) declarationName(n *sitter.Node) bool {
	parent := n.Parent()
	if parent == nil {
		return false
	}
	switch parent.Type() {
	case "function_declaration", "generator_function_declaration", "class_declaration",
		"function", "function_expression", "generator_function", "class", "variable_declarator":
		name := parent.ChildByFieldName("name")
		return name != nil && name.StartByte() == n.StartByte() && name.EndByte() == n.EndByte()
	case "formal_parameters", "statement_identifier":
		return true
	}
	return false
}

func (w *walker) reference(n *sitter.Node, shorthand bool) {
	name := w.s.text(n)
	if w.shadowed(name) {
		return
	}
	if b, ok := w.s.imports[name]; ok {
		expr := w.importExpr(b)
		if shorthand {
			expr = name + ": " + expr
		}
		w.replace(n, expr)
		return
	}
	if w.s.topLevel[name] {
		for _, d := range w.self {
			if d == name {
				return
			}
		}
		w.uses[name] = true
		return
	}
	if name == "module" || name == "exports" {
		w.s.opaque = true
	}
}

func (w *walker) importExpr(b binding) string {
	switch b.imported {
	case "default":
		w.read(b.edge, "default")
		return fmt.Sprintf("{{default %d}}", b.edge)
	case graph.Wildcard:
		// The namespace object escapes through computed or dynamic access.
		w.read(b.edge, graph.Wildcard)
		return fmt.Sprintf("{{importAll %d}}", b.edge)
	default:
		w.read(b.edge, b.imported)
		return fmt.Sprintf("{{require %d}}.%s", b.edge, b.imported)
	}
}

// call rewrites require() and import() with a literal specifier.
func (w *walker) call(n *sitter.Node) bool {
	fn := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")
	if fn == nil || args == nil {
		return false
	}
	specifier, ok := w.stringArg(args)
	if !ok {
		return false
	}

	switch {
	case fn.Type() == "import":
		idx := w.s.dep(specifier, graph.KindAsync)
		w.s.request(idx, graph.Wildcard)
		w.read(idx, graph.Wildcard)
		w.replace(n, fmt.Sprintf("{{async %d}}", idx))
		return true
	case fn.Type() == "identifier" && w.s.text(fn) == "require" && !w.shadowed("require") && !w.s.topLevel["require"]:
		kind := graph.KindEager
		if w.guarded(n) {
			kind = graph.KindOptional
		}
		idx := w.s.dep(specifier, kind)
		w.s.request(idx, graph.Wildcard)
		w.read(idx, graph.Wildcard)
		w.replace(n, fmt.Sprintf("{{require %d}}", idx))
		return true
	}
	return false
}

func (w *walker) stringArg(args *sitter.Node) (string, bool) {
	if args.NamedChildCount() != 1 {
		return "", false
	}
	arg := args.NamedChild(0)
	if arg.Type() != "string" {
		return "", false
	}
	return unquote(w.s.text(arg)), true
}

// guarded reports whether n sits inside the body of a try statement.
func (w *walker) guarded(n *sitter.Node) bool {
	for p := n.Parent(); p != nil && p.Type() != "program"; p = p.Parent() {
		if p.Type() != "try_statement" {
			continue
		}
		if body := p.ChildByFieldName("body"); body != nil && body.StartByte() <= n.StartByte() && n.EndByte() <= body.EndByte() {
			return true
		}
	}
	return false
}
