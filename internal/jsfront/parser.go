//go:build cgo

package jsfront

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	shakerrors "shaker/internal/errors"
	"shaker/internal/graph"
	"shaker/internal/slogutil"
)

// Frontend parses JavaScript sources into a graph. It is not safe for
// concurrent use.
type Frontend struct {
	opts   Options
	logger *slog.Logger
	parser *sitter.Parser
}

// New creates a front end.
func New(opts Options, logger *slog.Logger) *Frontend {
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultOptions().Extensions
	}
	p := sitter.NewParser()
	p.SetLanguage(javascript.GetLanguage())
	return &Frontend{
		opts:   opts,
		logger: slogutil.ForStage(logger, "parse"),
		parser: p,
	}
}

// Load parses every file reachable from entries, which are paths relative to
// root. It returns the graph and the absolute entry paths. Specifiers that do
// not resolve on disk leave their edge without a target; the classifier
// decides whether that is fatal.
func (f *Frontend) Load(ctx context.Context, root string, entries []string) (*graph.Graph, []string, error) {
	root = abs(root)
	g := graph.NewGraph()

	var queue, resolved []string
	seen := make(map[string]bool)
	for _, entry := range entries {
		p := entry
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		path, ok := resolveFile(p, f.opts.Extensions)
		if !ok {
			return nil, nil, shakerrors.Unresolved("", entry, "").WithDetails("entry point")
		}
		resolved = append(resolved, path)
		if !seen[path] {
			seen[path] = true
			queue = append(queue, path)
		}
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, nil, shakerrors.NewShakerError(shakerrors.PassCancelled, "parsing cancelled", err)
		}
		path := queue[0]
		queue = queue[1:]

		src, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, shakerrors.NewShakerError(shakerrors.InvalidGraph, "cannot read module", err).WithModule(path, "")
		}
		m, err := f.ParseModule(ctx, path, src)
		if err != nil {
			return nil, nil, err
		}

		for _, e := range m.Dependencies {
			target, ok := Resolve(root, path, e.Specifier, f.opts.Extensions)
			if !ok {
				f.logger.Debug("Specifier did not resolve", "module", path, "specifier", e.Specifier)
				continue
			}
			e.Target = target
			if !seen[target] {
				seen[target] = true
				queue = append(queue, target)
			}
		}
		if err := g.AddModule(m); err != nil {
			return nil, nil, err
		}
	}

	f.logger.Info("Sources parsed", "root", root, "modules", g.Len())
	return g, resolved, nil
}

// ParseModule turns one source file into a module. Edge targets are left
// empty.
func (f *Frontend) ParseModule(ctx context.Context, path string, src []byte) (*graph.Module, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return &graph.Module{
			Path:          path,
			OpaqueExports: true,
			Parts: []graph.Part{{
				Code:        "module.exports = " + strings.TrimSpace(string(src)) + ";",
				SideEffects: true,
			}},
		}, nil
	}

	tree, err := f.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, shakerrors.NewShakerError(shakerrors.InvalidGraph, "parse error", err).WithModule(path, "")
	}
	root := tree.RootNode()
	if root.HasError() {
		return nil, shakerrors.NewShakerError(shakerrors.InvalidGraph, "syntax error", nil).WithModule(path, "")
	}

	s := newScanner(path, src)
	s.scan(root)
	return s.module(), nil
}

// binding is a local name introduced by an import declaration.
type binding struct {
	edge     int
	imported string
}

// edgeUse accumulates what one edge is used for.
type edgeUse struct {
	names graph.BindingSet
	star  bool
	other bool
}

type scanner struct {
	src      []byte
	mod      *graph.Module
	deps     map[string]int
	uses     []*edgeUse
	imports  map[string]binding
	topLevel map[string]bool
	opaque   bool
}

func newScanner(path string, src []byte) *scanner {
	return &scanner{
		src:      src,
		mod:      &graph.Module{Path: path},
		deps:     make(map[string]int),
		imports:  make(map[string]binding),
		topLevel: make(map[string]bool),
	}
}

func (s *scanner) text(n *sitter.Node) string {
	return string(s.src[n.StartByte():n.EndByte()])
}

// dep returns the edge for specifier and kind, adding it on first use.
func (s *scanner) dep(specifier string, kind graph.EdgeKind) int {
	key := specifier + "\x00" + string(kind)
	if idx, ok := s.deps[key]; ok {
		return idx
	}
	e := &graph.Edge{Specifier: specifier, Kind: kind}
	switch kind {
	case graph.KindAsync:
		e.AsyncType = "async"
	case graph.KindOptional:
		e.Optional = true
	}
	s.mod.Dependencies = append(s.mod.Dependencies, e)
	s.uses = append(s.uses, &edgeUse{})
	idx := len(s.mod.Dependencies) - 1
	s.deps[key] = idx
	return idx
}

func (s *scanner) request(idx int, names ...string) {
	u := s.uses[idx]
	u.other = true
	u.names.Add(names...)
}

func (s *scanner) scan(root *sitter.Node) {
	var stmts []*sitter.Node
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		switch n.Type() {
		case "comment", "hash_bang_line", "empty_statement":
			continue
		case "expression_statement":
			if s.isUseStrict(n) {
				s.mod.Strict = true
				continue
			}
		}
		stmts = append(stmts, n)
	}

	// imports are hoisted, so bindings and declarations are collected first
	for _, n := range stmts {
		switch n.Type() {
		case "import_statement":
			s.mod.Strict = true
			s.collectImport(n)
		case "export_statement":
			s.mod.Strict = true
			if decl := n.ChildByFieldName("declaration"); decl != nil {
				for _, name := range s.declaredNames(decl) {
					s.topLevel[name] = true
				}
			}
		default:
			for _, name := range s.declaredNames(n) {
				s.topLevel[name] = true
			}
		}
	}

	for _, n := range stmts {
		switch n.Type() {
		case "import_statement":
		case "export_statement":
			s.exportStatement(n)
		default:
			s.addPart(n, "", "", s.declaredNames(n))
		}
	}
}

func (s *scanner) isUseStrict(n *sitter.Node) bool {
	if n.NamedChildCount() != 1 {
		return false
	}
	str := n.NamedChild(0)
	return str.Type() == "string" && unquote(s.text(str)) == "use strict"
}

func (s *scanner) collectImport(n *sitter.Node) {
	source := n.ChildByFieldName("source")
	if source == nil {
		return
	}
	idx := s.dep(unquote(s.text(source)), graph.KindEager)
	s.uses[idx].other = true

	for i := 0; i < int(n.NamedChildCount()); i++ {
		clause := n.NamedChild(i)
		if clause.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			c := clause.NamedChild(j)
			switch c.Type() {
			case "identifier":
				s.bind(s.text(c), idx, "default")
			case "namespace_import":
				if id := lastNamed(c, "identifier"); id != nil {
					s.bind(s.text(id), idx, graph.Wildcard)
				}
			case "named_imports":
				for k := 0; k < int(c.NamedChildCount()); k++ {
					spec := c.NamedChild(k)
					if spec.Type() != "import_specifier" {
						continue
					}
					name := unquote(s.text(spec.ChildByFieldName("name")))
					local := name
					if alias := spec.ChildByFieldName("alias"); alias != nil {
						local = s.text(alias)
					}
					s.bind(local, idx, name)
				}
			}
		}
	}
}

func (s *scanner) bind(local string, edge int, imported string) {
	s.imports[local] = binding{edge: edge, imported: imported}
	s.request(edge, imported)
}

func (s *scanner) exportStatement(n *sitter.Node) {
	isDefault, isStar := false, false
	for i := 0; i < int(n.ChildCount()); i++ {
		switch n.Child(i).Type() {
		case "default":
			isDefault = true
		case "*":
			isStar = true
		}
	}

	if source := n.ChildByFieldName("source"); source != nil {
		idx := s.dep(unquote(s.text(source)), graph.KindEager)
		if ns := firstNamed(n, "namespace_export"); ns != nil {
			s.mod.Exports = append(s.mod.Exports, graph.Export{
				Name: unquote(s.text(ns.NamedChild(int(ns.NamedChildCount()) - 1))), Edge: idx, Imported: graph.Wildcard,
			})
			s.request(idx, graph.Wildcard)
			return
		}
		if clause := firstNamed(n, "export_clause"); clause != nil {
			for _, spec := range s.exportSpecifiers(clause) {
				s.mod.Exports = append(s.mod.Exports, graph.Export{Name: spec[1], Edge: idx, Imported: spec[0]})
				s.request(idx, spec[0])
			}
			return
		}
		if isStar {
			// export * as ns without a namespace_export node
			if id := lastNamed(n, "identifier"); id != nil {
				s.mod.Exports = append(s.mod.Exports, graph.Export{Name: s.text(id), Edge: idx, Imported: graph.Wildcard})
				s.request(idx, graph.Wildcard)
				return
			}
			s.mod.ReexportAll = append(s.mod.ReexportAll, idx)
			s.uses[idx].star = true
			s.uses[idx].names.Add(graph.Wildcard)
		}
		return
	}

	if decl := n.ChildByFieldName("declaration"); decl != nil {
		names := s.declaredNames(decl)
		s.addPart(decl, "", "", names)
		if isDefault && len(names) == 1 {
			s.mod.Exports = append(s.mod.Exports, graph.Export{Name: "default", Local: names[0], Edge: -1})
			return
		}
		for _, name := range names {
			s.mod.Exports = append(s.mod.Exports, graph.Export{Name: name, Local: name, Edge: -1})
		}
		return
	}

	if value := n.ChildByFieldName("value"); value != nil && isDefault {
		local := s.defaultLocal()
		s.topLevel[local] = true
		s.addPart(value, "var "+local+" = ", ";", []string{local})
		s.mod.Exports = append(s.mod.Exports, graph.Export{Name: "default", Local: local, Edge: -1})
		return
	}

	if clause := firstNamed(n, "export_clause"); clause != nil {
		for _, spec := range s.exportSpecifiers(clause) {
			local, name := spec[0], spec[1]
			if b, ok := s.imports[local]; ok {
				s.mod.Exports = append(s.mod.Exports, graph.Export{Name: name, Edge: b.edge, Imported: b.imported})
				continue
			}
			s.mod.Exports = append(s.mod.Exports, graph.Export{Name: name, Local: local, Edge: -1})
		}
	}
}

// exportSpecifiers returns [name, exported] pairs of an export clause.
func (s *scanner) exportSpecifiers(clause *sitter.Node) [][2]string {
	var out [][2]string
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		spec := clause.NamedChild(i)
		if spec.Type() != "export_specifier" {
			continue
		}
		name := unquote(s.text(spec.ChildByFieldName("name")))
		exported := name
		if alias := spec.ChildByFieldName("alias"); alias != nil {
			exported = unquote(s.text(alias))
		}
		out = append(out, [2]string{name, exported})
	}
	return out
}

func (s *scanner) defaultLocal() string {
	local := "_default"
	for i := 2; s.topLevel[local]; i++ {
		local = fmt.Sprintf("_default%d", i)
	}
	return local
}

// declaredNames lists the top-level names a statement introduces.
func (s *scanner) declaredNames(n *sitter.Node) []string {
	switch n.Type() {
	case "function_declaration", "generator_function_declaration", "class_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			return []string{s.text(name)}
		}
	case "lexical_declaration", "variable_declaration":
		var names []string
		for i := 0; i < int(n.NamedChildCount()); i++ {
			d := n.NamedChild(i)
			if d.Type() == "variable_declarator" {
				names = s.patternNames(d.ChildByFieldName("name"), names)
			}
		}
		return names
	}
	return nil
}

func (s *scanner) patternNames(n *sitter.Node, names []string) []string {
	if n == nil {
		return names
	}
	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		return append(names, s.text(n))
	case "pair_pattern":
		return s.patternNames(n.ChildByFieldName("value"), names)
	case "assignment_pattern":
		return s.patternNames(n.ChildByFieldName("left"), names)
	case "object_assignment_pattern":
		return s.patternNames(n.ChildByFieldName("left"), names)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		names = s.patternNames(n.NamedChild(i), names)
	}
	return names
}

func (s *scanner) addPart(n *sitter.Node, prefix, suffix string, declares []string) {
	w := &walker{s: s, base: n.StartByte(), self: declares, imports: make(map[int]*graph.BindingSet), uses: make(map[string]bool)}
	w.visit(n)

	part := graph.Part{
		Code:     prefix + w.rewrite(s.text(n)) + suffix,
		Declares: declares,
	}
	if prefix != "" {
		// an export default expression
		part.SideEffects = !s.pureExpr(n)
	} else {
		part.SideEffects = !s.pure(n)
	}
	for name := range w.uses {
		part.Uses = append(part.Uses, name)
	}
	sort.Strings(part.Uses)

	edges := make([]int, 0, len(w.imports))
	for idx := range w.imports {
		edges = append(edges, idx)
	}
	sort.Ints(edges)
	for _, idx := range edges {
		part.Imports = append(part.Imports, graph.ImportUse{Edge: idx, Names: w.imports[idx].Slice()})
	}
	s.mod.Parts = append(s.mod.Parts, part)
}

// pure reports whether evaluating a top-level statement is unobservable.
func (s *scanner) pure(n *sitter.Node) bool {
	switch n.Type() {
	case "function_declaration", "generator_function_declaration", "class_declaration", "empty_statement":
		return true
	case "lexical_declaration", "variable_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			d := n.NamedChild(i)
			if d.Type() != "variable_declarator" {
				continue
			}
			if v := d.ChildByFieldName("value"); v != nil && !s.pureExpr(v) {
				return false
			}
		}
		return true
	}
	return false
}

func (s *scanner) pureExpr(n *sitter.Node) bool {
	switch n.Type() {
	case "number", "string", "true", "false", "null", "undefined", "regex",
		"identifier", "this",
		"arrow_function", "function", "function_expression", "generator_function", "class":
		return true
	case "template_string":
		return firstNamed(n, "template_substitution") == nil
	case "parenthesized_expression", "array", "object", "pair", "binary_expression", "ternary_expression", "spread_element":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if !s.pureExpr(n.NamedChild(i)) {
				return false
			}
		}
		return true
	case "property_identifier", "shorthand_property_identifier", "comment":
		return true
	case "unary_expression":
		if op := n.ChildByFieldName("operator"); op != nil && s.text(op) == "delete" {
			return false
		}
		return s.pureExpr(n.ChildByFieldName("argument"))
	case "member_expression":
		return s.pureExpr(n.ChildByFieldName("object"))
	}
	return false
}

func (s *scanner) module() *graph.Module {
	m := s.mod
	m.OpaqueExports = s.opaque
	for i, e := range m.Dependencies {
		u := s.uses[i]
		e.RequestedNames = u.names.Slice()
		e.ForwardsAll = u.star && !u.other
	}
	for _, p := range m.Parts {
		if p.SideEffects {
			m.SideEffectful = true
			break
		}
	}
	return m
}

func firstNamed(n *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == typ {
			return c
		}
	}
	return nil
}

func lastNamed(n *sitter.Node, typ string) *sitter.Node {
	for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
		if c := n.NamedChild(i); c.Type() == typ {
			return c
		}
	}
	return nil
}
