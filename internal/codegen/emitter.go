package codegen

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"shaker/internal/edges"
	shakerrors "shaker/internal/errors"
	"shaker/internal/graph"
	"shaker/internal/liveness"
)

// FactoryParams are the parameters of every emitted module factory.
const FactoryParams = "global, _$$_REQUIRE, _$$_IMPORT_DEFAULT, _$$_IMPORT_ALL, module, exports, _dependencyMap"

var (
	placeholderRe = regexp.MustCompile(`\{\{(require|default|importAll|async|dep) (\d+)\}\}`)
	identRe       = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
)

// Module is the emitted form of one retained module.
type Module struct {
	Path         string
	Source       string
	Dependencies []Dependency
}

// Emitter renders module factories from plans.
type Emitter struct {
	helper string
}

// NewEmitter creates an emitter. helper is the async-require module path.
func NewEmitter(helper string) *Emitter {
	return &Emitter{helper: helper}
}

// Emit renders m according to plan. Dependencies are referenced by table
// index only.
func (em *Emitter) Emit(m *graph.Module, plan *liveness.Plan) (*Module, error) {
	table := BuildTable(m, plan)
	w := &writer{}

	esm := len(m.Exports) > 0 || len(m.ReexportAll) > 0
	if m.Strict {
		w.line(`"use strict";`)
		w.blank()
	}
	if esm {
		w.line(`Object.defineProperty(exports, '__esModule', {`)
		w.line(`  value: true`)
		w.line(`});`)
	}

	referenced := make(map[int]bool)
	for i, part := range m.Parts {
		if !plan.Parts[i] {
			continue
		}
		for _, loc := range placeholderRe.FindAllStringSubmatch(part.Code, -1) {
			n, _ := strconv.Atoi(loc[2])
			referenced[n] = true
		}
	}
	starAll := make(map[int]bool, len(plan.StarAll))
	for _, idx := range plan.StarAll {
		starAll[idx] = true
	}
	helperIdx := edges.HelperEdge(m, em.helper)

	// load for effect, in source order, before anything else runs
	for _, i := range plan.RetainedEdges() {
		e := m.Dependencies[i]
		if referenced[i] || starAll[i] || e.Kind == graph.KindAsync || i == helperIdx || !e.Resolved() {
			continue
		}
		// a getter loads the target on first read
		if plan.Edges[i].Forward && !plan.Edges[i].Effect {
			continue
		}
		k, _ := table.Index(i)
		w.line(fmt.Sprintf("_$$_REQUIRE(_dependencyMap[%d]);", k))
	}

	for _, f := range plan.Forwards {
		k, ok := table.Index(f.Edge)
		if !ok {
			return nil, dropped(m, f.Edge)
		}
		w.line(fmt.Sprintf("Object.defineProperty(exports, %s, {", strconv.Quote(f.Name)))
		w.line(`  enumerable: true,`)
		w.line(`  get: function () {`)
		w.line(fmt.Sprintf("    return %s;", importExpr(k, f.Imported)))
		w.line(`  }`)
		w.line(`});`)
	}

	if len(plan.StarAll) > 0 {
		locals := plan.Declared
		if len(locals) > 0 {
			entries := make([]string, len(locals))
			for i, n := range locals {
				entries[i] = strconv.Quote(n) + ": true"
			}
			w.line(fmt.Sprintf("var _exportNames = { %s };", strings.Join(entries, ", ")))
		}
		for n, idx := range plan.StarAll {
			k, ok := table.Index(idx)
			if !ok {
				return nil, dropped(m, idx)
			}
			writeCopyLoop(w, k, keyName(n), len(locals) > 0)
		}
	}

	for i, part := range m.Parts {
		if !plan.Parts[i] {
			continue
		}
		code, err := em.rewrite(m, part.Code, table, helperIdx)
		if err != nil {
			return nil, err
		}
		w.block(code)
	}

	declared := make(map[string]bool)
	for i, part := range m.Parts {
		if plan.Parts[i] {
			for _, d := range part.Declares {
				declared[d] = true
			}
		}
	}
	for _, exp := range plan.Locals {
		if !declared[exp.Local] {
			// no statement metadata for this binding; nothing to assign
			continue
		}
		w.line(fmt.Sprintf("exports%s = %s;", prop(exp.Name), exp.Local))
	}

	return &Module{
		Path:         m.Path,
		Source:       "function (" + FactoryParams + ") {\n" + w.String() + "}",
		Dependencies: table.Deps,
	}, nil
}

// rewrite replaces dependency placeholders with table lookups.
func (em *Emitter) rewrite(m *graph.Module, code string, table *Table, helperIdx int) (string, error) {
	var err error
	out := placeholderRe.ReplaceAllStringFunc(code, func(match string) string {
		parts := placeholderRe.FindStringSubmatch(match)
		raw, _ := strconv.Atoi(parts[2])
		k, ok := table.Index(raw)
		if !ok {
			if err == nil {
				err = dropped(m, raw)
			}
			return match
		}
		switch parts[1] {
		case "require":
			return fmt.Sprintf("_$$_REQUIRE(_dependencyMap[%d])", k)
		case "default":
			return fmt.Sprintf("_$$_IMPORT_DEFAULT(_dependencyMap[%d])", k)
		case "importAll":
			return fmt.Sprintf("_$$_IMPORT_ALL(_dependencyMap[%d])", k)
		case "async":
			if h, ok := table.Index(helperIdx); ok && helperIdx >= 0 {
				return fmt.Sprintf("_$$_REQUIRE(_dependencyMap[%d])(_dependencyMap[%d], _dependencyMap.paths)", h, k)
			}
			return fmt.Sprintf("Promise.resolve().then(function () { return _$$_IMPORT_ALL(_dependencyMap[%d]); })", k)
		default:
			return fmt.Sprintf("_dependencyMap[%d]", k)
		}
	})
	return out, err
}

func dropped(m *graph.Module, raw int) error {
	spec := ""
	if e := m.Edge(raw); e != nil {
		spec = e.Specifier
	}
	return shakerrors.NewShakerError(shakerrors.InternalError,
		fmt.Sprintf("kept code references dependency %d which was not retained", raw), nil).WithModule(m.Path, spec)
}

func importExpr(k int, imported string) string {
	switch imported {
	case graph.Wildcard:
		return fmt.Sprintf("_$$_IMPORT_ALL(_dependencyMap[%d])", k)
	case "default":
		return fmt.Sprintf("_$$_IMPORT_DEFAULT(_dependencyMap[%d])", k)
	default:
		return fmt.Sprintf("_$$_REQUIRE(_dependencyMap[%d])%s", k, prop(imported))
	}
}

func writeCopyLoop(w *writer, k int, key string, skipLocals bool) {
	src := fmt.Sprintf("_$$_REQUIRE(_dependencyMap[%d])", k)
	w.line(fmt.Sprintf("Object.keys(%s).forEach(function (%s) {", src, key))
	w.line(fmt.Sprintf(`  if (%s === "default" || %s === "__esModule") return;`, key, key))
	if skipLocals {
		w.line(fmt.Sprintf("  if (Object.prototype.hasOwnProperty.call(_exportNames, %s)) return;", key))
	}
	w.line(fmt.Sprintf("  if (%s in exports) return;", key))
	w.line(fmt.Sprintf("  Object.defineProperty(exports, %s, {", key))
	w.line(`    enumerable: true,`)
	w.line(`    get: function () {`)
	w.line(fmt.Sprintf("      return %s[%s];", src, key))
	w.line(`    }`)
	w.line(`  });`)
	w.line(`});`)
}

func keyName(n int) string {
	if n == 0 {
		return "_key"
	}
	return "_key" + strconv.Itoa(n+1)
}

func prop(name string) string {
	if identRe.MatchString(name) {
		return "." + name
	}
	return "[" + strconv.Quote(name) + "]"
}

// writer accumulates two-space indented lines.
type writer struct {
	b strings.Builder
}

func (w *writer) line(s string) {
	w.b.WriteString("  ")
	w.b.WriteString(s)
	w.b.WriteByte('\n')
}

func (w *writer) blank() {
	w.b.WriteByte('\n')
}

func (w *writer) block(code string) {
	for _, l := range strings.Split(strings.TrimRight(code, "\n"), "\n") {
		if strings.TrimSpace(l) == "" {
			w.blank()
			continue
		}
		w.line(l)
	}
}

func (w *writer) String() string {
	return w.b.String()
}
