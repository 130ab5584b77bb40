package graphio

import (
	"fmt"
	"regexp"
	"strconv"

	shakerrors "shaker/internal/errors"
	"shaker/internal/graph"
)

var specifierPlaceholderRe = regexp.MustCompile(`\{\{(require|default|importAll|async|dep) ([^}\s]+)\}\}`)

// Build converts the manifest into a graph and its entry list.
func (m *Manifest) Build() (*graph.Graph, []string, error) {
	if len(m.Entries) == 0 {
		return nil, nil, shakerrors.NewShakerError(shakerrors.InvalidGraph, "manifest has no entries", nil)
	}

	g := graph.NewGraph()
	for i := range m.Modules {
		mod, err := buildModule(&m.Modules[i])
		if err != nil {
			return nil, nil, err
		}
		if err := g.AddModule(mod); err != nil {
			return nil, nil, err
		}
	}
	if err := g.Validate(); err != nil {
		return nil, nil, err
	}
	return g, append([]string(nil), m.Entries...), nil
}

func buildModule(spec *ModuleSpec) (*graph.Module, error) {
	mod := &graph.Module{
		Path:          spec.Path,
		Virtual:       spec.Virtual,
		Strict:        spec.Strict,
		SideEffectful: spec.SideEffectful,
		OpaqueExports: spec.OpaqueExports,
	}

	index := make(map[string]int, len(spec.Dependencies))
	for i, d := range spec.Dependencies {
		if d.Specifier == "" {
			return nil, invalid(spec.Path, fmt.Sprintf("dependency %d has no specifier", i))
		}
		if _, dup := index[d.Specifier]; !dup {
			index[d.Specifier] = i
		}
		kind := graph.EdgeKind(d.Kind)
		if !kind.Valid() {
			return nil, invalid(spec.Path, fmt.Sprintf("dependency %q has unknown kind %q", d.Specifier, d.Kind))
		}
		mod.Dependencies = append(mod.Dependencies, &graph.Edge{
			Specifier:      d.Specifier,
			Target:         d.Target,
			RequestedNames: append([]string(nil), d.Names...),
			Kind:           kind,
			AsyncType:      d.AsyncType,
			Optional:       d.Optional,
		})
	}

	lookup := func(specifier string) (int, error) {
		if i, ok := index[specifier]; ok {
			return i, nil
		}
		return -1, invalid(spec.Path, fmt.Sprintf("%q is not a declared dependency", specifier))
	}

	for _, e := range spec.Exports {
		exp := graph.Export{Name: e.Name, Local: e.Local, Edge: -1, Imported: e.Imported}
		if e.From != "" {
			i, err := lookup(e.From)
			if err != nil {
				return nil, err
			}
			exp.Edge = i
			if exp.Imported == "" {
				exp.Imported = e.Name
			}
		} else if exp.Local == "" {
			exp.Local = e.Name
		}
		mod.Exports = append(mod.Exports, exp)
	}

	for _, s := range spec.ReexportAll {
		i, err := lookup(s)
		if err != nil {
			return nil, err
		}
		e := mod.Dependencies[i]
		e.ForwardsAll = true
		if len(e.RequestedNames) == 0 {
			e.RequestedNames = []string{graph.Wildcard}
		}
		mod.ReexportAll = append(mod.ReexportAll, i)
	}

	for pi, p := range spec.Parts {
		code, err := rewriteSpecifiers(p.Code, lookup)
		if err != nil {
			return nil, err
		}
		part := graph.Part{
			Code:        code,
			Declares:    p.Declares,
			Uses:        p.Uses,
			SideEffects: p.SideEffects,
		}
		for _, imp := range p.Imports {
			i, err := lookup(imp.Dep)
			if err != nil {
				return nil, fmt.Errorf("part %d: %w", pi, err)
			}
			part.Imports = append(part.Imports, graph.ImportUse{Edge: i, Names: imp.Names})
		}
		mod.Parts = append(mod.Parts, part)
	}

	return mod, nil
}

// rewriteSpecifiers turns {{require ./x}} into {{require N}}. Numeric
// arguments are kept as written.
func rewriteSpecifiers(code string, lookup func(string) (int, error)) (string, error) {
	var firstErr error
	out := specifierPlaceholderRe.ReplaceAllStringFunc(code, func(match string) string {
		sub := specifierPlaceholderRe.FindStringSubmatch(match)
		if _, err := strconv.Atoi(sub[2]); err == nil {
			return match
		}
		i, err := lookup(sub[2])
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return match
		}
		return fmt.Sprintf("{{%s %d}}", sub[1], i)
	})
	return out, firstErr
}

// FromGraph converts a graph back into a manifest. Synthetic edges and
// virtual modules are left out; they are recreated by the classifier.
func FromGraph(g *graph.Graph, entries []string) *Manifest {
	out := &Manifest{Version: ManifestVersion, Entries: append([]string(nil), entries...)}
	for _, mod := range g.Modules() {
		if mod.Virtual {
			continue
		}
		spec := ModuleSpec{
			Path:          mod.Path,
			Strict:        mod.Strict,
			SideEffectful: mod.SideEffectful,
			OpaqueExports: mod.OpaqueExports,
		}
		for _, e := range mod.Dependencies {
			if e.Synthetic {
				continue
			}
			spec.Dependencies = append(spec.Dependencies, DependencySpec{
				Specifier: e.Specifier,
				Target:    e.Target,
				Names:     e.RequestedNames,
				Kind:      string(e.Kind),
				AsyncType: e.AsyncType,
				Optional:  e.Optional,
			})
		}
		for _, e := range mod.Exports {
			es := ExportSpec{Name: e.Name, Local: e.Local}
			if e.IsReexport() {
				es.Local = ""
				es.From = mod.Dependencies[e.Edge].Specifier
				es.Imported = e.Imported
			}
			spec.Exports = append(spec.Exports, es)
		}
		for _, i := range mod.ReexportAll {
			spec.ReexportAll = append(spec.ReexportAll, mod.Dependencies[i].Specifier)
		}
		for _, p := range mod.Parts {
			ps := PartSpec{Code: p.Code, Declares: p.Declares, Uses: p.Uses, SideEffects: p.SideEffects}
			for _, use := range p.Imports {
				ps.Imports = append(ps.Imports, ImportSpec{Dep: mod.Dependencies[use.Edge].Specifier, Names: use.Names})
			}
			spec.Parts = append(spec.Parts, ps)
		}
		out.Modules = append(out.Modules, spec)
	}
	return out
}

func invalid(path, msg string) error {
	return shakerrors.NewShakerError(shakerrors.InvalidGraph, msg, nil).WithModule(path, "")
}
