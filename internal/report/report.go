// Package report summarises a pass for humans and for storage.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	shakerrors "shaker/internal/errors"
	"shaker/internal/graph"
	"shaker/internal/optimizer"
)

// Format names a report encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// ParseFormat converts a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatTOML, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	}
	return "", shakerrors.NewShakerError(shakerrors.InvalidConfig, fmt.Sprintf("unknown report format %q", s), nil)
}

// Report is the persisted summary of one pass.
type Report struct {
	PassID      string             `json:"passId" toml:"pass_id" yaml:"passId"`
	GeneratedAt time.Time          `json:"generatedAt" toml:"generated_at" yaml:"generatedAt"`
	Entries     []string           `json:"entries" toml:"entries" yaml:"entries"`
	Summary     Summary            `json:"summary" toml:"summary" yaml:"summary"`
	Modules     []ModuleReport     `json:"modules" toml:"module" yaml:"modules"`
	Eliminated  []string           `json:"eliminated,omitempty" toml:"eliminated,omitempty" yaml:"eliminated,omitempty"`
	Diagnostics []DiagnosticReport `json:"diagnostics,omitempty" toml:"diagnostic,omitempty" yaml:"diagnostics,omitempty"`
}

// Summary holds the pass counters.
type Summary struct {
	ModulesIn         int   `json:"modulesIn" toml:"modules_in" yaml:"modulesIn"`
	ModulesOut        int   `json:"modulesOut" toml:"modules_out" yaml:"modulesOut"`
	ModulesEliminated int   `json:"modulesEliminated" toml:"modules_eliminated" yaml:"modulesEliminated"`
	FullModules       int   `json:"fullModules" toml:"full_modules" yaml:"fullModules"`
	PartsKept         int   `json:"partsKept" toml:"parts_kept" yaml:"partsKept"`
	PartsDropped      int   `json:"partsDropped" toml:"parts_dropped" yaml:"partsDropped"`
	EdgesDropped      int   `json:"edgesDropped" toml:"edges_dropped" yaml:"edgesDropped"`
	Iterations        int   `json:"iterations" toml:"iterations" yaml:"iterations"`
	AsyncEdges        int   `json:"asyncEdges" toml:"async_edges" yaml:"asyncEdges"`
	DeferredEdges     int   `json:"deferredEdges" toml:"deferred_edges" yaml:"deferredEdges"`
	OptionalStubs     int   `json:"optionalStubs" toml:"optional_stubs" yaml:"optionalStubs"`
	HelpersInjected   int   `json:"helpersInjected" toml:"helpers_injected" yaml:"helpersInjected"`
	SourceBytes       int   `json:"sourceBytes" toml:"source_bytes" yaml:"sourceBytes"`
	DurationMs        int64 `json:"durationMs" toml:"duration_ms" yaml:"durationMs"`
}

// ModuleReport describes one retained module.
type ModuleReport struct {
	Path         string   `json:"path" toml:"path" yaml:"path"`
	Full         bool     `json:"full" toml:"full" yaml:"full"`
	DeferredOnly bool     `json:"deferredOnly,omitempty" toml:"deferred_only,omitempty" yaml:"deferredOnly,omitempty"`
	LiveBindings []string `json:"liveBindings" toml:"live_bindings" yaml:"liveBindings"`
	Dependencies int      `json:"dependencies" toml:"dependencies" yaml:"dependencies"`
	Bytes        int      `json:"bytes" toml:"bytes" yaml:"bytes"`
	Hash         string   `json:"hash,omitempty" toml:"hash,omitempty" yaml:"hash,omitempty"`
}

// DiagnosticReport is a recovered condition.
type DiagnosticReport struct {
	Code      string `json:"code" toml:"code" yaml:"code"`
	Module    string `json:"module" toml:"module" yaml:"module"`
	Specifier string `json:"specifier,omitempty" toml:"specifier,omitempty" yaml:"specifier,omitempty"`
	Name      string `json:"name,omitempty" toml:"name,omitempty" yaml:"name,omitempty"`
	Message   string `json:"message" toml:"message" yaml:"message"`
}

// FromOutput builds a report. When g is non-nil, modules of g absent from the
// output are listed as eliminated; virtual modules are never listed.
func FromOutput(out *optimizer.Output, g *graph.Graph) *Report {
	r := &Report{
		PassID:      out.PassID,
		GeneratedAt: time.Now().UTC().Truncate(time.Second),
		Entries:     append([]string(nil), out.Entries...),
		Summary: Summary{
			ModulesIn:         out.Stats.Graph.Modules,
			ModulesOut:        out.Stats.ModulesOut,
			ModulesEliminated: out.Stats.ModulesEliminated,
			FullModules:       out.Stats.FullModules,
			PartsKept:         out.Stats.PartsKept,
			PartsDropped:      out.Stats.PartsDropped,
			EdgesDropped:      out.Stats.EdgesDropped,
			Iterations:        out.Stats.Iterations,
			AsyncEdges:        out.Stats.AsyncEdges,
			DeferredEdges:     out.Stats.DeferredEdges,
			OptionalStubs:     out.Stats.OptionalStubs,
			HelpersInjected:   out.Stats.HelpersInjected,
			DurationMs:        out.Stats.Duration.Milliseconds(),
		},
	}

	kept := make(map[string]bool, len(out.Modules))
	for _, m := range out.Modules {
		kept[m.Path] = true
		r.Summary.SourceBytes += len(m.Source)
		r.Modules = append(r.Modules, ModuleReport{
			Path:         m.Path,
			Full:         m.Full,
			DeferredOnly: m.DeferredOnly,
			LiveBindings: m.LiveBindings,
			Dependencies: len(m.Dependencies),
			Bytes:        len(m.Source),
			Hash:         m.Hash,
		})
	}

	if g != nil {
		for _, m := range g.Modules() {
			if !kept[m.Path] && !m.Virtual {
				r.Eliminated = append(r.Eliminated, m.Path)
			}
		}
		sort.Strings(r.Eliminated)
	}

	for _, d := range out.Diagnostics {
		r.Diagnostics = append(r.Diagnostics, DiagnosticReport{
			Code:      string(d.Code),
			Module:    d.Module,
			Specifier: d.Specifier,
			Name:      d.Name,
			Message:   d.Message,
		})
	}
	return r
}

// Encode writes r in the given format.
func Encode(w io.Writer, r *Report, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatTOML:
		if err := toml.NewEncoder(w).Encode(r); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		return enc.Close()
	}
	return shakerrors.NewShakerError(shakerrors.InvalidConfig, fmt.Sprintf("unknown report format %q", format), nil)
}

// Decode reads a report written by Encode.
func Decode(rd io.Reader, format Format) (*Report, error) {
	var r Report
	var err error
	switch format {
	case FormatJSON:
		err = json.NewDecoder(rd).Decode(&r)
	case FormatTOML:
		_, err = toml.NewDecoder(rd).Decode(&r)
	case FormatYAML:
		err = yaml.NewDecoder(rd).Decode(&r)
	default:
		return nil, shakerrors.NewShakerError(shakerrors.InvalidConfig, fmt.Sprintf("unknown report format %q", format), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &r, nil
}

// SavedParts is the share of parts dropped, in percent.
func (s Summary) SavedParts() float64 {
	total := s.PartsKept + s.PartsDropped
	if total == 0 {
		return 0
	}
	return float64(s.PartsDropped) * 100 / float64(total)
}
