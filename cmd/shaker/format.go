package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"shaker/internal/report"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
	FormatTOML  OutputFormat = "toml"
	FormatYAML  OutputFormat = "yaml"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
	keptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

// colorEnabled is decided once per process.
var colorEnabled = os.Getenv("NO_COLOR") == "" && term.IsTerminal(int(os.Stdout.Fd()))

func paint(style lipgloss.Style, s string) string {
	if !colorEnabled {
		return s
	}
	return style.Render(s)
}

// FormatResponse formats a response according to the specified format
func FormatResponse(resp interface{}, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatHuman:
		return formatHuman(resp)
	case FormatTOML, FormatYAML:
		return formatReport(resp, report.Format(format))
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// formatJSON formats the response as JSON
func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// formatReport encodes pass reports as TOML or YAML. Other responses only
// render as JSON or human text.
func formatReport(resp interface{}, format report.Format) (string, error) {
	var rep *report.Report
	switch v := resp.(type) {
	case *report.Report:
		rep = v
	case *OptimizeResponseCLI:
		rep = v.Report
	default:
		return "", fmt.Errorf("unsupported format for %T: %s", resp, format)
	}
	var buf bytes.Buffer
	if err := report.Encode(&buf, rep, format); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// formatHuman formats the response in human-readable format
func formatHuman(resp interface{}) (string, error) {
	switch v := resp.(type) {
	case *OptimizeResponseCLI:
		return formatOptimizeHuman(v)
	case *report.Report:
		return formatReportHuman(v), nil
	case *SurfaceResponseCLI:
		return formatSurfaceHuman(v)
	case *HistoryResponseCLI:
		return formatHistoryHuman(v)
	case *ModuleHistoryResponseCLI:
		return formatModuleHistoryHuman(v)
	case *ParseResponseCLI:
		return formatParseHuman(v)
	case *VersionResponseCLI:
		return fmt.Sprintf("shaker version %s\nCommit: %s\nBuilt: %s\nGo: %s %s",
			v.Version, v.Commit, v.BuildDate, v.GoVersion, v.Platform), nil
	default:
		// For unknown types, fall back to JSON
		return formatJSON(resp)
	}
}

func formatOptimizeHuman(resp *OptimizeResponseCLI) (string, error) {
	var b strings.Builder
	b.WriteString(formatReportHuman(resp.Report))

	if len(resp.Bundles) > 0 {
		b.WriteString("\n" + paint(labelStyle, "Bundles:") + "\n")
		for _, bundle := range resp.Bundles {
			compressed := ""
			if bundle.Compressed {
				compressed = ", zstd"
			}
			b.WriteString(fmt.Sprintf("  %-8s %s (%d modules, %s%s)\n",
				bundle.Section, bundle.Path, bundle.Modules, humanBytes(bundle.Bytes), compressed))
		}
	}
	if resp.Stored {
		b.WriteString("\n" + paint(dimStyle, "Recorded in run history") + "\n")
	}
	return b.String(), nil
}

func formatReportHuman(r *report.Report) string {
	var b strings.Builder
	s := r.Summary

	b.WriteString(paint(titleStyle, "shaker pass "+shortID(r.PassID)) + "\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	b.WriteString(fmt.Sprintf("%s %s\n", paint(labelStyle, "Entries:"), strings.Join(r.Entries, ", ")))
	b.WriteString(fmt.Sprintf("%s %d kept of %d (%d eliminated, %d full)\n",
		paint(labelStyle, "Modules:"), s.ModulesOut, s.ModulesIn, s.ModulesEliminated, s.FullModules))
	b.WriteString(fmt.Sprintf("%s %d kept, %d dropped (%.1f%% saved)\n",
		paint(labelStyle, "Parts:"), s.PartsKept, s.PartsDropped, s.SavedParts()))
	b.WriteString(fmt.Sprintf("%s %d dropped, %d async (%d deferred), %d optional stubs, %d helpers\n",
		paint(labelStyle, "Edges:"), s.EdgesDropped, s.AsyncEdges, s.DeferredEdges, s.OptionalStubs, s.HelpersInjected))
	b.WriteString(fmt.Sprintf("%s %s in %dms, %d iterations\n",
		paint(labelStyle, "Output:"), humanBytes(int64(s.SourceBytes)), s.DurationMs, s.Iterations))

	if len(r.Modules) > 0 {
		b.WriteString("\n" + paint(labelStyle, "Modules:") + "\n")
		for _, m := range r.Modules {
			live := strings.Join(m.LiveBindings, ", ")
			if m.Full {
				live = "[full]"
			}
			if m.DeferredOnly {
				live += " (deferred)"
			}
			b.WriteString(fmt.Sprintf("  %s %s %s\n", paint(keptStyle, "+"), m.Path, paint(dimStyle, live)))
		}
	}

	if len(r.Eliminated) > 0 {
		b.WriteString("\n" + paint(labelStyle, "Eliminated:") + "\n")
		for _, path := range r.Eliminated {
			b.WriteString(fmt.Sprintf("  %s %s\n", paint(warnStyle, "-"), path))
		}
	}

	if len(r.Diagnostics) > 0 {
		b.WriteString("\n" + paint(labelStyle, "Diagnostics:") + "\n")
		for _, d := range r.Diagnostics {
			b.WriteString(fmt.Sprintf("  [%s] %s", paint(warnStyle, d.Code), d.Module))
			if d.Specifier != "" {
				b.WriteString(fmt.Sprintf(" %q", d.Specifier))
			}
			if d.Name != "" {
				b.WriteString(" " + d.Name)
			}
			b.WriteString(": " + d.Message + "\n")
		}
	}
	return b.String()
}

func formatSurfaceHuman(resp *SurfaceResponseCLI) (string, error) {
	var b strings.Builder
	b.WriteString(paint(titleStyle, "Export surface of "+resp.Module) + "\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	if resp.Opaque {
		b.WriteString("Opaque: names cannot be enumerated")
		if resp.OpaqueVia != "" && resp.OpaqueVia != resp.Module {
			b.WriteString(" (via " + resp.OpaqueVia + ")")
		}
		b.WriteString("\n")
	} else {
		b.WriteString(fmt.Sprintf("%d names:\n", len(resp.Bindings)))
		for _, bnd := range resp.Bindings {
			b.WriteString(fmt.Sprintf("  %-20s %s", bnd.Name, paint(dimStyle, bnd.Origin)))
			if bnd.Ambiguous {
				b.WriteString(" " + paint(warnStyle, "(ambiguous)"))
			}
			b.WriteString("\n")
		}
	}
	if resp.SideEffectful {
		b.WriteString("\nModule has side effects\n")
	}
	for _, d := range resp.Diagnostics {
		b.WriteString(fmt.Sprintf("\n[%s] %s: %s", paint(warnStyle, string(d.Code)), d.Module, d.Message))
	}
	return b.String(), nil
}

func formatHistoryHuman(resp *HistoryResponseCLI) (string, error) {
	var b strings.Builder
	if resp.Pruned > 0 {
		b.WriteString(fmt.Sprintf("Pruned %d runs\n", resp.Pruned))
	}
	if len(resp.Runs) == 0 {
		b.WriteString("No recorded runs\n")
		return b.String(), nil
	}
	b.WriteString(paint(titleStyle, fmt.Sprintf("Recent runs (%d)", len(resp.Runs))) + "\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")
	for _, run := range resp.Runs {
		b.WriteString(fmt.Sprintf("%s  %s  %d/%d modules, %d/%d parts  %s\n",
			shortID(run.PassID),
			run.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			run.ModulesOut, run.ModulesIn,
			run.PartsKept, run.PartsKept+run.PartsDropped,
			paint(dimStyle, run.Input)))
	}
	return b.String(), nil
}

func formatModuleHistoryHuman(resp *ModuleHistoryResponseCLI) (string, error) {
	var b strings.Builder
	b.WriteString(paint(titleStyle, "History of "+resp.Module) + "\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")
	if len(resp.Runs) == 0 {
		b.WriteString("Module was not retained by any recorded run\n")
		return b.String(), nil
	}
	for _, m := range resp.Runs {
		live := strings.Join(m.LiveBindings, ", ")
		if m.Full {
			live = "[full]"
		}
		b.WriteString(fmt.Sprintf("%s  %8s  %s\n", shortID(m.PassID), humanBytes(int64(m.Bytes)), live))
	}
	return b.String(), nil
}

func formatParseHuman(resp *ParseResponseCLI) (string, error) {
	return fmt.Sprintf("Parsed %d modules (%d entries) into %s", resp.Modules, len(resp.Entries), resp.Manifest), nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func humanBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
