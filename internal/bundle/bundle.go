// Package bundle serializes optimizer output into a runnable script.
//
// Every retained module becomes one __d(factory, id, [deps], "path") call.
// Module ids are assigned in output order, so the entry is always 0.
package bundle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/klauspost/compress/zstd"

	shakerrors "shaker/internal/errors"
	"shaker/internal/optimizer"
	"shaker/internal/slogutil"
)

// Section selects which modules a bundle contains.
type Section string

const (
	// SectionAll writes every retained module.
	SectionAll Section = "all"

	// SectionMain omits modules only reachable through deferred async edges.
	SectionMain Section = "main"

	// SectionDeferred writes only the modules SectionMain omits.
	SectionDeferred Section = "deferred"
)

// Options configures bundle serialization.
type Options struct {
	Section Section

	// Prelude writes the module registry before the first module.
	Prelude bool

	// RunEntries appends an __r call per entry. Ignored for SectionDeferred.
	RunEntries bool

	// VerboseNames passes each module path as the fourth __d argument.
	VerboseNames bool
}

// DefaultOptions returns options for a self-contained bundle.
func DefaultOptions() Options {
	return Options{
		Section:      SectionAll,
		Prelude:      true,
		RunEntries:   true,
		VerboseNames: true,
	}
}

// Summary describes a written bundle.
type Summary struct {
	Section Section `json:"section"`
	Modules int     `json:"modules"`
	Bytes   int64   `json:"bytes"`
}

// Writer writes bundles for one pass output.
type Writer struct {
	opts   Options
	logger *slog.Logger
	ids    map[string]int
}

// NewWriter creates a bundle writer.
func NewWriter(opts Options, logger *slog.Logger) *Writer {
	if opts.Section == "" {
		opts.Section = SectionAll
	}
	return &Writer{
		opts:   opts,
		logger: slogutil.ForStage(logger, "bundle"),
	}
}

// ModuleIDs returns the id assigned to each output module.
func ModuleIDs(out *optimizer.Output) map[string]int {
	ids := make(map[string]int, len(out.Modules))
	for i, m := range out.Modules {
		ids[m.Path] = i
	}
	return ids
}

// Write serializes out to w.
func (bw *Writer) Write(w io.Writer, out *optimizer.Output) (*Summary, error) {
	switch bw.opts.Section {
	case SectionAll, SectionMain, SectionDeferred:
	default:
		return nil, shakerrors.NewShakerError(shakerrors.InvalidConfig,
			fmt.Sprintf("unknown bundle section %q", bw.opts.Section), nil)
	}

	bw.ids = ModuleIDs(out)
	cw := &countingWriter{w: w}
	buf := bufio.NewWriter(cw)
	sum := &Summary{Section: bw.opts.Section}

	if bw.opts.Prelude && bw.opts.Section != SectionDeferred {
		buf.WriteString(prelude)
	}
	for i := range out.Modules {
		m := &out.Modules[i]
		if !bw.include(m) {
			continue
		}
		if err := bw.define(buf, m); err != nil {
			return nil, err
		}
		sum.Modules++
	}
	if bw.opts.RunEntries && bw.opts.Section != SectionDeferred {
		for _, entry := range out.Entries {
			id, ok := bw.ids[entry]
			if !ok {
				return nil, shakerrors.NewShakerError(shakerrors.InternalError, "entry missing from output", nil).WithModule(entry, "")
			}
			fmt.Fprintf(buf, "__r(%d);\n", id)
		}
	}

	if err := buf.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write bundle: %w", err)
	}
	sum.Bytes = cw.n

	bw.logger.Debug("Bundle written", "section", sum.Section, "modules", sum.Modules, "bytes", sum.Bytes)
	return sum, nil
}

// WriteCompressed serializes out to w as a zstd stream.
func (bw *Writer) WriteCompressed(w io.Writer, out *optimizer.Output) (*Summary, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	sum, err := bw.Write(enc, out)
	if err != nil {
		enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish zstd stream: %w", err)
	}
	return sum, nil
}

func (bw *Writer) include(m *optimizer.ModuleOutput) bool {
	switch bw.opts.Section {
	case SectionMain:
		return !m.DeferredOnly
	case SectionDeferred:
		return m.DeferredOnly
	}
	return true
}

func (bw *Writer) define(w *bufio.Writer, m *optimizer.ModuleOutput) error {
	w.WriteString("__d(")
	w.WriteString(m.Source)
	fmt.Fprintf(w, ", %d, [", bw.ids[m.Path])
	for i, dep := range m.Dependencies {
		if i > 0 {
			w.WriteString(", ")
		}
		if dep.Path == "" {
			// unresolved optional import; requiring it throws
			w.WriteString("null")
			continue
		}
		id, ok := bw.ids[dep.Path]
		if !ok {
			return shakerrors.NewShakerError(shakerrors.InternalError,
				"dependency missing from output", nil).WithModule(m.Path, dep.Specifier)
		}
		w.WriteString(strconv.Itoa(id))
	}
	w.WriteString("]")
	if bw.opts.VerboseNames {
		w.WriteString(", ")
		w.WriteString(strconv.Quote(m.Path))
	}
	w.WriteString(");\n")
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
