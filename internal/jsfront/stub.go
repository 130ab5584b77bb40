//go:build !cgo

package jsfront

import (
	"context"
	"log/slog"

	"shaker/internal/graph"
)

// Frontend parses JavaScript sources into a graph.
// This is a stub implementation for non-CGO builds.
type Frontend struct{}

// New creates a front end.
func New(opts Options, logger *slog.Logger) *Frontend {
	return &Frontend{}
}

// Load is unavailable without CGO.
func (f *Frontend) Load(ctx context.Context, root string, entries []string) (*graph.Graph, []string, error) {
	return nil, nil, ErrNoCGO
}

// ParseModule is unavailable without CGO.
func (f *Frontend) ParseModule(ctx context.Context, path string, src []byte) (*graph.Module, error) {
	return nil, ErrNoCGO
}
