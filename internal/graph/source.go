package graph

import (
	"context"
	"fmt"
	"os"
)

// Source produces a raw graph payload.
type Source interface {
	FetchGraph(ctx context.Context) ([]byte, error)
}

// FileSource reads a graph payload from a local JSON file.
type FileSource struct {
	Path string
}

// FetchGraph implements Source.
func (s FileSource) FetchGraph(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("reading graph file: %w", err)
	}
	return data, nil
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]byte, error)

// FetchGraph implements Source.
func (f SourceFunc) FetchGraph(ctx context.Context) ([]byte, error) { return f(ctx) }
