package graph

import (
	"context"
)

// Backend is an optional external store the in-memory graph can be
// exported to for ad-hoc exploration. The pipeline never reads from the
// backend; it is a mirror, not a dependency.
type Backend interface {
	// ExportGraph mirrors the full node and edge set, idempotently
	ExportGraph(ctx context.Context, g *Graph) error

	// Clear removes every node and edge for an investigation
	Clear(ctx context.Context, investigationID string) error

	// Close releases the connection
	Close(ctx context.Context) error
}
