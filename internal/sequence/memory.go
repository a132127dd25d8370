package sequence

import (
	"context"
	"fmt"
	"sync"
)

// MemoryGenerator is an in-process Generator with the same contract as the
// Postgres one. Used by tests and database-free local runs.
type MemoryGenerator struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewMemoryGenerator() *MemoryGenerator {
	return &MemoryGenerator{counters: make(map[string]int64)}
}

func (g *MemoryGenerator) Next(ctx context.Context, kind Kind, period string) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	key := string(kind) + "/" + period

	g.mu.Lock()
	g.counters[key]++
	ordinal := g.counters[key]
	g.mu.Unlock()

	return Format(kind, period, ordinal), nil
}
