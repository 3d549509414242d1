package importer

import (
	"context"
	"sync"
)

// Runner builds an Orchestrator per run from shared collaborators. Runs are
// serialized: the host store assumes a single writer.
type Runner struct {
	mu   sync.Mutex
	deps Deps
}

// NewRunner creates a Runner.
func NewRunner(deps Deps) *Runner {
	return &Runner{deps: deps}
}

// Import runs doc with opts. Invalid options fail before any row.
func (r *Runner) Import(ctx context.Context, doc Document, opts Options) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, err := New(r.deps, opts)
	if err != nil {
		return Report{}, err
	}
	return o.Run(ctx, doc)
}
