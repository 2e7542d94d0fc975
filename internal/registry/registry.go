// Package registry enumerates the runnable computations and dispatches runs
// by name. The set is fixed at startup; a name either resolves to a wired
// computation or the run is rejected.
package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/quantive/riskcore/internal/domain"
)

// RunRequest selects what a computation operates on. Per-date computations
// use the date range; attribution additionally names the pair and method.
type RunRequest struct {
	StartDate string
	EndDate   string
	Portfolio string
	Benchmark string
	Method    domain.LinkingMethod
}

// Computation is one runnable unit of the estimation pipeline.
type Computation interface {
	Name() string
	Run(ctx context.Context, req RunRequest) error
}

// Registry maps computation names to their implementations.
type Registry struct {
	computations map[string]Computation
	log          zerolog.Logger
}

// New creates an empty registry.
func New(log zerolog.Logger) *Registry {
	return &Registry{
		computations: make(map[string]Computation),
		log:          log.With().Str("component", "registry").Logger(),
	}
}

// Register adds a computation under its name. Duplicate names are a wiring
// bug and panic at startup.
func (r *Registry) Register(c Computation) {
	if _, exists := r.computations[c.Name()]; exists {
		panic(fmt.Sprintf("computation %q registered twice", c.Name()))
	}
	r.computations[c.Name()] = c
}

// Names lists the registered computations, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.computations))
	for name := range r.computations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run dispatches one computation by name.
func (r *Registry) Run(ctx context.Context, name string, req RunRequest) error {
	c, ok := r.computations[name]
	if !ok {
		return fmt.Errorf("unknown computation %q (have %v)", name, r.Names())
	}
	r.log.Info().
		Str("computation", name).
		Str("start", req.StartDate).
		Str("end", req.EndDate).
		Msg("Running computation")
	return c.Run(ctx, req)
}
