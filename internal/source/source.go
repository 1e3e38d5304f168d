// Package source defines the discovery source abstraction and the registry
// that maps a question's selected sources onto concrete implementations.
package source

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/matsen/sift/internal/record"
)

// Wildcard in a question's selected sources expands to every registered
// source.
const Wildcard = "*"

// Source discovers bibliographic records matching a free-text query. A
// failing source returns an error; it never panics and never aborts its
// siblings.
type Source interface {
	Name() string
	Discover(ctx context.Context, query string, maxResults int) ([]record.BibliographicRecord, error)
}

// Registry holds the available discovery sources by name.
type Registry struct {
	sources map[string]Source
	log     *zap.Logger
}

// NewRegistry creates an empty registry. A nil logger disables logging.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{sources: make(map[string]Source), log: log}
}

// Register adds a source, replacing any previous source with the same name.
func (r *Registry) Register(s Source) {
	r.sources[s.Name()] = s
}

// Names returns all registered source names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve maps a question's selected source names to registered sources.
// The single entry "*" expands to every registered source. Unknown names are
// dropped with a warning rather than failing the run.
func (r *Registry) Resolve(selected []string) []Source {
	if len(selected) == 1 && selected[0] == Wildcard {
		out := make([]Source, 0, len(r.sources))
		for _, name := range r.Names() {
			out = append(out, r.sources[name])
		}
		return out
	}

	var out []Source
	for _, name := range selected {
		s, ok := r.sources[name]
		if !ok {
			r.log.Warn("skipping unknown source", zap.String("source", name))
			continue
		}
		out = append(out, s)
	}
	return out
}
