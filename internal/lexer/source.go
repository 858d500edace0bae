package lexer

import (
	"github.com/google/uuid"

	"github.com/runelang/rune/internal/diag"
)

// Source is one UTF-8 source text registered with the pipeline (spec §6):
// a SourceId, its text, and an optional filesystem path used only for
// diagnostics and `mod foo;` file resolution.
type Source struct {
	ID   diag.SourceID
	Path string // "" if the source has no backing file
	Text string
}

// Registry assigns a fresh, collision-proof SourceID to every registered
// source. IDs are UUID-backed (per ottomap's turn-report ids) rather than a
// bare incrementing counter, so diagnostics collected by parallel test runs
// or repeated compiles of the same path never collide.
type Registry struct {
	sources map[diag.SourceID]*Source
}

func NewRegistry() *Registry {
	return &Registry{sources: make(map[diag.SourceID]*Source)}
}

// Register adds a source and returns its assigned Source record.
func (r *Registry) Register(path, text string) *Source {
	id := diag.SourceID(uuid.NewString())
	src := &Source{ID: id, Path: path, Text: text}
	r.sources[id] = src
	return src
}

// Lookup returns the source registered under id, if any.
func (r *Registry) Lookup(id diag.SourceID) (*Source, bool) {
	s, ok := r.sources[id]
	return s, ok
}
