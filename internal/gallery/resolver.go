package gallery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"genmoji/internal/catalog"
)

// Dimension names a facet axis.
type Dimension string

const (
	DimCategory Dimension = "category"
	DimModel    Dimension = "model"
	DimColor    Dimension = "color"
)

// FacetAPI is the slice of the catalog client the resolver fetches through.
type FacetAPI interface {
	FetchFacets(ctx context.Context) (catalog.Facets, error)
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	TTL    time.Duration
	Logger *zerolog.Logger
	Now    func() time.Time // test hook
}

// Resolver maintains the facet enumerations and the current selection, and
// drives the engine: every filter or search change reloads the first page
// under the new composite state before returning, so callers never observe
// old results labeled with new filters.
//
// Facets are read-mostly reference data cached for a TTL. Selections made
// before facets have loaded are accepted optimistically and validated once
// facets arrive; a selection that turns out unknown is cleared back to
// "all".
type Resolver struct {
	api    FacetAPI
	engine *Engine
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	facets    catalog.Facets
	fetchedAt time.Time
	loaded    bool
	fetching  bool
	fetchDone chan struct{} // closed when the in-flight fetch completes
	fetchErr  error         // outcome of the most recent fetch
	filters   catalog.FilterState
	// selections accepted before facets arrived, pending validation
	optimistic map[Dimension]string
}

func NewResolver(api FacetAPI, engine *Engine, opts ResolverOptions) *Resolver {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		api:        api,
		engine:     engine,
		ttl:        ttl,
		logger:     logger,
		now:        now,
		filters:    catalog.FilterState{Sort: catalog.SortNewest},
		optimistic: make(map[Dimension]string),
	}
}

// ErrUnknownFacet rejects a filter value absent from the loaded facets.
type ErrUnknownFacet struct {
	Dimension Dimension
	Value     string
}

func (e *ErrUnknownFacet) Error() string {
	return fmt.Sprintf("gallery: unknown %s %q", e.Dimension, e.Value)
}

// SetFilter selects a facet value ("" means all) and reloads the gallery.
// Known-ness is checked against loaded facets; before facets load the value
// is accepted optimistically and re-checked when they arrive.
func (r *Resolver) SetFilter(ctx context.Context, dim Dimension, value string) error {
	r.mu.Lock()
	if value != "" {
		if r.loaded {
			if !r.knownLocked(dim, value) {
				r.mu.Unlock()
				return &ErrUnknownFacet{Dimension: dim, Value: value}
			}
		} else {
			r.optimistic[dim] = value
		}
	} else {
		delete(r.optimistic, dim)
	}
	r.assignLocked(dim, value)
	f := r.filters
	r.mu.Unlock()

	return r.engine.LoadFirstPage(ctx, f)
}

// SetSearch replaces the free-text term and reloads the gallery.
func (r *Resolver) SetSearch(ctx context.Context, term string) error {
	r.mu.Lock()
	r.filters.Search = term
	f := r.filters
	r.mu.Unlock()
	return r.engine.LoadFirstPage(ctx, f)
}

// SetSort replaces the sort key and reloads the gallery. The related sort
// requires a base slug.
func (r *Resolver) SetSort(ctx context.Context, sort catalog.SortKey, baseSlug string) error {
	if sort == catalog.SortRelated && baseSlug == "" {
		return fmt.Errorf("gallery: related sort requires a base slug")
	}
	r.mu.Lock()
	r.filters.Sort = sort
	r.filters.BaseSlug = baseSlug
	f := r.filters
	r.mu.Unlock()
	return r.engine.LoadFirstPage(ctx, f)
}

// Filters returns the current composite selection.
func (r *Resolver) Filters() catalog.FilterState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filters
}

// Facets returns the cached enumerations; the bool reports whether they
// have been loaded at all.
func (r *Resolver) Facets() (catalog.Facets, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.facets, r.loaded
}

// LoadFacets fetches the facet enumerations unless a fresh copy is cached.
// It is idempotent and safe to call on every render: within the TTL it
// returns the cache, and concurrent callers collapse to one fetch. During a
// refresh the stale cache is answered without blocking; callers racing the
// very first fetch wait for it and share its outcome.
func (r *Resolver) LoadFacets(ctx context.Context) (catalog.Facets, error) {
	r.mu.Lock()
	if r.loaded && r.now().Sub(r.fetchedAt) < r.ttl {
		defer r.mu.Unlock()
		return r.facets, nil
	}
	if r.fetching {
		if r.loaded {
			// Another caller is already refreshing; the cache (possibly
			// stale) is still the best answer without blocking.
			defer r.mu.Unlock()
			return r.facets, nil
		}
		done := r.fetchDone
		r.mu.Unlock()
		select {
		case <-ctx.Done():
			return catalog.Facets{}, ctx.Err()
		case <-done:
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.facets, r.fetchErr
	}
	r.fetching = true
	r.fetchDone = make(chan struct{})
	r.mu.Unlock()

	facets, err := r.api.FetchFacets(ctx)

	r.mu.Lock()
	r.fetching = false
	r.fetchErr = err
	close(r.fetchDone)
	if err != nil {
		defer r.mu.Unlock()
		return r.facets, err
	}
	r.facets = facets
	r.fetchedAt = r.now()
	r.loaded = true
	cleared := r.validateOptimisticLocked()
	f := r.filters
	r.mu.Unlock()

	if cleared {
		// An optimistic selection turned out unknown; re-run the gallery
		// under the corrected filters.
		if err := r.engine.LoadFirstPage(ctx, f); err != nil {
			return facets, err
		}
	}
	return facets, nil
}

// validateOptimisticLocked re-checks selections accepted before facets
// loaded, clearing unknown ones. Reports whether anything changed.
func (r *Resolver) validateOptimisticLocked() bool {
	cleared := false
	for dim, value := range r.optimistic {
		if !r.knownLocked(dim, value) {
			r.logger.Debug().Str("dimension", string(dim)).Str("value", value).Msg("gallery: optimistic filter value unknown, cleared")
			r.assignLocked(dim, "")
			cleared = true
		}
	}
	r.optimistic = make(map[Dimension]string)
	return cleared
}

func (r *Resolver) knownLocked(dim Dimension, value string) bool {
	var entries []catalog.FacetEntry
	switch dim {
	case DimCategory:
		entries = r.facets.Categories
	case DimModel:
		entries = r.facets.Models
	case DimColor:
		entries = r.facets.Colors
	}
	for _, e := range entries {
		if e.Name == value {
			return true
		}
	}
	return false
}

func (r *Resolver) assignLocked(dim Dimension, value string) {
	switch dim {
	case DimCategory:
		r.filters.Category = value
	case DimModel:
		r.filters.Model = value
	case DimColor:
		r.filters.Color = value
	}
}
