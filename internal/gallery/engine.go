package gallery

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"genmoji/internal/catalog"
	"genmoji/internal/gateway"
)

// Source is the slice of the catalog client the engine fetches through.
type Source interface {
	List(ctx context.Context, f catalog.FilterState, offset, limit int) (catalog.Page, error)
}

// Options configures an Engine.
type Options struct {
	PageSize int
	Logger   *zerolog.Logger
}

// View is the observable value of the gallery store: the accumulated,
// de-duplicated item sequence for the current filter signature.
type View struct {
	Items   []catalog.EmojiItem
	HasMore bool
	Loading bool
	Err     error
}

// Engine owns catalog retrieval: it accumulates pages for exactly one
// filter signature at a time, de-duplicates by slug preserving server
// order, and guards against both overlapping fetches and stale responses.
// Like the job controller it is a single injected instance; presentation
// surfaces only read from it.
type Engine struct {
	src      Source
	pageSize int
	logger   zerolog.Logger

	mu         sync.Mutex
	seq        uint64 // bumped on every signature change; stale fetches compare against it
	sig        string
	filters    catalog.FilterState
	items      []catalog.EmojiItem
	seen       map[string]struct{}
	nextOffset int
	hasMore    bool
	loading    bool
	err        error
	observers  map[int]func(View)
	nextObs    int
}

func NewEngine(src Source, opts Options) *Engine {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 24
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Engine{
		src:       src,
		pageSize:  pageSize,
		logger:    logger,
		seen:      make(map[string]struct{}),
		observers: make(map[int]func(View)),
	}
}

// LoadFirstPage discards any accumulation for a different signature and
// fetches page one for the given filters. The reset is visible before the
// network round-trip: no window shows old items under the new filters.
func (e *Engine) LoadFirstPage(ctx context.Context, f catalog.FilterState) error {
	return e.loadFirst(ctx, f)
}

// Refresh re-runs the first page for the current filters even when they
// are unchanged, resetting pagination.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	f := e.filters
	e.mu.Unlock()
	return e.loadFirst(ctx, f)
}

func (e *Engine) loadFirst(ctx context.Context, f catalog.FilterState) error {
	e.mu.Lock()
	e.seq++
	token := e.seq
	e.sig = f.Signature()
	e.filters = f
	e.items = nil
	e.seen = make(map[string]struct{})
	e.nextOffset = 0
	e.hasMore = false
	e.loading = true
	e.err = nil
	e.notifyLocked()
	e.mu.Unlock()

	page, err := e.src.List(ctx, f, 0, e.pageSize)
	return e.applyPage(token, page, err)
}

// LoadMore fetches the next page for the current signature. It reports
// false without fetching when there is nothing more to load or a fetch is
// already in flight; rapid repeat calls collapse to one request. A Timeout
// is retried once before surfacing.
func (e *Engine) LoadMore(ctx context.Context) (bool, error) {
	e.mu.Lock()
	if e.loading || !e.hasMore {
		e.mu.Unlock()
		return false, nil
	}
	token := e.seq
	f := e.filters
	offset := e.nextOffset
	e.loading = true
	e.err = nil
	e.notifyLocked()
	e.mu.Unlock()

	page, err := e.src.List(ctx, f, offset, e.pageSize)
	if err != nil && gateway.IsTimeout(err) {
		e.logger.Debug().Str("signature", f.Signature()).Msg("gallery: load more timed out, retrying once")
		page, err = e.src.List(ctx, f, offset, e.pageSize)
	}
	if applyErr := e.applyPage(token, page, err); applyErr != nil {
		return true, applyErr
	}
	return true, nil
}

// applyPage merges a fetched page into the accumulation, unless the
// signature changed while the fetch was in flight: a stale page is dropped
// without touching state.
func (e *Engine) applyPage(token uint64, page catalog.Page, err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if token != e.seq {
		e.logger.Debug().Uint64("token", token).Uint64("live", e.seq).Str("signature", e.sig).Msg("gallery: stale page discarded")
		return nil
	}
	e.loading = false
	if err != nil {
		e.err = err
		e.notifyLocked()
		return err
	}

	added := 0
	for _, item := range page.Items {
		if _, dup := e.seen[item.Slug]; dup {
			continue
		}
		e.seen[item.Slug] = struct{}{}
		e.items = append(e.items, item)
		added++
	}
	if page.NextOffset > 0 {
		e.nextOffset = page.NextOffset
	} else {
		e.nextOffset += len(page.Items)
	}
	// Trust the explicit flag; a short page means exhaustion either way.
	e.hasMore = page.HasMore && len(page.Items) >= e.pageSize
	e.logger.Debug().Int("added", added).Int("total", len(e.items)).Bool("has_more", e.hasMore).Msg("gallery: page applied")
	e.notifyLocked()
	return nil
}

// Snapshot returns a copy of the current view. The item slice is copied so
// callers cannot alias the accumulation.
func (e *Engine) Snapshot() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewLocked()
}

// Filters returns the filter state the accumulation belongs to.
func (e *Engine) Filters() catalog.FilterState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filters
}

// Subscribe registers an observer called with every view change, starting
// with the current view. The returned func unsubscribes.
func (e *Engine) Subscribe(fn func(View)) func() {
	e.mu.Lock()
	id := e.nextObs
	e.nextObs++
	e.observers[id] = fn
	v := e.viewLocked()
	e.mu.Unlock()

	fn(v)
	return func() {
		e.mu.Lock()
		delete(e.observers, id)
		e.mu.Unlock()
	}
}

// ApplyAction patches the engagement counters of an accumulated item after
// a like/unlike/view action, so surfaces stay consistent without a refetch.
// Unknown slugs are ignored.
func (e *Engine) ApplyAction(slug string, res catalog.ActionResult) {
	if !res.Success {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.items {
		if e.items[i].Slug != slug {
			continue
		}
		if res.Liked != nil {
			if *res.Liked {
				e.items[i].LikesCount++
			} else if e.items[i].LikesCount > 0 {
				e.items[i].LikesCount--
			}
		}
		if res.ViewsCount != nil {
			e.items[i].ViewsCount = *res.ViewsCount
		}
		e.notifyLocked()
		return
	}
}

func (e *Engine) viewLocked() View {
	items := make([]catalog.EmojiItem, len(e.items))
	copy(items, e.items)
	return View{Items: items, HasMore: e.hasMore, Loading: e.loading, Err: e.err}
}

func (e *Engine) notifyLocked() {
	if len(e.observers) == 0 {
		return
	}
	v := e.viewLocked()
	for _, fn := range e.observers {
		fn(v)
	}
}
