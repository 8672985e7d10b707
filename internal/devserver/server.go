// Package devserver is an in-process fake of the remote genmoji service. It
// implements the same wire contract the client consumes, so the CLI's mock
// mode and the integration tests exercise the real request path end to end.
package devserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"genmoji/internal/catalog"
)

const (
	defaultCatalogSize = 96
	defaultPageLimit   = 24
	maxPageLimit       = 100

	// progressStep is how much a job advances per status poll.
	progressStep = 40
)

// Prompts containing any of these tokens are rejected by the simulated
// content policy, after acceptance, as a permanently failed job.
var blockedTokens = []string{"nsfw", "gore"}

// Options configures the fake service.
type Options struct {
	Logger      *zerolog.Logger
	Seed        int64
	CatalogSize int
	// GeoIPDBPath enables country-based locale fallback when set.
	GeoIPDBPath string
	// RateLimitPerMin caps requests per client IP; 0 disables limiting.
	RateLimitPerMin int
}

type mockJob struct {
	id       string
	slug     string
	prompt   string
	model    string
	color    string
	progress int
	blocked  bool
	created  time.Time
}

// App holds the fake service's in-memory state.
type App struct {
	logger zerolog.Logger

	mu    sync.Mutex
	items []catalog.EmojiItem
	jobs  map[string]*mockJob
	liked map[string]bool

	lookup countryLookup
	limit  int
}

// NewApp seeds the catalog and prepares the handler state.
func NewApp(opts Options) (*App, error) {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	size := opts.CatalogSize
	if size <= 0 {
		size = defaultCatalogSize
	}
	lookup, err := newGeoLookup(opts.GeoIPDBPath)
	if err != nil {
		return nil, err
	}
	return &App{
		logger: logger,
		items:  seedCatalog(opts.Seed, size),
		jobs:   make(map[string]*mockJob),
		liked:  make(map[string]bool),
		lookup: lookup,
		limit:  opts.RateLimitPerMin,
	}, nil
}

// Router builds the HTTP handler for the fake service.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(localeMiddleware(a.lookup))
	if a.limit > 0 {
		r.Use(rateLimit(a.limit, time.Minute))
	}

	r.Get("/v1/healthz", a.health)
	r.Get("/v1/catalog", a.listCatalog)
	r.Get("/v1/catalog/facets", a.facets)
	r.Route("/v1/genmoji", func(r chi.Router) {
		r.Post("/generate", a.generate)
		r.Get("/jobs/{job_id}", a.jobStatus)
		r.Get("/{slug}/related", a.related)
		r.Post("/{slug}/action", a.action)
	})
	return r
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, msg string) {
	a.json(w, code, map[string]string{"error": kind, "message": msg})
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) listCatalog(w http.ResponseWriter, r *http.Request) {
	q := listQuery{
		category: r.URL.Query().Get("category"),
		model:    r.URL.Query().Get("model"),
		color:    r.URL.Query().Get("color"),
		search:   r.URL.Query().Get("q"),
		sort:     catalog.SortKey(r.URL.Query().Get("sort")),
		base:     r.URL.Query().Get("base"),
		offset:   queryInt(r, "offset", 0),
		limit:    queryInt(r, "limit", defaultPageLimit),
	}
	if q.limit <= 0 || q.limit > maxPageLimit {
		q.limit = defaultPageLimit
	}
	if q.offset < 0 {
		q.offset = 0
	}
	if q.sort == catalog.SortRelated && q.base == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "related sort requires base")
		return
	}

	a.mu.Lock()
	page := a.selectItems(q)
	a.mu.Unlock()
	a.json(w, http.StatusOK, page)
}

func (a *App) facets(w http.ResponseWriter, r *http.Request) {
	loc := requestLocale(r)
	a.mu.Lock()
	facets := a.buildFacets(loc)
	a.mu.Unlock()
	a.json(w, http.StatusOK, facets)
}

func (a *App) related(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	limit := queryInt(r, "limit", 12)
	if limit <= 0 || limit > maxPageLimit {
		limit = 12
	}

	a.mu.Lock()
	page := a.selectItems(listQuery{sort: catalog.SortRelated, base: slug, limit: limit})
	a.mu.Unlock()
	a.json(w, http.StatusOK, map[string]any{"items": page.Items})
}

type generateRequest struct {
	Prompt  string                  `json:"prompt"`
	Locale  string                  `json:"locale"`
	Options catalog.GenerateOptions `json:"options"`
}

func (a *App) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt required")
		return
	}

	job := &mockJob{
		id:      uuid.NewString(),
		slug:    slugify(prompt),
		prompt:  strings.ToLower(prompt),
		model:   req.Options.Model,
		color:   req.Options.Color,
		blocked: isBlocked(prompt),
		created: time.Now(),
	}
	a.mu.Lock()
	a.jobs[job.id] = job
	a.mu.Unlock()

	a.logger.Debug().Str("job_id", job.id).Str("slug", job.slug).Msg("mockapi: job accepted")
	a.json(w, http.StatusAccepted, catalog.GenerateAccepted{
		JobID:  job.id,
		Slug:   job.slug,
		Status: catalog.JobQueued,
	})
}

func (a *App) jobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")

	a.mu.Lock()
	defer a.mu.Unlock()
	job, ok := a.jobs[id]
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "unknown job")
		return
	}

	if job.blocked {
		a.json(w, http.StatusOK, catalog.JobStatusResponse{
			JobID:  job.id,
			Status: catalog.JobFailed,
			Error: &catalog.JobError{
				Code:    catalog.ErrCodeContentPolicy,
				Message: "prompt violates content policy",
			},
		})
		return
	}

	// Each poll advances the simulated job.
	job.progress += progressStep
	if job.progress < 100 {
		a.json(w, http.StatusOK, catalog.JobStatusResponse{
			JobID:    job.id,
			Status:   catalog.JobRunning,
			Progress: job.progress,
		})
		return
	}

	item := a.finishJobLocked(job)
	a.json(w, http.StatusOK, catalog.JobStatusResponse{
		JobID:    job.id,
		Status:   catalog.JobSucceeded,
		Progress: 100,
		Result:   &item,
	})
}

// finishJobLocked materializes the generated item into the catalog so it
// shows up in subsequent listings, as the real service does.
func (a *App) finishJobLocked(job *mockJob) catalog.EmojiItem {
	for _, existing := range a.items {
		if existing.Slug == job.slug {
			return existing
		}
	}
	model := job.model
	if model == "" {
		model = seedModels[len(seedModels)-1]
	}
	item := catalog.EmojiItem{
		Slug:      job.slug,
		Prompt:    job.prompt,
		ImageURL:  "https://cdn.genmoji.dev/" + job.slug + ".png",
		Category:  "other",
		Model:     model,
		Color:     job.color,
		CreatedAt: time.Now(),
		IsPublic:  true,
	}
	a.items = append(a.items, item)
	return item
}

func (a *App) action(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.items {
		if a.items[i].Slug != slug {
			continue
		}
		switch req.Action {
		case "like":
			if !a.liked[slug] {
				a.liked[slug] = true
				a.items[i].LikesCount++
			}
			liked := true
			a.json(w, http.StatusOK, catalog.ActionResult{Success: true, Liked: &liked})
		case "unlike":
			if a.liked[slug] {
				a.liked[slug] = false
				a.items[i].LikesCount--
			}
			liked := false
			a.json(w, http.StatusOK, catalog.ActionResult{Success: true, Liked: &liked})
		case "view":
			a.items[i].ViewsCount++
			views := a.items[i].ViewsCount
			a.json(w, http.StatusOK, catalog.ActionResult{Success: true, ViewsCount: &views})
		default:
			a.error(w, http.StatusBadRequest, "bad_request", "unknown action")
		}
		return
	}
	a.error(w, http.StatusNotFound, "not_found", "unknown slug")
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func slugify(prompt string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == ' ' || r == '-' || r == '_':
			return '-'
		default:
			return -1
		}
	}, strings.TrimSpace(prompt))
	cleaned = strings.Trim(cleaned, "-")
	if len(cleaned) > 40 {
		cleaned = cleaned[:40]
	}
	return cleaned + "-" + uuid.NewString()[:8]
}

func isBlocked(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, token := range blockedTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}
