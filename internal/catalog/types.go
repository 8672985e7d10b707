package catalog

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// EmojiItem is the read-only projection of a catalog entry. Identity is by
// Slug; two items with equal slugs are the same genmoji.
type EmojiItem struct {
	Slug       string    `json:"slug"`
	Prompt     string    `json:"prompt"`
	ImageURL   string    `json:"image_url"`
	Category   string    `json:"category"`
	Model      string    `json:"model"`
	Color      string    `json:"color"`
	CreatedAt  time.Time `json:"created_at"`
	IsPublic   bool      `json:"is_public"`
	LikesCount int       `json:"likes_count"`
	ViewsCount int       `json:"views_count"`
	Score      *float64  `json:"score,omitempty"`
}

// Page is one fetched slice of the catalog.
type Page struct {
	Items      []EmojiItem `json:"items"`
	HasMore    bool        `json:"has_more"`
	NextOffset int         `json:"next_offset"`
}

// FacetEntry is one selectable value of a facet dimension.
type FacetEntry struct {
	Name           string `json:"name"`
	TranslatedName string `json:"translated_name"`
	Count          int    `json:"count,omitempty"`
}

// Facets holds the three facet enumerations.
type Facets struct {
	Categories []FacetEntry `json:"categories"`
	Models     []FacetEntry `json:"models"`
	Colors     []FacetEntry `json:"colors"`
}

// SortKey orders catalog results.
type SortKey string

const (
	SortNewest  SortKey = "newest"
	SortPopular SortKey = "popular"
	SortRelated SortKey = "related"
)

// FilterState is the composite query the gallery runs. Empty strings mean
// "all" for the facet dimensions. It doubles as the pagination cache key:
// any change to its Signature resets accumulation.
type FilterState struct {
	Category string
	Model    string
	Color    string
	Search   string
	Sort     SortKey
	// BaseSlug anchors the related sort; ignored otherwise.
	BaseSlug string
}

// Signature returns the canonical cache key for this filter combination.
func (f FilterState) Signature() string {
	sort := f.Sort
	if sort == "" {
		sort = SortNewest
	}
	return strings.Join([]string{
		"c=" + f.Category,
		"m=" + f.Model,
		"k=" + f.Color,
		"q=" + f.Search,
		"s=" + string(sort),
		"b=" + f.BaseSlug,
	}, "&")
}

// Query renders the filter as catalog list parameters.
func (f FilterState) Query(offset, limit int, locale string) url.Values {
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Model != "" {
		q.Set("model", f.Model)
	}
	if f.Color != "" {
		q.Set("color", f.Color)
	}
	if f.Search != "" {
		q.Set("q", f.Search)
	}
	sort := f.Sort
	if sort == "" {
		sort = SortNewest
	}
	q.Set("sort", string(sort))
	if sort == SortRelated && f.BaseSlug != "" {
		q.Set("base", f.BaseSlug)
	}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	if locale != "" {
		q.Set("locale", locale)
	}
	return q
}

// GenerateOptions tunes a generation request.
type GenerateOptions struct {
	Model string `json:"model,omitempty"`
	Color string `json:"color,omitempty"`
}

// GenerateAccepted is the service's acknowledgement of a generation job.
type GenerateAccepted struct {
	JobID  string `json:"job_id"`
	Slug   string `json:"slug"`
	Status string `json:"status"`
}

// Remote job status strings.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// JobStatusResponse is one poll of a generation job.
type JobStatusResponse struct {
	JobID    string     `json:"job_id"`
	Status   string     `json:"status"`
	Progress int        `json:"progress"`
	Result   *EmojiItem `json:"result,omitempty"`
	Error    *JobError  `json:"error,omitempty"`
}

// JobError is the remote failure payload of a generation job.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrCodeContentPolicy marks prompts the service refuses outright;
// resubmitting the same prompt cannot succeed.
const ErrCodeContentPolicy = "content_policy_violation"

// ActionResult is the response to a like/unlike/view action.
type ActionResult struct {
	Success    bool  `json:"success"`
	Liked      *bool `json:"liked,omitempty"`
	ViewsCount *int  `json:"views_count,omitempty"`
}
