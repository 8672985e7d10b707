package catalog

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"genmoji/internal/gateway"
)

// Client exposes the genmoji endpoints as typed methods over the gateway.
// The locale is attached to every request; it comes from configuration, the
// client never guesses it.
type Client struct {
	gw     *gateway.Gateway
	locale string
}

func NewClient(gw *gateway.Gateway, locale string) *Client {
	return &Client{gw: gw, locale: locale}
}

// List fetches one catalog page for the given filter state.
func (c *Client) List(ctx context.Context, f FilterState, offset, limit int) (Page, error) {
	var page Page
	err := c.gw.Get(ctx, "/v1/catalog", f.Query(offset, limit, c.locale), &page)
	return page, err
}

// FetchFacets retrieves the three facet enumerations.
func (c *Client) FetchFacets(ctx context.Context) (Facets, error) {
	q := url.Values{}
	if c.locale != "" {
		q.Set("locale", c.locale)
	}
	var facets Facets
	err := c.gw.Get(ctx, "/v1/catalog/facets", q, &facets)
	return facets, err
}

// Related fetches items related to the given base slug.
func (c *Client) Related(ctx context.Context, slug string, limit int) ([]EmojiItem, error) {
	if strings.TrimSpace(slug) == "" {
		return nil, errors.New("catalog: related: slug required")
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if c.locale != "" {
		q.Set("locale", c.locale)
	}
	var out struct {
		Items []EmojiItem `json:"items"`
	}
	if err := c.gw.Get(ctx, "/v1/genmoji/"+url.PathEscape(slug)+"/related", q, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

type generateRequest struct {
	Prompt  string          `json:"prompt"`
	Locale  string          `json:"locale,omitempty"`
	Options GenerateOptions `json:"options"`
}

// Generate submits a prompt and returns the accepted job reference. The
// caller validates the prompt; the service answers 400 for an empty one
// regardless.
func (c *Client) Generate(ctx context.Context, prompt string, opts GenerateOptions) (GenerateAccepted, error) {
	req := generateRequest{Prompt: prompt, Locale: c.locale, Options: opts}
	var acc GenerateAccepted
	err := c.gw.Post(ctx, "/v1/genmoji/generate", req, &acc)
	return acc, err
}

// JobStatus polls a generation job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (JobStatusResponse, error) {
	var status JobStatusResponse
	err := c.gw.Get(ctx, "/v1/genmoji/jobs/"+url.PathEscape(jobID), nil, &status)
	return status, err
}

// Action records a like/unlike/view against a slug.
func (c *Client) Action(ctx context.Context, slug, action string) (ActionResult, error) {
	if strings.TrimSpace(slug) == "" {
		return ActionResult{}, errors.New("catalog: action: slug required")
	}
	body := map[string]string{"action": action}
	var res ActionResult
	err := c.gw.Post(ctx, "/v1/genmoji/"+url.PathEscape(slug)+"/action", body, &res)
	return res, err
}
