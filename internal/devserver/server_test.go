package devserver

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"genmoji/internal/catalog"
	"genmoji/internal/gallery"
	"genmoji/internal/gateway"
	"genmoji/internal/genjob"
)

func newTestStack(t *testing.T, loc string) *catalog.Client {
	t.Helper()
	app, err := NewApp(Options{Seed: 1})
	if err != nil {
		t.Fatalf("NewApp error: %v", err)
	}
	ts := httptest.NewServer(app.Router())
	t.Cleanup(ts.Close)
	gw := gateway.New(gateway.Options{BaseURL: ts.URL})
	return catalog.NewClient(gw, loc)
}

func waitForTerminal(t *testing.T, c *genjob.Controller) genjob.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := c.Snapshot()
		if snap.State.Terminal() {
			return snap
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("job never reached a terminal state, stuck at %s", c.Snapshot().State)
	return genjob.Snapshot{}
}

func TestGenerateEndToEnd(t *testing.T) {
	client := newTestStack(t, "en")
	controller := genjob.NewController(client, genjob.Options{PollInterval: time.Millisecond})

	if err := controller.Submit(context.Background(), "a happy cat", catalog.GenerateOptions{}); err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	snap := waitForTerminal(t, controller)
	if snap.State != genjob.StateSucceeded {
		t.Fatalf("state=%s, err=%+v", snap.State, snap.Err)
	}
	if snap.Result == nil || !strings.HasPrefix(snap.Result.Slug, "a-happy-cat-") {
		t.Fatalf("unexpected result: %+v", snap.Result)
	}
	if snap.Result.ImageURL == "" {
		t.Fatalf("result missing image url")
	}
}

func TestBlockedPromptFailsPermanently(t *testing.T) {
	client := newTestStack(t, "en")
	controller := genjob.NewController(client, genjob.Options{PollInterval: time.Millisecond})

	if err := controller.Submit(context.Background(), "gore dragon", catalog.GenerateOptions{}); err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	snap := waitForTerminal(t, controller)
	if snap.State != genjob.StateFailed {
		t.Fatalf("state=%s, want failed", snap.State)
	}
	if snap.Err == nil || snap.Err.Class != genjob.Permanent || snap.Err.Code != catalog.ErrCodeContentPolicy {
		t.Fatalf("unexpected classification: %+v", snap.Err)
	}
}

func TestEmptyPromptRejectedByService(t *testing.T) {
	client := newTestStack(t, "en")
	_, err := client.Generate(context.Background(), "", catalog.GenerateOptions{})
	ge := gateway.AsError(err)
	if ge == nil || ge.Kind != gateway.KindHTTP || ge.Status != 400 {
		t.Fatalf("expected http 400, got %v", err)
	}
}

func TestGalleryFilterAndPagination(t *testing.T) {
	client := newTestStack(t, "en")
	engine := gallery.NewEngine(client, gallery.Options{PageSize: 10})
	resolver := gallery.NewResolver(client, engine, gallery.ResolverOptions{})

	ctx := context.Background()
	if _, err := resolver.LoadFacets(ctx); err != nil {
		t.Fatalf("LoadFacets error: %v", err)
	}
	if err := resolver.SetFilter(ctx, gallery.DimCategory, "animals_nature"); err != nil {
		t.Fatalf("SetFilter error: %v", err)
	}

	view := engine.Snapshot()
	if len(view.Items) == 0 {
		t.Fatalf("no items for category filter")
	}
	for _, item := range view.Items {
		if item.Category != "animals_nature" {
			t.Fatalf("foreign category leaked: %+v", item)
		}
	}

	total := len(view.Items)
	for view.HasMore {
		fetched, err := engine.LoadMore(ctx)
		if err != nil {
			t.Fatalf("LoadMore error: %v", err)
		}
		if !fetched {
			break
		}
		view = engine.Snapshot()
		if len(view.Items) <= total && view.HasMore {
			t.Fatalf("LoadMore made no progress at %d items", total)
		}
		total = len(view.Items)
	}

	seen := map[string]bool{}
	for _, item := range view.Items {
		if seen[item.Slug] {
			t.Fatalf("duplicate slug %s", item.Slug)
		}
		seen[item.Slug] = true
	}
}

func TestSearchFiltersByPrompt(t *testing.T) {
	client := newTestStack(t, "en")
	engine := gallery.NewEngine(client, gallery.Options{PageSize: 24})
	resolver := gallery.NewResolver(client, engine, gallery.ResolverOptions{})

	if err := resolver.SetSearch(context.Background(), "cat"); err != nil {
		t.Fatalf("SetSearch error: %v", err)
	}
	view := engine.Snapshot()
	for _, item := range view.Items {
		if !strings.Contains(item.Prompt, "cat") {
			t.Fatalf("search miss: %q", item.Prompt)
		}
	}
}

func TestFacetsAreLocalized(t *testing.T) {
	client := newTestStack(t, "ja")
	facets, err := client.FetchFacets(context.Background())
	if err != nil {
		t.Fatalf("FetchFacets error: %v", err)
	}
	var animals *catalog.FacetEntry
	for i := range facets.Categories {
		if facets.Categories[i].Name == "animals_nature" {
			animals = &facets.Categories[i]
		}
	}
	if animals == nil {
		t.Fatalf("animals_nature facet missing")
	}
	if animals.TranslatedName != "動物と自然" {
		t.Fatalf("label not localized: %q", animals.TranslatedName)
	}
	if animals.Count == 0 {
		t.Fatalf("facet count missing")
	}
}

func TestFacetsFallBackToEnglishTitles(t *testing.T) {
	client := newTestStack(t, "fr")
	facets, err := client.FetchFacets(context.Background())
	if err != nil {
		t.Fatalf("FetchFacets error: %v", err)
	}
	for _, entry := range facets.Categories {
		if entry.Name == "food_drink" && entry.TranslatedName != "Food Drink" {
			t.Fatalf("fallback label wrong: %q", entry.TranslatedName)
		}
	}
}

func TestRelatedExcludesBaseSlug(t *testing.T) {
	client := newTestStack(t, "en")
	page, err := client.List(context.Background(), catalog.FilterState{}, 0, 1)
	if err != nil || len(page.Items) == 0 {
		t.Fatalf("List = (%v, %v)", page, err)
	}
	base := page.Items[0].Slug

	related, err := client.Related(context.Background(), base, 12)
	if err != nil {
		t.Fatalf("Related error: %v", err)
	}
	if len(related) == 0 {
		t.Fatalf("no related items")
	}
	for _, item := range related {
		if item.Slug == base {
			t.Fatalf("base slug returned as its own relation")
		}
	}
}

func TestLikeActionUpdatesCounters(t *testing.T) {
	client := newTestStack(t, "en")
	engine := gallery.NewEngine(client, gallery.Options{PageSize: 5})
	ctx := context.Background()
	if err := engine.LoadFirstPage(ctx, catalog.FilterState{}); err != nil {
		t.Fatalf("LoadFirstPage error: %v", err)
	}
	item := engine.Snapshot().Items[0]

	res, err := client.Action(ctx, item.Slug, "like")
	if err != nil {
		t.Fatalf("Action error: %v", err)
	}
	if !res.Success || res.Liked == nil || !*res.Liked {
		t.Fatalf("unexpected like result: %+v", res)
	}
	engine.ApplyAction(item.Slug, res)
	if got := engine.Snapshot().Items[0].LikesCount; got != item.LikesCount+1 {
		t.Fatalf("likes=%d, want %d", got, item.LikesCount+1)
	}

	views, err := client.Action(ctx, item.Slug, "view")
	if err != nil {
		t.Fatalf("view Action error: %v", err)
	}
	if views.ViewsCount == nil || *views.ViewsCount != item.ViewsCount+1 {
		t.Fatalf("unexpected views result: %+v", views)
	}
}

func TestUnknownActionAndSlug(t *testing.T) {
	client := newTestStack(t, "en")
	ctx := context.Background()

	if _, err := client.Action(ctx, "no-such-slug", "like"); gateway.AsError(err) == nil {
		t.Fatalf("expected http error for unknown slug, got %v", err)
	}

	page, err := client.List(ctx, catalog.FilterState{}, 0, 1)
	if err != nil || len(page.Items) == 0 {
		t.Fatalf("List = (%v, %v)", page, err)
	}
	if _, err := client.Action(ctx, page.Items[0].Slug, "teleport"); gateway.AsError(err) == nil {
		t.Fatalf("expected http error for unknown action, got %v", err)
	}
}

func TestGeneratedItemJoinsCatalog(t *testing.T) {
	client := newTestStack(t, "en")
	controller := genjob.NewController(client, genjob.Options{PollInterval: time.Millisecond})

	if err := controller.Submit(context.Background(), "a brand new mascot", catalog.GenerateOptions{Model: "ai-v2"}); err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	snap := waitForTerminal(t, controller)
	if snap.State != genjob.StateSucceeded {
		t.Fatalf("state=%s", snap.State)
	}

	page, err := client.List(context.Background(), catalog.FilterState{Search: "brand new mascot"}, 0, 24)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	found := false
	for _, item := range page.Items {
		if item.Slug == snap.Result.Slug {
			found = true
		}
	}
	if !found {
		t.Fatalf("generated item %s not listed", snap.Result.Slug)
	}
}
