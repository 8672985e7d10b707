package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"genmoji/internal/gateway"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	gw := gateway.New(gateway.Options{BaseURL: ts.URL})
	return NewClient(gw, "ja")
}

func TestListBuildsQuery(t *testing.T) {
	var got map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/catalog" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		got = map[string]string{}
		for k := range r.URL.Query() {
			got[k] = r.URL.Query().Get(k)
		}
		_ = json.NewEncoder(w).Encode(Page{HasMore: false})
	})

	f := FilterState{Category: "animals_nature", Model: "ai-v2", Search: "cat", Sort: SortPopular}
	if _, err := client.List(context.Background(), f, 48, 24); err != nil {
		t.Fatalf("List error: %v", err)
	}
	want := map[string]string{
		"category": "animals_nature",
		"model":    "ai-v2",
		"q":        "cat",
		"sort":     "popular",
		"offset":   "48",
		"limit":    "24",
		"locale":   "ja",
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("query %s=%q, want %q (all: %v)", k, got[k], v, got)
		}
	}
	if _, ok := got["color"]; ok {
		t.Fatalf("empty color must be omitted")
	}
}

func TestListDefaultsSortToNewest(t *testing.T) {
	var gotSort string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotSort = r.URL.Query().Get("sort")
		_ = json.NewEncoder(w).Encode(Page{})
	})
	if _, err := client.List(context.Background(), FilterState{}, 0, 24); err != nil {
		t.Fatalf("List error: %v", err)
	}
	if gotSort != "newest" {
		t.Fatalf("sort=%q, want newest", gotSort)
	}
}

func TestRelatedSortCarriesBaseSlug(t *testing.T) {
	var gotBase string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotBase = r.URL.Query().Get("base")
		_ = json.NewEncoder(w).Encode(Page{})
	})
	f := FilterState{Sort: SortRelated, BaseSlug: "happy-cat-1"}
	if _, err := client.List(context.Background(), f, 0, 24); err != nil {
		t.Fatalf("List error: %v", err)
	}
	if gotBase != "happy-cat-1" {
		t.Fatalf("base=%q, want happy-cat-1", gotBase)
	}
}

func TestGeneratePostsPromptAndLocale(t *testing.T) {
	var got generateRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/genmoji/generate" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(GenerateAccepted{JobID: "j1", Slug: "happy-cat-1", Status: JobQueued})
	})

	acc, err := client.Generate(context.Background(), "a happy cat", GenerateOptions{Model: "ai-v2"})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if got.Prompt != "a happy cat" || got.Locale != "ja" || got.Options.Model != "ai-v2" {
		t.Fatalf("unexpected request payload: %+v", got)
	}
	if acc.JobID != "j1" || acc.Slug != "happy-cat-1" {
		t.Fatalf("unexpected acceptance: %+v", acc)
	}
}

func TestRelatedRequiresSlug(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected")
	})
	if _, err := client.Related(context.Background(), "  ", 12); err == nil {
		t.Fatalf("expected error for blank slug")
	}
}

func TestActionEscapesSlug(t *testing.T) {
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		liked := true
		_ = json.NewEncoder(w).Encode(ActionResult{Success: true, Liked: &liked})
	})
	res, err := client.Action(context.Background(), "happy-cat-1", "like")
	if err != nil {
		t.Fatalf("Action error: %v", err)
	}
	if gotPath != "/v1/genmoji/happy-cat-1/action" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if !res.Success || res.Liked == nil || !*res.Liked {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestFilterSignatureChangesWithEachDimension(t *testing.T) {
	base := FilterState{}
	variants := []FilterState{
		{Category: "objects"},
		{Model: "ai-v1"},
		{Color: "blue"},
		{Search: "cat"},
		{Sort: SortPopular},
		{Sort: SortRelated, BaseSlug: "happy-cat-1"},
	}
	seen := map[string]bool{base.Signature(): true}
	for _, v := range variants {
		sig := v.Signature()
		if seen[sig] {
			t.Fatalf("signature collision for %+v: %s", v, sig)
		}
		seen[sig] = true
	}
	if base.Signature() != (FilterState{Sort: SortNewest}).Signature() {
		t.Fatalf("empty sort must normalize to newest")
	}
}
