package devserver

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"genmoji/internal/catalog"
)

// Fixed enumerations the fake service exposes as facets. The category list
// mirrors the production taxonomy; anything else is "other".
var (
	seedCategories = []string{
		"smileys_emotion", "animals_nature", "food_drink", "activity",
		"travel_places", "objects", "symbols", "other",
	}
	seedModels = []string{"ai-v1", "ai-v2", "ai-v3"}
	seedColors = []string{"red", "orange", "yellow", "green", "blue", "purple", "pink", "brown"}

	seedSubjects = []string{
		"cat", "dog", "fox", "panda", "dragon", "robot", "wizard", "astronaut",
		"pizza", "taco", "boba tea", "donut", "guitar", "skateboard", "rocket",
		"rainbow", "volcano", "lighthouse", "cactus", "mushroom", "ghost",
		"dinosaur", "mermaid", "unicorn",
	}
	seedMoods = []string{"happy", "sleepy", "excited", "grumpy", "cool", "shy", "heroic", "tiny"}
)

// seedCatalog builds a deterministic catalog so pagination and filter tests
// are reproducible run to run.
func seedCatalog(seed int64, size int) []catalog.EmojiItem {
	rng := rand.New(rand.NewSource(seed))
	base := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	items := make([]catalog.EmojiItem, 0, size)
	for i := 0; i < size; i++ {
		mood := seedMoods[rng.Intn(len(seedMoods))]
		subject := seedSubjects[rng.Intn(len(seedSubjects))]
		prompt := fmt.Sprintf("a %s %s", mood, subject)
		slug := fmt.Sprintf("%s-%s-%d", strings.ReplaceAll(mood, " ", "-"), strings.ReplaceAll(subject, " ", "-"), i)
		score := float64(rng.Intn(1000)) / 1000
		items = append(items, catalog.EmojiItem{
			Slug:       slug,
			Prompt:     prompt,
			ImageURL:   "https://cdn.genmoji.dev/" + slug + ".png",
			Category:   seedCategories[rng.Intn(len(seedCategories))],
			Model:      seedModels[rng.Intn(len(seedModels))],
			Color:      seedColors[rng.Intn(len(seedColors))],
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
			IsPublic:   true,
			LikesCount: rng.Intn(500),
			ViewsCount: rng.Intn(5000),
			Score:      &score,
		})
	}
	return items
}

// listQuery is the parsed catalog list request.
type listQuery struct {
	category string
	model    string
	color    string
	search   string
	sort     catalog.SortKey
	base     string
	offset   int
	limit    int
}

// selectItems applies filters and sort over the seeded catalog and slices
// out one page.
func (a *App) selectItems(q listQuery) catalog.Page {
	matched := make([]catalog.EmojiItem, 0, len(a.items))
	for _, item := range a.items {
		if q.category != "" && item.Category != q.category {
			continue
		}
		if q.model != "" && item.Model != q.model {
			continue
		}
		if q.color != "" && item.Color != q.color {
			continue
		}
		if q.search != "" && !strings.Contains(item.Prompt, strings.ToLower(q.search)) {
			continue
		}
		if item.Slug == q.base {
			continue
		}
		matched = append(matched, item)
	}

	switch q.sort {
	case catalog.SortPopular:
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].LikesCount > matched[j].LikesCount
		})
	case catalog.SortRelated:
		baseCategory := ""
		for _, item := range a.items {
			if item.Slug == q.base {
				baseCategory = item.Category
				break
			}
		}
		sort.SliceStable(matched, func(i, j int) bool {
			ri, rj := matched[i].Category == baseCategory, matched[j].Category == baseCategory
			if ri != rj {
				return ri
			}
			return matched[i].LikesCount > matched[j].LikesCount
		})
	default: // newest
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		})
	}

	if q.offset > len(matched) {
		q.offset = len(matched)
	}
	end := q.offset + q.limit
	if end > len(matched) {
		end = len(matched)
	}
	page := catalog.Page{
		Items:      matched[q.offset:end],
		HasMore:    end < len(matched),
		NextOffset: end,
	}
	return page
}

// facetLabels holds the few translated label sets the fake service ships.
// Any other locale falls back to title-cased English.
var facetLabels = map[string]map[string]string{
	"ja": {
		"smileys_emotion": "スマイリーと感情",
		"animals_nature":  "動物と自然",
		"food_drink":      "食べ物と飲み物",
		"activity":        "活動",
		"travel_places":   "旅行と場所",
		"objects":         "物",
		"symbols":         "記号",
		"other":           "その他",
	},
	"id": {
		"smileys_emotion": "senyum dan emosi",
		"animals_nature":  "hewan dan alam",
		"food_drink":      "makanan dan minuman",
		"activity":        "aktivitas",
		"travel_places":   "perjalanan dan tempat",
		"objects":         "benda",
		"symbols":         "simbol",
		"other":           "lainnya",
	},
}

var englishTitle = cases.Title(language.English)

func translate(name, loc string) string {
	if labels, ok := facetLabels[loc]; ok {
		if label, ok := labels[name]; ok {
			return label
		}
	}
	return englishTitle.String(strings.ReplaceAll(name, "_", " "))
}

// buildFacets derives the facet enumerations, with live counts, from the
// current catalog.
func (a *App) buildFacets(loc string) catalog.Facets {
	counts := func(pick func(catalog.EmojiItem) string, names []string) []catalog.FacetEntry {
		byName := make(map[string]int)
		for _, item := range a.items {
			byName[pick(item)]++
		}
		entries := make([]catalog.FacetEntry, 0, len(names))
		for _, name := range names {
			entries = append(entries, catalog.FacetEntry{
				Name:           name,
				TranslatedName: translate(name, loc),
				Count:          byName[name],
			})
		}
		return entries
	}
	return catalog.Facets{
		Categories: counts(func(i catalog.EmojiItem) string { return i.Category }, seedCategories),
		Models:     counts(func(i catalog.EmojiItem) string { return i.Model }, seedModels),
		Colors:     counts(func(i catalog.EmojiItem) string { return i.Color }, seedColors),
	}
}
