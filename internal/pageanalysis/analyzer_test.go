package pageanalysis

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"pilot/internal/cache"
)

type fakePage struct {
	url string
	raw json.RawMessage
	err error
}

func (f *fakePage) CurrentURL() string { return f.url }
func (f *fakePage) Evaluate(ctx context.Context, js string) (json.RawMessage, error) {
	return f.raw, f.err
}

func sampleRaw() json.RawMessage {
	data := rawPageData{
		Title:    "Search Results",
		URL:      "https://shop.test/search?q=mouse",
		BodyText: "Wireless Mouse results here",
		Inputs: []Element{
			{Tag: "input", Type: "search", Name: "q", Selector: "input[name=\"q\"]"},
		},
		Buttons: []Element{
			{Tag: "button", Text: "Search", Selector: "#submit"},
		},
		Links: []Link{{Text: "product 1", Href: "https://shop.test/p1", Selector: "a:has-text(\"product 1\")"}},
		Containers: []Container{
			{ClassName: "product-result", DataAttrs: map[string]string{"data-asin": "B001"}, Text: "Mouse $9.99"},
		},
		HasResults: true,
		Headings:   []string{"Results for mouse"},
	}
	raw, _ := json.Marshal(data)
	return raw
}

func TestAnalyzeCachesResult(t *testing.T) {
	store := cache.Open(cache.Options{Path: filepath.Join(t.TempDir(), "c.json")})
	page := &fakePage{url: "https://shop.test/search?q=mouse", raw: sampleRaw()}

	a := New(page, store)
	a.stabilizeDelay = 0

	first, err := a.Analyze(context.Background(), false)
	require.NoError(t, err)
	require.False(t, first.Cached)
	require.Equal(t, "input[name=\"q\"]", first.RecommendedSelectors.Search)
	require.Contains(t, first.UIText, "=== PAGE ANALYSIS ===")

	second, err := a.Analyze(context.Background(), false)
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, first.ContentHash, second.ContentHash)
}

func TestAnalyzeForceFreshBypassesCache(t *testing.T) {
	store := cache.Open(cache.Options{Path: filepath.Join(t.TempDir(), "c.json")})
	page := &fakePage{url: "https://shop.test/search?q=mouse", raw: sampleRaw()}

	a := New(page, store)
	a.stabilizeDelay = 0

	_, err := a.Analyze(context.Background(), false)
	require.NoError(t, err)

	fresh, err := a.Analyze(context.Background(), true)
	require.NoError(t, err)
	require.False(t, fresh.Cached)
}

func TestRecommendSearchSelectorFallsBackWhenNoSearchInput(t *testing.T) {
	sel := recommendSearchSelector([]Element{{Tag: "input", Type: "text", Name: "email"}})
	require.Equal(t, "input[type='search'], input[name*='search'], input[name='q']", sel)
}

func TestRecommendResultsSelectorUsesFirstClassToken(t *testing.T) {
	sel := recommendResultsSelector([]Container{{ClassName: "product-result highlighted"}})
	require.Equal(t, ".product-result", sel)
}

func TestContentHashStable(t *testing.T) {
	h1 := ContentHash("same text")
	h2 := ContentHash("same text")
	h3 := ContentHash("different text")
	require.Equal(t, h1, h2)
	require.NotEqual(t, h1, h3)
}

func TestRenderUITextBoundedHeadings(t *testing.T) {
	a := &Analysis{
		Title:    "T",
		URL:      "https://x",
		Headings: []string{"a", "b", "c", "d", "e", "f", "g"},
		BodyText: "body",
		RecommendedSelectors: RecommendedSelectors{
			Search: "s", Submit: "su", Results: "r",
		},
	}
	text := renderUIText(a)
	require.NotContains(t, text, "- f\n")
	require.Contains(t, text, "- e\n")
}
