//go:build integration

package actions_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pilot/internal/actions"
	"pilot/internal/browser"
	"pilot/internal/cache"
	"pilot/internal/credentials"
	"pilot/internal/pageanalysis"
)

const searchPage = `<html><body>
<input type="search" name="q" id="search-box" />
<button type="submit" id="go-btn">Search</button>
<div id="results"></div>
<script>
document.getElementById('go-btn').addEventListener('click', function() {
	document.getElementById('results').innerHTML =
		'<div class="product-result"><h2>Cheap Mouse</h2><span class="price">$9.99</span><a href="/item/1">view</a></div>' +
		'<div class="product-result"><h2>Pricey Mouse</h2><span class="price">$49.99</span><a href="/item/2">view</a></div>';
});
</script>
</body></html>`

const itemPage = `<html><body>
<h1>Cheap Mouse</h1>
<button id="add-to-cart-button">Add to Cart</button>
</body></html>`

func newTestServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchPage)
	})
	mux.HandleFunc("/item/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, itemPage)
	})
	mux.HandleFunc("/item/2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, itemPage)
	})
	return httptest.NewServer(mux)
}

func newTestExecutor(t *testing.T, ts *httptest.Server) (*actions.Executor, *browser.Session, context.Context) {
	t.Helper()
	cfg := browser.DefaultConfig()
	cfg.Headless = true
	cfg.NavigationTimeoutMs = 10000

	sess := browser.NewSession(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)
	t.Cleanup(func() { _ = sess.Stop() })

	require.NoError(t, sess.Start(ctx))

	store := cache.Open(cache.Options{Path: filepath.Join(t.TempDir(), "cache.json")})
	creds := credentials.Open(filepath.Join(t.TempDir(), "creds.json"))
	analyzer := pageanalysis.New(sess, store)

	exec := actions.New(sess, store, creds, analyzer)
	return exec, sess, ctx
}

func TestExecutor_SearchAndExtract_Integration(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	exec, sess, ctx := newTestExecutor(t, ts)

	navResult := exec.Execute(ctx, actions.Action{Action: actions.Navigate, URL: ts.URL})
	require.Equal(t, actions.Success, navResult.Status)

	clickResult := exec.Execute(ctx, actions.Action{Action: actions.Click, Selector: "#go-btn"})
	require.Equal(t, actions.Success, clickResult.Status)

	waitResult := exec.Execute(ctx, actions.Action{Action: actions.Wait, Selector: ".product-result"})
	require.Equal(t, actions.Success, waitResult.Status)

	extractResult := exec.Execute(ctx, actions.Action{Action: actions.Extract, TopN: 5})
	require.Equal(t, actions.Success, extractResult.Status)
	require.Len(t, extractResult.Items, 2)

	_ = sess.CurrentURL()
}

func TestExecutor_FindBestCheapestNavigatesAndAddsToCart_Integration(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	exec, _, ctx := newTestExecutor(t, ts)

	require.Equal(t, actions.Success, exec.Execute(ctx, actions.Action{Action: actions.Navigate, URL: ts.URL}).Status)
	require.Equal(t, actions.Success, exec.Execute(ctx, actions.Action{Action: actions.Click, Selector: "#go-btn"}).Status)
	require.Equal(t, actions.Success, exec.Execute(ctx, actions.Action{Action: actions.Wait, Selector: ".product-result"}).Status)

	findResult := exec.Execute(ctx, actions.Action{Action: actions.FindBest, Criteria: actions.Cheapest})
	require.Equal(t, actions.Success, findResult.Status)
	require.NotNil(t, findResult.Item)
	require.Contains(t, findResult.Item.Title, "Cheap Mouse")

	cartResult := exec.Execute(ctx, actions.Action{Action: actions.AddToCart})
	require.Equal(t, actions.Success, cartResult.Status)
}

func TestExecutor_TypeFillsSearchBox_Integration(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	exec, _, ctx := newTestExecutor(t, ts)

	require.Equal(t, actions.Success, exec.Execute(ctx, actions.Action{Action: actions.Navigate, URL: ts.URL}).Status)

	typeResult := exec.Execute(ctx, actions.Action{Action: actions.Type, Selector: "#search-box", Text: "wireless mouse"})
	require.Equal(t, actions.Success, typeResult.Status)
	require.Equal(t, "#search-box", typeResult.Selector)
}
