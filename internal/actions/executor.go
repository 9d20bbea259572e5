package actions

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"pilot/internal/cache"
	"pilot/internal/credentials"
	"pilot/internal/logging"
	"pilot/internal/pageanalysis"
)

// Browser is the page-control surface the executor drives.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	Fill(ctx context.Context, selector, text string, timeout time.Duration, pressEnter bool) error
	Scroll(ctx context.Context, amount int) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (*rod.Element, error)
	WaitIdle(ctx context.Context, d time.Duration) error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	BodyTextLength(ctx context.Context) (int, error)
	CurrentURL() string
	Page() *rod.Page
}

// fallbackTypeSelectors mirrors the original source's hand-tuned fallback
// chain for search-like inputs when the planner's chosen selector misses.
var fallbackTypeSelectors = []string{
	"input[type='search']",
	"input[name='q']",
	"input[name*='search']",
	"#search",
	"input[type='text']",
}

var addToCartSelectors = []string{
	"#add-to-cart-button",
	"button[name='submit.add-to-cart']",
	"[id*='add-to-cart']",
}

var extractFallbackSelectors = []string{
	"div[data-component-type='s-search-result']",
	"[data-asin]:not([data-asin=''])",
	"[class*='result']",
	"[class*='product']",
	"article",
	"li",
}

var titleSelectors = []string{"h2", "h3", "[class*='title']", "a"}
var priceSelectors = []string{".a-price-whole", "[class*='price']"}
var ratingSelectors = []string{"[class*='rating']", "[class*='stars']", "[aria-label*='star']"}

var priceRe = regexp.MustCompile(`[\d,]+\.?\d*`)

// Executor executes one action at a time against a live browser page.
type Executor struct {
	browser  Browser
	cache    *cache.Store
	creds    *credentials.Store
	analyzer *pageanalysis.Analyzer

	// HumanInput is called by the human_pause action. It must block until
	// the operator signals completion. Defaults to reading a line from
	// os.Stdin; overridden in tests.
	HumanInput func(message string) error

	screenshotNamer func() string
}

// New creates an Executor over the given browser, cache, credentials, and
// page analyzer.
func New(browser Browser, store *cache.Store, creds *credentials.Store, analyzer *pageanalysis.Analyzer) *Executor {
	return &Executor{
		browser:  browser,
		cache:    store,
		creds:    creds,
		analyzer: analyzer,
	}
}

// Execute dispatches action to its handler. Any page-control error
// invalidates the cache entry for the current URL before returning, so the
// agent's next UI analysis is guaranteed fresh.
func (e *Executor) Execute(ctx context.Context, action Action) Result {
	logging.Executor("executing: %s", action.Action)

	var result Result
	switch action.Action {
	case Navigate:
		result = e.execNavigate(ctx, action)
	case Type:
		result = e.execType(ctx, action)
	case Click:
		result = e.execClick(ctx, action)
	case Scroll:
		result = e.execScroll(ctx, action)
	case Wait:
		result = e.execWait(ctx, action)
	case Extract:
		result = e.execExtract(ctx, action)
	case FindBest:
		result = e.execFindBest(ctx, action)
	case AddToCart:
		result = e.execAddToCart(ctx)
	case AutoLogin:
		result = e.execAutoLogin(ctx, action)
	case HumanPause:
		result = e.execHumanPause(action)
	case Screenshot:
		result = e.execScreenshot(ctx, action)
	default:
		result = failf("unknown action: %s", action.Action)
	}

	if result.Status == Failed && e.cache != nil {
		e.cache.Invalidate(e.browser.CurrentURL())
	}

	if result.Status == Success {
		logging.Executor("%s completed", action.Action)
	} else {
		logging.ExecutorError("%s failed: %s", action.Action, result.Error)
	}
	return result
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (e *Executor) execNavigate(ctx context.Context, a Action) Result {
	if a.URL == "" {
		return fail("missing url")
	}
	if err := e.browser.Navigate(ctx, a.URL); err != nil {
		return failf("navigate: %v", err)
	}
	sleep(ctx, 3*time.Second)
	r := ok()
	r.URL = a.URL
	return r
}

func (e *Executor) execType(ctx context.Context, a Action) Result {
	if a.Selector == "" {
		return fail("missing selector")
	}

	if err := e.browser.Fill(ctx, a.Selector, a.Text, 15*time.Second, a.PressEnter); err == nil {
		sleep(ctx, typeSettleDelay(a.PressEnter))
		r := ok()
		r.Selector = a.Selector
		return r
	}

	for _, fb := range fallbackTypeSelectors {
		if err := e.browser.Fill(ctx, fb, a.Text, 3*time.Second, a.PressEnter); err == nil {
			logging.Executor("used fallback selector for type: %s", fb)
			sleep(ctx, typeSettleDelay(a.PressEnter))
			r := ok()
			r.Selector = fb
			return r
		}
	}

	return failf("could not find input: %s", a.Selector)
}

func typeSettleDelay(pressEnter bool) time.Duration {
	if pressEnter {
		return 5 * time.Second
	}
	return 500 * time.Millisecond
}

func (e *Executor) execClick(ctx context.Context, a Action) Result {
	if a.Selector == "" {
		return fail("missing selector")
	}
	if err := e.browser.Click(ctx, a.Selector, 15*time.Second); err != nil {
		return failf("click: %v", err)
	}
	sleep(ctx, 3*time.Second)
	r := ok()
	r.Selector = a.Selector
	return r
}

func (e *Executor) execScroll(ctx context.Context, a Action) Result {
	amount := a.Amount
	if amount == 0 {
		amount = 3
	}
	pixels := amount * 400
	if a.Direction == "up" {
		pixels = -pixels
	}
	if err := e.browser.Scroll(ctx, pixels); err != nil {
		return failf("scroll: %v", err)
	}
	sleep(ctx, time.Second)
	return ok()
}

func (e *Executor) execWait(ctx context.Context, a Action) Result {
	if a.Selector == "" {
		return fail("missing selector")
	}
	timeoutS := a.TimeoutS
	if timeoutS <= 0 {
		timeoutS = 15
	}
	timeout := time.Duration(timeoutS) * time.Second

	if _, err := e.browser.WaitForSelector(ctx, a.Selector, timeout); err == nil {
		sleep(ctx, 2*time.Second)
		r := ok()
		r.Selector = a.Selector
		return r
	}

	n, lenErr := e.browser.BodyTextLength(ctx)
	if lenErr == nil && n > 100 {
		logging.ExecutorWarn("selector %s not found but page has content, continuing", a.Selector)
		r := ok()
		r.Selector = a.Selector
		r.Note = "selector not found but page loaded"
		return r
	}

	return failf("selector not found: %s", a.Selector)
}

func (e *Executor) execExtract(ctx context.Context, a Action) Result {
	sleep(ctx, 3*time.Second)

	topN := a.TopN
	if topN <= 0 {
		topN = 5
	}

	items, err := e.extractWithStrategy(ctx, topN)
	if err != nil {
		return failf("extract: %v", err)
	}
	if len(items) == 0 {
		return fail("no items found")
	}
	return Result{Status: Success, Items: items, Count: len(items)}
}

// extractWithStrategy tries the analyzer's discovered containers first, then
// falls back to a fixed list of common result-container selectors.
func (e *Executor) extractWithStrategy(ctx context.Context, topN int) ([]ExtractedItem, error) {
	page := e.browser.Page()
	if page == nil {
		return nil, fmt.Errorf("browser not started")
	}

	var candidates []string
	if e.analyzer != nil {
		analysis, err := e.analyzer.Analyze(ctx, false)
		if err == nil {
			for _, c := range analysis.Containers {
				fields := strings.Fields(c.ClassName)
				if len(fields) == 0 {
					continue
				}
				candidates = append(candidates, "."+fields[0])
				if len(candidates) >= 3 {
					break
				}
			}
		}
	}
	candidates = append(candidates, extractFallbackSelectors...)

	for _, selector := range candidates {
		elements, err := page.Context(ctx).Elements(selector)
		if err != nil || len(elements) < 2 {
			continue
		}
		logging.Executor("extracting with selector: %s (%d elements)", selector, len(elements))
		return e.extractItems(elements, topN), nil
	}

	return nil, nil
}

func (e *Executor) extractItems(elements rod.Elements, topN int) []ExtractedItem {
	origin := pageOrigin(e.browser.CurrentURL())

	var results []ExtractedItem
	for i, item := range elements {
		if i >= topN {
			break
		}

		title := firstMatchText(item, titleSelectors)
		if title == "" {
			continue
		}
		price := firstMatchText(item, priceSelectors)
		rating := firstMatchText(item, ratingSelectors)
		link := firstLinkHref(item, origin)

		results = append(results, ExtractedItem{
			Title:  truncateStr(title, 200),
			Price:  price,
			Rating: rating,
			Link:   link,
		})
	}
	return results
}

func firstMatchText(item *rod.Element, selectors []string) string {
	for _, sel := range selectors {
		el, err := item.Element(sel)
		if err != nil || el == nil {
			continue
		}
		text, err := el.Text()
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text
		}
	}
	return ""
}

func firstLinkHref(item *rod.Element, origin string) string {
	el, err := item.Element("a")
	if err != nil || el == nil {
		return ""
	}
	href, err := el.Attribute("href")
	if err != nil || href == nil {
		return ""
	}
	link := *href
	if link != "" && !strings.HasPrefix(link, "http") && origin != "" {
		if strings.HasPrefix(link, "/") {
			link = origin + link
		} else {
			link = origin + "/" + link
		}
	}
	return link
}

func pageOrigin(rawURL string) string {
	parts := strings.SplitN(rawURL, "/", 4)
	if len(parts) < 3 {
		return ""
	}
	return parts[0] + "//" + parts[2]
}

func truncateStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// parsePrice parses a price string into a float; unparseable prices sort
// last (treated as +Inf), matching the original source's behavior.
func parsePrice(s string) float64 {
	cleaned := strings.ReplaceAll(s, ",", "")
	match := priceRe.FindString(cleaned)
	if match == "" {
		return mathInf(1)
	}
	match = strings.ReplaceAll(match, ",", "")
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return mathInf(1)
	}
	return v
}

// parseRating parses a rating string the same way prices are parsed, but
// items with no parseable rating sort last (lowest), the rating-criterion
// mirror of parsePrice's price sort.
func parseRating(s string) float64 {
	cleaned := strings.ReplaceAll(s, ",", "")
	match := priceRe.FindString(cleaned)
	if match == "" {
		return mathInf(-1)
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return mathInf(-1)
	}
	return v
}

func mathInf(sign int) float64 {
	if sign < 0 {
		return -1e308 * 10
	}
	return 1e308 * 10
}

func (e *Executor) execFindBest(ctx context.Context, a Action) Result {
	criteria := a.Criteria
	if criteria == "" {
		criteria = Cheapest
	}

	items, err := e.extractWithStrategy(ctx, 20)
	if err != nil {
		return failf("find_best: %v", err)
	}
	if len(items) == 0 {
		return fail("no items found")
	}

	best, ok := selectBest(items, criteria)
	if !ok || best.Link == "" {
		return fail("could not find suitable item")
	}

	if err := e.browser.Navigate(ctx, best.Link); err != nil {
		return failf("navigate to selected item: %v", err)
	}
	sleep(ctx, 4*time.Second)

	r := Result{Status: Success, Item: &best}
	return r
}

func selectBest(items []ExtractedItem, criteria Criterion) (ExtractedItem, bool) {
	switch criteria {
	case HighestRated:
		var candidates []ExtractedItem
		for _, it := range items {
			if it.Rating != "" {
				candidates = append(candidates, it)
			}
		}
		if len(candidates) == 0 {
			return ExtractedItem{}, false
		}
		sort.Slice(candidates, func(i, j int) bool {
			return parseRating(candidates[i].Rating) > parseRating(candidates[j].Rating)
		})
		return candidates[0], true
	default: // Cheapest
		var candidates []ExtractedItem
		for _, it := range items {
			if it.Price != "" {
				candidates = append(candidates, it)
			}
		}
		if len(candidates) == 0 {
			return ExtractedItem{}, false
		}
		sort.Slice(candidates, func(i, j int) bool {
			return parsePrice(candidates[i].Price) < parsePrice(candidates[j].Price)
		})
		return candidates[0], true
	}
}

func (e *Executor) execAddToCart(ctx context.Context) Result {
	for _, sel := range addToCartSelectors {
		if _, err := e.browser.WaitForSelector(ctx, sel, 5*time.Second); err != nil {
			continue
		}
		if err := e.browser.Click(ctx, sel, time.Second); err != nil {
			continue
		}
		sleep(ctx, 4*time.Second)
		return ok()
	}

	if el := e.findButtonByText(ctx, "Add to Cart"); el != nil {
		if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
			sleep(ctx, 4*time.Second)
			return ok()
		}
	}

	return fail("add to cart button not found")
}

func (e *Executor) findButtonByText(ctx context.Context, text string) *rod.Element {
	page := e.browser.Page()
	if page == nil {
		return nil
	}
	elements, err := page.Context(ctx).Elements("button")
	if err != nil {
		return nil
	}
	for _, el := range elements {
		t, err := el.Text()
		if err != nil {
			continue
		}
		if strings.Contains(t, text) {
			return el
		}
	}
	return nil
}

func (e *Executor) execAutoLogin(ctx context.Context, a Action) Result {
	domain := credentials.DomainOf(e.browser.CurrentURL())
	creds, found := e.creds.Get(domain)
	if !found {
		return failf("no credentials for %s", domain)
	}

	usernameSel := a.UsernameSelector
	if usernameSel == "" {
		usernameSel = "input[type='email'], input[type='text']"
	}
	passwordSel := a.PasswordSelector
	if passwordSel == "" {
		passwordSel = "input[type='password']"
	}
	submitSel := a.SubmitSelector
	if submitSel == "" {
		submitSel = "button[type='submit']"
	}

	if err := e.browser.Fill(ctx, usernameSel, creds.Username, 10*time.Second, false); err != nil {
		return failf("fill username: %v", err)
	}
	sleep(ctx, 500*time.Millisecond)
	if err := e.browser.Fill(ctx, passwordSel, creds.Secret, 10*time.Second, false); err != nil {
		return failf("fill password: %v", err)
	}
	sleep(ctx, 500*time.Millisecond)
	if err := e.browser.Click(ctx, submitSel, 10*time.Second); err != nil {
		return failf("click submit: %v", err)
	}
	if err := e.browser.WaitIdle(ctx, 15*time.Second); err != nil {
		logging.ExecutorWarn("auto_login: network did not settle: %v", err)
	}
	return ok()
}

func (e *Executor) execHumanPause(a Action) Result {
	message := a.Message
	if message == "" {
		message = "Complete manual steps"
	}
	if e.HumanInput != nil {
		if err := e.HumanInput(message); err != nil {
			return failf("human_pause: %v", err)
		}
		return ok()
	}
	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Println("HUMAN INPUT REQUIRED")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("\n%s\n\nPress ENTER when done...\n", message)
	fmt.Println(strings.Repeat("=", 70))
	var discard string
	fmt.Scanln(&discard)
	return ok()
}

func (e *Executor) execScreenshot(ctx context.Context, a Action) Result {
	path := a.Path
	if path == "" {
		path = fmt.Sprintf("screenshot_%s.png", time.Now().Format("20060102_150405"))
	}
	if e.screenshotNamer != nil {
		path = e.screenshotNamer()
	}
	data, err := e.browser.Screenshot(ctx, true)
	if err != nil {
		return failf("screenshot: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return failf("save screenshot: %v", err)
	}
	return Result{Status: Success, Path: path}
}
