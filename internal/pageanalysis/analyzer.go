// Package pageanalysis extracts a structured, bounded description of the
// current page -- inputs, buttons, links, containers, state flags, and a
// prompt-ready text summary -- validating it against the UI cache by
// content hash.
package pageanalysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pilot/internal/cache"
	"pilot/internal/logging"
)

// Page is the narrow capability the Analyzer needs from a browser session.
type Page interface {
	CurrentURL() string
	Evaluate(ctx context.Context, js string) (json.RawMessage, error)
}

// Element describes one scraped input/button element.
type Element struct {
	Tag         string `json:"tag"`
	ID          string `json:"id"`
	Classes     string `json:"classes"`
	Text        string `json:"text"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Placeholder string `json:"placeholder"`
	Selector    string `json:"selector"`
}

// Link describes one scraped anchor.
type Link struct {
	Text     string `json:"text"`
	Href     string `json:"href"`
	Selector string `json:"selector"`
}

// Form describes one scraped form and its fields.
type Form struct {
	ID     string    `json:"id"`
	Action string    `json:"action"`
	Fields []Element `json:"fields"`
}

// Container describes one scraped result-like container.
type Container struct {
	ClassName string            `json:"className"`
	DataAttrs map[string]string `json:"dataAttrs"`
	Text      string            `json:"text"`
}

// StateFlags are boolean presence checks over the current DOM.
type StateFlags struct {
	HasResults bool `json:"has_results"`
	HasCart    bool `json:"has_cart"`
	HasLogin   bool `json:"has_login"`
	HasCheckout bool `json:"has_checkout"`
}

// RecommendedSelectors are the Analyzer's deterministic selector picks.
type RecommendedSelectors struct {
	Search  string `json:"search"`
	Submit  string `json:"submit"`
	Results string `json:"results"`
}

// Analysis is the Analyzer's full output for one page.
type Analysis struct {
	URL                  string               `json:"url"`
	Title                string               `json:"title"`
	Inputs               []Element            `json:"inputs"`
	Buttons              []Element            `json:"buttons"`
	Links                []Link               `json:"links"`
	Forms                []Form               `json:"forms"`
	Containers           []Container          `json:"containers"`
	Headings             []string             `json:"headings"`
	StateFlags           StateFlags           `json:"state_flags"`
	RecommendedSelectors RecommendedSelectors `json:"recommended_selectors"`
	BodyText             string               `json:"body_text"`
	ContentHash          string               `json:"content_hash"`
	UIText               string               `json:"ui_text"`
	Cached               bool                 `json:"cached"`
}

// rawPageData mirrors the shape produced by the in-page scraping script.
type rawPageData struct {
	Title      string      `json:"title"`
	URL        string      `json:"url"`
	BodyText   string      `json:"bodyText"`
	Inputs     []Element   `json:"inputs"`
	Buttons    []Element   `json:"buttons"`
	Links      []Link      `json:"links"`
	Forms      []Form      `json:"forms"`
	Containers []Container `json:"containers"`
	HasResults bool        `json:"hasResults"`
	HasCart    bool        `json:"hasCart"`
	HasLogin   bool        `json:"hasLogin"`
	HasCheckout bool       `json:"hasCheckout"`
	Headings   []string    `json:"headings"`
}

// scrapeScript is a single-pass in-page traversal bounded to 20 inputs, 20
// buttons, 20 links, 10 forms (10 fields each), 10 containers, 10 headings.
const scrapeScript = `() => {
	function describeElement(el) {
		const tag = el.tagName.toLowerCase();
		const id = el.id ? '#' + el.id : '';
		const classes = el.className ? '.' + String(el.className).split(' ').join('.') : '';
		const text = (el.innerText || '').trim().substring(0, 50);
		const type = el.type || '';
		const name = el.name || '';
		const placeholder = el.placeholder || '';
		return {
			tag, id, classes, text, type, name, placeholder,
			selector: id || (name ? '[name="' + name + '"]' : (classes || tag))
		};
	}
	return {
		title: document.title,
		url: window.location.href,
		bodyText: document.body ? document.body.innerText : '',
		inputs: Array.from(document.querySelectorAll('input')).slice(0, 20).map(describeElement),
		buttons: Array.from(document.querySelectorAll('button, input[type="submit"], input[type="button"]')).slice(0, 20).map(describeElement),
		links: Array.from(document.querySelectorAll('a[href]')).slice(0, 20).map(el => ({
			text: (el.innerText || '').trim().substring(0, 50),
			href: el.href,
			selector: el.id ? '#' + el.id : ('a:has-text("' + (el.innerText || '').trim().substring(0, 20) + '")')
		})),
		forms: Array.from(document.querySelectorAll('form')).map((form, i) => ({
			id: form.id || ('form-' + i),
			action: form.action,
			fields: Array.from(form.querySelectorAll('input, select, textarea')).slice(0, 10).map(describeElement)
		})),
		containers: Array.from(document.querySelectorAll('[data-component-type], [class*="result"], [class*="product"], [class*="item"]')).slice(0, 10).map(el => ({
			className: el.className,
			dataAttrs: Object.fromEntries(Array.from(el.attributes).filter(a => a.name.startsWith('data-')).map(a => [a.name, a.value])),
			text: (el.innerText || '').trim().substring(0, 100)
		})),
		hasResults: !!document.querySelector('[class*="result"], [class*="product"], article, [data-component-type]'),
		hasCart: !!document.querySelector('[href*="cart"], [id*="cart"], [class*="cart"]'),
		hasLogin: !!document.querySelector('input[type="password"], [href*="login"], [href*="signin"]'),
		hasCheckout: !!document.querySelector('[href*="checkout"], [class*="checkout"]'),
		headings: Array.from(document.querySelectorAll('h1, h2, h3')).slice(0, 10).map(h => (h.innerText || '').trim()).filter(Boolean)
	};
}`

// Analyzer produces validated page analyses, consulting the cache first.
type Analyzer struct {
	page             Page
	cache            *cache.Store
	stabilizeDelay   time.Duration
}

// New creates an Analyzer over page, backed by the given cache store.
func New(page Page, store *cache.Store) *Analyzer {
	return &Analyzer{page: page, cache: store, stabilizeDelay: 2 * time.Second}
}

// Analyze runs one analysis pass, returning a cached result when force_fresh
// is false and the content hash matches what was last seen.
func (a *Analyzer) Analyze(ctx context.Context, forceFresh bool) (*Analysis, error) {
	if a.stabilizeDelay > 0 {
		select {
		case <-time.After(a.stabilizeDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	currentURL := a.page.CurrentURL()

	raw, err := a.page.Evaluate(ctx, scrapeScript)
	if err != nil {
		logging.AnalyzerError("failed to capture page context: %v", err)
		return &Analysis{URL: currentURL, UIText: fmt.Sprintf("Error: %v", err)}, nil
	}

	var data rawPageData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("unmarshal page scrape: %w", err)
	}

	hash := ContentHash(data.BodyText)

	if !forceFresh && a.cache != nil {
		if cached, ok := a.cache.Get(currentURL, hash); ok {
			var analysis Analysis
			if err := json.Unmarshal(cached, &analysis); err == nil {
				analysis.Cached = true
				return &analysis, nil
			}
		}
	}

	analysis := build(data, hash)

	if a.cache != nil {
		if encoded, err := json.Marshal(analysis); err == nil {
			a.cache.Set(currentURL, hash, encoded)
		}
	}

	return analysis, nil
}

// ContentHash is the SHA-256 hex digest of a page's visible body text.
func ContentHash(bodyText string) string {
	sum := sha256.Sum256([]byte(bodyText))
	return hex.EncodeToString(sum[:])
}

func build(data rawPageData, hash string) *Analysis {
	analysis := &Analysis{
		URL:        data.URL,
		Title:      data.Title,
		Inputs:     data.Inputs,
		Buttons:    data.Buttons,
		Links:      data.Links,
		Forms:      data.Forms,
		Containers: data.Containers,
		Headings:   data.Headings,
		StateFlags: StateFlags{
			HasResults:  data.HasResults,
			HasCart:     data.HasCart,
			HasLogin:    data.HasLogin,
			HasCheckout: data.HasCheckout,
		},
		BodyText:    data.BodyText,
		ContentHash: hash,
	}
	analysis.RecommendedSelectors = RecommendedSelectors{
		Search:  recommendSearchSelector(data.Inputs),
		Submit:  recommendSubmitSelector(data.Buttons),
		Results: recommendResultsSelector(data.Containers),
	}
	analysis.UIText = renderUIText(analysis)
	return analysis
}

func recommendSearchSelector(inputs []Element) string {
	for _, in := range inputs {
		if strings.Contains(strings.ToLower(in.Name), "search") || strings.Contains(strings.ToLower(in.ID), "search") {
			return in.Selector
		}
		if in.Type == "search" {
			return in.Selector
		}
	}
	return "input[type='search'], input[name*='search'], input[name='q']"
}

func recommendSubmitSelector(buttons []Element) string {
	for _, b := range buttons {
		text := strings.ToLower(b.Text)
		if strings.Contains(text, "search") || strings.Contains(text, "go") || strings.Contains(text, "submit") {
			return b.Selector
		}
	}
	return "button[type='submit'], input[type='submit']"
}

func recommendResultsSelector(containers []Container) string {
	for _, c := range containers {
		lower := strings.ToLower(c.ClassName)
		if strings.Contains(lower, "result") || strings.Contains(lower, "product") || strings.Contains(lower, "item") {
			fields := strings.Fields(c.ClassName)
			if len(fields) > 0 {
				return "." + fields[0]
			}
		}
	}
	return "[class*='result'], [class*='product'], article"
}

func renderUIText(a *Analysis) string {
	var b strings.Builder

	writeList := func(title string, lines []string) {
		b.WriteString("=== " + title + " ===\n")
		if len(lines) == 0 {
			b.WriteString("  (none)\n")
		} else {
			for _, l := range lines {
				b.WriteString("  - " + l + "\n")
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("=== PAGE ANALYSIS ===\n")
	b.WriteString(fmt.Sprintf("Title: %s\n", orUnknown(a.Title)))
	b.WriteString(fmt.Sprintf("URL: %s\n\n", orUnknown(a.URL)))

	b.WriteString("=== PAGE STATE ===\n")
	b.WriteString(fmt.Sprintf("Has Results/Products: %v\n", a.StateFlags.HasResults))
	b.WriteString(fmt.Sprintf("Has Cart: %v\n", a.StateFlags.HasCart))
	b.WriteString(fmt.Sprintf("Has Login Form: %v\n", a.StateFlags.HasLogin))
	b.WriteString(fmt.Sprintf("Has Checkout: %v\n\n", a.StateFlags.HasCheckout))

	headings := a.Headings
	if len(headings) > 5 {
		headings = headings[:5]
	}
	writeList("HEADINGS", headings)

	var inputLines []string
	for i, in := range a.Inputs {
		if i >= 10 {
			break
		}
		inputLines = append(inputLines, fmt.Sprintf("%s (type=%s, name=%s, placeholder=%s) -> %s", in.Tag, in.Type, in.Name, in.Placeholder, in.Selector))
	}
	writeList("INPUT FIELDS", inputLines)

	var buttonLines []string
	for i, bt := range a.Buttons {
		if i >= 10 {
			break
		}
		label := truncate(bt.Text, 30)
		if label == "" {
			label = bt.Type
		}
		buttonLines = append(buttonLines, fmt.Sprintf("%s -> %s", label, bt.Selector))
	}
	writeList("BUTTONS", buttonLines)

	var linkLines []string
	for i, l := range a.Links {
		if i >= 10 {
			break
		}
		linkLines = append(linkLines, fmt.Sprintf("%s -> %s", truncate(l.Text, 40), l.Selector))
	}
	writeList("LINKS", linkLines)

	var containerLines []string
	for i, c := range a.Containers {
		if i >= 5 {
			break
		}
		keys := make([]string, 0, len(c.DataAttrs))
		for k := range c.DataAttrs {
			keys = append(keys, k)
		}
		containerLines = append(containerLines, fmt.Sprintf(".%s (data: %v)", truncate(c.ClassName, 50), keys))
	}
	writeList("RESULT CONTAINERS", containerLines)

	b.WriteString("=== VISIBLE TEXT (excerpt) ===\n")
	b.WriteString(truncate(a.BodyText, 1000))
	b.WriteString("\n\n")

	b.WriteString("=== SELECTOR RECOMMENDATIONS ===\n")
	b.WriteString(fmt.Sprintf("For search input: %s\n", a.RecommendedSelectors.Search))
	b.WriteString(fmt.Sprintf("For submit button: %s\n", a.RecommendedSelectors.Submit))
	b.WriteString(fmt.Sprintf("For results: %s\n", a.RecommendedSelectors.Results))

	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
