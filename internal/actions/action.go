// Package actions defines the closed action vocabulary and implements the
// executor that drives a browser.Session through it.
package actions

import "fmt"

// Kind is the discriminator for one Action.
type Kind string

// The closed action vocabulary. No other discriminator is valid.
const (
	Navigate   Kind = "navigate"
	Type       Kind = "type"
	Click      Kind = "click"
	Scroll     Kind = "scroll"
	Wait       Kind = "wait"
	Extract    Kind = "extract"
	FindBest   Kind = "find_best"
	AddToCart  Kind = "add_to_cart"
	AutoLogin  Kind = "auto_login"
	HumanPause Kind = "human_pause"
	Screenshot Kind = "screenshot"
)

// Criterion is the selection rule for find_best.
type Criterion string

const (
	Cheapest     Criterion = "cheapest"
	HighestRated Criterion = "highest_rated"
)

// Action is a tagged record: Kind selects which of the remaining fields
// are meaningful. Unknown fields for a given Kind are simply ignored.
type Action struct {
	Action Kind `json:"action"`

	URL string `json:"url,omitempty"`

	Selector   string `json:"selector,omitempty"`
	Text       string `json:"text,omitempty"`
	PressEnter bool   `json:"press_enter,omitempty"`

	Direction string `json:"direction,omitempty"`
	Amount    int    `json:"amount,omitempty"`

	TimeoutS int `json:"timeout_s,omitempty"`

	Strategy string `json:"strategy,omitempty"`
	TopN     int    `json:"top_n,omitempty"`

	Criteria Criterion `json:"criteria,omitempty"`

	UsernameSelector string `json:"username_selector,omitempty"`
	PasswordSelector string `json:"password_selector,omitempty"`
	SubmitSelector   string `json:"submit_selector,omitempty"`

	Message string `json:"message,omitempty"`

	Path string `json:"path,omitempty"`
}

// Plan is a non-empty ordered sequence of actions.
type Plan []Action

// Validate checks that every action has a known discriminator and the
// required fields for its kind.
func (p Plan) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("plan is empty")
	}
	for i, a := range p {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks a's required fields for its Kind.
func (a Action) Validate() error {
	switch a.Action {
	case Navigate:
		if a.URL == "" {
			return fmt.Errorf("navigate requires url")
		}
	case Type:
		if a.Selector == "" {
			return fmt.Errorf("type requires selector")
		}
	case Click:
		if a.Selector == "" {
			return fmt.Errorf("click requires selector")
		}
	case Scroll:
		// direction/amount both optional, defaulted by the executor
	case Wait:
		if a.Selector == "" {
			return fmt.Errorf("wait requires selector")
		}
	case Extract:
		// strategy/top_n both optional, defaulted by the executor
	case FindBest:
		switch a.Criteria {
		case Cheapest, HighestRated, "":
		default:
			return fmt.Errorf("find_best has unknown criteria %q", a.Criteria)
		}
	case AddToCart, HumanPause, Screenshot, AutoLogin:
		// no required fields; auto_login selectors all default
	default:
		return fmt.Errorf("unknown action %q", a.Action)
	}
	return nil
}

// Status is the outcome of executing one action.
type Status string

const (
	Success Status = "success"
	Failed  Status = "failed"
)

// ExtractedItem is one scraped result from extract/find_best.
type ExtractedItem struct {
	Title  string `json:"title"`
	Price  string `json:"price,omitempty"`
	Rating string `json:"rating,omitempty"`
	Link   string `json:"link,omitempty"`
}

// Result is the outcome of executing one action.
type Result struct {
	Status   Status          `json:"status"`
	Error    string          `json:"error,omitempty"`
	Note     string          `json:"note,omitempty"`
	URL      string          `json:"url,omitempty"`
	Selector string          `json:"selector,omitempty"`
	Items    []ExtractedItem `json:"items,omitempty"`
	Count    int             `json:"count,omitempty"`
	Item     *ExtractedItem  `json:"item,omitempty"`
	Path     string          `json:"path,omitempty"`
}

func ok() Result              { return Result{Status: Success} }
func fail(msg string) Result  { return Result{Status: Failed, Error: msg} }
func failf(format string, args ...interface{}) Result {
	return Result{Status: Failed, Error: fmt.Sprintf(format, args...)}
}
