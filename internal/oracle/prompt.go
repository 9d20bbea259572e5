package oracle

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are an expert browser automation AI that generates action sequences.

## CORE PRINCIPLES
1. UI-DRIVEN: analyze the provided page analysis carefully, it shows actual selectors and elements.
2. GOAL-ORIENTED: always complete the original user goal, especially in recovery mode.
3. COMPLETE PLANS: generate all remaining steps needed to finish the task, not just fix the error.
4. PRECISE: use exact selectors from the page analysis when available.
5. ROBUST: include wait steps before interacting with dynamic content.

## AVAILABLE ACTIONS
- {"action": "navigate", "url": "https://example.com"}
- {"action": "type", "selector": "CSS_SELECTOR", "text": "value", "press_enter": true}
- {"action": "click", "selector": "CSS_SELECTOR"}
- {"action": "scroll", "direction": "down", "amount": 3}
- {"action": "wait", "selector": "CSS_SELECTOR", "timeout_s": 15}
- {"action": "extract", "strategy": "auto", "top_n": 5}
- {"action": "find_best", "criteria": "cheapest|highest_rated"}
- {"action": "add_to_cart"}
- {"action": "auto_login"}
- {"action": "human_pause", "message": "Complete CAPTCHA/payment"}
- {"action": "screenshot", "path": "FILE_PATH"}

## CRITICAL RULES
1. Use the selector recommendations from the page analysis before inventing your own.
2. Always wait on a result container before extracting or finding best.
3. In recovery mode you must fix the immediate error AND continue with every remaining
   step needed to complete the original goal. Never stop after the fix alone.
4. Use the page state flags (has_results, has_cart, has_login) to judge what is possible.
5. Never invent an action outside the list above.

## OUTPUT FORMAT
Return ONLY a JSON array, no prose, no markdown fences:
[
  {"action": "...", ...},
  {"action": "...", ...}
]`

// SystemPrompt returns the oracle's fixed system prompt.
func SystemPrompt() string { return systemPrompt }

// ExecutedStep records one completed attempt, for progress summaries fed
// back into recovery-mode prompts.
type ExecutedStep struct {
	Action string
	Status string
}

// ErrorContext is supplied to BuildPrompt when the oracle is being asked to
// recover from a failure rather than plan from scratch.
type ErrorContext struct {
	FailedAction   string
	ErrorMessage   string
	ExecutedSteps  []ExecutedStep
	CurrentURL     string
}

// BuildPrompt constructs the user-turn prompt for either initial planning or
// recovery, mirroring the two prompt templates in the source planner.
func BuildPrompt(goal, uiContext string, errCtx *ErrorContext) string {
	if errCtx == nil {
		return buildInitialPrompt(goal, uiContext)
	}
	return buildRecoveryPrompt(goal, uiContext, *errCtx)
}

func buildInitialPrompt(goal, uiContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## PLANNING MODE\n\n")
	fmt.Fprintf(&b, "USER GOAL: %s\n\n", goal)
	fmt.Fprintf(&b, "CURRENT PAGE ANALYSIS:\n%s\n\n", uiContext)
	b.WriteString("YOUR TASK:\nGenerate a complete action plan to accomplish the goal above.\n\n")
	b.WriteString("Steps to consider:\n")
	b.WriteString("1. Where should we start? (navigate first if not on a page)\n")
	b.WriteString("2. What inputs/buttons are available? (check page analysis)\n")
	b.WriteString("3. What is the sequence to achieve the goal?\n")
	b.WriteString("4. Include wait steps for dynamic content\n")
	b.WriteString("5. Use exact selectors from the page analysis\n\n")
	b.WriteString("Generate the complete plan as a JSON array:")
	return b.String()
}

func buildRecoveryPrompt(goal, uiContext string, errCtx ErrorContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## RECOVERY MODE - COMPLETE THE ORIGINAL GOAL\n\n")
	fmt.Fprintf(&b, "ORIGINAL USER GOAL: %s\n\n", goal)
	b.WriteString("CRITICAL: generate a plan that completes the entire original goal, not just the failure.\n\n")
	b.WriteString("WHAT FAILED:\n")
	fmt.Fprintf(&b, "- Failed Action: %s\n", errCtx.FailedAction)
	fmt.Fprintf(&b, "- Error: %s\n", errCtx.ErrorMessage)
	fmt.Fprintf(&b, "- Current URL: %s\n\n", errCtx.CurrentURL)
	fmt.Fprintf(&b, "PROGRESS SO FAR (%d successful steps):\n%s\n\n", countSuccess(errCtx.ExecutedSteps), summarizeProgress(errCtx.ExecutedSteps))
	fmt.Fprintf(&b, "CURRENT PAGE ANALYSIS (use these selectors!):\n%s\n\n", uiContext)
	b.WriteString("YOUR TASK:\n")
	b.WriteString("1. Understand where we are from the page analysis\n")
	b.WriteString("2. Fix the immediate error using a correct selector from the page analysis\n")
	fmt.Fprintf(&b, "3. Generate ALL remaining steps to complete: %q\n", goal)
	b.WriteString("4. Do not stop after fixing the error, continue until the goal is achieved\n\n")
	fmt.Fprintf(&b, "WHAT STILL NEEDS TO BE DONE:\n%s\n\n", analyzeRemainingTasks(goal, errCtx.ExecutedSteps))
	b.WriteString("Generate a COMPLETE recovery plan as a JSON array:")
	return b.String()
}

func countSuccess(steps []ExecutedStep) int {
	n := 0
	for _, s := range steps {
		if s.Status == "success" {
			n++
		}
	}
	return n
}

func summarizeProgress(steps []ExecutedStep) string {
	if len(steps) == 0 {
		return "Nothing completed yet"
	}
	start := 0
	if len(steps) > 5 {
		start = len(steps) - 5
	}
	var lines []string
	for i := start; i < len(steps); i++ {
		step := steps[i]
		mark := "v"
		suffix := ""
		if step.Status != "success" {
			mark = "x"
			suffix = " (failed)"
		}
		lines = append(lines, fmt.Sprintf("%s Step %d: %s%s", mark, i+1, step.Action, suffix))
	}
	return strings.Join(lines, "\n")
}

// analyzeRemainingTasks derives an outstanding-work list from keyword
// matches against the goal text, mirroring the source planner's heuristic.
func analyzeRemainingTasks(goal string, steps []ExecutedStep) string {
	goalLower := strings.ToLower(goal)
	done := make(map[string]bool)
	for _, s := range steps {
		done[s.Action] = true
	}

	var remaining []string
	if strings.Contains(goalLower, "search") || strings.Contains(goalLower, "find") {
		if !done["navigate"] {
			remaining = append(remaining, "- Navigate to the target site")
		}
		if !done["type"] {
			remaining = append(remaining, "- Enter the search query")
		}
		if !done["extract"] && !done["find_best"] {
			remaining = append(remaining, "- Extract/analyze results")
		}
	}
	if strings.Contains(goalLower, "buy") || strings.Contains(goalLower, "purchase") || strings.Contains(goalLower, "add to cart") {
		if !done["find_best"] {
			remaining = append(remaining, "- Find and select the product")
		}
		if !done["add_to_cart"] {
			remaining = append(remaining, "- Add the product to cart")
		}
		if !done["human_pause"] {
			remaining = append(remaining, "- Pause for checkout completion")
		}
	}
	if strings.Contains(goalLower, "cheapest") || strings.Contains(goalLower, "best") {
		if !done["extract"] && !done["find_best"] {
			remaining = append(remaining, "- Compare items and select the best one")
		}
	}
	if len(remaining) == 0 {
		return "Goal appears complete - verify and finalize if needed"
	}
	return strings.Join(remaining, "\n")
}
