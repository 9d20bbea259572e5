package oracle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	responses []string
	calls     int
}

func (f *fakeClient) Complete(ctx context.Context, system, user string) (string, error) {
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		return f.responses[len(f.responses)-1], nil
	}
	return f.responses[i], nil
}

func TestGeneratePlanParsesCleanJSON(t *testing.T) {
	client := &fakeClient{responses: []string{
		`[{"action": "navigate", "url": "https://x.com"}, {"action": "extract"}]`,
	}}
	p := NewWithClient(client, 3)

	plan, err := p.GeneratePlan(context.Background(), "search for things", "no ui yet", nil)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	require.Equal(t, 1, client.calls)
}

func TestGeneratePlanStripsCodeFenceAndProse(t *testing.T) {
	client := &fakeClient{responses: []string{
		"Sure, here is the plan:\n```json\n[{\"action\": \"navigate\", \"url\": \"https://x.com\"}]\n```",
	}}
	p := NewWithClient(client, 3)

	plan, err := p.GeneratePlan(context.Background(), "goal", "ui", nil)
	require.NoError(t, err)
	require.Len(t, plan, 1)
}

func TestGeneratePlanRepairsSingleQuotesAndTrailingCommas(t *testing.T) {
	client := &fakeClient{responses: []string{
		`[{'action': 'navigate', 'url': 'https://x.com',},]`,
	}}
	p := NewWithClient(client, 3)

	plan, err := p.GeneratePlan(context.Background(), "goal", "ui", nil)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	require.EqualValues(t, "navigate", plan[0].Action)
}

func TestGeneratePlanRetriesThenSucceeds(t *testing.T) {
	client := &fakeClient{responses: []string{
		"not json at all",
		`[{"action": "navigate", "url": "https://x.com"}]`,
	}}
	p := NewWithClient(client, 3)

	plan, err := p.GeneratePlan(context.Background(), "goal", "ui", nil)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	require.Equal(t, 2, client.calls)
}

func TestGeneratePlanRejectsInvalidActionAfterRetries(t *testing.T) {
	client := &fakeClient{responses: []string{
		`[{"action": "fly_to_moon"}]`,
	}}
	p := NewWithClient(client, 2)

	_, err := p.GeneratePlan(context.Background(), "goal", "ui", nil)
	require.Error(t, err)
	require.Equal(t, 2, client.calls)
}

func TestGeneratePlanRejectsEmptyArray(t *testing.T) {
	client := &fakeClient{responses: []string{`[]`}}
	p := NewWithClient(client, 1)

	_, err := p.GeneratePlan(context.Background(), "goal", "ui", nil)
	require.Error(t, err)
}

func TestBuildPromptInitialModeMentionsGoal(t *testing.T) {
	prompt := BuildPrompt("Search for Python tutorials", "== ui ==", nil)
	require.Contains(t, prompt, "Search for Python tutorials")
	require.Contains(t, prompt, "PLANNING MODE")
}

func TestBuildPromptRecoveryModeListsFailureAndRemainingWork(t *testing.T) {
	errCtx := &ErrorContext{
		FailedAction: "click(.old-button)",
		ErrorMessage: "timeout",
		CurrentURL:   "https://shop.test/cart",
		ExecutedSteps: []ExecutedStep{
			{Action: "navigate", Status: "success"},
			{Action: "type", Status: "success"},
			{Action: "click", Status: "failed"},
		},
	}
	prompt := BuildPrompt("Buy cheapest wireless mouse", "== ui ==", errCtx)
	require.Contains(t, prompt, "RECOVERY MODE")
	require.Contains(t, prompt, "click(.old-button)")
	require.Contains(t, prompt, "timeout")
	require.Contains(t, prompt, "Add the product to cart")
}

func TestAnalyzeRemainingTasksGoalComplete(t *testing.T) {
	steps := []ExecutedStep{
		{Action: "navigate", Status: "success"},
		{Action: "type", Status: "success"},
		{Action: "extract", Status: "success"},
	}
	result := analyzeRemainingTasks("Search for Python tutorials", steps)
	require.Contains(t, result, "complete")
}
