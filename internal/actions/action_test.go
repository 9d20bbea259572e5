package actions

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActionValidateRequiredFields(t *testing.T) {
	require.Error(t, Action{Action: Navigate}.Validate())
	require.NoError(t, Action{Action: Navigate, URL: "https://x.com"}.Validate())

	require.Error(t, Action{Action: Type}.Validate())
	require.NoError(t, Action{Action: Type, Selector: "#q"}.Validate())

	require.Error(t, Action{Action: Click}.Validate())
	require.Error(t, Action{Action: Wait}.Validate())

	require.NoError(t, Action{Action: Scroll}.Validate())
	require.NoError(t, Action{Action: Extract}.Validate())
	require.NoError(t, Action{Action: AddToCart}.Validate())
	require.NoError(t, Action{Action: HumanPause}.Validate())
	require.NoError(t, Action{Action: Screenshot}.Validate())
	require.NoError(t, Action{Action: AutoLogin}.Validate())

	require.Error(t, Action{Action: "delete_everything"}.Validate())
}

func TestActionValidateFindBestCriteria(t *testing.T) {
	require.NoError(t, Action{Action: FindBest}.Validate())
	require.NoError(t, Action{Action: FindBest, Criteria: Cheapest}.Validate())
	require.NoError(t, Action{Action: FindBest, Criteria: HighestRated}.Validate())
	require.Error(t, Action{Action: FindBest, Criteria: "most_reviewed"}.Validate())
}

func TestPlanValidateRejectsEmpty(t *testing.T) {
	var p Plan
	require.Error(t, p.Validate())
}

func TestPlanValidatePropagatesIndex(t *testing.T) {
	p := Plan{
		{Action: Navigate, URL: "https://x.com"},
		{Action: Click},
	}
	err := p.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "action 1")
}
