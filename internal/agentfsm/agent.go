package agentfsm

import (
	"context"
	"fmt"

	"pilot/internal/actions"
	"pilot/internal/cache"
	"pilot/internal/config"
	"pilot/internal/logging"
	"pilot/internal/oracle"
	"pilot/internal/pageanalysis"
)

// Browser is the minimal collaborator Agent needs directly; all page
// manipulation goes through Executor instead.
type Browser interface {
	CurrentURL() string
}

// Planner is the subset of *oracle.Planner the run loop depends on.
type Planner interface {
	GeneratePlan(ctx context.Context, goal, uiContext string, errCtx *oracle.ErrorContext) (actions.Plan, error)
}

// Executor is the subset of *actions.Executor the run loop depends on.
type Executor interface {
	Execute(ctx context.Context, action actions.Action) actions.Result
}

// Analyzer is the subset of *pageanalysis.Analyzer the run loop depends on.
type Analyzer interface {
	Analyze(ctx context.Context, forceFresh bool) (*pageanalysis.Analysis, error)
}

// ApprovalFunc decides whether a plan containing risky actions may proceed.
type ApprovalFunc func(actions.Plan) bool

// Agent wires together the Planner Oracle, the Action Executor, and the
// Page Analyzer behind the state machine's run loop.
type Agent struct {
	cfg      *config.Config
	planner  Planner
	executor Executor
	analyzer Analyzer
	cache    *cache.Store
	browser  Browser

	Approval ApprovalFunc
}

// New builds an Agent. Approval defaults to auto-approve (nil callback).
func New(cfg *config.Config, planner Planner, executor Executor, analyzer Analyzer, store *cache.Store, browser Browser) *Agent {
	return &Agent{
		cfg:      cfg,
		planner:  planner,
		executor: executor,
		analyzer: analyzer,
		cache:    store,
		browser:  browser,
	}
}

// Run drives one task from idle through to a terminal state, returning the
// RunSummary regardless of success or failure.
func (a *Agent) Run(ctx context.Context, goal string) RunSummary {
	runCtx := NewContext(goal, a.cfg.Recovery.MaxSelfHealAttempts)

	if err := a.planPhase(ctx, runCtx); err != nil {
		return a.fail(runCtx, err)
	}

	if a.cfg.Security.RequireApproval {
		cancelled, err := a.approvalPhase(runCtx)
		if err != nil {
			return a.fail(runCtx, err)
		}
		if cancelled {
			return runCtx.Summary()
		}
	} else {
		if err := runCtx.Transition(Executing); err != nil {
			return a.fail(runCtx, err)
		}
	}

	if err := a.executionPhase(ctx, runCtx); err != nil {
		return a.recover(ctx, runCtx, err)
	}

	_ = runCtx.Transition(Completed)
	return runCtx.Summary()
}

func (a *Agent) planPhase(ctx context.Context, runCtx *Context) error {
	if err := runCtx.Transition(Planning); err != nil {
		return err
	}

	analysis, err := a.analyzer.Analyze(ctx, false)
	if err != nil {
		return fmt.Errorf("plan phase: analyze page: %w", err)
	}
	logging.FSM("planning with %d chars of ui context", len(analysis.UIText))

	plan, err := a.planner.GeneratePlan(ctx, runCtx.Goal, analysis.UIText, nil)
	if err != nil {
		return fmt.Errorf("plan phase: %w", err)
	}
	runCtx.Plan = plan
	return nil
}

// approvalPhase returns cancelled=true if the user rejected the plan.
func (a *Agent) approvalPhase(runCtx *Context) (bool, error) {
	if err := runCtx.Transition(AwaitingApproval); err != nil {
		return false, err
	}

	hasRisky := false
	for _, act := range runCtx.Plan {
		if a.cfg.IsRiskyAction(string(act.Action)) {
			hasRisky = true
			break
		}
	}

	if hasRisky {
		runCtx.ApprovalRequired = true
		logging.FSMWarn("plan contains risky actions, awaiting approval")
		if a.Approval != nil {
			if !a.Approval(runCtx.Plan) {
				if err := runCtx.Transition(Cancelled); err != nil {
					return false, err
				}
				return true, nil
			}
		} else {
			logging.FSMWarn("no approval callback set, auto-approving")
		}
	}

	if err := runCtx.Transition(Executing); err != nil {
		return false, err
	}
	return false, nil
}

func (a *Agent) executionPhase(ctx context.Context, runCtx *Context) error {
	for idx, act := range runCtx.Plan {
		runCtx.StepIndex = idx
		logging.FSM("step %d/%d: %s", idx+1, len(runCtx.Plan), act.Action)

		result := a.executor.Execute(ctx, act)
		runCtx.AddExecutedStep(act, result)

		if result.Status == actions.Failed {
			runCtx.LastError = result.Error
			return fmt.Errorf("step %d (%s) failed: %s", idx+1, act.Action, result.Error)
		}
	}
	logging.FSM("all %d steps completed", len(runCtx.Plan))
	return nil
}

// recover implements the error -> self_healing -> executing cycle. It is
// called once per execution failure and itself calls executionPhase again
// for the regenerated plan, recursing into recover on renewed failure.
func (a *Agent) recover(ctx context.Context, runCtx *Context, execErr error) RunSummary {
	runCtx.LastError = execErr.Error()
	if err := runCtx.Transition(Error); err != nil {
		return a.fail(runCtx, err)
	}
	logging.FSMWarn("execution error: %v", execErr)

	if !runCtx.CanRecover() {
		logging.FSMError("recovery attempts exhausted (%d/%d)", runCtx.RecoveryAttempts, runCtx.MaxRecoveryAttempts)
		_ = runCtx.Transition(Completed)
		return runCtx.Summary()
	}

	if err := runCtx.Transition(SelfHealing); err != nil {
		return a.fail(runCtx, err)
	}
	logging.FSM("adaptive recovery attempt %d", runCtx.RecoveryAttempts+1)

	currentURL := a.browser.CurrentURL()
	if currentURL != "" {
		a.cache.Invalidate(currentURL)
		logging.FSM("invalidated ui cache for %s", currentURL)
	}

	analysis, err := a.analyzer.Analyze(ctx, true)
	if err != nil {
		runCtx.LastError = fmt.Sprintf("recovery: re-analyze failed: %v", err)
		_ = runCtx.Transition(Error)
		_ = runCtx.Transition(Completed)
		return runCtx.Summary()
	}

	var failedAction string
	if runCtx.StepIndex < len(runCtx.Plan) {
		failedAction = string(runCtx.Plan[runCtx.StepIndex].Action)
	}

	errCtx := &oracle.ErrorContext{
		FailedAction: failedAction,
		ErrorMessage: execErr.Error(),
		CurrentURL:   analysis.URL,
	}
	for _, s := range runCtx.ExecutedSteps {
		errCtx.ExecutedSteps = append(errCtx.ExecutedSteps, oracle.ExecutedStep{
			Action: string(s.Action.Action),
			Status: string(s.Result.Status),
		})
	}

	recoveryPlan, err := a.planner.GeneratePlan(ctx, runCtx.Goal, analysis.UIText, errCtx)
	if err != nil {
		runCtx.LastError = fmt.Sprintf("recovery: planner failed: %v", err)
		_ = runCtx.Transition(Error)
		_ = runCtx.Transition(Completed)
		return runCtx.Summary()
	}
	logging.FSM("generated recovery plan with %d steps", len(recoveryPlan))

	runCtx.Plan = recoveryPlan
	runCtx.StepIndex = 0
	runCtx.LastError = ""
	runCtx.RecordRecoveryAttempt()

	if err := runCtx.Transition(Executing); err != nil {
		return a.fail(runCtx, err)
	}

	if err := a.executionPhase(ctx, runCtx); err != nil {
		return a.recover(ctx, runCtx, err)
	}

	_ = runCtx.Transition(Completed)
	logging.FSM("adaptive recovery successful, original goal completed")
	return runCtx.Summary()
}

func (a *Agent) fail(runCtx *Context, err error) RunSummary {
	runCtx.LastError = err.Error()
	logging.FSMError("%v", err)
	if runCtx.State != Completed && runCtx.State != Cancelled {
		if e := runCtx.Transition(Error); e == nil {
			_ = runCtx.Transition(Completed)
		}
	}
	return runCtx.Summary()
}
