package agentfsm

import (
	"fmt"
	"time"

	"pilot/internal/actions"
	"pilot/internal/logging"
)

// ExecutedStep records one completed (or failed) action alongside its result.
type ExecutedStep struct {
	Action    actions.Action
	Result    actions.Result
	Timestamp time.Time
}

// RunSummary is the structured terminal report produced at the end of every
// task, independent of any particular logging backend.
type RunSummary struct {
	Goal              string
	FinalState        State
	StepsPlanned      int
	StepsExecuted     int
	SuccessRate       float64
	ElapsedTime       time.Duration
	Error             string
	RecoveryAttempts  int
}

// Context tracks execution state across one task's entire lifecycle. The
// Goal field is set once at construction and never mutated afterward —
// every planner call, including every recovery call, must see the same
// value.
type Context struct {
	Goal                string
	State               State
	Plan                actions.Plan
	ExecutedSteps       []ExecutedStep
	StepIndex           int
	LastError           string
	ApprovalRequired    bool
	StartTime           time.Time
	RecoveryAttempts    int
	MaxRecoveryAttempts int
}

// NewContext builds a fresh ExecutionContext for goal, starting in Idle.
func NewContext(goal string, maxRecoveryAttempts int) *Context {
	return &Context{
		Goal:                goal,
		State:               Idle,
		StartTime:           time.Now(),
		MaxRecoveryAttempts: maxRecoveryAttempts,
	}
}

// Transition validates and performs a state change, logging elapsed time.
func (c *Context) Transition(to State) error {
	from := c.State
	if !isValidTransition(from, to) {
		return &ErrInvalidTransition{From: from, To: to}
	}
	c.State = to
	elapsed := time.Since(c.StartTime)
	logging.FSM("[%.1fs] %s -> %s", elapsed.Seconds(), from, to)
	return nil
}

// AddExecutedStep records one completed step.
func (c *Context) AddExecutedStep(action actions.Action, result actions.Result) {
	c.ExecutedSteps = append(c.ExecutedSteps, ExecutedStep{
		Action:    action,
		Result:    result,
		Timestamp: time.Now(),
	})
}

// CanRecover reports whether another recovery attempt is still permitted,
// based on the count of attempts already completed.
func (c *Context) CanRecover() bool {
	return c.RecoveryAttempts < c.MaxRecoveryAttempts
}

// RecordRecoveryAttempt increments the recovery counter once a recovery
// cycle has produced and is about to execute a new plan.
func (c *Context) RecordRecoveryAttempt() {
	c.RecoveryAttempts++
}

// Summary builds the terminal RunSummary for the current context state.
func (c *Context) Summary() RunSummary {
	successRate := 0.0
	if len(c.ExecutedSteps) > 0 {
		successful := 0
		for _, s := range c.ExecutedSteps {
			if s.Result.Status == actions.Success {
				successful++
			}
		}
		successRate = float64(successful) / float64(len(c.ExecutedSteps)) * 100
	}
	return RunSummary{
		Goal:             c.Goal,
		FinalState:       c.State,
		StepsPlanned:     len(c.Plan),
		StepsExecuted:    len(c.ExecutedSteps),
		SuccessRate:      successRate,
		ElapsedTime:      time.Since(c.StartTime),
		Error:            c.LastError,
		RecoveryAttempts: c.RecoveryAttempts,
	}
}

func (s RunSummary) String() string {
	status := "completed"
	if s.Error != "" {
		status = "failed"
	}
	if s.FinalState == Cancelled {
		status = "cancelled"
	}
	return fmt.Sprintf(
		"goal=%q state=%s status=%s steps=%d/%d success_rate=%.1f%% recovery_attempts=%d elapsed=%s",
		s.Goal, s.FinalState, status, s.StepsExecuted, s.StepsPlanned, s.SuccessRate, s.RecoveryAttempts, s.ElapsedTime.Round(time.Millisecond),
	)
}
