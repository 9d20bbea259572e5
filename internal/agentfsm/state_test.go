package agentfsm

import "testing"

func TestValidTransitions(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{Idle, Planning, true},
		{Idle, Executing, false},
		{Planning, AwaitingApproval, true},
		{Planning, Executing, true},
		{Planning, Error, true},
		{AwaitingApproval, Executing, true},
		{AwaitingApproval, Cancelled, true},
		{Executing, Completed, true},
		{Executing, Error, true},
		{Error, SelfHealing, true},
		{Error, Completed, true},
		{SelfHealing, Executing, true},
		{SelfHealing, Error, true},
		{SelfHealing, Completed, true},
		{Completed, Planning, false},
		{Cancelled, Executing, false},
	}
	for _, c := range cases {
		got := isValidTransition(c.from, c.to)
		if got != c.want {
			t.Errorf("isValidTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}
