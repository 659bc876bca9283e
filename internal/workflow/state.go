package workflow

import "slices"

// State is a request's position in the lifecycle.
type State string

const (
	StateReceived            State = "received"
	StateEvidenceGathering   State = "evidence_gathering"
	StateSecurityGate        State = "security_gate"
	StateRiskEvaluation      State = "risk_evaluation"
	StateFastTrack           State = "fast_track"
	StateAwaitingHumanReview State = "awaiting_human_review"
	StateDrafted             State = "drafted"
	StateAwaitingApproval    State = "awaiting_approval"
	StateExecuted            State = "executed"
	StateExecutionFailed     State = "execution_failed"
	StateRejected            State = "rejected"
	StateFailed              State = "failed"
	StateCancelled           State = "cancelled"
)

var transitions = map[State][]State{
	StateReceived:            {StateEvidenceGathering},
	StateEvidenceGathering:   {StateSecurityGate, StateRiskEvaluation, StateFailed},
	StateSecurityGate:        {StateRiskEvaluation, StateFailed, StateCancelled},
	StateRiskEvaluation:      {StateFastTrack, StateAwaitingHumanReview, StateFailed},
	StateFastTrack:           {StateDrafted},
	StateAwaitingHumanReview: {StateDrafted, StateCancelled},
	StateDrafted:             {StateAwaitingApproval},
	StateAwaitingApproval:    {StateExecuted, StateDrafted, StateRejected, StateExecutionFailed, StateCancelled},
	StateExecutionFailed:     {StateExecuted, StateExecutionFailed, StateRejected, StateFailed},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// Suspended reports whether the state parks the request until an external
// event arrives.
func (s State) Suspended() bool {
	switch s {
	case StateSecurityGate, StateAwaitingHumanReview, StateAwaitingApproval:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves the state.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	if _, ok := transitions[s]; ok {
		return true
	}
	switch s {
	case StateExecuted, StateRejected, StateFailed, StateCancelled:
		return true
	}
	return false
}

// SuspendedStates lists the states in which a request waits for input.
func SuspendedStates() []State {
	return []State{StateSecurityGate, StateAwaitingHumanReview, StateAwaitingApproval}
}
