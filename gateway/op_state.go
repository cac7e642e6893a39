package gateway

import "sync/atomic"

// OpState is the position of a session in the lifecycle of its current command.
type OpState uint32

const (
	IdleState OpState = iota
	IssuingState
	AwaitingCompletionState
	RepliedState
)

func (s OpState) String() string {
	switch s {
	case IdleState:
		return "Idle"
	case IssuingState:
		return "Issuing"
	case AwaitingCompletionState:
		return "AwaitingCompletion"
	case RepliedState:
		return "Replied"
	default:
		return "Unknown"
	}
}

// AtomicOpState holds an OpState and moves it along
// Idle -> Issuing -> AwaitingCompletion -> Replied -> Idle.
type AtomicOpState struct {
	state atomic.Uint32
}

func (st *AtomicOpState) String() string {
	return st.Get().String()
}

// Get returns the current state.
func (st *AtomicOpState) Get() OpState {
	return OpState(st.state.Load())
}

// Set sets the state unconditionally.
func (st *AtomicOpState) Set(state OpState) {
	st.state.Store(uint32(state))
}

func (st *AtomicOpState) IsIdle() bool {
	return st.Get() == IdleState
}

func (st *AtomicOpState) ToIssuing() bool {
	return st.state.CompareAndSwap(uint32(IdleState), uint32(IssuingState))
}

func (st *AtomicOpState) ToAwaitingCompletion() bool {
	return st.state.CompareAndSwap(uint32(IssuingState), uint32(AwaitingCompletionState))
}

// ToReplied accepts both Issuing, for replies that need no completion, and AwaitingCompletion.
func (st *AtomicOpState) ToReplied() bool {
	if st.state.CompareAndSwap(uint32(AwaitingCompletionState), uint32(RepliedState)) {
		return true
	}

	return st.state.CompareAndSwap(uint32(IssuingState), uint32(RepliedState))
}

func (st *AtomicOpState) ToIdle() bool {
	if st.IsIdle() {
		return true
	}

	return st.state.CompareAndSwap(uint32(RepliedState), uint32(IdleState))
}
