package workflow

// uploadBuilder holds the proof-upload transition table. Machines built from
// it are independent copies.
var uploadBuilder = newUploadBuilder()

func newUploadBuilder() StateMachineBuilder {
	builder := NewBuilder()

	builder.Configure(StatePending).
		Permit(TriggerStartOCR, StateReadingOCR).
		Permit(TriggerAdd, StateAdded).
		Permit(TriggerVerify, StateVerified).
		Permit(TriggerReject, StateRejected)

	// recognition settles back to Pending on success and on failure
	builder.Configure(StateReadingOCR).
		Permit(TriggerFinishOCR, StatePending)

	builder.Configure(StateAdded).
		Permit(TriggerVerify, StateVerified).
		Permit(TriggerReject, StateRejected)

	return builder
}

// NewUploadMachine returns a proof-upload state machine starting in initial.
func NewUploadMachine(initial State) StateMachine {
	return uploadBuilder.Build(initial)
}

// CanRemove reports whether an upload in state s may be discarded.
func CanRemove(s State) bool {
	return s.IsValid() && !s.IsTerminal()
}
