package workflow

// State represents a stage in the lifecycle of a payment-proof upload
type State string

const (
	StatePending    State = "Pending"
	StateReadingOCR State = "Reading OCR"
	StateAdded      State = "Added"
	StateVerified   State = "Verified"
	StateRejected   State = "Rejected"
)

var validStates = map[State]bool{
	StatePending:    true,
	StateReadingOCR: true,
	StateAdded:      true,
	StateVerified:   true,
	StateRejected:   true,
}

var terminalStates = map[State]bool{
	StateVerified: true,
	StateRejected: true,
}

// IsTerminal returns true if no further transitions or removal are allowed
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known upload state
func (s State) IsValid() bool {
	return validStates[s]
}
