package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerStartOCR  Trigger = "START_OCR"
	TriggerFinishOCR Trigger = "FINISH_OCR"
	TriggerAdd       Trigger = "ADD"
	TriggerVerify    Trigger = "VERIFY"
	TriggerReject    Trigger = "REJECT"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
