package workflow

// Trigger represents an event that may cause a state transition
type Trigger string

const (
	// TriggerStartProcessing begins extraction for a pending invoice
	TriggerStartProcessing Trigger = "START_PROCESSING"

	// TriggerComplete marks an invoice as fully stocked
	TriggerComplete Trigger = "COMPLETE"

	// TriggerFail records an unrecoverable stage error
	TriggerFail Trigger = "FAIL"

	// TriggerCancel is an operator-issued cancellation, accepted from any
	// non-terminal state
	TriggerCancel Trigger = "CANCEL"

	// TriggerReset returns a failed invoice to pending for retry
	TriggerReset Trigger = "RESET"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
