package workflow

// NewInvoiceMachine builds the invoice lifecycle state machine:
//
//	PENDING → PROCESSING → COMPLETED | FAILED
//	FAILED  → PENDING (explicit reset)
//	any non-terminal state → CANCELLED
//
// COMPLETED and CANCELLED are terminal; no pipeline stage may run against them.
func NewInvoiceMachine(initial State) StateMachine {
	b := NewBuilder()

	b.Configure(StatePending).
		Permit(TriggerStartProcessing, StateProcessing).
		Permit(TriggerCancel, StateCancelled)

	b.Configure(StateProcessing).
		Permit(TriggerComplete, StateCompleted).
		Permit(TriggerFail, StateFailed).
		Permit(TriggerCancel, StateCancelled)

	b.Configure(StateFailed).
		Permit(TriggerReset, StatePending).
		Permit(TriggerCancel, StateCancelled)

	return b.Build(initial)
}
