package entity

// Status constants for Invoice
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
	StatusCancelled  = "CANCELLED"
)

// Action constants for ProcessingLogEntry
const (
	ActionUpload      = "UPLOAD"
	ActionExtract     = "EXTRACT"
	ActionMatch       = "MATCH"
	ActionStockCreate = "STOCK_CREATE"
	ActionStockError  = "STOCK_ERROR"
	ActionCancel      = "CANCEL"
	ActionReset       = "RESET"
	ActionError       = "ERROR"
)
