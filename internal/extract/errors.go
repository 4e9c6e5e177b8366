package extract

import "fmt"

// Reason classifies why extraction failed
type Reason string

const (
	// ReasonNoStructure means no parseable invoice structure was found
	ReasonNoStructure Reason = "NO_STRUCTURE"

	// ReasonPartialData means line items were found but totals are missing
	ReasonPartialData Reason = "PARTIAL_DATA"

	// ReasonUnreadable means the document itself could not be read
	ReasonUnreadable Reason = "UNREADABLE"
)

// ExtractionError reports a failed extraction with a classified reason
type ExtractionError struct {
	Supplier string
	Reason   Reason
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed for %s (%s): %v", e.Supplier, e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed for %s: %s", e.Supplier, e.Reason)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// NewExtractionError builds an ExtractionError
func NewExtractionError(supplier string, reason Reason, err error) *ExtractionError {
	return &ExtractionError{Supplier: supplier, Reason: reason, Err: err}
}
