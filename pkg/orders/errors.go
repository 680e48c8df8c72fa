package orders

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyPayload is returned for a document without header or lines. Such a
	// document is never sent.
	ErrEmptyPayload = errors.New("sales document has no header or no lines")
	// ErrUnmappedCountry is returned when a guest's billing country has no ERP code.
	ErrUnmappedCountry = errors.New("billing country has no SoftOne mapping")
)

// ExportError is a failure while exporting one order. The order keeps no export
// marker so a later trigger can try again.
type ExportError struct {
	OrderID  int64
	Stage    string
	Attempts int
	Err      error
}

func (e *ExportError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("export order %d: %s failed after %d attempts: %v", e.OrderID, e.Stage, e.Attempts, e.Err)
	}
	return fmt.Sprintf("export order %d: %s: %v", e.OrderID, e.Stage, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}
