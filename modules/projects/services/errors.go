package services

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrFatalInput means the source could not be read or understood at all.
	ErrFatalInput = errors.New("fatal input error")
	// ErrFatalStore means a transaction-level failure; the batch was rolled back.
	ErrFatalStore = errors.New("fatal store error")

	ErrMissingProjectName     = errors.New("row has no project name")
	ErrReconciliationMismatch = errors.New("reconciliation mismatch")
)

// RowError is a per-row failure recorded in a batch result. It never aborts
// the batch.
type RowError struct {
	// Row is the 1-based position in the batch.
	Row         int
	Line        int
	Sheet       string
	BusinessKey string
	Err         error
}

func (e RowError) Error() string {
	if e.BusinessKey != "" {
		return fmt.Sprintf("row %d (%s): %v", e.Row, e.BusinessKey, e.Err)
	}
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

func (e RowError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Row         int    `json:"row"`
		Line        int    `json:"line,omitempty"`
		Sheet       string `json:"sheet,omitempty"`
		BusinessKey string `json:"business_key,omitempty"`
		Error       string `json:"error"`
	}{e.Row, e.Line, e.Sheet, e.BusinessKey, msg})
}
