package app

import (
	"time"

	"artai-go/internal/artai"
)

// Operation tracks one CLI command run. Its ID tags every log line the run
// writes; it is logged with its outcome when the app closes.
type Operation struct {
	ID         string
	Name       string
	Parameters string
	Status     string // "success" or "error"
	Started    time.Time
	Err        error
}

// NewOperation starts an operation named after the CLI command being run
// (e.g. "Login", "ListImages").
func NewOperation(name, parameters string, clock artai.Clock, ids artai.IDGenerator) *Operation {
	return &Operation{
		ID:         ids.New(),
		Name:       name,
		Parameters: parameters,
		Status:     "success",
		Started:    clock.Now(),
	}
}

// Fail marks the operation as failed with err. A nil err is ignored.
func (op *Operation) Fail(err error) {
	if err == nil {
		return
	}
	op.Status = "error"
	op.Err = err
}

// Failed reports whether Fail was called with an error.
func (op *Operation) Failed() bool {
	return op.Status == "error"
}
