// Package sagalog records every state transition of an order attempt.
//
// The log is append-only. Reading the newest row for a saga tells where an
// attempt stopped, which is what recovery tooling needs after a crash, and the
// stored trace_id links the row to the distributed trace of that attempt.
package sagalog

import "time"

// Status represents the lifecycle state of a saga execution.
type Status string

const (
	StatusStarted      Status = "STARTED"
	StatusStepDone     Status = "STEP_DONE"
	StatusCompleted    Status = "COMPLETED"
	StatusCompensating Status = "COMPENSATING"
	StatusFailed       Status = "FAILED"
)

// SagaLog is one transition.
type SagaLog struct {
	// SagaID is the order attempt id.
	SagaID string

	Status Status

	// CurrentStep is the step that just completed or failed.
	CurrentStep string

	// Payload is the JSON description of the attempt. Only the STARTED row carries it.
	Payload string

	// ErrorMessages is a JSON array of failure strings, "[]" when there are none.
	ErrorMessages string

	TraceID string
	SpanID  string

	UpdatedAt time.Time
}
