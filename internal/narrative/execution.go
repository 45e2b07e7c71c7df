package narrative

import "time"

// Status is the lifecycle state of a narrative execution.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ExecutionRecord tracks one run of a narrative from first act to last.
// CompletedAt is only set once Status reaches StatusCompleted or
// StatusFailed; a running execution always has a zero CompletedAt.
type ExecutionRecord struct {
	ID                string
	NarrativeName     string
	NarrativeDesc     string
	Status            Status
	StartedAt         time.Time
	CompletedAt       time.Time
	Error             string
	Acts              []ActExecution
}

// ActExecution is the record of one act within an execution. Sequence is
// dense and strictly increasing from zero within an execution — the
// executor assigns it, never the caller.
type ActExecution struct {
	Sequence    int
	ActName     string
	Inputs      []Input
	Model       string
	Temperature float64
	MaxTokens   int
	Response    string
	StartedAt   time.Time
	CompletedAt time.Time
	Error       string
}

// MarkCompleted transitions the execution to StatusCompleted and stamps
// CompletedAt. Calling it on anything but a running execution is a caller
// bug; it overwrites the prior status regardless.
func (e *ExecutionRecord) MarkCompleted(at time.Time) {
	e.Status = StatusCompleted
	e.CompletedAt = at
}

// MarkFailed transitions the execution to StatusFailed, records the error,
// and stamps CompletedAt.
func (e *ExecutionRecord) MarkFailed(at time.Time, err error) {
	e.Status = StatusFailed
	e.CompletedAt = at
	if err != nil {
		e.Error = err.Error()
	}
}

// NextSequence returns the sequence number the next ActExecution should
// use, preserving the dense strictly-increasing-from-zero invariant.
func (e *ExecutionRecord) NextSequence() int {
	return len(e.Acts)
}
