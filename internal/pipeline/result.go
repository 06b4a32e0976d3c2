package pipeline

import "time"

// StepStatus is the explicit per-step execution state.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepResult records the outcome of one step.
type StepResult struct {
	Name     string        `json:"name"`
	Status   StepStatus    `json:"status"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Result aggregates a whole pipeline run.
type Result struct {
	Pipeline    string        `json:"pipeline"`
	Verdict     string        `json:"verdict"`
	Steps       []StepResult  `json:"steps"`
	FailedIndex int           `json:"failed_index"`
	Duration    time.Duration `json:"duration"`
}

const (
	VerdictSuccess = "success"
	VerdictFailure = "failure"
)

func (r *Result) Success() bool {
	return r.Verdict == VerdictSuccess
}
