package task

import (
	"encoding/json"

	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
)

// Status is the lifecycle state of an invocation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ExecutionResult is what a successful invocation produced.
type ExecutionResult struct {
	Output         string `json:"output"`
	Network        string `json:"network,omitempty"`
	Address        string `json:"address,omitempty"`
	DurationMillis int64  `json:"duration_ms"`
}

// Task is a queued invocation of a single action.
type Task struct {
	ID         string           `json:"id"`
	Action     string           `json:"action"`
	Arguments  json.RawMessage  `json:"arguments,omitempty"`
	Status     Status           `json:"status"`
	Attempts   int              `json:"attempts"`
	MaxRetries int              `json:"max_retries"`
	LastError  string           `json:"last_error,omitempty"`
	ErrorCode  string           `json:"error_code,omitempty"`
	Result     *ExecutionResult `json:"result,omitempty"`
	CreatedAt  int64            `json:"created_at"`
	UpdatedAt  int64            `json:"updated_at"`
}

// Done reports whether the task reached a final state.
func (t *Task) Done() bool {
	return t != nil && (t.Status == StatusSucceeded || t.Status == StatusFailed)
}

const (
	CodeTaskNotFound   xerrors.Code = "TASK_NOT_FOUND"
	CodeTaskConflict   xerrors.Code = "TASK_CONFLICT"
	CodeTaskCompleted  xerrors.Code = "TASK_COMPLETED"
	CodeTaskExhausted  xerrors.Code = "TASK_RETRIES_EXHAUSTED"
	CodeTaskValidation xerrors.Code = "TASK_VALIDATION_FAILED"
	CodeTaskPublish    xerrors.Code = "TASK_PUBLISH_FAILED"
	CodeTaskProcessing xerrors.Code = "TASK_PROCESSING_FAILED"
	CodeFailureLimit   xerrors.Code = "TASK_FAILURE_LIMIT"
)

var (
	ErrTaskNotFound  = xerrors.New(CodeTaskNotFound, "")
	ErrTaskConflict  = xerrors.New(CodeTaskConflict, "")
	ErrTaskCompleted = xerrors.New(CodeTaskCompleted, "")
	ErrTaskExhausted = xerrors.New(CodeTaskExhausted, "")
)

func init() {
	xerrors.Register(CodeTaskNotFound, xerrors.Attributes{Message: "invocation not found", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeTaskConflict, xerrors.Attributes{Message: "invocation conflict", Severity: xerrors.SeverityWarning})
	xerrors.Register(CodeTaskCompleted, xerrors.Attributes{Message: "invocation already completed", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeTaskExhausted, xerrors.Attributes{Message: "invocation retries exhausted", Severity: xerrors.SeverityCritical, Alert: true})
	xerrors.Register(CodeTaskValidation, xerrors.Attributes{Message: "invalid invocation request", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeTaskPublish, xerrors.Attributes{Message: "failed to publish invocation", Severity: xerrors.SeverityCritical, Retryable: true, Alert: true})
	xerrors.Register(CodeTaskProcessing, xerrors.Attributes{Message: "invocation failed", Severity: xerrors.SeverityWarning, Retryable: true, Alert: true})
	xerrors.Register(CodeFailureLimit, xerrors.Attributes{Message: "consecutive failure limit reached", Severity: xerrors.SeverityCritical, Alert: true})
}

// IsValidStatus reports whether s is a known status.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

func cloneTask(t *Task) *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Arguments != nil {
		c.Arguments = append(json.RawMessage(nil), t.Arguments...)
	}
	if t.Result != nil {
		r := *t.Result
		c.Result = &r
	}
	return &c
}
