package task

import (
	"context"

	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
)

// Store persists invocation state.
//
// Claim moves a pending task to running and counts the attempt. It returns
// ErrTaskCompleted for succeeded tasks, ErrTaskExhausted for failed or
// out-of-attempts tasks and ErrTaskConflict when another worker holds it.
// MarkFailed with terminal=false puts the task back to pending for a retry.
type Store interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	Claim(ctx context.Context, id string) (*Task, error)
	MarkSucceeded(ctx context.Context, id string, result ExecutionResult) error
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error
	List(ctx context.Context, opts ListOptions) ([]*Task, error)
	Stats(ctx context.Context, opts ListOptions) (Stats, error)
	Close() error
}
