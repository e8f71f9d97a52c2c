package task

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
)

type failingProducer struct{}

func (failingProducer) Publish(context.Context, string) error { return errors.New("broker down") }
func (failingProducer) Close() error { return nil }

func TestServiceSubmitValidates(t *testing.T) {
	svc := NewService(NewMemoryStore(), NewMemoryQueue(4), 0)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, SubmitRequest{Action: "  "}); !xerrors.Is(err, CodeTaskValidation) {
		t.Fatalf("expected validation error for blank action, got %v", err)
	}
	if _, err := svc.Submit(ctx, SubmitRequest{Action: "transfer_ton", Arguments: json.RawMessage(`{"to":`)}); !xerrors.Is(err, CodeTaskValidation) {
		t.Fatalf("expected validation error for broken JSON, got %v", err)
	}
}

func TestServiceSubmitIsIdempotent(t *testing.T) {
	queue := NewMemoryQueue(4)
	svc := NewService(NewMemoryStore(), queue, 5)
	ctx := context.Background()

	first, err := svc.Submit(ctx, SubmitRequest{ID: "inv-1", Action: "get_wallet_details"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if first.MaxRetries != 5 || first.Status != StatusPending {
		t.Fatalf("unexpected task %+v", first)
	}
	second, err := svc.Submit(ctx, SubmitRequest{ID: "inv-1", Action: "transfer_ton"})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.Action != "get_wallet_details" {
		t.Fatalf("resubmission must return the original invocation, got %s", second.Action)
	}
	if queue.Len() != 1 {
		t.Fatalf("expected a single publish, got %d", queue.Len())
	}

	generated, _ := svc.Submit(ctx, SubmitRequest{Action: "get_wallet_details"})
	if generated.ID == "" || generated.ID == "inv-1" {
		t.Fatalf("expected a generated id, got %q", generated.ID)
	}
}

func TestServiceSubmitMarksPublishFailure(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, failingProducer{}, 3)

	_, err := svc.Submit(context.Background(), SubmitRequest{ID: "inv-2", Action: "get_wallet_details"})
	if !xerrors.Is(err, CodeTaskPublish) {
		t.Fatalf("expected publish error, got %v", err)
	}
	task, getErr := store.Get(context.Background(), "inv-2")
	if getErr != nil {
		t.Fatalf("get: %v", getErr)
	}
	if task.Status != StatusFailed || task.ErrorCode != string(CodeTaskPublish) {
		t.Fatalf("unpublished invocation should be terminal, got %+v", task)
	}
}

func TestServiceRequiresDependencies(t *testing.T) {
	svc := NewService(nil, nil, 1)
	if _, err := svc.Submit(context.Background(), SubmitRequest{Action: "x"}); !xerrors.Is(err, xerrors.CodeInitializationFailure) {
		t.Fatalf("expected initialization failure, got %v", err)
	}
	if _, err := svc.Stats(context.Background()); !xerrors.Is(err, xerrors.CodeInitializationFailure) {
		t.Fatalf("expected initialization failure, got %v", err)
	}
}
