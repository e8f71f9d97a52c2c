package task

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func seedStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	tasks := []*Task{
		{ID: "t1", Action: "get_wallet_details", Status: StatusPending, MaxRetries: 3},
		{ID: "t2", Action: "transfer_ton", Arguments: json.RawMessage(`{"to":"EQdest","amount":"1.5"}`), Status: StatusPending, MaxRetries: 3},
		{ID: "t3", Action: "convert_ton_units", Status: StatusPending, MaxRetries: 3},
	}
	for _, task := range tasks {
		if err := store.Create(ctx, task); err != nil {
			t.Fatalf("create %s: %v", task.ID, err)
		}
	}
	if err := store.MarkFailed(ctx, "t2", CodeTaskProcessing, "insufficient balance", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "t3", ExecutionResult{Output: "1 TON = 1000000000 nanotons"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	return store
}

func TestMemoryStoreListFilters(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "t3" || all[2].ID != "t1" {
		t.Fatalf("expected newest first, got %v", ids(all))
	}

	asc, _ := store.List(ctx, BuildListOptions(WithSortOrder(SortByUpdatedAsc)))
	if asc[0].ID != "t1" {
		t.Fatalf("expected oldest first, got %v", ids(asc))
	}

	failed, _ := store.List(ctx, BuildListOptions(WithStatuses(StatusFailed, "bogus")))
	if len(failed) != 1 || failed[0].ID != "t2" || failed[0].LastError != "insufficient balance" {
		t.Fatalf("unexpected failed list %v", ids(failed))
	}

	byAction, _ := store.List(ctx, BuildListOptions(WithActions(" transfer_ton ", "")))
	if len(byAction) != 1 || byAction[0].ID != "t2" {
		t.Fatalf("unexpected action filter result %v", ids(byAction))
	}

	withResult, _ := store.List(ctx, BuildListOptions(WithResultPresence(true)))
	if len(withResult) != 1 || withResult[0].ID != "t3" {
		t.Fatalf("unexpected result filter %v", ids(withResult))
	}

	byQuery, _ := store.List(ctx, BuildListOptions(WithQuery("EQDEST")))
	if len(byQuery) != 1 || byQuery[0].ID != "t2" {
		t.Fatalf("query should match arguments case-insensitively, got %v", ids(byQuery))
	}

	page, _ := store.List(ctx, BuildListOptions(WithLimit(1), WithOffset(1)))
	if len(page) != 1 || page[0].ID != "t2" {
		t.Fatalf("unexpected page %v", ids(page))
	}
	empty, _ := store.List(ctx, BuildListOptions(WithOffset(10)))
	if len(empty) != 0 {
		t.Fatalf("offset past the end should be empty")
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store := seedStore(t)
	stats, err := store.Stats(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Failed != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.OldestUpdatedAt >= stats.NewestUpdatedAt {
		t.Fatalf("expected an update range, got %+v", stats)
	}

	filtered, _ := store.Stats(context.Background(), BuildListOptions(WithActions("transfer_ton")))
	if filtered.Total != 1 || filtered.Failed != 1 {
		t.Fatalf("unexpected filtered stats %+v", filtered)
	}
}

func TestMemoryStoreClaimTransitions(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()

	claimed, err := store.Claim(ctx, "t1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("unexpected claimed task %+v", claimed)
	}
	if _, err := store.Claim(ctx, "t1"); !errors.Is(err, ErrTaskConflict) {
		t.Fatalf("expected conflict for running task, got %v", err)
	}
	if err := store.MarkFailed(ctx, "t1", CodeTaskProcessing, "retry me", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	again, err := store.Claim(ctx, "t1")
	if err != nil || again.Attempts != 2 || again.LastError != "" {
		t.Fatalf("non-terminal failure should be claimable, got %+v / %v", again, err)
	}

	if _, err := store.Claim(ctx, "t2"); !errors.Is(err, ErrTaskExhausted) {
		t.Fatalf("terminal failure should be exhausted, got %v", err)
	}
	if _, err := store.Claim(ctx, "t3"); !errors.Is(err, ErrTaskCompleted) {
		t.Fatalf("succeeded task should be completed, got %v", err)
	}
	if _, err := store.Claim(ctx, "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreIsolatesCopies(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()

	got, _ := store.Get(ctx, "t2")
	got.Arguments[0] = 'X'
	got.Status = StatusSucceeded

	fresh, _ := store.Get(ctx, "t2")
	if fresh.Status != StatusFailed || fresh.Arguments[0] != '{' {
		t.Fatalf("store state leaked through a returned copy: %+v", fresh)
	}
	if err := store.Create(ctx, &Task{ID: "t2"}); !errors.Is(err, ErrTaskConflict) {
		t.Fatalf("duplicate id should conflict, got %v", err)
	}
}

func ids(tasks []*Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}
