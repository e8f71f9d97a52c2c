package task

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
)

var taskColumns = []string{
	"id", "action", "arguments", "status", "attempts", "max_retries", "last_error", "error_code",
	"result_output", "result_network", "result_address", "result_duration_ms", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*MySQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	store := NewMySQLStoreFromDB(db)
	store.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return store, mock
}

func TestMySQLStoreCreate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO action_invocations").
		WithArgs("inv-1", "transfer_ton", `{"to":"EQdest","amount":"1"}`, StatusPending, 0, 3, int64(1_700_000_000), int64(1_700_000_000)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO action_invocations").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	task := &Task{ID: "inv-1", Action: "transfer_ton", Arguments: []byte(`{"to":"EQdest","amount":"1"}`), Status: StatusPending, MaxRetries: 3}
	if err := store.Create(context.Background(), task); err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.CreatedAt != 1_700_000_000 {
		t.Fatalf("timestamps not stamped: %+v", task)
	}
	if err := store.Create(context.Background(), task); !errors.Is(err, ErrTaskConflict) {
		t.Fatalf("duplicate key should map to conflict, got %v", err)
	}
}

func TestMySQLStoreGet(t *testing.T) {
	store, mock := newMockStore(t)
	rows := sqlmock.NewRows(taskColumns).
		AddRow("inv-1", "get_wallet_details", nil, "succeeded", 1, 3, "", "", "Wallet Details", "testnet", "EQaddr", 42, 10, 20)
	mock.ExpectQuery(regexp.QuoteMeta("FROM action_invocations WHERE id = ?")).WithArgs("inv-1").WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("FROM action_invocations WHERE id = ?")).WithArgs("missing").WillReturnRows(sqlmock.NewRows(taskColumns))

	task, err := store.Get(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if task.Status != StatusSucceeded || task.Result == nil || task.Result.Output != "Wallet Details" || task.Result.DurationMillis != 42 {
		t.Fatalf("unexpected task %+v / %+v", task, task.Result)
	}
	if task.Arguments != nil {
		t.Fatalf("NULL arguments should stay nil")
	}
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMySQLStoreClaimReportsState(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE action_invocations SET status = \\?, attempts = attempts \\+ 1").
		WithArgs(StatusRunning, int64(1_700_000_000), "inv-1", StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM action_invocations WHERE id").WithArgs("inv-1").
		WillReturnRows(sqlmock.NewRows(taskColumns).
			AddRow("inv-1", "transfer_ton", `{}`, "failed", 3, 3, "boom", "ACTION", nil, "", "", 0, 10, 20))

	task, err := store.Claim(context.Background(), "inv-1")
	if !errors.Is(err, ErrTaskExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
	if task == nil || task.LastError != "boom" || task.Result != nil {
		t.Fatalf("unexpected task %+v", task)
	}
}

func TestMySQLStoreMarkFailed(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE action_invocations SET status = \\?, last_error").
		WithArgs(StatusPending, "liteserver timeout", "WALLET_PROVIDER", int64(1_700_000_000), "inv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE action_invocations SET status = \\?, last_error").
		WithArgs(StatusFailed, "gone", "ACTION", int64(1_700_000_000), "inv-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.MarkFailed(context.Background(), "inv-1", xerrors.CodeWalletProvider, "liteserver timeout", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkFailed(context.Background(), "inv-2", xerrors.CodeAction, "gone", true); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMySQLStoreListBuildsFilters(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status IN (?) AND action IN (?,?) AND (id LIKE ? OR action LIKE ? OR arguments LIKE ? OR last_error LIKE ? OR result_output LIKE ?) ORDER BY updated_at DESC, created_at DESC, id DESC LIMIT ? OFFSET ?")).
		WithArgs(StatusFailed, "transfer_ton", "ensure_wallet_deployed", "%EQ%", "%EQ%", "%EQ%", "%EQ%", "%EQ%", 5, 0).
		WillReturnRows(sqlmock.NewRows(taskColumns).
			AddRow("inv-3", "transfer_ton", `{"to":"EQx"}`, "failed", 1, 3, "rejected", "ACTION", nil, "", "", 0, 10, 30))

	tasks, err := store.List(context.Background(), BuildListOptions(
		WithStatuses(StatusFailed),
		WithActions("transfer_ton", "ensure_wallet_deployed"),
		WithQuery(" EQ "),
		WithLimit(5),
	))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || string(tasks[0].Arguments) != `{"to":"EQx"}` {
		t.Fatalf("unexpected tasks %+v", tasks)
	}
}

func TestMySQLStoreStats(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT\\s+COUNT\\(\\*\\)").
		WithArgs(StatusPending, StatusRunning, StatusSucceeded, StatusFailed, "transfer_ton").
		WillReturnRows(sqlmock.NewRows([]string{"total", "pending", "running", "succeeded", "failed", "oldest", "newest"}).
			AddRow(4, 1, 0, 2, 1, 100, 400))

	stats, err := store.Stats(context.Background(), BuildListOptions(WithActions("transfer_ton")))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := Stats{Total: 4, Pending: 1, Succeeded: 2, Failed: 1, OldestUpdatedAt: 100, NewestUpdatedAt: 400}
	if stats != want {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
