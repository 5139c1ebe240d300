package somnia

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	cfg := DefaultSQLiteStoreConfig()
	cfg.Path = filepath.Join(t.TempDir(), "somnia.db")
	store, err := NewSQLiteStore(cfg)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func storedRunResult(t *testing.T) *RunResult {
	t.Helper()
	p := NewPipeline(DefaultPipelineConfig())
	result, err := p.Run(context.Background(), pipelineInputs(6))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return result
}

func TestSQLiteStoreSaveLoad(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	result := storedRunResult(t)

	if err := store.SaveRun(ctx, result); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	loaded, err := store.LoadTable(ctx, result.RunID)
	if err != nil {
		t.Fatalf("LoadTable() error = %v", err)
	}

	if len(loaded.Rows) != len(result.Table.Rows) {
		t.Fatalf("got %d rows, want %d", len(loaded.Rows), len(result.Table.Rows))
	}

	columns := result.Table.Columns()
	for i := range result.Table.Rows {
		if loaded.Rows[i].UserID != result.Table.Rows[i].UserID {
			t.Fatalf("row %d user mismatch", i)
		}
		for _, col := range columns {
			if col == "Id" || col == "Date" {
				continue
			}
			want, got := result.Table.Value(i, col), loaded.Value(i, col)
			if want != got && !(math.IsNaN(want) && math.IsNaN(got)) {
				t.Errorf("row %d column %s: %v != %v", i, col, want, got)
			}
		}
	}
}

func TestSQLiteStoreLoadMissing(t *testing.T) {
	store := testStore(t)

	if _, err := store.LoadTable(context.Background(), "no-such-run"); err == nil {
		t.Fatal("expected error for missing run")
	}
}

func TestSQLiteStoreListAndDelete(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	first := storedRunResult(t)
	if err := store.SaveRun(ctx, first); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond) // distinct created_at ordering
	second := storedRunResult(t)
	if err := store.SaveRun(ctx, second); err != nil {
		t.Fatal(err)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].RunID != second.RunID {
		t.Errorf("most recent run first: got %s", runs[0].RunID)
	}
	if runs[0].Rows != len(second.Table.Rows) {
		t.Errorf("Rows = %d, want %d", runs[0].Rows, len(second.Table.Rows))
	}

	if err := store.DeleteRun(ctx, first.RunID); err != nil {
		t.Fatalf("DeleteRun() error = %v", err)
	}
	runs, err = store.ListRuns(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].RunID != second.RunID {
		t.Errorf("after delete: %+v", runs)
	}
	if _, err := store.LoadTable(ctx, first.RunID); err == nil {
		t.Error("deleted run still loadable")
	}
}

func TestSQLiteStoreClosed(t *testing.T) {
	store := testStore(t)
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	if err := store.SaveRun(context.Background(), storedRunResult(t)); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("SaveRun() after Close() error = %v, want ErrStoreClosed", err)
	}
	if _, err := store.ListRuns(context.Background()); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("ListRuns() after Close() error = %v, want ErrStoreClosed", err)
	}
}
