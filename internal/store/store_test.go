package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/pavelanni/mockexam/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	f, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return f
}

func testAttempt(id string, score, max float64) model.ExamAttempt {
	return model.ExamAttempt{
		ID:        id,
		Subject:   model.SubjectBiology,
		Timestamp: 1700000000000,
		Score:     score,
		MaxScore:  max,
	}
}

func TestBlobStores(t *testing.T) {
	ctx := context.Background()
	stores := map[string]Blobs{
		"sqlite": newTestStore(t),
		"file":   newTestFileStore(t),
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			// Missing key.
			data, ok, err := s.Get(ctx, "missing")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if ok || data != nil {
				t.Errorf("expected absent key, got ok=%v data=%q", ok, data)
			}

			// Set and get.
			if err := s.Set(ctx, "k1", []byte(`[1]`)); err != nil {
				t.Fatalf("Set: %v", err)
			}
			data, ok, err = s.Get(ctx, "k1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !ok || string(data) != `[1]` {
				t.Errorf("expected [1], got ok=%v data=%q", ok, data)
			}

			// Overwrite.
			if err := s.Set(ctx, "k1", []byte(`[1,2]`)); err != nil {
				t.Fatalf("Set overwrite: %v", err)
			}
			data, _, _ = s.Get(ctx, "k1")
			if string(data) != `[1,2]` {
				t.Errorf("expected [1,2], got %q", data)
			}
		})
	}
}

func TestFileStoreRejectsPathKeys(t *testing.T) {
	f := newTestFileStore(t)
	if err := f.Set(context.Background(), "../escape", []byte("x")); err == nil {
		t.Error("expected error for key with path separators")
	}
}

func TestAttemptLogAppendOnly(t *testing.T) {
	ctx := context.Background()
	log := NewAttemptLog(newTestStore(t))

	all, err := log.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty history, got %d", len(all))
	}

	first := testAttempt("a1", 3, 10)
	if err := log.Append(ctx, first); err != nil {
		t.Fatalf("Append: %v", err)
	}
	second := testAttempt("a2", 7, 10)
	if err := log.Append(ctx, second); err != nil {
		t.Fatalf("Append: %v", err)
	}

	all, err = log.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(all))
	}
	if all[0] != first {
		t.Errorf("prior entry changed: got %+v, want %+v", all[0], first)
	}
	if all[1] != second {
		t.Errorf("appended entry = %+v, want %+v", all[1], second)
	}
}

func TestAttemptLogRejectsInvalidScores(t *testing.T) {
	ctx := context.Background()
	log := NewAttemptLog(newTestStore(t))

	for _, a := range []model.ExamAttempt{
		testAttempt("neg", -1, 10),
		testAttempt("over", 11, 10),
		testAttempt("nomax", 0, 0),
	} {
		if err := log.Append(ctx, a); !errors.Is(err, model.ErrInvalidAttempt) {
			t.Errorf("Append(%s) error = %v, want ErrInvalidAttempt", a.ID, err)
		}
	}
	all, _ := log.ReadAll(ctx)
	if len(all) != 0 {
		t.Errorf("invalid attempts were stored: %v", all)
	}
}

func TestAttemptLogCorruptBlob(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)
	if err := s.Set(ctx, AttemptsKey, []byte(`{not json`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	log := NewAttemptLog(s)

	all, err := log.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected empty history for corrupt blob, got %d", len(all))
	}

	if err := log.Append(ctx, testAttempt("a1", 1, 2)); !errors.Is(err, ErrCorruptLog) {
		t.Errorf("Append error = %v, want ErrCorruptLog", err)
	}
	data, _, _ := s.Get(ctx, AttemptsKey)
	if string(data) != `{not json` {
		t.Errorf("corrupt blob was overwritten: %q", data)
	}
}

func TestAttemptLogReadsBrowserFormat(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	raw := `[{"id":"1700000000000","subject":"Physics (0625)","score":4,"maxScore":5,"timestamp":1700000000000,"topic":"Waves"}]`
	if err := s.Set(ctx, AttemptsKey, []byte(raw)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	all, err := NewAttemptLog(s).ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(all))
	}
	a := all[0]
	if a.Subject != model.SubjectPhysics || a.Score != 4 || a.MaxScore != 5 || a.Topic != "Waves" {
		t.Errorf("unexpected attempt %+v", a)
	}
}

func TestAttemptLogRecent(t *testing.T) {
	ctx := context.Background()
	log := NewAttemptLog(newTestStore(t))
	for i := 0; i < 12; i++ {
		if err := log.Append(ctx, testAttempt(fmt.Sprintf("a%d", i), float64(i), 20)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	recent, err := log.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 10 {
		t.Fatalf("expected 10 attempts, got %d", len(recent))
	}
	if recent[0].ID != "a2" || recent[9].ID != "a11" {
		t.Errorf("expected a2..a11, got %s..%s", recent[0].ID, recent[9].ID)
	}
}

func TestAttemptLogConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	log := NewAttemptLog(newTestFileStore(t))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := log.Append(ctx, testAttempt(fmt.Sprintf("a%d", i), 1, 1)); err != nil {
				t.Errorf("Append: %v", err)
			}
		}(i)
	}
	wg.Wait()

	all, _ := log.ReadAll(ctx)
	if len(all) != 20 {
		t.Errorf("expected 20 attempts, got %d", len(all))
	}
}
