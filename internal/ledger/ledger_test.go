package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/TNG/momo-scheduler-sub000/internal/repo/memrepo"
)

func newHeldLedger(t *testing.T) (*Ledger, *memrepo.LeaseRepo) {
	t.Helper()
	store := memrepo.NewLeaseRepo()
	now := time.Now()
	if err := store.Acquire(context.Background(), "sched", "inst", now, now); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	return New(store, "sched", "inst"), store
}

func TestLedger_Unbounded(t *testing.T) {
	ctx := context.Background()
	l, _ := newHeldLedger(t)

	for want := 1; want <= 3; want++ {
		added, running, err := l.AddExecution(ctx, "job", 0)
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		if !added || running != want {
			t.Fatalf("expected added with running=%d, got added=%v running=%d", want, added, running)
		}
	}
}

func TestLedger_BoundedRefusal(t *testing.T) {
	ctx := context.Background()
	l, _ := newHeldLedger(t)

	for i := 0; i < 2; i++ {
		if added, _, _ := l.AddExecution(ctx, "job", 2); !added {
			t.Fatalf("admission %d should succeed", i)
		}
	}

	added, running, err := l.AddExecution(ctx, "job", 2)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added || running != 2 {
		t.Fatalf("expected refusal with running=2, got added=%v running=%d", added, running)
	}

	count, _ := l.CountRunningExecutions(ctx, "job")
	if count != 2 {
		t.Fatalf("refusal must not mutate counter, got %d", count)
	}
}

func TestLedger_IncrementsMinusDecrements(t *testing.T) {
	ctx := context.Background()
	l, _ := newHeldLedger(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(release bool) {
			defer wg.Done()
			added, _, err := l.AddExecution(ctx, "job", 5)
			if err != nil {
				t.Errorf("add: %v", err)
				return
			}
			if !added {
				return
			}
			if release {
				if err := l.RemoveExecution(ctx, "job"); err != nil {
					t.Errorf("remove: %v", err)
				}
				return
			}
			mu.Lock()
			admitted++
			mu.Unlock()
		}(i%2 == 0)
	}
	wg.Wait()

	count, _ := l.CountRunningExecutions(ctx, "job")
	if count != admitted {
		t.Fatalf("counter %d != held admissions %d", count, admitted)
	}
	if count > 5 {
		t.Fatalf("counter %d exceeds ceiling", count)
	}
}

func TestLedger_RemoveWithoutAddGoesNegative(t *testing.T) {
	ctx := context.Background()
	l, _ := newHeldLedger(t)

	if err := l.RemoveExecution(ctx, "job"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	count, _ := l.CountRunningExecutions(ctx, "job")
	if count != -1 {
		t.Fatalf("expected unclamped -1, got %d", count)
	}

	if err := l.RemoveJob(ctx, "job"); err != nil {
		t.Fatalf("remove job: %v", err)
	}
	count, _ = l.CountRunningExecutions(ctx, "job")
	if count != 0 {
		t.Fatalf("expected 0 after RemoveJob, got %d", count)
	}
}

func TestLedger_NotHolder(t *testing.T) {
	ctx := context.Background()
	_, store := newHeldLedger(t)
	other := New(store, "sched", "other")

	added, running, err := other.AddExecution(ctx, "job", 3)
	if err != nil || added || running != 3 {
		t.Fatalf("non-holder must be refused: added=%v running=%d err=%v", added, running, err)
	}
}

type failingStore struct{ memrepo.LeaseRepo }

var errDown = errors.New("store down")

func (*failingStore) AddExecution(context.Context, string, string, string, int) (bool, int, error) {
	return false, 0, errDown
}

func TestLedger_WrapsStoreErrors(t *testing.T) {
	l := New(&failingStore{}, "sched", "inst")
	if _, _, err := l.AddExecution(context.Background(), "job", 1); !errors.Is(err, errDown) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}
