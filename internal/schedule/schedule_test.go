package schedule

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TNG/momo-scheduler-sub000/internal/domain"
	"github.com/TNG/momo-scheduler-sub000/internal/executor"
	"github.com/TNG/momo-scheduler-sub000/internal/repo/memrepo"
)

type stores struct {
	leases *memrepo.LeaseRepo
	jobs   *memrepo.JobRepo
}

func newStores() stores {
	return stores{leases: memrepo.NewLeaseRepo(), jobs: memrepo.NewJobRepo()}
}

func newSchedule(st stores, instanceID string) *Schedule {
	return New(Config{
		Name:              "test-schedule",
		InstanceID:        instanceID,
		HeartbeatInterval: 20 * time.Millisecond,
		Leases:            st.leases,
		Jobs:              st.jobs,
	})
}

// failingJobs отказывает в Get для выбранных jobs: failures[name]
// первых вызовов (-1: всегда). Отменённый ctx соблюдается, как в pgx.
type failingJobs struct {
	*memrepo.JobRepo

	mu       sync.Mutex
	failures map[string]int
}

func (f *failingJobs) Get(ctx context.Context, name string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	left := f.failures[name]
	if left > 0 {
		f.failures[name] = left - 1
	}
	f.mu.Unlock()
	if left != 0 {
		return nil, errors.New("connection reset")
	}
	return f.JobRepo.Get(ctx, name)
}

func newScheduleWithJobs(st stores, jobs JobStore) *Schedule {
	return New(Config{
		Name:              "test-schedule",
		InstanceID:        "a",
		HeartbeatInterval: 20 * time.Millisecond,
		Leases:            st.leases,
		Jobs:              jobs,
	})
}

func counting(n *atomic.Int32) executor.Handler {
	return func(context.Context, map[string]any) (string, error) {
		n.Add(1)
		return "", nil
	}
}

func TestDefine_Invalid(t *testing.T) {
	s := newSchedule(newStores(), "a")
	ctx := context.Background()
	var n atomic.Int32

	tests := []struct {
		name string
		def  JobDefinition
	}{
		{"no name", JobDefinition{Schedule: domain.NeverSchedule()}},
		{"concurrency above max running", JobDefinition{Name: "j", Concurrency: 3, MaxRunning: 2, Schedule: domain.NeverSchedule()}},
		{"bad interval", JobDefinition{Name: "j", Schedule: domain.IntervalSchedule("soon", 0)}},
		{"bad cron", JobDefinition{Name: "j", Schedule: domain.CronSchedule("every tuesday")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Define(ctx, tt.def, counting(&n)); !errors.Is(err, domain.ErrInvalidJob) {
				t.Errorf("expected ErrInvalidJob, got %v", err)
			}
		})
	}

	if err := s.Define(ctx, JobDefinition{Name: "j", Schedule: domain.NeverSchedule()}, nil); !errors.Is(err, domain.ErrInvalidJob) {
		t.Errorf("missing handler: expected ErrInvalidJob, got %v", err)
	}
	if s.Count(false) != 0 {
		t.Errorf("invalid definitions must not be registered, got %d", s.Count(false))
	}
}

func TestStart_RunsDefinedJobs(t *testing.T) {
	st := newStores()
	s := newSchedule(st, "a")
	ctx := context.Background()
	var n atomic.Int32

	if err := s.Define(ctx, JobDefinition{Name: "job", Schedule: domain.IntervalSchedule("1h", 0)}, counting(&n)); err != nil {
		t.Fatalf("define: %v", err)
	}
	if s.Count(true) != 0 {
		t.Fatal("job must not start before the schedule starts")
	}

	s.Start(ctx)
	defer s.Stop(ctx)

	time.Sleep(50 * time.Millisecond)
	if !s.IsActive() {
		t.Fatal("single instance should become active")
	}
	if n.Load() != 1 {
		t.Errorf("expected one execution, got %d", n.Load())
	}
	if s.Count(true) != 1 {
		t.Errorf("expected 1 started job, got %d", s.Count(true))
	}
}

func TestDefine_WhileActiveStartsJob(t *testing.T) {
	s := newSchedule(newStores(), "a")
	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	var n atomic.Int32
	if err := s.Define(ctx, JobDefinition{Name: "late", Schedule: domain.IntervalSchedule("1h", 0)}, counting(&n)); err != nil {
		t.Fatalf("define: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	if n.Load() != 1 {
		t.Errorf("job defined on an active schedule should start, got %d executions", n.Load())
	}
}

func TestTwoInstances_OnlyOneActive(t *testing.T) {
	st := newStores()
	ctx := context.Background()
	a := newSchedule(st, "a")
	b := newSchedule(st, "b")
	var runsA, runsB atomic.Int32

	def := JobDefinition{Name: "job", Schedule: domain.IntervalSchedule("20ms", 0)}
	if err := a.Define(ctx, def, counting(&runsA)); err != nil {
		t.Fatalf("define a: %v", err)
	}
	if err := b.Define(ctx, def, counting(&runsB)); err != nil {
		t.Fatalf("define b: %v", err)
	}

	a.Start(ctx)
	b.Start(ctx)
	defer b.Stop(ctx)

	time.Sleep(100 * time.Millisecond)
	if !a.IsActive() || b.IsActive() {
		t.Fatalf("expected only a active: a=%v b=%v", a.IsActive(), b.IsActive())
	}
	if runsA.Load() == 0 || runsB.Load() != 0 {
		t.Fatalf("only a should execute: a=%d b=%d", runsA.Load(), runsB.Load())
	}

	if err := a.Stop(ctx); err != nil {
		t.Fatalf("stop a: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if !b.IsActive() {
		t.Fatal("b should take over after a released the lease")
	}
	if runsB.Load() == 0 {
		t.Error("b should execute after takeover")
	}
	if st.jobs.Count("job") != 1 {
		t.Errorf("expected a single job record, got %d", st.jobs.Count("job"))
	}
}

func TestRun(t *testing.T) {
	s := newSchedule(newStores(), "a")
	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	var got atomic.Value
	handler := func(_ context.Context, params map[string]any) (string, error) {
		got.Store(params["x"])
		return "ran", nil
	}
	if err := s.Define(ctx, JobDefinition{Name: "manual", Schedule: domain.NeverSchedule(), Parameters: map[string]any{"x": 1}}, handler); err != nil {
		t.Fatalf("define: %v", err)
	}

	result, err := s.Run(ctx, "manual", nil, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != domain.ExecutionStatusFinished || result.HandlerResult != "ran" {
		t.Errorf("unexpected result: %+v", result)
	}

	result, err = s.Run(ctx, "manual", map[string]any{"x": "delayed"}, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("delayed run: %v", err)
	}
	if result.Status != "" {
		t.Errorf("delayed run should return an empty result, got %+v", result)
	}
	time.Sleep(60 * time.Millisecond)
	if got.Load() != "delayed" {
		t.Errorf("delayed run did not execute, got %v", got.Load())
	}

	if _, err := s.Run(ctx, "missing", nil, 0); !errors.Is(err, ErrJobNotDefined) {
		t.Errorf("expected ErrJobNotDefined, got %v", err)
	}
}

func TestStartStopJob(t *testing.T) {
	st := newStores()
	ctx := context.Background()
	s := newSchedule(st, "a")
	var n atomic.Int32
	if err := s.Define(ctx, JobDefinition{Name: "job", Schedule: domain.IntervalSchedule("1h", time.Hour)}, counting(&n)); err != nil {
		t.Fatalf("define: %v", err)
	}

	if err := s.StartJob(ctx, "job"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive before start, got %v", err)
	}

	s.Start(ctx)
	defer s.Stop(ctx)

	if err := s.StopJob(ctx, "job"); err != nil {
		t.Fatalf("stop job: %v", err)
	}
	if s.Count(true) != 0 {
		t.Error("job should be stopped")
	}
	if err := s.StartJob(ctx, "job"); err != nil {
		t.Fatalf("start job: %v", err)
	}
	if s.Count(true) != 1 {
		t.Error("job should be started")
	}
	if err := s.StopJob(ctx, "missing"); !errors.Is(err, ErrJobNotDefined) {
		t.Errorf("expected ErrJobNotDefined, got %v", err)
	}
}

func TestCancelAndRemove(t *testing.T) {
	st := newStores()
	ctx := context.Background()
	s := newSchedule(st, "a")
	var n atomic.Int32
	for _, name := range []string{"one", "two", "three"} {
		if err := s.Define(ctx, JobDefinition{Name: name, Schedule: domain.NeverSchedule()}, counting(&n)); err != nil {
			t.Fatalf("define %s: %v", name, err)
		}
	}

	if err := s.CancelJob(ctx, "one"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := s.Get(ctx, "one"); !errors.Is(err, ErrJobNotDefined) {
		t.Errorf("cancelled job should be forgotten, got %v", err)
	}
	if st.jobs.Count("one") != 1 {
		t.Error("cancel must keep the stored record")
	}

	if err := s.RemoveJob(ctx, "two"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if st.jobs.Count("two") != 0 {
		t.Error("remove must delete the stored record")
	}

	if err := s.Remove(ctx); err != nil {
		t.Fatalf("remove all: %v", err)
	}
	if s.Count(false) != 0 || st.jobs.Count("three") != 0 {
		t.Errorf("remove all left jobs behind: count=%d", s.Count(false))
	}
}

func TestListAndStatus(t *testing.T) {
	ctx := context.Background()
	s := newSchedule(newStores(), "a")
	var n atomic.Int32
	for _, name := range []string{"b-job", "a-job"} {
		if err := s.Define(ctx, JobDefinition{Name: name, Schedule: domain.IntervalSchedule("1h", time.Hour)}, counting(&n)); err != nil {
			t.Fatalf("define: %v", err)
		}
	}

	s.Start(ctx)
	defer s.Stop(ctx)

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Name != "a-job" || list[1].Name != "b-job" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if list[0].SchedulerStatus == nil {
		t.Error("started job should carry scheduler status")
	}

	status, err := s.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Name != "test-schedule" || status.InstanceID != "a" || !status.Active {
		t.Errorf("unexpected status: %+v", status)
	}
	if status.Lease == nil || status.Lease.InstanceID != "a" {
		t.Errorf("status should carry our lease: %+v", status.Lease)
	}
	if status.Jobs != 2 || status.StartedJobs != 2 {
		t.Errorf("unexpected job counts: %+v", status)
	}
}

func TestStop_WaitsForInFlight(t *testing.T) {
	st := newStores()
	ctx := context.Background()
	s := newSchedule(st, "a")

	var finished atomic.Bool
	handler := func(context.Context, map[string]any) (string, error) {
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		return "", nil
	}
	if err := s.Define(ctx, JobDefinition{Name: "slow", Schedule: domain.IntervalSchedule("1h", 0)}, handler); err != nil {
		t.Fatalf("define: %v", err)
	}

	s.Start(ctx)
	time.Sleep(10 * time.Millisecond)

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !finished.Load() {
		t.Error("stop should wait for the in-flight execution")
	}
	job, _ := st.jobs.Get(ctx, "slow")
	if job.ExecutionInfo == nil {
		t.Error("in-flight result should be persisted before the lease is released")
	}
	if _, err := st.leases.Get(ctx, "test-schedule"); err == nil {
		t.Error("stop should release the lease")
	}
}

func TestStart_OneFailingJobDoesNotBlockOthers(t *testing.T) {
	st := newStores()
	jobs := &failingJobs{JobRepo: st.jobs, failures: map[string]int{"bad": -1}}
	s := newScheduleWithJobs(st, jobs)
	ctx := context.Background()

	var bad, good atomic.Int32
	if err := s.Define(ctx, JobDefinition{Name: "bad", Schedule: domain.IntervalSchedule("1h", 0)}, counting(&bad)); err != nil {
		t.Fatalf("define bad: %v", err)
	}
	if err := s.Define(ctx, JobDefinition{Name: "good", Schedule: domain.IntervalSchedule("1h", 0)}, counting(&good)); err != nil {
		t.Fatalf("define good: %v", err)
	}

	s.Start(ctx)
	defer s.Stop(ctx)
	time.Sleep(60 * time.Millisecond)

	if !s.IsActive() {
		t.Fatal("schedule should be active")
	}
	if s.Count(true) != 1 {
		t.Errorf("expected only good to be started, got %d started jobs", s.Count(true))
	}
	if good.Load() != 1 {
		t.Errorf("good should run once, got %d", good.Load())
	}
	if bad.Load() != 0 {
		t.Errorf("bad must not run, got %d", bad.Load())
	}
	if n := s.UnexpectedErrorCount("bad"); n != 1 {
		t.Errorf("failed start should be counted once, got %d", n)
	}
}

func TestStart_FailedJobRestartsAfterTimeout(t *testing.T) {
	st := newStores()
	jobs := &failingJobs{JobRepo: st.jobs, failures: map[string]int{"flaky": 1}}
	s := newScheduleWithJobs(st, jobs)
	ctx := context.Background()

	var n atomic.Int32
	def := JobDefinition{Name: "flaky", Timeout: 50 * time.Millisecond, Schedule: domain.IntervalSchedule("1h", 0)}
	if err := s.Define(ctx, def, counting(&n)); err != nil {
		t.Fatalf("define: %v", err)
	}

	s.Start(ctx)
	defer s.Stop(ctx)

	time.Sleep(20 * time.Millisecond)
	if got := s.UnexpectedErrorCount("flaky"); got != 1 {
		t.Fatalf("expected 1 unexpected error, got %d", got)
	}
	if s.Count(true) != 0 || n.Load() != 0 {
		t.Fatalf("job must wait for the restart: started=%d executions=%d", s.Count(true), n.Load())
	}

	time.Sleep(100 * time.Millisecond)
	if s.Count(true) != 1 {
		t.Error("job should be started after the timeout")
	}
	if n.Load() != 1 {
		t.Errorf("expected one execution after restart, got %d", n.Load())
	}
}

func TestStop_WaitsForReplacedDefinition(t *testing.T) {
	st := newStores()
	ctx := context.Background()
	s := newSchedule(st, "a")

	var finished atomic.Bool
	slow := func(context.Context, map[string]any) (string, error) {
		time.Sleep(60 * time.Millisecond)
		finished.Store(true)
		return "", nil
	}
	if err := s.Define(ctx, JobDefinition{Name: "job", Schedule: domain.IntervalSchedule("1h", 0)}, slow); err != nil {
		t.Fatalf("define: %v", err)
	}

	s.Start(ctx)
	time.Sleep(10 * time.Millisecond)

	var n atomic.Int32
	if err := s.Define(ctx, JobDefinition{Name: "job", Schedule: domain.IntervalSchedule("1h", 0)}, counting(&n)); err != nil {
		t.Fatalf("redefine: %v", err)
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !finished.Load() {
		t.Error("stop should wait for executions started under the replaced definition")
	}
}
