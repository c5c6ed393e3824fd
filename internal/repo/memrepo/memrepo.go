// Package memrepo — in-memory реализации репозиториев momo.
//
// Повторяют семантику internal/repo (условные обновления, конфликт
// уникальности, слияние execution_info) без Postgres. Используются
// в тестах и в режиме store.driver=memory для одиночного экземпляра.
package memrepo

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TNG/momo-scheduler-sub000/internal/domain"
	"github.com/TNG/momo-scheduler-sub000/internal/repo"
)

// LeaseRepo — аренды schedule в памяти.
type LeaseRepo struct {
	mu     sync.Mutex
	leases map[string]*domain.ScheduleLease
}

// NewLeaseRepo создаёт пустой LeaseRepo.
func NewLeaseRepo() *LeaseRepo {
	return &LeaseRepo{leases: make(map[string]*domain.ScheduleLease)}
}

// Get возвращает копию аренды.
func (r *LeaseRepo) Get(_ context.Context, name string) (*domain.ScheduleLease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lease, ok := r.leases[name]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return copyLease(lease), nil
}

// Acquire захватывает или продлевает аренду (см. repo.LeaseRepo.Acquire).
func (r *LeaseRepo) Acquire(_ context.Context, name, instanceID string, now, staleBefore time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lease, ok := r.leases[name]
	if !ok {
		r.leases[name] = &domain.ScheduleLease{
			Name:       name,
			InstanceID: instanceID,
			LastAlive:  now,
			Executions: make(map[string]int),
		}
		return nil
	}

	if lease.InstanceID != instanceID && !lease.LastAlive.Before(staleBefore) {
		return repo.ErrAlreadyExists
	}
	// Счётчики обнуляются только при смене владельца, не на каждом продлении.
	if lease.InstanceID != instanceID {
		lease.Executions = make(map[string]int)
	}
	lease.InstanceID = instanceID
	lease.LastAlive = now
	return nil
}

// Delete удаляет аренду, если она принадлежит instanceID.
func (r *LeaseRepo) Delete(_ context.Context, name, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lease, ok := r.leases[name]; ok && lease.InstanceID == instanceID {
		delete(r.leases, name)
	}
	return nil
}

// AddExecution — условный инкремент счётчика (см. repo.LeaseRepo.AddExecution).
func (r *LeaseRepo) AddExecution(_ context.Context, name, instanceID, job string, maxRunning int) (bool, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	refused := 0
	if maxRunning > 0 {
		refused = maxRunning
	}

	lease, ok := r.owned(name, instanceID)
	if !ok {
		return false, refused, nil
	}
	if maxRunning > 0 && lease.Executions[job] >= maxRunning {
		return false, refused, nil
	}
	lease.Executions[job]++
	return true, lease.Executions[job], nil
}

// RemoveExecution уменьшает счётчик без нижней границы.
func (r *LeaseRepo) RemoveExecution(_ context.Context, name, instanceID, job string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lease, ok := r.owned(name, instanceID); ok {
		lease.Executions[job]--
	}
	return nil
}

// CountExecutions возвращает счётчик job.
func (r *LeaseRepo) CountExecutions(_ context.Context, name, instanceID, job string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lease, ok := r.owned(name, instanceID); ok {
		return lease.Executions[job], nil
	}
	return 0, nil
}

// RemoveJobExecutions удаляет счётчик job.
func (r *LeaseRepo) RemoveJobExecutions(_ context.Context, name, instanceID, job string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lease, ok := r.owned(name, instanceID); ok {
		delete(lease.Executions, job)
	}
	return nil
}

func (r *LeaseRepo) owned(name, instanceID string) (*domain.ScheduleLease, bool) {
	lease, ok := r.leases[name]
	if !ok || lease.InstanceID != instanceID {
		return nil, false
	}
	return lease, true
}

func copyLease(l *domain.ScheduleLease) *domain.ScheduleLease {
	c := *l
	c.Executions = maps.Clone(l.Executions)
	if c.Executions == nil {
		c.Executions = make(map[string]int)
	}
	return &c
}

// JobRepo — jobs в памяти.
//
// Как и в Postgres, имя не уникально: Put позволяет воспроизвести
// дубли, которые Define потом схлопывает.
type JobRepo struct {
	mu      sync.Mutex
	records []record
}

type record struct {
	job     domain.Job
	created int
}

// NewJobRepo создаёт пустой JobRepo.
func NewJobRepo() *JobRepo {
	return &JobRepo{}
}

// Put добавляет запись как есть, минуя Define.
func (r *JobRepo) Put(job domain.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	r.records = append(r.records, record{job: copyJob(job), created: len(r.records)})
}

// Define создаёт или обновляет определение job (см. repo.JobRepo.Define).
func (r *JobRepo) Define(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.byName(job.Name)
	if len(idx) == 0 {
		if job.ID == uuid.Nil {
			job.ID = uuid.New()
		}
		stored := copyJob(*job)
		stored.ExecutionInfo = nil
		r.records = append(r.records, record{job: stored, created: len(r.records)})
		return nil
	}

	keepID := r.records[idx[0]].job.ID
	kept := r.records[:0]
	for _, rec := range r.records {
		if rec.job.Name == job.Name && rec.job.ID != keepID {
			continue
		}
		if rec.job.ID == keepID {
			rec.job.Schedule = job.Schedule
			rec.job.Concurrency = job.Concurrency
			rec.job.MaxRunning = job.MaxRunning
			rec.job.Timeout = job.Timeout
			rec.job.Parameters = maps.Clone(job.Parameters)
		}
		kept = append(kept, rec)
	}
	r.records = kept
	job.ID = keepID
	return nil
}

// Get возвращает job по имени.
func (r *JobRepo) Get(_ context.Context, name string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.byName(name)
	if len(idx) == 0 {
		return nil, repo.ErrNotFound
	}
	job := copyJob(r.records[idx[0]].job)
	return &job, nil
}

// List возвращает все jobs, по одной записи на имя, отсортированные по имени.
func (r *JobRepo) List(_ context.Context) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool)
	var jobs []domain.Job
	for _, rec := range r.records {
		if seen[rec.job.Name] {
			continue
		}
		seen[rec.job.Name] = true
		jobs = append(jobs, copyJob(r.records[r.byName(rec.job.Name)[0]].job))
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs, nil
}

// UpdateExecutionInfo записывает результат выполнения во все записи с этим именем.
func (r *JobRepo) UpdateExecutionInfo(_ context.Context, name string, info domain.ExecutionInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	for i := range r.records {
		if r.records[i].job.Name == name {
			info := info
			r.records[i].job.ExecutionInfo = &info
			found = true
		}
	}
	if !found {
		return repo.ErrNotFound
	}
	return nil
}

// Delete удаляет все записи с этим именем.
func (r *JobRepo) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.records[:0]
	for _, rec := range r.records {
		if rec.job.Name != name {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(r.records) {
		return repo.ErrNotFound
	}
	r.records = kept
	return nil
}

// Count возвращает число записей с этим именем, включая дубли.
func (r *JobRepo) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byName(name))
}

// byName возвращает индексы записей с именем в порядке предпочтения:
// позднее last_finished первым, без него — в конце, затем по порядку создания.
func (r *JobRepo) byName(name string) []int {
	var idx []int
	for i, rec := range r.records {
		if rec.job.Name == name {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := r.records[idx[a]], r.records[idx[b]]
		fa, fb := ra.job.LastFinished(), rb.job.LastFinished()
		switch {
		case ra.job.ExecutionInfo == nil && rb.job.ExecutionInfo == nil:
			return ra.created < rb.created
		case ra.job.ExecutionInfo == nil:
			return false
		case rb.job.ExecutionInfo == nil:
			return true
		case !fa.Equal(fb):
			return fa.After(fb)
		default:
			return ra.created < rb.created
		}
	})
	return idx
}

func copyJob(j domain.Job) domain.Job {
	c := j
	c.Parameters = maps.Clone(j.Parameters)
	if j.ExecutionInfo != nil {
		info := *j.ExecutionInfo
		c.ExecutionInfo = &info
	}
	return c
}
