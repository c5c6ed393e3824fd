// Package ledger ведёт учёт выполняющихся экземпляров job.
//
// Счётчики живут в строке аренды schedule и доступны только её
// владельцу: все операции фильтруются по (имя schedule, instance id).
// Ledger — единственный механизм, ограничивающий max_running по кластеру.
package ledger

import (
	"context"
	"fmt"
)

// Store — хранилище счётчиков (repo.LeaseRepo или memrepo.LeaseRepo).
type Store interface {
	AddExecution(ctx context.Context, name, instanceID, job string, maxRunning int) (bool, int, error)
	RemoveExecution(ctx context.Context, name, instanceID, job string) error
	CountExecutions(ctx context.Context, name, instanceID, job string) (int, error)
	RemoveJobExecutions(ctx context.Context, name, instanceID, job string) error
}

// Ledger — счётчики выполнений, привязанные к аренде одного экземпляра.
type Ledger struct {
	store      Store
	name       string
	instanceID string
}

// New создаёт Ledger для schedule name, принадлежащего instanceID.
func New(store Store, name, instanceID string) *Ledger {
	return &Ledger{store: store, name: name, instanceID: instanceID}
}

// AddExecution пытается занять слот выполнения job.
//
// maxRunning <= 0 — всегда успешно, возвращает счётчик после инкремента.
// Иначе успешно, только если счётчика нет или он меньше maxRunning;
// при отказе возвращает (false, maxRunning) и ничего не меняет.
func (l *Ledger) AddExecution(ctx context.Context, job string, maxRunning int) (bool, int, error) {
	added, running, err := l.store.AddExecution(ctx, l.name, l.instanceID, job, maxRunning)
	if err != nil {
		return false, 0, fmt.Errorf("ledger add %s: %w", job, err)
	}
	return added, running, nil
}

// RemoveExecution освобождает слот. Счётчик не ограничен снизу.
func (l *Ledger) RemoveExecution(ctx context.Context, job string) error {
	if err := l.store.RemoveExecution(ctx, l.name, l.instanceID, job); err != nil {
		return fmt.Errorf("ledger remove %s: %w", job, err)
	}
	return nil
}

// CountRunningExecutions возвращает текущий счётчик job (0 по умолчанию).
func (l *Ledger) CountRunningExecutions(ctx context.Context, job string) (int, error) {
	running, err := l.store.CountExecutions(ctx, l.name, l.instanceID, job)
	if err != nil {
		return 0, fmt.Errorf("ledger count %s: %w", job, err)
	}
	return running, nil
}

// RemoveJob удаляет счётчик job целиком.
func (l *Ledger) RemoveJob(ctx context.Context, job string) error {
	if err := l.store.RemoveJobExecutions(ctx, l.name, l.instanceID, job); err != nil {
		return fmt.Errorf("ledger remove job %s: %w", job, err)
	}
	return nil
}
