package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TNG/momo-scheduler-sub000/internal/domain"
)

// LeaseRepo — репозиторий аренды schedule и счётчиков выполнений.
//
// Все изменения — одиночные атомарные UPDATE/INSERT по одной строке,
// без транзакций: корректность держится на атомарности строки
// и первичном ключе по name.
type LeaseRepo struct {
	pool *pgxpool.Pool
}

// NewLeaseRepo создаёт новый LeaseRepo.
func NewLeaseRepo(pool *pgxpool.Pool) *LeaseRepo {
	return &LeaseRepo{pool: pool}
}

// Get возвращает аренду по имени schedule.
func (r *LeaseRepo) Get(ctx context.Context, name string) (*domain.ScheduleLease, error) {
	var lease domain.ScheduleLease
	var executionsJSON []byte

	err := r.pool.QueryRow(ctx, `
		SELECT name, instance_id, last_alive, executions
		FROM schedule_leases
		WHERE name = $1
	`, name).Scan(&lease.Name, &lease.InstanceID, &lease.LastAlive, &executionsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lease: %w", err)
	}

	lease.Executions = make(map[string]int)
	if executionsJSON != nil {
		if err := json.Unmarshal(executionsJSON, &lease.Executions); err != nil {
			return nil, fmt.Errorf("unmarshal executions: %w", err)
		}
	}
	return &lease, nil
}

// Acquire пытается захватить или продлить аренду.
//
// Сначала условный UPDATE: строка наша или протухла (last_alive < staleBefore).
// Счётчики сбрасываются, только если аренда переходит к другому экземпляру.
// Если ничего не обновилось — INSERT; конфликт по name означает, что
// аренда занята живым владельцем или другой экземпляр успел раньше:
// возвращается ErrAlreadyExists.
func (r *LeaseRepo) Acquire(ctx context.Context, name, instanceID string, now, staleBefore time.Time) error {
	// executions обнуляется только при смене владельца: сброс на каждом
	// продлении терял бы счётчики выполняющихся jobs.
	result, err := r.pool.Exec(ctx, `
		UPDATE schedule_leases
		SET instance_id = $2,
		    last_alive  = $3,
		    executions  = CASE WHEN instance_id = $2 THEN executions ELSE '{}'::jsonb END
		WHERE name = $1
		  AND (instance_id = $2 OR last_alive < $4)
	`, name, instanceID, now, staleBefore)
	if err != nil {
		return fmt.Errorf("update lease: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO schedule_leases (name, instance_id, last_alive, executions)
		VALUES ($1, $2, $3, '{}'::jsonb)
	`, name, instanceID, now)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert lease: %w", err)
	}
	return nil
}

// Delete удаляет аренду, если она принадлежит instanceID.
func (r *LeaseRepo) Delete(ctx context.Context, name, instanceID string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM schedule_leases WHERE name = $1 AND instance_id = $2
	`, name, instanceID)
	if err != nil {
		return fmt.Errorf("delete lease: %w", err)
	}
	return nil
}

// AddExecution атомарно увеличивает счётчик выполнений job.
//
// maxRunning <= 0 — без ограничения. Иначе инкремент проходит, только если
// счётчика нет или он < maxRunning. При отказе возвращает (false, maxRunning).
// Если аренда не наша — ничего не меняет и возвращает added=false.
func (r *LeaseRepo) AddExecution(ctx context.Context, name, instanceID, job string, maxRunning int) (bool, int, error) {
	query := `
		UPDATE schedule_leases
		SET executions = jsonb_set(executions, ARRAY[$3::text],
		                           to_jsonb(COALESCE((executions->>$3::text)::int, 0) + 1))
		WHERE name = $1 AND instance_id = $2
		RETURNING (executions->>$3::text)::int
	`
	args := []any{name, instanceID, job}
	refused := 0

	if maxRunning > 0 {
		query = `
			UPDATE schedule_leases
			SET executions = jsonb_set(executions, ARRAY[$3::text],
			                           to_jsonb(COALESCE((executions->>$3::text)::int, 0) + 1))
			WHERE name = $1 AND instance_id = $2
			  AND COALESCE((executions->>$3::text)::int, 0) < $4
			RETURNING (executions->>$3::text)::int
		`
		args = append(args, maxRunning)
		refused = maxRunning
	}

	var running int
	err := r.pool.QueryRow(ctx, query, args...).Scan(&running)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, refused, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("add execution: %w", err)
	}
	return true, running, nil
}

// RemoveExecution уменьшает счётчик выполнений job на 1.
// Нижней границы нет: декремент без парного инкремента уводит счётчик в минус.
func (r *LeaseRepo) RemoveExecution(ctx context.Context, name, instanceID, job string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE schedule_leases
		SET executions = jsonb_set(executions, ARRAY[$3::text],
		                           to_jsonb(COALESCE((executions->>$3::text)::int, 0) - 1))
		WHERE name = $1 AND instance_id = $2
	`, name, instanceID, job)
	if err != nil {
		return fmt.Errorf("remove execution: %w", err)
	}
	return nil
}

// CountExecutions возвращает счётчик выполнений job (0, если его нет).
func (r *LeaseRepo) CountExecutions(ctx context.Context, name, instanceID, job string) (int, error) {
	var running int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE((executions->>$3::text)::int, 0)
		FROM schedule_leases
		WHERE name = $1 AND instance_id = $2
	`, name, instanceID, job).Scan(&running)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count executions: %w", err)
	}
	return running, nil
}

// RemoveJobExecutions удаляет счётчик job целиком.
func (r *LeaseRepo) RemoveJobExecutions(ctx context.Context, name, instanceID, job string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE schedule_leases
		SET executions = executions - $3::text
		WHERE name = $1 AND instance_id = $2
	`, name, instanceID, job)
	if err != nil {
		return fmt.Errorf("remove job executions: %w", err)
	}
	return nil
}
