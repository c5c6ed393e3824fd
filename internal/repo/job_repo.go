package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TNG/momo-scheduler-sub000/internal/domain"
)

// JobRepo — репозиторий для работы с jobs.
type JobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

const jobColumns = `id, name, schedule, concurrency, max_running, timeout_ms, parameters, execution_info`

// Порядок выбора среди дублей: самое позднее last_finished, записи без него — в конце.
const jobPreference = `(execution_info->>'last_finished')::timestamptz DESC NULLS LAST, created_at ASC`

// Define создаёт или обновляет определение job.
//
// Если под этим именем несколько записей, остаётся та, что завершалась
// позже всех, остальные удаляются. ExecutionInfo не трогается.
func (r *JobRepo) Define(ctx context.Context, job *domain.Job) error {
	scheduleJSON, err := json.Marshal(job.Schedule)
	if err != nil {
		return fmt.Errorf("marshal schedule: %w", err)
	}
	paramsJSON, err := marshalParameters(job.Parameters)
	if err != nil {
		return err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id FROM jobs WHERE name = $1 ORDER BY `+jobPreference, job.Name)
	if err != nil {
		return fmt.Errorf("find jobs: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return fmt.Errorf("collect job ids: %w", err)
	}

	if len(ids) == 0 {
		if job.ID == uuid.Nil {
			job.ID = uuid.New()
		}
		_, err := r.pool.Exec(ctx, `
			INSERT INTO jobs (id, name, schedule, concurrency, max_running, timeout_ms, parameters)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, job.ID, job.Name, scheduleJSON, job.Concurrency, job.MaxRunning,
			job.Timeout.Milliseconds(), paramsJSON)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return nil
	}

	keep := ids[0]
	if len(ids) > 1 {
		if _, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE name = $1 AND id <> $2`, job.Name, keep); err != nil {
			return fmt.Errorf("delete duplicate jobs: %w", err)
		}
	}

	_, err = r.pool.Exec(ctx, `
		UPDATE jobs
		SET schedule = $2, concurrency = $3, max_running = $4, timeout_ms = $5,
		    parameters = $6, updated_at = NOW()
		WHERE id = $1
	`, keep, scheduleJSON, job.Concurrency, job.MaxRunning, job.Timeout.Milliseconds(), paramsJSON)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	job.ID = keep
	return nil
}

// Get возвращает job по имени.
func (r *JobRepo) Get(ctx context.Context, name string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE name = $1
		ORDER BY `+jobPreference+`
		LIMIT 1
	`, name)
	return scanJob(row)
}

// List возвращает все jobs, по одной записи на имя.
func (r *JobRepo) List(ctx context.Context) ([]domain.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (name) `+jobColumns+`
		FROM jobs
		ORDER BY name, `+jobPreference)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// UpdateExecutionInfo записывает результат выполнения.
// Меняет только execution_info, определение job остаётся как есть.
func (r *JobRepo) UpdateExecutionInfo(ctx context.Context, name string, info domain.ExecutionInfo) error {
	infoJSON, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal execution info: %w", err)
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE jobs SET execution_info = $2, updated_at = NOW() WHERE name = $1
	`, name, infoJSON)
	if err != nil {
		return fmt.Errorf("update execution info: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет job (все записи с этим именем).
func (r *JobRepo) Delete(ctx context.Context, name string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var scheduleJSON, paramsJSON, infoJSON []byte
	var timeoutMs int64

	err := row.Scan(
		&job.ID,
		&job.Name,
		&scheduleJSON,
		&job.Concurrency,
		&job.MaxRunning,
		&timeoutMs,
		&paramsJSON,
		&infoJSON,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.Timeout = time.Duration(timeoutMs) * time.Millisecond

	if err := json.Unmarshal(scheduleJSON, &job.Schedule); err != nil {
		return nil, fmt.Errorf("unmarshal schedule: %w", err)
	}
	if paramsJSON != nil {
		if err := json.Unmarshal(paramsJSON, &job.Parameters); err != nil {
			return nil, fmt.Errorf("unmarshal parameters: %w", err)
		}
	}
	if infoJSON != nil {
		var info domain.ExecutionInfo
		if err := json.Unmarshal(infoJSON, &info); err != nil {
			return nil, fmt.Errorf("unmarshal execution info: %w", err)
		}
		job.ExecutionInfo = &info
	}

	return &job, nil
}

// marshalParameters возвращает nil для пустых параметров.
func marshalParameters(params map[string]any) ([]byte, error) {
	if len(params) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal parameters: %w", err)
	}
	return data, nil
}
