package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Helmsman/internal/domain"
)

// gateLockKey — ключ advisory lock секции maintenance gate.
const gateLockKey int64 = 0x48_454c_4d53 // "HELMS"

// ExecutionRepo — репозиторий executions и записи maintenance mode.
// Реализует domain.ExecutionRepository и domain.GateStore.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

const executionColumns = `
	id, workflow_id, deployment_id, blueprint_id, update_id, status,
	is_system, bypass_maintenance, parameters, error, created_at, ended_at
`

// Get возвращает execution по ID.
func (r *ExecutionRepo) Get(ctx context.Context, id string) (*domain.Execution, error) {
	return getExecution(ctx, r.pool, id, false)
}

// ListByIDs возвращает executions в порядке ids. Неизвестные ID пропускаются.
func (r *ExecutionRepo) ListByIDs(ctx context.Context, ids []string) ([]domain.Execution, error) {
	if len(ids) == 0 {
		return []domain.Execution{}, nil
	}

	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = ANY($1)`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.Execution, len(ids))
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		byID[e.ID] = *e
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return orderByIDs(ids, byID), nil
}

// orderByIDs раскладывает executions в порядке ids.
func orderByIDs(ids []string, byID map[string]domain.Execution) []domain.Execution {
	out := make([]domain.Execution, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// ListRunningCreatedBefore возвращает pending/started executions старше before.
func (r *ExecutionRepo) ListRunningCreatedBefore(ctx context.Context, before time.Time, limit int) ([]domain.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE status IN ('pending', 'started') AND created_at < $1
		ORDER BY created_at
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := r.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("list running executions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Execution, 0)
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// WithinLock выполняет fn в транзакции под транзакционным advisory lock.
// Ошибка fn откатывает транзакцию.
func (r *ExecutionRepo) WithinLock(ctx context.Context, fn func(ctx context.Context, tx domain.GateTx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, gateLockKey); err != nil {
			return fmt.Errorf("acquire gate lock: %w", err)
		}
		return fn(ctx, &gateTx{tx: tx})
	})
}

// gateTx — операции GateTx поверх pgx.Tx.
type gateTx struct {
	tx pgx.Tx
}

func (g *gateTx) GetMaintenance(ctx context.Context) (*domain.MaintenanceState, error) {
	query := `
		SELECT status, activation_requested_at, requested_by, remaining_executions
		FROM maintenance_mode
		WHERE id = 1
	`

	var s domain.MaintenanceState
	var requestedBy *string
	err := g.tx.QueryRow(ctx, query).Scan(
		&s.Status,
		&s.ActivationRequestedAt,
		&requestedBy,
		&s.RemainingExecutions,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get maintenance mode: %w", err)
	}
	s.RequestedBy = deref(requestedBy)
	return &s, nil
}

func (g *gateTx) PutMaintenance(ctx context.Context, s domain.MaintenanceState) error {
	query := `
		INSERT INTO maintenance_mode (id, status, activation_requested_at, requested_by, remaining_executions)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
			activation_requested_at = EXCLUDED.activation_requested_at,
			requested_by = EXCLUDED.requested_by,
			remaining_executions = EXCLUDED.remaining_executions
	`
	if _, err := g.tx.Exec(ctx, query, s.Status, s.ActivationRequestedAt, nullString(s.RequestedBy), s.RemainingExecutions); err != nil {
		return fmt.Errorf("put maintenance mode: %w", err)
	}
	return nil
}

func (g *gateTx) DeleteMaintenance(ctx context.Context) (bool, error) {
	result, err := g.tx.Exec(ctx, `DELETE FROM maintenance_mode WHERE id = 1`)
	if err != nil {
		return false, fmt.Errorf("delete maintenance mode: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (g *gateTx) CountRunningExecutions(ctx context.Context) (int, error) {
	var count int
	err := g.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM executions WHERE status IN ('pending', 'started')`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count running executions: %w", err)
	}
	return count, nil
}

func (g *gateTx) CreateExecutions(ctx context.Context, execs []domain.Execution) error {
	query := `
		INSERT INTO executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	batch := &pgx.Batch{}
	for i := range execs {
		e := &execs[i]
		params, err := json.Marshal(e.Parameters)
		if err != nil {
			return fmt.Errorf("marshal parameters: %w", err)
		}
		batch.Queue(query,
			e.ID,
			e.WorkflowID,
			nullString(e.DeploymentID),
			nullString(e.BlueprintID),
			e.UpdateID,
			e.Status,
			e.IsSystem,
			e.BypassMaintenance,
			params,
			nullString(e.Error),
			e.CreatedAt,
			e.EndedAt,
		)
	}

	results := g.tx.SendBatch(ctx, batch)
	defer results.Close()

	for i := range execs {
		if _, err := results.Exec(); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: execution %s already exists", domain.ErrConflict, execs[i].ID)
			}
			return fmt.Errorf("insert execution %s: %w", execs[i].ID, err)
		}
	}
	return nil
}

func (g *gateTx) GetExecution(ctx context.Context, id string) (*domain.Execution, error) {
	return getExecution(ctx, g.tx, id, true)
}

func (g *gateTx) UpdateExecution(ctx context.Context, e *domain.Execution) error {
	query := `
		UPDATE executions
		SET status = $2, error = $3, ended_at = $4
		WHERE id = $1
	`
	result, err := g.tx.Exec(ctx, query, e.ID, e.Status, nullString(e.Error), e.EndedAt)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: execution %s", domain.ErrNotFound, e.ID)
	}
	return nil
}

func getExecution(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	e, err := scanExecution(q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "execution", id)
	}
	return e, nil
}

// scanExecution сканирует строку в Execution.
func scanExecution(row pgx.Row) (*domain.Execution, error) {
	var e domain.Execution
	var deploymentID, blueprintID, errMsg *string
	var params []byte

	err := row.Scan(
		&e.ID,
		&e.WorkflowID,
		&deploymentID,
		&blueprintID,
		&e.UpdateID,
		&e.Status,
		&e.IsSystem,
		&e.BypassMaintenance,
		&params,
		&errMsg,
		&e.CreatedAt,
		&e.EndedAt,
	)
	if err != nil {
		return nil, err
	}

	e.DeploymentID = deref(deploymentID)
	e.BlueprintID = deref(blueprintID)
	e.Error = deref(errMsg)

	if len(params) > 0 {
		if err := json.Unmarshal(params, &e.Parameters); err != nil {
			return nil, fmt.Errorf("unmarshal parameters: %w", err)
		}
	}
	return &e, nil
}
