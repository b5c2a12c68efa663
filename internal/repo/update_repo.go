package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Helmsman/internal/domain"
)

// UpdateRepo — репозиторий deployment updates.
type UpdateRepo struct {
	pool *pgxpool.Pool
}

// NewUpdateRepo создаёт новый UpdateRepo.
func NewUpdateRepo(pool *pgxpool.Pool) *UpdateRepo {
	return &UpdateRepo{pool: pool}
}

const updateColumns = `
	id, deployment_id, blueprint_id, state, old_topology, new_topology,
	steps, execution_ids, error, rollback_incomplete,
	created_at, committed_at, finished_at
`

// Create сохраняет новый update.
// Частичный уникальный индекс по активным updates даёт ErrConflict.
func (r *UpdateRepo) Create(ctx context.Context, u *domain.DeploymentUpdate) error {
	enc, err := encodeUpdate(u)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO deployment_updates (` + updateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = r.pool.Exec(ctx, query,
		u.ID,
		u.DeploymentID,
		u.BlueprintID,
		u.State,
		enc.oldTopology,
		enc.newTopology,
		enc.steps,
		enc.executionIDs,
		nullString(u.Error),
		u.RollbackIncomplete,
		u.CreatedAt,
		u.CommittedAt,
		u.FinishedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: deployment %s already has an active update", domain.ErrConflict, u.DeploymentID)
	}
	if err != nil {
		return fmt.Errorf("insert update: %w", err)
	}
	return nil
}

// Get возвращает update по ID.
func (r *UpdateRepo) Get(ctx context.Context, id uuid.UUID) (*domain.DeploymentUpdate, error) {
	query := `SELECT ` + updateColumns + ` FROM deployment_updates WHERE id = $1`
	u, err := scanUpdate(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "update", id)
	}
	return u, nil
}

// List возвращает updates по фильтру.
func (r *UpdateRepo) List(ctx context.Context, filter domain.UpdateFilter) ([]domain.DeploymentUpdate, error) {
	var conditions []string
	var args []any
	argNum := 1

	if filter.DeploymentID != "" {
		conditions = append(conditions, fmt.Sprintf("deployment_id = $%d", argNum))
		args = append(args, filter.DeploymentID)
		argNum++
	}
	if filter.State != "" {
		conditions = append(conditions, fmt.Sprintf("state = $%d", argNum))
		args = append(args, filter.State)
	}

	query := `SELECT ` + updateColumns + ` FROM deployment_updates`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	if filter.Descending {
		query += " ORDER BY created_at DESC, id"
	} else {
		query += " ORDER BY created_at ASC, id"
	}
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list updates: %w", err)
	}
	defer rows.Close()

	out := make([]domain.DeploymentUpdate, 0)
	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// AppendStep назначает шагу следующий ordering_index под блокировкой строки.
func (r *UpdateRepo) AppendStep(ctx context.Context, id uuid.UUID, step domain.UpdateStep) (domain.UpdateStep, error) {
	var out domain.UpdateStep

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			state     domain.UpdateState
			stepsJSON []byte
		)
		err := tx.QueryRow(ctx,
			`SELECT state, steps FROM deployment_updates WHERE id = $1 FOR UPDATE`, id,
		).Scan(&state, &stepsJSON)
		if err != nil {
			return notFound(err, "update", id)
		}

		u := domain.DeploymentUpdate{ID: id, State: state}
		if err := json.Unmarshal(stepsJSON, &u.Steps); err != nil {
			return fmt.Errorf("unmarshal steps: %w", err)
		}

		out, err = u.AppendStep(step.Operation, step.EntityType, step.EntityID)
		if err != nil {
			return err
		}

		stepsJSON, err = json.Marshal(u.Steps)
		if err != nil {
			return fmt.Errorf("marshal steps: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE deployment_updates SET steps = $2 WHERE id = $1`, id, stepsJSON); err != nil {
			return fmt.Errorf("update steps: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.UpdateStep{}, err
	}
	return out, nil
}

// Transition сохраняет update, если сохранённое состояние равно from.
func (r *UpdateRepo) Transition(ctx context.Context, u *domain.DeploymentUpdate, from domain.UpdateState) error {
	enc, err := encodeUpdate(u)
	if err != nil {
		return err
	}

	query := `
		UPDATE deployment_updates
		SET state = $3,
			new_topology = $4,
			execution_ids = $5,
			error = $6,
			rollback_incomplete = $7,
			committed_at = $8,
			finished_at = $9
		WHERE id = $1 AND state = $2
	`
	result, err := r.pool.Exec(ctx, query,
		u.ID,
		from,
		u.State,
		enc.newTopology,
		enc.executionIDs,
		nullString(u.Error),
		u.RollbackIncomplete,
		u.CommittedAt,
		u.FinishedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: deployment %s already has an active update", domain.ErrConflict, u.DeploymentID)
	}
	if err != nil {
		return fmt.Errorf("transition update: %w", err)
	}
	if result.RowsAffected() == 0 {
		if _, err := r.Get(ctx, u.ID); errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: update %s is no longer %s", domain.ErrConflict, u.ID, from)
	}
	return nil
}

type encodedUpdate struct {
	oldTopology  []byte
	newTopology  []byte
	steps        []byte
	executionIDs []byte
}

func encodeUpdate(u *domain.DeploymentUpdate) (encodedUpdate, error) {
	var (
		enc encodedUpdate
		err error
	)
	if enc.oldTopology, err = json.Marshal(u.OldTopology); err != nil {
		return enc, fmt.Errorf("marshal old_topology: %w", err)
	}
	if enc.newTopology, err = json.Marshal(u.NewTopology); err != nil {
		return enc, fmt.Errorf("marshal new_topology: %w", err)
	}

	steps := u.Steps
	if steps == nil {
		steps = []domain.UpdateStep{}
	}
	if enc.steps, err = json.Marshal(steps); err != nil {
		return enc, fmt.Errorf("marshal steps: %w", err)
	}

	ids := u.ExecutionIDs
	if ids == nil {
		ids = []string{}
	}
	if enc.executionIDs, err = json.Marshal(ids); err != nil {
		return enc, fmt.Errorf("marshal execution_ids: %w", err)
	}
	return enc, nil
}

// scanUpdate сканирует строку в DeploymentUpdate.
func scanUpdate(row pgx.Row) (*domain.DeploymentUpdate, error) {
	var u domain.DeploymentUpdate
	var oldJSON, newJSON, stepsJSON, idJSON []byte
	var errMsg *string

	err := row.Scan(
		&u.ID,
		&u.DeploymentID,
		&u.BlueprintID,
		&u.State,
		&oldJSON,
		&newJSON,
		&stepsJSON,
		&idJSON,
		&errMsg,
		&u.RollbackIncomplete,
		&u.CreatedAt,
		&u.CommittedAt,
		&u.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Error = deref(errMsg)

	if err := json.Unmarshal(oldJSON, &u.OldTopology); err != nil {
		return nil, fmt.Errorf("unmarshal old_topology: %w", err)
	}
	if err := json.Unmarshal(newJSON, &u.NewTopology); err != nil {
		return nil, fmt.Errorf("unmarshal new_topology: %w", err)
	}
	if err := json.Unmarshal(stepsJSON, &u.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	if err := json.Unmarshal(idJSON, &u.ExecutionIDs); err != nil {
		return nil, fmt.Errorf("unmarshal execution_ids: %w", err)
	}
	if len(u.ExecutionIDs) == 0 {
		u.ExecutionIDs = nil
	}

	return &u, nil
}
