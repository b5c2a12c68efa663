package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Helmsman/internal/domain"
)

// DeploymentRepo — репозиторий deployments.
type DeploymentRepo struct {
	pool *pgxpool.Pool
}

// NewDeploymentRepo создаёт новый DeploymentRepo.
func NewDeploymentRepo(pool *pgxpool.Pool) *DeploymentRepo {
	return &DeploymentRepo{pool: pool}
}

// Get возвращает deployment по ID.
func (r *DeploymentRepo) Get(ctx context.Context, id string) (*domain.Deployment, error) {
	query := `
		SELECT id, blueprint_id, topology, workflows, plugins, updated_at
		FROM deployments
		WHERE id = $1
	`

	var d domain.Deployment
	var topologyJSON, workflowsJSON, plJSON []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&d.ID,
		&d.BlueprintID,
		&topologyJSON,
		&workflowsJSON,
		&plJSON,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "deployment", id)
	}

	if err := json.Unmarshal(topologyJSON, &d.Topology); err != nil {
		return nil, fmt.Errorf("unmarshal topology: %w", err)
	}
	if err := json.Unmarshal(workflowsJSON, &d.Workflows); err != nil {
		return nil, fmt.Errorf("unmarshal workflows: %w", err)
	}
	if err := json.Unmarshal(plJSON, &d.Plugins); err != nil {
		return nil, fmt.Errorf("unmarshal plugins: %w", err)
	}

	return &d, nil
}

// Put создаёт или заменяет deployment.
func (r *DeploymentRepo) Put(ctx context.Context, d *domain.Deployment) error {
	topologyJSON, err := json.Marshal(d.Topology)
	if err != nil {
		return fmt.Errorf("marshal topology: %w", err)
	}
	workflows := d.Workflows
	if workflows == nil {
		workflows = map[string]domain.WorkflowDescriptor{}
	}
	workflowsJSON, err := json.Marshal(workflows)
	if err != nil {
		return fmt.Errorf("marshal workflows: %w", err)
	}
	plugins := d.Plugins
	if plugins == nil {
		plugins = []domain.PluginDescriptor{}
	}
	pluginsJSON, err := json.Marshal(plugins)
	if err != nil {
		return fmt.Errorf("marshal plugins: %w", err)
	}

	query := `
		INSERT INTO deployments (id, blueprint_id, topology, workflows, plugins, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE
		SET blueprint_id = EXCLUDED.blueprint_id,
			topology = EXCLUDED.topology,
			workflows = EXCLUDED.workflows,
			plugins = EXCLUDED.plugins,
			updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, d.ID, d.BlueprintID, topologyJSON, workflowsJSON, pluginsJSON); err != nil {
		return fmt.Errorf("upsert deployment: %w", err)
	}
	return nil
}

// SetTopology заменяет топологию deployment.
// Пустой blueprintID оставляет текущий.
func (r *DeploymentRepo) SetTopology(ctx context.Context, id string, topology domain.Topology, blueprintID string) error {
	topologyJSON, err := json.Marshal(topology)
	if err != nil {
		return fmt.Errorf("marshal topology: %w", err)
	}

	query := `
		UPDATE deployments
		SET topology = $2,
			blueprint_id = COALESCE($3, blueprint_id),
			updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, topologyJSON, nullString(blueprintID))
	if err != nil {
		return fmt.Errorf("set topology: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: deployment %s", domain.ErrNotFound, id)
	}
	return nil
}
