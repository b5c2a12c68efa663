package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shaiso/Helmsman/internal/dispatch"
	"github.com/shaiso/Helmsman/internal/domain"
)

// StartExecution запускает workflow вне deployment update.
// POST /api/{version}/executions
func (h *Handler) StartExecution(w http.ResponseWriter, r *http.Request, f Formatter) {
	var req StartExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, f, "invalid request body")
		return
	}

	if req.WorkflowID == "" {
		BadRequest(w, f, "workflow_id is required")
		return
	}

	var (
		handle dispatch.Handle
		err    error
	)
	if req.System {
		handle, err = h.startSystem(r, req)
	} else {
		handle, err = h.startWorkflow(r, req)
	}
	if HandleError(w, f, h.log(r), err) {
		return
	}

	Created(w, f, handle)
}

func (h *Handler) startWorkflow(r *http.Request, req StartExecutionRequest) (dispatch.Handle, error) {
	if req.DeploymentID == "" {
		return dispatch.Handle{}, fmt.Errorf("%w: deployment_id is required", domain.ErrBadParameters)
	}
	// Обходить maintenance mode могут только системные workflows.
	if req.BypassMaintenance {
		return dispatch.Handle{}, fmt.Errorf("%w: bypass_maintenance is allowed only for system workflows", domain.ErrBadParameters)
	}

	d, err := h.deployments.Get(r.Context(), req.DeploymentID)
	if err != nil {
		return dispatch.Handle{}, err
	}

	wf, ok := d.Workflows[req.WorkflowID]
	if !ok {
		return dispatch.Handle{}, fmt.Errorf("%w: workflow %s in deployment %s", domain.ErrNotFound, req.WorkflowID, d.ID)
	}

	params := make(map[string]any, len(wf.Parameters)+len(req.Parameters))
	for k, v := range wf.Parameters {
		params[k] = v
	}
	for k, v := range req.Parameters {
		params[k] = v
	}

	return h.dispatcher.DispatchWorkflow(r.Context(), dispatch.WorkflowRequest{
		Name:         req.WorkflowID,
		Workflow:     wf,
		Plugins:      d.Plugins,
		BlueprintID:  d.BlueprintID,
		DeploymentID: d.ID,
		ExecutionID:  req.ExecutionID,
		Parameters:   params,
	})
}

func (h *Handler) startSystem(r *http.Request, req StartExecutionRequest) (dispatch.Handle, error) {
	if req.TaskMapping == "" {
		return dispatch.Handle{}, fmt.Errorf("%w: task_mapping is required", domain.ErrBadParameters)
	}

	var d *domain.Deployment
	if req.DeploymentID != "" {
		var err error
		if d, err = h.deployments.Get(r.Context(), req.DeploymentID); err != nil {
			return dispatch.Handle{}, err
		}
	}

	return h.dispatcher.DispatchSystemWorkflow(r.Context(), dispatch.SystemWorkflowRequest{
		WorkflowID:        req.WorkflowID,
		TaskID:            req.ExecutionID,
		TaskMapping:       req.TaskMapping,
		Deployment:        d,
		Parameters:        req.Parameters,
		BypassMaintenance: req.BypassMaintenance,
	})
}

// GetExecution возвращает execution по ID.
// GET /api/{version}/executions/{id}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request, f Formatter) {
	e, err := h.executions.Get(r.Context(), r.PathValue("id"))
	if HandleError(w, f, h.log(r), err) {
		return
	}

	Success(w, f, ExecutionFromDomain(e))
}
