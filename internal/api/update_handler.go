package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shaiso/Helmsman/internal/domain"
)

// Параметры страницы по умолчанию.
const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// ListUpdates возвращает список updates.
// GET /api/{version}/deployment-updates?deployment_id=&state=&_size=&_offset=&_sort=
func (h *Handler) ListUpdates(w http.ResponseWriter, r *http.Request, f Formatter) {
	q := r.URL.Query()

	filter := domain.UpdateFilter{
		DeploymentID: q.Get("deployment_id"),
		Descending:   strings.HasPrefix(q.Get("_sort"), "-"),
	}

	if s := q.Get("state"); s != "" {
		state, ok := domain.ParseUpdateState(s)
		if !ok {
			BadRequest(w, f, "invalid state: "+s)
			return
		}
		filter.State = state
	}

	page, err := parsePage(r)
	if err != nil {
		BadRequest(w, f, err.Error())
		return
	}
	filter.Limit = page.Size
	filter.Offset = page.Offset

	updates, err := h.updates.List(r.Context(), filter)
	if HandleError(w, f, h.log(r), err) {
		return
	}

	result := make([]UpdateResponse, len(updates))
	for i := range updates {
		result[i] = UpdateFromDomain(&updates[i])
	}

	List(w, f, result, Page{Size: len(result), Offset: page.Offset})
}

// StageUpdate создаёт update в staged.
// POST /api/{version}/deployment-updates
func (h *Handler) StageUpdate(w http.ResponseWriter, r *http.Request, f Formatter) {
	var req StageUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, f, "invalid request body")
		return
	}

	if req.DeploymentID == "" {
		req.DeploymentID = r.URL.Query().Get("deployment_id")
	}
	if req.DeploymentID == "" {
		BadRequest(w, f, "deployment_id is required")
		return
	}

	u, err := h.updates.Stage(r.Context(), req.DeploymentID, req.Blueprint)
	if HandleError(w, f, h.log(r), err) {
		return
	}

	Created(w, f, UpdateFromDomain(u))
}

// GetUpdate возвращает update по ID.
// GET /api/{version}/deployment-updates/{id}
func (h *Handler) GetUpdate(w http.ResponseWriter, r *http.Request, f Formatter) {
	id, ok := updateID(w, r, f)
	if !ok {
		return
	}

	u, err := h.updates.Get(r.Context(), id)
	if HandleError(w, f, h.log(r), err) {
		return
	}

	Success(w, f, UpdateFromDomain(u))
}

// AddStep добавляет шаг к update в staged.
// POST /api/{version}/deployment-updates/{id}/steps
func (h *Handler) AddStep(w http.ResponseWriter, r *http.Request, f Formatter) {
	id, ok := updateID(w, r, f)
	if !ok {
		return
	}

	var req AddStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, f, "invalid request body")
		return
	}

	op, err := domain.ParseStepOperation(req.Operation)
	if HandleError(w, f, h.log(r), err) {
		return
	}
	et, err := domain.ParseEntityType(req.EntityType)
	if HandleError(w, f, h.log(r), err) {
		return
	}
	if req.EntityID == "" {
		BadRequest(w, f, "entity_id is required")
		return
	}

	step, err := h.updates.AddStep(r.Context(), id, op, et, req.EntityID)
	if HandleError(w, f, h.log(r), err) {
		return
	}

	Success(w, f, StepFromDomain(step))
}

// CommitUpdate применяет update и запускает workflows.
// POST /api/{version}/deployment-updates/{id}/commit
func (h *Handler) CommitUpdate(w http.ResponseWriter, r *http.Request, f Formatter) {
	h.transition(w, r, f, h.updates.Commit)
}

// FinalizeUpdate завершает update по статусам executions.
// POST /api/{version}/deployment-updates/{id}/finalize
func (h *Handler) FinalizeUpdate(w http.ResponseWriter, r *http.Request, f Formatter) {
	h.transition(w, r, f, h.updates.Finalize)
}

// DiscardUpdate отменяет update в staged.
// POST /api/{version}/deployment-updates/{id}/discard
func (h *Handler) DiscardUpdate(w http.ResponseWriter, r *http.Request, f Formatter) {
	h.transition(w, r, f, h.updates.Discard)
}

// updateOp — переход update по ID.
type updateOp func(ctx context.Context, id uuid.UUID) (*domain.DeploymentUpdate, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, f Formatter, op updateOp) {
	id, ok := updateID(w, r, f)
	if !ok {
		return
	}

	u, err := op(r.Context(), id)
	if HandleError(w, f, h.log(r), err) {
		return
	}

	Success(w, f, UpdateFromDomain(u))
}

// updateID разбирает {id} из пути; при ошибке отвечает 400.
func updateID(w http.ResponseWriter, r *http.Request, f Formatter) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, f, "invalid update id")
		return uuid.Nil, false
	}
	return id, true
}

// parsePage разбирает _size и _offset.
func parsePage(r *http.Request) (Page, error) {
	page := Page{Size: defaultPageSize}
	q := r.URL.Query()

	if s := q.Get("_size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return page, fmt.Errorf("invalid _size: %s", s)
		}
		page.Size = min(n, maxPageSize)
	}
	if s := q.Get("_offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return page, fmt.Errorf("invalid _offset: %s", s)
		}
		page.Offset = n
	}
	return page, nil
}
