package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shaiso/Helmsman/internal/domain"
	"github.com/shaiso/Helmsman/internal/engine"
)

// GetDeployment возвращает deployment по ID.
// GET /api/{version}/deployments/{id}
func (h *Handler) GetDeployment(w http.ResponseWriter, r *http.Request, f Formatter) {
	d, err := h.deployments.Get(r.Context(), r.PathValue("id"))
	if HandleError(w, f, h.log(r), err) {
		return
	}

	Success(w, f, d)
}

// PutDeployment регистрирует или заменяет deployment.
// PUT /api/{version}/deployments/{id}
//
// Deployments принадлежат внешней системе; ручка нужна, чтобы
// передать control plane их топологию, workflows и плагины.
func (h *Handler) PutDeployment(w http.ResponseWriter, r *http.Request, f Formatter) {
	var d domain.Deployment
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		BadRequest(w, f, "invalid request body")
		return
	}

	id := r.PathValue("id")
	if d.ID != "" && d.ID != id {
		BadRequest(w, f, fmt.Sprintf("deployment id mismatch: %s != %s", d.ID, id))
		return
	}
	d.ID = id

	if err := engine.ValidateTopology(&d.Topology); err != nil {
		BadRequest(w, f, err.Error())
		return
	}

	if HandleError(w, f, h.log(r), h.deployments.Put(r.Context(), &d)) {
		return
	}

	stored, err := h.deployments.Get(r.Context(), id)
	if HandleError(w, f, h.log(r), err) {
		return
	}

	Success(w, f, stored)
}
