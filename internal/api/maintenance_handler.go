package api

import (
	"net/http"
)

// defaultRequestedBy — инициатор, если заголовок X-Requested-By не задан.
const defaultRequestedBy = "api"

// GetMaintenance возвращает состояние maintenance mode.
// GET /api/{version}/maintenance
func (h *Handler) GetMaintenance(w http.ResponseWriter, r *http.Request, f Formatter) {
	state, err := h.maintenance.CurrentState(r.Context())
	if HandleError(w, f, h.log(r), err) {
		return
	}

	Success(w, f, MaintenanceFromDomain(state))
}

// MaintenanceAction выполняет activate или deactivate.
// POST /api/{version}/maintenance/{action}
//
// Повтор действия ничего не меняет и отвечает 304.
func (h *Handler) MaintenanceAction(w http.ResponseWriter, r *http.Request, f Formatter) {
	requestedBy := r.Header.Get("X-Requested-By")
	if requestedBy == "" {
		requestedBy = defaultRequestedBy
	}

	result, err := h.maintenance.Apply(r.Context(), r.PathValue("action"), requestedBy)
	if HandleError(w, f, h.log(r), err) {
		return
	}

	if !result.Changed {
		NotModified(w)
		return
	}

	Success(w, f, MaintenanceFromDomain(result.State))
}
