package api

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// versionedFunc — обработчик, получающий форматтер своей версии API.
type versionedFunc func(w http.ResponseWriter, r *http.Request, f Formatter)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Metrics(),
		Logging(h.logger),
		Auth(h.token),
	)

	for _, f := range Formatters() {
		prefix := "/api/" + f.Version()
		route := func(pattern string, fn versionedFunc) {
			method, path, _ := strings.Cut(pattern, " ")
			mux.Handle(method+" "+prefix+path, chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fn(w, r, f)
			})))
		}

		// Deployment updates
		route("GET /deployment-updates", h.ListUpdates)
		route("POST /deployment-updates", h.StageUpdate)
		route("GET /deployment-updates/{id}", h.GetUpdate)
		route("POST /deployment-updates/{id}/steps", h.AddStep)
		route("POST /deployment-updates/{id}/commit", h.CommitUpdate)
		route("POST /deployment-updates/{id}/finalize", h.FinalizeUpdate)
		route("POST /deployment-updates/{id}/discard", h.DiscardUpdate)

		// Maintenance mode
		route("GET /maintenance", h.GetMaintenance)
		route("POST /maintenance/{action}", h.MaintenanceAction)

		// Deployments
		route("GET /deployments/{id}", h.GetDeployment)
		route("PUT /deployments/{id}", h.PutDeployment)

		// Executions
		route("POST /executions", h.StartExecution)
		route("GET /executions/{id}", h.GetExecution)
	}

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", h.Healthz)
}

// Healthz отвечает 503, пока брокер недоступен.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	if h.broker != nil && !h.broker.IsConnected() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("broker disconnected"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
