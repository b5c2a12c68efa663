package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики control plane. Регистрируются в глобальном registry
// и отдаются через promhttp.Handler() на /metrics.
var (
	// DispatchTotal — отправки executions в очередь.
	// kind: workflow | system; result: sent | denied | failed.
	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helmsman_dispatch_total",
		Help: "Workflow executions handed to the task queue",
	}, []string{"kind", "result"})

	// UpdateTransitionsTotal — переходы deployment updates по целевому состоянию.
	UpdateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helmsman_update_transitions_total",
		Help: "Deployment update state transitions",
	}, []string{"state"})

	// MaintenanceStatus — текущий статус maintenance mode:
	// 0 — deactivated, 1 — activating, 2 — activated.
	MaintenanceStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "helmsman_maintenance_status",
		Help: "Maintenance mode status (0 deactivated, 1 activating, 2 activated)",
	})

	// MaintenanceRemaining — executions, которые ждёт активация.
	MaintenanceRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "helmsman_maintenance_remaining_executions",
		Help: "Running executions blocking maintenance activation",
	})

	// HTTPRequestsTotal — обработанные HTTP запросы.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helmsman_http_requests_total",
		Help: "HTTP requests handled by helmsman API",
	}, []string{"method", "code"})
)
