package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shaiso/Helmsman/internal/deployupdate"
	"github.com/shaiso/Helmsman/internal/dispatch"
	"github.com/shaiso/Helmsman/internal/domain"
	"github.com/shaiso/Helmsman/internal/maintenance"
	"github.com/shaiso/Helmsman/internal/memstore"
)

type recordingChannel struct {
	mu   sync.Mutex
	sent []domain.TaskMessage
}

func (c *recordingChannel) PublishTask(_ context.Context, msg domain.TaskMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

type testServer struct {
	*httptest.Server
	gate    *maintenance.Controller
	channel *recordingChannel
}

func newTestServer(t *testing.T, token string) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	gate := maintenance.New(maintenance.Config{Store: store.Executions, Logger: logger})
	channel := &recordingChannel{}
	dispatcher := dispatch.New(dispatch.Config{
		Channel:     channel,
		Credentials: dispatch.StaticCredentials{Value: "rest-token"},
		Gate:        gate,
		Logger:      logger,
	})
	updates := deployupdate.New(deployupdate.Config{
		Updates:     store.Updates,
		Deployments: store.Deployments,
		Executions:  store.Executions,
		Dispatcher:  dispatcher,
		Tracker:     gate,
		Logger:      logger,
	})

	h := NewHandler(Config{
		Updates:     updates,
		Maintenance: gate,
		Dispatcher:  dispatcher,
		Deployments: store.Deployments,
		Executions:  store.Executions,
		Token:       token,
		Logger:      logger,
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, gate: gate, channel: channel}
}

// do выполняет запрос и декодирует JSON тело (если есть).
func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(raw) == 0 {
		return resp.StatusCode, nil
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return resp.StatusCode, out
}

func (s *testServer) putDeployment(t *testing.T) {
	t.Helper()
	status, body := s.do(t, http.MethodPut, "/api/v3/deployments/dep1", testDeployment())
	if status != http.StatusOK {
		t.Fatalf("put deployment: status %d, body %v", status, body)
	}
}

func testDeployment() domain.Deployment {
	return domain.Deployment{
		BlueprintID: "bp1",
		Topology: domain.Topology{
			Nodes: []domain.Node{
				{ID: "db", Type: "database"},
				{ID: "web", Type: "server", Relationships: []domain.Relationship{{Target: "db"}}},
			},
		},
		Workflows: map[string]domain.WorkflowDescriptor{
			domain.WorkflowInstall:   {Operation: "default_workflows.install", Plugin: "default_workflows"},
			domain.WorkflowUpdate:    {Operation: "default_workflows.update", Plugin: "default_workflows"},
			domain.WorkflowUninstall: {Operation: "default_workflows.uninstall", Plugin: "default_workflows"},
			"heal":                   {Operation: "default_workflows.heal", Plugin: "default_workflows"},
		},
		Plugins: []domain.PluginDescriptor{{Name: "default_workflows"}},
	}
}

func cacheBlueprint() domain.Blueprint {
	return domain.Blueprint{
		ID: "bp2",
		Topology: domain.Topology{
			Nodes: []domain.Node{
				{ID: "db", Type: "database"},
				{ID: "web", Type: "server", Relationships: []domain.Relationship{{Target: "db"}, {Target: "cache"}}},
				{ID: "cache", Type: "redis"},
			},
		},
	}
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("response has no data object: %v", body)
	}
	return d
}

func TestUpdateLifecycle(t *testing.T) {
	s := newTestServer(t, "")
	s.putDeployment(t)

	status, body := s.do(t, http.MethodPost, "/api/v3/deployment-updates", StageUpdateRequest{
		DeploymentID: "dep1",
		Blueprint:    cacheBlueprint(),
	})
	if status != http.StatusCreated {
		t.Fatalf("stage: status %d, body %v", status, body)
	}
	update := data(t, body)
	if update["state"] != "staged" {
		t.Fatalf("state = %v, want staged", update["state"])
	}
	id := update["id"].(string)

	// Повторный stage при активном update — конфликт.
	status, body = s.do(t, http.MethodPost, "/api/v3/deployment-updates", StageUpdateRequest{
		DeploymentID: "dep1",
		Blueprint:    cacheBlueprint(),
	})
	if status != http.StatusConflict {
		t.Fatalf("second stage: status %d, body %v", status, body)
	}

	status, body = s.do(t, http.MethodPost, "/api/v3/deployment-updates/"+id+"/commit", nil)
	if status != http.StatusOK {
		t.Fatalf("commit: status %d, body %v", status, body)
	}
	update = data(t, body)
	if update["state"] != "updating" {
		t.Fatalf("state = %v, want updating", update["state"])
	}
	ids := update["execution_ids"].([]any)
	if len(ids) != 2 {
		t.Fatalf("execution_ids = %v, want 2", ids)
	}

	status, body = s.do(t, http.MethodPost, "/api/v3/deployment-updates/"+id+"/finalize", nil)
	if status != http.StatusConflict {
		t.Fatalf("finalize while running: status %d, body %v", status, body)
	}
	if code := body["error"].(map[string]any)["code"]; code != domain.KindExecutionsRunning {
		t.Errorf("error code = %v, want %s", code, domain.KindExecutionsRunning)
	}

	for _, eid := range ids {
		status, body = s.do(t, http.MethodGet, "/api/v3/executions/"+eid.(string), nil)
		if status != http.StatusOK {
			t.Fatalf("get execution: status %d, body %v", status, body)
		}
		if data(t, body)["status"] != "pending" {
			t.Errorf("execution status = %v, want pending", data(t, body)["status"])
		}
		if _, err := s.gate.CompleteExecution(context.Background(), eid.(string), domain.ExecutionStatusTerminated, ""); err != nil {
			t.Fatalf("complete execution: %v", err)
		}
	}

	status, body = s.do(t, http.MethodPost, "/api/v3/deployment-updates/"+id+"/finalize", nil)
	if status != http.StatusOK {
		t.Fatalf("finalize: status %d, body %v", status, body)
	}
	if state := data(t, body)["state"]; state != "committed" {
		t.Fatalf("state = %v, want committed", state)
	}

	status, body = s.do(t, http.MethodGet, "/api/v3/deployments/dep1", nil)
	if status != http.StatusOK {
		t.Fatalf("get deployment: status %d", status)
	}
	if bp := data(t, body)["blueprint_id"]; bp != "bp2" {
		t.Errorf("blueprint_id = %v, want bp2", bp)
	}
}

func TestAddStep(t *testing.T) {
	s := newTestServer(t, "")
	s.putDeployment(t)

	bp := cacheBlueprint()
	bp.Steps = []domain.UpdateStep{{Operation: domain.StepAdd, EntityType: domain.EntityNode, EntityID: "cache"}}
	_, body := s.do(t, http.MethodPost, "/api/v3/deployment-updates", StageUpdateRequest{DeploymentID: "dep1", Blueprint: bp})
	id := data(t, body)["id"].(string)

	tests := []struct {
		name   string
		req    AddStepRequest
		status int
		index  float64
	}{
		{
			name:   "relationship",
			req:    AddStepRequest{Operation: "add", EntityType: "relationship", EntityID: "web->cache"},
			status: http.StatusOK,
			index:  1,
		},
		{
			name:   "unknown operation",
			req:    AddStepRequest{Operation: "rename", EntityType: "node", EntityID: "db"},
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown entity type",
			req:    AddStepRequest{Operation: "add", EntityType: "plugin", EntityID: "x"},
			status: http.StatusBadRequest,
		},
		{
			name:   "missing entity id",
			req:    AddStepRequest{Operation: "add", EntityType: "node"},
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := s.do(t, http.MethodPost, "/api/v3/deployment-updates/"+id+"/steps", tt.req)
			if status != tt.status {
				t.Fatalf("status = %d, want %d (body %v)", status, tt.status, body)
			}
			if tt.status == http.StatusOK {
				if got := data(t, body)["ordering_index"]; got != tt.index {
					t.Errorf("ordering_index = %v, want %v", got, tt.index)
				}
			}
		})
	}
}

func TestDiscard_NotStaged(t *testing.T) {
	s := newTestServer(t, "")
	s.putDeployment(t)

	_, body := s.do(t, http.MethodPost, "/api/v3/deployment-updates", StageUpdateRequest{DeploymentID: "dep1", Blueprint: cacheBlueprint()})
	id := data(t, body)["id"].(string)

	status, _ := s.do(t, http.MethodPost, "/api/v3/deployment-updates/"+id+"/discard", nil)
	if status != http.StatusOK {
		t.Fatalf("discard: status %d", status)
	}

	status, body = s.do(t, http.MethodPost, "/api/v3/deployment-updates/"+id+"/commit", nil)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("commit discarded: status %d, body %v", status, body)
	}
}

func TestListUpdates_V21(t *testing.T) {
	s := newTestServer(t, "")
	s.putDeployment(t)

	status, body := s.do(t, http.MethodPost, "/api/v2.1/deployment-updates?deployment_id=dep1", StageUpdateRequest{Blueprint: cacheBlueprint()})
	if status != http.StatusCreated {
		t.Fatalf("stage: status %d, body %v", status, body)
	}
	if _, wrapped := body["data"]; wrapped {
		t.Fatalf("v2.1 resource must not be wrapped: %v", body)
	}

	status, body = s.do(t, http.MethodGet, "/api/v2.1/deployment-updates?deployment_id=dep1&_size=10", nil)
	if status != http.StatusOK {
		t.Fatalf("list: status %d, body %v", status, body)
	}
	items := body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	pagination := body["metadata"].(map[string]any)["pagination"].(map[string]any)
	if pagination["size"] != float64(1) || pagination["offset"] != float64(0) {
		t.Errorf("pagination = %v", pagination)
	}

	status, _ = s.do(t, http.MethodGet, "/api/v2.1/deployment-updates?state=bogus", nil)
	if status != http.StatusBadRequest {
		t.Errorf("bad state filter: status %d, want 400", status)
	}
}

func TestErrorFormats(t *testing.T) {
	s := newTestServer(t, "")
	missing := "/deployment-updates/7b4c3b68-7d7e-4f55-9a53-2d1cf3cb1a10"

	status, body := s.do(t, http.MethodGet, "/api/v2.1"+missing, nil)
	if status != http.StatusNotFound {
		t.Fatalf("v2.1: status %d", status)
	}
	if body["error_code"] != domain.KindNotFound || body["message"] == "" {
		t.Errorf("v2.1 error body = %v", body)
	}

	status, body = s.do(t, http.MethodGet, "/api/v3"+missing, nil)
	if status != http.StatusNotFound {
		t.Fatalf("v3: status %d", status)
	}
	if code := body["error"].(map[string]any)["code"]; code != domain.KindNotFound {
		t.Errorf("v3 error code = %v", code)
	}

	status, _ = s.do(t, http.MethodGet, "/api/v3/deployment-updates/not-a-uuid", nil)
	if status != http.StatusBadRequest {
		t.Errorf("invalid id: status %d, want 400", status)
	}
}

func TestMaintenance(t *testing.T) {
	s := newTestServer(t, "")

	status, body := s.do(t, http.MethodGet, "/api/v2.1/maintenance", nil)
	if status != http.StatusOK || body["status"] != string(domain.MaintenanceDeactivated) {
		t.Fatalf("get: status %d, body %v", status, body)
	}

	status, body = s.do(t, http.MethodPost, "/api/v2.1/maintenance/activate", nil, "X-Requested-By", "admin")
	if status != http.StatusOK {
		t.Fatalf("activate: status %d, body %v", status, body)
	}
	if body["status"] != string(domain.MaintenanceActivated) || body["requested_by"] != "admin" {
		t.Errorf("activate body = %v", body)
	}

	status, body = s.do(t, http.MethodPost, "/api/v2.1/maintenance/activate", nil)
	if status != http.StatusNotModified || body != nil {
		t.Errorf("repeat activate: status %d, body %v", status, body)
	}

	status, body = s.do(t, http.MethodPost, "/api/v2.1/maintenance/toggle", nil)
	if status != http.StatusBadRequest {
		t.Fatalf("unknown action: status %d", status)
	}
	if msg, _ := body["message"].(string); !strings.Contains(msg, "Invalid action: toggle") {
		t.Errorf("message = %q", msg)
	}

	status, _ = s.do(t, http.MethodPost, "/api/v2.1/maintenance/deactivate", nil)
	if status != http.StatusOK {
		t.Errorf("deactivate: status %d", status)
	}
}

func TestStartExecution(t *testing.T) {
	s := newTestServer(t, "")
	s.putDeployment(t)

	status, body := s.do(t, http.MethodPost, "/api/v3/executions", StartExecutionRequest{
		WorkflowID:   "heal",
		DeploymentID: "dep1",
		Parameters:   map[string]any{"node_id": "web"},
	})
	if status != http.StatusCreated {
		t.Fatalf("workflow: status %d, body %v", status, body)
	}
	if data(t, body)["execution_id"] == "" {
		t.Errorf("no execution_id in %v", body)
	}

	status, _ = s.do(t, http.MethodPost, "/api/v3/executions", StartExecutionRequest{WorkflowID: "scale", DeploymentID: "dep1"})
	if status != http.StatusNotFound {
		t.Errorf("unknown workflow: status %d, want 404", status)
	}

	status, _ = s.do(t, http.MethodPost, "/api/v3/executions", StartExecutionRequest{WorkflowID: "heal"})
	if status != http.StatusBadRequest {
		t.Errorf("missing deployment: status %d, want 400", status)
	}

	status, _ = s.do(t, http.MethodPost, "/api/v3/executions", StartExecutionRequest{
		WorkflowID:        "heal",
		DeploymentID:      "dep1",
		BypassMaintenance: true,
	})
	if status != http.StatusBadRequest {
		t.Errorf("bypass on a deployment workflow: status %d, want 400", status)
	}

	// heal ещё выполняется: maintenance уходит в activating.
	if _, err := s.gate.Activate(context.Background(), "admin"); err != nil {
		t.Fatalf("activate: %v", err)
	}

	system := StartExecutionRequest{
		WorkflowID:  "create_snapshot",
		ExecutionID: "snap-1",
		TaskMapping: "snapshots.create",
		System:      true,
	}
	status, body = s.do(t, http.MethodPost, "/api/v3/executions", system)
	if status != http.StatusServiceUnavailable {
		t.Fatalf("system during maintenance: status %d, body %v", status, body)
	}

	system.BypassMaintenance = true
	status, body = s.do(t, http.MethodPost, "/api/v3/executions", system)
	if status != http.StatusCreated {
		t.Fatalf("system with bypass: status %d, body %v", status, body)
	}

	status, body = s.do(t, http.MethodGet, "/api/v3/executions/snap-1", nil)
	if status != http.StatusOK || data(t, body)["is_system_workflow"] != true {
		t.Errorf("get system execution: status %d, body %v", status, body)
	}
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, "secret")

	tests := []struct {
		name   string
		header []string
		status int
	}{
		{name: "no token", status: http.StatusUnauthorized},
		{name: "wrong token", header: []string{"Authorization", "Bearer nope"}, status: http.StatusUnauthorized},
		{name: "valid token", header: []string{"Authorization", "Bearer secret"}, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := s.do(t, http.MethodGet, "/api/v3/maintenance", nil, tt.header...)
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
		})
	}

	// /healthz не требует токена и отвечает текстом.
	resp, err := http.Get(s.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(raw) != "ok" {
		t.Errorf("healthz: status %d, body %q", resp.StatusCode, raw)
	}
}

func TestPutDeployment_Invalid(t *testing.T) {
	s := newTestServer(t, "")

	d := testDeployment()
	d.Topology.Nodes = append(d.Topology.Nodes, domain.Node{ID: "db"})
	status, _ := s.do(t, http.MethodPut, "/api/v3/deployments/dep1", d)
	if status != http.StatusBadRequest {
		t.Errorf("duplicate node: status %d, want 400", status)
	}

	d = testDeployment()
	d.ID = "other"
	status, _ = s.do(t, http.MethodPut, "/api/v3/deployments/dep1", d)
	if status != http.StatusBadRequest {
		t.Errorf("id mismatch: status %d, want 400", status)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind string
		want int
	}{
		{domain.KindInvalidState, http.StatusUnprocessableEntity},
		{domain.KindConflict, http.StatusConflict},
		{domain.KindNotFound, http.StatusNotFound},
		{domain.KindMaintenanceActive, http.StatusServiceUnavailable},
		{domain.KindBadParameters, http.StatusBadRequest},
		{domain.KindDispatch, http.StatusBadGateway},
		{domain.KindExecutionTimeout, http.StatusGatewayTimeout},
		{domain.KindExecutionsRunning, http.StatusConflict},
		{domain.KindRollback, http.StatusInternalServerError},
		{domain.KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			if got := StatusFor(tt.kind); got != tt.want {
				t.Errorf("StatusFor(%s) = %d, want %d", tt.kind, got, tt.want)
			}
		})
	}
}

type brokerState bool

func (b brokerState) IsConnected() bool { return bool(b) }

func TestHealthz(t *testing.T) {
	tests := []struct {
		name   string
		broker Broker
		status int
	}{
		{name: "no broker", status: http.StatusOK},
		{name: "connected", broker: brokerState(true), status: http.StatusOK},
		{name: "disconnected", broker: brokerState(false), status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(Config{Broker: tt.broker})
			rec := httptest.NewRecorder()
			h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}
