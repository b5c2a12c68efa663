package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument([]byte(`
id: bp2
topology:
  nodes:
    - id: db
      type: database
    - id: web
      relationships:
        - target: db
      properties:
        1: numeric-key
`))
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}

	// Документ должен кодироваться в JSON.
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"1":"numeric-key"`) {
		t.Errorf("numeric key not normalized: %s", data)
	}

	nodes := doc["topology"].(map[string]any)["nodes"].([]any)
	if len(nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(nodes))
	}

	if _, err := ParseDocument([]byte(`{"id": "bp1", "topology": {"nodes": []}}`)); err != nil {
		t.Errorf("JSON document: %v", err)
	}

	if _, err := ParseDocument([]byte("- a\n- b\n")); err == nil {
		t.Error("list document: expected error")
	}
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{name: "empty", pairs: nil, want: nil},
		{
			name:  "typed values",
			pairs: []string{"node_id=web", "count=3", "force=true", "ratio=0.5", "expr=a=b"},
			want:  map[string]any{"node_id": "web", "count": int64(3), "force": true, "ratio": 0.5, "expr": "a=b"},
		},
		{name: "missing separator", pairs: []string{"node_id"}, wantErr: true},
		{name: "empty key", pairs: []string{"=web"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseParams(tt.pairs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseParams() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseParams() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClient_Headers(t *testing.T) {
	var gotAuth, gotUser, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUser = r.Header.Get("X-Requested-By")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"id": "u1", "deployment_id": "dep1", "state": "updating", "execution_ids": ["e1"]}}`))
	}))
	defer srv.Close()

	u, err := NewClient(srv.URL, "secret", "alice").CommitUpdate("u1")
	if err != nil {
		t.Fatalf("CommitUpdate() error = %v", err)
	}

	if gotAuth != "Bearer secret" || gotUser != "alice" {
		t.Errorf("headers: Authorization=%q X-Requested-By=%q", gotAuth, gotUser)
	}
	if gotPath != "/api/v3/deployment-updates/u1/commit" {
		t.Errorf("path = %s", gotPath)
	}
	if u.State != "updating" || len(u.ExecutionIDs) != 1 {
		t.Errorf("update = %+v", u)
	}
}

func TestClient_MaintenanceNotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Write([]byte(`{"data": {"status": "activated", "remaining_executions": 0}}`))
	}))
	defer srv.Close()

	state, changed, err := NewClient(srv.URL, "", "").MaintenanceAction("activate")
	if err != nil {
		t.Fatalf("MaintenanceAction() error = %v", err)
	}
	if changed {
		t.Error("changed = true, want false for 304")
	}
	if state.Status != "activated" {
		t.Errorf("status = %s, want activated", state.Status)
	}
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error": {"code": "MAINTENANCE_MODE_ACTIVE", "message": "maintenance mode active"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", "").StartExecution(StartExecutionRequest{WorkflowID: "heal", DeploymentID: "dep1"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusServiceUnavailable || apiErr.Code != "MAINTENANCE_MODE_ACTIVE" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestOutput_Table(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := NewOutputTo(false, &stdout, &stderr)

	out.Print([]string{"ID", "ERROR"}, [][]string{{"e1", ""}}, nil)

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[2]), "-") {
		t.Errorf("empty cell not rendered as '-': %q", lines[2])
	}

	stdout.Reset()
	out.Print([]string{"ID"}, nil, nil)
	if stdout.Len() != 0 || !strings.Contains(stderr.String(), "No results") {
		t.Errorf("empty result: stdout %q, stderr %q", stdout.String(), stderr.String())
	}
}
