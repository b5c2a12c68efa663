package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// apiPrefix — версия API, с которой работает CLI.
const apiPrefix = "/api/v3"

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// StepResponse — шаг update из API.
type StepResponse struct {
	Operation  string `json:"operation"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Index      int    `json:"ordering_index"`
}

// UpdateResponse — deployment update из API.
type UpdateResponse struct {
	ID                 string         `json:"id"`
	DeploymentID       string         `json:"deployment_id"`
	BlueprintID        string         `json:"blueprint_id,omitempty"`
	State              string         `json:"state"`
	Steps              []StepResponse `json:"steps"`
	ExecutionIDs       []string       `json:"execution_ids"`
	Error              string         `json:"error,omitempty"`
	RollbackIncomplete bool           `json:"rollback_incomplete"`
	CreatedAt          string         `json:"created_at"`
	CommittedAt        string         `json:"committed_at,omitempty"`
	FinishedAt         string         `json:"finished_at,omitempty"`
}

// MaintenanceResponse — состояние maintenance mode из API.
type MaintenanceResponse struct {
	Status                string `json:"status"`
	ActivationRequestedAt string `json:"activation_requested_at,omitempty"`
	RequestedBy           string `json:"requested_by,omitempty"`
	RemainingExecutions   int    `json:"remaining_executions"`
}

// ExecutionResponse — execution из API.
type ExecutionResponse struct {
	ID                string         `json:"id"`
	WorkflowID        string         `json:"workflow_id"`
	DeploymentID      string         `json:"deployment_id,omitempty"`
	UpdateID          string         `json:"update_id,omitempty"`
	Status            string         `json:"status"`
	IsSystem          bool           `json:"is_system_workflow"`
	BypassMaintenance bool           `json:"bypass_maintenance"`
	Parameters        map[string]any `json:"parameters,omitempty"`
	Error             string         `json:"error,omitempty"`
	CreatedAt         string         `json:"created_at"`
	EndedAt           string         `json:"ended_at,omitempty"`
}

// HandleResponse — результат запуска execution.
type HandleResponse struct {
	ExecutionID string `json:"execution_id"`
	Queue       string `json:"queue"`
	SentAt      string `json:"sent_at"`
}

// DeploymentResponse — deployment из API.
type DeploymentResponse struct {
	ID          string         `json:"id"`
	BlueprintID string         `json:"blueprint_id"`
	Topology    map[string]any `json:"topology"`
	Workflows   map[string]any `json:"workflows,omitempty"`
	Plugins     []any          `json:"plugins,omitempty"`
	UpdatedAt   string         `json:"updated_at"`
}

// --- Request types ---

// StageRequest — создание update.
type StageRequest struct {
	DeploymentID string         `json:"deployment_id"`
	Blueprint    map[string]any `json:"blueprint"`
}

// AddStepRequest — добавление шага.
type AddStepRequest struct {
	Operation  string `json:"operation"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// StartExecutionRequest — запуск workflow.
type StartExecutionRequest struct {
	WorkflowID        string         `json:"workflow_id"`
	DeploymentID      string         `json:"deployment_id,omitempty"`
	ExecutionID       string         `json:"execution_id,omitempty"`
	Parameters        map[string]any `json:"parameters,omitempty"`
	BypassMaintenance bool           `json:"bypass_maintenance,omitempty"`
	System            bool           `json:"is_system_workflow,omitempty"`
	TaskMapping       string         `json:"task_mapping,omitempty"`
}

// ListUpdatesOpts — параметры фильтрации updates.
type ListUpdatesOpts struct {
	DeploymentID string
	State        string
	Limit        int
	Offset       int
	Descending   bool
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError — ошибка, которую вернул сервер.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для Helmsman API.
type Client struct {
	baseURL    string
	token      string
	user       string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
// token передаётся как bearer token, user — как X-Requested-By.
func NewClient(baseURL, token, user string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		user:    user,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Deployment updates ---

// ListUpdates возвращает updates с фильтрацией.
func (c *Client) ListUpdates(opts ListUpdatesOpts) ([]UpdateResponse, error) {
	params := url.Values{}
	if opts.DeploymentID != "" {
		params.Set("deployment_id", opts.DeploymentID)
	}
	if opts.State != "" {
		params.Set("state", opts.State)
	}
	if opts.Limit > 0 {
		params.Set("_size", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("_offset", strconv.Itoa(opts.Offset))
	}
	if opts.Descending {
		params.Set("_sort", "-created_at")
	}

	var updates []UpdateResponse
	err := c.list("/deployment-updates", params, &updates)
	return updates, err
}

// StageUpdate создаёт update для deployment.
func (c *Client) StageUpdate(deploymentID string, blueprint map[string]any) (*UpdateResponse, error) {
	var u UpdateResponse
	err := c.post("/deployment-updates", StageRequest{DeploymentID: deploymentID, Blueprint: blueprint}, &u)
	return &u, err
}

// GetUpdate возвращает update по ID.
func (c *Client) GetUpdate(id string) (*UpdateResponse, error) {
	var u UpdateResponse
	err := c.get("/deployment-updates/"+id, &u)
	return &u, err
}

// AddStep добавляет шаг к update.
func (c *Client) AddStep(id string, req AddStepRequest) (*StepResponse, error) {
	var step StepResponse
	err := c.post("/deployment-updates/"+id+"/steps", req, &step)
	return &step, err
}

// CommitUpdate применяет update.
func (c *Client) CommitUpdate(id string) (*UpdateResponse, error) {
	return c.updateAction(id, "commit")
}

// FinalizeUpdate завершает update.
func (c *Client) FinalizeUpdate(id string) (*UpdateResponse, error) {
	return c.updateAction(id, "finalize")
}

// DiscardUpdate отменяет update.
func (c *Client) DiscardUpdate(id string) (*UpdateResponse, error) {
	return c.updateAction(id, "discard")
}

func (c *Client) updateAction(id, action string) (*UpdateResponse, error) {
	var u UpdateResponse
	err := c.post("/deployment-updates/"+id+"/"+action, nil, &u)
	return &u, err
}

// --- Maintenance ---

// GetMaintenance возвращает состояние maintenance mode.
func (c *Client) GetMaintenance() (*MaintenanceResponse, error) {
	var state MaintenanceResponse
	err := c.get("/maintenance", &state)
	return &state, err
}

// MaintenanceAction выполняет activate/deactivate.
// changed=false означает, что состояние уже было таким (HTTP 304).
func (c *Client) MaintenanceAction(action string) (state *MaintenanceResponse, changed bool, err error) {
	state = &MaintenanceResponse{}
	status, err := c.doData(http.MethodPost, "/maintenance/"+action, nil, state)
	if err != nil {
		return nil, false, err
	}
	if status == http.StatusNotModified {
		state, err = c.GetMaintenance()
		return state, false, err
	}
	return state, true, nil
}

// --- Deployments ---

// GetDeployment возвращает deployment по ID.
func (c *Client) GetDeployment(id string) (*DeploymentResponse, error) {
	var d DeploymentResponse
	err := c.get("/deployments/"+id, &d)
	return &d, err
}

// PutDeployment регистрирует или заменяет deployment.
func (c *Client) PutDeployment(id string, doc map[string]any) (*DeploymentResponse, error) {
	var d DeploymentResponse
	_, err := c.doData(http.MethodPut, "/deployments/"+id, doc, &d)
	return &d, err
}

// --- Executions ---

// StartExecution запускает workflow.
func (c *Client) StartExecution(req StartExecutionRequest) (*HandleResponse, error) {
	var h HandleResponse
	err := c.post("/executions", req, &h)
	return &h, err
}

// GetExecution возвращает execution по ID.
func (c *Client) GetExecution(id string) (*ExecutionResponse, error) {
	var e ExecutionResponse
	err := c.get("/executions/"+id, &e)
	return &e, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	_, err := c.doData(http.MethodGet, path, nil, result)
	return err
}

func (c *Client) post(path string, body any, result any) error {
	_, err := c.doData(http.MethodPost, path, body, result)
	return err
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) (int, error) {
	resp, err := c.do(method, path, body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return resp.StatusCode, err
	}

	// 204 No Content, 304 Not Modified
	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotModified {
		return resp.StatusCode, nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return resp.StatusCode, json.Unmarshal(dr.Data, result)
	}
	return resp.StatusCode, nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+apiPrefix+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.user != "" {
		req.Header.Set("X-Requested-By", c.user)
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{Status: resp.StatusCode}
	}

	return &APIError{Status: resp.StatusCode, Code: er.Error.Code, Message: er.Error.Message}
}
