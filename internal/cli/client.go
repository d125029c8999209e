package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// StateResponse — состояние приложения из control API.
type StateResponse struct {
	App   string                    `json:"app"`
	Nodes map[string]map[string]any `json:"nodes"`
}

// SessionResponse — сессия из control API.
type SessionResponse struct {
	ID         string `json:"id"`
	RunID      string `json:"run_id"`
	State      string `json:"state"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// StreamResponse — записи потока из control API.
type StreamResponse struct {
	Entries []string `json:"entries"`
}

// --- Request types ---

// CommandRequest — команда управления приложением.
type CommandRequest struct {
	Command  string `json:"command,omitempty"`
	Node     string `json:"node,omitempty"`
	Index    int    `json:"index,omitempty"`
	Commands any    `json:"commands,omitempty"`
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

// --- Client ---

// Client — HTTP-клиент control API запущенной сессии.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для control API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetState возвращает текущее состояние приложения.
func (c *Client) GetState() (*StateResponse, error) {
	var state StateResponse
	err := c.get("/api/v1/state", &state)
	return &state, err
}

// GetDapp возвращает дескриптор с runtime-полями.
func (c *Client) GetDapp() (map[string]any, error) {
	var tree map[string]any
	err := c.get("/api/v1/dapp", &tree)
	return tree, err
}

// GetStates возвращает последние снимки состояния из потока state.
func (c *Client) GetStates() (*StreamResponse, error) {
	var stream StreamResponse
	err := c.get("/api/v1/states", &stream)
	return &stream, err
}

// GetData возвращает последние записи потока data.
func (c *Client) GetData() (*StreamResponse, error) {
	var stream StreamResponse
	err := c.get("/api/v1/data", &stream)
	return &stream, err
}

// GetSession возвращает запись текущей сессии.
func (c *Client) GetSession() (*SessionResponse, error) {
	var session SessionResponse
	err := c.get("/api/v1/session", &session)
	return &session, err
}

// ListSessions возвращает последние сессии.
func (c *Client) ListSessions() ([]SessionResponse, error) {
	var sessions []SessionResponse
	err := c.list("/api/v1/sessions", &sessions)
	return sessions, err
}

// SendCommand отправляет команду управления.
func (c *Client) SendCommand(req CommandRequest) error {
	return c.post("/api/v1/command", req, nil)
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, result any) error {
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

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
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

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
