package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shaiso/Golemata/internal/descriptor"
	"github.com/shaiso/Golemata/internal/domain"
)

// DefaultDaemonURL — адрес REST API локального демона маркетплейса.
const DefaultDaemonURL = "http://localhost:7465"

// daemonPollInterval — период опроса состояния активности.
const daemonPollInterval = time.Second

// errDaemonNotFound — демон не знает запрошенный ресурс.
var errDaemonNotFound = errors.New("daemon: not found")

// DaemonClient — реализация Provider поверх REST API локального
// демона маркетплейса. Переговоры, соглашения, платежи и VPN живут
// на стороне демона; клиент оперирует только активностями.
type DaemonClient struct {
	baseURL    string
	appKey     string
	subnetTag  string
	payment    descriptor.PaymentConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// DaemonConfig — конфигурация клиента демона.
type DaemonConfig struct {
	// Node — подключение к демону (api_url, app_key, subnet_tag).
	Node descriptor.NodeConfig

	// Payment — платёжная конфигурация сессии.
	Payment descriptor.PaymentConfig

	// Logger — логгер клиента.
	Logger *slog.Logger
}

// NewDaemonClient создаёт клиент демона маркетплейса.
func NewDaemonClient(cfg DaemonConfig) *DaemonClient {
	url := cfg.Node.APIURL
	if url == "" {
		url = DefaultDaemonURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DaemonClient{
		baseURL:   url,
		appKey:    cfg.Node.AppKey,
		subnetTag: cfg.Node.SubnetTag,
		payment:   cfg.Payment,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		logger: logger,
	}
}

// CreateNetwork создаёт VPN-сеть на демоне.
func (c *DaemonClient) CreateNetwork(ctx context.Context, network *descriptor.Network) (string, error) {
	body := map[string]any{
		"ip":       network.IP,
		"owner_ip": network.OwnerIP,
		"mask":     network.Mask,
		"gateway":  network.Gateway,
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/networks", body, &resp); err != nil {
		return "", fmt.Errorf("create network: %w", err)
	}
	return resp.ID, nil
}

// RemoveNetwork удаляет сеть.
func (c *DaemonClient) RemoveNetwork(ctx context.Context, networkID string) error {
	if err := c.do(ctx, http.MethodDelete, "/v1/networks/"+networkID, nil, nil); err != nil {
		return fmt.Errorf("remove network: %w", err)
	}
	return nil
}

// Commission разворачивает один экземпляр узла: демон проводит
// переговоры, заключает соглашение, деплоит payload и выполняет
// init-команды.
func (c *DaemonClient) Commission(ctx context.Context, req CommissionRequest) (Instance, error) {
	body := map[string]any{
		"node":       req.Node,
		"index":      req.Index,
		"runtime":    req.Payload.Runtime,
		"params":     req.Payload.Params,
		"init":       req.Init,
		"network_id": req.NetworkID,
		"subnet_tag": c.subnetTag,
		"payment": map[string]any{
			"budget":  c.payment.Budget,
			"driver":  c.payment.Driver,
			"network": c.payment.Network,
		},
	}
	var resp struct {
		ID          string `json:"id"`
		AgreementID string `json:"agreement_id"`
		ProviderID  string `json:"provider_id"`
		IP          string `json:"ip"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/activities", body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommissionFailed, err)
	}

	inst := &daemonInstance{
		client:      c,
		activityID:  resp.ID,
		agreementID: resp.AgreementID,
		providerID:  resp.ProviderID,
		ip:          resp.IP,
		states:      make(chan domain.NodeState, 16),
		data:        make(chan map[string]any, 16),
		stop:        make(chan struct{}),
	}
	go inst.poll()
	return inst, nil
}

// do выполняет один запрос к демону.
func (c *DaemonClient) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.appKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.appKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", errDaemonNotFound, path)
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("daemon: HTTP %d: %s", resp.StatusCode, string(raw))
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// daemonInstance — активность на демоне.
type daemonInstance struct {
	client      *DaemonClient
	activityID  string
	agreementID string
	providerID  string
	ip          string

	states chan domain.NodeState
	data   chan map[string]any

	// finalState выставляется до close(stop); читается только из poll.
	finalState domain.NodeState
	stop       chan struct{}
	stopOnce   sync.Once
}

func (i *daemonInstance) ProviderID() string  { return i.providerID }
func (i *daemonInstance) AgreementID() string { return i.agreementID }
func (i *daemonInstance) ActivityID() string  { return i.activityID }
func (i *daemonInstance) IP() string          { return i.ip }

func (i *daemonInstance) States() <-chan domain.NodeState { return i.states }
func (i *daemonInstance) Data() <-chan map[string]any     { return i.data }

// poll опрашивает демон и транслирует смены состояния и события
// активности в приватные очереди экземпляра.
func (i *daemonInstance) poll() {
	defer close(i.states)
	defer close(i.data)

	ticker := time.NewTicker(daemonPollInterval)
	defer ticker.Stop()

	var last domain.NodeState
	cursor := 0
	for {
		select {
		case <-i.stop:
			if i.finalState != "" && i.finalState != last {
				i.states <- i.finalState
			}
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), daemonPollInterval*3)

		var stateResp struct {
			State string `json:"state"`
		}
		err := i.client.do(ctx, http.MethodGet,
			"/v1/activities/"+i.activityID+"/state", nil, &stateResp)
		if err != nil {
			cancel()
			i.client.logger.Warn("activity state poll failed",
				"activity_id", i.activityID, "error", err)
			continue
		}

		var eventsResp struct {
			Events []map[string]any `json:"events"`
			Next   int              `json:"next"`
		}
		err = i.client.do(ctx, http.MethodGet,
			fmt.Sprintf("/v1/activities/%s/events?after=%d", i.activityID, cursor),
			nil, &eventsResp)
		cancel()
		if err == nil {
			cursor = eventsResp.Next
			for _, ev := range eventsResp.Events {
				select {
				case i.data <- ev:
				case <-i.stop:
					return
				}
			}
		}

		state := domain.NodeState(stateResp.State)
		if state != last {
			last = state
			select {
			case i.states <- state:
			case <-i.stop:
				return
			}
			if state.IsTerminal() {
				return
			}
		}
	}
}

// stopPolling останавливает опрос; непустой final эмитится последней
// сменой состояния перед закрытием очередей.
func (i *daemonInstance) stopPolling(final domain.NodeState) {
	i.stopOnce.Do(func() {
		i.finalState = final
		close(i.stop)
	})
}

// Submit отправляет пакет команд на активность.
func (i *daemonInstance) Submit(ctx context.Context, commands []descriptor.Command) (ExecHandle, error) {
	body := map[string]any{"commands": commands}
	var resp struct {
		BatchID string `json:"batch_id"`
	}
	err := i.client.do(ctx, http.MethodPost,
		"/v1/activities/"+i.activityID+"/exec", body, &resp)
	if errors.Is(err, errDaemonNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrInstanceGone, i.activityID)
	}
	if err != nil {
		return nil, fmt.Errorf("submit commands: %w", err)
	}
	return &daemonExecHandle{client: i.client, activityID: i.activityID, batchID: resp.BatchID}, nil
}

// Suspend приостанавливает активность, сохраняя соглашение.
func (i *daemonInstance) Suspend(ctx context.Context) error {
	err := i.client.do(ctx, http.MethodPost,
		"/v1/activities/"+i.activityID+"/suspend", nil, nil)
	if err != nil {
		return fmt.Errorf("suspend activity: %w", err)
	}
	i.stopPolling("")
	return nil
}

// Terminate завершает активность и разрывает соглашение.
func (i *daemonInstance) Terminate(ctx context.Context) error {
	err := i.client.do(ctx, http.MethodDelete,
		"/v1/activities/"+i.activityID, nil, nil)
	if errors.Is(err, errDaemonNotFound) {
		// Активность уже закончилась на стороне демона.
		i.stopPolling(domain.NodeStateTerminated)
		return fmt.Errorf("%w: %s", ErrInstanceGone, i.activityID)
	}
	if err != nil {
		return fmt.Errorf("terminate activity: %w", err)
	}
	i.stopPolling(domain.NodeStateTerminated)
	return nil
}

// daemonExecHandle — дескриптор пакета команд на демоне.
type daemonExecHandle struct {
	client     *DaemonClient
	activityID string
	batchID    string
}

// Await опрашивает демон до завершения пакета.
func (h *daemonExecHandle) Await(ctx context.Context) (*ExecResult, error) {
	ticker := time.NewTicker(daemonPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		var resp struct {
			Finished bool   `json:"finished"`
			Success  bool   `json:"success"`
			Stdout   string `json:"stdout"`
			Stderr   string `json:"stderr"`
		}
		err := h.client.do(ctx, http.MethodGet,
			fmt.Sprintf("/v1/activities/%s/exec/%s", h.activityID, h.batchID), nil, &resp)
		if err != nil {
			return nil, err
		}
		if resp.Finished {
			return &ExecResult{Success: resp.Success, Stdout: resp.Stdout, Stderr: resp.Stderr}, nil
		}
	}
}
