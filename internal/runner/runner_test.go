package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Golemata/internal/descriptor"
	"github.com/shaiso/Golemata/internal/domain"
	"github.com/shaiso/Golemata/internal/provider"
)

// fakeInstance — управляемый из теста экземпляр узла.
type fakeInstance struct {
	node  string
	index int
	ip    string

	states chan domain.NodeState
	data   chan map[string]any

	mu         sync.Mutex
	closed     bool
	terminated bool
	suspended  bool
	submitted  [][]descriptor.Command
}

func newFakeInstance(node string, index, n int) *fakeInstance {
	return &fakeInstance{
		node:   node,
		index:  index,
		ip:     fmt.Sprintf("10.0.0.%d", n),
		states: make(chan domain.NodeState, 8),
		data:   make(chan map[string]any, 8),
	}
}

func (f *fakeInstance) ProviderID() string  { return "prov-" + f.node }
func (f *fakeInstance) AgreementID() string { return "agr-" + f.node }
func (f *fakeInstance) ActivityID() string  { return "act-" + f.node }
func (f *fakeInstance) IP() string          { return f.ip }

func (f *fakeInstance) States() <-chan domain.NodeState { return f.states }
func (f *fakeInstance) Data() <-chan map[string]any     { return f.data }

// emit публикует смену состояния, если очереди ещё открыты.
func (f *fakeInstance) emit(state domain.NodeState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.states <- state
}

func (f *fakeInstance) closeQueues() {
	if f.closed {
		return
	}
	f.closed = true
	close(f.states)
	close(f.data)
}

func (f *fakeInstance) Submit(_ context.Context, commands []descriptor.Command) (provider.ExecHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.terminated {
		return nil, provider.ErrInstanceGone
	}
	f.submitted = append(f.submitted, commands)
	return fakeHandle{}, nil
}

func (f *fakeInstance) Suspend(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suspended = true
	f.closeQueues()
	return nil
}

func (f *fakeInstance) Terminate(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.terminated {
		return provider.ErrInstanceGone
	}
	f.terminated = true
	if !f.closed {
		f.states <- domain.NodeStateTerminated
	}
	f.closeQueues()
	return nil
}

type fakeHandle struct{}

func (fakeHandle) Await(context.Context) (*provider.ExecResult, error) {
	return &provider.ExecResult{Success: true, Stdout: "ok"}, nil
}

// fakeProvider — провайдер в памяти, фиксирующий порядок развёртываний.
type fakeProvider struct {
	// autoRun — немедленно переводить новые экземпляры в running.
	autoRun bool

	// commissionDelay имитирует долгие переговоры с маркетплейсом.
	commissionDelay time.Duration

	mu        sync.Mutex
	order     []string
	instances map[string]*fakeInstance
	requests  map[string]provider.CommissionRequest
	networks  int
	removed   []string
}

func newFakeProvider(autoRun bool) *fakeProvider {
	return &fakeProvider{
		autoRun:   autoRun,
		instances: map[string]*fakeInstance{},
		requests:  map[string]provider.CommissionRequest{},
	}
}

func (p *fakeProvider) CreateNetwork(_ context.Context, _ *descriptor.Network) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.networks++
	return fmt.Sprintf("net-%d", p.networks), nil
}

func (p *fakeProvider) RemoveNetwork(_ context.Context, networkID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, networkID)
	return nil
}

func (p *fakeProvider) Commission(_ context.Context, req provider.CommissionRequest) (provider.Instance, error) {
	if p.commissionDelay > 0 {
		time.Sleep(p.commissionDelay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	key := fmt.Sprintf("%s[%d]", req.Node, req.Index)
	p.order = append(p.order, key)
	p.requests[key] = req

	inst := newFakeInstance(req.Node, req.Index, len(p.order))
	p.instances[key] = inst
	if p.autoRun {
		inst.states <- domain.NodeStateStarting
		inst.states <- domain.NodeStateRunning
	}
	return inst, nil
}

func (p *fakeProvider) instance(key string) *fakeInstance {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.instances[key]
}

func (p *fakeProvider) commissionOrder() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.order...)
}

// baseTree строит дерево дескриптора с одним vm-payload.
func baseTree(nodes map[string]any) map[string]any {
	return map[string]any{
		"payloads": map[string]any{
			"base": map[string]any{"runtime": "vm"},
		},
		"nodes": nodes,
	}
}

func loadTestDapp(t *testing.T, tree map[string]any) *descriptor.Dapp {
	t.Helper()
	dapp, err := descriptor.Load(tree)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return dapp
}

func newTestRunner(t *testing.T, dapp *descriptor.Dapp, p provider.Provider, runtime *descriptor.Config) *Runner {
	t.Helper()
	r, err := New(Config{
		Dapp:         dapp,
		Runtime:      runtime,
		Provider:     p,
		Logger:       slog.New(slog.NewTextHandler(testWriter{t}, nil)),
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// waitApp вычитывает очередь state до появления нужного состояния.
func waitApp(t *testing.T, states <-chan any, want domain.AppState) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg, ok := <-states:
			if !ok {
				t.Fatalf("state queue closed before reaching %s", want)
			}
			if snap, ok := msg.(domain.StateSnapshot); ok && snap.App == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for app state %s", want)
		}
	}
}

// drainUntilClosed вычитывает очередь state до закрытия и возвращает
// последний снимок.
func drainUntilClosed(t *testing.T, states <-chan any) domain.StateSnapshot {
	t.Helper()
	var last domain.StateSnapshot
	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg, ok := <-states:
			if !ok {
				return last
			}
			if snap, ok := msg.(domain.StateSnapshot); ok {
				last = snap
			}
		case <-deadline:
			t.Fatal("timed out draining state queue")
		}
	}
}

func TestStartStopLifecycle(t *testing.T) {
	p := newFakeProvider(true)
	dapp := loadTestDapp(t, baseTree(map[string]any{
		"web": map[string]any{"payload": "base"},
	}))
	r := newTestRunner(t, dapp, p, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitApp(t, r.States(), domain.AppStateRunning)

	// Runtime-поля узла привязаны после развёртывания
	web := dapp.Nodes["web"]
	if web.AgreementID != "agr-web" || web.ActivityID != "act-web" {
		t.Errorf("runtime ids = %q/%q", web.AgreementID, web.ActivityID)
	}
	if web.IP == "" {
		t.Error("node IP not bound")
	}

	r.Stop(context.Background())
	last := drainUntilClosed(t, r.States())
	if last.App != domain.AppStateTerminated {
		t.Errorf("final app state = %s, want terminated", last.App)
	}
	if inst := p.instance("web[0]"); inst == nil || !inst.terminated {
		t.Error("instance was not terminated")
	}
}

func TestStartIsNotReentrant(t *testing.T) {
	p := newFakeProvider(true)
	dapp := loadTestDapp(t, baseTree(map[string]any{
		"web": map[string]any{"payload": "base"},
	}))
	r := newTestRunner(t, dapp, p, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start err = %v, want ErrAlreadyStarted", err)
	}
	r.Stop(context.Background())
}

func TestStopDuringCommissioningTerminatesInstances(t *testing.T) {
	p := newFakeProvider(true)
	p.commissionDelay = 30 * time.Millisecond
	dapp := loadTestDapp(t, baseTree(map[string]any{
		"db":  map[string]any{"payload": "base"},
		"web": map[string]any{"payload": "base", "depends_on": []any{"db"}},
	}))
	r := newTestRunner(t, dapp, p, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Stop приходит, пока развёртывание ещё в полёте
	done := make(chan struct{})
	go func() {
		r.Stop(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return while commissioning was in flight")
	}

	// Ни один успевший развернуться экземпляр не остаётся живым
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, inst := range p.instances {
		inst.mu.Lock()
		terminated := inst.terminated
		inst.mu.Unlock()
		if !terminated {
			t.Errorf("instance %s left running after Stop", key)
		}
	}
}

func TestDependencyOrderedStart(t *testing.T) {
	p := newFakeProvider(true)
	dapp := loadTestDapp(t, baseTree(map[string]any{
		"db":  map[string]any{"payload": "base"},
		"api": map[string]any{"payload": "base", "depends_on": []any{"db"}},
		"web": map[string]any{"payload": "base", "depends_on": []any{"api"}},
	}))
	r := newTestRunner(t, dapp, p, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitApp(t, r.States(), domain.AppStateRunning)
	r.Stop(context.Background())

	got := p.commissionOrder()
	want := []string{"db[0]", "api[0]", "web[0]"}
	if len(got) != len(want) {
		t.Fatalf("commission order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("commission order = %v, want %v", got, want)
			break
		}
	}
}

func TestReplicasAllRequiredForRunning(t *testing.T) {
	p := newFakeProvider(true)
	dapp := loadTestDapp(t, baseTree(map[string]any{
		"worker": map[string]any{"payload": "base", "replicas": 3},
	}))
	r := newTestRunner(t, dapp, p, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitApp(t, r.States(), domain.AppStateRunning)
	r.Stop(context.Background())

	if got := len(p.commissionOrder()); got != 3 {
		t.Errorf("commissioned %d replicas, want 3", got)
	}
}

func TestInitInterpolatedAtDispatch(t *testing.T) {
	p := newFakeProvider(true)
	dapp := loadTestDapp(t, baseTree(map[string]any{
		"db": map[string]any{"payload": "base"},
		"web": map[string]any{
			"payload":    "base",
			"depends_on": []any{"db"},
			"init":       []any{[]any{"ping", "${nodes.db.ip}"}},
		},
	}))
	r := newTestRunner(t, dapp, p, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitApp(t, r.States(), domain.AppStateRunning)
	r.Stop(context.Background())

	p.mu.Lock()
	req := p.requests["web[0]"]
	dbIP := p.instances["db[0]"].ip
	p.mu.Unlock()

	if len(req.Init) != 1 {
		t.Fatalf("init commands = %d, want 1", len(req.Init))
	}
	args, _ := req.Init[0].Params["args"].([]any)
	if len(args) != 2 || args[1] != dbIP {
		t.Errorf("interpolated args = %v, want [ping %s]", args, dbIP)
	}
}

func TestFailureBlacklistsProvider(t *testing.T) {
	p := newFakeProvider(true)
	scorer := provider.NewBlacklistScorer(
		provider.ScorerFunc(func(context.Context, provider.Offer) (float64, error) {
			return 1.0, nil
		}), nil)

	dapp := loadTestDapp(t, baseTree(map[string]any{
		"web": map[string]any{"payload": "base"},
	}))
	r, err := New(Config{
		Dapp:         dapp,
		Provider:     p,
		Scorer:       scorer,
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitApp(t, r.States(), domain.AppStateRunning)

	// Аварийное завершение при желаемом running
	p.instance("web[0]").emit(domain.NodeStateTerminated)

	deadline := time.After(3 * time.Second)
	for !scorer.IsBlacklisted("prov-web") {
		select {
		case <-deadline:
			t.Fatal("provider was not blacklisted after a failure")
		case <-time.After(10 * time.Millisecond):
		}
	}
	r.Stop(context.Background())
}

func TestProxyBindingPublishesAddresses(t *testing.T) {
	p := newFakeProvider(true)
	dapp := loadTestDapp(t, baseTree(map[string]any{
		"web": map[string]any{
			"payload":   "base",
			"tcp_proxy": map[string]any{"ports": []any{"5432"}},
		},
	}))
	r := newTestRunner(t, dapp, p, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var entry domain.DataEntry
	deadline := time.After(3 * time.Second)
	for entry.Payload == nil {
		select {
		case msg, ok := <-r.Data():
			if !ok {
				t.Fatal("data queue closed before proxy binding")
			}
			if e, ok := msg.(domain.DataEntry); ok {
				if _, isProxy := e.Payload["tcp_proxy"]; isProxy {
					entry = e
				}
			}
		case <-deadline:
			t.Fatal("timed out waiting for proxy addresses")
		}
	}
	r.Stop(context.Background())

	pm := dapp.Nodes["web"].TCPProxy.Ports[0]
	if pm.Local < DefaultPortRangeStart || pm.Local > DefaultPortRangeEnd {
		t.Errorf("allocated port %d outside the default range", pm.Local)
	}
	want := fmt.Sprintf("localhost:%d", pm.Local)
	if pm.Address != want {
		t.Errorf("bound address = %q, want %q", pm.Address, want)
	}

	addrs, _ := entry.Payload["tcp_proxy"].([]any)
	if len(addrs) != 1 || addrs[0] != want {
		t.Errorf("published addresses = %v, want [%s]", addrs, want)
	}
}

func TestStartupTimeoutStopsApp(t *testing.T) {
	// Экземпляры никогда не выходят в running
	p := newFakeProvider(false)
	dapp := loadTestDapp(t, baseTree(map[string]any{
		"web": map[string]any{"payload": "base"},
	}))
	r := newTestRunner(t, dapp, p, &descriptor.Config{
		Limits: descriptor.LimitsConfig{StartupTimeout: 50 * time.Millisecond},
	})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	last := drainUntilClosed(t, r.States())
	if last.App != domain.AppStateTerminated {
		t.Errorf("final app state = %s, want terminated", last.App)
	}
}

func TestSuspendKeepsAgreements(t *testing.T) {
	p := newFakeProvider(true)
	dapp := loadTestDapp(t, baseTree(map[string]any{
		"web": map[string]any{
			"payload":   "base",
			"tcp_proxy": map[string]any{"ports": []any{"80"}},
		},
	}))
	r := newTestRunner(t, dapp, p, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitApp(t, r.States(), domain.AppStateRunning)

	snap, err := r.Suspend(context.Background())
	if err != nil {
		t.Fatalf("Suspend: %v", err)
	}

	inst := p.instance("web[0]")
	if !inst.suspended || inst.terminated {
		t.Error("instance must be suspended, not terminated")
	}
	if len(p.removed) != 0 {
		t.Errorf("networks removed on suspend: %v", p.removed)
	}

	// Снапшот несёт runtime-привязки и загружается обратно
	var tree map[string]any
	if err := yaml.Unmarshal(snap, &tree); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	restored, err := descriptor.Load(tree)
	if err != nil {
		t.Fatalf("reload snapshot: %v", err)
	}
	if restored.Nodes["web"].AgreementID != "agr-web" {
		t.Errorf("snapshot agreement_id = %q", restored.Nodes["web"].AgreementID)
	}
}

func TestExecPublishesResult(t *testing.T) {
	p := newFakeProvider(true)
	dapp := loadTestDapp(t, baseTree(map[string]any{
		"web": map[string]any{"payload": "base"},
	}))
	r := newTestRunner(t, dapp, p, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitApp(t, r.States(), domain.AppStateRunning)

	if err := r.Exec(context.Background(), "web", 0, []any{"ls", "-l"}); err != nil {
		t.Fatalf("Exec: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg, ok := <-r.Data():
			if !ok {
				t.Fatal("data queue closed before the exec result")
			}
			if e, ok := msg.(domain.DataEntry); ok {
				if success, has := e.Payload["success"]; has {
					if success != true {
						t.Errorf("exec result = %v", e.Payload)
					}
					r.Stop(context.Background())
					return
				}
			}
		case <-deadline:
			t.Fatal("timed out waiting for the exec result")
		}
	}
}

func TestExecUnknownTarget(t *testing.T) {
	p := newFakeProvider(true)
	dapp := loadTestDapp(t, baseTree(map[string]any{
		"web": map[string]any{"payload": "base"},
	}))
	r := newTestRunner(t, dapp, p, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitApp(t, r.States(), domain.AppStateRunning)
	defer r.Stop(context.Background())

	if err := r.Exec(context.Background(), "ghost", 0, []any{"ls"}); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("err = %v, want ErrUnknownNode", err)
	}
	if err := r.Exec(context.Background(), "web", 7, []any{"ls"}); !errors.Is(err, ErrUnknownInstance) {
		t.Errorf("err = %v, want ErrUnknownInstance", err)
	}
}
