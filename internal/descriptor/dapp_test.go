package descriptor

import (
	"errors"
	"testing"

	"github.com/shaiso/Golemata/internal/engine"
)

// simpleTree строит минимальный валидный дескриптор.
func simpleTree() map[string]any {
	return map[string]any{
		"payloads": map[string]any{
			"simple-service": map[string]any{
				"runtime": "vm",
				"params":  map[string]any{"image_hash": "some-hash"},
			},
		},
		"nodes": map[string]any{
			"simple-service": map[string]any{
				"payload": "simple-service",
				"init": []any{
					[]any{"/golem/run/simulate_observations_ctl.py", "--start"},
				},
			},
		},
	}
}

func TestLoad_Simple(t *testing.T) {
	dapp, err := Load(simpleTree())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(dapp.Payloads) != 1 || len(dapp.Nodes) != 1 {
		t.Fatalf("expected 1 payload and 1 node, got %d/%d",
			len(dapp.Payloads), len(dapp.Nodes))
	}

	node := dapp.Nodes["simple-service"]
	if len(node.Init) != 1 || node.Init[0].Verb != "run" {
		t.Errorf("expected one canonical run command, got %+v", node.Init)
	}
}

func TestLoad_Meta(t *testing.T) {
	tree := simpleTree()
	tree["meta"] = map[string]any{
		"name":        "sample-app",
		"description": "a simple application",
	}

	dapp, err := Load(tree)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dapp.Meta["name"] != "sample-app" {
		t.Errorf("meta should be carried over, got %v", dapp.Meta)
	}
}

func TestLoad_UndefinedPayload(t *testing.T) {
	tree := simpleTree()
	tree["nodes"].(map[string]any)["simple-service"].(map[string]any)["payload"] = "other"

	_, err := Load(tree)
	if !errors.Is(err, ErrUndefinedPayload) {
		t.Errorf("expected ErrUndefinedPayload, got %v", err)
	}
}

func TestLoad_UndefinedNetwork(t *testing.T) {
	tree := simpleTree()
	tree["nodes"].(map[string]any)["simple-service"].(map[string]any)["network"] = "missing"

	_, err := Load(tree)
	if !errors.Is(err, ErrUndefinedNetwork) {
		t.Errorf("expected ErrUndefinedNetwork, got %v", err)
	}
}

func TestLoad_UnexpectedKeys(t *testing.T) {
	_, err := Load(map[string]any{"unsupported": map[string]any{}})
	if !errors.Is(err, ErrUnexpectedKeys) {
		t.Errorf("expected ErrUnexpectedKeys, got %v", err)
	}

	// Неизвестный ключ внутри узла
	tree := simpleTree()
	tree["nodes"].(map[string]any)["simple-service"].(map[string]any)["unknown"] = 1
	_, err = Load(tree)
	if !errors.Is(err, ErrUnexpectedKeys) {
		t.Errorf("expected ErrUnexpectedKeys, got %v", err)
	}
}

func TestLoad_MissingPayloads(t *testing.T) {
	_, err := Load(map[string]any{
		"nodes": map[string]any{
			"svc": map[string]any{"payload": "svc"},
		},
	})
	if !errors.Is(err, ErrMissingField) {
		t.Errorf("expected ErrMissingField, got %v", err)
	}
}

func TestParsePortMapping(t *testing.T) {
	cases := []struct {
		in      string
		remote  int
		local   int
		wantErr bool
	}{
		// Каноническая форма: "local:remote", remote обязателен
		{"2525:25", 25, 2525, false},
		{"8080:80", 80, 8080, false},
		{"80", 80, 0, false},
		{"", 0, 0, true},
		{"a:b", 0, 0, true},
		{"1:2:3", 0, 0, true},
	}

	for _, tc := range cases {
		pm, err := ParsePortMapping(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidPortMapping) {
				t.Errorf("%q: expected ErrInvalidPortMapping, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tc.in, err)
			continue
		}
		if pm.Remote != tc.remote || pm.Local != tc.local {
			t.Errorf("%q: expected remote=%d local=%d, got %+v",
				tc.in, tc.remote, tc.local, pm)
		}
	}
}

// proxyTree строит дескриптор с прокси указанного типа.
func proxyTree(proxyKey, runtime string) map[string]any {
	return map[string]any{
		"payloads": map[string]any{
			"foo": map[string]any{"runtime": runtime},
		},
		"nodes": map[string]any{
			"http": map[string]any{
				"payload": "foo",
				"init":    []any{},
				proxyKey: map[string]any{
					"ports": []any{"80"},
				},
			},
		},
	}
}

func TestLoad_ImplicitDefaultNetwork(t *testing.T) {
	for _, proxyKey := range []string{"http_proxy", "tcp_proxy"} {
		dapp, err := Load(proxyTree(proxyKey, "bar"))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", proxyKey, err)
		}

		node := dapp.Nodes["http"]
		if node.Network != DefaultNetworkName {
			t.Errorf("%s: expected implicit default network, got %q", proxyKey, node.Network)
		}
		if _, ok := dapp.Networks[DefaultNetworkName]; !ok {
			t.Errorf("%s: default network should be created", proxyKey)
		}
	}
}

func TestLoad_ExplicitNetworkKept(t *testing.T) {
	tree := proxyTree("http_proxy", "bar")
	tree["networks"] = map[string]any{
		"custom": map[string]any{"ip": "10.0.0.0/24"},
	}
	tree["nodes"].(map[string]any)["http"].(map[string]any)["network"] = "custom"

	dapp, err := Load(tree)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dapp.Nodes["http"].Network != "custom" {
		t.Error("explicit network must not be replaced by the default one")
	}
	if _, ok := dapp.Networks[DefaultNetworkName]; ok {
		t.Error("default network must not be created when one is declared")
	}
}

func TestLoad_ImplicitVPNCapability(t *testing.T) {
	// Не-vm runtime не получает capability
	dapp, err := Load(proxyTree("http_proxy", "bar"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dapp.Payloads["foo"].HasCapability(CapabilityVPN) {
		t.Error("non-vm runtime must not gain the vpn capability")
	}

	// vm runtime в сети получает vpn, идемпотентно
	dapp, err = Load(proxyTree("tcp_proxy", "vm"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := dapp.Payloads["foo"]
	if !payload.HasCapability(CapabilityVPN) {
		t.Fatal("vm runtime on a network should gain the vpn capability")
	}

	payload.AddCapability(CapabilityVPN)
	caps := payload.Params[ParamCapabilities].([]any)
	if len(caps) != 1 {
		t.Errorf("capability injection must be idempotent, got %v", caps)
	}
}

func TestLoad_ImplicitManifestCapability(t *testing.T) {
	tree := map[string]any{
		"payloads": map[string]any{
			"foo": map[string]any{"runtime": "vm/manifest"},
		},
		"nodes": map[string]any{
			"http": map[string]any{"payload": "foo", "init": []any{}},
		},
	}

	dapp, err := Load(tree)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dapp.Payloads["foo"].HasCapability(CapabilityManifest) {
		t.Error("vm/manifest runtime should gain manifest-support")
	}

	// Явно объявленные capabilities отключают implicit manifest-support
	tree["payloads"].(map[string]any)["foo"].(map[string]any)["params"] =
		map[string]any{"capabilities": []any{"vpn"}}
	dapp, err = Load(tree)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dapp.Payloads["foo"].HasCapability(CapabilityManifest) {
		t.Error("explicit capabilities must suppress implicit manifest-support")
	}
}

func TestLoad_DependsOnPriority(t *testing.T) {
	tree := map[string]any{
		"payloads": map[string]any{
			"foo": map[string]any{"runtime": "vm"},
		},
		"nodes": map[string]any{
			"db1":  map[string]any{"payload": "foo", "init": []any{}},
			"db2":  map[string]any{"payload": "foo", "init": []any{}},
			"http": map[string]any{
				"payload":    "foo",
				"init":       []any{},
				"depends_on": []any{"db1", "db2"},
			},
		},
	}

	dapp, err := Load(tree)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order := dapp.NodesPrioritized()
	if len(order) != 3 {
		t.Fatalf("expected 3 nodes, got %v", order)
	}
	if order[2] != "http" {
		t.Errorf("http must start last, order: %v", order)
	}
}

func TestLoad_UnmetDependsOn(t *testing.T) {
	tree := map[string]any{
		"payloads": map[string]any{
			"foo": map[string]any{"runtime": "vm"},
		},
		"nodes": map[string]any{
			"http": map[string]any{
				"payload":    "foo",
				"init":       []any{},
				"depends_on": []any{"bar"},
			},
		},
	}

	_, err := Load(tree)
	if !errors.Is(err, engine.ErrUnmetDependency) {
		t.Errorf("expected ErrUnmetDependency, got %v", err)
	}
}

func TestLoad_CircularDependsOn(t *testing.T) {
	tree := map[string]any{
		"payloads": map[string]any{
			"foo": map[string]any{"runtime": "vm"},
		},
		"nodes": map[string]any{
			"http": map[string]any{
				"payload":    "foo",
				"init":       []any{},
				"depends_on": []any{"db"},
			},
			"db": map[string]any{
				"payload":    "foo",
				"init":       []any{},
				"depends_on": []any{"http"},
			},
		},
	}

	_, err := Load(tree)
	if !errors.Is(err, engine.ErrCyclicDependency) {
		t.Errorf("expected ErrCyclicDependency, got %v", err)
	}
}

func TestDapp_TreeRoundtrip(t *testing.T) {
	dapp, err := Load(simpleTree())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Привязываем runtime-поля, как это делает оркестратор
	node := dapp.Nodes["simple-service"]
	node.State = "running"
	node.AgreementID = "agreement-1"

	tree, err := dapp.Tree()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Дерево загружается обратно с сохранением runtime-полей
	restored, err := Load(tree)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	rnode := restored.Nodes["simple-service"]
	if rnode.State != "running" || rnode.AgreementID != "agreement-1" {
		t.Errorf("runtime fields lost in roundtrip: %+v", rnode)
	}
	if len(rnode.Init) != 1 || rnode.Init[0].Verb != "run" {
		t.Errorf("init commands lost in roundtrip: %+v", rnode.Init)
	}
}

func TestDapp_TreeRoundtripProxyPorts(t *testing.T) {
	tree := simpleTree()
	nodes := tree["nodes"].(map[string]any)
	nodes["simple-service"].(map[string]any)["tcp_proxy"] =
		map[string]any{"ports": []any{"2525:25"}}

	dapp, err := Load(tree)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Привязка прокси заполняет runtime-поля отображения порта
	node := dapp.Nodes["simple-service"]
	node.TCPProxy.Ports[0].Local = 2525
	node.TCPProxy.Ports[0].Address = "localhost:2525"

	out, err := dapp.Tree()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Снапшот с прокси загружается обратно: словарная форма
	// отображения порта принимается наравне с текстовой
	restored, err := Load(out)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	pm := restored.Nodes["simple-service"].TCPProxy.Ports[0]
	if pm.Remote != 25 || pm.Local != 2525 {
		t.Errorf("ports lost in roundtrip: %+v", pm)
	}
	if pm.Address != "localhost:2525" {
		t.Errorf("bound address lost in roundtrip: %q", pm.Address)
	}
}

func TestLoad_Replicas(t *testing.T) {
	tree := simpleTree()
	tree["nodes"].(map[string]any)["simple-service"].(map[string]any)["replicas"] = 3

	dapp, err := Load(tree)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dapp.Nodes["simple-service"].ReplicaCount() != 3 {
		t.Errorf("expected 3 replicas, got %d", dapp.Nodes["simple-service"].ReplicaCount())
	}

	// По умолчанию одна реплика
	dapp, _ = Load(simpleTree())
	if dapp.Nodes["simple-service"].ReplicaCount() != 1 {
		t.Error("default replica count should be 1")
	}

	tree["nodes"].(map[string]any)["simple-service"].(map[string]any)["replicas"] = 0
	if _, err := Load(tree); !errors.Is(err, ErrInvalidField) {
		t.Errorf("expected ErrInvalidField for zero replicas, got %v", err)
	}
}
