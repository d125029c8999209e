package engine

import (
	"errors"
	"reflect"
	"testing"
)

// Тестовое дерево в форме дескриптора: структуры с yaml-тегами
// и runtime-полями, помеченными тегом gaom.
type testProxy struct {
	Ports []testPort `yaml:"ports"`
}

type testPort struct {
	Remote  int    `yaml:"remote"`
	Local   int    `yaml:"local,omitempty"`
	Address string `yaml:"address,omitempty" gaom:"runtime"`
}

type testNode struct {
	Payload string     `yaml:"payload"`
	Proxy   *testProxy `yaml:"http_proxy,omitempty"`
	State   string     `yaml:"state,omitempty" gaom:"runtime"`
	IP      string     `yaml:"ip,omitempty" gaom:"runtime"`
}

type testRoot struct {
	Nodes map[string]*testNode `yaml:"nodes"`
	Meta  map[string]any       `yaml:"meta,omitempty"`
}

func testTree() *testRoot {
	return &testRoot{
		Nodes: map[string]*testNode{
			"db": {Payload: "db-image", State: "running", IP: "192.168.0.2"},
			"http": {
				Payload: "http-image",
				Proxy: &testProxy{Ports: []testPort{
					{Remote: 80, Local: 8080, Address: "http://localhost:8080"},
					{Remote: 443},
				}},
			},
		},
		Meta: map[string]any{"name": "sample-app"},
	}
}

func TestLookup_PlainFields(t *testing.T) {
	root := testTree()

	v, err := Lookup(root, "nodes.db.payload", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "db-image" {
		t.Errorf("expected db-image, got %v", v)
	}

	v, err = Lookup(root, "meta.name", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "sample-app" {
		t.Errorf("expected sample-app, got %v", v)
	}
}

func TestLookup_SequenceIndex(t *testing.T) {
	root := testTree()

	v, err := Lookup(root, "nodes.http.http_proxy.ports[1].remote", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 443 {
		t.Errorf("expected 443, got %v", v)
	}

	// Индекс вне диапазона
	_, err = Lookup(root, "nodes.http.http_proxy.ports[5].remote", false)
	if !errors.Is(err, ErrLookup) {
		t.Errorf("expected ErrLookup, got %v", err)
	}
}

func TestLookup_MissingKey(t *testing.T) {
	root := testTree()

	_, err := Lookup(root, "nodes.missing.payload", false)
	if !errors.Is(err, ErrLookup) {
		t.Errorf("expected ErrLookup, got %v", err)
	}

	_, err = Lookup(root, "nodes.db.nonexistent", false)
	if !errors.Is(err, ErrLookup) {
		t.Errorf("expected ErrLookup, got %v", err)
	}
}

func TestLookup_OptionalNestedObject(t *testing.T) {
	root := testTree()

	// У db нет прокси — опциональный вложенный объект отсутствует
	_, err := Lookup(root, "nodes.db.http_proxy.ports[0].remote", false)
	if !errors.Is(err, ErrLookup) {
		t.Errorf("expected ErrLookup, got %v", err)
	}
}

func TestLookup_RuntimeGating(t *testing.T) {
	root := testTree()

	// Runtime-поле вне runtime-контекста — всегда ошибка
	for i := 0; i < 3; i++ {
		_, err := Lookup(root, "nodes.db.state", false)
		if !errors.Is(err, ErrRuntimeLookup) {
			t.Fatalf("expected ErrRuntimeLookup, got %v", err)
		}
	}

	// В runtime-контексте значение возвращается детерминированно
	for i := 0; i < 3; i++ {
		v, err := Lookup(root, "nodes.db.state", true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != "running" {
			t.Errorf("expected running, got %v", v)
		}
	}

	// Runtime-поле глубже в дереве
	_, err := Lookup(root, "nodes.http.http_proxy.ports[0].address", false)
	if !errors.Is(err, ErrRuntimeLookup) {
		t.Errorf("expected ErrRuntimeLookup, got %v", err)
	}
	v, err := Lookup(root, "nodes.http.http_proxy.ports[0].address", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "http://localhost:8080" {
		t.Errorf("expected bound address, got %v", v)
	}
}

func TestLookup_EmptyPathDeepCopy(t *testing.T) {
	root := testTree()

	v, err := Lookup(root, "", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	copied, ok := v.(*testRoot)
	if !ok {
		t.Fatalf("expected *testRoot, got %T", v)
	}
	if !reflect.DeepEqual(copied, root) {
		t.Error("copy should be structurally equal to the original")
	}

	// Мутация копии не затрагивает оригинал
	copied.Nodes["db"].State = "terminated"
	if root.Nodes["db"].State != "running" {
		t.Error("mutating the copy must not affect the original tree")
	}
}

func TestLookup_PathSyntax(t *testing.T) {
	root := testTree()

	// Синтаксические ошибки всплывают до обхода
	for _, path := range []string{
		".nodes",
		"nodes..db",
		"nodes.db.",
		"nodes[",
		"nodes[x]",
		"nodes]db",
		"nodes.db[0",
	} {
		_, err := Lookup(root, path, true)
		if !errors.Is(err, ErrPathSyntax) {
			t.Errorf("path %q: expected ErrPathSyntax, got %v", path, err)
		}
	}
}
