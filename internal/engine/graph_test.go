package engine

import (
	"errors"
	"testing"
)

// positions строит отображение имя → позиция в порядке.
func positions(order []string) map[string]int {
	out := make(map[string]int, len(order))
	for i, name := range order {
		out[name] = i
	}
	return out
}

func TestBuildGraph_SimpleChain(t *testing.T) {
	g, err := BuildGraph(map[string][]string{
		"db":   nil,
		"api":  {"db"},
		"http": {"api"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Проверяем количество узлов (без корня)
	if g.Size() != 3 {
		t.Errorf("expected 3 nodes, got %d", g.Size())
	}

	order := g.Prioritized()
	if len(order) != 3 {
		t.Fatalf("expected 3 nodes in order, got %d", len(order))
	}

	pos := positions(order)
	if pos["db"] > pos["api"] || pos["api"] > pos["http"] {
		t.Errorf("invalid startup order: %v", order)
	}
}

func TestBuildGraph_Diamond(t *testing.T) {
	// db → cache → http
	// db → api   → http
	g, err := BuildGraph(map[string][]string{
		"db":    nil,
		"cache": {"db"},
		"api":   {"db"},
		"http":  {"cache", "api"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pos := positions(g.Prioritized())
	if pos["db"] > pos["cache"] {
		t.Error("db should come before cache")
	}
	if pos["db"] > pos["api"] {
		t.Error("db should come before api")
	}
	if pos["cache"] > pos["http"] {
		t.Error("cache should come before http")
	}
	if pos["api"] > pos["http"] {
		t.Error("api should come before http")
	}

	// Проверяем InDegree: корень даёт ребро только узлам без зависимостей
	if g.Nodes["db"].InDegree != 1 {
		t.Error("db should depend only on the synthetic root")
	}
	if g.Nodes["http"].InDegree != 2 {
		t.Error("http should have 2 dependencies")
	}
}

func TestBuildGraph_RootExcluded(t *testing.T) {
	g, err := BuildGraph(map[string][]string{
		"one": nil,
		"two": nil,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, name := range g.Prioritized() {
		if name == RootID {
			t.Error("synthetic root must not appear in the startup order")
		}
	}
}

func TestBuildGraph_CyclicDependency(t *testing.T) {
	_, err := BuildGraph(map[string][]string{
		"http": {"db"},
		"db":   {"http"},
	})
	if !errors.Is(err, ErrCyclicDependency) {
		t.Errorf("expected ErrCyclicDependency, got %v", err)
	}
}

func TestBuildGraph_LongerCycle(t *testing.T) {
	_, err := BuildGraph(map[string][]string{
		"a": {"c"},
		"b": {"a"},
		"c": {"b"},
	})
	if !errors.Is(err, ErrCyclicDependency) {
		t.Errorf("expected ErrCyclicDependency, got %v", err)
	}
}

func TestBuildGraph_UnmetDependency(t *testing.T) {
	_, err := BuildGraph(map[string][]string{
		"http": {"bar"},
	})
	if !errors.Is(err, ErrUnmetDependency) {
		t.Errorf("expected ErrUnmetDependency, got %v", err)
	}
}

func TestBuildGraph_SelfDependency(t *testing.T) {
	_, err := BuildGraph(map[string][]string{
		"http": {"http"},
	})
	if !errors.Is(err, ErrSelfDependency) {
		t.Errorf("expected ErrSelfDependency, got %v", err)
	}
}

func TestGraph_Dependencies(t *testing.T) {
	g, err := BuildGraph(map[string][]string{
		"db":   nil,
		"http": {"db"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deps := g.Dependencies("http")
	if len(deps) != 1 || deps[0] != "db" {
		t.Errorf("expected [db], got %v", deps)
	}

	// Корень не считается зависимостью
	if len(g.Dependencies("db")) != 0 {
		t.Error("db should have no dependencies")
	}
}

func TestGraph_TransitiveOrderProperty(t *testing.T) {
	g, err := BuildGraph(map[string][]string{
		"db1":  nil,
		"db2":  nil,
		"api":  {"db1", "db2"},
		"http": {"api"},
		"cron": {"http", "db1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Каждая транзитивная зависимость должна идти строго раньше узла
	pos := positions(g.Prioritized())
	transitive := map[string][]string{
		"api":  {"db1", "db2"},
		"http": {"db1", "db2", "api"},
		"cron": {"db1", "db2", "api", "http"},
	}
	for node, deps := range transitive {
		for _, dep := range deps {
			if pos[dep] > pos[node] {
				t.Errorf("%s should come before %s, order: %v", dep, node, g.Prioritized())
			}
		}
	}
}
