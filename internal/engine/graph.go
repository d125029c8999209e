package engine

import (
	"fmt"
	"sort"
)

// RootID — идентификатор синтетического корня графа.
//
// Корень получает ребро к каждому узлу без явных зависимостей и
// никогда не попадает в порядок запуска.
const RootID = "<root>"

// Node — узел графа зависимостей.
type Node struct {
	// ID — имя узла из дескриптора.
	ID string

	// InDegree — количество зависимостей узла.
	InDegree int

	// DependsOn — узлы, от которых зависит этот узел.
	DependsOn []*Node

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node
}

// Graph — направленный ациклический граф зависимостей узлов.
//
// Строится один раз при загрузке дескриптора и далее неизменен.
type Graph struct {
	// Nodes — все узлы графа, включая синтетический корень.
	Nodes map[string]*Node

	// Root — синтетический корень.
	Root *Node

	// order — топологический порядок (зависимости строго раньше
	// зависимых), без корня.
	order []string
}

// BuildGraph строит граф из отображения узел → имена зависимостей.
//
// Ребро направлено от узла к каждой его зависимости; узлы без
// зависимостей получают ребро от синтетического корня. Неразрешимое
// имя зависимости и цикл — ошибки построения.
func BuildGraph(deps map[string][]string) (*Graph, error) {
	g := &Graph{
		Nodes: make(map[string]*Node, len(deps)+1),
		Root:  &Node{ID: RootID},
	}
	g.Nodes[RootID] = g.Root

	// Первый проход: создаём все узлы в детерминированном порядке.
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		g.Nodes[name] = &Node{ID: name}
	}

	// Второй проход: связываем узлы по зависимостям.
	for _, name := range names {
		node := g.Nodes[name]
		for _, depName := range deps[name] {
			if depName == name {
				return nil, fmt.Errorf("%w: %q", ErrSelfDependency, name)
			}
			dep, exists := g.Nodes[depName]
			if !exists {
				return nil, fmt.Errorf("%w: %q in node %q",
					ErrUnmetDependency, depName, name)
			}
			g.addEdge(dep, node)
		}
		if len(deps[name]) == 0 {
			g.addEdge(g.Root, node)
		}
	}

	order, err := g.topologicalSort()
	if err != nil {
		return nil, err
	}
	g.order = order

	return g, nil
}

// addEdge добавляет ребро from → to с защитой от дубликатов,
// чтобы не учитывать InDegree дважды.
func (g *Graph) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep.ID == from.ID {
			return
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

// topologicalSort выполняет сортировку алгоритмом Кана.
// Возвращает порядок без синтетического корня.
func (g *Graph) topologicalSort() ([]string, error) {
	// Копируем inDegree, чтобы не модифицировать узлы.
	inDegree := make(map[string]int, len(g.Nodes))
	for id, node := range g.Nodes {
		inDegree[id] = node.InDegree
	}

	queue := []*Node{g.Root}
	order := make([]string, 0, len(g.Nodes)-1)

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node.ID != RootID {
			order = append(order, node.ID)
		}

		for _, dependent := range node.Dependents {
			inDegree[dependent.ID]--
			if inDegree[dependent.ID] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	// Если не все узлы обработаны — есть цикл.
	if len(order) != len(g.Nodes)-1 {
		return nil, ErrCyclicDependency
	}

	return order, nil
}

// Prioritized возвращает имена узлов в порядке запуска: каждая
// транзитивная зависимость узла идёт строго раньше него.
func (g *Graph) Prioritized() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Size возвращает количество узлов без учёта корня.
func (g *Graph) Size() int {
	return len(g.Nodes) - 1
}

// Dependencies возвращает имена прямых зависимостей узла.
func (g *Graph) Dependencies(id string) []string {
	node := g.Nodes[id]
	if node == nil {
		return nil
	}
	deps := make([]string, 0, len(node.DependsOn))
	for _, dep := range node.DependsOn {
		if dep.ID == RootID {
			continue
		}
		deps = append(deps, dep.ID)
	}
	return deps
}
