package engine

import "errors"

// Ошибки графа зависимостей.
var (
	// ErrCyclicDependency — обнаружен цикл в depends_on.
	ErrCyclicDependency = errors.New("circular depends_on detected")

	// ErrUnmetDependency — узел зависит от несуществующего узла.
	ErrUnmetDependency = errors.New("unmet depends_on")

	// ErrSelfDependency — узел зависит от самого себя.
	ErrSelfDependency = errors.New("node depends on itself")
)

// Ошибки запросов GAOM.
var (
	// ErrLookup — путь указывает на отсутствующий ключ или индекс.
	ErrLookup = errors.New("lookup failed")

	// ErrRuntimeLookup — запрошено runtime-поле вне runtime-контекста.
	ErrRuntimeLookup = errors.New("runtime field requested outside runtime context")

	// ErrPathSyntax — путь не соответствует грамматике key(.key|[index])*.
	ErrPathSyntax = errors.New("malformed query path")
)
