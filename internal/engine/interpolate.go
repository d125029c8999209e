package engine

import (
	"fmt"
	"regexp"
	"strings"
)

// tokenRe — токен подстановки вида ${path}.
var tokenRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// InterpolateString заменяет в строке каждый токен ${path}
// строковой формой результата Lookup по дереву root.
func InterpolateString(s string, root any, isRuntime bool) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}

	var firstErr error
	out := tokenRe.ReplaceAllStringFunc(s, func(token string) string {
		if firstErr != nil {
			return token
		}
		path := tokenRe.FindStringSubmatch(token)[1]
		value, err := Lookup(root, path, isRuntime)
		if err != nil {
			firstErr = err
			return token
		}
		return stringForm(value)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// Interpolate рекурсивно заменяет токены ${path} внутри строк
// произвольного документа (строка, словарь, список).
//
// Используется для init-команд: команда одного узла может ссылаться
// на runtime-адрес другого узла в момент фактической отправки.
func Interpolate(doc any, root any, isRuntime bool) (any, error) {
	if doc == nil {
		return nil, nil
	}

	switch v := doc.(type) {
	case string:
		return InterpolateString(v, root, isRuntime)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			rendered, err := Interpolate(val, root, isRuntime)
			if err != nil {
				return nil, err
			}
			result[key] = rendered
		}
		return result, nil

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			rendered, err := Interpolate(val, root, isRuntime)
			if err != nil {
				return nil, err
			}
			result[i] = rendered
		}
		return result, nil

	case []string:
		result := make([]string, len(v))
		for i, val := range v {
			rendered, err := InterpolateString(val, root, isRuntime)
			if err != nil {
				return nil, err
			}
			result[i] = rendered
		}
		return result, nil

	default:
		// Остальные типы (int, float, bool) токенов содержать не могут.
		return doc, nil
	}
}

// stringForm приводит результат Lookup к строковой форме подстановки.
func stringForm(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
