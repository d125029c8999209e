package engine

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// pathToken — один компонент пути запроса: ключ либо индекс.
type pathToken struct {
	key     string
	index   int
	isIndex bool
}

// Lookup разрешает путь запроса по дереву дескриптора.
//
// Грамматика пути: key(.key|[index])*; синтаксическая ошибка
// всплывает до любого обхода. Пустой путь возвращает глубокую
// копию всего дерева. Поля, помеченные тегом `gaom:"runtime"`,
// доступны только при isRuntime == true.
func Lookup(root any, path string, isRuntime bool) (any, error) {
	tokens, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return deepCopy(reflect.ValueOf(root)).Interface(), nil
	}

	current := reflect.ValueOf(root)
	traversed := ""
	for _, tok := range tokens {
		current, err = step(current, tok, isRuntime, traversed)
		if err != nil {
			return nil, err
		}
		if tok.isIndex {
			traversed += fmt.Sprintf("[%d]", tok.index)
		} else {
			if traversed != "" {
				traversed += "."
			}
			traversed += tok.key
		}
	}

	if !current.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrLookup, path)
	}
	return current.Interface(), nil
}

// step выполняет один шаг обхода по токену пути.
func step(current reflect.Value, tok pathToken, isRuntime bool, traversed string) (reflect.Value, error) {
	current = indirect(current)
	if !current.IsValid() {
		return reflect.Value{}, fmt.Errorf("%w: nothing at %q", ErrLookup, traversed)
	}

	if tok.isIndex {
		if current.Kind() != reflect.Slice && current.Kind() != reflect.Array {
			return reflect.Value{}, fmt.Errorf("%w: %q is not a sequence", ErrLookup, traversed)
		}
		if tok.index < 0 || tok.index >= current.Len() {
			return reflect.Value{}, fmt.Errorf("%w: index %d out of range at %q",
				ErrLookup, tok.index, traversed)
		}
		return current.Index(tok.index), nil
	}

	switch current.Kind() {
	case reflect.Map:
		v := current.MapIndex(reflect.ValueOf(tok.key))
		if !v.IsValid() {
			return reflect.Value{}, fmt.Errorf("%w: no key %q at %q",
				ErrLookup, tok.key, traversed)
		}
		return v, nil

	case reflect.Struct:
		field, sf, ok := structField(current, tok.key)
		if !ok {
			return reflect.Value{}, fmt.Errorf("%w: no field %q at %q",
				ErrLookup, tok.key, traversed)
		}
		if sf.Tag.Get("gaom") == "runtime" && !isRuntime {
			return reflect.Value{}, fmt.Errorf("%w: %q", ErrRuntimeLookup, tok.key)
		}
		// Опциональный вложенный объект: nil трактуется как отсутствие.
		if field.Kind() == reflect.Pointer && field.IsNil() {
			return reflect.Value{}, fmt.Errorf("%w: %q is not set at %q",
				ErrLookup, tok.key, traversed)
		}
		return field, nil

	default:
		return reflect.Value{}, fmt.Errorf("%w: %q is a scalar", ErrLookup, traversed)
	}
}

// structField находит экспортируемое поле структуры по имени из
// yaml-тега (либо по имени поля в нижнем регистре, если тега нет).
func structField(v reflect.Value, key string) (reflect.Value, reflect.StructField, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" {
			continue
		}
		name := strings.Split(sf.Tag.Get("yaml"), ",")[0]
		if name == "-" {
			continue
		}
		if name == "" {
			name = strings.ToLower(sf.Name)
		}
		if name == key {
			return v.Field(i), sf, true
		}
	}
	return reflect.Value{}, reflect.StructField{}, false
}

// parsePath разбирает путь запроса на токены.
// Вся синтаксическая валидация происходит здесь, до обхода.
func parsePath(path string) ([]pathToken, error) {
	if path == "" {
		return nil, nil
	}

	var tokens []pathToken
	i := 0
	expectKey := true
	for i < len(path) {
		switch {
		case path[i] == '.':
			if expectKey {
				return nil, fmt.Errorf("%w: unexpected '.' at %d in %q", ErrPathSyntax, i, path)
			}
			i++
			expectKey = true

		case path[i] == '[':
			if expectKey {
				return nil, fmt.Errorf("%w: unexpected '[' at %d in %q", ErrPathSyntax, i, path)
			}
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated index in %q", ErrPathSyntax, path)
			}
			idx, err := strconv.Atoi(path[i+1 : i+end])
			if err != nil {
				return nil, fmt.Errorf("%w: bad index in %q", ErrPathSyntax, path)
			}
			tokens = append(tokens, pathToken{index: idx, isIndex: true})
			i += end + 1

		default:
			if !expectKey {
				return nil, fmt.Errorf("%w: unexpected %q at %d in %q",
					ErrPathSyntax, path[i], i, path)
			}
			j := i
			for j < len(path) && path[j] != '.' && path[j] != '[' {
				if path[j] == ']' {
					return nil, fmt.Errorf("%w: unexpected ']' at %d in %q",
						ErrPathSyntax, j, path)
				}
				j++
			}
			tokens = append(tokens, pathToken{key: path[i:j]})
			i = j
			expectKey = false
		}
	}
	if expectKey {
		return nil, fmt.Errorf("%w: trailing '.' in %q", ErrPathSyntax, path)
	}
	return tokens, nil
}

// indirect снимает указатели и интерфейсы с значения.
func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// deepCopy строит глубокую копию значения.
// Неэкспортируемые поля структур в копию не переносятся.
func deepCopy(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(deepCopy(v.Elem()))
		return out

	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(deepCopy(v.Elem()))
		return out

	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
		}
		return out

	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
		return out

	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).PkgPath != "" {
				continue
			}
			out.Field(i).Set(deepCopy(v.Field(i)))
		}
		return out

	default:
		return v
	}
}
