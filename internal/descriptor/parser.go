package descriptor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAMLs читает YAML-файлы и глубоко сливает их в одно дерево.
//
// Правила слияния (в порядке следования файлов):
//   - словари сливаются по ключам;
//   - списки конкатенируются;
//   - скаляры переопределяются более поздним документом.
func LoadYAMLs(paths ...string) (map[string]any, error) {
	merged := map[string]any{}
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read descriptor %s: %w", path, err)
		}
		var tree map[string]any
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("parse descriptor %s: %w", path, err)
		}
		merged = mergeMaps(merged, tree)
	}
	return merged, nil
}

// LoadDapp загружает и сливает YAML-файлы, затем строит дескриптор.
func LoadDapp(paths ...string) (*Dapp, error) {
	tree, err := LoadYAMLs(paths...)
	if err != nil {
		return nil, err
	}
	return Load(tree)
}

// mergeMaps сливает два дерева; override имеет приоритет.
func mergeMaps(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		existing, ok := out[k]
		if !ok {
			out[k] = v
			continue
		}
		out[k] = mergeValues(existing, v)
	}
	return out
}

// mergeValues сливает пару значений с одинаковым ключом.
func mergeValues(base, override any) any {
	switch ov := override.(type) {
	case map[string]any:
		if bv, ok := base.(map[string]any); ok {
			return mergeMaps(bv, ov)
		}
	case []any:
		if bv, ok := base.([]any); ok {
			return append(append([]any{}, bv...), ov...)
		}
	}
	return override
}
