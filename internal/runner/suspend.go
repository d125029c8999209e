package runner

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Golemata/internal/descriptor"
)

// Snapshot сериализует дескриптор вместе с runtime-полями
// (agreement_id, activity_id, ip, состояния) в YAML-снапшот,
// пригодный для последующего resume.
func Snapshot(dapp *descriptor.Dapp) ([]byte, error) {
	tree, err := dapp.Tree()
	if err != nil {
		return nil, fmt.Errorf("suspend snapshot: %w", err)
	}
	raw, err := yaml.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("suspend snapshot: %w", err)
	}
	return raw, nil
}

// WriteSnapshot сохраняет снапшот приостановленного приложения в файл.
func WriteSnapshot(path string, dapp *descriptor.Dapp) error {
	raw, err := Snapshot(dapp)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("suspend snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot загружает снапшот приостановленного приложения.
// Снапшот проходит тот же путь валидации, что и обычный дескриптор.
func LoadSnapshot(path string) (*descriptor.Dapp, error) {
	return descriptor.LoadDapp(path)
}
