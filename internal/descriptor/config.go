package descriptor

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// NodeConfig — конфигурация подключения к локальному демону
// маркетплейса.
type NodeConfig struct {
	// SubnetTag — тег подсети провайдеров.
	SubnetTag string `yaml:"subnet_tag,omitempty" json:"subnet_tag,omitempty"`

	// APIURL — адрес REST API демона.
	APIURL string `yaml:"api_url,omitempty" json:"api_url,omitempty"`

	// AppKey — ключ приложения для авторизации.
	AppKey string `yaml:"app_key,omitempty" json:"app_key,omitempty"`
}

// PaymentConfig — платёжная конфигурация запуска.
type PaymentConfig struct {
	// Budget — бюджет сессии.
	Budget float64 `yaml:"budget" json:"budget"`

	// Driver — платёжный драйвер.
	Driver string `yaml:"driver" json:"driver"`

	// Network — платёжная сеть.
	Network string `yaml:"network" json:"network"`
}

// LimitsConfig — мягкие ограничения времени сессии.
//
// Оба таймаута мягкие: истечение запускает штатный путь остановки,
// никогда не жёсткое завершение.
type LimitsConfig struct {
	// StartupTimeout — предел ожидания первого полного перехода
	// приложения в running. 0 — без ограничения.
	StartupTimeout time.Duration `yaml:"startup_timeout,omitempty" json:"startup_timeout,omitempty"`

	// MaxRunningTime — предел общей длительности сессии.
	// 0 — без ограничения.
	MaxRunningTime time.Duration `yaml:"max_running_time,omitempty" json:"max_running_time,omitempty"`
}

// UnmarshalYAML разбирает длительности в формате time.ParseDuration
// ("30s", "4m", "1h").
func (l *LimitsConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		StartupTimeout string `yaml:"startup_timeout"`
		MaxRunningTime string `yaml:"max_running_time"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.StartupTimeout != "" {
		d, err := time.ParseDuration(raw.StartupTimeout)
		if err != nil {
			return fmt.Errorf("limits.startup_timeout: %w", err)
		}
		l.StartupTimeout = d
	}
	if raw.MaxRunningTime != "" {
		d, err := time.ParseDuration(raw.MaxRunningTime)
		if err != nil {
			return fmt.Errorf("limits.max_running_time: %w", err)
		}
		l.MaxRunningTime = d
	}
	return nil
}

// Config — корневой конфигурационный дескриптор запуска.
type Config struct {
	// Node — подключение к локальному демону.
	Node NodeConfig `yaml:"node" json:"node"`

	// Payment — платёжная конфигурация.
	Payment PaymentConfig `yaml:"payment" json:"payment"`

	// Limits — мягкие ограничения времени.
	Limits LimitsConfig `yaml:"limits,omitempty" json:"limits,omitempty"`
}

// LoadConfig загружает конфигурацию из слитых YAML-файлов.
func LoadConfig(paths ...string) (*Config, error) {
	tree, err := LoadYAMLs(paths...)
	if err != nil {
		return nil, err
	}
	if err := checkKeys("config", tree, "node", "payment", "limits"); err != nil {
		return nil, err
	}

	// Повторная сериализация даёт строгую типизацию полей без
	// ручного приведения каждого значения.
	raw, err := yaml.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}
