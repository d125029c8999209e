package descriptor

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Golemata/internal/engine"
)

// Константы implicit-конфигурации.
const (
	// RuntimeVM — runtime виртуальной машины.
	RuntimeVM = "vm"

	// RuntimeVMManifest — runtime ВМ с подписанным манифестом.
	RuntimeVMManifest = "vm/manifest"

	// ParamCapabilities — ключ списка capabilities в params payload.
	ParamCapabilities = "capabilities"

	// CapabilityVPN — capability доступа к VPN.
	CapabilityVPN = "vpn"

	// CapabilityManifest — capability поддержки манифестов.
	CapabilityManifest = "manifest-support"

	// DefaultNetworkName — имя неявно создаваемой сети.
	DefaultNetworkName = "default"

	// DefaultNetworkIP — CIDR неявно создаваемой сети.
	DefaultNetworkIP = "192.168.0.0/24"
)

// Payload — описание образа/runtime, разворачиваемого на провайдере.
type Payload struct {
	// Runtime — идентификатор runtime ("vm", "vm/manifest", ...).
	Runtime string `yaml:"runtime" json:"runtime"`

	// Params — непрозрачные параметры payload (image_hash, manifest,
	// capabilities и т.д.). Валидируются только ключи, которые
	// инспектирует ядро, остальное передаётся провайдеру как есть.
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// HasCapability возвращает true, если capability уже объявлена.
func (p *Payload) HasCapability(cap string) bool {
	caps, _ := p.Params[ParamCapabilities].([]any)
	for _, c := range caps {
		if c == cap {
			return true
		}
	}
	return false
}

// AddCapability добавляет capability в params, идемпотентно.
func (p *Payload) AddCapability(cap string) {
	if p.HasCapability(cap) {
		return
	}
	if p.Params == nil {
		p.Params = map[string]any{}
	}
	caps, _ := p.Params[ParamCapabilities].([]any)
	p.Params[ParamCapabilities] = append(caps, cap)
}

// PortMapping — отображение порта прокси.
//
// Каноническая текстовая форма: "local:remote" либо "remote"
// (remote обязателен, local опционален и идёт первым).
type PortMapping struct {
	// Remote — порт сервиса на стороне провайдера.
	Remote int `yaml:"remote" json:"remote"`

	// Local — локальный порт. 0 — не задан, выделяется аллокатором.
	Local int `yaml:"local,omitempty" json:"local,omitempty"`

	// Address — локальный адрес после привязки прокси.
	Address string `yaml:"address,omitempty" json:"address,omitempty" gaom:"runtime"`
}

// ParsePortMapping разбирает текстовую форму отображения порта.
func ParsePortMapping(s string) (PortMapping, error) {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 1:
		remote, err := strconv.Atoi(parts[0])
		if err != nil {
			return PortMapping{}, fmt.Errorf("%w: %q", ErrInvalidPortMapping, s)
		}
		return PortMapping{Remote: remote}, nil
	case 2:
		local, err1 := strconv.Atoi(parts[0])
		remote, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return PortMapping{}, fmt.Errorf("%w: %q", ErrInvalidPortMapping, s)
		}
		return PortMapping{Remote: remote, Local: local}, nil
	default:
		return PortMapping{}, fmt.Errorf("%w: %q", ErrInvalidPortMapping, s)
	}
}

// Proxy — спецификация локального прокси узла.
type Proxy struct {
	// Ports — упорядоченный список отображений портов.
	Ports []PortMapping `yaml:"ports" json:"ports"`
}

// Node — один объявленный узел приложения.
type Node struct {
	// Payload — ссылка на payload по имени.
	Payload string `yaml:"payload" json:"payload"`

	// Init — упорядоченный список init-команд в канонической форме.
	Init []Command `yaml:"init,omitempty" json:"init,omitempty"`

	// Network — ссылка на сеть по имени. Пустая строка — узел вне сети.
	Network string `yaml:"network,omitempty" json:"network,omitempty"`

	// HTTPProxy — локальный HTTP-прокси к порту узла.
	HTTPProxy *Proxy `yaml:"http_proxy,omitempty" json:"http_proxy,omitempty"`

	// TCPProxy — локальный TCP-прокси к порту узла.
	TCPProxy *Proxy `yaml:"tcp_proxy,omitempty" json:"tcp_proxy,omitempty"`

	// DependsOn — имена узлов, которые должны выйти в running до
	// запуска этого узла.
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`

	// Replicas — количество экземпляров узла. 0 трактуется как 1.
	Replicas int `yaml:"replicas,omitempty" json:"replicas,omitempty"`

	// Runtime-поля: пустые до привязки живых ресурсов оркестратором.

	// State — имя состояния узла.
	State string `yaml:"state,omitempty" json:"state,omitempty" gaom:"runtime"`

	// IP — сетевой адрес узла внутри VPN.
	IP string `yaml:"ip,omitempty" json:"ip,omitempty" gaom:"runtime"`

	// AgreementID — идентификатор соглашения с провайдером.
	AgreementID string `yaml:"agreement_id,omitempty" json:"agreement_id,omitempty" gaom:"runtime"`

	// ActivityID — идентификатор активности на провайдере.
	ActivityID string `yaml:"activity_id,omitempty" json:"activity_id,omitempty" gaom:"runtime"`
}

// ReplicaCount возвращает объявленное число реплик (минимум 1).
func (n *Node) ReplicaCount() int {
	if n.Replicas < 1 {
		return 1
	}
	return n.Replicas
}

// Network — описание VPN-сети приложения.
type Network struct {
	// IP — CIDR сети.
	IP string `yaml:"ip" json:"ip"`

	// OwnerIP — адрес владельца (requestor) внутри сети.
	OwnerIP string `yaml:"owner_ip,omitempty" json:"owner_ip,omitempty"`

	// Mask — маска сети.
	Mask string `yaml:"mask,omitempty" json:"mask,omitempty"`

	// Gateway — шлюз сети.
	Gateway string `yaml:"gateway,omitempty" json:"gateway,omitempty"`

	// NetworkID — идентификатор созданной сети.
	NetworkID string `yaml:"network_id,omitempty" json:"network_id,omitempty" gaom:"runtime"`

	// State — состояние сети.
	State string `yaml:"state,omitempty" json:"state,omitempty" gaom:"runtime"`
}

// Dapp — корневой дескриптор приложения.
//
// Строится один раз из вложенного key-value дерева; граф
// зависимостей вычисляется сразу после валидации и далее неизменен.
type Dapp struct {
	// Payloads — объявленные payload по именам.
	Payloads map[string]*Payload `yaml:"payloads" json:"payloads"`

	// Nodes — объявленные узлы по именам.
	Nodes map[string]*Node `yaml:"nodes" json:"nodes"`

	// Networks — объявленные сети по именам.
	Networks map[string]*Network `yaml:"networks,omitempty" json:"networks,omitempty"`

	// Meta — произвольные метаданные приложения.
	Meta map[string]any `yaml:"meta,omitempty" json:"meta,omitempty"`

	graph *engine.Graph
}

// Load строит дескриптор из вложенного key-value дерева.
//
// Порядок: приведение полей → проверка перекрёстных ссылок →
// вывод implicit-умолчаний → построение графа зависимостей.
// Все ошибки загрузки всплывают до захвата любых удалённых ресурсов.
func Load(tree map[string]any) (*Dapp, error) {
	if err := checkKeys("dapp", tree, "payloads", "nodes", "networks", "meta"); err != nil {
		return nil, err
	}

	dapp := &Dapp{
		Payloads: map[string]*Payload{},
		Nodes:    map[string]*Node{},
		Networks: map[string]*Network{},
	}

	// 1. Приведение полей.
	rawPayloads, ok := tree["payloads"].(map[string]any)
	if !ok {
		return nil, NewDescriptorError("dapp", "payloads",
			"missing or invalid `payloads` section", ErrMissingField)
	}
	for name, raw := range rawPayloads {
		p, err := loadPayload(name, raw)
		if err != nil {
			return nil, err
		}
		dapp.Payloads[name] = p
	}

	rawNodes, ok := tree["nodes"].(map[string]any)
	if !ok {
		return nil, NewDescriptorError("dapp", "nodes",
			"missing or invalid `nodes` section", ErrMissingField)
	}
	for name, raw := range rawNodes {
		n, err := loadNode(name, raw)
		if err != nil {
			return nil, err
		}
		dapp.Nodes[name] = n
	}

	if rawNetworks, ok := tree["networks"].(map[string]any); ok {
		for name, raw := range rawNetworks {
			nw, err := loadNetwork(name, raw)
			if err != nil {
				return nil, err
			}
			dapp.Networks[name] = nw
		}
	}

	if meta, ok := tree["meta"].(map[string]any); ok {
		dapp.Meta = meta
	}

	// 2. Перекрёстные ссылки.
	for name, node := range dapp.Nodes {
		if _, ok := dapp.Payloads[node.Payload]; !ok {
			return nil, NewDescriptorError(name, "payload",
				fmt.Sprintf("undefined payload: `%s`", node.Payload), ErrUndefinedPayload)
		}
		if node.Network != "" {
			if _, ok := dapp.Networks[node.Network]; !ok {
				return nil, NewDescriptorError(name, "network",
					fmt.Sprintf("undefined network: `%s`", node.Network), ErrUndefinedNetwork)
			}
		}
	}

	// 3. Implicit-умолчания (идемпотентны).
	dapp.applyImplicitDefaults()

	// 4. Граф зависимостей — один раз, далее неизменен.
	deps := make(map[string][]string, len(dapp.Nodes))
	for name, node := range dapp.Nodes {
		deps[name] = node.DependsOn
	}
	graph, err := engine.BuildGraph(deps)
	if err != nil {
		return nil, err
	}
	dapp.graph = graph

	return dapp, nil
}

// applyImplicitDefaults выводит неявную конфигурацию:
//   - узел с http/tcp-прокси без сети получает сеть `default`;
//   - vm-payload узла в сети получает capability `vpn`;
//   - vm/manifest-payload получает capability `manifest-support`,
//     если capabilities не объявлены явно.
func (d *Dapp) applyImplicitDefaults() {
	for _, node := range d.Nodes {
		if (node.HTTPProxy != nil || node.TCPProxy != nil) && node.Network == "" {
			if _, ok := d.Networks[DefaultNetworkName]; !ok {
				d.Networks[DefaultNetworkName] = &Network{IP: DefaultNetworkIP}
			}
			node.Network = DefaultNetworkName
		}
	}

	for _, node := range d.Nodes {
		if node.Network == "" {
			continue
		}
		payload := d.Payloads[node.Payload]
		if payload.Runtime == RuntimeVM || payload.Runtime == RuntimeVMManifest {
			payload.AddCapability(CapabilityVPN)
		}
	}

	for _, payload := range d.Payloads {
		if payload.Runtime != RuntimeVMManifest {
			continue
		}
		if _, declared := payload.Params[ParamCapabilities]; declared {
			continue
		}
		payload.AddCapability(CapabilityManifest)
	}
}

// Graph возвращает граф зависимостей, построенный при загрузке.
func (d *Dapp) Graph() *engine.Graph {
	return d.graph
}

// NodesPrioritized возвращает имена узлов в порядке запуска:
// зависимости строго раньше зависимых.
func (d *Dapp) NodesPrioritized() []string {
	return d.graph.Prioritized()
}

// Tree сериализует дескриптор (включая runtime-поля) обратно во
// вложенное key-value дерево той же формы — для suspend/resume.
func (d *Dapp) Tree() (map[string]any, error) {
	raw, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("serialize descriptor: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("serialize descriptor: %w", err)
	}
	return tree, nil
}

// loadPayload разбирает описание payload.
func loadPayload(name string, raw any) (*Payload, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, NewDescriptorError(name, "",
			"payload must be a map", ErrInvalidField)
	}
	if err := checkKeys(name, m, "runtime", "params"); err != nil {
		return nil, err
	}

	runtime, ok := m["runtime"].(string)
	if !ok || runtime == "" {
		return nil, NewDescriptorError(name, "runtime",
			"payload requires a `runtime`", ErrMissingField)
	}

	p := &Payload{Runtime: runtime}
	if params, ok := m["params"].(map[string]any); ok {
		p.Params = params
	}
	return p, nil
}

// loadNode разбирает описание узла.
func loadNode(name string, raw any) (*Node, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, NewDescriptorError(name, "",
			"node must be a map", ErrInvalidField)
	}
	err := checkKeys(name, m,
		"payload", "init", "network", "http_proxy", "tcp_proxy",
		"depends_on", "replicas",
		"state", "ip", "agreement_id", "activity_id")
	if err != nil {
		return nil, err
	}

	payload, ok := m["payload"].(string)
	if !ok || payload == "" {
		return nil, NewDescriptorError(name, "payload",
			"node requires a `payload` reference", ErrMissingField)
	}
	node := &Node{Payload: payload}

	if node.Init, err = canonicalizeInit(name, m["init"]); err != nil {
		return nil, err
	}

	if network, ok := m["network"].(string); ok {
		node.Network = network
	}

	if raw, ok := m["http_proxy"]; ok {
		if node.HTTPProxy, err = loadProxy(name, "http_proxy", raw); err != nil {
			return nil, err
		}
	}
	if raw, ok := m["tcp_proxy"]; ok {
		if node.TCPProxy, err = loadProxy(name, "tcp_proxy", raw); err != nil {
			return nil, err
		}
	}

	if raw, ok := m["depends_on"]; ok {
		list, _ := raw.([]any)
		deps, ok := stringSlice(list)
		if !ok {
			return nil, NewDescriptorError(name, "depends_on",
				"depends_on must be a list of node names", ErrInvalidField)
		}
		node.DependsOn = deps
	}

	if raw, ok := m["replicas"]; ok {
		replicas, ok := asInt(raw)
		if !ok || replicas < 1 {
			return nil, NewDescriptorError(name, "replicas",
				"replicas must be a positive integer", ErrInvalidField)
		}
		node.Replicas = replicas
	}

	// Runtime-поля принимаются при загрузке снапшота suspend.
	node.State, _ = m["state"].(string)
	node.IP, _ = m["ip"].(string)
	node.AgreementID, _ = m["agreement_id"].(string)
	node.ActivityID, _ = m["activity_id"].(string)

	return node, nil
}

// loadProxy разбирает спецификацию прокси.
func loadProxy(node, field string, raw any) (*Proxy, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, NewDescriptorError(node, field,
			field+" must be a map", ErrInvalidField)
	}
	if err := checkKeys(node, m, "ports"); err != nil {
		return nil, err
	}

	rawPorts, _ := m["ports"].([]any)
	proxy := &Proxy{Ports: make([]PortMapping, 0, len(rawPorts))}
	for _, rp := range rawPorts {
		pm, err := loadPortMapping(node, field, rp)
		if err != nil {
			return nil, err
		}
		proxy.Ports = append(proxy.Ports, pm)
	}
	return proxy, nil
}

// loadPortMapping разбирает отображение порта: текстовую форму
// "local:remote"/"remote" либо словарную форму из Tree()-снапшота,
// несущую также runtime-привязки local и address.
func loadPortMapping(node, field string, raw any) (PortMapping, error) {
	if m, ok := raw.(map[string]any); ok {
		if err := checkKeys(node, m, "remote", "local", "address"); err != nil {
			return PortMapping{}, err
		}
		remote, ok := asInt(m["remote"])
		if !ok || remote <= 0 {
			return PortMapping{}, NewDescriptorError(node, field,
				"port mapping requires a `remote` port", ErrMissingField)
		}
		pm := PortMapping{Remote: remote}
		if local, ok := asInt(m["local"]); ok {
			pm.Local = local
		}
		if addr, ok := m["address"].(string); ok {
			pm.Address = addr
		}
		return pm, nil
	}

	s, ok := raw.(string)
	if !ok {
		s = fmt.Sprint(raw)
	}
	pm, err := ParsePortMapping(s)
	if err != nil {
		return PortMapping{}, NewDescriptorError(node, field, err.Error(), err)
	}
	return pm, nil
}

// loadNetwork разбирает описание сети.
func loadNetwork(name string, raw any) (*Network, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, NewDescriptorError(name, "",
			"network must be a map", ErrInvalidField)
	}
	err := checkKeys(name, m,
		"ip", "owner_ip", "mask", "gateway", "network_id", "state")
	if err != nil {
		return nil, err
	}

	nw := &Network{}
	nw.IP, _ = m["ip"].(string)
	if nw.IP == "" {
		nw.IP = DefaultNetworkIP
	}
	nw.OwnerIP, _ = m["owner_ip"].(string)
	nw.Mask, _ = m["mask"].(string)
	nw.Gateway, _ = m["gateway"].(string)
	nw.NetworkID, _ = m["network_id"].(string)
	nw.State, _ = m["state"].(string)
	return nw, nil
}

// checkKeys отклоняет неизвестные ключи сущности.
func checkKeys(entity string, m map[string]any, allowed ...string) error {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, k := range allowed {
		allowedSet[k] = struct{}{}
	}
	var unexpected []string
	for k := range m {
		if _, ok := allowedSet[k]; !ok {
			unexpected = append(unexpected, k)
		}
	}
	if len(unexpected) > 0 {
		return NewDescriptorError(entity, "",
			fmt.Sprintf("unexpected keys: %v", unexpected), ErrUnexpectedKeys)
	}
	return nil
}

// asInt приводит значение YAML-скаляра к int.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
