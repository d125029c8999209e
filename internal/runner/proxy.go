package runner

import (
	"fmt"
	"sync"

	"github.com/shaiso/Golemata/internal/descriptor"
)

// proxyBinding — один привязанный локальный порт прокси узла.
type proxyBinding struct {
	node  string
	kind  string // "http_proxy" | "tcp_proxy"
	local int
}

// proxySet — отложенные прокси приложения.
//
// Прокси объявленного узла привязывается только после выхода узла
// в running: до этого момента порт не занимается и адрес в
// дескрипторе пуст.
type proxySet struct {
	ports *PortAllocator

	mu       sync.Mutex
	bindings []proxyBinding
}

// newProxySet создаёт пустой набор прокси поверх аллокатора портов.
func newProxySet(ports *PortAllocator) *proxySet {
	return &proxySet{ports: ports}
}

// reserveDeclared занимает локальные порты, явно указанные в
// дескрипторе, до любых автоматических выделений.
func (p *proxySet) reserveDeclared(dapp *descriptor.Dapp) error {
	for name, node := range dapp.Nodes {
		for _, proxy := range []*descriptor.Proxy{node.HTTPProxy, node.TCPProxy} {
			if proxy == nil {
				continue
			}
			for _, pm := range proxy.Ports {
				if pm.Local == 0 {
					continue
				}
				if err := p.ports.Reserve(pm.Local); err != nil {
					return fmt.Errorf("node %s: %w", name, err)
				}
			}
		}
	}
	return nil
}

// bind привязывает прокси узла: выделяет недостающие локальные
// порты и записывает адреса в runtime-поля отображений.
// Возвращает адреса по виду прокси для потока data.
func (p *proxySet) bind(name string, node *descriptor.Node) (map[string][]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	addresses := map[string][]string{}
	for kind, proxy := range map[string]*descriptor.Proxy{
		"http_proxy": node.HTTPProxy,
		"tcp_proxy":  node.TCPProxy,
	} {
		if proxy == nil {
			continue
		}
		for i := range proxy.Ports {
			pm := &proxy.Ports[i]
			local := pm.Local
			if local == 0 {
				allocated, err := p.ports.Allocate()
				if err != nil {
					return nil, fmt.Errorf("node %s: %w", name, err)
				}
				local = allocated
				pm.Local = local
			}
			pm.Address = proxyAddress(kind, local)
			addresses[kind] = append(addresses[kind], pm.Address)
			p.bindings = append(p.bindings, proxyBinding{node: name, kind: kind, local: local})
		}
	}
	return addresses, nil
}

// releaseAll снимает все привязки и возвращает порты в пул.
// Вызывается при останове до завершения экземпляров.
func (p *proxySet) releaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.bindings {
		p.ports.Release(b.local)
	}
	p.bindings = nil
}

// proxyAddress строит локальный адрес прокси по виду и порту.
func proxyAddress(kind string, local int) string {
	if kind == "http_proxy" {
		return fmt.Sprintf("http://localhost:%d", local)
	}
	return fmt.Sprintf("localhost:%d", local)
}
