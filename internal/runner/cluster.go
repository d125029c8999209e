package runner

import (
	"sync"

	"github.com/shaiso/Golemata/internal/descriptor"
	"github.com/shaiso/Golemata/internal/domain"
	"github.com/shaiso/Golemata/internal/provider"
)

// Cluster — группа живых экземпляров, обслуживающих один узел.
type Cluster struct {
	// Node — имя узла из дескриптора.
	Node string

	// Spec — описание узла.
	Spec *descriptor.Node

	mu        sync.RWMutex
	instances map[int]provider.Instance
	states    map[int]domain.NodeState
}

// NewCluster создаёт пустую группу экземпляров узла.
func NewCluster(node string, spec *descriptor.Node) *Cluster {
	return &Cluster{
		Node:      node,
		Spec:      spec,
		instances: make(map[int]provider.Instance),
		states:    make(map[int]domain.NodeState),
	}
}

// Add регистрирует развёрнутый экземпляр под индексом реплики.
func (c *Cluster) Add(index int, inst provider.Instance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instances[index] = inst
	c.states[index] = domain.NodeStatePending
}

// Instance возвращает экземпляр по индексу реплики.
func (c *Cluster) Instance(index int) (provider.Instance, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.instances[index]
	return inst, ok
}

// Instances возвращает все экземпляры группы.
func (c *Cluster) Instances() map[int]provider.Instance {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int]provider.Instance, len(c.instances))
	for i, inst := range c.instances {
		out[i] = inst
	}
	return out
}

// SetState фиксирует состояние реплики.
func (c *Cluster) SetState(index int, state domain.NodeState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[index] = state
}

// States возвращает снимок состояний реплик.
func (c *Cluster) States() map[int]domain.NodeState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int]domain.NodeState, len(c.states))
	for i, s := range c.states {
		out[i] = s
	}
	return out
}

// AllRunning возвращает true, когда каждая объявленная реплика
// узла отчиталась состоянием running.
func (c *Cluster) AllRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.states) < c.Spec.ReplicaCount() {
		return false
	}
	for _, s := range c.states {
		if s != domain.NodeStateRunning {
			return false
		}
	}
	return true
}

// AllTerminated возвращает true, когда каждая известная реплика
// узла завершена.
func (c *Cluster) AllTerminated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.states {
		if s != domain.NodeStateTerminated {
			return false
		}
	}
	return true
}
