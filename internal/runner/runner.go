package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Golemata/internal/descriptor"
	"github.com/shaiso/Golemata/internal/domain"
	"github.com/shaiso/Golemata/internal/engine"
	"github.com/shaiso/Golemata/internal/provider"
	"github.com/shaiso/Golemata/internal/telemetry"
)

const (
	// DefaultPollInterval — период опроса готовности зависимостей.
	DefaultPollInterval = 1 * time.Second

	// DefaultPortRangeStart — начало диапазона локальных портов прокси.
	DefaultPortRangeStart = 8080

	// DefaultPortRangeEnd — конец диапазона локальных портов прокси.
	DefaultPortRangeEnd = 9080

	// queueCapacity — ёмкость исходящих очередей state и data.
	queueCapacity = 256
)

// Config — конфигурация оркестратора жизненного цикла приложения.
type Config struct {
	// Dapp — загруженный дескриптор приложения.
	Dapp *descriptor.Dapp

	// Runtime — конфигурация запуска (лимиты, платежи, демон).
	Runtime *descriptor.Config

	// Provider — collaborator компьют-маркетплейса.
	Provider provider.Provider

	// Scorer — оценка офферов с чёрным списком. Опционален.
	Scorer *provider.BlacklistScorer

	// Logger — логгер оркестратора.
	Logger *slog.Logger

	// PollInterval — период опроса готовности зависимостей.
	PollInterval time.Duration

	// PortRangeStart, PortRangeEnd — диапазон локальных портов прокси.
	PortRangeStart int
	PortRangeEnd   int
}

// Runner — оркестратор жизненного цикла одного приложения.
//
// Запускает узлы в порядке зависимостей, слушает очереди состояний
// и данных экземпляров, вычисляет агрегированное состояние и
// публикует его в исходящую очередь state.
type Runner struct {
	dapp     *descriptor.Dapp
	runtime  *descriptor.Config
	provider provider.Provider
	scorer   *provider.BlacklistScorer
	logger   *slog.Logger

	pollInterval time.Duration
	ports        *PortAllocator
	proxies      *proxySet

	stateQ chan any
	dataQ  chan any

	mu          sync.RWMutex
	started     bool
	desired     domain.AppState
	clusters    map[string]*Cluster
	networks    map[string]string
	timeStarted *time.Time

	cancel         context.CancelFunc
	commissionDone chan struct{}
	wg             sync.WaitGroup
	stopOnce       sync.Once
}

// New создаёт оркестратор. Start отдельно: создание не захватывает
// никаких удалённых ресурсов.
func New(cfg Config) (*Runner, error) {
	if cfg.Dapp == nil {
		return nil, fmt.Errorf("runner: descriptor is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("runner: provider is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PortRangeStart <= 0 {
		cfg.PortRangeStart = DefaultPortRangeStart
	}
	if cfg.PortRangeEnd <= 0 {
		cfg.PortRangeEnd = DefaultPortRangeEnd
	}
	if cfg.Runtime == nil {
		cfg.Runtime = &descriptor.Config{}
	}

	ports := NewPortAllocator(cfg.PortRangeStart, cfg.PortRangeEnd)
	return &Runner{
		dapp:         cfg.Dapp,
		runtime:      cfg.Runtime,
		provider:     cfg.Provider,
		scorer:       cfg.Scorer,
		logger:       cfg.Logger,
		pollInterval: cfg.PollInterval,
		ports:        ports,
		proxies:      newProxySet(ports),
		stateQ:       make(chan any, queueCapacity),
		dataQ:        make(chan any, queueCapacity),
		clusters:     make(map[string]*Cluster),
		networks:     make(map[string]string),
		desired:      domain.AppStatePending,
	}, nil
}

// States возвращает исходящую очередь снимков состояния.
func (r *Runner) States() <-chan any { return r.stateQ }

// Data возвращает исходящую очередь данных узлов.
func (r *Runner) Data() <-chan any { return r.dataQ }

// State возвращает текущее вычисленное состояние приложения.
func (r *Runner) State() domain.AppState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return AppStateFromNodes(r.dapp.Graph().Size(), r.desired, r.nodeStatesLocked())
}

// NodeStates возвращает снимок состояний реплик всех развёрнутых узлов.
func (r *Runner) NodeStates() map[string]map[int]domain.NodeState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nodeStatesLocked()
}

// Dapp возвращает дескриптор с актуальными runtime-полями.
func (r *Runner) Dapp() *descriptor.Dapp { return r.dapp }

// Start запускает приложение: создаёт сети и разворачивает узлы в
// порядке зависимостей. Возвращается сразу после запуска горутин.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	r.desired = domain.AppStateRunning
	r.mu.Unlock()

	if err := r.proxies.reserveDeclared(r.dapp); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel

	if err := r.createNetworks(runCtx); err != nil {
		cancel()
		return err
	}

	r.commissionDone = make(chan struct{})
	r.wg.Add(1)
	go r.commissionAll(runCtx)

	if timeout := r.runtime.Limits.StartupTimeout; timeout > 0 {
		r.wg.Add(1)
		go r.watchStartup(runCtx, timeout)
	}
	if limit := r.runtime.Limits.MaxRunningTime; limit > 0 {
		r.wg.Add(1)
		go r.watchRunningTime(runCtx, limit)
	}

	r.publishState()
	return nil
}

// createNetworks создаёт все объявленные сети и записывает их
// идентификаторы в runtime-поля дескриптора.
func (r *Runner) createNetworks(ctx context.Context) error {
	for name, network := range r.dapp.Networks {
		id, err := r.provider.CreateNetwork(ctx, network)
		if err != nil {
			return fmt.Errorf("create network %s: %w", name, err)
		}
		network.NetworkID = id
		network.State = "created"

		r.mu.Lock()
		r.networks[name] = id
		r.mu.Unlock()

		r.logger.Info("network created", "network", name, "network_id", id)
	}
	return nil
}

// commissionAll разворачивает узлы в порядке зависимостей.
// Узел ждёт, пока каждая его зависимость не выйдет в running.
func (r *Runner) commissionAll(ctx context.Context) {
	defer r.wg.Done()
	defer close(r.commissionDone)

	for _, name := range r.dapp.NodesPrioritized() {
		if !r.awaitDependencies(ctx, name) {
			return
		}
		if err := r.commissionNode(ctx, name); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("node commissioning failed", "node", name, "error", err)
			go r.Stop(context.WithoutCancel(ctx))
			return
		}
	}
}

// awaitDependencies блокируется, пока все зависимости узла не выйдут
// в running. Возвращает false при отмене или смене желаемого состояния.
func (r *Runner) awaitDependencies(ctx context.Context, name string) bool {
	if ctx.Err() != nil || r.desiredState() != domain.AppStateRunning {
		return false
	}
	deps := r.dapp.Graph().Dependencies(name)
	if len(deps) == 0 {
		return true
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		if r.dependenciesRunning(deps) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if r.desiredState() != domain.AppStateRunning {
				return false
			}
		}
	}
}

// dependenciesRunning возвращает true, когда все перечисленные узлы
// развёрнуты и каждая их реплика работает.
func (r *Runner) dependenciesRunning(deps []string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, dep := range deps {
		cluster, ok := r.clusters[dep]
		if !ok || !cluster.AllRunning() {
			return false
		}
	}
	return true
}

// commissionNode разворачивает все реплики одного узла и подключает
// слушателей их очередей.
func (r *Runner) commissionNode(ctx context.Context, name string) error {
	spec := r.dapp.Nodes[name]
	payload := r.dapp.Payloads[spec.Payload]
	if payload == nil {
		return fmt.Errorf("%w: %s", ErrUnresolvedPayload, spec.Payload)
	}
	networkID := ""
	if spec.Network != "" {
		r.mu.RLock()
		networkID = r.networks[spec.Network]
		r.mu.RUnlock()
		if networkID == "" {
			return fmt.Errorf("%w: %s", ErrUnresolvedNetwork, spec.Network)
		}
	}

	cluster := NewCluster(name, spec)
	r.mu.Lock()
	r.clusters[name] = cluster
	r.mu.Unlock()

	for index := 0; index < spec.ReplicaCount(); index++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Подстановка откладывается до фактического развёртывания:
		// init может ссылаться на runtime-адреса уже живых узлов.
		init, err := r.interpolatedInit(name, spec)
		if err != nil {
			return err
		}

		inst, err := r.provider.Commission(ctx, provider.CommissionRequest{
			Node:      name,
			Index:     index,
			Payload:   payload,
			Spec:      spec,
			Init:      init,
			NetworkID: networkID,
		})
		if err != nil {
			return fmt.Errorf("commission %s[%d]: %w", name, index, err)
		}

		cluster.Add(index, inst)
		telemetry.InstanceStates.WithLabelValues(name, string(domain.NodeStatePending)).Inc()
		if index == 0 {
			spec.IP = inst.IP()
			spec.AgreementID = inst.AgreementID()
			spec.ActivityID = inst.ActivityID()
		}

		r.wg.Add(2)
		go r.listenStates(name, index, cluster, inst)
		go r.listenData(name, index, inst)

		r.logger.Info("instance commissioned",
			"node", name,
			"index", index,
			"provider_id", inst.ProviderID(),
			"agreement_id", inst.AgreementID(),
		)
	}

	r.wg.Add(1)
	go r.bindProxiesWhenRunning(ctx, name, cluster)
	return nil
}

// interpolatedInit подставляет ${...}-выражения в init-команды узла.
// Runtime-пути к этому моменту уже заполнены для зависимостей узла.
func (r *Runner) interpolatedInit(name string, spec *descriptor.Node) ([]descriptor.Command, error) {
	init := make([]descriptor.Command, len(spec.Init))
	for i, cmd := range spec.Init {
		rendered, err := engine.Interpolate(cmd.Params, r.dapp, true)
		if err != nil {
			return nil, fmt.Errorf("node %s: init[%d]: %w", name, i, err)
		}
		params, _ := rendered.(map[string]any)
		init[i] = descriptor.Command{Verb: cmd.Verb, Params: params}
	}
	return init, nil
}

// listenStates обслуживает очередь состояний одного экземпляра.
func (r *Runner) listenStates(name string, index int, cluster *Cluster, inst provider.Instance) {
	defer r.wg.Done()
	for state := range inst.States() {
		prev := cluster.States()[index]
		cluster.SetState(index, state)
		telemetry.InstanceStates.WithLabelValues(name, string(state)).Inc()
		if prev != "" {
			telemetry.InstanceStates.WithLabelValues(name, string(prev)).Dec()
		}

		if state == domain.NodeStateTerminated && r.desiredState() == domain.AppStateRunning {
			r.reportFailure(name, inst)
		}
		if index == 0 {
			cluster.Spec.State = string(state)
		}
		r.publishState()
	}
}

// reportFailure фиксирует аварийное завершение экземпляра и заносит
// его провайдера в чёрный список.
func (r *Runner) reportFailure(name string, inst provider.Instance) {
	telemetry.InstanceFailures.WithLabelValues(name).Inc()
	r.logger.Warn("instance terminated unexpectedly",
		"node", name,
		"provider_id", inst.ProviderID(),
	)
	if r.scorer != nil {
		r.scorer.Blacklist(inst.ProviderID())
	}
}

// listenData перекладывает данные экземпляра в исходящую очередь data.
func (r *Runner) listenData(name string, index int, inst provider.Instance) {
	defer r.wg.Done()
	for payload := range inst.Data() {
		r.publishData(domain.DataEntry{
			Node:      name,
			Index:     index,
			Payload:   payload,
			Timestamp: time.Now().UTC(),
		})
	}
}

// bindProxiesWhenRunning ждёт выхода узла в running и привязывает
// его прокси: выделяет локальные порты и публикует адреса.
func (r *Runner) bindProxiesWhenRunning(ctx context.Context, name string, cluster *Cluster) {
	defer r.wg.Done()
	if cluster.Spec.HTTPProxy == nil && cluster.Spec.TCPProxy == nil {
		return
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for !cluster.AllRunning() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.desiredState() != domain.AppStateRunning {
				return
			}
		}
	}

	addresses, err := r.proxies.bind(name, cluster.Spec)
	if err != nil {
		r.logger.Error("proxy binding failed", "node", name, "error", err)
		go r.Stop(context.WithoutCancel(ctx))
		return
	}

	payload := make(map[string]any, len(addresses))
	for kind, addrs := range addresses {
		anyAddrs := make([]any, len(addrs))
		for i, a := range addrs {
			anyAddrs[i] = a
		}
		payload[kind] = anyAddrs
	}
	r.publishData(domain.DataEntry{
		Node:      name,
		Index:     0,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
	r.logger.Info("proxies bound", "node", name)
}

// watchStartup останавливает приложение, если оно не вышло в running
// за отведённое время. Таймаут мягкий: запускается штатный останов.
func (r *Runner) watchStartup(ctx context.Context, timeout time.Duration) {
	defer r.wg.Done()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.State() == domain.AppStateRunning {
				return
			}
		case <-timer.C:
			if r.State() == domain.AppStateRunning {
				return
			}
			r.logger.Warn("startup timeout exceeded", "timeout", timeout)
			go r.Stop(context.WithoutCancel(ctx))
			return
		}
	}
}

// watchRunningTime останавливает приложение по истечении максимально
// разрешённого времени работы.
func (r *Runner) watchRunningTime(ctx context.Context, limit time.Duration) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.RLock()
			started := r.timeStarted
			r.mu.RUnlock()
			if runningTimeElapsed(started, limit) {
				r.logger.Warn("max running time exceeded", "limit", limit)
				go r.Stop(context.WithoutCancel(ctx))
				return
			}
		}
	}
}

// Exec отправляет пакет команд на экземпляр узла; результат
// выполнения публикуется в очередь data.
func (r *Runner) Exec(ctx context.Context, node string, index int, raw any) error {
	r.mu.RLock()
	cluster, ok := r.clusters[node]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, node)
	}
	inst, ok := cluster.Instance(index)
	if !ok {
		return fmt.Errorf("%w: %s[%d]", ErrUnknownInstance, node, index)
	}

	commands, err := descriptor.CanonicalizeCommands(node, raw)
	if err != nil {
		return err
	}
	for i, cmd := range commands {
		rendered, err := engine.Interpolate(cmd.Params, r.dapp, true)
		if err != nil {
			return fmt.Errorf("node %s: command[%d]: %w", node, i, err)
		}
		params, _ := rendered.(map[string]any)
		commands[i] = descriptor.Command{Verb: cmd.Verb, Params: params}
	}

	handle, err := inst.Submit(ctx, commands)
	if err != nil {
		return err
	}
	telemetry.CommandsExecuted.WithLabelValues(node).Inc()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		result, err := handle.Await(ctx)
		if err != nil {
			r.logger.Error("command batch failed", "node", node, "index", index, "error", err)
			return
		}
		r.publishData(domain.DataEntry{
			Node:  node,
			Index: index,
			Payload: map[string]any{
				"success": result.Success,
				"stdout":  result.Stdout,
				"stderr":  result.Stderr,
			},
			Timestamp: time.Now().UTC(),
		})
	}()
	return nil
}

// Stop останавливает приложение: прокси, затем экземпляры в обратном
// порядке приоритетов, затем сети. Идемпотентен.
func (r *Runner) Stop(ctx context.Context) {
	r.stopOnce.Do(func() { r.stop(ctx, false) })
}

// Suspend приостанавливает приложение, сохраняя соглашения, и
// возвращает снапшот дескриптора для последующего resume.
func (r *Runner) Suspend(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil, ErrNotStarted
	}
	r.mu.Unlock()

	r.stopOnce.Do(func() { r.stop(ctx, true) })
	return Snapshot(r.dapp)
}

// stop — общий путь останова для Stop и Suspend.
func (r *Runner) stop(ctx context.Context, suspend bool) {
	desired := domain.AppStateTerminated
	if suspend {
		desired = domain.AppStateSuspended
	}
	r.mu.Lock()
	r.desired = desired
	r.mu.Unlock()
	r.publishState()

	// Останов мог застать развёртывание в полёте: отменяем контекст
	// запуска и дожидаемся выхода горутины развёртывания, чтобы свип
	// ниже видел полный набор экземпляров.
	if r.cancel != nil {
		r.cancel()
	}
	if r.commissionDone != nil {
		<-r.commissionDone
	}

	// Прокси снимаются первыми: локальные порты освобождаются до
	// завершения экземпляров.
	r.proxies.releaseAll()

	order := r.dapp.NodesPrioritized()
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		r.mu.RLock()
		cluster, ok := r.clusters[name]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		for index, inst := range cluster.Instances() {
			var err error
			if suspend {
				err = inst.Suspend(ctx)
			} else {
				err = inst.Terminate(ctx)
			}
			if err != nil {
				r.logger.Error("instance shutdown failed",
					"node", name, "index", index, "error", err)
			}
		}
	}

	// При suspend сети сохраняются вместе с соглашениями.
	if !suspend {
		r.mu.RLock()
		networks := make(map[string]string, len(r.networks))
		for name, id := range r.networks {
			networks[name] = id
		}
		r.mu.RUnlock()
		for name, id := range networks {
			if err := r.provider.RemoveNetwork(ctx, id); err != nil {
				r.logger.Error("network removal failed", "network", name, "error", err)
			}
		}
	}

	r.wg.Wait()

	if !suspend {
		r.mu.RLock()
		for name, cluster := range r.clusters {
			if !cluster.AllTerminated() {
				r.logger.Warn("cluster did not report full termination", "node", name)
			}
		}
		r.mu.RUnlock()
	}

	// Финальный снимок — после того, как слушатели дочитали очереди
	// экземпляров и зафиксировали их последние состояния.
	r.emitSnapshot()
	close(r.stateQ)
	close(r.dataQ)
}

// desiredState возвращает желаемое состояние приложения.
func (r *Runner) desiredState() domain.AppState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.desired
}

// nodeStatesLocked собирает состояния реплик всех развёрнутых узлов.
// Вызывается под r.mu.
func (r *Runner) nodeStatesLocked() map[string]map[int]domain.NodeState {
	nodes := make(map[string]map[int]domain.NodeState, len(r.clusters))
	for name, cluster := range r.clusters {
		nodes[name] = cluster.States()
	}
	return nodes
}

// publishState вычисляет состояние приложения и публикует снимок.
func (r *Runner) publishState() {
	r.mu.Lock()
	nodes := r.nodeStatesLocked()
	app := AppStateFromNodes(r.dapp.Graph().Size(), r.desired, nodes)
	if app == domain.AppStateRunning && r.timeStarted == nil {
		now := time.Now().UTC()
		r.timeStarted = &now
	}
	r.mu.Unlock()

	r.push(r.stateQ, domain.StateSnapshot{
		App:       app,
		Nodes:     nodes,
		Timestamp: time.Now().UTC(),
	})
}

// emitSnapshot публикует снимок без вычисления timeStarted —
// финальная запись потока state перед закрытием очередей.
func (r *Runner) emitSnapshot() {
	r.mu.RLock()
	nodes := r.nodeStatesLocked()
	app := AppStateFromNodes(r.dapp.Graph().Size(), r.desired, nodes)
	r.mu.RUnlock()

	r.push(r.stateQ, domain.StateSnapshot{
		App:       app,
		Nodes:     nodes,
		Timestamp: time.Now().UTC(),
	})
}

// publishData публикует запись в очередь data.
func (r *Runner) publishData(entry domain.DataEntry) {
	r.push(r.dataQ, entry)
}

// push кладёт сообщение в очередь, не блокируя вызывающего.
// Переполненная очередь теряет новое сообщение с предупреждением.
func (r *Runner) push(q chan any, msg any) {
	select {
	case q <- msg:
	default:
		r.logger.Warn("outbound queue full, message dropped")
	}
}
