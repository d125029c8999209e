package domain

// NodeState — состояние экземпляра узла на провайдере.
//
// Жизненный цикл:
//
//	PENDING → STARTING → RUNNING → STOPPING → TERMINATED
//	                   ↘ TERMINATED (при сбое запуска)
type NodeState string

const (
	// NodeStatePending — экземпляр ещё не начал запускаться.
	NodeStatePending NodeState = "pending"

	// NodeStateStarting — идёт переговор, деплой и init-команды.
	NodeStateStarting NodeState = "starting"

	// NodeStateRunning — экземпляр работает.
	NodeStateRunning NodeState = "running"

	// NodeStateStopping — экземпляр останавливается.
	NodeStateStopping NodeState = "stopping"

	// NodeStateTerminated — экземпляр завершён (штатно или аварийно).
	NodeStateTerminated NodeState = "terminated"
)

// IsTerminal возвращает true, если состояние финальное.
func (s NodeState) IsTerminal() bool {
	return s == NodeStateTerminated
}

// AppState — агрегированное состояние приложения.
//
// Никогда не хранится: вычисляется из желаемого состояния и
// состояний всех экземпляров всех узлов.
//
// Жизненный цикл:
//
//	PENDING → STARTING → RUNNING → STOPPING → TERMINATED
//	                             ↘ SUSPENDED (по команде suspend)
type AppState string

const (
	// AppStatePending — запуск ещё не начался.
	AppStatePending AppState = "pending"

	// AppStateStarting — часть узлов ещё не вышла в running.
	AppStateStarting AppState = "starting"

	// AppStateRunning — все объявленные узлы работают.
	AppStateRunning AppState = "running"

	// AppStateStopping — идёт остановка, часть узлов ещё жива.
	AppStateStopping AppState = "stopping"

	// AppStateTerminated — все экземпляры завершены.
	AppStateTerminated AppState = "terminated"

	// AppStateSuspended — приложение приостановлено, соглашения сохранены.
	AppStateSuspended AppState = "suspended"
)

// IsTerminal возвращает true, если состояние финальное.
func (s AppState) IsTerminal() bool {
	return s == AppStateTerminated
}
