package runner

import (
	"time"

	"github.com/shaiso/Golemata/internal/domain"
)

// AppStateFromNodes вычисляет агрегированное состояние приложения.
//
// Состояние никогда не хранится — оно выводится из желаемого
// состояния, числа объявленных узлов и состояний всех реплик всех
// отчитавшихся узлов. Неразвёрнутый узел считается отсутствующим и
// удерживает приложение в starting.
func AppStateFromNodes(
	nodeCount int,
	desired domain.AppState,
	nodes map[string]map[int]domain.NodeState,
) domain.AppState {
	switch desired {
	case domain.AppStateSuspended:
		return domain.AppStateSuspended

	case domain.AppStateRunning:
		if len(nodes) == nodeCount && allInstances(nodes, domain.NodeStateRunning) {
			return domain.AppStateRunning
		}
		return domain.AppStateStarting

	case domain.AppStateTerminated:
		// Для завершения полный состав узлов не требуется
		if allInstances(nodes, domain.NodeStateTerminated) {
			return domain.AppStateTerminated
		}
		return domain.AppStateStopping

	default:
		return domain.AppStatePending
	}
}

// allInstances возвращает true, если каждая реплика каждого
// отчитавшегося узла находится в состоянии state.
func allInstances(nodes map[string]map[int]domain.NodeState, state domain.NodeState) bool {
	for _, replicas := range nodes {
		for _, s := range replicas {
			if s != state {
				return false
			}
		}
	}
	return true
}

// runningTimeElapsed возвращает true, когда сессия работает дольше
// максимально разрешённого времени.
func runningTimeElapsed(timeStarted *time.Time, maxRunningTime time.Duration) bool {
	if timeStarted == nil || maxRunningTime <= 0 {
		return false
	}
	return time.Since(*timeStarted) > maxRunningTime
}
