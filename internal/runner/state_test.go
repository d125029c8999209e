package runner

import (
	"testing"
	"time"

	"github.com/shaiso/Golemata/internal/domain"
)

func TestAppStateFromNodes(t *testing.T) {
	tests := []struct {
		name      string
		nodeCount int
		desired   domain.AppState
		nodes     map[string]map[int]domain.NodeState
		want      domain.AppState
	}{
		{
			name:      "running when every declared node runs",
			nodeCount: 2,
			desired:   domain.AppStateRunning,
			nodes: map[string]map[int]domain.NodeState{
				"db":  {0: domain.NodeStateRunning},
				"web": {0: domain.NodeStateRunning},
			},
			want: domain.AppStateRunning,
		},
		{
			name:      "starting while a node is missing",
			nodeCount: 2,
			desired:   domain.AppStateRunning,
			nodes: map[string]map[int]domain.NodeState{
				"db": {0: domain.NodeStateRunning},
			},
			want: domain.AppStateStarting,
		},
		{
			name:      "starting while a replica is not yet running",
			nodeCount: 1,
			desired:   domain.AppStateRunning,
			nodes: map[string]map[int]domain.NodeState{
				"web": {0: domain.NodeStateRunning, 1: domain.NodeStateStarting},
			},
			want: domain.AppStateStarting,
		},
		{
			name:      "terminated does not require the full node roster",
			nodeCount: 3,
			desired:   domain.AppStateTerminated,
			nodes: map[string]map[int]domain.NodeState{
				"db": {0: domain.NodeStateTerminated},
			},
			want: domain.AppStateTerminated,
		},
		{
			name:      "stopping while an instance is still alive",
			nodeCount: 2,
			desired:   domain.AppStateTerminated,
			nodes: map[string]map[int]domain.NodeState{
				"db":  {0: domain.NodeStateTerminated},
				"web": {0: domain.NodeStateStopping},
			},
			want: domain.AppStateStopping,
		},
		{
			name:      "suspended wins regardless of instances",
			nodeCount: 2,
			desired:   domain.AppStateSuspended,
			nodes: map[string]map[int]domain.NodeState{
				"db": {0: domain.NodeStateRunning},
			},
			want: domain.AppStateSuspended,
		},
		{
			name:      "pending before the start was requested",
			nodeCount: 2,
			desired:   domain.AppStatePending,
			nodes:     map[string]map[int]domain.NodeState{},
			want:      domain.AppStatePending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AppStateFromNodes(tt.nodeCount, tt.desired, tt.nodes)
			if got != tt.want {
				t.Errorf("AppStateFromNodes = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRunningTimeElapsed(t *testing.T) {
	if runningTimeElapsed(nil, time.Minute) {
		t.Error("nil start must not elapse")
	}

	past := time.Now().Add(-2 * time.Minute)
	if runningTimeElapsed(&past, 0) {
		t.Error("zero limit must never elapse")
	}
	if !runningTimeElapsed(&past, time.Minute) {
		t.Error("expected elapsed for a 2m old session with a 1m limit")
	}
	if runningTimeElapsed(&past, time.Hour) {
		t.Error("unexpected elapsed for a 2m old session with a 1h limit")
	}
}
