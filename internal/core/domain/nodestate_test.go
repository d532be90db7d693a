package domain

import (
	"errors"
	"testing"
)

func TestNodeState_Validate(t *testing.T) {
	tests := []struct {
		name    string
		state   *NodeState
		wantErr bool
	}{
		{name: "nil", state: nil, wantErr: true},
		{name: "no hostname", state: &NodeState{}, wantErr: true},
		{name: "minimal", state: &NodeState{Hostname: "node-a"}},
		{
			name:    "unnamed running app",
			state:   &NodeState{Hostname: "node-a", Running: []*Application{{Image: "x"}}},
			wantErr: true,
		},
		{
			name:    "nil stopped app",
			state:   &NodeState{Hostname: "node-a", NotRunning: []*Application{nil}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrNodeStateInvalid) {
				t.Errorf("error should match ErrNodeStateInvalid, got %v", err)
			}
		})
	}
}

func TestNodeState_ToNode(t *testing.T) {
	state := &NodeState{
		Hostname:   "node-a",
		Running:    []*Application{{Name: "web", Image: "nginx"}},
		NotRunning: []*Application{{Name: "db", Image: "postgres", Running: true}},
		Manifestations: map[string]*Manifestation{
			"ds-1": {Dataset: &Dataset{DatasetID: "ds-1"}},
		},
	}

	node := state.ToNode()

	if node.Hostname != "node-a" {
		t.Errorf("Hostname = %q", node.Hostname)
	}
	if !node.Applications["web"].Running {
		t.Error("web should be running")
	}
	if node.Applications["db"].Running {
		t.Error("db should not be running")
	}
	if !state.NotRunning[0].Running {
		t.Error("ToNode must not modify the reported state")
	}
	if _, ok := node.Manifestations["ds-1"]; !ok {
		t.Error("manifestation missing")
	}
}
