package domain

import "fmt"

// NodeState is the observed state of one node as reported by its
// convergence agent.
//
// The node is identified by Hostname; the aggregation store replaces any
// earlier report for the same hostname.
type NodeState struct {
	Hostname       string                    `cbor:"1,keyasint" json:"hostname" yaml:"hostname"`
	Running        []*Application            `cbor:"2,keyasint" json:"running" yaml:"running"`
	NotRunning     []*Application            `cbor:"3,keyasint" json:"not_running" yaml:"not_running"`
	Manifestations map[string]*Manifestation `cbor:"4,keyasint" json:"manifestations" yaml:"manifestations"`
	Paths          map[string]string         `cbor:"5,keyasint" json:"paths" yaml:"paths"`
}

// Validate checks that the state can be attributed to a node.
func (s *NodeState) Validate() error {
	if s == nil {
		return ErrNodeStateInvalid.WithDetails("node state is nil")
	}
	if s.Hostname == "" {
		return ErrNodeStateInvalid.WithDetails("hostname is required")
	}
	for i, app := range s.Running {
		if app == nil || app.Name == "" {
			return ErrNodeStateInvalid.WithDetails(fmt.Sprintf("running[%d] has no name", i))
		}
	}
	for i, app := range s.NotRunning {
		if app == nil || app.Name == "" {
			return ErrNodeStateInvalid.WithDetails(fmt.Sprintf("not_running[%d] has no name", i))
		}
	}
	return nil
}

// ToNode converts the reported state into the configuration shape.
// Applications carry Running=true or Running=false depending on which
// list they were reported in.
func (s *NodeState) ToNode() *Node {
	node := &Node{
		Hostname:       s.Hostname,
		Applications:   make(map[string]*Application, len(s.Running)+len(s.NotRunning)),
		Manifestations: make(map[string]*Manifestation, len(s.Manifestations)),
	}
	for _, app := range s.NotRunning {
		copied := *app
		copied.Running = false
		node.Applications[app.Name] = &copied
	}
	for _, app := range s.Running {
		copied := *app
		copied.Running = true
		node.Applications[app.Name] = &copied
	}
	for id, m := range s.Manifestations {
		node.Manifestations[id] = m
	}
	return node
}
