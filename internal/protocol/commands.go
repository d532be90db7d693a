package protocol

import (
	"github.com/yndnr/converge/internal/codec"
)

// ProtocolMajor is the protocol major version answered by Version.
// Peers with a different major cannot talk to each other.
const ProtocolMajor int32 = 1

// Argument names.
const (
	ArgMajor         = "major"
	ArgConfiguration = "configuration"
	ArgState         = "state"
	ArgNodeState     = "node_state"
	ArgTraceContext  = "trace_context"
)

var (
	// DeploymentArg carries a domain.Deployment.
	DeploymentArg = Structured(codec.Deployment)

	// NodeStateArg carries a domain.NodeState.
	NodeStateArg = Structured(codec.NodeState)
)

// VersionCommand is sent by an agent to learn the control service's
// protocol major.
var VersionCommand = &Command{
	Name:     "Version",
	Response: []Argument{{Name: ArgMajor, Type: Integer}},
}

// ClusterStatusCommand pushes the desired configuration and the current
// aggregated cluster state to an agent. It fully replaces the agent's
// previous view.
var ClusterStatusCommand = &Command{
	Name: "ClusterStatus",
	Arguments: []Argument{
		{Name: ArgConfiguration, Type: DeploymentArg},
		{Name: ArgState, Type: DeploymentArg},
		{Name: ArgTraceContext, Type: Unicode},
	},
}

// NodeStateCommand pushes one node's observed state to the control
// service.
var NodeStateCommand = &Command{
	Name: "NodeState",
	Arguments: []Argument{
		{Name: ArgNodeState, Type: NodeStateArg},
		{Name: ArgTraceContext, Type: Unicode},
	},
}
