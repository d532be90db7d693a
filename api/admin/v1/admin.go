package adminv1

import (
	"time"

	"github.com/yndnr/converge/internal/core/domain"
)

// ServiceName is the fully-qualified admin service name.
const ServiceName = "converge.admin.v1.AdminService"

// Procedure paths.
const (
	GetConfigurationProcedure = "/" + ServiceName + "/GetConfiguration"
	SetConfigurationProcedure = "/" + ServiceName + "/SetConfiguration"
	ListRevisionsProcedure    = "/" + ServiceName + "/ListRevisions"
	GetClusterStateProcedure  = "/" + ServiceName + "/GetClusterState"
	ListAgentsProcedure       = "/" + ServiceName + "/ListAgents"
	VersionProcedure          = "/" + ServiceName + "/Version"
)

type GetConfigurationRequest struct{}

type GetConfigurationResponse struct {
	Revision   uint64             `json:"revision" yaml:"revision"`
	Deployment *domain.Deployment `json:"deployment" yaml:"deployment"`
}

type SetConfigurationRequest struct {
	Deployment *domain.Deployment `json:"deployment" yaml:"deployment"`
}

type SetConfigurationResponse struct {
	Revision uint64    `json:"revision" yaml:"revision"`
	SavedAt  time.Time `json:"saved_at" yaml:"saved_at"`
}

type ListRevisionsRequest struct{}

// RevisionSummary describes one saved configuration without its body.
type RevisionSummary struct {
	Revision     uint64    `json:"revision" yaml:"revision"`
	SavedAt      time.Time `json:"saved_at" yaml:"saved_at"`
	Nodes        int       `json:"nodes" yaml:"nodes"`
	Applications int       `json:"applications" yaml:"applications"`
}

type ListRevisionsResponse struct {
	Revisions []RevisionSummary `json:"revisions" yaml:"revisions"`
}

type GetClusterStateRequest struct{}

type GetClusterStateResponse struct {
	Nodes      []string             `json:"nodes" yaml:"nodes"`
	State      *domain.Deployment   `json:"state" yaml:"state"`
	ReportedAt map[string]time.Time `json:"reported_at" yaml:"reported_at"`
}

type ListAgentsRequest struct{}

// AgentInfo describes one live agent session.
type AgentInfo struct {
	SessionID   string    `json:"session_id" yaml:"session_id"`
	RemoteAddr  string    `json:"remote_addr" yaml:"remote_addr"`
	Hostname    string    `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	ConnectedAt time.Time `json:"connected_at" yaml:"connected_at"`
	LastReport  time.Time `json:"last_report,omitzero" yaml:"last_report,omitempty"`
}

type ListAgentsResponse struct {
	Agents []AgentInfo `json:"agents" yaml:"agents"`
}

type VersionRequest struct{}

type VersionResponse struct {
	ProtocolMajor int32  `json:"protocol_major" yaml:"protocol_major"`
	Version       string `json:"version" yaml:"version"`
	Commit        string `json:"commit" yaml:"commit"`
	BuildTime     string `json:"build_time" yaml:"build_time"`
	GoVersion     string `json:"go_version" yaml:"go_version"`
}
