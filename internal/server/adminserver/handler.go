package adminserver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	adminv1 "github.com/yndnr/converge/api/admin/v1"
	"github.com/yndnr/converge/internal/core/domain"
	"github.com/yndnr/converge/internal/infra/buildinfo"
	"github.com/yndnr/converge/internal/protocol"
	"github.com/yndnr/converge/internal/server/controlserver"
)

// Configurations is the configuration store as seen by the admin API.
type Configurations interface {
	Get() *domain.Deployment
	Revision() uint64
	Save(ctx context.Context, d *domain.Deployment) (*domain.Revision, error)
	History(ctx context.Context) ([]*domain.Revision, error)
}

// ClusterState is the aggregated node state as seen by the admin API.
type ClusterState interface {
	AsDeployment() *domain.Deployment
	Nodes() []string
	LastUpdate(hostname string) (time.Time, bool)
}

// Sessions lists the live agent sessions.
type Sessions interface {
	Sessions() []*controlserver.Session
}

// Handler implements adminv1.AdminServiceHandler.
type Handler struct {
	configs  Configurations
	state    ClusterState
	sessions Sessions
	logger   *slog.Logger
}

var _ adminv1.AdminServiceHandler = (*Handler)(nil)

// NewHandler creates an admin handler. sessions may be nil, in which case
// ListAgents reports no agents.
func NewHandler(configs Configurations, state ClusterState, sessions Sessions, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		configs:  configs,
		state:    state,
		sessions: sessions,
		logger:   logger,
	}
}

func (h *Handler) GetConfiguration(
	ctx context.Context,
	req *connect.Request[adminv1.GetConfigurationRequest],
) (*connect.Response[adminv1.GetConfigurationResponse], error) {
	return connect.NewResponse(&adminv1.GetConfigurationResponse{
		Revision:   h.configs.Revision(),
		Deployment: h.configs.Get(),
	}), nil
}

// SetConfiguration replaces the desired configuration. The new value is
// pushed to every connected agent once it has been persisted.
func (h *Handler) SetConfiguration(
	ctx context.Context,
	req *connect.Request[adminv1.SetConfigurationRequest],
) (*connect.Response[adminv1.SetConfigurationResponse], error) {
	d := req.Msg.Deployment
	if d == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument,
			domain.ErrDeploymentInvalid.WithDetails("deployment is required"))
	}
	d.Normalize()

	rev, err := h.configs.Save(ctx, d)
	if err != nil {
		return nil, toConnectError(err)
	}

	h.logger.Info("configuration replaced via admin api",
		"revision", rev.Seq,
		"nodes", len(d.Nodes),
		"applications", d.ApplicationCount())

	return connect.NewResponse(&adminv1.SetConfigurationResponse{
		Revision: rev.Seq,
		SavedAt:  rev.SavedAt,
	}), nil
}

func (h *Handler) ListRevisions(
	ctx context.Context,
	req *connect.Request[adminv1.ListRevisionsRequest],
) (*connect.Response[adminv1.ListRevisionsResponse], error) {
	history, err := h.configs.History(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &adminv1.ListRevisionsResponse{
		Revisions: make([]adminv1.RevisionSummary, 0, len(history)),
	}
	for _, rev := range history {
		resp.Revisions = append(resp.Revisions, adminv1.RevisionSummary{
			Revision:     rev.Seq,
			SavedAt:      rev.SavedAt,
			Nodes:        len(rev.Deployment.Hostnames()),
			Applications: rev.Deployment.ApplicationCount(),
		})
	}
	return connect.NewResponse(resp), nil
}

func (h *Handler) GetClusterState(
	ctx context.Context,
	req *connect.Request[adminv1.GetClusterStateRequest],
) (*connect.Response[adminv1.GetClusterStateResponse], error) {
	resp := &adminv1.GetClusterStateResponse{
		Nodes:      h.state.Nodes(),
		State:      h.state.AsDeployment(),
		ReportedAt: make(map[string]time.Time),
	}
	for _, hostname := range resp.Nodes {
		if at, ok := h.state.LastUpdate(hostname); ok {
			resp.ReportedAt[hostname] = at
		}
	}
	return connect.NewResponse(resp), nil
}

func (h *Handler) ListAgents(
	ctx context.Context,
	req *connect.Request[adminv1.ListAgentsRequest],
) (*connect.Response[adminv1.ListAgentsResponse], error) {
	resp := &adminv1.ListAgentsResponse{Agents: []adminv1.AgentInfo{}}
	if h.sessions == nil {
		return connect.NewResponse(resp), nil
	}

	for _, sess := range h.sessions.Sessions() {
		info := adminv1.AgentInfo{
			SessionID:   sess.ID(),
			Hostname:    sess.Hostname(),
			ConnectedAt: sess.ConnectedAt(),
			LastReport:  sess.LastReport(),
		}
		if addr := sess.RemoteAddr(); addr != nil {
			info.RemoteAddr = addr.String()
		}
		resp.Agents = append(resp.Agents, info)
	}
	return connect.NewResponse(resp), nil
}

func (h *Handler) Version(
	ctx context.Context,
	req *connect.Request[adminv1.VersionRequest],
) (*connect.Response[adminv1.VersionResponse], error) {
	info := buildinfo.Get()
	return connect.NewResponse(&adminv1.VersionResponse{
		ProtocolMajor: protocol.ProtocolMajor,
		Version:       info.Version,
		Commit:        info.Commit,
		BuildTime:     info.BuildTime,
		GoVersion:     info.GoVersion,
	}), nil
}

// toConnectError maps domain errors onto Connect codes.
func toConnectError(err error) error {
	switch {
	case errors.Is(err, domain.ErrDeploymentInvalid), errors.Is(err, domain.ErrNodeStateInvalid):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, domain.ErrRateLimited):
		return connect.NewError(connect.CodeResourceExhausted, err)
	case errors.Is(err, domain.ErrStorage):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
