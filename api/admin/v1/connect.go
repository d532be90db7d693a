package adminv1

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// Codec is the JSON codec for admin messages. It replaces Connect's
// default JSON codec, which only accepts protobuf messages.
type Codec struct{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (Codec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// AdminServiceClient is a client for the admin service.
type AdminServiceClient interface {
	GetConfiguration(context.Context, *connect.Request[GetConfigurationRequest]) (*connect.Response[GetConfigurationResponse], error)
	SetConfiguration(context.Context, *connect.Request[SetConfigurationRequest]) (*connect.Response[SetConfigurationResponse], error)
	ListRevisions(context.Context, *connect.Request[ListRevisionsRequest]) (*connect.Response[ListRevisionsResponse], error)
	GetClusterState(context.Context, *connect.Request[GetClusterStateRequest]) (*connect.Response[GetClusterStateResponse], error)
	ListAgents(context.Context, *connect.Request[ListAgentsRequest]) (*connect.Response[ListAgentsResponse], error)
	Version(context.Context, *connect.Request[VersionRequest]) (*connect.Response[VersionResponse], error)
}

// NewAdminServiceClient returns a client for the admin service at
// baseURL, for example http://127.0.0.1:4525.
func NewAdminServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) AdminServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &adminServiceClient{
		getConfiguration: connect.NewClient[GetConfigurationRequest, GetConfigurationResponse](httpClient, baseURL+GetConfigurationProcedure, opts...),
		setConfiguration: connect.NewClient[SetConfigurationRequest, SetConfigurationResponse](httpClient, baseURL+SetConfigurationProcedure, opts...),
		listRevisions:    connect.NewClient[ListRevisionsRequest, ListRevisionsResponse](httpClient, baseURL+ListRevisionsProcedure, opts...),
		getClusterState:  connect.NewClient[GetClusterStateRequest, GetClusterStateResponse](httpClient, baseURL+GetClusterStateProcedure, opts...),
		listAgents:       connect.NewClient[ListAgentsRequest, ListAgentsResponse](httpClient, baseURL+ListAgentsProcedure, opts...),
		version:          connect.NewClient[VersionRequest, VersionResponse](httpClient, baseURL+VersionProcedure, opts...),
	}
}

type adminServiceClient struct {
	getConfiguration *connect.Client[GetConfigurationRequest, GetConfigurationResponse]
	setConfiguration *connect.Client[SetConfigurationRequest, SetConfigurationResponse]
	listRevisions    *connect.Client[ListRevisionsRequest, ListRevisionsResponse]
	getClusterState  *connect.Client[GetClusterStateRequest, GetClusterStateResponse]
	listAgents       *connect.Client[ListAgentsRequest, ListAgentsResponse]
	version          *connect.Client[VersionRequest, VersionResponse]
}

func (c *adminServiceClient) GetConfiguration(ctx context.Context, req *connect.Request[GetConfigurationRequest]) (*connect.Response[GetConfigurationResponse], error) {
	return c.getConfiguration.CallUnary(ctx, req)
}

func (c *adminServiceClient) SetConfiguration(ctx context.Context, req *connect.Request[SetConfigurationRequest]) (*connect.Response[SetConfigurationResponse], error) {
	return c.setConfiguration.CallUnary(ctx, req)
}

func (c *adminServiceClient) ListRevisions(ctx context.Context, req *connect.Request[ListRevisionsRequest]) (*connect.Response[ListRevisionsResponse], error) {
	return c.listRevisions.CallUnary(ctx, req)
}

func (c *adminServiceClient) GetClusterState(ctx context.Context, req *connect.Request[GetClusterStateRequest]) (*connect.Response[GetClusterStateResponse], error) {
	return c.getClusterState.CallUnary(ctx, req)
}

func (c *adminServiceClient) ListAgents(ctx context.Context, req *connect.Request[ListAgentsRequest]) (*connect.Response[ListAgentsResponse], error) {
	return c.listAgents.CallUnary(ctx, req)
}

func (c *adminServiceClient) Version(ctx context.Context, req *connect.Request[VersionRequest]) (*connect.Response[VersionResponse], error) {
	return c.version.CallUnary(ctx, req)
}

// AdminServiceHandler is implemented by the admin server.
type AdminServiceHandler interface {
	GetConfiguration(context.Context, *connect.Request[GetConfigurationRequest]) (*connect.Response[GetConfigurationResponse], error)
	SetConfiguration(context.Context, *connect.Request[SetConfigurationRequest]) (*connect.Response[SetConfigurationResponse], error)
	ListRevisions(context.Context, *connect.Request[ListRevisionsRequest]) (*connect.Response[ListRevisionsResponse], error)
	GetClusterState(context.Context, *connect.Request[GetClusterStateRequest]) (*connect.Response[GetClusterStateResponse], error)
	ListAgents(context.Context, *connect.Request[ListAgentsRequest]) (*connect.Response[ListAgentsResponse], error)
	Version(context.Context, *connect.Request[VersionRequest]) (*connect.Response[VersionResponse], error)
}

// NewAdminServiceHandler returns the path prefix to mount and the HTTP
// handler serving every admin procedure.
func NewAdminServiceHandler(svc AdminServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(GetConfigurationProcedure, connect.NewUnaryHandler(GetConfigurationProcedure, svc.GetConfiguration, opts...))
	mux.Handle(SetConfigurationProcedure, connect.NewUnaryHandler(SetConfigurationProcedure, svc.SetConfiguration, opts...))
	mux.Handle(ListRevisionsProcedure, connect.NewUnaryHandler(ListRevisionsProcedure, svc.ListRevisions, opts...))
	mux.Handle(GetClusterStateProcedure, connect.NewUnaryHandler(GetClusterStateProcedure, svc.GetClusterState, opts...))
	mux.Handle(ListAgentsProcedure, connect.NewUnaryHandler(ListAgentsProcedure, svc.ListAgents, opts...))
	mux.Handle(VersionProcedure, connect.NewUnaryHandler(VersionProcedure, svc.Version, opts...))
	return "/" + ServiceName + "/", mux
}
