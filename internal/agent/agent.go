package agent

import (
	"context"

	"github.com/yndnr/converge/internal/core/domain"
)

// Agent is the reconciliation logic driven by the control service.
//
// Calls are never concurrent with each other for one Client, and
// ClusterUpdated is only called between Connected and Disconnected.
type Agent interface {
	// Connected is called once the version check passed.
	Connected(client *Client)

	// Disconnected is called when the connection is gone.
	Disconnected()

	// ClusterUpdated delivers the desired configuration and the
	// aggregated cluster state. It fully replaces any earlier pair.
	// ctx carries the trace action of the push.
	//
	// It runs on the connection's read loop: it must not wait on a call
	// over the same client, such as ReportNodeState.
	ClusterUpdated(ctx context.Context, configuration, state *domain.Deployment)
}
