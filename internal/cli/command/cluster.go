package command

import (
	"connectrpc.com/connect"
	"github.com/urfave/cli/v2"

	adminv1 "github.com/yndnr/converge/api/admin/v1"
	"github.com/yndnr/converge/internal/cli/connection"
)

// StateCommand prints the cluster state aggregated from agent reports.
func StateCommand() *cli.Command {
	return &cli.Command{
		Name:   "state",
		Usage:  "Print the cluster state reported by agents",
		Action: clusterState,
	}
}

// AgentsCommand lists the live agent sessions.
func AgentsCommand() *cli.Command {
	return &cli.Command{
		Name:   "agents",
		Usage:  "List connected agents",
		Action: listAgents,
	}
}

func clusterState(c *cli.Context) error {
	admin, ctx, cancel := client(c)
	defer cancel()

	resp, err := admin.GetClusterState(ctx, connect.NewRequest(&adminv1.GetClusterStateRequest{}))
	if err != nil {
		return connection.Describe(err)
	}
	return render(c, resp.Msg.State, deploymentTable(resp.Msg.State, true))
}

func listAgents(c *cli.Context) error {
	admin, ctx, cancel := client(c)
	defer cancel()

	resp, err := admin.ListAgents(ctx, connect.NewRequest(&adminv1.ListAgentsRequest{}))
	if err != nil {
		return connection.Describe(err)
	}
	return render(c, resp.Msg.Agents, nil)
}
