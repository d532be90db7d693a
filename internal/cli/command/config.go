package command

import (
	"fmt"
	"sort"
	"strings"

	"connectrpc.com/connect"
	"github.com/urfave/cli/v2"

	adminv1 "github.com/yndnr/converge/api/admin/v1"
	"github.com/yndnr/converge/internal/cli/connection"
	"github.com/yndnr/converge/internal/cli/output"
	"github.com/yndnr/converge/internal/core/domain"
	"github.com/yndnr/converge/internal/core/service"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Desired configuration",
		Subcommands: []*cli.Command{
			{
				Name:   "get",
				Usage:  "Print the desired configuration (-o yaml output can be fed back to set)",
				Action: configGet,
			},
			{
				Name:  "set",
				Usage: "Replace the desired configuration from a YAML deployment file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Deployment YAML file",
						Required: true,
					},
				},
				Action: configSet,
			},
			{
				Name:   "history",
				Usage:  "List saved configuration revisions",
				Action: configHistory,
			},
		},
	}
}

func configGet(c *cli.Context) error {
	admin, ctx, cancel := client(c)
	defer cancel()

	resp, err := admin.GetConfiguration(ctx, connect.NewRequest(&adminv1.GetConfigurationRequest{}))
	if err != nil {
		return connection.Describe(err)
	}

	// The structured formats print the bare deployment so the output is
	// a valid input for `config set`.
	return render(c, resp.Msg.Deployment, deploymentTable(resp.Msg.Deployment, false))
}

func configSet(c *cli.Context) error {
	path := c.String("file")
	d, err := service.LoadDeploymentFile(path)
	if err != nil {
		return err
	}

	admin, ctx, cancel := client(c)
	defer cancel()

	resp, err := admin.SetConfiguration(ctx, connect.NewRequest(&adminv1.SetConfigurationRequest{Deployment: d}))
	if err != nil {
		return connection.Describe(err)
	}

	if GetSettings(c).Output != output.FormatTable {
		return render(c, resp.Msg, nil)
	}
	fmt.Fprintf(c.App.Writer, "configuration saved as revision %d (%d nodes, %d applications)\n",
		resp.Msg.Revision, len(d.Nodes), d.ApplicationCount())
	return nil
}

func configHistory(c *cli.Context) error {
	admin, ctx, cancel := client(c)
	defer cancel()

	resp, err := admin.ListRevisions(ctx, connect.NewRequest(&adminv1.ListRevisionsRequest{}))
	if err != nil {
		return connection.Describe(err)
	}
	return render(c, resp.Msg.Revisions, nil)
}

// deploymentTable lists one row per application. withRunning adds the
// RUNNING column used for observed state.
func deploymentTable(d *domain.Deployment, withRunning bool) *output.Table {
	table := &output.Table{Headers: []string{"NODE", "APPLICATION", "IMAGE", "PORTS", "VOLUME"}}
	if withRunning {
		table.Headers = append(table.Headers, "RUNNING")
	}

	for _, hostname := range d.Hostnames() {
		node := d.Nodes[hostname]
		if len(node.Applications) == 0 {
			row := []string{hostname, "-", "-", "-", "-"}
			if withRunning {
				row = append(row, "-")
			}
			table.AddRow(row...)
			continue
		}

		names := make([]string, 0, len(node.Applications))
		for name := range node.Applications {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			app := node.Applications[name]
			row := []string{hostname, name, orDash(app.Image), ports(app.Ports), volume(app.Volume)}
			if withRunning {
				row = append(row, fmt.Sprint(app.Running))
			}
			table.AddRow(row...)
		}
	}
	return table
}

func ports(ps []domain.Port) string {
	if len(ps) == 0 {
		return "-"
	}
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = fmt.Sprintf("%d->%d", p.ExternalPort, p.InternalPort)
	}
	return strings.Join(parts, ",")
}

func volume(v *domain.AttachedVolume) string {
	if v == nil {
		return "-"
	}
	return v.ManifestationID + ":" + v.MountPoint
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
