package command

import (
	"strconv"

	"connectrpc.com/connect"
	"github.com/urfave/cli/v2"

	adminv1 "github.com/yndnr/converge/api/admin/v1"
	"github.com/yndnr/converge/internal/cli/connection"
	"github.com/yndnr/converge/internal/cli/output"
	"github.com/yndnr/converge/internal/infra/buildinfo"
	"github.com/yndnr/converge/internal/protocol"
)

// versionInfo is printed by the version command.
type versionInfo struct {
	Client buildinfo.Info           `json:"client" yaml:"client"`
	Server *adminv1.VersionResponse `json:"server,omitempty" yaml:"server,omitempty"`
}

// VersionCommand prints client and server versions.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print client and server versions",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "client",
				Usage: "Only print the client version",
			},
		},
		Action: showVersion,
	}
}

func showVersion(c *cli.Context) error {
	info := versionInfo{Client: buildinfo.Get()}

	if !c.Bool("client") {
		admin, ctx, cancel := client(c)
		defer cancel()

		resp, err := admin.Version(ctx, connect.NewRequest(&adminv1.VersionRequest{}))
		if err != nil {
			return connection.Describe(err)
		}
		info.Server = resp.Msg
	}

	table := &output.Table{Headers: []string{"COMPONENT", "VERSION", "COMMIT", "PROTOCOL"}}
	table.AddRow("client", info.Client.Version, info.Client.Commit, itoa(protocol.ProtocolMajor))
	if info.Server != nil {
		table.AddRow("server", info.Server.Version, info.Server.Commit, itoa(info.Server.ProtocolMajor))
	}
	return render(c, info, table)
}

func itoa(n int32) string {
	return strconv.Itoa(int(n))
}
