package command

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	adminv1 "github.com/yndnr/converge/api/admin/v1"
	"github.com/yndnr/converge/internal/cli/config"
	"github.com/yndnr/converge/internal/cli/connection"
	"github.com/yndnr/converge/internal/cli/output"
	"github.com/yndnr/converge/internal/infra/buildinfo"
)

const settingsKey = "settings"

// Settings are the resolved global options of one invocation.
type Settings struct {
	Addr    string
	Output  output.Format
	Wide    bool
	Timeout time.Duration
}

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "convergectl",
		Usage:   "Inspect and change the desired configuration of a converge cluster",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			ConfigCommand(),
			StateCommand(),
			AgentsCommand(),
			VersionCommand(),
		},
		Before:   resolveSettings,
		Metadata: map[string]any{},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "CLI profile file (default ~/.config/converge/cli.yaml)",
		},
		&cli.StringFlag{
			Name:    "addr",
			Aliases: []string{"a"},
			Usage:   "Admin API address of converge-control",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show more columns in table output",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Request timeout",
		},
	}
}

// resolveSettings merges the profile, the environment and the flags.
func resolveSettings(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("addr") {
		cfg.Addr = c.String("addr")
	}
	if c.IsSet("output") {
		cfg.Output = c.String("output")
	}
	if c.IsSet("timeout") {
		cfg.Timeout = c.Duration("timeout")
	}

	format, err := output.ParseFormat(cfg.Output)
	if err != nil {
		return err
	}
	c.App.Metadata[settingsKey] = &Settings{
		Addr:    cfg.Addr,
		Output:  format,
		Wide:    c.Bool("wide"),
		Timeout: cfg.Timeout,
	}
	return nil
}

// GetSettings returns the settings resolved before the command ran.
func GetSettings(c *cli.Context) *Settings {
	if s, ok := c.App.Metadata[settingsKey].(*Settings); ok {
		return s
	}
	d := config.Default()
	return &Settings{Addr: d.Addr, Output: output.FormatTable, Timeout: d.Timeout}
}

// client returns an admin client and a request context bounded by the
// configured timeout.
func client(c *cli.Context) (adminv1.AdminServiceClient, context.Context, context.CancelFunc) {
	s := GetSettings(c)
	ctx, cancel := context.WithTimeout(c.Context, s.Timeout)
	return connection.NewClient(s.Addr, s.Timeout), ctx, cancel
}

// render writes data in the selected format. table is used for table
// output when the raw value does not tabulate well; it may be nil.
func render(c *cli.Context, data any, table *output.Table) error {
	s := GetSettings(c)
	if s.Output == output.FormatTable && table != nil {
		return table.Render(c.App.Writer)
	}
	return output.NewFormatter(s.Output, s.Wide).Format(c.App.Writer, data)
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
