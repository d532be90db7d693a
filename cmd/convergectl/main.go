// Command convergectl is the admin CLI of converge-control.
package main

import (
	"fmt"
	"os"

	"github.com/yndnr/converge/internal/cli/command"
)

func main() {
	if err := command.App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
