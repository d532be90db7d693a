// Package command defines the convergectl commands.
//
//	convergectl [--addr HOST:PORT] [--output table|json|yaml] COMMAND
//
//	config get               print the desired configuration
//	config set -f FILE       replace it from a YAML deployment file
//	config history           list saved revisions
//	state                    print the aggregated cluster state
//	agents                   list connected agents
//	version                  print client and server versions
package command
