// Command svcctl starts, stops, restarts or reports the status of the
// worker service.
package main

import (
	"os"

	"github.com/stone-age-io/svcctl/internal/cli"
)

func main() {
	os.Exit(cli.Control(os.Args[1:], cli.DefaultDeps()))
}
