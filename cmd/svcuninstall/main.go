// Command svcuninstall removes the worker registration.
package main

import (
	"os"

	"github.com/stone-age-io/svcctl/internal/cli"
)

func main() {
	os.Exit(cli.Uninstall(os.Args[1:], cli.DefaultDeps()))
}
