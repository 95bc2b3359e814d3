// Command svcinstall registers the worker with the OS service manager and
// starts it.
package main

import (
	"os"

	"github.com/stone-age-io/svcctl/internal/cli"
)

func main() {
	os.Exit(cli.Install(os.Args[1:], cli.DefaultDeps()))
}
