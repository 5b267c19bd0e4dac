package version

import (
	"github.com/hashicorp-forge/indexsync/internal/cmd/base"
	"github.com/hashicorp-forge/indexsync/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the version"
}

func (c *Command) Help() string {
	return "Usage: indexsync version"
}

func (c *Command) Run(args []string) int {
	c.UI.Output("indexsync " + version.FullVersion())
	return 0
}
