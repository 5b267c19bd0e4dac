package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/hashicorp-forge/indexsync/internal/cmd/base"
	"github.com/hashicorp-forge/indexsync/internal/cmd/commands/mapping"
	"github.com/hashicorp-forge/indexsync/internal/cmd/commands/serve"
	synccmd "github.com/hashicorp-forge/indexsync/internal/cmd/commands/sync"
	"github.com/hashicorp-forge/indexsync/internal/cmd/commands/version"
)

// Commands is the mapping of all available commands.
var Commands map[string]cli.CommandFactory

func initCommands(log hclog.Logger, ui cli.Ui) {
	b := base.NewCommand(log, ui)

	Commands = map[string]cli.CommandFactory{
		"mapping": func() (cli.Command, error) {
			return &mapping.Command{Command: b}, nil
		},
		"serve": func() (cli.Command, error) {
			return &serve.Command{Command: b}, nil
		},
		"sync": func() (cli.Command, error) {
			return &synccmd.Command{Command: b}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{Command: b}, nil
		},
	}
}
