package sync

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp-forge/indexsync/internal/cmd/base"
)

type Command struct {
	*base.Command

	flagConfig   string
	flagUpdaters base.StringSliceFlag
}

func (c *Command) Synopsis() string {
	return "Synchronise the search indexes once and exit"
}

func (c *Command) Help() string {
	return `Usage: indexsync sync -config=config.hcl [-updater=<id>]...

  Ensure the index mappings exist and run one synchronisation of every
  configured index updater, or only those named with -updater, until they
  have caught up with the source table.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("sync", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "config.hcl",
		"Path to the configuration file",
	)
	f.Var(
		&c.flagUpdaters, "updater",
		"Index updater id to synchronise. Can be repeated. Defaults to all",
	)

	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	cfg, err := c.LoadConfig(c.flagConfig)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}

	rt, err := base.NewRuntime(cfg, c.Log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error initializing: %v", err))
		return 1
	}
	defer func() {
		if err := rt.Close(); err != nil {
			c.Log.Error("error closing resources", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.Scheduler.Prepare(ctx); err != nil {
		c.UI.Error(fmt.Sprintf("error preparing index updaters: %v", err))
		return 1
	}

	if err := rt.Scheduler.RunOnce(ctx, c.flagUpdaters...); err != nil {
		c.UI.Error(fmt.Sprintf("synchronisation failed: %v", err))
		return 1
	}

	ran := make(map[string]bool, len(c.flagUpdaters))
	for _, id := range c.flagUpdaters {
		ran[id] = true
	}
	for _, st := range rt.Scheduler.Snapshot().Updaters {
		if len(ran) > 0 && !ran[st.ID] {
			continue
		}
		w := st.Progress.Watermark
		c.UI.Output(fmt.Sprintf("%s: up to date (last title %q)", st.ID, w.Key))
	}
	return 0
}
