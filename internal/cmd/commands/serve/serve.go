package serve

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp-forge/indexsync/internal/api"
	"github.com/hashicorp-forge/indexsync/internal/cmd/base"
	"github.com/hashicorp-forge/indexsync/internal/server"
)

const shutdownTimeout = 30 * time.Second

type Command struct {
	*base.Command

	flagConfig string
}

func (c *Command) Synopsis() string {
	return "Run the index synchroniser and the status server"
}

func (c *Command) Help() string {
	return `Usage: indexsync serve -config=config.hcl

  Ensure every configured index mapping exists, then synchronise the source
  table into the search indexes on the polling interval. Health and status
  are served over HTTP.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("serve", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "config.hcl",
		"Path to the configuration file",
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

	httpServer := &http.Server{
		Addr: cfg.Server.Address,
		Handler: api.NewRouter(server.Server{
			Config:       cfg,
			Status:       rt.Scheduler,
			SourceReader: rt.Reader,
			IndexEngine:  rt.Engine,
			Logger:       c.Log.Named("api"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		c.Log.Info("listening", "address", cfg.Server.Address)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		_ = rt.Scheduler.Run(ctx)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		c.Log.Info("received shutdown signal")
	case err := <-serverErr:
		c.UI.Error(fmt.Sprintf("error running HTTP server: %v", err))
		exitCode = 1
		stop()
	}

	<-schedulerDone
	c.Log.Info("waiting for running index updates to finish")
	rt.Scheduler.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		c.Log.Error("error shutting down HTTP server", "error", err)
		exitCode = 1
	}

	c.Log.Info("stopped")
	return exitCode
}
