package server

import (
	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/indexsync/internal/config"
	"github.com/hashicorp-forge/indexsync/pkg/index"
	"github.com/hashicorp-forge/indexsync/pkg/indexer"
	"github.com/hashicorp-forge/indexsync/pkg/source"
)

// Server contains the server configuration.
type Server struct {
	// Config is the config for the server.
	Config *config.Config

	// Status reports the sync progress of every index updater.
	Status indexer.StatusReporter

	// SourceReader reads the source table. It is probed by the health check.
	SourceReader source.PageReader

	// IndexEngine is the search index backend. It is probed by the health
	// check.
	IndexEngine index.Engine

	// Logger is the logger for the server.
	Logger hclog.Logger
}
