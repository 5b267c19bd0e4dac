package mapping

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"

	"github.com/hashicorp-forge/indexsync/internal/cmd/base"
	"github.com/hashicorp-forge/indexsync/pkg/indexer/updater"
)

type Command struct {
	*base.Command

	flagConfig string
	flagApply  bool
}

func (c *Command) Synopsis() string {
	return "Print or apply the index mappings of the configured updaters"
}

func (c *Command) Help() string {
	return `Usage: indexsync mapping -config=config.hcl [-apply]

  Print the field mapping each configured index updater requires. With
  -apply, also create the indexes and apply the mappings in the configured
  search engine.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("mapping", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "config.hcl",
		"Path to the configuration file",
	)
	f.BoolVar(
		&c.flagApply, "apply", false,
		"Apply the mappings to the search engine",
	)

	return f
}

// mappingOutput is printed for every updater.
type mappingOutput struct {
	Updater   string `json:"updater"`
	IndexName string `json:"index_name"`
	DocType   string `json:"doc_type"`
	Mapping   any    `json:"mapping"`
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

	defs, err := cfg.Definitions()
	if err != nil {
		c.UI.Error(fmt.Sprintf("error reading index updaters: %v", err))
		return 1
	}

	out := make([]mappingOutput, 0, len(defs))
	for _, def := range defs {
		m, err := updater.MappingFor(def.ID)
		if err != nil {
			c.UI.Error(err.Error())
			return 1
		}
		out = append(out, mappingOutput{
			Updater:   def.ID,
			IndexName: def.IndexName,
			DocType:   def.DocType,
			Mapping:   m,
		})
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		c.UI.Error(fmt.Sprintf("error encoding mappings: %v", err))
		return 1
	}
	c.UI.Output(string(b))

	if !c.flagApply {
		return 0
	}

	engine, err := base.NewEngine(cfg, c.Log)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	defer engine.Close()

	ctx := context.Background()
	for _, def := range defs {
		m, _ := updater.MappingFor(def.ID)
		if err := engine.EnsureMapping(ctx, def.IndexName, def.DocType, m); err != nil {
			c.UI.Error(fmt.Sprintf("error applying mapping for %s: %v", def.ID, err))
			return 1
		}
		c.UI.Info(fmt.Sprintf("applied mapping for %s to %s/%s", def.ID, def.IndexName, def.DocType))
	}
	return 0
}
