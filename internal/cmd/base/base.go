package base

import (
	"bytes"
	"flag"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/indexsync/internal/config"
)

// Command is embedded by every CLI command.
type Command struct {
	Log hclog.Logger
	UI  cli.Ui

	// Fs is the filesystem config files are read from.
	Fs afero.Fs
}

// NewCommand returns a Command that reads from the OS filesystem.
func NewCommand(log hclog.Logger, ui cli.Ui) *Command {
	return &Command{
		Log: log,
		UI:  ui,
		Fs:  afero.NewOsFs(),
	}
}

// LoadConfig loads the config file and applies its log level to the
// command logger.
func (c *Command) LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: config file path is required", config.ErrConfiguration)
	}

	cfg, err := config.Load(c.Fs, path)
	if err != nil {
		return nil, err
	}

	c.Log.SetLevel(cfg.HCLogLevel())
	c.Log.Debug("loaded configuration", "path", path, "updaters", len(cfg.IndexUpdaters))
	return cfg, nil
}

// FlagSet wraps flag.FlagSet with help output for cli.Command.
type FlagSet struct {
	*flag.FlagSet
}

// NewFlagSet returns a FlagSet wrapping f.
func NewFlagSet(f *flag.FlagSet) *FlagSet {
	return &FlagSet{FlagSet: f}
}

// Help returns the usage of every defined flag.
func (f *FlagSet) Help() string {
	var buf bytes.Buffer
	out := f.Output()
	f.SetOutput(&buf)
	f.PrintDefaults()
	f.SetOutput(out)

	if buf.Len() == 0 {
		return ""
	}
	return "\n\nOptions:\n\n" + buf.String()
}

// StringSliceFlag collects a repeatable string flag.
type StringSliceFlag []string

func (s *StringSliceFlag) String() string {
	return fmt.Sprint([]string(*s))
}

func (s *StringSliceFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}
