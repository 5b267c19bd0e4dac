package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/spf13/afero"
	"github.com/zclconf/go-cty/cty"

	"github.com/hashicorp-forge/indexsync/pkg/database"
	"github.com/hashicorp-forge/indexsync/pkg/indexer/updater"
)

// ErrConfiguration is returned for a missing, malformed or invalid
// configuration. It is fatal at startup.
var ErrConfiguration = errors.New("invalid configuration")

const (
	SearchProviderBleve       = "bleve"
	SearchProviderMeilisearch = "meilisearch"
	SearchProviderAlgolia     = "algolia"
)

// Config contains the indexsync configuration.
type Config struct {
	// LogLevel is one of trace, debug, info, warn or error.
	LogLevel string `hcl:"log_level,optional" json:"log_level"`

	// PageSize is the number of source records read per page.
	PageSize int `hcl:"page_size,optional" json:"page_size"`

	// PollingIntervalSecs is the time between scheduler ticks.
	PollingIntervalSecs int `hcl:"polling_interval_secs,optional" json:"polling_interval_secs"`

	// CallTimeout bounds each page read, bulk apply and status recovery
	// (e.g. "30s"). "0" disables the timeout.
	CallTimeout string `hcl:"call_timeout,optional" json:"call_timeout"`

	// IndexConfigFile optionally names a JSON file of updater definitions in
	// the form {"index_updaters": {"<id>": {"index_name": "", "doc_type": ""}}}.
	// Its entries are added to the index_updater blocks.
	IndexConfigFile string `hcl:"index_config_file,optional" json:"index_config_file"`

	Server      *Server      `hcl:"server,block" json:"server"`
	Database    *Database    `hcl:"database,block" json:"database"`
	Providers   *Providers   `hcl:"providers,block" json:"providers"`
	Bleve       *Bleve       `hcl:"bleve,block" json:"bleve"`
	Meilisearch *Meilisearch `hcl:"meilisearch,block" json:"meilisearch"`
	Algolia     *Algolia     `hcl:"algolia,block" json:"algolia"`

	// IndexUpdaters are the configured updaters, in dispatch order.
	IndexUpdaters []*IndexUpdater `hcl:"index_updater,block" json:"index_updaters"`
}

// Server configures the status and health HTTP server.
type Server struct {
	Address string `hcl:"address,optional" json:"address"`
}

// Database configures the source database.
type Database struct {
	Driver   string `hcl:"driver,optional" json:"driver"`
	DSN      string `hcl:"dsn,optional" json:"dsn"`
	Host     string `hcl:"host,optional" json:"host"`
	Port     int    `hcl:"port,optional" json:"port"`
	User     string `hcl:"user,optional" json:"user"`
	Password string `hcl:"password,optional" json:"-"`
	DBName   string `hcl:"dbname,optional" json:"dbname"`
	SSLMode  string `hcl:"sslmode,optional" json:"sslmode"`

	// Path is the SQLite database file.
	Path string `hcl:"path,optional" json:"path"`
}

// Providers selects the backing implementations.
type Providers struct {
	// Search is "bleve", "meilisearch" or "algolia".
	Search string `hcl:"search,optional" json:"search"`
}

// Bleve configures the embedded search engine.
type Bleve struct {
	IndexPath string `hcl:"index_path,optional" json:"index_path"`
}

// Meilisearch configures the Meilisearch engine.
type Meilisearch struct {
	Host   string `hcl:"host,optional" json:"host"`
	APIKey string `hcl:"api_key,optional" json:"-"`
}

// Algolia configures the hosted Algolia engine.
type Algolia struct {
	AppID       string `hcl:"app_id,optional" json:"app_id"`
	WriteAPIKey string `hcl:"write_api_key,optional" json:"-"`
}

// IndexUpdater is the static definition of one updater.
type IndexUpdater struct {
	ID        string `hcl:"id,label" json:"id"`
	IndexName string `hcl:"index_name" json:"index_name"`
	DocType   string `hcl:"doc_type" json:"doc_type"`
}

// envOverrides are environment variables that take precedence over the
// config file.
type envOverrides struct {
	LogLevel            *string `env:"LOG_LEVEL"`
	PageSize            *int    `env:"PAGE_SIZE"`
	PollingIntervalSecs *int    `env:"POLLING_INTERVAL_SECS"`
	CallTimeout         *string `env:"CALL_TIMEOUT"`
	IndexConfigFile     *string `env:"INDEX_CONFIG_FILE_PATH"`
	ServerAddress       *string `env:"SERVER_ADDRESS"`
	DatabaseDSN         *string `env:"DATABASE_DSN"`
	SearchProvider      *string `env:"SEARCH_PROVIDER"`
	BleveIndexPath      *string `env:"BLEVE_INDEX_PATH"`
	MeilisearchHost     *string `env:"MEILISEARCH_HOST"`
	MeilisearchAPIKey   *string `env:"MEILISEARCH_API_KEY"`
	AlgoliaAppID        *string `env:"ALGOLIA_APP_ID"`
	AlgoliaWriteAPIKey  *string `env:"ALGOLIA_WRITE_API_KEY"`
}

// Default returns a Config with every optional setting filled in and no
// updaters.
func Default() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

func (c *Config) setDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.PageSize == 0 {
		c.PageSize = 1000
	}
	if c.PollingIntervalSecs == 0 {
		c.PollingIntervalSecs = 60
	}
	if c.CallTimeout == "" {
		c.CallTimeout = "30s"
	}

	if c.Server == nil {
		c.Server = &Server{}
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Database == nil {
		c.Database = &Database{}
	}
	if c.Database.Driver == "" {
		c.Database.Driver = database.DriverPostgres
	}
	if c.Database.Driver == database.DriverPostgres {
		if c.Database.Host == "" {
			c.Database.Host = "localhost"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	}

	if c.Providers == nil {
		c.Providers = &Providers{}
	}
	if c.Providers.Search == "" {
		c.Providers.Search = SearchProviderBleve
	}
	if c.Bleve == nil {
		c.Bleve = &Bleve{}
	}
	if c.Bleve.IndexPath == "" {
		c.Bleve.IndexPath = "./data/index"
	}
	if c.Meilisearch == nil {
		c.Meilisearch = &Meilisearch{}
	}
	if c.Meilisearch.Host == "" {
		c.Meilisearch.Host = "http://localhost:7700"
	}
}

// Load reads the HCL config file at path from fs, applies environment
// overrides and validates the result. The file can reference environment
// variables as env.NAME.
func Load(fs afero.Fs, path string) (*Config, error) {
	src, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("%w: error reading config file: %w", ErrConfiguration, err)
	}

	// hclsimple picks the syntax from the file extension.
	name := path
	if ext := filepath.Ext(path); ext != ".hcl" && ext != ".json" {
		name = path + ".hcl"
	}

	var cfg Config
	if err := hclsimple.Decode(name, src, envEvalContext(), &cfg); err != nil {
		return nil, fmt.Errorf("%w: error decoding config file: %w", ErrConfiguration, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("%w: error parsing environment variables: %w", ErrConfiguration, err)
	}
	cfg.setDefaults()

	if cfg.IndexConfigFile != "" {
		if err := cfg.loadIndexConfigFile(fs); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	return &cfg, nil
}

// envEvalContext exposes the process environment to the config file as the
// env object.
func envEvalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		vars[k] = cty.StringVal(v)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
	}
}

func (c *Config) applyEnv() error {
	o, err := env.ParseAs[envOverrides]()
	if err != nil {
		return err
	}

	if o.LogLevel != nil {
		c.LogLevel = *o.LogLevel
	}
	if o.PageSize != nil {
		c.PageSize = *o.PageSize
	}
	if o.PollingIntervalSecs != nil {
		c.PollingIntervalSecs = *o.PollingIntervalSecs
	}
	if o.CallTimeout != nil {
		c.CallTimeout = *o.CallTimeout
	}
	if o.IndexConfigFile != nil {
		c.IndexConfigFile = *o.IndexConfigFile
	}
	if o.ServerAddress != nil {
		if c.Server == nil {
			c.Server = &Server{}
		}
		c.Server.Address = *o.ServerAddress
	}
	if o.DatabaseDSN != nil {
		if c.Database == nil {
			c.Database = &Database{}
		}
		c.Database.DSN = *o.DatabaseDSN
	}
	if o.SearchProvider != nil {
		if c.Providers == nil {
			c.Providers = &Providers{}
		}
		c.Providers.Search = *o.SearchProvider
	}
	if o.BleveIndexPath != nil {
		if c.Bleve == nil {
			c.Bleve = &Bleve{}
		}
		c.Bleve.IndexPath = *o.BleveIndexPath
	}
	if o.MeilisearchHost != nil || o.MeilisearchAPIKey != nil {
		if c.Meilisearch == nil {
			c.Meilisearch = &Meilisearch{}
		}
		if o.MeilisearchHost != nil {
			c.Meilisearch.Host = *o.MeilisearchHost
		}
		if o.MeilisearchAPIKey != nil {
			c.Meilisearch.APIKey = *o.MeilisearchAPIKey
		}
	}
	if o.AlgoliaAppID != nil || o.AlgoliaWriteAPIKey != nil {
		if c.Algolia == nil {
			c.Algolia = &Algolia{}
		}
		if o.AlgoliaAppID != nil {
			c.Algolia.AppID = *o.AlgoliaAppID
		}
		if o.AlgoliaWriteAPIKey != nil {
			c.Algolia.WriteAPIKey = *o.AlgoliaWriteAPIKey
		}
	}

	return nil
}

type indexConfigFile struct {
	IndexUpdaters map[string]struct {
		IndexName string `json:"index_name"`
		DocType   string `json:"doc_type"`
	} `json:"index_updaters"`
}

// loadIndexConfigFile appends the updaters defined in the JSON index config
// file, sorted by id.
func (c *Config) loadIndexConfigFile(fs afero.Fs) error {
	src, err := afero.ReadFile(fs, c.IndexConfigFile)
	if err != nil {
		return fmt.Errorf("error reading index config file: %w", err)
	}

	var f indexConfigFile
	if err := json.Unmarshal(src, &f); err != nil {
		return fmt.Errorf("error decoding index config file %q: %w", c.IndexConfigFile, err)
	}

	ids := make([]string, 0, len(f.IndexUpdaters))
	for id := range f.IndexUpdaters {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		def := f.IndexUpdaters[id]
		c.IndexUpdaters = append(c.IndexUpdaters, &IndexUpdater{
			ID:        id,
			IndexName: def.IndexName,
			DocType:   def.DocType,
		})
	}
	return nil
}

// Validate validates the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.LogLevel, validation.In("trace", "debug", "info", "warn", "error")),
		validation.Field(&c.PageSize, validation.Min(1)),
		validation.Field(&c.PollingIntervalSecs, validation.Min(1)),
		validation.Field(&c.CallTimeout, validation.By(isDuration)),
		validation.Field(&c.Server, validation.Required),
		validation.Field(&c.Database, validation.Required),
		validation.Field(&c.Providers, validation.Required),
		validation.Field(&c.Bleve,
			validation.When(c.Providers != nil && c.Providers.Search == SearchProviderBleve, validation.Required)),
		validation.Field(&c.Meilisearch,
			validation.When(c.Providers != nil && c.Providers.Search == SearchProviderMeilisearch, validation.Required)),
		validation.Field(&c.Algolia,
			validation.When(c.Providers != nil && c.Providers.Search == SearchProviderAlgolia, validation.Required)),
		validation.Field(&c.IndexUpdaters, validation.Required.Error("at least one index_updater is required")),
	)
}

func (s Server) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Address, validation.Required),
	)
}

func (d Database) Validate() error {
	postgresFields := d.Driver == database.DriverPostgres && d.DSN == ""
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In(database.DriverPostgres, database.DriverSQLite)),
		validation.Field(&d.Host, validation.When(postgresFields, validation.Required)),
		validation.Field(&d.DBName, validation.When(postgresFields, validation.Required)),
		validation.Field(&d.Port, validation.When(postgresFields, validation.Required, validation.Max(65535))),
		validation.Field(&d.Path, validation.When(d.Driver == database.DriverSQLite && d.DSN == "", validation.Required)),
	)
}

func (p Providers) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Search, validation.Required, validation.In(SearchProviderBleve, SearchProviderMeilisearch, SearchProviderAlgolia)),
	)
}

func (b Bleve) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.IndexPath, validation.Required),
	)
}

func (m Meilisearch) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Host, validation.Required),
	)
}

func (a Algolia) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.AppID, validation.Required),
		validation.Field(&a.WriteAPIKey, validation.Required),
	)
}

func (u IndexUpdater) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.ID, validation.Required),
		validation.Field(&u.IndexName, validation.Required),
		validation.Field(&u.DocType, validation.Required),
	)
}

func isDuration(value interface{}) error {
	s, _ := value.(string)
	if _, err := time.ParseDuration(s); err != nil {
		return errors.New("must be a duration such as 30s")
	}
	return nil
}

// Definitions returns the updater definitions in configuration order. Every
// unrecognised or duplicated updater id is reported.
func (c *Config) Definitions() ([]updater.Definition, error) {
	known := make(map[string]bool)
	for _, id := range updater.IDs() {
		known[id] = true
	}

	var result *multierror.Error
	seen := make(map[string]bool, len(c.IndexUpdaters))
	defs := make([]updater.Definition, 0, len(c.IndexUpdaters))
	for _, u := range c.IndexUpdaters {
		if !known[u.ID] {
			result = multierror.Append(result, fmt.Errorf("%w: %q", updater.ErrUnrecognisedUpdater, u.ID))
			continue
		}
		if seen[u.ID] {
			result = multierror.Append(result, fmt.Errorf("%w: duplicate index_updater %q", ErrConfiguration, u.ID))
			continue
		}
		seen[u.ID] = true
		defs = append(defs, updater.Definition{ID: u.ID, IndexName: u.IndexName, DocType: u.DocType})
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return defs, nil
}

// PollingInterval returns the scheduler tick interval.
func (c *Config) PollingInterval() time.Duration {
	return time.Duration(c.PollingIntervalSecs) * time.Second
}

// CallTimeoutDuration returns the per-call timeout. Validate guarantees the
// value parses.
func (c *Config) CallTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.CallTimeout)
	return d
}

// HCLogLevel returns the configured log level for hclog.
func (c *Config) HCLogLevel() hclog.Level {
	return hclog.LevelFromString(c.LogLevel)
}

// DatabaseConfig returns the source database connection settings.
func (c *Config) DatabaseConfig() database.Config {
	d := c.Database
	if d == nil {
		d = &Database{}
	}
	return database.Config{
		Driver:   d.Driver,
		DSN:      d.DSN,
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
		DBName:   d.DBName,
		SSLMode:  d.SSLMode,
		Path:     d.Path,
	}
}
