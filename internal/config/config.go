package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// PlaceholderUserAgent is the shipped default for edgar.user_agent. SEC
// requires the operator's own name and contact, so Validate rejects it.
const PlaceholderUserAgent = "edgar-index admin@example.com"

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Ledger LedgerConfig `yaml:"ledger" mapstructure:"ledger"`
	EDGAR  EDGARConfig  `yaml:"edgar" mapstructure:"edgar"`
	Index  IndexConfig  `yaml:"index" mapstructure:"index"`
	Ingest IngestConfig `yaml:"ingest" mapstructure:"ingest"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the relational store that receives companies and filings.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// LedgerConfig configures where processed files and the last fetched date are kept.
type LedgerConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	ProcessedFile string `yaml:"processed_file" mapstructure:"processed_file"`
	LastDateFile  string `yaml:"last_date_file" mapstructure:"last_date_file"`
}

// EDGARConfig configures access to the SEC archives.
type EDGARConfig struct {
	ArchivesURL  string        `yaml:"archives_url" mapstructure:"archives_url"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	RequestDelay time.Duration `yaml:"request_delay" mapstructure:"request_delay"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// IndexConfig describes the local index tree and the fixed-width layout.
type IndexConfig struct {
	Dir          string   `yaml:"dir" mapstructure:"dir"`
	FormTypes    []string `yaml:"form_types" mapstructure:"form_types"`
	MinDashes    int      `yaml:"min_dashes" mapstructure:"min_dashes"`
	CIKWidth     int      `yaml:"cik_width" mapstructure:"cik_width"`
	ColumnStarts []int    `yaml:"column_starts" mapstructure:"column_starts"`
}

// IngestConfig configures the ingestion driver.
type IngestConfig struct {
	EpochDate   string        `yaml:"epoch_date" mapstructure:"epoch_date"`
	FilePause   time.Duration `yaml:"file_pause" mapstructure:"file_pause"`
	SortedWalk  bool          `yaml:"sorted_walk" mapstructure:"sorted_walk"`
	Workers     int           `yaml:"workers" mapstructure:"workers"`
	SkipFetch   bool          `yaml:"skip_fetch" mapstructure:"skip_fetch"`
	MetricsFile string        `yaml:"metrics_file" mapstructure:"metrics_file"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EDGAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "edgar.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("ledger.driver", "file")
	v.SetDefault("ledger.processed_file", "processed_files.txt")
	v.SetDefault("ledger.last_date_file", "last_date.txt")
	v.SetDefault("edgar.archives_url", "https://www.sec.gov/Archives")
	v.SetDefault("edgar.user_agent", PlaceholderUserAgent)
	v.SetDefault("edgar.request_delay", 100*time.Millisecond)
	v.SetDefault("edgar.timeout", 30*time.Second)
	v.SetDefault("index.dir", "index_files")
	v.SetDefault("index.form_types", []string{"10-K", "10-Q", "8-K"})
	v.SetDefault("index.min_dashes", 100)
	v.SetDefault("index.cik_width", 10)
	v.SetDefault("index.column_starts", []int{0, 62, 74, 86, 98})
	v.SetDefault("ingest.epoch_date", "2024-09-17")
	v.SetDefault("ingest.file_pause", 100*time.Millisecond)
	v.SetDefault("ingest.sorted_walk", true)
	v.SetDefault("ingest.workers", 1)
	v.SetDefault("ingest.skip_fetch", false)
	v.SetDefault("ingest.metrics_file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable. All problems are
// reported together.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			problems = append(problems, "store.sqlite_path is required for the sqlite driver")
		}
	default:
		problems = append(problems, "store.driver must be postgres or sqlite")
	}

	switch c.Ledger.Driver {
	case "file":
		if c.Ledger.ProcessedFile == "" || c.Ledger.LastDateFile == "" {
			problems = append(problems, "ledger.processed_file and ledger.last_date_file are required for the file driver")
		}
	case "postgres":
		if c.Store.Driver != "postgres" {
			problems = append(problems, "ledger.driver postgres requires store.driver postgres")
		}
	case "memory":
	default:
		problems = append(problems, "ledger.driver must be file, postgres or memory")
	}

	switch strings.TrimSpace(c.EDGAR.UserAgent) {
	case "":
		problems = append(problems, "edgar.user_agent is required by the SEC access policy")
	case PlaceholderUserAgent:
		problems = append(problems, `edgar.user_agent must name the operator, e.g. "Acme Research ops@acme.com"`)
	}
	if c.Index.Dir == "" {
		problems = append(problems, "index.dir is required")
	}
	if len(c.Index.ColumnStarts) != 5 {
		problems = append(problems, "index.column_starts must list 5 offsets")
	}
	if len(c.Index.FormTypes) == 0 {
		problems = append(problems, "index.form_types must not be empty")
	}
	if c.Ingest.Workers < 1 {
		problems = append(problems, "ingest.workers must be at least 1")
	}
	if c.Ingest.EpochDate != "" {
		if _, err := time.Parse("2006-01-02", c.Ingest.EpochDate); err != nil {
			problems = append(problems, "ingest.epoch_date must be YYYY-MM-DD")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
