// Package config loads the settings used by the qcbench programs from an
// optional JSON file and QC_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for qcbench.
type Config struct {
	Dataset DatasetConfig `json:"dataset"`
	Eval    EvalConfig    `json:"eval"`
	Store   StoreConfig   `json:"store"`
	Server  ServerConfig  `json:"server"`
	Log     LogConfig     `json:"log"`
}

// DatasetConfig locates the analytics snapshot.
type DatasetConfig struct {
	Path   string `json:"path"`
	FileID string `json:"file_id"` // Google Drive file id used by download
	Seed   uint64 `json:"seed"`    // seed for the synthetic snapshot
}

// EvalConfig holds settings for saving answers and scoring runs.
type EvalConfig struct {
	Dir             string  `json:"dir"`             // holds dataset.json, eval_answer_sqls/, eval_answer_csvs/
	TrajectoryDir   string  `json:"trajectory_dir"`  // recorded agent runs, one JSON file per example
	Concurrency     int     `json:"concurrency"`     // examples scored in parallel
	AbsTolerance    float64 `json:"abs_tolerance"`   // numeric cell tolerance
	RelTolerance    float64 `json:"rel_tolerance"`   // numeric cell tolerance, relative
	ObservationRows int     `json:"observation_rows"` // rows returned by the execute_sql tool
}

// StoreConfig selects where evaluation runs are persisted.
type StoreConfig struct {
	Driver        string `json:"driver"` // "postgres", "mongo" or empty for none
	PostgresURL   string `json:"postgres_url"`
	MongoURL      string `json:"mongo_url"`
	MongoUser     string `json:"mongo_user"`
	MongoPassword string `json:"mongo_password"`
	MongoDatabase string `json:"mongo_database"`
}

// ServerConfig holds the listen addresses for qcbench serve.
type ServerConfig struct {
	MCPHost     string `json:"mcp_host"`
	MetricsHost string `json:"metrics_host"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Dataset: DatasetConfig{
			Path:   "data/qc_pune.duckdb",
			FileID: "1sQOUN4IvYdX26AaFS7tZ-A5R_A3ThtsL",
			Seed:   20251101,
		},
		Eval: EvalConfig{
			Dir:             "evals",
			TrajectoryDir:   "trajectories",
			Concurrency:     4,
			AbsTolerance:    0.011,
			RelTolerance:    0.001,
			ObservationRows: 50,
		},
		Store: StoreConfig{
			MongoURL:      "mongodb://localhost:27017",
			MongoDatabase: "qcbench",
		},
		Server: ServerConfig{
			MCPHost:     "localhost:8080",
			MetricsHost: "localhost:9090",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "pretty",
		},
	}
}

// Load loads the defaults, then the JSON file at path when path is not
// empty, then environment overrides.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}

		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	loadFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the programs cannot use.
func (c Config) Validate() error {
	var errs []error

	if c.Dataset.Path == "" {
		errs = append(errs, errors.New("dataset path is required"))
	}

	if c.Eval.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("eval concurrency must be at least 1, got %d", c.Eval.Concurrency))
	}

	if c.Eval.AbsTolerance < 0 || c.Eval.RelTolerance < 0 {
		errs = append(errs, errors.New("eval tolerances must not be negative"))
	}

	switch c.Store.Driver {
	case "":
	case "postgres":
		if c.Store.PostgresURL == "" {
			errs = append(errs, errors.New("postgres store requires postgres_url"))
		}
	case "mongo":
		if c.Store.MongoURL == "" {
			errs = append(errs, errors.New("mongo store requires mongo_url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}

	return errors.Join(errs...)
}

// String renders the configuration as indented JSON with secrets masked.
func (c Config) String() string {
	if c.Store.MongoPassword != "" {
		c.Store.MongoPassword = "********"
	}

	if c.Store.PostgresURL != "" {
		c.Store.PostgresURL = maskURL(c.Store.PostgresURL)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}

	return string(data)
}

// =============================================================================

func loadFromEnv(cfg *Config) {
	envString("QC_DB_PATH", &cfg.Dataset.Path)
	envString("QC_DATASET_FILE_ID", &cfg.Dataset.FileID)
	envUint("QC_DATASET_SEED", &cfg.Dataset.Seed)

	envString("QC_EVAL_DIR", &cfg.Eval.Dir)
	envString("QC_TRAJECTORY_DIR", &cfg.Eval.TrajectoryDir)
	envInt("QC_CONCURRENCY", &cfg.Eval.Concurrency)
	envFloat("QC_ABS_TOLERANCE", &cfg.Eval.AbsTolerance)
	envFloat("QC_REL_TOLERANCE", &cfg.Eval.RelTolerance)
	envInt("QC_OBSERVATION_ROWS", &cfg.Eval.ObservationRows)

	envString("QC_STORE", &cfg.Store.Driver)
	envString("QC_POSTGRES_URL", &cfg.Store.PostgresURL)
	envString("QC_MONGO_URL", &cfg.Store.MongoURL)
	envString("QC_MONGO_USER", &cfg.Store.MongoUser)
	envString("QC_MONGO_PASS", &cfg.Store.MongoPassword)
	envString("QC_MONGO_DB", &cfg.Store.MongoDatabase)

	envString("QC_MCP_HOST", &cfg.Server.MCPHost)
	envString("QC_METRICS_HOST", &cfg.Server.MetricsHost)

	envString("QC_LOG_LEVEL", &cfg.Log.Level)
	envString("QC_LOG_FORMAT", &cfg.Log.Format)
}

// envString loads a string environment variable into the target if set.
func envString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

// envInt loads an integer environment variable into the target if set and valid.
func envInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*target = i
		}
	}
}

func envUint(key string, target *uint64) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseUint(v, 10, 64); err == nil {
			*target = i
		}
	}
}

// envFloat loads a float64 environment variable into the target if set and valid.
func envFloat(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

func maskURL(u string) string {
	at := strings.LastIndex(u, "@")
	scheme := strings.Index(u, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return u
	}

	creds := u[scheme+3 : at]
	if user, _, ok := strings.Cut(creds, ":"); ok {
		return u[:scheme+3] + user + ":********" + u[at:]
	}

	return u
}
