// Package config handles configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/spetr/tablerag/pkg/types"
)

// Config represents the complete configuration.
type Config struct {
	Embedding   EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	Generation  ModelConfig     `mapstructure:"generation" yaml:"generation"`
	SQL         ModelConfig     `mapstructure:"sql" yaml:"sql"`
	OpenAI      APIConfig       `mapstructure:"openai" yaml:"openai"`
	Groq        APIConfig       `mapstructure:"groq" yaml:"groq"`
	AzureOpenAI AzureConfig     `mapstructure:"azure_openai" yaml:"azure_openai"`
	Ollama      OllamaConfig    `mapstructure:"ollama" yaml:"ollama"`
	Defaults    DefaultsConfig  `mapstructure:"defaults" yaml:"defaults"`
	VectorDB    VectorDBConfig  `mapstructure:"vectordb" yaml:"vectordb"`
	Data        DataConfig      `mapstructure:"data" yaml:"data"`
	Index       IndexConfig     `mapstructure:"index" yaml:"index"`
	Plugins     PluginsConfig   `mapstructure:"plugins" yaml:"plugins"`
	Logging     LoggingConfig   `mapstructure:"logging" yaml:"logging"`

	// Root is the project root relative paths are resolved against.
	Root string `mapstructure:"-" yaml:"-"`
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`   // openai, groq, ollama, plugin
	ModelID string `mapstructure:"model_id" yaml:"model_id"` // model name
	Plugin  string `mapstructure:"plugin" yaml:"plugin"`     // plugin name when backend is "plugin"
}

// ModelConfig selects a generation backend and chat model.
type ModelConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`   // openai, groq
	ModelID string `mapstructure:"model_id" yaml:"model_id"` // model name
}

// APIConfig holds credentials for an OpenAI-compatible API.
type APIConfig struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	APIURL string `mapstructure:"api_url" yaml:"api_url"` // optional base URL override
}

// AzureConfig holds Azure OpenAI credentials.
type AzureConfig struct {
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint"`
	APIVersion string `mapstructure:"api_version" yaml:"api_version"`
}

// OllamaConfig contains the local Ollama endpoint.
type OllamaConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// DefaultsConfig contains provider defaults.
type DefaultsConfig struct {
	InputMaxCharacters int     `mapstructure:"input_max_characters" yaml:"input_max_characters"`
	MaxOutputTokens    int     `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
	Temperature        float32 `mapstructure:"temperature" yaml:"temperature"`
}

// VectorDBConfig contains vector store configuration.
type VectorDBConfig struct {
	Backend      string `mapstructure:"backend" yaml:"backend"`       // sqlitevec, bolt, qdrant
	Path         string `mapstructure:"path" yaml:"path"`             // sub-directory of the database dir
	Collection   string `mapstructure:"collection" yaml:"collection"` // collection name
	BatchSize    int    `mapstructure:"batch_size" yaml:"batch_size"` // records per insert batch
	QdrantHost   string `mapstructure:"qdrant_host" yaml:"qdrant_host"`
	QdrantPort   int    `mapstructure:"qdrant_port" yaml:"qdrant_port"`
	QdrantAPIKey string `mapstructure:"qdrant_api_key" yaml:"qdrant_api_key"`
}

// DataConfig locates the dataset and the SQL database.
type DataConfig struct {
	AssetsDir   string `mapstructure:"assets_dir" yaml:"assets_dir"`     // relative to Root unless absolute
	Dataset     string `mapstructure:"dataset" yaml:"dataset"`           // file name under database/csv
	DatabaseSQL string `mapstructure:"database_sql" yaml:"database_sql"` // file name under database/db_sql
}

// IndexConfig contains indexing configuration.
type IndexConfig struct {
	Embed    bool          `mapstructure:"embed" yaml:"embed"`       // re-embed the dataset on reindex
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"` // watcher debounce
}

// PluginsConfig contains plugin discovery settings.
type PluginsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Backend: "openai",
			ModelID: "text-embedding-3-small",
		},
		Generation: ModelConfig{
			Backend: "openai",
			ModelID: "gpt-4o-mini",
		},
		SQL: ModelConfig{
			Backend: "openai",
			ModelID: "gpt-4o-mini",
		},
		AzureOpenAI: AzureConfig{
			APIVersion: "2024-02-01",
		},
		Ollama: OllamaConfig{
			Endpoint: "http://localhost:11434",
		},
		Defaults: DefaultsConfig{
			InputMaxCharacters: 1000,
			MaxOutputTokens:    1000,
			Temperature:        0.1,
		},
		VectorDB: VectorDBConfig{
			Backend:    "sqlitevec",
			Path:       "vectordb",
			Collection: "rows",
			BatchSize:  50,
			QdrantHost: "localhost",
			QdrantPort: 6334,
		},
		Data: DataConfig{
			AssetsDir:   "assets",
			Dataset:     "dataset.csv",
			DatabaseSQL: "dataset.db",
		},
		Index: IndexConfig{
			Embed:    false,
			Debounce: 2 * time.Second,
		},
		Plugins: PluginsConfig{
			Dir: filepath.Join(".tablerag", "plugins"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// envAliases are extra environment names accepted for a key, checked after
// the canonical upper-cased name.
var envAliases = map[string][]string{
	"azure_openai.api_version":      {"API_VERSION"},
	"vectordb.backend":              {"VECTOR_DB_BACKEND"},
	"vectordb.path":                 {"VECTOR_DB_PATH"},
	"vectordb.collection":           {"COLLECTION_NAME"},
	"data.dataset":                  {"DATASET"},
	"data.database_sql":             {"DATABASE_SQL"},
	"defaults.input_max_characters": {"INPUT_DEFAULT_MAX_CHARACTERS"},
	"defaults.max_output_tokens":    {"GENERATION_DEFAULT_MAX_TOKENS"},
	"defaults.temperature":          {"GENERATION_DEFAULT_TEMPERATURE"},
}

// ConfigDir returns the path to the .tablerag directory.
func ConfigDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".tablerag")
}

// ConfigPath returns the path to config.yaml.
func ConfigPath(projectRoot string) string {
	return filepath.Join(ConfigDir(projectRoot), "config.yaml")
}

// EnvPath returns the path to the .env file.
func EnvPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".env")
}

// Load reads defaults, then config.yaml, then .env, then the process
// environment, each overriding the previous one.
func Load(projectRoot string) (*Config, []string, error) {
	warnings := []string{}

	if err := loadDotEnv(EnvPath(projectRoot)); err != nil {
		return nil, nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, aliases := range envAliases {
		names := append([]string{strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, nil, err
		}
	}

	configPath := ConfigPath(projectRoot)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		warnings = append(warnings, "No config file found, using defaults and environment")
	} else {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Root = projectRoot

	if cfg.VectorDB.BatchSize <= 0 {
		cfg.VectorDB.BatchSize = 50
		warnings = append(warnings, "Using default vectordb batch size: 50")
	}

	return cfg, warnings, nil
}

// setDefaults registers every key of cfg so that environment overrides are
// visible to Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	d := map[string]any{
		"embedding.backend":             cfg.Embedding.Backend,
		"embedding.model_id":            cfg.Embedding.ModelID,
		"embedding.plugin":              cfg.Embedding.Plugin,
		"generation.backend":            cfg.Generation.Backend,
		"generation.model_id":           cfg.Generation.ModelID,
		"sql.backend":                   cfg.SQL.Backend,
		"sql.model_id":                  cfg.SQL.ModelID,
		"openai.api_key":                cfg.OpenAI.APIKey,
		"openai.api_url":                cfg.OpenAI.APIURL,
		"groq.api_key":                  cfg.Groq.APIKey,
		"groq.api_url":                  cfg.Groq.APIURL,
		"azure_openai.api_key":          cfg.AzureOpenAI.APIKey,
		"azure_openai.endpoint":         cfg.AzureOpenAI.Endpoint,
		"azure_openai.api_version":      cfg.AzureOpenAI.APIVersion,
		"ollama.endpoint":               cfg.Ollama.Endpoint,
		"defaults.input_max_characters": cfg.Defaults.InputMaxCharacters,
		"defaults.max_output_tokens":    cfg.Defaults.MaxOutputTokens,
		"defaults.temperature":          cfg.Defaults.Temperature,
		"vectordb.backend":              cfg.VectorDB.Backend,
		"vectordb.path":                 cfg.VectorDB.Path,
		"vectordb.collection":           cfg.VectorDB.Collection,
		"vectordb.batch_size":           cfg.VectorDB.BatchSize,
		"vectordb.qdrant_host":          cfg.VectorDB.QdrantHost,
		"vectordb.qdrant_port":          cfg.VectorDB.QdrantPort,
		"vectordb.qdrant_api_key":       cfg.VectorDB.QdrantAPIKey,
		"data.assets_dir":               cfg.Data.AssetsDir,
		"data.dataset":                  cfg.Data.Dataset,
		"data.database_sql":             cfg.Data.DatabaseSQL,
		"index.embed":                   cfg.Index.Embed,
		"index.debounce":                cfg.Index.Debounce,
		"plugins.dir":                   cfg.Plugins.Dir,
		"logging.level":                 cfg.Logging.Level,
		"logging.format":                cfg.Logging.Format,
	}
	for k, val := range d {
		v.SetDefault(k, val)
	}
}

// loadDotEnv exports KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is fine.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return err
	}

	for _, key := range env.AllKeys() {
		name := strings.ToUpper(key)
		if _, ok := os.LookupEnv(name); ok {
			continue
		}
		if err := os.Setenv(name, env.GetString(key)); err != nil {
			return err
		}
	}
	return nil
}

// Save saves configuration to file.
func Save(projectRoot string, cfg *Config) error {
	configDir := ConfigDir(projectRoot)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(ConfigPath(projectRoot))
	v.SetConfigType("yaml")

	// Set all values
	v.Set("embedding", cfg.Embedding)
	v.Set("generation", cfg.Generation)
	v.Set("sql", cfg.SQL)
	v.Set("openai", cfg.OpenAI)
	v.Set("groq", cfg.Groq)
	v.Set("azure_openai", cfg.AzureOpenAI)
	v.Set("ollama", cfg.Ollama)
	v.Set("defaults", cfg.Defaults)
	v.Set("vectordb", cfg.VectorDB)
	v.Set("data", cfg.Data)
	v.Set("index", map[string]any{"embed": cfg.Index.Embed, "debounce": cfg.Index.Debounce.String()})
	v.Set("plugins", cfg.Plugins)
	v.Set("logging", cfg.Logging)

	return v.WriteConfig()
}

// Validate validates the configuration.
func Validate(cfg *Config) []error {
	var errs []error

	validEmbeddingBackends := map[string]bool{
		"openai": true, "groq": true, "ollama": true, "plugin": true,
	}
	if !validEmbeddingBackends[cfg.Embedding.Backend] {
		errs = append(errs, fmt.Errorf("%w: invalid embedding backend: %s", types.ErrInvalidConfig, cfg.Embedding.Backend))
	}
	if cfg.Embedding.Backend == "plugin" && cfg.Embedding.Plugin == "" {
		errs = append(errs, fmt.Errorf("%w: embedding.plugin is required for the plugin backend", types.ErrInvalidConfig))
	}

	validGenerationBackends := map[string]bool{
		"openai": true, "groq": true,
	}
	if !validGenerationBackends[cfg.Generation.Backend] {
		errs = append(errs, fmt.Errorf("%w: invalid generation backend: %s", types.ErrInvalidConfig, cfg.Generation.Backend))
	}
	if !validGenerationBackends[cfg.SQL.Backend] {
		errs = append(errs, fmt.Errorf("%w: invalid sql backend: %s", types.ErrInvalidConfig, cfg.SQL.Backend))
	}

	validVectorDBBackends := map[string]bool{
		"sqlitevec": true, "bolt": true, "qdrant": true,
	}
	if !validVectorDBBackends[cfg.VectorDB.Backend] {
		errs = append(errs, fmt.Errorf("%w: invalid vectordb backend: %s", types.ErrInvalidConfig, cfg.VectorDB.Backend))
	}
	if cfg.VectorDB.Collection == "" {
		errs = append(errs, fmt.Errorf("%w: vectordb.collection must not be empty", types.ErrInvalidConfig))
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Errorf("%w: invalid logging level: %s", types.ErrInvalidConfig, cfg.Logging.Level))
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		errs = append(errs, fmt.Errorf("%w: invalid logging format: %s (valid: text, json)", types.ErrInvalidConfig, cfg.Logging.Format))
	}

	return errs
}

// DatabaseDir returns <assets>/database.
func (c *Config) DatabaseDir() string {
	assets := c.Data.AssetsDir
	if !filepath.IsAbs(assets) {
		assets = filepath.Join(c.Root, assets)
	}
	return filepath.Join(assets, "database")
}

// DatabasePath returns <database>/<name>, creating the directory if needed.
func (c *Config) DatabasePath(name string) (string, error) {
	path := filepath.Join(c.DatabaseDir(), name)
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("failed to create database dir: %w", err)
	}
	return path, nil
}

// DatasetPath returns <database>/csv/<name>.
func (c *Config) DatasetPath(name string) string {
	return filepath.Join(c.DatabaseDir(), "csv", name)
}

// SQLDatabasePath returns <database>/db_sql/<name>.
func (c *Config) SQLDatabasePath(name string) string {
	return filepath.Join(c.DatabaseDir(), "db_sql", name)
}

// PluginsDir returns the plugin directory resolved against Root.
func (c *Config) PluginsDir() string {
	if filepath.IsAbs(c.Plugins.Dir) {
		return c.Plugins.Dir
	}
	return filepath.Join(c.Root, c.Plugins.Dir)
}
