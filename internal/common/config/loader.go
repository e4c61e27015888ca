// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.{APP_ENVIRONMENT}.yaml and applies env overrides.
func Load() (*Config, error) {
	return load(viper.New(), "")
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	return load(viper.New(), path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	loadEnvFile()

	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	source := path
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../../configs")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading base config: %w", err)
			}
		}
		source = v.ConfigFileUsed()

		env := os.Getenv("APP_ENVIRONMENT")
		if env == "" {
			env = "development"
		}
		v.SetConfigName(fmt.Sprintf("config.%s", env))
		_ = v.MergeInConfig()
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.Source = source
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Watch reloads path whenever it changes on disk and hands the new config to onChange.
// Invalid edits are reported through onError and the previous config stays in effect.
func Watch(path string, onChange func(*Config), onError func(error)) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env", "../../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets from well-known env names when the file left them empty.
func overrideEmptyConfig(cfg *Config) {
	fill := func(dst *string, envName string) {
		if *dst == "" {
			if val := os.Getenv(envName); val != "" {
				*dst = val
			}
		}
	}
	fill(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	fill(&cfg.LLM.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	fill(&cfg.Integrations.GoogleMaps.APIKey, "GOOGLE_MAPS_API_KEY")
	fill(&cfg.Database.Postgres.User, "DB_USER")
	fill(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	fill(&cfg.Database.Redis.Password, "REDIS_PASSWORD")
	fill(&cfg.Database.Elasticsearch.APIKey, "ELASTICSEARCH_API_KEY")
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "receipt-agent"
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 120000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Database.Redis.PoolSize == 0 {
		cfg.Database.Redis.PoolSize = 10
	}
	if cfg.Database.Redis.Timeout == 0 {
		cfg.Database.Redis.Timeout = 3000
	}
	if cfg.Database.Elasticsearch.MaxRetries == 0 {
		cfg.Database.Elasticsearch.MaxRetries = 3
	}

	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = "redis"
	}
	if cfg.VectorStore.KeyPrefix == "" {
		cfg.VectorStore.KeyPrefix = "receipt"
	}
	if cfg.VectorStore.Index == "" {
		cfg.VectorStore.Index = "receipt-embeddings"
	}
	if cfg.VectorStore.MaxScan == 0 {
		cfg.VectorStore.MaxScan = 10000
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.VisionModel == "" {
		cfg.LLM.VisionModel = cfg.LLM.Model
	}
	if cfg.LLM.EmbeddingModel == "" {
		cfg.LLM.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.LLM.AnthropicModel == "" {
		cfg.LLM.AnthropicModel = "claude-sonnet-4-5"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.1
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 512
	}
	if cfg.LLM.Seed == 0 {
		cfg.LLM.Seed = 1024
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 60000
	}

	if cfg.Agent.MaxTurns == 0 {
		cfg.Agent.MaxTurns = 10
	}
	if cfg.Agent.ResponseFormat == "" {
		cfg.Agent.ResponseFormat = "tagged"
	}
	if cfg.Agent.SessionTimeout == 0 {
		cfg.Agent.SessionTimeout = 300000
	}

	if cfg.Dedupe.Threshold == 0 {
		cfg.Dedupe.Threshold = 0.95
	}

	if cfg.Integrations.AWS.Region == "" {
		cfg.Integrations.AWS.Region = "us-east-1"
	}
	if cfg.Integrations.GoogleMaps.BaseURL == "" {
		cfg.Integrations.GoogleMaps.BaseURL = "https://maps.googleapis.com/maps/api/geocode/json"
	}
	if cfg.Integrations.GoogleMaps.RequestsPerSec == 0 {
		cfg.Integrations.GoogleMaps.RequestsPerSec = 10
	}
	if cfg.Integrations.GoogleMaps.CacheTTL == 0 {
		cfg.Integrations.GoogleMaps.CacheTTL = 86400
	}

	if cfg.Office.Address == "" {
		cfg.Office.Address = "OSI Systems, HiTech City, Hyderabad"
	}
	if cfg.Office.Lat == 0 && cfg.Office.Lng == 0 {
		cfg.Office.Lat = 17.4508
		cfg.Office.Lng = 78.3798
	}
	if cfg.Office.RadiusKm == 0 {
		cfg.Office.RadiusKm = 2.5
	}

	if cfg.Intake.Address == "" {
		cfg.Intake.Address = ":8080"
	}
	if cfg.Intake.MaxConcurrent == 0 {
		cfg.Intake.MaxConcurrent = 4
	}
	if cfg.Intake.MaxUploadBytes == 0 {
		cfg.Intake.MaxUploadBytes = 10 << 20
	}
	if cfg.Intake.StageTTL == 0 {
		cfg.Intake.StageTTL = 7 * 24 * 3600
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = cfg.Camunda.Timeout
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}
	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}

	switch cfg.VectorStore.Backend {
	case "redis", "memory":
	case "elasticsearch":
		if len(cfg.Database.Elasticsearch.Addresses) == 0 {
			return fmt.Errorf("database.elasticsearch.addresses is required for the elasticsearch vector store")
		}
	default:
		return fmt.Errorf("vector_store.backend %q is not supported", cfg.VectorStore.Backend)
	}

	switch cfg.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider %q is not supported", cfg.LLM.Provider)
	}

	switch cfg.Agent.ResponseFormat {
	case "tagged", "json":
	default:
		return fmt.Errorf("agent.response_format %q is not supported", cfg.Agent.ResponseFormat)
	}
	if cfg.Agent.MaxTurns < 1 {
		return fmt.Errorf("agent.max_turns must be positive")
	}

	if err := validThreshold("dedupe.threshold", cfg.Dedupe.Threshold); err != nil {
		return err
	}
	for category, threshold := range cfg.Dedupe.Categories {
		if err := validThreshold("dedupe.categories."+category, threshold); err != nil {
			return err
		}
	}

	if cfg.Office.RadiusKm <= 0 {
		return fmt.Errorf("office.radius_km must be positive")
	}
	return nil
}

func validThreshold(name string, v float64) error {
	if v <= -1 || v > 1 {
		return fmt.Errorf("%s must be in (-1, 1], got %v", name, v)
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: cfg.Camunda.MaxJobsActive,
		Timeout:       cfg.Camunda.Timeout,
		MaxRetries:    3,
	}
}
