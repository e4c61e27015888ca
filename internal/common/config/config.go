// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig               `mapstructure:"app"`
	Camunda      CamundaConfig           `mapstructure:"camunda"`
	Database     DatabaseConfig          `mapstructure:"database"`
	VectorStore  VectorStoreConfig       `mapstructure:"vector_store"`
	LLM          LLMConfig               `mapstructure:"llm"`
	Agent        AgentConfig             `mapstructure:"agent"`
	Dedupe       DedupeConfig            `mapstructure:"dedupe"`
	Integrations IntegrationConfig       `mapstructure:"integrations"`
	Office       OfficeConfig            `mapstructure:"office"`
	Intake       IntakeConfig            `mapstructure:"intake"`
	Tracing      TracingConfig           `mapstructure:"tracing"`
	Workers      map[string]WorkerConfig `mapstructure:"workers"`
	Logging      LoggingConfig           `mapstructure:"logging"`

	// Source is the base config file that was read, empty when none was found.
	Source string `mapstructure:"-"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	APIKey     string   `mapstructure:"api_key"`
	MaxRetries int      `mapstructure:"max_retries"`
}

// RedisConfig accepts either a host:port Address or a redis:// URL.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	Timeout  int    `mapstructure:"timeout"` // milliseconds, per read/write
}

// VectorStoreConfig selects where receipt embeddings live.
type VectorStoreConfig struct {
	Backend   string `mapstructure:"backend"` // redis | elasticsearch | memory
	KeyPrefix string `mapstructure:"key_prefix"`
	Index     string `mapstructure:"index"`
	MaxScan   int    `mapstructure:"max_scan"` // elasticsearch page size per category
}

// LLMConfig configures the model providers.
type LLMConfig struct {
	Provider        string  `mapstructure:"provider"` // openai | anthropic
	BaseURL         string  `mapstructure:"base_url"`
	APIKey          string  `mapstructure:"api_key"`
	Model           string  `mapstructure:"model"`
	VisionModel     string  `mapstructure:"vision_model"`
	EmbeddingModel  string  `mapstructure:"embedding_model"`
	AnthropicAPIKey string  `mapstructure:"anthropic_api_key"`
	AnthropicModel  string  `mapstructure:"anthropic_model"`
	Temperature     float64 `mapstructure:"temperature"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Seed            int     `mapstructure:"seed"`
	Timeout         int     `mapstructure:"timeout"` // milliseconds
}

// AgentConfig bounds the orchestration loop.
type AgentConfig struct {
	MaxTurns        int    `mapstructure:"max_turns"`
	ResponseFormat  string `mapstructure:"response_format"` // tagged | json
	InvokeFinalTool bool   `mapstructure:"invoke_final_tool"`
	SessionTimeout  int    `mapstructure:"session_timeout"` // milliseconds
}

// DedupeConfig holds the duplicate thresholds. Category keys use the receipt type names.
type DedupeConfig struct {
	Threshold  float64            `mapstructure:"threshold"`
	Categories map[string]float64 `mapstructure:"categories"`
}

// IntegrationConfig holds settings for AWS messaging and geocoding.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled            bool   `mapstructure:"enabled"`
			DefaultSMSSenderID string `mapstructure:"default_sms_sender_id"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`

	GoogleMaps struct {
		APIKey         string  `mapstructure:"api_key"`
		BaseURL        string  `mapstructure:"base_url"`
		RequestsPerSec float64 `mapstructure:"requests_per_sec"`
		CacheTTL       int     `mapstructure:"cache_ttl"` // seconds
	} `mapstructure:"google_maps"`
}

// OfficeConfig is the reference point for travel proximity checks.
type OfficeConfig struct {
	Address  string  `mapstructure:"address"`
	Lat      float64 `mapstructure:"lat"`
	Lng      float64 `mapstructure:"lng"`
	RadiusKm float64 `mapstructure:"radius_km"`
}

// IntakeConfig configures the HTTP intake server.
type IntakeConfig struct {
	Address        string `mapstructure:"address"`
	MaxConcurrent  int    `mapstructure:"max_concurrent"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
	StageTTL       int    `mapstructure:"stage_ttl"` // seconds
}

// TracingConfig enables the jaeger exporter.
type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
