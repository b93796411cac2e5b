// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig               `mapstructure:"app"`
	Camunda  CamundaConfig           `mapstructure:"camunda"`
	Database DatabaseConfig          `mapstructure:"database"`
	Registry RegistryConfig          `mapstructure:"registry"`
	Workers  map[string]WorkerConfig `mapstructure:"workers"`
	APIs     APIsConfig              `mapstructure:"apis"`
	Delivery DeliveryConfig          `mapstructure:"delivery"`
	Analysis AnalysisConfig          `mapstructure:"analysis"`
	Logging  LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
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
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RegistryConfig points at the activity registry file.
type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- External API Configuration ---

// APIsConfig holds settings for external API integrations.
type APIsConfig struct {
	Synthesis struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"synthesis"`
}

// DeliveryConfig holds settings for the deliver-answer worker.
type DeliveryConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// --- Analysis Configuration ---

// AnalysisConfig groups the tunable tables and caps that drive routing,
// table construction, and the answer engines. Empty keyword lists fall
// back to the compiled-in defaults of the owning package.
type AnalysisConfig struct {
	Routing   RoutingConfig   `mapstructure:"routing"`
	Tabular   TabularConfig   `mapstructure:"tabular"`
	Calc      CalcConfig      `mapstructure:"calc"`
	Lookup    LookupConfig    `mapstructure:"lookup"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Grounding GroundingConfig `mapstructure:"grounding"`
}

// RoutingConfig overrides the routing keyword tables.
type RoutingConfig struct {
	CalcKeywords   []string `mapstructure:"calc_keywords"`
	LookupKeywords []string `mapstructure:"lookup_keywords"`
	RAGKeywords    []string `mapstructure:"rag_keywords"`
}

// TabularConfig overrides the normalization and join tables.
type TabularConfig struct {
	NumericKeywords  []string `mapstructure:"numeric_keywords"`
	ProtectedColumns []string `mapstructure:"protected_columns"`
	JoinKeyAliases   []string `mapstructure:"join_key_aliases"`
	SessionTTL       int      `mapstructure:"session_ttl"` // minutes, 0 = never expire
}

// CalcConfig holds caps for the calculation engine.
type CalcConfig struct {
	DefaultTopN  int `mapstructure:"default_top_n"`
	MaxTopN      int `mapstructure:"max_top_n"`
	EvidenceRows int `mapstructure:"evidence_rows"`
	RecentRows   int `mapstructure:"recent_rows"`
	CacheTTL     int `mapstructure:"cache_ttl"` // seconds, 0 disables the cache
}

// LookupConfig holds caps for the lookup engine.
type LookupConfig struct {
	MaxRows int `mapstructure:"max_rows"`
}

// RetrievalConfig holds settings for passage retrieval.
type RetrievalConfig struct {
	Index       string `mapstructure:"index"`
	MaxPassages int    `mapstructure:"max_passages"`
}

// GroundingConfig holds settings for grounded context assembly.
type GroundingConfig struct {
	MaskSensitive bool `mapstructure:"mask_sensitive"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
