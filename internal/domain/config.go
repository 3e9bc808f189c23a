package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Engine holds the detection thresholds
	Engine EngineConfig `json:"engine"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// EngineConfig holds the graph-analysis thresholds. The defaults are the
// calibrated production values; changing them changes detection output, so
// they are config rather than constants only for benchmarking and tuning.
type EngineConfig struct {
	// Cycle detection bounds (inclusive).
	MinCycleLength int `json:"minCycleLength"`
	MaxCycleLength int `json:"maxCycleLength"`

	// Smurfing: distinct counterparties within the window.
	SmurfingThreshold int           `json:"smurfingThreshold"`
	SmurfingWindow    time.Duration `json:"smurfingWindow"`

	// Shell chains.
	ShellMinChain    int `json:"shellMinChain"`
	ShellMaxChain    int `json:"shellMaxChain"`
	ShellLowActivity int `json:"shellLowActivity"` // max tx count for an intermediary

	// Merchant classification.
	MerchantMinInDegree int           `json:"merchantMinInDegree"`
	MerchantMinSenders  int           `json:"merchantMinSenders"`
	MerchantMinSpan     time.Duration `json:"merchantMinSpan"`

	// Payroll classification.
	PayrollMinOutDegree int     `json:"payrollMinOutDegree"`
	PayrollMaxVariation float64 `json:"payrollMaxVariation"`

	// Velocity bonus: more than VelocityThreshold transfers inside
	// VelocityWindow adds the high_velocity tag.
	VelocityThreshold int           `json:"velocityThreshold"`
	VelocityWindow    time.Duration `json:"velocityWindow"`

	// SearchBudget caps nodes visited by each graph search (cycle and
	// shell chains get one budget apiece; they run concurrently). Zero
	// means no cap. Exhaustion fails the analysis with an explicit error
	// instead of hanging on pathological dense graphs.
	SearchBudget int `json:"searchBudget"`

	// AnalysisTimeout bounds one full analysis. Zero means no deadline.
	AnalysisTimeout time.Duration `json:"analysisTimeout"`
}

// DefaultEngineConfig returns the calibrated detection thresholds.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MinCycleLength:      3,
		MaxCycleLength:      5,
		SmurfingThreshold:   10,
		SmurfingWindow:      72 * time.Hour,
		ShellMinChain:       4,
		ShellMaxChain:       8,
		ShellLowActivity:    3,
		MerchantMinInDegree: 20,
		MerchantMinSenders:  15,
		MerchantMinSpan:     168 * time.Hour,
		PayrollMinOutDegree: 10,
		PayrollMaxVariation: 0.15,
		VelocityThreshold:   5,
		VelocityWindow:      24 * time.Hour,
		SearchBudget:        5_000_000,
		AnalysisTimeout:     60 * time.Second,
	}
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds

	// MaxBatchSize rejects oversized batch submissions (0 = unlimited).
	MaxBatchSize int `json:"maxBatchSize"`

	// RateLimitPerMinute caps requests per tenant per minute (0 = off).
	RateLimitPerMinute int `json:"rateLimitPerMinute"`

	// AllowedOrigins lists origins permitted to make credentialed
	// cross-origin requests. Empty allows any origin, uncredentialed.
	AllowedOrigins []string `json:"allowedOrigins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			ReadTimeout:        30,
			WriteTimeout:       60,
			MaxBatchSize:       100_000,
			RateLimitPerMinute: 600,
		},
		Tier:   TierCommunity,
		Engine: DefaultEngineConfig(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300 * time.Second,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
