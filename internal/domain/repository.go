package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Batch operations
	SaveBatch(ctx context.Context, tenantID string, batch *TransferBatch) error
	GetBatch(ctx context.Context, tenantID string, batchID string) (*TransferBatch, error)

	// Analysis results
	SaveAnalysis(ctx context.Context, tenantID string, result *AnalysisResult) error
	GetAnalysis(ctx context.Context, tenantID string, analysisID string) (*AnalysisResult, error)
	ListAnalyses(ctx context.Context, tenantID string, since time.Time) ([]*AnalysisResult, error)

	// Ring rows, persisted alongside the parent analysis for querying.
	ListRings(ctx context.Context, tenantID string, analysisID string) ([]*FraudRing, error)

	// Exclusion rule operations
	SaveExclusionRule(ctx context.Context, tenantID string, rule *ExclusionRule) error
	GetExclusionRule(ctx context.Context, tenantID string, ruleID string) (*ExclusionRule, error)
	ListExclusionRules(ctx context.Context, tenantID string) ([]*ExclusionRule, error)
	DeleteExclusionRule(ctx context.Context, tenantID string, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
