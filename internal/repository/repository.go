// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveBatch stores an ingested transfer batch with tenant isolation.
func (r *SQLRepository) SaveBatch(ctx context.Context, tenantID string, batch *domain.TransferBatch) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	transfers, err := json.Marshal(batch.Transfers)
	if err != nil {
		return fmt.Errorf("failed to encode transfers: %w", err)
	}

	query := `
		INSERT INTO batches (id, tenant_id, transfers, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		batch.ID, tenantID, string(transfers), batch.CreatedAt,
	)
	return err
}

// GetBatch retrieves a batch by ID with tenant isolation.
func (r *SQLRepository) GetBatch(ctx context.Context, tenantID string, batchID string) (*domain.TransferBatch, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, transfers, created_at
		FROM batches
		WHERE tenant_id = ? AND id = ?
	`

	var batch domain.TransferBatch
	var transfers string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, batchID).Scan(
		&batch.ID, &batch.TenantID, &transfers, &batch.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(transfers), &batch.Transfers); err != nil {
		return nil, fmt.Errorf("failed to decode transfers for batch %s: %w", batchID, err)
	}

	return &batch, nil
}

// SaveAnalysis stores an analysis result plus one queryable row per ring.
func (r *SQLRepository) SaveAnalysis(ctx context.Context, tenantID string, result *domain.AnalysisResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode analysis result: %w", err)
	}

	query := `
		INSERT INTO analyses (
			id, tenant_id, batch_id, accounts_analyzed, accounts_flagged,
			rings_detected, processing_ms, result, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if _, err := r.db.ExecContext(ctx, r.rebind(query),
		result.ID, tenantID, result.BatchID,
		result.Summary.TotalAccountsAnalyzed,
		result.Summary.SuspiciousAccountsFlagged,
		result.Summary.FraudRingsDetected,
		result.Summary.ProcessingMs,
		string(payload), result.Timestamp,
	); err != nil {
		return err
	}

	ringQuery := `
		INSERT INTO fraud_rings (ring_id, tenant_id, analysis_id, pattern_type, risk_score, members)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	for _, ring := range result.FraudRings {
		members, _ := json.Marshal(ring.MemberAccounts)
		if _, err := r.db.ExecContext(ctx, r.rebind(ringQuery),
			ring.RingID, tenantID, result.ID, ring.PatternType, ring.RiskScore, string(members),
		); err != nil {
			return err
		}
	}

	return nil
}

// GetAnalysis retrieves an analysis result by ID with tenant isolation.
func (r *SQLRepository) GetAnalysis(ctx context.Context, tenantID string, analysisID string) (*domain.AnalysisResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT result FROM analyses
		WHERE tenant_id = ? AND id = ?
	`

	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, analysisID).Scan(&payload)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var result domain.AnalysisResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to decode analysis %s: %w", analysisID, err)
	}

	return &result, nil
}

// ListAnalyses retrieves analyses for a tenant since the given time,
// newest first.
func (r *SQLRepository) ListAnalyses(ctx context.Context, tenantID string, since time.Time) ([]*domain.AnalysisResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT result FROM analyses
		WHERE tenant_id = ? AND timestamp >= ?
		ORDER BY timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.AnalysisResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}

		var result domain.AnalysisResult
		if err := json.Unmarshal([]byte(payload), &result); err != nil {
			return nil, fmt.Errorf("failed to decode stored analysis: %w", err)
		}
		results = append(results, &result)
	}

	return results, rows.Err()
}

// ListRings retrieves the ring rows for one analysis, in ring-id order.
func (r *SQLRepository) ListRings(ctx context.Context, tenantID string, analysisID string) ([]*domain.FraudRing, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT ring_id, pattern_type, risk_score, members
		FROM fraud_rings
		WHERE tenant_id = ? AND analysis_id = ?
		ORDER BY ring_id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rings []*domain.FraudRing
	for rows.Next() {
		var ring domain.FraudRing
		var members string

		if err := rows.Scan(&ring.RingID, &ring.PatternType, &ring.RiskScore, &members); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(members), &ring.MemberAccounts); err != nil {
			return nil, fmt.Errorf("failed to decode members for ring %s: %w", ring.RingID, err)
		}
		rings = append(rings, &ring)
	}

	return rings, rows.Err()
}

// SaveExclusionRule stores an exclusion rule with tenant isolation.
func (r *SQLRepository) SaveExclusionRule(ctx context.Context, tenantID string, rule *domain.ExclusionRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO exclusion_rules (
			id, tenant_id, name, description, version, expression, label, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			label = excluded.label,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, rule.Label, enabled,
		now, now,
	)
	return err
}

// GetExclusionRule retrieves an exclusion rule with tenant isolation.
func (r *SQLRepository) GetExclusionRule(ctx context.Context, tenantID string, ruleID string) (*domain.ExclusionRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, label, enabled
		FROM exclusion_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var rule domain.ExclusionRule
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
		&rule.Version, &rule.Expression, &rule.Label, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	return &rule, nil
}

// ListExclusionRules retrieves all active exclusion rules for a tenant.
func (r *SQLRepository) ListExclusionRules(ctx context.Context, tenantID string) ([]*domain.ExclusionRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, label, enabled
		FROM exclusion_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.ExclusionRule
	for rows.Next() {
		var rule domain.ExclusionRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
			&rule.Version, &rule.Expression, &rule.Label, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteExclusionRule soft-deletes a rule by setting enabled = 0.
func (r *SQLRepository) DeleteExclusionRule(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE exclusion_rules
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
