package repository

// Schema definitions for Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaBatches = `
CREATE TABLE IF NOT EXISTS batches (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    transfers TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_batches_tenant ON batches(tenant_id);
`

const schemaAnalyses = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    batch_id TEXT NOT NULL,
    accounts_analyzed INTEGER NOT NULL,
    accounts_flagged INTEGER NOT NULL,
    rings_detected INTEGER NOT NULL,
    processing_ms INTEGER NOT NULL,
    result TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_tenant ON analyses(tenant_id);
CREATE INDEX IF NOT EXISTS idx_analyses_batch ON analyses(tenant_id, batch_id);
CREATE INDEX IF NOT EXISTS idx_analyses_timestamp ON analyses(tenant_id, timestamp);
`

const schemaFraudRings = `
CREATE TABLE IF NOT EXISTS fraud_rings (
    ring_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    analysis_id TEXT NOT NULL,
    pattern_type TEXT NOT NULL,
    risk_score REAL NOT NULL,
    members TEXT NOT NULL,
    PRIMARY KEY (ring_id, tenant_id, analysis_id)
);

CREATE INDEX IF NOT EXISTS idx_fraud_rings_analysis ON fraud_rings(tenant_id, analysis_id);
`

const schemaExclusionRules = `
CREATE TABLE IF NOT EXISTS exclusion_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    label TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_exclusion_rules_tenant ON exclusion_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_exclusion_rules_enabled ON exclusion_rules(tenant_id, enabled);
`

// AllSchemas returns every schema statement in creation order.
func AllSchemas() []string {
	return []string{
		schemaBatches,
		schemaAnalyses,
		schemaFraudRings,
		schemaExclusionRules,
	}
}
