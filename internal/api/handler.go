package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/detect"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/engine"
	"github.com/opensource-finance/kestrel/internal/ingest"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// analysisCacheTTL bounds how long a completed analysis is served from
// cache before falling back to the repository.
const analysisCacheTTL = 10 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	repo         domain.Repository
	cache        domain.Cache
	bus          domain.EventBus
	analyzer     *engine.Analyzer
	exclusions   *detect.ExclusionEngine
	version      string
	maxBatchSize int
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, analyzer *engine.Analyzer, exclusions *detect.ExclusionEngine, version string, maxBatchSize int) *Handler {
	return &Handler{
		repo:         repo,
		cache:        cache,
		bus:          bus,
		analyzer:     analyzer,
		exclusions:   exclusions,
		version:      version,
		maxBatchSize: maxBatchSize,
	}
}

// SubmitBatch handles POST /analyses requests. The batch is validated,
// analyzed synchronously, persisted, and the full result returned.
func (h *Handler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Transfers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one transfer is required",
		})
		return
	}
	if h.maxBatchSize > 0 && len(req.Transfers) > h.maxBatchSize {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
			"error": fmt.Sprintf("batch exceeds maximum size of %d transfers", h.maxBatchSize),
		})
		return
	}

	transfers, err := ingest.Validate(req.Transfers)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	batch := &domain.TransferBatch{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Transfers: transfers,
		CreatedAt: time.Now().UTC(),
	}

	if h.repo != nil {
		if err := h.repo.SaveBatch(ctx, tenantID, batch); err != nil {
			slog.Error("failed to save batch", "batch_id", batch.ID, "error", err)
		}
	}

	h.publish(ctx, tenantID, domain.TopicBatchSubmitted, map[string]any{
		"batchId":   batch.ID,
		"transfers": len(batch.Transfers),
	})

	result, err := h.analyzer.Analyze(ctx, batch)
	if err != nil {
		slog.Error("batch analysis failed", "batch_id", batch.ID, "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": "analysis failed: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveAnalysis(ctx, tenantID, result); err != nil {
			slog.Error("failed to save analysis", "analysis_id", result.ID, "error", err)
		}
	}
	h.cacheAnalysis(ctx, tenantID, result)

	h.publish(ctx, tenantID, domain.TopicAnalysisCompleted, map[string]any{
		"analysisId": result.ID,
		"batchId":    batch.ID,
		"rings":      result.Summary.FraudRingsDetected,
		"flagged":    result.Summary.SuspiciousAccountsFlagged,
	})
	for _, ring := range result.FraudRings {
		h.publish(ctx, tenantID, domain.TopicRingDetected, map[string]any{
			"analysisId": result.ID,
			"ringId":     ring.RingID,
			"pattern":    ring.PatternType,
			"riskScore":  ring.RiskScore,
			"members":    ring.MemberAccounts,
		})
	}

	slog.Info("batch analyzed",
		"batch_id", batch.ID,
		"analysis_id", result.ID,
		"tenant_id", tenantID,
		"total_ms", time.Since(start).Milliseconds(),
	)

	writeJSON(w, http.StatusOK, result)
}

// GetAnalysis retrieves an analysis by ID, serving from cache when warm.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	analysisID := chi.URLParam(r, "id")

	if analysisID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "analysis id is required",
		})
		return
	}

	if h.cache != nil {
		if data, err := h.cache.Get(ctx, tenantID, "analysis:"+analysisID); err == nil && data != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data)
			return
		}
	}

	result, err := h.loadAnalysis(ctx, tenantID, analysisID)
	if err != nil {
		h.writeRepoError(w, "analysis", analysisID, err)
		return
	}

	h.cacheAnalysis(ctx, tenantID, result)
	writeJSON(w, http.StatusOK, result)
}

// ListAnalyses returns analyses for the tenant, newest first. An optional
// ?since=RFC3339 parameter filters out older results.
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "since must be an RFC3339 timestamp",
			})
			return
		}
		since = parsed
	}

	analyses, err := h.repo.ListAnalyses(ctx, tenantID, since)
	if err != nil {
		slog.Error("failed to list analyses", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list analyses",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"analyses": analyses,
		"count":    len(analyses),
	})
}

// ListRings returns the fraud rings of one analysis.
func (h *Handler) ListRings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	analysisID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	rings, err := h.repo.ListRings(ctx, tenantID, analysisID)
	if err != nil {
		h.writeRepoError(w, "analysis", analysisID, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rings": rings,
		"count": len(rings),
	})
}

// GetReport renders the suspicious accounts of an analysis as CSV for
// case-management ingestion.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	analysisID := chi.URLParam(r, "id")

	result, err := h.loadAnalysis(ctx, tenantID, analysisID)
	if err != nil {
		h.writeRepoError(w, "analysis", analysisID, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="analysis-%s.csv"`, analysisID))
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"account_id", "suspicion_score", "ring_id", "detected_patterns"})
	for _, acct := range result.SuspiciousAccounts {
		_ = cw.Write([]string{
			acct.AccountID,
			fmt.Sprintf("%.1f", acct.SuspicionScore),
			acct.RingID,
			strings.Join(acct.DetectedPatterns, "|"),
		})
	}
	cw.Flush()
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListExclusionRules returns the tenant's exclusion rules.
func (h *Handler) ListExclusionRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	rules, err := h.repo.ListExclusionRules(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list exclusion rules", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list exclusion rules",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// GetExclusionRule retrieves an exclusion rule by ID.
func (h *Handler) GetExclusionRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	rule, err := h.repo.GetExclusionRule(ctx, tenantID, ruleID)
	if err != nil {
		h.writeRepoError(w, "exclusion rule", ruleID, err)
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// CreateExclusionRuleRequest is the request body for creating an
// exclusion rule.
type CreateExclusionRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Label       string `json:"label,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// CreateExclusionRule validates and persists an exclusion rule.
// After saving, call POST /exclusions/reload to hot-reload into the engine.
func (h *Handler) CreateExclusionRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateExclusionRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	rule := &domain.ExclusionRule{
		ID:          req.ID,
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Label:       req.Label,
		Enabled:     req.Enabled,
	}

	if h.exclusions != nil {
		if err := h.exclusions.ValidateRule(rule); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid CEL expression: " + err.Error(),
			})
			return
		}
	}

	if h.repo != nil {
		if err := h.repo.SaveExclusionRule(ctx, tenantID, rule); err != nil {
			slog.Error("failed to save exclusion rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save exclusion rule",
			})
			return
		}
	}

	slog.Info("exclusion rule created", "id", rule.ID, "name", rule.Name, "tenant_id", tenantID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Exclusion rule created. Call POST /exclusions/reload to apply changes.",
	})
}

// DeleteExclusionRule soft-deletes an exclusion rule and reloads the engine.
func (h *Handler) DeleteExclusionRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteExclusionRule(ctx, tenantID, ruleID); err != nil {
		h.writeRepoError(w, "exclusion rule", ruleID, err)
		return
	}

	if h.exclusions != nil {
		if rules, err := h.repo.ListExclusionRules(ctx, tenantID); err != nil {
			slog.Error("failed to reload exclusion rules after delete", "error", err)
		} else if err := h.exclusions.LoadRules(rules); err != nil {
			slog.Error("failed to reload exclusion rules after delete", "error", err)
		}
	}

	slog.Info("exclusion rule deleted", "id", ruleID, "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Exclusion rule deleted and engine reloaded.",
	})
}

// ReloadExclusionRules reloads all exclusion rules from the database into
// the engine. This enables hot-reloading without server restart.
func (h *Handler) ReloadExclusionRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if h.exclusions == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "exclusion engine not available",
		})
		return
	}

	rules, err := h.repo.ListExclusionRules(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list exclusion rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load exclusion rules from database",
		})
		return
	}

	if err := h.exclusions.LoadRules(rules); err != nil {
		slog.Error("failed to reload exclusion rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload exclusion rules: " + err.Error(),
		})
		return
	}

	slog.Info("exclusion rules reloaded from database", "count", h.exclusions.RulesCount())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "exclusion rules reloaded successfully",
		"count":   h.exclusions.RulesCount(),
	})
}

func (h *Handler) loadAnalysis(ctx context.Context, tenantID, analysisID string) (*domain.AnalysisResult, error) {
	if analysisID == "" {
		return nil, repository.ErrInvalidInput
	}
	if h.repo == nil {
		return nil, fmt.Errorf("repository not available")
	}
	return h.repo.GetAnalysis(ctx, tenantID, analysisID)
}

func (h *Handler) cacheAnalysis(ctx context.Context, tenantID string, result *domain.AnalysisResult) {
	if h.cache == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := h.cache.Set(ctx, tenantID, "analysis:"+result.ID, data, analysisCacheTTL); err != nil {
		slog.Warn("failed to cache analysis", "analysis_id", result.ID, "error", err)
	}
}

func (h *Handler) publish(ctx context.Context, tenantID, topic string, payload any) {
	if h.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := h.bus.Publish(ctx, tenantID, topic, data); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

func (h *Handler) writeRepoError(w http.ResponseWriter, kind, id string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": kind + " not found",
		})
	case errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": kind + " id is required",
		})
	default:
		slog.Error("repository error", "kind", kind, "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
