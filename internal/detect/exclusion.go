package detect

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

// ExclusionEngine evaluates operator-configured CEL rules against account
// stats, extending the built-in merchant/payroll classifiers. Rules are
// pre-compiled at load time; evaluation is per account per analysis.
type ExclusionEngine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled []*compiledExclusion
}

type compiledExclusion struct {
	rule    *domain.ExclusionRule
	program cel.Program
}

// NewExclusionEngine creates the engine with the account-stats environment.
func NewExclusionEngine() (*ExclusionEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("account", cel.StringType),
		cel.Variable("in_degree", cel.IntType),
		cel.Variable("out_degree", cel.IntType),
		cel.Variable("tx_count", cel.IntType),
		cel.Variable("total_in", cel.DoubleType),
		cel.Variable("total_out", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &ExclusionEngine{env: env}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *ExclusionEngine) ValidateRule(rule *domain.ExclusionRule) error {
	if rule == nil {
		return fmt.Errorf("exclusion rule is required")
	}
	_, err := e.compile(rule)
	return err
}

// LoadRules compiles and replaces the loaded rule set. Disabled rules are
// skipped.
func (e *ExclusionEngine) LoadRules(rules []*domain.ExclusionRule) error {
	compiled := make([]*compiledExclusion, 0, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		c, err := e.compile(rule)
		if err != nil {
			return err
		}
		compiled = append(compiled, c)
	}

	e.mu.Lock()
	e.compiled = compiled
	e.mu.Unlock()

	return nil
}

// RulesCount returns the number of loaded rules.
func (e *ExclusionEngine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Apply evaluates every loaded rule against every account and merges the
// matches into excluded. Built-in classifications take precedence: an
// account already excluded keeps its original label.
func (e *ExclusionEngine) Apply(v *graph.View, excluded Exclusions) {
	e.mu.RLock()
	rules := e.compiled
	e.mu.RUnlock()

	if len(rules) == 0 {
		return
	}

	for _, account := range v.Accounts {
		if _, done := excluded[account]; done {
			continue
		}

		stats := v.Stats[account]
		activation := map[string]any{
			"account":    account,
			"in_degree":  int64(stats.InDegree),
			"out_degree": int64(stats.OutDegree),
			"tx_count":   int64(stats.TxCount),
			"total_in":   stats.TotalIn,
			"total_out":  stats.TotalOut,
		}

		for _, rule := range rules {
			out, _, err := rule.program.Eval(activation)
			if err != nil {
				slog.Warn("exclusion rule evaluation failed",
					"rule_id", rule.rule.ID,
					"account", account,
					"error", err,
				)
				continue
			}
			if out == types.True {
				label := rule.rule.Label
				if label == "" {
					label = "custom"
				}
				excluded[account] = label
				break
			}
		}
	}
}

func (e *ExclusionEngine) compile(rule *domain.ExclusionRule) (*compiledExclusion, error) {
	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile exclusion rule %s: %w", rule.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("exclusion rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for exclusion rule %s: %w", rule.ID, err)
	}

	return &compiledExclusion{rule: rule, program: program}, nil
}
