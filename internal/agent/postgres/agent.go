// Package postgres implements the PostgreSQL question-answering agent
// (spec §4.4): schema introspection, NL→SQL generation, a hard-reject
// safety gate, bounded execution, and rendering.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/siamtech/agent-gateway/internal/agentapi"
	"github.com/siamtech/agent-gateway/internal/apperr"
	"github.com/siamtech/agent-gateway/internal/llm"
	"github.com/siamtech/agent-gateway/internal/metrics"
	"github.com/siamtech/agent-gateway/internal/models"
	"github.com/siamtech/agent-gateway/internal/registry"
)

const schemaBudgetBytes = 4096

// Agent is the postgres question-answerer the dispatcher selects for
// structured-data intents.
type Agent struct {
	registry    *registry.Registry
	schemaCache *SchemaCache
	provider    llm.Provider
	maxRows     int
}

func NewAgent(reg *registry.Registry, schemaCache *SchemaCache, provider llm.Provider) *Agent {
	return &Agent{registry: reg, schemaCache: schemaCache, provider: provider, maxRows: defaultMaxRows}
}

func (a *Agent) Name() models.AgentType { return models.AgentPostgres }

// Answer runs the full pipeline of spec §4.4. Two consecutive safety-gate
// rejections make the failure fatal (no further fallback); anything else
// is classified per the §4.4 "Failure semantics" table.
func (a *Agent) Answer(ctx context.Context, req agentapi.Request) (agentapi.Result, error) {
	rt, ok := a.registry.Lookup(req.TenantID)
	if !ok {
		return agentapi.Result{}, apperr.TenantUnknown(req.TenantID)
	}
	if !rt.Config.Settings.EnablePostgresAgent {
		return agentapi.Result{}, apperr.AgentDisabled("postgres")
	}

	pool, err := a.registry.PoolFor(ctx, rt)
	if err != nil {
		return agentapi.Result{}, err
	}

	snapshot, err := a.schemaCache.Get(ctx, req.TenantID, pool)
	if err != nil {
		return agentapi.Result{}, apperr.New(apperr.CodeDBUnavailable, 502, true, "schema introspection failed", err)
	}

	summary := snapshot.Summary(req.Question, schemaBudgetBytes)
	gate := NewSafetyGate(snapshot)

	gq, err := a.generateSafeQuery(ctx, req, summary, gate)
	if err != nil {
		return agentapi.Result{}, err
	}

	result, err := a.executeWithBudget(ctx, pool, gq, a.maxRows)
	if err != nil {
		return agentapi.Result{}, err
	}

	tablesUsed := referencedTables(gq.SQL, snapshot)

	if len(result.Rows) == 0 {
		if misunderstandingHint(ctx, pool, req.Question, snapshot, tablesUsed) {
			metrics.SQLExecutedTotal.WithLabelValues(req.TenantID, "clarify").Inc()
			return agentapi.Result{
				Answer:      clarifyingQuestion(req.Question, req.ResponseLanguage),
				Agent:       models.AgentPostgres,
				SQLExecuted: true,
				TablesUsed:  tablesUsed,
			}, nil
		}

		metrics.SQLExecutedTotal.WithLabelValues(req.TenantID, "empty").Inc()
		return agentapi.Result{
			Answer:      renderEmpty(req.Question, tablesUsed, req.ResponseLanguage),
			Agent:       models.AgentPostgres,
			SQLExecuted: true,
			TablesUsed:  tablesUsed,
		}, nil
	}

	metrics.SQLExecutedTotal.WithLabelValues(req.TenantID, "success").Inc()

	answer := render(req.Question, result, tablesUsed, req.ResponseLanguage)
	return agentapi.Result{
		Answer:      answer,
		Agent:       models.AgentPostgres,
		SQLExecuted: true,
		TablesUsed:  tablesUsed,
		RowCount:    len(result.Rows),
	}, nil
}

// generateSafeQuery implements the two-strike re-prompt loop of spec §4.4
// step 6: a rejected candidate is re-prompted once with the failing
// reason; a second rejection is fatal.
func (a *Agent) generateSafeQuery(ctx context.Context, req agentapi.Request, summary string, gate *SafetyGate) (*GeneratedQuery, error) {
	rejectionReason := ""

	for attempt := 1; attempt <= 2; attempt++ {
		gq, err := generateSQL(ctx, a.provider, req.Model, req.TenantID, summary, req.Question, req.ResponseLanguage, rejectionReason)
		if err != nil {
			return nil, err
		}

		if err := gate.Check(gq.SQL); err != nil {
			metrics.SQLRejectedTotal.WithLabelValues(req.TenantID, err.Error()).Inc()
			if attempt == 2 {
				return nil, apperr.SQLRejectedFatal(err.Error())
			}
			rejectionReason = err.Error()
			continue
		}

		return gq, nil
	}

	return nil, apperr.SQLRejectedFatal("exhausted re-prompt attempts")
}

// executeWithBudget runs the query once, and on a statement-timeout
// retries once with a reduced row budget before surfacing
// QueryTooExpensive (spec §4.4 "Failure semantics").
func (a *Agent) executeWithBudget(ctx context.Context, pool *pgxpool.Pool, gq *GeneratedQuery, maxRows int) (*QueryResult, error) {
	result, err := execute(ctx, pool, gq, maxRows)
	if err == nil {
		return result, nil
	}

	ae, ok := apperr.As(err)
	if !ok || ae.Code != apperr.CodeTimeout {
		return nil, err
	}

	reduced := maxRows / 5
	if reduced < 1 {
		reduced = 1
	}
	result, err = execute(ctx, pool, gq, reduced)
	if err != nil {
		if ae, ok := apperr.As(err); ok && ae.Code == apperr.CodeTimeout {
			return nil, apperr.QueryTooExpensive()
		}
		return nil, err
	}
	return result, nil
}

func clarifyingQuestion(question, lang string) string {
	if lang == "th" {
		return fmt.Sprintf("ไม่พบข้อมูลที่ตรงกับคำถาม \"%s\" ช่วยระบุช่วงเวลาหรือเงื่อนไขเพิ่มเติมได้ไหมคะ", question)
	}
	return fmt.Sprintf("I couldn't find any rows matching \"%s\". Could you narrow the date range or the filter you mean?", question)
}

// referencedTables returns the qualified names from snapshot that appear
// as whole-word substrings of sql, for the rendering footer and access log.
func referencedTables(sql string, snapshot *SchemaSnapshot) []string {
	lower := strings.ToLower(sql)
	var used []string
	for _, t := range snapshot.Tables {
		word := regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ToLower(t.Name)) + `\b`)
		if word.MatchString(lower) {
			used = append(used, t.QualifiedName())
		}
	}
	return used
}
