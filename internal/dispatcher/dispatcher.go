// Package dispatcher implements the agent dispatcher (spec §4.3): intent
// classification, agent selection, execution under a shared deadline, and
// the fallback chain postgres → knowledge_base → fallback.
package dispatcher

import (
	"context"
	"strings"
	"time"

	"github.com/siamtech/agent-gateway/internal/agentapi"
	"github.com/siamtech/agent-gateway/internal/apperr"
	"github.com/siamtech/agent-gateway/internal/cache"
	"github.com/siamtech/agent-gateway/internal/llm"
	"github.com/siamtech/agent-gateway/internal/metrics"
	"github.com/siamtech/agent-gateway/internal/models"
	"github.com/siamtech/agent-gateway/internal/registry"
)

// State is one node of the per-execution state machine of spec §4.3:
// Classifying → Selecting → Running → Rendering → Done, with a Retrying
// loop back to Selecting.
type State string

const (
	StateClassifying State = "classifying"
	StateSelecting   State = "selecting"
	StateRunning     State = "running"
	StateRendering   State = "rendering"
	StateRetrying    State = "retrying"
	StateDone        State = "done"
)

// StateTransition is one recorded step of an AgentExecution's history, for
// observability (spec §3 "AgentExecution").
type StateTransition struct {
	State State
	Agent models.AgentType
	At    time.Time
}

// Execution is spec §3's AgentExecution: one dispatch and the fallback
// attempts it made.
type Execution struct {
	TenantID  string
	Question  string
	Attempts  int
	History   []StateTransition
	LastAgent models.AgentType
}

func (e *Execution) record(state State, agent models.AgentType) {
	e.History = append(e.History, StateTransition{State: state, Agent: agent, At: time.Now()})
}

// routingClassifier is implemented by llm.Provider; kept as a narrow
// interface so the dispatcher's tie-break step is easy to fake in tests.
type routingClassifier interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResult, error)
}

// Dispatcher selects and runs one of the three agents per spec §4.3.
type Dispatcher struct {
	registry   *registry.Registry
	routeCache *cache.RouteCache
	classifier routingClassifier

	postgres      agentapi.Agent
	knowledgeBase agentapi.Agent
	fallback      agentapi.Agent
}

func New(reg *registry.Registry, routeCache *cache.RouteCache, classifier routingClassifier, postgres, knowledgeBase, fallback agentapi.Agent) *Dispatcher {
	return &Dispatcher{
		registry:      reg,
		routeCache:    routeCache,
		classifier:    classifier,
		postgres:      postgres,
		knowledgeBase: knowledgeBase,
		fallback:      fallback,
	}
}

// candidateOrder is the fixed fallback chain of spec §4.3.
var candidateOrder = []models.AgentType{models.AgentPostgres, models.AgentKnowledgeBase, models.AgentFallback}

// Dispatch runs the full Classifying → Selecting → Running → Rendering →
// Done state machine for one question, retrying through the fallback
// chain on recoverable failures up to the global policy's retry_count, all
// under one deadline of the policy's timeout_seconds.
func (d *Dispatcher) Dispatch(ctx context.Context, req agentapi.Request, explicitAgent models.AgentType) (agentapi.Result, error) {
	if timeout := d.registry.Policy().TimeoutSeconds; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
		defer cancel()
	}

	exec := &Execution{TenantID: req.TenantID, Question: req.Question}
	exec.record(StateClassifying, "")

	rt, ok := d.registry.Lookup(req.TenantID)
	if !ok {
		return agentapi.Result{}, apperr.TenantUnknown(req.TenantID)
	}

	order := d.candidatesFor(ctx, req, rt, explicitAgent)
	policy := d.registry.Policy()

	var lastErr error
	for _, agentType := range order {
		if exec.Attempts >= policy.RetryCount {
			break
		}
		exec.Attempts++
		exec.record(StateSelecting, agentType)

		if !agentEnabled(rt.Config, agentType) {
			lastErr = apperr.AgentDisabled(string(agentType))
			continue
		}

		exec.record(StateRunning, agentType)
		result, err := d.run(ctx, agentType, req)
		if err == nil {
			exec.record(StateRendering, agentType)
			exec.record(StateDone, agentType)
			return result, nil
		}

		lastErr = err
		if !apperr.IsRecoverable(err) {
			exec.record(StateDone, agentType)
			return agentapi.Result{}, err
		}

		metrics.DispatcherRetriesTotal.WithLabelValues(req.TenantID, string(agentType)).Inc()
		exec.record(StateRetrying, agentType)
	}

	exec.record(StateDone, "")
	if lastErr == nil {
		lastErr = apperr.New(apperr.CodeAgentDisabled, 503, false, "no agent was available for this tenant", nil)
	}
	return agentapi.Result{}, lastErr
}

func (d *Dispatcher) run(ctx context.Context, agentType models.AgentType, req agentapi.Request) (agentapi.Result, error) {
	switch agentType {
	case models.AgentPostgres:
		return d.postgres.Answer(ctx, req)
	case models.AgentKnowledgeBase:
		return d.knowledgeBase.Answer(ctx, req)
	default:
		return d.fallback.Answer(ctx, req)
	}
}

func agentEnabled(cfg *models.TenantConfig, agentType models.AgentType) bool {
	switch agentType {
	case models.AgentPostgres:
		return cfg.Settings.EnablePostgresAgent
	case models.AgentKnowledgeBase:
		return cfg.Settings.EnableKnowledgeBase
	default:
		return true // fallback is the agent of last resort and is never gated by tenant settings
	}
}

// candidatesFor returns the ordered agent list to try. An explicit
// agent_type in the request bypasses classification entirely (spec §4.3
// "If agent_type is explicitly set ... classification is bypassed").
func (d *Dispatcher) candidatesFor(ctx context.Context, req agentapi.Request, rt *registry.TenantRuntime, explicitAgent models.AgentType) []models.AgentType {
	if explicitAgent != "" && explicitAgent != models.AgentAuto {
		return reorderFrom(explicitAgent)
	}

	intent, ambiguous := classify(req.Question)
	if !ambiguous {
		return reorderFrom(agentForIntent(intent))
	}

	if decision, ok := d.routeCache.Get(ctx, req.TenantID, normalizeQuestion(req.Question)); ok {
		return reorderFrom(decision.Agent)
	}

	agentType := d.classifyWithLLM(ctx, req, rt)
	d.routeCache.Put(ctx, req.TenantID, normalizeQuestion(req.Question), cache.RouteDecision{Agent: agentType, Confidence: 0.5})
	return reorderFrom(agentType)
}

// classifyWithLLM asks the provider a terse routing question once, for
// genuinely ambiguous intents (spec §4.3). Any failure degrades to the
// tenant's configured default_agent_type rather than erroring the whole
// dispatch.
func (d *Dispatcher) classifyWithLLM(ctx context.Context, req agentapi.Request, rt *registry.TenantRuntime) models.AgentType {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	prompt := "Classify this question as exactly one word, either \"structured\" (needs a database lookup: counts, sums, rows, dates, names) or \"document\" (needs written policy/knowledge-base text). Question: " + req.Question

	result, err := d.classifier.Complete(ctx, llm.CompletionRequest{
		Model:       req.Model,
		Messages:    []models.ChatMessage{{Role: "user", Content: prompt}},
		Temperature: 0,
		MaxTokens:   8,
		TenantID:    req.TenantID,
	})
	if err != nil {
		return defaultAgentType(rt.Config)
	}

	answer := strings.ToLower(strings.TrimSpace(result.Content))
	switch {
	case strings.Contains(answer, "structured"):
		return models.AgentPostgres
	case strings.Contains(answer, "document"):
		return models.AgentKnowledgeBase
	default:
		return defaultAgentType(rt.Config)
	}
}

func defaultAgentType(cfg *models.TenantConfig) models.AgentType {
	if cfg.Settings.DefaultAgentType != "" {
		return models.AgentType(cfg.Settings.DefaultAgentType)
	}
	return models.AgentFallback
}

func agentForIntent(i intent) models.AgentType {
	switch i {
	case intentStructured:
		return models.AgentPostgres
	case intentUnstructured:
		return models.AgentKnowledgeBase
	default:
		return models.AgentFallback
	}
}

// reorderFrom puts preferred first, then the rest of candidateOrder in
// their fixed relative order (e.g. knowledge_base gives knowledge_base →
// postgres → fallback; fallback gives fallback → postgres →
// knowledge_base).
func reorderFrom(preferred models.AgentType) []models.AgentType {
	out := make([]models.AgentType, 0, len(candidateOrder))
	out = append(out, preferred)
	for _, a := range candidateOrder {
		if a != preferred {
			out = append(out, a)
		}
	}
	return out
}

func normalizeQuestion(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}
