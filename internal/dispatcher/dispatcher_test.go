package dispatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/siamtech/agent-gateway/internal/agentapi"
	"github.com/siamtech/agent-gateway/internal/apperr"
	"github.com/siamtech/agent-gateway/internal/cache"
	"github.com/siamtech/agent-gateway/internal/models"
	"github.com/siamtech/agent-gateway/internal/registry"
)

const testTenantYAML = `
default_tenant: acme
tenants:
  acme:
    name: Acme Corp
    language: en
    model: gpt-4o-mini
    database:
      host: localhost
      port: 5432
      database: acme
      user: acme
      password: secret
    settings:
      enable_postgres_agent: true
      enable_knowledge_base_agent: true
      enable_fallback_agent: true
      requests_per_hour: 1000
global_settings:
  retry_count: 3
  fallback_agent: fallback
`

const testTenantYAMLLowRetry = `
default_tenant: acme
tenants:
  acme:
    name: Acme Corp
    language: en
    model: gpt-4o-mini
    database:
      host: localhost
      port: 5432
      database: acme
      user: acme
      password: secret
    settings:
      enable_postgres_agent: true
      enable_knowledge_base_agent: true
      enable_fallback_agent: true
      requests_per_hour: 1000
global_settings:
  retry_count: 2
  fallback_agent: fallback
`

func newTestRegistryFromYAML(t *testing.T, doc string) *registry.Registry {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tenants.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write tenant fixture: %v", err)
	}
	reg, err := registry.Load(path)
	if err != nil {
		t.Fatalf("registry.Load: %v", err)
	}
	return reg
}

func newTestRegistry(t *testing.T) *registry.Registry {
	return newTestRegistryFromYAML(t, testTenantYAML)
}

func newTestRouteCache(t *testing.T) *cache.RouteCache {
	t.Helper()
	rc, err := cache.NewRouteCache("redis://127.0.0.1:6399/0", 0)
	if err != nil {
		t.Fatalf("cache.NewRouteCache: %v", err)
	}
	return rc
}

// fakeAgent is a scripted agentapi.Agent: each call pops the next result
// off results (repeating the last one once exhausted) and records the
// request it was given.
type fakeAgent struct {
	name    models.AgentType
	results []fakeResult
	calls   int
}

type fakeResult struct {
	result agentapi.Result
	err    error
}

func (f *fakeAgent) Name() models.AgentType { return f.name }

func (f *fakeAgent) Answer(ctx context.Context, req agentapi.Request) (agentapi.Result, error) {
	idx := f.calls
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	f.calls++
	return f.results[idx].result, f.results[idx].err
}

func newDispatcherForTest(t *testing.T, postgresAgent, kbAgent, fallbackAgent agentapi.Agent) *Dispatcher {
	t.Helper()
	reg := newTestRegistry(t)
	rc := newTestRouteCache(t)
	return New(reg, rc, nil, postgresAgent, kbAgent, fallbackAgent)
}

func TestDispatchExplicitAgentOverrideBypassesClassification(t *testing.T) {
	postgresAgent := &fakeAgent{name: models.AgentPostgres, results: []fakeResult{
		{result: agentapi.Result{Answer: "from postgres", Agent: models.AgentPostgres}},
	}}
	kbAgent := &fakeAgent{name: models.AgentKnowledgeBase}
	fallbackAgent := &fakeAgent{name: models.AgentFallback}

	d := newDispatcherForTest(t, postgresAgent, kbAgent, fallbackAgent)

	req := agentapi.Request{TenantID: "acme", Question: "explain the leave policy"}
	result, err := d.Dispatch(context.Background(), req, models.AgentPostgres)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if result.Agent != models.AgentPostgres {
		t.Errorf("Dispatch() agent = %v, want postgres", result.Agent)
	}
	if postgresAgent.calls != 1 {
		t.Errorf("postgres agent called %d times, want 1", postgresAgent.calls)
	}
	if kbAgent.calls != 0 || fallbackAgent.calls != 0 {
		t.Error("explicit override should not have touched the other agents")
	}
}

func TestDispatchDeterministicClassificationRoutesToKnowledgeBase(t *testing.T) {
	postgresAgent := &fakeAgent{name: models.AgentPostgres}
	kbAgent := &fakeAgent{name: models.AgentKnowledgeBase, results: []fakeResult{
		{result: agentapi.Result{Answer: "the policy says...", Agent: models.AgentKnowledgeBase}},
	}}
	fallbackAgent := &fakeAgent{name: models.AgentFallback}

	d := newDispatcherForTest(t, postgresAgent, kbAgent, fallbackAgent)

	req := agentapi.Request{TenantID: "acme", Question: "can you explain the leave policy?"}
	result, err := d.Dispatch(context.Background(), req, "")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if result.Agent != models.AgentKnowledgeBase {
		t.Errorf("Dispatch() agent = %v, want knowledge_base", result.Agent)
	}
	if postgresAgent.calls != 0 {
		t.Error("a clearly unstructured question should never have reached the postgres agent")
	}
}

func TestDispatchFallsBackOnRecoverableError(t *testing.T) {
	postgresAgent := &fakeAgent{name: models.AgentPostgres, results: []fakeResult{
		{err: apperr.DBUnavailable(nil)},
	}}
	kbAgent := &fakeAgent{name: models.AgentKnowledgeBase, results: []fakeResult{
		{err: apperr.KBUnavailable(nil)},
	}}
	fallbackAgent := &fakeAgent{name: models.AgentFallback, results: []fakeResult{
		{result: agentapi.Result{Answer: "generic answer", Agent: models.AgentFallback}},
	}}

	d := newDispatcherForTest(t, postgresAgent, kbAgent, fallbackAgent)

	req := agentapi.Request{TenantID: "acme", Question: "how many employees are there"}
	result, err := d.Dispatch(context.Background(), req, "")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if result.Agent != models.AgentFallback {
		t.Errorf("Dispatch() agent = %v, want fallback", result.Agent)
	}
	if postgresAgent.calls != 1 || kbAgent.calls != 1 || fallbackAgent.calls != 1 {
		t.Errorf("calls = postgres:%d kb:%d fallback:%d, want 1 each", postgresAgent.calls, kbAgent.calls, fallbackAgent.calls)
	}
}

func TestDispatchStopsImmediatelyOnFatalError(t *testing.T) {
	postgresAgent := &fakeAgent{name: models.AgentPostgres, results: []fakeResult{
		{err: apperr.SQLRejectedFatal("UPDATE statement")},
	}}
	kbAgent := &fakeAgent{name: models.AgentKnowledgeBase}
	fallbackAgent := &fakeAgent{name: models.AgentFallback}

	d := newDispatcherForTest(t, postgresAgent, kbAgent, fallbackAgent)

	req := agentapi.Request{TenantID: "acme", Question: "how many employees are there"}
	_, err := d.Dispatch(context.Background(), req, "")
	if err == nil {
		t.Fatal("Dispatch() error = nil, want the fatal error to surface")
	}
	if kbAgent.calls != 0 || fallbackAgent.calls != 0 {
		t.Error("a fatal error should stop the chain without trying the remaining agents")
	}
}

func TestDispatchRetryCountCapsTotalAttempts(t *testing.T) {
	postgresAgent := &fakeAgent{name: models.AgentPostgres, results: []fakeResult{
		{err: apperr.DBUnavailable(nil)},
	}}
	kbAgent := &fakeAgent{name: models.AgentKnowledgeBase, results: []fakeResult{
		{err: apperr.KBUnavailable(nil)},
	}}
	fallbackAgent := &fakeAgent{name: models.AgentFallback, results: []fakeResult{
		{result: agentapi.Result{Answer: "never reached", Agent: models.AgentFallback}},
	}}

	reg := newTestRegistryFromYAML(t, testTenantYAMLLowRetry)
	rc := newTestRouteCache(t)
	d := New(reg, rc, nil, postgresAgent, kbAgent, fallbackAgent)
	// global_settings.retry_count in this fixture is 2, one less than the
	// three-agent chain, so the chain must stop after knowledge_base and
	// never reach the fallback agent.

	req := agentapi.Request{TenantID: "acme", Question: "how many employees are there"}
	_, err := d.Dispatch(context.Background(), req, "")
	if err == nil {
		t.Fatal("Dispatch() error = nil, want the chain to exhaust and return the last error")
	}
	if postgresAgent.calls != 1 || kbAgent.calls != 1 {
		t.Errorf("calls = postgres:%d kb:%d, want 1 each", postgresAgent.calls, kbAgent.calls)
	}
	if fallbackAgent.calls != 0 {
		t.Errorf("fallback agent called %d times, want 0 -- retry_count should have stopped the chain first", fallbackAgent.calls)
	}
}

func TestDispatchUnknownTenantIsRejected(t *testing.T) {
	d := newDispatcherForTest(t, &fakeAgent{name: models.AgentPostgres}, &fakeAgent{name: models.AgentKnowledgeBase}, &fakeAgent{name: models.AgentFallback})

	_, err := d.Dispatch(context.Background(), agentapi.Request{TenantID: "does-not-exist", Question: "hello"}, "")
	if err == nil {
		t.Fatal("Dispatch() error = nil, want tenant_unknown")
	}
	if apperr.CodeFor(err) != apperr.CodeTenantUnknown {
		t.Errorf("Dispatch() code = %v, want %v", apperr.CodeFor(err), apperr.CodeTenantUnknown)
	}
}
