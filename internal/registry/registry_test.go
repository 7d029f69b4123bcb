package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/siamtech/agent-gateway/internal/apperr"
)

const testDocument = `
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
  globex:
    name: Globex Inc
    language: en
    model: globex-gpt-4o-mini
    database:
      host: localhost
      port: 5432
      database: globex
      user: globex
      password: secret
global_settings:
  security:
    default_tenant_on_missing: true
`

func newLoadedRegistry(t *testing.T, doc string) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tenants.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	reg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return reg, path
}

func TestResolveHeaderTakesPriority(t *testing.T) {
	reg, _ := newLoadedRegistry(t, testDocument)
	defer reg.Close()

	rt, err := reg.Resolve(ResolutionHint{HeaderTenantID: "globex", AuthHeader: "Bearer sk-acme"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rt.Config.TenantID != "globex" {
		t.Errorf("TenantID = %q, want globex", rt.Config.TenantID)
	}
}

func TestResolveAPIKeyPrefix(t *testing.T) {
	reg, _ := newLoadedRegistry(t, testDocument)
	defer reg.Close()

	rt, err := reg.Resolve(ResolutionHint{AuthHeader: "Bearer sk-acme"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rt.Config.TenantID != "acme" {
		t.Errorf("TenantID = %q, want acme", rt.Config.TenantID)
	}
}

func TestResolveModelPrefix(t *testing.T) {
	reg, _ := newLoadedRegistry(t, testDocument)
	defer reg.Close()

	rt, err := reg.Resolve(ResolutionHint{Model: "globex-gpt-4o-mini"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rt.Config.TenantID != "globex" {
		t.Errorf("TenantID = %q, want globex", rt.Config.TenantID)
	}
}

func TestResolveFallsBackToDefaultTenant(t *testing.T) {
	reg, _ := newLoadedRegistry(t, testDocument)
	defer reg.Close()

	rt, err := reg.Resolve(ResolutionHint{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rt.Config.TenantID != "acme" {
		t.Errorf("TenantID = %q, want the default tenant acme", rt.Config.TenantID)
	}
}

func TestResolveConflictingHeaderAndBodyIsRejected(t *testing.T) {
	reg, _ := newLoadedRegistry(t, testDocument)
	defer reg.Close()

	_, err := reg.Resolve(ResolutionHint{HeaderTenantID: "acme", BodyTenantID: "globex"})
	if err == nil {
		t.Fatal("Resolve() error = nil, want tenant_conflict")
	}
	if apperr.CodeFor(err) != apperr.CodeTenantConflict {
		t.Errorf("code = %v, want %v", apperr.CodeFor(err), apperr.CodeTenantConflict)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	reg, _ := newLoadedRegistry(t, testDocument)
	defer reg.Close()

	hint := ResolutionHint{AuthHeader: "Bearer sk-globex"}
	first, err := reg.Resolve(hint)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := reg.Resolve(hint)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first.Config.TenantID != second.Config.TenantID {
		t.Errorf("Resolve(hint) twice gave %q then %q, want the same tenant", first.Config.TenantID, second.Config.TenantID)
	}
}

func TestLookupUnknownTenant(t *testing.T) {
	reg, _ := newLoadedRegistry(t, testDocument)
	defer reg.Close()

	if _, ok := reg.Lookup("does-not-exist"); ok {
		t.Error("Lookup() found a tenant that was never configured")
	}
}

func TestReloadPublishesNewGenerationAndKeepsResolving(t *testing.T) {
	reg, path := newLoadedRegistry(t, testDocument)
	defer reg.Close()

	before, ok := reg.Lookup("acme")
	if !ok {
		t.Fatal("Lookup(acme) failed before reload")
	}

	updated := testDocument + "\n"
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("rewrite fixture: %v", err)
	}
	if err := reg.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	after, ok := reg.Lookup("acme")
	if !ok {
		t.Fatal("Lookup(acme) failed after reload")
	}
	if after.Config.TenantID != before.Config.TenantID {
		t.Errorf("TenantID changed across reload: %q -> %q", before.Config.TenantID, after.Config.TenantID)
	}
	if after.generation <= before.generation {
		t.Errorf("generation after reload = %d, want greater than %d", after.generation, before.generation)
	}

	ids := reg.TenantIDs()
	if len(ids) != 2 {
		t.Errorf("TenantIDs() = %v, want 2 tenants", ids)
	}
}
