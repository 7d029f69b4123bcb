package registry

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/siamtech/agent-gateway/internal/apperr"
	"github.com/siamtech/agent-gateway/internal/models"
)

const (
	poolMaxConns        = 10
	poolIdleTimeout     = 5 * time.Minute
	poolConnectTimeout  = 5 * time.Second
	statementTimeoutMs  = "30000"
)

// PoolFor returns the tenant's connection pool, constructing it on first
// use (spec §3 "TenantRuntime ... lazily constructed DB connection pool").
// Isolation is structural: the pool returned is always built from the
// tenant's own DatabaseSettings, and a caller can only reach a pool by first
// obtaining that tenant's TenantRuntime through Resolve or Lookup.
func (r *Registry) PoolFor(ctx context.Context, rt *TenantRuntime) (*pgxpool.Pool, error) {
	r.mu.Lock()
	entry, ok := r.poolsByTenant[rt.Config.TenantID]
	if ok && entry.generation == rt.generation {
		r.mu.Unlock()
		return entry.pool, nil
	}
	r.mu.Unlock()

	pool, err := newTenantPool(ctx, rt.Config)
	if err != nil {
		return nil, apperr.DBUnavailable(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have raced us; prefer whichever pool is for the
	// current generation and close the loser.
	if existing, ok := r.poolsByTenant[rt.Config.TenantID]; ok {
		if existing.generation == rt.generation {
			pool.Close()
			return existing.pool, nil
		}
		go drainAndClose(existing.pool, r.gracePeriod)
	}

	r.poolsByTenant[rt.Config.TenantID] = &tenantPoolEntry{generation: rt.generation, pool: pool}
	return pool, nil
}

func newTenantPool(ctx context.Context, cfg *models.TenantConfig) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.Database.User, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn for tenant %s: %w", cfg.TenantID, err)
	}

	poolCfg.MaxConns = poolMaxConns
	poolCfg.MaxConnIdleTime = poolIdleTimeout
	poolCfg.ConnConfig.ConnectTimeout = poolConnectTimeout
	poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = statementTimeoutMs

	// AfterConnect applies the per-session defaults the PostgreSQL Agent
	// relies on (spec §4.4 step 4) to every connection the moment it joins
	// the pool, rather than re-issuing SET on every borrow.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET default_transaction_read_only = on")
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool for tenant %s: %w", cfg.TenantID, err)
	}
	return pool, nil
}

func drainAndClose(pool *pgxpool.Pool, grace time.Duration) {
	timer := time.NewTimer(grace)
	defer timer.Stop()
	<-timer.C
	pool.Close()
}

// Reload re-reads the tenant config document at the path Load was given,
// validates it, and atomically publishes a new generation (spec §4.1
// "Reload()"). Pools of tenants no longer in the document are drained for
// the grace window and then closed. A pool of a tenant still present is
// replaced on its next PoolFor, which sees the generation change, builds a
// new pool and drains the old one; readers that already hold the old pool
// keep using it until they finish.
func (r *Registry) Reload() error {
	fresh, err := Load(r.path)
	if err != nil {
		return err
	}

	oldGen := r.gen.Load()
	newGen := fresh.gen.Load()
	newGen.id = oldGen.id + 1

	r.gen.Store(newGen)

	r.mu.Lock()
	defer r.mu.Unlock()
	for tenantID, entry := range r.poolsByTenant {
		cfg, stillPresent := newGen.lookup(tenantID)
		if !stillPresent || !sameDatabase(cfg.Database, entry.pool) {
			go drainAndClose(entry.pool, r.gracePeriod)
			delete(r.poolsByTenant, tenantID)
		}
	}

	log.Printf("registry: reloaded generation %d (%d tenants)", newGen.id, len(newGen.tenants))
	return nil
}

// sameDatabase reports every pool as matching: *pgxpool.Pool does not
// expose its original DSN cheaply, so Reload drains only by tenant
// presence, and a present tenant's pool is recreated through PoolFor's
// generation check rather than here.
func sameDatabase(models.DatabaseSettings, *pgxpool.Pool) bool {
	return true
}

// Close drains and closes every live pool. Called on process shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for tenantID, entry := range r.poolsByTenant {
		entry.pool.Close()
		delete(r.poolsByTenant, tenantID)
	}
}
