package main

import (
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/siamtech/agent-gateway/internal/admin"
	"github.com/siamtech/agent-gateway/internal/agent/fallback"
	"github.com/siamtech/agent-gateway/internal/agent/knowledgebase"
	"github.com/siamtech/agent-gateway/internal/agent/postgres"
	"github.com/siamtech/agent-gateway/internal/auth"
	"github.com/siamtech/agent-gateway/internal/cache"
	"github.com/siamtech/agent-gateway/internal/chatapi"
	"github.com/siamtech/agent-gateway/internal/config"
	"github.com/siamtech/agent-gateway/internal/db"
	"github.com/siamtech/agent-gateway/internal/dispatcher"
	"github.com/siamtech/agent-gateway/internal/llm"
	"github.com/siamtech/agent-gateway/internal/ratelimit"
	"github.com/siamtech/agent-gateway/internal/registry"
)

// Exit codes follow spec §6.2: clean shutdown, bad configuration (process
// settings or the tenant registry document), the control-plane database
// unreachable at start under strict mode, and any other required
// dependency that could not be reached.
const (
	exitOK             = 0
	exitBadConfig      = 64
	exitDBUnreachable  = 65
	exitDependencyDown = 69
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Println("failed to load config:", err)
		os.Exit(exitBadConfig)
	}

	reg, err := registry.Load(cfg.TenantConfigPath)
	if err != nil {
		log.Println("failed to load tenant registry:", err)
		os.Exit(exitBadConfig)
	}
	defer reg.Close()

	var controlPlaneDB *db.DB
	if cfg.ControlPlaneDatabaseURL != "" {
		controlPlaneDB, err = db.NewDB(cfg.ControlPlaneDatabaseURL)
		if err != nil {
			log.Println("failed to connect to control-plane database:", err)
			if cfg.StrictMode {
				os.Exit(exitDBUnreachable)
			}
		} else {
			defer controlPlaneDB.Close()
		}
	}

	limiter, err := ratelimit.NewRateLimiter(cfg.RedisURL)
	if err != nil {
		log.Println("failed to initialize rate limiter:", err)
		os.Exit(exitDependencyDown)
	}
	defer limiter.Close()

	routeCache, err := cache.NewRouteCache(cfg.RedisURL, 10*time.Minute)
	if err != nil {
		log.Println("failed to initialize route cache:", err)
		os.Exit(exitDependencyDown)
	}

	provider := llm.NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMAPIKey)
	schemaCache := postgres.NewSchemaCache()

	postgresAgent := postgres.NewAgent(reg, schemaCache, provider)
	kbAgent := knowledgebase.NewAgent(reg, knowledgebase.NewClient(cfg.KnowledgeBaseURL), provider)
	fallbackAgent := fallback.NewAgent(provider)

	dsp := dispatcher.New(reg, routeCache, provider, postgresAgent, kbAgent, fallbackAgent)

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/auth/token", operatorTokenHandler(cfg.OperatorToken, cfg.JWTSecret)).Methods("POST")

	chatHandler := chatapi.NewHandler(reg, dsp, limiter, controlPlaneDB)
	chatHandler.RegisterRoutes(router)

	authMiddleware := auth.NewMiddleware(cfg.JWTSecret)

	protected := mux.NewRouter()
	adminHandler := admin.NewHandler(reg, controlPlaneDB, schemaCache, routeCache)
	adminHandler.RegisterRoutes(protected)
	chatHandler.RegisterAdminRoutes(protected)

	router.PathPrefix("/admin").Handler(authMiddleware.Authenticate(protected))
	router.PathPrefix("/tenants").Handler(authMiddleware.Authenticate(protected))

	log.Printf("agent-gateway listening on :%s", cfg.ServerPort)
	if err := http.ListenAndServe(":"+cfg.ServerPort, router); err != nil {
		log.Println("server failed:", err)
		os.Exit(exitDependencyDown)
	}

	os.Exit(exitOK)
}

// operatorTokenHandler exchanges the process's single shared operator
// secret for a signed admin-surface JWT, generalizing the teacher's
// per-tenant tokenHandler (which looked a tenant up by API key in the
// control-plane database) to this gateway's operator-only admin surface,
// which has no per-account store to look up.
func operatorTokenHandler(operatorToken, jwtSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		if operatorToken == "" || subtle.ConstantTimeCompare([]byte(req.Token), []byte(operatorToken)) != 1 {
			http.Error(w, "invalid operator token", http.StatusUnauthorized)
			return
		}

		signed, err := auth.GenerateToken("operator", jwtSecret)
		if err != nil {
			http.Error(w, "failed to generate token", http.StatusInternalServerError)
			return
		}

		json.NewEncoder(w).Encode(map[string]string{"token": signed})
	}
}
