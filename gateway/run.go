// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"axonflow/campaign-gateway/gateway/apikeys"
	"axonflow/campaign-gateway/gateway/assetstore"
	"axonflow/campaign-gateway/gateway/audit"
	"axonflow/campaign-gateway/gateway/budget"
	"axonflow/campaign-gateway/gateway/campaigns"
	"axonflow/campaign-gateway/gateway/mcp"
	"axonflow/campaign-gateway/gateway/ratelimit"
	"axonflow/campaign-gateway/shared/logger"
)

// Application readiness state for health checks
var appReady atomic.Bool

// Server owns the gateway's collaborators and its composed HTTP surface
type Server struct {
	cfg     *Config
	log     *logger.Logger
	handler http.Handler

	db       *sql.DB
	redis    *ratelimit.RedisBackend
	memory   *ratelimit.MemoryBackend
	window   time.Duration
	auditLog *audit.Logger
	mongo    *audit.MongoSink
	registry *mcp.Registry
}

// campaignBudgetSource feeds the budget validator from the campaign
// repository when no shared database backs both.
type campaignBudgetSource struct {
	repo campaigns.Repository
}

func (s campaignBudgetSource) ListByOrganization(ctx context.Context, orgID, excludeCampaignID string) ([]budget.Campaign, error) {
	list, err := s.repo.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	out := make([]budget.Campaign, 0, len(list))
	for _, c := range list {
		if c.ID == excludeCampaignID {
			continue
		}
		out = append(out, budget.Campaign{
			ID:        c.ID,
			Name:      c.Name,
			Budget:    c.Budget,
			StartDate: c.StartDate,
			EndDate:   c.EndDate,
		})
	}
	return out, nil
}

// NewServer assembles the gateway from cfg. Unconfigured collaborators
// degrade explicitly: no database runs the in-memory stores, no Redis
// keeps rate limiting process local, no reachable sink disables the
// audit trail, no provider disables the asset archive.
func NewServer(ctx context.Context, cfg *Config) (*Server, error) {
	logg := logger.New("gateway")
	registerMetrics()

	if err := cfg.ResolveSecrets(ctx); err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, log: logg}

	var (
		keyRepo      apikeys.Repository
		campaignRepo campaigns.Repository
		budgetRepo   budget.Repository
	)

	dsn := cfg.Database.DSN()
	if dsn != "" {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db

		keys := apikeys.NewPostgresRepository(db)
		camps := campaigns.NewPostgresRepository(db)
		if err := keys.EnsureSchema(ctx); err != nil {
			s.Close(ctx)
			return nil, fmt.Errorf("failed to prepare api_keys schema: %w", err)
		}
		if err := camps.EnsureSchema(ctx); err != nil {
			s.Close(ctx)
			return nil, fmt.Errorf("failed to prepare campaigns schema: %w", err)
		}
		keyRepo = keys
		campaignRepo = camps
		budgetRepo = budget.NewPostgresRepository(db)
		log.Printf("[Gateway] ✅ Database connected")
	} else {
		campaignRepo = campaigns.NewMockRepository()
		keyRepo = apikeys.NewMockRepository()
		budgetRepo = campaignBudgetSource{repo: campaignRepo}
		log.Printf("[Gateway] ⚠️ No database configured - using in-memory stores")
	}

	var backend ratelimit.Backend
	if cfg.Redis.Addr != "" {
		rb, err := ratelimit.NewRedisBackend(redisURL(cfg.Redis))
		if err != nil {
			log.Printf("[Gateway] ⚠️ Redis unavailable, rate limiting stays process local: %v", err)
		} else {
			s.redis = rb
			backend = rb
			log.Printf("[Gateway] ✅ Rate limiting coordinated through Redis")
		}
	}
	if backend == nil {
		s.memory = ratelimit.NewMemoryBackend()
		backend = s.memory
	}
	s.window = time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
	if s.window <= 0 {
		s.window = ratelimit.DefaultWindow
	}
	limiter := ratelimit.NewLimiter(backend, ratelimit.Config{
		GlobalLimit:  cfg.RateLimit.GlobalLimit,
		Window:       s.window,
		ActionLimits: cfg.RateLimit.ActionLimits,
	}, logg)

	var sink audit.Sink
	switch cfg.Audit.Sink {
	case "mongodb":
		ms, err := audit.NewMongoSink(ctx, cfg.Audit.MongoURI, cfg.Audit.MongoDatabase, cfg.Audit.MongoCollection)
		if err != nil {
			s.Close(ctx)
			return nil, fmt.Errorf("failed to connect audit sink: %w", err)
		}
		s.mongo = ms
		sink = ms
	case "postgres":
		if s.db != nil {
			ps := audit.NewPostgresSink(s.db)
			if err := ps.EnsureSchema(ctx); err != nil {
				s.Close(ctx)
				return nil, fmt.Errorf("failed to prepare audit_log schema: %w", err)
			}
			sink = ps
		}
	default:
		s.Close(ctx)
		return nil, fmt.Errorf("unknown audit sink: %q", cfg.Audit.Sink)
	}
	if sink != nil {
		auditLog, err := audit.NewLogger(sink, audit.Config{
			QueueSize:     cfg.Audit.QueueSize,
			BatchSize:     cfg.Audit.BatchSize,
			FlushInterval: time.Duration(cfg.Audit.FlushSeconds) * time.Second,
			FallbackPath:  cfg.Audit.FallbackPath,
		}, logg)
		if err != nil {
			s.Close(ctx)
			return nil, err
		}
		s.auditLog = auditLog
		registerAuditGauges(auditLog.Pending, auditLog.Dropped)
	} else {
		log.Printf("[Gateway] ⚠️ Audit trail disabled - no sink available")
	}

	keyService := apikeys.NewService(keyRepo, cfg.Auth.KeyPrefix, logg)
	budgetService := budget.NewService(budgetRepo, 0, logg)
	campaignService := campaigns.NewService(campaignRepo, budgetService, logg)
	s.registry = mcp.NewRegistry(cfg.Tools, logg)

	var store assetstore.Store
	if cfg.Assets.Provider != "" {
		st, err := assetstore.New(ctx, cfg.Assets)
		if err != nil {
			s.Close(ctx)
			return nil, fmt.Errorf("failed to configure asset store: %w", err)
		}
		store = st
	}

	gate := NewAuthGate(keyService, limiter, logg)
	campaignHandler := NewCampaignHandler(campaignService, logg)
	assetHandler := NewAssetHandler(s.registry, store, logg)
	keyHandler := NewKeyHandler(keyService, []byte(cfg.Auth.JWTSecret), logg)

	s.handler = s.buildRouter(gate, campaignHandler, assetHandler, keyHandler)
	return s, nil
}

// buildRouter composes the HTTP surface. Operational endpoints sit at
// the root; everything under /api runs the recovery and tracking
// middleware, with the admin plane JWT-gated and the agent plane behind
// the API key gate. Static segments register before the id patterns.
func (s *Server) buildRouter(gate *AuthGate, campaignHandler *CampaignHandler, assetHandler *AssetHandler, keyHandler *KeyHandler) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ready", handleReady).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Tracking wraps recovery so a recovered panic still lands in the
	// audit trail with its request id.
	api := router.PathPrefix("/api").Subrouter()
	api.Use(trackMiddleware(s.auditLog, s.log), recoverMiddleware(s.log))

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(keyHandler.AdminAuth)
	admin.HandleFunc("/keys", keyHandler.HandleCreate).Methods(http.MethodPost)
	admin.HandleFunc("/keys", keyHandler.HandleList).Methods(http.MethodGet)
	admin.HandleFunc("/keys/{id}", keyHandler.HandleRevoke).Methods(http.MethodDelete)

	campaignRoutes := api.PathPrefix("/campaigns").Subrouter()
	campaignRoutes.Use(gate.Middleware)
	campaignRoutes.HandleFunc("/create", campaignHandler.HandleCreate).Methods(http.MethodPost)
	campaignRoutes.HandleFunc("/list", campaignHandler.HandleList).Methods(http.MethodGet)
	campaignRoutes.HandleFunc("/{id}/update", campaignHandler.HandleUpdate).Methods(http.MethodPatch)
	campaignRoutes.HandleFunc("/{id}", campaignHandler.HandleGet).Methods(http.MethodGet)
	campaignRoutes.HandleFunc("/{id}", campaignHandler.HandleDelete).Methods(http.MethodDelete)

	assetRoutes := api.PathPrefix("/assets").Subrouter()
	assetRoutes.Use(gate.Middleware)
	assetRoutes.HandleFunc("/generate", assetHandler.HandleGenerate).Methods(http.MethodPost)
	assetRoutes.HandleFunc("/list", assetHandler.HandleList).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(router)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	status := "starting"
	if appReady.Load() {
		status = "healthy"
	}
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    status,
		"service":   "campaign-gateway",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}); err != nil {
		log.Printf("[Gateway] Error encoding health response: %v", err)
	}
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !appReady.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"ready": appReady.Load(),
	}); err != nil {
		log.Printf("[Gateway] Error encoding ready response: %v", err)
	}
}

// Handler exposes the composed HTTP surface, used by tests
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve runs until SIGINT or SIGTERM, then drains the server and the
// audit queue within the configured shutdown window.
func (s *Server) Serve() error {
	httpServer := &http.Server{
		Addr:         ":" + s.cfg.Server.Port,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	sweepDone := make(chan struct{})
	if s.memory != nil {
		go s.sweepLoop(sweepDone)
	}

	go func() {
		log.Printf("[Gateway] 🚀 Campaign gateway listening on port %s", s.cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Gateway] Server error: %v", err)
		}
	}()

	appReady.Store(true)

	<-stop
	log.Printf("[Gateway] Shutting down...")
	appReady.Store(false)
	close(sweepDone)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.Server.ShutdownSeconds)*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("[Gateway] ⚠️ Forced shutdown: %v", err)
	}
	s.Close(ctx)
	log.Printf("[Gateway] ✅ Stopped")
	return nil
}

// sweepLoop evicts idle in-memory rate limit buckets so long-lived
// processes do not accumulate state for retired keys.
func (s *Server) sweepLoop(done <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.memory.Sweep(2 * s.window)
		case <-done:
			return
		}
	}
}

// Close releases collaborators in dependency order: the audit queue
// drains before its sink closes.
func (s *Server) Close(ctx context.Context) {
	if s.auditLog != nil {
		if err := s.auditLog.Shutdown(ctx); err != nil {
			log.Printf("[Gateway] ⚠️ Audit drain incomplete: %v", err)
		}
		s.auditLog = nil
	}
	if s.mongo != nil {
		_ = s.mongo.Close(ctx)
		s.mongo = nil
	}
	if s.registry != nil {
		s.registry.Shutdown()
		s.registry = nil
	}
	if s.redis != nil {
		_ = s.redis.Close()
		s.redis = nil
	}
	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
}

func redisURL(cfg RedisConfig) string {
	if cfg.Password != "" {
		return fmt.Sprintf("redis://:%s@%s/%d", url.QueryEscape(cfg.Password), cfg.Addr, cfg.DB)
	}
	if cfg.DB != 0 {
		return fmt.Sprintf("redis://%s/%d", cfg.Addr, cfg.DB)
	}
	return "redis://" + cfg.Addr
}

// Run is the exported entry point for the gateway service
func Run() {
	cfg, err := LoadConfig(getEnv("CONFIG_PATH", ""))
	if err != nil {
		log.Fatalf("[Gateway] Failed to load configuration: %v", err)
	}

	server, err := NewServer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("[Gateway] Failed to initialize: %v", err)
	}

	if err := server.Serve(); err != nil {
		log.Fatalf("[Gateway] Server error: %v", err)
	}
}
