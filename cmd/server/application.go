package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	gormlogger "gorm.io/gorm/logger"

	"github.com/relaydesk/relaydesk/internal/configs"
	"github.com/relaydesk/relaydesk/internal/domain/agent"
	"github.com/relaydesk/relaydesk/internal/domain/conversation"
	"github.com/relaydesk/relaydesk/internal/domain/embedding"
	"github.com/relaydesk/relaydesk/internal/domain/generation"
	"github.com/relaydesk/relaydesk/internal/domain/guardrail"
	"github.com/relaydesk/relaydesk/internal/domain/retrieval"
	"github.com/relaydesk/relaydesk/internal/domain/run"
	"github.com/relaydesk/relaydesk/internal/domain/tenant"
	"github.com/relaydesk/relaydesk/internal/domain/ticket"
	"github.com/relaydesk/relaydesk/internal/infrastructure/cache"
	"github.com/relaydesk/relaydesk/internal/infrastructure/database"
	"github.com/relaydesk/relaydesk/internal/infrastructure/database/repository/agentrepo"
	infrahttp "github.com/relaydesk/relaydesk/internal/infrastructure/http"
	"github.com/relaydesk/relaydesk/internal/infrastructure/llm"
	"github.com/relaydesk/relaydesk/internal/infrastructure/search"
	"github.com/relaydesk/relaydesk/internal/interfaces/httpserver"
	"github.com/relaydesk/relaydesk/internal/interfaces/httpserver/handlers"
	"github.com/relaydesk/relaydesk/internal/telemetry"
)

const (
	migrationLockName = "agent-engine:migrations"
	migrationLockTTL  = 2 * time.Minute
)

// Application owns every process-lifetime resource: the HTTP server, both
// database handles, the embedding batcher, and the telemetry shutdown hook.
type Application struct {
	server            *http.Server
	sqlDB             *sql.DB
	pool              *pgxpool.Pool
	batcher           *embedding.Batcher
	closers           []func() error
	shutdownTelemetry func(context.Context) error
}

func newApplication(ctx context.Context, cfg *configs.Config) (*Application, error) {
	shutdownTelemetry, err := telemetry.Init(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	db, err := database.Connect(database.Config{
		DSN:             cfg.GetDatabaseWriteDSN(),
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	log.Info().Msg("Database connection established")

	// Vector and lexical search read through pgx; with a read replica
	// configured, that traffic moves off the write connection.
	pool, err := database.NewPgxPool(ctx, cfg.GetDatabaseReadDSN())
	if err != nil {
		return nil, fmt.Errorf("connect search database: %w", err)
	}

	if err := runStartupMigrations(ctx, cfg, pool); err != nil {
		return nil, err
	}
	log.Info().Msg("Database migrations applied")

	transport := infrahttp.NewEmbeddingClient(cfg.EmbeddingServiceURL, cfg.EmbeddingServiceAPIKey, cfg.EmbeddingTimeout)
	if cfg.ValidateEmbedding {
		validateCtx, cancel := context.WithTimeout(ctx, cfg.ValidateEmbeddingTimeout)
		defer cancel()

		if err := transport.ValidateServer(validateCtx); err != nil {
			return nil, fmt.Errorf("validate embedding server: %w", err)
		}
		log.Info().Msg("Embedding server validated successfully")
	}

	batcher := embedding.NewBatcher(transport, cfg.EmbeddingBatchSize, cfg.EmbeddingBatchWindow)
	embCache, closeCache, err := newEmbeddingCache(cfg)
	if err != nil {
		return nil, err
	}
	embedder := embedding.NewCachingEmbedder(batcher, embCache, cfg.EmbeddingCacheTTL)

	repo := agentrepo.NewRepository(db)
	runs := agentrepo.NewRunRepository(db)
	tickets := agentrepo.NewTicketRepository(db)

	router := retrieval.NewModeRouter(
		search.NewVectorRetriever(pool, embedder),
		search.NewLexicalRetriever(pool),
	)
	gen := generation.NewGenerator(llm.NewClient(llm.Config{
		BaseURL:    cfg.LLMBaseURL,
		APIKey:     cfg.LLMAPIKey,
		Model:      cfg.LLMModel,
		Timeout:    cfg.LLMTimeout,
		MaxRetries: cfg.LLMMaxRetries,
		MaxTokens:  cfg.LLMMaxTokens,
	}))

	service := agent.NewService(
		repo,
		repo,
		conversation.NewContextBuilder(repo),
		router,
		retrieval.NewTermOverlapReranker(),
		gen,
		guardrail.NewDecider(),
		ticket.NewDispatcher(tickets),
		run.NewRecorder(runs),
		defaultPolicy(cfg),
	)
	queries := agent.NewQueries(repo, runs, tickets, repo)

	handler := httpserver.NewRouter(cfg,
		handlers.NewChatHandler(service),
		handlers.NewAuditHandler(queries),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var closers []func() error
	if closeCache != nil {
		closers = append(closers, closeCache)
	}

	return &Application{
		server:            server,
		sqlDB:             sqlDB,
		pool:              pool,
		batcher:           batcher,
		closers:           closers,
		shutdownTelemetry: shutdownTelemetry,
	}, nil
}

func (a *Application) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.server.Addr).Msg("Agent engine listening")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close(context.Background())
		return err
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := a.server.Shutdown(shutdownCtx)
	a.close(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}

	log.Info().Msg("Server exited")
	return nil
}

// close releases resources in reverse construction order. The batcher stops
// first so no flush races a closing pool or cache.
func (a *Application) close(ctx context.Context) {
	a.batcher.Stop()
	for _, fn := range a.closers {
		if err := fn(); err != nil {
			log.Error().Err(err).Msg("close resource")
		}
	}
	a.pool.Close()
	if a.sqlDB != nil {
		_ = a.sqlDB.Close()
	}
	if err := a.shutdownTelemetry(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown telemetry")
	}
}

// runStartupMigrations applies migrations against the write database,
// serialized across replicas through the redsync lock when a lock Redis is
// configured. The search pool doubles as the migration connection unless a
// read replica splits the two DSNs.
func runStartupMigrations(ctx context.Context, cfg *configs.Config, searchPool *pgxpool.Pool) error {
	migratePool := searchPool
	if cfg.GetDatabaseReadDSN() != cfg.GetDatabaseWriteDSN() {
		var err error
		migratePool, err = database.NewPgxPool(ctx, cfg.GetDatabaseWriteDSN())
		if err != nil {
			return fmt.Errorf("connect write database: %w", err)
		}
		defer migratePool.Close()
	}

	apply := func() error {
		return database.RunMigrations(ctx, migratePool, cfg.MigrationsDir)
	}

	if cfg.LockRedisURL == "" {
		if err := apply(); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		return nil
	}

	lockCache, err := cache.NewRedisCache(cfg.LockRedisURL)
	if err != nil {
		return fmt.Errorf("connect lock redis: %w", err)
	}
	defer func() { _ = lockCache.Close() }()

	if err := cache.WithLock(lockCache, migrationLockName, migrationLockTTL, apply); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// newEmbeddingCache selects the embedding cache backend. Unknown types fall
// back to the in-process cache; "none" disables caching entirely.
func newEmbeddingCache(cfg *configs.Config) (embedding.Cache, func() error, error) {
	switch cfg.EmbeddingCacheType {
	case "redis":
		c, err := cache.NewEmbeddingCache(cfg.EmbeddingCacheRedisURL, cfg.EmbeddingCacheKeyPrefix, cfg.EmbeddingCacheTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("create redis embedding cache: %w", err)
		}
		return c, c.Close, nil
	case "none":
		return embedding.NewNoOpCache(), nil, nil
	default:
		c, err := embedding.NewMemoryCache(cfg.EmbeddingCacheMaxSize, cfg.EmbeddingCacheTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("create memory embedding cache: %w", err)
		}
		return c, nil, nil
	}
}

func defaultPolicy(cfg *configs.Config) tenant.Policy {
	return tenant.Policy{
		ContextWindow:          cfg.ContextWindow,
		ContextMaxChars:        cfg.ContextMaxChars,
		ReplyMinSimilarity:     cfg.ReplyMinSimilarity,
		RetrievalMinSimilarity: cfg.RetrievalMinSimilarity,
		RetrievalLimit:         cfg.RetrievalLimit,
		MaxEvidence:            cfg.MaxEvidence,
		MaxPerDocShare:         cfg.MaxPerDocShare,
		ClarifyLimit:           cfg.ClarifyLimit,
		RetrievalTimeout:       cfg.RetrievalTimeout,
		GenerationTimeout:      cfg.GenerationTimeout,
		RetrievalMode:          cfg.RetrievalMode,
		RerankEnabled:          cfg.RerankEnabled,
	}
}
