package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/voiceflow/api/handlers"
	"github.com/BaSui01/voiceflow/config"
	"github.com/BaSui01/voiceflow/contact"
	"github.com/BaSui01/voiceflow/internal/cache"
	"github.com/BaSui01/voiceflow/internal/database"
	"github.com/BaSui01/voiceflow/internal/errtrack"
	"github.com/BaSui01/voiceflow/internal/metrics"
	"github.com/BaSui01/voiceflow/internal/server"
	"github.com/BaSui01/voiceflow/internal/telemetry"
	"github.com/BaSui01/voiceflow/kb"
	"github.com/BaSui01/voiceflow/llm"
	"github.com/BaSui01/voiceflow/pipeline"
	"github.com/BaSui01/voiceflow/room"
	"github.com/BaSui01/voiceflow/session"
	"github.com/BaSui01/voiceflow/store"
	"github.com/BaSui01/voiceflow/transcript"
	"github.com/BaSui01/voiceflow/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🚀 VoiceFlow 服务装配
// =============================================================================

// Server wires configuration into the running service: database, cache,
// external service clients, the call orchestrator, and the HTTP surfaces.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	version string

	providers *telemetry.Providers
	registry  *prometheus.Registry
	collector *metrics.Collector
	reporter  *errtrack.Reporter

	dbPool *database.PoolManager
	guard  *cache.Manager
	rooms  *room.Client

	orchestrator *session.Orchestrator

	httpManager    *server.Manager
	metricsManager *server.Manager

	// rootCtx bounds launched call sessions; cancelled on shutdown.
	rootCtx    context.Context
	cancelRoot context.CancelFunc

	sessions sync.WaitGroup
}

// NewServer 创建服务实例
func NewServer(cfg *config.Config, logger *zap.Logger, version string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        cfg,
		logger:     logger,
		version:    version,
		rootCtx:    ctx,
		cancelRoot: cancel,
	}
}

// Start brings up every component and begins serving. It returns after the
// listeners are bound; use WaitForShutdown to block until termination.
func (s *Server) Start() error {
	providers, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	s.providers = providers

	s.registry = prometheus.NewRegistry()
	s.collector = metrics.NewCollector("voiceflow", s.registry, s.logger)

	s.reporter = errtrack.New(errtrack.Config{
		DSN:         s.cfg.ErrTrack.DSN,
		Environment: s.cfg.ErrTrack.Environment,
		Release:     s.cfg.ErrTrack.Release,
	}, s.logger)

	s.dbPool, err = database.Open(s.cfg.Database.Driver, s.cfg.Database.DSN(), database.PoolConfig{
		MaxIdleConns:    s.cfg.Database.MaxIdleConns,
		MaxOpenConns:    s.cfg.Database.MaxOpenConns,
		ConnMaxLifetime: s.cfg.Database.ConnMaxLifetime,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// Redis 不可达时降级运行：无去重保护，但调度仍然可用
	s.guard, err = cache.NewManager(cache.Config{
		Addr:        s.cfg.Redis.Addr,
		Password:    s.cfg.Redis.Password,
		DB:          s.cfg.Redis.DB,
		PoolSize:    s.cfg.Redis.PoolSize,
		DispatchTTL: s.cfg.Redis.DispatchTTL,
		SessionTTL:  s.cfg.Redis.SessionTTL,
	}, s.logger)
	if err != nil {
		s.logger.Warn("redis unavailable, dispatch dedup disabled", zap.Error(err))
		s.guard = nil
	}

	s.rooms = room.NewClient(room.Config{
		URL:       s.cfg.Media.URL,
		APIKey:    s.cfg.Media.APIKey,
		APISecret: s.cfg.Media.APISecret,
		Timeout:   s.cfg.Media.Timeout,
	}, s.logger)

	s.orchestrator = s.buildOrchestrator()

	if err := s.startHTTPServer(); err != nil {
		return err
	}

	s.logger.Info("voiceflow started",
		zap.String("version", s.version),
		zap.String("http_addr", s.httpManager.Addr()),
		zap.String("metrics_addr", s.metricsManager.Addr()))
	return nil
}

// buildOrchestrator assembles the per-call dependency set.
func (s *Server) buildOrchestrator() *session.Orchestrator {
	cfg := s.cfg

	configStore := store.NewConfigStore(s.dbPool.DB(), s.logger)
	contactStore := store.NewContactStore(s.dbPool.DB(), s.logger)

	chatClient := transcript.NewClient(transcript.Config{
		BaseURL:       cfg.Chat.URL,
		InternalToken: cfg.Chat.InternalToken,
		Timeout:       cfg.Chat.Timeout,
	}, s.logger)

	retriever := kb.NewRetriever(kb.Config{
		URL:     cfg.KB.URL,
		Timeout: cfg.KB.Timeout,
		TopK:    cfg.KB.TopK,
	}, s.logger)

	llmClient := llm.NewClient(llm.Config{
		APIKey:       cfg.LLM.APIKey,
		BaseURL:      cfg.LLM.BaseURL,
		DefaultModel: cfg.LLM.ExtractionModel,
		Timeout:      cfg.LLM.Timeout,
	}, s.logger)

	factory := func(ctx context.Context, call *types.CallContext, components pipeline.Components, instructions string) (pipeline.Session, error) {
		token, err := s.rooms.Minter().MintJoinToken(call.RoomName, "agent-"+call.AgentID, "")
		if err != nil {
			return nil, fmt.Errorf("mint join token: %w", err)
		}
		return pipeline.NewWSSession(pipeline.WSConfig{
			URL:          cfg.Media.WSURL,
			Token:        token,
			RoomName:     call.RoomName,
			Instructions: instructions,
		}, components, s.logger), nil
	}

	return session.NewOrchestrator(session.Deps{
		Configs:     configStore,
		Transcripts: chatClient,
		Knowledge:   retriever,
		Extractor:   contact.NewExtractor(llmClient, s.logger),
		Contacts:    contact.NewUpserter(contactStore, s.logger),
		NewSession:  factory,
		Collector:   s.collector,
		Reporter:    s.reporter,
		Logger:      s.logger,
	}, session.Options{
		GreetingSettleDelay: cfg.Pipeline.GreetingSettleDelay,
		KBTopK:              cfg.KB.TopK,
		KBTokenBudget:       cfg.KB.ContextTokenBudget,
		Components: pipeline.ComponentConfig{
			STTModel:       cfg.Pipeline.STT,
			LLMModel:       cfg.Pipeline.LLM,
			ElevenLabsKey:  cfg.Pipeline.ElevenLabsAPIKey,
			CartesiaKey:    cfg.Pipeline.CartesiaAPIKey,
			DisableTurnDet: !cfg.Pipeline.TurnDetector,
		},
	})
}

// launchSession runs one call in the background. roomName keys the active
// session registry; metadata is the identity JSON the room was stamped with.
func (s *Server) launchSession(roomName, metadata string) {
	s.sessions.Add(1)
	go func() {
		defer s.sessions.Done()

		if s.guard != nil {
			var ids struct {
				AgentID        string `json:"agentId"`
				ConversationID string `json:"conversationId"`
			}
			_ = json.Unmarshal([]byte(metadata), &ids)

			regCtx, cancel := context.WithTimeout(s.rootCtx, 2*time.Second)
			if err := s.guard.RegisterSession(regCtx, cache.SessionRecord{
				JobID:          fmt.Sprintf("agent-%s-%s", ids.AgentID, ids.ConversationID),
				AgentID:        ids.AgentID,
				ConversationID: ids.ConversationID,
				RoomName:       roomName,
				StartedAt:      time.Now().UTC(),
			}); err != nil {
				s.logger.Debug("session registry unavailable", zap.Error(err))
			}
			cancel()
		}

		err := s.orchestrator.Run(s.rootCtx, session.CallRequest{
			RoomName:    roomName,
			JobMetadata: metadata,
			Rooms:       s.rooms,
		})
		if err != nil {
			s.logger.Error("call ended with error",
				zap.String("room", roomName), zap.Error(err))
		}

		if s.guard != nil {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			s.guard.UnregisterSession(cleanupCtx, roomName)
			s.guard.ReleaseDispatch(cleanupCtx, roomName)
			cancel()
		}
	}()
}

// startHTTPServer binds the API listener and the metrics listener.
func (s *Server) startHTTPServer() error {
	cfg := s.cfg.Server

	healthHandler := handlers.NewHealthHandler(s.version, s.logger)
	healthHandler.RegisterCheck(namedCheck{"database", s.dbPool.Ping})
	if s.guard != nil {
		healthHandler.RegisterCheck(namedCheck{"redis", s.guard.HealthCheck})
	}

	dispatchHandler := handlers.NewDispatchHandler(s.rooms, s.guard, s.collector, s.logger)
	dispatchHandler.SetLauncher(s.launchSession)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", healthHandler.Liveness)
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /healthz", healthHandler.Liveness)
	mux.HandleFunc("GET /ready", healthHandler.Readiness)
	mux.HandleFunc("POST /api/agents/dispatch", dispatchHandler.Dispatch)

	skipAuth := []string{"/", "/health", "/healthz", "/ready"}
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		RateLimiter(s.rootCtx, cfg.RateLimit, cfg.RateBurst, s.logger),
		BearerAuth(s.cfg.Chat.InternalToken, skipAuth, s.logger),
	)

	s.httpManager = server.NewManager(handler, server.Config{
		Addr:            fmt.Sprintf(":%d", cfg.HTTPPort),
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		IdleTimeout:     cfg.IdleTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, s.logger)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.metricsManager = server.NewManager(metricsMux, server.Config{
		Addr:            fmt.Sprintf(":%d", cfg.MetricsPort),
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		IdleTimeout:     cfg.IdleTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, s.logger)

	var g errgroup.Group
	g.Go(s.httpManager.Start)
	g.Go(s.metricsManager.Start)
	return g.Wait()
}

// WaitForShutdown blocks until the HTTP manager observes a termination
// signal, then tears the service down in dependency order.
func (s *Server) WaitForShutdown() {
	s.httpManager.WaitForShutdown()
	s.Shutdown()
}

// Shutdown stops accepting new work, drains in-flight calls, and releases
// every held resource.
func (s *Server) Shutdown() {
	s.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Warn("http shutdown", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Warn("metrics shutdown", zap.Error(err))
		}
	}

	// 取消所有进行中的通话并等待其收尾（含转写落库与通话标记）
	s.cancelRoot()
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		s.logger.Warn("sessions did not drain in time")
	}

	if s.guard != nil {
		if err := s.guard.Close(); err != nil {
			s.logger.Warn("close redis", zap.Error(err))
		}
	}
	if s.dbPool != nil {
		if err := s.dbPool.Close(); err != nil {
			s.logger.Warn("close database", zap.Error(err))
		}
	}
	if s.providers != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.providers.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("telemetry shutdown", zap.Error(err))
		}
		shutdownCancel()
	}

	s.logger.Info("shutdown complete")
}

// namedCheck adapts a probe function to the handlers.HealthCheck interface.
type namedCheck struct {
	name string
	fn   func(ctx context.Context) error
}

func (c namedCheck) Name() string                    { return c.name }
func (c namedCheck) Check(ctx context.Context) error { return c.fn(ctx) }
