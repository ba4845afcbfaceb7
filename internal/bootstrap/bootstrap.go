package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"plant-doctor-bot/internal/domain/analyzer"
	analyzeradapters "plant-doctor-bot/internal/domain/analyzer/adapters"
	dedupstore "plant-doctor-bot/internal/domain/dedup/store"
	"plant-doctor-bot/internal/domain/dispatcher"
	"plant-doctor-bot/internal/domain/eventbus"
	domainimage "plant-doctor-bot/internal/domain/image"
	platformconfig "plant-doctor-bot/internal/platform/config"
	platformerrors "plant-doctor-bot/internal/platform/errors"
	platformlogging "plant-doctor-bot/internal/platform/logging"
	platformobservability "plant-doctor-bot/internal/platform/observability"
	platformstorage "plant-doctor-bot/internal/platform/storage"
	httptransport "plant-doctor-bot/internal/transport/http"
	httpsite "plant-doctor-bot/internal/transport/http/site"
	httpwebhook "plant-doctor-bot/internal/transport/http/webhook"
	"plant-doctor-bot/internal/transport/telegram"
)

const (
	shutdownTimeout     = 15 * time.Second
	httpShutdownTimeout = 10 * time.Second
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	loader                *platformconfig.Loader
	config                *platformconfig.Config
	configPath            string
	logger                *platformlogging.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	db                    *gorm.DB
	ledger                dedupstore.Store
	telegram              *telegram.Client
	images                *domainimage.Pipeline
	analyzer              analyzer.Analyzer
	bus                   *eventbus.AsyncEventBus
	dispatcher            *dispatcher.Dispatcher
}

// Run loads configuration, builds every component, serves HTTP until ctx is
// cancelled or a termination signal arrives, then releases resources.
func Run(ctx context.Context) error {
	return run(ctx, &appState{loader: platformconfig.NewLoader()})
}

func run(ctx context.Context, state *appState) error {
	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		state.close()
		return err
	}
	defer state.close()

	logger := state.logger
	logBootstrapGraph(logger, steps)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if _, err := startHTTPServer(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	// A server that dies on its own cancels groupCtx; fold that into the wait.
	waitCtx, waitCancel := context.WithCancel(signalCtx)
	defer waitCancel()
	go func() {
		select {
		case <-groupCtx.Done():
			waitCancel()
		case <-waitCtx.Done():
		}
	}()

	return waitForShutdown(waitCtx, cancel, logger, group)
}

func logBootstrapGraph(logger *platformlogging.Logger, steps []initStep) {
	if logger == nil {
		return
	}
	logger.InfoTag("BOOT", "init graph overview")
	for _, step := range steps {
		if len(step.DependsOn) == 0 {
			logger.InfoTag("BOOT", "  %s: %s", step.ID, step.Title)
			continue
		}
		logger.InfoTag("BOOT", "  %s: %s (after %s)", step.ID, step.Title, strings.Join(step.DependsOn, ", "))
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Initialise ledger database",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initDatabaseStep,
		},
		{
			ID:        "dedup:init-ledger",
			Title:     "Initialise update ledger",
			DependsOn: []string{"storage:init-database"},
			Kind:      platformerrors.KindStorage,
			Execute:   initLedgerStep,
		},
		{
			ID:        "telegram:init-client",
			Title:     "Initialise Telegram client",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindConfig,
			Execute:   initTelegramStep,
		},
		{
			ID:        "image:init-pipeline",
			Title:     "Initialise image pipeline",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initImagePipelineStep,
		},
		{
			ID:        "analyzer:init-backend",
			Title:     "Initialise vision analyzer",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindAnalyzer,
			Execute:   initAnalyzerStep,
		},
		{
			ID:        "eventbus:init",
			Title:     "Start lifecycle event bus",
			DependsOn: []string{"observability:setup-hooks"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initEventBusStep,
		},
		{
			ID:    "dispatcher:init",
			Title: "Assemble update dispatcher",
			DependsOn: []string{
				"telegram:init-client",
				"image:init-pipeline",
				"analyzer:init-backend",
				"eventbus:init",
			},
			Kind:    platformerrors.KindBootstrap,
			Execute: initDispatcherStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	loader := state.loader
	if loader == nil {
		loader = platformconfig.NewLoader()
	}
	result, err := loader.Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load", "failed to load configuration", err)
	}
	state.config = result.Config
	state.configPath = result.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}
	state.logger = logger

	logger.InfoTag("BOOT", "logging ready [%s] config from %s", state.config.Log.Level, state.configPath)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	cfg := platformobservability.Config{
		Enabled: strings.EqualFold(state.config.Log.Level, "debug"),
	}

	shutdown, err := platformobservability.Setup(ctx, cfg, state.logger.Slog())
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func initDatabaseStep(_ context.Context, state *appState) error {
	dedup := state.config.Dedup
	if !dedup.Enabled || !strings.EqualFold(strings.TrimSpace(dedup.Driver), dedupstore.DriverSQLite) {
		return nil
	}

	db, err := platformstorage.Open(dedup.SQLite.DSN)
	if err != nil {
		return err
	}
	state.db = db

	history, err := platformstorage.NewMigrationManager(db).GetMigrationHistory()
	if err != nil {
		return err
	}
	versions := make([]string, 0, len(history))
	for _, rec := range history {
		versions = append(versions, rec.Version)
	}
	state.logger.InfoTag("BOOT", "ledger database ready: %s (schema %s)",
		platformstorage.Describe(dedup.SQLite.DSN), strings.Join(versions, ", "))
	return nil
}

func initLedgerStep(ctx context.Context, state *appState) error {
	if !state.config.Dedup.Enabled {
		state.logger.InfoTag("DEDUP", "update ledger disabled; redelivered updates will be handled again")
		return nil
	}

	ledger, err := dedupstore.New(ctx, state.config.Dedup, dedupstore.Dependencies{SQLiteDB: state.db})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "dedup:init-ledger", "failed to create update ledger", err)
	}
	state.ledger = ledger
	state.logger.InfoTag("DEDUP", "update ledger ready (driver=%s ttl=%s)", state.config.Dedup.Driver, state.config.Dedup.TTL)
	return nil
}

func initTelegramStep(_ context.Context, state *appState) error {
	client, err := telegram.New(state.config.Telegram, state.logger)
	if err != nil {
		return err
	}
	state.telegram = client
	return nil
}

func initImagePipelineStep(_ context.Context, state *appState) error {
	security := state.config.Image
	pipeline, err := domainimage.NewPipeline(domainimage.Options{
		Security: &security,
		Logger:   state.logger,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "image:init-pipeline", "failed to create image pipeline", err)
	}
	state.images = pipeline
	return nil
}

func initAnalyzerStep(ctx context.Context, state *appState) error {
	a, err := analyzeradapters.New(ctx, state.config.Analyzer, state.logger)
	if err != nil {
		return err
	}
	state.analyzer = a
	state.logger.InfoTag("ANALYZER", "vision backend %s ready (model %s)", a.Name(), state.config.Analyzer.Selected().ModelName)
	return nil
}

func initEventBusStep(_ context.Context, state *appState) error {
	bus := eventbus.NewAsyncEventBus(0, 0)
	if err := eventbus.NewRecorder(state.logger).Attach(bus); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "eventbus:init", "failed to subscribe event recorder", err)
	}
	bus.Start()
	state.bus = bus
	return nil
}

func initDispatcherStep(_ context.Context, state *appState) error {
	d, err := dispatcher.New(dispatcher.Options{
		Messenger:       state.telegram,
		Fetcher:         state.telegram,
		Images:          state.images,
		Analyzer:        state.analyzer,
		Events:          state.bus,
		Logger:          state.logger,
		AnalyzerTimeout: state.config.Analyzer.Timeout,
	})
	if err != nil {
		return err
	}
	state.dispatcher = d
	return nil
}

// buildRouter assembles the gin engine with every HTTP service mounted.
func buildRouter(ctx context.Context, state *appState) (*gin.Engine, error) {
	router, err := httptransport.Build(httptransport.Options{
		Config: state.config,
		Logger: state.logger,
	})
	if err != nil {
		return nil, err
	}

	webhookService, err := httpwebhook.NewService(httpwebhook.Options{
		Dispatcher: state.dispatcher,
		Registrar:  state.telegram,
		Ledger:     state.ledger,
		WebhookURL: state.config.Telegram.WebhookURL,
		Logger:     state.logger,
	})
	if err != nil {
		return nil, err
	}

	siteService, err := httpsite.NewService(httpsite.Options{
		Backend: state.analyzer.Name(),
		Ledger:  state.ledger,
		Logger:  state.logger,
	})
	if err != nil {
		return nil, err
	}

	if err := httptransport.Mount(ctx, router.Root, webhookService, siteService); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "http:mount", "failed to register routes", err)
	}

	router.Engine.NoRoute(func(c *gin.Context) {
		httptransport.RespondError(c, http.StatusNotFound, "not found", gin.H{})
	})
	return router.Engine, nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	handler, err := buildRouter(groupCtx, state)
	if err != nil {
		return nil, err
	}

	logger := state.logger
	addr := net.JoinHostPort(state.config.Server.IP, strconv.Itoa(state.config.Server.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "gin server listening on %s", addr)
		logger.InfoTag("HTTP", "webhook endpoint: POST /webhook, docs: /docs")

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "HTTP server shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "HTTP server stopped")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "HTTP server failed: %v", err)
			return platformerrors.Wrap(platformerrors.KindTransport, "http:serve", "http server failed", err)
		}
		return nil
	})

	return httpServer, nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag("BOOT", "shutting down: %v", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("BOOT", "shutdown finished with error: %v", err)
			return err
		}
		logger.InfoTag("BOOT", "all services stopped")
	case <-time.After(shutdownTimeout):
		logger.ErrorTag("BOOT", "shutdown timed out after %s", shutdownTimeout)
		return errors.New("shutdown timed out")
	}
	return nil
}

// close releases everything the init steps acquired, in reverse order.
func (s *appState) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.bus != nil {
		s.bus.Stop()
		if dropped := s.bus.Dropped(); dropped > 0 {
			s.logger.WarnTag("EVENT", "%d lifecycle events were dropped", dropped)
		}
	}
	if s.ledger != nil {
		if err := s.ledger.Close(ctx); err != nil {
			s.logger.WarnTag("DEDUP", "ledger close failed: %v", err)
		}
	}
	if s.db != nil {
		if err := platformstorage.Close(s.db); err != nil {
			s.logger.WarnTag("BOOT", "database close failed: %v", err)
		}
	}
	if s.observabilityShutdown != nil {
		if err := s.observabilityShutdown(ctx); err != nil {
			s.logger.WarnTag("BOOT", "observability shutdown failed: %v", err)
		}
	}
	if s.logger != nil {
		_ = s.logger.Close()
	}
}
