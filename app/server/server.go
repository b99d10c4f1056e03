package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"

	"booq/app/agent"
	"booq/app/analyzer"
	"booq/app/api"
	"booq/app/middleware"
	"booq/loader"
	"booq/model"
	"booq/store"
	"booq/types"
)

var config = fiber.Config{
	ErrorHandler: api.ErrorHandler,
	BodyLimit:    200 * 1024 * 1024,
}

const shutdownTimeout = 10 * time.Second

// Store is a file registry that also keeps the question snapshots.
type Store interface {
	store.FileRegistry
	store.QuestionStore
}

type Server struct {
	cfg    types.Config
	logger *slog.Logger
}

func NewServer(cfg types.Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: slog.Default(),
	}
}

// OpenStore returns the configured metadata backend and a func releasing it.
func OpenStore(ctx context.Context, cfg types.Config) (Store, func(), error) {
	if cfg.StoreBackend != "postgres" {
		fs, err := store.NewFileStore(cfg.StoragePath)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	}

	pool, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Init(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("create tables: %w", err)
	}
	return pool, func() { pool.Close() }, nil
}

// NewAnalyzer wires the analysis pipeline on top of st.
func NewAnalyzer(cfg types.Config, st Store, logger *slog.Logger) (*analyzer.Analyzer, *agent.Agent, *loader.PageLoader) {
	settings := agent.NewSettings(cfg.Analysis, cfg.Solving)
	ag := agent.New(settings, model.NewFactory(cfg.RequestsPerSec), cfg.RepairAttempts)
	pages := loader.NewPageLoader(cfg.StoragePath)

	a := analyzer.New(analyzer.Options{
		Files:     st,
		Questions: st,
		Pages:     pages,
		Agent:     ag,
		IndexRoot: cfg.StoragePath,
		Logger:    logger,
	})
	return a, ag, pages
}

func (s *Server) Run(ctx context.Context) error {
	st, closeStore, err := OpenStore(ctx, s.cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	a, ag, pages := NewAnalyzer(s.cfg, st, s.logger)
	// runs in flight must return before the store closes
	defer a.Shutdown()
	if !ag.Configured() {
		s.logger.Warn("LLM_URL or LLM_MODEL not set, configure a model via /api/v1/config before analysing")
	}

	app := NewApp(s.logger, st, pages, a, ag, s.cfg.StoragePath)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server started", "addr", s.cfg.ServerAddr, "store", s.cfg.StoreBackend)
		return app.Listen(s.cfg.ServerAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("server failed", "error", err)
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// NewApp registers every route on a fresh fiber app.
func NewApp(logger *slog.Logger, files store.FileRegistry, pages api.PageReader, a api.Analyzer, ag *agent.Agent, storagePath string) *fiber.App {
	var (
		app             = fiber.New(config)
		checkHandler    = api.NewCheckHandler(ag.Configured)
		fileHandler     = api.NewFileHandler(files, pages, ag, storagePath)
		analysisHandler = api.NewAnalysisHandler(a)
		questionHandler = api.NewQuestionHandler(a)
		configHandler   = api.NewConfigHandler(ag.Settings())
	)
	app.Use(middleware.RequestLogger(logger))

	var (
		check = app.Group("/check")
		apiv1 = app.Group("/api/v1")
		file  = apiv1.Group("/files/:id")
	)

	check.Get("/healthy", checkHandler.HandleHealthy)

	apiv1.Post("/files", fileHandler.HandleUpload)
	apiv1.Get("/files", fileHandler.HandleList)
	apiv1.Get("/config", configHandler.HandleGetConfig)
	apiv1.Put("/config", configHandler.HandleSetConfig)

	file.Get("/", fileHandler.HandleGet)
	file.Get("/pages/:page", fileHandler.HandlePage)
	file.Post("/pages/:page/structure", fileHandler.HandleStructure)

	file.Post("/analysis", analysisHandler.HandleStart)
	file.Delete("/analysis", analysisHandler.HandleStop)
	file.Get("/analysis", analysisHandler.HandleProgress)
	file.Get("/fragments", analysisHandler.HandleFragments)
	file.Delete("/fragments", analysisHandler.HandleClearFragments)

	file.Get("/questions", questionHandler.HandleList)
	file.Get("/questions/:qid", questionHandler.HandleGet)
	file.Post("/questions/:qid/answer", questionHandler.HandleAnswer)

	return app
}
