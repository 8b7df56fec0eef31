package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/saenggibu-tracker/constants"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/common"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/document"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/llm"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/llm/openai"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/pipeline"
	repo "github.com/joseph-ayodele/saenggibu-tracker/internal/repository"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/server"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/services/activity"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/services/export"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/services/student"
	"github.com/joseph-ayodele/saenggibu-tracker/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	drv, pool, err := repo.Open(ctx, repo.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer repo.Close(drv, pool, logger)

	if err := repo.HealthCheck(ctx, drv, 5*time.Second, logger); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if err := repo.Migrate(ctx, drv, logger); err != nil {
		logger.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}

	blobs, err := storage.New(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to open blob store", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	if c, ok := blobs.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	studentsRepo := repo.NewStudentRepository(drv, logger)
	filesRepo := repo.NewFileRepository(drv, logger)
	analysesRepo := repo.NewAnalysisRepository(drv, logger)
	careerRepo := repo.NewCareerRepository(drv, logger)

	client := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	extractor := llm.NewExtractor(client, cfg.LLM.MaxInputChars, cfg.LLM.MaxTokens, logger)
	decoder := document.NewDecoder(document.Config{MaxBytes: constants.MaxUploadBytes}, logger)

	processor := pipeline.NewProcessor(logger, cfg.Analysis.Timeout, drv,
		studentsRepo, filesRepo, analysesRepo, blobs, decoder, extractor)
	queue := pipeline.NewReanalyzeQueue(processor, logger,
		pipeline.WithWorkers(2),
		pipeline.WithQueueSize(256),
		pipeline.WithJobTimeout(cfg.Analysis.Timeout+time.Minute),
	)
	sweeper := pipeline.NewSweeper(filesRepo, logger,
		pipeline.WithSweepInterval(cfg.Analysis.SweepInterval),
		pipeline.WithStuckAfter(cfg.Analysis.StuckAfter),
	)

	health := server.NewHealthServer(drv, logger)
	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(server.RouterConfig{
		JWTSecret:      cfg.Auth.JWTSecret,
		CORSOrigins:    cfg.Server.CORSOrigins,
		MaxUploadBytes: constants.MaxUploadBytes,
	}, server.Handlers{
		Health:   health,
		Analyze:  server.NewAnalyzeServer(processor, queue, constants.MaxUploadBytes, logger),
		Students: server.NewStudentServer(student.NewService(studentsRepo, filesRepo, careerRepo, blobs, logger), logger),
		Activity: server.NewActivityServer(activity.NewService(studentsRepo, filesRepo, analysesRepo, blobs, logger), logger),
		Export:   server.NewExportServer(export.NewService(studentsRepo, filesRepo, analysesRepo, careerRepo, logger), logger),
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcServer := health.GRPCServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Server.GRPCAddr != "" {
		g.Go(func() error {
			lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
			if err != nil {
				return err
			}
			logger.Info("grpc health listening", "addr", cfg.Server.GRPCAddr)
			return grpcServer.Serve(lis)
		})
	}
	g.Go(func() error {
		health.Monitor(gctx, 15*time.Second)
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
		grpcServer.GracefulStop()
		queue.Shutdown(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}
