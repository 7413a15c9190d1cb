package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/config"
	httpserver "github.com/javalianxisheng-shenglaogou/bs-sub001/internal/interfaces/http"
	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/repository"
	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/service"
	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/workflow"
	"github.com/javalianxisheng-shenglaogou/bs-sub001/pkg/database"
	"github.com/javalianxisheng-shenglaogou/bs-sub001/pkg/utils"
)

func main() {
	configPath := "configs/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting approval workflow service",
		zap.Int("port", cfg.Server.Port))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.Run(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	definitionRepo := repository.NewDefinitionRepository(db.DB, logger)
	instanceRepo := repository.NewInstanceRepository(db.DB, logger)
	taskRepo := repository.NewTaskRepository(db.DB, logger)
	historyRepo := repository.NewHistoryRepository(db.DB, logger)

	engine := workflow.NewEngine(db, definitionRepo, instanceRepo, taskRepo, historyRepo, logger)

	workflows := service.NewWorkflowService(
		engine,
		definitionRepo,
		instanceRepo,
		taskRepo,
		historyRepo,
		service.Limits{
			MaxApproversPerNode: cfg.Workflow.MaxApproversPerNode,
			PageSizeLimit:       cfg.Workflow.PageSizeLimit,
		},
		logger,
	)

	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, workflows, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Server exited")
}
