package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/api"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/usecase"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/bus"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/conf"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/data"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/infra/telegram"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/mcp"
	"github.com/AndreyKrivtsov/tgbot-sub001/internal/service"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the moderator (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg := conf.LoadFromEnv()
	setupLogger(cfg.Log)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	tg, err := telegram.New(cfg.Telegram.BotToken)
	if err != nil {
		return err
	}

	repos, err := data.NewRepositories(cfg, tg)
	if err != nil {
		return fmt.Errorf("create repositories: %w", err)
	}
	defer func() {
		if err := repos.Close(); err != nil {
			slog.Warn("close repositories", "error", err)
		}
	}()
	slog.Info("state store opened", "path", cfg.Store.DBPath)

	b := bus.New()

	// Usecase layer
	promptCfg := usecase.DefaultPromptConfig
	promptCfg.BotName = tg.Username()
	classifier := usecase.NewClassifierUsecase(repos.Provider, usecase.NewPromptBuilder(promptCfg), cfg.ToClassifierConfig())

	policyCfg := cfg.ToPolicyConfig()
	decisions := usecase.NewDecisionUsecase(
		usecase.NewModerationPolicy(policyCfg),
		usecase.NewResponsePolicy(policyCfg),
		repos.Chats,
		cfg.ToDecisionConfig(),
	)
	reviews := usecase.NewReviewUsecase(repos.Reviews, usecase.NewReviewRequestBuilder(cfg.Review.TTL), b)
	buffer := usecase.NewMessageBuffer(cfg.ToBufferConfig())

	// Service layer
	processor := service.NewBatchProcessor(
		buffer, repos.State, classifier, decisions, reviews,
		repos.Instructions, repos.Chats, b, cfg.ToProcessorConfig(),
	)
	reviewSvc := service.NewReviewService(reviews, cfg.Review.CleanupInterval, cfg.Review.Retention)

	processor.Register(b)
	reviewSvc.Register(b)
	tg.NewExecutor(b, cfg.Telegram.ActionsPerSecond).Register(b)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	processor.Start(ctx)
	reviewSvc.Start(ctx)

	var apiSrv *api.Server
	if cfg.MCP.Addr != "" {
		tools := mcp.NewServer(Version, mcp.Deps{
			Buffers:   buffer,
			Reviews:   reviews,
			History:   processor,
			Publisher: b,
		})
		apiSrv = api.NewServer(cfg.MCP.Addr, buffer, reviews, processor, b, tools.Handler())
		go func() {
			if err := apiSrv.Start(); err != nil {
				slog.Error("api server failed", "error", err)
			}
		}()
	}

	if err := tg.Start(ctx, b, repos.Chats); err != nil {
		processor.Stop()
		reviewSvc.Stop()
		if apiSrv != nil {
			_ = apiSrv.Stop(context.Background())
		}
		return err
	}
	slog.Info("moderator started", "bot", tg.Username(), "version", Version)

	<-ctx.Done()
	slog.Info("shutting down")

	// Stop intake first so the final flush sees every accepted message
	tg.Stop()
	processor.Stop()
	reviewSvc.Stop()
	if apiSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = apiSrv.Stop(shutdownCtx)
	}
	return nil
}
