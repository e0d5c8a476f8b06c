package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/haovie/clonevideo/internal/authstore"
	"github.com/haovie/clonevideo/internal/bot"
	"github.com/haovie/clonevideo/internal/config"
	"github.com/haovie/clonevideo/internal/enhancer"
	"github.com/haovie/clonevideo/internal/media"
	"github.com/haovie/clonevideo/internal/metrics"
	"github.com/haovie/clonevideo/internal/progress"
	"github.com/haovie/clonevideo/internal/repo"
	"github.com/haovie/clonevideo/internal/router"
	"github.com/haovie/clonevideo/internal/service"
	"github.com/haovie/clonevideo/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	target, err := transport.ParseDestination(cfg.TargetChat)
	if err != nil {
		return err
	}

	var store authstore.Store
	switch cfg.UserStore {
	case "postgres":
		pg, err := authstore.NewPostgresStoreFromEnv()
		if err != nil {
			return err
		}
		defer pg.Close()
		store = pg
	default:
		store = authstore.NewFileStore(cfg.UsersFile)
	}

	env, err := authstore.ParseSource(cfg.AllowedUsers)
	if err != nil {
		return err
	}
	authorizer := authstore.NewAuthorizer(cfg.AdminUserID, env, store)

	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return err
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return err
	}
	logger.Info("bot authorized", "account", api.Self.UserName)

	tr := transport.NewTelegram(api, logger)
	ffmpeg := enhancer.New(logger,
		enhancer.WithFFmpegBinary(cfg.FFmpegBin),
		enhancer.WithFFprobeBinary(cfg.FFprobeBin),
	)
	fetcher := media.NewCLI(cfg.DownloadDir, ffmpeg, logger,
		media.WithYtDlpBinary(cfg.YtDlpBin),
		media.WithGalleryDLBinary(cfg.GalleryDLBin),
	)

	tasks := repo.NewInMemoryTaskRepo()
	reporter := progress.NewReporter(tasks, tr, cfg.ProgressInterval, logger)
	supervisor := service.NewSupervisor(tasks, fetcher, tr, reporter, ffmpeg, target, logger)
	b := bot.New(api, tr, supervisor, authorizer, target, logger)

	server := &http.Server{
		Addr:         cfg.AdminAPI.BindAddress,
		Handler:      router.New(logger, authorizer, cfg.AdminAPI.Token),
		ReadTimeout:  cfg.AdminAPI.ReadTimeout,
		WriteTimeout: cfg.AdminAPI.WriteTimeout,
		IdleTimeout:  cfg.AdminAPI.IdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("admin api listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.AdminAPI.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutCtx)
	})

	g.Go(func() error {
		return b.Run(ctx)
	})

	err = g.Wait()

	// Let in-flight tasks finish their cleanup before exiting.
	supervisor.Wait()
	logger.Info("shutdown complete")
	return err
}
