package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Snoopiam/mqt/internal/config"
	"github.com/Snoopiam/mqt/internal/extract"
	"github.com/Snoopiam/mqt/internal/handlers"
	"github.com/Snoopiam/mqt/internal/httpclient"
	"github.com/Snoopiam/mqt/internal/mediagroup"
	"github.com/Snoopiam/mqt/internal/pipeline"
	"github.com/Snoopiam/mqt/internal/session"
	"github.com/Snoopiam/mqt/internal/style"
	"github.com/Snoopiam/mqt/internal/telegram"
	"github.com/Snoopiam/mqt/internal/vision"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadBot()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg)

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	tg, err := telegram.New(telegram.Options{
		Token:      cfg.TelegramToken,
		HTTPClient: httpClient,
		Logger:     logger,
		Debug:      cfg.Debug,
	})
	if err != nil {
		logger.Error("telegram init failed", "err", err)
		os.Exit(1)
	}

	vc := vision.New(vision.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		APIVersion: cfg.GeminiAPIVersion,
		HTTPClient: httpClient,
		Logger:     logger,
		RPS:        cfg.VisionRPS,
		Burst:      cfg.VisionBurst,
	})

	styles := style.NewStore(style.StoreOptions{
		MainPath:    cfg.StyleDataPath,
		StagingPath: cfg.StagingPath,
		Logger:      logger,
	})

	orch := pipeline.NewOrchestrator(pipeline.Options{
		Vision:                  vc,
		Logger:                  logger,
		DefaultTier:             cfg.ModelTier,
		AnalysisModelOverride:   cfg.AnalysisModelOverride,
		GenerationModelOverride: cfg.GenerationModelOverride,
	})

	comp := pipeline.NewComparator(pipeline.ComparatorOptions{
		Vision:                vc,
		Logger:                logger,
		AnalysisModelOverride: cfg.AnalysisModelOverride,
	})

	extractor := extract.New(extract.Options{
		Vision: vc,
		Model:  cfg.AnalysisModelOverride,
		Logger: logger,
	})

	sessions := session.NewStore(session.Options{
		MaxRefineAttempts: cfg.MaxRefineAttempts,
	})

	handler := handlers.New(handlers.Options{
		Telegram:     tg,
		Orchestrator: orch,
		Comparator:   comp,
		Extractor:    extractor,
		Styles:       styles,
		Sessions:     sessions,
		Logger:       logger,
		MaxImageSize: cfg.MaxImageSize,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sem := make(chan struct{}, cfg.MaxConcurrent)
	onAlbumFlush := func(album mediagroup.Album) {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		go func() {
			defer func() { <-sem }()

			reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
			defer cancel()

			handler.HandleAlbum(reqCtx, album)
		}()
	}

	aggregator := mediagroup.New(mediagroup.Options{
		Debounce: cfg.MediaGroupDebounce,
		OnFlush:  onAlbumFlush,
	})
	handler.SetMediaGroupAggregator(aggregator)

	logger.Info("bot started", "username", tg.Username(), "tier", cfg.ModelTier)

	updates := tg.Updates(telegram.UpdatesOptions{
		Timeout: 30 * time.Second,
	})
	defer tg.StopUpdates()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case update, ok := <-updates:
			if !ok {
				logger.Info("updates channel closed")
				return
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			go func(update telegram.Update) {
				defer func() { <-sem }()

				reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
				defer cancel()

				if err := handler.HandleUpdate(reqCtx, update); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("handle update failed", "err", err)
				}
			}(update)
		}
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}
