package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"stylegen/internal/domain"
	"stylegen/internal/generation"
	"stylegen/internal/http/handlers"
	httpapi "stylegen/internal/http/httpapi"
	"stylegen/internal/infra"
	"stylegen/internal/infra/quota"
	"stylegen/internal/providers/image"
	"stylegen/internal/providers/prompt"
	"stylegen/internal/routes"
	"stylegen/internal/storage"
	"stylegen/internal/styles"
	"stylegen/internal/upload"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	catalog, err := styles.Load(cfg.StyleProfilesPath, cfg.StyleLookup)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.StyleProfilesPath).Str("kind", string(domain.KindOf(err))).Msg("failed to load style profiles")
	}
	table := routes.Default()
	for _, route := range table.Routes() {
		if _, err := catalog.Get(route.StyleID); err != nil {
			logger.Warn().Str("style", route.StyleID).Str("path", route.Path()).Msg("route references a style missing from the profiles")
		}
	}
	logger.Info().Int("styles", catalog.Len()).Str("lookup", string(catalog.Mode())).Msg("style profiles loaded")

	scratch, err := storage.NewScratchStore(cfg.UploadTempDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare upload scratch directory")
	}

	images, err := image.NewOpenAIGenerator(image.OpenAIOptions{
		APIKey:       cfg.OpenAIAPIKey,
		BaseURL:      cfg.OpenAIBaseURL,
		Organization: cfg.OpenAIOrg,
		Model:        cfg.OpenAIImageModel,
		EditModel:    cfg.OpenAIEditModel,
		Timeout:      cfg.ProviderTimeout,
		MaxRetries:   cfg.ProviderMaxRetries,
		RPS:          cfg.ProviderRPS,
		Burst:        cfg.ProviderBurst,
		Spool:        scratch,
		OnRetry: func(op string, attempt int, err error) {
			logger.Warn().Err(err).Str("operation", op).Int("attempt", attempt).Msg("retrying image provider call")
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build image provider")
	}

	refiner, err := prompt.NewOpenAIRefiner(prompt.OpenAIOptions{
		APIKey:       cfg.OpenAIAPIKey,
		Model:        cfg.OpenAIChatModel,
		BaseURL:      cfg.OpenAIBaseURL,
		Organization: cfg.OpenAIOrg,
		Timeout:      cfg.ProviderTimeout,
		OnWarning: func(reason, detail string) {
			logger.Warn().Str("reason", reason).Str("detail", detail).Msg("refiner model adjusted")
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build prompt refiner")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store quota.Store = quota.NewMemoryStore(cfg.RateLimitMax, cfg.RateLimitWindow)
	if cfg.RedisURL != "" {
		rdb, err := quota.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()
		store = quota.NewRedisStore(rdb, cfg.RateLimitMax, cfg.RateLimitWindow)
		logger.Info().Msg("quota counters shared through redis")
	}

	svc := generation.NewService(generation.Options{
		Styles:     catalog,
		Images:     images,
		Refiner:    refiner,
		Policy:     cfg.RefinementPolicy,
		Logger:     logger,
		ImageModel: cfg.OpenAIImageModel,
		Deadline:   cfg.RequestTimeout,
	})

	app := &handlers.App{
		Service:         svc,
		Styles:          catalog,
		Routes:          table,
		Ingestor:        upload.NewIngestor(cfg.UploadMaxBytes),
		Logger:          logger,
		Dev:             cfg.Development(),
		JSONMaxBytes:    cfg.JSONBodyMaxBytes,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:           logger,
		CORSOrigins:      cfg.CORSAllowedOrigins,
		TrustedProxyHops: cfg.TrustedProxyHops,
		Quota:            store,
		QuotaLimit:       cfg.RateLimitMax,
		QuotaWindow:      cfg.RateLimitWindow,
		PublicDir:        cfg.PublicDir,
	})

	server := infra.NewHTTPServer(cfg, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr()).Str("env", cfg.AppEnv).Msg("API listening")
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		stop()
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}
