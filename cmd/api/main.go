package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"blogwriter/api/internal/app"
	"blogwriter/api/internal/authpw"
	"blogwriter/api/internal/blogwriter"
	"blogwriter/api/internal/config"
	"blogwriter/api/internal/dataforseo"
	"blogwriter/api/internal/email"
	"blogwriter/api/internal/export"
	"blogwriter/api/internal/gitrepo"
	"blogwriter/api/internal/integrations"
	"blogwriter/api/internal/interlink"
	"blogwriter/api/internal/keywords"
	"blogwriter/api/internal/llm"
	"blogwriter/api/internal/logging"
	"blogwriter/api/internal/media"
	"blogwriter/api/internal/metatags"
	"blogwriter/api/internal/publish"
	"blogwriter/api/internal/scheduler"
	"blogwriter/api/internal/search"
	"blogwriter/api/internal/session"
	"blogwriter/api/internal/store"
	"blogwriter/api/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		return err
	}

	dataStore := store.NewPostgresStore(db)
	deps := app.Deps{
		Store:     dataStore,
		Passwords: authpw.NewService(dataStore),
		Revisions: gitrepo.New(cfg.ReposDir),
		Export:    export.NewService(),
		Mailer: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}),
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		client, err := session.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		redisStore := session.NewRedisStoreWithClient(client)
		defer redisStore.Close()
		deps.Refresh = redisStore
		deps.JobCache = session.NewJobCache(client, cfg.JobCacheTTL)
		logger.Info("refresh sessions stored in redis")
	} else {
		logger.Info("refresh sessions stored in postgres")
	}

	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meili.Close()
	}
	searchService := search.NewService(meili, search.NewPgFTS(db), dataStore, logger)
	deps.Search = searchService

	var keywordProvider keywords.Provider
	if cfg.KeywordProviderEnabled() {
		keywordProvider = dataforseo.New(dataforseo.Config{
			BaseURL:  cfg.DataForSEOBaseURL,
			Login:    cfg.DataForSEOLogin,
			Password: cfg.DataForSEOPassword,
			RPS:      cfg.DataForSEORPS,
			Timeout:  30 * time.Second,
		}, logger)
	} else {
		logger.Warn("keyword provider disabled")
	}
	deps.Keywords = keywords.NewService(dataStore, keywordProvider, cfg.KeywordCacheTTL, logger)

	if cfg.BlogWriterEnabled() {
		deps.Generator = blogwriter.New(blogwriter.Config{
			BaseURL:    cfg.BlogWriterURL,
			APIKey:     cfg.BlogWriterAPIKey,
			MaxRetries: cfg.BlogWriterMaxRetries,
			RetryDelay: cfg.BlogWriterRetryDelay,
			Timeout:    cfg.BlogWriterTimeout,
		}, logger)
	} else {
		logger.Warn("generation backend disabled")
	}

	var completer metatags.Completer
	if cfg.OpenAIEnabled() {
		completer = llm.New(llm.Config{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.OpenAIModel,
			MaxRetries: 2,
		}, logger)
	}
	deps.MetaTags = metatags.NewGenerator(completer, logger)

	deps.Interlink = interlink.NewService(dataStore, logger)
	deps.Workflow = workflow.NewManager(dataStore, deps.MetaTags, deps.Interlink, logger)

	publisherClient := &http.Client{Timeout: 30 * time.Second}
	factory := func(provider string, raw json.RawMessage) (publish.Publisher, error) {
		return publish.FromIntegration(provider, raw, publisherClient)
	}
	deps.Publisher = publish.NewService(dataStore, factory, logger)
	deps.Integrations = integrations.NewService(dataStore, factory, logger)

	provider, err := mediaProvider(cfg)
	if err != nil {
		return err
	}
	if provider == nil {
		logger.Warn("media provider disabled")
	}
	deps.Media = media.NewService(dataStore, provider, logger)

	service := app.New(cfg, deps, logger)

	jobs := scheduler.New(logger)
	for _, job := range []scheduler.Job{
		scheduler.PurgeExpired(cfg.CronPurgeKeywordCache, dataStore),
		scheduler.SweepQueue(cfg.CronSweepQueue, dataStore, cfg.QueueStaleAfter, time.Now),
		scheduler.ReindexSearch(cfg.CronReindexSearch, searchService),
	} {
		if err := jobs.Add(job); err != nil {
			return err
		}
	}
	jobs.Start()

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Stream handlers clear their own write deadline.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	<-jobs.Stop().Done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	return nil
}

// mediaProvider returns nil when no storage backend is configured.
func mediaProvider(cfg config.Config) (media.Provider, error) {
	switch strings.ToLower(cfg.MediaProvider) {
	case "s3":
		if !cfg.S3Enabled() {
			return nil, nil
		}
		s3, err := media.NewS3(media.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
			PublicURL: cfg.S3PublicURL,
			Folder:    cfg.CloudinaryFolder,
		})
		if err != nil {
			return nil, err
		}
		return s3, nil
	default:
		if !cfg.CloudinaryEnabled() {
			return nil, nil
		}
		return media.NewCloudinary(media.CloudinaryConfig{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryFolder,
		}, nil), nil
	}
}
