package wechat

import (
	"context"
	"fmt"
	"wechat-reader/internal/core"
	"wechat-reader/internal/features/wechat/handlers"
	"wechat-reader/internal/features/wechat/migrations"
	"wechat-reader/internal/features/wechat/services"
)

// Feature represents the official-account acquisition feature
type Feature struct {
	*core.BaseFeature
	config           *Config
	migrationMgr     *migrations.Manager
	accountService   *services.AccountService
	articleService   *services.ArticleService
	credentials      *services.CredentialService
	orchestrator     *services.FetchOrchestrator
	schedulerService *services.SchedulerService
	imageStore       services.ImageStore
	redisLocker      *services.RedisLocker
	handlers         *handlers.Handlers
}

// NewFeature creates a new wechat feature. ctx bounds the connection checks of the optional
// S3 and Redis backends.
func NewFeature(ctx context.Context, logger *core.Logger, db *core.Database, config *Config) (*Feature, error) {
	if err := config.Validate(); err != nil {
		return nil, core.NewConfigurationError("invalid wechat configuration", err)
	}

	logger = logger.ForFeature("wechat")
	pipeline := config.PipelineConfig()
	client := services.NewHTTPClient()

	// Create migration manager
	migrationMgr := migrations.NewManager(db, logger)

	// Create stores
	accountService := services.NewAccountService(db, logger)
	articleService := services.NewArticleService(db, logger)
	credentials := services.NewCredentialService(db, logger, config.CredentialSecret, config.DefaultCookie, config.DefaultToken)
	if config.CredentialSecret == "" {
		logger.Warn("WXR_CREDENTIAL_SECRET is not set; stored cookies are sealed with an empty key")
	}

	imageStore, err := newImageStore(ctx, config)
	if err != nil {
		return nil, err
	}

	// Create acquisition pipeline
	platform := services.NewPlatformClient(client, config.PlatformBaseURL, logger, pipeline)
	materializer := services.NewImageMaterializer(client, imageStore, logger, pipeline)
	fetcher := services.NewArticleFetcher(client, services.NewExtractor(logger), materializer, logger, pipeline)

	available := map[string]services.Strategy{
		services.StrategyRSS:     services.NewRSSStrategy(client, logger, pipeline),
		services.StrategyPublish: services.NewPublishStrategy(services.NewPublishListFetcher(platform, logger, pipeline)),
		services.StrategyAppMsg:  services.NewAppMsgStrategy(platform, logger, pipeline),
		services.StrategySogou:   services.NewSogouStrategy(client, config.MirrorBaseURL, logger, pipeline),
	}
	acquirer := services.NewAcquirer(logger, services.BuildStrategies(config.Strategies, available, logger)...)

	// Create fetch lock
	var locker services.Locker = services.NewMemoryLocker()
	var redisLocker *services.RedisLocker
	if config.RedisAddr != "" {
		redisLocker, err = services.NewRedisLocker(ctx, config.RedisAddr, config.RedisPassword, config.RedisDB, config.LockTTL, logger)
		if err != nil {
			return nil, core.NewConfigurationError("failed to connect to redis for fetch locks", err)
		}
		locker = redisLocker
	}

	orchestrator := services.NewFetchOrchestrator(services.OrchestratorDeps{
		Accounts:    accountService,
		Articles:    articleService,
		Credentials: credentials,
		Acquirer:    acquirer,
		Fetcher:     fetcher,
		Searcher:    platform,
		Locker:      locker,
	}, logger, pipeline)

	schedulerService := services.NewSchedulerService(accountService, orchestrator, logger, config.SchedulerConfig())

	// Create handlers
	handlers := handlers.NewHandlers(logger, accountService, articleService, credentials, orchestrator)

	feature := &Feature{
		BaseFeature:      core.NewBaseFeature("wechat", "WeChat Official Account Reader", config.Enabled, logger),
		config:           config,
		migrationMgr:     migrationMgr,
		accountService:   accountService,
		articleService:   articleService,
		credentials:      credentials,
		orchestrator:     orchestrator,
		schedulerService: schedulerService,
		imageStore:       imageStore,
		redisLocker:      redisLocker,
		handlers:         handlers,
	}

	return feature, nil
}

func newImageStore(ctx context.Context, config *Config) (services.ImageStore, error) {
	switch config.ImageBackend {
	case ImageBackendS3:
		store, err := services.NewS3ImageStore(ctx, config.S3)
		if err != nil {
			return nil, core.NewConfigurationError("failed to configure s3 image store", err)
		}
		return store, nil
	default:
		store, err := services.NewLocalImageStore(config.ImageDir, config.ImagePublicPrefix)
		if err != nil {
			return nil, core.NewConfigurationError("failed to prepare image directory", err)
		}
		return store, nil
	}
}

// Init initializes the wechat feature
func (f *Feature) Init(ctx context.Context) error {
	if err := f.BaseFeature.Init(ctx); err != nil {
		return err
	}

	// Run migrations
	if err := f.migrationMgr.Migrate(ctx); err != nil {
		return err
	}

	// Start scheduler if enabled
	if f.config.SchedulerEnabled {
		if err := f.schedulerService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start wechat scheduler: %w", err)
		}
		f.Logger().Info("Wechat scheduler started")
	}

	f.Logger().Info("Wechat feature initialized successfully", "strategies", f.config.Strategies, "image_backend", f.config.ImageBackend)
	return nil
}

// Routes returns the HTTP routes for the wechat feature
func (f *Feature) Routes() []core.Route {
	return []core.Route{
		// Account management
		{Method: "GET", Path: "/wechat/accounts", Handler: f.handlers.ListAccounts},
		{Method: "POST", Path: "/wechat/accounts", Handler: f.handlers.CreateAccount},
		{Method: "GET", Path: "/wechat/accounts/search", Handler: f.handlers.SearchAccounts},
		{Method: "GET", Path: "/wechat/accounts/{id}", Handler: f.handlers.GetAccount},
		{Method: "PATCH", Path: "/wechat/accounts/{id}", Handler: f.handlers.UpdateAccount},

		// Acquisition
		{Method: "POST", Path: "/wechat/accounts/{id}/fetch", Handler: f.handlers.FetchAccount},
		{Method: "POST", Path: "/wechat/accounts/{id}/preview", Handler: f.handlers.PreviewAccount},

		// Articles
		{Method: "POST", Path: "/wechat/articles/import", Handler: f.handlers.ImportArticle},
		{Method: "PUT", Path: "/wechat/articles/{id}/progress", Handler: f.handlers.UpdateProgress},

		// Settings
		{Method: "GET", Path: "/wechat/settings/cookies", Handler: f.handlers.GetCookies},
		{Method: "PUT", Path: "/wechat/settings/cookies", Handler: f.handlers.SetCookies},
	}
}

// Shutdown gracefully shuts down the wechat feature
func (f *Feature) Shutdown(ctx context.Context) error {
	f.Logger().Info("Shutting down wechat feature")

	if f.config.SchedulerEnabled && f.schedulerService != nil {
		if err := f.schedulerService.Stop(ctx); err != nil {
			f.Logger().Error("Failed to stop wechat scheduler", "error", err)
		}
	}

	if f.redisLocker != nil {
		if err := f.redisLocker.Close(); err != nil {
			f.Logger().Error("Failed to close redis client", "error", err)
		}
	}

	return f.BaseFeature.Shutdown(ctx)
}

// LocalImageDir returns the directory served under the image prefix, or "" for remote backends
func (f *Feature) LocalImageDir() string {
	if local, ok := f.imageStore.(*services.LocalImageStore); ok {
		return local.Dir()
	}
	return ""
}

// ImagePublicPrefix returns the URL prefix of locally stored images
func (f *Feature) ImagePublicPrefix() string {
	return f.config.ImagePublicPrefix
}

// GetMigrationManager returns the migration manager for this feature
func (f *Feature) GetMigrationManager() *migrations.Manager {
	return f.migrationMgr
}

// GetAccountService returns the account service
func (f *Feature) GetAccountService() *services.AccountService {
	return f.accountService
}

// GetCredentialService returns the credential service
func (f *Feature) GetCredentialService() *services.CredentialService {
	return f.credentials
}

// GetOrchestrator returns the fetch orchestrator
func (f *Feature) GetOrchestrator() *services.FetchOrchestrator {
	return f.orchestrator
}
