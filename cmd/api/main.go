package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	httpadp "halonet-payments/internal/adapter/http"
	"halonet-payments/internal/adapter/middleware"
	"halonet-payments/internal/adapter/notify"
	"halonet-payments/internal/adapter/provider"
	"halonet-payments/internal/adapter/realtime"
	"halonet-payments/internal/adapter/repository/mysql"
	"halonet-payments/internal/adapter/twofactor"
	"halonet-payments/internal/config"
	"halonet-payments/internal/domain/events"
	"halonet-payments/internal/infrastructure/cache"
	"halonet-payments/internal/infrastructure/db"
	"halonet-payments/internal/infrastructure/logging"
	"halonet-payments/internal/infrastructure/pubsub"
	"halonet-payments/internal/infrastructure/storage"
	"halonet-payments/internal/infrastructure/vault"
	"halonet-payments/internal/usecase/approval"
	"halonet-payments/internal/usecase/batch"
	"halonet-payments/internal/usecase/company"
	"halonet-payments/internal/usecase/risk"
	"halonet-payments/internal/usecase/submission"
	"halonet-payments/internal/usecase/webhook"
)

func main() {
	log := logging.L()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("config: invalid")
	}
	logging.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sealer, err := vault.NewSealer(cfg.VaultKey)
	if err != nil {
		log.WithError(err).Fatal("vault: sealer")
	}
	vault.Use(sealer)

	gdb, err := db.OpenGorm(cfg.MySQLDSN())
	if err != nil {
		log.WithError(err).Fatal("mysql: connect")
	}
	if cfg.AutoMigrate {
		if err := mysql.Migrate(gdb); err != nil {
			log.WithError(err).Fatal("mysql: migrate")
		}
	}
	rdb, err := cache.OpenRedis(cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		log.WithError(err).Fatal("redis: connect")
	}
	defer rdb.Close()

	notifier := newNotifier(ctx, cfg)
	publisher, feed := newFanout(cfg, rdb)
	providers := newProviders(ctx, cfg)
	archive := newArchive(ctx, cfg)

	tx := mysql.NewGormUoW(gdb)
	batches := mysql.NewBatchRepository(gdb)
	entries := mysql.NewEntryRepository(gdb)
	settings := mysql.NewCompanyRepository(gdb)
	approvals := mysql.NewApprovalRepository(gdb)
	controls := mysql.NewRiskControlRepository(gdb)
	riskEvents := mysql.NewRiskEventRepository(gdb)

	eval := risk.NewEvaluator(controls, batches)
	riskSvc := risk.NewService(tx, eval, controls, riskEvents, batches, entries, notifier, publisher)
	batchUC := batch.NewUsecase(tx, batches, entries, settings, eval, publisher)
	approvalUC := approval.NewUsecase(tx, approvals, batches, settings,
		twofactor.NewRedisCodes(rdb, bcrypt.DefaultCost), notifier, publisher)
	submitUC := submission.NewUsecase(tx, batches, entries, settings, providers, cache.NewLocker(rdb),
		archive, notifier, publisher, submission.Options{
			Timeout:     cfg.SubmitTimeout,
			MaxRetries:  cfg.SubmitMaxRetries,
			MaxAttempts: cfg.MaxSubmissionAttempts,
			ODFIRouting: cfg.ODFIRouting,
			ODFIName:    cfg.ODFIName,
		})
	providerIDs := make([]string, 0, len(providers))
	for _, p := range providers {
		providerIDs = append(providerIDs, p.ID())
	}
	companyUC := company.NewUsecase(settings, providerIDs)
	webhookUC := webhook.NewUsecase(mysql.NewWebhookRepository(gdb), submitUC)

	limiter, err := middleware.NewLimiter(cfg.ApprovalRate)
	if err != nil {
		log.WithError(err).Fatal("config: APPROVAL_RATE_LIMIT")
	}
	scope := &httpadp.Scope{Batches: batches, Entries: entries, Approvals: approvals, Events: riskEvents}

	e := echo.New()
	e.HideBanner = true
	e.Validator = httpadp.NewValidator()
	e.Use(echomw.Recover(), middleware.RequestLogger)

	httpadp.Register(e, httpadp.Routes{
		JWTSecret:       cfg.JWTSecret,
		Redis:           rdb,
		IdempotencyTTL:  time.Duration(cfg.IdempTTLSecs) * time.Second,
		ApprovalLimiter: limiter,
		Health:          httpadp.NewHandler(healthChecks(gdb, rdb)),
		Companies:       httpadp.NewCompanyHandler(companyUC, webhookUC),
		Batches:         httpadp.NewBatchHandler(batchUC, scope),
		Risk:            httpadp.NewRiskHandler(riskSvc, scope),
		Approvals:       httpadp.NewApprovalHandler(approvalUC, scope),
		Submissions:     httpadp.NewSubmissionHandler(submitUC, scope),
		Webhooks:        httpadp.NewWebhookHandler(webhookUC),
		Changes:         httpadp.NewChangesHandler(feed, 0),
	})

	go func() {
		addr := ":" + cfg.AppPort
		log.WithField("addr", addr).Info("http: listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http: server stopped")
		}
	}()

	<-ctx.Done()
	shutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdown); err != nil {
		log.WithError(err).Error("http: shutdown")
	}
	log.Info("http: stopped")
}

func newProviders(ctx context.Context, cfg *config.Config) []submission.Provider {
	var out []submission.Provider
	if cfg.ProviderBaseURL != "" {
		p, err := provider.NewHTTP(ctx, provider.HTTPConfig{
			ID:           "primary",
			BaseURL:      cfg.ProviderBaseURL,
			APIKey:       cfg.ProviderAPIKey,
			TokenURL:     cfg.ProviderTokenURL,
			ClientID:     cfg.ProviderClientID,
			ClientSecret: cfg.ProviderClientSecret,
			Timeout:      cfg.SubmitTimeout,
		})
		if err != nil {
			logging.L().WithError(err).Fatal("provider: http")
		}
		out = append(out, p)
	}
	if cfg.ProviderSandbox {
		out = append(out, provider.NewSandbox())
	}
	return out
}

func newNotifier(ctx context.Context, cfg *config.Config) events.Notifier {
	if cfg.PubSubProjectID == "" {
		return notify.Log{}
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID, cfg.GCPCredentialJSON)
	if err != nil {
		logging.L().WithError(err).Fatal("pubsub: client")
	}
	topic, err := pubsub.EnsureTopic(ctx, client, cfg.PubSubTopic)
	if err != nil {
		logging.L().WithError(err).Fatal("pubsub: topic")
	}
	var direct *gpubsub.Topic
	if cfg.PubSubDirectTopic != "" {
		if direct, err = pubsub.EnsureTopic(ctx, client, cfg.PubSubDirectTopic); err != nil {
			logging.L().WithError(err).Fatal("pubsub: direct topic")
		}
	}
	return notify.Multi{notify.Log{}, notify.NewPubSub(topic, direct)}
}

func newFanout(cfg *config.Config, rdb *redis.Client) (events.Publisher, events.Feed) {
	if cfg.ChangesFanout == "memory" {
		hub := realtime.NewHub()
		return hub, hub
	}
	r := realtime.NewRedis(rdb)
	return r, r
}

// newArchive returns a nil interface, not a nil *storage.Archive, when archiving is off.
func newArchive(ctx context.Context, cfg *config.Config) submission.Archiver {
	if cfg.NachaBucket == "" {
		return nil
	}
	client, err := storage.NewClient(ctx, cfg.GCPCredentialJSON)
	if err != nil {
		logging.L().WithError(err).Fatal("gcs: client")
	}
	return storage.NewArchive(client, cfg.NachaBucket)
}

func healthChecks(gdb *gorm.DB, rdb *redis.Client) map[string]httpadp.Check {
	return map[string]httpadp.Check{
		"mysql": func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
}
