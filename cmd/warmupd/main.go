// Command warmupd runs the email warmup orchestration engine: it loads
// configuration, connects to the database, wires up mail client adapters
// and the six periodic components, then serves /healthz and /metrics
// until told to shut down.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"warmup-engine/internal/calendar"
	"warmup-engine/internal/config"
	"warmup-engine/internal/content"
	"warmup-engine/internal/dayadvancer"
	"warmup-engine/internal/dispatcher"
	"warmup-engine/internal/engagement"
	"warmup-engine/internal/mailclient"
	"warmup-engine/internal/mailclient/gmail"
	"warmup-engine/internal/mailclient/imap"
	"warmup-engine/internal/metrics"
	"warmup-engine/internal/models"
	"warmup-engine/internal/orchestrator"
	"warmup-engine/internal/planner"
	"warmup-engine/internal/ratelimit"
	"warmup-engine/internal/replymatcher"
	"warmup-engine/internal/scorer"
	"warmup-engine/internal/server"
	"warmup-engine/internal/spamrecovery"
	"warmup-engine/internal/store"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("starting warmup engine")

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("configuration validation failed: %v", err)
	}

	db, err := initDatabase(cfg.Database)
	if err != nil {
		logrus.Fatalf("failed to initialize database: %v", err)
	}

	m := metrics.New()
	s := store.New(db)

	registry := mailclient.NewRegistry()
	if cfg.Gmail.ClientID != "" {
		registry.Register(models.ProviderGmail, gmail.New(cfg.Gmail.ClientID, cfg.Gmail.ClientSecret))
	}
	registry.Register(models.ProviderIMAP, imap.New(cfg.IMAP.Host, cfg.IMAP.Port, cfg.IMAP.SMTPHost, cfg.IMAP.SMTPPort))

	gen := buildContentGenerator(cfg)

	hours := calendar.BusinessHours{StartHour: cfg.Business.StartHour, EndHour: cfg.Business.EndHour}
	weights := planner.BandWeights{Peak: cfg.Bands.PeakWeight, Normal: cfg.Bands.NormalWeight, Low: cfg.Bands.LowWeight}
	plan := planner.New(weights, hours)
	limiter := ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	dispatchCfg := dispatcher.DefaultConfig()
	dispatchCfg.GraceWindow = cfg.Plan.GraceWindow
	dispatchCfg.FireWindow = cfg.Plan.FireWindow
	dispatch := dispatcher.New(s, plan, registry, gen, limiter, calendar.RealClock{}, hours, dispatchCfg, m)

	engagementCfg := engagement.DefaultConfig()
	engagementCfg.OpenDelayMin = cfg.Engagement.OpenDelayMin
	engagementCfg.OpenDelayMax = cfg.Engagement.OpenDelayMax
	engagementCfg.ReplyDelayMin = cfg.Engagement.ReplyDelayMin
	engagementCfg.ReplyDelayMax = cfg.Engagement.ReplyDelayMax
	engagementCfg.StarProbability = cfg.Engagement.StarProb
	engage := engagement.New(s, registry, engagementCfg, m)

	replies := replymatcher.New(s, registry, m)
	spam := spamrecovery.New(s, registry, m)
	advancer := dayadvancer.New(s, m)
	score := scorer.New(s, scorer.Config{Window: cfg.Score.Window}, m)

	orch := orchestrator.New(s, cfg.Schedule, cfg.Plan, orchestrator.Components{
		Dispatch:   dispatch,
		Engagement: engage,
		Replies:    replies,
		Spam:       spam,
		Advancer:   advancer,
		Score:      score,
	})

	if err := orch.Start(); err != nil {
		logrus.Fatalf("failed to start orchestrator: %v", err)
	}

	httpServer := server.New(":"+cfg.Server.Port, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, db, orch)
	httpErrs := httpServer.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logrus.Info("shutdown signal received")
	case err := <-httpErrs:
		logrus.WithError(err).Error("http server error, shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := orch.Stop(); err != nil {
		logrus.WithError(err).Error("failed to stop orchestrator")
	}
	orch.Wait()

	if err := httpServer.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("http server shutdown error")
	}

	logrus.Info("warmup engine stopped gracefully")
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormLogger := logger.New(
		logrus.StandardLogger(),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(mysql.Open(cfg.GetDSN()), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql db: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	logrus.Info("database initialized successfully")
	return db, nil
}

func buildContentGenerator(cfg *config.Config) content.Generator {
	var filler content.Filler
	if cfg.OpenAI.APIKey != "" {
		filler = content.NewOpenAIFiller(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	}
	return content.NewTemplateGenerator(content.DefaultTemplates(), content.DefaultPlaceholders(), filler, content.Ratios{
		PureTemplate:   0.5,
		TemplateAIFill: 0.3,
		AISeeded:       0.2,
	})
}
