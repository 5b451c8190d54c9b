package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"

	"github.com/finbook/finbook/internal/audit"
	"github.com/finbook/finbook/internal/config"
	"github.com/finbook/finbook/internal/database"
	"github.com/finbook/finbook/internal/database/repository"
	"github.com/finbook/finbook/internal/logger"
	"github.com/finbook/finbook/internal/metrics"
	"github.com/finbook/finbook/internal/secrets"
	"github.com/finbook/finbook/internal/service"
	"github.com/finbook/finbook/internal/upstream"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info")
		boot.Fatal().Err(err).Msg("config")
	}
	log := logger.New(cfg.Log.Level)
	ctx := logger.WithContext(context.Background(), log)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		log.Fatal().Err(err).Msg("mkdir db dir")
	}
	if err := database.RunMigrations(cfg.Database.Path, cfg.Database.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	cipher, err := secrets.NewCipher(cfg.Secrets.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("secrets")
	}

	// repositories
	itemRepo := repository.NewLinkedItemRepo(db)
	txRepo := repository.NewTransactionRepo(db)
	catRepo := repository.NewCategoryRepo(db)
	ruleRepo := repository.NewCategoryRuleRepo(db)
	jobRepo := repository.NewSyncJobRepo(db)

	if err := catRepo.SeedDefaults(ctx, cfg.User.ID); err != nil {
		log.Fatal().Err(err).Msg("seed categories")
	}

	sink := audit.NewSQLSink(db)
	counters := metrics.NewCounters()
	client := upstream.NewHTTPClient(cfg.Upstream.BaseURL, cfg.Upstream.ClientID, cfg.Upstream.ClientSecret, cfg.Upstream.Timeout)

	syncer := &service.Syncer{
		Items:        itemRepo,
		Transactions: txRepo,
		Categories:   catRepo,
		Rules:        ruleRepo,
		Upstream:     client,
		Cipher:       cipher,
		Audit:        sink,
		Metrics:      counters,
		Source:       "plaid",
	}
	syncSvc := &service.SyncService{
		Jobs:        jobRepo,
		Items:       itemRepo,
		Syncer:      syncer,
		Audit:       sink,
		Metrics:     counters,
		MaxAttempts: cfg.Sync.MaxAttempts,
	}
	maintenance := &service.MaintenanceService{DB: db, Jobs: jobRepo}

	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler")
	}

	_, err = sched.NewJob(
		gocron.DurationJob(cfg.Sync.SweepInterval),
		gocron.NewTask(func() {
			res, err := syncSvc.ProcessDue(ctx, repository.SweepScope{}, cfg.Sync.SweepLimit)
			if err != nil {
				log.Error().Err(err).Msg("sweep")
				return
			}
			if res.Queued > 0 {
				log.Info().Int("queued", res.Queued).Int("processed", res.Processed).Msg("sweep done")
			}
		}),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("schedule sweep")
	}

	retention := time.Duration(cfg.Sync.RetentionDays) * 24 * time.Hour
	_, err = sched.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(func() {
			n, err := maintenance.PruneTerminalJobs(ctx, retention)
			if err != nil {
				log.Error().Err(err).Msg("prune jobs")
				return
			}
			if n > 0 {
				log.Info().Int64("pruned", n).Msg("terminal jobs pruned")
			}
		}),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("schedule prune")
	}

	sched.Start()
	log.Info().Dur("sweep_interval", cfg.Sync.SweepInterval).Msg("finbook worker started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	_ = sched.Shutdown()
	log.Info().Interface("counters", counters.Snapshot()).Msg("finbook worker stopped")
}
