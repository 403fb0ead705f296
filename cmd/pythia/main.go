package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/XavierBriggs/pythia/internal/audit"
	"github.com/XavierBriggs/pythia/internal/config"
	"github.com/XavierBriggs/pythia/internal/decision"
	"github.com/XavierBriggs/pythia/internal/flags"
	"github.com/XavierBriggs/pythia/internal/handlers"
	"github.com/XavierBriggs/pythia/internal/integrity"
	"github.com/XavierBriggs/pythia/internal/metrics"
	"github.com/XavierBriggs/pythia/internal/orchestrator"
	"github.com/XavierBriggs/pythia/internal/parlay"
	"github.com/XavierBriggs/pythia/internal/providers/oddsapi"
	"github.com/XavierBriggs/pythia/internal/publisher"
	"github.com/XavierBriggs/pythia/internal/sentinel"
	"github.com/XavierBriggs/pythia/internal/settlement"
	"github.com/XavierBriggs/pythia/internal/signal"
	"github.com/XavierBriggs/pythia/internal/sim"
	"github.com/XavierBriggs/pythia/internal/store"
	"github.com/XavierBriggs/pythia/internal/ws"
)

func main() {
	fmt.Println("=== Pythia Decision Engine ===")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("❌ Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	leagues, err := config.LoadLeagues(cfg.LeagueConfigPath)
	if err != nil {
		fmt.Printf("❌ Invalid league config: %v\n", err)
		os.Exit(1)
	}

	profiles, err := parlay.LoadProfiles(cfg.ParlayConfigPath)
	if err != nil {
		fmt.Printf("❌ Invalid parlay config: %v\n", err)
		os.Exit(1)
	}

	alexandriaDB, err := store.Open(cfg.AlexandriaDSN)
	if err != nil {
		fmt.Printf("❌ Failed to connect to Alexandria: %v\n", err)
		os.Exit(5)
	}
	defer alexandriaDB.Close()
	fmt.Println("✓ Connected to Alexandria DB")

	holocronDB, err := store.Open(cfg.HolocronDSN)
	if err != nil {
		fmt.Printf("❌ Failed to connect to Holocron: %v\n", err)
		os.Exit(5)
	}
	defer holocronDB.Close()
	fmt.Println("✓ Connected to Holocron DB")

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		fmt.Printf("❌ Failed to parse Redis URL: %v\n", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		fmt.Printf("❌ Failed to connect to Redis: %v\n", err)
		os.Exit(5)
	}
	fmt.Println("✓ Connected to Redis")

	reg := metrics.New()
	guard := store.NewGuard(reg)
	stores := store.New(alexandriaDB, holocronDB, guard)

	flagSvc := flags.NewService(stores.Flags)
	seedFlags(ctx, stores)

	auditor := audit.NewService(stores.Audit)
	engine := sim.NewEngine(leagues, reg, cfg.SimWallClockLimit)
	computer := decision.NewComputer(leagues, reg)
	validator := integrity.NewValidator(leagues, stores.Alerts, reg)

	provider := oddsapi.NewClient(cfg.OddsAPIBaseURL, cfg.OddsAPIKey)

	telegram := publisher.NewTelegramClient(cfg.TelegramToken, cfg.TelegramChatID)
	copyValidator := publisher.NewCopyValidator(config.ForbiddenPhrases)
	pub := publisher.New(redisClient, stores, flagSvc, telegram, copyValidator, auditor, reg, cfg.PublishMaxAge, cfg.PublishWindowSize)

	machine := signal.NewMachine(stores, engine, computer, validator, auditor, leagues, pub)
	settler := settlement.NewEngine(stores, provider, auditor, reg)
	constructor := parlay.NewConstructor(stores, leagues, profiles, auditor, reg)

	rollback := sentinel.NewRollback(redisClient, flagSvc, publisher.StreamName)
	slack := sentinel.NewSlackNotifier(cfg.SlackWebhookURL)
	watch := sentinel.New(reg, flagSvc, stores.Alerts, slack, rollback, auditor, cfg.SentinelInterval)

	hub := ws.NewHub()

	orch := orchestrator.New(orchestrator.Config{
		OddsPollInterval:        cfg.OddsPollInterval,
		SettlementSweepInterval: cfg.SettlementSweepInterval,
		CalibrationSchedule:     cfg.CalibrationSchedule,
	}, stores, provider, machine, settler, hub)

	handler := handlers.New(stores, engine, computer, validator, constructor, settler, flagSvc, redisClient, cfg.DefaultIterations)
	router := handlers.NewRouter(handler, reg.Handler(), hub.HandleWS, cfg.CORSOrigins)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		fmt.Printf("✓ API listening on :%s\n", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("❌ HTTP server error: %v\n", err)
			cancel()
		}
	}()

	go orch.Start(ctx)
	go func() {
		if err := pub.Run(ctx); err != nil {
			fmt.Printf("❌ Publisher error: %v\n", err)
		}
	}()
	go func() {
		if err := watch.Run(ctx); err != nil {
			fmt.Printf("❌ Sentinel error: %v\n", err)
		}
	}()

	fmt.Println("✓ Orchestrator, publisher and sentinel started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\n✓ Shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("⚠️  HTTP shutdown: %v\n", err)
	}

	time.Sleep(2 * time.Second)
	fmt.Println("✓ Pythia stopped")
}

// seedFlags inserts flag defaults on first boot; existing values are never
// overwritten, so a sentinel kill switch survives restarts
func seedFlags(ctx context.Context, stores *store.Stores) {
	defaults := map[string]bool{
		store.FlagPublisherAutopublish: true,
		store.FlagIntegritySentinel:    true,
		store.FlagParlayEnabled:        true,
		store.FlagAutorollback:         false,
		store.FlagLLMCopyAgent:         false,
	}
	for name, enabled := range defaults {
		if err := stores.Flags.SeedDefault(ctx, store.CallerSentinel, name, enabled); err != nil {
			fmt.Printf("⚠️  Seed flag %s: %v\n", name, err)
		}
	}
}
