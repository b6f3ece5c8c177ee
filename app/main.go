package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lysyi3m/sub-comb/app/api"
	"github.com/lysyi3m/sub-comb/app/auth"
	"github.com/lysyi3m/sub-comb/app/cfg"
	"github.com/lysyi3m/sub-comb/app/database"
	"github.com/lysyi3m/sub-comb/app/notify"
	"github.com/lysyi3m/sub-comb/app/poller"
	"github.com/lysyi3m/sub-comb/app/quota"
	"github.com/lysyi3m/sub-comb/app/youtube"
)

func main() {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	appCfg, args, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	command := "run"
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "version":
		fmt.Println(cfg.GetVersion())
		return
	case "run", "healthcheck":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q (expected run, healthcheck or version)\n", command)
		os.Exit(1)
	}

	slog.Info("Starting Sub Comb", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DataDir)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	migrationVersion, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "migration_version", migrationVersion, "dirty", dirty)

	credRepo := database.NewCredentialRepository(db)
	channelRepo := database.NewChannelRepository(db)
	videoRepo := database.NewVideoRepository(db)
	quotaRepo := database.NewQuotaRepository(db)

	ledger := quota.NewLedger(quotaRepo, quota.DefaultResetConfig())
	if _, err := ledger.InitializePolicy(database.ServiceYouTube); err != nil {
		slog.Error("Failed to initialize quota policy", "error", err)
		os.Exit(1)
	}

	authManager := auth.NewManager(credRepo, appCfg.ClientID, appCfg.ClientSecret,
		appCfg.Scopes, time.Duration(appCfg.RefreshMarginSeconds)*time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if command == "healthcheck" {
		os.Exit(runHealthcheck(ctx, authManager, ledger))
	}

	notifyCfg, err := notify.LoadConfig(appCfg.NotifyConfigPath)
	if err != nil {
		slog.Error("Failed to load notification config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded notification channels", "count", len(notifyCfg.Channels))
	notifier, err := notify.NewNotifier(notifyCfg)
	if err != nil {
		slog.Error("Failed to configure notification channels", "error", err)
		os.Exit(1)
	}

	clientFactory := func(ctx context.Context, accessToken string) (poller.PlatformClient, error) {
		return youtube.NewClient(ctx, accessToken, ledger)
	}

	subPoller := poller.New(authManager, ledger, channelRepo, videoRepo, notifier, clientFactory)

	handler := api.NewHandler(credRepo, channelRepo, videoRepo, ledger)
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Starting status server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Status server error", "error", err)
		}
	}()

	runErr := subPoller.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Status server shutdown error", "error", err)
	}

	if runErr != nil {
		slog.Error("Polling loop failed", "error", runErr)
		os.Exit(1)
	}

	slog.Info("Shutdown complete")
}

// runHealthcheck performs one authenticated lookup of a channel that is
// guaranteed to exist (Google Developers) and reports pass/fail via the
// exit code.
func runHealthcheck(ctx context.Context, authManager *auth.Manager, ledger *quota.Ledger) int {
	const exampleChannelID = "UC_x5XG1OV2P6uZZ5FSM9Ttw"

	cred, err := authManager.GetValidCredential(ctx, true)
	if err != nil || cred == nil {
		slog.Error("Healthcheck failed: no valid credential", "error", err)
		return 1
	}

	if _, err := ledger.InitializeUsage(database.ServiceYouTube); err != nil {
		slog.Error("Healthcheck failed: quota usage unavailable", "error", err)
		return 1
	}

	client, err := youtube.NewClient(ctx, cred.AccessToken, ledger)
	if err != nil {
		slog.Error("Healthcheck failed: cannot build client", "error", err)
		return 1
	}

	found, skipped, err := client.LookupChannels(ctx, []string{exampleChannelID})
	if err != nil {
		slog.Error("Healthcheck failed", "error", err)
		return 1
	}
	if skipped {
		slog.Error("Healthcheck failed: quota exhausted")
		return 1
	}
	if found < 1 {
		slog.Error("Healthcheck failed: healthcheck channel not found")
		return 1
	}

	slog.Info("Healthcheck passed")
	return 0
}
