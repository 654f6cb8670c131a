// Command connector is the long-running Virtuagym→Homey sync service.
//
// Usage:
//
//	connector
//	API_PORT=8080 connector
//
// Required environment: CLUB_ID, API_KEY, CLUB_SECRET. HOMEY_URL enables
// notification delivery; without it the connector syncs but delivers
// nowhere.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/martijnchel/vg-homey-connector/internal/api"
	"github.com/martijnchel/vg-homey-connector/internal/civiltime"
	"github.com/martijnchel/vg-homey-connector/internal/config"
	"github.com/martijnchel/vg-homey-connector/internal/daily"
	"github.com/martijnchel/vg-homey-connector/internal/feed/virtuagym"
	"github.com/martijnchel/vg-homey-connector/internal/guard"
	"github.com/martijnchel/vg-homey-connector/internal/homey"
	"github.com/martijnchel/vg-homey-connector/internal/notify"
	"github.com/martijnchel/vg-homey-connector/internal/poller"
	"github.com/martijnchel/vg-homey-connector/internal/state"
	"github.com/martijnchel/vg-homey-connector/internal/status"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	zone, err := civiltime.Load(cfg.Timezone)
	if err != nil {
		logger.Error("Failed to load club timezone", "error", err)
		os.Exit(1)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Collaborators
	vg := virtuagym.NewClient(cfg.VirtuagymBaseURL, cfg.ClubID, cfg.APIKey, cfg.ClubSecret,
		cfg.UpstreamRequestsPerMinute, logger)
	hm := homey.NewClient(cfg.HomeyURL, logger)
	if !hm.Configured() {
		logger.Warn("HOMEY_URL not set, notifications will be dropped")
	}

	// Process-memory state. The watermark starts at "now": events before
	// startup are never notified.
	store := state.NewStore(time.Now())
	cooldown := guard.NewCooldown(cfg.CooldownDuration, logger)
	dispatcher := notify.NewDispatcher(hm, zone, logger)

	engine := status.NewEngine(vg, zone, cfg.ExcludedMemberships, logger)
	engine.Throttle = cooldown

	p := poller.New(poller.Options{
		Visits:          vg,
		Enricher:        engine,
		Dispatcher:      dispatcher,
		Cooldown:        cooldown,
		Store:           store,
		SpikeThreshold:  cfg.SpikeThreshold,
		InterEventDelay: cfg.InterEventDelay,
		Logger:          logger,
	})
	scheduler := daily.New(daily.Options{
		Visits:           vg,
		Enricher:         engine,
		Dispatcher:       dispatcher,
		Store:            store,
		Zone:             zone,
		ReportCooldown:   cfg.ReportCooldown,
		MemberCheckDelay: cfg.MemberCheckDelay,
		Logger:           logger,
	})

	go p.Run(ctx, cfg.PollInterval)
	go scheduler.Run(ctx, cfg.ScheduleCheckInterval)

	// HTTP surface
	router := api.NewRouter(store, cooldown, scheduler, cfg)
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting Virtuagym connector",
			"addr", addr,
			"club_id", cfg.ClubID,
			"timezone", cfg.Timezone,
			"poll_interval", cfg.PollInterval)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
