// Command vgctl is the connector's one-shot operations CLI.
//
// Usage:
//
//	vgctl poll
//	vgctl member 12345
//	vgctl total
//	vgctl report
//
// Each command builds the same collaborators as the service, runs a single
// cycle of the requested job, and exits. The daily job commands do not
// consume the once-per-day gates.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

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

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "vgctl",
		Short: "Virtuagym connector operations CLI",
	}

	root.AddCommand(pollCmd())
	root.AddCommand(memberCmd())
	root.AddCommand(totalCmd())
	root.AddCommand(reportCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// deps holds the collaborators a one-shot command needs.
type deps struct {
	cfg        *config.Config
	zone       civiltime.Zone
	vg         *virtuagym.Client
	dispatcher *notify.Dispatcher
	engine     *status.Engine
	store      *state.Store
	cooldown   *guard.Cooldown
}

func buildDeps() (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	zone, err := civiltime.Load(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	vg := virtuagym.NewClient(cfg.VirtuagymBaseURL, cfg.ClubID, cfg.APIKey, cfg.ClubSecret,
		cfg.UpstreamRequestsPerMinute, logger)
	hm := homey.NewClient(cfg.HomeyURL, logger)
	cooldown := guard.NewCooldown(cfg.CooldownDuration, logger)
	engine := status.NewEngine(vg, zone, cfg.ExcludedMemberships, logger)
	engine.Throttle = cooldown

	return &deps{
		cfg:        cfg,
		zone:       zone,
		vg:         vg,
		dispatcher: notify.NewDispatcher(hm, zone, logger),
		engine:     engine,
		store:      state.NewStore(time.Now()),
		cooldown:   cooldown,
	}, nil
}

// --------------------------------------------------------------------------
// poll command
// --------------------------------------------------------------------------

func pollCmd() *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Run a single poll cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps()
			if err != nil {
				return err
			}
			// A fresh store's watermark is "now"; back-date it so the
			// one-shot cycle has something to pick up.
			if since > 0 {
				d.store = state.NewStore(time.Now().Add(-since))
			}
			p := poller.New(poller.Options{
				Visits:          d.vg,
				Enricher:        d.engine,
				Dispatcher:      d.dispatcher,
				Cooldown:        d.cooldown,
				Store:           d.store,
				SpikeThreshold:  d.cfg.SpikeThreshold,
				InterEventDelay: d.cfg.InterEventDelay,
				Logger:          logger,
			})
			p.Poll(cmd.Context())
			logger.Info("Poll cycle finished", "watermark", d.store.Watermark())
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 0, "back-date the watermark by this much (e.g. 1h)")
	return cmd
}

// --------------------------------------------------------------------------
// member command
// --------------------------------------------------------------------------

func memberCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "member <id>",
		Short: "Print derived status for a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid member id %q: %w", args[0], err)
			}
			d, err := buildDeps()
			if err != nil {
				return err
			}
			st := d.engine.Derive(cmd.Context(), memberID)
			fmt.Printf("name:      %s\n", st.DisplayName)
			fmt.Printf("birthday:  %t\n", st.Birthday)
			fmt.Printf("new:       %t\n", st.NewMember)
			if st.ExpiringEnd != nil {
				fmt.Printf("expiring:  %s\n", st.ExpiringEnd.Format("2006-01-02"))
			} else {
				fmt.Printf("expiring:  none\n")
			}
			return nil
		},
	}
}

// --------------------------------------------------------------------------
// daily job commands
// --------------------------------------------------------------------------

func totalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "total",
		Short: "Send today's unique-visit total now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), func(ctx context.Context, s *daily.Scheduler) error {
				return s.RunTotal(ctx, true)
			})
		},
	}
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Send the expiring-contract report now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), func(ctx context.Context, s *daily.Scheduler) error {
				return s.RunReport(ctx, true)
			})
		},
	}
}

func runJob(ctx context.Context, job func(context.Context, *daily.Scheduler) error) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}
	scheduler := daily.New(daily.Options{
		Visits:           d.vg,
		Enricher:         d.engine,
		Dispatcher:       d.dispatcher,
		Store:            d.store,
		Zone:             d.zone,
		ReportCooldown:   d.cfg.ReportCooldown,
		MemberCheckDelay: d.cfg.MemberCheckDelay,
		Logger:           logger,
	})
	return job(ctx, scheduler)
}
