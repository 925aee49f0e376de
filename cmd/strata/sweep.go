package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/strata-store/strata"
	"github.com/strata-store/strata/internal/cli"
)

var (
	sweepDB       string
	sweepInterval time.Duration
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reclaim expired leases",
	Long: `Delete leases past their expiry time.

Without --interval the sweep runs once and exits. With --interval the
command keeps running, sweeping on each tick, until interrupted.`,
	Example: `  # Sweep once
  strata sweep --db postgres://localhost/mydb

  # Sweep every five minutes
  strata sweep --db postgres://localhost/mydb --interval 5m`,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval := sweepInterval
		if interval == 0 {
			interval = cfg.Sweep.Interval
		}
		dsn, err := resolveDSN(sweepDB)
		if err != nil {
			return err
		}
		return runSweep(dsn, interval)
	},
}

func init() {
	f := sweepCmd.Flags()
	f.StringVar(&sweepDB, "db", "", "database URL")
	f.DurationVar(&sweepInterval, "interval", 0, "sweep repeatedly at this interval (0 sweeps once)")
}

func runSweep(dsn string, interval time.Duration) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return cli.DBConnectError("connecting to database", err)
	}
	defer func() { _ = db.Close() }()

	store := strata.Open(db, strata.WithLogger(logger))
	ctx := context.Background()

	sweepOnce := func() error {
		n, err := store.SweepLeases(ctx, time.Now().UTC())
		if err != nil {
			return cli.GeneralError("sweeping leases", err)
		}
		logger.Info().Int64("reclaimed", n).Msg("sweep complete")
		return nil
	}

	if err := sweepOnce(); err != nil {
		return err
	}
	if interval == 0 {
		return nil
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := sweepOnce(); err != nil {
				return err
			}
		case <-stop:
			logger.Info().Msg("sweep stopped")
			return nil
		}
	}
}
