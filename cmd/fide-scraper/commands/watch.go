package commands

import (
	"context"
	"errors"
	"fide-scraper/internal/components/chrono"
	"fide-scraper/internal/components/telemetry"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
)

var (
	watchSchedule string
	watchNow      bool
)

func init() {
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "", "The cron schedule of batch runs (overrides FIDE_SCHEDULE, default @daily).")
	watchCmd.Flags().BoolVar(&watchNow, "now", false, "Run a batch immediately before waiting for the schedule.")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch [--schedule <cron>] [--now]",
	Short: "Runs the batch on a schedule until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newAppFromFlags(cmd)
		if err != nil {
			return err
		}
		schedule := a.config.Schedule
		if watchSchedule != "" {
			schedule = watchSchedule
		}
		return a.watch(cmd.Context(), chrono.NewStandardCron(telemetry.NewSlogAPI(), a.config.Location), schedule, watchNow)
	},
}

const report_watch_batch = "watch.batch"

// watch runs a batch on every tick of the schedule until ctx is done. A
// failed batch is reported and the next tick runs as usual. At most one batch
// runs at a time, including the one started by `now`, a tick that arrives
// while a batch is running is skipped. A batch in flight when ctx is done
// runs to completion.
func (a *app) watch(ctx context.Context, cron chrono.CronAPI, schedule string, now bool) error {
	tel := telemetry.NewScopedAPI("watch", a.newTel("watch"))

	var running sync.Mutex
	run := func() {
		if !running.TryLock() {
			tel.ReportWarning(report_watch_batch, errors.New("previous batch still running, tick skipped"))
			return
		}
		defer running.Unlock()

		err := a.batch(context.WithoutCancel(ctx))
		if exitCode(err) != 0 {
			tel.ReportWarning(report_watch_batch, err)
		}
	}

	err := cron.Cron(schedule, run)
	if err != nil {
		<-cron.Stop().Done()
		return exit(2, fmt.Errorf("invalid schedule %q: %w", schedule, err))
	}
	tel.ReportDebug("watching", schedule)

	if now {
		run()
	}

	<-ctx.Done()
	<-cron.Stop().Done()
	return nil
}
