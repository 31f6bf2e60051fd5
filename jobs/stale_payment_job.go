package jobs

import (
	"context"
	"log"
	"time"

	"github.com/anjiri1684/transport_portal/services"
	"github.com/robfig/cron/v3"
)

type Sweeper interface {
	Sweep(ctx context.Context, ttl time.Duration) (services.SweepReport, error)
}

// SweepStalePayments reconciles pending payments older than ttl.
func SweepStalePayments(sweeper Sweeper, ttl time.Duration) func() {
	return func() {
		log.Println("Running job: SweepStalePayments...")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		report, err := sweeper.Sweep(ctx, ttl)
		if err != nil {
			log.Printf("Error sweeping stale payments: %v", err)
			return
		}
		if report.Checked == 0 {
			return
		}
		log.Printf("Swept %d stale payments: %d confirmed, %d failed, %d errors",
			report.Checked, report.Confirmed, report.Failed, report.Errors)
	}
}

// ScheduleSweep registers the sweep on c; overlapping runs are skipped.
func ScheduleSweep(c *cron.Cron, schedule string, sweeper Sweeper, ttl time.Duration) (cron.EntryID, error) {
	job := cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).
		Then(cron.FuncJob(SweepStalePayments(sweeper, ttl)))
	return c.AddJob(schedule, job)
}
