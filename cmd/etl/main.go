// The etl command cleans the raw captures into the analysis datasets.
// It runs the full pipeline once by default, or keeps it on a fixed
// schedule with -mode=scheduled for unattended operation.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"

	"valencia-data-detective/config"
	"valencia-data-detective/etl"
	"valencia-data-detective/logging"
)

func main() {
	mode := flag.String("mode", "once", "run mode: once or scheduled")
	flag.Parse()

	cfg, err := config.LoadETLConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := logging.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		log.Fatalf("logging: %v", err)
	}

	paths := etl.Paths{
		RawDir:     cfg.RawDir,
		CleanDir:   cfg.CleanDir,
		EventsFile: cfg.EventsFile,
	}

	switch *mode {
	case "once":
		if !runPipeline(paths, cfg.DatabaseDSN) {
			os.Exit(1)
		}
	case "scheduled":
		runScheduled(paths, cfg.Interval, cfg.DatabaseDSN)
	default:
		log.Fatalf("unknown mode %q, use once or scheduled", *mode)
	}
}

// runPipeline executes every stage and validates the outputs,
// reporting whether all stages completed. Validation problems are
// warnings: a partially filled output tree is still usable. With a
// DSN configured the cleaned datasets are also mirrored to Postgres;
// a mirror failure does not fail the run, the files already landed.
func runPipeline(paths etl.Paths, dsn string) bool {
	ok := true
	for _, res := range etl.Run(paths) {
		if res.State == etl.StageFailed {
			ok = false
		}
	}
	for _, check := range etl.ValidateOutputs(paths) {
		if !check.Passed {
			log.Warnf("output check failed for %s: %s", check.Path, check.Problem)
		}
	}
	if dsn != "" {
		if err := etl.LoadDatabase(dsn, paths); err != nil {
			log.Errorf("database mirror: %v", err)
		}
	}
	return ok
}

func runScheduled(paths etl.Paths, interval time.Duration, dsn string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := gocron.NewScheduler(time.UTC)

	// SingletonMode keeps a slow run from overlapping the next slot.
	_, err := scheduler.Every(interval).SingletonMode().Do(func() {
		if !runPipeline(paths, dsn) {
			log.Error("scheduled pipeline run finished with failed stages")
		}
	})
	if err != nil {
		log.Fatalf("scheduler: %v", err)
	}

	log.WithField("interval", interval.String()).Info("etl scheduler running")
	scheduler.StartAsync()

	<-ctx.Done()
	scheduler.Stop()
	log.Info("etl scheduler stopped")
}
