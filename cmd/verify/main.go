// The verify command audits the static data directory after a manual
// collection phase: per source, which files exist, how many records
// they hold and over which period. The outcome is a Markdown report
// next to the data.
package main

import (
	"flag"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"valencia-data-detective/logging"
	"valencia-data-detective/verify"
)

func main() {
	dataDir := flag.String("data-dir", "data", "root data directory, sources live under estaticos/")
	flag.Parse()

	if err := logging.Init(envOr("LOG_LEVEL", "info"), ""); err != nil {
		log.Fatalf("logging: %v", err)
	}

	reports := verify.Run(filepath.Join(*dataDir, "estaticos"))

	path, err := verify.WriteReport(*dataDir, time.Now(), reports)
	if err != nil {
		log.Fatalf("write report: %v", err)
	}

	empty := 0
	for _, rep := range reports {
		if !rep.Dir.Exists || !rep.Dir.HasData {
			empty++
			log.WithField("source", rep.Source.Key).Warn("source directory has no data")
		}
	}
	log.WithFields(log.Fields{
		"path":    path,
		"sources": len(reports),
		"empty":   empty,
	}).Info("verification report written")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
