// The probe command answers one question about the DGT DATEX II
// endpoints: whether historical traffic data can be pulled from them.
// It downloads each feed once, analyzes the document structure and
// documents the findings, keeping truncated XML samples alongside.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"valencia-data-detective/collector"
	"valencia-data-detective/config"
	"valencia-data-detective/logging"
	"valencia-data-detective/probe"
)

func main() {
	dataDir := flag.String("data-dir", "data", "root data directory, findings land under estaticos/trafico")
	catalogPath := flag.String("catalog", "", "optional YAML endpoint catalog")
	timeout := flag.Duration("timeout", 60*time.Second, "per-request timeout")
	flag.Parse()

	if err := logging.Init(envOr("LOG_LEVEL", "info"), ""); err != nil {
		log.Fatalf("logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := config.LoadCatalog(*catalogPath)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}

	dir := filepath.Join(*dataDir, "estaticos", "trafico")
	prober := &probe.Prober{Client: collector.New(*timeout), Dir: dir}

	results := prober.Investigate(ctx, []probe.Endpoint{
		{Name: "datos_trafico", URL: cat.DGT.TrafficData},
		{Name: "incidencias", URL: cat.DGT.Situations},
		{Name: "camaras", URL: cat.DGT.CCTV},
	})

	path, err := probe.WriteReadme(dir, time.Now(), results)
	if err != nil {
		log.Fatalf("write findings: %v", err)
	}
	log.WithField("path", path).Info("investigation documented")

	for _, inv := range results {
		if inv.Analysis.HasHistorical {
			log.WithField("endpoint", inv.Name).Warn("endpoint advertises historical data, review the findings document")
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
