// The capture daemon polls the upstream Valencia feeds on a fixed
// interval: DGT measured traffic data and situations, GVA air quality
// stations, the AQICN index feeds and OpenWeatherMap. Measurements
// accumulate into a deduplicated CSV, everything else lands as
// timestamped raw snapshots for the ETL pipeline. The DGT camera site
// inventory is captured once per run.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"valencia-data-detective/collector"
	"valencia-data-detective/config"
	"valencia-data-detective/datex"
	"valencia-data-detective/logging"
	"valencia-data-detective/store"
)

// Upstream API roots that take no per-deployment override. The DGT
// and GVA endpoints come from the catalog instead because they have
// changed before.
const (
	aqicnBaseURL       = "https://api.waqi.info"
	openWeatherBaseURL = "https://api.openweathermap.org/data/2.5"
)

var (
	cyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "valencia_capture_cycles_total",
		Help: "Total number of capture cycles completed.",
	})
	fetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "valencia_capture_fetch_failures_total",
		Help: "Total number of failed fetch passes per source.",
	}, []string{"source"})
	rowsAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "valencia_capture_rows_appended_total",
		Help: "Total number of measurement rows appended to the accumulated CSV.",
	})
	rowsDuplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "valencia_capture_rows_duplicated_total",
		Help: "Total number of measurement rows dropped as already captured.",
	})
	snapshotsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "valencia_capture_snapshots_written_total",
		Help: "Total number of raw snapshots written per source.",
	}, []string{"source"})
	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "valencia_capture_cycle_duration_seconds",
		Help:    "Duration of a full capture cycle across all sources.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
	})
)

type daemon struct {
	cfg     *config.CaptureConfig
	catalog *config.Catalog
	secrets config.Secrets
	client  *collector.Client
	runner  *collector.Runner
	acc     *store.Accumulator
	snaps   *store.SnapshotWriter
	sink    *store.PostgresSink
	live    *store.LivePublisher

	// The camera site table is static metadata, captured once per
	// daemon run instead of every cycle.
	camerasDone bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadCaptureConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := logging.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		log.Fatalf("logging: %v", err)
	}

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		log.Fatalf("secrets: %v", err)
	}
	if secrets.AQIToken == "" {
		log.Warn("AQI_TOKEN not set, AQICN capture disabled")
	}
	if secrets.OpenWeatherKey == "" {
		log.Warn("OPENWEATHER_API_KEY not set, OpenWeather capture disabled")
	}

	acc, err := store.OpenAccumulator(store.DefaultAccumulatorPath(cfg.DataDir))
	if err != nil {
		log.Fatalf("accumulator: %v", err)
	}
	log.WithFields(log.Fields{"path": acc.Path(), "rows": acc.Size()}).Info("accumulator ready")

	var sink *store.PostgresSink
	if cfg.DatabaseDSN != "" {
		sink, err = store.NewPostgresSink(ctx, cfg.DatabaseDSN)
		if err != nil {
			log.Warnf("database mirror disabled: %v", err)
			sink = nil
		} else {
			defer sink.Close()
			log.Info("database mirror connected")
		}
	}

	live := store.NewLivePublisher(ctx, cfg.RedisURL, cfg.MQTTURL)
	defer live.Close()

	d := &daemon{
		cfg:     cfg,
		catalog: catalog,
		secrets: secrets,
		client:  collector.New(cfg.HTTPTimeout),
		runner:  &collector.Runner{MaxRetries: cfg.MaxRetries, Delays: cfg.RetryDelays},
		acc:     acc,
		snaps:   &store.SnapshotWriter{Root: cfg.DataDir, Compress: cfg.CompressRaw},
		sink:    sink,
		live:    live,
	}

	go serveHTTP(cfg.MetricsAddr)

	log.WithFields(log.Fields{
		"interval": cfg.Interval.String(),
		"data_dir": cfg.DataDir,
		"compress": cfg.CompressRaw,
	}).Info("capture daemon running")

	d.runLoop(ctx)
	log.Info("capture daemon shutting down")
}

// runLoop captures immediately on startup, then keeps a jittered
// interval between cycles. When every source of a cycle fails the
// wait doubles, up to four intervals, so a dead network does not
// hammer the upstream endpoints.
func (d *daemon) runLoop(ctx context.Context) {
	consecutiveFailures := 0
	for {
		start := time.Now()
		attempted, failed := d.cycle(ctx)
		cyclesTotal.Inc()
		cycleDuration.Observe(time.Since(start).Seconds())

		if attempted > 0 && failed == attempted {
			consecutiveFailures++
		} else {
			consecutiveFailures = 0
		}

		delay := d.nextDelay(consecutiveFailures)
		log.WithFields(log.Fields{
			"attempted": attempted,
			"failed":    failed,
			"took":      time.Since(start).Round(time.Millisecond).String(),
			"next_in":   delay.Round(time.Second).String(),
		}).Info("capture cycle finished")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (d *daemon) nextDelay(consecutiveFailures int) time.Duration {
	delay := d.cfg.Interval
	for i := 0; i < consecutiveFailures && delay < 4*d.cfg.Interval; i++ {
		delay *= 2
	}
	if delay > 4*d.cfg.Interval {
		delay = 4 * d.cfg.Interval
	}
	if pct := d.cfg.JitterPct; pct > 0 {
		delay = time.Duration(float64(delay) * (1 + pct*(2*rand.Float64()-1)))
	}
	return delay
}

// cycle runs one fetch pass per enabled source. Sources are
// independent; one failing never stops the others.
func (d *daemon) cycle(ctx context.Context) (attempted, failed int) {
	run := func(source string, fetch func(context.Context) error) {
		attempted++
		res := d.runner.Do(ctx, source, fetch)
		if res.State != collector.StateOK {
			failed++
			fetchFailures.WithLabelValues(source).Inc()
		}
	}

	run("dgt_trafico", d.captureTraffic)
	run("dgt_incidencias", d.captureSituations)
	run("gva", d.captureGVA)
	if d.secrets.AQIToken != "" {
		run("aqicn", d.captureAQICN)
	}
	if d.secrets.OpenWeatherKey != "" {
		run("openweather", d.captureWeather)
	}
	if !d.camerasDone {
		run("dgt_camaras", d.captureCameras)
	}
	return attempted, failed
}

func (d *daemon) captureTraffic(ctx context.Context) error {
	feed, raw, err := d.client.TrafficData(ctx, d.catalog.DGT.TrafficData)
	if err != nil {
		// A document that downloaded but did not parse is kept
		// verbatim, so a feed format change loses no data.
		if feed == nil && len(raw) > 0 {
			if path, werr := d.snaps.WriteRaw("trafico", "dgt_sin_parsear", "xml", time.Now(), raw); werr == nil {
				log.Warnf("kept unparsed traffic document at %s", path)
			}
		}
		return err
	}

	added, duplicates, err := d.acc.Append(feed.Measurements)
	if err != nil {
		return err
	}
	rowsAppended.Add(float64(added))
	rowsDuplicated.Add(float64(duplicates))
	log.WithFields(log.Fields{
		"added":      added,
		"duplicates": duplicates,
		"total":      d.acc.Size(),
	}).Info("traffic measurements accumulated")

	if d.sink != nil {
		stored, err := d.sink.Store(ctx, feed.Measurements)
		if err != nil {
			log.Warnf("database mirror failed: %v", err)
		} else if stored > 0 {
			log.WithField("stored", stored).Debug("measurements mirrored to database")
		}
	}
	if d.live.Active() {
		published := d.live.PublishMeasurements(ctx, feed.Measurements)
		log.WithField("published", published).Debug("live measurements published")
	}
	return nil
}

func (d *daemon) captureSituations(ctx context.Context) error {
	feed, _, err := d.client.Situations(ctx, d.catalog.DGT.Situations)
	if err != nil {
		return err
	}

	now := time.Now()
	records := feed.Records()
	filtered := datex.FilterLikelyValencian(records)

	state := collector.StateOK
	if len(records) == 0 {
		state = collector.StateNoIncidents
	}
	meta := store.NewMeta("dgt", d.catalog.DGT.Situations, state, now)
	snap := store.NewTrafficSnapshot(meta, feed, filtered)
	path, err := d.snaps.WriteJSON("trafico", "dgt", now, snap)
	if err != nil {
		return err
	}
	snapshotsWritten.WithLabelValues("dgt_incidencias").Inc()
	log.WithFields(log.Fields{
		"total":    len(records),
		"valencia": len(filtered),
		"path":     path,
	}).Info("situations snapshot written")

	if d.sink != nil {
		stored, err := d.sink.StoreSituations(ctx, now, filtered)
		if err != nil {
			log.Warnf("database mirror failed: %v", err)
		} else if stored > 0 {
			log.WithField("stored", stored).Debug("situations mirrored to database")
		}
	}
	return nil
}

func (d *daemon) captureCameras(ctx context.Context) error {
	feed, _, err := d.client.CCTV(ctx, d.catalog.DGT.CCTV)
	if err != nil {
		return err
	}

	now := time.Now()
	meta := store.NewMeta("dgt", d.catalog.DGT.CCTV, collector.StateOK, now)
	path, err := d.snaps.WriteJSON("camaras", "dgt_camaras", now, store.NewCameraSnapshot(meta, feed))
	if err != nil {
		return err
	}
	d.camerasDone = true
	snapshotsWritten.WithLabelValues("dgt_camaras").Inc()
	log.WithFields(log.Fields{
		"cameras": len(feed.Cameras),
		"path":    path,
	}).Info("camera inventory written")
	return nil
}

func (d *daemon) captureGVA(ctx context.Context) error {
	now := time.Now()
	res := d.client.AirStations(ctx, d.catalog.GVABaseURL, d.catalog.GVAStations)
	if res.OK == 0 {
		return fmt.Errorf("all %d gva stations failed", res.Requested)
	}

	meta := store.NewMeta("gva", d.catalog.GVABaseURL, collector.StateOK, now)
	path, err := d.snaps.WriteJSON("contaminacion", "gva", now, store.NewStationsSnapshot(meta, res))
	if err != nil {
		return err
	}
	snapshotsWritten.WithLabelValues("gva").Inc()
	log.WithFields(log.Fields{
		"ok":     res.OK,
		"failed": res.Failed,
		"path":   path,
	}).Info("gva snapshot written")
	return nil
}

func (d *daemon) captureAQICN(ctx context.Context) error {
	now := time.Now()
	res, err := d.client.AirQualityFeeds(ctx, aqicnBaseURL, d.secrets.AQIToken, d.catalog.AQICN)
	if err != nil {
		return err
	}
	if res.OK == 0 {
		return fmt.Errorf("all %d aqicn stations failed", res.Requested)
	}

	meta := store.NewMeta("aqicn", aqicnBaseURL, collector.StateOK, now)
	path, err := d.snaps.WriteJSON("contaminacion", "aqicn", now, store.NewStationsSnapshot(meta, res))
	if err != nil {
		return err
	}
	snapshotsWritten.WithLabelValues("aqicn").Inc()
	log.WithFields(log.Fields{
		"ok":     res.OK,
		"failed": res.Failed,
		"path":   path,
	}).Info("aqicn snapshot written")
	return nil
}

func (d *daemon) captureWeather(ctx context.Context) error {
	now := time.Now()
	site := d.catalog.OpenWeather
	res := d.client.Weather(ctx, openWeatherBaseURL, d.secrets.OpenWeatherKey, site.Lat, site.Lon)
	if res.OK == 0 {
		return fmt.Errorf("all %d openweather endpoints failed", res.Requested)
	}

	meta := store.NewMeta("openweather", openWeatherBaseURL, collector.StateOK, now)
	path, err := d.snaps.WriteJSON("meteorologia", "openweather", now, store.NewWeatherSnapshot(meta, res))
	if err != nil {
		return err
	}
	snapshotsWritten.WithLabelValues("openweather").Inc()
	log.WithFields(log.Fields{
		"ok":     res.OK,
		"failed": res.Failed,
		"path":   path,
	}).Info("weather snapshot written")
	return nil
}

func serveHTTP(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Infof("metrics server listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("metrics server failed: %v", err)
	}
}
