// Package collector downloads the upstream open-data feeds (DGT DATEX II,
// GVA air quality, AQICN, OpenWeatherMap) and retries the transient
// network failures that show up constantly on public endpoints.
package collector

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Outcome of a fetch pass, recorded in snapshots and run summaries.
// StateNoIncidents is a successful situations capture whose feed
// carried no situations, kept distinct so an empty snapshot is not
// mistaken for a failed one.
const (
	StateOK          = "exitosa"
	StateFailed      = "descarga_fallida"
	StateNoIncidents = "sin_incidencias"
)

// networkErrorKeywords marks failures worth retrying. Anything else
// (revoked access, changed URLs, malformed payloads) fails the pass
// immediately because retrying cannot fix it.
var networkErrorKeywords = []string{
	"connectionerror",
	"timeout",
	"connection",
	"timed out",
	"temporary failure",
	"name resolution",
	"unreachable",
	"reset by peer",
	"broken pipe",
	"429",
	"503",
	"502",
	"504",
}

// IsNetworkError reports whether err looks like a transient network
// failure that could succeed on a later attempt.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, keyword := range networkErrorKeywords {
		if strings.Contains(msg, keyword) {
			return true
		}
	}
	return false
}

// Result summarizes one fetch pass for a source.
type Result struct {
	RunID    string
	Source   string
	State    string
	Attempts int
	Duration time.Duration
	Err      error
}

// Runner executes fetch passes with retries. Only network errors are
// retried, waiting Delays[attempt-1] between attempts; the last delay
// repeats if there are more attempts than delays.
type Runner struct {
	MaxRetries int
	Delays     []time.Duration
}

// Do runs fetch until it succeeds or the attempts are exhausted. Every
// pass gets a fresh run id so log lines from concurrent sources can be
// correlated.
func (r *Runner) Do(ctx context.Context, source string, fetch func(context.Context) error) Result {
	res := Result{RunID: uuid.New().String(), Source: source}

	attempts := r.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	start := time.Now()
	for attempt := 1; attempt <= attempts; attempt++ {
		res.Attempts = attempt

		err := fetch(ctx)
		if err == nil {
			res.State = StateOK
			res.Duration = time.Since(start)
			return res
		}

		if !IsNetworkError(err) {
			log.WithFields(log.Fields{"run_id": res.RunID, "source": source}).
				Errorf("non-retryable error: %v", err)
			res.Err = err
			break
		}
		if attempt == attempts {
			log.WithFields(log.Fields{"run_id": res.RunID, "source": source}).
				Errorf("network error persists after %d attempts: %v", attempt, err)
			res.Err = err
			break
		}

		delay := r.delay(attempt)
		log.WithFields(log.Fields{
			"run_id":  res.RunID,
			"source":  source,
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warnf("network error: %v, retrying", err)

		select {
		case <-ctx.Done():
			res.Err = ctx.Err()
			res.State = StateFailed
			res.Duration = time.Since(start)
			return res
		case <-time.After(delay):
		}
	}

	res.State = StateFailed
	res.Duration = time.Since(start)
	return res
}

func (r *Runner) delay(attempt int) time.Duration {
	if len(r.Delays) == 0 {
		return 5 * time.Second
	}
	if attempt <= len(r.Delays) {
		return r.Delays[attempt-1]
	}
	return r.Delays[len(r.Delays)-1]
}
