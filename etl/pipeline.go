package etl

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

// Stage outcomes.
const (
	StageOK      = "ok"
	StageFailed  = "failed"
	StageSkipped = "skipped"
)

// A Stage is one step of the pipeline. Needs names the stages whose output
// this one reads. When a needed stage did not finish, the stage is skipped
// rather than run against stale or missing inputs.
type Stage struct {
	Name  string
	Needs []string
	Run   func(Paths) (int, error)
}

// StageResult reports how one stage went.
type StageResult struct {
	Name     string
	State    string
	Rows     int
	Err      error
	Duration time.Duration
}

// Stages returns the pipeline in execution order: the three dataset
// cleaners first, then the aggregations built on top of them.
func Stages() []Stage {
	return []Stage{
		{Name: "air", Run: NormalizeAir},
		{Name: "weather", Run: CleanWeather},
		{Name: "traffic", Run: CleanTraffic},
		{Name: "stats", Needs: []string{"air", "weather"}, Run: ComputeStats},
		{Name: "events", Needs: []string{"air", "weather", "traffic"}, Run: CorrelateEvents},
	}
}

// Run executes the whole pipeline. A failing stage does not abort the run;
// only the stages depending on it are skipped.
func Run(p Paths) []StageResult {
	states := make(map[string]string)
	results := make([]StageResult, 0, 5)

	for _, stage := range Stages() {
		unmet := ""
		for _, need := range stage.Needs {
			if states[need] != StageOK {
				unmet = need
				break
			}
		}
		if unmet != "" {
			log.Warnf("pipeline: skipping %s, needs %s which did not complete", stage.Name, unmet)
			states[stage.Name] = StageSkipped
			results = append(results, StageResult{Name: stage.Name, State: StageSkipped})
			continue
		}

		log.Infof("pipeline: running %s", stage.Name)
		start := time.Now()
		rows, err := stage.Run(p)
		elapsed := time.Since(start)

		res := StageResult{Name: stage.Name, Rows: rows, Err: err, Duration: elapsed}
		if err != nil {
			res.State = StageFailed
			log.Errorf("pipeline: %s failed after %s: %v", stage.Name, elapsed.Round(time.Millisecond), err)
		} else {
			res.State = StageOK
			log.Infof("pipeline: %s done, %d rows in %s", stage.Name, rows, elapsed.Round(time.Millisecond))
		}
		states[stage.Name] = res.State
		results = append(results, res)
	}
	return results
}

// OutputCheck describes one expected pipeline output file.
type OutputCheck struct {
	Path    string
	KeyCol  string
	MinRows int
}

// ExpectedOutputs lists the files a complete run leaves behind.
func ExpectedOutputs(p Paths) []OutputCheck {
	return []OutputCheck{
		{Path: p.cleanFile("contaminacion_normalizada.csv"), KeyCol: "fecha_utc"},
		{Path: p.cleanFile("meteorologia_limpio.csv"), KeyCol: "precipitacion_mm"},
		{Path: p.cleanFile("trafico_limpio.csv"), KeyCol: "fecha"},
		{Path: p.statsFile("contaminacion_media_anual_barrio.csv")},
		{Path: p.statsFile("precipitacion_media_mensual.csv")},
		{Path: p.statsFile("tendencias_historicas.csv")},
		{Path: p.cleanFile("impacto_eventos.csv"), KeyCol: "evento_id", MinRows: 1},
	}
}

// CheckResult is the verdict for one output file.
type CheckResult struct {
	Path    string
	Passed  bool
	Problem string
}

// ValidateOutputs checks the generated files on disk: each one must exist,
// be non-empty, carry its key column and reach its minimum row count.
// Problems are reported, never fatal.
func ValidateOutputs(p Paths) []CheckResult {
	checks := ExpectedOutputs(p)
	results := make([]CheckResult, 0, len(checks))

	for _, check := range checks {
		res := CheckResult{Path: check.Path}

		info, err := os.Stat(check.Path)
		if err != nil {
			res.Problem = "missing"
			results = append(results, res)
			continue
		}
		if info.Size() == 0 {
			res.Problem = "empty file"
			results = append(results, res)
			continue
		}

		if check.KeyCol != "" || check.MinRows > 0 {
			table, err := readCSV(check.Path)
			if err != nil {
				res.Problem = fmt.Sprintf("unreadable: %v", err)
				results = append(results, res)
				continue
			}
			if check.KeyCol != "" && table.col(check.KeyCol) < 0 {
				res.Problem = fmt.Sprintf("missing column %s", check.KeyCol)
				results = append(results, res)
				continue
			}
			if check.MinRows > 0 && len(table.rows) < check.MinRows {
				res.Problem = fmt.Sprintf("%d rows, expected at least %d", len(table.rows), check.MinRows)
				results = append(results, res)
				continue
			}
		}

		res.Passed = true
		results = append(results, res)
	}
	return results
}
