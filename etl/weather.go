package etl

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"valencia-data-detective/store"
)

var weatherColumns = []string{"fecha", "hora", "precipitacion_mm", "temp_c", "humedad_pct", "fuente", "calidad_dato"}

// weatherRanges bound the plausible values per canonical variable. Readings
// outside the range become NaN so the row survives with only that field lost.
var weatherRanges = map[string][2]float64{
	"precipitacion_mm": {0, 500},
	"temp_c":           {-20, 50},
	"humedad_pct":      {0, 100},
}

// aemetVariables maps AEMET column names, both the long export form and the
// OpenData API short codes, onto the canonical schema.
var aemetVariables = map[string]string{
	"precipitacion":     "precipitacion_mm",
	"temperatura_media": "temp_c",
	"humedad_media":     "humedad_pct",
	"prec":              "precipitacion_mm",
	"tmed":              "temp_c",
	"hrMedia":           "humedad_pct",
}

type weatherRow struct {
	fecha   time.Time
	precip  float64
	temp    float64
	humedad float64
	fuente  string
	calidad string
}

// CleanWeather merges AEMET daily climatology with OpenWeather captures into
// meteorologia_limpio.csv under the clean directory. AEMET rows are daily
// means anchored at local noon before the UTC conversion; OpenWeather rows
// carry their own Unix timestamp. Returns the number of rows written.
func CleanWeather(p Paths) (int, error) {
	aemet := loadAEMET(p)
	owm := loadOpenWeather(p)

	rows := append(aemet, owm...)
	if len(rows) == 0 {
		return 0, fmt.Errorf("no weather input data under %s", p.RawDir)
	}
	log.Infof("weather: %d AEMET rows, %d OpenWeather rows", len(aemet), len(owm))

	for i := range rows {
		validateWeatherRow(&rows[i])
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].fecha.Before(rows[j].fecha) })

	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, []string{
			r.fecha.Format(timestampCSV),
			strconv.Itoa(r.fecha.Hour()),
			formatFloat(r.precip),
			formatFloat(r.temp),
			formatFloat(r.humedad),
			r.fuente,
			r.calidad,
		})
	}

	if err := writeCSV(p.cleanFile("meteorologia_limpio.csv"), weatherColumns, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// validateWeatherRow blanks out-of-range values and grades the row: missing
// when all three variables are gone, ok otherwise.
func validateWeatherRow(r *weatherRow) {
	vals := [3]*float64{&r.precip, &r.temp, &r.humedad}
	names := [3]string{"precipitacion_mm", "temp_c", "humedad_pct"}
	for i, v := range vals {
		if math.IsNaN(*v) {
			continue
		}
		rng := weatherRanges[names[i]]
		if *v < rng[0] || *v > rng[1] {
			log.Warnf("weather: %s=%g out of range [%g, %g], dropping value", names[i], *v, rng[0], rng[1])
			*v = math.NaN()
		}
	}
	if math.IsNaN(r.precip) && math.IsNaN(r.temp) && math.IsNaN(r.humedad) {
		r.calidad = QualityMissing
	} else {
		r.calidad = QualityOK
	}
}

// parseMadridLocal parses a naive timestamp as Madrid wall-clock time without
// converting it to UTC. Used for AEMET dates where the noon anchor has to be
// applied in local time first.
func parseMadridLocal(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, madridTZ); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// loadAEMET reads the long-format historic CSVs (fecha, variable, valor) from
// estaticos/meteorologia, averages duplicates per date and pivots the mapped
// variables into one row per date.
func loadAEMET(p Paths) []weatherRow {
	files, _ := filepath.Glob(filepath.Join(p.rawStatic("meteorologia"), "aemet_*.csv"))
	sort.Strings(files)
	if len(files) == 0 {
		log.Warnf("weather: no AEMET files under %s", p.rawStatic("meteorologia"))
		return nil
	}

	type agg struct {
		sum float64
		n   int
	}
	groups := make(map[string]map[string]*agg)
	dates := make(map[string]time.Time)

	for _, f := range files {
		table, err := readCSV(f)
		if err != nil {
			log.Warnf("weather: unreadable AEMET file %s: %v", filepath.Base(f), err)
			continue
		}
		fi, vi, xi := table.col("fecha"), table.col("variable"), table.col("valor")
		if fi < 0 || vi < 0 || xi < 0 {
			log.Warnf("weather: %s misses fecha/variable/valor columns", filepath.Base(f))
			continue
		}
		for _, row := range table.rows {
			local, ok := parseMadridLocal(field(row, fi))
			if !ok {
				continue
			}
			vari, ok := aemetVariables[field(row, vi)]
			if !ok {
				continue
			}
			val, ok := parseNumber(field(row, xi))
			if !ok {
				continue
			}
			key := local.Format("2006-01-02 15:04:05")
			vars := groups[key]
			if vars == nil {
				vars = make(map[string]*agg)
				groups[key] = vars
				dates[key] = local
			}
			a := vars[vari]
			if a == nil {
				a = &agg{}
				vars[vari] = a
			}
			a.sum += val
			a.n++
		}
	}

	rows := make([]weatherRow, 0, len(groups))
	for key, vars := range groups {
		local := dates[key]
		// Daily means cover 00:00-23:59, so anchor at local noon and only
		// then move to UTC. Doing it the other way round shifts the anchor
		// by an hour on DST transition days.
		noon := time.Date(local.Year(), local.Month(), local.Day(), local.Hour()+12, local.Minute(), local.Second(), 0, madridTZ)
		r := weatherRow{
			fecha:   noon.UTC(),
			precip:  math.NaN(),
			temp:    math.NaN(),
			humedad: math.NaN(),
			fuente:  "aemet",
		}
		if a := vars["precipitacion_mm"]; a != nil {
			r.precip = a.sum / float64(a.n)
		}
		if a := vars["temp_c"]; a != nil {
			r.temp = a.sum / float64(a.n)
		}
		if a := vars["humedad_pct"]; a != nil {
			r.humedad = a.sum / float64(a.n)
		}
		rows = append(rows, r)
	}
	return rows
}

type owmConditions struct {
	DT   *int64 `json:"dt"`
	Main struct {
		Temp     *float64 `json:"temp"`
		Humidity *float64 `json:"humidity"`
	} `json:"main"`
	Rain map[string]float64 `json:"rain"`
}

// loadOpenWeather extracts the current-conditions block from each snapshot.
// Forecast entries are deliberately left out so predicted values never mix
// with observations.
func loadOpenWeather(p Paths) []weatherRow {
	files := listSnapshots(p.rawDynamic("meteorologia"), "openweather")
	if len(files) == 0 {
		log.Warnf("weather: no OpenWeather snapshots under %s", p.rawDynamic("meteorologia"))
		return nil
	}

	var rows []weatherRow
	unreadable := 0
	for _, f := range files {
		data, err := store.ReadSnapshot(f)
		if err != nil {
			unreadable++
			continue
		}
		var snap struct {
			Weather json.RawMessage `json:"weather"`
			Actual  json.RawMessage `json:"actual"`
		}
		if err := json.Unmarshal(data, &snap); err != nil {
			unreadable++
			continue
		}
		block := snap.Weather
		if len(block) == 0 || string(block) == "null" {
			block = snap.Actual
		}
		if len(block) == 0 || string(block) == "null" {
			continue
		}
		var cond owmConditions
		if err := json.Unmarshal(block, &cond); err != nil {
			continue
		}
		if cond.DT == nil {
			continue
		}
		r := weatherRow{
			fecha:   time.Unix(*cond.DT, 0).UTC(),
			precip:  0,
			temp:    math.NaN(),
			humedad: math.NaN(),
			fuente:  "openweather",
		}
		// The API reports rain.1h on /weather and rain.3h on /forecast.
		// Accumulated value is kept as is, matching AEMET daily totals.
		if v, ok := cond.Rain["1h"]; ok {
			r.precip = v
		} else if v, ok := cond.Rain["3h"]; ok {
			r.precip = v
		}
		if cond.Main.Temp != nil {
			r.temp = *cond.Main.Temp
		}
		if cond.Main.Humidity != nil {
			r.humedad = *cond.Main.Humidity
		}
		rows = append(rows, r)
	}
	if unreadable > 0 {
		log.Warnf("weather: %d OpenWeather snapshots unreadable", unreadable)
	}
	return rows
}
