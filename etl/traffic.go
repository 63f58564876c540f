package etl

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"valencia-data-detective/datex"
	"valencia-data-detective/store"

	log "github.com/sirupsen/logrus"
)

// trafficColumns is the canonical schema of trafico_limpio.csv.
var trafficColumns = []string{"fecha", "hora", "ubicacion", "intensidad", "velocidad", "incidencias", "fuente", "calidad_dato"}

// rawIncident decodes the slice of a traffic snapshot the cleaning
// needs; everything else in the record is ignored.
type rawIncident struct {
	RecordType  string       `json:"tipo_datex"`
	Severity    string       `json:"severidad"`
	OverallSev  string       `json:"severidad_global"`
	Probability string       `json:"probabilidad"`
	Created     string       `json:"fecha_creacion"`
	Versioned   string       `json:"fecha_version"`
	Started     string       `json:"fecha_inicio"`
	Location    *rawLocation `json:"localizacion"`

	capturedAt string
}

type rawLocation struct {
	Road string    `json:"carretera"`
	From *rawPoint `json:"punto_from"`
	To   *rawPoint `json:"punto_to"`
}

type rawPoint struct {
	Municipality string `json:"municipio"`
	Province     string `json:"provincia"`
	Community    string `json:"comunidad_autonoma"`
}

type rawTrafficSnapshot struct {
	Meta struct {
		TimestampUTC string `json:"timestamp_utc"`
		Timestamp    string `json:"timestamp_captura"`
	} `json:"_metadata"`
	Incidents []rawIncident `json:"incidencias"`
}

type trafficRow struct {
	fecha       time.Time
	ubicacion   string
	intensidad  float64
	velocidad   float64
	incidencias string
	fuente      string
	calidad     string
}

// CleanTraffic merges the DGT situation snapshots and the accumulated
// measurement CSV into trafico_limpio.csv, keeping only records in, or
// possibly in, the Comunitat Valenciana.
func CleanTraffic(p Paths) (int, error) {
	incidents := loadTrafficIncidents(p)
	accumulated := accumulatedRows(p)
	if len(incidents) == 0 && len(accumulated) == 0 {
		return 0, fmt.Errorf("no traffic input data under %s", p.rawDynamic("trafico"))
	}

	var rows []trafficRow
	kept, undated := 0, 0
	for _, inc := range incidents {
		if !likelyValencian(inc) {
			continue
		}
		kept++
		row, ok := incidentRow(inc)
		if !ok {
			undated++
			continue
		}
		rows = append(rows, row)
	}
	log.Infof("traffic: %d of %d incidents kept for the Comunitat Valenciana, %d without usable date", kept, len(incidents), undated)

	if len(accumulated) > 0 {
		log.Infof("traffic: merging %d accumulated measurement rows", len(accumulated))
		rows = append(rows, accumulated...)
	}

	// The same incident stays active across captures, so the key
	// fecha + ubicacion + incidencias collapses repeats.
	seen := make(map[string]struct{}, len(rows))
	out := rows[:0]
	for _, r := range rows {
		key := r.fecha.Format(time.RFC3339) + "|" + r.ubicacion + "|" + r.incidencias
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].fecha.Before(out[j].fecha) })

	records := make([][]string, 0, len(out))
	for _, r := range out {
		records = append(records, []string{
			r.fecha.Format(timestampCSV),
			strconv.Itoa(r.fecha.Hour()),
			r.ubicacion,
			formatFloat(r.intensidad),
			formatFloat(r.velocidad),
			r.incidencias,
			r.fuente,
			r.calidad,
		})
	}

	path := p.cleanFile("trafico_limpio.csv")
	if err := writeCSV(path, trafficColumns, records); err != nil {
		return 0, fmt.Errorf("write trafico_limpio: %w", err)
	}
	log.Infof("traffic: wrote %d rows to %s", len(records), path)
	return len(records), nil
}

func loadTrafficIncidents(p Paths) []rawIncident {
	files := listSnapshots(p.rawDynamic("trafico"), "dgt")

	var all []rawIncident
	withData, empty, failed := 0, 0, 0
	for _, path := range files {
		data, err := store.ReadSnapshot(path)
		if err != nil {
			log.Errorf("traffic: cannot read %s: %v", filepath.Base(path), err)
			failed++
			continue
		}
		var snap rawTrafficSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			log.Errorf("traffic: invalid JSON in %s: %v", filepath.Base(path), err)
			failed++
			continue
		}
		if len(snap.Incidents) == 0 {
			empty++
			continue
		}

		capturedAt := snap.Meta.TimestampUTC
		if capturedAt == "" {
			capturedAt = snap.Meta.Timestamp
		}
		for i := range snap.Incidents {
			snap.Incidents[i].capturedAt = capturedAt
		}
		all = append(all, snap.Incidents...)
		withData++
	}

	log.Infof("traffic: %d snapshots with data, %d empty, %d unreadable, %d incidents total", withData, empty, failed, len(all))
	return all
}

// likelyValencian keeps a record unless it names a community or
// province outside the Comunitat Valenciana. Records without
// administrative names cannot be ruled out, so they stay.
func likelyValencian(inc rawIncident) bool {
	loc := inc.Location
	if loc == nil {
		return true
	}
	for _, pt := range []*rawPoint{loc.From, loc.To} {
		if pt == nil {
			continue
		}
		if datex.ValencianCommunityName(pt.Community) {
			return true
		}
		if datex.ValencianProvinceName(pt.Province) {
			return true
		}
	}
	for _, pt := range []*rawPoint{loc.From, loc.To} {
		if pt != nil && (pt.Community != "" || pt.Province != "") {
			return false
		}
	}
	return true
}

// incidentRow builds a cleaned row. The record date is the first
// populated timestamp by relevance: creation, version, validity start,
// capture time. A record whose chosen timestamp does not parse is
// dropped rather than guessed at.
func incidentRow(inc rawIncident) (trafficRow, bool) {
	var raw string
	for _, candidate := range []string{inc.Created, inc.Versioned, inc.Started, inc.capturedAt} {
		if strings.TrimSpace(candidate) != "" {
			raw = candidate
			break
		}
	}
	if raw == "" {
		return trafficRow{}, false
	}
	fecha, ok := parseTimestamp(raw)
	if !ok {
		return trafficRow{}, false
	}

	calidad := QualityMissing
	if inc.RecordType != "" {
		calidad = QualityOK
	}

	return trafficRow{
		fecha:       fecha,
		ubicacion:   buildUbicacion(inc.Location),
		intensidad:  math.NaN(),
		velocidad:   math.NaN(),
		incidencias: buildIncidencias(inc),
		fuente:      "dgt",
		calidad:     calidad,
	}, true
}

// buildUbicacion renders "carretera | municipio | provincia", skipping
// absent parts. The first location point carrying administrative names
// wins; repeated names are not duplicated.
func buildUbicacion(loc *rawLocation) string {
	if loc == nil {
		return "desconocida"
	}

	var parts []string
	if loc.Road != "" {
		parts = append(parts, loc.Road)
	}
	for _, pt := range []*rawPoint{loc.From, loc.To} {
		if pt == nil {
			continue
		}
		if pt.Municipality != "" && !containsString(parts, pt.Municipality) {
			parts = append(parts, pt.Municipality)
		}
		if pt.Province != "" && !containsString(parts, pt.Province) {
			parts = append(parts, pt.Province)
		}
		if pt.Municipality != "" || pt.Province != "" {
			break
		}
	}

	if len(parts) == 0 {
		return "desconocida"
	}
	return strings.Join(parts, " | ")
}

// buildIncidencias renders "tipo | severidad | probabilidad". The
// DATEX type loses its namespace prefix; severity falls back to the
// situation-level value.
func buildIncidencias(inc rawIncident) string {
	var parts []string

	tipo := inc.RecordType
	if tipo != "" {
		if i := strings.LastIndex(tipo, ":"); i >= 0 {
			tipo = tipo[i+1:]
		}
		parts = append(parts, tipo)
	}

	sev := inc.Severity
	if sev == "" {
		sev = inc.OverallSev
	}
	if sev != "" {
		parts = append(parts, sev)
	}

	if inc.Probability != "" {
		parts = append(parts, inc.Probability)
	}

	if len(parts) == 0 {
		return "sin_tipo"
	}
	return strings.Join(parts, " | ")
}

// accumulatedRows loads the capture daemon's measurement CSV, which
// complements the incident feed with the intensity and speed numbers
// incidents never carry. A missing file just means the daemon has not
// run here.
func accumulatedRows(p Paths) []trafficRow {
	path := store.DefaultAccumulatorPath(p.RawDir)
	table, err := readCSV(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("traffic: accumulated csv unreadable: %v", err)
		}
		return nil
	}

	iFecha, iHora, iPunto := table.col("fecha"), table.col("hora"), table.col("punto_medida")
	iInt, iVel := table.col("intensidad"), table.col("velocidad")
	if iFecha < 0 || iHora < 0 || iPunto < 0 {
		log.Warnf("traffic: accumulated csv missing expected columns")
		return nil
	}

	var rows []trafficRow
	for _, rec := range table.rows {
		// The accumulator writes UTC date and time columns.
		ts, err := time.Parse("2006-01-02T15:04:05", field(rec, iFecha)+"T"+field(rec, iHora))
		if err != nil {
			continue
		}
		punto := field(rec, iPunto)
		if punto == "" {
			continue
		}

		intensidad, velocidad := math.NaN(), math.NaN()
		if v, ok := parseNumber(field(rec, iInt)); ok {
			intensidad = v
		}
		if v, ok := parseNumber(field(rec, iVel)); ok {
			velocidad = v
		}

		calidad := QualityMissing
		if !math.IsNaN(intensidad) || !math.IsNaN(velocidad) {
			calidad = QualityOK
		}

		rows = append(rows, trafficRow{
			fecha:      ts.UTC(),
			ubicacion:  punto,
			intensidad: intensidad,
			velocidad:  velocidad,
			fuente:     "dgt",
			calidad:    calidad,
		})
	}
	return rows
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
