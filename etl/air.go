package etl

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"valencia-data-detective/store"

	log "github.com/sirupsen/logrus"
)

// airColumns is the canonical schema of contaminacion_normalizada.csv.
var airColumns = []string{"fecha_utc", "estacion_id", "estacion_nombre", "fuente", "variable", "valor", "unidad", "calidad_dato"}

var canonicalVariables = []string{"NO2", "O3", "PM10", "PM2.5", "SO2", "CO"}

// variableAliases folds the spellings seen across GVA, EEA and AQICN
// onto the canonical names.
var variableAliases = map[string]string{
	"NO2": "NO2", "O3": "O3", "PM10": "PM10", "PM2.5": "PM2.5", "SO2": "SO2", "CO": "CO",
	"PM25": "PM2.5", "pm25": "PM2.5", "pm2.5": "PM2.5",
	"pm10": "PM10", "no2": "NO2", "o3": "O3", "so2": "SO2", "co": "CO",
}

// physicalRanges bound plausible concentrations in µg/m³. The maxima
// are generous so real episodes (Fallas, Saharan dust) survive; CO
// arrives already in µg/m³ from every source, no mg/m³ conversion.
var physicalRanges = map[string][2]float64{
	"NO2":   {0, 600},
	"O3":    {0, 500},
	"PM10":  {0, 1000},
	"PM2.5": {0, 500},
	"SO2":   {0, 1000},
	"CO":    {0, 50000},
}

// valenciaStations is the master station register.
var valenciaStations = map[string]string{
	"46250001": "València - Centro (Avd. Francia)",
	"46250004": "València - Pista de Silla (antigua)",
	"46250030": "València - Pista de Silla",
	"46250047": "València - Politècnic",
	"46250050": "València - Molí del Sol",
	"46250054": "València - Conselleria Meteo (Centre)",
}

type airRow struct {
	fecha    time.Time
	station  string
	variable string
	valor    float64
	hasValor bool
	fuente   string
}

// canonicalVariable maps a raw variable name onto the canonical set,
// trying the exact spelling first and the uppercased one second.
func canonicalVariable(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if mapped, ok := variableAliases[raw]; ok {
		return mapped, true
	}
	if mapped, ok := variableAliases[strings.ToUpper(raw)]; ok {
		return mapped, true
	}
	return "", false
}

// NormalizeAir consolidates the GVA/EEA historical CSVs and the AQICN
// snapshots into one canonical dataset. Out-of-range values keep their
// value but are flagged invalid; absent values are flagged missing.
func NormalizeAir(p Paths) (int, error) {
	var rows []airRow
	rows = append(rows, loadGVA(p)...)
	rows = append(rows, loadEEA(p)...)
	rows = append(rows, loadAQICN(p)...)
	if len(rows) == 0 {
		return 0, fmt.Errorf("no air quality input data under %s", p.RawDir)
	}

	type outRow struct {
		fecha   string
		station string
		nombre  string
		fuente  string
		vari    string
		valor   float64
		has     bool
		calidad string
	}

	out := make([]outRow, 0, len(rows))
	for _, r := range rows {
		nombre, known := valenciaStations[r.station]
		if !known {
			nombre = fmt.Sprintf("Desconocida (%s)", r.station)
		}

		calidad := QualityOK
		if !r.hasValor {
			calidad = QualityMissing
		} else if rng, ok := physicalRanges[r.variable]; ok && (r.valor < rng[0] || r.valor > rng[1]) {
			// Flag but keep the value, for traceability.
			calidad = QualityInvalid
		}

		out = append(out, outRow{
			fecha:   r.fecha.UTC().Format("2006-01-02T15:04:05Z"),
			station: r.station,
			nombre:  nombre,
			fuente:  r.fuente,
			vari:    r.variable,
			valor:   r.valor,
			has:     r.hasValor,
			calidad: calidad,
		})
	}

	// Exact duplicates collapse; overlapping captures of the same
	// reading are common with AQICN.
	seen := make(map[string]struct{}, len(out))
	deduped := out[:0]
	for _, r := range out {
		key := r.fecha + "|" + r.station + "|" + r.fuente + "|" + r.vari + "|" + formatFloat(valorOrNaN(r.valor, r.has)) + "|" + r.calidad
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, r)
	}
	if n := len(out) - len(deduped); n > 0 {
		log.Infof("air: %d exact duplicates dropped", n)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		if deduped[i].fecha != deduped[j].fecha {
			return deduped[i].fecha < deduped[j].fecha
		}
		if deduped[i].station != deduped[j].station {
			return deduped[i].station < deduped[j].station
		}
		return deduped[i].vari < deduped[j].vari
	})

	records := make([][]string, 0, len(deduped))
	for _, r := range deduped {
		records = append(records, []string{
			r.fecha,
			r.station,
			r.nombre,
			r.fuente,
			r.vari,
			formatFloat(valorOrNaN(r.valor, r.has)),
			"µg/m³",
			r.calidad,
		})
	}

	path := p.cleanFile("contaminacion_normalizada.csv")
	if err := writeCSV(path, airColumns, records); err != nil {
		return 0, fmt.Errorf("write contaminacion_normalizada: %w", err)
	}
	log.Infof("air: wrote %d rows to %s", len(records), path)
	return len(records), nil
}

func valorOrNaN(v float64, has bool) float64 {
	if !has {
		return math.NaN()
	}
	return v
}

// longCSVRows reads a long-format [fecha, estacion, variable, valor]
// file, the layout of the GVA and EEA historical downloads. Timestamps
// are naive local time.
func longCSVRows(path, fuente string) []airRow {
	table, err := readCSV(path)
	if err != nil {
		log.Errorf("air: cannot read %s: %v", filepath.Base(path), err)
		return nil
	}

	iFecha, iEst := table.col("fecha"), table.col("estacion")
	iVar, iVal := table.col("variable"), table.col("valor")
	if iFecha < 0 || iEst < 0 || iVar < 0 || iVal < 0 {
		log.Errorf("air: %s lacks the fecha/estacion/variable/valor columns", filepath.Base(path))
		return nil
	}

	var rows []airRow
	for _, rec := range table.rows {
		fecha, ok := parseTimestamp(field(rec, iFecha))
		if !ok {
			continue
		}
		variable, ok := canonicalVariable(field(rec, iVar))
		if !ok {
			continue
		}

		row := airRow{
			fecha:    fecha,
			station:  field(rec, iEst),
			variable: variable,
			fuente:   fuente,
		}
		if v, ok := parseNumber(field(rec, iVal)); ok {
			row.valor = v
			row.hasValor = true
		}
		rows = append(rows, row)
	}
	return rows
}

func loadGVA(p Paths) []airRow {
	pattern := filepath.Join(p.rawStatic("contaminacion"), "gva_*_historico.csv")
	files, _ := filepath.Glob(pattern)
	sort.Strings(files)
	if len(files) == 0 {
		log.Warnf("air: no GVA historical files matching %s", pattern)
		return nil
	}

	var rows []airRow
	for _, f := range files {
		rows = append(rows, longCSVRows(f, "gva")...)
	}
	log.Infof("air: GVA loaded %d records from %d files", len(rows), len(files))
	return rows
}

func loadEEA(p Paths) []airRow {
	path := filepath.Join(p.rawStatic("eea"), "eea_valencia_filtrado.csv")
	rows := longCSVRows(path, "eea")
	log.Infof("air: EEA loaded %d records", len(rows))
	return rows
}

// aqicnData is the WAQI station payload kept by the capture daemon.
// The v field inside iaqi is the concentration, not the AQI index.
type aqicnData struct {
	Time struct {
		ISO string `json:"iso"`
	} `json:"time"`
	IAQI map[string]struct {
		V *float64 `json:"v"`
	} `json:"iaqi"`
}

type aqicnSnapshot struct {
	Stations map[string]struct {
		Name string          `json:"nombre"`
		Data json.RawMessage `json:"datos"`
	} `json:"estaciones"`
}

func loadAQICN(p Paths) []airRow {
	files := listSnapshots(p.rawDynamic("contaminacion"), "aqicn")
	if len(files) == 0 {
		log.Warnf("air: no AQICN snapshots under %s", p.rawDynamic("contaminacion"))
		return nil
	}

	var rows []airRow
	failed := 0
	for _, path := range files {
		data, err := store.ReadSnapshot(path)
		if err != nil {
			log.Errorf("air: cannot read %s: %v", filepath.Base(path), err)
			failed++
			continue
		}
		var snap aqicnSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			log.Errorf("air: invalid JSON in %s: %v", filepath.Base(path), err)
			failed++
			continue
		}

		for code, st := range snap.Stations {
			if len(st.Data) == 0 {
				continue
			}
			var payload aqicnData
			if err := json.Unmarshal(st.Data, &payload); err != nil {
				continue
			}
			fecha, ok := parseTimestamp(payload.Time.ISO)
			if !ok {
				continue
			}
			for rawVar, reading := range payload.IAQI {
				variable, ok := canonicalVariable(rawVar)
				if !ok {
					continue
				}
				row := airRow{
					fecha:    fecha,
					station:  code,
					variable: variable,
					fuente:   "aqicn",
				}
				if reading.V != nil {
					row.valor = *reading.V
					row.hasValor = true
				}
				rows = append(rows, row)
			}
		}
	}
	log.Infof("air: AQICN loaded %d records from %d files (%d unreadable)", len(rows), len(files), failed)
	return rows
}
