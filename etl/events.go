package etl

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// baselineRainLimit excludes heavy rain days from event baselines, since
// rain washes out pollutants and would bias the comparison.
const baselineRainLimit = 5.0

var eventColumns = []string{
	"evento_id", "nombre_evento", "tipo_evento", "impacto_esperado",
	"fecha_inicio", "fecha_fin", "variable",
	"media_evento", "media_baseline", "impacto_pct",
	"n_dias_evento", "n_dias_baseline",
	"media_temp_evento", "media_temp_baseline",
	"media_precip_evento", "media_precip_baseline",
	"impacto_trafico_pct",
}

// Event dates arrive in whatever format the scraper found, day first when
// ambiguous.
var eventDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
}

type cityEvent struct {
	id       string
	nombre   string
	tipo     string
	impacto  string
	inicio   time.Time
	fin      time.Time
	days     map[string]bool
	months   map[int]bool
	weekdays map[int]bool
}

func dayKey(t time.Time) string { return t.Format("2006-01-02") }

// mondayWeekday numbers weekdays with Monday as 0, which is how the event
// calendars think about match days and weekends.
func mondayWeekday(t time.Time) int { return (int(t.Weekday()) + 6) % 7 }

func parseEventDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range eventDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// loadEvents reads the classified events file and returns one entry per
// distinct event. Events without a parseable start date are dropped,
// duplicates collapse on the id hash.
func loadEvents(path string) ([]*cityEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Eventos []struct {
			Nombre  string `json:"nombre"`
			Rival   string `json:"rival"`
			Tipo    string `json:"tipo"`
			Impacto string `json:"impacto_esperado"`
			Fuente  string `json:"fuente"`
			Inicio  string `json:"fecha_inicio"`
			Fin     string `json:"fecha_fin"`
		} `json:"eventos"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("events file %s: %w", path, err)
	}

	var events []*cityEvent
	seen := make(map[string]bool)
	skipped := 0
	for _, raw := range doc.Eventos {
		nombre := raw.Nombre
		if nombre == "" {
			nombre = raw.Rival
		}
		if nombre == "" {
			nombre = "Evento desconocido"
		}

		inicio, ok := parseEventDate(raw.Inicio)
		if !ok {
			skipped++
			continue
		}
		fin, ok := parseEventDate(raw.Fin)
		if !ok {
			fin = inicio
		}
		if fin.Before(inicio) {
			inicio, fin = fin, inicio
		}

		// The id hashes the raw start date, so the same event listed by
		// two sources with different date formats stays distinct.
		idName := raw.Nombre
		if idName == "" {
			idName = raw.Rival
		}
		if idName == "" {
			idName = "desconocido"
		}
		sum := md5.Sum([]byte(idName + "|" + raw.Inicio + "|" + raw.Fuente))
		id := hex.EncodeToString(sum[:])[:12]
		if seen[id] {
			continue
		}
		seen[id] = true

		ev := &cityEvent{
			id:       id,
			nombre:   nombre,
			tipo:     defaultStr(raw.Tipo, "desconocido"),
			impacto:  defaultStr(raw.Impacto, "desconocido"),
			inicio:   inicio,
			fin:      fin,
			days:     make(map[string]bool),
			months:   make(map[int]bool),
			weekdays: make(map[int]bool),
		}
		for t := inicio; !t.After(fin); t = t.Add(24 * time.Hour) {
			ev.days[dayKey(t)] = true
			ev.months[int(t.Month())] = true
			ev.weekdays[mondayWeekday(t)] = true
		}
		events = append(events, ev)
	}
	if skipped > 0 {
		log.Warnf("events: %d events without a parseable start date", skipped)
	}
	return events, nil
}

func defaultStr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

type dailyValue struct {
	date time.Time
	mean float64
	n    int
}

// contamDaily averages validated readings per day and pollutant.
func contamDaily(t *csvTable) map[string][]dailyValue {
	if t == nil {
		return nil
	}
	fi, vi, xi, qi := t.col("fecha_utc"), t.col("variable"), t.col("valor"), t.col("calidad_dato")
	if fi < 0 || vi < 0 || xi < 0 || qi < 0 {
		return nil
	}
	type key struct{ day, vari string }
	groups := make(map[key]*meanAgg)
	dates := make(map[string]time.Time)
	for _, row := range t.rows {
		if field(row, qi) != QualityOK {
			continue
		}
		fecha, ok := parseTimestamp(field(row, fi))
		if !ok {
			continue
		}
		val, ok := parseNumber(field(row, xi))
		if !ok {
			continue
		}
		k := key{dayKey(fecha), field(row, vi)}
		a := groups[k]
		if a == nil {
			a = &meanAgg{}
			groups[k] = a
		}
		a.add(val)
		if _, ok := dates[k.day]; !ok {
			dates[k.day] = time.Date(fecha.Year(), fecha.Month(), fecha.Day(), 0, 0, 0, 0, time.UTC)
		}
	}
	daily := make(map[string][]dailyValue)
	for k, a := range groups {
		daily[k.vari] = append(daily[k.vari], dailyValue{date: dates[k.day], mean: a.mean(), n: a.n})
	}
	for _, vals := range daily {
		sort.Slice(vals, func(i, j int) bool { return vals[i].date.Before(vals[j].date) })
	}
	return daily
}

// trafficDaily counts incident rows per day, regardless of quality. A row
// with a degraded reading still represents a registered incident.
func trafficDaily(t *csvTable) []dailyValue {
	if t == nil {
		return nil
	}
	fi := t.col("fecha")
	if fi < 0 {
		return nil
	}
	counts := make(map[string]int)
	dates := make(map[string]time.Time)
	for _, row := range t.rows {
		fecha, ok := parseTimestamp(field(row, fi))
		if !ok {
			continue
		}
		k := dayKey(fecha)
		counts[k]++
		if _, ok := dates[k]; !ok {
			dates[k] = time.Date(fecha.Year(), fecha.Month(), fecha.Day(), 0, 0, 0, 0, time.UTC)
		}
	}
	daily := make([]dailyValue, 0, len(counts))
	for k, n := range counts {
		daily = append(daily, dailyValue{date: dates[k], mean: float64(n), n: n})
	}
	sort.Slice(daily, func(i, j int) bool { return daily[i].date.Before(daily[j].date) })
	return daily
}

type meteoDaily struct {
	date   time.Time
	precip float64
	temp   float64
}

// weatherDaily averages the weather variables per day. Days where every
// reading is blank keep NaN for that variable.
func weatherDaily(t *csvTable) []meteoDaily {
	if t == nil {
		return nil
	}
	fi, pi, ti := t.col("fecha"), t.col("precipitacion_mm"), t.col("temp_c")
	if fi < 0 || pi < 0 || ti < 0 {
		return nil
	}
	type agg struct {
		date   time.Time
		precip meanAgg
		temp   meanAgg
	}
	groups := make(map[string]*agg)
	for _, row := range t.rows {
		fecha, ok := parseTimestamp(field(row, fi))
		if !ok {
			continue
		}
		k := dayKey(fecha)
		a := groups[k]
		if a == nil {
			a = &agg{date: time.Date(fecha.Year(), fecha.Month(), fecha.Day(), 0, 0, 0, 0, time.UTC)}
			groups[k] = a
		}
		if v, ok := parseNumber(field(row, pi)); ok {
			a.precip.add(v)
		}
		if v, ok := parseNumber(field(row, ti)); ok {
			a.temp.add(v)
		}
	}
	daily := make([]meteoDaily, 0, len(groups))
	for _, a := range groups {
		d := meteoDaily{date: a.date, precip: math.NaN(), temp: math.NaN()}
		if a.precip.n > 0 {
			d.precip = a.precip.mean()
		}
		if a.temp.n > 0 {
			d.temp = a.temp.mean()
		}
		daily = append(daily, d)
	}
	sort.Slice(daily, func(i, j int) bool { return daily[i].date.Before(daily[j].date) })
	return daily
}

// baselineDay reports whether a date can serve as baseline for an event:
// same month and weekday profile, no overlap with any event, and no
// significant rain on record.
func baselineDay(date time.Time, ev *cityEvent, allEventDays map[string]bool, precipByDay map[string]float64) bool {
	if !ev.months[int(date.Month())] {
		return false
	}
	if !ev.weekdays[mondayWeekday(date)] {
		return false
	}
	if allEventDays[dayKey(date)] {
		return false
	}
	if p, ok := precipByDay[dayKey(date)]; ok && !math.IsNaN(p) && p > baselineRainLimit {
		return false
	}
	return true
}

func nanMean(vals []float64) float64 {
	var a meanAgg
	for _, v := range vals {
		if !math.IsNaN(v) {
			a.add(v)
		}
	}
	if a.n == 0 {
		return math.NaN()
	}
	return a.mean()
}

func roundCell(v float64, digits int) string {
	if math.IsNaN(v) {
		return ""
	}
	switch digits {
	case 1:
		return formatFloat(round1(v))
	default:
		return formatFloat(round2(v))
	}
}

// CorrelateEvents measures how city events move pollution and traffic
// against comparable quiet days. Output is one row per event and pollutant
// in impacto_eventos.csv. Returns the number of rows written.
func CorrelateEvents(p Paths) (int, error) {
	events, err := loadEvents(p.EventsFile)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, fmt.Errorf("no usable events in %s", p.EventsFile)
	}
	log.Infof("events: %d events loaded", len(events))

	var contam *csvTable
	if t, err := readCSV(p.cleanFile("contaminacion_normalizada.csv")); err == nil {
		contam = t
	} else {
		log.Warnf("events: no contamination dataset: %v", err)
	}
	var traffic *csvTable
	if t, err := readCSV(p.cleanFile("trafico_limpio.csv")); err == nil {
		traffic = t
	} else {
		log.Warnf("events: no traffic dataset: %v", err)
	}
	var weather *csvTable
	if t, err := readCSV(p.cleanFile("meteorologia_limpio.csv")); err == nil {
		weather = t
	} else {
		log.Warnf("events: no weather dataset: %v", err)
	}

	contamByVar := contamDaily(contam)
	trafficDays := trafficDaily(traffic)
	meteoDays := weatherDaily(weather)

	precipByDay := make(map[string]float64, len(meteoDays))
	for _, d := range meteoDays {
		precipByDay[dayKey(d.date)] = d.precip
	}

	allEventDays := make(map[string]bool)
	for _, ev := range events {
		for d := range ev.days {
			allEventDays[d] = true
		}
	}

	variables := make([]string, 0, len(contamByVar))
	for v := range contamByVar {
		variables = append(variables, v)
	}
	sort.Strings(variables)

	var rows [][]string
	for _, ev := range events {
		tempEv, tempBl := math.NaN(), math.NaN()
		precipEv, precipBl := math.NaN(), math.NaN()
		if len(meteoDays) > 0 {
			var evTemp, evPrecip, blTemp, blPrecip []float64
			for _, d := range meteoDays {
				if ev.days[dayKey(d.date)] {
					evTemp = append(evTemp, d.temp)
					evPrecip = append(evPrecip, d.precip)
				}
				if baselineDay(d.date, ev, allEventDays, precipByDay) {
					blTemp = append(blTemp, d.temp)
					blPrecip = append(blPrecip, d.precip)
				}
			}
			tempEv, precipEv = nanMean(evTemp), nanMean(evPrecip)
			tempBl, precipBl = nanMean(blTemp), nanMean(blPrecip)
		}

		trafficPct := math.NaN()
		if len(trafficDays) > 0 {
			var evCounts, blCounts []float64
			for _, d := range trafficDays {
				if ev.days[dayKey(d.date)] {
					evCounts = append(evCounts, d.mean)
				}
				if baselineDay(d.date, ev, allEventDays, precipByDay) {
					blCounts = append(blCounts, d.mean)
				}
			}
			evMean, blMean := nanMean(evCounts), nanMean(blCounts)
			if !math.IsNaN(evMean) && !math.IsNaN(blMean) && blMean > 0 {
				trafficPct = (evMean - blMean) / blMean * 100
			}
		}

		if len(variables) > 0 {
			for _, vari := range variables {
				var evMeans, blMeans []float64
				evDays, blDays := 0, 0
				for _, d := range contamByVar[vari] {
					if ev.days[dayKey(d.date)] {
						evMeans = append(evMeans, d.mean)
						evDays++
					}
					if baselineDay(d.date, ev, allEventDays, precipByDay) {
						blMeans = append(blMeans, d.mean)
						blDays++
					}
				}
				evMean, blMean := nanMean(evMeans), nanMean(blMeans)
				pct := math.NaN()
				if !math.IsNaN(evMean) && !math.IsNaN(blMean) && blMean > 0 {
					pct = (evMean - blMean) / blMean * 100
				}
				rows = append(rows, []string{
					ev.id, ev.nombre, ev.tipo, ev.impacto,
					ev.inicio.Format("2006-01-02"), ev.fin.Format("2006-01-02"),
					vari,
					roundCell(evMean, 2), roundCell(blMean, 2), roundCell(pct, 2),
					strconv.Itoa(evDays), strconv.Itoa(blDays),
					roundCell(tempEv, 1), roundCell(tempBl, 1),
					roundCell(precipEv, 2), roundCell(precipBl, 2),
					roundCell(trafficPct, 2),
				})
			}
		} else {
			// No pollution data at all. Keep the event visible with the
			// traffic and weather context it does have.
			rows = append(rows, []string{
				ev.id, ev.nombre, ev.tipo, ev.impacto,
				ev.inicio.Format("2006-01-02"), ev.fin.Format("2006-01-02"),
				"sin_datos",
				"", "", "",
				strconv.Itoa(len(ev.days)), "0",
				roundCell(tempEv, 1), roundCell(tempBl, 1),
				roundCell(precipEv, 2), roundCell(precipBl, 2),
				roundCell(trafficPct, 2),
			})
		}
	}

	if err := writeCSV(p.cleanFile("impacto_eventos.csv"), eventColumns, rows); err != nil {
		return 0, err
	}
	log.Infof("events: %d impact rows for %d events", len(rows), len(events))
	return len(rows), nil
}
