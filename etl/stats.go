package etl

import (
	"fmt"
	"sort"
	"strconv"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// stationBarrios maps air quality stations onto the city district they sit
// in. Stations without an entry are left out of the per-district table.
var stationBarrios = map[string]string{
	"46250001": "Quatre Carreres",
	"46250004": "Jesús",
	"46250030": "Jesús",
	"46250047": "Benimaclet",
	"46250050": "Patraix",
	"46250054": "Ciutat Vella",
}

type meanAgg struct {
	sum float64
	n   int
}

func (a *meanAgg) add(v float64) { a.sum += v; a.n++ }

func (a *meanAgg) mean() float64 { return a.sum / float64(a.n) }

// ComputeStats derives the aggregate tables under estadisticas/ from the
// normalized datasets: annual contamination means per district, monthly
// precipitation means, one combined trend row per year and a linear trend
// slope per pollutant. Returns the number of tables written.
func ComputeStats(p Paths) (int, error) {
	air, airErr := readCSV(p.cleanFile("contaminacion_normalizada.csv"))
	if airErr != nil {
		log.Warnf("stats: no contamination dataset: %v", airErr)
		air = nil
	}
	weather, weatherErr := readCSV(p.cleanFile("meteorologia_limpio.csv"))
	if weatherErr != nil {
		log.Warnf("stats: no weather dataset: %v", weatherErr)
		weather = nil
	}
	if air == nil && weather == nil {
		return 0, fmt.Errorf("no normalized datasets under %s", p.CleanDir)
	}

	written := 0

	if air != nil {
		rows := annualByBarrio(air)
		if len(rows) > 0 {
			path := p.statsFile("contaminacion_media_anual_barrio.csv")
			if err := writeCSVExcel(path, []string{"año", "barrio", "variable", "media_anual", "n_registros", "unidad"}, rows); err != nil {
				return written, err
			}
			log.Infof("stats: contamination by district, %d rows", len(rows))
			written++
		} else {
			log.Warnf("stats: no valid contamination rows for the district table")
		}
	}

	if weather != nil {
		rows := monthlyPrecipitation(weather)
		if len(rows) > 0 {
			path := p.statsFile("precipitacion_media_mensual.csv")
			if err := writeCSVExcel(path, []string{"año", "mes", "precipitacion_media_mm", "n_registros"}, rows); err != nil {
				return written, err
			}
			log.Infof("stats: monthly precipitation, %d rows", len(rows))
			written++
		} else {
			log.Warnf("stats: no valid precipitation rows")
		}
	}

	header, rows := historicTrends(air, weather)
	if len(rows) > 0 {
		path := p.statsFile("tendencias_historicas.csv")
		if err := writeCSVExcel(path, header, rows); err != nil {
			return written, err
		}
		log.Infof("stats: historic trends, %d years", len(rows))
		written++
	}

	if air != nil {
		rows := trendSlopes(air)
		if len(rows) > 0 {
			path := p.statsFile("tendencias_pendientes.csv")
			if err := writeCSVExcel(path, []string{"variable", "año_inicio", "año_fin", "pendiente_anual", "n_años"}, rows); err != nil {
				return written, err
			}
			log.Infof("stats: trend slopes for %d variables", len(rows))
			written++
		}
	}

	if written == 0 {
		return 0, fmt.Errorf("no statistics tables produced")
	}
	return written, nil
}

// annualByBarrio groups validated contamination readings by year, district
// and pollutant. Row count travels with each mean so consumers can judge
// how solid it is.
func annualByBarrio(t *csvTable) [][]string {
	fi, si, vi, xi, qi := t.col("fecha_utc"), t.col("estacion_id"), t.col("variable"), t.col("valor"), t.col("calidad_dato")
	if fi < 0 || si < 0 || vi < 0 || xi < 0 || qi < 0 {
		return nil
	}

	type key struct {
		year   int
		barrio string
		vari   string
	}
	groups := make(map[key]*meanAgg)
	unmapped := make(map[string]bool)
	for _, row := range t.rows {
		if field(row, qi) != QualityOK {
			continue
		}
		barrio := stationBarrios[field(row, si)]
		if barrio == "" {
			unmapped[field(row, si)] = true
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
		k := key{fecha.Year(), barrio, field(row, vi)}
		a := groups[k]
		if a == nil {
			a = &meanAgg{}
			groups[k] = a
		}
		a.add(val)
	}
	if len(unmapped) > 0 {
		log.Warnf("stats: %d stations without a district mapping", len(unmapped))
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		if keys[i].barrio != keys[j].barrio {
			return keys[i].barrio < keys[j].barrio
		}
		return keys[i].vari < keys[j].vari
	})

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		a := groups[k]
		rows = append(rows, []string{
			strconv.Itoa(k.year),
			k.barrio,
			k.vari,
			formatFloat(round2(a.mean())),
			strconv.Itoa(a.n),
			"µg/m³",
		})
	}
	return rows
}

// monthlyPrecipitation averages validated precipitation per calendar month.
func monthlyPrecipitation(t *csvTable) [][]string {
	fi, pi, qi := t.col("fecha"), t.col("precipitacion_mm"), t.col("calidad_dato")
	if fi < 0 || pi < 0 || qi < 0 {
		return nil
	}

	type key struct{ year, month int }
	groups := make(map[key]*meanAgg)
	for _, row := range t.rows {
		if field(row, qi) != QualityOK {
			continue
		}
		fecha, ok := parseTimestamp(field(row, fi))
		if !ok {
			continue
		}
		val, ok := parseNumber(field(row, pi))
		if !ok {
			continue
		}
		k := key{fecha.Year(), int(fecha.Month())}
		a := groups[k]
		if a == nil {
			a = &meanAgg{}
			groups[k] = a
		}
		a.add(val)
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].month < keys[j].month
	})

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		a := groups[k]
		rows = append(rows, []string{
			strconv.Itoa(k.year),
			strconv.Itoa(k.month),
			formatFloat(round2(a.mean())),
			strconv.Itoa(a.n),
		})
	}
	return rows
}

// contaminationByYear aggregates validated readings per (year, pollutant).
func contaminationByYear(t *csvTable) map[int]map[string]*meanAgg {
	fi, vi, xi, qi := t.col("fecha_utc"), t.col("variable"), t.col("valor"), t.col("calidad_dato")
	if fi < 0 || vi < 0 || xi < 0 || qi < 0 {
		return nil
	}
	years := make(map[int]map[string]*meanAgg)
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
		vars := years[fecha.Year()]
		if vars == nil {
			vars = make(map[string]*meanAgg)
			years[fecha.Year()] = vars
		}
		a := vars[field(row, vi)]
		if a == nil {
			a = &meanAgg{}
			vars[field(row, vi)] = a
		}
		a.add(val)
	}
	return years
}

// historicTrends joins the annual contamination and weather means into one
// wide table with a row per year. Years covered by only one of the datasets
// keep empty cells for the other.
func historicTrends(air, weather *csvTable) ([]string, [][]string) {
	var contamYears map[int]map[string]*meanAgg
	if air != nil {
		contamYears = contaminationByYear(air)
	}

	type meteoYear struct {
		temp    meanAgg
		precip  meanAgg
		humedad meanAgg
	}
	meteoYears := make(map[int]*meteoYear)
	if weather != nil {
		fi, pi, ti, hi, qi := weather.col("fecha"), weather.col("precipitacion_mm"), weather.col("temp_c"), weather.col("humedad_pct"), weather.col("calidad_dato")
		if fi >= 0 && pi >= 0 && ti >= 0 && hi >= 0 && qi >= 0 {
			for _, row := range weather.rows {
				if field(row, qi) != QualityOK {
					continue
				}
				fecha, ok := parseTimestamp(field(row, fi))
				if !ok {
					continue
				}
				y := meteoYears[fecha.Year()]
				if y == nil {
					y = &meteoYear{}
					meteoYears[fecha.Year()] = y
				}
				if v, ok := parseNumber(field(row, ti)); ok {
					y.temp.add(v)
				}
				if v, ok := parseNumber(field(row, pi)); ok {
					y.precip.add(v)
				}
				if v, ok := parseNumber(field(row, hi)); ok {
					y.humedad.add(v)
				}
			}
		}
	}

	if len(contamYears) == 0 && len(meteoYears) == 0 {
		return nil, nil
	}

	variables := make(map[string]bool)
	yearSet := make(map[int]bool)
	for year, vars := range contamYears {
		yearSet[year] = true
		for v := range vars {
			variables[v] = true
		}
	}
	for year := range meteoYears {
		yearSet[year] = true
	}

	contamVars := make([]string, 0, len(variables))
	for v := range variables {
		contamVars = append(contamVars, v)
	}
	sort.Strings(contamVars)

	years := make([]int, 0, len(yearSet))
	for y := range yearSet {
		years = append(years, y)
	}
	sort.Ints(years)

	header := []string{"año"}
	for _, v := range contamVars {
		header = append(header, v+"_ugm3")
	}
	for _, v := range contamVars {
		header = append(header, v+"_n_registros")
	}
	if len(meteoYears) > 0 {
		header = append(header,
			"temp_media_c", "temp_c_n_registros",
			"precipitacion_media_mm", "precipitacion_mm_n_registros",
			"humedad_media_pct", "humedad_pct_n_registros",
		)
	}

	meanCell := func(a *meanAgg) string {
		if a == nil || a.n == 0 {
			return ""
		}
		return formatFloat(round2(a.mean()))
	}
	countCell := func(a *meanAgg) string {
		if a == nil || a.n == 0 {
			return ""
		}
		return strconv.Itoa(a.n)
	}

	rows := make([][]string, 0, len(years))
	for _, year := range years {
		row := []string{strconv.Itoa(year)}
		vars := contamYears[year]
		for _, v := range contamVars {
			row = append(row, meanCell(vars[v]))
		}
		for _, v := range contamVars {
			row = append(row, countCell(vars[v]))
		}
		if len(meteoYears) > 0 {
			if y := meteoYears[year]; y != nil {
				row = append(row,
					meanCell(&y.temp), countCell(&y.temp),
					meanCell(&y.precip), countCell(&y.precip),
					meanCell(&y.humedad), countCell(&y.humedad),
				)
			} else {
				row = append(row, "", "", "", "", "", "")
			}
		}
		rows = append(rows, row)
	}
	return header, rows
}

// trendSlopes fits a least squares line through the annual means of each
// pollutant and reports the slope in µg/m³ per year. Variables with fewer
// than two years of data carry no trend.
func trendSlopes(air *csvTable) [][]string {
	contamYears := contaminationByYear(air)
	if len(contamYears) == 0 {
		return nil
	}

	byVariable := make(map[string]map[int]float64)
	for year, vars := range contamYears {
		for v, a := range vars {
			if byVariable[v] == nil {
				byVariable[v] = make(map[int]float64)
			}
			byVariable[v][year] = a.mean()
		}
	}

	var rows [][]string
	for _, vari := range canonicalVariables {
		annual := byVariable[vari]
		if len(annual) < 2 {
			continue
		}
		years := make([]int, 0, len(annual))
		for y := range annual {
			years = append(years, y)
		}
		sort.Ints(years)

		xs := make([]float64, len(years))
		ys := make([]float64, len(years))
		for i, y := range years {
			xs[i] = float64(y)
			ys[i] = annual[y]
		}
		_, beta := stat.LinearRegression(xs, ys, nil, false)

		rows = append(rows, []string{
			vari,
			strconv.Itoa(years[0]),
			strconv.Itoa(years[len(years)-1]),
			strconv.FormatFloat(beta, 'f', 4, 64),
			strconv.Itoa(len(years)),
		})
	}
	return rows
}
