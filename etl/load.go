package etl

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"valencia-data-detective/models"
	"valencia-data-detective/store"
)

// loadBatchSize bounds a single INSERT so a multi-year backfill does
// not build one statement with millions of bind parameters.
const loadBatchSize = 500

// LoadDatabase mirrors the cleaned datasets into Postgres for the read
// API. Inserts skip rows that are already present, so reloading after
// every pipeline run only adds what the run produced. A dataset whose
// file does not exist yet is skipped silently; other per-dataset
// errors are logged and the remaining datasets still load.
func LoadDatabase(dsn string, p Paths) error {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	defer sqlDB.Close()

	// The API migrates on boot too, but the loader cannot assume the
	// API ever ran against this database.
	if err := db.AutoMigrate(
		&models.TrafficMeasurement{},
		&models.AirQualityMeasurement{},
		&models.WeatherObservation{},
	); err != nil {
		return fmt.Errorf("migrate measurement tables: %w", err)
	}

	datasets := []struct {
		name string
		load func(*gorm.DB, Paths) (int64, error)
	}{
		{"contaminacion", loadAirRows},
		{"meteorologia", loadWeatherRows},
		{"trafico", loadTrafficRows},
	}
	var firstErr error
	for _, ds := range datasets {
		inserted, err := ds.load(db, p)
		if os.IsNotExist(err) {
			log.Debugf("load %s: no dataset file yet", ds.name)
			continue
		}
		if err != nil {
			log.Errorf("load %s: %v", ds.name, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("load %s: %w", ds.name, err)
			}
			continue
		}
		log.WithFields(log.Fields{
			"dataset":  ds.name,
			"inserted": inserted,
		}).Info("dataset mirrored to database")
	}
	return firstErr
}

func loadAirRows(db *gorm.DB, p Paths) (int64, error) {
	rows, err := airRowsFromCSV(p.cleanFile("contaminacion_normalizada.csv"))
	if err != nil {
		return 0, err
	}
	return insertRows(db, rows, len(rows))
}

func loadWeatherRows(db *gorm.DB, p Paths) (int64, error) {
	rows, err := weatherRowsFromCSV(p.cleanFile("meteorologia_limpio.csv"))
	if err != nil {
		return 0, err
	}
	return insertRows(db, rows, len(rows))
}

func loadTrafficRows(db *gorm.DB, p Paths) (int64, error) {
	rows, err := trafficRowsFromCSV(store.DefaultAccumulatorPath(p.RawDir))
	if err != nil {
		return 0, err
	}
	return insertRows(db, rows, len(rows))
}

// airRowsFromCSV maps the normalized air dataset onto the gorm model.
// Rows missing any part of the primary key are dropped.
func airRowsFromCSV(path string) ([]models.AirQualityMeasurement, error) {
	table, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	var (
		fechaIdx    = table.col("fecha_utc")
		estacionIdx = table.col("estacion_id")
		nombreIdx   = table.col("estacion_nombre")
		fuenteIdx   = table.col("fuente")
		variableIdx = table.col("variable")
		valorIdx    = table.col("valor")
		unidadIdx   = table.col("unidad")
		calidadIdx  = table.col("calidad_dato")
	)

	var rows []models.AirQualityMeasurement
	for _, row := range table.rows {
		ts, ok := parseTimestamp(field(row, fechaIdx))
		if !ok {
			continue
		}
		m := models.AirQualityMeasurement{
			FechaUTC:       ts,
			EstacionID:     field(row, estacionIdx),
			Variable:       field(row, variableIdx),
			EstacionNombre: field(row, nombreIdx),
			Fuente:         field(row, fuenteIdx),
			Unidad:         field(row, unidadIdx),
			CalidadDato:    field(row, calidadIdx),
		}
		if m.EstacionID == "" || m.Variable == "" {
			continue
		}
		if v, ok := parseNumber(field(row, valorIdx)); ok {
			m.Valor = &v
		}
		rows = append(rows, m)
	}
	return rows, nil
}

func weatherRowsFromCSV(path string) ([]models.WeatherObservation, error) {
	table, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	var (
		fechaIdx   = table.col("fecha")
		precipIdx  = table.col("precipitacion_mm")
		tempIdx    = table.col("temp_c")
		humedadIdx = table.col("humedad_pct")
		fuenteIdx  = table.col("fuente")
		calidadIdx = table.col("calidad_dato")
	)

	var rows []models.WeatherObservation
	for _, row := range table.rows {
		ts, ok := parseTimestamp(field(row, fechaIdx))
		if !ok {
			continue
		}
		obs := models.WeatherObservation{
			TS:          ts,
			Fuente:      field(row, fuenteIdx),
			CalidadDato: field(row, calidadIdx),
		}
		if obs.Fuente == "" {
			continue
		}
		if v, ok := parseNumber(field(row, precipIdx)); ok {
			obs.PrecipitacionMM = &v
		}
		if v, ok := parseNumber(field(row, tempIdx)); ok {
			obs.TempC = &v
		}
		if v, ok := parseNumber(field(row, humedadIdx)); ok {
			obs.HumedadPct = &v
		}
		rows = append(rows, obs)
	}
	return rows, nil
}

func trafficRowsFromCSV(path string) ([]models.TrafficMeasurement, error) {
	table, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	var (
		fechaIdx      = table.col("fecha")
		horaIdx       = table.col("hora")
		puntoIdx      = table.col("punto_medida")
		intensidadIdx = table.col("intensidad")
		velocidadIdx  = table.col("velocidad")
		ocupacionIdx  = table.col("ocupacion")
	)

	var rows []models.TrafficMeasurement
	for _, row := range table.rows {
		// The accumulator writes fecha and hora in UTC, unlike the
		// naive local timestamps of the other raw sources.
		ts, err := time.Parse("2006-01-02 15:04:05", field(row, fechaIdx)+" "+field(row, horaIdx))
		if err != nil {
			continue
		}
		m := models.TrafficMeasurement{
			TS:          ts,
			PuntoMedida: field(row, puntoIdx),
		}
		if m.PuntoMedida == "" {
			continue
		}
		if v, ok := parseNumber(field(row, intensidadIdx)); ok {
			m.Intensidad = &v
		}
		if v, ok := parseNumber(field(row, velocidadIdx)); ok {
			m.Velocidad = &v
		}
		if v, ok := parseNumber(field(row, ocupacionIdx)); ok {
			m.Ocupacion = &v
		}
		rows = append(rows, m)
	}
	return rows, nil
}

// insertRows batch-inserts with conflicts ignored, so rows loaded by a
// previous run stay untouched and RowsAffected counts only new ones.
func insertRows(db *gorm.DB, rows any, n int) (int64, error) {
	if n == 0 {
		return 0, nil
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, loadBatchSize)
	return res.RowsAffected, res.Error
}
