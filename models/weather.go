package models

import "time"

// WeatherObservation is one canonical weather row. AEMET rows are
// daily means anchored at local noon; OpenWeatherMap rows carry the
// actual observation time.
type WeatherObservation struct {
	TS              time.Time `gorm:"column:ts;primaryKey" json:"ts"`
	Fuente          string    `gorm:"column:fuente;primaryKey" json:"fuente"`
	PrecipitacionMM *float64  `gorm:"column:precipitacion_mm" json:"precipitacion_mm"`
	TempC           *float64  `gorm:"column:temp_c" json:"temp_c"`
	HumedadPct      *float64  `gorm:"column:humedad_pct" json:"humedad_pct"`
	CalidadDato     string    `gorm:"column:calidad_dato" json:"calidad_dato"`
}

func (WeatherObservation) TableName() string { return "weather_observations" }
