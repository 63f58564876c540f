package models

import "time"

// AirQualityMeasurement is one canonical pollutant reading. Rows
// flagged invalid by the range validation are kept, so consumers must
// filter on CalidadDato themselves.
type AirQualityMeasurement struct {
	FechaUTC       time.Time `gorm:"column:fecha_utc;primaryKey" json:"fecha_utc"`
	EstacionID     string    `gorm:"column:estacion_id;primaryKey" json:"estacion_id"`
	Variable       string    `gorm:"column:variable;primaryKey" json:"variable"`
	EstacionNombre string    `gorm:"column:estacion_nombre" json:"estacion_nombre"`
	Fuente         string    `gorm:"column:fuente" json:"fuente"`
	Valor          *float64  `gorm:"column:valor" json:"valor"`
	Unidad         string    `gorm:"column:unidad" json:"unidad"`
	CalidadDato    string    `gorm:"column:calidad_dato" json:"calidad_dato"`
}

func (AirQualityMeasurement) TableName() string { return "air_quality_measurements" }
