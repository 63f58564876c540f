package models

import "time"

// TrafficMeasurement mirrors the traffic_measurements table filled by
// the capture daemon. Columns match the accumulated CSV schema; a nil
// reading means the measurement point did not publish that metric.
type TrafficMeasurement struct {
	TS          time.Time `gorm:"column:ts;primaryKey" json:"ts"`
	PuntoMedida string    `gorm:"column:punto_medida;primaryKey" json:"punto_medida"`
	Intensidad  *float64  `gorm:"column:intensidad" json:"intensidad"`
	Velocidad   *float64  `gorm:"column:velocidad" json:"velocidad"`
	Ocupacion   *float64  `gorm:"column:ocupacion" json:"ocupacion"`
}

func (TrafficMeasurement) TableName() string { return "traffic_measurements" }
