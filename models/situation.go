package models

import "time"

// TrafficSituation is one DGT incident record as stored for the API.
// Location columns come from the Spanish DATEX II extension and may be
// empty when the feed omits them.
type TrafficSituation struct {
	TS           time.Time `gorm:"column:ts;primaryKey" json:"ts"`
	RecordID     string    `gorm:"column:record_id;primaryKey" json:"record_id"`
	SituationID  string    `gorm:"column:situation_id" json:"situation_id"`
	Tipo         string    `gorm:"column:tipo" json:"tipo"`
	Severidad    string    `gorm:"column:severidad" json:"severidad"`
	Probabilidad string    `gorm:"column:probabilidad" json:"probabilidad"`
	Carretera    string    `gorm:"column:carretera" json:"carretera"`
	Municipio    string    `gorm:"column:municipio" json:"municipio"`
	Provincia    string    `gorm:"column:provincia" json:"provincia"`
	Lat          *float64  `gorm:"column:lat" json:"lat"`
	Lon          *float64  `gorm:"column:lon" json:"lon"`
}

func (TrafficSituation) TableName() string { return "traffic_situations" }
