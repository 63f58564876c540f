package store

import (
	"encoding/json"
	"time"

	"valencia-data-detective/collector"
	"valencia-data-detective/datex"
)

// The snapshot payloads keep the Spanish field names of the historical
// archive, so files written by this daemon and files already on disk
// stay interchangeable for the ETL pipeline.

// TrafficSnapshot is the parsed DATEX II situation capture.
type TrafficSnapshot struct {
	Meta        Meta              `json:"_metadata"`
	Publication *PublicationInfo  `json:"publicacion,omitempty"`
	Incidents   []TrafficIncident `json:"incidencias"`
	Stats       *IncidentStats    `json:"estadisticas,omitempty"`
}

// PublicationInfo describes the upstream feed publication.
type PublicationInfo struct {
	PublicationTime string `json:"timestamp_publicacion,omitempty"`
	Description     string `json:"descripcion,omitempty"`
	Creator         string `json:"creador,omitempty"`
}

// TrafficIncident is one situation record, flattened for JSON.
type TrafficIncident struct {
	ID             string            `json:"id,omitempty"`
	SituationID    string            `json:"situacion_id,omitempty"`
	Version        string            `json:"version,omitempty"`
	RecordType     string            `json:"tipo_datex,omitempty"`
	CreationTime   string            `json:"fecha_creacion,omitempty"`
	VersionTime    string            `json:"fecha_version,omitempty"`
	Probability    string            `json:"probabilidad,omitempty"`
	Severity       string            `json:"severidad,omitempty"`
	Source         string            `json:"fuente,omitempty"`
	ValidityStatus string            `json:"estado_vigencia,omitempty"`
	StartTime      string            `json:"fecha_inicio,omitempty"`
	EndTime        string            `json:"fecha_fin,omitempty"`
	CauseType      string            `json:"causa_tipo,omitempty"`
	DetailedCause  map[string]string `json:"causa_detalle,omitempty"`
	ManagementType string            `json:"tipo_gestion,omitempty"`
	VehicleType    string            `json:"vehiculos_afectados,omitempty"`
	Compliance     string            `json:"cumplimiento,omitempty"`
	Location       *IncidentLocation `json:"localizacion,omitempty"`
}

// IncidentLocation mirrors the location block of a record.
type IncidentLocation struct {
	Road string         `json:"carretera,omitempty"`
	Lane string         `json:"carril,omitempty"`
	From *IncidentPoint `json:"punto_from,omitempty"`
	To   *IncidentPoint `json:"punto_to,omitempty"`
}

// IncidentPoint is one end of a linear location, with the Spanish
// administrative extension fields when present.
type IncidentPoint struct {
	Lat            *float64 `json:"latitud,omitempty"`
	Lon            *float64 `json:"longitud,omitempty"`
	Community      string   `json:"comunidad_autonoma,omitempty"`
	Province       string   `json:"provincia,omitempty"`
	Municipality   string   `json:"municipio,omitempty"`
	KilometerPoint *float64 `json:"punto_kilometrico,omitempty"`
}

// IncidentStats are the per-snapshot tallies.
type IncidentStats struct {
	Total        int            `json:"total_incidencias"`
	BySeverity   map[string]int `json:"por_severidad,omitempty"`
	ByCause      map[string]int `json:"por_tipo_causa,omitempty"`
	ByManagement map[string]int `json:"por_tipo_gestion,omitempty"`
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// IncidentFromRecord converts a parsed situation record into its
// snapshot representation.
func IncidentFromRecord(rec datex.SituationRecord) TrafficIncident {
	out := TrafficIncident{
		ID:             rec.ID,
		SituationID:    rec.SituationID,
		Version:        rec.Version,
		RecordType:     rec.RecordType,
		CreationTime:   fmtTime(rec.CreationTime),
		VersionTime:    fmtTime(rec.VersionTime),
		Probability:    rec.Probability,
		Severity:       rec.Severity,
		Source:         rec.Source,
		ValidityStatus: rec.ValidityStatus,
		StartTime:      fmtTime(rec.OverallStart),
		EndTime:        fmtTime(rec.OverallEnd),
		CauseType:      rec.CauseType,
		DetailedCause:  rec.DetailedCause,
		ManagementType: rec.ManagementType,
		VehicleType:    rec.VehicleType,
		Compliance:     rec.Compliance,
	}
	if rec.Location != nil {
		out.Location = &IncidentLocation{
			Road: rec.Location.RoadName,
			Lane: rec.Location.LaneUsage,
			From: pointFromDatex(rec.Location.From),
			To:   pointFromDatex(rec.Location.To),
		}
	}
	return out
}

func pointFromDatex(p *datex.Point) *IncidentPoint {
	if p == nil {
		return nil
	}
	out := &IncidentPoint{
		Community:    p.AutonomousCommunity,
		Province:     p.Province,
		Municipality: p.Municipality,
	}
	if p.HasCoords {
		lat, lon := p.Lat, p.Lon
		out.Lat, out.Lon = &lat, &lon
	}
	if p.HasKilometerPoint {
		km := p.KilometerPoint
		out.KilometerPoint = &km
	}
	return out
}

// NewTrafficSnapshot assembles the snapshot for an already filtered
// record slice. Stats are tallied over the filtered records, not the
// full feed, so the snapshot describes what it actually contains.
func NewTrafficSnapshot(meta Meta, feed *datex.SituationFeed, records []datex.SituationRecord) TrafficSnapshot {
	meta.Records = len(records)

	incidents := make([]TrafficIncident, 0, len(records))
	for _, rec := range records {
		incidents = append(incidents, IncidentFromRecord(rec))
	}

	tally := datex.TallyRecords(records)
	snap := TrafficSnapshot{
		Meta:      meta,
		Incidents: incidents,
		Stats: &IncidentStats{
			Total:        tally.Total,
			BySeverity:   tally.BySeverity,
			ByCause:      tally.ByCause,
			ByManagement: tally.ByManagement,
		},
	}

	if feed != nil {
		pub := PublicationInfo{
			PublicationTime: fmtTime(feed.PublicationTime),
			Description:     feed.Description,
			Creator:         feed.Creator,
		}
		if pub != (PublicationInfo{}) {
			snap.Publication = &pub
		}
	}
	return snap
}

// StationsSnapshot is a per-station air quality capture (GVA or AQICN).
type StationsSnapshot struct {
	Meta     Meta                                `json:"_metadata"`
	Stations map[string]collector.StationCapture `json:"estaciones"`
}

func NewStationsSnapshot(meta Meta, res collector.StationsResult) StationsSnapshot {
	meta.Requested = res.Requested
	meta.Succeeded = res.OK
	meta.Failed = res.Failed
	return StationsSnapshot{Meta: meta, Stations: res.Stations}
}

// WeatherSnapshot keeps the raw OpenWeatherMap payloads verbatim.
type WeatherSnapshot struct {
	Meta     Meta              `json:"_metadata"`
	Weather  json.RawMessage   `json:"weather,omitempty"`
	Forecast json.RawMessage   `json:"forecast,omitempty"`
	Errors   map[string]string `json:"errores,omitempty"`
}

func NewWeatherSnapshot(meta Meta, res collector.WeatherResult) WeatherSnapshot {
	meta.Requested = res.Requested
	meta.Succeeded = res.OK
	meta.Failed = res.Failed
	return WeatherSnapshot{
		Meta:     meta,
		Weather:  res.Endpoints["weather"],
		Forecast: res.Endpoints["forecast"],
		Errors:   res.Errors,
	}
}

// CameraSnapshot is the DGT camera site inventory.
type CameraSnapshot struct {
	Meta            Meta         `json:"_metadata"`
	PublicationTime string       `json:"timestamp_publicacion,omitempty"`
	Cameras         []CameraSite `json:"camaras"`
}

// CameraSite is one CCTV site, flattened for JSON.
type CameraSite struct {
	ID          string   `json:"id,omitempty"`
	Description string   `json:"descripcion,omitempty"`
	Lat         *float64 `json:"latitud,omitempty"`
	Lon         *float64 `json:"longitud,omitempty"`
	ImageURL    string   `json:"url_imagen,omitempty"`
}

func NewCameraSnapshot(meta Meta, feed *datex.CameraFeed) CameraSnapshot {
	meta.Records = len(feed.Cameras)

	sites := make([]CameraSite, 0, len(feed.Cameras))
	for _, cam := range feed.Cameras {
		site := CameraSite{
			ID:          cam.ID,
			Description: cam.Description,
			ImageURL:    cam.ImageURL,
		}
		if cam.HasCoords {
			lat, lon := cam.Lat, cam.Lon
			site.Lat, site.Lon = &lat, &lon
		}
		sites = append(sites, site)
	}

	return CameraSnapshot{
		Meta:            meta,
		PublicationTime: fmtTime(feed.PublicationTime),
		Cameras:         sites,
	}
}
