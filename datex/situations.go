package datex

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"time"
)

// SituationFeed is a parsed SituationPublication snapshot. An empty
// Situations slice means the feed reported no active incidents, which
// is a valid state, not a failure.
type SituationFeed struct {
	PublicationTime time.Time
	Description     string
	Creator         string
	Situations      []Situation
}

// Situation groups the records published under one situation id.
type Situation struct {
	ID                string
	OverallSeverity   string
	InformationStatus string
	Records           []SituationRecord
}

// SituationRecord is a single incident record with its classification,
// validity window, cause and location.
type SituationRecord struct {
	ID             string
	SituationID    string
	Version        string
	RecordType     string
	CreationTime   time.Time
	VersionTime    time.Time
	Probability    string
	Severity       string
	Source         string
	ValidityStatus string
	OverallStart   time.Time
	OverallEnd     time.Time
	CauseType      string
	DetailedCause  map[string]string
	ManagementType string
	VehicleType    string
	Compliance     string
	Location       *Location
}

// Location is the road location of a record, including the Spanish
// administrative extension fields when the feed carries them.
type Location struct {
	RoadName  string
	LaneUsage string
	From      *Point
	To        *Point
}

// Point is one end of a linear location.
type Point struct {
	Lat                 float64
	Lon                 float64
	HasCoords           bool
	AutonomousCommunity string
	Province            string
	Municipality        string
	KilometerPoint      float64
	HasKilometerPoint   bool
}

// SituationStats are the per-snapshot tallies kept for the capture log
// and the raw snapshot metadata.
type SituationStats struct {
	Total        int
	BySeverity   map[string]int
	ByCause      map[string]int
	ByManagement map[string]int
}

type situationDoc struct {
	XMLName         xml.Name
	PublicationTime string          `xml:"publicationTime"`
	FeedDescription string          `xml:"feedDescription>values>value"`
	CreatorCountry  string          `xml:"publicationCreator>country"`
	CreatorID       string          `xml:"publicationCreator>nationalIdentifier"`
	Situations      []situationXML  `xml:"situation"`
}

type situationXML struct {
	ID                string               `xml:"id,attr"`
	OverallSeverity   string               `xml:"overallSeverity"`
	InformationStatus string               `xml:"headerInformation>informationStatus"`
	Records           []situationRecordXML `xml:"situationRecord"`
}

type situationRecordXML struct {
	ID            string       `xml:"id,attr"`
	Version       string       `xml:"version,attr"`
	Type          string       `xml:"http://www.w3.org/2001/XMLSchema-instance type,attr"`
	CreationTime  string       `xml:"situationRecordCreationTime"`
	VersionTime   string       `xml:"situationRecordVersionTime"`
	Probability   string       `xml:"probabilityOfOccurrence"`
	Severity      string       `xml:"severity"`
	Source        string       `xml:"source>sourceIdentification"`
	Validity      validityXML  `xml:"validity"`
	Cause         causeXML     `xml:"cause"`
	RoadMgmt      string       `xml:"roadOrCarriagewayOrLaneManagementType"`
	NetworkMgmt   string       `xml:"networkManagementType"`
	ReroutingMgmt string       `xml:"reroutingManagementType"`
	SpeedMgmt     string       `xml:"speedManagementType"`
	VehicleType   string       `xml:"forVehiclesWithCharacteristicsOf>vehicleType"`
	Compliance    string       `xml:"complianceOption"`
	Location      *locationXML `xml:"locationReference"`
}

type validityXML struct {
	Status       string `xml:"validityStatus"`
	OverallStart string `xml:"validityTimeSpecification>overallStartTime"`
	OverallEnd   string `xml:"validityTimeSpecification>overallEndTime"`
}

type causeXML struct {
	CauseType string           `xml:"causeType"`
	Detailed  *detailedCauseXML `xml:"detailedCauseType"`
}

// The detailed cause carries one child whose tag names the subtype
// (accidentType, roadMaintenanceType, ...), so children are collected
// generically.
type detailedCauseXML struct {
	Children []anyElement `xml:",any"`
}

type anyElement struct {
	XMLName xml.Name
	Text    string `xml:",chardata"`
}

type locationXML struct {
	RoadName  string             `xml:"supplementaryPositionalDescription>roadInformation>roadName"`
	LaneUsage string             `xml:"supplementaryPositionalDescription>carriageway>lane>laneUsage"`
	Linear    *linearLocationXML `xml:"tpegLinearLocation"`
}

type linearLocationXML struct {
	From *tpegPointXML `xml:"from"`
	To   *tpegPointXML `xml:"to"`
}

type tpegPointXML struct {
	Coordinates *coordsXML     `xml:"pointCoordinates"`
	Extension   *spanishExtXML `xml:"_tpegNonJunctionPointExtension>extendedTpegNonJunctionPoint"`
}

type coordsXML struct {
	Latitude  float64 `xml:"latitude"`
	Longitude float64 `xml:"longitude"`
}

type spanishExtXML struct {
	AutonomousCommunity string `xml:"autonomousCommunity"`
	Province            string `xml:"province"`
	Municipality        string `xml:"municipality"`
	KilometerPoint      string `xml:"kilometerPoint"`
}

// ParseSituations decodes a SituationPublication snapshot.
func ParseSituations(r io.Reader) (*SituationFeed, error) {
	var doc situationDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode situation publication: %w", err)
	}

	feed := &SituationFeed{
		Description: doc.FeedDescription,
		Creator:     doc.CreatorID,
	}
	if t, ok := parseTime(doc.PublicationTime); ok {
		feed.PublicationTime = t
	}

	for _, sit := range doc.Situations {
		s := Situation{
			ID:                sit.ID,
			OverallSeverity:   sit.OverallSeverity,
			InformationStatus: sit.InformationStatus,
		}
		for _, rec := range sit.Records {
			s.Records = append(s.Records, convertRecord(sit.ID, rec))
		}
		feed.Situations = append(feed.Situations, s)
	}

	return feed, nil
}

func convertRecord(situationID string, rec situationRecordXML) SituationRecord {
	out := SituationRecord{
		ID:             rec.ID,
		SituationID:    situationID,
		Version:        rec.Version,
		RecordType:     localType(rec.Type),
		Probability:    rec.Probability,
		Severity:       rec.Severity,
		Source:         rec.Source,
		ValidityStatus: rec.Validity.Status,
		CauseType:      rec.Cause.CauseType,
		VehicleType:    rec.VehicleType,
		Compliance:     rec.Compliance,
	}

	if t, ok := parseTime(rec.CreationTime); ok {
		out.CreationTime = t
	}
	if t, ok := parseTime(rec.VersionTime); ok {
		out.VersionTime = t
	}
	if t, ok := parseTime(rec.Validity.OverallStart); ok {
		out.OverallStart = t
	}
	if t, ok := parseTime(rec.Validity.OverallEnd); ok {
		out.OverallEnd = t
	}

	if rec.Cause.Detailed != nil {
		for _, child := range rec.Cause.Detailed.Children {
			text := trimText(child.Text)
			if text == "" {
				continue
			}
			if out.DetailedCause == nil {
				out.DetailedCause = make(map[string]string)
			}
			out.DetailedCause[child.XMLName.Local] = text
		}
	}

	// The management tag varies with the record class; the first one
	// present wins.
	for _, mgmt := range []string{rec.RoadMgmt, rec.NetworkMgmt, rec.ReroutingMgmt, rec.SpeedMgmt} {
		if mgmt != "" {
			out.ManagementType = mgmt
			break
		}
	}

	if rec.Location != nil {
		out.Location = convertLocation(rec.Location)
	}

	return out
}

func convertLocation(loc *locationXML) *Location {
	out := &Location{
		RoadName:  loc.RoadName,
		LaneUsage: loc.LaneUsage,
	}
	if loc.Linear != nil {
		out.From = convertPoint(loc.Linear.From)
		out.To = convertPoint(loc.Linear.To)
	}
	if out.RoadName == "" && out.LaneUsage == "" && out.From == nil && out.To == nil {
		return nil
	}
	return out
}

func convertPoint(p *tpegPointXML) *Point {
	if p == nil {
		return nil
	}
	out := &Point{}
	if p.Coordinates != nil {
		out.Lat = p.Coordinates.Latitude
		out.Lon = p.Coordinates.Longitude
		out.HasCoords = true
	}
	if p.Extension != nil {
		out.AutonomousCommunity = p.Extension.AutonomousCommunity
		out.Province = p.Extension.Province
		out.Municipality = p.Extension.Municipality
		if km, err := strconv.ParseFloat(trimText(p.Extension.KilometerPoint), 64); err == nil {
			out.KilometerPoint = km
			out.HasKilometerPoint = true
		}
	}
	if !out.HasCoords && out.AutonomousCommunity == "" && out.Province == "" && out.Municipality == "" && !out.HasKilometerPoint {
		return nil
	}
	return out
}

// Records flattens the feed into one slice of records. Records inherit
// the situation severity when they carry none of their own.
func (f *SituationFeed) Records() []SituationRecord {
	var records []SituationRecord
	for _, sit := range f.Situations {
		for _, rec := range sit.Records {
			if rec.Severity == "" {
				rec.Severity = sit.OverallSeverity
			}
			records = append(records, rec)
		}
	}
	return records
}

// Stats tallies records by severity, cause and management type, using
// the same fallback buckets the capture snapshots record.
func (f *SituationFeed) Stats() SituationStats {
	return TallyRecords(f.Records())
}

// TallyRecords builds the snapshot tallies for any record slice, so a
// filtered capture is summarized the same way as a full feed.
func TallyRecords(records []SituationRecord) SituationStats {
	stats := SituationStats{
		BySeverity:   make(map[string]int),
		ByCause:      make(map[string]int),
		ByManagement: make(map[string]int),
	}
	for _, rec := range records {
		stats.Total++

		sev := rec.Severity
		if sev == "" {
			sev = "desconocida"
		}
		stats.BySeverity[sev]++

		cause := rec.CauseType
		if cause == "" {
			cause = "desconocida"
		}
		stats.ByCause[cause]++

		mgmt := rec.ManagementType
		if mgmt == "" {
			mgmt = "no_especificado"
		}
		stats.ByManagement[mgmt]++
	}
	return stats
}
