package datex

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"
)

// Measurement is one reading from a traffic measurement point,
// assembled from the TrafficFlow, TrafficSpeed and TrafficConcentration
// basic data blocks of a site.
type Measurement struct {
	Time         time.Time
	PointID      string
	Intensity    float64
	Speed        float64
	Occupancy    float64
	HasIntensity bool
	HasSpeed     bool
	HasOccupancy bool
}

// MeasuredFeed is a parsed MeasuredDataPublication snapshot.
type MeasuredFeed struct {
	PublicationTime time.Time
	Measurements    []Measurement
}

type measuredModel struct {
	XMLName xml.Name        `xml:"d2LogicalModel"`
	Payload measuredPayload `xml:"payloadPublication"`
}

type measuredPayload struct {
	Type             string            `xml:"http://www.w3.org/2001/XMLSchema-instance type,attr"`
	PublicationTime  string            `xml:"publicationTime"`
	SiteMeasurements []siteMeasurement `xml:"siteMeasurements"`
}

type siteMeasurement struct {
	SiteReference siteReference  `xml:"measurementSiteReference"`
	TimeDefault   string         `xml:"measurementTimeDefault"`
	Values        []indexedValue `xml:"measuredValue"`
}

type siteReference struct {
	ID string `xml:"id,attr"`
}

type indexedValue struct {
	Index int           `xml:"index,attr"`
	Inner measuredInner `xml:"measuredValue"`
}

type measuredInner struct {
	BasicData basicData `xml:"basicData"`
}

type basicData struct {
	Type         string        `xml:"http://www.w3.org/2001/XMLSchema-instance type,attr"`
	VehicleFlow  *vehicleFlow  `xml:"vehicleFlow"`
	AverageSpeed *averageSpeed `xml:"averageVehicleSpeed"`
	Occupancy    *occupancy    `xml:"occupancy"`
}

type vehicleFlow struct {
	Rate float64 `xml:"vehicleFlowRate"`
}

type averageSpeed struct {
	Speed float64 `xml:"speed"`
}

type occupancy struct {
	Percentage float64 `xml:"percentage"`
}

// ParseMeasured decodes a MeasuredDataPublication snapshot into one
// Measurement per site. A site without a usable timestamp inherits the
// publication time; a site without an id is dropped.
func ParseMeasured(r io.Reader) (*MeasuredFeed, error) {
	var model measuredModel
	if err := xml.NewDecoder(r).Decode(&model); err != nil {
		return nil, fmt.Errorf("decode measured data publication: %w", err)
	}

	feed := &MeasuredFeed{}
	if t, ok := parseTime(model.Payload.PublicationTime); ok {
		feed.PublicationTime = t
	}

	for _, site := range model.Payload.SiteMeasurements {
		if site.SiteReference.ID == "" {
			continue
		}

		m := Measurement{PointID: site.SiteReference.ID}
		if t, ok := parseTime(site.TimeDefault); ok {
			m.Time = t
		} else {
			m.Time = feed.PublicationTime
		}
		if m.Time.IsZero() {
			continue
		}

		for _, v := range site.Values {
			bd := v.Inner.BasicData
			switch localType(bd.Type) {
			case "TrafficFlow":
				if bd.VehicleFlow != nil {
					m.Intensity = bd.VehicleFlow.Rate
					m.HasIntensity = true
				}
			case "TrafficSpeed":
				if bd.AverageSpeed != nil {
					m.Speed = bd.AverageSpeed.Speed
					m.HasSpeed = true
				}
			case "TrafficConcentration":
				if bd.Occupancy != nil {
					m.Occupancy = bd.Occupancy.Percentage
					m.HasOccupancy = true
				}
			}
		}

		if !m.HasIntensity && !m.HasSpeed && !m.HasOccupancy {
			continue
		}
		feed.Measurements = append(feed.Measurements, m)
	}

	return feed, nil
}
