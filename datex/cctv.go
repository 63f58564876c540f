package datex

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"
)

// Camera is one CCTV site from the camera table publication.
type Camera struct {
	ID          string
	Description string
	Lat         float64
	Lon         float64
	HasCoords   bool
	ImageURL    string
}

// CameraFeed is a parsed CCTVSiteTablePublication snapshot.
type CameraFeed struct {
	PublicationTime time.Time
	Cameras         []Camera
}

type cctvModel struct {
	XMLName xml.Name    `xml:"d2LogicalModel"`
	Payload cctvPayload `xml:"payloadPublication"`
}

type cctvPayload struct {
	Type            string      `xml:"http://www.w3.org/2001/XMLSchema-instance type,attr"`
	PublicationTime string      `xml:"publicationTime"`
	Cameras         []cameraXML `xml:"cctvCameraList>cctvCameraMetadataRecord"`
}

type cameraXML struct {
	ID          string     `xml:"id,attr"`
	Description string     `xml:"cctvCameraSiteLocalDescription>values>value"`
	Coordinates *coordsXML `xml:"cctvCameraLocation>pointByCoordinates>pointCoordinates"`
	ImageURL    string     `xml:"cctvStillImageService>stillImageUrl>urlLinkAddress"`
}

// ParseCCTVTable decodes the camera site table.
func ParseCCTVTable(r io.Reader) (*CameraFeed, error) {
	var model cctvModel
	if err := xml.NewDecoder(r).Decode(&model); err != nil {
		return nil, fmt.Errorf("decode cctv site table: %w", err)
	}

	feed := &CameraFeed{}
	if t, ok := parseTime(model.Payload.PublicationTime); ok {
		feed.PublicationTime = t
	}

	for _, cam := range model.Payload.Cameras {
		c := Camera{
			ID:          cam.ID,
			Description: cam.Description,
			ImageURL:    cam.ImageURL,
		}
		if cam.Coordinates != nil {
			c.Lat = cam.Coordinates.Latitude
			c.Lon = cam.Coordinates.Longitude
			c.HasCoords = true
		}
		feed.Cameras = append(feed.Cameras, c)
	}

	return feed, nil
}
