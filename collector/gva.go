package collector

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"valencia-data-detective/config"
)

// StationCapture keeps one station download verbatim for the snapshot,
// plus the catalog name so downstream tooling does not need the
// station list to label readings.
type StationCapture struct {
	Name  string          `json:"nombre"`
	Data  json.RawMessage `json:"datos"`
	Error string          `json:"error,omitempty"`
}

// StationsResult aggregates one pass over a station catalog. A partial
// pass is still useful, so individual station failures never abort it.
type StationsResult struct {
	Requested int
	OK        int
	Failed    int
	Stations  map[string]StationCapture
}

// AirStations downloads the current sensor readings of every GVA
// station in the catalog. The GVA endpoint needs no authentication.
func (c *Client) AirStations(ctx context.Context, baseURL string, stations []config.Station) StationsResult {
	res := StationsResult{
		Requested: len(stations),
		Stations:  make(map[string]StationCapture, len(stations)),
	}

	for _, st := range stations {
		url := fmt.Sprintf("%s/%s_dades.json", baseURL, st.Code)

		body, err := c.get(ctx, url, acceptJSON)
		if err != nil {
			log.WithField("station", st.Code).Warnf("gva capture failed: %v", err)
			res.Stations[st.Code] = StationCapture{Name: st.Name, Error: err.Error()}
			res.Failed++
			continue
		}
		if !json.Valid(body) {
			log.WithField("station", st.Code).Warn("gva response is not valid JSON")
			res.Stations[st.Code] = StationCapture{Name: st.Name, Error: "response is not valid JSON"}
			res.Failed++
			continue
		}

		res.Stations[st.Code] = StationCapture{Name: st.Name, Data: json.RawMessage(body)}
		res.OK++
	}
	return res
}
