package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"valencia-data-detective/config"
)

// ErrNoToken is returned when the AQICN pass runs without AQI_TOKEN
// configured. The WAQI API rejects anonymous requests.
var ErrNoToken = errors.New("AQI_TOKEN not configured")

// The WAQI envelope wraps the station payload in a status field; only
// the inner data block is worth keeping.
type aqicnEnvelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// AirQualityFeeds downloads the WAQI feed of every cataloged station.
// WAQI aggregates the same GVA sensors but already converts raw
// readings to index values, which makes it a useful cross-check.
func (c *Client) AirQualityFeeds(ctx context.Context, baseURL, token string, stations []config.AQICNStation) (StationsResult, error) {
	res := StationsResult{
		Requested: len(stations),
		Stations:  make(map[string]StationCapture, len(stations)),
	}
	if token == "" {
		return res, ErrNoToken
	}

	for _, st := range stations {
		capture := StationCapture{Name: st.Name}

		if st.UID == 0 {
			capture.Error = "station has no WAQI uid"
			res.Stations[st.Code] = capture
			res.Failed++
			continue
		}

		url := fmt.Sprintf("%s/feed/@%d/?token=%s", baseURL, st.UID, token)
		body, err := c.get(ctx, url, acceptJSON)
		if err != nil {
			log.WithField("station", st.Code).Warnf("aqicn capture failed: %v", err)
			capture.Error = err.Error()
			res.Stations[st.Code] = capture
			res.Failed++
			continue
		}

		var env aqicnEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			capture.Error = "response is not valid JSON"
			res.Stations[st.Code] = capture
			res.Failed++
			continue
		}
		if env.Status != "ok" {
			log.WithField("station", st.Code).Warnf("aqicn feed status %q", env.Status)
			capture.Error = fmt.Sprintf("feed status %q", env.Status)
			res.Stations[st.Code] = capture
			res.Failed++
			continue
		}

		capture.Data = env.Data
		res.Stations[st.Code] = capture
		res.OK++
	}
	return res, nil
}
