package collector

import (
	"bytes"
	"context"
	"fmt"

	"valencia-data-detective/datex"
)

// TrafficData downloads and parses the DGT measured-data publication
// (vehicle flow, average speed and occupancy per measurement point).
// The raw XML is returned alongside the parsed feed so a snapshot can
// be kept even when parsing fails.
func (c *Client) TrafficData(ctx context.Context, url string) (*datex.MeasuredFeed, []byte, error) {
	body, err := c.get(ctx, url, acceptXML)
	if err != nil {
		return nil, nil, fmt.Errorf("download traffic data: %w", err)
	}
	feed, err := datex.ParseMeasured(bytes.NewReader(body))
	if err != nil {
		return nil, body, fmt.Errorf("parse traffic data: %w", err)
	}
	return feed, body, nil
}

// Situations downloads and parses the DGT situation publication
// (roadworks, accidents, closures and other incidents).
func (c *Client) Situations(ctx context.Context, url string) (*datex.SituationFeed, []byte, error) {
	body, err := c.get(ctx, url, acceptXML)
	if err != nil {
		return nil, nil, fmt.Errorf("download situations: %w", err)
	}
	feed, err := datex.ParseSituations(bytes.NewReader(body))
	if err != nil {
		return nil, body, fmt.Errorf("parse situations: %w", err)
	}
	return feed, body, nil
}

// CCTV downloads and parses the DGT camera site table.
func (c *Client) CCTV(ctx context.Context, url string) (*datex.CameraFeed, []byte, error) {
	body, err := c.get(ctx, url, acceptXML)
	if err != nil {
		return nil, nil, fmt.Errorf("download cctv table: %w", err)
	}
	feed, err := datex.ParseCCTVTable(bytes.NewReader(body))
	if err != nil {
		return nil, body, fmt.Errorf("parse cctv table: %w", err)
	}
	return feed, body, nil
}
