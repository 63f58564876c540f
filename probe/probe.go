// Package probe investigates the DGT DATEX II endpoints to answer one
// question: can historical traffic data be obtained from them. It
// downloads each feed once, inspects the document structure for
// archive markers and documents the findings.
package probe

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"valencia-data-detective/collector"
)

const (
	sampleLimit = 3
	sampleBytes = 50000
)

// Data-bearing elements across the three DGT publications.
var dataElements = map[string]bool{
	"sitemeasurements":         true,
	"situation":                true,
	"cctvcamera":               true,
	"camera":                   true,
	"cctvcamerametadatarecord": true,
}

// Elements that would reveal an archive or date-range capability.
// None of the DGT feeds has ever carried one.
var historicalMarkers = map[string]bool{
	"historicdata": true,
	"archivedata":  true,
	"daterange":    true,
}

// Analysis describes what one DATEX II document actually contains.
type Analysis struct {
	HasData         bool
	PublicationType string
	PublicationTime string
	ElementCount    int
	SampleIDs       []string
	RealTime        bool
	HasHistorical   bool
}

// AnalyzeStructure walks the document once, counting data elements and
// looking for historical markers. Namespace prefixes are ignored so
// the same walk covers the v2 and v3 feeds.
func AnalyzeStructure(data []byte) Analysis {
	analysis := Analysis{RealTime: true}
	decoder := xml.NewDecoder(bytes.NewReader(data))

	depth := 0
	sawRoot := false
	capturePubTime := false
	captureID := false
	captureDepth := 0

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			local := strings.ToLower(t.Name.Local)

			if !sawRoot {
				analysis.PublicationType = t.Name.Local
				sawRoot = true
			}
			if local == "publicationtime" && analysis.PublicationTime == "" {
				capturePubTime = true
			}

			switch {
			case dataElements[local]:
				analysis.ElementCount++
				if len(analysis.SampleIDs) < sampleLimit && !captureID {
					if id := attrValue(t, "id"); id != "" {
						analysis.SampleIDs = append(analysis.SampleIDs, id)
					} else {
						// The measured feed keeps the id on a child
						// reference element; grab the first one.
						captureID = true
						captureDepth = depth
					}
				}
				continue
			case historicalMarkers[local]:
				analysis.HasHistorical = true
				analysis.RealTime = false
			}

			if captureID && depth > captureDepth {
				if id := attrValue(t, "id"); id != "" {
					analysis.SampleIDs = append(analysis.SampleIDs, id)
					captureID = false
				}
			}
		case xml.EndElement:
			if captureID && depth == captureDepth {
				captureID = false
			}
			capturePubTime = false
			depth--
		case xml.CharData:
			if capturePubTime {
				if text := strings.TrimSpace(string(t)); text != "" {
					analysis.PublicationTime = text
					capturePubTime = false
				}
			}
		}
	}

	analysis.HasData = analysis.ElementCount > 0
	return analysis
}

func attrValue(el xml.StartElement, name string) string {
	for _, attr := range el.Attr {
		if attr.Name.Local == name {
			return attr.Value
		}
	}
	return ""
}

// Sample truncates a document to its first 50 KB, appending a marker
// comment when content was cut.
func Sample(data []byte) []byte {
	if len(data) <= sampleBytes {
		return data
	}
	sample := make([]byte, 0, sampleBytes+64)
	sample = append(sample, data[:sampleBytes]...)
	sample = append(sample, "\n\n<!-- ... contenido truncado (muestra de 50KB) ... -->"...)
	return sample
}

// Endpoint is one DGT feed to investigate.
type Endpoint struct {
	Name string
	URL  string
}

// Investigation is the outcome of probing one endpoint.
type Investigation struct {
	Name       string
	URL        string
	Fetched    bool
	Error      string
	Analysis   Analysis
	SamplePath string
}

// Prober downloads each endpoint once, analyzes the structure and
// keeps truncated samples under Dir for the documentation.
type Prober struct {
	Client *collector.Client
	Dir    string
}

// Investigate probes the endpoints in order. Endpoints that cannot be
// fetched still produce a result so the report shows the failure.
func (p *Prober) Investigate(ctx context.Context, endpoints []Endpoint) []Investigation {
	results := make([]Investigation, 0, len(endpoints))

	for _, ep := range endpoints {
		log.WithField("endpoint", ep.Name).Info("investigating")
		inv := Investigation{Name: ep.Name, URL: ep.URL}

		body, err := p.Client.FetchXML(ctx, ep.URL)
		if err != nil {
			log.WithField("endpoint", ep.Name).Warnf("fetch failed: %v", err)
			inv.Error = err.Error()
			results = append(results, inv)
			continue
		}

		inv.Fetched = true
		inv.Analysis = AnalyzeStructure(body)
		log.WithFields(log.Fields{
			"endpoint":   ep.Name,
			"elements":   inv.Analysis.ElementCount,
			"historical": inv.Analysis.HasHistorical,
		}).Info("analyzed")

		if inv.Analysis.HasData && p.Dir != "" {
			path, err := p.saveSample(ep.Name, body)
			if err != nil {
				log.WithField("endpoint", ep.Name).Warnf("could not save sample: %v", err)
			} else {
				inv.SamplePath = path
			}
		}
		results = append(results, inv)
	}
	return results
}

func (p *Prober) saveSample(name string, data []byte) (string, error) {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create sample dir: %w", err)
	}
	filename := fmt.Sprintf("muestra_%s_%s.xml", name, time.Now().Format("20060102_150405"))
	path := filepath.Join(p.Dir, filename)
	if err := os.WriteFile(path, Sample(data), 0o644); err != nil {
		return "", fmt.Errorf("write sample: %w", err)
	}
	return path, nil
}
