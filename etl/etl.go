// Package etl turns the raw capture snapshots into the cleaned,
// analysis-ready datasets under the limpios tree. The stages mirror
// the capture sources: air quality, weather, traffic, aggregated
// statistics and event impact.
package etl

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Quality labels stored in the calidad_dato column of every cleaned
// dataset.
const (
	QualityOK      = "ok"
	QualityInvalid = "invalid"
	QualityMissing = "missing"
)

// timestampCSV is how cleaned timestamps are written, matching the
// historical archive so old and new output files mix freely.
const timestampCSV = "2006-01-02 15:04:05+00:00"

// Paths locates the raw snapshot tree and the clean output tree.
type Paths struct {
	RawDir     string
	CleanDir   string
	EventsFile string
}

func (p Paths) rawDynamic(category string) string {
	return filepath.Join(p.RawDir, "dinamicos", category)
}

func (p Paths) rawStatic(category string) string {
	return filepath.Join(p.RawDir, "estaticos", category)
}

func (p Paths) cleanFile(name string) string {
	return filepath.Join(p.CleanDir, name)
}

func (p Paths) statsFile(name string) string {
	return filepath.Join(p.CleanDir, "estadisticas", name)
}

// Source timestamps without zone information are local Madrid time.
var madridTZ = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		panic("etl: Europe/Madrid not in embedded tzdata: " + err.Error())
	}
	return loc
}()

var zonedLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp parses the timestamp formats found across the raw
// sources and returns UTC. Values without an offset are interpreted as
// Europe/Madrid local time.
func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, madridTZ); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseNumber converts the messy numeric spellings of the sources:
// comma decimals, "Ip" (lluvia inapreciable) and friends as zero,
// dashes and empty strings as missing.
func parseNumber(raw string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "", "-", "nan":
		return 0, false
	case "ip", "acum", "inapreciable", "varias":
		return 0, true
	}
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// formatFloat renders a value the way the archive does: shortest
// decimal form, NaN as an empty cell.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// csvTable is a CSV file held as header plus rows.
type csvTable struct {
	header []string
	rows   [][]string
}

// col returns the index of a header column, or -1.
func (t *csvTable) col(name string) int {
	for i, h := range t.header {
		if h == name {
			return i
		}
	}
	return -1
}

// field reads a cell bounds-safely; short rows read as empty.
func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// readCSV loads a whole CSV file, tolerating ragged rows and a UTF-8
// BOM on the first header cell.
func readCSV(path string) (*csvTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(records) == 0 {
		return &csvTable{}, nil
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return &csvTable{header: header, rows: records[1:]}, nil
}

// writeCSV writes header plus rows, creating parent directories.
func writeCSV(path string, header []string, rows [][]string) error {
	return writeCSVFile(path, header, rows, false)
}

// writeCSVExcel is writeCSV with a UTF-8 BOM so Excel opens the file
// with the right encoding. Used for the statistics tables, which are
// meant for manual inspection.
func writeCSVExcel(path string, header []string, rows [][]string) error {
	return writeCSVFile(path, header, rows, true)
}

func writeCSVFile(path string, header []string, rows [][]string, bom bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if bom {
		if _, err := f.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			f.Close()
			return err
		}
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// listSnapshots returns the snapshot files in dir matching prefix_*,
// in name order, accepting both plain and snappy-compressed captures.
func listSnapshots(dir, prefix string) []string {
	var paths []string
	for _, pattern := range []string{prefix + "_*.json", prefix + "_*.json.sz"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)
	return paths
}
