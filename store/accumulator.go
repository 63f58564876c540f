// Package store persists capture output: the accumulated measurement
// CSV, timestamped raw snapshots and the optional TimescaleDB sink.
package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"valencia-data-detective/datex"
)

var accumulatorHeader = []string{"fecha", "hora", "punto_medida", "intensidad", "velocidad", "ocupacion"}

// DefaultAccumulatorPath places the accumulated measurement file next
// to the traffic snapshots, where the ETL expects to find it.
func DefaultAccumulatorPath(dataDir string) string {
	return filepath.Join(dataDir, "dinamicos", "trafico", "mediciones_acumuladas.csv")
}

// Accumulator appends traffic measurements to a long-lived CSV without
// duplicating rows across runs. Each row is keyed by timestamp and
// measurement point, so re-capturing a feed the DGT has not refreshed
// yet is a no-op and restarts never corrupt the history.
type Accumulator struct {
	path string
	seen map[string]struct{}
}

// OpenAccumulator loads the dedup index from an existing CSV, creating
// the file with its header when absent.
func OpenAccumulator(path string) (*Accumulator, error) {
	acc := &Accumulator{path: path, seen: make(map[string]struct{})}

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		if err := acc.create(); err != nil {
			return nil, err
		}
		return acc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open accumulated csv: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read accumulated csv: %w", err)
		}
		if first {
			first = false
			if len(record) > 0 && record[0] == accumulatorHeader[0] {
				continue
			}
		}
		if len(record) < 3 {
			continue
		}
		acc.seen[rowKey(record[0], record[1], record[2])] = struct{}{}
	}

	return acc, nil
}

func (a *Accumulator) create() error {
	if dir := filepath.Dir(a.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	file, err := os.Create(a.path)
	if err != nil {
		return fmt.Errorf("create accumulated csv: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(accumulatorHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	return writer.Error()
}

// Append writes the measurements not seen before and reports how many
// rows were added and how many were dropped as duplicates. The file is
// opened per call so a long-running capture loop holds no descriptor
// between cycles.
func (a *Accumulator) Append(measurements []datex.Measurement) (added, duplicates int, err error) {
	var rows [][]string
	var keys []string
	batch := make(map[string]struct{})
	for _, m := range measurements {
		fecha := m.Time.UTC().Format("2006-01-02")
		hora := m.Time.UTC().Format("15:04:05")
		key := rowKey(fecha, hora, m.PointID)

		if _, dup := a.seen[key]; dup {
			duplicates++
			continue
		}
		if _, dup := batch[key]; dup {
			duplicates++
			continue
		}
		batch[key] = struct{}{}

		rows = append(rows, []string{
			fecha,
			hora,
			m.PointID,
			formatReading(m.Intensity, m.HasIntensity),
			formatReading(m.Speed, m.HasSpeed),
			formatReading(m.Occupancy, m.HasOccupancy),
		})
		keys = append(keys, key)
	}
	if len(rows) == 0 {
		return 0, duplicates, nil
	}

	file, err := os.OpenFile(a.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, duplicates, fmt.Errorf("open accumulated csv: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.WriteAll(rows); err != nil {
		return 0, duplicates, fmt.Errorf("append rows: %w", err)
	}

	// Keys are committed only after the rows reach disk, so a failed
	// write leaves them eligible for the next cycle.
	for _, key := range keys {
		a.seen[key] = struct{}{}
	}
	return len(rows), duplicates, nil
}

// Size returns the number of distinct rows tracked, including those
// loaded from disk.
func (a *Accumulator) Size() int {
	return len(a.seen)
}

// Path returns the CSV location.
func (a *Accumulator) Path() string {
	return a.path
}

func rowKey(fecha, hora, punto string) string {
	return fecha + " " + hora + "|" + punto
}

// formatReading renders a sensor value as an integer column, leaving
// the cell empty when the site did not publish that metric.
func formatReading(value float64, present bool) string {
	if !present {
		return ""
	}
	return strconv.Itoa(int(math.Round(value)))
}
