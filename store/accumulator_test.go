package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"valencia-data-detective/datex"
)

func sampleMeasurement(ts time.Time, point string) datex.Measurement {
	return datex.Measurement{
		Time:         ts,
		PointID:      point,
		Intensity:    1250,
		Speed:        78,
		Occupancy:    45,
		HasIntensity: true,
		HasSpeed:     true,
		HasOccupancy: true,
	}
}

func TestAccumulatorCreatesFileWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "trafico_acumulado.csv")

	acc, err := OpenAccumulator(path)
	if err != nil {
		t.Fatalf("OpenAccumulator failed: %v", err)
	}
	if acc.Size() != 0 {
		t.Errorf("Expected empty index, got %d", acc.Size())
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected the file to exist: %v", err)
	}
	if strings.TrimSpace(string(content)) != "fecha,hora,punto_medida,intensidad,velocidad,ocupacion" {
		t.Errorf("Unexpected header: %q", content)
	}
}

func TestAccumulatorAppendsAndDeduplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trafico_acumulado.csv")
	acc, err := OpenAccumulator(path)
	if err != nil {
		t.Fatalf("OpenAccumulator failed: %v", err)
	}

	ts := time.Date(2026, 2, 6, 14, 30, 0, 0, time.UTC)
	first := []datex.Measurement{
		sampleMeasurement(ts, "PM_V30_KM5"),
		sampleMeasurement(ts, "PM_A7_KM332"),
	}

	added, dups, err := acc.Append(first)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if added != 2 || dups != 0 {
		t.Errorf("Expected 2 added / 0 duplicates, got %d/%d", added, dups)
	}

	// Same feed again plus one new point.
	second := append(first, sampleMeasurement(ts.Add(5*time.Minute), "PM_V30_KM5"))
	added, dups, err = acc.Append(second)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if added != 1 || dups != 2 {
		t.Errorf("Expected 1 added / 2 duplicates, got %d/%d", added, dups)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected header plus 3 rows, got %d lines", len(lines))
	}
	if lines[1] != "2026-02-06,14:30:00,PM_V30_KM5,1250,78,45" {
		t.Errorf("Unexpected first row: %q", lines[1])
	}
}

func TestAccumulatorSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trafico_acumulado.csv")
	ts := time.Date(2026, 2, 6, 14, 30, 0, 0, time.UTC)

	acc, err := OpenAccumulator(path)
	if err != nil {
		t.Fatalf("OpenAccumulator failed: %v", err)
	}
	if _, _, err := acc.Append([]datex.Measurement{sampleMeasurement(ts, "PM_V30_KM5")}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	reopened, err := OpenAccumulator(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	if reopened.Size() != 1 {
		t.Errorf("Expected 1 row in the reloaded index, got %d", reopened.Size())
	}

	added, dups, err := reopened.Append([]datex.Measurement{sampleMeasurement(ts, "PM_V30_KM5")})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if added != 0 || dups != 1 {
		t.Errorf("Expected the row to deduplicate across restarts, got added=%d dups=%d", added, dups)
	}
}

func TestAccumulatorDeduplicatesWithinBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trafico_acumulado.csv")
	acc, err := OpenAccumulator(path)
	if err != nil {
		t.Fatalf("OpenAccumulator failed: %v", err)
	}

	ts := time.Date(2026, 2, 6, 14, 30, 0, 0, time.UTC)
	added, dups, err := acc.Append([]datex.Measurement{
		sampleMeasurement(ts, "PM_V30_KM5"),
		sampleMeasurement(ts, "PM_V30_KM5"),
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if added != 1 || dups != 1 {
		t.Errorf("Expected 1 added / 1 duplicate, got %d/%d", added, dups)
	}
}

func TestAccumulatorMissingReadingsStayEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trafico_acumulado.csv")
	acc, err := OpenAccumulator(path)
	if err != nil {
		t.Fatalf("OpenAccumulator failed: %v", err)
	}

	m := datex.Measurement{
		Time:     time.Date(2026, 2, 6, 14, 30, 0, 0, time.UTC),
		PointID:  "PM_A7_KM332",
		Speed:    102.5,
		HasSpeed: true,
	}
	if _, _, err := acc.Append([]datex.Measurement{m}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if lines[1] != "2026-02-06,14:30:00,PM_A7_KM332,,103," {
		t.Errorf("Expected empty cells for missing readings, got %q", lines[1])
	}
}

func TestAccumulatorNormalizesToUTC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trafico_acumulado.csv")
	acc, err := OpenAccumulator(path)
	if err != nil {
		t.Fatalf("OpenAccumulator failed: %v", err)
	}

	madrid := time.FixedZone("CET", 3600)
	m := sampleMeasurement(time.Date(2026, 2, 6, 15, 30, 0, 0, madrid), "PM_V30_KM5")
	if _, _, err := acc.Append([]datex.Measurement{m}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	content, _ := os.ReadFile(path)
	if !strings.Contains(string(content), "2026-02-06,14:30:00,PM_V30_KM5") {
		t.Errorf("Expected UTC timestamps in the CSV, got %q", content)
	}
}
