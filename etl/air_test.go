package etl

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFixture(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func testPaths(t *testing.T) Paths {
	t.Helper()
	root := t.TempDir()
	return Paths{
		RawDir:     filepath.Join(root, "data"),
		CleanDir:   filepath.Join(root, "limpios"),
		EventsFile: filepath.Join(root, "data", "eventos", "eventos_clasificados.json"),
	}
}

func TestNormalizeAir(t *testing.T) {
	p := testPaths(t)

	gva := "fecha,estacion,variable,valor\n" +
		"2024-01-10 10:00:00,46250030,NO2,\"45,2\"\n" +
		"2024-01-10 11:00:00,46250030,no2,1200\n" +
		"2024-01-10 12:00:00,46250030,NO2,\n" +
		"2024-01-10 13:00:00,46250030,XYZ,5\n"
	writeFixture(t, filepath.Join(p.rawStatic("contaminacion"), "gva_46250030_historico.csv"), gva)

	aqicn := `{
  "_metadata": {"fuente": "aqicn"},
  "estaciones": {
    "A510": {
      "nombre": "Valencia centro",
      "datos": {
        "time": {"iso": "2024-01-10T12:00:00+01:00"},
        "iaqi": {"pm25": {"v": 18}, "t": {"v": 14.2}}
      }
    }
  }
}`
	writeFixture(t, filepath.Join(p.rawDynamic("contaminacion"), "aqicn_20240110_120000.json"), aqicn)

	n, err := NormalizeAir(p)
	if err != nil {
		t.Fatalf("NormalizeAir failed: %v", err)
	}
	if n != 4 {
		t.Fatalf("Expected 4 rows, got %d", n)
	}

	table, err := readCSV(p.cleanFile("contaminacion_normalizada.csv"))
	if err != nil {
		t.Fatalf("Expected output file: %v", err)
	}
	if got := len(table.header); got != 8 {
		t.Fatalf("Expected 8 columns, got %d: %v", got, table.header)
	}
	if table.header[0] != "fecha_utc" {
		t.Errorf("Expected fecha_utc first, got %q", table.header[0])
	}

	// Sorted by timestamp: the naive Madrid hours shift back one hour.
	first := table.rows[0]
	if first[0] != "2024-01-10T09:00:00Z" {
		t.Errorf("Expected 2024-01-10T09:00:00Z, got %q", first[0])
	}
	if first[2] != "València - Pista de Silla" {
		t.Errorf("Expected mapped station name, got %q", first[2])
	}
	if first[5] != "45.2" || first[7] != "ok" {
		t.Errorf("Expected 45.2/ok, got %q/%q", first[5], first[7])
	}

	second := table.rows[1]
	if second[5] != "1200" || second[7] != "invalid" {
		t.Errorf("Expected out-of-range value kept as invalid, got %q/%q", second[5], second[7])
	}

	third := table.rows[2]
	if third[5] != "" || third[7] != "missing" {
		t.Errorf("Expected empty value flagged missing, got %q/%q", third[5], third[7])
	}

	fourth := table.rows[3]
	if fourth[0] != "2024-01-10T11:00:00Z" {
		t.Errorf("Expected AQICN zoned timestamp in UTC, got %q", fourth[0])
	}
	if fourth[4] != "PM2.5" {
		t.Errorf("Expected pm25 mapped to PM2.5, got %q", fourth[4])
	}
	if fourth[2] != "Desconocida (A510)" {
		t.Errorf("Expected fallback station name, got %q", fourth[2])
	}
	if fourth[3] != "aqicn" {
		t.Errorf("Expected fuente aqicn, got %q", fourth[3])
	}
}

func TestNormalizeAirNoInput(t *testing.T) {
	p := testPaths(t)
	if _, err := NormalizeAir(p); err == nil {
		t.Fatalf("Expected an error without input data")
	}
}

func TestCanonicalVariable(t *testing.T) {
	cases := map[string]string{
		"pm25":  "PM2.5",
		"PM25":  "PM2.5",
		"no2":   "NO2",
		" O3 ":  "O3",
		"PM2.5": "PM2.5",
	}
	for raw, want := range cases {
		got, ok := canonicalVariable(raw)
		if !ok {
			t.Fatalf("Expected %q to map", raw)
		}
		if got != want {
			t.Errorf("Expected %q for %q, got %q", want, raw, got)
		}
	}
	if _, ok := canonicalVariable("t"); ok {
		t.Errorf("Expected temperature reading to be rejected")
	}
}
