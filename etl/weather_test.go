package etl

import (
	"path/filepath"
	"testing"
)

func TestCleanWeather(t *testing.T) {
	p := testPaths(t)

	aemet := "fecha,variable,valor\n" +
		"2024-01-15,prec,\"2,5\"\n" +
		"2024-01-15,prec,\"3,5\"\n" +
		"2024-01-15,tmed,15.0\n" +
		"2024-01-15,hrMedia,60\n" +
		"2024-01-16,prec,Ip\n" +
		"2024-01-17,prec,600\n"
	writeFixture(t, filepath.Join(p.rawStatic("meteorologia"), "aemet_2024.csv"), aemet)

	owm := `{
  "_metadata": {"fuente": "openweather"},
  "weather": {
    "dt": 1705486800,
    "main": {"temp": 14.3, "humidity": 70},
    "rain": {"1h": 1.2}
  },
  "forecast": {"list": []}
}`
	writeFixture(t, filepath.Join(p.rawDynamic("meteorologia"), "openweather_20240117_100000.json"), owm)

	// Older captures used "actual" for the current conditions block.
	legacy := `{"actual": {"dt": 1705568400, "main": {"humidity": 80}}}`
	writeFixture(t, filepath.Join(p.rawDynamic("meteorologia"), "openweather_20240118_090000.json"), legacy)

	n, err := CleanWeather(p)
	if err != nil {
		t.Fatalf("CleanWeather failed: %v", err)
	}
	if n != 5 {
		t.Fatalf("Expected 5 rows, got %d", n)
	}

	table, err := readCSV(p.cleanFile("meteorologia_limpio.csv"))
	if err != nil {
		t.Fatalf("Expected output file: %v", err)
	}

	// AEMET daily means anchor at Madrid noon, 11:00 UTC in January.
	first := table.rows[0]
	if first[0] != "2024-01-15 11:00:00+00:00" || first[1] != "11" {
		t.Errorf("Expected noon anchor at 11:00 UTC, got %q hora %q", first[0], first[1])
	}
	if first[2] != "3" {
		t.Errorf("Expected station mean 3, got %q", first[2])
	}
	if first[3] != "15" || first[4] != "60" {
		t.Errorf("Expected temp 15 and humidity 60, got %q/%q", first[3], first[4])
	}
	if first[5] != "aemet" || first[6] != "ok" {
		t.Errorf("Expected aemet/ok, got %q/%q", first[5], first[6])
	}

	// "Ip" is trace rain, zero but present.
	second := table.rows[1]
	if second[2] != "0" || second[6] != "ok" {
		t.Errorf("Expected trace rain as 0/ok, got %q/%q", second[2], second[6])
	}
	if second[3] != "" || second[4] != "" {
		t.Errorf("Expected absent temp and humidity, got %q/%q", second[3], second[4])
	}

	third := table.rows[2]
	if third[0] != "2024-01-17 10:20:00+00:00" {
		t.Errorf("Expected OpenWeather Unix timestamp, got %q", third[0])
	}
	if third[2] != "1.2" || third[3] != "14.3" || third[4] != "70" {
		t.Errorf("Expected 1.2/14.3/70, got %q/%q/%q", third[2], third[3], third[4])
	}
	if third[5] != "openweather" {
		t.Errorf("Expected fuente openweather, got %q", third[5])
	}

	// 600 mm is out of range: value blanked, every variable gone, missing.
	fourth := table.rows[3]
	if fourth[2] != "" || fourth[6] != "missing" {
		t.Errorf("Expected blanked out-of-range row flagged missing, got %q/%q", fourth[2], fourth[6])
	}

	fifth := table.rows[4]
	if fifth[0] != "2024-01-18 09:00:00+00:00" {
		t.Errorf("Expected legacy actual block timestamp, got %q", fifth[0])
	}
	if fifth[2] != "0" || fifth[3] != "" || fifth[4] != "80" {
		t.Errorf("Expected 0//80, got %q/%q/%q", fifth[2], fifth[3], fifth[4])
	}
}

func TestCleanWeatherNoInput(t *testing.T) {
	p := testPaths(t)
	if _, err := CleanWeather(p); err == nil {
		t.Fatalf("Expected an error without input data")
	}
}
