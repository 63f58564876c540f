package etl

import (
	"path/filepath"
	"strings"
	"testing"

	"valencia-data-detective/store"
)

const trafficSnapshot = `{
  "_metadata": {"timestamp_utc": "2024-01-10T07:30:00Z"},
  "incidencias": [
    {
      "tipo_datex": "situation:MaintenanceWorks",
      "severidad": "low",
      "probabilidad": "certain",
      "fecha_creacion": "2024-01-10T06:15:00Z",
      "localizacion": {
        "carretera": "V-31",
        "punto_from": {"municipio": "Silla", "provincia": "Valencia/València", "comunidad_autonoma": "Comunitat Valenciana"}
      }
    },
    {
      "tipo_datex": "situation:AbnormalTraffic",
      "severidad": "high",
      "fecha_creacion": "2024-01-10T06:20:00Z",
      "localizacion": {
        "carretera": "A-2",
        "punto_from": {"municipio": "Guadalajara", "provincia": "Guadalajara", "comunidad_autonoma": "Castilla-La Mancha"}
      }
    },
    {
      "tipo_datex": "",
      "localizacion": null
    }
  ]
}`

func TestCleanTraffic(t *testing.T) {
	p := testPaths(t)

	writeFixture(t, filepath.Join(p.rawDynamic("trafico"), "dgt_20240110_073000.json"), trafficSnapshot)
	// A later capture repeats the same open incident.
	later := strings.Replace(trafficSnapshot, "07:30:00Z", "08:00:00Z", 1)
	writeFixture(t, filepath.Join(p.rawDynamic("trafico"), "dgt_20240110_080000.json"), later)

	acc := "fecha,hora,punto_medida,intensidad,velocidad,ocupacion\n" +
		"2024-01-10,06:15:00,PM30001,420,98,12\n" +
		"2024-01-10,06:30:00,PM30001,,,\n"
	writeFixture(t, store.DefaultAccumulatorPath(p.RawDir), acc)

	n, err := CleanTraffic(p)
	if err != nil {
		t.Fatalf("CleanTraffic failed: %v", err)
	}

	table, err := readCSV(p.cleanFile("trafico_limpio.csv"))
	if err != nil {
		t.Fatalf("Expected output file: %v", err)
	}
	if len(table.rows) != n {
		t.Fatalf("Expected %d rows in the file, got %d", n, len(table.rows))
	}

	// Both captures carry the same incident, the second snapshot only
	// adds a new capture-dated fallback row. Madrid incidents are gone.
	// 06:15 incident, 06:15 measurement, 06:30 measurement, 07:30 and
	// 08:00 undated incidents.
	if n != 5 {
		t.Fatalf("Expected 5 rows after deduplication, got %d", n)
	}

	first := table.rows[0]
	if first[0] != "2024-01-10 06:15:00+00:00" || first[1] != "6" {
		t.Errorf("Expected creation timestamp, got %q hora %q", first[0], first[1])
	}
	if first[2] != "V-31 | Silla | Valencia/València" {
		t.Errorf("Unexpected ubicacion: %q", first[2])
	}
	if first[5] != "MaintenanceWorks | low | certain" {
		t.Errorf("Unexpected incidencias: %q", first[5])
	}
	if first[3] != "" || first[4] != "" {
		t.Errorf("Expected incidents without intensity or speed, got %q/%q", first[3], first[4])
	}
	if first[6] != "dgt" || first[7] != "ok" {
		t.Errorf("Expected dgt/ok, got %q/%q", first[6], first[7])
	}

	second := table.rows[1]
	if second[2] != "PM30001" || second[3] != "420" || second[4] != "98" {
		t.Errorf("Expected measurement row, got %v", second)
	}
	if second[7] != "ok" {
		t.Errorf("Expected measurement quality ok, got %q", second[7])
	}

	third := table.rows[2]
	if third[3] != "" || third[7] != "missing" {
		t.Errorf("Expected empty measurement flagged missing, got %q/%q", third[3], third[7])
	}

	fourth := table.rows[3]
	if fourth[0] != "2024-01-10 07:30:00+00:00" {
		t.Errorf("Expected capture-time fallback, got %q", fourth[0])
	}
	if fourth[2] != "desconocida" || fourth[5] != "sin_tipo" || fourth[7] != "missing" {
		t.Errorf("Expected desconocida/sin_tipo/missing, got %q/%q/%q", fourth[2], fourth[5], fourth[7])
	}

	for _, row := range table.rows {
		if row[2] == "A-2 | Guadalajara" {
			t.Errorf("Expected the Guadalajara incident to be dropped")
		}
	}
}

func TestCleanTrafficAccumulatorOnly(t *testing.T) {
	p := testPaths(t)
	acc := "fecha,hora,punto_medida,intensidad,velocidad,ocupacion\n" +
		"2024-02-01,10:00:00,PM30002,100,80,5\n"
	writeFixture(t, store.DefaultAccumulatorPath(p.RawDir), acc)

	n, err := CleanTraffic(p)
	if err != nil {
		t.Fatalf("CleanTraffic failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 row, got %d", n)
	}
}

func TestCleanTrafficNoInput(t *testing.T) {
	p := testPaths(t)
	if _, err := CleanTraffic(p); err == nil {
		t.Fatalf("Expected an error without input data")
	}
}

func TestLikelyValencian(t *testing.T) {
	inside := rawIncident{Location: &rawLocation{From: &rawPoint{Province: "Alicante"}}}
	if !likelyValencian(inside) {
		t.Errorf("Expected Alicante to be kept")
	}
	outside := rawIncident{Location: &rawLocation{From: &rawPoint{Community: "Andalucía"}}}
	if likelyValencian(outside) {
		t.Errorf("Expected Andalucía to be dropped")
	}
	unknown := rawIncident{Location: &rawLocation{Road: "N-332"}}
	if !likelyValencian(unknown) {
		t.Errorf("Expected a record without admin names to be kept")
	}
	if !likelyValencian(rawIncident{}) {
		t.Errorf("Expected a record without location to be kept")
	}
}
