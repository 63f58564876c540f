package etl

import (
	"testing"
	"time"
)

func TestCorrelateEvents(t *testing.T) {
	p := testPaths(t)

	events := `{"eventos": [
  {"nombre": "Mascletà", "tipo": "festivo", "impacto_esperado": "alto", "fuente": "ayuntamiento", "fecha_inicio": "2024-03-15", "fecha_fin": "2024-03-16"},
  {"nombre": "Mascletà", "tipo": "festivo", "impacto_esperado": "alto", "fuente": "ayuntamiento", "fecha_inicio": "2024-03-15", "fecha_fin": "2024-03-16"},
  {"nombre": "Sin fecha", "fecha_inicio": "cuando sea"}
]}`
	writeFixture(t, p.EventsFile, events)

	contam := "fecha_utc,estacion_id,estacion_nombre,fuente,variable,valor,unidad,calidad_dato\n" +
		"2024-03-15T10:00:00Z,46250030,X,gva,NO2,50,µg/m³,ok\n" +
		"2024-03-15T12:00:00Z,46250030,X,gva,NO2,70,µg/m³,ok\n" +
		"2024-03-16T10:00:00Z,46250030,X,gva,NO2,80,µg/m³,ok\n" +
		"2024-03-08T10:00:00Z,46250030,X,gva,NO2,40,µg/m³,ok\n" +
		"2024-03-09T10:00:00Z,46250030,X,gva,NO2,60,µg/m³,ok\n" +
		"2024-03-11T10:00:00Z,46250030,X,gva,NO2,100,µg/m³,ok\n" +
		"2024-03-22T10:00:00Z,46250030,X,gva,NO2,45,µg/m³,ok\n"
	writeFixture(t, p.cleanFile("contaminacion_normalizada.csv"), contam)

	weather := "fecha,hora,precipitacion_mm,temp_c,humedad_pct,fuente,calidad_dato\n" +
		"2024-03-08 12:00:00+00:00,12,1,14,60,aemet,ok\n" +
		"2024-03-09 12:00:00+00:00,12,0,16,60,aemet,ok\n" +
		"2024-03-15 12:00:00+00:00,12,0,18,60,aemet,ok\n" +
		"2024-03-16 12:00:00+00:00,12,2,20,60,aemet,ok\n" +
		"2024-03-22 12:00:00+00:00,12,10,15,60,aemet,ok\n"
	writeFixture(t, p.cleanFile("meteorologia_limpio.csv"), weather)

	traffic := "fecha,hora,ubicacion,intensidad,velocidad,incidencias,fuente,calidad_dato\n" +
		"2024-03-15 08:00:00+00:00,8,V-31,,,obras | low,dgt,ok\n" +
		"2024-03-15 09:00:00+00:00,9,V-31,,,obras | low,dgt,ok\n" +
		"2024-03-15 10:00:00+00:00,10,CV-35,,,retencion | high,dgt,ok\n" +
		"2024-03-16 10:00:00+00:00,10,V-31,,,obras | low,dgt,ok\n" +
		"2024-03-08 10:00:00+00:00,10,V-31,,,obras | low,dgt,ok\n" +
		"2024-03-09 10:00:00+00:00,10,V-21,,,accidente | high,dgt,ok\n"
	writeFixture(t, p.cleanFile("trafico_limpio.csv"), traffic)

	n, err := CorrelateEvents(p)
	if err != nil {
		t.Fatalf("CorrelateEvents failed: %v", err)
	}
	// One deduplicated event, one pollutant.
	if n != 1 {
		t.Fatalf("Expected 1 impact row, got %d", n)
	}

	table, err := readCSV(p.cleanFile("impacto_eventos.csv"))
	if err != nil {
		t.Fatalf("Expected output file: %v", err)
	}
	row := table.rows[0]

	if len(row[0]) != 12 {
		t.Errorf("Expected a 12 character event id, got %q", row[0])
	}
	if row[1] != "Mascletà" || row[2] != "festivo" || row[3] != "alto" {
		t.Errorf("Unexpected event fields: %v", row[:4])
	}
	if row[4] != "2024-03-15" || row[5] != "2024-03-16" {
		t.Errorf("Unexpected event dates: %q %q", row[4], row[5])
	}
	if row[6] != "NO2" {
		t.Errorf("Expected variable NO2, got %q", row[6])
	}

	// Event days average 70, matching Fridays and Saturdays without rain
	// average 50. The Monday reading and the rainy 22nd stay out.
	if row[7] != "70" || row[8] != "50" || row[9] != "40" {
		t.Errorf("Expected 70/50/40, got %q/%q/%q", row[7], row[8], row[9])
	}
	if row[10] != "2" || row[11] != "2" {
		t.Errorf("Expected 2 event days and 2 baseline days, got %q/%q", row[10], row[11])
	}
	if row[12] != "19" || row[13] != "15" {
		t.Errorf("Expected temp 19/15, got %q/%q", row[12], row[13])
	}
	if row[14] != "1" || row[15] != "0.5" {
		t.Errorf("Expected precip 1/0.5, got %q/%q", row[14], row[15])
	}
	// Four incidents over two event days against one per baseline day.
	if row[16] != "100" {
		t.Errorf("Expected traffic impact 100, got %q", row[16])
	}
}

func TestCorrelateEventsWithoutPollution(t *testing.T) {
	p := testPaths(t)

	events := `{"eventos": [
  {"rival": "Levante UD", "tipo": "futbol", "fuente": "valenciacf", "fecha_inicio": "20/04/2024"}
]}`
	writeFixture(t, p.EventsFile, events)

	traffic := "fecha,hora,ubicacion,intensidad,velocidad,incidencias,fuente,calidad_dato\n" +
		"2024-04-20 18:00:00+00:00,18,V-30,,,retencion | high,dgt,ok\n" +
		"2024-04-20 19:00:00+00:00,19,V-30,,,retencion | high,dgt,ok\n" +
		"2024-04-13 18:00:00+00:00,18,V-30,,,obras | low,dgt,ok\n"
	writeFixture(t, p.cleanFile("trafico_limpio.csv"), traffic)

	n, err := CorrelateEvents(p)
	if err != nil {
		t.Fatalf("CorrelateEvents failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 row, got %d", n)
	}

	table, err := readCSV(p.cleanFile("impacto_eventos.csv"))
	if err != nil {
		t.Fatalf("Expected output file: %v", err)
	}
	row := table.rows[0]

	if row[1] != "Levante UD" {
		t.Errorf("Expected the rival name, got %q", row[1])
	}
	if row[6] != "sin_datos" {
		t.Errorf("Expected sin_datos, got %q", row[6])
	}
	if row[10] != "1" || row[11] != "0" {
		t.Errorf("Expected 1 event day and 0 baseline days, got %q/%q", row[10], row[11])
	}
	// Two incidents on match day against one on the previous Saturday.
	if row[16] != "100" {
		t.Errorf("Expected traffic impact 100, got %q", row[16])
	}
}

func TestCorrelateEventsNoEventsFile(t *testing.T) {
	p := testPaths(t)
	if _, err := CorrelateEvents(p); err == nil {
		t.Fatalf("Expected an error without an events file")
	}
}

func TestParseEventDate(t *testing.T) {
	got, ok := parseEventDate("15/03/2026")
	if !ok {
		t.Fatalf("Expected day-first date to parse")
	}
	want := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	if _, ok := parseEventDate("2026-03-15T20:00:00"); !ok {
		t.Errorf("Expected ISO datetime to parse")
	}
	if _, ok := parseEventDate("primavera"); ok {
		t.Errorf("Expected garbage to be rejected")
	}
}

func TestBaselineDayRules(t *testing.T) {
	ev := &cityEvent{
		months:   map[int]bool{3: true},
		weekdays: map[int]bool{4: true},
	}
	allEvents := map[string]bool{"2024-03-15": true}
	precip := map[string]float64{"2024-03-22": 10}

	friday := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	if !baselineDay(friday, ev, allEvents, precip) {
		t.Errorf("Expected a quiet matching Friday to qualify")
	}
	monday := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	if baselineDay(monday, ev, allEvents, precip) {
		t.Errorf("Expected a Monday to be rejected")
	}
	eventDay := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if baselineDay(eventDay, ev, allEvents, precip) {
		t.Errorf("Expected an event day to be rejected")
	}
	rainy := time.Date(2024, 3, 22, 0, 0, 0, 0, time.UTC)
	if baselineDay(rainy, ev, allEvents, precip) {
		t.Errorf("Expected a rainy day to be rejected")
	}
	april := time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC)
	if baselineDay(april, ev, allEvents, precip) {
		t.Errorf("Expected a different month to be rejected")
	}
}
