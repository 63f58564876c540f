package store

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"valencia-data-detective/datex"
)

func TestNewTrafficSnapshot(t *testing.T) {
	capturedAt := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	meta := NewMeta("DGT - NAP (National Access Point)", "https://infocar.dgt.es/datex2", "exitosa", capturedAt)

	records := []datex.SituationRecord{
		{
			ID:           "rec-1",
			SituationID:  "sit-1",
			RecordType:   "MaintenanceWorks",
			Severity:     "high",
			Probability:  "certain",
			CreationTime: time.Date(2026, 3, 10, 7, 45, 0, 0, time.UTC),
			Location: &datex.Location{
				RoadName: "V-31",
				From: &datex.Point{
					Lat: 39.42, Lon: -0.41, HasCoords: true,
					Province:     "Valencia/València",
					Municipality: "Silla",
				},
			},
		},
		{
			ID:          "rec-2",
			SituationID: "sit-2",
			RecordType:  "AbnormalTraffic",
			Severity:    "low",
		},
	}

	snap := NewTrafficSnapshot(meta, &datex.SituationFeed{
		PublicationTime: time.Date(2026, 3, 10, 7, 58, 0, 0, time.UTC),
		Description:     "Incidencias DGT",
	}, records)

	if snap.Meta.Records != 2 {
		t.Errorf("Expected 2 records in metadata, got %d", snap.Meta.Records)
	}
	if len(snap.Incidents) != 2 {
		t.Fatalf("Expected 2 incidents, got %d", len(snap.Incidents))
	}
	if snap.Stats == nil || snap.Stats.Total != 2 {
		t.Fatalf("Expected stats over 2 records, got %+v", snap.Stats)
	}
	if snap.Stats.BySeverity["high"] != 1 || snap.Stats.BySeverity["low"] != 1 {
		t.Errorf("Unexpected severity tally: %v", snap.Stats.BySeverity)
	}
	if snap.Publication == nil || snap.Publication.Description != "Incidencias DGT" {
		t.Errorf("Expected publication block, got %+v", snap.Publication)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for _, key := range []string{`"_metadata"`, `"incidencias"`, `"tipo_datex"`, `"situacion_id"`, `"localizacion"`, `"punto_from"`, `"municipio":"Silla"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("Expected snapshot JSON to contain %s", key)
		}
	}

	// rec-2 has no location: its JSON must omit the block entirely.
	if snap.Incidents[1].Location != nil {
		t.Error("Expected nil location for record without one")
	}
}

func TestNewTrafficSnapshotRoundTrip(t *testing.T) {
	capturedAt := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	meta := NewMeta("DGT - NAP (National Access Point)", "https://infocar.dgt.es/datex2", "exitosa", capturedAt)

	snap := NewTrafficSnapshot(meta, nil, []datex.SituationRecord{{
		ID:           "rec-1",
		RecordType:   "RoadOrCarriagewayOrLaneManagement",
		CreationTime: time.Date(2026, 3, 10, 7, 45, 0, 0, time.UTC),
	}})

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded TrafficSnapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Incidents[0].CreationTime != "2026-03-10T07:45:00Z" {
		t.Errorf("Unexpected creation time: %s", decoded.Incidents[0].CreationTime)
	}
	if decoded.Publication != nil {
		t.Error("Expected no publication block without feed info")
	}
}

func TestNewCameraSnapshot(t *testing.T) {
	capturedAt := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	meta := NewMeta("dgt", "https://infocar.dgt.es/datex2/dgt/CCTVSiteTablePublication/all/content.xml", "exitosa", capturedAt)

	feed := &datex.CameraFeed{
		PublicationTime: time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC),
		Cameras: []datex.Camera{
			{ID: "CAM-V30-01", Description: "V-30 PK 5", Lat: 39.44, Lon: -0.42, HasCoords: true, ImageURL: "https://infocar.dgt.es/cam/1.jpg"},
			{ID: "CAM-SIN-COORDS", Description: "Sin ubicación"},
		},
	}

	snap := NewCameraSnapshot(meta, feed)

	if snap.Meta.Records != 2 {
		t.Errorf("Expected 2 records in metadata, got %d", snap.Meta.Records)
	}
	if len(snap.Cameras) != 2 {
		t.Fatalf("Expected 2 cameras, got %d", len(snap.Cameras))
	}
	if snap.Cameras[0].Lat == nil || *snap.Cameras[0].Lat != 39.44 {
		t.Errorf("Expected lat 39.44, got %v", snap.Cameras[0].Lat)
	}
	if snap.Cameras[1].Lat != nil {
		t.Error("Expected nil coordinates for camera without them")
	}
	if snap.PublicationTime != "2026-03-10T07:00:00Z" {
		t.Errorf("Unexpected publication time: %s", snap.PublicationTime)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for _, key := range []string{`"camaras"`, `"url_imagen"`, `"descripcion":"V-30 PK 5"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("Expected snapshot JSON to contain %s", key)
		}
	}
}
