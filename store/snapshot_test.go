package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSnapshotWriterLayout(t *testing.T) {
	root := t.TempDir()
	writer := &SnapshotWriter{Root: root}
	capturedAt := time.Date(2026, 2, 6, 14, 30, 0, 0, time.UTC)

	payload := map[string]any{
		"_metadata":  NewMeta("GVA - Generalitat Valenciana", "https://agroambient.gva.es/auto/estaciones/datos", "exitosa", capturedAt),
		"estaciones": map[string]any{},
	}

	path, err := writer.WriteJSON("contaminacion", "gva", capturedAt, payload)
	if err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	want := filepath.Join(root, "dinamicos", "contaminacion", "gva_20260206_143000.json")
	if path != want {
		t.Errorf("Expected path %s, got %s", want, path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("Snapshot is not valid JSON: %v", err)
	}
	meta, ok := decoded["_metadata"].(map[string]any)
	if !ok {
		t.Fatal("Expected a _metadata block")
	}
	if meta["proyecto"] != "Data Detective Valencia" {
		t.Errorf("Unexpected project label: %v", meta["proyecto"])
	}
	if meta["estado_captura"] != "exitosa" {
		t.Errorf("Unexpected capture state: %v", meta["estado_captura"])
	}
	if meta["timestamp_utc"] != "2026-02-06T14:30:00Z" {
		t.Errorf("Unexpected UTC timestamp: %v", meta["timestamp_utc"])
	}
}

func TestSnapshotWriterRawXML(t *testing.T) {
	root := t.TempDir()
	writer := &SnapshotWriter{Root: root}
	capturedAt := time.Date(2026, 2, 6, 14, 30, 0, 0, time.UTC)

	xml := []byte(`<?xml version="1.0"?><d2LogicalModel/>`)
	path, err := writer.WriteRaw("trafico", "dgt_raw", "xml", capturedAt, xml)
	if err != nil {
		t.Fatalf("WriteRaw failed: %v", err)
	}
	if !strings.HasSuffix(path, "dgt_raw_20260206_143000.xml") {
		t.Errorf("Unexpected raw path: %s", path)
	}

	content, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot failed: %v", err)
	}
	if string(content) != string(xml) {
		t.Error("Expected raw bytes to round-trip")
	}
}

func TestSnapshotWriterCompression(t *testing.T) {
	root := t.TempDir()
	writer := &SnapshotWriter{Root: root, Compress: true}
	capturedAt := time.Date(2026, 2, 6, 14, 30, 0, 0, time.UTC)

	payload := map[string]string{"clave": strings.Repeat("valencia ", 200)}
	path, err := writer.WriteJSON("meteorologia", "openweather", capturedAt, payload)
	if err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	if !strings.HasSuffix(path, ".json.sz") {
		t.Fatalf("Expected a .json.sz path, got %s", path)
	}

	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if json.Valid(onDisk) {
		t.Error("Expected the on-disk payload to be compressed")
	}

	decoded, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot failed: %v", err)
	}
	var roundTrip map[string]string
	if err := json.Unmarshal(decoded, &roundTrip); err != nil {
		t.Fatalf("Decompressed snapshot is not valid JSON: %v", err)
	}
	if roundTrip["clave"] != payload["clave"] {
		t.Error("Expected the payload to survive compression")
	}
}

func TestNewMetaCounters(t *testing.T) {
	meta := NewMeta("AQICN/WAQI", "https://api.waqi.info", "exitosa", time.Now())
	meta.Requested = 5
	meta.Succeeded = 4
	meta.Failed = 1

	data, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for _, key := range []string{"solicitados", "exitosos", "fallidos"} {
		if !strings.Contains(string(data), key) {
			t.Errorf("Expected %s in metadata, got %s", key, data)
		}
	}
	if strings.Contains(string(data), "total_registros") {
		t.Error("Expected zero counters to be omitted")
	}
}
