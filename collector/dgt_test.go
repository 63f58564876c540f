package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const measuredSample = `<?xml version="1.0" encoding="UTF-8"?>
<d2LogicalModel xmlns="http://datex2.eu/schema/2/2_0" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <payloadPublication xsi:type="MeasuredDataPublication">
    <publicationTime>2026-02-06T14:30:00+01:00</publicationTime>
    <siteMeasurements>
      <measurementSiteReference id="PM_V30_KM5"/>
      <measurementTimeDefault>2026-02-06T14:28:00+01:00</measurementTimeDefault>
      <measuredValue index="1">
        <measuredValue>
          <basicData xsi:type="TrafficFlow">
            <vehicleFlow><vehicleFlowRate>1250</vehicleFlowRate></vehicleFlow>
          </basicData>
        </measuredValue>
      </measuredValue>
    </siteMeasurements>
  </payloadPublication>
</d2LogicalModel>`

const situationsSample = `<?xml version="1.0" encoding="UTF-8"?>
<d2:payload xmlns:d2="http://levelC/schema/3/d2Payload" xmlns:sit="http://levelC/schema/3/situation" xmlns:com="http://levelC/schema/3/common" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <com:publicationTime>2026-02-06T14:30:00Z</com:publicationTime>
  <sit:situation id="SIT-1">
    <sit:situationRecord xsi:type="sit:MaintenanceWorks" id="REC-1">
      <sit:severity>high</sit:severity>
    </sit:situationRecord>
  </sit:situation>
</d2:payload>`

const cctvSample = `<?xml version="1.0" encoding="UTF-8"?>
<d2LogicalModel xmlns="http://datex2.eu/schema/2/2_0">
  <payloadPublication>
    <cctvCameraList>
      <cctvCameraMetadataRecord id="CAM-1">
        <cctvCameraSiteLocalDescription><values><value>V-30 PK 5</value></values></cctvCameraSiteLocalDescription>
      </cctvCameraMetadataRecord>
    </cctvCameraList>
  </payloadPublication>
</d2LogicalModel>`

func TestTrafficData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(measuredSample))
	}))
	defer server.Close()

	client := New(5 * time.Second)
	feed, raw, err := client.TrafficData(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("TrafficData failed: %v", err)
	}

	if len(feed.Measurements) != 1 {
		t.Fatalf("Expected 1 measurement, got %d", len(feed.Measurements))
	}
	if feed.Measurements[0].PointID != "PM_V30_KM5" {
		t.Errorf("Expected point PM_V30_KM5, got %q", feed.Measurements[0].PointID)
	}
	if string(raw) != measuredSample {
		t.Error("Expected the raw XML to be returned verbatim")
	}
}

func TestTrafficDataParseFailureKeepsRawBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<d2LogicalModel><unclosed>"))
	}))
	defer server.Close()

	client := New(5 * time.Second)
	feed, raw, err := client.TrafficData(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected a parse error")
	}
	if feed != nil {
		t.Error("Expected no feed on parse failure")
	}
	if len(raw) == 0 {
		t.Error("Expected the raw body to survive a parse failure")
	}
	if !strings.Contains(err.Error(), "parse traffic data") {
		t.Errorf("Expected a parse error, got %v", err)
	}
}

func TestTrafficDataDownloadFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := New(5 * time.Second)
	_, raw, err := client.TrafficData(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected a download error")
	}
	if raw != nil {
		t.Error("Expected no raw body on download failure")
	}
	if !strings.Contains(err.Error(), "download traffic data") {
		t.Errorf("Expected a download error, got %v", err)
	}
}

func TestSituations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(situationsSample))
	}))
	defer server.Close()

	client := New(5 * time.Second)
	feed, raw, err := client.Situations(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Situations failed: %v", err)
	}

	if len(feed.Situations) != 1 {
		t.Fatalf("Expected 1 situation, got %d", len(feed.Situations))
	}
	if feed.Situations[0].ID != "SIT-1" {
		t.Errorf("Expected situation SIT-1, got %q", feed.Situations[0].ID)
	}
	if len(raw) == 0 {
		t.Error("Expected the raw XML alongside the feed")
	}
}

func TestCCTV(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(cctvSample))
	}))
	defer server.Close()

	client := New(5 * time.Second)
	feed, _, err := client.CCTV(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("CCTV failed: %v", err)
	}

	if len(feed.Cameras) != 1 {
		t.Fatalf("Expected 1 camera, got %d", len(feed.Cameras))
	}
	if feed.Cameras[0].ID != "CAM-1" {
		t.Errorf("Expected camera CAM-1, got %q", feed.Cameras[0].ID)
	}
}
