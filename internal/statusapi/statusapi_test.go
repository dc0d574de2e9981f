package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func fixedDevices() []DeviceStatus {
	return []DeviceStatus{
		{Index: 0, Host: "10.0.0.1", UniqueID: "sqrl-0", HBMSafe: true, ClockMHz: 450, Hash10Min: 120, Hash60Min: 118},
		{Index: 1, Host: "10.0.0.2", UniqueID: "sqrl-1", HBMSafe: false, Dagging: true, Hash10Min: 0, Hash60Min: 60},
	}
}

func TestHandleHealthReportsDegradedWhenAnyDeviceUnsafe(t *testing.T) {
	s := New(":0", fixedDevices)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", resp.Status)
	}
	if resp.DeviceCount != 2 || resp.SafeCount != 1 {
		t.Errorf("DeviceCount/SafeCount = %d/%d, want 2/1", resp.DeviceCount, resp.SafeCount)
	}
}

func TestHandleHealthReportsNoDevicesWhenFleetEmpty(t *testing.T) {
	s := New(":0", func() []DeviceStatus { return nil })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "no_devices" {
		t.Errorf("Status = %q, want no_devices", resp.Status)
	}
}

func TestHandleMetricsSumsHashRatesAcrossDevices(t *testing.T) {
	s := New(":0", fixedDevices)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)

	var resp metricsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalHash10Min != 120 || resp.TotalHash60Min != 178 {
		t.Errorf("totals = %v/%v, want 120/178", resp.TotalHash10Min, resp.TotalHash60Min)
	}
	if resp.DaggingCount != 1 {
		t.Errorf("DaggingCount = %d, want 1", resp.DaggingCount)
	}
}

func TestHandleDeviceReturnsNotFoundForUnknownIndex(t *testing.T) {
	s := New(":0", fixedDevices)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/7", nil)
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleDeviceReturnsMatchingDevice(t *testing.T) {
	s := New(":0", fixedDevices)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/1", nil)
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)

	var dev DeviceStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &dev); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if dev.UniqueID != "sqrl-1" || !dev.Dagging {
		t.Errorf("device = %+v, want UniqueID=sqrl-1 Dagging=true", dev)
	}
}
