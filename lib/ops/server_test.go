package ops

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleHealthz_ReturnsOK(t *testing.T) {
	s := NewServer("127.0.0.1:0", func() Snapshot { return Snapshot{} })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ok")
	}
}

func TestHandleStatus_EncodesSnapshot(t *testing.T) {
	want := Snapshot{
		Interfaces: []InterfaceStatus{
			{Name: "eth0", Weight: 1, Connected: true, LocalIP: "10.0.0.42", CIDR: "10.0.0.0/24", GatewaySpec: "via 10.0.0.1"},
		},
		LastTopologyHash: "deadbeef",
		IsRerouting:      false,
		ReroutePending:   true,
	}
	s := NewServer("127.0.0.1:0", func() Snapshot { return want })

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var got Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.LastTopologyHash != want.LastTopologyHash {
		t.Errorf("LastTopologyHash = %q, want %q", got.LastTopologyHash, want.LastTopologyHash)
	}
	if len(got.Interfaces) != 1 || got.Interfaces[0].Name != "eth0" {
		t.Errorf("unexpected interfaces: %+v", got.Interfaces)
	}
	if !got.ReroutePending {
		t.Error("expected ReroutePending true")
	}
}
