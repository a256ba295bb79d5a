package ingest

import (
	"testing"
	"time"
)

func TestParse_ClassifiesKnownPatterns(t *testing.T) {
	now := time.Date(2026, time.July, 31, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		line    string
		wantOK  bool
		kind    Kind
		iface   string
	}{
		{
			name:   "dhcpcd adding default route",
			line:   "<14>Jan 1 00:00:00 h dhcpcd: eth0: adding default route via 10.0.0.1",
			wantOK: true,
			kind:   Connected,
			iface:  "eth0",
		},
		{
			name:   "dhcpcd changing default route",
			line:   "<14>Jan 1 00:00:00 h dhcpcd: eth0: changing default route via 10.0.0.1",
			wantOK: true,
			kind:   Connected,
			iface:  "eth0",
		},
		{
			name:   "interface removal",
			line:   "<14>Jan 1 00:00:00 h dhcpcd: eth0: removing interface",
			wantOK: true,
			kind:   Disconnected,
			iface:  "eth0",
		},
		{
			name:   "wpa_supplicant disconnected",
			line:   "<14>Jan 1 00:00:00 h wpa_supplicant[123]: interface wlan0 DISCONNECTED",
			wantOK: true,
			kind:   Disconnected,
			iface:  "wlan0",
		},
		{
			name:   "wpa_supplicant connected",
			line:   "<14>Jan 1 00:00:00 h wpa_supplicant[123]: interface wlan0 CONNECTED",
			wantOK: true,
			kind:   Connected,
			iface:  "wlan0",
		},
		{
			name:   "kernel link ready",
			line:   "<6>Jan 1 00:00:00 h kernel: eth1: link becomes ready",
			wantOK: true,
			kind:   Connected,
			iface:  "eth1",
		},
		{
			name:   "unmatched body",
			line:   "<14>Jan 1 00:00:00 h dhcpcd: something unrelated happened",
			wantOK: false,
		},
		{
			name:   "unmatched envelope",
			line:   "not a syslog line at all",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, ok := Parse([]byte(tt.line), now)
			if ok != tt.wantOK {
				t.Fatalf("Parse() ok = %v, want %v", ok, tt.wantOK)
			}
			if !tt.wantOK {
				return
			}
			if event.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", event.Kind, tt.kind)
			}
			if event.Interface != tt.iface {
				t.Errorf("Interface = %q, want %q", event.Interface, tt.iface)
			}
		})
	}
}

func TestParse_PatternPrecedence(t *testing.T) {
	// "adding default route" must win over a hypothetical overlap with
	// "removing interface" style matches; verify pattern 1 still applies
	// when the body could plausibly be confused with others.
	now := time.Now()
	event, ok := Parse([]byte("<14>Jan 1 00:00:00 h dhcpcd: ppp0: adding default route via 203.0.113.1"), now)
	if !ok {
		t.Fatal("expected match")
	}
	if event.Kind != Connected || event.Interface != "ppp0" {
		t.Errorf("unexpected event: %+v", event)
	}
}

func TestParse_InvalidUTF8Discarded(t *testing.T) {
	_, ok := Parse([]byte{0xff, 0xfe, 0xfd}, time.Now())
	if ok {
		t.Error("expected invalid UTF-8 datagram to be discarded")
	}
}

func TestParse_UsesCurrentYear(t *testing.T) {
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	event, ok := Parse([]byte("<14>Jan 5 08:30:00 h dhcpcd: eth0: adding default route via 10.0.0.1"), now)
	if !ok {
		t.Fatal("expected match")
	}
	if event.Timestamp.Year() != 2026 {
		t.Errorf("expected year 2026, got %d", event.Timestamp.Year())
	}
	if event.Timestamp.Month() != time.January || event.Timestamp.Day() != 5 {
		t.Errorf("unexpected parsed date: %v", event.Timestamp)
	}
}

func TestKind_String(t *testing.T) {
	if Connected.String() != "connected" {
		t.Errorf("unexpected string for Connected: %s", Connected.String())
	}
	if Disconnected.String() != "disconnected" {
		t.Errorf("unexpected string for Disconnected: %s", Disconnected.String())
	}
}
