package ingest

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestListener_ParsesDatagramAndSignalsAlive(t *testing.T) {
	events := make(chan Event, 4)
	aliveCalls := 0
	l := New(events, func() { aliveCalls++ })

	if err := l.Start(); err != nil {
		t.Fatalf("failed to start listener: %v", err)
	}
	defer l.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	conn, err := net.Dial("udp", Addr)
	if err != nil {
		t.Fatalf("failed to dial listener: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("<14>Jan 1 00:00:00 h dhcpcd: eth0: adding default route via 10.0.0.1")); err != nil {
		t.Fatalf("failed to send datagram: %v", err)
	}

	select {
	case event := <-events:
		if event.Interface != "eth0" || event.Kind != Connected {
			t.Errorf("unexpected event: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	if aliveCalls != 1 {
		t.Errorf("expected OnAlive called once, got %d", aliveCalls)
	}

	// A second datagram must not re-trigger OnAlive.
	if _, err := conn.Write([]byte("<14>Jan 1 00:00:01 h dhcpcd: eth0: adding default route via 10.0.0.1")); err != nil {
		t.Fatalf("failed to send second datagram: %v", err)
	}
	select {
	case <-events:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for second event")
	}
	if aliveCalls != 1 {
		t.Errorf("expected OnAlive still called once, got %d", aliveCalls)
	}
}

func TestListener_DiscardsUnparsableDatagram(t *testing.T) {
	events := make(chan Event, 1)
	l := New(events, nil)
	if err := l.Start(); err != nil {
		t.Fatalf("failed to start listener: %v", err)
	}
	defer l.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	conn, err := net.Dial("udp", Addr)
	if err != nil {
		t.Fatalf("failed to dial listener: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("garbage")); err != nil {
		t.Fatalf("failed to send datagram: %v", err)
	}

	select {
	case event := <-events:
		t.Fatalf("expected no event, got %+v", event)
	case <-time.After(200 * time.Millisecond):
	}
}
