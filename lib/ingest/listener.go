package ingest

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/maksimkurb/gwsupervisor/lib/log"
)

// Addr is the fixed loopback endpoint the host's syslog daemon is
// expected to forward interesting facilities to (spec.md §6).
const Addr = "127.0.0.1:1979"

// Listener is a UDP syslog endpoint that parses datagrams into Events and
// delivers them to a channel in arrival order. On the first datagram it
// invokes OnAlive exactly once, signalling the controller's deferred
// interface-registration hook (spec.md §4.4).
type Listener struct {
	conn *net.UDPConn

	Events chan<- Event
	OnAlive func()

	aliveOnce sync.Once
	log       *log.Logger
}

// New creates a Listener that delivers parsed events to events and calls
// onAlive once, on the first received datagram.
func New(events chan<- Event, onAlive func()) *Listener {
	return &Listener{
		Events:  events,
		OnAlive: onAlive,
		log:     log.Component("ingester"),
	}
}

// Start binds the UDP socket. It does not block; call Run in a goroutine
// to serve datagrams.
func (l *Listener) Start() error {
	addr, err := net.ResolveUDPAddr("udp", Addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	l.conn = conn
	l.log.Infof("listening on %s", Addr)
	return nil
}

// Run serves datagrams until ctx is cancelled. Socket-level read errors
// other than a deadline timeout are logged; per spec.md §4.2 the endpoint
// does not attempt to recover from bound-socket loss, so Run returns once
// the connection itself is no longer usable.
func (l *Listener) Run(ctx context.Context) {
	buf := make([]byte, 4096)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		l.conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			l.log.Errorf("read error, socket lost: %v", err)
			return
		}

		l.aliveOnce.Do(func() {
			if l.OnAlive != nil {
				l.OnAlive()
			}
		})

		event, ok := Parse(buf[:n], time.Now())
		if !ok {
			l.log.Debugf("discarded unparsable datagram")
			continue
		}

		select {
		case l.Events <- event:
		case <-ctx.Done():
			return
		}
	}
}

// Stop closes the UDP socket.
func (l *Listener) Stop() error {
	if l.conn == nil {
		return nil
	}
	return l.conn.Close()
}
