// Package iface defines the per-interface state tracked by the gateway
// supervisor: connectivity, the routing facts needed to program a
// per-interface table, and the timers governing restart eligibility.
package iface

import (
	"sync"
	"time"
)

// Interface is a monitored network interface. It is safe for concurrent
// use: the controller tick, the event handlers, and the interface's own
// prober all read and mutate it.
//
// Invariant (spec.md §3): Connected() true implies LocalIP/CIDR/Gateway
// are all set; false implies all three are unset. Connect and Disconnect
// are the only ways to change connectivity, and each sets or clears all
// four fields atomically under the same lock.
type Interface struct {
	Name       string
	Weight     int
	TestTarget string
	// ProbeBudget is the configured number of consecutive successful
	// pings required per cycle (spec.md calls this probe_budget).
	ProbeBudget int

	mu               sync.RWMutex
	connected        bool
	localIP          string
	cidr             string
	gatewaySpec      string
	lastRestartAt    time.Time
	lastDisconnectAt time.Time
}

// New creates an Interface in the disconnected state.
func New(name string, weight int, testTarget string, probeBudget int) *Interface {
	return &Interface{
		Name:        name,
		Weight:      weight,
		TestTarget:  testTarget,
		ProbeBudget: probeBudget,
	}
}

// Snapshot is a point-in-time, immutable copy of an Interface's
// connectivity facts, safe to read without holding any lock.
type Snapshot struct {
	Name        string
	Weight      int
	Connected   bool
	LocalIP     string
	CIDR        string
	GatewaySpec string
}

// Snapshot returns a consistent copy of the interface's connectivity
// facts.
func (i *Interface) Snapshot() Snapshot {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return Snapshot{
		Name:        i.Name,
		Weight:      i.Weight,
		Connected:   i.connected,
		LocalIP:     i.localIP,
		CIDR:        i.cidr,
		GatewaySpec: i.gatewaySpec,
	}
}

// Connected reports current connectivity.
func (i *Interface) Connected() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.connected
}

// Connect records that this interface gained a default route, setting
// local_ip/cidr/gateway_spec and connected together (spec.md §3
// invariant).
func (i *Interface) Connect(localIP, cidr, gatewaySpec string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.connected = true
	i.localIP = localIP
	i.cidr = cidr
	i.gatewaySpec = gatewaySpec
}

// Disconnect clears connectivity and the dependent fields together, and
// stamps last_disconnect_at.
func (i *Interface) Disconnect(now time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.connected = false
	i.localIP = ""
	i.cidr = ""
	i.gatewaySpec = ""
	i.lastDisconnectAt = now
}

// ClearLastDisconnect resets last_disconnect_at, as happens on a
// Connected event (spec.md §4.4 step 1).
func (i *Interface) ClearLastDisconnect() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.lastDisconnectAt = time.Time{}
}

// BeginRestart stamps last_restart_at and clears last_disconnect_at, as
// the original implementation does at the start of a restart cycle.
func (i *Interface) BeginRestart(now time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.lastRestartAt = now
	i.lastDisconnectAt = time.Time{}
}

// EndRestart re-stamps last_restart_at once the restart command has
// completed.
func (i *Interface) EndRestart(now time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.lastRestartAt = now
}

// RestartEligible reports whether an interface restart may be scheduled:
// both the last restart and the last disconnect must be more than 60s in
// the past. An interface that has never disconnected is treated as if it
// disconnected 61s ago (spec.md §4.3 step 6).
func (i *Interface) RestartEligible(now time.Time) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()

	var sinceRestart time.Duration
	if i.lastRestartAt.IsZero() {
		sinceRestart = 61 * time.Second
	} else {
		sinceRestart = now.Sub(i.lastRestartAt)
	}

	var sinceDisconnect time.Duration
	if i.lastDisconnectAt.IsZero() {
		sinceDisconnect = 61 * time.Second
	} else {
		sinceDisconnect = now.Sub(i.lastDisconnectAt)
	}

	return sinceRestart > 60*time.Second && sinceDisconnect > 60*time.Second
}
