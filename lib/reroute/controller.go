// Package reroute implements the reroute controller: the root state
// machine that tracks per-interface connectivity, debounces syslog-driven
// events, and reprograms the host's policy routing, multipath default,
// and NAT masquerade chain.
package reroute

import (
	"context"
	"sync"
	"time"

	"github.com/maksimkurb/gwsupervisor/lib/config"
	"github.com/maksimkurb/gwsupervisor/lib/ingest"
	"github.com/maksimkurb/gwsupervisor/lib/iface"
	"github.com/maksimkurb/gwsupervisor/lib/log"
	"github.com/maksimkurb/gwsupervisor/lib/probe"
	"github.com/maksimkurb/gwsupervisor/lib/runner"
)

// Snapshot is a read-only copy of the controller's current topology,
// suitable for exposing through the status API.
type Snapshot struct {
	Interfaces       []iface.Snapshot
	LastTopologyHash string
	IsRerouting      bool
	ReroutePending   bool
}

// Controller is the root component: it owns the monitored interfaces, the
// pending-event queue, the debounce timer, and the routine that
// reprograms kernel routing state.
type Controller struct {
	ctx    context.Context
	cfg    *config.Config
	runner runner.CommandRunner
	log    *log.Logger

	baseTable      int
	multipathTable int
	debounce       time.Duration
	pollInterval   time.Duration

	events chan ingest.Event

	mu                  sync.Mutex
	interfaces          []*iface.Interface
	byName              map[string]*iface.Interface
	probers             map[string]*probe.Prober
	reroutePendingSince time.Time
	lastTopologyHash    string
	isRerouting         bool
	registered          bool
}

// New creates a Controller bound to ctx for its lifetime. Interfaces are
// not instantiated until the first syslog datagram arrives (OnAlive);
// see spec.md §4.4's "Registration".
func New(ctx context.Context, cfg *config.Config, r runner.CommandRunner) *Controller {
	return &Controller{
		ctx:            ctx,
		cfg:            cfg,
		runner:         r,
		log:            log.Component("controller"),
		baseTable:      cfg.Route.BaseTable,
		multipathTable: cfg.Route.MultipathTable,
		debounce:       time.Duration(cfg.Route.DelaySeconds) * time.Second,
		pollInterval:   time.Duration(cfg.PollInterval) * time.Second,
		events:         make(chan ingest.Event, 256),
		byName:         make(map[string]*iface.Interface),
		probers:        make(map[string]*probe.Prober),
	}
}

// Events returns the send side of the controller's event queue, wired
// into the ingest.Listener that produces events from syslog.
func (c *Controller) Events() chan<- ingest.Event {
	return c.events
}

// IsRerouting reports whether a reroute is currently executing. Part of
// probe.ControllerHandle.
func (c *Controller) IsRerouting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isRerouting
}

// ReroutePending reports whether an event is awaiting the debounce
// window. Part of probe.ControllerHandle.
func (c *Controller) ReroutePending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.reroutePendingSince.IsZero()
}

// OnAlive is the ingest.Listener's "syslog is up" hook. It performs
// deferred interface registration exactly once (spec.md §4.4).
func (c *Controller) OnAlive() {
	c.mu.Lock()
	if c.registered {
		c.mu.Unlock()
		return
	}
	c.registered = true
	c.mu.Unlock()
	c.register()
}

func (c *Controller) register() {
	names := c.cfg.SortedInterfaceNames()

	c.mu.Lock()
	for _, name := range names {
		net := c.cfg.MonitoredNetworks[name]
		ifc := iface.New(name, net.Weight, net.TestIP, net.NumOfTests)
		c.interfaces = append(c.interfaces, ifc)
		c.byName[name] = ifc
		c.probers[name] = probe.New(ifc, c.runner, c, net.RestartCommand)
	}
	probers := make([]*probe.Prober, 0, len(c.probers))
	for _, p := range c.probers {
		probers = append(probers, p)
	}
	c.mu.Unlock()

	c.log.Infof("registered %d monitored interfaces", len(names))

	for _, p := range probers {
		go p.Restart(c.ctx)
	}

	go c.tickLoop()
}

func (c *Controller) tickLoop() {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick runs one controller cycle. It never lets a single failure tear
// down the process: a panic anywhere in the body is caught and logged,
// matching spec.md §7's "every top-level task has an outermost catch".
func (c *Controller) tick() {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("tick panic: %v", r)
		}
	}()

	c.drainEvents()

	c.mu.Lock()
	pendingSince := c.reroutePendingSince
	c.mu.Unlock()
	if pendingSince.IsZero() {
		return
	}
	if time.Since(pendingSince) < c.debounce {
		return
	}

	c.mu.Lock()
	c.reroutePendingSince = time.Time{}
	c.mu.Unlock()

	hash, err := c.computeTopologyHash()
	if err != nil {
		c.log.Errorf("failed to compute topology hash: %v", err)
		return
	}

	c.mu.Lock()
	unchanged := hash == c.lastTopologyHash
	c.mu.Unlock()
	if unchanged {
		c.log.Infof("reroute cancelled, topology hash unchanged")
		return
	}

	c.mu.Lock()
	c.isRerouting = true
	c.mu.Unlock()

	if err := c.programRouting(); err != nil {
		c.log.Errorf("reroute failed: %v", err)
	} else if newHash, herr := c.computeTopologyHash(); herr == nil {
		c.mu.Lock()
		c.lastTopologyHash = newHash
		c.mu.Unlock()
	} else {
		c.log.Errorf("failed to recompute topology hash after reroute: %v", herr)
	}

	c.mu.Lock()
	c.isRerouting = false
	c.mu.Unlock()
}

func (c *Controller) drainEvents() {
	for {
		select {
		case ev := <-c.events:
			c.applyEvent(ev)
		default:
			return
		}
	}
}

func (c *Controller) applyEvent(ev ingest.Event) {
	c.mu.Lock()
	ifc, ok := c.byName[ev.Interface]
	c.mu.Unlock()
	if !ok {
		c.log.Debugf("event for unregistered interface %q discarded", ev.Interface)
		return
	}

	switch ev.Kind {
	case ingest.Connected:
		c.acquireRouteInfo(ifc)
		ifc.ClearLastDisconnect()
	case ingest.Disconnected:
		ifc.Disconnect(time.Now())
	}

	c.mu.Lock()
	c.reroutePendingSince = time.Now()
	c.mu.Unlock()
}

// Snapshot returns a read-only copy of the controller's current
// topology, for the status API.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	interfaces := append([]*iface.Interface(nil), c.interfaces...)
	s := Snapshot{
		LastTopologyHash: c.lastTopologyHash,
		IsRerouting:      c.isRerouting,
		ReroutePending:   !c.reroutePendingSince.IsZero(),
	}
	c.mu.Unlock()

	s.Interfaces = make([]iface.Snapshot, len(interfaces))
	for i, ifc := range interfaces {
		s.Interfaces[i] = ifc.Snapshot()
	}
	return s
}
