package reroute

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/maksimkurb/gwsupervisor/lib/iface"
	"github.com/maksimkurb/gwsupervisor/lib/probe"
)

var (
	routeLine0Re = regexp.MustCompile(`^default (?P<route>via \d+\.\d+\.\d+\.\d+) src (?P<local_ip>\d+\.\d+\.\d+\.\d+)`)
	routeLine1Re = regexp.MustCompile(`^(?P<cidr>\d+\.\d+\.\d+\.\d+/\d+)`)
)

// acquireRouteInfo runs "ip route list dev <name>" and, if the output
// matches the expected two-line shape, transitions the interface to
// connected with the parsed local_ip/cidr/gateway_spec. On any parse
// miss the interface is left disconnected (spec.md §4.4).
func (c *Controller) acquireRouteInfo(ifc *iface.Interface) {
	res, err := c.runner.Run(c.ctx, "ip", "route", "list", "dev", ifc.Name)
	if err != nil {
		c.log.Errorf("ip route list dev %s could not be spawned: %v", ifc.Name, err)
		return
	}

	lines := nonEmptyLines(res.Stdout)
	if len(lines) < 2 {
		c.log.Debugf("route info for %s incomplete (%d lines), leaving disconnected", ifc.Name, len(lines))
		return
	}

	m0 := routeLine0Re.FindStringSubmatch(lines[0])
	if m0 == nil {
		c.log.Debugf("route info for %s: line 0 %q did not match, leaving disconnected", ifc.Name, lines[0])
		return
	}
	m1 := routeLine1Re.FindStringSubmatch(lines[1])
	if m1 == nil {
		c.log.Debugf("route info for %s: line 1 %q did not match, leaving disconnected", ifc.Name, lines[1])
		return
	}

	g0 := namedGroups(routeLine0Re, m0)
	g1 := namedGroups(routeLine1Re, m1)

	ifc.Connect(g0["local_ip"], g1["cidr"], g0["route"])
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func namedGroups(re *regexp.Regexp, match []string) map[string]string {
	out := make(map[string]string, len(match))
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		out[name] = match[i]
	}
	return out
}

// computeTopologyHash hashes the connectivity tuple of every interface
// together with the current "ip route show" content. The interface
// tuples are sorted before hashing so the result is order-insensitive
// (spec.md §3: "treat the inputs as a set").
func (c *Controller) computeTopologyHash() (string, error) {
	res, err := c.runner.Run(c.ctx, "ip", "route", "show")
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	interfaces := append([]*iface.Interface(nil), c.interfaces...)
	c.mu.Unlock()

	tuples := make([]string, 0, len(interfaces))
	for _, ifc := range interfaces {
		s := ifc.Snapshot()
		tuples = append(tuples, fmt.Sprintf("%s|%t|%s|%s|%s", s.Name, s.Connected, s.LocalIP, s.CIDR, s.GatewaySpec))
	}
	sort.Strings(tuples)

	h := sha256.New()
	for _, t := range tuples {
		h.Write([]byte(t))
		h.Write([]byte("\n"))
	}
	h.Write([]byte(res.Stdout))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// table returns the per-interface routing table id for the interface at
// zero-based index i in the declaration order (spec.md §4.4: TABLE(i) =
// base_table_id + i + 1).
func (c *Controller) table(i int) int {
	return c.baseTable + i + 1
}

// programRouting reprograms the host's policy routing, multipath
// default, and NAT masquerade chain to match current connectivity. It
// follows spec.md §4.4's ordered cleanup/build/policy/multipath/finalize
// phases exactly. A spawn failure aborts the remaining phases and
// returns an error; the caller (tick) never updates last_topology_hash
// in that case, so the next debounced tick retries.
func (c *Controller) programRouting() error {
	c.mu.Lock()
	interfaces := append([]*iface.Interface(nil), c.interfaces...)
	c.mu.Unlock()

	n := len(interfaces)
	if n < 100 {
		n = 100
	}

	// Cleanup phase.
	for i := 0; i < n; i++ {
		table := c.baseTable + i + 1
		if err := c.runUntilError(5, "ip", "rule", "del", "prio", strconv.Itoa(table)); err != nil {
			return err
		}
		if err := c.runUntilError(5, "ip", "route", "del", "all", "table", strconv.Itoa(table)); err != nil {
			return err
		}
	}
	if err := c.runUntilError(5, "ip", "rule", "del", "prio", strconv.Itoa(c.multipathTable)); err != nil {
		return err
	}
	if err := c.runUntilError(5, "ip", "route", "del", "all", "table", strconv.Itoa(c.multipathTable)); err != nil {
		return err
	}
	if err := c.run("iptables", "-t", "nat", "-F"); err != nil {
		return err
	}
	if err := c.runUntilError(5, "ip", "route", "del", "default"); err != nil {
		return err
	}

	// Build phase, one per connected interface, in declaration order.
	var connected []iface.Snapshot
	for i, ifc := range interfaces {
		snap := ifc.Snapshot()
		if !snap.Connected {
			continue
		}
		connected = append(connected, snap)

		table := c.table(i)
		if err := c.run("ip", "rule", "add", "prio", strconv.Itoa(table), "from", snap.LocalIP, "lookup", strconv.Itoa(table)); err != nil {
			return err
		}
		argv := append([]string{"ip", "route", "add", "default", "src", snap.LocalIP, "proto", "static", "table", strconv.Itoa(table)}, strings.Fields(snap.GatewaySpec)...)
		if err := c.run(argv...); err != nil {
			return err
		}
		if err := c.run("ip", "route", "append", "prohibit", "default", "metric", "1", "proto", "static", "table", strconv.Itoa(table)); err != nil {
			return err
		}
		if err := c.run("iptables", "-t", "nat", "-A", "POSTROUTING", "-o", snap.Name, "-j", "MASQUERADE"); err != nil {
			return err
		}
	}

	// Policy rules.
	if err := c.run("ip", "rule", "del", "prio", "32765"); err != nil {
		return err
	}
	if err := c.run("ip", "rule", "add", "prio", "32765", "lookup", "main"); err != nil {
		return err
	}
	if err := c.run("ip", "rule", "del", "prio", "32766"); err != nil {
		return err
	}
	if err := c.run("ip", "rule", "add", "prio", "32766", "lookup", strconv.Itoa(c.multipathTable)); err != nil {
		return err
	}

	// Multipath default.
	switch len(connected) {
	case 0:
		// No connected interfaces: no multipath default installed.
	case 1:
		argv := append([]string{"ip", "route", "add", "default", "table", strconv.Itoa(c.multipathTable), "proto", "static"}, strings.Fields(connected[0].GatewaySpec)...)
		if err := c.run(argv...); err != nil {
			return err
		}
	default:
		argv := []string{"ip", "route", "add", "default", "table", strconv.Itoa(c.multipathTable), "proto", "static"}
		for _, snap := range connected {
			argv = append(argv, "nexthop")
			argv = append(argv, strings.Fields(snap.GatewaySpec)...)
			argv = append(argv, "weight", strconv.Itoa(snap.Weight))
		}
		if err := c.run(argv...); err != nil {
			return err
		}
	}

	// Finalize.
	if err := c.run("ip", "route", "flush", "cache"); err != nil {
		return err
	}

	c.triggerAllProbes()

	return nil
}

func (c *Controller) run(argv ...string) error {
	_, err := c.runner.Run(c.ctx, argv...)
	return err
}

func (c *Controller) runUntilError(maxRetries int, argv ...string) error {
	_, err := c.runner.RunUntilError(c.ctx, maxRetries, argv...)
	return err
}

// triggerAllProbes schedules a fresh probe cycle for every interface,
// the finalize step of program_routing (spec.md §4.4 step 8).
func (c *Controller) triggerAllProbes() {
	c.mu.Lock()
	probers := make([]*probe.Prober, 0, len(c.probers))
	for _, p := range c.probers {
		probers = append(probers, p)
	}
	c.mu.Unlock()

	for _, p := range probers {
		p.TriggerProbe(c.ctx)
	}
}
