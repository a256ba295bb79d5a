// Package probe implements the per-interface liveness prober: a
// budget-counted ping loop with single-flight re-entrancy, a DNS
// preflight diagnostic, and self-healing interface restarts.
package probe

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/valyala/fasttemplate"

	"github.com/maksimkurb/gwsupervisor/lib/iface"
	"github.com/maksimkurb/gwsupervisor/lib/log"
	"github.com/maksimkurb/gwsupervisor/lib/runner"
)

// ControllerHandle is the narrow view of the reroute controller a prober
// needs: whether a reroute is in flight or pending, so a probe cycle can
// abort rather than race the controller (spec.md §4.3 step 2).
type ControllerHandle interface {
	IsRerouting() bool
	ReroutePending() bool
}

// packetsRe parses ping's summary line, e.g.
// "2 packets transmitted, 2 received, 0% packet loss, time 1001ms".
var packetsRe = regexp.MustCompile(`(\d+) packets transmitted, (\d+)( packets)? received`)

// Prober runs the liveness loop for a single interface.
type Prober struct {
	iface           *iface.Interface
	runner          runner.CommandRunner
	ctl             ControllerHandle
	restartTemplate string
	log             *log.Logger

	// mu guards running and budget together: the two must never be
	// observed out of sync, since budget > 0 with running == false
	// means no goroutine will ever consume the budget again.
	mu      sync.Mutex
	running bool
	budget  int

	// sleepInterval computes the per-iteration backoff from the current
	// budget (spec.md §4.3 step 1: 300/active_probe_budget seconds).
	// Overridable in tests to avoid multi-minute sleeps.
	sleepInterval func(budget int) time.Duration
	restartDelay  time.Duration
}

// New creates a Prober for ifc, using runner to invoke ping/restart
// commands and ctl to check reroute status before each iteration.
// restartTemplate is a fasttemplate string with an {{interface}}
// placeholder, e.g. "/etc/init.d/net.{{interface}} restart".
func New(ifc *iface.Interface, r runner.CommandRunner, ctl ControllerHandle, restartTemplate string) *Prober {
	return &Prober{
		iface:           ifc,
		runner:          r,
		ctl:             ctl,
		restartTemplate: restartTemplate,
		log:             log.Component("prober:" + ifc.Name),
		sleepInterval:   defaultSleepInterval,
		restartDelay:    5 * time.Second,
	}
}

func defaultSleepInterval(budget int) time.Duration {
	return time.Duration(300.0/float64(budget)*1000) * time.Millisecond
}

// TriggerProbe requests a probe cycle. If a cycle is already in progress
// it merely resets the budget and returns without starting a second
// loop (spec.md §4.3's single-flight guarantee). The running check and
// the budget reset happen under the same lock as loop's exit decision,
// so the two can never be observed out of sync.
func (p *Prober) TriggerProbe(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.budget = p.iface.ProbeBudget
	if p.running {
		return
	}
	p.running = true
	go p.loop(ctx)
}

func (p *Prober) loop(ctx context.Context) {
	for {
		p.mu.Lock()
		budget := p.budget
		if budget <= 0 {
			p.running = false
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		sleepFor := p.sleepInterval(budget)
		select {
		case <-time.After(sleepFor):
		case <-ctx.Done():
			p.endCycle()
			return
		}

		if p.ctl.IsRerouting() || p.ctl.ReroutePending() {
			p.endCycle()
			return
		}

		if p.runIteration(ctx) {
			p.mu.Lock()
			p.budget--
			p.mu.Unlock()
			continue
		}

		p.endCycle()
		p.evaluateRestart(ctx)
		return
	}
}

// endCycle zeroes the budget and clears running together, so a
// concurrent TriggerProbe either observes the cycle as still running
// (and only resets the budget, which this call will then immediately
// re-zero) or observes it as finished (and spawns a fresh loop) — never
// a budget left positive with no goroutine left to consume it.
func (p *Prober) endCycle() {
	p.mu.Lock()
	p.budget = 0
	p.running = false
	p.mu.Unlock()
}

// budgetSnapshot returns the current budget under lock, for tests.
func (p *Prober) budgetSnapshot() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.budget
}

// runIteration performs the DNS preflight and the ping invocation for one
// cycle, returning true iff the probe should be treated as a success.
func (p *Prober) runIteration(ctx context.Context) bool {
	if status, diag := preflight(p.iface.TestTarget); status == preflightNXDOMAIN {
		p.log.Warnf("test target did not resolve: %s", diag)
		return false
	} else if status == preflightError {
		p.log.Warnf("test target did not resolve: %s", diag)
	}

	res, err := p.runner.Run(ctx, "ping", "-qn", "-I", p.iface.Name, "-c2", "-W5", "-w15", p.iface.TestTarget)
	if err != nil {
		p.log.Errorf("ping could not be spawned: %v", err)
		return false
	}
	return pingSucceeded(res)
}

// pingSucceeded implements spec.md §4.3 step 4: success iff stderr is
// empty and the "N packets transmitted, M received" line parses with
// M >= 1 and N >= 1. Any parse failure counts as failure.
func pingSucceeded(res runner.Result) bool {
	if res.Stderr != "" {
		return false
	}
	m := packetsRe.FindStringSubmatch(res.Stdout)
	if m == nil {
		return false
	}
	transmitted, err := strconv.Atoi(m[1])
	if err != nil || transmitted < 1 {
		return false
	}
	received, err := strconv.Atoi(m[2])
	if err != nil || received < 1 {
		return false
	}
	return true
}

// evaluateRestart schedules an interface restart if eligible, per
// spec.md §4.3 step 6.
func (p *Prober) evaluateRestart(ctx context.Context) {
	now := time.Now()
	if !p.iface.RestartEligible(now) {
		p.log.Debugf("probe failed, restart not yet eligible")
		return
	}
	go p.Restart(ctx)
}

// Restart runs the interface's init-script restart flow: a 5s grace
// sleep, the templated restart command, timestamp bookkeeping, and a
// fresh probe cycle. It is exported so the controller can invoke the
// same flow for an interface's initial restart on registration
// (spec.md §4.4).
func (p *Prober) Restart(ctx context.Context) {
	p.log.Infof("restarting interface")
	p.iface.BeginRestart(time.Now())

	select {
	case <-time.After(p.restartDelay):
	case <-ctx.Done():
		return
	}

	t := fasttemplate.New(p.restartTemplate, "{{", "}}")
	cmd := t.ExecuteString(map[string]interface{}{"interface": p.iface.Name})

	if _, err := p.runner.Run(ctx, splitCommand(cmd)...); err != nil {
		p.log.Errorf("restart command failed to spawn: %v", err)
	}

	p.iface.EndRestart(time.Now())
	p.TriggerProbe(ctx)
}

// splitCommand splits a simple space-separated command string into argv.
// Restart commands are plain init-script invocations with no quoting
// needs (spec.md §6's command surface table).
func splitCommand(cmd string) []string {
	var argv []string
	start := -1
	for i, r := range cmd {
		if r == ' ' || r == '\t' {
			if start >= 0 {
				argv = append(argv, cmd[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		argv = append(argv, cmd[start:])
	}
	return argv
}

type preflightStatus int

const (
	preflightOK preflightStatus = iota
	preflightNXDOMAIN
	preflightError
)

// preflight resolves target via the system resolver. It short-circuits
// for literal IP addresses and distinguishes a definitive NXDOMAIN from
// a transient resolver error, per SPEC_FULL.md §4.5.
func preflight(target string) (preflightStatus, string) {
	if net.ParseIP(target) != nil {
		return preflightOK, ""
	}

	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(conf.Servers) == 0 {
		return preflightError, fmt.Sprintf("no resolver configured: %v", err)
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(target), dns.TypeA)

	c := new(dns.Client)
	c.Timeout = 3 * time.Second
	server := net.JoinHostPort(conf.Servers[0], conf.Port)

	r, _, err := c.Exchange(m, server)
	if err != nil {
		return preflightError, err.Error()
	}
	if r.Rcode == dns.RcodeNameError {
		return preflightNXDOMAIN, "NXDOMAIN"
	}
	if r.Rcode != dns.RcodeSuccess {
		return preflightError, dns.RcodeToString[r.Rcode]
	}
	return preflightOK, ""
}
