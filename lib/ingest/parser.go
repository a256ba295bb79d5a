package ingest

import (
	"regexp"
	"time"
	"unicode/utf8"
)

// syslogRe matches the BSD syslog envelope:
// "<facility>Mmm DD HH:MM:SS host prog[pid]: body"
var syslogRe = regexp.MustCompile(
	`^<(?P<facility>\d+)>` +
		`(?P<date>\w{3}\s+\d+\s+\d+:\d+:\d+)\s+` +
		`(?P<host>\w+)\s+(?P<prog>[^\[:]+)(\[(?P<pid>\d+)\])?:\s+` +
		`(?P<msg>.*)$`)

// Ordered body classification patterns; first match wins (spec.md §4.2).
var (
	reDefaultRouteAdd = regexp.MustCompile(`^(?P<intf>\w+): (adding|changing) default route (?P<route>.*)`)
	reRemovingIface   = regexp.MustCompile(`^(?P<intf>\w+): removing interface`)
	reWpaDisconnected = regexp.MustCompile(`^interface (?P<intf>\w+) DISCONNECTED`)
	reWpaConnected    = regexp.MustCompile(`^interface (?P<intf>\w+) CONNECTED`)
	reLinkReady       = regexp.MustCompile(`^(?P<intf>\w+): link becomes ready`)
)

// syslogTimeLayout matches "Mmm DD HH:MM:SS"; the year is not present in
// BSD syslog and is supplied separately from the receive-time clock.
const syslogTimeLayout = "Jan _2 15:04:05"

// Parse decodes a single syslog datagram and classifies it into an Event.
// It returns ok=false for any datagram that does not decode as UTF-8,
// does not match the syslog envelope, or whose body matches none of the
// classification patterns — all silently discarded per spec.md §4.2.
func Parse(data []byte, now time.Time) (Event, bool) {
	if !utf8.Valid(data) {
		return Event{}, false
	}
	message := string(data)

	m := syslogRe.FindStringSubmatch(message)
	if m == nil {
		return Event{}, false
	}
	groups := namedGroups(syslogRe, m)

	timestamp := parseSyslogTime(groups["date"], now)
	body := groups["msg"]

	if g := reDefaultRouteAdd.FindStringSubmatch(body); g != nil {
		return Event{Kind: Connected, Interface: namedGroups(reDefaultRouteAdd, g)["intf"], Timestamp: timestamp}, true
	}
	if g := reRemovingIface.FindStringSubmatch(body); g != nil {
		return Event{Kind: Disconnected, Interface: namedGroups(reRemovingIface, g)["intf"], Timestamp: timestamp}, true
	}
	if g := reWpaDisconnected.FindStringSubmatch(body); g != nil {
		return Event{Kind: Disconnected, Interface: namedGroups(reWpaDisconnected, g)["intf"], Timestamp: timestamp}, true
	}
	if g := reWpaConnected.FindStringSubmatch(body); g != nil {
		return Event{Kind: Connected, Interface: namedGroups(reWpaConnected, g)["intf"], Timestamp: timestamp}, true
	}
	// "link becomes ready": probably an interface with a static IP was
	// connected. Treated as Connected without re-reading routes; the
	// controller's acquire_route_info on the resulting event does that.
	if g := reLinkReady.FindStringSubmatch(body); g != nil {
		return Event{Kind: Connected, Interface: namedGroups(reLinkReady, g)["intf"], Timestamp: timestamp}, true
	}

	return Event{}, false
}

func parseSyslogTime(field string, now time.Time) time.Time {
	t, err := time.Parse(syslogTimeLayout, field)
	if err != nil {
		return now
	}
	return time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, now.Location())
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

