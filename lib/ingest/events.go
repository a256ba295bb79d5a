package ingest

import "time"

// Kind classifies an interface lifecycle event parsed from syslog.
type Kind int

const (
	// Connected indicates the interface gained link-layer and
	// default-route availability.
	Connected Kind = iota
	// Disconnected indicates the interface lost it.
	Disconnected
)

func (k Kind) String() string {
	if k == Connected {
		return "connected"
	}
	return "disconnected"
}

// Event is a classified interface lifecycle delta, enqueued to the
// controller in arrival order.
type Event struct {
	Kind      Kind
	Interface string
	// Timestamp is the syslog message's own timestamp, parsed against the
	// current year since BSD syslog omits it. It is informational only;
	// FIFO queue order, not this timestamp, defines causal order (see
	// spec.md §9).
	Timestamp time.Time
}
