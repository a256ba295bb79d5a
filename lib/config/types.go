package config

// Config is the top-level daemon configuration, loaded once at startup
// from a TOML file and never mutated afterwards.
type Config struct {
	// PollInterval is the controller tick period, in seconds.
	PollInterval int `toml:"poll_interval" json:"poll_interval" validate:"gte=1"`
	// Route holds the policy-routing knobs: debounce window and table ids.
	Route *RouteConfig `toml:"route" json:"route" validate:"required"`
	// MonitoredNetworks maps a kernel interface name to its monitoring
	// settings. Order of [MODULE] iteration for table-id assignment is
	// the order interfaces were declared in the file, not map order; see
	// Config.SortedInterfaceNames.
	MonitoredNetworks map[string]*NetworkConfig `toml:"monitored_networks" json:"monitored_networks" validate:"dive"`
	// Status configures the optional read-only status API.
	Status *StatusConfig `toml:"status" json:"status"`

	// InterfaceOrder preserves the declaration order read from the TOML
	// document, since Go map iteration is unordered and spec.md ties
	// per-interface routing table ids to declaration order. Load()
	// recovers this by re-scanning the raw file; callers constructing a
	// Config directly (e.g. tests) should set it explicitly.
	InterfaceOrder []string
}

// RouteConfig configures debounce timing and routing table ids.
type RouteConfig struct {
	// DelaySeconds is the debounce window: quiet time after the latest
	// event before a reroute fires.
	DelaySeconds int `toml:"delay" json:"delay" validate:"gte=0"`
	// BaseTable is the first per-interface routing table id.
	BaseTable int `toml:"base_table" json:"base_table" validate:"gte=1"`
	// MultipathTable is the table id holding the multipath default route.
	MultipathTable int `toml:"multipath_table" json:"multipath_table" validate:"gte=1"`
}

// NetworkConfig configures monitoring and probing for a single interface.
type NetworkConfig struct {
	// Active includes this interface in monitoring. Defaults to true;
	// a *bool so an omitted field can be told apart from an explicit
	// "active = false".
	Active *bool `toml:"active" json:"active"`
	// TestIP is the ping target used to probe liveness. May be a
	// hostname; see the DNS preflight check in the prober.
	TestIP string `toml:"test_ip" json:"test_ip" validate:"required"`
	// Weight is this interface's share of multipath load balancing.
	Weight int `toml:"weight" json:"weight" validate:"gte=1"`
	// NumOfTests is the probe budget: consecutive successful pings
	// required per cycle before the interface is considered healthy.
	NumOfTests int `toml:"num_of_tests" json:"num_of_tests" validate:"gte=1"`
	// RestartCommand overrides the interface restart argv template.
	// Supports the {{interface}} placeholder. Defaults to
	// "/etc/init.d/net.{{interface}} restart".
	RestartCommand string `toml:"restart_command" json:"restart_command,omitempty"`
}

// StatusConfig configures the optional read-only status HTTP API.
type StatusConfig struct {
	// ListenAddr is the bind address for the status API, e.g.
	// "127.0.0.1:8080". Empty disables the API.
	ListenAddr string `toml:"listen_addr" json:"listen_addr" validate:"omitempty,bindaddr"`
}

// SortedInterfaceNames returns the active monitored interface names in
// their declaration order, fixing the per-interface routing table id
// assignment (spec.md §3: "order fixes the ... table id assignment").
func (c *Config) SortedInterfaceNames() []string {
	names := make([]string, 0, len(c.InterfaceOrder))
	for _, name := range c.InterfaceOrder {
		net, ok := c.MonitoredNetworks[name]
		if ok && net.Active != nil && *net.Active {
			names = append(names, name)
		}
	}
	return names
}
