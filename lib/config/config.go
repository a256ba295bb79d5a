package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/pelletier/go-toml/v2"

	"github.com/maksimkurb/gwsupervisor/lib/log"
)

var interfaceHeaderRe = regexp.MustCompile(`(?m)^\[monitored_networks\.([a-zA-Z0-9_.:-]+)\]\s*$`)

var defaultConfig = Config{
	PollInterval: 5,
	Route: &RouteConfig{
		DelaySeconds:   10,
		BaseTable:      200,
		MultipathTable: 323,
	},
}

// Load reads and validates the TOML configuration file at path, applying
// defaults for any field left unset.
func Load(path string) (*Config, error) {
	configFile := filepath.Clean(path)

	if !filepath.IsAbs(configFile) {
		abs, err := filepath.Abs(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path: %v", err)
		}
		configFile = abs
	}

	content, err := os.ReadFile(configFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s", configFile)
		}
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	cfg := defaultConfig
	route := *defaultConfig.Route
	cfg.Route = &route

	if err := toml.Unmarshal(content, &cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			log.Errorf(derr.String())
			row, col := derr.Position()
			log.Errorf("Error at line %d, column %d", row, col)
			return nil, fmt.Errorf("failed to parse config file")
		}
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	for _, net := range cfg.MonitoredNetworks {
		applyNetworkDefaults(net)
	}

	cfg.InterfaceOrder = parseInterfaceOrder(content)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Debugf("Configuration file path: %s", configFile)
	return &cfg, nil
}

func applyNetworkDefaults(net *NetworkConfig) {
	if net.Active == nil {
		active := true
		net.Active = &active
	}
	if net.Weight == 0 {
		net.Weight = 1
	}
	if net.NumOfTests == 0 {
		net.NumOfTests = 5
	}
	if net.RestartCommand == "" {
		net.RestartCommand = "/etc/init.d/net.{{interface}} restart"
	}
}

// parseInterfaceOrder scans the raw document for
// "[monitored_networks.<name>]" table headers and returns the interface
// names in declaration order. go-toml/v2 decodes MonitoredNetworks into a
// plain map, which loses ordering; spec.md §3 requires declaration order
// to fix per-interface routing table ids, so we recover it from the text.
func parseInterfaceOrder(content []byte) []string {
	matches := interfaceHeaderRe.FindAllSubmatch(content, -1)
	seen := make(map[string]bool, len(matches))
	order := make([]string, 0, len(matches))
	for _, m := range matches {
		name := string(m[1])
		if seen[name] {
			continue
		}
		seen[name] = true
		order = append(order, name)
	}
	return order
}
