package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks a loaded Config against its struct tags and the
// cross-field invariants validator tags alone can't express: K must not
// exceed the configured node count, and node names must be unique (the
// cluster registry keys clients by name, per pkg/cluster).
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w", err)
	}

	if cfg.Cluster.K > len(cfg.Cluster.Nodes) {
		return fmt.Errorf("cluster.k (%d) cannot exceed the configured node count (%d)", cfg.Cluster.K, len(cfg.Cluster.Nodes))
	}

	seen := make(map[string]struct{}, len(cfg.Cluster.Nodes))
	for _, n := range cfg.Cluster.Nodes {
		if _, dup := seen[n.Name]; dup {
			return fmt.Errorf("cluster.nodes: duplicate node name %q", n.Name)
		}
		seen[n.Name] = struct{}{}
	}

	return nil
}
