package app

import (
	"strings"

	"github.com/charlesng35/codeshare/internal/discovery"
)

// DiscoveryClientConfig converts the discovery section for the advertiser.
func (c DiscoveryConfig) DiscoveryClientConfig() discovery.Config {
	return discovery.Config{
		Enabled:  c.Enabled,
		Instance: strings.TrimSpace(c.Instance),
		Service:  strings.TrimSpace(c.Service),
	}
}
