package app

import (
	"strings"

	"github.com/charlesng35/codeshare/internal/cache"
)

// EventFanout is the Redis connection and channel journal events are
// published on.
type EventFanout struct {
	Client  cache.RedisConfig
	Channel string
}

// EventFanout resolves the publishing settings from the cache section. It
// reports false when Redis publishing is switched off. An empty channel is
// left for the publisher to default.
func (c CacheConfig) EventFanout() (EventFanout, bool) {
	r := c.Redis
	if !r.Enabled {
		return EventFanout{}, false
	}
	return EventFanout{
		Client: cache.RedisConfig{
			Address:  strings.TrimSpace(r.Address),
			Username: strings.TrimSpace(r.Username),
			Password: r.Password,
			DB:       r.DB,
			TLS:      r.TLS,
			Timeout:  r.Timeout,
		},
		Channel: strings.TrimSpace(r.Channel),
	}, true
}
