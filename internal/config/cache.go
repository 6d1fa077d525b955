package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// CacheConfig configures the Redis read cache in front of the public
// table listing.  Entries are short lived because capacity changes with
// every join and leave.
type CacheConfig struct {
	Enabled      bool          `envconfig:"CACHE_ENABLED" default:"true"`
	TTL          time.Duration `envconfig:"CACHE_TTL" default:"5s"`
	Prefix       string        `envconfig:"CACHE_PREFIX" default:"cache"`
	MaxBodyBytes int           `envconfig:"CACHE_MAX_BODY_BYTES" default:"262144"`
}

// LoadCacheConfig reads the cache settings from the environment.
func LoadCacheConfig() (CacheConfig, error) {
	var cc CacheConfig
	if err := envconfig.Process("", &cc); err != nil {
		return CacheConfig{}, err
	}
	if cc.TTL <= 0 {
		cc.TTL = 5 * time.Second
	}
	return cc, nil
}
