package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate checks cross-field rules the struct tags cannot express.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535 (got %d)", c.Server.Port)
	}

	if err := c.Store.validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	switch c.Catalog.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("catalog.driver must be sqlite or postgres (got %q)", c.Catalog.Driver)
	}
	if c.Catalog.DSN == "" {
		return errors.New("catalog.dsn is required")
	}

	if err := c.Session.validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}

	return nil
}

func (s *StoreConfig) validate() error {
	if !slices.Contains([]string{BackendRedis, BackendMongo, BackendMemory}, s.Backend) {
		return fmt.Errorf("backend must be one of redis, mongo, memory (got %q)", s.Backend)
	}
	if strings.TrimSpace(s.CartKey) == "" {
		return errors.New("cart_key is required")
	}

	keys := make([]string, 0, len(s.WishlistKeys))
	for _, k := range s.WishlistKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return errors.New("at least one wishlist key is required")
	}
	if slices.Contains(keys, s.CartKey) {
		return fmt.Errorf("wishlist_keys must not contain the cart key %q", s.CartKey)
	}
	s.WishlistKeys = keys
	return nil
}

func (s SessionConfig) validate() error {
	if s.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0 (got %s)", s.Timeout)
	}
	if s.WarnBefore <= 0 || s.WarnBefore >= s.Timeout {
		return fmt.Errorf("warn_before must be within (0, timeout) (got %s)", s.WarnBefore)
	}
	if s.CheckInterval <= 0 {
		return fmt.Errorf("check_interval must be > 0 (got %s)", s.CheckInterval)
	}
	if s.Debounce < 0 {
		return fmt.Errorf("debounce must be >= 0 (got %s)", s.Debounce)
	}
	return nil
}
