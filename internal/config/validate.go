package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %q", c.Server.Port)
	}
	if c.Server.RequestTimeoutSec < 1 {
		return errors.New("server.request_timeout_sec must be >= 1")
	}

	if c.Token.Address == "" {
		return errors.New("token.address is required")
	}
	if err := validateURL("token.endpoint", c.Token.Endpoint); err != nil {
		return err
	}
	if c.Token.PollIntervalSec < 1 {
		return errors.New("token.poll_interval_sec must be >= 1")
	}
	if c.Token.FetchTimeoutSec < 1 {
		return errors.New("token.fetch_timeout_sec must be >= 1")
	}

	if c.Waitlist.Enabled && c.Waitlist.UpstreamURL != "" {
		if err := validateURL("waitlist.upstream_url", c.Waitlist.UpstreamURL); err != nil {
			return err
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}

	if c.Database.Enabled {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}
	return nil
}

func (db *Database) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", field, raw)
	}
	return nil
}
