package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/candlefeed/internal/listener"
)

// Validate checks that all required fields are set and values are valid.
func (c *IngestorConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Listener.Addr == "" {
		return errors.New("listener.addr is required")
	}
	if c.Listener.IdleTimeout <= 0 {
		return errors.New("listener.idle_timeout must be > 0")
	}
	if c.Listener.MaxFrameBytes < 64 {
		return fmt.Errorf("listener.max_frame_bytes must be >= 64, got %d", c.Listener.MaxFrameBytes)
	}
	if _, err := listener.ParseBlocklist(c.Listener.Blocklist); err != nil {
		return fmt.Errorf("listener.blocklist: %w", err)
	}

	switch c.Broker.Driver {
	case "amqp":
		if c.Broker.AMQP.URL == "" {
			return errors.New("broker.amqp.url is required")
		}
	case "redis":
		if c.Broker.Redis.Addr == "" {
			return errors.New("broker.redis.addr is required")
		}
	default:
		return fmt.Errorf("broker.driver must be amqp or redis, got %q", c.Broker.Driver)
	}
	if c.Broker.AMQP.Exchange == "" {
		return errors.New("broker.amqp.exchange is required")
	}

	switch c.Store.Driver {
	case "mongo":
		if c.Store.Mongo.URI == "" {
			return errors.New("store.mongo.uri is required")
		}
	case "postgres":
		if err := c.Store.Postgres.validate("store.postgres"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("store.driver must be mongo or postgres, got %q", c.Store.Driver)
	}
	if c.Store.SourcePrefix == "" {
		return errors.New("store.source_prefix is required")
	}
	if c.Store.ErrorBackoff < 0 {
		return errors.New("store.error_backoff must be >= 0")
	}
	if c.Store.QueueInitialCapacity < 1 {
		return errors.New("store.queue_initial_capacity must be >= 1")
	}
	if c.Store.QueueMaxLen < 0 {
		return errors.New("store.queue_max_len must be >= 0")
	}

	if err := c.validateSources(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.ReferenceTimezone); err != nil {
		return fmt.Errorf("reference_timezone %q: %w", c.ReferenceTimezone, err)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}

	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown_timeout must be > 0")
	}

	return nil
}

func (c *IngestorConfig) validateSources() error {
	if len(c.Sources) == 0 {
		return errors.New("sources must not be empty")
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		prefix := fmt.Sprintf("sources[%d]", i)
		if s.Name == "" {
			return fmt.Errorf("%s.name is required", prefix)
		}
		if seen[s.Name] {
			return fmt.Errorf("%s.name %q is duplicated", prefix, s.Name)
		}
		seen[s.Name] = true
		if s.HourOffset < -23 || s.HourOffset > 23 {
			return fmt.Errorf("%s.hour_offset must be between -23 and 23, got %d", prefix, s.HourOffset)
		}
		if s.Timezone == "" {
			return fmt.Errorf("%s.timezone is required", prefix)
		}
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("%s.timezone %q: %w", prefix, s.Timezone, err)
		}
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
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
