package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rickgao/candlefeed/internal/broker"
	"github.com/rickgao/candlefeed/internal/ingest"
	"github.com/rickgao/candlefeed/internal/listener"
	"github.com/rickgao/candlefeed/internal/persist"
	"github.com/rickgao/candlefeed/internal/source"
)

// IngestConfig returns the per-session protocol settings.
func (c *IngestorConfig) IngestConfig() ingest.Config {
	return ingest.Config{
		IdleTimeout:   c.Listener.IdleTimeout,
		WriteTimeout:  c.Listener.WriteTimeout,
		MaxFrameBytes: c.Listener.MaxFrameBytes,
	}
}

// ListenerConfig returns the accept loop settings with a parsed blocklist.
func (c *IngestorConfig) ListenerConfig() (listener.Config, error) {
	b, err := listener.ParseBlocklist(c.Listener.Blocklist)
	if err != nil {
		return listener.Config{}, err
	}
	return listener.Config{Addr: c.Listener.Addr, Blocklist: b}, nil
}

// BrokerConfig returns the publisher settings.
func (c *IngestorConfig) BrokerConfig() broker.Config {
	return broker.Config{
		Driver:         c.Broker.Driver,
		Exchange:       c.Broker.AMQP.Exchange,
		PublishTimeout: c.Broker.PublishTimeout,
		AMQPURL:        c.Broker.AMQP.URL,
		RedisAddr:      c.Broker.Redis.Addr,
		RedisPassword:  c.Broker.Redis.Password,
		RedisDB:        c.Broker.Redis.DB,
	}
}

// PersistConfig returns the persistence worker settings.
func (c *IngestorConfig) PersistConfig() (persist.Config, error) {
	ref, err := time.LoadLocation(c.ReferenceTimezone)
	if err != nil {
		return persist.Config{}, fmt.Errorf("load reference timezone: %w", err)
	}
	return persist.Config{
		SourcePrefix:      c.Store.SourcePrefix,
		ErrorBackoff:      c.Store.ErrorBackoff,
		ReferenceTimezone: ref,
		WriteTimeout:      c.Store.WriteTimeout,
	}, nil
}

// SourceTable builds the source timezone table.
func (c *IngestorConfig) SourceTable() (*source.Table, error) {
	entries := make([]source.Entry, 0, len(c.Sources))
	for _, s := range c.Sources {
		entries = append(entries, source.Entry{
			Name:       s.Name,
			HourOffset: s.HourOffset,
			Timezone:   s.Timezone,
		})
	}
	return source.NewTable(entries)
}

// LogLevel parses log.level.
func (c *IngestorConfig) LogLevel() (slog.Level, error) {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
}
