package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *ChatdConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug/info/warn/error, got %q", c.Log.Level)
	}

	switch c.Transport.Overflow {
	case "drop", "disconnect":
	default:
		return fmt.Errorf("transport.overflow must be drop or disconnect, got %q", c.Transport.Overflow)
	}
	if c.Transport.QueueSize < 1 {
		return errors.New("transport.queue_size must be >= 1")
	}
	if c.Transport.PingPeriod >= c.Transport.PongWait {
		return errors.New("transport.ping_period must be less than transport.pong_wait")
	}

	if c.Rooms.MaxMembers < 0 {
		return errors.New("rooms.max_members must be >= 0")
	}
	for i, s := range c.Rooms.Seed {
		if s.ID == "" {
			return fmt.Errorf("rooms.seed[%d].id is required", i)
		}
	}

	if c.Session.ReplayLimit < 0 {
		return errors.New("session.replay_limit must be >= 0")
	}

	switch c.History.Backend {
	case "memory":
	case "postgres":
		if err := c.History.Postgres.validate("history.postgres"); err != nil {
			return err
		}
	case "redis":
		if c.History.Redis.Addr == "" {
			return errors.New("history.redis.addr is required")
		}
	default:
		return fmt.Errorf("history.backend must be memory, postgres, or redis, got %q", c.History.Backend)
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
	if db.Port < 1 || db.Port > 65535 {
		return fmt.Errorf("%s.port must be between 1 and 65535, got %d", prefix, db.Port)
	}
	return nil
}
