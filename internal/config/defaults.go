package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultPort           = 8080
	DefaultLogLevel       = "info"
	DefaultQueueSize      = 256
	DefaultOverflow       = "drop"
	DefaultWriteWait      = 10 * time.Second
	DefaultPongWait       = 60 * time.Second
	DefaultPingPeriod     = 54 * time.Second
	DefaultMaxMessageSize = 64 * 1024
	DefaultReplayLimit    = 50
	DefaultHistoryBackend = "memory"
	DefaultHistoryRetain  = 1000
	DefaultDBPort         = 5432
	DefaultDBSSLMode      = "prefer"
	DefaultMaxConns       = 10
	DefaultMinConns       = 2
	DefaultRedisAddr      = "localhost:6379"
)

func (c *ChatdConfig) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	// Transport defaults
	if c.Transport.QueueSize == 0 {
		c.Transport.QueueSize = DefaultQueueSize
	}
	if c.Transport.Overflow == "" {
		c.Transport.Overflow = DefaultOverflow
	}
	if c.Transport.WriteWait == 0 {
		c.Transport.WriteWait = DefaultWriteWait
	}
	if c.Transport.PongWait == 0 {
		c.Transport.PongWait = DefaultPongWait
	}
	if c.Transport.PingPeriod == 0 {
		c.Transport.PingPeriod = DefaultPingPeriod
	}
	if c.Transport.MaxMessageSize == 0 {
		c.Transport.MaxMessageSize = DefaultMaxMessageSize
	}

	// Session defaults
	if c.Session.ReplayLimit == 0 {
		c.Session.ReplayLimit = DefaultReplayLimit
	}

	// History defaults
	if c.History.Backend == "" {
		c.History.Backend = DefaultHistoryBackend
	}
	if c.History.Retain == 0 {
		c.History.Retain = DefaultHistoryRetain
	}
	if c.History.Backend == "postgres" {
		applyDBDefaults(&c.History.Postgres)
	}
	if c.History.Backend == "redis" && c.History.Redis.Addr == "" {
		c.History.Redis.Addr = DefaultRedisAddr
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
