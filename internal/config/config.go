package config

import "time"

// ChatdConfig is the root configuration for a chatd instance.
type ChatdConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Transport TransportConfig `yaml:"transport"`
	Rooms     RoomsConfig     `yaml:"rooms"`
	Router    RouterConfig    `yaml:"router"`
	Session   SessionConfig   `yaml:"session"`
	History   HistoryConfig   `yaml:"history"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"static_dir"` // Optional web client directory
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// TransportConfig holds WebSocket shell settings.
type TransportConfig struct {
	QueueSize      int           `yaml:"queue_size"`
	Overflow       string        `yaml:"overflow"` // drop or disconnect
	WriteWait      time.Duration `yaml:"write_wait"`
	PongWait       time.Duration `yaml:"pong_wait"`
	PingPeriod     time.Duration `yaml:"ping_period"`
	MaxMessageSize int64         `yaml:"max_message_size"`
}

// RoomsConfig holds room directory policy.
type RoomsConfig struct {
	// KeepEmpty disables reclaiming rooms whose membership drops to zero.
	KeepEmpty bool `yaml:"keep_empty"`

	// MaxMembers caps membership of lazily created rooms. 0 = unlimited.
	MaxMembers int `yaml:"max_members"`

	// Seed rooms exist from startup and are never reclaimed.
	Seed []RoomSeed `yaml:"seed"`
}

// RoomSeed declares one seeded room.
type RoomSeed struct {
	ID         string `yaml:"id"`
	MaxMembers int    `yaml:"max_members"`
}

// RouterConfig holds message router policy.
type RouterConfig struct {
	// NoEcho suppresses delivering a chat message back to its sender.
	NoEcho bool `yaml:"no_echo"`
}

// SessionConfig holds session coordinator policy.
type SessionConfig struct {
	// ReplayLimit is how many trailing messages a fresh joiner receives.
	ReplayLimit int `yaml:"replay_limit"`
}

// HistoryConfig selects and configures the message log backend.
type HistoryConfig struct {
	Backend  string      `yaml:"backend"` // memory, postgres, redis
	Retain   int         `yaml:"retain"`  // Per-room retention for memory/redis; 0 = unbounded
	Postgres DBConfig    `yaml:"postgres"`
	Redis    RedisConfig `yaml:"redis"`
}

// DBConfig holds a PostgreSQL connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RedisConfig holds a Redis connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}
