package config

import "time"

// IngestorConfig is the root configuration for an ingestor instance.
type IngestorConfig struct {
	Instance          InstanceConfig  `yaml:"instance"`
	Listener          ListenerConfig  `yaml:"listener"`
	Broker            BrokerConfig    `yaml:"broker"`
	Store             StoreConfig     `yaml:"store"`
	Sources           []SourceConfig  `yaml:"sources"`
	ReferenceTimezone string          `yaml:"reference_timezone"`
	Metrics           MetricsConfig   `yaml:"metrics"`
	Profiling         ProfilingConfig `yaml:"profiling"`
	Log               LogConfig       `yaml:"log"`
	ShutdownTimeout   time.Duration   `yaml:"shutdown_timeout"`
}

// InstanceConfig identifies this ingestor.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ListenerConfig holds the terminal-facing TCP settings.
type ListenerConfig struct {
	Addr          string        `yaml:"addr"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	MaxFrameBytes int           `yaml:"max_frame_bytes"`
	Blocklist     []string      `yaml:"blocklist"` // IPs or CIDRs; nil = built-in list, [] = none
}

// BrokerConfig holds the live publish/subscribe broker settings.
type BrokerConfig struct {
	Driver         string        `yaml:"driver"` // "amqp" or "redis"
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	AMQP           AMQPConfig    `yaml:"amqp"`
	Redis          RedisConfig   `yaml:"redis"`
}

// AMQPConfig holds RabbitMQ settings.
type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// RedisConfig holds Redis pub/sub settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StoreConfig holds the durable store and persistence queue settings.
type StoreConfig struct {
	Driver               string        `yaml:"driver"` // "mongo" or "postgres"
	SourcePrefix         string        `yaml:"source_prefix"`
	ErrorBackoff         time.Duration `yaml:"error_backoff"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	QueueInitialCapacity int           `yaml:"queue_initial_capacity"`
	QueueMaxLen          int           `yaml:"queue_max_len"` // 0 = unbounded
	Mongo                MongoConfig   `yaml:"mongo"`
	Postgres             DBConfig      `yaml:"postgres"`
}

// MongoConfig holds the MongoDB connection.
type MongoConfig struct {
	URI string `yaml:"uri"`
}

// DBConfig holds a single database connection.
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

// SourceConfig maps a terminal source to its clock correction.
type SourceConfig struct {
	Name       string `yaml:"name"`
	HourOffset int    `yaml:"hour_offset"`
	Timezone   string `yaml:"timezone"`
}

// MetricsConfig holds the health and Prometheus endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// ProfilingConfig holds continuous profiling settings. Empty ServerAddress disables it.
type ProfilingConfig struct {
	ServerAddress string `yaml:"server_address"`
	AppName       string `yaml:"app_name"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
