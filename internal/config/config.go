package config

import "time"

// Config is the root application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Redis   RedisConfig   `yaml:"redis"`
	Mongo   MongoConfig   `yaml:"mongo"`
	Catalog CatalogConfig `yaml:"catalog"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Session SessionConfig `yaml:"session"`
	Tabs    TabsConfig    `yaml:"tabs"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"HTTP_PORT"               env-default:"8080"`
	RequestTimeout  time.Duration `yaml:"request_timeout"  env:"SERVER_REQUEST_TIMEOUT"  env-default:"30s"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"40s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

const (
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// StoreConfig selects where carts and wishlists persist.
type StoreConfig struct {
	Backend string `yaml:"backend" env:"STORE_BACKEND" env-default:"redis"`
	// CartKey and WishlistKeys name the persisted collections. The first
	// wishlist key is primary; the rest are kept in sync for older clients.
	CartKey      string        `yaml:"cart_key"      env:"STORE_CART_KEY"      env-default:"cart"`
	WishlistKeys []string      `yaml:"wishlist_keys" env:"STORE_WISHLIST_KEYS" env-default:"wishlist,favorites" env-separator:","`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"STORE_WRITE_TIMEOUT" env-default:"2s"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"     env:"REDIS_ADDR"     env-default:"localhost:6379"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db"       env:"REDIS_DB"       env-default:"0"`
	TTL      time.Duration `yaml:"ttl"      env:"REDIS_TTL"      env-default:"720h"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"      env:"MONGO_URI"      env-default:"mongodb://localhost:27017/?replicaSet=rs0"`
	Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"storefront"`
}

// CatalogConfig holds the product database and the breaker around it.
type CatalogConfig struct {
	Driver string `yaml:"driver" env:"CATALOG_DRIVER" env-default:"sqlite"`
	DSN    string `yaml:"dsn"    env:"CATALOG_DSN"    env-default:"./data/products.db"`
	// SeedFile is an optional JSON array of products upserted at startup.
	SeedFile         string        `yaml:"seed_file"         env:"CATALOG_SEED_FILE"`
	FailureThreshold uint32        `yaml:"failure_threshold" env:"CATALOG_FAILURE_THRESHOLD" env-default:"5"`
	OpenTimeout      time.Duration `yaml:"open_timeout"      env:"CATALOG_OPEN_TIMEOUT"      env-default:"30s"`
	LoadTimeout      time.Duration `yaml:"load_timeout"      env:"CATALOG_LOAD_TIMEOUT"      env-default:"5s"`
}

// KafkaConfig enables the notification publisher and the checkout consumer.
// Neither runs without brokers.
type KafkaConfig struct {
	Brokers              []string `yaml:"brokers"               env:"KAFKA_BROKERS" env-separator:","`
	PublishNotifications bool     `yaml:"publish_notifications" env:"KAFKA_PUBLISH_NOTIFICATIONS"`
	ConsumeCheckouts     bool     `yaml:"consume_checkouts"     env:"KAFKA_CONSUME_CHECKOUTS"`
}

func (k KafkaConfig) Publishing() bool { return len(k.Brokers) > 0 && k.PublishNotifications }

func (k KafkaConfig) Consuming() bool { return len(k.Brokers) > 0 && k.ConsumeCheckouts }

type SessionConfig struct {
	Timeout       time.Duration `yaml:"timeout"        env:"SESSION_TIMEOUT"        env-default:"30m"`
	WarnBefore    time.Duration `yaml:"warn_before"    env:"SESSION_WARN_BEFORE"    env-default:"5m"`
	CheckInterval time.Duration `yaml:"check_interval" env:"SESSION_CHECK_INTERVAL" env-default:"60s"`
	Debounce      time.Duration `yaml:"debounce"       env:"SESSION_DEBOUNCE"       env-default:"300ms"`
}

type TabsConfig struct {
	IdleTimeout        time.Duration `yaml:"idle_timeout"        env:"TABS_IDLE_TIMEOUT"        env-default:"2h"`
	SweepInterval      time.Duration `yaml:"sweep_interval"      env:"TABS_SWEEP_INTERVAL"      env-default:"5m"`
	NotificationBuffer int           `yaml:"notification_buffer" env:"TABS_NOTIFICATION_BUFFER" env-default:"50"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}
