package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/weiawesome/emergency-chat-relay/internal/idgen"
	pkgconfig "github.com/weiawesome/emergency-chat-relay/pkg/config"
	"github.com/weiawesome/emergency-chat-relay/pkg/database"
	"github.com/weiawesome/emergency-chat-relay/pkg/log"
	"github.com/weiawesome/emergency-chat-relay/pkg/pubsub"
)

type Config struct {
	Server    ServerConfig
	GRPC      GRPCConfig
	WebSocket WebSocketConfig
	Relay     RelayConfig
	Store     StoreConfig
	ID        idgen.Config `mapstructure:"id"`
	Cache     CacheConfig
	Events    pubsub.Config
	Log       log.Config
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type GRPCConfig struct {
	Host                string
	Port                int
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	// AllowedOrigins empty means any origin is accepted.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RelayConfig struct {
	StoreTimeout time.Duration `mapstructure:"store_timeout"`
}

type StoreConfig struct {
	Driver    string // memory, mongo, cassandra, sql
	Mongo     MongoConfig
	Cassandra CassandraConfig
	Database  database.Config
}

type MongoConfig struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type CassandraConfig struct {
	Hosts       string
	Keyspace    string
	Consistency string
	Timeout     time.Duration
}

type CacheConfig struct {
	Driver   string // none, redis
	Address  string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// HostList splits the comma separated host list.
func (c CassandraConfig) HostList() []string {
	var hosts []string
	for _, h := range strings.Split(c.Hosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50060)
	v.SetDefault("grpc.health_check_interval", "10s")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("relay.store_timeout", "5s")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo.database", "emergency_chat")
	v.SetDefault("store.mongo.collection", "chat_messages")
	v.SetDefault("store.mongo.connect_timeout", "10s")
	v.SetDefault("store.cassandra.hosts", "localhost:9042")
	v.SetDefault("store.cassandra.keyspace", "emergency_chat")
	v.SetDefault("store.cassandra.consistency", "LOCAL_QUORUM")
	v.SetDefault("store.cassandra.timeout", "5s")
	v.SetDefault("store.database.driver", "sqlite")
	v.SetDefault("store.database.file_path", "emergency_chat.db")
	v.SetDefault("store.database.sslmode", "disable")
	v.SetDefault("store.database.log_level", "warn")
	v.SetDefault("id.type", idgen.TypeSnowflake)
	v.SetDefault("id.snowflake.machine_id", 1)
	v.SetDefault("id.snowflake.epoch", idgen.DefaultEpoch)
	v.SetDefault("id.nanoid.size", idgen.DefaultNanoIDSize)
	v.SetDefault("id.nanoid.alphabet", idgen.DefaultNanoIDAlphabet)
	v.SetDefault("id.cuid2.length", idgen.DefaultCUID2Length)
	v.SetDefault("cache.driver", "none")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.prefix", "chat:history")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("events.driver", "none")
	v.SetDefault("events.redis.address", "localhost:6379")
	v.SetDefault("events.redis.pool_size", 10)
	v.SetDefault("events.redis.read_timeout", "3s")
	v.SetDefault("events.redis.write_timeout", "3s")
	v.SetDefault("events.kafka.brokers", "localhost:9092")
	v.SetDefault("events.kafka.partitions", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "emergency-chat-relay")
	v.SetDefault("log.file.max_size_mb", 100)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.max_age_days", 14)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("grpc.port", "GRPC_PORT")
	v.BindEnv("store.driver", "STORE_DRIVER")
	v.BindEnv("store.mongo.uri", "MONGO_URI")
	v.BindEnv("store.cassandra.hosts", "CASSANDRA_HOSTS")
	v.BindEnv("store.cassandra.keyspace", "CASSANDRA_KEYSPACE")
	v.BindEnv("store.database.driver", "DB_DRIVER")
	v.BindEnv("store.database.host", "DB_HOST")
	v.BindEnv("store.database.port", "DB_PORT")
	v.BindEnv("store.database.user", "DB_USER")
	v.BindEnv("store.database.password", "DB_PASSWORD")
	v.BindEnv("store.database.dbname", "DB_NAME")
	v.BindEnv("id.type", "ID_TYPE")
	v.BindEnv("id.snowflake.machine_id", "SNOWFLAKE_MACHINE_ID")
	v.BindEnv("cache.driver", "CACHE_DRIVER")
	v.BindEnv("cache.address", "REDIS_ADDRESS")
	v.BindEnv("cache.password", "REDIS_PASSWORD")
	v.BindEnv("events.driver", "EVENTS_DRIVER")
	v.BindEnv("events.redis.address", "REDIS_ADDRESS")
	v.BindEnv("events.redis.password", "REDIS_PASSWORD")
	v.BindEnv("events.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.file.path", "LOG_FILE")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Server.ShutdownTimeout = parseDuration(v, "server.shutdown_timeout", 10*time.Second)
	cfg.GRPC.HealthCheckInterval = parseDuration(v, "grpc.health_check_interval", 10*time.Second)
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Relay.StoreTimeout = parseDuration(v, "relay.store_timeout", 5*time.Second)
	cfg.Store.Mongo.ConnectTimeout = parseDuration(v, "store.mongo.connect_timeout", 10*time.Second)
	cfg.Store.Cassandra.Timeout = parseDuration(v, "store.cassandra.timeout", 5*time.Second)
	cfg.Cache.TTL = parseDuration(v, "cache.ttl", 5*time.Minute)
	cfg.Events.Redis.ReadTimeout = parseDuration(v, "events.redis.read_timeout", 3*time.Second)
	cfg.Events.Redis.WriteTimeout = parseDuration(v, "events.redis.write_timeout", 3*time.Second)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return defaultVal
	}
	return d
}
