package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port      string `env:"PORT,      default=8080"`
	Env       string `env:"ENV,       default=development"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`
	JWTSecret string `env:"JWT_SECRET"`

	JWTIssuer   string        `env:"JWT_ISSUER,   default=fintrack"`
	JWTAudience string        `env:"JWT_AUDIENCE, default=fintrack-api"`
	AccessTTL   time.Duration `env:"ACCESS_TOKEN_TTL,  default=24h"`
	RefreshTTL  time.Duration `env:"REFRESH_TOKEN_TTL, default=720h"`
	BcryptCost  int           `env:"BCRYPT_COST, default=12"`

	LockoutThreshold int           `env:"LOCKOUT_THRESHOLD, default=5"`
	LockoutDuration  time.Duration `env:"LOCKOUT_DURATION,  default=15m"`

	// TenantMode selects the storage strategy: "pooled" gives every principal
	// its own logical database, "shared" keeps one schema filtered by owner.
	TenantMode string `env:"TENANT_MODE, default=pooled"`

	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL, default=1h"`

	LoginRateLimit  int           `env:"LOGIN_RATE_LIMIT,  default=10"`
	LoginRateWindow time.Duration `env:"LOGIN_RATE_WINDOW, default=1m"`

	Mongo MongoConfig
	Redis RedisConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=fintrack"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB,   default=0"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	var cfg Config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return &cfg
}
