package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Port    string
	RPCPort string
	BaseURL string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type RedisConfig struct {
	Host string
	Port string
	// Кэш превью — единственный потребитель Redis, поэтому размер пула
	// задаётся конфигом, а не константой коннектора.
	PoolSize     int
	MinIdleConns int
}

// TokenIdentity личность, привязанная к API токену.
type TokenIdentity struct {
	Username string
	Role     string
}

type AuthConfig struct {
	// APITokens токен -> личность; выдачей токенов занимается
	// внешний коллаборатор, здесь только готовая карта.
	APITokens map[string]TokenIdentity
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	// .env опционален: в контейнерах всё приходит через окружение
	if _, err := os.Stat(".env"); err == nil {
		if err := viper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	cfg.App.Port = viper.GetString("APP_PORT")
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	cfg.App.RPCPort = viper.GetString("RPC_PORT")
	if cfg.App.RPCPort == "" {
		cfg.App.RPCPort = "9090"
	}
	cfg.App.BaseURL = viper.GetString("BASE_URL")
	if cfg.App.BaseURL == "" {
		cfg.App.BaseURL = "http://localhost:" + cfg.App.Port
	}

	cfg.DB.Host = viper.GetString("DB_HOST")
	cfg.DB.Port = viper.GetString("DB_PORT")
	cfg.DB.User = viper.GetString("DB_USER")
	cfg.DB.Password = viper.GetString("DB_PASSWORD")
	cfg.DB.Name = viper.GetString("DB_NAME")
	cfg.Redis.Host = viper.GetString("REDIS_HOST")
	cfg.Redis.Port = viper.GetString("REDIS_PORT")
	cfg.Redis.PoolSize = viper.GetInt("REDIS_POOL_SIZE")
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 50
	}
	cfg.Redis.MinIdleConns = viper.GetInt("REDIS_MIN_IDLE_CONNS")
	if cfg.Redis.MinIdleConns == 0 {
		cfg.Redis.MinIdleConns = 5
	}

	// Формат: token1:username1:role1,token2:username2:role2
	cfg.Auth.APITokens = parseAPITokens(viper.GetString("API_TOKENS"))

	cfg.RateLimit.RequestsPerSecond = viper.GetFloat64("RATE_LIMIT_RPS")
	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 10
	}
	cfg.RateLimit.BurstSize = viper.GetInt("RATE_LIMIT_BURST")
	if cfg.RateLimit.BurstSize == 0 {
		cfg.RateLimit.BurstSize = 20
	}

	return &cfg, nil
}

// parseAPITokens разбирает карту токенов из строки "token:username:role,..."
func parseAPITokens(raw string) map[string]TokenIdentity {
	tokens := make(map[string]TokenIdentity)
	if raw == "" {
		return tokens
	}

	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 3)
		if len(parts) == 3 {
			tokens[strings.TrimSpace(parts[0])] = TokenIdentity{
				Username: strings.TrimSpace(parts[1]),
				Role:     strings.TrimSpace(parts[2]),
			}
		}
	}

	return tokens
}
