package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	base "github.com/juhanncheong/wallet-backend-sub000/libs/config"
	"github.com/spf13/viper"
)

type DBConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaTopics struct {
	OrdersAccepted     string
	OrdersCancelled    string
	TradesSettled      string
	RewardsRedeemed    string
	DepositsConfirmed  string
	WithdrawalsDecided string
	DeadLetter         string
}

type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
	Topics        KafkaTopics
}

type EngineConfig struct {
	TickInterval  time.Duration
	BatchSize     int
	SettleTimeout time.Duration
}

type OracleConfig struct {
	MaxPriceAge time.Duration
	Timeout     time.Duration
}

type MarketsConfig struct {
	RefreshInterval time.Duration
	SettlementAsset string
}

type SignupConfig struct {
	Networks []string
}

type AuthConfig struct {
	JWTSecret     string
	InternalToken string
}

type Config struct {
	App     base.AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Kafka   KafkaConfig
	Engine  EngineConfig
	Oracle  OracleConfig
	Markets MarketsConfig
	Signup  SignupConfig
	Auth    AuthConfig
}

func Load() (*Config, error) {
	appCfg, err := base.Load(os.Getenv("WALLET_CONFIG"))
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("WALLET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := os.Getenv("WALLET_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.consumer_group", "wallet-funding")
	v.SetDefault("kafka.topics.orders_accepted", "orders.accepted")
	v.SetDefault("kafka.topics.orders_cancelled", "orders.cancelled")
	v.SetDefault("kafka.topics.trades_settled", "trades.settled")
	v.SetDefault("kafka.topics.rewards_redeemed", "rewards.redeemed")
	v.SetDefault("kafka.topics.deposits_confirmed", "funding.deposits.confirmed")
	v.SetDefault("kafka.topics.withdrawals_decided", "funding.withdrawals.decided")
	v.SetDefault("kafka.topics.dead_letter", "wallet.dlq")
	v.SetDefault("engine.tick_interval", "2s")
	v.SetDefault("engine.batch_size", 200)
	v.SetDefault("engine.settle_timeout", "5s")
	v.SetDefault("oracle.max_price_age", "30s")
	v.SetDefault("oracle.timeout", "2s")
	v.SetDefault("markets.refresh_interval", "1m")
	v.SetDefault("markets.settlement_asset", "USDT")
	v.SetDefault("signup.networks", []string{"BTC", "ETH", "TRX", "BSC", "SOL"})

	cfg := &Config{
		App: *appCfg,
		DB: DBConfig{
			Host:     envString("POSTGRES_HOST", "localhost"),
			Port:     envInt("POSTGRES_PORT", 5432),
			Name:     envString("POSTGRES_DB", "wallet_core"),
			User:     envString("POSTGRES_USER", "wallet"),
			Password: envString("POSTGRES_PASSWORD", "wallet"),
			SSLMode:  envString("POSTGRES_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     envString("REDIS_ADDR", "localhost:6379"),
			Password: envString("REDIS_PASSWORD", ""),
			DB:       envInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:       envCSV("KAFKA_BROKERS", v.GetStringSlice("kafka.brokers")),
			ConsumerGroup: envString("KAFKA_CONSUMER_GROUP", v.GetString("kafka.consumer_group")),
			Topics: KafkaTopics{
				OrdersAccepted:     v.GetString("kafka.topics.orders_accepted"),
				OrdersCancelled:    v.GetString("kafka.topics.orders_cancelled"),
				TradesSettled:      v.GetString("kafka.topics.trades_settled"),
				RewardsRedeemed:    v.GetString("kafka.topics.rewards_redeemed"),
				DepositsConfirmed:  v.GetString("kafka.topics.deposits_confirmed"),
				WithdrawalsDecided: v.GetString("kafka.topics.withdrawals_decided"),
				DeadLetter:         v.GetString("kafka.topics.dead_letter"),
			},
		},
		Engine: EngineConfig{
			TickInterval:  envDuration("ENGINE_TICK_INTERVAL", v.GetDuration("engine.tick_interval")),
			BatchSize:     envInt("ENGINE_BATCH_SIZE", v.GetInt("engine.batch_size")),
			SettleTimeout: envDuration("ENGINE_SETTLE_TIMEOUT", v.GetDuration("engine.settle_timeout")),
		},
		Oracle: OracleConfig{
			MaxPriceAge: envDuration("ORACLE_MAX_PRICE_AGE", v.GetDuration("oracle.max_price_age")),
			Timeout:     envDuration("ORACLE_TIMEOUT", v.GetDuration("oracle.timeout")),
		},
		Markets: MarketsConfig{
			RefreshInterval: envDuration("MARKETS_REFRESH_INTERVAL", v.GetDuration("markets.refresh_interval")),
			SettlementAsset: envString("MARKETS_SETTLEMENT_ASSET", v.GetString("markets.settlement_asset")),
		},
		Signup: SignupConfig{
			Networks: envCSV("SIGNUP_NETWORKS", v.GetStringSlice("signup.networks")),
		},
		Auth: AuthConfig{
			JWTSecret:     envString("WALLET_JWT_SECRET", ""),
			InternalToken: envString("WALLET_INTERNAL_TOKEN", ""),
		},
	}

	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if cfg.Kafka.ConsumerGroup == "" {
		return nil, fmt.Errorf("kafka consumer group required")
	}
	if cfg.Engine.BatchSize <= 0 {
		return nil, fmt.Errorf("engine batch size must be positive")
	}
	if cfg.Engine.TickInterval <= 0 {
		return nil, fmt.Errorf("engine tick interval must be positive")
	}
	if cfg.Markets.SettlementAsset == "" {
		return nil, fmt.Errorf("settlement asset required")
	}
	if len(cfg.Signup.Networks) == 0 {
		return nil, fmt.Errorf("signup networks required")
	}
	if cfg.App.Env != "dev" && cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("WALLET_JWT_SECRET required outside dev")
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envCSV(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
