package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL          string
	ContractAddress string
	EventName       string
	ABIPath         string
	SourceChainID   uint64

	DestinationURL    string
	DestinationAPIKey string
	RequestTimeout    time.Duration

	PollInterval   time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	ReconnectDelay time.Duration

	DeadLetterPath string
	PGDSN          string
	LogLevel       string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("event", "BridgeDepositInitiated")
	v.SetDefault("request-timeout", 10*time.Second)
	v.SetDefault("poll-interval", 5*time.Second)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", time.Second)
	v.SetDefault("reconnect-delay", 15*time.Second)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:            v.GetString("rpc"),
		ContractAddress:   v.GetString("contract"),
		EventName:         v.GetString("event"),
		ABIPath:           v.GetString("abi"),
		SourceChainID:     v.GetUint64("source-chain-id"),
		DestinationURL:    v.GetString("destination-url"),
		DestinationAPIKey: v.GetString("destination-api-key"),
		RequestTimeout:    v.GetDuration("request-timeout"),
		PollInterval:      v.GetDuration("poll-interval"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		ReconnectDelay:    v.GetDuration("reconnect-delay"),
		DeadLetterPath:    v.GetString("dead-letter"),
		PGDSN:             v.GetString("pg-dsn"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks that every required setting is present. A missing setting
// is a fatal startup condition.
func (c Config) Validate() error {
	missing := make([]string, 0, 6)
	if c.RPCURL == "" {
		missing = append(missing, "rpc")
	}
	if c.ContractAddress == "" {
		missing = append(missing, "contract")
	}
	if c.EventName == "" {
		missing = append(missing, "event")
	}
	if c.SourceChainID == 0 {
		missing = append(missing, "source-chain-id")
	}
	if c.DestinationURL == "" {
		missing = append(missing, "destination-url")
	}
	if c.DestinationAPIKey == "" {
		missing = append(missing, "destination-api-key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}
