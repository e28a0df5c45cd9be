// Package config holds server settings. Every flag can also be set through a SONGLINE_
// environment variable, e.g. --redis-url and SONGLINE_REDIS_URL.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/DoyleJ11/songline-backend/internal/reaper"
)

const EnvPrefix = "SONGLINE"

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	Bind    string
	Port    int
	Verbose bool

	Store       string
	DatabaseURL string
	RedisURL    string
	RedisTTL    time.Duration

	PublicURL   string
	CORSOrigins []string

	DisconnectSweepInterval time.Duration
	DisconnectTimeout       time.Duration
	EmptyRoomSweepInterval  time.Duration
	EmptyRoomMaxAge         time.Duration
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("--database-url is required with --store=postgres")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.New("--redis-url is required with --store=redis")
		}
		if c.RedisTTL <= 0 {
			return errors.New("--redis-ttl must be positive")
		}
	default:
		return fmt.Errorf("unknown store %q (want memory, postgres or redis)", c.Store)
	}
	for name, d := range map[string]time.Duration{
		"disconnect-sweep-interval": c.DisconnectSweepInterval,
		"disconnect-timeout":        c.DisconnectTimeout,
		"empty-room-sweep-interval": c.EmptyRoomSweepInterval,
		"empty-room-max-age":        c.EmptyRoomMaxAge,
	} {
		if d <= 0 {
			return fmt.Errorf("--%s must be positive", name)
		}
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

func (c *Config) Reaper() reaper.Config {
	return reaper.Config{
		DisconnectSweepInterval: c.DisconnectSweepInterval,
		DisconnectTimeout:       c.DisconnectTimeout,
		EmptyRoomSweepInterval:  c.EmptyRoomSweepInterval,
		EmptyRoomMaxAge:         c.EmptyRoomMaxAge,
	}
}

// BindFlags registers every setting on cmd and lets SONGLINE_* variables fill in any flag
// that was not given on the command line.
func BindFlags(cmd *cobra.Command, cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: SONGLINE_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: SONGLINE_PORT)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "log at debug level (env: SONGLINE_VERBOSE)")
	fs.StringVar(&cfg.Store, "store", StoreMemory, "snapshot store: memory, postgres or redis (env: SONGLINE_STORE)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres DSN for --store=postgres (env: SONGLINE_DATABASE_URL)")
	fs.StringVar(&cfg.RedisURL, "redis-url", "", "redis URL for --store=redis (env: SONGLINE_REDIS_URL)")
	fs.DurationVar(&cfg.RedisTTL, "redis-ttl", 24*time.Hour, "how long an untouched room snapshot stays in redis (env: SONGLINE_REDIS_TTL)")
	fs.StringVar(&cfg.PublicURL, "public-url", "", "base URL players use to join, for QR codes (env: SONGLINE_PUBLIC_URL)")
	fs.StringSliceVar(&cfg.CORSOrigins, "cors-origins", []string{"*"}, "allowed browser origins (env: SONGLINE_CORS_ORIGINS)")
	fs.DurationVar(&cfg.DisconnectSweepInterval, "disconnect-sweep-interval", 5*time.Minute, "how often to evict disconnected lobby players (env: SONGLINE_DISCONNECT_SWEEP_INTERVAL)")
	fs.DurationVar(&cfg.DisconnectTimeout, "disconnect-timeout", 10*time.Minute, "how long a lobby player may stay disconnected (env: SONGLINE_DISCONNECT_TIMEOUT)")
	fs.DurationVar(&cfg.EmptyRoomSweepInterval, "empty-room-sweep-interval", 5*time.Minute, "how often to delete empty rooms (env: SONGLINE_EMPTY_ROOM_SWEEP_INTERVAL)")
	fs.DurationVar(&cfg.EmptyRoomMaxAge, "empty-room-max-age", 30*time.Minute, "age after which an empty room is deleted (env: SONGLINE_EMPTY_ROOM_MAX_AGE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, envValue(v, f))
		}
	})
}

// envValue renders a viper value the way pflag expects to parse it back.
func envValue(v *viper.Viper, f *pflag.Flag) string {
	if f.Value.Type() == "stringSlice" {
		return strings.Join(v.GetStringSlice(f.Name), ",")
	}
	return fmt.Sprintf("%v", v.Get(f.Name))
}
