package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "PARFLOW"

// Flag names registered by BindFlags.
const (
	FlagConfig       = "config"
	FlagEnvFile      = "env-file"
	FlagBackend      = "backend"
	FlagThreads      = "threads"
	FlagCapacity     = "capacity"
	FlagGrain        = "grain"
	FlagLockOSThread = "lock-os-thread"
	FlagLogLevel     = "log-level"
	FlagLogFormat    = "log-format"
	FlagMetrics      = "metrics"
)

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	FlagBackend:      "backend",
	FlagThreads:      "threads",
	FlagCapacity:     "capacity",
	FlagGrain:        "grain",
	FlagLockOSThread: "lock_os_thread",
	FlagLogLevel:     "logging.level",
	FlagLogFormat:    "logging.format",
	FlagMetrics:      "metrics.enabled",
}

// LoaderConfig holds optional sources for Load.
type LoaderConfig struct {
	ConfigFile string // YAML file (optional)
	EnvFile    string // .env file (optional)
	Flags      *pflag.FlagSet
}

// LoaderOption is a functional option for Load.
type LoaderOption func(*LoaderConfig)

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// WithFlags reads overrides from a flag set prepared with BindFlags.
// Only flags set on the command line override other sources. The config
// and env-file flags are honored when no explicit path was given.
func WithFlags(fs *pflag.FlagSet) LoaderOption {
	return func(lc *LoaderConfig) { lc.Flags = fs }
}

// BindFlags registers the configuration flags on fs.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(FlagConfig, "", "path to a YAML config file")
	fs.String(FlagEnvFile, "", "path to a .env file")
	fs.String(FlagBackend, d.Backend, "backend: native or work-stealing")
	fs.Int(FlagThreads, d.Threads, "number of threads")
	fs.Int(FlagCapacity, d.Capacity, "pipeline queue capacity")
	fs.Int(FlagGrain, d.Grain, "work-stealing split threshold, 0 for automatic")
	fs.Bool(FlagLockOSThread, d.LockOSThread, "pin native workers to OS threads")
	fs.String(FlagLogLevel, d.Logging.Level, "log level")
	fs.String(FlagLogFormat, d.Logging.Format, "log format: json or console")
	fs.Bool(FlagMetrics, d.Metrics.Enabled, "enable Prometheus metrics")
}

// Load builds a Config. Sources, lowest precedence first: built-in
// defaults, the YAML file, the .env file, PARFLOW_* environment variables
// and flags changed on the command line.
func Load(opts ...LoaderOption) (Config, error) {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}
	if lc.Flags != nil {
		if lc.ConfigFile == "" {
			lc.ConfigFile = flagString(lc.Flags, FlagConfig)
		}
		if lc.EnvFile == "" {
			lc.EnvFile = flagString(lc.Flags, FlagEnvFile)
		}
	}

	v := viper.New()
	setDefaults(v, Default())

	// 1. YAML config
	if lc.ConfigFile != "" {
		v.SetConfigFile(lc.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", lc.ConfigFile, err)
		}
	}

	// 2. .env file, never overriding variables already set
	if lc.EnvFile != "" {
		if err := godotenv.Load(lc.EnvFile); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", lc.EnvFile, err)
		}
	}

	// 3. Environment
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Flags
	if lc.Flags != nil {
		for name, key := range flagKeys {
			if f := lc.Flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("config: bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("backend", d.Backend)
	v.SetDefault("threads", d.Threads)
	v.SetDefault("capacity", d.Capacity)
	v.SetDefault("grain", d.Grain)
	v.SetDefault("lock_os_thread", d.LockOSThread)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
}

func flagString(fs *pflag.FlagSet, name string) string {
	if fs.Lookup(name) == nil {
		return ""
	}
	s, err := fs.GetString(name)
	if err != nil {
		return ""
	}
	return s
}

var (
	defaultOnce sync.Once
	defaultCfg  Config
	defaultErr  error
)

// LoadDefault loads the process-wide configuration once, from the file named
// by PARFLOW_CONFIG (if set) and the environment, and returns a copy.
func LoadDefault() (Config, error) {
	defaultOnce.Do(func() {
		var opts []LoaderOption
		if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
			opts = append(opts, WithConfigFile(path))
		}
		defaultCfg, defaultErr = Load(opts...)
	})
	return defaultCfg, defaultErr
}
