package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding process settings
const EnvPrefix = "REPOCACHE"

const (
	// DefaultAddress is the listen address of serve mode
	DefaultAddress = ":8080"

	// DefaultHTTPTimeout bounds each request to the review service
	DefaultHTTPTimeout = 10 * time.Second

	// DefaultHTTPRetries is the number of attempts per request to the review service
	DefaultHTTPRetries = 2
)

// Settings are process-level settings. Unlike Config they come from flags
// and the environment, not from the cgitrc file.
type Settings struct {
	ConfigPath  string
	Address     string
	LogLevel    string
	HTTPTimeout time.Duration
	HTTPRetries uint
	Metrics     bool
}

// NewViper returns a viper instance reading REPOCACHE_* variables with the
// defaults for every process setting
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("config", defaultConfigPath())
	v.SetDefault("address", DefaultAddress)
	v.SetDefault("log-level", "info")
	v.SetDefault("http-timeout", DefaultHTTPTimeout)
	v.SetDefault("http-retries", DefaultHTTPRetries)
	v.SetDefault("metrics", true)
	return v
}

// LoadSettings reads the process settings from v
func LoadSettings(v *viper.Viper) Settings {
	retries := v.GetInt("http-retries")
	if retries < 1 {
		retries = 1
	}
	timeout := v.GetDuration("http-timeout")
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return Settings{
		ConfigPath:  v.GetString("config"),
		Address:     v.GetString("address"),
		LogLevel:    v.GetString("log-level"),
		HTTPTimeout: timeout,
		HTTPRetries: uint(retries),
		Metrics:     v.GetBool("metrics"),
	}
}

// defaultConfigPath honours CGIT_CONFIG so existing deployments keep working
func defaultConfigPath() string {
	if path := os.Getenv("CGIT_CONFIG"); path != "" {
		return path
	}
	return DefaultConfigPath
}
