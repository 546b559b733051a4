// Package config loads chainidx's on-disk configuration, in the same
// viper-over-yaml idiom the teacher repo uses for its own config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	defaultConfigName = "chainidx"
	defaultConfigType = "yml"

	defaultLogLevel  = "info"
	defaultLogDir    = ""
	defaultMaxFiles  = 64
	defaultCacheSize = 16 * 1024 * 1024
)

// Config is the full set of options enumerated in the spec's external
// interfaces section, plus logging.
type Config struct {
	Network uint32 `mapstructure:"network"`

	Memory      bool   `mapstructure:"memory"`
	Prefix      string `mapstructure:"prefix"`
	Location    string `mapstructure:"location"`
	MaxFiles    int    `mapstructure:"maxFiles"`
	CacheSize   int64  `mapstructure:"cacheSize"`
	Compression bool   `mapstructure:"compression"`

	Indexers []string `mapstructure:"indexers"`

	LogLevel string `mapstructure:"logLevel"`
	LogDir   string `mapstructure:"logDir"`
}

// StoreLocation resolves the effective store directory: Location overrides
// Prefix/index, matching the spec's "location overrides prefix/index" rule.
func (c *Config) StoreLocation() string {
	if c.Location != "" {
		return c.Location
	}
	return filepath.Join(c.Prefix, "index")
}

func defaults() Config {
	return Config{
		MaxFiles:    defaultMaxFiles,
		CacheSize:   defaultCacheSize,
		Compression: true,
		Indexers:    []string{"tx", "addr"},
		LogLevel:    defaultLogLevel,
		LogDir:      defaultLogDir,
	}
}

// Load reads configFile (or, if empty, searches the executable's directory
// then the current directory for chainidx.yml) and unmarshals it over the
// package defaults.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		baseDir := "."
		if exe, err := os.Executable(); err == nil {
			baseDir = filepath.Dir(exe)
		}
		v.SetConfigName(defaultConfigName)
		v.SetConfigType(defaultConfigType)
		v.AddConfigPath(baseDir)
		v.AddConfigPath(".")
	}

	cfg := defaults()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: read config: %w", err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse config: %w", err)
	}
	return &cfg, nil
}

// ValidIndexer reports whether name is a known indexer identifier.
func ValidIndexer(name string) bool {
	switch name {
	case "tx", "addr":
		return true
	default:
		return false
	}
}
