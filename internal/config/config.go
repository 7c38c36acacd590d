// Package config loads pytrail settings from .pytrail.yaml, a .env file and
// PYTRAIL_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the project root.
const FileName = ".pytrail.yaml"

const (
	DefaultDatabase  = ".pytrail/index.db"
	DefaultCacheSize = 256
	DefaultAddr      = "127.0.0.1:8080"
)

type Config struct {
	SearchRoots []string `yaml:"search_roots"`
	ExcludeDirs []string `yaml:"exclude_dirs"`
	Database    string   `yaml:"database"`
	Workers     int      `yaml:"workers"`
	CacheSize   int      `yaml:"cache_size"`
	Verbose     bool     `yaml:"verbose"`
	Server      struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{
		Database:  DefaultDatabase,
		CacheSize: DefaultCacheSize,
	}
	cfg.Server.Addr = DefaultAddr
	return cfg
}

// Load reads path on top of the defaults. A missing file is not an error;
// an empty path looks for FileName in the working directory.
func Load(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = FileName
	}

	// 2. Load YAML config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("config: %w", err)
	}

	// 3. Override with environment variables if present
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if db := os.Getenv("PYTRAIL_DB"); db != "" {
		c.Database = db
	}
	if roots := os.Getenv("PYTRAIL_SEARCH_ROOTS"); roots != "" {
		c.SearchRoots = filepath.SplitList(roots)
	}
	if w := os.Getenv("PYTRAIL_WORKERS"); w != "" {
		n, err := strconv.Atoi(w)
		if err != nil {
			return fmt.Errorf("config: PYTRAIL_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if addr := os.Getenv("PYTRAIL_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	return nil
}

// resolvePaths makes relative search roots relative to the config file.
func (c *Config) resolvePaths(base string) {
	for i, root := range c.SearchRoots {
		root = strings.TrimSpace(root)
		if !filepath.IsAbs(root) {
			root = filepath.Join(base, root)
		}
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
		c.SearchRoots[i] = root
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
}

// Excluded reports whether a directory base name is configured to be skipped.
func (c *Config) Excluded(name string) bool {
	for _, d := range c.ExcludeDirs {
		if d == name {
			return true
		}
	}
	return false
}
