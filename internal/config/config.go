// Package config loads the braid CLI configuration from YAML or JSON files.
package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/braid/internal/logging"
	"github.com/aretw0/braid/pkg/persistence/middleware"
	"github.com/aretw0/braid/pkg/runnable"
)

// EnvEncryptionKey overrides Security.EncryptionKey when set, so keys can stay
// out of config files.
const EnvEncryptionKey = "BRAID_ENCRYPTION_KEY"

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config is the root of braid.yaml.
type Config struct {
	Log      LogConfig      `yaml:"log" json:"log"`
	Store    StoreConfig    `yaml:"store" json:"store"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Chat     ChatConfig     `yaml:"chat" json:"chat"`
	Security SecurityConfig `yaml:"security" json:"security"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // text or json
}

type StoreConfig struct {
	Backend string      `yaml:"backend" json:"backend"`
	Path    string      `yaml:"path" json:"path"`
	Redis   RedisConfig `yaml:"redis" json:"redis"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db"`
	Prefix   string        `yaml:"prefix" json:"prefix"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

type ChatConfig struct {
	System string      `yaml:"system" json:"system"`
	Model  ModelConfig `yaml:"model" json:"model"`
	// Knowledge feeds a keyword retriever whose best matches replace
	// "{context}" in System. Empty disables retrieval.
	Knowledge []string `yaml:"knowledge" json:"knowledge"`
	TopK      int      `yaml:"top_k" json:"top_k"`
	// MaxInputSize bounds one user input in bytes.
	MaxInputSize int `yaml:"max_input_size" json:"max_input_size"`
}

// ModelConfig selects the chat model. With Command set, replies come from
// that local process; otherwise the built-in echo model answers.
type ModelConfig struct {
	Prefix  string            `yaml:"prefix" json:"prefix"`
	Delay   time.Duration     `yaml:"delay" json:"delay"`
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args" json:"args"`
	Env     map[string]string `yaml:"env" json:"env"`
	Dir     string            `yaml:"dir" json:"dir"`
}

type SecurityConfig struct {
	// EncryptionKey is a base64 AES-256 key. Empty disables encryption.
	EncryptionKey string   `yaml:"encryption_key" json:"encryption_key"`
	FallbackKeys  []string `yaml:"fallback_keys" json:"fallback_keys"`
	PIIPatterns   []string `yaml:"pii_patterns" json:"pii_patterns"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log:    LogConfig{Level: "info", Format: "text"},
		Store:  StoreConfig{Backend: BackendMemory, Path: filepath.Join(".braid", "sessions")},
		Server: ServerConfig{Addr: ":8080"},
		Chat: ChatConfig{
			System: "You are a helpful assistant.",
			Model:        ModelConfig{Prefix: "echo: "},
			TopK:         2,
			MaxInputSize: runnable.DefaultMaxInputSize,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Files ending in .json are parsed as JSON, anything else as YAML. Durations
// may be written as strings ("30s") in both formats.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			file, err := parse(path, data)
			if err != nil {
				return cfg, err
			}
			cfg = cfg.Merge(file)
		case !os.IsNotExist(err):
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
	}
	if key := os.Getenv(EnvEncryptionKey); key != "" {
		cfg.Security.EncryptionKey = key
	}
	return cfg, nil
}

func parse(path string, data []byte) (Config, error) {
	var raw map[string]any
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return Config{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Merge returns c with every non-zero field of other applied on top.
func (c Config) Merge(other Config) Config {
	str := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	str(&c.Log.Level, other.Log.Level)
	str(&c.Log.Format, other.Log.Format)
	str(&c.Store.Backend, other.Store.Backend)
	str(&c.Store.Path, other.Store.Path)
	str(&c.Store.Redis.Addr, other.Store.Redis.Addr)
	str(&c.Store.Redis.Password, other.Store.Redis.Password)
	str(&c.Store.Redis.Prefix, other.Store.Redis.Prefix)
	if other.Store.Redis.DB != 0 {
		c.Store.Redis.DB = other.Store.Redis.DB
	}
	if other.Store.Redis.TTL != 0 {
		c.Store.Redis.TTL = other.Store.Redis.TTL
	}
	str(&c.Server.Addr, other.Server.Addr)
	str(&c.Chat.System, other.Chat.System)
	str(&c.Chat.Model.Prefix, other.Chat.Model.Prefix)
	if other.Chat.Model.Delay != 0 {
		c.Chat.Model.Delay = other.Chat.Model.Delay
	}
	str(&c.Chat.Model.Command, other.Chat.Model.Command)
	str(&c.Chat.Model.Dir, other.Chat.Model.Dir)
	if len(other.Chat.Model.Args) > 0 {
		c.Chat.Model.Args = other.Chat.Model.Args
	}
	if len(other.Chat.Model.Env) > 0 {
		c.Chat.Model.Env = other.Chat.Model.Env
	}
	if other.Chat.MaxInputSize != 0 {
		c.Chat.MaxInputSize = other.Chat.MaxInputSize
	}
	if len(other.Chat.Knowledge) > 0 {
		c.Chat.Knowledge = other.Chat.Knowledge
	}
	if other.Chat.TopK != 0 {
		c.Chat.TopK = other.Chat.TopK
	}
	str(&c.Security.EncryptionKey, other.Security.EncryptionKey)
	if len(other.Security.FallbackKeys) > 0 {
		c.Security.FallbackKeys = other.Security.FallbackKeys
	}
	if len(other.Security.PIIPatterns) > 0 {
		c.Security.PIIPatterns = other.Security.PIIPatterns
	}
	return c
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if f := c.Log.Format; f != "" && f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", f))
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the file backend"))
		}
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if c.Chat.MaxInputSize < 0 {
		errs = append(errs, errors.New("chat.max_input_size must not be negative"))
	}
	if c.Chat.TopK < 0 {
		errs = append(errs, errors.New("chat.top_k must not be negative"))
	}
	if c.Store.Redis.TTL < 0 {
		errs = append(errs, errors.New("store.redis.ttl must not be negative"))
	}
	if c.Security.EncryptionKey != "" {
		if _, err := c.Security.Encryption(); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := middleware.CompilePatterns(c.Security.PIIPatterns); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Encryption decodes the configured keys.
func (s SecurityConfig) Encryption() (middleware.EncryptionConfig, error) {
	var out middleware.EncryptionConfig
	key, err := base64.StdEncoding.DecodeString(s.EncryptionKey)
	if err != nil {
		return out, fmt.Errorf("security.encryption_key is not valid base64: %w", err)
	}
	out.ActiveKey = key
	for i, k := range s.FallbackKeys {
		raw, err := base64.StdEncoding.DecodeString(k)
		if err != nil {
			return out, fmt.Errorf("security.fallback_keys[%d] is not valid base64: %w", i, err)
		}
		out.FallbackKeys = append(out.FallbackKeys, raw)
	}
	return out, out.Validate()
}
