package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"modelbridge/internal/common/fsutil"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by defaults at startup;
// an unset environment never fails startup.
type Config struct {
	Addr            string   `json:"addr" yaml:"addr" toml:"addr"`
	LMStudioBaseURL string   `json:"lmstudio_base_url" yaml:"lmstudio_base_url" toml:"lmstudio_base_url"`
	ChatModelID     string   `json:"chat_model_id" yaml:"chat_model_id" toml:"chat_model_id"`
	EmbedModelID    string   `json:"embed_model_id" yaml:"embed_model_id" toml:"embed_model_id"`
	PollIntervalSec int      `json:"poll_interval_sec" yaml:"poll_interval_sec" toml:"poll_interval_sec"`
	LoadTTLSec      int      `json:"load_ttl_sec" yaml:"load_ttl_sec" toml:"load_ttl_sec"`
	StateDir        string   `json:"state_dir" yaml:"state_dir" toml:"state_dir"`
	CatalogPath     string   `json:"catalog_path" yaml:"catalog_path" toml:"catalog_path"`
	AccessTokens    []string `json:"access_tokens" yaml:"access_tokens" toml:"access_tokens"`
	CORSEnabled     bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins     []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	LogLevel        string   `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Documented fallbacks applied by WithDefaults.
const (
	DefaultAddr        = ":8080"
	DefaultBaseURL     = "http://localhost:1234"
	DefaultChatModel   = "qwen_qwen3-vl-4b-instruct"
	DefaultEmbedModel  = "nomic-embed-text-v1.5"
	DefaultPollSec     = 15
	DefaultStateDirRel = ".modelbridge"
)

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyEnv overlays environment values on unset fields.
func (c Config) ApplyEnv() Config {
	if c.Addr == "" {
		c.Addr = os.Getenv("MODELBRIDGE_ADDR")
	}
	if c.LMStudioBaseURL == "" {
		c.LMStudioBaseURL = os.Getenv("LMSTUDIO_BASE_URL")
	}
	if c.ChatModelID == "" {
		// Legacy name accepted for compatibility.
		c.ChatModelID = firstEnv("LMSTUDIO_CHAT_MODEL_ID", "LMSTUDIO_MODEL_ID")
	}
	if c.EmbedModelID == "" {
		c.EmbedModelID = os.Getenv("LMSTUDIO_EMBED_MODEL")
	}
	if c.PollIntervalSec == 0 {
		c.PollIntervalSec = envInt("MODELBRIDGE_POLL_INTERVAL_SEC")
	}
	if c.LoadTTLSec == 0 {
		c.LoadTTLSec = envInt("MODELBRIDGE_LOAD_TTL_SEC")
	}
	if c.StateDir == "" {
		c.StateDir = os.Getenv("MODELBRIDGE_STATE_DIR")
	}
	if c.CatalogPath == "" {
		c.CatalogPath = os.Getenv("MODELBRIDGE_CATALOG")
	}
	if len(c.AccessTokens) == 0 {
		if v := os.Getenv("MODELBRIDGE_ACCESS_TOKENS"); v != "" {
			c.AccessTokens = splitCSV(v)
		}
	}
	if c.LogLevel == "" {
		c.LogLevel = os.Getenv("MODELBRIDGE_LOG_LEVEL")
	}
	return c
}

// WithDefaults fills remaining zero fields with the documented fallbacks and
// expands '~' in configured paths.
func (c Config) WithDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.LMStudioBaseURL == "" {
		c.LMStudioBaseURL = DefaultBaseURL
	}
	if c.ChatModelID == "" {
		c.ChatModelID = DefaultChatModel
	}
	if c.EmbedModelID == "" {
		c.EmbedModelID = DefaultEmbedModel
	}
	if c.PollIntervalSec <= 0 {
		c.PollIntervalSec = DefaultPollSec
	}
	if c.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.StateDir = filepath.Join(home, DefaultStateDirRel)
	} else if p, err := fsutil.ExpandHome(c.StateDir); err == nil {
		c.StateDir = p
	}
	if p, err := fsutil.ExpandHome(c.CatalogPath); err == nil {
		c.CatalogPath = p
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
