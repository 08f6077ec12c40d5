package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "addr: :9999\nlmstudio_base_url: http://127.0.0.1:5555\npoll_interval_sec: 30\nchat_model_id: m1\n")
	cfg, err := Load(p)
	if err != nil { t.Fatalf("load: %v", err) }
	if cfg.Addr != ":9999" || cfg.LMStudioBaseURL != "http://127.0.0.1:5555" || cfg.PollIntervalSec != 30 || cfg.ChatModelID != "m1" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":7070","embed_model_id":"e1","access_tokens":["tok1","tok2"]}`)
	cfg, err := Load(p)
	if err != nil { t.Fatalf("load: %v", err) }
	if cfg.Addr != ":7070" || cfg.EmbedModelID != "e1" || len(cfg.AccessTokens) != 2 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "addr=\":8081\"\nload_ttl_sec=300\ncors_enabled=true\n")
	cfg, err := Load(p)
	if err != nil { t.Fatalf("load: %v", err) }
	if cfg.Addr != ":8081" || cfg.LoadTTLSec != 300 || !cfg.CORSEnabled {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil { t.Fatalf("expected error on empty path") }
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil { t.Fatalf("expected unsupported extension error") }
}

func TestApplyEnvOverlaysOnlyUnset(t *testing.T) {
	t.Setenv("LMSTUDIO_BASE_URL", "http://127.0.0.1:4444")
	t.Setenv("MODELBRIDGE_POLL_INTERVAL_SEC", "45")
	t.Setenv("MODELBRIDGE_ACCESS_TOKENS", "a, b ,")
	cfg := Config{LMStudioBaseURL: "http://explicit:1"}.ApplyEnv()
	if cfg.LMStudioBaseURL != "http://explicit:1" {
		t.Fatalf("env must not override explicit value: %s", cfg.LMStudioBaseURL)
	}
	if cfg.PollIntervalSec != 45 { t.Fatalf("poll=%d", cfg.PollIntervalSec) }
	if len(cfg.AccessTokens) != 2 || cfg.AccessTokens[0] != "a" || cfg.AccessTokens[1] != "b" {
		t.Fatalf("tokens=%v", cfg.AccessTokens)
	}
}

func TestApplyEnvLegacyModelID(t *testing.T) {
	t.Setenv("LMSTUDIO_MODEL_ID", "legacy-model")
	cfg := Config{}.ApplyEnv()
	if cfg.ChatModelID != "legacy-model" { t.Fatalf("chat=%s", cfg.ChatModelID) }
}

func TestWithDefaultsNeverFails(t *testing.T) {
	cfg := Config{}.WithDefaults()
	if cfg.Addr != DefaultAddr { t.Fatalf("addr=%s", cfg.Addr) }
	if cfg.LMStudioBaseURL != DefaultBaseURL { t.Fatalf("base=%s", cfg.LMStudioBaseURL) }
	if cfg.ChatModelID != DefaultChatModel { t.Fatalf("chat=%s", cfg.ChatModelID) }
	if cfg.EmbedModelID != DefaultEmbedModel { t.Fatalf("embed=%s", cfg.EmbedModelID) }
	if cfg.PollIntervalSec != DefaultPollSec { t.Fatalf("poll=%d", cfg.PollIntervalSec) }
	if cfg.StateDir == "" { t.Fatal("state dir empty") }
}

func TestWithDefaultsExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	cfg := Config{StateDir: "~/bridge-state", CatalogPath: "~/catalog.yaml"}.WithDefaults()
	if cfg.StateDir != filepath.Join(home, "bridge-state") {
		t.Fatalf("state dir not expanded: %s", cfg.StateDir)
	}
	if cfg.CatalogPath != filepath.Join(home, "catalog.yaml") {
		t.Fatalf("catalog path not expanded: %s", cfg.CatalogPath)
	}
}
