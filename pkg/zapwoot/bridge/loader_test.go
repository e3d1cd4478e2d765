package bridge

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseConfig(t *testing.T) {
	t.Run("defaults survive an empty document", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(""))
		if err != nil {
			t.Fatalf("ParseConfig: %v", err)
		}
		if cfg.Server.Address != ":3000" {
			t.Errorf("expected default address :3000, got %q", cfg.Server.Address)
		}
		if cfg.WhatsApp.ReconnectDelay != 5*time.Second {
			t.Errorf("expected default reconnect delay 5s, got %v", cfg.WhatsApp.ReconnectDelay)
		}
		if cfg.Logging.Level != "info" {
			t.Errorf("expected default log level info, got %q", cfg.Logging.Level)
		}
		if !cfg.Stats.Enabled {
			t.Error("expected stats reporter enabled by default")
		}
	})

	t.Run("YAML overrides defaults", func(t *testing.T) {
		yaml := `
server:
  address: ":8080"
chatwoot:
  base_url: "https://desk.example.com"
  account_id: 3
  token: "tok123"
  inbox_id: 9
whatsapp:
  session_dir: "/var/lib/zapwoot/session"
media:
  public_url: "https://bridge.example.com"
logging:
  level: debug
  format: json
`
		cfg, err := ParseConfig([]byte(yaml))
		if err != nil {
			t.Fatalf("ParseConfig: %v", err)
		}
		if cfg.Server.Address != ":8080" {
			t.Errorf("expected :8080, got %q", cfg.Server.Address)
		}
		if cfg.Chatwoot.BaseURL != "https://desk.example.com" {
			t.Errorf("unexpected base_url %q", cfg.Chatwoot.BaseURL)
		}
		if cfg.Chatwoot.AccountID != 3 || cfg.Chatwoot.InboxID != 9 {
			t.Errorf("unexpected account/inbox: %d/%d", cfg.Chatwoot.AccountID, cfg.Chatwoot.InboxID)
		}
		if cfg.WhatsApp.SessionDir != "/var/lib/zapwoot/session" {
			t.Errorf("unexpected session dir %q", cfg.WhatsApp.SessionDir)
		}
		if cfg.Media.PublicURL != "https://bridge.example.com" {
			t.Errorf("unexpected public_url %q", cfg.Media.PublicURL)
		}
		if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
			t.Errorf("unexpected logging config: %+v", cfg.Logging)
		}
		// Untouched sections keep their defaults.
		if cfg.Media.Dir != "./data/media" {
			t.Errorf("expected default media dir, got %q", cfg.Media.Dir)
		}
	})

	t.Run("invalid YAML returns an error", func(t *testing.T) {
		if _, err := ParseConfig([]byte("server: [not: a map")); err == nil {
			t.Fatal("expected a parse error")
		}
	})
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Run("expands environment variables", func(t *testing.T) {
		t.Setenv("TEST_CW_TOKEN", "secret-from-env")

		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		content := `
chatwoot:
  token: "${TEST_CW_TOKEN}"
  base_url: "$TEST_UNSET_VAR"
`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("writing config: %v", err)
		}

		cfg, err := LoadConfigFromFile(path)
		if err != nil {
			t.Fatalf("LoadConfigFromFile: %v", err)
		}
		if cfg.Chatwoot.Token != "secret-from-env" {
			t.Errorf("expected token from env, got %q", cfg.Chatwoot.Token)
		}
		// Unset variables keep the placeholder.
		if cfg.Chatwoot.BaseURL != "$TEST_UNSET_VAR" {
			t.Errorf("expected untouched placeholder, got %q", cfg.Chatwoot.BaseURL)
		}
	})

	t.Run("missing file returns an error", func(t *testing.T) {
		if _, err := LoadConfigFromFile("/nonexistent/config.yaml"); err == nil {
			t.Fatal("expected an error for a missing file")
		}
	})
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("ZW_TEST_VALUE", "hello")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"braced reference", "x ${ZW_TEST_VALUE} y", "x hello y"},
		{"bare reference", "x $ZW_TEST_VALUE y", "x hello y"},
		{"unset keeps placeholder", "${ZW_TEST_MISSING}", "${ZW_TEST_MISSING}"},
		{"no references", "plain text", "plain text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expandEnvVars(tt.input); got != tt.want {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSaveConfigToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := DefaultConfig()
	cfg.Chatwoot.BaseURL = "https://desk.example.com"
	if err := SaveConfigToFile(cfg, path); err != nil {
		t.Fatalf("SaveConfigToFile: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	loaded, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("reloading: %v", err)
	}
	if loaded.Chatwoot.BaseURL != "https://desk.example.com" {
		t.Errorf("round trip lost base_url, got %q", loaded.Chatwoot.BaseURL)
	}
}
