// Package bridge – loader.go handles loading configuration from YAML files
// with .env support and environment variable expansion.
package bridge

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} or $VAR_NAME in config values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Z_][A-Z0-9_]*)`)

// LoadConfigFromFile reads and parses a YAML configuration file.
// Automatically loads .env files and expands environment variables.
func LoadConfigFromFile(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the YAML before parsing, so tokens
	// can live in the environment instead of the file.
	expanded := expandEnvVars(string(data))

	return ParseConfig([]byte(expanded))
}

// ParseConfig parses YAML bytes into a Config.
// Starts with defaults and overlays values from the YAML.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// FindConfigFile searches for config files in standard locations.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"zapwoot.yaml",
		"zapwoot.yml",
		"configs/config.yaml",
		"configs/zapwoot.yaml",
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// SaveConfigToFile writes a Config as YAML with restricted permissions,
// since it may carry the Chatwoot token.
func SaveConfigToFile(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// AuditSecrets warns when the Chatwoot token looks hardcoded in the config
// instead of referenced from the environment.
func AuditSecrets(cfg *Config, logger *slog.Logger) {
	token := cfg.Chatwoot.Token
	if token == "" || isEnvReference(token) {
		return
	}
	if len(token) > 12 {
		logger.Warn("Chatwoot token appears to be hardcoded in config. "+
			"Use an environment variable instead.",
			"hint", "set 'token: ${CHATWOOT_TOKEN}' in config.yaml")
	}
}

// ---------- Internal ----------

// loadEnvFiles loads .env files from standard locations.
// godotenv.Load does NOT overwrite existing env vars.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces ${VAR} and $VAR references in a string with their
// environment variable values. Unset variables keep the placeholder.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// isEnvReference checks if a string is an environment variable reference.
func isEnvReference(s string) bool {
	return strings.HasPrefix(s, "${") || strings.HasPrefix(s, "$")
}
