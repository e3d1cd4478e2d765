// Package bridge – config.go defines the full bridge configuration tree.
package bridge

import (
	"github.com/jholhewres/zapwoot/pkg/zapwoot/chatwoot"
	"github.com/jholhewres/zapwoot/pkg/zapwoot/httpapi"
	"github.com/jholhewres/zapwoot/pkg/zapwoot/media"
	"github.com/jholhewres/zapwoot/pkg/zapwoot/whatsapp"
)

// Config holds all bridge configuration.
type Config struct {
	// Server configures the HTTP control surface.
	Server httpapi.Config `yaml:"server"`

	// WhatsApp configures the protocol session.
	WhatsApp whatsapp.Config `yaml:"whatsapp"`

	// Chatwoot configures the helpdesk API client.
	Chatwoot chatwoot.Config `yaml:"chatwoot"`

	// Media configures attachment storage and public locators.
	Media media.Config `yaml:"media"`

	// Stats configures the periodic stats reporter.
	Stats StatsConfig `yaml:"stats"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the log format ("json", "text").
	Format string `yaml:"format"`
}

// DefaultConfig returns the default bridge configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:   httpapi.DefaultConfig(),
		WhatsApp: whatsapp.DefaultConfig(),
		Chatwoot: chatwoot.DefaultConfig(),
		Media:    media.DefaultConfig(),
		Stats:    DefaultStatsConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
