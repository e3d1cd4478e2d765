// Package bridge wires the messaging session, the media store, the helpdesk
// client and the HTTP control surface into one running service.
package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/jholhewres/zapwoot/pkg/zapwoot/chatwoot"
	"github.com/jholhewres/zapwoot/pkg/zapwoot/httpapi"
	"github.com/jholhewres/zapwoot/pkg/zapwoot/media"
	"github.com/jholhewres/zapwoot/pkg/zapwoot/whatsapp"
)

// Bridge owns every component of the service and their lifecycle.
type Bridge struct {
	cfg        *Config
	session    *whatsapp.Session
	helpdesk   *chatwoot.Client
	media      *media.Store
	dispatcher *Dispatcher
	server     *httpapi.Server
	stats      *Stats
	reporter   *cron.Cron
	logger     *slog.Logger
}

// New builds a Bridge from configuration. Nothing connects until Start.
func New(cfg *Config, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}

	session := whatsapp.New(cfg.WhatsApp, logger)
	helpdesk := chatwoot.New(cfg.Chatwoot, logger)

	mediaStore, err := media.New(cfg.Media, session, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing media store: %w", err)
	}

	stats := &Stats{}
	dispatcher := NewDispatcher(helpdesk, mediaStore, stats, logger)
	server := httpapi.New(cfg.Server, session, stats.Snapshot, mediaStore.Dir(), logger)

	return &Bridge{
		cfg:        cfg,
		session:    session,
		helpdesk:   helpdesk,
		media:      mediaStore,
		dispatcher: dispatcher,
		server:     server,
		stats:      stats,
		logger:     logger.With("component", "bridge"),
	}, nil
}

// Start launches the HTTP API, connects the messaging session and begins
// forwarding events. Returns once everything is running.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.server.Start(ctx); err != nil {
		return fmt.Errorf("starting HTTP API: %w", err)
	}

	if err := b.session.Connect(ctx); err != nil {
		b.server.Stop()
		return fmt.Errorf("connecting messaging session: %w", err)
	}

	go b.dispatcher.Run(ctx, b.session.Events())

	if b.cfg.Stats.Enabled {
		b.reporter = startStatsReporter(b.cfg.Stats, b.stats, b.session.Status, b.logger)
	}

	b.logger.Info("bridge started",
		"http_address", b.cfg.Server.Address,
		"chatwoot_url", b.cfg.Chatwoot.BaseURL,
		"inbox_id", b.cfg.Chatwoot.InboxID)
	return nil
}

// Stop shuts down all components in reverse order of startup.
func (b *Bridge) Stop() {
	if b.reporter != nil {
		b.reporter.Stop()
	}
	b.session.Disconnect()
	b.server.Stop()
	b.logger.Info("bridge stopped")
}
