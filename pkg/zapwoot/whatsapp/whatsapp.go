// Package whatsapp wraps the whatsmeow WhatsApp Web client into the session
// the bridge consumes: a stream of inbound message events on a channel, an
// explicit connection state machine, QR pairing state for the control
// surface, and an outbound text-send capability.
//
// Session credentials are persisted by whatsmeow itself in a SQLite store;
// on restart an existing device is reused and no QR scan is needed.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for the session store.
)

// Config holds WhatsApp session configuration.
type Config struct {
	// SessionDir is the directory for session persistence (SQLite).
	// Ignored if DatabasePath is set.
	SessionDir string `yaml:"session_dir"`

	// DatabasePath overrides the session database file location.
	// If empty, defaults to {SessionDir}/whatsapp.db.
	DatabasePath string `yaml:"database_path"`

	// ReconnectDelay is the fixed wait before a reconnect attempt after a
	// non-logout disconnect. Retries are unbounded.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`

	// EventBuffer is the inbound event channel capacity.
	EventBuffer int `yaml:"event_buffer"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SessionDir:     "./data/session",
		ReconnectDelay: 5 * time.Second,
		EventBuffer:    256,
	}
}

// Session is a single logical WhatsApp session.
type Session struct {
	cfg    Config
	client *whatsmeow.Client
	logger *slog.Logger

	// events carries inbound message events to the dispatcher.
	events chan Event

	state     atomic.Value // State
	connected atomic.Bool
	lastQR    atomic.Value // string

	// connect is the reconnect target; swapped out in tests.
	connect func() error

	// reconnectGuard prevents concurrent reconnect loops.
	reconnectGuard atomic.Bool
	eventsClosed   atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Session. Connect must be called before use.
func New(cfg Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.EventBuffer == 0 {
		cfg.EventBuffer = 256
	}

	s := &Session{
		cfg:    cfg,
		logger: logger.With("component", "whatsapp"),
		events: make(chan Event, cfg.EventBuffer),
	}
	s.setState(StateDisconnected)
	s.lastQR.Store("")
	return s
}

// Connect initializes the session store and opens the WhatsApp Web
// connection. When no device is linked yet, the QR pairing flow runs in the
// background and the current code is exposed via PairingCode.
func (s *Session) Connect(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.setState(StateConnecting)
	s.logger.Info("whatsapp: initializing connection")

	dbPath, err := s.ensureStorePath()
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("preparing session dir: %w", err)
	}
	container, err := sqlstore.New(s.ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", dbPath),
		waLog.Noop)
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("creating session store: %w", err)
	}

	device, err := s.getDevice(s.ctx, container)
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("getting device: %w", err)
	}

	// Device name shown in the WhatsApp linked devices list.
	store.SetOSInfo("Zapwoot", [3]uint32{1, 0, 0})

	s.client = whatsmeow.NewClient(device, waLog.Noop)
	s.client.AddEventHandler(s.handleEvent)
	s.connect = s.client.Connect

	// Reconnection follows the bridge's own state machine: fixed delay,
	// unbounded retries, terminal on logout.
	s.client.EnableAutoReconnect = false

	if s.client.Store.ID == nil {
		// First login, QR scan required.
		s.logger.Info("whatsapp: no existing session, QR code available at /qr")
		go func() {
			if err := s.loginWithQR(s.ctx); err != nil {
				s.logger.Warn("whatsapp: QR login pending", "error", err)
			}
		}()
		return nil
	}

	if err := s.client.Connect(); err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("connecting: %w", err)
	}

	s.logger.Info("whatsapp: connecting with existing session", "jid", s.clientJID())
	return nil
}

// Disconnect closes the connection and the event channel.
func (s *Session) Disconnect() {
	s.setState(StateDisconnected)
	s.connected.Store(false)

	if s.cancel != nil {
		s.cancel()
	}
	if s.client != nil {
		s.client.Disconnect()
	}
	if s.eventsClosed.CompareAndSwap(false, true) {
		close(s.events)
	}
	s.logger.Info("whatsapp: disconnected")
}

// Events returns the inbound message event channel.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Status returns the connection state as a string for the control surface.
func (s *Session) Status() string {
	return string(s.getState())
}

// IsConnected reports whether the session is currently connected.
func (s *Session) IsConnected() bool {
	return s.connected.Load()
}

// HasSession reports whether a protocol client exists (linked or pairing).
func (s *Session) HasSession() bool {
	return s.client != nil
}

// PairingCode returns the current QR pairing code, or "" when none is
// pending (already paired, or code expired).
func (s *Session) PairingCode() string {
	code, _ := s.lastQR.Load().(string)
	return code
}

// SendText sends a plain text message to a bare phone number or full JID.
func (s *Session) SendText(ctx context.Context, phone, text string) error {
	if s.client == nil || !s.connected.Load() {
		return fmt.Errorf("whatsapp not connected")
	}

	jid, err := parseJID(phone)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", phone, err)
	}

	msg := &waE2E.Message{Conversation: proto.String(text)}
	if _, err := s.client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// DownloadAny retrieves and decrypts the binary body of a media message.
// Satisfies media.Downloader.
func (s *Session) DownloadAny(ctx context.Context, msg *waE2E.Message) ([]byte, error) {
	if s.client == nil {
		return nil, fmt.Errorf("whatsapp client not initialized")
	}
	return s.client.DownloadAny(ctx, msg)
}

// ---------- Internal ----------

func (s *Session) getState() State {
	if v := s.state.Load(); v != nil {
		return v.(State)
	}
	return StateDisconnected
}

func (s *Session) setState(state State) {
	s.state.Store(state)
}

func (s *Session) clientJID() string {
	if s.client != nil && s.client.Store.ID != nil {
		return s.client.Store.ID.String()
	}
	return ""
}

// ensureStorePath resolves the session database path and creates its parent
// directory. SQLite does not create missing directories itself, so a fresh
// deployment would otherwise fail to open the store.
func (s *Session) ensureStorePath() (string, error) {
	dbPath := s.cfg.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(s.cfg.SessionDir, "whatsapp.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return "", err
	}
	return dbPath, nil
}

// getDevice retrieves an existing device or creates a new one.
func (s *Session) getDevice(ctx context.Context, container *sqlstore.Container) (*store.Device, error) {
	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return container.NewDevice(), nil
}

// loginWithQR runs the QR pairing flow, publishing each code for the control
// surface to render.
func (s *Session) loginWithQR(ctx context.Context) error {
	qrChan, err := s.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("getting QR channel: %w", err)
	}
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("connecting for QR: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			s.setState(StateDisconnected)
			return ctx.Err()
		case evt, okChan := <-qrChan:
			if !okChan {
				return fmt.Errorf("QR channel closed unexpectedly")
			}
			switch evt.Event {
			case "code":
				s.lastQR.Store(evt.Code)
				s.logger.Info("whatsapp: QR code ready, scan via /qr")
			case "success":
				s.lastQR.Store("")
				s.logger.Info("whatsapp: device paired")
				return nil
			case "timeout":
				s.lastQR.Store("")
				s.setState(StateDisconnected)
				s.logger.Warn("whatsapp: QR code expired")
				return fmt.Errorf("QR code timeout")
			default:
				if evt.Error != nil {
					s.lastQR.Store("")
					s.setState(StateDisconnected)
					return fmt.Errorf("QR login: %w", evt.Error)
				}
			}
		}
	}
}

// scheduleReconnect runs the fixed-delay reconnect loop. The state is set to
// disconnected before the delay starts; retries continue until the connect
// call succeeds or the session context is cancelled. Logout never reaches
// here — it moves the session to a terminal state instead.
func (s *Session) scheduleReconnect() {
	if !s.reconnectGuard.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer s.reconnectGuard.Store(false)

		for attempt := 1; ; attempt++ {
			select {
			case <-time.After(s.cfg.ReconnectDelay):
			case <-s.ctx.Done():
				return
			}

			if s.getState() == StateLoggedOut {
				return
			}

			s.logger.Info("whatsapp: attempting reconnect",
				"attempt", attempt,
				"delay", s.cfg.ReconnectDelay)

			if err := s.connect(); err != nil {
				s.logger.Warn("whatsapp: reconnect failed, will retry",
					"attempt", attempt, "error", err)
				continue
			}
			return
		}
	}()
}

// parseJID converts "5511999999999" or "5511999999999@s.whatsapp.net" to a
// types.JID.
func parseJID(raw string) (types.JID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return types.JID{}, fmt.Errorf("empty JID")
	}

	if strings.Contains(raw, "@") {
		return types.ParseJID(raw)
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if len(digits) < 8 {
		return types.JID{}, fmt.Errorf("phone number too short: %s", raw)
	}

	return types.NewJID(digits, types.DefaultUserServer), nil
}
