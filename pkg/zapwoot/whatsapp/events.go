// Package whatsapp – events.go maps whatsmeow events onto the session's
// connection state machine and inbound event stream.
package whatsapp

import (
	"time"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// State is the session connection state.
//
// Transitions: connecting → connected; connected → disconnected on any
// non-logout close (a reconnect is then pending); any state → logged_out on
// an explicit logout, which is terminal and never auto-reconnects.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateLoggedOut    State = "logged_out"
)

// Event is one inbound message instance, consumed exactly once by the
// dispatcher. Chat is the raw remote JID; group and broadcast filtering
// happens downstream.
type Event struct {
	ID        string
	Chat      types.JID
	Sender    types.JID
	PushName  string
	FromMe    bool
	Timestamp time.Time
	Message   *waE2E.Message
}

// handleEvent is the whatsmeow event dispatcher.
func (s *Session) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		s.handleMessage(evt)

	case *events.Connected:
		s.handleConnected()

	case *events.Disconnected:
		s.handleDisconnected("connection_lost")

	case *events.StreamReplaced:
		s.handleDisconnected("stream_replaced")

	case *events.ConnectFailure:
		s.handleConnectFailure(evt)

	case *events.LoggedOut:
		s.handleLoggedOut(evt)

	case *events.PairSuccess:
		s.logger.Info("whatsapp: device paired",
			"jid", evt.ID, "platform", evt.Platform)

	case *events.QRScannedWithoutMultidevice:
		s.logger.Warn("whatsapp: QR scanned but multidevice not enabled")
	}
}

func (s *Session) handleConnected() {
	s.setState(StateConnected)
	s.connected.Store(true)
	s.lastQR.Store("")
	s.logger.Info("whatsapp: connected", "jid", s.clientJID())
}

// handleDisconnected marks the session disconnected and schedules a single
// reconnect loop. The state change happens before the reconnect delay starts.
func (s *Session) handleDisconnected(reason string) {
	s.setState(StateDisconnected)
	s.connected.Store(false)
	s.logger.Warn("whatsapp: connection closed", "reason", reason)

	if s.ctx != nil && s.ctx.Err() == nil {
		s.scheduleReconnect()
	}
}

func (s *Session) handleConnectFailure(evt *events.ConnectFailure) {
	s.setState(StateDisconnected)
	s.connected.Store(false)

	permanent := evt.PermanentDisconnectDescription()
	s.logger.Error("whatsapp: connect failure",
		"reason", evt.Reason.String(),
		"message", evt.Message,
		"permanent", permanent)

	if permanent == "" && s.ctx != nil && s.ctx.Err() == nil {
		s.scheduleReconnect()
	}
}

// handleLoggedOut is the terminal transition: the session was invalidated
// remotely, so reconnecting would loop forever against a rejecting server.
// A fresh QR pairing (process restart) is required.
func (s *Session) handleLoggedOut(evt *events.LoggedOut) {
	s.setState(StateLoggedOut)
	s.connected.Store(false)
	s.lastQR.Store("")

	s.logger.Error("whatsapp: logged out, session invalidated",
		"reason", evt.Reason.String(),
		"on_connect", evt.OnConnect)
}

// handleMessage converts a whatsmeow message event and emits it on the
// inbound channel. Self-sent messages are passed through; the dispatcher
// forwards them as outgoing.
func (s *Session) handleMessage(evt *events.Message) {
	e := Event{
		ID:        string(evt.Info.ID),
		Chat:      evt.Info.Chat,
		Sender:    evt.Info.Sender,
		PushName:  evt.Info.PushName,
		FromMe:    evt.Info.IsFromMe,
		Timestamp: evt.Info.Timestamp,
		Message:   evt.Message,
	}

	if s.eventsClosed.Load() {
		return
	}
	select {
	case s.events <- e:
	default:
		s.logger.Warn("whatsapp: event channel full, dropping message",
			"id", e.ID, "chat", e.Chat.String())
	}
}
