// Package bridge – dispatcher.go drives the per-event forwarding pipeline:
// filter, resolve contact and conversation, persist media, forward.
package bridge

import (
	"context"
	"log/slog"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"

	"github.com/jholhewres/zapwoot/pkg/zapwoot/chatwoot"
	"github.com/jholhewres/zapwoot/pkg/zapwoot/media"
	"github.com/jholhewres/zapwoot/pkg/zapwoot/whatsapp"
)

// Fallback labels for media without a usable caption, matching what agents
// see in the inbox.
const (
	labelImage    = "📷 Imagen"
	labelVideo    = "🎥 Video"
	labelAudio    = "🎵 Audio"
	labelDocument = "📎 Documento"
)

// Helpdesk is the remote side of the pipeline. *chatwoot.Client satisfies it.
type Helpdesk interface {
	ResolveContact(ctx context.Context, phone, name string) (int, error)
	ResolveConversation(ctx context.Context, contactID int, sourceID string) (int, error)
	CreateMessage(ctx context.Context, conversationID int, content string, attachments []chatwoot.Attachment, fromMe bool) error
}

// MediaStore persists message media. *media.Store satisfies it.
type MediaStore interface {
	Persist(ctx context.Context, messageID string, msg *waE2E.Message) (*media.Asset, error)
}

// Dispatcher consumes inbound WhatsApp events and mirrors them into the
// helpdesk. Events are processed sequentially in delivery order, so per-peer
// message ordering is preserved. Every failure aborts only the current event.
type Dispatcher struct {
	helpdesk Helpdesk
	media    MediaStore
	stats    *Stats
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(helpdesk Helpdesk, mediaStore MediaStore, stats *Stats, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &Dispatcher{
		helpdesk: helpdesk,
		media:    mediaStore,
		stats:    stats,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Run consumes the event channel until it closes or the context is done.
func (d *Dispatcher) Run(ctx context.Context, events <-chan whatsapp.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, open := <-events:
			if !open {
				return
			}
			d.Handle(ctx, evt)
		}
	}
}

// Handle processes one inbound event end to end.
//
// Group chats are not bridged. Self-sent messages are: they show up as
// outgoing in the conversation, keeping the agent's view complete.
func (d *Dispatcher) Handle(ctx context.Context, evt whatsapp.Event) {
	if evt.Chat.Server == types.GroupServer {
		return
	}

	phone := evt.Chat.User
	name := evt.PushName
	if name == "" {
		name = phone
	}

	d.logger.Info("message received", "from", name, "phone", phone, "from_me", evt.FromMe)

	contactID, err := d.helpdesk.ResolveContact(ctx, phone, name)
	if err != nil {
		d.logger.Warn("contact resolution failed, dropping event",
			"phone", phone, "error", err)
		d.stats.dropped.Add(1)
		return
	}

	conversationID, err := d.helpdesk.ResolveConversation(ctx, contactID, evt.Chat.String())
	if err != nil {
		d.logger.Warn("conversation resolution failed, dropping event",
			"phone", phone, "error", err)
		d.stats.dropped.Add(1)
		return
	}

	content := extractText(evt.Message)

	var attachments []chatwoot.Attachment
	if _, _, _, hasMedia := media.Classify(evt.Message); hasMedia {
		asset, err := d.media.Persist(ctx, evt.ID, evt.Message)
		if err != nil {
			// Treated as "no media attached"; the event continues with
			// whatever text it has.
			d.logger.Warn("media persistence failed, forwarding text only",
				"id", evt.ID, "error", err)
		} else {
			content = mediaContent(evt.Message)
			attachments = append(attachments, chatwoot.Attachment{
				FileType:    attachmentType(evt.Message),
				ExternalURL: asset.URL,
			})
			d.stats.mediaSaved.Add(1)
		}
	}

	if content == "" && len(attachments) == 0 {
		return
	}

	if err := d.helpdesk.CreateMessage(ctx, conversationID, content, attachments, evt.FromMe); err != nil {
		// Best effort: a failed forward is a silent drop.
		d.logger.Warn("forward to helpdesk failed",
			"conversation_id", conversationID, "error", err)
		d.stats.dropped.Add(1)
		return
	}

	d.stats.forwarded.Add(1)
	d.logger.Debug("message forwarded",
		"conversation_id", conversationID, "attachments", len(attachments))
}

// extractText pulls the plain text out of a message: simple conversation
// first, extended text second, empty otherwise.
func extractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if msg.Conversation != nil {
		return msg.GetConversation()
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

// mediaContent is the forwarded text for a media message: the caption for
// images and videos, a fixed label for audio, the filename for documents.
func mediaContent(msg *waE2E.Message) string {
	switch {
	case msg.GetImageMessage() != nil:
		if c := msg.GetImageMessage().GetCaption(); c != "" {
			return c
		}
		return labelImage
	case msg.GetVideoMessage() != nil:
		if c := msg.GetVideoMessage().GetCaption(); c != "" {
			return c
		}
		return labelVideo
	case msg.GetAudioMessage() != nil:
		return labelAudio
	case msg.GetDocumentMessage() != nil:
		if name := msg.GetDocumentMessage().GetFileName(); name != "" {
			return "📎 " + name
		}
		return labelDocument
	}
	return ""
}

// attachmentType maps a media message to Chatwoot's attachment file_type.
func attachmentType(msg *waE2E.Message) string {
	switch {
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	default:
		return "file"
	}
}
