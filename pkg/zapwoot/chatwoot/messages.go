// Package chatwoot – messages.go submits bridged messages to a conversation.
package chatwoot

import (
	"context"
	"fmt"
)

// Attachment describes one media attachment on a bridged message. The file
// is not uploaded; Chatwoot fetches it from the external URL served by the
// bridge's media directory.
type Attachment struct {
	FileType    string `json:"file_type"`
	ExternalURL string `json:"external_url"`
}

// CreateMessage posts a message into a conversation. Messages from the
// WhatsApp account owner are marked outgoing, everything else incoming.
// Delivery is best effort: the caller logs failures and moves on, there is
// no retry queue.
func (c *Client) CreateMessage(ctx context.Context, conversationID int, content string, attachments []Attachment, fromMe bool) error {
	messageType := "incoming"
	if fromMe {
		messageType = "outgoing"
	}
	if attachments == nil {
		attachments = []Attachment{}
	}

	body := map[string]any{
		"content":      content,
		"message_type": messageType,
		"private":      false,
		"attachments":  attachments,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(c.accountPath(fmt.Sprintf("/conversations/%d/messages", conversationID)))
	if err != nil {
		return fmt.Errorf("creating message: %w", err)
	}
	if !ok(resp) {
		return fmt.Errorf("creating message: status %d, body: %s", resp.StatusCode(), resp.Body())
	}

	return nil
}
