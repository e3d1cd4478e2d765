// Package chatwoot – conversations.go implements find-or-create conversation
// resolution keyed by source id, backed by the client's in-process cache.
package chatwoot

import (
	"context"
	"fmt"
)

// Conversation is a Chatwoot conversation as returned by the conversations
// API. Meta.Sender.ID links it back to the contact.
type Conversation struct {
	ID   int `json:"id"`
	Meta struct {
		Sender struct {
			ID int `json:"id"`
		} `json:"sender"`
	} `json:"meta"`
}

// conversationListResponse is the envelope of GET /conversations.
type conversationListResponse struct {
	Data struct {
		Payload []Conversation `json:"payload"`
	} `json:"data"`
}

// conversationCreateResponse is the envelope of POST /conversations.
type conversationCreateResponse struct {
	ID int `json:"id"`
}

// ResolveConversation returns the conversation id for a contact/source pair,
// reusing an existing conversation when possible.
//
// Resolution order: cache hit by source id; otherwise list the inbox's
// conversations and take the first whose sender id matches the contact;
// otherwise create a new conversation with the source id as idempotency key.
// Either remote outcome populates the cache, and a cached pair is never
// invalidated for the life of the process.
//
// Concurrent calls for the same source id are coalesced so only one remote
// lookup/create runs at a time, keeping at most one conversation per source id.
func (c *Client) ResolveConversation(ctx context.Context, contactID int, sourceID string) (int, error) {
	c.cacheMu.Lock()
	id, hit := c.convCache[sourceID]
	c.cacheMu.Unlock()
	if hit {
		return id, nil
	}

	v, err, _ := c.resolving.Do(sourceID, func() (any, error) {
		// A coalesced caller may have populated the cache while this one
		// was waiting on the singleflight lock.
		c.cacheMu.Lock()
		id, hit := c.convCache[sourceID]
		c.cacheMu.Unlock()
		if hit {
			return id, nil
		}

		id, err := c.lookupOrCreateConversation(ctx, contactID, sourceID)
		if err != nil {
			return 0, err
		}

		c.cacheMu.Lock()
		c.convCache[sourceID] = id
		c.cacheMu.Unlock()
		return id, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// lookupOrCreateConversation performs the remote half of resolution.
func (c *Client) lookupOrCreateConversation(ctx context.Context, contactID int, sourceID string) (int, error) {
	var list conversationListResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("inbox_id", fmt.Sprintf("%d", c.cfg.InboxID)).
		SetResult(&list).
		Get(c.accountPath("/conversations"))
	if err != nil {
		return 0, fmt.Errorf("listing conversations: %w", err)
	}
	if !ok(resp) {
		return 0, fmt.Errorf("listing conversations: status %d", resp.StatusCode())
	}

	// Linear scan, first match wins. Multiple conversations for the same
	// contact have no documented tie-break; listing order decides.
	for _, conv := range list.Data.Payload {
		if conv.Meta.Sender.ID == contactID {
			c.logger.Debug("conversation found",
				"source_id", sourceID, "conversation_id", conv.ID)
			return conv.ID, nil
		}
	}

	body := map[string]any{
		"inbox_id":   c.cfg.InboxID,
		"contact_id": contactID,
		"source_id":  sourceID,
	}

	var created conversationCreateResponse
	resp, err = c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&created).
		Post(c.accountPath("/conversations"))
	if err != nil {
		return 0, fmt.Errorf("creating conversation: %w", err)
	}
	if !ok(resp) {
		return 0, fmt.Errorf("creating conversation: status %d, body: %s", resp.StatusCode(), resp.Body())
	}

	c.logger.Info("conversation created",
		"source_id", sourceID,
		"contact_id", contactID,
		"conversation_id", created.ID)

	return created.ID, nil
}

// CachedConversations returns the number of cached source id mappings.
func (c *Client) CachedConversations() int {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	return len(c.convCache)
}
