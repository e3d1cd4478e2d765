// Package chatwoot – contacts.go implements find-or-create contact
// resolution. Stateless: every call goes to the remote API.
package chatwoot

import (
	"context"
	"fmt"
)

// Contact is a Chatwoot contact as returned by the contacts API.
type Contact struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Identifier  string `json:"identifier"`
}

// contactSearchResponse is the envelope of GET /contacts/search.
type contactSearchResponse struct {
	Payload []Contact `json:"payload"`
}

// contactCreateResponse is the envelope of POST /contacts.
type contactCreateResponse struct {
	Payload struct {
		Contact Contact `json:"contact"`
	} `json:"payload"`
}

// ResolveContact finds the contact for a phone number, creating it if no
// search result exists, and returns its id.
//
// The search uses the bare phone number as a free-text query and takes the
// first hit, trusting the API's own ranking. On create, the display name
// defaults to the phone number, the phone_number field gets a "+" prefix and
// the identifier carries the WhatsApp server suffix. At most one contact
// should exist per phone number; search-before-create preserves that, though
// concurrent creates from separate processes can still race.
func (c *Client) ResolveContact(ctx context.Context, phone, name string) (int, error) {
	var search contactSearchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("q", phone).
		SetResult(&search).
		Get(c.accountPath("/contacts/search"))
	if err != nil {
		return 0, fmt.Errorf("searching contact: %w", err)
	}
	if !ok(resp) {
		return 0, fmt.Errorf("searching contact: status %d", resp.StatusCode())
	}

	if len(search.Payload) > 0 {
		c.logger.Debug("contact found", "phone", phone, "contact_id", search.Payload[0].ID)
		return search.Payload[0].ID, nil
	}

	if name == "" {
		name = phone
	}

	body := map[string]any{
		"inbox_id":     c.cfg.InboxID,
		"name":         name,
		"phone_number": "+" + phone,
		"identifier":   phone + "@s.whatsapp.net",
	}

	var created contactCreateResponse
	resp, err = c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&created).
		Post(c.accountPath("/contacts"))
	if err != nil {
		return 0, fmt.Errorf("creating contact: %w", err)
	}
	if !ok(resp) {
		return 0, fmt.Errorf("creating contact: status %d, body: %s", resp.StatusCode(), resp.Body())
	}

	c.logger.Info("contact created",
		"phone", phone,
		"name", name,
		"contact_id", created.Payload.Contact.ID)

	return created.Payload.Contact.ID, nil
}
