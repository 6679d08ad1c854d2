// Package aggregator is the REST client for the mail aggregator that fronts
// the users' Gmail accounts: connected-account lookup, trigger provisioning,
// and message search/fetch.
package aggregator

import "strings"

// Connection is one connected mailbox account as the aggregator reports it.
type Connection struct {
	ID      string `json:"id"`
	NanoID  string `json:"nano_id,omitempty"`
	UserID  string `json:"user_id"`
	Toolkit string `json:"toolkit"`
	Status  string `json:"status"`
}

// StatusActive is the aggregator's status for a usable connection.
const StatusActive = "ACTIVE"

// TriggerInstance is one provisioned trigger. The aggregator is inconsistent
// about which field carries the instance id, so callers go through
// InstanceID.
type TriggerInstance struct {
	ID                 string         `json:"id,omitempty"`
	TriggerID          string         `json:"trigger_id,omitempty"`
	TriggerName        string         `json:"trigger_name"`
	ConnectedAccountID string         `json:"connected_account_id"`
	Disabled           bool           `json:"disabled,omitempty"`
	Config             map[string]any `json:"trigger_config,omitempty"`
}

// InstanceID returns the instance's id, falling back to trigger_id when the
// aggregator left id empty.
func (t TriggerInstance) InstanceID() string {
	if t.ID != "" {
		return t.ID
	}
	return t.TriggerID
}

// Header is one RFC 5322 header as the aggregator relays it.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MessagePart is one node of a MIME tree.
type MessagePart struct {
	MimeType string        `json:"mimeType"`
	Headers  []Header      `json:"headers,omitempty"`
	Body     *PartBody     `json:"body,omitempty"`
	Parts    []MessagePart `json:"parts,omitempty"`
}

// PartBody carries base64url-encoded part content.
type PartBody struct {
	Size int    `json:"size"`
	Data string `json:"data,omitempty"`
}

// Message is a mail message in the aggregator's Gmail-shaped format.
type Message struct {
	ID           string       `json:"id"`
	ThreadID     string       `json:"threadId,omitempty"`
	LabelIDs     []string     `json:"labelIds,omitempty"`
	Snippet      string       `json:"snippet,omitempty"`
	InternalDate string       `json:"internalDate,omitempty"` // ms since epoch
	Payload      *MessagePart `json:"payload,omitempty"`
	MessageText  string       `json:"messageText,omitempty"` // pre-decoded body, when present
}

// Header returns the first header with the given name, case-insensitively.
func (m *Message) Header(name string) string {
	if m.Payload == nil {
		return ""
	}
	return headerValue(m.Payload.Headers, name)
}

func headerValue(headers []Header, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// SearchResult is one page of a message search.
type SearchResult struct {
	Messages      []Message `json:"messages"`
	NextPageToken string    `json:"nextPageToken,omitempty"`
}
