// Package email turns aggregator messages into the flat shape the extraction
// engine consumes: decoded body, resolved timestamp, sender attribution, and
// the newsletter filter used during backfill.
package email

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/foundercrm/commitment-engine/internal/aggregator"
)

// Folder names as they appear on commitment records.
const (
	FolderInbox = "INBOX"
	FolderSent  = "SENT"
)

// ParsedEmail is one message flattened for extraction.
type ParsedEmail struct {
	MessageID     string
	Sender        string // address of whoever the commitment attribution points at
	SenderName    string
	Recipient     string // counterparty address for SENT mail, "" otherwise
	RecipientName string
	Subject       string
	Date          time.Time
	Body          string
	Folder        string
}

// Parse flattens an aggregator message. founderEmail drives SENT
// attribution: mail the founder sent is credited to the founder, with the
// first To recipient as the counterparty.
func Parse(msg *aggregator.Message, folder, founderEmail string) *ParsedEmail {
	p := &ParsedEmail{
		MessageID: msg.ID,
		Subject:   msg.Header("Subject"),
		Date:      messageTime(msg),
		Body:      Body(msg),
		Folder:    folder,
	}

	if folder == FolderSent {
		p.Sender = founderEmail
		p.SenderName = "You"
		to := msg.Header("To")
		if i := strings.Index(to, ","); i >= 0 {
			to = to[:i]
		}
		p.RecipientName, p.Recipient = splitAddress(to)
	} else {
		p.SenderName, p.Sender = splitAddress(msg.Header("From"))
	}
	return p
}

// splitAddress breaks "Name <addr>" into its parts. When the display name is
// absent the address's local part stands in for it.
func splitAddress(raw string) (name, addr string) {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "<"); i >= 0 {
		name = strings.Trim(strings.TrimSpace(raw[:i]), `"`)
		addr = strings.TrimRight(strings.TrimSpace(raw[i+1:]), ">")
	} else {
		addr = raw
	}
	if name == "" {
		if at := strings.Index(addr, "@"); at > 0 {
			name = addr[:at]
		} else {
			name = addr
		}
	}
	return name, addr
}

// messageTime resolves the message timestamp: internalDate (ms epoch), then
// the Date header, then now.
func messageTime(msg *aggregator.Message) time.Time {
	if ms, err := strconv.ParseInt(msg.InternalDate, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	if raw := msg.Header("Date"); raw != "" {
		for _, layout := range []string{time.RFC1123Z, time.RFC1123, "Mon, 2 Jan 2006 15:04:05 -0700", "2 Jan 2006 15:04:05 -0700"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Now().UTC()
}

// Body resolves the message text: pre-decoded text, then the MIME tree, then
// the snippet.
func Body(msg *aggregator.Message) string {
	if msg.MessageText != "" {
		return msg.MessageText
	}
	if msg.Payload != nil {
		if body := partBody(msg.Payload); body != "" {
			return body
		}
	}
	return msg.Snippet
}

// partBody walks a MIME node: text/plain wins, then converted text/html,
// then the first non-empty nested part.
func partBody(part *aggregator.MessagePart) string {
	if part.MimeType == "text/plain" && part.Body != nil {
		if text := DecodeBase64URL(part.Body.Data); text != "" {
			return text
		}
	}
	if part.MimeType == "text/html" && part.Body != nil {
		if html := DecodeBase64URL(part.Body.Data); html != "" {
			return HTMLToText(html)
		}
	}

	// Prefer a plain-text sibling before falling back to HTML or nesting.
	for i := range part.Parts {
		if part.Parts[i].MimeType == "text/plain" {
			if text := partBody(&part.Parts[i]); text != "" {
				return text
			}
		}
	}
	for i := range part.Parts {
		if text := partBody(&part.Parts[i]); text != "" {
			return text
		}
	}
	return ""
}

// DecodeBase64URL decodes Gmail-style base64url content, repairing missing
// padding. Invalid input decodes to "".
func DecodeBase64URL(data string) string {
	if data == "" {
		return ""
	}
	if m := len(data) % 4; m != 0 {
		data += strings.Repeat("=", 4-m)
	}
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Some senders emit standard base64 in the same field.
		decoded, err = base64.StdEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(decoded)
}

// FolderFromLabels maps provider labels to a folder name: SENT wins, then
// INBOX, and unlabeled mail counts as INBOX.
func FolderFromLabels(labels []string) string {
	for _, l := range labels {
		if l == FolderSent {
			return FolderSent
		}
	}
	return FolderInbox
}
