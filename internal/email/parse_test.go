package email

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundercrm/commitment-engine/internal/aggregator"
)

func b64(s string) string {
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(s))
}

func msgWithHeaders(headers map[string]string) *aggregator.Message {
	payload := &aggregator.MessagePart{}
	for name, value := range headers {
		payload.Headers = append(payload.Headers, aggregator.Header{Name: name, Value: value})
	}
	return &aggregator.Message{ID: "m1", Payload: payload}
}

func TestDecodeBase64URL(t *testing.T) {
	assert.Equal(t, "hello world", DecodeBase64URL(b64("hello world")))
	// Unpadded input is the norm for Gmail payloads.
	assert.Equal(t, "hi", DecodeBase64URL("aGk"))
	assert.Equal(t, "", DecodeBase64URL(""))
	assert.Equal(t, "", DecodeBase64URL("!!not base64!!"))
}

func TestBodyPrefersPlainText(t *testing.T) {
	msg := &aggregator.Message{
		Snippet: "snippet fallback",
		Payload: &aggregator.MessagePart{
			MimeType: "multipart/alternative",
			Parts: []aggregator.MessagePart{
				{MimeType: "text/html", Body: &aggregator.PartBody{Data: b64("<p>html body</p>")}},
				{MimeType: "text/plain", Body: &aggregator.PartBody{Data: b64("plain body")}},
			},
		},
	}
	assert.Equal(t, "plain body", Body(msg))
}

func TestBodyHTMLFallback(t *testing.T) {
	msg := &aggregator.Message{
		Payload: &aggregator.MessagePart{
			MimeType: "text/html",
			Body:     &aggregator.PartBody{Data: b64("<div>Can you send<br>the deck?</div><script>x()</script>")},
		},
	}
	body := Body(msg)
	assert.Contains(t, body, "Can you send")
	assert.Contains(t, body, "the deck?")
	assert.NotContains(t, body, "x()")
}

func TestBodyNestedParts(t *testing.T) {
	msg := &aggregator.Message{
		Payload: &aggregator.MessagePart{
			MimeType: "multipart/mixed",
			Parts: []aggregator.MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []aggregator.MessagePart{
						{MimeType: "text/plain", Body: &aggregator.PartBody{Data: b64("nested text")}},
					},
				},
			},
		},
	}
	assert.Equal(t, "nested text", Body(msg))
}

func TestBodySnippetFallback(t *testing.T) {
	msg := &aggregator.Message{Snippet: "just the snippet"}
	assert.Equal(t, "just the snippet", Body(msg))
}

func TestBodyPreDecodedText(t *testing.T) {
	msg := &aggregator.Message{MessageText: "already decoded", Snippet: "snippet"}
	assert.Equal(t, "already decoded", Body(msg))
}

func TestParseInboxAttribution(t *testing.T) {
	msg := msgWithHeaders(map[string]string{
		"From":    `"Jane Doe" <jane@acme.com>`,
		"Subject": "Deck request",
	})
	msg.InternalDate = "1772076600000" // 2026-02-26T03:30:00Z

	p := Parse(msg, FolderInbox, "founder@startup.io")
	assert.Equal(t, "jane@acme.com", p.Sender)
	assert.Equal(t, "Jane Doe", p.SenderName)
	assert.Equal(t, "Deck request", p.Subject)
	assert.Equal(t, FolderInbox, p.Folder)
	assert.Equal(t, time.UnixMilli(1772076600000).UTC(), p.Date)
}

func TestParseInboxNameFallbackToLocalPart(t *testing.T) {
	msg := msgWithHeaders(map[string]string{"From": "jane.doe@acme.com"})

	p := Parse(msg, FolderInbox, "founder@startup.io")
	assert.Equal(t, "jane.doe@acme.com", p.Sender)
	assert.Equal(t, "jane.doe", p.SenderName)
}

func TestParseSentAttribution(t *testing.T) {
	msg := msgWithHeaders(map[string]string{
		"From": "founder@startup.io",
		"To":   `"Bob Lee" <bob@vc.com>, carol@vc.com`,
	})

	p := Parse(msg, FolderSent, "founder@startup.io")
	assert.Equal(t, "founder@startup.io", p.Sender)
	assert.Equal(t, "You", p.SenderName)
	assert.Equal(t, "bob@vc.com", p.Recipient)
	assert.Equal(t, "Bob Lee", p.RecipientName)
}

func TestParseSentRecipientLocalPartFallback(t *testing.T) {
	msg := msgWithHeaders(map[string]string{"To": "bob@vc.com"})

	p := Parse(msg, FolderSent, "founder@startup.io")
	assert.Equal(t, "bob@vc.com", p.Recipient)
	assert.Equal(t, "bob", p.RecipientName)
}

func TestParseDateHeaderFallback(t *testing.T) {
	msg := msgWithHeaders(map[string]string{"Date": "Thu, 26 Feb 2026 10:30:00 -0500"})

	p := Parse(msg, FolderInbox, "")
	require.False(t, p.Date.IsZero())
	assert.Equal(t, time.Date(2026, 2, 26, 15, 30, 0, 0, time.UTC), p.Date)
}

func TestFolderFromLabels(t *testing.T) {
	assert.Equal(t, FolderSent, FolderFromLabels([]string{"IMPORTANT", "SENT"}))
	assert.Equal(t, FolderInbox, FolderFromLabels([]string{"INBOX", "CATEGORY_PRIMARY"}))
	assert.Equal(t, FolderInbox, FolderFromLabels(nil))
}

func TestIsNewsletter(t *testing.T) {
	plain := msgWithHeaders(map[string]string{})

	cases := []struct {
		name    string
		msg     *aggregator.Message
		sender  string
		subject string
		want    bool
	}{
		{"plain personal mail", plain, "jane@acme.com", "Deck request", false},
		{"noreply sender", plain, "noreply@stripe.com", "Payment update", true},
		{"no-reply sender", plain, "no-reply@github.com", "CI passed", true},
		{"newsletter sender", plain, "newsletter@substack.com", "Weekly digest", true},
		{"bounce sender", plain, "bounce@mailer.io", "Delivery status", true},
		{"receipt subject", plain, "billing@vendor.com", "Your receipt from Vendor", true},
		{"invoice subject", plain, "ap@vendor.com", "Invoice #1234", true},
		{"list-unsubscribe header", msgWithHeaders(map[string]string{"List-Unsubscribe": "<mailto:x@y>"}), "jane@acme.com", "Hello", true},
		{"precedence bulk", msgWithHeaders(map[string]string{"Precedence": "bulk"}), "jane@acme.com", "Hello", true},
		{"auto-submitted", msgWithHeaders(map[string]string{"Auto-Submitted": "auto-generated"}), "jane@acme.com", "Hello", true},
		{"auto-submitted no", msgWithHeaders(map[string]string{"Auto-Submitted": "no"}), "jane@acme.com", "Hello", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsNewsletter(tc.msg, tc.sender, tc.subject))
		})
	}
}
