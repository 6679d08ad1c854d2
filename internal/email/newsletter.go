package email

import (
	"regexp"
	"strings"

	"github.com/foundercrm/commitment-engine/internal/aggregator"
)

// Automated senders that never carry commitments.
var newsletterSender = regexp.MustCompile(`(?i)(no-?reply@|noreply@|newsletter@|news@|do-not-reply@|bounce@)`)

// Subjects of transactional and bulk mail worth skipping during backfill.
var newsletterSubjects = []string{
	"receipt",
	"order confirmation",
	"unsubscribe",
	"invoice",
	"your receipt",
}

// IsNewsletter reports whether a message looks like bulk or transactional
// mail. Applied to INBOX backfill only; live ingest and SENT mail always go
// through extraction (the model rejects automated mail itself).
func IsNewsletter(msg *aggregator.Message, sender, subject string) bool {
	if newsletterSender.MatchString(sender) {
		return true
	}

	lowered := strings.ToLower(subject)
	for _, kw := range newsletterSubjects {
		if strings.Contains(lowered, kw) {
			return true
		}
	}

	if msg.Header("List-Unsubscribe") != "" {
		return true
	}
	switch strings.ToLower(msg.Header("Precedence")) {
	case "bulk", "list", "junk":
		return true
	}
	if auto := msg.Header("Auto-Submitted"); auto != "" && !strings.EqualFold(auto, "no") {
		return true
	}
	return false
}
