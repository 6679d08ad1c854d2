package extraction

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/osteele/liquid"

	"github.com/foundercrm/commitment-engine/internal/email"
)

// maxBodyChars caps how much of the email body reaches the model.
const maxBodyChars = 4000

const systemPrompt = `You are an expert at extracting actionable commitments from founder emails.

Your job is to:
1. Identify if the email contains a commitment (something someone needs to do)
2. Extract the EXACT deadline mentioned in the email
3. Determine WHO must complete the action (assigned_to_me flag)
4. Classify the sender based on their email domain
5. Return ONLY valid JSON

CRITICAL: Pay close attention to time expressions for deadlines!`

const userPromptTemplate = `Extract commitments from this email using CAREFUL REASONING.

Sender: {{ sender }}
Sender Name: {{ sender_name }}
Subject: {{ subject }}
Body:
{{ body }}

Email Date: {{ email_date }}
Current Date: {{ current_date }}
Email Folder: {{ folder }}

RECIPIENT INFO (for SENT emails):
Recipient Email: {{ recipient_email }}
Recipient Name: {{ recipient_name }}

FOUNDER CONTEXT (for sender classification):
Founder Email: {{ founder_email }}
Founder Name: {{ founder_name }}
Company Domain: {{ company_domain }}

Return EXACTLY this JSON structure:

{
  "has_commitment": true or false,
  "reasoning": "Step-by-step explanation of your decision",
  "email_metadata": {
    "sender": "{{ sender }}",
    "sender_name": "{{ sender_name }}",
    "subject": "{{ subject }}",
    "date": "{{ email_date }}"
  },
  "direction": "incoming" or "outgoing",
  "commitments": [
    {
      "what": "description of what needs to be done",
      "to_whom": "person's name or 'You'",
      "assigned_to_me": true or false,
      "deadline_raw": "the EXACT time/date phrase from the email or null",
      "priority": "high" or "medium" or "low",
      "confidence": 0.0 to 1.0,
      "commitment_type": "deliverable" or "meeting" or "call" or other type,
      "estimated_hours": NUMBER (REQUIRED - must be a number, never null)
    }
  ],
  "classification": {
    "sender_role": "investor" or "customer" or "team" or "partner" or "vendor" or "other" or "unknown",
    "confidence": 0.0 to 1.0,
    "reasoning": {
      "domain_match": true or false,
      "domain": "actual sender domain, e.g. acme.com - never a placeholder",
      "signature_match": true or false,
      "subject_hint": true or false,
      "body_hint": true or false,
      "fallback_used": true or false
    }
  },
  "summary": "brief summary"
}

STEP 1: IS THIS A REAL COMMITMENT?

Automated emails are NOT commitments. Before extracting, ask yourself:
1. Is this from an automated system (noreply@, notifications@, CI/CD)?
2. Is there a specific human request?
3. Is it actionable with clear ownership?

REJECT: noreply@/no-reply@/donotreply@ senders, deployment and build
notifications, newsletters, marketing, order confirmations, password
resets, generic announcements.
ACCEPT: a real person requesting a specific action, or the founder
promising one.

A REAL commitment requires:
1. A SPECIFIC person asking the founder to do something, OR
2. The founder promising to deliver something to a SPECIFIC person
3. An actionable task (not just 'click here' or 'buy now')

If automated, return has_commitment: false.

STEP 2: DIRECTION AND ASSIGNED_TO_ME

DIRECTION: "incoming" = folder INBOX (received); "outgoing" = folder SENT.

ASSIGNED_TO_ME: true = the founder must complete the action;
false = someone else must.

CRITICAL - MEETING/CALL DETECTION: for "attend", "join", "participate"
in meetings or calls on an INCOMING email, assigned_to_me is TRUE
(the founder must attend). "I scheduled a call with you tomorrow"
-> assigned_to_me: true.

Incoming requests (sender asks the founder) -> true.
Incoming promises (sender will do something) -> false.
Outgoing promises (founder will do something) -> true.
Outgoing requests (founder asks the recipient) -> false.

STEP 3: TO_WHOM (the other party of the commitment)

INCOMING emails (folder INBOX):
  - assigned_to_me true  -> to_whom: the sender's name
  - assigned_to_me false -> to_whom: "You"

OUTGOING emails (folder SENT):
  - always to_whom: the recipient's name ({{ recipient_name }});
    if empty, use the username part of {{ recipient_email }}.

STEP 4: DEADLINE EXTRACTION (CRITICAL)

Capture the EXACT time/date phrase from the email. Do NOT summarize or
paraphrase. Examples: "tonight", "this evening", "by end of day",
"by EOD", "tomorrow", "tomorrow morning", "by Friday", "next Monday",
"this week", "by next week", "ASAP", "as soon as possible",
"within 2 hours", "in 30 minutes", "Nov 25", "November 25th",
"by the 25th", "before the meeting", "before our call".

Time expressions often missed: "tonight"/"this evening"/"by end of
day"/"EOD"/"COB" mean TODAY; "first thing tomorrow"/"tomorrow morning"
mean TOMORROW.

If no deadline is mentioned, use deadline_raw: null.

STEP 5: SUMMARY

INCOMING: third person ("John asked you to send the Q4 report by Friday").
OUTGOING (SENT): second person ("You promised to send the deck to John
by Monday"). NEVER say "The sender will..." for SENT emails.

OTHER FIELDS

estimated_hours (REQUIRED, never null):
  quick email/message 0.5, short call/meeting 1, send report/document
  2-3, review document 1-2, create presentation 4-6, build feature or
  complex task 8+, uncertain 2-3.

priority: "tonight"/"ASAP"/"urgent"/"immediately" -> high;
"tomorrow"/"this week"/"by end of week" -> medium;
"next week"/"when you can" -> low.

confidence: clear commitment with deadline 1.0; clear commitment, no
deadline 0.9; implicit commitment 0.7-0.8.

classification.reasoning.domain must contain the sender's ACTUAL domain
extracted from the sender address, never a placeholder.`

// PromptBuilder renders the extraction prompts. The template parses once at
// construction.
type PromptBuilder struct {
	tmpl *liquid.Template
}

// NewPromptBuilder parses the prompt template.
func NewPromptBuilder() (*PromptBuilder, error) {
	engine := liquid.NewEngine()
	tmpl, err := engine.ParseString(userPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing extraction prompt template: %w", err)
	}
	return &PromptBuilder{tmpl: tmpl}, nil
}

// System returns the system prompt.
func (p *PromptBuilder) System() string {
	return systemPrompt
}

// User renders the per-email user prompt.
func (p *PromptBuilder) User(parsed *email.ParsedEmail, user UserContext, now time.Time) (string, error) {
	body := parsed.Body
	if len(body) > maxBodyChars {
		cut := maxBodyChars
		// Back off to a rune boundary so the cut never splits a multi-byte
		// character.
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}

	out, err := p.tmpl.RenderString(map[string]any{
		"sender":          parsed.Sender,
		"sender_name":     parsed.SenderName,
		"subject":         parsed.Subject,
		"body":            body,
		"email_date":      parsed.Date.UTC().Format(time.RFC3339),
		"current_date":    now.UTC().Format("2006-01-02"),
		"folder":          parsed.Folder,
		"recipient_email": parsed.Recipient,
		"recipient_name":  parsed.RecipientName,
		"founder_email":   user.Email,
		"founder_name":    user.Name,
		"company_domain":  user.Domain(),
	})
	if err != nil {
		return "", fmt.Errorf("rendering extraction prompt: %w", err)
	}
	return out, nil
}
