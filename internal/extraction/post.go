package extraction

import (
	"strings"
	"time"

	"github.com/foundercrm/commitment-engine/internal/commitment"
	"github.com/foundercrm/commitment-engine/internal/deadline"
	"github.com/foundercrm/commitment-engine/internal/email"
)

// Result is a validated, post-processed extraction.
type Result struct {
	HasCommitment  bool
	Direction      string
	Summary        string
	EmailMetadata  EmailMetadata
	Classification Classification
	Commitments    []commitment.Commitment
}

// hoursByType backs the estimated_hours default when the model returned 0.
func hoursByType(commitmentType string) float64 {
	switch strings.ToLower(commitmentType) {
	case "meeting", "call":
		return 1
	case "email", "message", "communication":
		return 0.5
	case "deliverable", "report", "document":
		return 3
	case "presentation":
		return 5
	case "feature", "development":
		return 8
	default:
		return 2
	}
}

// buildResult converts a schema-valid envelope into commitment records:
// given_by from the sender, estimated_hours defaulted by type, deadline
// normalized against the email date, status derived from the deadline.
func buildResult(obj map[string]any, parsed *email.ParsedEmail, userID string) *Result {
	result := &Result{
		HasCommitment: asBool(obj["has_commitment"]),
		Summary:       asString(obj["summary"]),
		Direction:     asString(obj["direction"]),
	}
	if result.Direction == "" {
		if parsed.Folder == email.FolderSent {
			result.Direction = commitment.DirectionOutgoing
		} else {
			result.Direction = commitment.DirectionIncoming
		}
	}

	if meta, ok := obj["email_metadata"].(map[string]any); ok {
		result.EmailMetadata = EmailMetadata{
			Sender:     asString(meta["sender"]),
			SenderName: asString(meta["sender_name"]),
			Subject:    asString(meta["subject"]),
			Date:       asString(meta["date"]),
		}
	}
	// The model echoes metadata back; the parsed message stays authoritative.
	if result.EmailMetadata.Sender == "" {
		result.EmailMetadata.Sender = parsed.Sender
	}
	if result.EmailMetadata.SenderName == "" {
		result.EmailMetadata.SenderName = parsed.SenderName
	}
	if result.EmailMetadata.Subject == "" {
		result.EmailMetadata.Subject = parsed.Subject
	}
	if result.EmailMetadata.Date == "" {
		result.EmailMetadata.Date = parsed.Date.UTC().Format(time.RFC3339)
	}

	result.Classification = parseClassification(obj)

	rawCommitments, _ := obj["commitments"].([]any)
	now := time.Now().UTC().Format(time.RFC3339)
	for _, raw := range rawCommitments {
		c, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		rec := commitment.Commitment{
			UserID:       userID,
			What:         asString(c["what"]),
			ToWhom:       asString(c["to_whom"]),
			GivenBy:      parsed.Sender,
			AssignedToMe: asBool(c["assigned_to_me"]),
			Direction:    result.Direction,
			Summary:      result.Summary,
			Priority:     asString(c["priority"]),
			Type:         asString(c["commitment_type"]),
			Confidence:   asFloat(c["confidence"]),
			DeadlineRaw:  asString(c["deadline_raw"]),

			MessageID:       parsed.MessageID,
			EmailSubject:    parsed.Subject,
			EmailSender:     parsed.Sender,
			EmailSenderName: parsed.SenderName,
			EmailDate:       parsed.Date.UTC().Format(time.RFC3339),
			SourceFolder:    parsed.Folder,

			SenderRole:                   result.Classification.SenderRole,
			ClassificationConfidence:     result.Classification.Confidence,
			ClassificationDomainMatch:    result.Classification.Reasoning.DomainMatch,
			ClassificationDomain:         result.Classification.Reasoning.Domain,
			ClassificationSignatureMatch: result.Classification.Reasoning.SignatureMatch,
			ClassificationSubjectHint:    result.Classification.Reasoning.SubjectHint,
			ClassificationBodyHint:       result.Classification.Reasoning.BodyHint,
			ClassificationFallbackUsed:   result.Classification.Reasoning.FallbackUsed,

			ExtractedAt: now,
		}

		if hours := asFloat(c["estimated_hours"]); hours > 0 {
			rec.EstimatedHours = hours
		} else {
			rec.EstimatedHours = hoursByType(rec.Type)
		}

		if iso, ok := deadline.Normalize(rec.DeadlineRaw, parsed.Date); ok {
			rec.DeadlineISO = iso
		}
		rec.Completed = false
		rec.CompletedAt = ""
		rec.ApplyDefaults()
		rec.Recompute(time.Now().UTC())

		result.Commitments = append(result.Commitments, rec)
	}
	return result
}

func parseClassification(obj map[string]any) Classification {
	cls := Classification{SenderRole: "unknown"}
	rawCls, ok := obj["classification"].(map[string]any)
	if !ok {
		cls.Reasoning.FallbackUsed = true
		return cls
	}
	if role := asString(rawCls["sender_role"]); role != "" {
		cls.SenderRole = role
	}
	cls.Confidence = asFloat(rawCls["confidence"])
	if reasoning, ok := rawCls["reasoning"].(map[string]any); ok {
		cls.Reasoning = ClassificationReasoning{
			DomainMatch:    asBool(reasoning["domain_match"]),
			Domain:         asString(reasoning["domain"]),
			SignatureMatch: asBool(reasoning["signature_match"]),
			SubjectHint:    asBool(reasoning["subject_hint"]),
			BodyHint:       asBool(reasoning["body_hint"]),
			FallbackUsed:   asBool(reasoning["fallback_used"]),
		}
	}
	return cls
}
