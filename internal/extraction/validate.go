package extraction

import (
	"encoding/json"
	"strings"
)

// salvageJSON parses model output as JSON, falling back to the substring
// between the first "{" and the last "}" when the model wrapped the JSON in
// prose or code fences.
func salvageJSON(text string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		return obj
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return nil
	}
	return obj
}

// validateSchema checks the model's envelope before anything downstream
// trusts it. Validation runs on the raw maps because field presence matters:
// a commitment missing deadline_raw is rejected, one with deadline_raw null
// is fine.
func validateSchema(obj map[string]any) bool {
	if obj == nil {
		return false
	}
	hasCommitment, ok := obj["has_commitment"].(bool)
	if !ok {
		return false
	}
	meta, ok := obj["email_metadata"].(map[string]any)
	if !ok {
		return false
	}
	for _, k := range []string{"sender", "sender_name", "subject", "date"} {
		if _, present := meta[k]; !present {
			return false
		}
	}
	commitments, ok := obj["commitments"].([]any)
	if !ok {
		return false
	}

	if direction, present := obj["direction"]; present {
		if direction != "incoming" && direction != "outgoing" {
			return false
		}
	}

	if rawCls, present := obj["classification"]; present {
		cls, ok := rawCls.(map[string]any)
		if !ok {
			return false
		}
		if _, present := cls["sender_role"]; !present {
			return false
		}
		if _, present := cls["confidence"]; !present {
			return false
		}
		if rawReasoning, present := cls["reasoning"]; present {
			reasoning, ok := rawReasoning.(map[string]any)
			if !ok {
				return false
			}
			for _, k := range []string{"domain_match", "domain", "signature_match", "subject_hint", "body_hint", "fallback_used"} {
				if _, present := reasoning[k]; !present {
					return false
				}
			}
		}
	}

	if hasCommitment && len(commitments) > 0 {
		for _, raw := range commitments {
			c, ok := raw.(map[string]any)
			if !ok {
				return false
			}
			for _, field := range []string{"what", "to_whom", "assigned_to_me", "deadline_raw", "priority", "confidence", "commitment_type", "estimated_hours"} {
				if _, present := c[field]; !present {
					return false
				}
			}
			if _, ok := c["estimated_hours"].(float64); !ok {
				return false
			}
			if _, ok := c["assigned_to_me"].(bool); !ok {
				return false
			}
		}
	}
	return true
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}
