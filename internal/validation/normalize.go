package validation

import "strings"

// Normalize returns the canonical form used for keying and deduplication:
// trimmed, and lower-cased for emails.
func Normalize(kind Kind, item string) string {
	item = strings.TrimSpace(item)
	if kind == KindEmail {
		return strings.ToLower(item)
	}
	return item
}

// Dedupe drops repeated items while preserving first-occurrence order. Emails
// compare case-insensitively, phone numbers by their digits. Blank lines are
// dropped too. The second return value counts removed entries.
func Dedupe(kind Kind, items []string) ([]string, int) {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		key := dedupeKey(kind, trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out, len(items) - len(out)
}

func dedupeKey(kind Kind, item string) string {
	if kind != KindPhone {
		return Normalize(kind, item)
	}
	var b strings.Builder
	for _, r := range item {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return item
	}
	return b.String()
}
