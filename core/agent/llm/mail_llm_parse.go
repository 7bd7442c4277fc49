package llm

import (
	"regexp"
	"strings"

	"mailagent/core/domain"
)

// Models wrap JSON in markdown fences or prepend prose; extractJSONObject
// returns the outermost {...} span, or the input unchanged.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// extractCategory finds a known category keyword in free text.
func extractCategory(s string) (domain.EmailCategory, bool) {
	lower := strings.ToLower(s)
	for _, cat := range []domain.EmailCategory{
		domain.CategoryProductEnquiry,
		domain.CategoryCustomerComplaint,
		domain.CategoryCustomerFeedback,
		domain.CategoryUnrelated,
	} {
		if strings.Contains(lower, string(cat)) {
			return cat, true
		}
	}
	return "", false
}

// Bullet or numbered items carrying a quoted string, e.g.
//   1. "企服通套餐价格是多少"
//   - "如何联系客服"
var quotedItemRe = regexp.MustCompile(`[-\d]+\.?\s*["'“”]([^"'“”]+)["'“”]`)

// extractQuotedItems parses list items bearing quoted strings from free text.
func extractQuotedItems(s string) []string {
	var items []string
	for _, m := range quotedItemRe.FindAllStringSubmatch(s, -1) {
		item := strings.TrimSpace(m[1])
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// The writer sometimes returns {"email": "..."} with unescaped newlines
// inside the string, which no JSON decoder accepts. Grab the field by regex.
var emailFieldRe = regexp.MustCompile(`(?s)"email"\s*:\s*"(.*)"`)

func extractEmailField(s string) (string, bool) {
	m := emailFieldRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	text := strings.TrimSpace(m[1])
	if text == "" {
		return "", false
	}
	text = strings.ReplaceAll(text, `\n`, "\n")
	text = strings.ReplaceAll(text, `\t`, "\t")
	text = strings.ReplaceAll(text, `\"`, `"`)
	return text, true
}

// firstChars returns the first n runes of s.
func firstChars(s string, n int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
