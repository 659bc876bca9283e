package intake

import (
	"strings"
	"unicode"
)

// keyword order matters: the first match wins.
var intentKeywords = []struct {
	keyword string
	kind    Type
}{
	{"refund", TypeRefund},
	{"return", TypeReturn},
	{"shipping", TypeShippingIssue},
	{"billing", TypeBillingDispute},
	{"account takeover", TypeAccountTakeover},
}

// DetectType maps free text to a request type by keyword, defaulting to support.
func DetectType(message string) Type {
	lower := strings.ToLower(message)
	for _, k := range intentKeywords {
		if strings.Contains(lower, k.keyword) {
			return k.kind
		}
	}
	return TypeSupport
}

// ContainsPII reports whether message carries an email-like token or any digits.
func ContainsPII(message string) bool {
	if strings.Contains(message, "@") {
		return true
	}
	return strings.IndexFunc(message, unicode.IsDigit) >= 0
}
