// Package slug maps free-text payment type values to canonical product slugs
// as stored in the record store's Products collection.
package slug

import (
	"regexp"
	"strings"
)

// aliases holds explicit overrides for type values that do not follow the
// simple prefix rules.
var aliases = map[string]string{}

var invalidChars = regexp.MustCompile(`[^a-z0-9_]+`)

// FromPaymentType converts values like "webinar_joi" or "webinar_webinar_joi"
// to a product slug ("joi", "femdom_part_both", ...).
//
// Rules:
//   - remove ALL "webinar_" prefixes
//   - special: "femdom" -> "femdom_part_both"
//   - keep only [a-z0-9_]
//
// Returns "" when no slug can be derived.
func FromPaymentType(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return ""
	}

	if alias, ok := aliases[v]; ok {
		return alias
	}

	for strings.HasPrefix(v, "webinar_") {
		v = strings.TrimPrefix(v, "webinar_")
	}

	if v == "femdom" {
		v = "femdom_part_both"
	}

	v = strings.Trim(invalidChars.ReplaceAllString(v, "_"), "_")
	return v
}
