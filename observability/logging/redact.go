package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// Keys that carry public ledger data or log plumbing. Anything else, notably
// signatures and raw request bodies, is masked.
var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"kind":      {},
	"component": {},
	"requestid": {},
	"method":    {},
	"op":        {},
	"event":     {},
	"address":   {},
	"orderid":   {},
	"seller":    {},
	"buyer":     {},
	"amount":    {},
	"currency":  {},
	"status":    {},
	"feebps":    {},
	"partner":   {},
	"funder":    {},
	"pool":      {},
	"winner":    {},
	"refunded":  {},

	"arbitrator":           {},
	"feerecipient":         {},
	"openedby":             {},
	"cancelledby":          {},
	"disputefee":           {},
	"defaulttimeout":       {},
	"sellercancancelafter": {},
	"buyeramount":          {},
	"feerecipientamount":   {},
	"arbitratoramount":     {},
	"partneramount":        {},
}

// IsAllowlisted reports whether the provided key is exempt from automatic redaction.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// RedactionAllowlist returns the allowlisted keys in sorted order.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskField returns a slog.Attr that redacts the supplied value unless the key is
// explicitly allowlisted. The original key casing is preserved for readability.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskAttrs converts a string map into masked slog attributes ordered by key,
// ready to pass to slog.Group.
func MaskAttrs(fields map[string]string) []any {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, MaskField(k, fields[k]))
	}
	return out
}
