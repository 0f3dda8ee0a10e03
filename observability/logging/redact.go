package logging

import (
	"log/slog"
	"net/url"
	"sort"
	"strings"
)

// RedactedValue replaces sensitive values in log output.
const RedactedValue = "[REDACTED]"

// Keys stakerd logs in clear. Anything else passed through MaskField is
// treated as a credential.
var redactionAllowlist = map[string]struct{}{
	"service":     {},
	"env":         {},
	"component":   {},
	"error":       {},
	"reason":      {},
	"method":      {},
	"outcome":     {},
	"kind":        {},
	"request_id":  {},
	"operation":   {},
	"address":     {},
	"beneficiary": {},
	"amount":      {},
	"endpoint":    {},
}

// IsAllowlisted reports whether key may be logged without redaction.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// RedactionAllowlist returns the allowlisted keys, sorted.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskField redacts value unless key is allowlisted or value is blank.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskDSN logs a database DSN with any password removed. URL DSNs keep their
// scheme, user, host and database; anything that does not parse as a URL with
// a scheme, such as a SQLite path, is returned as is.
func MaskDSN(key, dsn string) slog.Attr {
	u, err := url.Parse(dsn)
	if err != nil {
		return slog.String(key, RedactedValue)
	}
	if u.Scheme == "" {
		return slog.String(key, dsn)
	}
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
	}
	q := u.Query()
	if q.Has("password") {
		q.Set("password", "xxxxx")
		u.RawQuery = q.Encode()
	}
	return slog.String(key, u.String())
}
