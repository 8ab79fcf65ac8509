// Package privacy scrubs credentials out of strings before they reach logs,
// notifications or telemetry.
package privacy

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	// URLs with a scheme, including shoutrrr service URLs and ffmpeg inputs
	urlPattern = regexp.MustCompile(`\b[a-z][a-z0-9+.-]*://\S+`)

	// key=value secrets outside URLs
	secretPattern = regexp.MustCompile(`(?i)\b(password|passwd|secret|token|api[_-]?key|access[_-]?key[_-]?id|secret[_-]?access[_-]?key)=\S+`)
)

const redacted = "[REDACTED]"

// ScrubMessage redacts credentials embedded in URLs and key=value pairs.
func ScrubMessage(message string) string {
	scrubbed := urlPattern.ReplaceAllStringFunc(message, RedactURL)
	return secretPattern.ReplaceAllStringFunc(scrubbed, func(match string) string {
		key, _, _ := strings.Cut(match, "=")
		return key + "=" + redacted
	})
}

// RedactURL keeps scheme, host and path of a URL and replaces user info and
// query values. Unparseable input is redacted entirely.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return redacted
	}
	if u.User != nil {
		u.User = url.User(redacted)
	}
	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			q.Set(key, redacted)
		}
		u.RawQuery = q.Encode()
	}
	// url.String escapes the brackets; readability matters more than round-tripping here
	out := u.String()
	out = strings.ReplaceAll(out, "%5BREDACTED%5D", redacted)
	return out
}

// MaskSecret shows at most the last four characters of a secret.
func MaskSecret(secret string) string {
	const visible = 4
	if secret == "" {
		return ""
	}
	if len(secret) <= visible*2 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-visible) + secret[len(secret)-visible:]
}
