// slug.go generates the human-readable, unique entry slug used in storage paths and URLs.
package catalog

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Slug builds a URL- and path-safe slug from the entry title plus a base36
// timestamp suffix. The suffix makes slugs unique without a lookup round-trip,
// so two sellers can publish entries with the same title.
func Slug(title string, now time.Time) string {
	return Slugify(title) + "-" + strconv.FormatInt(now.Unix(), 36)
}

// Slugify lowercases the input and collapses every run of non-alphanumeric
// characters into a single hyphen, trimming leading and trailing hyphens.
// An input with no usable characters yields "entry" so the slug is never empty.
func Slugify(s string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "entry"
	}
	return out
}
