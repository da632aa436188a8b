package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// strictPolicy removes all HTML tags and attributes.
	strictPolicy = bluemonday.StrictPolicy()

	// ugcPolicy keeps basic formatting (<p>, <b>, <i>, <em>, <strong>, <a>, lists, <br>).
	ugcPolicy = bluemonday.UGCPolicy()
)

// Text strips all HTML and surrounding whitespace. The result is plain text:
// the entities the policy emits are decoded, so "Tom & Jerry's" round-trips
// unchanged through a JSON API.
// Use for: event titles, locations, review comments.
func Text(input string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(input)))
}

// HTML keeps safe formatting tags and drops scripts, iframes, handlers and styles.
// Use for: event descriptions.
func HTML(input string) string {
	return strings.TrimSpace(ugcPolicy.Sanitize(input))
}
