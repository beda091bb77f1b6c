package trigger

import "strings"

// Normalization is the result of rewriting a user-supplied cron
// expression to canonical 5-field form. Original and Normalized are both
// returned so callers can show the rewrite to the user.
type Normalization struct {
	Original   string
	Normalized string
	Changed    bool
}

// Normalize accepts a cron expression as pasted by a user. A 6-token
// expression (leading seconds field) is rewritten to 5 tokens by
// dropping the first; anything else is returned unchanged.
func Normalize(expr string) Normalization {
	raw := strings.TrimSpace(expr)
	fields := strings.Fields(raw)
	if len(fields) == 6 {
		return Normalization{
			Original:   raw,
			Normalized: strings.Join(fields[1:], " "),
			Changed:    true,
		}
	}
	return Normalization{Original: raw, Normalized: raw}
}
