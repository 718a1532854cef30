package backend

import (
	"regexp"
	"strings"

	"github.com/zeteolabs/zeteo/internal/pkg/errors"
)

// One unified filter model feeds three different query grammars, so
// every caller-supplied value is neutralized for the grammar it lands
// in before insertion. Free-text query strings pass through in the
// backend's own search syntax, but still with control characters
// stripped so they cannot smuggle frame or line delimiters.

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)

// stripControl removes ASCII control characters, including newlines,
// from a caller-supplied value.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// sqlQuote escapes a value for inclusion inside single quotes in a
// SQL WHERE clause: control characters dropped, quotes doubled.
func sqlQuote(s string) string {
	return strings.ReplaceAll(stripControl(s), "'", "''")
}

// sqlLikePattern escapes a value for use inside a LIKE '%...%'
// pattern, so user text cannot inject wildcards or quotes.
func sqlLikePattern(s string) string {
	s = sqlQuote(s)
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// validIdentifier checks a stream or table name against a conservative
// identifier grammar; names are config-supplied but still never spliced
// into SQL unvetted.
func validIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return errors.Newf(errors.CodeConfig, "invalid identifier %q", name)
	}
	return nil
}

// kqlQuote renders a value as a quoted KQL literal.
func kqlQuote(s string) string {
	s = stripControl(s)
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
