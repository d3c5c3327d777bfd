// Package token mints and parses the reminder identity embedded in email
// subjects, e.g. "[IMPACT-abc-123-20250115] Weekly Check-in".
package token

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Prefix is the fixed marker inside the bracketed token. The inbox query
// filters on it as well.
const Prefix = "IMPACT"

const dateLayout = "20060102"

// Token identifies the commitment and day a reminder was minted for.
type Token struct {
	CommitmentID string
	Date         string
}

// Mint builds a token for commitmentID stamped with day's calendar date in
// day's own location.
func Mint(commitmentID string, day time.Time) Token {
	return Token{CommitmentID: commitmentID, Date: day.Format(dateLayout)}
}

// String renders the bracketed wire form.
func (t Token) String() string {
	return fmt.Sprintf("[%s-%s-%s]", Prefix, t.CommitmentID, t.Date)
}

// Compose prefixes subject with the token.
func Compose(t Token, subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return t.String()
	}
	return t.String() + " " + subject
}

// The identity is greedy up to the final 8-digit group so ids containing
// hyphens survive. Whitespace inside the brackets is tolerated because some
// clients fold long subjects.
var tokenRegex = regexp.MustCompile(`(?i)\[\s*` + Prefix + `\s*-\s*([^\[\]]+)\s*-\s*(\d{8})\s*\]`)

// Parse extracts the token from subject. ok is false when the subject
// carries no well-formed token.
func Parse(subject string) (Token, bool) {
	matches := tokenRegex.FindStringSubmatch(subject)
	if len(matches) < 3 {
		return Token{}, false
	}
	id := strings.Join(strings.Fields(matches[1]), "")
	if id == "" {
		return Token{}, false
	}
	return Token{CommitmentID: id, Date: matches[2]}, true
}

// Day returns the token's date as midnight in loc.
func (t Token) Day(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout, t.Date, loc)
}
