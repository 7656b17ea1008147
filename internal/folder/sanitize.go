package folder

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Untitled replaces names that sanitize to nothing.
const Untitled = "Untitled"

const forbidden = `/\:*?"<>|`

// Sanitize turns a display name into a name safe for the remote namespace
// and for archive paths. It is idempotent.
func Sanitize(name string) string {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if strings.ContainsRune(forbidden, r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	collapsed := strings.Join(strings.Fields(stripped), " ")
	out := norm.NFC.String(collapsed)
	if out == "" {
		return Untitled
	}
	return out
}
