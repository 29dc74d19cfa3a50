package observability

import (
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// Username is the log field for a user-supplied sign-in name.
func Username(name string) zap.Field {
	return zap.String("username", clean(name, 64))
}

// UID is the log field for an identity subject.
func UID(uid string) zap.Field {
	return zap.String("uid", clean(uid, 128))
}

// clean strips control characters, which would let a client forge log lines,
// and caps the result at limit runes.
func clean(value string, limit int) string {
	var b strings.Builder
	n := 0
	for _, r := range value {
		if n == limit {
			break
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
