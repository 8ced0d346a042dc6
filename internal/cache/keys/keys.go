package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const prefix = "mapgen"

// Key builds the cache key for one rendered artifact of one dataset version.
func Key(dataset string, fingerprint uint64, artifact string) string {
	return fmt.Sprintf("%sv=%016x:%s", Prefix(dataset), fingerprint, sanitize(artifact))
}

// Prefix matches every key of dataset regardless of version or artifact.
func Prefix(dataset string) string {
	ds := strings.TrimSpace(dataset)
	dsSafe := sanitize(ds)

	const maxNameLen = 80
	if len(dsSafe) > maxNameLen {
		dsSafe = dsSafe[:maxNameLen]
	}

	// full name hashed so truncation cannot collide
	sum := xxhash.Sum64String(ds)

	return fmt.Sprintf("%s:%s:d=%016x:", prefix, dsSafe, sum)
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			// Any other rune (including ':' and non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r < unicode.MaxASCII && unicode.IsDigit(r))
}
