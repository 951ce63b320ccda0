// Package synckey generates and validates the human-facing sync key.
//
// A sync key is 24 symbols from an alphabet without visually ambiguous
// characters (no 0, O, 1, I or L), rendered as four dash-separated groups
// of six, e.g. ABCDEF-GHJKMN-PQRSTU-VWXYZ2.
package synckey

import (
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Alphabet holds every upper-case letter and digit except 0, O, 1, I and L.
const Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	groups    = 4
	groupSize = 6
	// Length is the number of symbols in a key, separators excluded.
	Length = groups * groupSize
)

// Bytes at or above this bound are discarded so that every symbol is equally likely.
const rejectAbove = 256 - 256%len(Alphabet)

var pattern = regexp.MustCompile(`^[A-HJKMNP-Z2-9]{6}-[A-HJKMNP-Z2-9]{6}-[A-HJKMNP-Z2-9]{6}-[A-HJKMNP-Z2-9]{6}$`)

// randReader is swapped in tests.
var randReader io.Reader = rand.Reader

// Generate returns a fresh random key.
func Generate() (string, error) {
	raw := make([]byte, 0, Length)
	buf := make([]byte, Length)
	for len(raw) < Length {
		if _, err := io.ReadFull(randReader, buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			raw = append(raw, Alphabet[int(b)%len(Alphabet)])
			if len(raw) == Length {
				break
			}
		}
	}
	return format(raw), nil
}

func format(raw []byte) string {
	parts := make([]string, 0, groups)
	for i := 0; i < groups; i++ {
		parts = append(parts, string(raw[i*groupSize:(i+1)*groupSize]))
	}
	return strings.Join(parts, "-")
}

// Validate reports whether candidate has the exact key shape.
// Matching is case-insensitive.
func Validate(candidate string) bool {
	return pattern.MatchString(strings.ToUpper(candidate))
}

// Normalize trims surrounding whitespace and upper-cases user input.
func Normalize(candidate string) string {
	return strings.ToUpper(strings.TrimSpace(candidate))
}
