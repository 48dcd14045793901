package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxTextBytes bounds the normalized text handed to callers.
const DefaultMaxTextBytes = 512 << 10

// Normalizer joins extracted fragments into the final text payload.
type Normalizer struct {
	maxBytes int
}

// NewNormalizer returns a Normalizer that truncates output to maxBytes. A non-positive value means the default.
func NewNormalizer(maxBytes int) *Normalizer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxTextBytes
	}
	return &Normalizer{maxBytes: maxBytes}
}

// Normalize joins fragments with newlines and cleans the result:
//   - invalid UTF-8 and Unicode noncharacters become U+FFFD, and the text is put in NFC
//   - CRLF, CR and Unicode line separators become LF
//   - control characters other than line breaks are dropped
//   - each line has its whitespace runs folded to one space and is trimmed
//   - three or more consecutive newlines become two, and the whole text is trimmed
//
// Text longer than the limit is cut at a rune boundary and truncated is true. Normalize never fails.
func (n *Normalizer) Normalize(fragments []string) (text string, truncated bool) {
	joined := strings.Join(fragments, "\n")
	joined = strings.ToValidUTF8(joined, "\uFFFD")
	joined = norm.NFC.String(joined)

	var (
		out    strings.Builder
		line   strings.Builder
		space  bool
		blanks int
		wrote  bool
	)
	out.Grow(len(joined))
	endLine := func() {
		if line.Len() == 0 {
			blanks++
		} else {
			if wrote {
				out.WriteByte('\n')
				if blanks > 0 {
					out.WriteByte('\n')
				}
			}
			out.WriteString(line.String())
			wrote = true
			blanks = 0
		}
		line.Reset()
		space = false
	}

	for i := 0; i < len(joined); {
		r, size := utf8.DecodeRuneInString(joined[i:])
		i += size
		switch {
		case r == '\r':
			if i < len(joined) && joined[i] == '\n' {
				i++
			}
			endLine()
		case isLineBreak(r):
			endLine()
		case r == '\t' || unicode.IsSpace(r):
			space = line.Len() > 0
		case unicode.Is(unicode.Cc, r), r == '\uFEFF', r == '\u200B':
		default:
			if isNoncharacter(r) {
				r = utf8.RuneError
			}
			if space {
				line.WriteByte(' ')
				space = false
			}
			line.WriteRune(r)
		}
	}
	endLine()

	text = out.String()
	if len(text) > n.maxBytes {
		cut := n.maxBytes
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = strings.TrimRightFunc(text[:cut], unicode.IsSpace)
		truncated = true
	}
	return text, truncated
}

// Normalize applies the default Normalizer.
func Normalize(fragments []string) string {
	text, _ := NewNormalizer(DefaultMaxTextBytes).Normalize(fragments)
	return text
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\v', '\f', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}

// isNoncharacter reports the 66 code points Unicode reserves as never assigned.
func isNoncharacter(r rune) bool {
	return (r >= 0xFDD0 && r <= 0xFDEF) || r&0xFFFE == 0xFFFE
}
