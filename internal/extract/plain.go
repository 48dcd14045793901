package extract

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// DefaultLegacyEncoding decodes plain text that is neither UTF-8 nor BOM-marked UTF-16.
var DefaultLegacyEncoding encoding.Encoding = charmap.Windows1252

// LegacyEncoding resolves a WHATWG encoding label such as "windows-1252", "latin1" or "gb18030".
func LegacyEncoding(label string) (encoding.Encoding, error) {
	if strings.TrimSpace(label) == "" {
		return DefaultLegacyEncoding, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unknown text encoding %q: %w", label, err)
	}
	return enc, nil
}

type plainExtractor struct {
	fallback encoding.Encoding
}

// Extract returns the whole decoded file as a single fragment.
func (p *plainExtractor) Extract(data []byte) ([]string, error) {
	text, err := decodeText(data, p.fallback)
	if err != nil {
		return nil, corrupt("text", err)
	}
	return []string{text}, nil
}

// decodeText honours a UTF-8 or UTF-16 byte order mark, then tries UTF-8, then the legacy fallback.
func decodeText(data []byte, fallback encoding.Encoding) (string, error) {
	switch {
	case bytes.HasPrefix(data, utf8BOM):
		data = data[len(utf8BOM):]
	case bytes.HasPrefix(data, utf16LEBOM), bytes.HasPrefix(data, utf16BEBOM):
		out, err := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("decode UTF-16: %w", err)
		}
		return string(out), nil
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	if fallback == nil {
		fallback = DefaultLegacyEncoding
	}
	out, err := fallback.NewDecoder().Bytes(data)
	if err != nil {
		// Multi-byte fallbacks can reject a sequence; the normalizer repairs what is left.
		return strings.ToValidUTF8(string(data), "\uFFFD"), nil
	}
	return string(out), nil
}
