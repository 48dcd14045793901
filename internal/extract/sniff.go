package extract

import (
	"bytes"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// extensionKinds is the primary sniffing signal. Keys are lowercase with the leading dot.
var extensionKinds = map[string]Kind{
	".txt":  PlainText,
	".pdf":  PDF,
	".doc":  WordDocument,
	".docx": WordDocument,
	".rtf":  RichText,
}

var (
	pdfMagic = []byte("%PDF-")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	zipMagic = []byte("PK\x03\x04")
	rtfMagic = []byte(`{\rtf`)

	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16LEBOM = []byte{0xFF, 0xFE}
	utf16BEBOM = []byte{0xFE, 0xFF}
)

// binaryProbeLen is how much of a .txt file is scanned for NUL bytes.
const binaryProbeLen = 8 << 10

// SupportedExtensions returns the recognized extensions in sorted order.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extensionKinds))
	for ext := range extensionKinds {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Sniff classifies a file by extension, then checks that the leading bytes agree.
// A recognized extension whose content carries another format's signature is Unknown.
// Empty content is not checked: whether an empty file is valid is up to the extractor.
func Sniff(name string, data []byte) Kind {
	kind := kindForExtension(name)
	if kind == Unknown || len(data) == 0 {
		return kind
	}
	if !signatureMatches(kind, data) {
		return Unknown
	}
	return kind
}

func kindForExtension(name string) Kind {
	return extensionKinds[extensionOf(name)]
}

func extensionOf(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

func signatureMatches(kind Kind, data []byte) bool {
	switch kind {
	case PDF:
		return bytes.HasPrefix(data, pdfMagic)
	case WordDocument:
		return bytes.HasPrefix(data, oleMagic) || bytes.HasPrefix(data, zipMagic)
	case RichText:
		// Whitespace alone is an empty document, as for zero-length input.
		trimmed := bytes.TrimLeft(bytes.TrimPrefix(data, utf8BOM), " \t\r\n")
		return len(trimmed) == 0 || bytes.HasPrefix(trimmed, rtfMagic)
	case PlainText:
		return looksLikeText(data)
	default:
		return false
	}
}

// looksLikeText accepts a UTF-16 BOM, or a head free of NUL bytes that does not open with
// another supported format's signature.
func looksLikeText(data []byte) bool {
	if bytes.HasPrefix(data, utf16LEBOM) || bytes.HasPrefix(data, utf16BEBOM) {
		return true
	}
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(data, utf8BOM), " \t\r\n")
	for _, magic := range [][]byte{pdfMagic, oleMagic, zipMagic, rtfMagic} {
		if bytes.HasPrefix(trimmed, magic) {
			return false
		}
	}
	head := data
	if len(head) > binaryProbeLen {
		head = head[:binaryProbeLen]
	}
	return bytes.IndexByte(head, 0) < 0
}

// detectedType names what the content looks like, for rejection messages only.
func detectedType(data []byte) string {
	if len(data) == 0 {
		return "empty"
	}
	return mimetype.Detect(data).String()
}
