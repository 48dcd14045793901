package extract

// Kind is the closed set of document formats the parser recognizes.
type Kind int

const (
	// Unknown is any input the sniffer could not classify.
	Unknown Kind = iota
	// PlainText is .txt content in UTF-8, UTF-16 (with BOM) or a legacy single-byte encoding.
	PlainText
	// PDF is a Portable Document Format file.
	PDF
	// WordDocument is a .docx (OOXML zip) or legacy .doc (OLE compound file).
	WordDocument
	// RichText is an .rtf file.
	RichText
)

var kindNames = map[Kind]string{
	Unknown:      "unknown",
	PlainText:    "text",
	PDF:          "pdf",
	WordDocument: "word",
	RichText:     "rtf",
}

// String returns the short lowercase name used in logs, metrics and JSON.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText lets Kind appear as its name in JSON and YAML.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseKind is the inverse of Kind.String. Unrecognized names yield Unknown.
func ParseKind(name string) Kind {
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return Unknown
}
