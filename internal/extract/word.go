package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// maxPartBytes caps any single zip part or OLE stream we are willing to inflate.
const maxPartBytes = 64 << 20

// maxSupplementaryBytes caps the inflated size of all headers, footers and notes together.
// Parts past the budget are left out.
const maxSupplementaryBytes = 8 << 20

// extractWord handles both Word containers. The extension cannot tell them apart reliably
// (old files get renamed to .docx and the other way round), so the signature decides.
func extractWord(content []byte) ([]string, error) {
	switch {
	case len(content) == 0:
		return nil, corruptf("word", "empty file")
	case bytes.HasPrefix(content, zipMagic):
		return extractDOCX(content)
	case bytes.HasPrefix(content, oleMagic):
		return extractDOC(content)
	default:
		return nil, corruptf("word", "neither an OOXML package nor an OLE compound file")
	}
}

const (
	contentTypesPath    = "[Content_Types].xml"
	docxDocumentXMLPath = "word/document.xml"

	ctHeader    = "application/vnd.openxmlformats-officedocument.wordprocessingml.header+xml"
	ctFooter    = "application/vnd.openxmlformats-officedocument.wordprocessingml.footer+xml"
	ctFootnotes = "application/vnd.openxmlformats-officedocument.wordprocessingml.footnotes+xml"
	ctEndnotes  = "application/vnd.openxmlformats-officedocument.wordprocessingml.endnotes+xml"
)

// mainDocumentTypes covers .docx, .docm, .dotx and .dotm main parts.
var mainDocumentTypes = map[string]bool{
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.template.main+xml": true,
	"application/vnd.ms-word.document.macroEnabled.main+xml":                          true,
	"application/vnd.ms-word.template.macroEnabledTemplate.main+xml":                  true,
}

// supplementaryOrder is the order in which non-body parts are appended after the body.
var supplementaryOrder = []string{ctHeader, ctFooter, ctFootnotes, ctEndnotes}

type contentTypes struct {
	Overrides []struct {
		PartName    string `xml:"PartName,attr"`
		ContentType string `xml:"ContentType,attr"`
	} `xml:"Override"`
}

// extractDOCX returns the body paragraphs, then header, footer, footnote and endnote paragraphs.
// A missing or malformed main part is corrupt; a damaged supplementary part is skipped, and
// supplementary parts stop once they use up maxSupplementaryBytes.
func extractDOCX(content []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, corrupt("docx", err)
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[strings.TrimPrefix(f.Name, "/")] = f
	}

	mainPath, parts := docxParts(files)
	mainFile, ok := files[mainPath]
	if !ok {
		return nil, corruptf("docx", "main document part %s not found", mainPath)
	}
	body, err := readZipPart(mainFile, maxPartBytes)
	if err != nil {
		return nil, corrupt("docx", err)
	}
	fragments, err := docxParagraphs(body, true)
	if err != nil {
		return nil, corrupt("docx", fmt.Errorf("%s: %w", mainPath, err))
	}

	budget := int64(maxSupplementaryBytes)
	for _, name := range parts {
		f, ok := files[name]
		if !ok {
			continue
		}
		data, err := readZipPart(f, budget)
		if errors.Is(err, errPartTooLarge) {
			break
		}
		if err != nil {
			continue
		}
		budget -= int64(len(data))
		paras, err := docxParagraphs(data, false)
		if err != nil {
			continue
		}
		fragments = append(fragments, paras...)
	}
	return fragments, nil
}

// docxParts finds the main part through [Content_Types].xml, falling back to the conventional
// name, and lists the supplementary parts in append order.
func docxParts(files map[string]*zip.File) (string, []string) {
	mainPath := docxDocumentXMLPath
	byType := make(map[string][]string)

	var ct contentTypes
	if f, ok := files[contentTypesPath]; ok {
		if data, err := readZipPart(f, maxPartBytes); err == nil && xml.Unmarshal(data, &ct) == nil {
			for _, o := range ct.Overrides {
				name := strings.TrimPrefix(o.PartName, "/")
				contentType := strings.ToLower(strings.TrimSpace(o.ContentType))
				switch {
				case mainDocumentTypes[strings.TrimSpace(o.ContentType)]:
					mainPath = name
				default:
					for _, t := range supplementaryOrder {
						if contentType == t {
							byType[t] = append(byType[t], name)
						}
					}
				}
			}
		}
	}

	if len(byType) == 0 {
		// No overrides for the supplementary parts; use the names Word writes.
		dir := path.Dir(mainPath)
		for name := range files {
			if path.Dir(name) != dir {
				continue
			}
			base := path.Base(name)
			switch {
			case strings.HasPrefix(base, "header") && strings.HasSuffix(base, ".xml"):
				byType[ctHeader] = append(byType[ctHeader], name)
			case strings.HasPrefix(base, "footer") && strings.HasSuffix(base, ".xml"):
				byType[ctFooter] = append(byType[ctFooter], name)
			case base == "footnotes.xml":
				byType[ctFootnotes] = append(byType[ctFootnotes], name)
			case base == "endnotes.xml":
				byType[ctEndnotes] = append(byType[ctEndnotes], name)
			}
		}
	}

	var parts []string
	for _, t := range supplementaryOrder {
		names := byType[t]
		sort.Slice(names, func(i, j int) bool { return partLess(names[i], names[j]) })
		parts = append(parts, names...)
	}
	return mainPath, parts
}

// partLess orders header2.xml before header10.xml.
func partLess(a, b string) bool {
	na, nb := partNumber(a), partNumber(b)
	if na != nb {
		return na < nb
	}
	return a < b
}

func partNumber(name string) int {
	base := strings.TrimSuffix(path.Base(name), path.Ext(name))
	i := len(base)
	for i > 0 && base[i-1] >= '0' && base[i-1] <= '9' {
		i--
	}
	n, err := strconv.Atoi(base[i:])
	if err != nil {
		return 0
	}
	return n
}

var errPartTooLarge = errors.New("part is too large")

// readZipPart inflates f, failing with errPartTooLarge past limit bytes. The declared size is
// checked first, then the actual output, since the header can lie.
func readZipPart(f *zip.File, limit int64) ([]byte, error) {
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("%s: %w (over %d bytes)", f.Name, errPartTooLarge, limit)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s: %w (over %d bytes)", f.Name, errPartTooLarge, limit)
	}
	return data, nil
}

func xmlCharsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, err
	}
	return enc.NewDecoder().Reader(input), nil
}

// docxParagraphs walks WordprocessingML and returns one fragment per paragraph, in document order.
// Deleted revisions, field instructions, hidden runs and mc:Fallback copies are left out.
// A paragraph that contains another (a text box anchored in it) is split around the inner one.
// When requireBody is set the part must contain a w:body element.
func docxParagraphs(data []byte, requireBody bool) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = xmlCharsetReader

	var (
		paragraphs []string
		cur        strings.Builder
		open       int // paragraphs currently open
		inRun      int
		inRunProps int
		inText     bool
		hidden     bool
		sawBody    bool
		sawRoot    bool
	)
	flush := func() {
		paragraphs = append(paragraphs, cur.String())
		cur.Reset()
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			sawRoot = true
			switch t.Name.Local {
			case "body":
				sawBody = true
			case "p":
				if open > 0 && cur.Len() > 0 {
					flush()
				}
				open++
			case "r":
				inRun++
				hidden = false
			case "rPr":
				inRunProps++
			case "vanish":
				if inRun > 0 && inRunProps > 0 && onOff(t) {
					hidden = true
				}
			case "t":
				inText = inRun > 0 && inRunProps == 0
			case "tab":
				if inRun > 0 && inRunProps == 0 && !hidden {
					cur.WriteByte('\t')
				}
			case "br", "cr":
				if inRun > 0 && inRunProps == 0 && !hidden {
					cur.WriteByte('\n')
				}
			case "noBreakHyphen":
				if inRun > 0 && !hidden {
					cur.WriteByte('-')
				}
			case "delText", "instrText", "delInstrText", "Fallback":
				if err := dec.Skip(); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if open > 0 {
					open--
					flush()
				}
			case "r":
				if inRun > 0 {
					inRun--
				}
				hidden = false
			case "rPr":
				if inRunProps > 0 {
					inRunProps--
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText && !hidden {
				cur.Write(t)
			}
		}
	}
	if requireBody {
		if !sawRoot {
			return nil, errors.New("part has no root element")
		}
		if !sawBody {
			return nil, errors.New("document has no body")
		}
	}
	if cur.Len() > 0 {
		flush()
	}
	return paragraphs, nil
}

// onOff reads a ST_OnOff toggle such as <w:vanish/> or <w:vanish w:val="false"/>.
func onOff(el xml.StartElement) bool {
	for _, a := range el.Attr {
		if a.Name.Local == "val" {
			switch strings.ToLower(a.Value) {
			case "0", "false", "off":
				return false
			}
		}
	}
	return true
}
