package extract

import (
	"bytes"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

// maxRTFWordLen and maxRTFParamLen are the limits the RTF grammar puts on control words.
const (
	maxRTFWordLen  = 32
	maxRTFParamLen = 10
)

// rtfSkipDestinations hold formatting data or hidden text, never visible content.
var rtfSkipDestinations = map[string]bool{
	"fonttbl": true, "colortbl": true, "stylesheet": true, "info": true, "pict": true,
	"object": true, "objdata": true, "themedata": true, "colorschememapping": true,
	"datastore": true, "latentstyles": true, "listtable": true, "listoverridetable": true,
	"rsidtbl": true, "generator": true, "xmlnstbl": true, "mmathPr": true, "fldinst": true,
	"filetbl": true, "revtbl": true, "pgdsctbl": true, "annotation": true, "atnid": true,
	"atnauthor": true, "datafield": true, "nonshppict": true, "shpinst": true,
	"template": true, "userprops": true, "wgrffmtfilter": true, "passwordhash": true,
}

// rtfSupplementary destinations are kept but appended after the body, like Word headers.
var rtfSupplementary = map[string]bool{
	"header": true, "headerl": true, "headerr": true, "headerf": true,
	"footer": true, "footerl": true, "footerr": true, "footerf": true,
	"footnote": true,
}

var rtfSymbols = map[string]string{
	"par": "\n", "line": "\n", "sect": "\n", "page": "\n", "row": "\n",
	"tab": "\t", "cell": "\t",
	"emdash": "\u2014", "endash": "\u2013", "bullet": "\u2022",
	"lquote": "\u2018", "rquote": "\u2019", "ldblquote": "\u201C", "rdblquote": "\u201D",
	"emspace": " ", "enspace": " ", "qmspace": " ",
}

// fontCharsetCodePages maps \fcharset values to Windows code pages.
var fontCharsetCodePages = map[int]int{
	77: 10000, 128: 932, 129: 949, 134: 936, 136: 950, 161: 1253, 162: 1254,
	163: 1258, 177: 1255, 178: 1256, 186: 1257, 204: 1251, 222: 874, 238: 1250, 255: 437,
}

// codePageEncoding resolves a Windows code page number. Unknown pages yield nil.
func codePageEncoding(cp int) encoding.Encoding {
	switch cp {
	case 437:
		return charmap.CodePage437
	case 850:
		return charmap.CodePage850
	case 866:
		return charmap.CodePage866
	case 874:
		return charmap.Windows874
	case 932:
		return japanese.ShiftJIS
	case 936:
		return simplifiedchinese.GBK
	case 949:
		return korean.EUCKR
	case 950:
		return traditionalchinese.Big5
	case 1250:
		return charmap.Windows1250
	case 1251:
		return charmap.Windows1251
	case 1252:
		return charmap.Windows1252
	case 1253:
		return charmap.Windows1253
	case 1254:
		return charmap.Windows1254
	case 1255:
		return charmap.Windows1255
	case 1256:
		return charmap.Windows1256
	case 1257:
		return charmap.Windows1257
	case 1258:
		return charmap.Windows1258
	case 10000:
		return charmap.Macintosh
	case 54936:
		return simplifiedchinese.GB18030
	case 65001:
		return unicode.UTF8
	default:
		return nil
	}
}

type rtfDest int

const (
	destBody rtfDest = iota
	destSkip
	destFontTable
	destSupplementary
)

// rtfGroup is the state a '{' saves and the matching '}' restores.
type rtfGroup struct {
	dest      rtfDest
	uc        int
	codePage  int
	fresh     bool // no control word seen yet in this group
	ignorable bool // group opened with \*
	suppIndex int  // fragment index for destSupplementary
}

type rtfParser struct {
	data  []byte
	pos   int
	stack []rtfGroup
	cur   rtfGroup

	docCodePage int
	fonts       map[int]int // font number -> code page
	fontNum     int

	body    strings.Builder
	supp    []*strings.Builder
	pending []byte // \'hh and literal bytes awaiting code page decoding
	pendCP  int
	high    rune // unpaired high surrogate from \u
	skipN   int  // fallback characters still to skip after \u
}

// extractRTF returns the body text, then one fragment per header, footer or footnote group.
func extractRTF(content []byte) ([]string, error) {
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(content, utf8BOM), " \t\r\n")
	if len(trimmed) == 0 {
		return []string{""}, nil
	}
	if !bytes.HasPrefix(trimmed, rtfMagic) {
		return nil, corruptf("rtf", "missing {\\rtf header")
	}
	p := &rtfParser{
		data:        trimmed,
		docCodePage: 1252,
		fonts:       make(map[int]int),
		fontNum:     -1,
	}
	p.cur = rtfGroup{dest: destBody, uc: 1, codePage: 1252}
	if err := p.run(); err != nil {
		return nil, err
	}
	fragments := []string{p.body.String()}
	for _, b := range p.supp {
		fragments = append(fragments, b.String())
	}
	return fragments, nil
}

func (p *rtfParser) run() error {
	depth := 0
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		switch c {
		case '{':
			p.flush()
			p.skipN = 0
			p.stack = append(p.stack, p.cur)
			p.cur.fresh = true
			p.cur.ignorable = false
			depth++
			p.pos++
		case '}':
			p.flush()
			p.skipN = 0
			if depth == 0 {
				return corruptf("rtf", "unbalanced '}' at offset %d", p.pos)
			}
			p.cur = p.stack[len(p.stack)-1]
			p.stack = p.stack[:len(p.stack)-1]
			depth--
			p.pos++
			if depth == 0 {
				// Anything after the outermost group is not part of the document.
				return nil
			}
		case '\\':
			if err := p.control(); err != nil {
				return err
			}
		case '\r', '\n':
			p.pos++
		default:
			p.pos++
			if depth == 0 {
				continue
			}
			p.cur.fresh = false
			if p.consumeFallback() {
				continue
			}
			if c == '\t' {
				p.emit("\t")
				continue
			}
			p.addByte(c)
		}
	}
	return corruptf("rtf", "%d group(s) left open at end of file", depth)
}

// control handles everything that starts with a backslash.
func (p *rtfParser) control() error {
	p.pos++
	if p.pos >= len(p.data) {
		return corruptf("rtf", "dangling backslash at end of file")
	}
	c := p.data[p.pos]
	if !isASCIILetter(c) {
		p.pos++
		p.symbol(c)
		return nil
	}

	start := p.pos
	for p.pos < len(p.data) && isASCIILetter(p.data[p.pos]) && p.pos-start < maxRTFWordLen {
		p.pos++
	}
	word := string(p.data[start:p.pos])
	param, hasParam := 0, false
	if p.pos < len(p.data) && (p.data[p.pos] == '-' || isASCIIDigit(p.data[p.pos])) {
		neg := p.data[p.pos] == '-'
		if neg {
			p.pos++
		}
		digits := 0
		for p.pos < len(p.data) && isASCIIDigit(p.data[p.pos]) && digits < maxRTFParamLen {
			param = param*10 + int(p.data[p.pos]-'0')
			p.pos++
			digits++
		}
		hasParam = digits > 0
		if neg {
			param = -param
		}
	}
	if p.pos < len(p.data) && p.data[p.pos] == ' ' {
		p.pos++
	}

	if word == "bin" {
		// Raw binary data follows; it is never text and is skipped even inside fallbacks.
		if param < 0 || p.pos+param > len(p.data) {
			return corruptf("rtf", "\\bin%d runs past end of file", param)
		}
		p.pos += param
		return nil
	}
	if p.consumeFallback() {
		return nil
	}
	p.word(word, param, hasParam)
	return nil
}

func (p *rtfParser) symbol(c byte) {
	if c == '*' {
		p.cur.ignorable = true
		return
	}
	if c == '\'' {
		if p.pos+2 > len(p.data) {
			p.pos = len(p.data)
			return
		}
		hi, lo := unhexByte(p.data[p.pos]), unhexByte(p.data[p.pos+1])
		p.pos += 2
		if p.consumeFallback() || hi < 0 || lo < 0 {
			return
		}
		p.addByte(byte(hi<<4 | lo))
		return
	}
	if p.consumeFallback() {
		return
	}
	switch c {
	case '\\', '{', '}':
		p.addByte(c)
	case '~':
		p.emit("\u00A0")
	case '_':
		p.emit("\u2011")
	case '\r', '\n':
		p.emit("\n")
	}
}

func (p *rtfParser) word(word string, param int, hasParam bool) {
	fresh := p.cur.fresh
	p.cur.fresh = false

	switch {
	case rtfSkipDestinations[word] && fresh:
		if word == "fonttbl" {
			p.cur.dest = destFontTable
		} else {
			p.cur.dest = destSkip
		}
		return
	case rtfSupplementary[word] && fresh && p.cur.dest == destBody:
		p.flush()
		p.supp = append(p.supp, &strings.Builder{})
		p.cur.dest = destSupplementary
		p.cur.suppIndex = len(p.supp) - 1
		return
	case p.cur.ignorable && fresh:
		// Unknown \* destination.
		p.cur.dest = destSkip
		return
	}

	switch word {
	case "ansi":
		p.setDocCodePage(1252)
	case "mac":
		p.setDocCodePage(10000)
	case "pc":
		p.setDocCodePage(437)
	case "pca":
		p.setDocCodePage(850)
	case "ansicpg":
		if hasParam && codePageEncoding(param) != nil {
			p.setDocCodePage(param)
		}
	case "f":
		if !hasParam {
			return
		}
		if p.cur.dest == destFontTable {
			p.fontNum = param
			return
		}
		p.flush()
		if cp, ok := p.fonts[param]; ok {
			p.cur.codePage = cp
		} else {
			p.cur.codePage = p.docCodePage
		}
	case "fcharset":
		if p.cur.dest == destFontTable && p.fontNum >= 0 {
			if cp, ok := fontCharsetCodePages[param]; ok {
				p.fonts[p.fontNum] = cp
			}
		}
	case "uc":
		if hasParam && param >= 0 {
			p.cur.uc = param
		}
	case "u":
		if !hasParam {
			return
		}
		if param < 0 {
			param += 0x10000
		}
		p.addRune(rune(param))
		p.skipN = p.cur.uc
	case "plain", "pard":
	default:
		if s, ok := rtfSymbols[word]; ok {
			p.emit(s)
		}
	}
}

func (p *rtfParser) setDocCodePage(cp int) {
	p.flushBytes()
	old := p.docCodePage
	p.docCodePage = cp
	if p.cur.codePage == old {
		p.cur.codePage = cp
	}
	for i := range p.stack {
		if p.stack[i].codePage == old {
			p.stack[i].codePage = cp
		}
	}
}

// consumeFallback swallows one character of the ANSI fallback that follows a \u escape.
func (p *rtfParser) consumeFallback() bool {
	if p.skipN > 0 {
		p.skipN--
		return true
	}
	return false
}

func (p *rtfParser) visible() bool {
	return p.cur.dest == destBody || p.cur.dest == destSupplementary
}

func (p *rtfParser) out() *strings.Builder {
	if p.cur.dest == destSupplementary {
		return p.supp[p.cur.suppIndex]
	}
	return &p.body
}

func (p *rtfParser) addByte(b byte) {
	if !p.visible() {
		return
	}
	if len(p.pending) > 0 && p.pendCP != p.cur.codePage {
		p.flush()
	}
	p.pendCP = p.cur.codePage
	p.pending = append(p.pending, b)
}

func (p *rtfParser) addRune(r rune) {
	if !p.visible() {
		return
	}
	p.flushBytes()
	switch {
	case r >= 0xD800 && r < 0xDC00:
		p.flushHigh()
		p.high = r
		return
	case r >= 0xDC00 && r < 0xE000 && p.high != 0:
		r = utf16.DecodeRune(p.high, r)
		p.high = 0
	default:
		p.flushHigh()
	}
	p.out().WriteRune(r)
}

func (p *rtfParser) emit(s string) {
	if !p.visible() {
		return
	}
	p.flush()
	p.out().WriteString(s)
}

func (p *rtfParser) flush() {
	p.flushHigh()
	p.flushBytes()
}

// flushHigh writes a replacement character for a high surrogate that never got its pair.
func (p *rtfParser) flushHigh() {
	if p.high != 0 {
		p.high = 0
		p.out().WriteRune('\uFFFD')
	}
}

// flushBytes decodes pending bytes with the code page they were collected under.
func (p *rtfParser) flushBytes() {
	if len(p.pending) == 0 {
		return
	}
	enc := codePageEncoding(p.pendCP)
	if enc == nil {
		enc = charmap.Windows1252
	}
	decoded, err := enc.NewDecoder().Bytes(p.pending)
	if err != nil {
		decoded = bytes.ToValidUTF8(p.pending, []byte("\uFFFD"))
	}
	p.out().Write(decoded)
	p.pending = p.pending[:0]
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isASCIIDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func unhexByte(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return -1
	}
}
