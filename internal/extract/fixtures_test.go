package extract

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
	"testing"
	"unicode/utf16"
)

// buildPDF returns a minimal PDF with one page per entry. An empty entry yields a page without
// a content stream, like a scanned page.
func buildPDF(pages ...string) []byte {
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")

	// Objects: 1 catalog, 2 page tree, 3 font, then a page and its content stream per page.
	n := 3 + 2*len(pages)
	offsets := make([]int, n+1)

	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = strconv.Itoa(4+2*i) + " 0 R"
	}
	offsets[2] = b.Len()
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [" + strings.Join(kids, " ") + "] /Count " + strconv.Itoa(len(pages)) + " >>\nendobj\n")

	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	for i, text := range pages {
		pageObj, contentObj := 4+2*i, 5+2*i
		offsets[pageObj] = b.Len()
		b.WriteString(strconv.Itoa(pageObj) + " 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >>")
		if text != "" {
			b.WriteString(" /Contents " + strconv.Itoa(contentObj) + " 0 R")
		}
		b.WriteString(" >>\nendobj\n")

		escaped := strings.ReplaceAll(text, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, "(", `\(`)
		escaped = strings.ReplaceAll(escaped, ")", `\)`)
		stream := "BT\n/F1 12 Tf\n72 720 Td\n(" + escaped + ") Tj\nET"
		offsets[contentObj] = b.Len()
		b.WriteString(strconv.Itoa(contentObj) + " 0 obj\n<< /Length " + strconv.Itoa(len(stream)) + " >>\nstream\n")
		b.WriteString(stream)
		b.WriteString("\nendstream\nendobj\n")
	}

	xrefOffset := b.Len()
	b.WriteString("xref\n0 " + strconv.Itoa(n+1) + "\n")
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i <= n; i++ {
		b.WriteString(padOffset(offsets[i]))
		b.WriteString(" 00000 n \n")
	}
	b.WriteString("trailer\n<< /Size " + strconv.Itoa(n+1) + " /Root 1 0 R >>\nstartxref\n")
	b.WriteString(strconv.Itoa(xrefOffset))
	b.WriteString("\n%%EOF\n")
	return []byte(b.String())
}

func padOffset(n int) string {
	s := strconv.Itoa(n)
	return strings.Repeat("0", 10-len(s)) + s
}

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

// wordXML wraps body content in a w:document root.
func wordXML(body string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?><w:document ` + wordNS + `><w:body>` + body + `</w:body></w:document>`
}

// para builds a paragraph with one run per argument.
func para(runs ...string) string {
	var b strings.Builder
	b.WriteString("<w:p>")
	for _, r := range runs {
		b.WriteString("<w:r><w:t xml:space=\"preserve\">" + r + "</w:t></w:r>")
	}
	b.WriteString("</w:p>")
	return b.String()
}

type zipPart struct {
	name, body string
}

func buildZip(t *testing.T, parts ...zipPart) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, p := range parts {
		fw, err := w.Create(p.name)
		if err != nil {
			t.Fatalf("zip create %s: %v", p.name, err)
		}
		if _, err := fw.Write([]byte(p.body)); err != nil {
			t.Fatalf("zip write %s: %v", p.name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// minimalDocx returns a .docx with the given body XML at word/document.xml and no content types.
func minimalDocx(t *testing.T, body string) []byte {
	t.Helper()
	return buildZip(t, zipPart{"word/document.xml", wordXML(body)})
}

// wordPiece is one run of characters in a synthetic .doc piece table.
type wordPiece struct {
	text       string
	compressed bool
}

// buildWordStreams lays out a WordDocument stream and a table stream holding a piece table.
// stories gives the character count of each story in FibRgLw97 order starting at ccpText.
func buildWordStreams(flags uint16, pieces []wordPiece, stories ...uint32) (wordDoc, table []byte) {
	wordDoc = make([]byte, 4096)
	binary.LittleEndian.PutUint16(wordDoc[0:], fibIdent)
	binary.LittleEndian.PutUint16(wordDoc[2:], 0x00C1)
	binary.LittleEndian.PutUint16(wordDoc[fibFlagsOffset:], flags)

	pos := fibBaseSize
	binary.LittleEndian.PutUint16(wordDoc[pos:], 14)
	pos += 2 + 14*2
	binary.LittleEndian.PutUint16(wordDoc[pos:], 22)
	pos += 2
	for i, n := range stories {
		binary.LittleEndian.PutUint32(wordDoc[pos+(ccpTextIndex+i)*4:], n)
	}
	pos += 22 * 4
	binary.LittleEndian.PutUint16(wordDoc[pos:], 93)

	// Piece text goes after the FIB.
	var cps []uint32
	var fcs []uint32
	cp, off := uint32(0), 1024
	cps = append(cps, 0)
	for _, p := range pieces {
		if p.compressed {
			copy(wordDoc[off:], p.text)
			fcs = append(fcs, uint32(off*2)|fcCompressedBit)
			cp += uint32(len(p.text))
			off += len(p.text)
		} else {
			units := utf16.Encode([]rune(p.text))
			fcs = append(fcs, uint32(off))
			for _, u := range units {
				binary.LittleEndian.PutUint16(wordDoc[off:], u)
				off += 2
			}
			cp += uint32(len(units))
		}
		cps = append(cps, cp)
	}

	table = make([]byte, 4096)
	setPieceTable(wordDoc, table, cps, fcs)
	return wordDoc, table
}

// setPieceTable writes a Clx with the given character positions and piece offsets at the start
// of table and points the FIB in wordDoc at it.
func setPieceTable(wordDoc, table []byte, cps, fcs []uint32) {
	var plc bytes.Buffer
	for _, c := range cps {
		_ = binary.Write(&plc, binary.LittleEndian, c)
	}
	for _, fc := range fcs {
		pcd := make([]byte, pcdSize)
		binary.LittleEndian.PutUint32(pcd[2:], fc)
		plc.Write(pcd)
	}
	var clx bytes.Buffer
	clx.Write([]byte{clxPrc, 2, 0, 0xAA, 0xBB}) // one Prc with two bytes of grpprl
	clx.WriteByte(clxPcdt)
	_ = binary.Write(&clx, binary.LittleEndian, uint32(plc.Len()))
	clx.Write(plc.Bytes())
	copy(table, clx.Bytes())

	clxAt := fibBaseSize + 2 + 14*2 + 2 + 22*4 + 2 + clxPairIndex*8
	binary.LittleEndian.PutUint32(wordDoc[clxAt:], 0)
	binary.LittleEndian.PutUint32(wordDoc[clxAt+4:], uint32(clx.Len()))
}

type cfbStream struct {
	name string
	data []byte
}

// buildCFB writes a version 3 compound file with the streams at the root. Each stream must be at
// least 4096 bytes so it lives in regular sectors.
func buildCFB(t *testing.T, streams ...cfbStream) []byte {
	t.Helper()
	const (
		sector     = 512
		endOfChain = 0xFFFFFFFE
		freeSect   = 0xFFFFFFFF
		fatSect    = 0xFFFFFFFD
		noStream   = 0xFFFFFFFF
	)
	if len(streams) > 3 {
		t.Fatalf("buildCFB supports at most 3 streams")
	}

	header := make([]byte, sector)
	copy(header, oleMagic)
	binary.LittleEndian.PutUint16(header[0x18:], 0x003E)
	binary.LittleEndian.PutUint16(header[0x1A:], 0x0003)
	binary.LittleEndian.PutUint16(header[0x1C:], 0xFFFE)
	binary.LittleEndian.PutUint16(header[0x1E:], 0x0009)
	binary.LittleEndian.PutUint16(header[0x20:], 0x0006)
	binary.LittleEndian.PutUint32(header[0x2C:], 1) // FAT sectors
	binary.LittleEndian.PutUint32(header[0x30:], 1) // directory sector
	binary.LittleEndian.PutUint32(header[0x38:], 4096)
	binary.LittleEndian.PutUint32(header[0x3C:], endOfChain)
	binary.LittleEndian.PutUint32(header[0x44:], endOfChain)
	binary.LittleEndian.PutUint32(header[0x4C:], 0)
	for i := 1; i < 109; i++ {
		binary.LittleEndian.PutUint32(header[0x4C+i*4:], freeSect)
	}

	fat := make([]uint32, sector/4)
	for i := range fat {
		fat[i] = freeSect
	}
	fat[0] = fatSect
	fat[1] = endOfChain

	dir := make([]byte, sector)
	writeEntry := func(i int, name string, typ byte, left, right, child, start uint32, size int) {
		e := dir[i*128:]
		units := utf16.Encode([]rune(name))
		for j, u := range units {
			binary.LittleEndian.PutUint16(e[j*2:], u)
		}
		binary.LittleEndian.PutUint16(e[64:], uint16((len(units)+1)*2))
		e[66] = typ
		e[67] = 1
		binary.LittleEndian.PutUint32(e[68:], left)
		binary.LittleEndian.PutUint32(e[72:], right)
		binary.LittleEndian.PutUint32(e[76:], child)
		binary.LittleEndian.PutUint32(e[116:], start)
		binary.LittleEndian.PutUint32(e[120:], uint32(size))
	}
	writeEntry(0, "Root Entry", 5, noStream, noStream, 1, endOfChain, 0)

	var body bytes.Buffer
	next := uint32(2)
	for i, s := range streams {
		if len(s.data) < 4096 {
			t.Fatalf("stream %s is shorter than 4096 bytes", s.name)
		}
		data := s.data
		if rem := len(data) % sector; rem != 0 {
			data = append(data[:len(data):len(data)], make([]byte, sector-rem)...)
		}
		count := uint32(len(data) / sector)
		if int(next+count) > len(fat) {
			t.Fatalf("streams too large for a single FAT sector")
		}
		for j := uint32(0); j < count; j++ {
			if j == count-1 {
				fat[next+j] = endOfChain
			} else {
				fat[next+j] = next + j + 1
			}
		}
		right := uint32(noStream)
		if i < len(streams)-1 {
			right = uint32(i + 2)
		}
		writeEntry(i+1, s.name, 2, noStream, right, noStream, next, len(s.data))
		body.Write(data)
		next += count
	}

	var out bytes.Buffer
	out.Write(header)
	for _, v := range fat {
		_ = binary.Write(&out, binary.LittleEndian, v)
	}
	out.Write(dir)
	out.Write(body.Bytes())
	return out.Bytes()
}
