package extract

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf16"

	"github.com/richardlehane/mscfb"
	"golang.org/x/text/encoding/charmap"
)

// Word 97-2003 binary format. Text lives in the WordDocument stream, scattered in pieces
// described by the piece table (Clx) stored in the 0Table or 1Table stream.
const (
	fibIdent        = 0xA5EC
	fibFlagsOffset  = 0x0A
	fibBaseSize     = 32
	flagEncrypted   = 0x0100
	flagWhichTable  = 0x0200
	flagObfuscated  = 0x8000
	ccpTextIndex    = 3  // FibRgLw97.ccpText
	clxPairIndex    = 33 // FibRgFcLcb97.fcClx/lcbClx
	clxPrc          = 0x01
	clxPcdt         = 0x02
	pcdSize         = 8
	fcCompressedBit = 0x40000000
	fcMask          = 0x3FFFFFFF
)

// Character positions after the main text, in the order Word stores them (FibRgLw97 indices).
var docStories = []struct {
	index int
	keep  bool
}{
	{4, true},  // footnotes
	{5, true},  // headers and footers
	{6, false}, // macro text, unused
	{7, false}, // comments
	{8, true},  // endnotes
	{9, true},  // text boxes
	{10, true}, // header text boxes
}

// extractDOC reads the OLE container and returns body paragraphs followed by the other stories.
func extractDOC(content []byte) ([]string, error) {
	doc, err := mscfb.New(bytes.NewReader(content))
	if err != nil {
		return nil, corrupt("doc", err)
	}
	streams := make(map[string][]byte, 3)
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if len(entry.Path) > 0 {
			// Embedded objects carry their own WordDocument streams.
			continue
		}
		switch entry.Name {
		case "WordDocument", "0Table", "1Table":
		default:
			continue
		}
		if entry.Size > maxPartBytes {
			return nil, corruptf("doc", "%s stream is larger than %d bytes", entry.Name, maxPartBytes)
		}
		buf, err := io.ReadAll(io.LimitReader(entry, maxPartBytes+1))
		if err != nil {
			return nil, corrupt("doc", fmt.Errorf("read %s: %w", entry.Name, err))
		}
		streams[entry.Name] = buf
	}

	wordDoc, ok := streams["WordDocument"]
	if !ok {
		return nil, corruptf("doc", "no WordDocument stream")
	}
	tableName := "0Table"
	if len(wordDoc) >= fibFlagsOffset+2 && binary.LittleEndian.Uint16(wordDoc[fibFlagsOffset:])&flagWhichTable != 0 {
		tableName = "1Table"
	}
	table, ok := streams[tableName]
	if !ok {
		return nil, corruptf("doc", "no %s stream", tableName)
	}
	fragments, err := decodeWordStreams(wordDoc, table)
	if err != nil {
		return nil, corrupt("doc", err)
	}
	return fragments, nil
}

// decodeWordStreams parses the FIB and piece table and returns the paragraphs of each kept story.
func decodeWordStreams(wordDoc, table []byte) ([]string, error) {
	fib, err := parseFIB(wordDoc)
	if err != nil {
		return nil, err
	}
	if fib.clxOffset+fib.clxSize > uint64(len(table)) {
		return nil, fmt.Errorf("piece table at %d+%d lies outside the table stream", fib.clxOffset, fib.clxSize)
	}
	units, err := readPieces(wordDoc, table[fib.clxOffset:fib.clxOffset+fib.clxSize], fib.storyChars())
	if err != nil {
		return nil, err
	}

	var fragments []string
	start := 0
	story := func(n uint32) []uint16 {
		end := start + int(n)
		if end > len(units) {
			end = len(units)
		}
		if start > end {
			start = end
		}
		s := units[start:end]
		start = end
		return s
	}
	fragments = append(fragments, wordParagraphs(story(fib.ccp[ccpTextIndex]))...)
	for _, s := range docStories {
		text := story(fib.ccp[s.index])
		if s.keep {
			fragments = append(fragments, wordParagraphs(text)...)
		}
	}
	return fragments, nil
}

type fibInfo struct {
	ccp       []uint32
	clxOffset uint64
	clxSize   uint64
}

// storyChars is the number of character positions covered by the body and the stories after it.
func (f *fibInfo) storyChars() int {
	var n uint64
	for i := ccpTextIndex; i <= docStories[len(docStories)-1].index && i < len(f.ccp); i++ {
		n += uint64(f.ccp[i])
	}
	// Word counts one extra paragraph mark when any story follows the body.
	n++
	if n > uint64(maxPartBytes) {
		return maxPartBytes
	}
	return int(n)
}

func parseFIB(b []byte) (*fibInfo, error) {
	if len(b) < fibBaseSize+2 {
		return nil, errors.New("WordDocument stream too short for a FIB")
	}
	if binary.LittleEndian.Uint16(b) != fibIdent {
		return nil, fmt.Errorf("bad FIB identifier %#04x", binary.LittleEndian.Uint16(b))
	}
	flags := binary.LittleEndian.Uint16(b[fibFlagsOffset:])
	if flags&flagEncrypted != 0 || flags&flagObfuscated != 0 {
		return nil, errors.New("document is encrypted")
	}

	pos := fibBaseSize
	csw := int(binary.LittleEndian.Uint16(b[pos:]))
	pos += 2 + csw*2
	if pos+2 > len(b) {
		return nil, errors.New("FIB truncated in FibRgW")
	}
	cslw := int(binary.LittleEndian.Uint16(b[pos:]))
	pos += 2
	if cslw <= 10 || pos+cslw*4+2 > len(b) {
		return nil, errors.New("FIB truncated in FibRgLw")
	}
	info := &fibInfo{ccp: make([]uint32, cslw)}
	for i := range info.ccp {
		info.ccp[i] = binary.LittleEndian.Uint32(b[pos+i*4:])
	}
	pos += cslw * 4
	pairs := int(binary.LittleEndian.Uint16(b[pos:]))
	pos += 2
	if pairs <= clxPairIndex || pos+(clxPairIndex+1)*8 > len(b) {
		return nil, errors.New("FIB truncated in FibRgFcLcb")
	}
	at := pos + clxPairIndex*8
	info.clxOffset = uint64(binary.LittleEndian.Uint32(b[at:]))
	info.clxSize = uint64(binary.LittleEndian.Uint32(b[at+4:]))
	if info.clxSize == 0 {
		return nil, errors.New("document has no piece table")
	}
	return info, nil
}

// readPieces concatenates the pieces into UTF-16 code units, so that one unit is one character position.
// Decoding stops after limit units. Every character occupies at least one byte of the WordDocument
// stream, so a piece table covering more positions than the stream has bytes reuses bytes and is rejected.
func readPieces(wordDoc, clx []byte, limit int) ([]uint16, error) {
	i := 0
	for i < len(clx) && clx[i] == clxPrc {
		if i+3 > len(clx) {
			return nil, errors.New("truncated Prc in piece table")
		}
		cb := int(int16(binary.LittleEndian.Uint16(clx[i+1:])))
		if cb < 0 {
			return nil, errors.New("negative Prc size")
		}
		i += 3 + cb
	}
	if i+5 > len(clx) || clx[i] != clxPcdt {
		return nil, errors.New("piece table descriptor not found")
	}
	lcb := int(binary.LittleEndian.Uint32(clx[i+1:]))
	plc := clx[i+5:]
	if lcb < 4 || lcb > len(plc) || (lcb-4)%(4+pcdSize) != 0 {
		return nil, fmt.Errorf("bad piece table size %d", lcb)
	}
	plc = plc[:lcb]
	n := (lcb - 4) / (4 + pcdSize)
	pcds := plc[(n+1)*4:]

	if first := binary.LittleEndian.Uint32(plc); first != 0 {
		return nil, fmt.Errorf("piece table starts at character %d", first)
	}
	for k := 0; k < n; k++ {
		if binary.LittleEndian.Uint32(plc[(k+1)*4:]) < binary.LittleEndian.Uint32(plc[k*4:]) {
			return nil, fmt.Errorf("piece %d runs backwards", k)
		}
	}
	if total := uint64(binary.LittleEndian.Uint32(plc[n*4:])); total > uint64(len(wordDoc)) {
		return nil, fmt.Errorf("piece table covers %d characters but the WordDocument stream has %d bytes", total, len(wordDoc))
	}

	var units []uint16
	for k := 0; k < n && len(units) < limit; k++ {
		cpStart := binary.LittleEndian.Uint32(plc[k*4:])
		cpEnd := binary.LittleEndian.Uint32(plc[(k+1)*4:])
		count := int(cpEnd - cpStart)
		if rest := limit - len(units); count > rest {
			count = rest
		}
		fcRaw := binary.LittleEndian.Uint32(pcds[k*pcdSize+2:])
		fc := int(fcRaw & fcMask)
		if fcRaw&fcCompressedBit != 0 {
			off := fc / 2
			if off+count > len(wordDoc) {
				return nil, fmt.Errorf("piece %d lies outside the WordDocument stream", k)
			}
			for _, c := range wordDoc[off : off+count] {
				units = append(units, uint16(charmap.Windows1252.DecodeByte(c)))
			}
			continue
		}
		if fc+count*2 > len(wordDoc) {
			return nil, fmt.Errorf("piece %d lies outside the WordDocument stream", k)
		}
		for j := 0; j < count; j++ {
			units = append(units, binary.LittleEndian.Uint16(wordDoc[fc+j*2:]))
		}
	}
	return units, nil
}

// wordParagraphs decodes a story and splits it at paragraph marks. Field codes keep only their
// result text; cell marks become tabs; other control characters (pictures, note anchors) vanish.
func wordParagraphs(units []uint16) []string {
	if len(units) == 0 {
		return nil
	}
	var (
		paragraphs []string
		cur        strings.Builder
		// fields holds one entry per open field: true while still in its instruction part.
		fields []bool
	)
	inInstruction := func() bool {
		for _, instr := range fields {
			if instr {
				return true
			}
		}
		return false
	}
	for _, r := range utf16.Decode(units) {
		switch r {
		case 0x13:
			fields = append(fields, true)
			continue
		case 0x14:
			if len(fields) > 0 {
				fields[len(fields)-1] = false
			}
			continue
		case 0x15:
			if len(fields) > 0 {
				fields = fields[:len(fields)-1]
			}
			continue
		}
		if inInstruction() {
			continue
		}
		switch {
		case r == '\r':
			paragraphs = append(paragraphs, cur.String())
			cur.Reset()
		case r == 0x0B, r == 0x0C:
			cur.WriteByte('\n')
		case r == 0x07, r == '\t':
			cur.WriteByte('\t')
		case r == 0x1E:
			cur.WriteByte('-')
		case r < 0x20:
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		paragraphs = append(paragraphs, cur.String())
	}
	return paragraphs
}
