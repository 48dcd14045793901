package extract

import "unicode"

var detectableScripts = []struct {
	name  string
	table *unicode.RangeTable
}{
	{"Han", unicode.Han},
	{"Hiragana", unicode.Hiragana},
	{"Katakana", unicode.Katakana},
	{"Hangul", unicode.Hangul},
	{"Latin", unicode.Latin},
	{"Cyrillic", unicode.Cyrillic},
	{"Arabic", unicode.Arabic},
	{"Greek", unicode.Greek},
	{"Hebrew", unicode.Hebrew},
	{"Thai", unicode.Thai},
	{"Devanagari", unicode.Devanagari},
}

// DominantScript names the writing system with the most letters in text, or "" when it has none.
// Ties go to the script listed first above.
func DominantScript(text string) string {
	counts := make([]int, len(detectableScripts))
	for _, r := range text {
		if r < 0x80 {
			if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') {
				counts[4]++
			}
			continue
		}
		for i, s := range detectableScripts {
			if unicode.Is(s.table, r) {
				counts[i]++
				break
			}
		}
	}
	best, bestCount := "", 0
	for i, c := range counts {
		if c > bestCount {
			best, bestCount = detectableScripts[i].name, c
		}
	}
	return best
}
