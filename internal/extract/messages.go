package extract

import "fmt"

// Locale selects the language of ParseError messages.
type Locale string

const (
	LocaleEN Locale = "en"
	LocaleZH Locale = "zh"
)

type messageID int

const (
	msgEmptyPath messageID = iota
	msgEmptyFile
	msgReadFailed
	msgNotRegular
	msgTooLarge
	msgUnsupportedExt
	msgContentMismatch
	msgNoExtractor
	msgCorrupt
)

var catalog = map[Locale]map[messageID]string{
	LocaleEN: {
		msgEmptyPath:       "no file given",
		msgEmptyFile:       "file %s is empty",
		msgReadFailed:      "cannot read %s",
		msgNotRegular:      "cannot read %s: not a regular file",
		msgTooLarge:        "unsupported input: %s is larger than %d bytes",
		msgUnsupportedExt:  "unsupported file format %q",
		msgContentMismatch: "unsupported file format: %s does not look like a %s file (detected %s)",
		msgNoExtractor:     "unsupported file format %q: no extractor for %s",
		msgCorrupt:         "%s is damaged or not a valid %s file: %v",
	},
	LocaleZH: {
		msgEmptyPath:       "未指定文件",
		msgEmptyFile:       "文件 %s 为空",
		msgReadFailed:      "无法读取 %s",
		msgNotRegular:      "无法读取 %s：不是普通文件",
		msgTooLarge:        "不支持的输入：%s 超过 %d 字节",
		msgUnsupportedExt:  "不支持的文件格式 %q",
		msgContentMismatch: "不支持的文件格式：%s 的内容与 %s 不符（检测为 %s）",
		msgNoExtractor:     "不支持的文件格式 %q：%s 暂无解析器",
		msgCorrupt:         "%s 已损坏或不是有效的 %s 文件：%v",
	},
}

func (l Locale) format(id messageID, args ...any) string {
	table, ok := catalog[l]
	if !ok {
		table = catalog[LocaleEN]
	}
	return fmt.Sprintf(table[id], args...)
}
