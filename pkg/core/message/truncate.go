package message

import "unicode/utf8"

// TruncationMarker 内容被截断时追加的标记
const TruncationMarker = "\n...(内容过长，已截断)"

// Truncate 按字符数截断文本，超出 limit 时保留前 limit 个字符并追加截断标记
//
// limit <= 0 表示不限制。
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + TruncationMarker
}
