package schema

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// extraStripped 除标点和空白外还需要去掉的符号
const extraStripped = "|~^+=<>$`￥｜～＋＝＜＞"

// Normalize 去掉空白、中英文标点和括号，ASCII 字母转小写
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsSpace(r), unicode.IsPunct(r):
			continue
		case strings.ContainsRune(extraStripped, r):
			continue
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Core 返回去掉填充词后的规范化查询核心
//
// 英文填充词在规范化之前按完整单词去掉，"small" 里的 "all" 不受影响；
// 中文没有词边界，填充词按子串去掉。
func Core(query string) string {
	core := Normalize(dropEnglishFillers(query))
	for _, w := range FillerWords {
		core = strings.ReplaceAll(core, w, "")
	}
	return core
}

// dropEnglishFillers 去掉连续 ASCII 字母构成的填充词
func dropEnglishFillers(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	start := -1
	flush := func(end int) {
		if word := s[start:end]; !EnglishFillers[strings.ToLower(word)] {
			b.WriteString(word)
		}
		start = -1
	}
	for i, r := range s {
		if isASCIILetter(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			flush(i)
		}
		b.WriteRune(r)
	}
	if start >= 0 {
		flush(len(s))
	}
	return b.String()
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// minCoreRunes 模糊匹配要求的最少字符数
const minCoreRunes = 2

// fuzzyContains 查询核心足够长并且是 target 的子串
func fuzzyContains(target, core string) bool {
	return utf8.RuneCountInString(core) >= minCoreRunes && strings.Contains(target, core)
}

// literalContains 非空的 needle 是 haystack 的子串
func literalContains(haystack, needle string) bool {
	return needle != "" && strings.Contains(haystack, needle)
}
