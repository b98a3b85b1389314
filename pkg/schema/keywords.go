package schema

import "strings"

// InfoKeywords 索取原始资料的常见说法
var InfoKeywords = []string{
	"基本信息", "客户信息", "档案", "资料", "表格", "字段",
	"记录", "查看", "列出", "展示", "有哪些", "查询",
}

// AnalysisTriggers 画像、分析类触发词
//
// 命中任一词时查询需要完整记录集，而不是原始数据罗列。
var AnalysisTriggers = []string{
	"总结", "分析", "判断", "建议", "画像", "风险",
	"推进", "成交", "评估", "研判",
}

// ProfileFieldNames 档案基本字段的叫法
var ProfileFieldNames = []string{
	"姓名", "名字", "联系方式", "电话", "手机", "微信", "邮箱",
	"阶段", "风险偏好", "摘要",
}

// FillerWords 模糊匹配前从查询中去掉的中文填充词，较长的词在前
var FillerWords = []string{
	"帮我看一下", "帮我看看", "帮我查一下", "帮我查查",
	"请帮我", "麻烦你", "看一下", "查一下", "找一下", "给我看",
	"有哪些", "是什么", "是多少", "多少个",
	"帮我", "帮忙", "麻烦", "给我", "看看", "查查", "查询", "查看",
	"列出", "展示", "显示", "一下", "这个", "那个", "这些", "那些",
	"这张", "那张", "里面", "里的", "中的", "所有", "全部", "一共",
	"请", "的", "了", "吗", "呢", "吧", "啊",
}

// EnglishFillers 英文填充词，只按完整单词去掉
var EnglishFillers = map[string]bool{
	"please": true, "show": true, "me": true, "the": true, "list": true, "all": true,
}

// HasAnalysisTrigger 查询是否包含画像/分析触发词
func HasAnalysisTrigger(query string) bool {
	return containsAny(query, AnalysisTriggers)
}

// HasInfoPhrase 查询是否包含索取资料的说法
func HasInfoPhrase(query string) bool {
	return containsAny(query, InfoKeywords)
}

// MentionsProfileField 查询是否提到档案基本字段
func MentionsProfileField(query string) bool {
	return containsAny(query, ProfileFieldNames)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
