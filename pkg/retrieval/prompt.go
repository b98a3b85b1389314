package retrieval

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/easyops/contextengine-go/pkg/domain"
)

// selectorInstruction 模型挑选阶段的系统指令
const selectorInstruction = `你是数据检索助手，负责判断下面列出的数据条目中哪些与用户的问题相关。
- 用户直接点名某个文件（例如“分析 voice_123”）时，选中它；
- 用户隐含地指代某个文件（例如“那份合同”“刚上传的录音”“最后一个文件”）时，根据类型、名称和先后选出最合理的条目；
- 用户只是泛泛提问、没有指向任何具体数据（例如“怎么回复”）时，返回空列表。
只输出 JSON：{"relevant_ids": [id1, id2]}`

// noName 条目没有任何名称时的占位
const noName = "No Name"

// candidateLine 候选条目的一行描述：ID | 类型 | 名称 | 摘要
func candidateLine(e domain.DataEntry, name string, snippetChars int) string {
	return fmt.Sprintf("ID: %d | Type: %s | Name: %s | Content Snippet: %s...",
		e.ID, e.Kind, name, snippet(e.Text(), snippetChars))
}

func snippet(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// selectorInput 模型挑选阶段的用户输入
func selectorInput(query string, lines []string) string {
	return fmt.Sprintf("User Query: %s\n\nAvailable Data Entries:\n%s", query, strings.Join(lines, "\n"))
}
