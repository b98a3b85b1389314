package engine

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/easyops/contextengine-go/pkg/domain"
)

var (
	mentionByNumber = regexp.MustCompile(`(?i)(?:客户|customer)\s*[【\[(#（]?\s*(\d{1,8})\s*[】\])#）]?`)
	mentionByName   = regexp.MustCompile(`(?i)(?:客户|customer)\s*[【\[(#（]?\s*([^\s，。,.!?！？:：;；]{1,32})`)
	nameSuffix      = regexp.MustCompile(`(?:的|进行|一下|一份|一下子)$`)
)

// mentionPrefix 匹配查询开头 "请帮我分析客户【x】号" 一类的前缀
func mentionPrefix(token string, allowHao bool) *regexp.Regexp {
	pattern := `(?i)^\s*(?:请\s*)?(?:帮我\s*)?(?:分析|看看|总结|评估|生成|帮我分析|帮我看看)?\s*(?:客户|customer)\s*[【\[(#（]?\s*` +
		regexp.QuoteMeta(token) + `\s*[】\])#）]?\s*`
	if allowHao {
		pattern += `(?:号)?`
	}
	return regexp.MustCompile(pattern)
}

func stripMention(text, token string, allowHao bool) string {
	cleaned := mentionPrefix(token, allowHao).ReplaceAllString(text, "")
	cleaned = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(cleaned), "，。,:：;；-—"))
	if cleaned == "" {
		return text
	}
	return cleaned
}

// ResolveEntity 从消息中识别提到的实体
//
// 支持 "客户 12"、"customer #12"、"客户【张三】" 等写法；数字先按名称查找再按 ID 查找。
// 找到时返回实体和去掉提及前缀后的查询，找不到时返回 nil 和原消息。
func (e *Engine) ResolveEntity(ctx context.Context, text string) (*domain.Entity, string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, text
	}

	entities, err := e.store.ListEntities(ctx)
	if err != nil {
		e.logger.Warn("list entities failed, mention ignored", "error", err)
		return nil, text
	}
	byName := func(name string) *domain.Entity {
		for i := range entities {
			if strings.TrimSpace(entities[i].Name) == name {
				return &entities[i]
			}
		}
		return nil
	}

	if m := mentionByNumber.FindStringSubmatch(text); m != nil {
		num := m[1]
		found := byName(num)
		if found == nil {
			if id, err := strconv.ParseInt(num, 10, 64); err == nil {
				if ent, err := e.store.GetEntity(ctx, id); err == nil {
					found = ent
				}
			}
		}
		if found != nil {
			return found, stripMention(text, num, true)
		}
	}

	m := mentionByName.FindStringSubmatch(text)
	if m == nil {
		return nil, text
	}
	candidate := strings.Trim(strings.TrimSpace(m[1]), "】]#）)")
	candidate = nameSuffix.ReplaceAllString(candidate, "")
	if candidate == "" {
		return nil, text
	}

	found := byName(candidate)
	if found == nil {
		// 名称后面紧跟其他文字时，退回到最长的包含在消息中的名称
		sorted := make([]int, len(entities))
		for i := range sorted {
			sorted[i] = i
		}
		sort.SliceStable(sorted, func(a, b int) bool {
			return len([]rune(entities[sorted[a]].Name)) > len([]rune(entities[sorted[b]].Name))
		})
		for _, i := range sorted {
			if n := strings.TrimSpace(entities[i].Name); n != "" && strings.Contains(text, n) {
				found = &entities[i]
				candidate = n
				break
			}
		}
	}
	if found == nil {
		return nil, text
	}
	return found, stripMention(text, candidate, false)
}
