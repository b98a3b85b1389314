package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/easyops/contextengine-go/pkg/core/message"
	"github.com/easyops/contextengine-go/pkg/domain"
)

const (
	// MaxStructuredRunes 结构化回复的最大字符数
	MaxStructuredRunes = 50000
	// noDataReply 实体没有任何档案和导入数据时的回复
	noDataReply = "暂无可展示的客户资料。"
)

type tableRows struct {
	name string
	rows []domain.ImportedRow
}

// BuildStructuredResponse 以纯文本罗列实体档案和导入的表格数据
//
// 查询命中表或字段时只展示命中的表；命中字段时每行只保留命中的字段。
// 唯一返回的错误是 errors.ErrEntityNotFound，其余存储失败按无数据处理。
func (m *Matcher) BuildStructuredResponse(ctx context.Context, entityID int64, query string) (string, error) {
	entity, err := m.entities.GetEntity(ctx, entityID)
	if err != nil {
		return "", err
	}

	entries, err := m.entities.ListDataEntries(ctx, entityID)
	if err != nil {
		m.logger.Warn("list data entries failed, structured response falls back to profile only",
			"entity_id", entityID, "error", err)
		entries = nil
	}

	tables := m.groupTables(ctx, entries)
	s := SchemaFromEntries(ctx, m.resolver, entries)
	res := MatchSchema(s, query)

	var b strings.Builder
	if facts := entity.ProfileFacts(); len(facts) > 0 {
		b.WriteString("客户档案：\n")
		for _, f := range facts {
			fmt.Fprintf(&b, "%s：%s\n", f.Label, f.Value)
		}
	}

	selected := tables
	if res.HasHit() {
		keep := make(map[string]bool)
		for _, t := range res.Tables() {
			keep[t] = true
		}
		selected = selected[:0:0]
		for _, t := range tables {
			if keep[t.name] {
				selected = append(selected, t)
			}
		}
	}

	var fieldFilter map[string]bool
	if len(res.MatchedFields) > 0 {
		fieldFilter = make(map[string]bool, len(res.MatchedFields))
		for _, f := range res.MatchedFields {
			fieldFilter[f] = true
		}
	}

	for _, t := range selected {
		body := renderTable(t, fieldFilter, explicitOrFuzzy(res, t.name))
		if body == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(body)
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return noDataReply, nil
	}
	return message.Truncate(out, MaxStructuredRunes), nil
}

func (m *Matcher) groupTables(ctx context.Context, entries []domain.DataEntry) []tableRows {
	var out []tableRows
	index := make(map[string]int)
	for _, e := range domain.Chronological(entries) {
		row, ok := e.ImportedRow()
		if !ok {
			continue
		}
		name := m.resolver.Resolve(ctx, row)
		i, seen := index[name]
		if !seen {
			i = len(out)
			index[name] = i
			out = append(out, tableRows{name: name})
		}
		out[i].rows = append(out[i].rows, row)
	}
	return out
}

// explicitOrFuzzy 表名本身被命中时展示整行
func explicitOrFuzzy(res *MatchResult, table string) bool {
	for _, list := range [][]string{res.ExplicitTables, res.FuzzyTables} {
		for _, t := range list {
			if t == table {
				return true
			}
		}
	}
	return false
}

func renderTable(t tableRows, fieldFilter map[string]bool, wholeRow bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "表格：%s（共 %d 条）\n", t.name, len(t.rows))
	written := 0
	for i, row := range t.rows {
		parts := make([]string, 0, len(row.Fields))
		for _, f := range row.OrderedFields() {
			if !wholeRow && fieldFilter != nil && !fieldFilter[f] {
				continue
			}
			v := strings.TrimSpace(row.Fields[f])
			if v == "" {
				continue
			}
			parts = append(parts, f+"："+v)
		}
		if len(parts) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.Join(parts, "；"))
		written++
	}
	if written == 0 {
		return ""
	}
	return b.String()
}
