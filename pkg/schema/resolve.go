package schema

import (
	"context"
	"regexp"
	"strings"

	"github.com/easyops/contextengine-go/pkg/domain"
	"github.com/easyops/contextengine-go/pkg/storage"
)

// UnnamedTable 无法解析出任何名称时使用的表名
const UnnamedTable = "未命名表格"

var (
	prefixedIDRe = regexp.MustCompile(`(?i)^(tbl|shtcn|bascn|shtrg|doxcn|wikcn)[A-Za-z0-9]{6,}$`)
	mixedTokenRe = regexp.MustCompile(`^[A-Za-z0-9_\-]{12,}$`)
	hasLetterRe  = regexp.MustCompile(`[A-Za-z]`)
	hasDigitRe   = regexp.MustCompile(`[0-9]`)
)

// IsInternalID 判断字符串是否像内部表格标识而不是人可读的名称
func IsInternalID(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if prefixedIDRe.MatchString(s) {
		return true
	}
	return mixedTokenRe.MatchString(s) && hasLetterRe.MatchString(s) && hasDigitRe.MatchString(s)
}

// TableResolver 解析导入行所属表格的展示名称
//
// 顺序：配置的别名 → 导入时记录的名称 → 原始 token。
// 内部标识只在没有其他候选时才会被使用。
type TableResolver struct {
	aliases storage.AliasResolver
}

// NewTableResolver 创建表名解析器，aliases 可以为 nil
func NewTableResolver(aliases storage.AliasResolver) *TableResolver {
	return &TableResolver{aliases: aliases}
}

// Resolve 返回导入行的表名
func (r *TableResolver) Resolve(ctx context.Context, row domain.ImportedRow) string {
	token := strings.TrimSpace(row.SourceToken)
	name := strings.TrimSpace(row.SourceName)

	if r != nil && r.aliases != nil {
		for _, key := range []string{token, name} {
			if key == "" {
				continue
			}
			if alias, ok := r.aliases.ResolveTableAlias(ctx, key, row.ProviderConfigID); ok && strings.TrimSpace(alias) != "" {
				return strings.TrimSpace(alias)
			}
		}
	}

	candidates := []string{name, token}
	for _, c := range candidates {
		if c != "" && !IsInternalID(c) {
			return c
		}
	}
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return UnnamedTable
}
