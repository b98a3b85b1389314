package storage

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/easyops/contextengine-go/pkg/domain"
)

// AliasEntry 别名文件中的一条记录
type AliasEntry struct {
	// Token 表格 token 或链接
	Token string `yaml:"token"`
	// Name 展示名称
	Name string `yaml:"name"`
	// ProviderID 数据源配置 ID，0 表示适用于所有数据源
	ProviderID int64 `yaml:"provider_id"`
}

// aliasFile 别名文件结构
type aliasFile struct {
	Aliases []AliasEntry `yaml:"aliases"`
}

// StaticAliases 静态表格别名
type StaticAliases struct {
	byKey map[aliasKey]string
}

// NewStaticAliases 从记录创建静态别名
func NewStaticAliases(entries ...AliasEntry) *StaticAliases {
	s := &StaticAliases{byKey: make(map[aliasKey]string, len(entries))}
	for _, e := range entries {
		if e.Token == "" || e.Name == "" {
			continue
		}
		s.byKey[aliasKey{e.ProviderID, domain.CleanSourceToken(e.Token)}] = e.Name
	}
	return s
}

// LoadAliasFile 从 YAML 文件加载别名
//
// 文件格式:
//
//	aliases:
//	  - token: tblQ3assets
//	    name: Q3 Assets
//	    provider_id: 3
func LoadAliasFile(path string) (*StaticAliases, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alias file: %w", err)
	}

	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse alias file: %w", err)
	}
	return NewStaticAliases(f.Aliases...), nil
}

// Len 返回别名数量
func (s *StaticAliases) Len() int {
	return len(s.byKey)
}

// ResolveTableAlias 查找别名：先精确匹配数据源，再匹配通配
func (s *StaticAliases) ResolveTableAlias(ctx context.Context, token string, providerConfigID int64) (string, bool) {
	token = domain.CleanSourceToken(token)
	if name, ok := s.byKey[aliasKey{providerConfigID, token}]; ok {
		return name, true
	}
	name, ok := s.byKey[aliasKey{0, token}]
	return name, ok
}

// ChainResolver 按顺序查询多个别名来源，返回第一个命中
type ChainResolver []AliasResolver

// ResolveTableAlias 实现 AliasResolver
func (c ChainResolver) ResolveTableAlias(ctx context.Context, token string, providerConfigID int64) (string, bool) {
	for _, r := range c {
		if r == nil {
			continue
		}
		if name, ok := r.ResolveTableAlias(ctx, token, providerConfigID); ok {
			return name, true
		}
	}
	return "", false
}

// compile-time interface check
var (
	_ AliasResolver = (*StaticAliases)(nil)
	_ AliasResolver = ChainResolver(nil)
)
