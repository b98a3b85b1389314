package context

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/easyops/contextengine-go/pkg/core/message"
	"github.com/easyops/contextengine-go/pkg/domain"
	"github.com/easyops/contextengine-go/pkg/knowledge"
	"github.com/easyops/contextengine-go/pkg/storage"
)

// recentLogEntryCap 对话流水中单条消息的字符上限
const recentLogEntryCap = 2000

// KnowledgeSearcher 知识检索接口，知识库索引与话术库都实现它。
type KnowledgeSearcher interface {
	// Search 返回最多 k 条命中，失败时返回空。
	Search(ctx context.Context, query string, k int) []knowledge.Hit
}

// EntrySelector 检索选择器接口。
type EntrySelector interface {
	// Select 返回与查询相关的数据条目渲染文本，失败时返回空字符串。
	Select(ctx context.Context, entityID int64, query string) string
}

// Gatherer 定义收集单个上下文块的接口。
type Gatherer interface {
	// Gather 收集上下文块，没有内容时返回 nil。
	Gather(ctx context.Context, input *GatherInput) (*Packet, error)
}

// GatherInput 包含收集上下文的输入数据。
type GatherInput struct {
	// Entity 已确认存在的实体。
	Entity *domain.Entity

	// Query 当前查询。
	Query string

	// ExtraKnowledge 调用方附加的知识片段。
	ExtraKnowledge []string

	// Config 组装配置。
	Config *Config
}

// ProfileGatherer 收集实体档案事实。
type ProfileGatherer struct{}

// NewProfileGatherer 创建新的 ProfileGatherer。
func NewProfileGatherer() *ProfileGatherer {
	return &ProfileGatherer{}
}

// Gather 收集档案事实，每行一条 "字段：值"。
func (g *ProfileGatherer) Gather(_ context.Context, input *GatherInput) (*Packet, error) {
	facts := input.Entity.ProfileFacts()
	if len(facts) == 0 {
		return nil, nil
	}
	lines := make([]string, 0, len(facts))
	for _, f := range facts {
		lines = append(lines, f.Label+"："+f.Value)
	}
	return NewPacket(PacketTypeProfile, strings.Join(lines, "\n"), "profile"), nil
}

// RecentLogGatherer 收集实体最近的对话流水。
type RecentLogGatherer struct {
	entities storage.EntityReader
}

// NewRecentLogGatherer 创建新的 RecentLogGatherer。
func NewRecentLogGatherer(entities storage.EntityReader) *RecentLogGatherer {
	return &RecentLogGatherer{entities: entities}
}

// Gather 收集最近的客户聊天记录，按时间正序。
//
// 智能体会话条目不计入，它们作为对话历史单独进入上下文。
func (g *RecentLogGatherer) Gather(ctx context.Context, input *GatherInput) (*Packet, error) {
	entries, err := g.entities.ListDataEntries(ctx, input.Entity.ID)
	if err != nil {
		return nil, err
	}

	limit := input.Config.RecentLogLimit
	chat := make([]domain.DataEntry, 0, limit)
	for _, e := range entries {
		if e.Kind.IsCustomerChat() && strings.TrimSpace(e.Content) != "" {
			chat = append(chat, e)
		}
	}
	if limit > 0 && len(chat) > limit {
		chat = chat[len(chat)-limit:]
	}
	if len(chat) == 0 {
		return nil, nil
	}

	var b strings.Builder
	for _, e := range chat {
		fmt.Fprintf(&b, "[%s]: %s\n", speaker(e.Kind), message.Truncate(e.Content, recentLogEntryCap))
	}
	return NewPacket(PacketTypeRecentLog, strings.TrimRight(b.String(), "\n"), "entries"), nil
}

func speaker(kind domain.SourceKind) string {
	if kind == domain.KindChatUser {
		return "客户"
	}
	return "销售"
}

// KnowledgeGatherer 收集知识库命中、附加知识和话术命中。
type KnowledgeGatherer struct {
	index   KnowledgeSearcher
	scripts KnowledgeSearcher
}

// NewKnowledgeGatherer 创建新的 KnowledgeGatherer，两个来源都可以为 nil。
func NewKnowledgeGatherer(index, scripts KnowledgeSearcher) *KnowledgeGatherer {
	return &KnowledgeGatherer{index: index, scripts: scripts}
}

// Gather 收集知识块。
func (g *KnowledgeGatherer) Gather(ctx context.Context, input *GatherInput) (*Packet, error) {
	var sections []string

	var kb []string
	if g.index != nil && input.Config.KnowledgeTopK > 0 {
		if text := knowledge.FormatHits(g.index.Search(ctx, input.Query, input.Config.KnowledgeTopK)); text != "" {
			kb = append(kb, text)
		}
	}
	for _, extra := range input.ExtraKnowledge {
		if extra = strings.TrimSpace(extra); extra != "" {
			kb = append(kb, "- "+extra)
		}
	}
	if len(kb) > 0 {
		sections = append(sections, PacketTypeKnowledge.Title()+"\n"+strings.Join(kb, "\n"))
	}

	if g.scripts != nil && input.Config.ScriptTopK > 0 {
		if text := knowledge.FormatHits(g.scripts.Search(ctx, input.Query, input.Config.ScriptTopK)); text != "" {
			sections = append(sections, "【参考话术库】\n"+text)
		}
	}

	if len(sections) == 0 {
		return nil, nil
	}
	return NewPacket(PacketTypeKnowledge, strings.Join(sections, "\n\n"), "knowledge"), nil
}

// RetrievalGatherer 收集检索选择器的输出。
type RetrievalGatherer struct {
	selector EntrySelector
}

// NewRetrievalGatherer 创建新的 RetrievalGatherer。
func NewRetrievalGatherer(selector EntrySelector) *RetrievalGatherer {
	return &RetrievalGatherer{selector: selector}
}

// Gather 收集检索结果。
func (g *RetrievalGatherer) Gather(ctx context.Context, input *GatherInput) (*Packet, error) {
	out := g.selector.Select(ctx, input.Entity.ID, input.Query)
	if strings.TrimSpace(out) == "" {
		return nil, nil
	}
	return NewPacket(PacketTypeRetrieval, out, "selector"), nil
}

// gatherAll 并行运行全部收集器，任何一个失败或 panic 都只让对应的块为空。
//
// 返回结果与 gatherers 一一对应。
func gatherAll(ctx context.Context, gatherers []Gatherer, input *GatherInput, logger *slog.Logger) []*Packet {
	packets := make([]*Packet, len(gatherers))
	var g errgroup.Group
	for i, gth := range gatherers {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("context gatherer panicked", "gatherer", fmt.Sprintf("%T", gth), "panic", r)
				}
			}()
			p, err := gth.Gather(ctx, input)
			if err != nil {
				logger.Warn("context gatherer failed, block omitted", "gatherer", fmt.Sprintf("%T", gth), "error", err)
				return nil
			}
			packets[i] = p
			return nil
		})
	}
	_ = g.Wait()
	return packets
}

// 编译时接口检查
var _ Gatherer = (*ProfileGatherer)(nil)
var _ Gatherer = (*RecentLogGatherer)(nil)
var _ Gatherer = (*KnowledgeGatherer)(nil)
var _ Gatherer = (*RetrievalGatherer)(nil)
