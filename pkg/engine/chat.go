package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	agentctx "github.com/easyops/contextengine-go/pkg/context"
	coreerrors "github.com/easyops/contextengine-go/pkg/core/errors"
	"github.com/easyops/contextengine-go/pkg/core/llm"
	"github.com/easyops/contextengine-go/pkg/core/message"
	"github.com/easyops/contextengine-go/pkg/domain"
	"github.com/easyops/contextengine-go/pkg/otel"
	"github.com/easyops/contextengine-go/pkg/skill"
)

// ChatRequest 一次对话请求
type ChatRequest struct {
	// EntityID 目标实体，为 0 时从消息中识别
	EntityID int64
	// Message 用户消息
	Message string
	// SessionID 会话标识，非空时从存储加载本会话历史
	SessionID string
	// History 调用方提供的历史，优先于 SessionID
	History []domain.Turn
	// ExtraKnowledge 附加的知识片段
	ExtraKnowledge []string
	// Persist 是否把本轮问答写回实体数据
	Persist bool
}

// ChatReply 对话结果
type ChatReply struct {
	// Entity 识别到的实体，未识别时为 nil
	Entity *domain.Entity
	// Query 去掉实体提及后的查询
	Query string
	// Content 回复内容
	Content string
	// Structured 是否走了结构化资料路径（未调用模型）
	Structured bool
	// Skill 自动触发的技能，未触发时为空
	Skill skill.Name
	// Usage 模型报告的 token 用量
	Usage *message.TokenUsage
}

// failureReply 模型调用失败时的内联回复
func failureReply(err error) string {
	return "（系统错误）AI 响应失败: " + err.Error()
}

// locatedPrefix 通过提及识别到实体时的回复前缀
func locatedPrefix(ent *domain.Entity) string {
	return fmt.Sprintf("已定位客户【%s】(ID: %d)。\n\n", ent.Name, ent.ID)
}

// chatPlan 一次对话要做的事情
type chatPlan struct {
	entity     *domain.Entity
	query      string
	prefix     string
	structured string
	isInfo     bool
	skill      skill.Name
	messages   []message.Message
}

// prepare 识别实体、路由技能、判断是否为资料查询并组装上下文
//
// 技能优先于资料查询。
func (e *Engine) prepare(ctx context.Context, req ChatRequest) (*chatPlan, error) {
	plan := &chatPlan{query: strings.TrimSpace(req.Message)}

	if req.EntityID != 0 {
		ent, err := e.store.GetEntity(ctx, req.EntityID)
		if err != nil {
			if errors.Is(err, coreerrors.ErrEntityNotFound) {
				return nil, err
			}
			e.logger.Warn("load entity failed", "entity_id", req.EntityID, "error", err)
			ent = &domain.Entity{ID: req.EntityID}
		}
		plan.entity = ent
	} else if ent, cleaned := e.ResolveEntity(ctx, plan.query); ent != nil {
		plan.entity = ent
		plan.query = cleaned
		plan.prefix = locatedPrefix(ent)
	}

	turns := req.History
	if turns == nil && plan.entity != nil && req.SessionID != "" {
		loaded, err := e.store.ListConversationTurns(ctx, plan.entity.ID, req.SessionID, 0)
		if err != nil {
			e.logger.Warn("load session history failed", "session_id", req.SessionID, "error", err)
		}
		turns = loaded
	}

	if plan.entity == nil {
		hist := e.compressor.Compress(ctx, turns, 0)
		plan.messages = agentctx.NewDefaultStructurer().Structure(e.assembler.Config().GetPersona(), nil, hist, plan.query)
		return plan, nil
	}

	if name, ok := e.router.Route(ctx, plan.query); ok {
		plan.skill = name
		plan.prefix += name.Banner()
		plan.messages = e.skills.Messages(name, e.skillInput(ctx, plan.entity.ID, plan.query, turns))
		return plan, nil
	}

	if e.matcher.IsInfoQuery(ctx, plan.entity.ID, plan.query) {
		out, err := e.matcher.BuildStructuredResponse(ctx, plan.entity.ID, plan.query)
		if err != nil {
			return nil, err
		}
		plan.isInfo = true
		plan.structured = out
		return plan, nil
	}

	msgs, err := e.assembler.Assemble(ctx, agentctx.Input{
		EntityID:       plan.entity.ID,
		Query:          plan.query,
		History:        turns,
		ExtraKnowledge: req.ExtraKnowledge,
	})
	if err != nil {
		return nil, err
	}
	plan.messages = msgs
	return plan, nil
}

func (e *Engine) requestOptions() []llm.RequestOption {
	var opts []llm.RequestOption
	if e.cfg.LLM.MaxTokens > 0 {
		opts = append(opts, llm.WithRequestMaxTokens(e.cfg.LLM.MaxTokens))
	}
	opts = append(opts, llm.WithRequestTemperature(e.cfg.LLM.Temperature))
	return opts
}

// Chat 完成一轮对话
//
// 资料查询直接返回结构化资料；其余查询组装上下文后调用模型。
// 模型失败不会返回错误，而是返回内联的错误回复。唯一返回的错误是 errors.ErrEntityNotFound。
func (e *Engine) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	ctx, span := e.tracer.Start(ctx, "engine.chat")
	defer span.End()

	plan, err := e.prepare(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otel.StatusError, err.Error())
		return nil, err
	}
	if plan.entity != nil {
		span.SetAttributes(otel.EntityID(strconv.FormatInt(plan.entity.ID, 10)))
	}

	if plan.skill != "" {
		span.SetAttributes(otel.SkillName(string(plan.skill)))
	}

	reply := &ChatReply{Entity: plan.entity, Query: plan.query, Structured: plan.isInfo, Skill: plan.skill}
	if plan.isInfo {
		reply.Content = plan.prefix + plan.structured
	} else {
		resp, err := e.provider.Generate(ctx, llm.NewRequest(plan.messages, e.requestOptions()...))
		if err != nil {
			e.logger.Warn("model call failed", "error", err)
			span.RecordError(err)
			reply.Content = plan.prefix + failureReply(err)
		} else {
			reply.Content = plan.prefix + resp.Content
			usage := resp.TokenUsage
			reply.Usage = &usage
		}
	}

	if req.Persist {
		e.persist(ctx, plan.entity, req.SessionID, req.Message, reply.Content)
	}
	return reply, nil
}

// persist 把本轮问答写回实体数据，失败只记录日志
func (e *Engine) persist(ctx context.Context, ent *domain.Entity, sessionID, question, answer string) {
	if ent == nil || ent.ID == 0 {
		return
	}
	now := time.Now()
	entries := []*domain.DataEntry{
		{EntityID: ent.ID, Kind: domain.KindAgentChatUser, Content: question, SessionID: sessionID, CreatedAt: now},
		{EntityID: ent.ID, Kind: domain.KindAgentChatAssistant, Content: answer, SessionID: sessionID, CreatedAt: now.Add(time.Millisecond)},
	}
	for _, entry := range entries {
		if strings.TrimSpace(entry.Content) == "" {
			continue
		}
		if err := e.store.AppendDataEntry(ctx, entry); err != nil {
			e.logger.Warn("persist chat turn failed", "entity_id", ent.ID, "kind", entry.Kind, "error", err)
			return
		}
	}
}

// ChatStream 流式对话
//
// Tokens 依次输出实体定位前缀和模型回复；模型失败时输出内联的错误回复，
// Err 返回原始错误。Close 可以在任意时刻调用。
type ChatStream struct {
	// Entity 识别到的实体
	Entity *domain.Entity
	// Query 去掉实体提及后的查询
	Query string
	// Structured 是否走了结构化资料路径
	Structured bool
	// Skill 自动触发的技能
	Skill skill.Name

	inner  *agentctx.Stream
	tokens chan string
	done   chan struct{}
	closed atomic.Bool
	err    error
}

// ChatStream 开始一轮流式对话，唯一返回的错误是 errors.ErrEntityNotFound
func (e *Engine) ChatStream(ctx context.Context, req ChatRequest) (*ChatStream, error) {
	plan, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	buffer := e.assembler.Config().StreamBuffer
	var inner *agentctx.Stream
	if plan.isInfo {
		// 结构化资料按字符流式输出，与模型回复保持一致的消费方式
		inner = agentctx.NewStream(ctx, llm.NewStubProvider(plan.structured), nil, buffer)
	} else {
		inner = agentctx.NewStream(ctx, e.provider, plan.messages, buffer, e.requestOptions()...)
	}

	s := &ChatStream{
		Entity:     plan.entity,
		Query:      plan.query,
		Structured: plan.isInfo,
		Skill:      plan.skill,
		inner:      inner,
		tokens:     make(chan string, buffer),
		done:       make(chan struct{}),
	}
	go s.forward(plan.prefix, e.logger, func(content string) {
		if req.Persist {
			e.persist(context.WithoutCancel(ctx), plan.entity, req.SessionID, req.Message, content)
		}
	})
	return s, nil
}

func (s *ChatStream) forward(prefix string, logger *slog.Logger, finish func(string)) {
	defer close(s.done)
	defer close(s.tokens)

	var b strings.Builder
	emit := func(t string) {
		b.WriteString(t)
		s.tokens <- t
	}

	if prefix != "" {
		emit(prefix)
	}
	for t := range s.inner.Tokens() {
		emit(t)
	}
	if err := s.inner.Err(); err != nil {
		s.err = err
		if !s.closed.Load() {
			logger.Warn("model stream failed", "error", err)
			emit(failureReply(err))
		}
	}
	finish(b.String())
}

// Tokens 返回输出通道，结束后通道被关闭
func (s *ChatStream) Tokens() <-chan string {
	return s.tokens
}

// Close 停止生成并等待后台 goroutine 退出
func (s *ChatStream) Close() {
	s.closed.Store(true)
	s.inner.Close()
	for range s.tokens {
	}
	<-s.done
}

// Err 等待结束并返回模型错误
func (s *ChatStream) Err() error {
	<-s.done
	return s.err
}

// Usage 返回模型报告的 token 用量
func (s *ChatStream) Usage() *message.TokenUsage {
	return s.inner.Usage()
}

// Collect 读完全部输出并返回拼接结果
func (s *ChatStream) Collect() (string, error) {
	var b strings.Builder
	for t := range s.tokens {
		b.WriteString(t)
	}
	return b.String(), s.Err()
}
