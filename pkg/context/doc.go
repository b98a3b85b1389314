// Package context 为一次模型调用组装有序的消息列表。
//
// 组装顺序固定，空块省略：
//
//  1. 系统人设与纯文本输出规则（system）
//  2. 【客户档案】实体档案事实（user）
//  3. 【客户最近的聊天记录】最近的对话流水（user）
//  4. 【参考知识库】【参考话术库】知识库与话术命中（user）
//  5. 【已检索客户档案】检索选择器输出（user）
//  6. 压缩后的对话历史（摘要为 system，其余按原角色）
//  7. 当前查询（user，总是最后一条）
//
// 第 2 到 5 块并行收集，任何一块失败都降级为空块，只有实体不存在会返回错误。
//
// # 基本用法
//
//	asm := context.NewAssembler(store,
//	    context.WithKnowledge(index),
//	    context.WithScripts(scripts),
//	    context.WithSelector(selector),
//	    context.WithHistory(compressor),
//	)
//	msgs, err := asm.Assemble(ctx, context.Input{EntityID: 1, Query: "怎么回复他"})
//
// # 流式输出
//
//	stream := context.NewStream(ctx, provider, msgs, 16)
//	defer stream.Close()
//	for token := range stream.Tokens() {
//	    fmt.Print(token)
//	}
//	if err := stream.Err(); err != nil {
//	    // 处理错误
//	}
package context
