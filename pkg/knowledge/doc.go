// Package knowledge 维护全局知识库的向量索引与话术库检索
//
// Index 是显式的缓存对象：创建一次，按引用传给需要检索的组件。
// 索引状态在 Empty、Built、Stale 之间迁移，同一把互斥锁保护
// 「检查指纹并重建」的全过程，调用方不会看到构建到一半的索引，
// 也不会出现重复重建。
//
// 基本用法:
//
//	idx := knowledge.NewIndex(store, embedder, knowledge.WithTopK(3))
//	hits := idx.Search(ctx, "退款流程", 3)
//
// 文档的增删改通过 Library 完成，Library 会在写入后调用 Index.Invalidate。
package knowledge
