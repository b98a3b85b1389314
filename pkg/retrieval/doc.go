// Package retrieval 为一次查询挑选实体的非对话类数据条目
//
// 选择分为确定性的文件名匹配和模型挑选两个阶段，合并去重后渲染为
// 带标签的文本块。查询包含画像/分析触发词时改为按表格汇总全部导入数据；
// 两个阶段都没有结果时退回到最近的几个文件。任何失败都降级为空字符串。
package retrieval
