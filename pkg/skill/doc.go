// Package skill 提供基于实体全量数据的分析技能
//
// Router 根据路由规则和内置触发词把查询交给某个技能；Runner 执行技能：
//
//   - 风险偏好分析与赢单评估，输入为组装好的上下文文本，输出纯文本报告；
//   - 画像生成、推进研判和回复建议，输出经 modeljson 解析的类型化结果。
//
// 模型调用或解析失败时各技能返回降级结果，只有实体读取失败会返回错误。
package skill
