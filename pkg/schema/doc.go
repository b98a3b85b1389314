// Package schema 从实体的表格导入数据推断表结构，并把自由文本查询匹配到表和字段。
//
// 匹配分三层，互不排斥：
//
//   - 显式：规范化后的表名是查询的子串；
//   - 模糊：去掉口语填充词后的查询核心（至少 2 个字）是表名的子串；
//   - 字段：对字段名做同样的两种判断，命中的字段所属表计入 FieldTables。
//
// 同一套关键词表也用于判断查询是否在索取原始档案数据（IsInfoQuery），
// 以及检索选择器的画像类查询覆盖逻辑，两处不会出现分歧。
package schema
