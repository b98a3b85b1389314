package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Payload 数据条目的类型化载荷
//
// 只有三种实现：FreeText、ImportedRow、FileRef。
type Payload interface {
	payloadKind() string
}

// FreeText 纯文本条目，没有结构化元数据
type FreeText struct{}

func (FreeText) payloadKind() string { return "free_text" }

// ImportedRow 从外部表格导入的一行数据
type ImportedRow struct {
	// SourceToken 来源表格的内部标识（已清洗）
	SourceToken string `json:"source_token,omitempty"`
	// SourceName 导入时记录的表格名称
	SourceName string `json:"source_name,omitempty"`
	// ProviderConfigID 数据源配置 ID
	ProviderConfigID int64 `json:"source_provider_id,omitempty"`
	// Fields 字段值
	Fields map[string]string `json:"fields,omitempty"`
	// FieldOrder 字段顺序
	FieldOrder []string `json:"field_order,omitempty"`
}

func (ImportedRow) payloadKind() string { return "imported_row" }

// OrderedFields 按 FieldOrder 返回字段名，未列出的字段按字典序追加
func (r ImportedRow) OrderedFields() []string {
	seen := make(map[string]bool, len(r.Fields))
	out := make([]string, 0, len(r.Fields))
	for _, f := range r.FieldOrder {
		if _, ok := r.Fields[f]; ok && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}

	rest := make([]string, 0)
	for f := range r.Fields {
		if !seen[f] {
			rest = append(rest, f)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// Render 渲染为 "字段: 值" 行，跳过空值
func (r ImportedRow) Render(sep string) string {
	parts := make([]string, 0, len(r.Fields))
	for _, f := range r.OrderedFields() {
		v := strings.TrimSpace(r.Fields[f])
		if v == "" {
			continue
		}
		parts = append(parts, f+": "+v)
	}
	return strings.Join(parts, sep)
}

// FileRef 上传文件（文档、录音转写）对应的条目
type FileRef struct {
	// Name 存储文件名
	Name string `json:"filename,omitempty"`
	// OriginalName 原始文件名（例如录音文件）
	OriginalName string `json:"original_audio_filename,omitempty"`
	// Path 存储路径
	Path string `json:"file_path,omitempty"`
}

func (FileRef) payloadKind() string { return "file_ref" }

// Names 返回非空的文件名候选
func (f FileRef) Names() []string {
	names := make([]string, 0, 2)
	if f.Name != "" {
		names = append(names, f.Name)
	}
	if f.OriginalName != "" && f.OriginalName != f.Name {
		names = append(names, f.OriginalName)
	}
	return names
}

// 元数据中的保留键
var (
	fileKeys        = []string{"filename", "original_audio_filename", "file_path"}
	tokenKeys       = []string{"source_token", "table_id", "sheet_token", "spreadsheet_token", "app_token"}
	sourceNameKeys  = []string{"source_name", "table_name", "sheet_name"}
	providerIDKeys  = []string{"source_provider_id", "data_source_id"}
	importMarkerKey = "import_type"
	fieldsKey       = "fields"
	fieldOrderKey   = "field_order"
)

func isReservedKey(k string) bool {
	switch k {
	case importMarkerKey, fieldsKey, fieldOrderKey:
		return true
	}
	for _, group := range [][]string{fileKeys, tokenKeys, sourceNameKeys, providerIDKeys} {
		for _, r := range group {
			if r == k {
				return true
			}
		}
	}
	return false
}

// PayloadFromMeta 将开放式元数据解码为类型化载荷
//
// 这是唯一了解保留键的位置，其余组件只根据载荷类型分支。
func PayloadFromMeta(meta map[string]any) Payload {
	if len(meta) == 0 {
		return FreeText{}
	}

	if hasAny(meta, fileKeys) {
		return FileRef{
			Name:         stringValue(meta["filename"]),
			OriginalName: stringValue(meta["original_audio_filename"]),
			Path:         stringValue(meta["file_path"]),
		}
	}

	if !hasAny(meta, tokenKeys) && !hasAny(meta, sourceNameKeys) &&
		!hasAny(meta, providerIDKeys) && meta[importMarkerKey] == nil {
		return FreeText{}
	}

	row := ImportedRow{
		SourceToken: CleanSourceToken(firstString(meta, tokenKeys)),
		SourceName:  firstString(meta, sourceNameKeys),
		Fields:      make(map[string]string),
	}
	if id, ok := parseInt(firstValue(meta, providerIDKeys)); ok {
		row.ProviderConfigID = id
	}

	if nested, ok := meta[fieldsKey].(map[string]any); ok {
		for k, v := range nested {
			row.Fields[k] = stringValue(v)
		}
	} else {
		for k, v := range meta {
			if !isReservedKey(k) {
				row.Fields[k] = stringValue(v)
			}
		}
	}

	if order, ok := meta[fieldOrderKey].([]any); ok {
		for _, f := range order {
			if s := stringValue(f); s != "" {
				row.FieldOrder = append(row.FieldOrder, s)
			}
		}
	}

	return row
}

// MetaFromPayload 将载荷编码为可持久化的元数据
func MetaFromPayload(p Payload) map[string]any {
	switch v := p.(type) {
	case FileRef:
		meta := map[string]any{}
		if v.Name != "" {
			meta["filename"] = v.Name
		}
		if v.OriginalName != "" {
			meta["original_audio_filename"] = v.OriginalName
		}
		if v.Path != "" {
			meta["file_path"] = v.Path
		}
		return meta
	case ImportedRow:
		fields := make(map[string]any, len(v.Fields))
		for k, val := range v.Fields {
			fields[k] = val
		}
		meta := map[string]any{
			importMarkerKey: "table",
			fieldsKey:       fields,
		}
		if v.SourceToken != "" {
			meta["source_token"] = v.SourceToken
		}
		if v.SourceName != "" {
			meta["source_name"] = v.SourceName
		}
		if v.ProviderConfigID != 0 {
			meta["source_provider_id"] = v.ProviderConfigID
		}
		if len(v.FieldOrder) > 0 {
			order := make([]any, len(v.FieldOrder))
			for i, f := range v.FieldOrder {
				order[i] = f
			}
			meta[fieldOrderKey] = order
		}
		return meta
	default:
		return nil
	}
}

// CleanSourceToken 从飞书链接或带查询参数的字符串中提取表格 token
func CleanSourceToken(token string) string {
	token = strings.TrimSpace(token)
	for _, marker := range []string{"/base/", "/sheets/", "/docx/", "/docs/", "/wiki/"} {
		if idx := strings.Index(token, marker); idx >= 0 {
			token = token[idx+len(marker):]
			break
		}
	}
	if idx := strings.IndexAny(token, "?#"); idx >= 0 {
		token = token[:idx]
	}
	return strings.Trim(token, "/")
}

func hasAny(meta map[string]any, keys []string) bool {
	for _, k := range keys {
		if v, ok := meta[k]; ok && v != nil && stringValue(v) != "" {
			return true
		}
	}
	return false
}

func firstValue(meta map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := meta[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(meta map[string]any, keys []string) string {
	for _, k := range keys {
		if s := stringValue(meta[k]); s != "" {
			return s
		}
	}
	return ""
}

func parseInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int, int64, bool:
		return fmt.Sprint(s)
	case json.Number:
		return s.String()
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return fmt.Sprint(s)
		}
		return string(b)
	}
}
