package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/easyops/contextengine-go/pkg/core/errors"
	"github.com/easyops/contextengine-go/pkg/domain"
)

// SQLiteStore SQLite 存储
//
// 实体数据的元数据以 JSON 保存，读取时解码为类型化载荷。
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore 创建 SQLite 存储
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite 写入串行，单连接也保证 :memory: 库在连接间共享
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}

	// 初始化表结构
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return store, nil
}

// initSchema 初始化表结构
func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS entities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		contact_info TEXT,
		stage TEXT,
		risk_profile TEXT,
		summary TEXT,
		custom_fields TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS data_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_id INTEGER NOT NULL,
		source_type TEXT NOT NULL,
		content TEXT,
		meta_info TEXT,
		session_id TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_data_entries_entity ON data_entries(entity_id, created_at);
	CREATE TABLE IF NOT EXISTS knowledge_documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		content TEXT,
		raw_content TEXT,
		source TEXT,
		category TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS scripts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		category TEXT,
		filename TEXT,
		content TEXT,
		raw_content TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS table_aliases (
		provider_config_id INTEGER NOT NULL DEFAULT 0,
		source_token TEXT NOT NULL,
		display_name TEXT NOT NULL,
		PRIMARY KEY (provider_config_id, source_token)
	);
	CREATE TABLE IF NOT EXISTS routing_rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		keyword TEXT NOT NULL,
		target_skill TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(query)
	return err
}

// GetEntity 获取实体
func (s *SQLiteStore) GetEntity(ctx context.Context, id int64) (*domain.Entity, error) {
	query := `SELECT id, name, contact_info, stage, risk_profile, summary, custom_fields, created_at
	FROM entities WHERE id = ?`

	e, err := scanEntity(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", errors.ErrEntityNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListEntities 按 ID 升序列出实体
func (s *SQLiteStore) ListEntities(ctx context.Context) ([]domain.Entity, error) {
	query := `SELECT id, name, contact_info, stage, risk_profile, summary, custom_fields, created_at
	FROM entities ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Entity, 0)
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*domain.Entity, error) {
	var e domain.Entity
	var contact, stage, risk, summary, customFields sql.NullString
	var createdAt int64
	if err := row.Scan(&e.ID, &e.Name, &contact, &stage, &risk, &summary, &customFields, &createdAt); err != nil {
		return nil, err
	}
	e.ContactInfo = contact.String
	e.Stage = stage.String
	e.RiskProfile = risk.String
	e.Summary = summary.String
	e.CreatedAt = time.UnixMilli(createdAt)

	if customFields.String != "" {
		if err := json.Unmarshal([]byte(customFields.String), &e.CustomFields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal custom fields: %w", err)
		}
	}
	return &e, nil
}

// PutEntity 新建或更新实体
func (s *SQLiteStore) PutEntity(ctx context.Context, entity *domain.Entity) error {
	customFields, err := json.Marshal(entity.CustomFields)
	if err != nil {
		return fmt.Errorf("failed to marshal custom fields: %w", err)
	}
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = time.Now()
	}

	if entity.ID == 0 {
		query := `INSERT INTO entities (name, contact_info, stage, risk_profile, summary, custom_fields, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
		res, err := s.db.ExecContext(ctx, query, entity.Name, entity.ContactInfo, entity.Stage,
			entity.RiskProfile, entity.Summary, string(customFields), entity.CreatedAt.UnixMilli())
		if err != nil {
			return err
		}
		entity.ID, err = res.LastInsertId()
		return err
	}

	query := `
	INSERT INTO entities (id, name, contact_info, stage, risk_profile, summary, custom_fields, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		contact_info = excluded.contact_info,
		stage = excluded.stage,
		risk_profile = excluded.risk_profile,
		summary = excluded.summary,
		custom_fields = excluded.custom_fields
	`
	_, err = s.db.ExecContext(ctx, query, entity.ID, entity.Name, entity.ContactInfo, entity.Stage,
		entity.RiskProfile, entity.Summary, string(customFields), entity.CreatedAt.UnixMilli())
	return err
}

// ListDataEntries 按创建时间正序返回实体数据
func (s *SQLiteStore) ListDataEntries(ctx context.Context, entityID int64) ([]domain.DataEntry, error) {
	if _, err := s.GetEntity(ctx, entityID); err != nil {
		return nil, err
	}

	query := `SELECT id, entity_id, source_type, content, meta_info, session_id, created_at
	FROM data_entries WHERE entity_id = ? ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.DataEntry, 0)
	for rows.Next() {
		var (
			e                        domain.DataEntry
			kind                     string
			content, meta, sessionID sql.NullString
			createdAt                int64
		)
		if err := rows.Scan(&e.ID, &e.EntityID, &kind, &content, &meta, &sessionID, &createdAt); err != nil {
			return nil, err
		}
		e.Kind = domain.SourceKind(kind)
		e.Content = content.String
		e.SessionID = sessionID.String
		e.CreatedAt = time.UnixMilli(createdAt)

		var metaMap map[string]any
		if meta.String != "" {
			// 元数据损坏时按纯文本处理，不影响其它条目
			if err := json.Unmarshal([]byte(meta.String), &metaMap); err != nil {
				metaMap = nil
			}
		}
		e.Payload = domain.PayloadFromMeta(metaMap)

		out = append(out, e)
	}
	return out, rows.Err()
}

// AppendDataEntry 追加数据条目
func (s *SQLiteStore) AppendDataEntry(ctx context.Context, entry *domain.DataEntry) error {
	if _, err := s.GetEntity(ctx, entry.EntityID); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Payload == nil {
		entry.Payload = domain.FreeText{}
	}

	var meta any
	if m := domain.MetaFromPayload(entry.Payload); m != nil {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal meta info: %w", err)
		}
		meta = string(b)
	}

	query := `INSERT INTO data_entries (entity_id, source_type, content, meta_info, session_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, entry.EntityID, string(entry.Kind), entry.Content,
		meta, entry.SessionID, entry.CreatedAt.UnixMilli())
	if err != nil {
		return err
	}
	entry.ID, err = res.LastInsertId()
	return err
}

// DeleteDataEntry 删除数据条目
func (s *SQLiteStore) DeleteDataEntry(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "data_entries", id)
}

// ListKnowledgeDocuments 按 ID 升序返回知识库文档
func (s *SQLiteStore) ListKnowledgeDocuments(ctx context.Context) ([]domain.KnowledgeDocument, error) {
	query := `SELECT id, title, content, raw_content, source, category, created_at
	FROM knowledge_documents ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.KnowledgeDocument, 0)
	for rows.Next() {
		var d domain.KnowledgeDocument
		var content, raw, source, category sql.NullString
		var createdAt int64
		if err := rows.Scan(&d.ID, &d.Title, &content, &raw, &source, &category, &createdAt); err != nil {
			return nil, err
		}
		d.Content = content.String
		d.RawContent = raw.String
		d.Source = source.String
		d.Category = category.String
		d.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

// KnowledgeSignature 返回知识库指纹
func (s *SQLiteStore) KnowledgeSignature(ctx context.Context) (domain.IndexSignature, error) {
	var (
		sig   domain.IndexSignature
		maxID sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), MAX(id) FROM knowledge_documents`).Scan(&sig.Count, &maxID)
	if err != nil {
		return domain.IndexSignature{}, err
	}
	sig.MaxID = maxID.Int64
	return sig, nil
}

// PutKnowledgeDocument 新建或更新知识库文档
func (s *SQLiteStore) PutKnowledgeDocument(ctx context.Context, doc *domain.KnowledgeDocument) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	if doc.ID == 0 {
		query := `INSERT INTO knowledge_documents (title, content, raw_content, source, category, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
		res, err := s.db.ExecContext(ctx, query, doc.Title, doc.Content, doc.RawContent,
			doc.Source, doc.Category, doc.CreatedAt.UnixMilli())
		if err != nil {
			return err
		}
		doc.ID, err = res.LastInsertId()
		return err
	}

	query := `
	INSERT INTO knowledge_documents (id, title, content, raw_content, source, category, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		content = excluded.content,
		raw_content = excluded.raw_content,
		source = excluded.source,
		category = excluded.category
	`
	_, err := s.db.ExecContext(ctx, query, doc.ID, doc.Title, doc.Content, doc.RawContent,
		doc.Source, doc.Category, doc.CreatedAt.UnixMilli())
	return err
}

// DeleteKnowledgeDocument 删除知识库文档
func (s *SQLiteStore) DeleteKnowledgeDocument(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "knowledge_documents", id)
}

// ListScripts 按 ID 升序返回话术
func (s *SQLiteStore) ListScripts(ctx context.Context) ([]domain.Script, error) {
	query := `SELECT id, title, category, filename, content, raw_content, created_at FROM scripts ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Script, 0)
	for rows.Next() {
		var sc domain.Script
		var category, filename, content, raw sql.NullString
		var createdAt int64
		if err := rows.Scan(&sc.ID, &sc.Title, &category, &filename, &content, &raw, &createdAt); err != nil {
			return nil, err
		}
		sc.Category = category.String
		sc.Filename = filename.String
		sc.Content = content.String
		sc.RawContent = raw.String
		sc.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, sc)
	}
	return out, rows.Err()
}

// PutScript 新建或更新话术
func (s *SQLiteStore) PutScript(ctx context.Context, script *domain.Script) error {
	if script.CreatedAt.IsZero() {
		script.CreatedAt = time.Now()
	}

	if script.ID == 0 {
		query := `INSERT INTO scripts (title, category, filename, content, raw_content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
		res, err := s.db.ExecContext(ctx, query, script.Title, script.Category, script.Filename,
			script.Content, script.RawContent, script.CreatedAt.UnixMilli())
		if err != nil {
			return err
		}
		script.ID, err = res.LastInsertId()
		return err
	}

	query := `
	INSERT INTO scripts (id, title, category, filename, content, raw_content, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		category = excluded.category,
		filename = excluded.filename,
		content = excluded.content,
		raw_content = excluded.raw_content
	`
	_, err := s.db.ExecContext(ctx, query, script.ID, script.Title, script.Category, script.Filename,
		script.Content, script.RawContent, script.CreatedAt.UnixMilli())
	return err
}

// ResolveTableAlias 查找别名：先精确匹配数据源，再匹配通配（数据源 0）
func (s *SQLiteStore) ResolveTableAlias(ctx context.Context, token string, providerConfigID int64) (string, bool) {
	query := `SELECT display_name FROM table_aliases
	WHERE source_token = ? AND provider_config_id IN (?, 0)
	ORDER BY provider_config_id DESC LIMIT 1`

	var name string
	err := s.db.QueryRowContext(ctx, query, domain.CleanSourceToken(token), providerConfigID).Scan(&name)
	if err != nil || name == "" {
		return "", false
	}
	return name, true
}

// PutTableAlias 设置表格别名
func (s *SQLiteStore) PutTableAlias(ctx context.Context, providerConfigID int64, token, name string) error {
	query := `
	INSERT INTO table_aliases (provider_config_id, source_token, display_name)
	VALUES (?, ?, ?)
	ON CONFLICT(provider_config_id, source_token) DO UPDATE SET display_name = excluded.display_name
	`
	_, err := s.db.ExecContext(ctx, query, providerConfigID, domain.CleanSourceToken(token), name)
	return err
}

// ListRoutingRules 按 ID 升序返回路由规则
func (s *SQLiteStore) ListRoutingRules(ctx context.Context) ([]domain.RoutingRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, keyword, target_skill, created_at FROM routing_rules ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.RoutingRule, 0)
	for rows.Next() {
		var r domain.RoutingRule
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.Keyword, &r.Skill, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// PutRoutingRule 新建或更新路由规则
func (s *SQLiteStore) PutRoutingRule(ctx context.Context, rule *domain.RoutingRule) error {
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}

	if rule.ID == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO routing_rules (keyword, target_skill, created_at) VALUES (?, ?, ?)`,
			rule.Keyword, rule.Skill, rule.CreatedAt.UnixMilli())
		if err != nil {
			return err
		}
		rule.ID, err = res.LastInsertId()
		return err
	}

	query := `
	INSERT INTO routing_rules (id, keyword, target_skill, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		keyword = excluded.keyword,
		target_skill = excluded.target_skill
	`
	_, err := s.db.ExecContext(ctx, query, rule.ID, rule.Keyword, rule.Skill, rule.CreatedAt.UnixMilli())
	return err
}

// DeleteRoutingRule 删除路由规则
func (s *SQLiteStore) DeleteRoutingRule(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "routing_rules", id)
}

// deleteByID 按 ID 删除，不存在时返回 ErrDocumentNotFound
func (s *SQLiteStore) deleteByID(ctx context.Context, table string, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%s %d: %w", table, id, errors.ErrDocumentNotFound)
	}
	return nil
}

// Close 关闭数据库连接
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListConversationTurns 返回实体最近的对话轮次
func (s *SQLiteStore) ListConversationTurns(ctx context.Context, entityID int64, sessionID string, limit int) ([]domain.Turn, error) {
	entries, err := s.ListDataEntries(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return TurnsFromEntries(entries, sessionID, limit), nil
}

// compile-time interface check
var _ Store = (*SQLiteStore)(nil)
