// =============================================================================
// 📦 VideoFlow 持久层
// =============================================================================
// 会话归档与分析预设的数据库访问。Open 按配置切换方言
// (sqlite/postgres/mysql),Store 在任意 *gorm.DB 上工作,
// 测试里直接换成内存 sqlite 或 sqlmock。
// =============================================================================

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/BaSui01/videoflow/config"
	"github.com/BaSui01/videoflow/types"
)

// Store 归档与预设的持久层
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New 在现有连接上创建 Store
func New(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:     db,
		logger: logger.With(zap.String("component", "store")),
	}
}

// Open 根据配置打开数据库连接
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	if cfg.Driver == "" {
		return nil, fmt.Errorf("database driver not configured")
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "mysql":
		dialector = mysql.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres, mysql)", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if logger != nil {
		logger.Info("database connected", zap.String("driver", cfg.Driver))
	}
	return db, nil
}

// AutoMigrate 确保归档表结构最新
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&ArchivedSession{}, &AnalysisSettings{}); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}

// DB 返回底层连接
func (s *Store) DB() *gorm.DB {
	return s.db
}

// =============================================================================
// 🗃️ 会话归档
// =============================================================================

// ArchiveSession 把终态会话写入归档。每个会话只归档一次,
// session_id 上的唯一索引兜住重复写入。
func (s *Store) ArchiveSession(ctx context.Context, sess *types.Session) error {
	if sess == nil {
		return fmt.Errorf("session cannot be nil")
	}

	rec, err := newArchivedSession(sess)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to archive session %s: %w", sess.ID, err)
	}

	s.logger.Debug("session archived",
		zap.String("session_id", sess.ID),
		zap.String("status", rec.Status),
	)
	return nil
}

func newArchivedSession(sess *types.Session) (*ArchivedSession, error) {
	rec := &ArchivedSession{
		SessionID: sess.ID,
		URL:       sess.URL,
		Prompt:    sess.Prompt,
		Status:    string(sess.Status),
		Progress:  sess.Progress,
		StartedAt: sess.CreatedAt,
		EndedAt:   sess.EndedAt,
	}

	if sess.Result != nil {
		raw, err := json.Marshal(sess.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to encode result for session %s: %w", sess.ID, err)
		}
		rec.ResultJSON = string(raw)
		rec.Strategy = string(sess.Result.Strategy)
		rec.FramesCaptured = sess.Result.FramesCaptured
		rec.VideoDurationSeconds = sess.Result.VideoDuration
		rec.ElapsedMs = sess.Result.Elapsed.Milliseconds()
	}
	if sess.Error != nil {
		rec.ErrorCode = string(sess.Error.Code)
		rec.ErrorMessage = sess.Error.Message
	}
	return rec, nil
}

// GetArchivedSession 按会话 ID 取归档记录
func (s *Store) GetArchivedSession(ctx context.Context, sessionID string) (*ArchivedSession, error) {
	var rec ArchivedSession
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrSessionNotFound,
			fmt.Sprintf("session %s not found in archive", sessionID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load archived session %s: %w", sessionID, err)
	}
	return &rec, nil
}

// ArchiveQuery 归档列表的过滤与分页参数
type ArchiveQuery struct {
	// Status 过滤终态,空值表示全部
	Status string
	// Limit 单页条数,超界回落到 50,上限 200
	Limit int
	// Offset 偏移量
	Offset int
}

// ListArchivedSessions 按创建时间倒序分页列出归档,返回总数便于翻页
func (s *Store) ListArchivedSessions(ctx context.Context, q ArchiveQuery) ([]ArchivedSession, int64, error) {
	db := s.db.WithContext(ctx).Model(&ArchivedSession{})
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count archived sessions: %w", err)
	}

	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var recs []ArchivedSession
	if err := db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&recs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list archived sessions: %w", err)
	}
	return recs, total, nil
}

// =============================================================================
// ⚙️ 分析预设
// =============================================================================

// SaveSettings 创建或同名覆盖预设；IsDefault 为真时清掉其余默认位
func (s *Store) SaveSettings(ctx context.Context, settings *AnalysisSettings) error {
	if settings == nil || strings.TrimSpace(settings.Name) == "" {
		return types.NewError(types.ErrInvalidRequest, "settings name is required")
	}
	settings.Name = strings.TrimSpace(settings.Name)

	var existing AnalysisSettings
	err := s.db.WithContext(ctx).Where("name = ?", settings.Name).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.db.WithContext(ctx).Create(settings).Error; err != nil {
			return fmt.Errorf("failed to create settings %q: %w", settings.Name, err)
		}
	case err != nil:
		return fmt.Errorf("failed to look up settings %q: %w", settings.Name, err)
	default:
		settings.ID = existing.ID
		settings.CreatedAt = existing.CreatedAt
		if err := s.db.WithContext(ctx).Save(settings).Error; err != nil {
			return fmt.Errorf("failed to update settings %q: %w", settings.Name, err)
		}
	}

	if settings.IsDefault {
		if err := s.db.WithContext(ctx).Model(&AnalysisSettings{}).
			Where("id <> ? AND is_default = ?", settings.ID, true).
			Update("is_default", false).Error; err != nil {
			return fmt.Errorf("failed to clear previous default settings: %w", err)
		}
	}

	s.logger.Debug("settings saved",
		zap.String("name", settings.Name),
		zap.Bool("default", settings.IsDefault),
	)
	return nil
}

// GetSettings 按名称取预设；不存在时返回 gorm.ErrRecordNotFound
func (s *Store) GetSettings(ctx context.Context, name string) (*AnalysisSettings, error) {
	var settings AnalysisSettings
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("settings %q: %w", name, gorm.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings %q: %w", name, err)
	}
	return &settings, nil
}

// DefaultSettings 返回当前默认预设；没有默认预设时返回 (nil, nil)
func (s *Store) DefaultSettings(ctx context.Context) (*AnalysisSettings, error) {
	var settings AnalysisSettings
	err := s.db.WithContext(ctx).Where("is_default = ?", true).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load default settings: %w", err)
	}
	return &settings, nil
}

// ListSettings 按名称排序列出全部预设
func (s *Store) ListSettings(ctx context.Context) ([]AnalysisSettings, error) {
	var all []AnalysisSettings
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	return all, nil
}

// DeleteSettings 按名称删除预设；不存在时返回 gorm.ErrRecordNotFound
func (s *Store) DeleteSettings(ctx context.Context, name string) error {
	res := s.db.WithContext(ctx).Where("name = ?", name).Delete(&AnalysisSettings{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete settings %q: %w", name, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("settings %q: %w", name, gorm.ErrRecordNotFound)
	}
	return nil
}
