package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mecarvi/siteadmin/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDraftSnapshotNotFound 表示没有留存的草稿。
var ErrDraftSnapshotNotFound = errors.New("draft snapshot not found")

// DraftArchiveInput 是一次留存的内容。
type DraftArchiveInput struct {
	Section   string
	RecordID  uint
	Data      []byte
	LastError string
	Meta      map[string]interface{}
}

// DraftArchiveService 留存保存失败的草稿，每个区块的每条记录只保留最新一份。
type DraftArchiveService struct {
	db *gorm.DB
}

// NewDraftArchiveService 构造 DraftArchiveService。
func NewDraftArchiveService(gdb *gorm.DB) *DraftArchiveService {
	return &DraftArchiveService{db: gdb}
}

// Save 写入或覆盖留存的草稿。
func (s *DraftArchiveService) Save(ctx context.Context, input DraftArchiveInput) (*db.DraftSnapshot, error) {
	section := strings.TrimSpace(input.Section)
	if section == "" {
		return nil, errors.New("section is required")
	}
	if len(input.Data) == 0 {
		return nil, errors.New("draft data is required")
	}

	snapshot := db.DraftSnapshot{
		Section:   section,
		RecordID:  input.RecordID,
		Data:      string(input.Data),
		LastError: strings.TrimSpace(input.LastError),
		Meta:      input.Meta,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "section"}, {Name: "record_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "last_error", "meta", "updated_at"}),
	}).Create(&snapshot).Error
	if err != nil {
		return nil, fmt.Errorf("save draft snapshot: %w", err)
	}
	return s.Find(ctx, section, input.RecordID)
}

// Find 读取某条记录留存的草稿。
func (s *DraftArchiveService) Find(ctx context.Context, section string, recordID uint) (*db.DraftSnapshot, error) {
	var snapshot db.DraftSnapshot
	err := s.db.WithContext(ctx).
		Where("section = ? AND record_id = ?", strings.TrimSpace(section), recordID).
		First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDraftSnapshotNotFound
		}
		return nil, fmt.Errorf("find draft snapshot: %w", err)
	}
	return &snapshot, nil
}

// List 按更新时间倒序列出留存的草稿；section 为空时列出全部。
func (s *DraftArchiveService) List(ctx context.Context, section string) ([]db.DraftSnapshot, error) {
	query := s.db.WithContext(ctx).Order("updated_at DESC")
	if trimmed := strings.TrimSpace(section); trimmed != "" {
		query = query.Where("section = ?", trimmed)
	}
	var snapshots []db.DraftSnapshot
	if err := query.Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("list draft snapshots: %w", err)
	}
	return snapshots, nil
}

// Delete 删除留存的草稿，不存在时不报错。
func (s *DraftArchiveService) Delete(ctx context.Context, section string, recordID uint) error {
	err := s.db.WithContext(ctx).
		Where("section = ? AND record_id = ?", strings.TrimSpace(section), recordID).
		Delete(&db.DraftSnapshot{}).Error
	if err != nil {
		return fmt.Errorf("delete draft snapshot: %w", err)
	}
	return nil
}
