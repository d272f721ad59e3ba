package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DraftSnapshot 保存提交失败后留存的草稿，便于稍后恢复重试。
type DraftSnapshot struct {
	ID        string `gorm:"primaryKey;size:36"`
	Section   string `gorm:"size:64;index:idx_draft_section_record,unique;not null"`
	RecordID  uint   `gorm:"index:idx_draft_section_record,unique"`
	Data      string `gorm:"type:text;not null"`
	LastError string `gorm:"type:text"`
	// Meta 保存列表展示用的摘要字段
	Meta      map[string]interface{} `gorm:"serializer:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 自定义表名。
func (DraftSnapshot) TableName() string {
	return "draft_snapshots"
}

// BeforeCreate 为新快照分配 UUID。
func (s *DraftSnapshot) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
