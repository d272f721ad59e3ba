package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mecarvi/siteadmin/internal/api"
	"github.com/mecarvi/siteadmin/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrTokenEmpty 表示提交的令牌为空。
var ErrTokenEmpty = errors.New("token is required")

// TokenStatus 描述当前令牌的状态，不包含令牌本身。
type TokenStatus struct {
	Configured bool   `json:"configured"`
	Source     string `json:"source,omitempty"`
	UpdatedBy  string `json:"updated_by,omitempty"`
}

// CredentialService 把内容接口的令牌保存在 system_settings 中，
// 未保存时回退到启动配置里的令牌。
type CredentialService struct {
	db       *gorm.DB
	fallback string
}

// NewCredentialService 构造 CredentialService。
func NewCredentialService(gdb *gorm.DB, fallback string) *CredentialService {
	return &CredentialService{db: gdb, fallback: strings.TrimSpace(fallback)}
}

// Token 实现 api.CredentialProvider。
func (s *CredentialService) Token(ctx context.Context) (string, error) {
	stored, err := s.load(ctx, db.SettingKeyAPIToken)
	if err != nil {
		return "", err
	}
	if stored != "" {
		return stored, nil
	}
	return s.fallback, nil
}

// Status 返回令牌状态。
func (s *CredentialService) Status(ctx context.Context) (TokenStatus, error) {
	stored, err := s.load(ctx, db.SettingKeyAPIToken)
	if err != nil {
		return TokenStatus{}, err
	}
	if stored != "" {
		updatedBy, err := s.load(ctx, db.SettingKeyAPITokenUpdatedBy)
		if err != nil {
			return TokenStatus{}, err
		}
		return TokenStatus{Configured: true, Source: "console", UpdatedBy: updatedBy}, nil
	}
	if s.fallback != "" {
		return TokenStatus{Configured: true, Source: "environment"}, nil
	}
	return TokenStatus{}, nil
}

// SetToken 保存令牌并记录操作人。
func (s *CredentialService) SetToken(ctx context.Context, token, updatedBy string) error {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return ErrTokenEmpty
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertSetting(tx, db.SettingKeyAPIToken, trimmed); err != nil {
			return err
		}
		return upsertSetting(tx, db.SettingKeyAPITokenUpdatedBy, strings.TrimSpace(updatedBy))
	})
	if err != nil {
		return fmt.Errorf("save api token: %w", err)
	}
	return nil
}

// ClearToken 删除控制台保存的令牌。
func (s *CredentialService) ClearToken(ctx context.Context) error {
	keys := []string{db.SettingKeyAPIToken, db.SettingKeyAPITokenUpdatedBy}
	if err := s.db.WithContext(ctx).Unscoped().Where("key IN ?", keys).Delete(&db.SystemSetting{}).Error; err != nil {
		return fmt.Errorf("clear api token: %w", err)
	}
	return nil
}

func (s *CredentialService) load(ctx context.Context, key string) (string, error) {
	var setting db.SystemSetting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("load setting %s: %w", key, err)
	}
	return strings.TrimSpace(setting.Value), nil
}

func upsertSetting(tx *gorm.DB, key, value string) error {
	setting := db.SystemSetting{Key: key, Value: value}
	if err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":      value,
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(&setting).Error; err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}
	return nil
}

var _ api.CredentialProvider = (*CredentialService)(nil)
