package db

import "gorm.io/gorm"

// SystemSetting 存储控制台的系统级键值对。
type SystemSetting struct {
	gorm.Model
	Key   string `gorm:"size:100;uniqueIndex;not null"`
	Value string `gorm:"type:text"`
}

// TableName 自定义表名以保持命名一致。
func (SystemSetting) TableName() string {
	return "system_settings"
}

const (
	// SettingKeyAPIToken 是访问内容接口的 Bearer 令牌。
	SettingKeyAPIToken = "api_token"
	// SettingKeyAPITokenUpdatedBy 记录最后一次设置令牌的账号。
	SettingKeyAPITokenUpdatedBy = "api_token_updated_by"
)
