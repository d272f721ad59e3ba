package resource

import (
	"fmt"
	"strings"

	"github.com/mecarvi/siteadmin/internal/schema"
)

// Definition 描述一种资源的端点、信封键名与字段规则。
type Definition struct {
	// Name 是资源标识，如 "careers"
	Name string
	// Path 是集合端点，如 "/careers"
	Path string
	// ItemKey 是单条记录在 data 中的键名
	ItemKey string
	// ListKey 是列表在 data 中的键名
	ListKey string
	Schema  schema.Schema
	// Public 为 true 时读操作先匿名访问
	Public bool
	// SortField 为空表示不排序
	SortField string
	// ActiveField 用于前台展示过滤
	ActiveField string
	// Singleton 表示最多只有一条记录的区块
	Singleton bool
}

// Validate 检查定义是否完整。
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("resource definition: name is required")
	}
	if strings.TrimSpace(d.Path) == "" {
		return fmt.Errorf("resource %s: path is required", d.Name)
	}
	if d.ItemKey == "" {
		return fmt.Errorf("resource %s: item key is required", d.Name)
	}
	if !d.Singleton && d.ListKey == "" {
		return fmt.Errorf("resource %s: list key is required", d.Name)
	}
	return nil
}

func (d Definition) itemPath(id uint) string {
	return fmt.Sprintf("%s/%d", strings.TrimRight(d.Path, "/"), id)
}

func (d Definition) fieldPath(id uint, field string) string {
	return fmt.Sprintf("%s/field/%s", d.itemPath(id), field)
}
