package resource

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/mecarvi/siteadmin/internal/schema"
)

// Record 是服务端返回的一条资源记录。
type Record map[string]any

// ID 返回服务端分配的主键，尚未创建时为 0。
func (r Record) ID() uint {
	switch v := r["id"].(type) {
	case nil:
		return 0
	case json.Number:
		n, err := strconv.ParseUint(v.String(), 10, 64)
		if err != nil {
			return 0
		}
		return uint(n)
	case string:
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		return uint(n)
	default:
		n := schema.ToInt(v)
		if n < 0 {
			return 0
		}
		return uint(n)
	}
}

// String 读取字符串字段。
func (r Record) String(field string) string {
	return schema.ToString(r[field])
}

// Int 读取整数字段。
func (r Record) Int(field string) int {
	return schema.ToInt(r[field])
}

// Bool 读取布尔字段。
func (r Record) Bool(field string) bool {
	return schema.ToBool(r[field])
}

// Has 报告字段是否存在且非空。
func (r Record) Has(field string) bool {
	v, ok := r[field]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// Clone 返回浅拷贝；字段值均为标量，浅拷贝即可隔离修改。
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
