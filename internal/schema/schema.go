package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

// FieldType 描述字段在表单与请求中的序列化方式。
type FieldType int

const (
	String FieldType = iota
	Text
	RichText
	Int
	Bool
	Image
	File
)

// Mode 区分新建与更新，决定必填校验。
type Mode int

const (
	Create Mode = iota
	Update
)

var (
	validate      = validator.New()
	richSanitizer = bluemonday.UGCPolicy()

	// ErrUnknownField 表示字段不在 schema 中。
	ErrUnknownField = errors.New("unknown field")
)

// Field 是单个字段的声明。
type Field struct {
	Name string
	Type FieldType
	// Required 仅在新建时强制
	Required bool
	// Rules 为 validator 标签，如 "email"、"url"、"max=120"；仅对非空值生效
	Rules   string
	Default any
}

// IsAttachment 报告字段是否通过文件上传传输。
func (f Field) IsAttachment() bool {
	return f.Type == Image || f.Type == File
}

// Schema 是资源的字段集合，按声明顺序处理。
type Schema struct {
	Fields []Field
}

// New 构造 schema。
func New(fields ...Field) Schema {
	return Schema{Fields: fields}
}

// Field 按名称查找字段。
func (s Schema) Field(name string) (Field, bool) {
	for _, field := range s.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return Field{}, false
}

// Attachments 返回所有附件字段。
func (s Schema) Attachments() []Field {
	out := make([]Field, 0)
	for _, field := range s.Fields {
		if field.IsAttachment() {
			out = append(out, field)
		}
	}
	return out
}

// Blank 返回字段的空白值：字符串为 ""，数值与布尔取默认值。
func (f Field) Blank() any {
	switch f.Type {
	case Int:
		return ToInt(f.Default)
	case Bool:
		return ToBool(f.Default)
	default:
		if f.Default != nil {
			return ToString(f.Default)
		}
		return ""
	}
}

// Normalize 把任意输入转换为字段对应的 Go 类型。
func (f Field) Normalize(value any) any {
	switch f.Type {
	case Int:
		if value == nil {
			return ToInt(f.Default)
		}
		return ToInt(value)
	case Bool:
		if value == nil {
			return ToBool(f.Default)
		}
		return ToBool(value)
	default:
		return ToString(value)
	}
}

// Build 按字段省略规则构造请求载荷：
// 空字符串或缺失的字符串字段不发送，非空字符串去除首尾空白；
// 数值与布尔字段总是发送（缺失时取默认值）；附件字段不进入载荷。
func (s Schema) Build(values map[string]any, mode Mode) (map[string]any, error) {
	payload := make(map[string]any, len(s.Fields))
	var violations ValidationError

	for _, field := range s.Fields {
		if field.IsAttachment() {
			continue
		}
		raw, present := values[field.Name]

		switch field.Type {
		case Int, Bool:
			if !present {
				raw = nil
			}
			payload[field.Name] = field.Normalize(raw)
		default:
			text := strings.TrimSpace(ToString(raw))
			if field.Type == RichText && text != "" {
				text = strings.TrimSpace(richSanitizer.Sanitize(text))
			}
			if text == "" {
				if field.Required && mode == Create {
					violations = append(violations, Violation{Field: field.Name, Message: "required"})
				}
				continue
			}
			if field.Rules != "" {
				if msg := checkRules(text, field.Rules); msg != "" {
					violations = append(violations, Violation{Field: field.Name, Message: msg})
					continue
				}
			}
			payload[field.Name] = text
		}
	}

	if len(violations) > 0 {
		return nil, violations
	}
	return payload, nil
}

func checkRules(value, rules string) string {
	err := validate.Var(value, rules)
	if err == nil {
		return ""
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid"
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "email":
		return "invalid email"
	case "url", "uri":
		return "invalid url"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	default:
		return "invalid"
	}
}

// Violation 是单个字段的校验失败信息。
type Violation struct {
	Field   string
	Message string
}

// ValidationError 汇总本地校验失败的字段。
type ValidationError []Violation

func (v ValidationError) Error() string {
	parts := make([]string, 0, len(v))
	for _, item := range v {
		parts = append(parts, item.Field+": "+item.Message)
	}
	return strings.Join(parts, "; ")
}

// ToString 把 JSON 解码结果或表单值转为字符串。
func ToString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// ToInt 宽松地把值转为 int，无法解析时返回 0。
func ToInt(value any) int {
	switch v := value.(type) {
	case nil:
		return 0
	case int:
		return v
	case int64:
		return int(v)
	case uint:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		if f, err := v.Float64(); err == nil {
			return int(f)
		}
		return 0
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// ToBool 宽松地把值转为 bool，兼容 "1"/"true"/"on" 等表单写法。
func ToBool(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "on", "yes":
			return true
		}
		return false
	default:
		return ToInt(v) != 0
	}
}
