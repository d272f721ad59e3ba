package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrAuthRequired 在缺少令牌或令牌被拒绝时返回。
	ErrAuthRequired = errors.New("Authentication required")
	// ErrInvalidBody 表示响应体不是合法 JSON。
	ErrInvalidBody = errors.New("invalid response body")
)

// TransportError 表示网络失败或无法解析的响应。
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request %s %s failed: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// FieldError 是服务端返回的单个字段校验信息，保持服务端给出的顺序。
type FieldError struct {
	Field    string
	Messages []string
}

// ApplicationError 表示服务端明确返回的失败：success=false 或 4xx/5xx。
type ApplicationError struct {
	Status  int
	Message string
	Fields  []FieldError
}

// Error 把字段错误展开为一行，如 "title: required; email: invalid"。
func (e *ApplicationError) Error() string {
	if flat := FlattenFieldErrors(e.Fields); flat != "" {
		return flat
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}
	if e.Status > 0 {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return "request failed"
}

// Is 让 401/403 可以用 errors.Is(err, ErrAuthRequired) 判断。
func (e *ApplicationError) Is(target error) bool {
	if target == ErrAuthRequired {
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	}
	return false
}

// FlattenFieldErrors 按顺序拼接字段错误，同一字段的多条信息用 ", " 连接。
func FlattenFieldErrors(fields []FieldError) string {
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		msgs := make([]string, 0, len(field.Messages))
		for _, msg := range field.Messages {
			if trimmed := strings.TrimSpace(msg); trimmed != "" {
				msgs = append(msgs, trimmed)
			}
		}
		if len(msgs) == 0 {
			continue
		}
		parts = append(parts, field.Field+": "+strings.Join(msgs, ", "))
	}
	return strings.Join(parts, "; ")
}

// parseFieldErrors 逐 token 读取 errors 对象以保留字段顺序；
// 值既可能是字符串数组，也可能是单个字符串。
func parseFieldErrors(raw json.RawMessage) []FieldError {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil
	}

	var fields []FieldError
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fields
		}
		name, ok := tok.(string)
		if !ok {
			return fields
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return fields
		}

		var many []string
		if err := json.Unmarshal(value, &many); err == nil {
			fields = append(fields, FieldError{Field: name, Messages: many})
			continue
		}
		var one string
		if err := json.Unmarshal(value, &one); err == nil {
			fields = append(fields, FieldError{Field: name, Messages: []string{one}})
		}
	}
	return fields
}

// Message 返回适合展示给用户的错误描述：传输错误统一为通用提示。
func Message(err error) string {
	if err == nil {
		return ""
	}
	var transport *TransportError
	if errors.As(err, &transport) {
		return "Network error, please try again"
	}
	if errors.Is(err, ErrAuthRequired) {
		return ErrAuthRequired.Error()
	}
	return err.Error()
}
