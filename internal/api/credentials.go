package api

import (
	"context"
	"strings"
)

// CredentialProvider 提供访问远端接口的 Bearer 令牌。
// 返回空字符串表示当前没有可用令牌。
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken 是固定令牌的 CredentialProvider，测试与脚本使用。
type StaticToken string

// Token 实现 CredentialProvider。
func (t StaticToken) Token(context.Context) (string, error) {
	return strings.TrimSpace(string(t)), nil
}
