package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mecarvi/siteadmin/internal/attachment"
	"github.com/mecarvi/siteadmin/internal/logging"
	"github.com/sirupsen/logrus"
)

const (
	// MethodOverrideField 是 multipart 表单中携带真实动词的隐藏字段。
	MethodOverrideField = "_method"
	// MethodOverrideHeader 同时以请求头形式携带真实动词。
	MethodOverrideHeader = "X-HTTP-Method-Override"
	// RequestIDHeader 用于日志关联。
	RequestIDHeader = "X-Request-ID"

	maxResponseBytes = 8 << 20
)

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// AuthMode 决定请求如何携带令牌。
type AuthMode int

const (
	// AuthAlways 要求令牌，缺失时不发送请求。写操作使用。
	AuthAlways AuthMode = iota
	// AuthPublic 先匿名请求，收到 401 后带令牌重试一次。公开资源的读操作使用。
	AuthPublic
)

// Request 描述一次资源请求。
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body 为标量字段；Files 非空时整体以 multipart 发送
	Body  map[string]any
	Files map[string]*attachment.File
	Auth  AuthMode
	// Resource 用作日志与指标标签
	Resource string
}

// Response 是解析后的响应信封。
type Response struct {
	Status  int
	Success bool
	Message string
	Data    json.RawMessage
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
}

// Client 封装对内容接口的访问。
type Client struct {
	baseURL string
	http    httpDoer
	creds   CredentialProvider
	log     logrus.FieldLogger
	metrics *Metrics
}

// Option 调整 Client 的可选依赖。
type Option func(*Client)

// WithHTTPClient 替换底层 HTTP 客户端。
func WithHTTPClient(doer httpDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

// WithTimeout 使用带超时的默认 HTTP 客户端。
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.http = &http.Client{Timeout: timeout}
	}
}

// WithLogger 设置日志输出。
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics 设置请求指标。
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient 创建访问 baseURL 的客户端，令牌由 creds 注入。
func NewClient(baseURL string, creds CredentialProvider, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		creds:   creds,
		log:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL 返回接口根地址。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do 发送请求并解析信封。失败时返回 *TransportError、*ApplicationError 或 ErrAuthRequired。
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	var token string
	if req.Auth == AuthAlways {
		var err error
		token, err = c.token(ctx)
		if err != nil {
			return nil, err
		}
		if token == "" {
			return nil, ErrAuthRequired
		}
	}

	resp, err := c.send(ctx, method, req, token)
	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusUnauthorized && req.Auth == AuthPublic {
		token, err = c.token(ctx)
		if err != nil {
			return nil, err
		}
		if token == "" {
			return nil, ErrAuthRequired
		}
		resp, err = c.send(ctx, method, req, token)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.creds == nil {
		return "", nil
	}
	token, err := c.creds.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("load credentials: %w", err)
	}
	return strings.TrimSpace(token), nil
}

// send 发送一次请求；401 作为响应返回给调用方判断是否重试。
func (c *Client) send(ctx context.Context, method string, req Request, token string) (*Response, error) {
	wireMethod, body, contentType, err := encodeBody(method, req)
	if err != nil {
		return nil, &TransportError{Method: method, Path: req.Path, Err: err}
	}

	endpoint := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, wireMethod, endpoint, body)
	if err != nil {
		return nil, &TransportError{Method: method, Path: req.Path, Err: err}
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(RequestIDHeader, requestID)
	httpReq.Header.Set("User-Agent", "siteadmin/1.0")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if wireMethod != method {
		httpReq.Header.Set(MethodOverrideHeader, method)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	entry := c.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"resource":   req.Resource,
		"method":     method,
		"path":       req.Path,
	})

	started := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.observe(req.Resource, method, "transport_error", time.Since(started))
		entry.WithError(err).Warn("content api request failed")
		return nil, &TransportError{Method: method, Path: req.Path, Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		c.metrics.observe(req.Resource, method, "transport_error", time.Since(started))
		return nil, &TransportError{Method: method, Path: req.Path, Err: err}
	}

	entry = entry.WithFields(logrus.Fields{
		"status":  httpResp.StatusCode,
		"elapsed": time.Since(started).String(),
	})
	entry.Debugf("content api response: %s", logging.Snippet(string(raw)))

	if httpResp.StatusCode == http.StatusUnauthorized && req.Auth == AuthPublic && token == "" {
		c.metrics.observe(req.Resource, method, "unauthorized", time.Since(started))
		return &Response{Status: httpResp.StatusCode}, nil
	}

	resp, err := decodeEnvelope(httpResp.StatusCode, raw)
	if err != nil {
		outcome := "application_error"
		if _, ok := err.(*TransportError); ok {
			outcome = "transport_error"
		}
		c.metrics.observe(req.Resource, method, outcome, time.Since(started))
		if te, ok := err.(*TransportError); ok {
			te.Method, te.Path = method, req.Path
		}
		entry.WithError(err).Info("content api returned failure")
		return nil, err
	}

	c.metrics.observe(req.Resource, method, "success", time.Since(started))
	return resp, nil
}

func decodeEnvelope(status int, raw []byte) (*Response, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		if status >= http.StatusBadRequest {
			return nil, &ApplicationError{Status: status, Message: http.StatusText(status)}
		}
		return &Response{Status: status, Success: true}, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		if status >= http.StatusBadRequest {
			return nil, &ApplicationError{Status: status, Message: http.StatusText(status)}
		}
		return nil, &TransportError{Err: fmt.Errorf("%w: %v", ErrInvalidBody, err)}
	}

	success := status < http.StatusBadRequest
	if env.Success != nil {
		success = success && *env.Success
	}

	if !success {
		appErr := &ApplicationError{
			Status:  status,
			Message: strings.TrimSpace(env.Message),
			Fields:  parseFieldErrors(env.Errors),
		}
		if appErr.Message == "" && status >= http.StatusBadRequest {
			appErr.Message = http.StatusText(status)
		}
		return nil, appErr
	}

	return &Response{
		Status:  status,
		Success: true,
		Message: strings.TrimSpace(env.Message),
		Data:    env.Data,
	}, nil
}

// encodeBody 决定线上的动词与编码：有附件时使用 multipart，
// 且非 POST 的动词改为 POST 并携带 _method 字段。
func encodeBody(method string, req Request) (string, io.Reader, string, error) {
	if len(req.Files) > 0 {
		body, contentType, err := encodeMultipart(method, req.Body, req.Files)
		if err != nil {
			return "", nil, "", err
		}
		return http.MethodPost, body, contentType, nil
	}

	if req.Body == nil || method == http.MethodGet || method == http.MethodDelete {
		return method, nil, "", nil
	}

	data, err := json.Marshal(req.Body)
	if err != nil {
		return "", nil, "", fmt.Errorf("encode json body: %w", err)
	}
	return method, bytes.NewReader(data), "application/json", nil
}

func encodeMultipart(method string, fields map[string]any, files map[string]*attachment.File) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if method != http.MethodPost {
		if err := writer.WriteField(MethodOverrideField, method); err != nil {
			return nil, "", err
		}
	}

	for _, name := range sortedKeys(fields) {
		if err := writer.WriteField(name, formValue(fields[name])); err != nil {
			return nil, "", err
		}
	}

	fileNames := make([]string, 0, len(files))
	for name := range files {
		fileNames = append(fileNames, name)
	}
	sort.Strings(fileNames)

	for _, name := range fileNames {
		file := files[name]
		if file == nil {
			continue
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(name), escapeQuotes(file.Name)))
		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

// formValue 把标量转为表单值；布尔值按多数后端的习惯写成 1/0。
func formValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(v)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// Decode 从 data 中取出 key 对应的值；data 不是对象或没有该键时直接解码 data 本身。
func (r *Response) Decode(key string, dst any) error {
	if r == nil || len(bytes.TrimSpace(r.Data)) == 0 {
		return fmt.Errorf("%w: missing data", ErrInvalidBody)
	}

	payload := r.Data
	if key != "" {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(r.Data, &wrapped); err == nil {
			if inner, ok := wrapped[key]; ok {
				payload = inner
			}
		}
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	return nil
}

// Empty 报告 data 中 key 对应的值是否缺失或为 null。
func (r *Response) Empty(key string) bool {
	if r == nil || len(bytes.TrimSpace(r.Data)) == 0 || string(bytes.TrimSpace(r.Data)) == "null" {
		return true
	}
	if key == "" {
		return false
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(r.Data, &wrapped); err != nil {
		return false
	}
	inner, ok := wrapped[key]
	if !ok {
		return false
	}
	return len(bytes.TrimSpace(inner)) == 0 || string(bytes.TrimSpace(inner)) == "null"
}
