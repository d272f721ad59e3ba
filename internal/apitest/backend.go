// Package apitest 提供一个内存版的内容接口，供各包测试使用。
// 它遵循与真实后端相同的约定：信封格式、Bearer 认证、_method 覆盖。
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// Recorded 是后端收到的一次请求。
type Recorded struct {
	Method string
	// Verb 是考虑 _method 覆盖后的语义动词
	Verb        string
	Path        string
	ContentType string
	Auth        string
	Body        map[string]any
	Files       []string
}

type failure struct {
	status int
	body   gin.H
}

type collection struct {
	path      string
	itemKey   string
	listKey   string
	singleton bool
	public    bool
	nextID    uint
	items     []map[string]any
}

// Backend 是测试用的内容接口。
type Backend struct {
	Token string

	mu          sync.Mutex
	collections []*collection
	requests    []Recorded
	failures    map[string][]failure
	server      *httptest.Server
}

// New 启动后端；token 为写操作要求的令牌。
func New(token string) *Backend {
	gin.SetMode(gin.TestMode)
	b := &Backend{Token: token, failures: make(map[string][]failure)}

	r := gin.New()
	r.Any("/*path", b.dispatch)
	b.server = httptest.NewServer(r)
	return b
}

// URL 返回后端根地址。
func (b *Backend) URL() string {
	return b.server.URL
}

// Close 关闭后端。
func (b *Backend) Close() {
	b.server.Close()
}

// Register 注册一种资源。public 为 false 时读操作也需要令牌。
func (b *Backend) Register(path, itemKey, listKey string, singleton, public bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.collections = append(b.collections, &collection{
		path:      "/" + strings.Trim(path, "/"),
		itemKey:   itemKey,
		listKey:   listKey,
		singleton: singleton,
		public:    public,
		nextID:    1,
	})
}

// Seed 预置记录并分配主键，返回带主键的拷贝。
func (b *Backend) Seed(path string, records ...map[string]any) []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	col := b.lookup("/" + strings.Trim(path, "/"))
	if col == nil {
		panic("apitest: unknown collection " + path)
	}
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		stored := cloneMap(rec)
		stored["id"] = col.nextID
		col.nextID++
		col.items = append(col.items, stored)
		out = append(out, cloneMap(stored))
	}
	return out
}

// Items 返回某个资源当前的服务端数据。
func (b *Backend) Items(path string) []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	col := b.lookup("/" + strings.Trim(path, "/"))
	if col == nil {
		return nil
	}
	out := make([]map[string]any, 0, len(col.items))
	for _, item := range col.items {
		out = append(out, cloneMap(item))
	}
	return out
}

// Remove 直接删除服务端记录，模拟其他客户端的删除。
func (b *Backend) Remove(path string, id uint) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	col := b.lookup("/" + strings.Trim(path, "/"))
	if col == nil {
		return false
	}
	for i, item := range col.items {
		if itemID(item) == id {
			col.items = append(col.items[:i], col.items[i+1:]...)
			return true
		}
	}
	return false
}

// FailNext 让下一次匹配 verb+path 的请求返回指定错误。
func (b *Backend) FailNext(verb, path string, status int, body gin.H) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := verb + " " + path
	b.failures[key] = append(b.failures[key], failure{status: status, body: body})
}

// Requests 返回收到的请求记录。
func (b *Backend) Requests() []Recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Recorded, len(b.requests))
	copy(out, b.requests)
	return out
}

// LastRequest 返回最近一次请求。
func (b *Backend) LastRequest() Recorded {
	reqs := b.Requests()
	if len(reqs) == 0 {
		return Recorded{}
	}
	return reqs[len(reqs)-1]
}

func (b *Backend) dispatch(c *gin.Context) {
	path := "/" + strings.Trim(c.Param("path"), "/")
	rec := Recorded{
		Method:      c.Request.Method,
		Verb:        c.Request.Method,
		Path:        path,
		ContentType: c.ContentType(),
		Auth:        c.GetHeader("Authorization"),
		Body:        map[string]any{},
	}

	switch {
	case strings.HasPrefix(rec.ContentType, "multipart/"):
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid multipart body"})
			return
		}
		for key, values := range form.Value {
			if len(values) > 0 {
				rec.Body[key] = values[0]
			}
		}
		for key, files := range form.File {
			for _, file := range files {
				rec.Files = append(rec.Files, key)
				rec.Body[key] = "/uploads/" + file.Filename
			}
		}
		sort.Strings(rec.Files)
		if override, ok := rec.Body["_method"].(string); ok {
			rec.Verb = strings.ToUpper(override)
			delete(rec.Body, "_method")
		}
	case rec.ContentType == "application/json":
		if err := json.NewDecoder(c.Request.Body).Decode(&rec.Body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid json"})
			return
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, rec)

	key := rec.Verb + " " + path
	if queued := b.failures[key]; len(queued) > 0 {
		b.failures[key] = queued[1:]
		c.JSON(queued[0].status, queued[0].body)
		return
	}

	col, id, field := b.route(path)
	if col == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Not found"})
		return
	}

	authorized := b.Token == "" || rec.Auth == "Bearer "+b.Token
	if !authorized && (rec.Verb != http.MethodGet || !col.public) {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Unauthenticated."})
		return
	}

	switch {
	case rec.Verb == http.MethodGet && id == 0:
		b.list(c, col)
	case rec.Verb == http.MethodGet:
		b.show(c, col, id)
	case rec.Verb == http.MethodPost && id == 0:
		b.create(c, col, rec.Body)
	case (rec.Verb == http.MethodPut || rec.Verb == http.MethodPatch) && id != 0 && field == "":
		b.update(c, col, id, rec.Body)
	case rec.Verb == http.MethodDelete && field != "":
		b.clearField(c, col, id, field)
	case rec.Verb == http.MethodDelete && id != 0:
		b.remove(c, col, id)
	default:
		c.JSON(http.StatusMethodNotAllowed, gin.H{"success": false, "message": "Method not allowed"})
	}
}

func (b *Backend) route(path string) (*collection, uint, string) {
	for _, col := range b.collections {
		if path == col.path {
			return col, 0, ""
		}
		if !strings.HasPrefix(path, col.path+"/") {
			continue
		}
		rest := strings.Split(strings.TrimPrefix(path, col.path+"/"), "/")
		id, err := strconv.ParseUint(rest[0], 10, 64)
		if err != nil {
			continue
		}
		if len(rest) == 1 {
			return col, uint(id), ""
		}
		if len(rest) == 3 && rest[1] == "field" {
			return col, uint(id), rest[2]
		}
	}
	return nil, 0, ""
}

func (b *Backend) lookup(path string) *collection {
	for _, col := range b.collections {
		if col.path == path {
			return col
		}
	}
	return nil
}

func (b *Backend) list(c *gin.Context, col *collection) {
	if col.singleton {
		var item any
		if len(col.items) > 0 {
			item = col.items[0]
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{col.itemKey: item}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{col.listKey: col.items}})
}

func (b *Backend) show(c *gin.Context, col *collection, id uint) {
	item := find(col, id)
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Record not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{col.itemKey: item}})
}

func (b *Backend) create(c *gin.Context, col *collection, body map[string]any) {
	if col.singleton && len(col.items) > 0 {
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": "Section already exists"})
		return
	}
	stored := cloneMap(body)
	stored["id"] = col.nextID
	col.nextID++
	col.items = append(col.items, stored)
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Created", "data": gin.H{col.itemKey: stored}})
}

func (b *Backend) update(c *gin.Context, col *collection, id uint, body map[string]any) {
	item := find(col, id)
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Record not found"})
		return
	}
	for key, value := range body {
		if key == "id" {
			continue
		}
		item[key] = value
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Updated", "data": gin.H{col.itemKey: item}})
}

func (b *Backend) clearField(c *gin.Context, col *collection, id uint, field string) {
	item := find(col, id)
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Record not found"})
		return
	}
	item[field] = nil
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{col.itemKey: item}})
}

func (b *Backend) remove(c *gin.Context, col *collection, id uint) {
	for i, item := range col.items {
		if itemID(item) == id {
			col.items = append(col.items[:i], col.items[i+1:]...)
			c.JSON(http.StatusOK, gin.H{"success": true, "message": "Deleted"})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Record not found"})
}

func find(col *collection, id uint) map[string]any {
	for _, item := range col.items {
		if itemID(item) == id {
			return item
		}
	}
	return nil
}

func itemID(item map[string]any) uint {
	switch v := item["id"].(type) {
	case uint:
		return v
	case int:
		return uint(v)
	case float64:
		return uint(v)
	default:
		n, _ := strconv.ParseUint(fmt.Sprint(v), 10, 64)
		return uint(n)
	}
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
