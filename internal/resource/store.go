package resource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"

	"github.com/mecarvi/siteadmin/internal/api"
	"github.com/mecarvi/siteadmin/internal/attachment"
	"github.com/mecarvi/siteadmin/internal/logging"
	"github.com/mecarvi/siteadmin/internal/schema"
	"github.com/sirupsen/logrus"
)

// ErrMissingID 表示创建成功的响应里没有主键；客户端不会自行生成主键。
var ErrMissingID = errors.New("server response did not include a record id")

// Doer 是 Store 依赖的请求能力，*api.Client 实现了它。
type Doer interface {
	Do(ctx context.Context, req api.Request) (*api.Response, error)
}

// FetchErrorPolicy 决定拉取失败时如何处理已有数据。
type FetchErrorPolicy int

const (
	// ClearOnError 清空列表，宁可显示"无数据"也不显示可能过期的数据。
	ClearOnError FetchErrorPolicy = iota
	// KeepStale 保留上一次成功的数据，只通过错误状态提示。
	KeepStale
)

// Option 调整 Store 行为。
type Option func(*Store)

// WithFetchErrorPolicy 设置拉取失败策略。
func WithFetchErrorPolicy(policy FetchErrorPolicy) Option {
	return func(s *Store) {
		s.policy = policy
	}
}

// WithLogger 设置日志。
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// Store 持有一种资源的权威列表与操作状态。
// 每个 Store 独占自己的状态；并发操作按完成顺序覆盖（后写者胜）。
type Store struct {
	def    Definition
	client Doer
	log    logrus.FieldLogger
	policy FetchErrorPolicy

	mu      sync.RWMutex
	items   []Record
	state   State
	rev     uint64
	issued  uint64
	fetched bool
	loaded  bool
	written map[uint]uint64
}

// NewStore 创建资源 Store。
func NewStore(def Definition, client Doer, opts ...Option) (*Store, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("resource %s: client is required", def.Name)
	}
	s := &Store{
		def:     def,
		client:  client,
		log:     logging.Discard(),
		written: make(map[uint]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("resource", def.Name)
	return s, nil
}

// Definition 返回资源定义。
func (s *Store) Definition() Definition {
	return s.def
}

// Snapshot 返回当前状态的拷贝。
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Items:    cloneRecords(s.items),
		State:    s.state,
		Revision: s.rev,
		Issued:   s.issued,
		Fetched:  s.fetched,
		Loaded:   s.loaded,
	}
}

// Items 返回后台视图使用的完整列表（不按 is_active 过滤）。
func (s *Store) Items() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRecords(s.items)
}

// Active 返回前台展示用的列表，按 ActiveField 过滤。
func (s *Store) Active() []Record {
	items := s.Items()
	if s.def.ActiveField == "" {
		return items
	}
	out := make([]Record, 0, len(items))
	for _, item := range items {
		if item.Bool(s.def.ActiveField) {
			out = append(out, item)
		}
	}
	return out
}

// Find 按主键查找记录。
func (s *Store) Find(id uint) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.ID() == id {
			return item.Clone(), true
		}
	}
	return nil, false
}

// State 返回当前状态。
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// WrittenAt 返回该记录最近一次由写操作应用时的 Revision。
func (s *Store) WrittenAt(id uint) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.written[id]
}

// Fetch 拉取列表并整体替换本地数据。读操作不返回错误，失败体现在 State 中。
func (s *Store) Fetch(ctx context.Context, params url.Values) {
	issued := s.begin(PhaseLoading)

	resp, err := s.client.Do(ctx, api.Request{
		Method:   http.MethodGet,
		Path:     s.def.Path,
		Query:    params,
		Auth:     s.readAuth(),
		Resource: s.def.Name,
	})
	if ctx.Err() != nil {
		s.abandon(PhaseLoading)
		return
	}

	var items []Record
	if err == nil {
		items, err = s.decodeList(resp)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = true
	s.loaded = err == nil
	if err != nil {
		s.state = State{Phase: PhaseError, Message: api.Message(err), Err: err}
		if s.policy == ClearOnError {
			s.items = nil
			s.rev++
		}
		s.log.WithError(err).Warn("fetch failed")
		return
	}

	sortRecords(items, s.def.SortField)
	s.items = items
	s.rev++
	s.issued = issued
	s.state = State{Phase: PhaseIdle}
}

// Get 拉取单条记录并替换本地同主键的记录。
func (s *Store) Get(ctx context.Context, id uint) (Record, error) {
	s.begin(PhaseLoading)
	rec, err := s.send(ctx, api.Request{
		Method: http.MethodGet,
		Path:   s.def.itemPath(id),
		Auth:   s.readAuth(),
	}, id)
	if err != nil {
		return nil, s.finishErr(ctx, PhaseLoading, err)
	}
	if ctx.Err() != nil {
		s.abandon(PhaseLoading)
		return nil, ctx.Err()
	}
	s.apply(rec, PhaseIdle, "")
	return rec.Clone(), nil
}

// Create 新建记录；有附件时以 multipart 发送，否则发送 JSON。
// 成功后把服务端返回的记录追加到列表并返回。
func (s *Store) Create(ctx context.Context, values map[string]any, files map[string]*attachment.File) (Record, error) {
	payload, err := s.def.Schema.Build(values, schema.Create)
	if err != nil {
		s.fail(err)
		return nil, err
	}

	s.begin(PhaseSubmitting)
	rec, err := s.send(ctx, api.Request{
		Method: http.MethodPost,
		Path:   s.def.Path,
		Body:   payload,
		Files:  pendingFiles(files),
		Auth:   api.AuthAlways,
	}, 0)
	if err != nil {
		return nil, s.finishErr(ctx, PhaseSubmitting, err)
	}
	if ctx.Err() != nil {
		s.abandon(PhaseSubmitting)
		return nil, ctx.Err()
	}
	if rec.ID() == 0 {
		s.fail(ErrMissingID)
		return nil, ErrMissingID
	}

	s.apply(rec, PhaseSuccess, "Created successfully")
	return rec.Clone(), nil
}

// Update 更新记录。纯 JSON 时发送真正的 PUT；带附件时由 api.Client
// 改为 POST 并附带 _method=PUT。成功后整体替换本地记录。
func (s *Store) Update(ctx context.Context, id uint, values map[string]any, files map[string]*attachment.File) (Record, error) {
	payload, err := s.def.Schema.Build(values, schema.Update)
	if err != nil {
		s.fail(err)
		return nil, err
	}

	s.begin(PhaseSubmitting)
	rec, err := s.send(ctx, api.Request{
		Method: http.MethodPut,
		Path:   s.def.itemPath(id),
		Body:   payload,
		Files:  pendingFiles(files),
		Auth:   api.AuthAlways,
	}, id)
	if err != nil {
		return nil, s.finishErr(ctx, PhaseSubmitting, err)
	}
	if ctx.Err() != nil {
		s.abandon(PhaseSubmitting)
		return nil, ctx.Err()
	}

	s.apply(rec, PhaseSuccess, "Updated successfully")
	return rec.Clone(), nil
}

// Delete 删除记录并从列表中移除。
func (s *Store) Delete(ctx context.Context, id uint) error {
	s.begin(PhaseSubmitting)
	_, err := s.client.Do(ctx, api.Request{
		Method:   http.MethodDelete,
		Path:     s.def.itemPath(id),
		Auth:     api.AuthAlways,
		Resource: s.def.Name,
	})
	if ctx.Err() != nil {
		s.abandon(PhaseSubmitting)
		return ctx.Err()
	}
	if err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0:0]
	for _, item := range s.items {
		if item.ID() != id {
			kept = append(kept, item)
		}
	}
	s.items = kept
	s.rev++
	delete(s.written, id)
	s.state = State{Phase: PhaseSuccess, Message: "Deleted successfully"}
	return nil
}

// DeleteField 清空单个字段（通常是图片），并用服务端返回的记录替换本地记录。
func (s *Store) DeleteField(ctx context.Context, id uint, field string) (Record, error) {
	if _, ok := s.def.Schema.Field(field); !ok {
		err := fmt.Errorf("%w: %s", schema.ErrUnknownField, field)
		s.fail(err)
		return nil, err
	}

	s.begin(PhaseSubmitting)
	resp, err := s.client.Do(ctx, api.Request{
		Method:   http.MethodDelete,
		Path:     s.def.fieldPath(id, field),
		Auth:     api.AuthAlways,
		Resource: s.def.Name,
	})
	if ctx.Err() != nil {
		s.abandon(PhaseSubmitting)
		return nil, ctx.Err()
	}
	if err != nil {
		s.fail(err)
		return nil, err
	}

	var rec Record
	if resp.Empty(s.def.ItemKey) {
		// 服务端未返回记录时，仅在本地清空该字段
		existing, ok := s.Find(id)
		if !ok {
			existing = Record{"id": id}
		}
		existing[field] = nil
		rec = existing
	} else if err := resp.Decode(s.def.ItemKey, &rec); err != nil {
		s.fail(err)
		return nil, err
	}
	if rec.ID() == 0 {
		rec["id"] = id
	}

	s.apply(rec, PhaseSuccess, "Field removed")
	return rec.Clone(), nil
}

// ClearStatus 清除成功或错误提示，回到空闲状态。
func (s *Store) ClearStatus() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Busy() {
		s.state = State{Phase: PhaseIdle}
	}
}

func (s *Store) readAuth() api.AuthMode {
	if s.def.Public {
		return api.AuthPublic
	}
	return api.AuthAlways
}

func (s *Store) send(ctx context.Context, req api.Request, id uint) (Record, error) {
	req.Resource = s.def.Name
	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := resp.Decode(s.def.ItemKey, &rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: empty %s", api.ErrInvalidBody, s.def.ItemKey)
	}
	if rec.ID() == 0 && id != 0 {
		rec["id"] = id
	}
	return rec, nil
}

func (s *Store) decodeList(resp *api.Response) ([]Record, error) {
	if s.def.Singleton {
		if resp.Empty(s.def.ItemKey) {
			return nil, nil
		}
		var rec Record
		if err := resp.Decode(s.def.ItemKey, &rec); err != nil {
			return nil, err
		}
		return []Record{rec}, nil
	}

	if resp.Empty(s.def.ListKey) {
		return nil, nil
	}
	var items []Record
	if err := resp.Decode(s.def.ListKey, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// begin 进入进行中状态，返回当前 Revision。
func (s *Store) begin(phase Phase) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{Phase: phase}
	return s.rev
}

// abandon 调用方已取消：不应用结果，只撤销进行中状态。
func (s *Store) abandon(phase Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Phase == phase {
		s.state = State{Phase: PhaseIdle}
	}
}

func (s *Store) finishErr(ctx context.Context, phase Phase, err error) error {
	if ctx.Err() != nil {
		s.abandon(phase)
		return err
	}
	s.fail(err)
	return err
}

func (s *Store) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{Phase: PhaseError, Message: api.Message(err), Err: err}
	s.log.WithError(err).Warn("operation failed")
}

// apply 写入一条记录：已存在则整体替换，否则追加；单例区块始终只保留一条。
func (s *Store) apply(rec Record, phase Phase, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := rec.ID()
	if s.def.Singleton {
		s.items = []Record{rec}
	} else {
		replaced := false
		next := make([]Record, 0, len(s.items)+1)
		for _, item := range s.items {
			if item.ID() != id {
				next = append(next, item)
				continue
			}
			if !replaced {
				next = append(next, rec)
				replaced = true
			}
		}
		if !replaced {
			next = append(next, rec)
		}
		s.items = next
	}

	s.rev++
	s.written[id] = s.rev
	s.state = State{Phase: phase, Message: message}
}

func pendingFiles(files map[string]*attachment.File) map[string]*attachment.File {
	if len(files) == 0 {
		return nil
	}
	out := make(map[string]*attachment.File, len(files))
	for name, file := range files {
		if file != nil {
			out[name] = file
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func sortRecords(items []Record, field string) {
	if field == "" {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Int(field), items[j].Int(field)
		if a != b {
			return a < b
		}
		return items[i].ID() < items[j].ID()
	})
}

func cloneRecords(items []Record) []Record {
	out := make([]Record, 0, len(items))
	for _, item := range items {
		out = append(out, item.Clone())
	}
	return out
}
