package editor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mecarvi/siteadmin/internal/api"
	"github.com/mecarvi/siteadmin/internal/draft"
	"github.com/mecarvi/siteadmin/internal/logging"
	"github.com/mecarvi/siteadmin/internal/resource"
	"github.com/sirupsen/logrus"
)

var (
	// ErrRecordNotFound 表示 Store 中没有该主键的记录。
	ErrRecordNotFound = errors.New("record not found")
	// ErrSingletonKey 表示单例区块收到了非 0 的草稿键。
	ErrSingletonKey = errors.New("singleton drafts use key 0")
)

// Options 是区块的可选配置。
type Options struct {
	SuccessTTL time.Duration
	ErrorTTL   time.Duration
	Logger     logrus.FieldLogger
}

// DefaultSuccessTTL 是成功提示的默认显示时长。
const DefaultSuccessTTL = 3 * time.Second

// Section 把一个资源 Store 与它的草稿组合在一起，是独立的错误边界：
// 一个区块的失败只影响它自己的提示与草稿。
type Section struct {
	store *resource.Store
	// single 只在单例区块上非空，用于判断创建还是更新
	single *resource.Section
	banner *Banner
	log    logrus.FieldLogger

	mu     sync.Mutex
	drafts map[uint]*draft.Draft
}

// NewSection 创建区块。单例区块的草稿键固定为 0。
func NewSection(store *resource.Store, opts Options) *Section {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	s := &Section{
		store:  store,
		banner: NewBanner(opts.SuccessTTL, opts.ErrorTTL),
		log:    log.WithField("section", store.Definition().Name),
		drafts: make(map[uint]*draft.Draft),
	}
	if store.Definition().Singleton {
		s.single = &resource.Section{Store: store}
	}
	return s
}

// NewSingletonSection 用单例 Store 创建区块。
func NewSingletonSection(single *resource.Section, opts Options) *Section {
	s := NewSection(single.Store, opts)
	s.single = single
	return s
}

// Name 返回资源名称。
func (s *Section) Name() string {
	return s.store.Definition().Name
}

// Store 返回底层 Store。
func (s *Section) Store() *resource.Store {
	return s.store
}

// Banner 返回区块提示。
func (s *Section) Banner() *Banner {
	return s.banner
}

// Singleton 报告是否为单例区块。
func (s *Section) Singleton() bool {
	return s.single != nil
}

// Presence 返回单例记录的存在状态；集合区块总是 PresencePresent。
func (s *Section) Presence() resource.Presence {
	if s.single == nil {
		return resource.PresencePresent
	}
	_, presence := s.single.Current()
	return presence
}

// Refresh 拉取数据并同步未修改的草稿。
func (s *Section) Refresh(ctx context.Context) {
	s.guard("refresh", func() error {
		s.store.Fetch(ctx, nil)
		snap := s.store.Snapshot()
		if snap.State.Phase == resource.PhaseError {
			s.banner.Error(snap.State.Message)
			return nil
		}
		if snap.Loaded {
			s.syncDrafts(snap)
		}
		return nil
	})
}

// Draft 返回某条记录的草稿，不存在时从 Store 中的记录播种。
// 集合的 0 号草稿用于新建。
func (s *Section) Draft(id uint) (*draft.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draftLocked(id)
}

func (s *Section) draftLocked(id uint) (*draft.Draft, error) {
	if d, ok := s.drafts[id]; ok {
		return d, nil
	}

	def := s.store.Definition()
	d := draft.New(def.Schema)
	switch {
	case def.Singleton:
		if id != 0 {
			return nil, fmt.Errorf("section %s: %w", def.Name, ErrSingletonKey)
		}
		if items := s.store.Items(); len(items) > 0 {
			d.Seed(items[0])
		}
	case id != 0:
		rec, ok := s.store.Find(id)
		if !ok {
			return nil, fmt.Errorf("section %s: record %d: %w", def.Name, id, ErrRecordNotFound)
		}
		d.Seed(rec)
	}
	s.drafts[id] = d
	return d, nil
}

// Drafts 返回所有已打开的草稿，按键排序。
func (s *Section) Drafts() map[uint]*draft.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint]*draft.Draft, len(s.drafts))
	for k, v := range s.drafts {
		out[k] = v
	}
	return out
}

// Dirty 报告是否有未保存的草稿。
func (s *Section) Dirty() bool {
	for _, d := range s.Drafts() {
		if d.Dirty() {
			return true
		}
	}
	return false
}

// SaveDraft 保存草稿。新建成功后草稿转移到新主键下，0 号草稿重新置空。
func (s *Section) SaveDraft(ctx context.Context, id uint) (resource.Record, error) {
	d, err := s.Draft(id)
	if err != nil {
		return nil, err
	}

	var rec resource.Record
	err = s.guard("save", func() error {
		var saveErr error
		rec, saveErr = d.Submit(ctx, s.persist)
		if saveErr != nil {
			return saveErr
		}
		if !s.Singleton() && id == 0 {
			s.mu.Lock()
			s.drafts[rec.ID()] = d
			s.drafts[0] = draft.New(s.store.Definition().Schema)
			s.mu.Unlock()
		}
		s.banner.Success(successMessage(s.store.State().Message, "Saved successfully"))
		return nil
	})
	return rec, err
}

// persist 把一次草稿提交翻译为 Store 操作。单例区块按存在状态决定创建或更新，
// 与草稿记住的主键无关。
func (s *Section) persist(ctx context.Context, sub draft.Submission) (resource.Record, uint64, error) {
	var (
		rec resource.Record
		err error
	)
	switch {
	case s.single != nil:
		rec, err = s.single.Save(ctx, sub.Values, sub.Files)
	case sub.ID == 0:
		rec, err = s.store.Create(ctx, sub.Values, sub.Files)
	default:
		rec, err = s.store.Update(ctx, sub.ID, sub.Values, sub.Files)
	}
	if err != nil {
		return nil, 0, err
	}

	for _, field := range sub.Removals {
		if _, pending := sub.Files[field]; pending {
			continue
		}
		rec, err = s.store.DeleteField(ctx, rec.ID(), field)
		if err != nil {
			return nil, 0, err
		}
	}
	return rec, s.store.WrittenAt(rec.ID()), nil
}

// Cancel 丢弃草稿修改。
func (s *Section) Cancel(id uint) error {
	d, err := s.Draft(id)
	if err != nil {
		return err
	}
	if err := d.Cancel(); err != nil {
		return err
	}
	s.banner.Clear()
	return nil
}

// Delete 删除记录并关闭其草稿。
func (s *Section) Delete(ctx context.Context, id uint) error {
	return s.guard("delete", func() error {
		if err := s.store.Delete(ctx, id); err != nil {
			return err
		}
		s.mu.Lock()
		delete(s.drafts, id)
		if s.Singleton() {
			delete(s.drafts, 0)
		}
		s.mu.Unlock()
		s.banner.Success(successMessage(s.store.State().Message, "Deleted successfully"))
		return nil
	})
}

// DeleteField 清空记录的单个附件字段，未修改的草稿随之更新。
func (s *Section) DeleteField(ctx context.Context, id uint, field string) (resource.Record, error) {
	var rec resource.Record
	err := s.guard("delete field", func() error {
		var err error
		rec, err = s.store.DeleteField(ctx, id, field)
		if err != nil {
			return err
		}
		s.syncRecord(rec)
		s.banner.Success(successMessage(s.store.State().Message, "Field removed"))
		return nil
	})
	return rec, err
}

// SaveResult 保存所有有修改的草稿，结果逐个计数。
func (s *Section) SaveResult(ctx context.Context) BatchResult {
	drafts := s.Drafts()
	keys := make([]uint, 0, len(drafts))
	for key, d := range drafts {
		if d.Dirty() {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	ops := make([]Op, 0, len(keys))
	for _, key := range keys {
		ops = append(ops, Op{
			Name: fmt.Sprintf("%s #%d", s.Name(), key),
			Run: func(ctx context.Context) error {
				_, err := s.SaveDraft(ctx, key)
				return err
			},
		})
	}
	return BatchSave(ctx, ops)
}

// Save 保存本区块的当前草稿，供页面级"全部保存"调用。
func (s *Section) Save(ctx context.Context) error {
	return s.SaveResult(ctx).Err()
}

// syncDrafts 用刷新结果同步草稿；草稿自行判断是否接受。
func (s *Section) syncDrafts(snap resource.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, d := range s.drafts {
		var rec resource.Record
		switch {
		case s.Singleton():
			if len(snap.Items) > 0 {
				rec = snap.Items[0]
			}
		case key == 0:
			continue
		default:
			for _, item := range snap.Items {
				if item.ID() == key {
					rec = item
					break
				}
			}
		}
		if rec == nil {
			// 记录已不存在
			switch {
			case s.Singleton():
				d.Sync(nil, snap.Issued)
			case !d.Dirty():
				delete(s.drafts, key)
			}
			continue
		}
		d.Sync(rec, snap.Issued)
	}
}

// syncRecord 用一次写入的结果同步该记录的草稿。
func (s *Section) syncRecord(rec resource.Record) {
	key := rec.ID()
	if s.Singleton() {
		key = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.drafts[key]; ok {
		d.Sync(rec, s.store.WrittenAt(rec.ID()))
	}
}

// guard 是区块的错误边界：记录错误、更新提示，并把 panic 转为错误。
func (s *Section) guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("section %s: %s panicked: %v", s.Name(), op, r)
		}
		if err != nil {
			s.log.WithError(err).WithField("op", op).Warn("section operation failed")
			s.banner.Error(api.Message(err))
		}
	}()
	return fn()
}

func successMessage(message, fallback string) string {
	if message != "" {
		return message
	}
	return fallback
}
