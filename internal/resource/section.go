package resource

import (
	"context"
	"errors"
	"fmt"

	"github.com/mecarvi/siteadmin/internal/attachment"
)

// ErrPresenceUnknown 表示尚未成功拉取，无法判断该创建还是更新。
var ErrPresenceUnknown = errors.New("section has not been loaded, refresh before saving")

// Presence 区分单例区块的三种情况。
type Presence int

const (
	// PresenceLoading 尚未成功拉取（包括拉取失败）
	PresenceLoading Presence = iota
	// PresenceAbsent 已拉取但尚未创建
	PresenceAbsent
	// PresencePresent 已存在且有主键
	PresencePresent
)

func (p Presence) String() string {
	switch p {
	case PresenceAbsent:
		return "absent"
	case PresencePresent:
		return "present"
	default:
		return "loading"
	}
}

// Section 是单例区块（如 hero、about）的 Store 封装。
type Section struct {
	*Store
}

// NewSection 创建单例区块。定义必须标记为 Singleton。
func NewSection(def Definition, client Doer, opts ...Option) (*Section, error) {
	if !def.Singleton {
		return nil, fmt.Errorf("resource %s: section requires a singleton definition", def.Name)
	}
	store, err := NewStore(def, client, opts...)
	if err != nil {
		return nil, err
	}
	return &Section{Store: store}, nil
}

// Load 拉取区块。
func (s *Section) Load(ctx context.Context) {
	s.Fetch(ctx, nil)
}

// Current 返回当前记录与存在状态。
func (s *Section) Current() (Record, Presence) {
	snap := s.Snapshot()
	if len(snap.Items) > 0 && snap.Items[0].ID() != 0 {
		return snap.Items[0], PresencePresent
	}
	if !snap.Loaded {
		return nil, PresenceLoading
	}
	return nil, PresenceAbsent
}

// Save 不存在时创建，已存在时更新；存在状态未知时拒绝保存。
func (s *Section) Save(ctx context.Context, values map[string]any, files map[string]*attachment.File) (Record, error) {
	current, presence := s.Current()
	switch presence {
	case PresencePresent:
		return s.Update(ctx, current.ID(), values, files)
	case PresenceAbsent:
		return s.Create(ctx, values, files)
	default:
		s.fail(ErrPresenceUnknown)
		return nil, ErrPresenceUnknown
	}
}
