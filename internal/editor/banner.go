package editor

import (
	"sync"
	"time"
)

// BannerKind 区分提示类型。
type BannerKind int

const (
	BannerNone BannerKind = iota
	BannerSuccess
	BannerError
)

func (k BannerKind) String() string {
	switch k {
	case BannerSuccess:
		return "success"
	case BannerError:
		return "error"
	default:
		return "none"
	}
}

// Banner 是区块内的临时提示，到期后自动清除，不可手动关闭。
// TTL 为 0 时提示保留到下一次操作。
type Banner struct {
	successTTL time.Duration
	errorTTL   time.Duration

	mu      sync.Mutex
	kind    BannerKind
	message string
	seq     uint64
}

// NewBanner 创建提示。
func NewBanner(successTTL, errorTTL time.Duration) *Banner {
	return &Banner{successTTL: successTTL, errorTTL: errorTTL}
}

// Success 显示成功提示。
func (b *Banner) Success(message string) {
	b.show(BannerSuccess, message, b.successTTL)
}

// Error 显示错误提示。
func (b *Banner) Error(message string) {
	b.show(BannerError, message, b.errorTTL)
}

// Clear 立即清除提示。
func (b *Banner) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.kind = BannerNone
	b.message = ""
}

// Current 返回当前提示。
func (b *Banner) Current() (BannerKind, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.kind, b.message
}

func (b *Banner) show(kind BannerKind, message string, ttl time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.kind = kind
	b.message = message
	if ttl <= 0 {
		return
	}
	seq := b.seq
	time.AfterFunc(ttl, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		// 期间有新提示时不清除
		if b.seq == seq {
			b.kind = BannerNone
			b.message = ""
		}
	})
}
