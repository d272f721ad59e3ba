// Package editor 组合资源 Store 与草稿，提供按区块隔离的保存、批量操作与临时提示。
package editor

import (
	"context"
	"fmt"
	"sync"
)

// Saver 是可被页面级"全部保存"调用的保存入口。
type Saver interface {
	Save(ctx context.Context) error
}

// Editor 是一组区块。
type Editor struct {
	sections []*Section
	byName   map[string]*Section
}

// New 创建编辑器，区块名称不可重复。
func New(sections ...*Section) (*Editor, error) {
	e := &Editor{byName: make(map[string]*Section, len(sections))}
	for _, section := range sections {
		name := section.Name()
		if _, exists := e.byName[name]; exists {
			return nil, fmt.Errorf("editor: duplicate section %q", name)
		}
		e.byName[name] = section
		e.sections = append(e.sections, section)
	}
	return e, nil
}

// Sections 按注册顺序返回区块。
func (e *Editor) Sections() []*Section {
	out := make([]*Section, len(e.sections))
	copy(out, e.sections)
	return out
}

// Section 按名称查找区块。
func (e *Editor) Section(name string) (*Section, bool) {
	section, ok := e.byName[name]
	return section, ok
}

// Load 并发刷新所有区块；各区块状态互相独立。
func (e *Editor) Load(ctx context.Context) {
	var wg sync.WaitGroup
	for _, section := range e.sections {
		wg.Add(1)
		go func(section *Section) {
			defer wg.Done()
			section.Refresh(ctx)
		}(section)
	}
	wg.Wait()
}

// SaveAll 保存所有有修改的区块。一个区块失败不影响其他区块。
func (e *Editor) SaveAll(ctx context.Context) BatchResult {
	var result BatchResult
	for _, section := range e.sections {
		if !section.Dirty() {
			continue
		}
		result = result.Merge(section.SaveResult(ctx))
	}
	return result
}

// Save 实现 Saver。
func (e *Editor) Save(ctx context.Context) error {
	return e.SaveAll(ctx).Err()
}

var (
	_ Saver = (*Editor)(nil)
	_ Saver = (*Section)(nil)
)
