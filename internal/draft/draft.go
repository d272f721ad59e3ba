// Package draft 维护单条记录的编辑草稿，把未提交的修改与权威列表隔离开。
package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mecarvi/siteadmin/internal/attachment"
	"github.com/mecarvi/siteadmin/internal/resource"
	"github.com/mecarvi/siteadmin/internal/schema"
)

// Phase 是草稿的显式状态。
type Phase int

const (
	PhaseEmpty Phase = iota
	PhaseSeeded
	PhaseDirty
	PhaseSubmitting
	PhaseSettled
)

func (p Phase) String() string {
	switch p {
	case PhaseSeeded:
		return "seeded"
	case PhaseDirty:
		return "dirty"
	case PhaseSubmitting:
		return "submitting"
	case PhaseSettled:
		return "settled"
	default:
		return "empty"
	}
}

var (
	// ErrSubmitInFlight 表示已有保存在进行中。
	ErrSubmitInFlight = errors.New("a save is already in progress")
	// ErrNotAttachment 表示对非附件字段调用了附件操作。
	ErrNotAttachment = errors.New("field is not an attachment")
	// ErrIsAttachment 表示对附件字段调用了标量赋值。
	ErrIsAttachment = errors.New("field is an attachment")
)

// Attachment 是附件字段在草稿中的两种来源：已有 URL 或待上传文件。
type Attachment struct {
	URL  string
	File *attachment.File
	// Remove 表示用户清除了已有附件，保存时需要单独删除该字段
	Remove bool
}

// Pending 报告是否有待上传文件。
func (a Attachment) Pending() bool {
	return a.File != nil
}

// Source 返回展示用的来源：待上传文件优先于已有 URL。
func (a Attachment) Source() string {
	if a.File != nil {
		return "pending:" + a.File.Name
	}
	return a.URL
}

// Snapshot 是草稿的只读视图。
type Snapshot struct {
	ID          uint
	Phase       Phase
	Values      map[string]any
	Attachments map[string]Attachment
}

// Submission 是一次保存要发送的内容。
type Submission struct {
	ID       uint
	Values   map[string]any
	Files    map[string]*attachment.File
	Removals []string
}

// SaveFunc 执行保存，返回服务端记录以及该记录被写入 Store 时的 Revision。
type SaveFunc func(ctx context.Context, sub Submission) (resource.Record, uint64, error)

// Draft 是一条记录的编辑草稿，可并发访问。
type Draft struct {
	schema schema.Schema

	mu          sync.Mutex
	phase       Phase
	id          uint
	seed        resource.Record
	values      map[string]any
	attachments map[string]Attachment
	edited      bool
	settledRev  uint64
}

// New 创建空草稿。
func New(s schema.Schema) *Draft {
	d := &Draft{schema: s}
	d.reset(nil)
	return d
}

// Seed 用记录覆盖草稿内容，丢弃未保存的修改。对同一记录重复调用结果相同。
func (d *Draft) Seed(rec resource.Record) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset(rec)
}

// reset 从记录重建字段；rec 为空时回到 Empty。
func (d *Draft) reset(rec resource.Record) {
	d.seed = rec.Clone()
	d.id = rec.ID()
	d.values = make(map[string]any, len(d.schema.Fields))
	d.attachments = make(map[string]Attachment)
	d.edited = false

	for _, field := range d.schema.Fields {
		if field.IsAttachment() {
			d.attachments[field.Name] = Attachment{URL: rec.String(field.Name)}
			continue
		}
		if rec == nil || rec[field.Name] == nil {
			d.values[field.Name] = field.Blank()
			continue
		}
		d.values[field.Name] = field.Normalize(rec[field.Name])
	}

	if rec == nil {
		d.phase = PhaseEmpty
	} else {
		d.phase = PhaseSeeded
	}
}

// Set 修改标量字段。保存进行中也允许编辑。
func (d *Draft) Set(name string, value any) error {
	field, ok := d.schema.Field(name)
	if !ok {
		return fmt.Errorf("%w: %s", schema.ErrUnknownField, name)
	}
	if field.IsAttachment() {
		return fmt.Errorf("%w: %s", ErrIsAttachment, name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[name] = field.Normalize(value)
	d.touch()
	return nil
}

// SetFile 暂存待上传文件，同时清空该字段的已有 URL。
func (d *Draft) SetFile(name string, file *attachment.File) error {
	if err := d.attachmentField(name); err != nil {
		return err
	}
	if file == nil {
		return attachment.ErrEmptyFile
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.attachments[name] = Attachment{File: file}
	d.touch()
	return nil
}

// ClearAttachment 移除附件。已有 URL 的附件在保存时会被删除。
func (d *Draft) ClearAttachment(name string) error {
	if err := d.attachmentField(name); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.attachments[name] = Attachment{Remove: d.seed.String(name) != ""}
	d.touch()
	return nil
}

func (d *Draft) attachmentField(name string) error {
	field, ok := d.schema.Field(name)
	if !ok {
		return fmt.Errorf("%w: %s", schema.ErrUnknownField, name)
	}
	if !field.IsAttachment() {
		return fmt.Errorf("%w: %s", ErrNotAttachment, name)
	}
	return nil
}

func (d *Draft) touch() {
	d.edited = true
	if d.phase != PhaseSubmitting {
		d.phase = PhaseDirty
	}
}

// Cancel 丢弃修改，恢复到最近一次播种的内容。
func (d *Draft) Cancel() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase == PhaseSubmitting {
		return ErrSubmitInFlight
	}
	d.reset(d.seed)
	return nil
}

// ID 返回草稿对应的记录主键，新建草稿为 0。
func (d *Draft) ID() uint {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.id
}

// Phase 返回当前状态。
func (d *Draft) Phase() Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

// Dirty 报告是否有未保存的修改。
func (d *Draft) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.edited
}

// Values 返回标量字段的拷贝。
func (d *Draft) Values() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cloneValues(d.values)
}

// Files 返回待上传文件。
func (d *Draft) Files() map[string]*attachment.File {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pendingFiles()
}

// Removals 返回需要删除的附件字段，按名称排序。
func (d *Draft) Removals() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removals()
}

// Attachments 返回附件字段的拷贝。
func (d *Draft) Attachments() map[string]Attachment {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]Attachment, len(d.attachments))
	for k, v := range d.attachments {
		out[k] = v
	}
	return out
}

// Snapshot 返回草稿的只读视图。
func (d *Draft) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	atts := make(map[string]Attachment, len(d.attachments))
	for k, v := range d.attachments {
		atts[k] = v
	}
	return Snapshot{
		ID:          d.id,
		Phase:       d.phase,
		Values:      cloneValues(d.values),
		Attachments: atts,
	}
}

// Submit 提交草稿。成功后以服务端返回的记录重新播种；失败时保留修改以便重试。
func (d *Draft) Submit(ctx context.Context, save SaveFunc) (resource.Record, error) {
	d.mu.Lock()
	if d.phase == PhaseSubmitting {
		d.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	previous := d.phase
	d.phase = PhaseSubmitting
	sub := Submission{
		ID:       d.id,
		Values:   cloneValues(d.values),
		Files:    d.pendingFiles(),
		Removals: d.removals(),
	}
	d.mu.Unlock()

	rec, rev, err := save(ctx, sub)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		if d.edited {
			d.phase = PhaseDirty
		} else {
			d.phase = previous
		}
		return nil, err
	}

	d.reset(rec)
	d.phase = PhaseSettled
	d.settledRev = rev
	return rec.Clone(), nil
}

// Sync 处理后台刷新得到的记录。正在编辑或保存时忽略；
// issued 早于本草稿自身保存的 Revision 时也忽略，避免较慢的刷新覆盖较新的保存结果。
// rec 为空表示记录已不存在，草稿回到 Empty。返回是否重新播种。
func (d *Draft) Sync(rec resource.Record, issued uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.edited || d.phase == PhaseSubmitting {
		return false
	}
	if issued < d.settledRev {
		return false
	}
	d.reset(rec)
	return true
}

type exported struct {
	ID       uint                        `json:"id"`
	Seed     resource.Record             `json:"seed,omitempty"`
	Values   map[string]any              `json:"values"`
	URLs     map[string]string           `json:"urls,omitempty"`
	Files    map[string]*attachment.File `json:"files,omitempty"`
	Removals []string                    `json:"removals,omitempty"`
}

// Export 把草稿编码为 JSON，用于保存失败后的本地留存。
func (d *Draft) Export() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := exported{
		ID:       d.id,
		Seed:     d.seed,
		Values:   d.values,
		URLs:     make(map[string]string),
		Files:    d.pendingFiles(),
		Removals: d.removals(),
	}
	for name, att := range d.attachments {
		if att.URL != "" {
			out.URLs[name] = att.URL
		}
	}
	return json.Marshal(out)
}

// Restore 从 Export 的结果恢复草稿，恢复后为 Dirty。
func (d *Draft) Restore(data []byte) error {
	var in exported
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode draft: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase == PhaseSubmitting {
		return ErrSubmitInFlight
	}
	d.reset(in.Seed)
	d.id = in.ID
	for _, field := range d.schema.Fields {
		if field.IsAttachment() {
			att := Attachment{URL: in.URLs[field.Name], File: in.Files[field.Name]}
			if att.File != nil {
				att.URL = ""
			}
			d.attachments[field.Name] = att
			continue
		}
		if value, ok := in.Values[field.Name]; ok {
			d.values[field.Name] = field.Normalize(value)
		}
	}
	for _, name := range in.Removals {
		if att, ok := d.attachments[name]; ok && att.File == nil {
			d.attachments[name] = Attachment{Remove: true}
		}
	}
	d.edited = true
	d.phase = PhaseDirty
	return nil
}

func (d *Draft) pendingFiles() map[string]*attachment.File {
	out := make(map[string]*attachment.File)
	for name, att := range d.attachments {
		if att.File != nil {
			out[name] = att.File
		}
	}
	return out
}

func (d *Draft) removals() []string {
	out := make([]string, 0)
	for name, att := range d.attachments {
		if att.Remove {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func cloneValues(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
