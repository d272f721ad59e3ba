package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mecarvi/siteadmin/internal/schema"
)

// ErrNoSortField 表示资源没有排序字段，无法重排。
var ErrNoSortField = errors.New("resource has no sort field")

// Op 是批量保存中的一个独立操作。
type Op struct {
	Name string
	Run  func(ctx context.Context) error
}

// OpError 记录单个失败操作。
type OpError struct {
	Name string
	Err  error
}

// BatchResult 汇总批量保存结果。没有回滚：成功的操作保持生效。
type BatchResult struct {
	Succeeded int
	Failed    int
	Errors    []OpError
}

// String 返回 "N succeeded, M failed"。
func (r BatchResult) String() string {
	return fmt.Sprintf("%d succeeded, %d failed", r.Succeeded, r.Failed)
}

// Err 在有失败时返回 *BatchError。
func (r BatchResult) Err() error {
	if r.Failed == 0 {
		return nil
	}
	return &BatchError{Result: r}
}

// Merge 合并两个结果。
func (r BatchResult) Merge(other BatchResult) BatchResult {
	r.Succeeded += other.Succeeded
	r.Failed += other.Failed
	r.Errors = append(append([]OpError(nil), r.Errors...), other.Errors...)
	return r
}

// BatchError 表示部分失败的批量操作。
type BatchError struct {
	Result BatchResult
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Result.Errors))
	for _, item := range e.Result.Errors {
		parts = append(parts, item.Name+": "+item.Err.Error())
	}
	return e.Result.String() + " (" + strings.Join(parts, "; ") + ")"
}

// Unwrap 暴露各个操作的错误，便于 errors.Is 判断。
func (e *BatchError) Unwrap() []error {
	out := make([]error, 0, len(e.Result.Errors))
	for _, item := range e.Result.Errors {
		out = append(out, item.Err)
	}
	return out
}

// BatchSave 依次执行相互独立的操作，逐个计数。某个操作失败不影响后续操作。
// ctx 结束后剩余操作记为失败，不再发送。
func BatchSave(ctx context.Context, ops []Op) BatchResult {
	var result BatchResult
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, OpError{Name: op.Name, Err: err})
			continue
		}
		if err := op.Run(ctx); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, OpError{Name: op.Name, Err: err})
			continue
		}
		result.Succeeded++
	}
	return result
}

// ApplyToAll 把同一个字段值写入集合中的每条记录，如营业时间的区块标题。
// 每条记录单独更新，载荷基于记录当前值，避免数值与布尔字段被默认值覆盖；
// 每条更新成功后同步该记录未修改的草稿。
func (s *Section) ApplyToAll(ctx context.Context, field string, value any) (BatchResult, error) {
	var result BatchResult
	err := s.guard("apply to all", func() error {
		def := s.store.Definition()
		if _, ok := def.Schema.Field(field); !ok {
			return fmt.Errorf("%w: %s", schema.ErrUnknownField, field)
		}

		items := s.store.Items()
		ops := make([]Op, 0, len(items))
		for _, item := range items {
			rec := item
			ops = append(ops, Op{
				Name: fmt.Sprintf("%s #%d", def.Name, rec.ID()),
				Run: func(ctx context.Context) error {
					values := rec.Clone()
					values[field] = value
					return s.updateRecord(ctx, rec.ID(), values)
				},
			})
		}
		result = BatchSave(ctx, ops)
		return s.reportBatch(result)
	})
	return result, err
}

// Reorder 按 ids 的顺序重写排序字段，只更新顺序发生变化的记录。
func (s *Section) Reorder(ctx context.Context, ids []uint) (BatchResult, error) {
	var result BatchResult
	err := s.guard("reorder", func() error {
		def := s.store.Definition()
		if def.SortField == "" {
			return fmt.Errorf("%w: %s", ErrNoSortField, def.Name)
		}

		ops := make([]Op, 0, len(ids))
		for index, id := range ids {
			rec, ok := s.store.Find(id)
			if !ok {
				return fmt.Errorf("resource %s: record %d: %w", def.Name, id, ErrRecordNotFound)
			}
			order := index + 1
			if rec.Int(def.SortField) == order {
				continue
			}
			ops = append(ops, Op{
				Name: fmt.Sprintf("%s #%d", def.Name, id),
				Run: func(ctx context.Context) error {
					values := rec.Clone()
					values[def.SortField] = order
					return s.updateRecord(ctx, id, values)
				},
			})
		}
		result = BatchSave(ctx, ops)
		return s.reportBatch(result)
	})
	return result, err
}

func (s *Section) updateRecord(ctx context.Context, id uint, values map[string]any) error {
	rec, err := s.store.Update(ctx, id, values, nil)
	if err != nil {
		return err
	}
	s.syncRecord(rec)
	return nil
}

// reportBatch 成功时显示计数，部分失败时交给 guard 显示错误提示。
func (s *Section) reportBatch(result BatchResult) error {
	if err := result.Err(); err != nil {
		return err
	}
	if result.Succeeded > 0 {
		s.banner.Success(result.String())
	}
	return nil
}
