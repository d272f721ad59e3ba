package handler

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/mecarvi/siteadmin/internal/api"
	"github.com/mecarvi/siteadmin/internal/attachment"
	"github.com/mecarvi/siteadmin/internal/card"
	"github.com/mecarvi/siteadmin/internal/draft"
	"github.com/mecarvi/siteadmin/internal/editor"
	"github.com/mecarvi/siteadmin/internal/resource"
	"github.com/mecarvi/siteadmin/internal/service"
	"github.com/mecarvi/siteadmin/internal/site"
)

type attachmentView struct {
	Source  string `json:"source"`
	Pending bool   `json:"pending"`
	Remove  bool   `json:"remove"`
	Size    int    `json:"size,omitempty"`
}

type draftView struct {
	Key         uint                      `json:"key"`
	ID          uint                      `json:"id"`
	Phase       string                    `json:"phase"`
	Dirty       bool                      `json:"dirty"`
	Values      map[string]any            `json:"values"`
	Attachments map[string]attachmentView `json:"attachments"`
}

type draftUpdateRequest struct {
	Values map[string]any `json:"values"`
	// Clear 列出要清除的附件字段
	Clear []string `json:"clear"`
}

type applyRequest struct {
	Field string `json:"field" binding:"required"`
	Value any    `json:"value"`
}

type reorderRequest struct {
	IDs []uint `json:"ids" binding:"required"`
}

func newDraftView(key uint, d *draft.Draft) draftView {
	snap := d.Snapshot()
	view := draftView{
		Key:         key,
		ID:          snap.ID,
		Phase:       snap.Phase.String(),
		Dirty:       d.Dirty(),
		Values:      snap.Values,
		Attachments: make(map[string]attachmentView, len(snap.Attachments)),
	}
	for name, att := range snap.Attachments {
		view.Attachments[name] = attachmentView{Source: att.Source(), Pending: att.Pending(), Remove: att.Remove, Size: att.File.Size()}
	}
	return view
}

func sectionSummary(section *editor.Section) gin.H {
	snap := section.Store().Snapshot()
	kind, message := section.Banner().Current()
	summary := gin.H{
		"name":      section.Name(),
		"singleton": section.Singleton(),
		"phase":     snap.State.Phase.String(),
		"busy":      snap.State.Busy(),
		"message":   snap.State.Message,
		"fetched":   snap.Fetched,
		"loaded":    snap.Loaded,
		"count":     len(snap.Items),
		"dirty":     section.Dirty(),
		"banner":    gin.H{"kind": kind.String(), "message": message},
	}
	// 单例区块区分加载中、未创建与已存在
	if section.Singleton() {
		summary["presence"] = section.Presence().String()
	}
	return summary
}

func (a *API) section(c *gin.Context) (*editor.Section, bool) {
	section, ok := a.editor.Section(c.Param("name"))
	if !ok {
		respondError(c, http.StatusNotFound, "区块不存在")
		return nil, false
	}
	return section, true
}

func (a *API) sectionDraft(c *gin.Context) (*editor.Section, uint, *draft.Draft, bool) {
	section, ok := a.section(c)
	if !ok {
		return nil, 0, nil, false
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return nil, 0, nil, false
	}
	d, err := section.Draft(id)
	if err != nil {
		respondFailure(c, err)
		return nil, 0, nil, false
	}
	return section, id, d, true
}

// ListSections 返回所有区块的状态摘要。
func (a *API) ListSections(c *gin.Context) {
	sections := a.editor.Sections()
	out := make([]gin.H, 0, len(sections))
	for _, section := range sections {
		out = append(out, sectionSummary(section))
	}
	c.JSON(http.StatusOK, gin.H{"sections": out})
}

// GetSection 返回区块的完整列表与已打开的草稿。
func (a *API) GetSection(c *gin.Context) {
	section, ok := a.section(c)
	if !ok {
		return
	}

	drafts := section.Drafts()
	keys := make([]uint, 0, len(drafts))
	for key := range drafts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	views := make([]draftView, 0, len(keys))
	for _, key := range keys {
		views = append(views, newDraftView(key, drafts[key]))
	}

	items := section.Store().Items()
	if items == nil {
		items = []resource.Record{}
	}
	c.JSON(http.StatusOK, gin.H{
		"section": sectionSummary(section),
		"items":   items,
		"drafts":  views,
	})
}

// FetchSection 重新拉取区块数据。
func (a *API) FetchSection(c *gin.Context) {
	section, ok := a.section(c)
	if !ok {
		return
	}
	section.Refresh(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"section": sectionSummary(section),
		"items":   section.Store().Items(),
	})
}

// GetDraft 返回草稿，不存在时从记录播种。
func (a *API) GetDraft(c *gin.Context) {
	_, id, d, ok := a.sectionDraft(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newDraftView(id, d))
}

// UpdateDraft 修改草稿字段，值按字段类型规整。
func (a *API) UpdateDraft(c *gin.Context) {
	_, id, d, ok := a.sectionDraft(c)
	if !ok {
		return
	}

	var req draftUpdateRequest
	if !bindJSON(c, &req, "请求格式错误") {
		return
	}

	names := make([]string, 0, len(req.Values))
	for name := range req.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := d.Set(name, req.Values[name]); err != nil {
			respondFailure(c, err)
			return
		}
	}
	for _, name := range req.Clear {
		if err := d.ClearAttachment(name); err != nil {
			respondFailure(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, newDraftView(id, d))
}

// UploadDraftFile 为附件字段设置待上传文件，文件随下一次保存提交。
func (a *API) UploadDraftFile(c *gin.Context) {
	_, id, d, ok := a.sectionDraft(c)
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "未找到上传的文件")
		return
	}
	src, err := header.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "读取上传文件失败")
		return
	}
	defer src.Close()

	file, err := attachment.Read(header.Filename, src)
	if err != nil {
		switch {
		case errors.Is(err, attachment.ErrFileTooLarge):
			respondError(c, http.StatusRequestEntityTooLarge, err.Error())
		default:
			respondError(c, http.StatusBadRequest, err.Error())
		}
		return
	}
	if file.IsImage() {
		if err := file.Inspect(); err != nil {
			respondError(c, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	if err := d.SetFile(c.Param("field"), file); err != nil {
		respondFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, newDraftView(id, d))
}

// CancelDraft 丢弃草稿修改。
func (a *API) CancelDraft(c *gin.Context) {
	section, id, d, ok := a.sectionDraft(c)
	if !ok {
		return
	}
	if err := section.Cancel(id); err != nil {
		respondFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, newDraftView(id, d))
}

// SaveDraft 提交草稿。失败时留存草稿，成功后删除留存。
func (a *API) SaveDraft(c *gin.Context) {
	section, id, d, ok := a.sectionDraft(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	rec, err := section.SaveDraft(ctx, id)
	if err != nil {
		a.archiveDraft(c, section.Name(), id, d, err)
		respondFailure(c, err)
		return
	}

	if err := a.drafts.Delete(ctx, section.Name(), id); err != nil && !errors.Is(err, service.ErrDraftSnapshotNotFound) {
		a.log.WithError(err).WithField("section", section.Name()).Warn("drop draft snapshot failed")
	}

	key := id
	if !section.Singleton() {
		key = rec.ID()
	}
	saved, err := section.Draft(key)
	if err != nil {
		saved = d
	}
	c.JSON(http.StatusOK, gin.H{
		"item":    rec,
		"draft":   newDraftView(key, saved),
		"section": sectionSummary(section),
	})
}

func (a *API) archiveDraft(c *gin.Context, section string, id uint, d *draft.Draft, cause error) {
	if errors.Is(cause, draft.ErrSubmitInFlight) {
		return
	}
	data, err := d.Export()
	if err != nil {
		a.log.WithError(err).WithField("section", section).Warn("export draft failed")
		return
	}
	_, err = a.drafts.Save(c.Request.Context(), service.DraftArchiveInput{
		Section:   section,
		RecordID:  id,
		Data:      data,
		LastError: api.Message(cause),
		Meta: map[string]interface{}{
			"phase":      d.Phase().String(),
			"updated_by": currentUsername(c),
		},
	})
	if err != nil {
		a.log.WithError(err).WithField("section", section).Warn("archive draft failed")
	}
}

// ListDraftArchives 列出保存失败后留存的草稿。
func (a *API) ListDraftArchives(c *gin.Context) {
	snapshots, err := a.drafts.List(c.Request.Context(), c.Query("section"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "读取留存草稿失败")
		return
	}
	out := make([]gin.H, 0, len(snapshots))
	for _, snap := range snapshots {
		out = append(out, gin.H{
			"id":         snap.ID,
			"section":    snap.Section,
			"record_id":  snap.RecordID,
			"last_error": snap.LastError,
			"meta":       snap.Meta,
			"updated_at": snap.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"drafts": out})
}

// RestoreDraft 用留存的内容恢复草稿。
func (a *API) RestoreDraft(c *gin.Context) {
	section, id, d, ok := a.sectionDraft(c)
	if !ok {
		return
	}

	snap, err := a.drafts.Find(c.Request.Context(), section.Name(), id)
	if err != nil {
		if errors.Is(err, service.ErrDraftSnapshotNotFound) {
			respondError(c, http.StatusNotFound, "没有留存的草稿")
			return
		}
		respondError(c, http.StatusInternalServerError, "读取留存草稿失败")
		return
	}
	if err := d.Restore([]byte(snap.Data)); err != nil {
		respondFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, newDraftView(id, d))
}

// DeleteItem 删除记录。
func (a *API) DeleteItem(c *gin.Context) {
	section, ok := a.section(c)
	if !ok {
		return
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := section.Delete(c.Request.Context(), id); err != nil {
		respondFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"section": sectionSummary(section)})
}

// DeleteField 清空记录上的单个附件字段。
func (a *API) DeleteField(c *gin.Context) {
	section, ok := a.section(c)
	if !ok {
		return
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := section.DeleteField(c.Request.Context(), id, c.Param("field"))
	if err != nil {
		respondFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": rec, "section": sectionSummary(section)})
}

// ApplyToAll 把同一个字段值写入区块的每条记录。
func (a *API) ApplyToAll(c *gin.Context) {
	section, ok := a.section(c)
	if !ok {
		return
	}
	var req applyRequest
	if !bindJSON(c, &req, "请求格式错误") {
		return
	}

	result, err := section.ApplyToAll(c.Request.Context(), req.Field, req.Value)
	a.reportBatch(c, section, result, err)
}

// Reorder 按给定顺序重写排序字段。
func (a *API) Reorder(c *gin.Context) {
	section, ok := a.section(c)
	if !ok {
		return
	}
	var req reorderRequest
	if !bindJSON(c, &req, "请求格式错误") {
		return
	}

	result, err := section.Reorder(c.Request.Context(), req.IDs)
	a.reportBatch(c, section, result, err)
}

// reportBatch 部分失败仍返回逐条结果；批量开始前的错误按普通失败处理。
func (a *API) reportBatch(c *gin.Context, section *editor.Section, result editor.BatchResult, err error) {
	var batchErr *editor.BatchError
	if err != nil && !errors.As(err, &batchErr) {
		respondFailure(c, err)
		return
	}
	c.JSON(batchStatus(result), gin.H{
		"result":  batchView(result),
		"section": sectionSummary(section),
	})
}

// SaveAll 保存所有区块中有修改的草稿，单个区块失败不影响其他区块。
func (a *API) SaveAll(c *gin.Context) {
	result := a.editor.SaveAll(c.Request.Context())
	sections := a.editor.Sections()
	summaries := make([]gin.H, 0, len(sections))
	for _, section := range sections {
		summaries = append(summaries, sectionSummary(section))
	}
	c.JSON(batchStatus(result), gin.H{
		"result":   batchView(result),
		"sections": summaries,
	})
}

// Cards 把区块的上线记录渲染为卡片。
func (a *API) Cards(c *gin.Context) {
	section, ok := a.section(c)
	if !ok {
		return
	}
	entry, ok := site.Lookup(section.Name())
	if !ok {
		respondError(c, http.StatusNotFound, "区块没有卡片布局")
		return
	}
	c.JSON(http.StatusOK, gin.H{"cards": card.RenderList(entry.Layout, section.Store().Active())})
}

func batchStatus(result editor.BatchResult) int {
	switch {
	case result.Failed == 0:
		return http.StatusOK
	case result.Succeeded > 0:
		return http.StatusMultiStatus
	default:
		return http.StatusBadGateway
	}
}

func batchView(result editor.BatchResult) gin.H {
	errs := make([]gin.H, 0, len(result.Errors))
	for _, opErr := range result.Errors {
		errs = append(errs, gin.H{"name": opErr.Name, "error": api.Message(opErr.Err)})
	}
	return gin.H{
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"summary":   result.String(),
		"errors":    errs,
	}
}
