package editor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mecarvi/siteadmin/internal/api"
	"github.com/mecarvi/siteadmin/internal/apitest"
	"github.com/mecarvi/siteadmin/internal/draft"
	"github.com/mecarvi/siteadmin/internal/resource"
	"github.com/mecarvi/siteadmin/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "editor-token"

var (
	faqDef = resource.Definition{
		Name:    "faq",
		Path:    "/faq-sections",
		ItemKey: "faq_section",
		ListKey: "faq_sections",
		Schema: schema.New(
			schema.Field{Name: "title", Type: schema.String, Required: true},
			schema.Field{Name: "answer", Type: schema.Text},
			schema.Field{Name: "icon", Type: schema.Image},
			schema.Field{Name: "sort_order", Type: schema.Int},
		),
		Public:    true,
		SortField: "sort_order",
	}
	hoursDef = resource.Definition{
		Name:    "hours",
		Path:    "/hours-of-operation",
		ItemKey: "hours",
		ListKey: "hours_of_operation",
		Schema: schema.New(
			schema.Field{Name: "section_title", Type: schema.String},
			schema.Field{Name: "day", Type: schema.String, Required: true},
			schema.Field{Name: "hours", Type: schema.String},
			schema.Field{Name: "sort_order", Type: schema.Int},
		),
		SortField: "sort_order",
	}
	heroDef = resource.Definition{
		Name:    "hero",
		Path:    "/hero-section",
		ItemKey: "hero_section",
		ListKey: "hero_section",
		Schema: schema.New(
			schema.Field{Name: "headline", Type: schema.String, Required: true},
		),
		Public:    true,
		Singleton: true,
	}
)

func newBackend(t *testing.T) *apitest.Backend {
	t.Helper()
	backend := apitest.New(testToken)
	t.Cleanup(backend.Close)
	for _, def := range []resource.Definition{faqDef, hoursDef, heroDef} {
		backend.Register(def.Path, def.ItemKey, def.ListKey, def.Singleton, def.Public)
	}
	return backend
}

func newSection(t *testing.T, backend *apitest.Backend, def resource.Definition) *Section {
	t.Helper()
	store, err := resource.NewStore(def, api.NewClient(backend.URL(), api.StaticToken(testToken)))
	require.NoError(t, err)
	return NewSection(store, Options{})
}

func TestBatchSaveCountsEachOperation(t *testing.T) {
	boom := errors.New("boom")
	var ran []string
	ops := []Op{
		{Name: "first", Run: func(context.Context) error { ran = append(ran, "first"); return nil }},
		{Name: "second", Run: func(context.Context) error { ran = append(ran, "second"); return boom }},
		{Name: "third", Run: func(context.Context) error { ran = append(ran, "third"); return nil }},
	}

	result := BatchSave(context.Background(), ops)

	assert.Equal(t, []string{"first", "second", "third"}, ran)
	assert.Equal(t, "2 succeeded, 1 failed", result.String())
	err := result.Err()
	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "2 succeeded, 1 failed (second: boom)", err.Error())
}

func TestBatchSaveStopsSendingAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	ops := []Op{
		{Name: "a", Run: func(context.Context) error { calls++; cancel(); return nil }},
		{Name: "b", Run: func(context.Context) error { calls++; return nil }},
	}

	result := BatchSave(ctx, ops)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "1 succeeded, 1 failed", result.String())
	assert.ErrorIs(t, result.Err(), context.Canceled)
}

func TestApplyToAllPartialFailure(t *testing.T) {
	backend := newBackend(t)
	backend.Seed(hoursDef.Path,
		map[string]any{"day": "Mon", "hours": "9-5", "sort_order": 1},
		map[string]any{"day": "Tue", "hours": "9-5", "sort_order": 2},
		map[string]any{"day": "Wed", "hours": "9-5", "sort_order": 3},
	)
	section := newSection(t, backend, hoursDef)
	section.Refresh(context.Background())
	require.Len(t, section.Store().Items(), 3)

	backend.FailNext(http.MethodPut, "/hours-of-operation/2", http.StatusUnprocessableEntity, gin.H{
		"success": false,
		"errors":  gin.H{"section_title": []string{"too long"}},
	})

	result, err := section.ApplyToAll(context.Background(), "section_title", "Opening hours")
	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)

	assert.Equal(t, "2 succeeded, 1 failed", result.String())
	kind, message := section.Banner().Current()
	assert.Equal(t, BannerError, kind)
	assert.Contains(t, message, "2 succeeded, 1 failed")
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "hours #2", result.Errors[0].Name)

	items := section.Store().Items()
	require.Len(t, items, 3)
	assert.Equal(t, "Opening hours", items[0].String("section_title"))
	assert.Equal(t, "", items[1].String("section_title"))
	assert.Equal(t, "Opening hours", items[2].String("section_title"))

	// 数值字段保持原值
	assert.Equal(t, 3, items[2].Int("sort_order"))
	assert.Equal(t, "9-5", items[2].String("hours"))
}

func TestReorderRewritesSortOrder(t *testing.T) {
	backend := newBackend(t)
	backend.Seed(faqDef.Path,
		map[string]any{"title": "a", "sort_order": 1},
		map[string]any{"title": "b", "sort_order": 2},
		map[string]any{"title": "c", "sort_order": 3},
	)
	section := newSection(t, backend, faqDef)
	section.Refresh(context.Background())

	result, err := section.Reorder(context.Background(), []uint{3, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, "3 succeeded, 0 failed", result.String())
	_, message := section.Banner().Current()
	assert.Equal(t, "3 succeeded, 0 failed", message)

	section.Refresh(context.Background())
	items := section.Store().Items()
	require.Len(t, items, 3)
	assert.Equal(t, "c", items[0].String("title"))
	assert.Equal(t, "a", items[1].String("title"))
	assert.Equal(t, "b", items[2].String("title"))

	_, err = newSection(t, backend, heroDef).Reorder(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoSortField)

	_, err = section.Reorder(context.Background(), []uint{9})
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestReorderResyncsOpenDraft(t *testing.T) {
	backend := newBackend(t)
	backend.Seed(faqDef.Path,
		map[string]any{"title": "a", "sort_order": 1},
		map[string]any{"title": "b", "sort_order": 2},
		map[string]any{"title": "c", "sort_order": 3},
	)
	section := newSection(t, backend, faqDef)
	section.Refresh(context.Background())

	d, err := section.Draft(3)
	require.NoError(t, err)
	assert.Equal(t, 3, schema.ToInt(d.Values()["sort_order"]))

	_, err = section.Reorder(context.Background(), []uint{3, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, 1, schema.ToInt(d.Values()["sort_order"]))

	require.NoError(t, d.Set("answer", "moved to the top"))
	_, err = section.SaveDraft(context.Background(), 3)
	require.NoError(t, err)

	item := resource.Record(backend.Items(faqDef.Path)[2])
	assert.Equal(t, uint(3), item.ID())
	assert.Equal(t, 1, item.Int("sort_order"))
	assert.Equal(t, "moved to the top", item.String("answer"))
}

func TestApplyToAllResyncsOpenDraft(t *testing.T) {
	backend := newBackend(t)
	backend.Seed(hoursDef.Path,
		map[string]any{"section_title": "Old", "day": "Mon", "sort_order": 1},
		map[string]any{"section_title": "Old", "day": "Tue", "sort_order": 2},
	)
	section := newSection(t, backend, hoursDef)
	section.Refresh(context.Background())

	d, err := section.Draft(1)
	require.NoError(t, err)

	_, err = section.ApplyToAll(context.Background(), "section_title", "Opening hours")
	require.NoError(t, err)
	assert.Equal(t, "Opening hours", d.Values()["section_title"])
	assert.False(t, d.Dirty())

	require.NoError(t, d.Set("hours", "10-4"))
	_, err = section.SaveDraft(context.Background(), 1)
	require.NoError(t, err)

	item := resource.Record(backend.Items(hoursDef.Path)[0])
	assert.Equal(t, "Opening hours", item.String("section_title"))
	assert.Equal(t, "10-4", item.String("hours"))

	_, err = section.ApplyToAll(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, schema.ErrUnknownField)
}

func TestSingletonSaveRefusedAfterFailedFetch(t *testing.T) {
	backend := newBackend(t)
	backend.Seed(heroDef.Path, map[string]any{"headline": "Welcome"})
	backend.FailNext(http.MethodGet, heroDef.Path, http.StatusInternalServerError, gin.H{"success": false, "message": "boom"})

	section := newSection(t, backend, heroDef)
	section.Refresh(context.Background())
	assert.Equal(t, resource.PresenceLoading, section.Presence())

	d, err := section.Draft(0)
	require.NoError(t, err)
	require.NoError(t, d.Set("headline", "Duplicate"))

	_, err = section.SaveDraft(context.Background(), 0)
	require.ErrorIs(t, err, resource.ErrPresenceUnknown)
	assert.Len(t, backend.Items(heroDef.Path), 1)
	for _, req := range backend.Requests() {
		assert.NotEqual(t, http.MethodPost, req.Verb)
	}

	// 成功刷新后按已存在记录更新
	section.Refresh(context.Background())
	assert.Equal(t, resource.PresencePresent, section.Presence())
	_, err = section.SaveDraft(context.Background(), 0)
	require.NoError(t, err)
	last := backend.LastRequest()
	assert.Equal(t, http.MethodPut, last.Verb)
	assert.Equal(t, "/hero-section/1", last.Path)
	assert.Len(t, backend.Items(heroDef.Path), 1)
}

func TestSingletonDraftResetsWhenRecordDisappears(t *testing.T) {
	backend := newBackend(t)
	backend.Seed(heroDef.Path, map[string]any{"headline": "Welcome"})

	section := newSection(t, backend, heroDef)
	section.Refresh(context.Background())
	d, err := section.Draft(0)
	require.NoError(t, err)
	assert.Equal(t, uint(1), d.ID())

	require.True(t, backend.Remove(heroDef.Path, 1))
	section.Refresh(context.Background())
	assert.Equal(t, resource.PresenceAbsent, section.Presence())
	assert.Equal(t, draft.PhaseEmpty, d.Phase())
	assert.Equal(t, uint(0), d.ID())

	require.NoError(t, d.Set("headline", "Back again"))
	_, err = section.SaveDraft(context.Background(), 0)
	require.NoError(t, err)
	last := backend.LastRequest()
	assert.Equal(t, http.MethodPost, last.Verb)
	assert.Equal(t, heroDef.Path, last.Path)
}

func TestSaveDraftCreatesAndRekeys(t *testing.T) {
	backend := newBackend(t)
	section := newSection(t, backend, faqDef)
	section.Refresh(context.Background())

	d, err := section.Draft(0)
	require.NoError(t, err)
	require.NoError(t, d.Set("title", "Q1"))
	require.NoError(t, d.Set("answer", "A1"))
	assert.True(t, section.Dirty())

	rec, err := section.SaveDraft(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, uint(1), rec.ID())

	drafts := section.Drafts()
	require.Contains(t, drafts, uint(1))
	assert.Equal(t, draft.PhaseSettled, drafts[1].Phase())
	assert.Equal(t, draft.PhaseEmpty, drafts[0].Phase())
	assert.False(t, section.Dirty())

	kind, msg := section.Banner().Current()
	assert.Equal(t, BannerSuccess, kind)
	assert.Equal(t, "Created successfully", msg)
}

func TestSaveDraftRemovesClearedAttachment(t *testing.T) {
	backend := newBackend(t)
	backend.Seed(faqDef.Path, map[string]any{"title": "Q1", "icon": "/uploads/q1.png"})
	section := newSection(t, backend, faqDef)
	section.Refresh(context.Background())

	d, err := section.Draft(1)
	require.NoError(t, err)
	require.NoError(t, d.ClearAttachment("icon"))

	rec, err := section.SaveDraft(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, rec.Has("icon"))

	last := backend.LastRequest()
	assert.Equal(t, http.MethodDelete, last.Method)
	assert.Equal(t, "/faq-sections/1/field/icon", last.Path)
	assert.Empty(t, d.Removals())
}

func TestSectionFailureIsIsolated(t *testing.T) {
	backend := newBackend(t)
	faq := newSection(t, backend, faqDef)
	hero := newSection(t, backend, heroDef)
	ed, err := New(faq, hero)
	require.NoError(t, err)
	ed.Load(context.Background())

	faqDraft, _ := faq.Draft(0)
	require.NoError(t, faqDraft.Set("title", "Q1"))
	heroDraft, _ := hero.Draft(0)
	require.NoError(t, heroDraft.Set("headline", "Hello"))

	backend.FailNext(http.MethodPost, faqDef.Path, http.StatusInternalServerError, gin.H{"success": false, "message": "database is down"})

	result := ed.SaveAll(context.Background())
	assert.Equal(t, "1 succeeded, 1 failed", result.String())

	kind, msg := faq.Banner().Current()
	assert.Equal(t, BannerError, kind)
	assert.Equal(t, "database is down", msg)
	assert.Equal(t, "Q1", faqDraft.Values()["title"])
	assert.Empty(t, faq.Store().Items())

	kind, _ = hero.Banner().Current()
	assert.Equal(t, BannerSuccess, kind)
	items := hero.Store().Items()
	require.Len(t, items, 1)
	assert.Equal(t, "Hello", items[0].String("headline"))

	// 重试只保存仍有修改的区块
	require.NoError(t, ed.Save(context.Background()))
	assert.Len(t, faq.Store().Items(), 1)
	assert.Len(t, backend.Items(heroDef.Path), 1)
}

func TestSectionErrorBannerThenRetry(t *testing.T) {
	backend := newBackend(t)
	faq := newSection(t, backend, faqDef)
	faq.Refresh(context.Background())

	d, _ := faq.Draft(0)
	require.NoError(t, d.Set("title", "Q1"))

	backend.FailNext(http.MethodPost, faqDef.Path, http.StatusUnprocessableEntity, gin.H{
		"success": false,
		"errors":  gin.H{"title": []string{"required"}, "answer": []string{"invalid"}},
	})
	_, err := faq.SaveDraft(context.Background(), 0)
	require.Error(t, err)

	kind, msg := faq.Banner().Current()
	assert.Equal(t, BannerError, kind)
	assert.Equal(t, "answer: invalid; title: required", msg)
	assert.Equal(t, draft.PhaseDirty, d.Phase())

	_, err = faq.SaveDraft(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, faq.Store().Items(), 1)
}

func TestEditorRejectsDuplicateSections(t *testing.T) {
	backend := newBackend(t)
	_, err := New(newSection(t, backend, faqDef), newSection(t, backend, faqDef))
	require.Error(t, err)
}

func TestBannerSuccessExpires(t *testing.T) {
	b := NewBanner(20*time.Millisecond, 0)

	b.Success("Saved")
	kind, _ := b.Current()
	assert.Equal(t, BannerSuccess, kind)
	assert.Eventually(t, func() bool {
		kind, _ := b.Current()
		return kind == BannerNone
	}, time.Second, 5*time.Millisecond)

	b.Error("boom")
	time.Sleep(50 * time.Millisecond)
	kind, msg := b.Current()
	assert.Equal(t, BannerError, kind)
	assert.Equal(t, "boom", msg)
}

func TestBannerNewerMessageSurvivesOldTimer(t *testing.T) {
	b := NewBanner(30*time.Millisecond, 0)
	b.Success("first")
	time.Sleep(20 * time.Millisecond)
	b.Error("second")
	time.Sleep(30 * time.Millisecond)

	kind, msg := b.Current()
	assert.Equal(t, BannerError, kind)
	assert.Equal(t, "second", msg)
}

// gatedDoer 让列表请求停在 gate 上，用于构造刷新与保存的竞争。
type gatedDoer struct {
	mu      sync.Mutex
	title   string
	gate    chan struct{}
	started chan struct{}
}

func (g *gatedDoer) Do(ctx context.Context, req api.Request) (*api.Response, error) {
	switch req.Method {
	case http.MethodGet:
		g.mu.Lock()
		title, gate, started := g.title, g.gate, g.started
		g.mu.Unlock()
		if started != nil {
			close(started)
		}
		if gate != nil {
			<-gate
		}
		data, _ := json.Marshal(map[string]any{"faq_sections": []map[string]any{{"id": 1, "title": title}}})
		return &api.Response{Status: http.StatusOK, Success: true, Data: data}, nil
	default:
		data, _ := json.Marshal(map[string]any{"faq_section": map[string]any{"id": 1, "title": req.Body["title"]}})
		return &api.Response{Status: http.StatusOK, Success: true, Message: "Updated", Data: data}, nil
	}
}

func TestSlowRefreshDoesNotClobberNewerSave(t *testing.T) {
	doer := &gatedDoer{title: "Original"}
	store, err := resource.NewStore(faqDef, doer)
	require.NoError(t, err)
	section := NewSection(store, Options{})
	section.Refresh(context.Background())

	d, err := section.Draft(1)
	require.NoError(t, err)
	require.NoError(t, d.Set("title", "Saved"))

	doer.mu.Lock()
	doer.gate = make(chan struct{})
	doer.started = make(chan struct{})
	gate, started := doer.gate, doer.started
	doer.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		section.Refresh(context.Background())
	}()
	<-started

	_, err = section.SaveDraft(context.Background(), 1)
	require.NoError(t, err)

	close(gate)
	<-done

	assert.Equal(t, "Saved", d.Values()["title"])
	assert.Equal(t, draft.PhaseSettled, d.Phase())
}
