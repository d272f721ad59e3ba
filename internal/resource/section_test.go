package resource

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mecarvi/siteadmin/internal/api"
	"github.com/mecarvi/siteadmin/internal/apitest"
	"github.com/mecarvi/siteadmin/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func heroDefinition() Definition {
	return Definition{
		Name:    "hero",
		Path:    "/hero-section",
		ItemKey: "hero_section",
		ListKey: "hero_section",
		Schema: schema.New(
			schema.Field{Name: "headline", Type: schema.String, Required: true},
			schema.Field{Name: "subheadline", Type: schema.Text},
			schema.Field{Name: "background_image", Type: schema.Image},
		),
		Public:    true,
		Singleton: true,
	}
}

func newTestSection(t *testing.T) (*Section, *apitest.Backend) {
	t.Helper()
	backend := apitest.New(testToken)
	t.Cleanup(backend.Close)
	def := heroDefinition()
	backend.Register(def.Path, def.ItemKey, def.ListKey, true, true)

	section, err := NewSection(def, api.NewClient(backend.URL(), api.StaticToken(testToken)))
	require.NoError(t, err)
	return section, backend
}

func TestSectionRequiresSingleton(t *testing.T) {
	_, err := NewSection(faqDefinition(), api.NewClient("http://example.invalid", nil))
	require.Error(t, err)
}

func TestSectionPresence(t *testing.T) {
	section, backend := newTestSection(t)

	_, presence := section.Current()
	assert.Equal(t, PresenceLoading, presence)

	section.Load(context.Background())
	_, presence = section.Current()
	assert.Equal(t, PresenceAbsent, presence)

	backend.Seed("/hero-section", map[string]any{"headline": "Welcome"})
	section.Load(context.Background())
	rec, presence := section.Current()
	assert.Equal(t, PresencePresent, presence)
	assert.Equal(t, "Welcome", rec.String("headline"))
}

func TestSectionSaveCreatesThenUpdates(t *testing.T) {
	section, backend := newTestSection(t)
	section.Load(context.Background())

	rec, err := section.Save(context.Background(), map[string]any{"headline": "Hello"}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint(1), rec.ID())
	assert.Equal(t, http.MethodPost, backend.LastRequest().Method)
	assert.Equal(t, "/hero-section", backend.LastRequest().Path)

	_, err = section.Save(context.Background(), map[string]any{"headline": "Hello again"}, nil)
	require.NoError(t, err)
	last := backend.LastRequest()
	assert.Equal(t, http.MethodPut, last.Method)
	assert.Equal(t, "/hero-section/1", last.Path)

	items := section.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "Hello again", items[0].String("headline"))
}

func TestSectionUpdateWithoutRequiredField(t *testing.T) {
	section, backend := newTestSection(t)
	backend.Seed("/hero-section", map[string]any{"headline": "Welcome", "subheadline": "Sub"})
	section.Load(context.Background())

	// 更新时必填字段可以省略，服务端保留原值
	_, err := section.Save(context.Background(), map[string]any{"subheadline": "New sub"}, nil)
	require.NoError(t, err)

	rec, _ := section.Current()
	assert.Equal(t, "Welcome", rec.String("headline"))
	assert.Equal(t, "New sub", rec.String("subheadline"))
	assert.NotContains(t, backend.LastRequest().Body, "headline")
}

func TestSectionRefusesSaveWhenFetchFailed(t *testing.T) {
	section, backend := newTestSection(t)
	backend.Seed("/hero-section", map[string]any{"headline": "Welcome"})
	backend.FailNext(http.MethodGet, "/hero-section", http.StatusInternalServerError, gin.H{"success": false, "message": "boom"})

	section.Load(context.Background())
	_, presence := section.Current()
	assert.Equal(t, PresenceLoading, presence)

	sent := len(backend.Requests())
	_, err := section.Save(context.Background(), map[string]any{"headline": "Duplicate"}, nil)
	require.ErrorIs(t, err, ErrPresenceUnknown)
	assert.Len(t, backend.Requests(), sent)
	assert.Len(t, backend.Items("/hero-section"), 1)
	assert.Equal(t, PhaseError, section.State().Phase)

	section.Load(context.Background())
	_, presence = section.Current()
	assert.Equal(t, PresencePresent, presence)
}
