package card

import (
	"strings"
	"testing"

	"github.com/mecarvi/siteadmin/internal/resource"
	"github.com/mecarvi/siteadmin/internal/view"
	"github.com/stretchr/testify/assert"
)

var projectLayout = Layout{
	TitleField:    "title",
	SubtitleField: "client",
	BodyField:     "description",
	ImageField:    "image",
	DateField:     "completed_at",
	LinkField:     "url",
}

func TestRenderFullRecord(t *testing.T) {
	rec := resource.Record{
		"id":           uint(3),
		"title":        "Harbor Bridge",
		"client":       "City Council",
		"description":  "**Steel** retrofit",
		"image":        "/uploads/bridge.jpg",
		"completed_at": "2024-03-05T10:00:00Z",
		"url":          "https://example.com/bridge",
	}

	c := Render(projectLayout, rec)
	assert.Equal(t, uint(3), c.ID)
	assert.Equal(t, "Harbor Bridge", c.Title)
	assert.Equal(t, "City Council", c.Subtitle)
	assert.Equal(t, "<p><strong>Steel</strong> retrofit</p>", c.Summary)
	assert.Equal(t, "/uploads/bridge.jpg", c.ImageURL)
	assert.Empty(t, c.Initials)
	assert.False(t, c.Placeholder())
	assert.Equal(t, "Mar 5, 2024", c.Date)
	assert.Equal(t, "https://example.com/bridge", c.Link)
}

func TestRenderToleratesMissingFields(t *testing.T) {
	c := Render(projectLayout, resource.Record{"id": 9, "title": "solar farm"})

	assert.Equal(t, "SF", c.Initials)
	assert.True(t, c.Placeholder())
	assert.Empty(t, c.Summary)
	assert.Empty(t, c.Date)
	assert.Empty(t, c.Subtitle)
}

func TestRenderSocialIcon(t *testing.T) {
	layout := Layout{TitleField: "platform", LinkField: "url", IconField: "platform"}
	c := Render(layout, resource.Record{"id": 1, "platform": "LinkedIn", "url": "https://linkedin.com/company/x"})

	assert.Equal(t, view.SocialIconSVG("linkedin"), c.IconSVG)
	assert.Empty(t, c.Initials)
}

func TestSummaryStripsUnsafeHTML(t *testing.T) {
	out := Summary("hello <script>alert(1)</script>")
	assert.NotContains(t, out, "<script>")
	assert.True(t, strings.HasPrefix(out, "<p>hello"))
}

func TestInitials(t *testing.T) {
	cases := map[string]string{
		"Jane Doe":           "JD",
		"jane":               "J",
		"  ada   lovelace x": "AL",
		"":                   "?",
		"!!! ###":            "?",
		"Émile Zola":         "ÉZ",
	}
	for in, want := range cases {
		assert.Equal(t, want, Initials(in), in)
	}
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "Jan 2, 2025", FormatDate("2025-01-02"))
	assert.Equal(t, "Jan 2, 2025", FormatDate("2025-01-02 08:00:00"))
	assert.Equal(t, "someday", FormatDate(" someday "))
	assert.Equal(t, "", FormatDate(""))
}

func TestRenderList(t *testing.T) {
	cards := RenderList(projectLayout, []resource.Record{{"id": 1, "title": "a"}, {"id": 2, "title": "b"}})
	assert.Len(t, cards, 2)
	assert.Equal(t, uint(2), cards[1].ID)
}
