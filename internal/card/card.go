// Package card 把资源记录映射为展示用的卡片。纯函数，无网络请求与可变状态。
package card

import (
	"bytes"
	"strings"
	"time"
	"unicode"

	"github.com/mecarvi/siteadmin/internal/resource"
	"github.com/mecarvi/siteadmin/internal/view"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	sanitizer = bluemonday.UGCPolicy()

	dateLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000000Z",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
)

// DisplayDateLayout 是卡片上的日期格式。
const DisplayDateLayout = "Jan 2, 2006"

// Layout 声明记录中哪些字段用于卡片的各个部分，空字段名表示不展示。
type Layout struct {
	TitleField    string
	SubtitleField string
	// BodyField 按 Markdown 渲染为摘要
	BodyField  string
	ImageField string
	DateField  string
	LinkField  string
	// IconField 存放社交平台名称
	IconField string
}

// Card 是渲染结果。
type Card struct {
	ID       uint   `json:"id"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Summary  string `json:"summary,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	// Initials 在没有图片时作为占位
	Initials string `json:"initials,omitempty"`
	Date     string `json:"date,omitempty"`
	Link     string `json:"link,omitempty"`
	IconSVG  string `json:"icon_svg,omitempty"`
}

// Placeholder 报告卡片是否使用首字母占位。
func (c Card) Placeholder() bool {
	return c.ImageURL == "" && c.Initials != ""
}

// Render 渲染单条记录，缺失的可选字段直接留空。
func Render(layout Layout, rec resource.Record) Card {
	card := Card{
		ID:       rec.ID(),
		Title:    strings.TrimSpace(rec.String(layout.TitleField)),
		Subtitle: field(rec, layout.SubtitleField),
		Link:     field(rec, layout.LinkField),
	}
	if layout.BodyField != "" {
		card.Summary = Summary(rec.String(layout.BodyField))
	}
	if layout.DateField != "" {
		card.Date = FormatDate(rec.String(layout.DateField))
	}
	if layout.ImageField != "" {
		card.ImageURL = field(rec, layout.ImageField)
		if card.ImageURL == "" {
			card.Initials = Initials(card.Title)
		}
	}
	if layout.IconField != "" {
		card.IconSVG = view.SocialIconSVG(rec.String(layout.IconField))
	}
	return card
}

// RenderList 依次渲染记录。
func RenderList(layout Layout, records []resource.Record) []Card {
	cards := make([]Card, 0, len(records))
	for _, rec := range records {
		cards = append(cards, Render(layout, rec))
	}
	return cards
}

// Initials 取前两个单词的首字母并转为大写；没有字母或数字时返回 "?"。
func Initials(name string) string {
	var out []rune
	for _, word := range strings.Fields(name) {
		for _, r := range word {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				out = append(out, unicode.ToUpper(r))
				break
			}
		}
		if len(out) == 2 {
			break
		}
	}
	if len(out) == 0 {
		return "?"
	}
	return string(out)
}

// FormatDate 把接口返回的日期格式化为展示格式；无法解析时原样返回。
func FormatDate(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format(DisplayDateLayout)
		}
	}
	return trimmed
}

// Summary 把 Markdown 渲染为清洗过的 HTML。
func Summary(markdown string) string {
	trimmed := strings.TrimSpace(markdown)
	if trimmed == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(trimmed), &buf); err != nil {
		return sanitizer.Sanitize(trimmed)
	}
	return strings.TrimSpace(string(sanitizer.SanitizeBytes(buf.Bytes())))
}

func field(rec resource.Record, name string) string {
	if name == "" {
		return ""
	}
	return strings.TrimSpace(rec.String(name))
}
