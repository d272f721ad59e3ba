// Package site 声明营销站点的全部内容资源：端点、字段规则与卡片布局。
package site

import (
	"github.com/mecarvi/siteadmin/internal/card"
	"github.com/mecarvi/siteadmin/internal/resource"
	"github.com/mecarvi/siteadmin/internal/schema"
)

// Entry 是目录中的一种资源。
type Entry struct {
	Definition resource.Definition
	Layout     card.Layout
}

const (
	Careers      = "careers"
	ContactCards = "contact-cards"
	Hours        = "hours"
	SocialLinks  = "social-links"
	FAQ          = "faq"
	Projects     = "projects"
	About        = "about"
	Hero         = "hero"
)

func sortOrder() schema.Field {
	return schema.Field{Name: "sort_order", Type: schema.Int}
}

func isActive() schema.Field {
	return schema.Field{Name: "is_active", Type: schema.Bool, Default: true}
}

// Catalog 返回全部资源，顺序即后台展示顺序。
func Catalog() []Entry {
	return []Entry{
		{
			Definition: resource.Definition{
				Name:    Hero,
				Path:    "/hero-section",
				ItemKey: "hero_section",
				ListKey: "hero_section",
				Schema: schema.New(
					schema.Field{Name: "headline", Type: schema.String, Required: true, Rules: "max=160"},
					schema.Field{Name: "subheadline", Type: schema.Text, Rules: "max=500"},
					schema.Field{Name: "cta_label", Type: schema.String, Rules: "max=40"},
					schema.Field{Name: "cta_url", Type: schema.String, Rules: "url"},
					schema.Field{Name: "background_image", Type: schema.Image},
				),
				Public:    true,
				Singleton: true,
			},
			Layout: card.Layout{TitleField: "headline", SubtitleField: "subheadline", ImageField: "background_image", LinkField: "cta_url"},
		},
		{
			Definition: resource.Definition{
				Name:    About,
				Path:    "/about-section",
				ItemKey: "about_section",
				ListKey: "about_section",
				Schema: schema.New(
					schema.Field{Name: "title", Type: schema.String, Required: true, Rules: "max=120"},
					schema.Field{Name: "subtitle", Type: schema.String, Rules: "max=200"},
					schema.Field{Name: "content", Type: schema.RichText, Required: true},
					schema.Field{Name: "mission", Type: schema.Text},
					schema.Field{Name: "vision", Type: schema.Text},
					schema.Field{Name: "image", Type: schema.Image},
				),
				Public:    true,
				Singleton: true,
			},
			Layout: card.Layout{TitleField: "title", SubtitleField: "subtitle", BodyField: "mission", ImageField: "image"},
		},
		{
			Definition: resource.Definition{
				Name:    Careers,
				Path:    "/careers",
				ItemKey: "career",
				ListKey: "careers",
				Schema: schema.New(
					schema.Field{Name: "title", Type: schema.String, Required: true, Rules: "max=120"},
					schema.Field{Name: "department", Type: schema.String},
					schema.Field{Name: "location", Type: schema.String},
					schema.Field{Name: "employment_type", Type: schema.String, Rules: "oneof=full-time part-time contract internship"},
					schema.Field{Name: "description", Type: schema.RichText, Required: true},
					schema.Field{Name: "apply_url", Type: schema.String, Rules: "url"},
					schema.Field{Name: "apply_email", Type: schema.String, Rules: "email"},
					schema.Field{Name: "closing_date", Type: schema.String},
					schema.Field{Name: "image", Type: schema.Image},
					sortOrder(),
					isActive(),
				),
				Public:      true,
				SortField:   "sort_order",
				ActiveField: "is_active",
			},
			Layout: card.Layout{TitleField: "title", SubtitleField: "location", BodyField: "description", ImageField: "image", DateField: "closing_date", LinkField: "apply_url"},
		},
		{
			Definition: resource.Definition{
				Name:    ContactCards,
				Path:    "/contact-cards",
				ItemKey: "contact_card",
				ListKey: "contact_cards",
				Schema: schema.New(
					schema.Field{Name: "title", Type: schema.String, Required: true, Rules: "max=80"},
					schema.Field{Name: "description", Type: schema.Text},
					schema.Field{Name: "email", Type: schema.String, Rules: "email"},
					schema.Field{Name: "phone", Type: schema.String, Rules: "max=40"},
					schema.Field{Name: "address", Type: schema.Text},
					schema.Field{Name: "icon", Type: schema.Image},
					sortOrder(),
					isActive(),
				),
				Public:      true,
				SortField:   "sort_order",
				ActiveField: "is_active",
			},
			Layout: card.Layout{TitleField: "title", SubtitleField: "email", BodyField: "description", ImageField: "icon"},
		},
		{
			Definition: resource.Definition{
				Name:    Hours,
				Path:    "/hours-of-operation",
				ItemKey: "hours",
				ListKey: "hours_of_operation",
				Schema: schema.New(
					// section_title 在每条记录上重复保存
					schema.Field{Name: "section_title", Type: schema.String, Rules: "max=120"},
					schema.Field{Name: "day", Type: schema.String, Required: true},
					schema.Field{Name: "open_time", Type: schema.String},
					schema.Field{Name: "close_time", Type: schema.String},
					schema.Field{Name: "is_closed", Type: schema.Bool},
					sortOrder(),
				),
				Public:    true,
				SortField: "sort_order",
			},
			Layout: card.Layout{TitleField: "day", SubtitleField: "open_time"},
		},
		{
			Definition: resource.Definition{
				Name:    SocialLinks,
				Path:    "/social-links",
				ItemKey: "social_link",
				ListKey: "social_links",
				Schema: schema.New(
					schema.Field{Name: "platform", Type: schema.String, Required: true},
					schema.Field{Name: "url", Type: schema.String, Required: true, Rules: "url"},
					schema.Field{Name: "label", Type: schema.String, Rules: "max=60"},
					sortOrder(),
					isActive(),
				),
				Public:      true,
				SortField:   "sort_order",
				ActiveField: "is_active",
			},
			Layout: card.Layout{TitleField: "platform", SubtitleField: "label", LinkField: "url", IconField: "platform"},
		},
		{
			Definition: resource.Definition{
				Name:    FAQ,
				Path:    "/faq-sections",
				ItemKey: "faq_section",
				ListKey: "faq_sections",
				Schema: schema.New(
					schema.Field{Name: "title", Type: schema.String, Required: true, Rules: "max=200"},
					schema.Field{Name: "answer", Type: schema.RichText},
					schema.Field{Name: "icon", Type: schema.Image},
					sortOrder(),
					isActive(),
				),
				Public:      true,
				SortField:   "sort_order",
				ActiveField: "is_active",
			},
			Layout: card.Layout{TitleField: "title", BodyField: "answer", ImageField: "icon"},
		},
		{
			Definition: resource.Definition{
				Name:    Projects,
				Path:    "/projects",
				ItemKey: "project",
				ListKey: "projects",
				Schema: schema.New(
					schema.Field{Name: "title", Type: schema.String, Required: true, Rules: "max=160"},
					schema.Field{Name: "client", Type: schema.String},
					schema.Field{Name: "category", Type: schema.String},
					schema.Field{Name: "description", Type: schema.RichText},
					schema.Field{Name: "url", Type: schema.String, Rules: "url"},
					schema.Field{Name: "completed_at", Type: schema.String},
					schema.Field{Name: "is_featured", Type: schema.Bool},
					schema.Field{Name: "image", Type: schema.Image},
					sortOrder(),
					isActive(),
				),
				Public:      true,
				SortField:   "sort_order",
				ActiveField: "is_active",
			},
			Layout: card.Layout{TitleField: "title", SubtitleField: "client", BodyField: "description", ImageField: "image", DateField: "completed_at", LinkField: "url"},
		},
	}
}

// Lookup 按名称查找资源。
func Lookup(name string) (Entry, bool) {
	for _, entry := range Catalog() {
		if entry.Definition.Name == name {
			return entry, true
		}
	}
	return Entry{}, false
}
