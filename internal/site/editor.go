package site

import (
	"fmt"
	"time"

	"github.com/mecarvi/siteadmin/internal/editor"
	"github.com/mecarvi/siteadmin/internal/logging"
	"github.com/mecarvi/siteadmin/internal/resource"
	"github.com/sirupsen/logrus"
)

// Options 控制站点编辑器的行为。
type Options struct {
	FetchPolicy resource.FetchErrorPolicy
	SuccessTTL  time.Duration
	ErrorTTL    time.Duration
	Logger      logrus.FieldLogger
}

// NewEditor 为目录中的每种资源创建区块。
func NewEditor(client resource.Doer, opts Options) (*editor.Editor, error) {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	catalog := Catalog()
	sections := make([]*editor.Section, 0, len(catalog))
	storeOpts := []resource.Option{
		resource.WithFetchErrorPolicy(opts.FetchPolicy),
		resource.WithLogger(log),
	}
	sectionOpts := editor.Options{
		SuccessTTL: opts.SuccessTTL,
		ErrorTTL:   opts.ErrorTTL,
		Logger:     log,
	}
	for _, entry := range catalog {
		def := entry.Definition
		if def.Singleton {
			single, err := resource.NewSection(def, client, storeOpts...)
			if err != nil {
				return nil, fmt.Errorf("site: %w", err)
			}
			sections = append(sections, editor.NewSingletonSection(single, sectionOpts))
			continue
		}
		store, err := resource.NewStore(def, client, storeOpts...)
		if err != nil {
			return nil, fmt.Errorf("site: %w", err)
		}
		sections = append(sections, editor.NewSection(store, sectionOpts))
	}
	return editor.New(sections...)
}
