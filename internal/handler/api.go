package handler

import (
	"github.com/mecarvi/siteadmin/internal/editor"
	"github.com/mecarvi/siteadmin/internal/logging"
	"github.com/mecarvi/siteadmin/internal/service"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db          *gorm.DB
	editor      *editor.Editor
	credentials *service.CredentialService
	drafts      *service.DraftArchiveService
	log         logrus.FieldLogger
}

// NewAPI constructs a handler set around the section editor.
func NewAPI(gdb *gorm.DB, ed *editor.Editor, credentials *service.CredentialService, log logrus.FieldLogger) *API {
	if log == nil {
		log = logging.Discard()
	}
	return &API{
		db:          gdb,
		editor:      ed,
		credentials: credentials,
		drafts:      service.NewDraftArchiveService(gdb),
		log:         log,
	}
}

// Editor exposes the section editor.
func (a *API) Editor() *editor.Editor {
	return a.editor
}
