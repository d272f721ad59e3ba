package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/mecarvi/siteadmin/internal/handler"
	"github.com/mecarvi/siteadmin/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const sessionName = "siteadmin_session"

// Options 是构造路由所需的依赖。
type Options struct {
	API           *handler.API
	SessionSecret string
	// Gatherer 为空时不挂载 /metrics
	Gatherer prometheus.Gatherer
	Logger   logrus.FieldLogger
}

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(opts Options) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	// 配置会话中间件
	store := cookie.NewStore([]byte(opts.SessionSecret))
	store.Options(sessions.Options{Path: "/", MaxAge: 7 * 24 * 3600, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(sessionName, store))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	a := opts.API

	// 后台管理路由
	admin := r.Group("/admin")
	{
		admin.POST("/login", a.Login)
		admin.GET("/logout", a.Logout)

		// 需要认证的后台路由
		api := admin.Group("/api")
		api.Use(handler.AuthRequired())
		{
			api.GET("/me", a.Me)

			api.GET("/token", a.TokenStatus)
			api.PUT("/token", a.UpdateToken)
			api.DELETE("/token", a.ClearToken)

			api.GET("/drafts", a.ListDraftArchives)
			api.POST("/save-all", a.SaveAll)

			api.GET("/sections", a.ListSections)
			api.GET("/sections/:name", a.GetSection)
			api.POST("/sections/:name/fetch", a.FetchSection)
			api.GET("/sections/:name/cards", a.Cards)
			api.POST("/sections/:name/apply", a.ApplyToAll)
			api.POST("/sections/:name/reorder", a.Reorder)

			api.GET("/sections/:name/drafts/:id", a.GetDraft)
			api.PATCH("/sections/:name/drafts/:id", a.UpdateDraft)
			api.POST("/sections/:name/drafts/:id/files/:field", a.UploadDraftFile)
			api.POST("/sections/:name/drafts/:id/cancel", a.CancelDraft)
			api.POST("/sections/:name/drafts/:id/save", a.SaveDraft)
			api.POST("/sections/:name/drafts/:id/restore", a.RestoreDraft)

			api.DELETE("/sections/:name/items/:id", a.DeleteItem)
			api.DELETE("/sections/:name/items/:id/fields/:field", a.DeleteField)
		}
	}

	return r
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("request failed")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Debug("request handled")
		}
	}
}
