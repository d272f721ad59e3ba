package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mecarvi/siteadmin/internal/service"
)

type tokenRequest struct {
	Token string `json:"token"`
}

// TokenStatus 返回远端令牌是否已配置，不回显令牌本身。
func (a *API) TokenStatus(c *gin.Context) {
	status, err := a.credentials.Status(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "读取令牌状态失败")
		return
	}
	c.JSON(http.StatusOK, status)
}

// UpdateToken 保存远端接口使用的 Bearer 令牌。
func (a *API) UpdateToken(c *gin.Context) {
	var req tokenRequest
	if !bindJSON(c, &req, "请求格式错误") {
		return
	}

	ctx := c.Request.Context()
	if err := a.credentials.SetToken(ctx, req.Token, currentUsername(c)); err != nil {
		if errors.Is(err, service.ErrTokenEmpty) {
			respondError(c, http.StatusBadRequest, "令牌不能为空")
			return
		}
		a.log.WithError(err).Error("store api token failed")
		respondError(c, http.StatusInternalServerError, "保存令牌失败")
		return
	}

	status, err := a.credentials.Status(ctx)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "读取令牌状态失败")
		return
	}
	c.JSON(http.StatusOK, status)
}

// ClearToken 删除控制台保存的令牌，之后回退到环境变量配置。
func (a *API) ClearToken(c *gin.Context) {
	ctx := c.Request.Context()
	if err := a.credentials.ClearToken(ctx); err != nil {
		respondError(c, http.StatusInternalServerError, "删除令牌失败")
		return
	}
	status, err := a.credentials.Status(ctx)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "读取令牌状态失败")
		return
	}
	c.JSON(http.StatusOK, status)
}
