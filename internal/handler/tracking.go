package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"link-tracker/internal/config"
	"link-tracker/internal/recorder"
	"link-tracker/internal/redirector"
	"link-tracker/pkg/errcode"
)

// TrackingHandler 点击追踪入口
type TrackingHandler struct {
	redirector *redirector.Redirector
	tracking   config.Tracking
	logger     *zap.SugaredLogger
}

func NewTrackingHandler(r *redirector.Redirector, tracking config.Tracking, logger *zap.SugaredLogger) *TrackingHandler {
	return &TrackingHandler{redirector: r, tracking: tracking, logger: logger.Named("tracking")}
}

// Track godoc
// @Summary 记录点击并跳转
// @Description 参数无效时返回空的 400，成功时只返回跳转
// @Tags Tracking
// @Param   page          query  string  true  "页面标识"
// @Param   action        query  string  true  "动作标识"
// @Param   item_id       query  int     true  "链接 id"
// @Param   original_url  query  string  true  "目标地址"
// @Success 302 "跳转到 original_url"
// @Failure 400 "参数无效"
// @Failure 404 "页面或动作标识不匹配"
// @Router /admin/tools [get]
func (h *TrackingHandler) Track(c *gin.Context) {
	if c.Query("page") != h.tracking.Page || c.Query("action") != h.tracking.Action {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	directive, err := h.redirector.Resolve(c.Request.Context(), redirector.TrackingRequest{
		ItemID:      c.Query("item_id"),
		OriginalURL: c.Query("original_url"),
		Client:      recorder.FromRequest(c.Request),
	})
	if err != nil {
		h.logger.Debugf("拒绝追踪请求: %v", err)
		c.AbortWithStatus(errcode.HTTPStatus(err))
		return
	}

	// 只写 Location 头，不输出响应体
	c.Header("Location", directive.Location)
	c.AbortWithStatus(directive.StatusCode)
}
