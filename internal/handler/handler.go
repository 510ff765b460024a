package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"link-tracker/internal/listing"
	"link-tracker/internal/store"
	"link-tracker/pkg/errcode"
)

// LinkHandler 链接管理接口
type LinkHandler struct {
	store   *store.LinkStore
	listing *listing.Service
	redis   *redis.Client
	logger  *zap.SugaredLogger
}

// NewLinkHandler 创建处理器实例，redisClient 可以为 nil
func NewLinkHandler(linkStore *store.LinkStore, listingService *listing.Service, redisClient *redis.Client, logger *zap.SugaredLogger) *LinkHandler {
	return &LinkHandler{
		store:   linkStore,
		listing: listingService,
		redis:   redisClient,
		logger:  logger.Named("link_handler"),
	}
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error string `json:"error" example:"链接不存在"`
}

// respondError 按错误类别输出状态码，非业务错误统一 500
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(errcode.HTTPStatus(err), ErrorResponse{Error: errcode.Message(err)})
}

// HealthCheck godoc
// @Summary 健康检查
// @Tags System
// @Produce  json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (h *LinkHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"database": "ok"}
	status := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Errorf("数据库健康检查失败: %v", err)
		checks["database"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if h.redis != nil {
		checks["redis"] = "ok"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			// redis 只用于加锁，不可用时降级而不是下线
			h.logger.Warnf("Redis 健康检查失败: %v", err)
			checks["redis"] = "degraded"
		}
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks, "timestamp": time.Now()})
}

// UpsertLinkRequest 新建或更新链接
type UpsertLinkRequest struct {
	ItemName    string `json:"item_name" example:"Docs"`
	OriginalURL string `json:"original_url" example:"https://example.com/docs"`
	ShortURL    string `json:"short_url" example:"go-docs"`
}

// UpsertLink godoc
// @Summary 新建或更新链接
// @Description 以 short_url 为键，存在则更新名称与目标地址，否则新建
// @Tags Link
// @Security ApiKeyAuth
// @Accept  json
// @Produce  json
// @Param   link  body   UpsertLinkRequest  true  "链接信息"
// @Success 200 {object} model.LinkRecord "已更新"
// @Success 201 {object} model.LinkRecord "已新建"
// @Failure 400 {object} ErrorResponse "请求无效"
// @Failure 503 {object} ErrorResponse "存储不可用"
// @Router /api/links [post]
func (h *LinkHandler) UpsertLink(c *gin.Context) {
	var req UpsertLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "无效的请求数据: " + err.Error()})
		return
	}

	in := store.UpsertInput{ItemName: req.ItemName, OriginalURL: req.OriginalURL, ShortURL: req.ShortURL}
	record, created, err := h.store.Save(c.Request.Context(), in)
	if errcode.IsDuplicateKey(err) {
		// 并发新建同一 short_url 时输掉的一方，重试一次即走更新分支
		h.logger.Infof("short_url 并发冲突，按更新重试: %s", in.ShortURL)
		record, created, err = h.store.Save(c.Request.Context(), in)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, record)
}

// GetLinks godoc
// @Summary 分页查询链接
// @Tags Link
// @Security ApiKeyAuth
// @Produce  json
// @Param   page       query  int     false  "页码，从 1 开始"
// @Param   page_size  query  int     false  "每页条数"
// @Param   search     query  string  false  "按名称、短链接或目标地址搜索"
// @Param   orderby    query  string  false  "排序字段"
// @Param   order      query  string  false  "asc 或 desc"
// @Success 200 {object} listing.Page
// @Failure 400 {object} ErrorResponse
// @Router /api/links [get]
func (h *LinkHandler) GetLinks(c *gin.Context) {
	var req listing.PageRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "无效的查询参数: " + err.Error()})
		return
	}

	page, err := h.listing.Paginate(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetLink godoc
// @Summary 按 id 查询链接
// @Tags Link
// @Security ApiKeyAuth
// @Produce  json
// @Param   id  path  int  true  "链接 id"
// @Success 200 {object} model.LinkRecord
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/links/{id} [get]
func (h *LinkHandler) GetLink(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	record, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// GetLinkByShortURL godoc
// @Summary 按短链接标识查询
// @Tags Link
// @Security ApiKeyAuth
// @Produce  json
// @Param   short_url  path  string  true  "短链接标识"
// @Success 200 {object} model.LinkRecord
// @Failure 404 {object} ErrorResponse
// @Router /api/links/short/{short_url} [get]
func (h *LinkHandler) GetLinkByShortURL(c *gin.Context) {
	record, err := h.store.GetByShortURL(c.Request.Context(), c.Param("short_url"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// DeleteLink godoc
// @Summary 删除链接
// @Tags Link
// @Security ApiKeyAuth
// @Produce  json
// @Param   id  path  int  true  "链接 id"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /api/links/{id} [delete]
func (h *LinkHandler) DeleteLink(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	deleted, err := h.store.Delete(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "链接不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "删除成功"})
}

// BulkDeleteRequest 批量删除
type BulkDeleteRequest struct {
	IDs []uint `json:"ids" binding:"required"`
}

// BulkDeleteResponse 批量删除结果
type BulkDeleteResponse struct {
	Deleted int `json:"deleted" example:"2"`
}

// BulkDelete godoc
// @Summary 批量删除链接
// @Description 不存在的 id 会被跳过，返回实际删除的条数
// @Tags Link
// @Security ApiKeyAuth
// @Accept  json
// @Produce  json
// @Param   ids  body  BulkDeleteRequest  true  "待删除的 id 列表"
// @Success 200 {object} BulkDeleteResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/links/bulk-delete [post]
func (h *LinkHandler) BulkDelete(c *gin.Context) {
	var req BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "无效的请求数据: " + err.Error()})
		return
	}

	deleted, err := h.listing.BulkDelete(c.Request.Context(), req.IDs)
	if err != nil {
		h.logger.Errorf("批量删除中断: 已删除 %d 条, err=%v", deleted, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, BulkDeleteResponse{Deleted: deleted})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, strconv.IntSize)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "id 必须是正整数"})
		return 0, false
	}
	return uint(id), true
}
