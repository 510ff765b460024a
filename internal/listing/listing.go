package listing

import (
	"context"
	"math"
	"strings"

	"link-tracker/internal/config"
	"link-tracker/internal/model"
	"link-tracker/internal/redirector"
	"link-tracker/internal/store"
)

// LinkStore 列表服务依赖的存储能力
type LinkStore interface {
	Find(ctx context.Context, q store.Query) ([]model.LinkRecord, int64, error)
	Count(ctx context.Context, q store.Query) (int64, error)
	Delete(ctx context.Context, id uint) (bool, error)
}

// PageRequest 分页请求，非法值会被修正而不是报错
type PageRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Search   string `form:"search"`
	OrderBy  string `form:"orderby"`
	Order    string `form:"order"` // asc | desc
}

// Item 列表项，附带追踪链接
type Item struct {
	model.LinkRecord
	TrackingURL string `json:"tracking_url"`
}

// Page 分页结果
type Page struct {
	Items      []Item `json:"items"`
	TotalItems int64  `json:"total_items"`
	TotalPages int64  `json:"total_pages"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
}

type Service struct {
	store    LinkStore
	listing  config.Listing
	tracking config.Tracking
}

func New(linkStore LinkStore, listing config.Listing, tracking config.Tracking) *Service {
	return &Service{store: linkStore, listing: listing, tracking: tracking}
}

func (s *Service) normalize(req PageRequest) PageRequest {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = s.listing.DefaultPageSize
	}
	if s.listing.MaxPageSize > 0 && req.PageSize > s.listing.MaxPageSize {
		req.PageSize = s.listing.MaxPageSize
	}
	return req
}

// Paginate 分页列出链接。超出末页返回空列表。
func (s *Service) Paginate(ctx context.Context, req PageRequest) (*Page, error) {
	req = s.normalize(req)

	q := store.Query{
		Limit:   req.PageSize,
		Search:  req.Search,
		OrderBy: req.OrderBy,
		Desc:    strings.EqualFold(req.Order, "desc"),
	}

	var (
		records []model.LinkRecord
		total   int64
		err     error
	)
	if req.Page-1 > math.MaxInt/req.PageSize {
		// offset 会溢出，必然超出末页，只取总数
		total, err = s.store.Count(ctx, q)
	} else {
		q.Offset = (req.Page - 1) * req.PageSize
		records, total, err = s.store.Find(ctx, q)
	}
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(records))
	for _, r := range records {
		items = append(items, Item{
			LinkRecord:  r,
			TrackingURL: redirector.TrackingURL(s.tracking, r.ID, r.OriginalURL),
		})
	}

	size := int64(req.PageSize)
	return &Page{
		Items:      items,
		TotalItems: total,
		TotalPages: (total + size - 1) / size,
		Page:       req.Page,
		PageSize:   req.PageSize,
	}, nil
}

// BulkDelete 批量删除，返回实际删除的条数。
// 重复 id 只处理一次，不存在的 id 跳过；存储出错时立即停止并返回已删除的条数。
func (s *Service) BulkDelete(ctx context.Context, ids []uint) (int, error) {
	seen := make(map[uint]struct{}, len(ids))
	deleted := 0
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		ok, err := s.store.Delete(ctx, id)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}
	return deleted, nil
}
