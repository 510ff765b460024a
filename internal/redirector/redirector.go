package redirector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"link-tracker/internal/config"
	"link-tracker/internal/model"
	"link-tracker/internal/recorder"
	"link-tracker/pkg/errcode"
	"link-tracker/pkg/validate"
)

// Recorder 记录一次点击
type Recorder interface {
	Record(ctx context.Context, linkID uint, rc recorder.RequestContext) error
}

// LinkReader 目标地址校验时读取已登记的链接
type LinkReader interface {
	GetByID(ctx context.Context, id uint) (*model.LinkRecord, error)
}

// Options 跳转行为配置
type Options struct {
	StatusCode        int
	VerifyDestination bool
	RecordTimeout     time.Duration
}

// OptionsFromConfig 由配置生成 Options
func OptionsFromConfig(cfg config.Redirect) Options {
	return Options{
		StatusCode:        cfg.StatusCode,
		VerifyDestination: cfg.VerifyDestination,
		RecordTimeout:     cfg.RecordTimeout(),
	}
}

// TrackingRequest 一次追踪请求的原始参数
type TrackingRequest struct {
	ItemID      string
	OriginalURL string
	Client      recorder.RequestContext
}

// Directive 跳转指令
type Directive struct {
	Location   string
	StatusCode int
}

type Redirector struct {
	recorder Recorder
	links    LinkReader
	opts     Options
	logger   *zap.SugaredLogger
}

func New(rec Recorder, links LinkReader, opts Options, logger *zap.SugaredLogger) *Redirector {
	if opts.StatusCode != http.StatusMovedPermanently {
		opts.StatusCode = http.StatusFound
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Redirector{
		recorder: rec,
		links:    links,
		opts:     opts,
		logger:   logger.Named("redirector"),
	}
}

// Resolve 校验参数、记录点击并返回跳转指令。
// 参数不合法时不记录点击，也不跳转；点击记录失败不影响跳转。
func (r *Redirector) Resolve(ctx context.Context, req TrackingRequest) (*Directive, error) {
	id, err := parseItemID(req.ItemID)
	if err != nil {
		return nil, err
	}
	if !validate.AbsoluteURL(req.OriginalURL) {
		return nil, errcode.Validation("original_url 不是有效的绝对URL")
	}

	if r.opts.VerifyDestination {
		if err := r.verify(ctx, id, req.OriginalURL); err != nil {
			return nil, err
		}
	}

	recordCtx := ctx
	if r.opts.RecordTimeout > 0 {
		var cancel context.CancelFunc
		recordCtx, cancel = context.WithTimeout(ctx, r.opts.RecordTimeout)
		defer cancel()
	}
	if err := r.recorder.Record(recordCtx, id, req.Client); err != nil {
		r.logger.Debugw("点击记录失败，继续跳转", "item_id", id, "error", err)
	}

	return &Directive{Location: req.OriginalURL, StatusCode: r.opts.StatusCode}, nil
}

func (r *Redirector) verify(ctx context.Context, id uint, originalURL string) error {
	record, err := r.links.GetByID(ctx, id)
	if errcode.IsNotFound(err) {
		return errcode.Validation(fmt.Sprintf("item_id 未登记: %d", id))
	}
	if err != nil {
		return err
	}
	if record.OriginalURL != originalURL {
		r.logger.Warnw("目标地址与登记不一致", "item_id", id, "requested", originalURL, "stored", record.OriginalURL)
		return errcode.Validation("original_url 与登记的地址不一致")
	}
	return nil
}

func parseItemID(raw string) (uint, error) {
	n, err := strconv.ParseUint(raw, 10, strconv.IntSize)
	if err != nil || n == 0 {
		return 0, errcode.Validation("item_id 必须是正整数")
	}
	return uint(n), nil
}

// TrackingURL 生成追踪链接: {base}{path}?page=..&action=..&item_id=..&original_url=..
func TrackingURL(t config.Tracking, itemID uint, originalURL string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(t.BaseURL, "/"))
	b.WriteString(t.Path)
	b.WriteString("?page=")
	b.WriteString(url.QueryEscape(t.Page))
	b.WriteString("&action=")
	b.WriteString(url.QueryEscape(t.Action))
	b.WriteString("&item_id=")
	b.WriteString(strconv.FormatUint(uint64(itemID), 10))
	b.WriteString("&original_url=")
	b.WriteString(url.QueryEscape(originalURL))
	return b.String()
}
