package recorder

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"link-tracker/internal/store"
)

const (
	// NoData 缺省的 user agent / referer
	NoData = "No-data"
	// UnknownIP 无法解析出合法 IP 时的占位值
	UnknownIP = "Unknown"
)

// RequestContext 在请求边界解析一次的客户端信息
type RequestContext struct {
	ClientIP  string
	UserAgent string
	Referer   string
}

// FromRequest 从 HTTP 请求中提取客户端信息。
// IP 优先级: Client-Ip 头, X-Forwarded-For 第一项, 连接地址。
func FromRequest(r *http.Request) RequestContext {
	rc := RequestContext{
		ClientIP:  resolveClientIP(r),
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
	}
	return rc.withDefaults()
}

func (rc RequestContext) withDefaults() RequestContext {
	if strings.TrimSpace(rc.ClientIP) == "" {
		rc.ClientIP = UnknownIP
	}
	if strings.TrimSpace(rc.UserAgent) == "" {
		rc.UserAgent = NoData
	}
	if strings.TrimSpace(rc.Referer) == "" {
		rc.Referer = NoData
	}
	return rc
}

func resolveClientIP(r *http.Request) string {
	var ip string
	if v := strings.TrimSpace(r.Header.Get("Client-Ip")); v != "" {
		ip = v
	} else if v := r.Header.Get("X-Forwarded-For"); strings.TrimSpace(v) != "" {
		ip = strings.TrimSpace(strings.Split(v, ",")[0])
	} else {
		ip = r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
	}

	if net.ParseIP(ip) == nil {
		return UnknownIP
	}
	return ip
}

// ClickStore 记录点击所需的存储能力
type ClickStore interface {
	RecordClick(ctx context.Context, in store.ClickInput) error
}

// Recorder 点击统计记录器
type Recorder struct {
	store  ClickStore
	now    func() time.Time
	logger *zap.SugaredLogger
}

func New(clickStore ClickStore, now func() time.Time, logger *zap.SugaredLogger) *Recorder {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Recorder{
		store:  clickStore,
		now:    now,
		logger: logger.Named("click_recorder"),
	}
}

// Record 计数 +1 并覆盖最近一次点击信息。失败只记录日志并返回错误，由调用方决定是否忽略。
func (r *Recorder) Record(ctx context.Context, linkID uint, rc RequestContext) error {
	rc = rc.withDefaults()
	err := r.store.RecordClick(ctx, store.ClickInput{
		LinkID:    linkID,
		IPAddress: rc.ClientIP,
		UserAgent: rc.UserAgent,
		Referer:   rc.Referer,
		ClickedAt: r.now(),
	})
	if err != nil {
		r.logger.Warnw("写入点击统计失败", "link_id", linkID, "ip", rc.ClientIP, "error", err)
		return err
	}

	r.logger.Debugw("点击已记录", "link_id", linkID, "ip", rc.ClientIP, "user_agent", rc.UserAgent, "referer", rc.Referer)
	return nil
}
