package redirector

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"link-tracker/internal/config"
	"link-tracker/internal/model"
	"link-tracker/internal/recorder"
	"link-tracker/pkg/errcode"
)

type spyRecorder struct {
	calls       []uint
	err         error
	hadDeadline bool
}

func (s *spyRecorder) Record(ctx context.Context, linkID uint, _ recorder.RequestContext) error {
	s.calls = append(s.calls, linkID)
	_, s.hadDeadline = ctx.Deadline()
	return s.err
}

type mapLinks map[uint]string

func (m mapLinks) GetByID(_ context.Context, id uint) (*model.LinkRecord, error) {
	u, ok := m[id]
	if !ok {
		return nil, errcode.NotFound("链接不存在")
	}
	return &model.LinkRecord{ID: id, OriginalURL: u}, nil
}

func newRedirector(rec Recorder, links LinkReader, opts Options) *Redirector {
	return New(rec, links, opts, zap.NewNop().Sugar())
}

func TestResolve_RecordsAndRedirects(t *testing.T) {
	rec := &spyRecorder{}
	r := newRedirector(rec, nil, Options{RecordTimeout: time.Second})

	d, err := r.Resolve(context.Background(), TrackingRequest{ItemID: "1", OriginalURL: "https://example.com/docs"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/docs", d.Location)
	assert.Equal(t, http.StatusFound, d.StatusCode)
	assert.Equal(t, []uint{1}, rec.calls)
	assert.True(t, rec.hadDeadline)
}

func TestResolve_PermanentStatus(t *testing.T) {
	r := newRedirector(&spyRecorder{}, nil, Options{StatusCode: http.StatusMovedPermanently})

	d, err := r.Resolve(context.Background(), TrackingRequest{ItemID: "3", OriginalURL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusMovedPermanently, d.StatusCode)
}

func TestResolve_InvalidInputSkipsRecorder(t *testing.T) {
	tests := []struct {
		name string
		req  TrackingRequest
	}{
		{"non numeric id", TrackingRequest{ItemID: "abc", OriginalURL: "https://example.com"}},
		{"zero id", TrackingRequest{ItemID: "0", OriginalURL: "https://example.com"}},
		{"negative id", TrackingRequest{ItemID: "-4", OriginalURL: "https://example.com"}},
		{"empty id", TrackingRequest{ItemID: "", OriginalURL: "https://example.com"}},
		{"bad url", TrackingRequest{ItemID: "1", OriginalURL: "not-a-url"}},
		{"relative url", TrackingRequest{ItemID: "1", OriginalURL: "/docs"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &spyRecorder{}
			r := newRedirector(rec, nil, Options{})

			d, err := r.Resolve(context.Background(), tt.req)
			assert.Nil(t, d)
			assert.True(t, errcode.Is(err, errcode.KindValidation))
			assert.Empty(t, rec.calls)
		})
	}
}

func TestResolve_RecorderFailureStillRedirects(t *testing.T) {
	rec := &spyRecorder{err: errcode.StoreUnavailable("数据库不可达", nil)}
	r := newRedirector(rec, nil, Options{})

	d, err := r.Resolve(context.Background(), TrackingRequest{ItemID: "9", OriginalURL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", d.Location)
	assert.Len(t, rec.calls, 1)
}

func TestResolve_VerifyDestination(t *testing.T) {
	links := mapLinks{1: "https://example.com/docs"}

	t.Run("matching", func(t *testing.T) {
		rec := &spyRecorder{}
		r := newRedirector(rec, links, Options{VerifyDestination: true})
		_, err := r.Resolve(context.Background(), TrackingRequest{ItemID: "1", OriginalURL: "https://example.com/docs"})
		require.NoError(t, err)
		assert.Len(t, rec.calls, 1)
	})

	t.Run("mismatch", func(t *testing.T) {
		rec := &spyRecorder{}
		r := newRedirector(rec, links, Options{VerifyDestination: true})
		_, err := r.Resolve(context.Background(), TrackingRequest{ItemID: "1", OriginalURL: "https://evil.example"})
		assert.True(t, errcode.Is(err, errcode.KindValidation))
		assert.Empty(t, rec.calls)
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := &spyRecorder{}
		r := newRedirector(rec, links, Options{VerifyDestination: true})
		_, err := r.Resolve(context.Background(), TrackingRequest{ItemID: "2", OriginalURL: "https://example.com/docs"})
		assert.True(t, errcode.Is(err, errcode.KindValidation))
		assert.Empty(t, rec.calls)
	})
}

func TestTrackingURL(t *testing.T) {
	tracking := config.Default().Tracking
	tracking.BaseURL = "https://links.example/"

	raw := TrackingURL(tracking, 42, "https://example.com/a?b=c&d=e")
	assert.Equal(t,
		"https://links.example/admin/tools?page=link-tracker&action=track_statistics&item_id=42&original_url=https%3A%2F%2Fexample.com%2Fa%3Fb%3Dc%26d%3De",
		raw)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a?b=c&d=e", u.Query().Get("original_url"))
}
