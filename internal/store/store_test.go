package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"link-tracker/internal/model"
	"link-tracker/pkg/database"
	"link-tracker/pkg/errcode"
)

// newTestDB 每个测试独立的内存数据库，单连接保证内存库不被回收
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "无法连接到内存数据库")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db, model.All()...))

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, opts ...Option) (*LinkStore, *fakeClock) {
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(newTestDB(t), opts...), clock
}

func TestUpsert_CreatesThenUpdates(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	created, err := s.Upsert(ctx, UpsertInput{ItemName: "Docs", OriginalURL: "https://example.com/docs", ShortURL: "go-docs"})
	require.NoError(t, err)
	assert.Equal(t, uint(1), created.ID)
	assert.Equal(t, int64(0), created.ClickCount)
	assert.True(t, created.CreatedAt.Equal(clock.Now()))
	assert.True(t, created.UpdatedAt.Equal(clock.Now()))

	firstCreatedAt := created.CreatedAt
	clock.Advance(time.Hour)

	updated, err := s.Upsert(ctx, UpsertInput{ItemName: "Go Docs", OriginalURL: "https://go.dev/doc", ShortURL: "go-docs"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)

	total, err := s.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "同一 short_url 只能有一条记录")

	stored, err := s.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Go Docs", stored.ItemName)
	assert.Equal(t, "https://go.dev/doc", stored.OriginalURL)
	assert.True(t, stored.CreatedAt.Equal(firstCreatedAt), "created_at 不应被更新")
	assert.True(t, stored.UpdatedAt.Equal(clock.Now()))
}

func TestUpsert_KeepsClickData(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Upsert(ctx, UpsertInput{ItemName: "a", OriginalURL: "https://a.example", ShortURL: "a"})
	require.NoError(t, err)
	require.NoError(t, s.RecordClick(ctx, ClickInput{LinkID: rec.ID, IPAddress: "10.0.0.1", UserAgent: "ua", Referer: "ref", ClickedAt: clock.Now()}))

	_, err = s.Upsert(ctx, UpsertInput{ItemName: "b", OriginalURL: "https://b.example", ShortURL: "a"})
	require.NoError(t, err)

	stored, err := s.GetByShortURL(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ClickCount)
	require.NotNil(t, stored.IPAddress)
	assert.Equal(t, "10.0.0.1", *stored.IPAddress)
}

func TestUpsert_Validation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   UpsertInput
	}{
		{"missing item name", UpsertInput{OriginalURL: "https://a.example", ShortURL: "a"}},
		{"blank item name", UpsertInput{ItemName: "   ", OriginalURL: "https://a.example", ShortURL: "a"}},
		{"missing url", UpsertInput{ItemName: "a", ShortURL: "a"}},
		{"malformed url", UpsertInput{ItemName: "a", OriginalURL: "not-a-url", ShortURL: "a"}},
		{"missing short url", UpsertInput{ItemName: "a", OriginalURL: "https://a.example"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Upsert(ctx, tt.in)
			assert.True(t, errors.Is(err, errcode.ErrValidation), "应返回校验错误, got %v", err)
		})
	}

	total, err := s.CountAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, total, "校验失败不应写入任何数据")
}

func TestInsert_DuplicateShortURL(t *testing.T) {
	s, _ := newTestStore(t)
	in := UpsertInput{ItemName: "a", OriginalURL: "https://a.example", ShortURL: "race"}

	_, err := s.insert(s.db, in)
	require.NoError(t, err)

	// 模拟并发 upsert 中落败的插入
	_, err = s.insert(s.db, in)
	require.Error(t, err)
	assert.True(t, errcode.IsDuplicateKey(s.translate(err, "保存链接失败")))
}

type fakeLocker struct {
	mu       sync.Mutex
	obtained []string
	released int
	fail     bool
}

func (l *fakeLocker) Obtain(_ context.Context, key string, _ time.Duration) (Unlocker, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return nil, errors.New("lock not obtained")
	}
	l.obtained = append(l.obtained, key)
	return l, nil
}

func (l *fakeLocker) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released++
	return nil
}

func TestUpsert_UsesLocker(t *testing.T) {
	locker := &fakeLocker{}
	s, _ := newTestStore(t, WithLocker(locker))

	_, err := s.Upsert(context.Background(), UpsertInput{ItemName: "a", OriginalURL: "https://a.example", ShortURL: "locked"})
	require.NoError(t, err)
	assert.Equal(t, []string{"upsert:locked"}, locker.obtained)
	assert.Equal(t, 1, locker.released)
}

func TestUpsert_LockFailureFallsBack(t *testing.T) {
	s, _ := newTestStore(t, WithLocker(&fakeLocker{fail: true}))

	rec, err := s.Upsert(context.Background(), UpsertInput{ItemName: "a", OriginalURL: "https://a.example", ShortURL: "nolock"})
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)
}

func TestGet_NotFound(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetByID(ctx, 42)
	assert.True(t, errcode.IsNotFound(err))

	_, err = s.GetByShortURL(ctx, "missing")
	assert.True(t, errcode.IsNotFound(err))
}

func TestRecordClick(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Upsert(ctx, UpsertInput{ItemName: "a", OriginalURL: "https://a.example", ShortURL: "a"})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	clickedAt := clock.Now()
	require.NoError(t, s.RecordClick(ctx, ClickInput{
		LinkID:    rec.ID,
		IPAddress: "203.0.113.7",
		UserAgent: "Mozilla/5.0",
		Referer:   "https://ref.example",
		ClickedAt: clickedAt,
	}))

	stored, err := s.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ClickCount)
	require.NotNil(t, stored.LastClicked)
	assert.True(t, stored.LastClicked.Equal(clickedAt))
	assert.True(t, stored.UpdatedAt.Equal(clickedAt))
	assert.Equal(t, "203.0.113.7", *stored.IPAddress)
	assert.Equal(t, "Mozilla/5.0", *stored.UserAgent)
	assert.Equal(t, "https://ref.example", *stored.RefererData)
	assert.True(t, stored.CreatedAt.Equal(rec.CreatedAt))

	err = s.RecordClick(ctx, ClickInput{LinkID: 999, IPAddress: "x"})
	assert.True(t, errcode.IsNotFound(err))
}

func TestRecordClick_ConcurrentNoLostUpdates(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Upsert(ctx, UpsertInput{ItemName: "hot", OriginalURL: "https://hot.example", ShortURL: "hot"})
	require.NoError(t, err)

	const n = 50
	ips := make(map[string]bool, n)
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		ip := fmt.Sprintf("198.51.100.%d", i)
		ips[ip] = true
		wg.Add(1)
		go func(ip string) {
			defer wg.Done()
			errs <- s.RecordClick(ctx, ClickInput{LinkID: rec.ID, IPAddress: ip, UserAgent: "ua", Referer: "ref"})
		}(ip)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := s.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), stored.ClickCount)
	require.NotNil(t, stored.IPAddress)
	assert.True(t, ips[*stored.IPAddress], "元数据应来自其中一次点击")
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Upsert(ctx, UpsertInput{ItemName: "a", OriginalURL: "https://a.example", ShortURL: "a"})
	require.NoError(t, err)

	deleted, err := s.Delete(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.Delete(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "重复删除返回 false 而不是错误")

	_, err = s.GetByID(ctx, rec.ID)
	assert.True(t, errcode.IsNotFound(err))
}

func seed(t *testing.T, s *LinkStore, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		_, err := s.Upsert(context.Background(), UpsertInput{
			ItemName:    fmt.Sprintf("item-%02d", i),
			OriginalURL: fmt.Sprintf("https://example.com/%d", i),
			ShortURL:    fmt.Sprintf("s%02d", i),
		})
		require.NoError(t, err)
	}
}

func TestListPageAndFind(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	seed(t, s, 12)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 12)

	page, err := s.ListPage(ctx, 10, 5)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "s11", page[0].ShortURL)

	_, err = s.ListPage(ctx, 0, 0)
	assert.True(t, errors.Is(err, errcode.ErrValidation))

	_, err = s.ListPage(ctx, -20, 10)
	assert.True(t, errors.Is(err, errcode.ErrValidation), "负 offset 不应被当作第一页")

	items, total, err := s.Find(ctx, Query{Limit: 3, OrderBy: "short_url", Desc: true})
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)
	require.Len(t, items, 3)
	assert.Equal(t, "s12", items[0].ShortURL)

	items, total, err = s.Find(ctx, Query{Limit: 10, Search: "item-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total, "item-10, item-11, item-12")
	assert.Len(t, items, 3)

	// 非法排序列回退到 id
	items, _, err = s.Find(ctx, Query{Limit: 1, OrderBy: "id; DROP TABLE link_records"})
	require.NoError(t, err)
	assert.Equal(t, "s01", items[0].ShortURL)
}

func TestPing(t *testing.T) {
	s, _ := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestSave_ReportsCreated(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	in := UpsertInput{ItemName: "a", OriginalURL: "https://a.example", ShortURL: "a"}

	_, created, err := s.Save(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = s.Save(ctx, in)
	require.NoError(t, err)
	assert.False(t, created)
}
