package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"link-tracker/internal/model"
	"link-tracker/pkg/errcode"
	"link-tracker/pkg/validate"
)

const upsertLockTTL = 5 * time.Second

// Unlocker 释放已获取的锁
type Unlocker interface {
	Release(ctx context.Context) error
}

// Locker 按 key 互斥，用于串行化同一 short_url 的 upsert
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Unlocker, error)
}

type Option func(*LinkStore)

// WithClock 注入时钟，测试中使用固定时间
func WithClock(now func() time.Time) Option {
	return func(s *LinkStore) {
		s.now = now
	}
}

func WithLocker(locker Locker) Option {
	return func(s *LinkStore) {
		s.locker = locker
	}
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *LinkStore) {
		s.logger = logger.Named("link_store")
	}
}

// LinkStore 链接记录的持久化层
type LinkStore struct {
	db     *gorm.DB
	now    func() time.Time
	locker Locker
	logger *zap.SugaredLogger
}

// New 创建 LinkStore
func New(db *gorm.DB, opts ...Option) *LinkStore {
	s := &LinkStore{
		db:     db,
		now:    time.Now,
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertInput 新建或更新链接的参数
type UpsertInput struct {
	ItemName    string `json:"item_name" validate:"required,max=255"`
	OriginalURL string `json:"original_url" validate:"required,url"`
	ShortURL    string `json:"short_url" validate:"required,max=255"`
}

func (in UpsertInput) normalize() UpsertInput {
	return UpsertInput{
		ItemName:    strings.TrimSpace(in.ItemName),
		OriginalURL: strings.TrimSpace(in.OriginalURL),
		ShortURL:    strings.TrimSpace(in.ShortURL),
	}
}

func (in UpsertInput) validate() error {
	if err := validate.Struct(in); err != nil {
		return errcode.New(errcode.KindValidation, err.Error(), nil)
	}
	if !validate.AbsoluteURL(in.OriginalURL) {
		return errcode.Validation("original_url必须是一个有效的绝对URL")
	}
	return nil
}

// Upsert 以 short_url 为自然键新建或更新链接。
// 命中已有记录时只更新 item_name、original_url 和 updated_at。
func (s *LinkStore) Upsert(ctx context.Context, in UpsertInput) (*model.LinkRecord, error) {
	record, _, err := s.Save(ctx, in)
	return record, err
}

// Save 同 Upsert，额外返回是否新建
func (s *LinkStore) Save(ctx context.Context, in UpsertInput) (*model.LinkRecord, bool, error) {
	in = in.normalize()
	if err := in.validate(); err != nil {
		return nil, false, err
	}

	if s.locker != nil {
		lock, err := s.locker.Obtain(ctx, "upsert:"+in.ShortURL, upsertLockTTL)
		if err != nil {
			// 拿不到锁时仍由唯一索引兜底
			s.logger.Warnf("获取 upsert 锁失败: short_url=%s err=%v", in.ShortURL, err)
		} else {
			defer func() {
				if err := lock.Release(context.Background()); err != nil {
					s.logger.Warnf("释放 upsert 锁失败: short_url=%s err=%v", in.ShortURL, err)
				}
			}()
		}
	}

	var (
		record  model.LinkRecord
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("short_url = ?", in.ShortURL).First(&record).Error
		switch {
		case err == nil:
			return s.update(tx, &record, in)
		case errors.Is(err, gorm.ErrRecordNotFound):
			record, err = s.insert(tx, in)
			created = err == nil
			return err
		default:
			return err
		}
	})
	if err != nil {
		return nil, false, s.translate(err, "保存链接失败")
	}
	return &record, created, nil
}

func (s *LinkStore) update(tx *gorm.DB, record *model.LinkRecord, in UpsertInput) error {
	now := s.now()
	err := tx.Model(record).Updates(map[string]interface{}{
		"item_name":    in.ItemName,
		"original_url": in.OriginalURL,
		"updated_at":   now,
	}).Error
	if err != nil {
		return err
	}
	record.ItemName = in.ItemName
	record.OriginalURL = in.OriginalURL
	record.UpdatedAt = now
	return nil
}

func (s *LinkStore) insert(tx *gorm.DB, in UpsertInput) (model.LinkRecord, error) {
	now := s.now()
	record := model.LinkRecord{
		ItemName:    in.ItemName,
		OriginalURL: in.OriginalURL,
		ShortURL:    in.ShortURL,
		ClickCount:  0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.Create(&record).Error; err != nil {
		return model.LinkRecord{}, err
	}
	return record, nil
}

// GetByID 按主键查询
func (s *LinkStore) GetByID(ctx context.Context, id uint) (*model.LinkRecord, error) {
	var record model.LinkRecord
	if err := s.db.WithContext(ctx).First(&record, id).Error; err != nil {
		return nil, s.translate(err, fmt.Sprintf("链接不存在: id=%d", id))
	}
	return &record, nil
}

// GetByShortURL 按短链接标识查询
func (s *LinkStore) GetByShortURL(ctx context.Context, shortURL string) (*model.LinkRecord, error) {
	var record model.LinkRecord
	if err := s.db.WithContext(ctx).Where("short_url = ?", shortURL).First(&record).Error; err != nil {
		return nil, s.translate(err, fmt.Sprintf("链接不存在: short_url=%s", shortURL))
	}
	return &record, nil
}

// ListAll 返回全部记录，不保证顺序
func (s *LinkStore) ListAll(ctx context.Context) ([]model.LinkRecord, error) {
	var records []model.LinkRecord
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, s.translate(err, "查询链接列表失败")
	}
	return records, nil
}

// ListPage 按 id 升序分页
func (s *LinkStore) ListPage(ctx context.Context, offset, limit int) ([]model.LinkRecord, error) {
	records, _, err := s.Find(ctx, Query{Offset: offset, Limit: limit})
	return records, err
}

// CountAll 记录总数
func (s *LinkStore) CountAll(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&model.LinkRecord{}).Count(&total).Error; err != nil {
		return 0, s.translate(err, "统计链接数量失败")
	}
	return total, nil
}

// Query 列表查询条件
type Query struct {
	Offset  int
	Limit   int
	Search  string // 匹配 item_name / short_url / original_url
	OrderBy string
	Desc    bool
}

var sortableColumns = map[string]bool{
	"id":           true,
	"item_name":    true,
	"original_url": true,
	"short_url":    true,
	"click_count":  true,
	"last_clicked": true,
	"created_at":   true,
	"updated_at":   true,
}

// SortableColumn 判断列是否允许排序
func SortableColumn(name string) bool {
	return sortableColumns[name]
}

func (s *LinkStore) filtered(ctx context.Context, q Query) *gorm.DB {
	tx := s.db.WithContext(ctx).Model(&model.LinkRecord{})
	if search := strings.TrimSpace(q.Search); search != "" {
		like := "%" + search + "%"
		tx = tx.Where("item_name LIKE ? OR short_url LIKE ? OR original_url LIKE ?", like, like, like)
	}
	return tx
}

// Count 满足搜索条件的记录数，忽略分页与排序
func (s *LinkStore) Count(ctx context.Context, q Query) (int64, error) {
	var total int64
	if err := s.filtered(ctx, q).Count(&total).Error; err != nil {
		return 0, s.translate(err, "统计链接数量失败")
	}
	return total, nil
}

// Find 按条件分页查询，同时返回满足条件的总数
func (s *LinkStore) Find(ctx context.Context, q Query) ([]model.LinkRecord, int64, error) {
	if q.Limit <= 0 {
		return nil, 0, errcode.Validation("limit 必须大于 0")
	}
	if q.Offset < 0 {
		return nil, 0, errcode.Validation("offset 不能为负数")
	}

	total, err := s.Count(ctx, q)
	if err != nil {
		return nil, 0, err
	}

	orderBy := q.OrderBy
	if !SortableColumn(orderBy) {
		orderBy = "id"
	}

	tx := s.filtered(ctx, q).Order(clause.OrderByColumn{Column: clause.Column{Name: orderBy}, Desc: q.Desc})
	if orderBy != "id" {
		tx = tx.Order("id ASC")
	}

	var records []model.LinkRecord
	if err := tx.Offset(q.Offset).Limit(q.Limit).Find(&records).Error; err != nil {
		return nil, 0, s.translate(err, "分页查询链接失败")
	}
	return records, total, nil
}

// Delete 物理删除，记录不存在时返回 false
func (s *LinkStore) Delete(ctx context.Context, id uint) (bool, error) {
	if id == 0 {
		return false, nil
	}
	result := s.db.WithContext(ctx).Delete(&model.LinkRecord{}, id)
	if result.Error != nil {
		return false, s.translate(result.Error, fmt.Sprintf("删除链接失败: id=%d", id))
	}
	return result.RowsAffected > 0, nil
}

// ClickInput 一次点击的元数据
type ClickInput struct {
	LinkID    uint
	IPAddress string
	UserAgent string
	Referer   string
	ClickedAt time.Time
}

// RecordClick 单条 UPDATE 内完成计数 +1 与元数据覆盖，并发点击不丢计数。
// 元数据以最后提交者为准。
func (s *LinkStore) RecordClick(ctx context.Context, in ClickInput) error {
	clickedAt := in.ClickedAt
	if clickedAt.IsZero() {
		clickedAt = s.now()
	}

	result := s.db.WithContext(ctx).Model(&model.LinkRecord{}).
		Where("id = ?", in.LinkID).
		UpdateColumns(map[string]interface{}{
			"click_count":  gorm.Expr("click_count + ?", 1),
			"ip_address":   in.IPAddress,
			"user_agent":   in.UserAgent,
			"referer_data": in.Referer,
			"last_clicked": clickedAt,
			"updated_at":   clickedAt,
		})
	if result.Error != nil {
		return s.translate(result.Error, fmt.Sprintf("更新点击统计失败: id=%d", in.LinkID))
	}
	if result.RowsAffected == 0 {
		return errcode.NotFound(fmt.Sprintf("链接不存在: id=%d", in.LinkID))
	}
	return nil
}

// Ping 检查存储是否可用
func (s *LinkStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errcode.StoreUnavailable("获取连接池失败", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return errcode.StoreUnavailable("数据库不可达", err)
	}
	return nil
}

// translate 将 gorm 错误映射为 errcode
func (s *LinkStore) translate(err error, msg string) error {
	var coded *errcode.Error
	switch {
	case errors.As(err, &coded):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errcode.New(errcode.KindNotFound, msg, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errcode.DuplicateKey("short_url 已存在", err)
	default:
		s.logger.Errorf("%s: %v", msg, err)
		return errcode.StoreUnavailable(msg, err)
	}
}
