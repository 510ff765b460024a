package database

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// linkRow 只保留唯一索引相关的列
type linkRow struct {
	ID       uint   `gorm:"primarykey"`
	ShortURL string `gorm:"type:varchar(255);uniqueIndex;not null"`
}

func TestOpen_SqliteMigratesAndTranslatesDuplicates(t *testing.T) {
	cfg := Config{Driver: "sqlite", Name: filepath.Join(t.TempDir(), "test.db"), MaxOpenConns: 1}

	db, err := Open(cfg, zap.NewNop().Sugar(), &linkRow{})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	assert.True(t, db.Migrator().HasTable(&linkRow{}))

	first := linkRow{ShortURL: "dup"}
	require.NoError(t, db.Create(&first).Error)

	second := linkRow{ShortURL: "dup"}
	err = db.Create(&second).Error
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey), "short_url 唯一索引冲突应被翻译, got %v", err)
}

func TestDialectorFor(t *testing.T) {
	for _, driver := range []string{"mysql", "postgres", "sqlite"} {
		d, err := dialectorFor(Config{Driver: driver, Host: "localhost", Port: 1, Name: "x"})
		require.NoError(t, err)
		assert.Equal(t, driver, d.Name())
	}

	_, err := dialectorFor(Config{Driver: "oracle"})
	assert.Error(t, err)
}
