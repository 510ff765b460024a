package model

import (
	"time"
)

// LinkRecord 链接记录：短链接标识、目标地址与最近一次点击信息
type LinkRecord struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	ItemName    string     `gorm:"type:varchar(255);not null" json:"item_name"`
	OriginalURL string     `gorm:"type:text;not null" json:"original_url"`
	ShortURL    string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"short_url"`
	ClickCount  int64      `gorm:"not null;default:0" json:"click_count"`
	LastClicked *time.Time `json:"last_clicked"`
	IPAddress   *string    `gorm:"type:varchar(45)" json:"ip_address"`
	UserAgent   *string    `gorm:"type:text" json:"user_agent"`
	RefererData *string    `gorm:"type:text" json:"referer_data"`
	// 时间戳由 store 的时钟写入，关闭 gorm 的自动填充
	CreatedAt time.Time `gorm:"autoCreateTime:false;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false;not null" json:"updated_at"`
}

// TableName 指定表名
func (LinkRecord) TableName() string {
	return "link_records"
}
