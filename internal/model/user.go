package model

import (
	"errors"
	"time"
)

// ErrEmailTaken 表示邮箱命中了唯一索引。
// 存储层把驱动的 duplicate-entry 错误翻译成它，供处理层返回 409。
var ErrEmailTaken = errors.New("email already taken")

// 用户角色。服务端只强制区分 user / admin，
// 其它标签（如 moderator）允许存储但仅作展示用途。
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// 账户状态。自助注册默认 Inactive，管理员创建默认 Active。
const (
	StatusActive   = "Active"
	StatusInactive = "Inactive"
)

// User 表示系统用户。
type User struct {
	ID        uint       `gorm:"primaryKey"`                    // 用户 ID
	FullName  string     `gorm:"type:varchar(191);not null"`    // 姓名
	Email     string     `gorm:"type:varchar(191);uniqueIndex"` // 邮箱（唯一，按原样存储，区分大小写）
	Password  string     `gorm:"not null"`                      // bcrypt 哈希，永不下发给客户端
	Role      string     `gorm:"type:varchar(32);default:user"` // 角色: user / admin
	Status    string     `gorm:"type:varchar(16)"`              // 状态: Active / Inactive
	CreatedAt time.Time  // 创建时间
	UpdatedAt *time.Time // 最近一次管理员变更时间

	Todos []Todo `gorm:"foreignKey:UserID"`
}
