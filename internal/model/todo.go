package model

import "time"

// 任务优先级。未指定时默认 medium。
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// ValidPriority 判断优先级取值是否合法。
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Todo 表示一条待办任务。
//
// 每条任务恰好属于一个用户（UserID）；管理员可以代他人创建，
// 此时 AssignedBy 记录下发任务的管理员 ID。
// 约束：CompletedAt 当且仅当 Completed 为 true 时非空，
// 在切换 completed 字段的时刻维护，不作为存储层约束。
type Todo struct {
	ID        uint      `gorm:"primaryKey"` // 任务唯一标识
	CreatedAt time.Time // 创建时间

	UserID uint   `gorm:"not null;index"` // 所属用户 ID
	Title  string `gorm:"not null"`       // 标题（非空）

	Completed   bool       `gorm:"default:false"`                   // 是否已完成
	CompletedAt *time.Time // 完成时间（与 Completed 同步维护）
	DueDate     *time.Time // 截止日期（可选）
	Priority    string     `gorm:"type:varchar(16);default:medium"` // 优先级: low / medium / high
	AssignedBy  *uint      // 代创建任务的管理员 ID（可选）
}
