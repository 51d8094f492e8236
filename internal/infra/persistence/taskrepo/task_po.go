package taskrepo

import (
	"time"

	"gorm.io/datatypes"

	domain "github.com/promptops/scheduler/internal/biz/task"
	"github.com/promptops/scheduler/internal/infra/persistence/commonrepo"
	"github.com/promptops/scheduler/internal/recurrence"
)

type TaskPo struct {
	commonrepo.Mode
	OwnerID string `gorm:"column:owner_id;size:64;not null;index:idx_owner_status"`
	Title   string `gorm:"column:title;size:255;not null"`
	Prompt  string `gorm:"column:prompt;type:text;not null"`

	ScheduleType  recurrence.Type `gorm:"column:schedule_type;size:20;not null"`
	ScheduledTime string          `gorm:"column:scheduled_time;size:10;not null"`
	ScheduledDate string          `gorm:"column:scheduled_date;size:10"`
	TimeZone      string          `gorm:"column:time_zone;size:64;not null"`

	Status               domain.TaskStatus `gorm:"column:status;size:20;not null;index:idx_owner_status;index"`
	NextExecutionAt      *time.Time        `gorm:"column:next_execution_at;index"`
	PendingJobHandle     *string           `gorm:"column:pending_job_handle;size:36"`
	LastExecutedAt       *time.Time        `gorm:"column:last_executed_at"`
	LinkedConversationID *string           `gorm:"column:linked_conversation_id;size:64"`

	EnabledToolSlugs datatypes.JSONSlice[string] `gorm:"column:enabled_tool_slugs;type:json"`
	SearchEnabled    bool                        `gorm:"column:search_enabled;not null;default:false"`
	EmailNotify      bool                        `gorm:"column:email_notify;not null;default:false"`
}

func (TaskPo) TableName() string {
	return "scheduled_tasks"
}
