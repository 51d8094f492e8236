package executionrepo

import (
	"time"

	"gorm.io/datatypes"

	domain "github.com/promptops/scheduler/internal/biz/execution"
	"github.com/promptops/scheduler/internal/infra/persistence/commonrepo"
)

type ExecutionPo struct {
	commonrepo.Mode
	TaskID          string                 `gorm:"column:task_id;size:36;not null;index:idx_task_start"`
	Status          domain.ExecutionStatus `gorm:"column:status;size:20;not null;index"`
	StartTime       time.Time              `gorm:"column:start_time;not null;index:idx_task_start"`
	EndTime         *time.Time             `gorm:"column:end_time"`
	ConversationID  *string                `gorm:"column:conversation_id;size:64"`
	ErrorMessage    *string                `gorm:"column:error_message;type:text"`
	Metadata        datatypes.JSONMap      `gorm:"column:metadata;type:json"`
	IsManualTrigger bool                   `gorm:"column:is_manual_trigger;not null;default:false"`
}

func (ExecutionPo) TableName() string {
	return "task_executions"
}
