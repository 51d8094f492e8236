package executionrepo

import (
	"context"
	"errors"
	"time"

	"github.com/google/wire"
	"github.com/samber/lo"
	"gorm.io/gorm"

	domain "github.com/promptops/scheduler/internal/biz/execution"
	"github.com/promptops/scheduler/internal/infra/persistence/commonrepo"
)

var Provider = wire.NewSet(NewMysqlRepositoryImpl)

type MysqlRepositoryImpl struct {
	commonrepo.DefaultRepo
}

func NewMysqlRepositoryImpl(db commonrepo.DB) domain.Repo {
	return &MysqlRepositoryImpl{DefaultRepo: commonrepo.NewDefaultRepo(db)}
}

func (r *MysqlRepositoryImpl) Create(ctx context.Context, execution *domain.TaskExecution) error {
	po := new(ExecutionPo).FromDomain(execution)
	err := r.Db(ctx).Create(po).Error
	if err != nil {
		return err
	}
	execution.CreatedAt = po.CreatedAt
	execution.UpdatedAt = po.UpdatedAt
	return nil
}

func (r *MysqlRepositoryImpl) GetByID(ctx context.Context, id string) (*domain.TaskExecution, error) {
	var po ExecutionPo
	if err := r.Db(ctx).Where("id = ?", id).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return po.ToDomain(), nil
}

func (r *MysqlRepositoryImpl) Update(ctx context.Context, id string, patch *domain.TaskExecutionPatch) error {
	values := patchToMap(patch)
	if len(values) == 0 {
		return nil
	}
	return r.Db(ctx).Model(&ExecutionPo{}).Where("id = ?", id).Updates(values).Error
}

// FinishIfRunning is the idempotency gate for terminal writes: the status
// predicate makes the update a no-op once any terminal state landed.
func (r *MysqlRepositoryImpl) FinishIfRunning(ctx context.Context, id string, patch *domain.TaskExecutionPatch) (bool, error) {
	values := patchToMap(patch)
	if len(values) == 0 {
		return false, nil
	}
	res := r.Db(ctx).Model(&ExecutionPo{}).
		Where("id = ? AND status = ?", id, domain.ExecutionStatusRunning).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *MysqlRepositoryImpl) ListByTask(ctx context.Context, taskID string, limit int) ([]*domain.TaskExecution, error) {
	var pos []ExecutionPo
	err := r.Db(ctx).Model(&ExecutionPo{}).
		Where("task_id = ?", taskID).
		Order("start_time DESC").
		Limit(limit).
		Find(&pos).Error
	if err != nil {
		return nil, err
	}
	return lo.Map(pos, func(po ExecutionPo, _ int) *domain.TaskExecution {
		return po.ToDomain()
	}), nil
}

func (r *MysqlRepositoryImpl) StatusCounts(ctx context.Context, taskID string) (map[domain.ExecutionStatus]int64, error) {
	var rows []struct {
		Status domain.ExecutionStatus
		N      int64
	}
	err := r.Db(ctx).Model(&ExecutionPo{}).
		Select("status, COUNT(*) AS n").
		Where("task_id = ?", taskID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.ExecutionStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.N
	}
	return counts, nil
}

func (r *MysqlRepositoryImpl) AverageDurationMs(ctx context.Context, taskID string) (float64, error) {
	var avg float64
	err := r.Db(ctx).Raw(
		"SELECT COALESCE(AVG(TIMESTAMPDIFF(MICROSECOND, start_time, end_time) / 1000), 0) FROM task_executions WHERE task_id = ? AND end_time IS NOT NULL",
		taskID,
	).Scan(&avg).Error
	if err != nil {
		return 0, err
	}
	return avg, nil
}

// DeleteBeyondKeep removes everything past the newest keep records. Two
// steps because MySQL cannot delete from a table it subqueries with LIMIT.
func (r *MysqlRepositoryImpl) DeleteBeyondKeep(ctx context.Context, taskID string, keep int) (int64, error) {
	var ids []string
	err := r.Db(ctx).Model(&ExecutionPo{}).
		Where("task_id = ?", taskID).
		Order("start_time DESC").
		Offset(keep).
		Limit(1000).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res := r.Db(ctx).Delete(&ExecutionPo{}, "id IN ?", ids)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *MysqlRepositoryImpl) ListTaskIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.Db(ctx).Model(&ExecutionPo{}).
		Distinct("task_id").
		Pluck("task_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *MysqlRepositoryImpl) ListStaleRunning(ctx context.Context, startedBefore time.Time) ([]*domain.TaskExecution, error) {
	var pos []ExecutionPo
	err := r.Db(ctx).
		Where("status = ? AND start_time < ?", domain.ExecutionStatusRunning, startedBefore).
		Find(&pos).Error
	if err != nil {
		return nil, err
	}
	return lo.Map(pos, func(po ExecutionPo, _ int) *domain.TaskExecution {
		return po.ToDomain()
	}), nil
}
