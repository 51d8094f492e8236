package taskrepo

import (
	"context"
	"errors"

	"github.com/google/wire"
	"github.com/samber/lo"
	"gorm.io/gorm"

	domain "github.com/promptops/scheduler/internal/biz/task"
	"github.com/promptops/scheduler/internal/infra/persistence/commonrepo"
	"github.com/promptops/scheduler/internal/limits"
	"github.com/promptops/scheduler/internal/recurrence"
)

var Provider = wire.NewSet(NewMysqlRepositoryImpl)

type MysqlRepositoryImpl struct {
	commonrepo.DefaultRepo
}

func NewMysqlRepositoryImpl(db commonrepo.DB) domain.Repo {
	return &MysqlRepositoryImpl{DefaultRepo: commonrepo.NewDefaultRepo(db)}
}

func (r *MysqlRepositoryImpl) Create(ctx context.Context, task *domain.Task) error {
	po := new(TaskPo).FromDomain(task)
	err := r.Db(ctx).Create(po).Error
	if err != nil {
		return err
	}
	task.CreatedAt = po.CreatedAt
	task.UpdatedAt = po.UpdatedAt
	return nil
}

func (r *MysqlRepositoryImpl) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	var po TaskPo
	if err := r.Db(ctx).Where("id = ?", id).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return po.ToDomain(), nil
}

func (r *MysqlRepositoryImpl) GetByOwner(ctx context.Context, ownerID, id string) (*domain.Task, error) {
	var po TaskPo
	if err := r.Db(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return po.ToDomain(), nil
}

func (r *MysqlRepositoryImpl) Delete(ctx context.Context, id string) error {
	return r.Db(ctx).Delete(&TaskPo{}, "id = ?", id).Error
}

func (r *MysqlRepositoryImpl) Update(ctx context.Context, id string, patch *domain.TaskPatch) error {
	values := patchToMap(patch)
	if len(values) == 0 {
		return nil
	}
	return r.Db(ctx).Model(&TaskPo{}).Where("id = ?", id).Updates(values).Error
}

func (r *MysqlRepositoryImpl) ListByOwner(ctx context.Context, ownerID string, filter *domain.TaskFilter) ([]*domain.Task, error) {
	var pos []TaskPo
	query := r.Db(ctx).Model(&TaskPo{}).Where("owner_id = ?", ownerID)
	if filter != nil && filter.Status.IsPresent() {
		query = query.Where("status = ?", filter.Status.MustGet())
	}
	if err := query.Order("created_at DESC").Find(&pos).Error; err != nil {
		return nil, err
	}
	return lo.Map(pos, func(po TaskPo, _ int) *domain.Task {
		return po.ToDomain()
	}), nil
}

func (r *MysqlRepositoryImpl) CountActiveByOwner(ctx context.Context, ownerID string) (limits.Counts, error) {
	var rows []struct {
		ScheduleType recurrence.Type
		N            int
	}
	err := r.Db(ctx).Model(&TaskPo{}).
		Select("schedule_type, COUNT(*) AS n").
		Where("owner_id = ? AND status = ?", ownerID, domain.TaskStatusActive).
		Group("schedule_type").
		Scan(&rows).Error
	if err != nil {
		return limits.Counts{}, err
	}

	var counts limits.Counts
	for _, row := range rows {
		counts.Total += row.N
		switch row.ScheduleType {
		case recurrence.TypeDaily:
			counts.Daily += row.N
		case recurrence.TypeWeekly:
			counts.Weekly += row.N
		}
	}
	return counts, nil
}

func (r *MysqlRepositoryImpl) FindByStatus(ctx context.Context, status domain.TaskStatus) ([]*domain.Task, error) {
	var pos []TaskPo
	if err := r.Db(ctx).Where("status = ?", status).Find(&pos).Error; err != nil {
		return nil, err
	}
	return lo.Map(pos, func(po TaskPo, _ int) *domain.Task {
		return po.ToDomain()
	}), nil
}
