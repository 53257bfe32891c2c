package redis

import (
	"context"
	"errors"
	"sort"

	"github.com/flowops/cadenza/model"
	"github.com/flowops/cadenza/persistence"
	"github.com/flowops/cadenza/util"
	rd "github.com/go-redis/redis/v9"
)

const TASK_KEY string = "TASK"
const TASKS_BY_INSTANCE_KEY string = "INSTANCE_TASKS"
const PENDING_TASKS_KEY string = "PENDING_TASKS"

var _ persistence.TaskStorage = new(redisTaskStorage)

// Tasks live under one key each with two index sets: task ids per instance,
// and pending task ids per (tenant, assignee). SaveTask reads the previous
// copy first so a reassignment moves the id between assignee sets.
type redisTaskStorage struct {
	baseDao        *baseDao
	encoderDecoder util.EncoderDecoder[model.WorkflowTask]
}

func newRedisTaskStorage(base *baseDao) *redisTaskStorage {
	return &redisTaskStorage{
		baseDao:        base,
		encoderDecoder: util.NewJsonEncoderDecoder[model.WorkflowTask](),
	}
}

func (rs *redisTaskStorage) taskKey(id string) string {
	return rs.baseDao.getNamespaceKey(TASK_KEY, id)
}

func (rs *redisTaskStorage) pendingKey(tenantId string, assignee string) string {
	return rs.baseDao.getNamespaceKey(PENDING_TASKS_KEY, tenantId, assignee)
}

func (rs *redisTaskStorage) SaveTask(task *model.WorkflowTask) error {
	ctx := context.Background()
	previous, _ := rs.GetTask(task.Id)
	data, err := rs.encoderDecoder.Encode(*task)
	if err != nil {
		return err
	}
	_, err = rs.baseDao.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.Set(ctx, rs.taskKey(task.Id), data, 0)
		pipe.SAdd(ctx, rs.baseDao.getNamespaceKey(TASKS_BY_INSTANCE_KEY, task.InstanceId), task.Id)
		if previous != nil && previous.Assignee != task.Assignee {
			pipe.SRem(ctx, rs.pendingKey(previous.TenantId, previous.Assignee), task.Id)
		}
		if task.Status == model.TASK_PENDING {
			pipe.SAdd(ctx, rs.pendingKey(task.TenantId, task.Assignee), task.Id)
		} else {
			pipe.SRem(ctx, rs.pendingKey(task.TenantId, task.Assignee), task.Id)
		}
		return nil
	})
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rs *redisTaskStorage) GetTask(id string) (*model.WorkflowTask, error) {
	ctx := context.Background()
	val, err := rs.baseDao.redisClient.Get(ctx, rs.taskKey(id)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Entity: "task", Id: id}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rs.encoderDecoder.Decode([]byte(val))
}

func (rs *redisTaskStorage) PendingTaskForStep(instanceId string, stepId string) (*model.WorkflowTask, error) {
	tasks, err := rs.TasksByInstance(instanceId)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if tasks[i].StepId == stepId && tasks[i].Status == model.TASK_PENDING {
			return &tasks[i], nil
		}
	}
	return nil, persistence.NotFoundError{Entity: "task", Id: instanceId + ":" + stepId}
}

func (rs *redisTaskStorage) TasksByInstance(instanceId string) ([]model.WorkflowTask, error) {
	ctx := context.Background()
	ids, err := rs.baseDao.redisClient.SMembers(ctx, rs.baseDao.getNamespaceKey(TASKS_BY_INSTANCE_KEY, instanceId)).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rs.loadTasks(ids)
}

func (rs *redisTaskStorage) PendingTasksForUser(tenantId string, userId string) ([]model.WorkflowTask, error) {
	ctx := context.Background()
	ids, err := rs.baseDao.redisClient.SMembers(ctx, rs.pendingKey(tenantId, userId)).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	tasks, err := rs.loadTasks(ids)
	if err != nil {
		return nil, err
	}
	out := tasks[:0]
	for _, task := range tasks {
		if task.Status == model.TASK_PENDING {
			out = append(out, task)
		}
	}
	model.SortTasksForWorklist(out)
	return out, nil
}

func (rs *redisTaskStorage) loadTasks(ids []string) ([]model.WorkflowTask, error) {
	out := make([]model.WorkflowTask, 0, len(ids))
	for _, id := range ids {
		task, err := rs.GetTask(id)
		if err != nil {
			continue
		}
		out = append(out, *task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
