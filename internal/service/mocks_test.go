package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/BuzzLyutic/task-tracker/internal/model"
	"github.com/BuzzLyutic/task-tracker/internal/repo"
)

// MockTaskRepository - мок репозитория; InTx прогоняет колбэк через Tx
type MockTaskRepository struct {
	mock.Mock
	Tx *MockTaskTx
}

func newMockRepo() *MockTaskRepository {
	return &MockTaskRepository{Tx: new(MockTaskTx)}
}

func (m *MockTaskRepository) InTx(ctx context.Context, fn func(tx repo.TaskTx) error) error {
	m.Called(ctx)
	return fn(m.Tx)
}

func (m *MockTaskRepository) ListTasks(ctx context.Context, q model.ListQuery) ([]model.TaskListItem, int, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]model.TaskListItem), args.Int(1), args.Error(2)
}

func (m *MockTaskRepository) GetStats(ctx context.Context, ownerID *int64) (repo.Stats, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).(repo.Stats), args.Error(1)
}

func (m *MockTaskRepository) PurgeIdempotency(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type MockTaskTx struct {
	mock.Mock
}

func (m *MockTaskTx) LockIdempotencyKey(ctx context.Context, ownerID int64, key string) error {
	return m.Called(ctx, ownerID, key).Error(0)
}

func (m *MockTaskTx) FindIdempotency(ctx context.Context, ownerID int64, key string, notBefore time.Time) ([]byte, error) {
	args := m.Called(ctx, ownerID, key, notBefore)
	payload, _ := args.Get(0).([]byte)
	return payload, args.Error(1)
}

func (m *MockTaskTx) SaveIdempotency(ctx context.Context, rec model.IdempotencyRecord, notBefore time.Time) error {
	return m.Called(ctx, rec, notBefore).Error(0)
}

func (m *MockTaskTx) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	args := m.Called(ctx, t)
	return args.Get(0).(model.Task), args.Error(1)
}

func (m *MockTaskTx) CreateDetail(ctx context.Context, d model.TaskDetail) error {
	return m.Called(ctx, d).Error(0)
}

func (m *MockTaskTx) GetTask(ctx context.Context, id int64, includeDeleted bool) (model.TaskAggregate, error) {
	args := m.Called(ctx, id, includeDeleted)
	return args.Get(0).(model.TaskAggregate), args.Error(1)
}

func (m *MockTaskTx) UpdateTask(ctx context.Context, t model.Task, expectedVersion int) (model.Task, error) {
	args := m.Called(ctx, t, expectedVersion)
	return args.Get(0).(model.Task), args.Error(1)
}

func (m *MockTaskTx) UpdateDetail(ctx context.Context, d model.TaskDetail) error {
	return m.Called(ctx, d).Error(0)
}

func (m *MockTaskTx) MarkDeleted(ctx context.Context, id int64, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockTaskTx) ClearDeleted(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockTaskTx) AppendAudit(ctx context.Context, e model.AuditEntry) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockTaskTx) ListAudits(ctx context.Context, taskID int64) ([]model.AuditEntry, error) {
	args := m.Called(ctx, taskID)
	return args.Get(0).([]model.AuditEntry), args.Error(1)
}

func (m *MockTaskTx) LockTask(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockTaskTx) DeleteDetail(ctx context.Context, taskID int64) error {
	return m.Called(ctx, taskID).Error(0)
}

func (m *MockTaskTx) DeleteAudits(ctx context.Context, taskID int64) error {
	return m.Called(ctx, taskID).Error(0)
}

func (m *MockTaskTx) DeleteTask(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}
