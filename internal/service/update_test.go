package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BuzzLyutic/task-tracker/internal/model"
	"github.com/BuzzLyutic/task-tracker/internal/repo"
)

func activeTask() model.TaskAggregate {
	return model.TaskAggregate{
		Task: model.Task{ID: 1, OwnerID: 7, Name: "Fix bug", Status: model.StatusTodo, Version: 1},
		Detail: model.TaskDetail{
			TaskID:  1,
			Content: strPtr("initial"),
		},
	}
}

func intPtr(v int) *int { return &v }

func TestTaskService_Update(t *testing.T) {
	tests := []struct {
		name      string
		actor     model.Actor
		id        int64
		input     model.UpdateTaskInput
		setupMock func(*MockTaskRepository)
		wantErr   error
		check     func(*testing.T, model.TaskView, *MockTaskRepository)
	}{
		{
			name:      "version required",
			actor:     owner,
			id:        1,
			input:     model.UpdateTaskInput{Name: model.Some("Fix bug v2")},
			setupMock: func(m *MockTaskRepository) {},
			wantErr:   ErrVersionRequired,
		},
		{
			name:      "invalid task id",
			actor:     owner,
			id:        0,
			input:     model.UpdateTaskInput{Version: intPtr(1)},
			setupMock: func(m *MockTaskRepository) {},
			wantErr:   ErrInvalidTaskID,
		},
		{
			name:      "validation error - blank name",
			actor:     owner,
			id:        1,
			input:     model.UpdateTaskInput{Name: model.Some(" "), Version: intPtr(1)},
			setupMock: func(m *MockTaskRepository) {},
			wantErr:   ErrValidation,
		},
		{
			name:      "validation error - unknown status",
			actor:     owner,
			id:        1,
			input:     model.UpdateTaskInput{Status: model.Some(model.Status("doing")), Version: intPtr(1)},
			setupMock: func(m *MockTaskRepository) {},
			wantErr:   ErrValidation,
		},
		{
			name:  "task not found",
			actor: owner,
			id:    99,
			input: model.UpdateTaskInput{Name: model.Some("x"), Version: intPtr(1)},
			setupMock: func(m *MockTaskRepository) {
				m.On("InTx", mock.Anything).Return()
				m.Tx.On("GetTask", mock.Anything, int64(99), false).Return(model.TaskAggregate{}, repo.ErrorNotFound)
			},
			wantErr: ErrTaskNotFound,
		},
		{
			name:  "forbidden for other user",
			actor: other,
			id:    1,
			input: model.UpdateTaskInput{Name: model.Some("Fix bug v2"), Version: intPtr(1)},
			setupMock: func(m *MockTaskRepository) {
				m.On("InTx", mock.Anything).Return()
				m.Tx.On("GetTask", mock.Anything, int64(1), false).Return(activeTask(), nil)
			},
			wantErr: ErrForbidden,
		},
		{
			name:  "stale version",
			actor: owner,
			id:    1,
			input: model.UpdateTaskInput{Name: model.Some("Fix bug v2"), Version: intPtr(2)},
			setupMock: func(m *MockTaskRepository) {
				m.On("InTx", mock.Anything).Return()
				m.Tx.On("GetTask", mock.Anything, int64(1), false).Return(activeTask(), nil)
			},
			wantErr: ErrVersionConflict,
			check: func(t *testing.T, _ model.TaskView, m *MockTaskRepository) {
				m.Tx.AssertNotCalled(t, "UpdateTask", mock.Anything, mock.Anything, mock.Anything)
			},
		},
		{
			name:  "no changes",
			actor: owner,
			id:    1,
			input: model.UpdateTaskInput{
				Name:       model.Some("Fix bug"),
				ReminderAt: model.Some("not a date"),
				Version:    intPtr(1),
			},
			setupMock: func(m *MockTaskRepository) {
				m.On("InTx", mock.Anything).Return()
				m.Tx.On("GetTask", mock.Anything, int64(1), false).Return(activeTask(), nil)
			},
			wantErr: ErrNoChanges,
			check: func(t *testing.T, _ model.TaskView, m *MockTaskRepository) {
				m.Tx.AssertNotCalled(t, "AppendAudit", mock.Anything, mock.Anything)
			},
		},
		{
			name:  "conditional write hits zero rows",
			actor: owner,
			id:    1,
			input: model.UpdateTaskInput{Name: model.Some("Fix bug v2"), Version: intPtr(1)},
			setupMock: func(m *MockTaskRepository) {
				m.On("InTx", mock.Anything).Return()
				m.Tx.On("GetTask", mock.Anything, int64(1), false).Return(activeTask(), nil)
				m.Tx.On("UpdateTask", mock.Anything, mock.Anything, 1).Return(model.Task{}, repo.ErrorConflict)
			},
			wantErr: ErrVersionConflict,
			check: func(t *testing.T, _ model.TaskView, m *MockTaskRepository) {
				m.Tx.AssertNotCalled(t, "UpdateDetail", mock.Anything, mock.Anything)
				m.Tx.AssertNotCalled(t, "AppendAudit", mock.Anything, mock.Anything)
			},
		},
		{
			name:  "successful update bumps version and audits before/after",
			actor: owner,
			id:    1,
			input: model.UpdateTaskInput{Name: model.Some("Fix bug v2"), Version: intPtr(1)},
			setupMock: func(m *MockTaskRepository) {
				m.On("InTx", mock.Anything).Return()
				m.Tx.On("GetTask", mock.Anything, int64(1), false).Return(activeTask(), nil)
				m.Tx.On("UpdateTask", mock.Anything, mock.MatchedBy(func(t model.Task) bool {
					return t.ID == 1 && t.Name == "Fix bug v2" && t.Status == model.StatusTodo
				}), 1).Return(model.Task{ID: 1, OwnerID: 7, Name: "Fix bug v2", Status: model.StatusTodo, Version: 2}, nil)
				m.Tx.On("UpdateDetail", mock.Anything, mock.MatchedBy(func(d model.TaskDetail) bool {
					return d.TaskID == 1 && d.Content != nil && *d.Content == "initial"
				})).Return(nil)
				m.Tx.On("AppendAudit", mock.Anything, mock.MatchedBy(func(e model.AuditEntry) bool {
					var before, after model.TaskSnapshot
					if json.Unmarshal(e.BeforeData, &before) != nil || json.Unmarshal(e.AfterData, &after) != nil {
						return false
					}
					return e.Action == model.AuditUpdate &&
						before.Name == "Fix bug" && before.Version == 1 &&
						after.Name == "Fix bug v2" && after.Version == 2
				})).Return(nil)
			},
			check: func(t *testing.T, view model.TaskView, _ *MockTaskRepository) {
				assert.Equal(t, 2, view.Version)
				assert.Equal(t, "Fix bug v2", view.Name)
			},
		},
		{
			name:  "admin may update someone else's task",
			actor: admin,
			id:    1,
			input: model.UpdateTaskInput{Status: model.Some(model.StatusDone), Version: intPtr(1)},
			setupMock: func(m *MockTaskRepository) {
				m.On("InTx", mock.Anything).Return()
				m.Tx.On("GetTask", mock.Anything, int64(1), false).Return(activeTask(), nil)
				m.Tx.On("UpdateTask", mock.Anything, mock.Anything, 1).
					Return(model.Task{ID: 1, OwnerID: 7, Name: "Fix bug", Status: model.StatusDone, Version: 2}, nil)
				m.Tx.On("UpdateDetail", mock.Anything, mock.Anything).Return(nil)
				m.Tx.On("AppendAudit", mock.Anything, mock.MatchedBy(func(e model.AuditEntry) bool {
					return e.ActorID == admin.UserID
				})).Return(nil)
			},
			check: func(t *testing.T, view model.TaskView, _ *MockTaskRepository) {
				assert.Equal(t, model.StatusDone, view.Status)
				assert.Equal(t, int64(7), view.OwnerID)
			},
		},
		{
			name:  "explicit null clears content and still bumps version",
			actor: owner,
			id:    1,
			input: model.UpdateTaskInput{Content: model.Null[string](), Version: intPtr(1)},
			setupMock: func(m *MockTaskRepository) {
				m.On("InTx", mock.Anything).Return()
				m.Tx.On("GetTask", mock.Anything, int64(1), false).Return(activeTask(), nil)
				m.Tx.On("UpdateTask", mock.Anything, mock.Anything, 1).
					Return(model.Task{ID: 1, OwnerID: 7, Name: "Fix bug", Status: model.StatusTodo, Version: 2}, nil)
				m.Tx.On("UpdateDetail", mock.Anything, mock.MatchedBy(func(d model.TaskDetail) bool {
					return d.Content == nil
				})).Return(nil)
				m.Tx.On("AppendAudit", mock.Anything, mock.Anything).Return(nil)
			},
			check: func(t *testing.T, view model.TaskView, _ *MockTaskRepository) {
				assert.Nil(t, view.Content)
				assert.Equal(t, 2, view.Version)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := newMockRepo()
			tt.setupMock(mockRepo)

			service := newTestService(mockRepo)
			view, err := service.Update(context.Background(), tt.actor, tt.id, tt.input)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, view)
			} else {
				require.NoError(t, err)
			}
			if tt.check != nil {
				tt.check(t, view, mockRepo)
			}

			mockRepo.AssertExpectations(t)
			mockRepo.Tx.AssertExpectations(t)
		})
	}
}

func TestApplyUpdate_PartialSemantics(t *testing.T) {
	current := activeTask()
	reminder := model.ParseDate(strPtr("2025-01-01T10:00:00Z"))
	current.Detail.ReminderAt = reminder

	t.Run("absent fields keep values", func(t *testing.T) {
		next := applyUpdate(current, model.UpdateTaskInput{Version: intPtr(1)})
		assert.False(t, changed(current, next))
	})

	t.Run("null name is ignored", func(t *testing.T) {
		next := applyUpdate(current, model.UpdateTaskInput{Name: model.Null[string]()})
		assert.Equal(t, "Fix bug", next.Name)
	})

	t.Run("same instant in another zone is not a change", func(t *testing.T) {
		next := applyUpdate(current, model.UpdateTaskInput{ReminderAt: model.Some("2025-01-01T12:00:00+02:00")})
		assert.False(t, changed(current, next))
	})

	t.Run("null date clears", func(t *testing.T) {
		next := applyUpdate(current, model.UpdateTaskInput{ReminderAt: model.Null[string]()})
		assert.Nil(t, next.Detail.ReminderAt)
		assert.True(t, changed(current, next))
	})

	t.Run("does not mutate current", func(t *testing.T) {
		_ = applyUpdate(current, model.UpdateTaskInput{Content: model.Some("other")})
		assert.Equal(t, "initial", *current.Detail.Content)
	})
}
