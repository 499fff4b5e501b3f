package model

import (
	"encoding/json"
	"time"
)

type AuditAction string

const (
	AuditCreate     AuditAction = "CREATE"
	AuditUpdate     AuditAction = "UPDATE"
	AuditSoftDelete AuditAction = "SOFT_DELETE"
	AuditRestore    AuditAction = "RESTORE"
)

// AuditEntry is append-only. BeforeData is nil for CREATE and RESTORE,
// AfterData is nil for SOFT_DELETE.
type AuditEntry struct {
	ID         int64           `json:"id"`
	TaskID     int64           `json:"taskId"`
	Action     AuditAction     `json:"action"`
	BeforeData json.RawMessage `json:"beforeData"`
	AfterData  json.RawMessage `json:"afterData"`
	ActorID    int64           `json:"actorId"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// TaskSnapshot is what audit entries store as before/after state.
type TaskSnapshot struct {
	Name       string     `json:"name"`
	Status     Status     `json:"status"`
	Content    *string    `json:"content"`
	ReminderAt *time.Time `json:"reminderAt"`
	ExpireAt   *time.Time `json:"expireAt"`
	Version    int        `json:"version"`
	DeletedAt  *time.Time `json:"deletedAt"`
}

type IdempotencyRecord struct {
	Key             string
	OwnerID         int64
	ResponsePayload []byte
	CreatedAt       time.Time
}

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Actor приходит из внешнего слоя аутентификации, движок ему доверяет
type Actor struct {
	UserID int64
	Role   Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanModify - владелец или admin
func (a Actor) CanModify(t Task) bool {
	return a.IsAdmin() || a.UserID == t.OwnerID
}
