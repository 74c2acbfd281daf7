package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/compozy/tenantflow/engine/core"
)

type Type string

const (
	TypeGeneric Type = "GENERIC"
	TypeImport  Type = "IMPORT"
	TypeUpdate  Type = "UPDATE"
	TypeExport  Type = "EXPORT"
	TypeProcess Type = "PROCESS"
)

// Types lists every task type. Unit registries are checked against it.
func Types() []Type {
	return []Type{TypeGeneric, TypeImport, TypeUpdate, TypeExport, TypeProcess}
}

// PipelineTypes are the types whose active tasks mark a tenant as triggered.
func PipelineTypes() []Type {
	return []Type{TypeImport, TypeUpdate, TypeExport, TypeProcess}
}

func (t Type) Valid() bool {
	switch t {
	case TypeGeneric, TypeImport, TypeUpdate, TypeExport, TypeProcess:
		return true
	}
	return false
}

func (t Type) String() string {
	return string(t)
}

func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown task type %q", s)
	}
	return t, nil
}

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusFailed    Status = "FAILED"
	StatusRevoked   Status = "REVOKED"
	StatusCompleted Status = "COMPLETED"
)

func Statuses() []Status {
	return []Status{StatusPending, StatusRunning, StatusFailed, StatusRevoked, StatusCompleted}
}

// ActiveStatuses are the non-terminal statuses.
func ActiveStatuses() []Status {
	return []Status{StatusPending, StatusRunning}
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusFailed, StatusRevoked, StatusCompleted:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRevoked
}

func (s Status) String() string {
	return string(s)
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown task status %q", s)
	}
	return st, nil
}

// Selector names used by list and cleanup commands.
const (
	SelectorAll    = "all"
	SelectorActive = "active"
)

// ParseSelector maps a case-insensitive status selector to a status set.
// "all" selects every status and yields nil; "active" yields PENDING and RUNNING.
func ParseSelector(sel string) ([]Status, error) {
	switch strings.ToLower(strings.TrimSpace(sel)) {
	case "", SelectorAll:
		return nil, nil
	case SelectorActive:
		return ActiveStatuses(), nil
	}
	st, err := ParseStatus(strings.ToUpper(strings.TrimSpace(sel)))
	if err != nil {
		return nil, err
	}
	return []Status{st}, nil
}

// Task is one schedulable unit of work owned by a tenant.
type Task struct {
	ID          core.ID    `json:"id"           db:"id"`
	Tenant      string     `json:"tenant"       db:"tenant"`
	Name        string     `json:"name"         db:"name"`
	Type        Type       `json:"type"         db:"type"`
	Status      Status     `json:"status"       db:"status"`
	Current     int64      `json:"current"      db:"current_count"`
	Total       int64      `json:"total"        db:"total_count"`
	ExternalRef *string    `json:"external_ref" db:"external_ref"`
	Error       *string    `json:"error"        db:"error"`
	CreatedAt   time.Time  `json:"created_at"   db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"   db:"updated_at"`
	TriggeredAt *time.Time `json:"triggered_at" db:"triggered_at"`
}

// New returns a PENDING task ready to be upserted.
func New(tenant, name string, typ Type, total int64) (*Task, error) {
	if tenant == "" {
		return nil, fmt.Errorf("tenant is required")
	}
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("unknown task type %q", typ)
	}
	if total <= 0 {
		return nil, fmt.Errorf("task %s: total must be positive, got %d", name, total)
	}
	id, err := core.NewID()
	if err != nil {
		return nil, err
	}
	return &Task{
		ID:     id,
		Tenant: tenant,
		Name:   name,
		Type:   typ,
		Status: StatusPending,
		Total:  total,
	}, nil
}

// Key is the (tenant, name, type) triple upserts are keyed on.
type Key struct {
	Tenant string
	Name   string
	Type   Type
}

func (t *Task) Key() Key {
	return Key{Tenant: t.Tenant, Name: t.Name, Type: t.Type}
}

func (t *Task) Ref() string {
	if t.ExternalRef == nil {
		return ""
	}
	return *t.ExternalRef
}

func (t *Task) ErrorText() string {
	if t.Error == nil {
		return ""
	}
	return *t.Error
}

func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.ExternalRef != nil {
		ref := *t.ExternalRef
		c.ExternalRef = &ref
	}
	if t.Error != nil {
		msg := *t.Error
		c.Error = &msg
	}
	if t.TriggeredAt != nil {
		at := *t.TriggeredAt
		c.TriggeredAt = &at
	}
	return &c
}
