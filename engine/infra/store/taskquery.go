// Package store holds the SQL shared by the postgres and sqlite task repositories.
package store

import (
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/compozy/tenantflow/engine/task"
)

const TasksTable = "tasks"

var TaskColumns = []string{
	"id",
	"tenant",
	"name",
	"type",
	"status",
	"current_count",
	"total_count",
	"external_ref",
	"error",
	"created_at",
	"updated_at",
	"triggered_at",
}

func where(filter *task.Filter) squirrel.And {
	var conds squirrel.And
	if filter == nil {
		return nil
	}
	if filter.Tenant != "" {
		conds = append(conds, squirrel.Eq{"tenant": filter.Tenant})
	}
	if len(filter.Statuses) > 0 {
		conds = append(conds, squirrel.Eq{"status": statusStrings(filter.Statuses)})
	}
	if len(filter.Types) > 0 {
		conds = append(conds, squirrel.Eq{"type": typeStrings(filter.Types)})
	}
	return conds
}

// SelectTasks builds the ordered, filtered task listing.
func SelectTasks(format squirrel.PlaceholderFormat, filter *task.Filter) squirrel.SelectBuilder {
	sb := squirrel.Select(TaskColumns...).
		From(TasksTable).
		OrderBy(string(filter.Order())+" ASC", "created_at ASC", "id ASC").
		PlaceholderFormat(format)
	if conds := where(filter); len(conds) > 0 {
		sb = sb.Where(conds)
	}
	if filter != nil && filter.Limit > 0 {
		sb = sb.Limit(filter.Limit)
	}
	return sb
}

// ExistsTasks builds a query returning one row when a match exists.
func ExistsTasks(format squirrel.PlaceholderFormat, filter *task.Filter) squirrel.SelectBuilder {
	sb := squirrel.Select("1").
		From(TasksTable).
		Limit(1).
		PlaceholderFormat(format)
	if conds := where(filter); len(conds) > 0 {
		sb = sb.Where(conds)
	}
	return sb
}

func DeleteTasks(format squirrel.PlaceholderFormat, filter *task.Filter) squirrel.DeleteBuilder {
	db := squirrel.Delete(TasksTable).PlaceholderFormat(format)
	if conds := where(filter); len(conds) > 0 {
		db = db.Where(conds)
	}
	return db
}

// UpdateTaskStatus builds the compare-and-set status update.
func UpdateTaskStatus(format squirrel.PlaceholderFormat, t *task.Task, from task.Status) squirrel.UpdateBuilder {
	return squirrel.Update(TasksTable).
		Set("status", t.Status).
		Set("current_count", t.Current).
		Set("external_ref", t.ExternalRef).
		Set("error", t.Error).
		Set("updated_at", t.UpdatedAt).
		Where(squirrel.Eq{"id": t.ID, "status": from}).
		PlaceholderFormat(format)
}

func DistinctTenants(format squirrel.PlaceholderFormat) squirrel.SelectBuilder {
	return squirrel.Select("DISTINCT tenant").
		From(TasksTable).
		OrderBy("tenant ASC").
		PlaceholderFormat(format)
}

func statusStrings(in []task.Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func typeStrings(in []task.Type) []string {
	out := make([]string, len(in))
	for i, t := range in {
		out[i] = string(t)
	}
	return out
}

// UpsertTask inserts t or resets the row sharing its (tenant, name, type)
// key. The existing id and created_at survive the conflict branch.
func UpsertTask(format squirrel.PlaceholderFormat, t *task.Task) squirrel.InsertBuilder {
	return squirrel.Insert(TasksTable).
		Columns(TaskColumns...).
		Values(
			t.ID,
			t.Tenant,
			t.Name,
			t.Type,
			t.Status,
			t.Current,
			t.Total,
			t.ExternalRef,
			t.Error,
			t.CreatedAt,
			t.UpdatedAt,
			t.TriggeredAt,
		).
		Suffix(upsertSuffix).
		PlaceholderFormat(format)
}

var upsertSuffix = "ON CONFLICT (tenant, name, type) DO UPDATE SET " +
	"status = excluded.status, " +
	"current_count = excluded.current_count, " +
	"total_count = excluded.total_count, " +
	"external_ref = excluded.external_ref, " +
	"error = excluded.error, " +
	"updated_at = excluded.updated_at, " +
	"triggered_at = excluded.triggered_at"

// ReturningTasks is appended by drivers that can scan RETURNING rows.
var ReturningTasks = "RETURNING " + strings.Join(TaskColumns, ", ")

// StampForInsert fills the timestamps an upsert needs.
func StampForInsert(t *task.Task, now time.Time) *task.Task {
	c := t.Clone()
	now = now.UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	return c
}
