package task

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidTransition = errors.New("invalid task transition")
	ErrTaskNotFound      = errors.New("task not found")
	// ErrStaleTask is returned when a compare-and-set update finds the task
	// in a different status than the caller observed.
	ErrStaleTask = errors.New("task status changed concurrently")
)

func transitionError(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusRunning:
		return from == StatusPending
	case StatusCompleted, StatusFailed:
		return from == StatusRunning
	case StatusRevoked:
		return from == StatusPending || from == StatusRunning
	}
	return false
}

func (t *Task) transition(to Status) error {
	if !CanTransition(t.Status, to) {
		return transitionError(t.Status, to)
	}
	t.Status = to
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Start records the backend handle and moves the task to RUNNING.
func (t *Task) Start(ref string) error {
	if err := t.transition(StatusRunning); err != nil {
		return err
	}
	if ref != "" {
		t.ExternalRef = &ref
	}
	return nil
}

// Advance raises current toward total. Lower values are ignored.
func (t *Task) Advance(current int64) error {
	if t.Status != StatusRunning {
		return fmt.Errorf("%w: progress on %s task", ErrInvalidTransition, t.Status)
	}
	current = min(max(current, 0), t.Total)
	if current > t.Current {
		t.Current = current
		t.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (t *Task) Complete() error {
	if err := t.transition(StatusCompleted); err != nil {
		return err
	}
	t.Current = t.Total
	return nil
}

// Fail keeps current at its last reported value.
func (t *Task) Fail(cause error) error {
	if err := t.transition(StatusFailed); err != nil {
		return err
	}
	if cause != nil {
		msg := cause.Error()
		t.Error = &msg
	}
	return nil
}

func (t *Task) Revoke(reason string) error {
	if err := t.transition(StatusRevoked); err != nil {
		return err
	}
	if reason != "" {
		t.Error = &reason
	}
	return nil
}

// Reset prepares the task for a fresh run. It is an administrative reset,
// not a transition, and applies from any status.
func (t *Task) Reset(total int64, triggeredAt time.Time) {
	t.Status = StatusPending
	t.Current = 0
	t.Total = total
	t.ExternalRef = nil
	t.Error = nil
	at := triggeredAt.UTC()
	t.TriggeredAt = &at
	t.UpdatedAt = time.Now().UTC()
}
