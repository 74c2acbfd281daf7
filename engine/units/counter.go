package units

import (
	"context"
	"fmt"
)

const DefaultBatchSize int64 = 1000

// StepFunc processes the unit of work at index i.
type StepFunc func(ctx context.Context, i int64) error

// CounterUnit walks total units of work and reports progress every batch.
type CounterUnit struct {
	name  string
	batch int64
	step  StepFunc
}

func NewCounterUnit(name string, batch int64) *CounterUnit {
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &CounterUnit{name: name, batch: batch}
}

// WithStep sets the per-unit work. Without it each unit is a no-op.
func (u *CounterUnit) WithStep(fn StepFunc) *CounterUnit {
	u.step = fn
	return u
}

func (u *CounterUnit) Name() string {
	return u.name
}

func (u *CounterUnit) Run(ctx context.Context, in Input, rec Recorder) (*Result, error) {
	if in.Task == nil {
		return nil, fmt.Errorf("%s: task is required", u.name)
	}
	total := in.Task.Total
	var i int64
	for i = 0; i < total; i++ {
		if u.step != nil {
			if err := u.step(ctx, i); err != nil {
				return nil, fmt.Errorf("%s: unit %d: %w", u.name, i, err)
			}
		}
		done := i + 1
		if done%u.batch != 0 && done != total {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if rec != nil {
			if err := rec.Record(ctx, done, total); err != nil {
				return nil, err
			}
		}
	}
	return &Result{TaskID: in.Task.ID, Processed: total}, nil
}
