package progress

import (
	"github.com/compozy/tenantflow/engine/task"
)

// Progress is the aggregate view over a set of task snapshots.
type Progress struct {
	Current    int64               `json:"current"`
	Total      int64               `json:"total"`
	Percent    float64             `json:"percent"`
	Histogram  map[task.Status]int `json:"histogram"`
	IsComplete bool                `json:"is_complete"`
	IsPending  bool                `json:"is_pending"`
	IsRunning  bool                `json:"is_running"`
	IsActive   bool                `json:"is_active"`
}

// Fraction is the per-task completion ratio in [0, 1].
func Fraction(t *task.Task) float64 {
	if t == nil || t.Total <= 0 {
		return 0
	}
	return float64(t.Current) / float64(t.Total)
}

// Aggregate sums unit counts across tasks, so large tasks weigh in
// proportion to their work volume.
func Aggregate(tasks []*task.Task) Progress {
	p := Progress{Histogram: make(map[task.Status]int)}
	for _, t := range tasks {
		if t == nil {
			continue
		}
		p.Current += t.Current
		p.Total += t.Total
		p.Histogram[t.Status]++
	}
	if p.Total > 0 {
		p.Percent = 100 * float64(p.Current) / float64(p.Total)
	}
	p.IsComplete = len(p.Histogram) == 1 && p.Histogram[task.StatusCompleted] > 0
	p.IsPending = p.Histogram[task.StatusPending] > 0
	p.IsRunning = p.Histogram[task.StatusRunning] > 0
	p.IsActive = p.IsPending || p.IsRunning
	return p
}

// Zero is the neutral result reported for a tenant whose tasks could not be read.
func Zero() Progress {
	return Progress{Histogram: make(map[task.Status]int)}
}
