// Package schedule computes single-server, non-preemptive schedules for a
// set of jobs. All times are in minutes. Functions never modify their input.
package schedule

import (
	"sort"
)

// Task is one job as seen by the scheduler
type Task struct {
	ID      string  `json:"id"`
	Arrival float64 `json:"arrival"`
	Burst   float64 `json:"burst"`
}

// Entry is a task with its computed schedule
type Entry struct {
	Task
	Start      float64 `json:"start"`
	Finish     float64 `json:"finish"`
	Waiting    float64 `json:"waiting"`
	Turnaround float64 `json:"turnaround"`
}

// Result is a full schedule plus its averages
type Result struct {
	Entries           []Entry `json:"entries"`
	AverageWaiting    float64 `json:"average_waiting"`
	AverageTurnaround float64 `json:"average_turnaround"`
	// Clamped lists tasks whose negative burst was treated as zero
	Clamped []string `json:"clamped,omitempty"`
}

// FCFS schedules tasks in arrival order, ties broken by ID, starting at the
// earliest arrival.
func FCFS(tasks []Task) Result {
	ordered := Order(StrategyFCFS, tasks)
	return Run(earliestArrival(ordered), ordered)
}

// Run schedules tasks in the given order with the server free from start.
func Run(start float64, ordered []Task) Result {
	res := Result{Entries: make([]Entry, 0, len(ordered))}
	current := start

	var sumWaiting, sumTurnaround float64
	for _, t := range ordered {
		burst := t.Burst
		if burst < 0 {
			burst = 0
			res.Clamped = append(res.Clamped, t.ID)
		}

		begin := max(current, t.Arrival)
		finish := begin + burst
		e := Entry{
			Task:       t,
			Start:      begin,
			Finish:     finish,
			Waiting:    max(0, begin-t.Arrival),
			Turnaround: finish - t.Arrival,
		}
		res.Entries = append(res.Entries, e)

		sumWaiting += e.Waiting
		sumTurnaround += e.Turnaround
		current = finish
	}

	if n := len(res.Entries); n > 0 {
		res.AverageWaiting = sumWaiting / float64(n)
		res.AverageTurnaround = sumTurnaround / float64(n)
	}
	return res
}

func earliestArrival(tasks []Task) float64 {
	if len(tasks) == 0 {
		return 0
	}
	m := tasks[0].Arrival
	for _, t := range tasks[1:] {
		m = min(m, t.Arrival)
	}
	return m
}

func byArrival(a, b Task) bool {
	if a.Arrival != b.Arrival {
		return a.Arrival < b.Arrival
	}
	return a.ID < b.ID
}

func sortTasks(tasks []Task, less func(a, b Task) bool) []Task {
	out := make([]Task, len(tasks))
	copy(out, tasks)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
