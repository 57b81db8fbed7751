package analytics

import (
	"time"

	"loan-queue/internal/models"
	"loan-queue/internal/schedule"
)

// Tasks converts jobs to scheduler tasks with arrivals in minutes after
// origin and bursts multiplied by scale.
func Tasks(jobs []*models.Job, origin time.Time, scale float64) []schedule.Task {
	tasks := make([]schedule.Task, 0, len(jobs))
	for _, j := range jobs {
		tasks = append(tasks, schedule.Task{
			ID:      j.ID,
			Arrival: j.ArrivalTime.Sub(origin).Minutes(),
			Burst:   float64(j.BurstTime) * scale,
		})
	}
	return tasks
}

// EarliestArrival returns the first arrival among jobs, or the zero time
func EarliestArrival(jobs []*models.Job) time.Time {
	var earliest time.Time
	for i, j := range jobs {
		if i == 0 || j.ArrivalTime.Before(earliest) {
			earliest = j.ArrivalTime
		}
	}
	return earliest
}

// Project schedules queued jobs in the order given (position order) from the
// earliest arrival.
func Project(queued []*models.Job) schedule.Result {
	return schedule.Run(0, Tasks(queued, EarliestArrival(queued), 1))
}

// Simulate reorders a snapshot of the queue with strategy, scales every
// burst and schedules it from the earliest arrival. The baseline is plain
// FCFS at scale 1 over the same snapshot. jobs is not modified.
func Simulate(queued []*models.Job, strategy schedule.Strategy, scale float64) models.SimulationResult {
	origin := EarliestArrival(queued)

	positions := make(map[string]int, len(queued))
	for _, j := range queued {
		if j.Position != nil {
			positions[j.ID] = *j.Position
		}
	}

	ordered := schedule.Order(strategy, Tasks(queued, origin, scale))
	res := schedule.Run(0, ordered)
	baseline := schedule.FCFS(Tasks(queued, origin, 1))

	timeline := make([]models.TimelineEntry, 0, len(res.Entries))
	for i, e := range res.Entries {
		timeline = append(timeline, models.TimelineEntry{
			Order:      i + 1,
			JobID:      e.ID,
			Position:   positions[e.ID],
			Arrival:    Round(e.Arrival, 2),
			Burst:      Round(e.Burst, 2),
			Start:      Round(e.Start, 2),
			Finish:     Round(e.Finish, 2),
			Waiting:    Round(e.Waiting, 2),
			Turnaround: Round(e.Turnaround, 2),
			StartAt:    origin.Add(minutes(e.Start)),
			FinishAt:   origin.Add(minutes(e.Finish)),
		})
	}

	return models.SimulationResult{
		Strategy:               string(strategy),
		Scale:                  scale,
		AverageWaiting:         Round(res.AverageWaiting, 2),
		AverageTurnaround:      Round(res.AverageTurnaround, 2),
		BaselineAverageWaiting: Round(baseline.AverageWaiting, 2),
		Timeline:               timeline,
	}
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
