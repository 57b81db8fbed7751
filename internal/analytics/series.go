package analytics

import (
	"time"

	"loan-queue/internal/models"
)

const dateLayout = "2006-01-02"

// WaitSeries returns the cumulative burst time at each position. queued must
// be in position order.
func WaitSeries(queued []*models.Job) []models.WaitPoint {
	points := make([]models.WaitPoint, 0, len(queued))
	total := 0
	for i, j := range queued {
		total += j.BurstTime
		pos := i + 1
		if j.Position != nil {
			pos = *j.Position
		}
		points = append(points, models.WaitPoint{Position: pos, JobID: j.ID, EstimatedWait: total})
	}
	return points
}

// Throughput counts finish times per calendar day in loc over the trailing
// days ending today, oldest first. Days with no decisions report zero.
func Throughput(finished []time.Time, now time.Time, days int, loc *time.Location) []models.DailyThroughput {
	if days < 1 {
		days = 1
	}
	first := StartOfDay(now, loc).AddDate(0, 0, -(days - 1))

	counts := make(map[string]int, days)
	for _, t := range finished {
		local := t.In(loc)
		if local.Before(first) || local.After(now.In(loc)) {
			continue
		}
		counts[local.Format(dateLayout)]++
	}

	out := make([]models.DailyThroughput, 0, days)
	for i := 0; i < days; i++ {
		key := first.AddDate(0, 0, i).Format(dateLayout)
		out = append(out, models.DailyThroughput{Date: key, ProcessedCount: counts[key]})
	}
	return out
}

// StartOfDay returns midnight of t's calendar day in loc
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
