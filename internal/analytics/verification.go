package analytics

import (
	"sort"
	"time"

	"loan-queue/internal/models"
)

const (
	topReviewers = 5
	trendDays    = 7
)

// Verification summarizes decided jobs over a trailing window of days.
// decided should hold jobs whose decision falls in the window; inReview is
// the current number of jobs under review.
func Verification(decided []*models.Job, inReview int, now time.Time, days int, loc *time.Location) models.VerificationStats {
	stats := models.VerificationStats{
		WindowDays:      days,
		InReview:        inReview,
		Reviewers:       []models.ReviewerStats{},
		ProcessingTrend: []models.DailyProcessing{},
	}

	type acc struct {
		stats   models.ReviewerStats
		minutes float64
		timed   int
	}
	byReviewer := map[string]*acc{}
	trendFrom := StartOfDay(now, loc).AddDate(0, 0, -(trendDays - 1))
	trendSum := map[string]float64{}
	trendCount := map[string]int{}

	var totalMinutes float64
	var timed int
	for _, j := range decided {
		switch j.State {
		case models.StateApproved:
			stats.Approved++
		case models.StateRejected:
			stats.Rejected++
		default:
			continue
		}

		a, ok := byReviewer[j.ReviewerID]
		if !ok {
			a = &acc{stats: models.ReviewerStats{ReviewerID: j.ReviewerID}}
			byReviewer[j.ReviewerID] = a
		}
		a.stats.TotalProcessed++
		if j.State == models.StateApproved {
			a.stats.Approved++
		} else {
			a.stats.Rejected++
		}

		if j.StartProcessTime == nil || j.FinishProcessTime == nil {
			continue
		}
		m := j.FinishProcessTime.Sub(*j.StartProcessTime).Minutes()
		totalMinutes += m
		timed++
		a.minutes += m
		a.timed++

		if finish := j.FinishProcessTime.In(loc); !finish.Before(trendFrom) {
			key := finish.Format(dateLayout)
			trendSum[key] += m
			trendCount[key]++
		}
	}

	if timed > 0 {
		stats.AvgProcessMinutes = Round(totalMinutes/float64(timed), 1)
	}

	for _, a := range byReviewer {
		if a.timed > 0 {
			a.stats.AvgProcessMinutes = Round(a.minutes/float64(a.timed), 1)
		}
		stats.Reviewers = append(stats.Reviewers, a.stats)
	}
	sort.Slice(stats.Reviewers, func(i, j int) bool {
		if stats.Reviewers[i].TotalProcessed != stats.Reviewers[j].TotalProcessed {
			return stats.Reviewers[i].TotalProcessed > stats.Reviewers[j].TotalProcessed
		}
		return stats.Reviewers[i].ReviewerID < stats.Reviewers[j].ReviewerID
	})
	if len(stats.Reviewers) > topReviewers {
		stats.Reviewers = stats.Reviewers[:topReviewers]
	}

	for i := 0; i < trendDays; i++ {
		key := trendFrom.AddDate(0, 0, i).Format(dateLayout)
		if n := trendCount[key]; n > 0 {
			stats.ProcessingTrend = append(stats.ProcessingTrend, models.DailyProcessing{
				Date:       key,
				AvgMinutes: Round(trendSum[key]/float64(n), 1),
			})
		}
	}
	return stats
}
