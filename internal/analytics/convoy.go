// Package analytics holds read-only computations over snapshots of the loan
// queue: convoy detection, wait estimates, throughput and what-if simulation.
package analytics

import (
	"math"

	"loan-queue/internal/models"
)

// Convoy reports runs of long jobs in queue order. A job is long when its
// burst is at least mean + sample standard deviation; every transition from
// a short job (or the head of the queue) to a long one starts a cluster.
// A queue with no spread in burst times has no clusters.
func Convoy(bursts []int) models.ConvoyReport {
	report := models.ConvoyReport{
		QueueLength: len(bursts),
		Spans:       []models.ClusterSpan{},
	}
	if len(bursts) == 0 {
		return report
	}

	mean, sd := meanStdDev(bursts)
	report.AvgBurst = Round(mean, 2)
	report.StdDevBurst = Round(sd, 2)
	report.Threshold = Round(mean+sd, 2)
	if sd == 0 {
		return report
	}

	threshold := mean + sd
	inRun := false
	for i, b := range bursts {
		high := float64(b) >= threshold
		switch {
		case high && !inRun:
			report.Clusters++
			report.Spans = append(report.Spans, models.ClusterSpan{StartPosition: i + 1, Length: 1})
		case high && inRun:
			report.Spans[len(report.Spans)-1].Length++
		}
		inRun = high
	}
	return report
}

// meanStdDev returns the mean and the sample (n-1) standard deviation
func meanStdDev(values []int) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	mean := sum / float64(len(values))
	if len(values) < 2 {
		return mean, 0
	}

	var varianceSum float64
	for _, v := range values {
		d := float64(v) - mean
		varianceSum += d * d
	}
	return mean, math.Sqrt(varianceSum / float64(len(values)-1))
}

// Round rounds value to precision decimal places
func Round(value float64, precision int) float64 {
	factor := math.Pow(10, float64(precision))
	return math.Round(value*factor) / factor
}
