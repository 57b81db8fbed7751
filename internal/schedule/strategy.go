package schedule

import (
	"fmt"
	"strings"
)

// Strategy selects the service order for a set of tasks
type Strategy string

const (
	// StrategyFCFS serves by arrival, then ID
	StrategyFCFS Strategy = "fcfs"
	// StrategySJF serves the shortest burst first, then by arrival, then ID
	StrategySJF Strategy = "sjf"
)

// ParseStrategy accepts a strategy name, case-insensitive. Empty means fcfs.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyFCFS:
		return StrategyFCFS, nil
	case StrategySJF:
		return StrategySJF, nil
	}
	return "", fmt.Errorf("unknown strategy %q (want fcfs or sjf)", s)
}

// Order returns a copy of tasks in the strategy's service order.
// Unknown strategies fall back to FCFS.
func Order(strategy Strategy, tasks []Task) []Task {
	switch strategy {
	case StrategySJF:
		return sortTasks(tasks, func(a, b Task) bool {
			if a.Burst != b.Burst {
				return a.Burst < b.Burst
			}
			return byArrival(a, b)
		})
	default:
		return sortTasks(tasks, byArrival)
	}
}
