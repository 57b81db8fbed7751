package schedule

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestFCFS_ReferenceScenario(t *testing.T) {
	res := FCFS([]Task{
		{ID: "C", Arrival: 2, Burst: 5},
		{ID: "A", Arrival: 0, Burst: 10},
		{ID: "B", Arrival: 1, Burst: 60},
	})

	require.Equal(t, []string{"A", "B", "C"}, ids(res.Entries))

	a, b, c := res.Entries[0], res.Entries[1], res.Entries[2]
	assert.Equal(t, 0.0, a.Start)
	assert.Equal(t, 10.0, a.Finish)
	assert.Equal(t, 0.0, a.Waiting)
	assert.Equal(t, 10.0, b.Start)
	assert.Equal(t, 70.0, b.Finish)
	assert.Equal(t, 9.0, b.Waiting)
	assert.Equal(t, 70.0, c.Start)
	assert.Equal(t, 75.0, c.Finish)
	assert.Equal(t, 68.0, c.Waiting)

	assert.InDelta(t, 77.0/3, res.AverageWaiting, 1e-9)
	assert.InDelta(t, 152.0/3, res.AverageTurnaround, 1e-9)
	assert.InDelta(t, 25.67, res.AverageWaiting, 0.005)
	assert.Empty(t, res.Clamped)
}

func TestFCFS_Empty(t *testing.T) {
	res := FCFS(nil)
	assert.Empty(t, res.Entries)
	assert.Equal(t, 0.0, res.AverageWaiting)
	assert.Equal(t, 0.0, res.AverageTurnaround)
}

func TestFCFS_IdleServerStartsAtArrival(t *testing.T) {
	res := FCFS([]Task{
		{ID: "a", Arrival: 0, Burst: 5},
		{ID: "b", Arrival: 20, Burst: 5},
	})
	assert.Equal(t, 20.0, res.Entries[1].Start)
	assert.Equal(t, 0.0, res.Entries[1].Waiting)
}

func TestFCFS_StartsAtEarliestArrival(t *testing.T) {
	res := FCFS([]Task{{ID: "a", Arrival: 100, Burst: 5}})
	assert.Equal(t, 100.0, res.Entries[0].Start)
	assert.Equal(t, 0.0, res.Entries[0].Waiting)
}

func TestFCFS_NegativeBurstClamped(t *testing.T) {
	res := FCFS([]Task{
		{ID: "a", Arrival: 0, Burst: -5},
		{ID: "b", Arrival: 0, Burst: 10},
	})
	assert.Equal(t, []string{"a"}, res.Clamped)
	assert.Equal(t, 0.0, res.Entries[0].Finish)
	assert.Equal(t, 0.0, res.Entries[1].Start)
}

func TestFCFS_TieBreakByID(t *testing.T) {
	tasks := []Task{
		{ID: "P-20240101-003", Arrival: 5, Burst: 1},
		{ID: "P-20240101-001", Arrival: 5, Burst: 1},
		{ID: "P-20240101-002", Arrival: 5, Burst: 1},
	}
	for i := 0; i < 20; i++ {
		rand.Shuffle(len(tasks), func(a, b int) { tasks[a], tasks[b] = tasks[b], tasks[a] })
		res := FCFS(tasks)
		assert.Equal(t, []string{"P-20240101-001", "P-20240101-002", "P-20240101-003"}, ids(res.Entries))
	}
}

func TestFCFS_DoesNotMutateInput(t *testing.T) {
	tasks := []Task{{ID: "b", Arrival: 1, Burst: 1}, {ID: "a", Arrival: 0, Burst: 1}}
	FCFS(tasks)
	assert.Equal(t, "b", tasks[0].ID)
}

// Randomized check of ordering, non-negativity and conservation.
func TestFCFS_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		n := rng.Intn(12)
		tasks := make([]Task, n)
		seen := map[float64]bool{}
		for i := range tasks {
			arrival := float64(rng.Intn(1000))
			for seen[arrival] {
				arrival++
			}
			seen[arrival] = true
			tasks[i] = Task{ID: string(rune('a' + i)), Arrival: arrival, Burst: float64(15 + rng.Intn(100))}
		}

		res := FCFS(tasks)
		require.Len(t, res.Entries, n)

		arrivals := make([]float64, 0, n)
		for _, e := range res.Entries {
			arrivals = append(arrivals, e.Arrival)
			assert.GreaterOrEqual(t, e.Waiting, 0.0)
			assert.GreaterOrEqual(t, e.Turnaround, e.Burst)
			assert.InDelta(t, e.Waiting+e.Burst, e.Turnaround, 1e-9)
		}
		assert.True(t, sort.Float64sAreSorted(arrivals), "schedule must follow arrival order")
	}
}

func TestRun_KeepsGivenOrder(t *testing.T) {
	res := Run(0, []Task{
		{ID: "late", Arrival: 10, Burst: 5},
		{ID: "early", Arrival: 0, Burst: 5},
	})
	require.Equal(t, []string{"late", "early"}, ids(res.Entries))
	assert.Equal(t, 10.0, res.Entries[0].Start)
	assert.Equal(t, 15.0, res.Entries[1].Start)
	assert.Equal(t, 15.0, res.Entries[1].Waiting)
}
