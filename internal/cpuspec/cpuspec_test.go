package cpuspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeterminePerformanceCores(t *testing.T) {
	t.Parallel()

	tests := []struct {
		brand string
		want  int
	}{
		{"12th Gen Intel(R) Core(TM) i7-12700K", 8},
		{"13th Gen Intel(R) Core(TM) i5-13600K", 6},
		{"Intel(R) Core(TM) Ultra 5 225", 4},
		{"Intel(R) Core(TM) Ultra 7 Processor 265K", 8},
		{"Apple M2 Max", 12},
		{"Apple M4", 6},
		{"AMD Ryzen 9 7950X 16-Core Processor", 0},
		{"Intel(R) Core(TM) i7-8700K CPU @ 3.70GHz", 0},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(tt.brand, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, determinePerformanceCores(tt.brand))
		})
	}
}

func TestWorkerCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cpus       int
		fraction   float64
		maxWorkers int
		want       int
	}{
		{"default fraction", 8, 0.75, 0, 6},
		{"reserves one cpu", 4, 1.0, 0, 3},
		{"single cpu", 1, 0.75, 0, 1},
		{"two cpus", 2, 0.75, 0, 1},
		{"tiny fraction", 16, 0.01, 0, 1},
		{"explicit max", 8, 0.75, 3, 3},
		{"explicit max capped at cpus", 4, 0.75, 12, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, WorkerCount(tt.cpus, tt.fraction, tt.maxWorkers))
		})
	}
}

func TestThreadCounts(t *testing.T) {
	t.Parallel()

	available := AvailableCPUs()
	assert.GreaterOrEqual(t, available, 1)
	assert.Equal(t, 1, InterpreterThreads(1))
	assert.Equal(t, available, InterpreterThreads(available+100))

	optimal := InterpreterThreads(0)
	assert.GreaterOrEqual(t, optimal, 1)
	assert.LessOrEqual(t, optimal, available)
}
