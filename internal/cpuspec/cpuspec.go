// Package cpuspec sizes CPU-bound work: interpreter threads for inference
// and worker counts for dataset synthesis.
package cpuspec

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v3/cpu"
)

// CPUSpec contains information about CPU specifications
type CPUSpec struct {
	BrandName        string
	PerformanceCores int
	LogicalCores     int
}

// Performance core counts of hybrid CPUs, keyed by the model number found
// in the brand string. Hybrid parts run inference best on P-cores only.
var intelPerformanceCores = map[string]int{
	"12900": 8, "12700": 8, "12600": 6, "12400": 6, "12100": 4,
	"13900": 8, "13700": 8, "13600": 6, "13500": 6, "13400": 6, "13100": 4,
	"14900": 8, "14700": 8, "14600": 6, "14400": 6, "14100": 4,
	"ultra 9 285": 8, "ultra 7 265": 8, "ultra 7 255": 8, "ultra 5 235": 6, "ultra 5 225": 4,
}

var applePerformanceCores = map[string]int{
	"m1": 4, "m1 pro": 8, "m1 max": 8, "m1 ultra": 16,
	"m2": 4, "m2 pro": 8, "m2 max": 12, "m2 ultra": 24,
	"m3": 4, "m3 pro": 8, "m3 max": 12, "m3 ultra": 24,
	"m4": 6, "m4 pro": 8, "m4 max": 12,
}

var (
	intelCoreRegex  = regexp.MustCompile(`intel.*core.*i[3579]-(\d{5})`)
	intelUltraRegex = regexp.MustCompile(`intel.*core.*(ultra\s+[579])\s+(?:processor\s+)?(\d{3})`)
	appleRegex      = regexp.MustCompile(`apple\s+(m[1-4](?:\s*(?:pro|max|ultra))?)`)
)

// GetCPUSpec returns the CPU brand and core layout of this machine.
func GetCPUSpec() CPUSpec {
	brandName := cpuid.CPU.BrandName
	return CPUSpec{
		BrandName:        brandName,
		PerformanceCores: determinePerformanceCores(brandName),
		LogicalCores:     AvailableCPUs(),
	}
}

// GetOptimalThreadCount returns the recommended interpreter thread count.
func (c CPUSpec) GetOptimalThreadCount() int {
	available := AvailableCPUs()
	if c.PerformanceCores > 0 {
		return min(c.PerformanceCores, available)
	}
	return available
}

// AvailableCPUs returns the logical CPUs usable by this process. gopsutil
// reports the host count; runtime.NumCPU honours affinity masks and wins
// when smaller, as in containers.
func AvailableCPUs() int {
	n := runtime.NumCPU()
	if counted, err := cpu.Counts(true); err == nil && counted > 0 {
		n = min(n, counted)
	}
	return max(1, n)
}

// InterpreterThreads resolves a configured thread count: 0 selects the
// optimal count for this CPU, larger values are capped at the CPU count.
func InterpreterThreads(configured int) int {
	available := AvailableCPUs()
	if configured <= 0 {
		return GetCPUSpec().GetOptimalThreadCount()
	}
	return min(configured, available)
}

// WorkerCount applies the synthesis worker policy. An explicit maxWorkers
// wins, capped at cpus. Otherwise fraction of cpus is used, leaving one CPU
// free, with at least one worker.
func WorkerCount(cpus int, fraction float64, maxWorkers int) int {
	cpus = max(1, cpus)
	if maxWorkers > 0 {
		return min(maxWorkers, cpus)
	}
	return max(1, min(int(float64(cpus)*fraction), cpus-1))
}

func determinePerformanceCores(brandName string) int {
	brandName = strings.ToLower(brandName)

	if m := intelCoreRegex.FindStringSubmatch(brandName); m != nil {
		return intelPerformanceCores[m[1]]
	}
	if m := intelUltraRegex.FindStringSubmatch(brandName); m != nil {
		key := strings.Join(strings.Fields(m[1]), " ") + " " + m[2]
		return intelPerformanceCores[key]
	}
	if m := appleRegex.FindStringSubmatch(brandName); m != nil {
		chip := strings.Join(strings.Fields(m[1]), " ")
		return applePerformanceCores[chip]
	}
	return 0
}
