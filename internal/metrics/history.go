package metrics

import "time"

// DefaultMaxPoints keeps two minutes of one-second samples.
const DefaultMaxPoints = 120

// trendWindow is how many recent points a trend averages.
const trendWindow = 10

// trendBand is how far the latest point must sit from the window average,
// in percentage points, to count as a trend.
const trendBand = 10

// History holds the recent points of each metric, oldest first.
type History struct {
	CPU     []Point
	Memory  []Point
	Disk    []Point
	Network []Point
}

// Series returns the points of m; nil for an unknown metric.
func (h History) Series(m Metric) []Point {
	switch m {
	case MetricCPU:
		return h.CPU
	case MetricMemory:
		return h.Memory
	case MetricDisk:
		return h.Disk
	case MetricNetwork:
		return h.Network
	}
	return nil
}

// with returns a copy of h with p appended to m, keeping at most limit points.
func (h History) with(m Metric, p Point, limit int) History {
	next := appendBounded(h.Series(m), p, limit)
	switch m {
	case MetricCPU:
		h.CPU = next
	case MetricMemory:
		h.Memory = next
	case MetricDisk:
		h.Disk = next
	case MetricNetwork:
		h.Network = next
	}
	return h
}

func appendBounded(points []Point, p Point, limit int) []Point {
	keep := points
	if len(keep) >= limit {
		keep = keep[len(keep)-limit+1:]
	}
	out := make([]Point, len(keep), len(keep)+1)
	copy(out, keep)
	return append(out, p)
}

// trendOf compares the latest point with the average of the last few.
func trendOf(points []Point) Trend {
	if len(points) < 2 {
		return TrendStable
	}
	recent := points
	if len(recent) > trendWindow {
		recent = recent[len(recent)-trendWindow:]
	}
	var sum float64
	for _, p := range recent {
		sum += p.Value
	}
	avg := sum / float64(len(recent))
	latest := recent[len(recent)-1].Value
	switch {
	case latest > avg+trendBand:
		return TrendIncreasing
	case latest < avg-trendBand:
		return TrendDecreasing
	}
	return TrendStable
}

// averageSince averages the points taken at or after since; zero when none.
func averageSince(points []Point, since time.Time) float64 {
	var (
		sum float64
		n   int
	)
	for _, p := range points {
		if p.Time.Before(since) {
			continue
		}
		sum += p.Value
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
