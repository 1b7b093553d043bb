// internal/report/aggregate.go
package report

import (
	"math"
	"sort"
	"time"
)

// Agg is an aggregation over the samples of a group
type Agg int

const (
	Mean Agg = iota
	Count
)

// Sample is one value of a time series. NaN values are missing and are
// skipped by both aggregations.
type Sample struct {
	Timestamp float64
	Node      int
	Value     float64
}

// XY is an aggregated axis pair; nil Y entries are empty groups
type XY struct {
	X []int      `yaml:"x,flow"`
	Y []*float64 `yaml:"y,flow"`
}

// Series is a metric aggregated per node and per time bucket
type Series struct {
	PerNode XY
	PerTime XY // X in minutes since the start of the run
}

type accumulator struct {
	sum float64
	n   int
}

func (a *accumulator) add(v float64) {
	if math.IsNaN(v) {
		return
	}
	a.sum += v
	a.n++
}

func (a *accumulator) value(agg Agg) *float64 {
	var v float64
	switch agg {
	case Count:
		v = float64(a.n)
	default:
		if a.n == 0 {
			return nil
		}
		v = a.sum / float64(a.n)
	}
	v = round4(v)
	return &v
}

// Aggregate groups samples per node and per time bucket. Bucket boundaries
// are multiples of bucket; empty buckets between the first and last sample
// are kept.
func Aggregate(samples []Sample, agg Agg, bucket time.Duration) Series {
	var s Series
	if len(samples) == 0 {
		return s
	}

	perNode := make(map[int]*accumulator)
	perBucket := make(map[int]*accumulator)
	width := bucket.Seconds()
	first, last := math.MaxInt, math.MinInt

	for _, smp := range samples {
		if perNode[smp.Node] == nil {
			perNode[smp.Node] = &accumulator{}
		}
		perNode[smp.Node].add(smp.Value)

		b := int(math.Floor(smp.Timestamp / width))
		if perBucket[b] == nil {
			perBucket[b] = &accumulator{}
		}
		perBucket[b].add(smp.Value)
		first = min(first, b)
		last = max(last, b)
	}

	nodes := make([]int, 0, len(perNode))
	for n := range perNode {
		nodes = append(nodes, n)
	}
	sort.Ints(nodes)
	for _, n := range nodes {
		s.PerNode.X = append(s.PerNode.X, n)
		s.PerNode.Y = append(s.PerNode.Y, perNode[n].value(agg))
	}

	minutes := bucket.Minutes()
	for b := first; b <= last; b++ {
		acc := perBucket[b]
		if acc == nil {
			acc = &accumulator{}
		}
		s.PerTime.X = append(s.PerTime.X, int(float64(b)*minutes))
		s.PerTime.Y = append(s.PerTime.Y, acc.value(agg))
	}
	return s
}

// MeanOf averages the non-NaN values, nil if there are none
func MeanOf(values []float64) *float64 {
	var acc accumulator
	for _, v := range values {
		acc.add(v)
	}
	return acc.value(Mean)
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
