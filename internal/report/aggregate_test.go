// internal/report/aggregate_test.go
package report

import (
	"math"
	"reflect"
	"testing"
	"time"
)

func values(ys []*float64) []any {
	out := make([]any, len(ys))
	for i, y := range ys {
		if y == nil {
			out[i] = nil
		} else {
			out[i] = *y
		}
	}
	return out
}

func TestAggregate(t *testing.T) {
	samples := []Sample{
		{Timestamp: 10, Node: 1, Value: 1},
		{Timestamp: 130, Node: 1, Value: 3},
		{Timestamp: 20, Node: 2, Value: math.NaN()},
		{Timestamp: 400, Node: 2, Value: 5},
	}

	mean := Aggregate(samples, Mean, 2*time.Minute)
	if want := []int{1, 2}; !reflect.DeepEqual(mean.PerNode.X, want) {
		t.Errorf("per-node x = %v, want %v", mean.PerNode.X, want)
	}
	if got, want := values(mean.PerNode.Y), []any{2.0, 5.0}; !reflect.DeepEqual(got, want) {
		t.Errorf("per-node mean = %v, want %v", got, want)
	}
	if want := []int{0, 2, 4, 6}; !reflect.DeepEqual(mean.PerTime.X, want) {
		t.Errorf("per-time x = %v, want %v", mean.PerTime.X, want)
	}
	if got, want := values(mean.PerTime.Y), []any{1.0, 3.0, nil, 5.0}; !reflect.DeepEqual(got, want) {
		t.Errorf("per-time mean = %v, want %v", got, want)
	}

	count := Aggregate(samples, Count, 2*time.Minute)
	if got, want := values(count.PerNode.Y), []any{2.0, 1.0}; !reflect.DeepEqual(got, want) {
		t.Errorf("per-node count = %v, want %v", got, want)
	}
	if got, want := values(count.PerTime.Y), []any{1.0, 1.0, 0.0, 1.0}; !reflect.DeepEqual(got, want) {
		t.Errorf("per-time count = %v, want %v", got, want)
	}
}

func TestAggregateEmpty(t *testing.T) {
	s := Aggregate(nil, Mean, time.Minute)
	if len(s.PerNode.X) != 0 || len(s.PerTime.X) != 0 {
		t.Errorf("Aggregate(nil) = %+v", s)
	}
}

func TestMeanOf(t *testing.T) {
	if MeanOf(nil) != nil {
		t.Error("MeanOf(nil) should be nil")
	}
	if MeanOf([]float64{math.NaN()}) != nil {
		t.Error("MeanOf(NaN) should be nil")
	}
	if got := MeanOf([]float64{1, 2, math.NaN()}); got == nil || *got != 1.5 {
		t.Errorf("MeanOf = %v, want 1.5", got)
	}
	if got := MeanOf([]float64{1, 1, 2}); got == nil || *got != 1.3333 {
		t.Errorf("MeanOf rounding = %v, want 1.3333", got)
	}
}
